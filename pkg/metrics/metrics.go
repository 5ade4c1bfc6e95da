// Package metrics exports queue occupancy to Prometheus.
package metrics

import (
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/spsc-shm/pkg/shm"
)

// Source is the part of a queue handle the collector reads. *shm.Queue
// implements it.
type Source interface {
	Cap() uint64
	Len() uint64
	Closed() bool
}

// Collector is a prometheus.Collector reporting capacity, used and free bytes
// of every added queue, labelled by queue name.
type Collector struct {
	queues cmap.ConcurrentMap[string, Source]

	capacity *prometheus.Desc
	used     *prometheus.Desc
	free     *prometheus.Desc
}

// NewCollector returns a Collector without queues.
func NewCollector() *Collector {
	labels := []string{"queue"}
	return &Collector{
		queues:   cmap.New[Source](),
		capacity: prometheus.NewDesc("spscq_capacity_bytes", "Size of the queue data region.", labels, nil),
		used:     prometheus.NewDesc("spscq_used_bytes", "Bytes between the consumer and producer cursors.", labels, nil),
		free:     prometheus.NewDesc("spscq_free_bytes", "Bytes the producer may still allocate.", labels, nil),
	}
}

// Add starts reporting src as name, replacing any earlier source of that name.
func (c *Collector) Add(name string, src Source) {
	c.queues.Set(name, src)
}

// Remove stops reporting name.
func (c *Collector) Remove(name string) {
	c.queues.Remove(name)
}

// QueueOpened implements lifecycle.Observer.
func (c *Collector) QueueOpened(name string, q *shm.Queue) {
	c.Add(name, q)
}

// QueueClosed implements lifecycle.Observer.
func (c *Collector) QueueClosed(name string) {
	c.Remove(name)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.used
	ch <- c.free
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.queues.IterCb(func(name string, src Source) {
		if src.Closed() {
			return
		}
		capacity, used := src.Cap(), src.Len()
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(capacity), name)
		ch <- prometheus.MustNewConstMetric(c.used, prometheus.GaugeValue, float64(used), name)
		ch <- prometheus.MustNewConstMetric(c.free, prometheus.GaugeValue, float64(capacity-used), name)
	})
}
