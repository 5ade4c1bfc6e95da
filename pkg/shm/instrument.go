package shm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments are the OTel instruments of one queue handle. Counters are
// bumped on commit and on full/empty rejections; occupancy is observed on
// collection.
type instruments struct {
	attrs metric.MeasurementOption

	produced      metric.Int64Counter
	producedBytes metric.Int64Counter
	consumed      metric.Int64Counter
	consumedBytes metric.Int64Counter
	full          metric.Int64Counter
	empty         metric.Int64Counter

	registration metric.Registration
}

func newInstruments(meter metric.Meter, q *Queue) (*instruments, error) {
	inst := &instruments{
		attrs: metric.WithAttributeSet(attribute.NewSet(attribute.String("shm.queue", q.name))),
	}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		unit string
		desc string
	}{
		{&inst.produced, "shm.queue.produced", "{message}", "Messages committed by the producer."},
		{&inst.producedBytes, "shm.queue.produced.bytes", "By", "Payload bytes committed by the producer."},
		{&inst.consumed, "shm.queue.consumed", "{message}", "Messages committed by the consumer."},
		{&inst.consumedBytes, "shm.queue.consumed.bytes", "By", "Payload bytes committed by the consumer."},
		{&inst.full, "shm.queue.full", "{rejection}", "Allocations rejected because the queue was full."},
		{&inst.empty, "shm.queue.empty", "{rejection}", "Reads rejected because the queue was empty."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithUnit(c.unit), metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	used, err := meter.Int64ObservableGauge("shm.queue.used",
		metric.WithUnit("By"),
		metric.WithDescription("Bytes between the consumer and producer cursors."))
	if err != nil {
		return nil, fmt.Errorf("gauge shm.queue.used: %w", err)
	}
	capacity, err := meter.Int64ObservableGauge("shm.queue.capacity",
		metric.WithUnit("By"),
		metric.WithDescription("Size of the data region."))
	if err != nil {
		return nil, fmt.Errorf("gauge shm.queue.capacity: %w", err)
	}
	inst.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if q.closed.Load() {
			return nil
		}
		o.ObserveInt64(used, int64(q.Len()), inst.attrs)
		o.ObserveInt64(capacity, int64(q.capacity), inst.attrs)
		return nil
	}, used, capacity)
	if err != nil {
		return nil, fmt.Errorf("register occupancy callback: %w", err)
	}
	return inst, nil
}

func (i *instruments) recordProduced(n int) {
	ctx := context.Background()
	i.produced.Add(ctx, 1, i.attrs)
	i.producedBytes.Add(ctx, int64(n), i.attrs)
}

func (i *instruments) recordConsumed(n int) {
	ctx := context.Background()
	i.consumed.Add(ctx, 1, i.attrs)
	i.consumedBytes.Add(ctx, int64(n), i.attrs)
}

func (i *instruments) recordFull() {
	i.full.Add(context.Background(), 1, i.attrs)
}

func (i *instruments) recordEmpty() {
	i.empty.Add(context.Background(), 1, i.attrs)
}

func (i *instruments) close() error {
	if i.registration == nil {
		return nil
	}
	return i.registration.Unregister()
}
