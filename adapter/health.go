package adapter

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/spsc-shm/pkg/health"
	"github.com/srediag/spsc-shm/pkg/lifecycle"
	"github.com/srediag/spsc-shm/pkg/metrics"
	"github.com/srediag/spsc-shm/pkg/shm"
)

// Monitor serves /live, /ready and /metrics for the queues opened through
// its Manager.
type Monitor struct {
	health    healthcheck.Handler
	collector *metrics.Collector
	registry  *prometheus.Registry
	manager   *lifecycle.Manager
	mux       *http.ServeMux
}

// NewMonitor returns a Monitor and the Manager queues should be opened with.
// Extra lifecycle options are passed to the Manager.
func NewMonitor(opts ...lifecycle.Option) (*Monitor, error) {
	m := &Monitor{
		health:    healthcheck.NewHandler(),
		collector: metrics.NewCollector(),
		registry:  prometheus.NewRegistry(),
		mux:       http.NewServeMux(),
	}
	if err := m.registry.Register(m.collector); err != nil {
		return nil, err
	}
	opts = append(opts, lifecycle.WithObserver(m.collector), lifecycle.WithObserver(m))
	m.manager = lifecycle.NewManager(opts...)

	m.mux.HandleFunc("/live", m.health.LiveEndpoint)
	m.mux.HandleFunc("/ready", m.health.ReadyEndpoint)
	m.mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return m, nil
}

// Manager returns the Manager whose queues are monitored.
func (m *Monitor) Manager() *lifecycle.Manager {
	return m.manager
}

// Registry returns the registry /metrics serves, for extra collectors.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// ServeHTTP implements http.Handler.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}

// QueueOpened implements lifecycle.Observer.
func (m *Monitor) QueueOpened(_ string, q *shm.Queue) {
	health.Register(m.health, health.NewChecker(q))
}

// QueueClosed implements lifecycle.Observer.
func (m *Monitor) QueueClosed(name string) {
	health.Retire(m.health, name)
}
