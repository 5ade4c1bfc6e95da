// Package lifecycle keeps track of the queues a process has open, keyed by
// segment name.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/spsc-shm/internal/logger"
	"github.com/srediag/spsc-shm/pkg/shm"
)

var internalLogger = logger.New("lifecycle", nil)

var (
	// ErrAlreadyOpen is returned by Open for a name that is open already.
	ErrAlreadyOpen = errors.New("lifecycle: queue already open")
	// ErrNotOpen is returned for names that are not open.
	ErrNotOpen = errors.New("lifecycle: queue not open")
)

// State of a named queue in a Manager.
type State int

const (
	// StateUnknown means the name was never opened through the Manager.
	StateUnknown State = iota
	// StateOpen means the queue is mapped.
	StateOpen
	// StateClosed means the queue was opened and later closed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Observer is told about queues entering and leaving a Manager. QueueClosed
// runs before the queue is unmapped.
type Observer interface {
	QueueOpened(name string, q *shm.Queue)
	QueueClosed(name string)
}

// OpenFunc opens a queue, shm.Open by default.
type OpenFunc func(ctx context.Context, opts shm.OpenOptions) (*shm.Queue, error)

// Manager is a registry of open queues. It is safe for concurrent use.
type Manager struct {
	queues    cmap.ConcurrentMap[string, *shm.Queue]
	closed    cmap.ConcurrentMap[string, struct{}]
	open      OpenFunc
	observers []Observer
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver registers o for open and close events.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, o)
	}
}

// WithOpenFunc replaces shm.Open.
func WithOpenFunc(f OpenFunc) Option {
	return func(m *Manager) {
		m.open = f
	}
}

// NewManager returns an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		queues: cmap.New[*shm.Queue](),
		closed: cmap.New[struct{}](),
		open:   shm.Open,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open opens or attaches the queue described by opts and records it under
// opts.Name.
func (m *Manager) Open(ctx context.Context, opts shm.OpenOptions) (*shm.Queue, error) {
	if m.queues.Has(opts.Name) {
		return nil, fmt.Errorf("%s: %w", opts.Name, ErrAlreadyOpen)
	}
	q, err := m.open(ctx, opts)
	if err != nil {
		return nil, err
	}
	if !m.queues.SetIfAbsent(opts.Name, q) {
		// lost a race against a concurrent Open of the same name
		if uerr := q.Unmap(); uerr != nil {
			internalLogger.Warnf("unmap duplicate %s error: %v", opts.Name, uerr)
		}
		return nil, fmt.Errorf("%s: %w", opts.Name, ErrAlreadyOpen)
	}
	m.closed.Remove(opts.Name)
	for _, o := range m.observers {
		o.QueueOpened(opts.Name, q)
	}
	internalLogger.Debugf("opened %s", opts.Name)
	return q, nil
}

// Get returns the open queue called name.
func (m *Manager) Get(name string) (*shm.Queue, bool) {
	return m.queues.Get(name)
}

// State returns the state of name.
func (m *Manager) State(name string) State {
	if m.queues.Has(name) {
		return StateOpen
	}
	if m.closed.Has(name) {
		return StateClosed
	}
	return StateUnknown
}

// Close unmaps the queue called name. The segment itself is left in place.
func (m *Manager) Close(name string) error {
	q, ok := m.queues.Pop(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotOpen)
	}
	m.closed.Set(name, struct{}{})
	for _, o := range m.observers {
		o.QueueClosed(name)
	}
	if err := q.Unmap(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	internalLogger.Debugf("closed %s", name)
	return nil
}

// CloseAll closes every open queue and returns the joined errors.
func (m *Manager) CloseAll() error {
	var errs []error
	for _, name := range m.Names() {
		if err := m.Close(name); err != nil && !errors.Is(err, ErrNotOpen) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Names returns the sorted names of the open queues.
func (m *Manager) Names() []string {
	names := m.queues.Keys()
	sort.Strings(names)
	return names
}
