// Package health provides liveness and readiness checks over queue handles.
package health

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"
)

// Source is the part of a queue handle the checks look at. *shm.Queue
// implements it.
type Source interface {
	Name() string
	Closed() bool
	Validate() error
	IsFull() bool
}

// Checker checks one queue.
type Checker struct {
	src Source
}

// NewChecker returns a Checker for src.
func NewChecker(src Source) *Checker {
	return &Checker{src: src}
}

// Liveness fails when the handle was unmapped or the shared header no
// longer describes the queue.
func (c *Checker) Liveness() error {
	if c.src.Closed() {
		return fmt.Errorf("queue %s is unmapped", c.src.Name())
	}
	if err := c.src.Validate(); err != nil {
		return fmt.Errorf("queue %s: %w", c.src.Name(), err)
	}
	return nil
}

// Readiness fails when the queue is not alive or has no free space left.
func (c *Checker) Readiness() error {
	if err := c.Liveness(); err != nil {
		return err
	}
	if c.src.IsFull() {
		return fmt.Errorf("queue %s is full", c.src.Name())
	}
	return nil
}

// Register adds the checks of c to h as "<name>-live" and "<name>-ready".
func Register(h healthcheck.Handler, c *Checker) {
	h.AddLivenessCheck(c.src.Name()+"-live", c.Liveness)
	h.AddReadinessCheck(c.src.Name()+"-ready", c.Readiness)
}

// Retire replaces the checks registered for name with ones that always pass,
// for queues closed on purpose. healthcheck.Handler cannot drop checks.
func Retire(h healthcheck.Handler, name string) {
	pass := func() error { return nil }
	h.AddLivenessCheck(name+"-live", pass)
	h.AddReadinessCheck(name+"-ready", pass)
}
