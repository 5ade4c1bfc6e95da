// Package shm provides a lock-free single-producer single-consumer byte queue
// living in a named shared memory segment, for inter-process message passing
// without syscalls on the hot path.
//
// A segment starts with a 4096 byte header holding the capacity, the
// consumer's head cursor, the producer's tail cursor and a validity marker,
// followed by the data region. Messages are framed with a 4-byte
// little-endian length prefix and never wrap: when a frame does not fit
// before the end of the region, the rest of the region becomes padding.
//
// Both sides work in two phases so payloads can be written and read in place:
//
//	q, err := shm.Open(ctx, shm.OpenOptions{Name: "myq", Size: 1 << 16, Create: true})
//	// ...
//	r, err := q.Alloc(len(msg))
//	copy(r.Bytes(), msg)
//	err = q.CommitProduce(r)
//
//	m, err := q.GetOne()
//	handle(m.Bytes())
//	err = q.CommitConsume(m)
//
// The package is instrumented with OpenTelemetry metrics and tracing
// (OTel Go SDK v1.30.0). Platform-specific helpers are in internal/shm.
package shm
