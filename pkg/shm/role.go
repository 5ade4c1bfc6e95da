package shm

// Producer is the producing side of a Queue. A handle hands out at most one.
type Producer struct {
	q *Queue
}

// Consumer is the consuming side of a Queue. A handle hands out at most one.
type Consumer struct {
	q *Queue
}

// Producer claims the producing side of q. A second claim fails with
// ErrRoleClaimed.
func (q *Queue) Producer() (*Producer, error) {
	if q.closed.Load() {
		return nil, ErrClosed
	}
	if !q.producerClaimed.CompareAndSwap(false, true) {
		return nil, ErrRoleClaimed
	}
	return &Producer{q: q}, nil
}

// Consumer claims the consuming side of q. A second claim fails with
// ErrRoleClaimed.
func (q *Queue) Consumer() (*Consumer, error) {
	if q.closed.Load() {
		return nil, ErrClosed
	}
	if !q.consumerClaimed.CompareAndSwap(false, true) {
		return nil, ErrRoleClaimed
	}
	return &Consumer{q: q}, nil
}

// Queue returns the handle p was claimed from.
func (p *Producer) Queue() *Queue { return p.q }

// Alloc is Queue.Alloc.
func (p *Producer) Alloc(n int) (Reservation, error) { return p.q.Alloc(n) }

// Commit is Queue.CommitProduce.
func (p *Producer) Commit(r Reservation) error { return p.q.CommitProduce(r) }

// Produce is Queue.Produce.
func (p *Producer) Produce(b []byte) error { return p.q.Produce(b) }

// Queue returns the handle c was claimed from.
func (c *Consumer) Queue() *Queue { return c.q }

// GetOne is Queue.GetOne.
func (c *Consumer) GetOne() (Message, error) { return c.q.GetOne() }

// Commit is Queue.CommitConsume.
func (c *Consumer) Commit(m Message) error { return c.q.CommitConsume(m) }

// Consume is Queue.Consume.
func (c *Consumer) Consume(buf []byte) (int, error) { return c.q.Consume(buf) }

// ConsumeAppend is Queue.ConsumeAppend.
func (c *Consumer) ConsumeAppend(dst []byte) ([]byte, error) { return c.q.ConsumeAppend(dst) }
