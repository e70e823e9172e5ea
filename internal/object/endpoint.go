package object

// QueueDirection records which side, if any, is waiting on an endpoint.
// spec.md §3 invariant: at any instant, direction is one of empty,
// senders-waiting, or receivers-waiting — never both.
type QueueDirection uint8

const (
	QueueEmpty QueueDirection = iota
	QueueSenders
	QueueReceivers
)

// Waiter is one thread parked on an Endpoint or Notification's FIFO.
type Waiter struct {
	TCB *TCB
}

// Endpoint is the synchronous IPC rendezvous object (spec.md §3, §4.7).
// The queue holds only thread identities, never messages: messages transfer
// directly between the two thread contexts when a send meets a receiver.
type Endpoint struct {
	Direction QueueDirection
	Queue     []Waiter
}

// NewEndpoint returns a freshly retyped endpoint with an empty queue.
func NewEndpoint() *Endpoint {
	return &Endpoint{Direction: QueueEmpty}
}

// Enqueue parks tcb on the endpoint in direction dir. It is the caller's
// (internal/ipc's) job to have already checked that dir matches the
// endpoint's current Direction or that the queue was empty.
func (e *Endpoint) Enqueue(dir QueueDirection, tcb *TCB) {
	if e.Direction == QueueEmpty {
		e.Direction = dir
	}
	e.Queue = append(e.Queue, Waiter{TCB: tcb})
}

// Dequeue pops the head waiter (FIFO) and resets Direction to empty once the
// queue drains.
func (e *Endpoint) Dequeue() *TCB {
	if len(e.Queue) == 0 {
		return nil
	}
	head := e.Queue[0].TCB
	e.Queue = e.Queue[1:]
	if len(e.Queue) == 0 {
		e.Direction = QueueEmpty
	}
	return head
}

// DrainAll empties the queue and returns every parked thread, used by
// revoke/delete cancellation (spec.md §4.3, §4.7).
func (e *Endpoint) DrainAll() []*TCB {
	out := make([]*TCB, 0, len(e.Queue))
	for _, w := range e.Queue {
		out = append(out, w.TCB)
	}
	e.Queue = nil
	e.Direction = QueueEmpty
	return out
}
