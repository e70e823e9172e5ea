package ipc

import (
	"github.com/darmie/kaal/internal/object"
)

// CancelFinalizer implements capability.Finalizer: when the last
// capability to an endpoint or notification is deleted or the object is
// revoked out from under waiters, every thread parked on it must be
// unblocked with a cancelled-IPC status rather than left stuck forever
// (spec.md §6, "Cancellation semantics").
type CancelFinalizer struct {
	Sched enqueuer
}

// enqueuer is the one scheduler method CancelFinalizer needs, kept as a
// local interface so this package does not have to import internal/sched
// just to wake cancelled threads.
type enqueuer interface {
	Enqueue(tcb *object.TCB)
}

// NewCancelFinalizer binds a finalizer to the scheduler it should
// re-enqueue cancelled threads onto.
func NewCancelFinalizer(s enqueuer) *CancelFinalizer {
	return &CancelFinalizer{Sched: s}
}

// Finalize drains every waiter queued on the destroyed object and marks
// it cancelled (spec.md §6, case (a): "the endpoint/notification it was
// waiting on is revoked or destroyed").
func (c *CancelFinalizer) Finalize(kind object.Kind, obj any) []*object.TCB {
	var woken []*object.TCB

	switch kind {
	case object.KindEndpoint:
		ep, ok := obj.(*object.Endpoint)
		if !ok {
			return nil
		}
		woken = ep.DrainAll()
	case object.KindNotification:
		n, ok := obj.(*object.Notification)
		if !ok {
			return nil
		}
		woken = n.DrainAll()
	default:
		return nil
	}

	for _, tcb := range woken {
		cancelThread(tcb)
		c.Sched.Enqueue(tcb)
	}
	return woken
}

func cancelThread(tcb *object.TCB) {
	tcb.State = object.StateReady
	tcb.BlockedOn = nil
	tcb.Pending = &object.Message{Label: cancelledLabel}
}

// cancelledLabel is the message label a woken thread observes in place
// of a real reply when it was cancelled rather than served.
const cancelledLabel = ^uint64(0) - 1
