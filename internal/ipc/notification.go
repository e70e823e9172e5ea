package ipc

import (
	"github.com/darmie/kaal/internal/object"
)

// Signal ORs badge into n's word. A single waiter, if any, wakes
// immediately and receives the accumulated word as its Pending message
// (spec.md §4.7, "notifications accumulate with bitwise OR until a
// waiter collects them"). Signal never blocks: it is the only IPC
// primitive a second-level interrupt handler or another kernel path may
// call without itself being a scheduled thread.
func (e *Engine) Signal(n *object.Notification, badge uint64) {
	woken, word := n.Signal(badge)
	if woken == nil {
		return
	}
	woken.Pending = &object.Message{Label: word}
	e.Sched.Enqueue(woken)
}

// Wait blocks receiver on n if its word is currently zero; otherwise it
// collects and clears the word immediately (spec.md §4.7 wait).
func (e *Engine) Wait(n *object.Notification, receiver *object.TCB) {
	if word := n.Poll(); word != 0 {
		receiver.Pending = &object.Message{Label: word}
		return
	}
	receiver.State = object.StateBlockedOnNotify
	receiver.BlockedOn = n
	n.Enqueue(receiver)
}

// Poll returns the accumulated word without blocking, clearing it
// (spec.md §4.7 poll: "non-blocking wait").
func (e *Engine) Poll(n *object.Notification) uint64 {
	return n.Poll()
}
