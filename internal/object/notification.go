package object

// Notification is the asynchronous signal-word object (spec.md §3, §4.7).
// Signal OR-s a badge into Word and wakes the first waiter; Wait blocks
// until Word is non-zero, then atomically reads and clears it; Poll is the
// non-blocking variant.
type Notification struct {
	Word    uint64
	Waiters []*TCB
}

// NewNotification returns a freshly retyped notification with a zero word.
func NewNotification() *Notification {
	return &Notification{}
}

// Signal OR-s badge into the signal word and, if a thread is waiting, pops
// and returns it along with the new word (the caller wakes it and delivers
// the word). Multiple signals before a wait accumulate by OR, satisfying
// notification idempotence (spec.md §8).
func (n *Notification) Signal(badge uint64) (woken *TCB, word uint64) {
	n.Word |= badge
	if len(n.Waiters) > 0 {
		woken = n.Waiters[0]
		n.Waiters = n.Waiters[1:]
	}
	word = n.Word
	if woken != nil {
		n.Word = 0
	}
	return woken, word
}

// Enqueue parks tcb as a waiter.
func (n *Notification) Enqueue(tcb *TCB) {
	n.Waiters = append(n.Waiters, tcb)
}

// Poll returns the current word and clears it, without blocking.
func (n *Notification) Poll() uint64 {
	word := n.Word
	n.Word = 0
	return word
}

// DrainAll empties the waiter list, used by revoke/delete cancellation.
func (n *Notification) DrainAll() []*TCB {
	out := n.Waiters
	n.Waiters = nil
	return out
}
