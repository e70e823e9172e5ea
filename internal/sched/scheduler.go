// Package sched implements the priority-aware round-robin ready queue
// (spec.md §4.8): one FIFO per priority level, the scheduler always runs the
// head of the highest non-empty priority queue, and yield/preemption
// re-enqueue the current thread at the tail of its own level.
package sched

import "github.com/darmie/kaal/internal/object"

const NumPriorities = 256

// Scheduler owns the ready queues. It holds no notion of "the current
// thread" itself — internal/syscall's dispatcher does, since only it knows
// when a syscall's effects make the current thread stop being runnable.
type Scheduler struct {
	queues [NumPriorities][]*object.TCB
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Enqueue places tcb at the tail of its priority's ready queue and marks it
// ready. Used both for a thread becoming runnable for the first time and
// for yield/preemption re-enqueueing (spec.md §4.8, §5).
func (s *Scheduler) Enqueue(tcb *object.TCB) {
	tcb.State = object.StateReady
	tcb.BlockedOn = nil
	p := tcb.Priority
	s.queues[p] = append(s.queues[p], tcb)
}

// Next pops the head of the highest-priority non-empty queue, or nil if no
// thread is ready. On nil, cmd/kernel's scheduling loop halts the core
// (interrupts masked, spinning); it does not execute wait-for-interrupt and
// does not return to the loop. The popped thread is not transitioned to
// Running, here or by any caller.
func (s *Scheduler) Next() *object.TCB {
	for p := NumPriorities - 1; p >= 0; p-- {
		q := s.queues[p]
		if len(q) == 0 {
			continue
		}
		head := q[0]
		s.queues[p] = q[1:]
		return head
	}
	return nil
}

// Yield moves tcb to the tail of its own priority queue without waiting for
// a timer tick (spec.md §4.8 "yield").
func (s *Scheduler) Yield(tcb *object.TCB) {
	s.Enqueue(tcb)
}

// Suspend removes tcb from whatever ready queue it is sitting in (a no-op
// if it was already blocked or running) and transitions it to inactive
// (spec.md §4.6 thread_suspend).
func (s *Scheduler) Suspend(tcb *object.TCB) {
	p := tcb.Priority
	q := s.queues[p]
	for i, t := range q {
		if t == tcb {
			s.queues[p] = append(q[:i], q[i+1:]...)
			break
		}
	}
	tcb.State = object.StateInactive
}

// Resume transitions an inactive thread back to ready, enqueueing it
// (spec.md §4.6 thread_resume).
func (s *Scheduler) Resume(tcb *object.TCB) {
	if tcb.State == object.StateInactive {
		s.Enqueue(tcb)
	}
}

// Ready reports whether any thread is runnable.
func (s *Scheduler) Ready() bool {
	for p := NumPriorities - 1; p >= 0; p-- {
		if len(s.queues[p]) > 0 {
			return true
		}
	}
	return false
}
