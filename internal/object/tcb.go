package object

import "github.com/google/uuid"

// SchedState is the scheduling state of a thread. A TCB is in exactly one of
// these states at any time (spec.md §3, TCB invariant).
type SchedState uint8

const (
	StateInactive SchedState = iota
	StateReady
	StateRunning
	StateBlockedOnSend
	StateBlockedOnRecv
	StateBlockedOnNotify
	StateBlockedOnReply
)

func (s SchedState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlockedOnSend:
		return "blocked-on-send"
	case StateBlockedOnRecv:
		return "blocked-on-recv"
	case StateBlockedOnNotify:
		return "blocked-on-notify"
	case StateBlockedOnReply:
		return "blocked-on-reply"
	default:
		return "unknown"
	}
}

// Blocked reports whether s parks the thread off the ready queue.
func (s SchedState) Blocked() bool {
	switch s {
	case StateBlockedOnSend, StateBlockedOnRecv, StateBlockedOnNotify, StateBlockedOnReply:
		return true
	default:
		return false
	}
}

// RegisterFile is the saved general-purpose register set of a thread,
// laid out to match the exception-vector save sequence in
// internal/arch/arm64 so the dispatcher can hand a *RegisterFile straight to
// the vector's restore path without translation (spec.md §9, "trap-frame as
// plain record").
type RegisterFile struct {
	X       [31]uint64 // x0..x30
	SPEL0   uint64
	ELR_EL1 uint64
	SPSR    uint64
}

// TCB is the thread-control-block kernel object (spec.md §3).
type TCB struct {
	// DebugID identifies this thread in logs and fault reports. It carries
	// no kernel semantics of its own — two TCBs are never compared by
	// DebugID, only by pointer identity — it exists purely so a log line
	// survives a thread moving between queues without re-deriving context.
	DebugID uuid.UUID

	Regs RegisterFile

	IPCBufferVA uintptr

	// Owner capability set: the slots in this thread's own CSpace that
	// describe it, per SPEC_FULL.md §3's resolution of "capability bits".
	CSpaceRootSlot    uint64
	VSpaceRootSlot    uint64
	FaultEndpointSlot uint64

	Priority uint8
	State    SchedState

	// BlockedOn names the endpoint or notification this TCB is enqueued
	// on while State.Blocked(); nil otherwise. It is an opaque identity
	// (a pointer to Endpoint or Notification) so object.go does not need
	// to import internal/ipc.
	BlockedOn any

	// ReplyCapSlot is the slot a received `call` mints a reply capability
	// into, per SPEC_FULL.md's resolution of Open Question (c).
	ReplyCapSlot uint64

	// Pending is the most recent message delivered to this thread by a
	// send/call/reply it was blocked waiting for, or woken by. The
	// dispatcher reads and clears it once the thread resumes.
	Pending *Message
}

// NewTCB returns a freshly retyped, inactive thread with no blocked-on
// object and priority zero, matching retype's "zero storage, initialize
// metadata" step (spec.md §4.5).
func NewTCB() *TCB {
	return &TCB{DebugID: uuid.New(), State: StateInactive}
}
