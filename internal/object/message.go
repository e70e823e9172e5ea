package object

// Message is an IPC payload: a short message that fits in registers, or
// (for `call`) the data the IPC buffer frame would carry for longer
// messages (spec.md §4.7, "registers for short messages, shared IPC buffer
// for long ones"). CapTransfers holds opaque capability-slot identities —
// declared as `any` here, rather than a *capability.SlotRef, solely to
// avoid this package importing internal/capability (which itself imports
// object for Kind and TCB). Nothing in the kernel reads the field: it
// travels with the message, and no capability is transferred from it.
type Message struct {
	Label        uint64
	MR           [4]uint64
	CapTransfers []any
	Badge        uint64
	HasBadge     bool

	// WantsReply marks a message sent by `call` rather than `send`: once
	// a receiver collects it, the sender stays blocked-on-reply and
	// expects a reply capability minted into the receiver's CSpace,
	// instead of being woken back onto the ready queue (spec.md §4.7).
	WantsReply bool
}
