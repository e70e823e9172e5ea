package ipc

import (
	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/object"
)

// FaultKind tags why a thread's fault was reified into an IPC message
// (spec.md §5, "Fault model").
type FaultKind uint8

const (
	FaultPageFault FaultKind = iota
	FaultUndefinedInstruction
	FaultDataAbort
)

// FaultLabel is the message label Reify stamps on every fault message, so
// a fault handler can distinguish fault IPC from an ordinary call on the
// same endpoint without inspecting MR contents.
const FaultLabel = ^uint64(0)

// Outcome is what a fault handler's reply tells the kernel to do with the
// faulting thread (spec.md §5: "respond with a reply to restart, modify
// register state, or terminate").
type Outcome uint8

const (
	OutcomeRestart Outcome = iota
	OutcomeModifyAndRestart
	OutcomeTerminate
)

// Reify serializes a user-mode fault into a message carrying the ESR_EL1
// and FAR_EL1 values and sends it to the faulting thread's fault
// endpoint (spec.md §7, "faults are not syscall errors; they are reified
// into a fault-IPC message... carrying the ESR and FAR values"). The
// faulting thread blocks as if it had issued call: it resumes only once
// the handler replies. replyCNode/replySlot name where the implicit
// reply capability lands, exactly as in Call.
func (e *Engine) Reify(faultEP *object.Endpoint, kind FaultKind, faulting *object.TCB, esr, far uint64, replyCNode *capability.CNode, replySlot uint64) error {
	msg := object.Message{
		Label: FaultLabel,
		MR:    [4]uint64{uint64(kind), esr, far, 0},
	}

	if faultEP.Direction == object.QueueReceivers {
		receiver := faultEP.Dequeue()
		receiver.Pending = &msg
		e.Sched.Enqueue(receiver)
	} else {
		msg.WantsReply = true
		faulting.Pending = &msg
		faulting.BlockedOn = faultEP
		faultEP.Enqueue(object.QueueSenders, faulting)
	}

	faulting.State = object.StateBlockedOnReply

	if replyCNode != nil {
		return mintReply(replyCNode, replySlot, faulting)
	}
	return nil
}

// Restart applies a fault handler's reply to the faulting thread's
// register file and returns the outcome the dispatcher should act on.
// reply.MR[0] carries the handler's instruction: 0 restarts the
// faulting instruction unchanged, 1 restarts after the handler has
// overwritten regs via its own means, anything else terminates
// (spec.md §9, "fault-IPC as control flow").
func Restart(regs *object.RegisterFile, reply object.Message) Outcome {
	switch reply.MR[0] {
	case 0:
		return OutcomeRestart
	case 1:
		return OutcomeModifyAndRestart
	default:
		return OutcomeTerminate
	}
}
