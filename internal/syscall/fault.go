package syscall

import (
	"github.com/darmie/kaal/internal/ipc"
	"github.com/darmie/kaal/internal/object"
)

// Exception classes out of ESR_EL1[31:26], duplicated from
// internal/arch/arm64 rather than imported: the freestanding package
// cannot be imported here (it carries unsafe/linkname build constraints
// this hosted package does not), and the two places Handler.Fault's
// ec argument is produced/consumed need to agree on the same numbering.
const (
	ecDataAbortLower = 0b100100
	ecDataAbortSame  = 0b100101
	ecInstAbortLower = 0b100000
	ecInstAbortSame  = 0b100001
)

// HandleFault turns a reified ARM64 exception into a fault-IPC message on
// caller's fault endpoint (spec.md §4.6, §7's "faults are not syscall
// errors"). It has the exact signature internal/arch/arm64.Handler.Fault
// wants, so cmd/kernel wires this directly in.
func (d *Dispatcher) HandleFault(caller *object.TCB, regs *object.RegisterFile, ec uint32, esr, far uint64) {
	cspace := d.CSpaces[caller]
	if cspace == nil {
		d.Log.WithField("tcb", caller.DebugID).Error("fault on unbound thread")
		return
	}

	faultSlot, err := d.resolveCap(cspace, caller.FaultEndpointSlot)
	if err != nil {
		d.Log.WithError(err).Error("fault thread has no fault-endpoint capability")
		return
	}
	faultCap := faultSlot.Get()
	if faultCap.Empty() || faultCap.Kind != object.KindEndpoint {
		d.Log.Error("fault-endpoint slot does not hold an endpoint")
		return
	}
	faultEP := faultCap.Object.(*object.Endpoint)

	kind := ipc.FaultUndefinedInstruction
	switch ec {
	case ecDataAbortLower, ecDataAbortSame:
		kind = ipc.FaultDataAbort
	case ecInstAbortLower, ecInstAbortSame:
		kind = ipc.FaultPageFault
	}

	if err := d.IPC.Reify(faultEP, kind, caller, esr, far, cspace, caller.ReplyCapSlot); err != nil {
		d.Log.WithError(err).Error("fault reification failed")
	}
}
