//go:build qemuvirt && arm64

package arm64

import (
	"unsafe"

	"github.com/darmie/kaal/internal/object"
)

// Exception classes out of ESR_EL1[31:26] (spec.md §4.6), carried over
// from the teacher's exceptions.go.
const (
	ecDataAbortLower = 0b100100
	ecDataAbortSame  = 0b100101
	ecInstAbortLower = 0b100000
	ecInstAbortSame  = 0b100001
	ecUnknown        = 0b000000
	ecSVC64          = 0b010101
)

// exception_vectors_start is provided by the linker script: a zero-size
// symbol whose address is the base of the hand-written assembly vector
// table that set_vbar_el1 installs.
var exception_vectors_start [0]byte

//go:linkname set_vbar_el1 set_vbar_el1
//go:nosplit
func set_vbar_el1(addr uintptr)

//go:linkname enable_irqs enable_irqs
//go:nosplit
func enable_irqs()

//go:linkname disable_irqs disable_irqs
//go:nosplit
func disable_irqs()

// InitExceptions points VBAR_EL1 at the assembly vector table and
// unmasks IRQs, the last step of arch bring-up before the kernel's main
// scheduling loop runs (spec.md §2, component 1).
func InitExceptions() {
	set_vbar_el1(uintptr(unsafe.Pointer(&exception_vectors_start)))
	enable_irqs()
}

// activeHandler is the target the assembly vector stub dispatches every
// trapped exception into, installed once by cmd/kernel after it has built
// a syscall dispatcher and IPC engine. A nil activeHandler means a trap
// arrived before kernel init finished — the only response is to halt,
// since nothing downstream exists yet to act on it.
var activeHandler *Handler

// InstallHandler registers h as activeHandler.
func InstallHandler(h *Handler) {
	activeHandler = h
}

// handleSyncException is the fixed symbol name the hand-written vector
// table calls (via the same go:linkname forward-declaration convention
// set_vbar_el1 and friends use, just in the opposite direction: here Go
// defines the body and assembly calls in).
//
//go:linkname handleSyncException handleSyncException
//go:nosplit
func handleSyncException(caller *object.TCB, regs *object.RegisterFile, esr, far uint64) {
	if activeHandler == nil {
		Puts("trap before kernel init completed\n")
		Halt()
	}
	activeHandler.OnSyncException(caller, regs, esr, far)
}

// Handler is the bridge a freestanding kernel loop installs to turn a
// decoded trap into a hosted-domain action: dispatch a syscall, or
// reify a fault as IPC. It is intentionally minimal — everything that
// can be expressed as plain Go logic lives in internal/syscall and
// internal/ipc, which are unit tested; this package only ever adapts
// register bytes to and from those packages.
type Handler struct {
	Dispatch func(caller *object.TCB, regs *object.RegisterFile)
	Fault    func(caller *object.TCB, regs *object.RegisterFile, ec uint32, esr, far uint64)
}

// OnSyncException is called from the assembly SVC/abort vector stub
// with a pointer to the trap frame it just saved (spec.md §4.6: "saves
// the full general-purpose register file... hands a pointer to that
// frame to a ... handler, and on return restores the frame and executes
// ERET"). esr/far come from the matching system registers, read by the
// assembly stub before any Go code runs (reading them later would risk
// another exception clobbering them first).
//
//go:nosplit
func (h *Handler) OnSyncException(caller *object.TCB, regs *object.RegisterFile, esr, far uint64) {
	ec := uint32(esr>>26) & 0x3f

	switch ec {
	case ecSVC64:
		if h.Dispatch != nil {
			h.Dispatch(caller, regs)
		}
	case ecDataAbortLower, ecDataAbortSame, ecInstAbortLower, ecInstAbortSame, ecUnknown:
		if h.Fault != nil {
			h.Fault(caller, regs, ec, esr, far)
		}
	default:
		Puts("unhandled exception class 0x")
		PutHex64(uint64(ec))
		Puts("\n")
		Halt()
	}
}

// Halt parks the core forever. Reached only from an unrecoverable
// kernel-internal invariant violation (spec.md §7: "only internal
// invariant violations... panic, and ... panic messages are written to
// the debug UART and then the core halts").
//
//go:nosplit
func Halt() {
	disable_irqs()
	for {
	}
}
