package syscall

import (
	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/ipc"
	"github.com/darmie/kaal/internal/object"
	"github.com/darmie/kaal/internal/retype"
	"github.com/darmie/kaal/internal/sched"
	"github.com/darmie/kaal/internal/vm"
	"github.com/sirupsen/logrus"
)

// CPtrBits is the depth, in address bits, that every capability-reference
// argument is resolved with. Fixing one depth for the whole syscall ABI
// keeps argument decoding uniform; a thread that needs a deeper CSpace
// simply gives intermediate CNodes a wider combined guard.
const CPtrBits = 32

// Dispatcher decodes and routes syscalls out of a trap frame (spec.md
// §4.6). It holds the one scheduler and IPC engine the kernel runs, plus
// the per-thread CSpace/VSpace bindings cmd/kernel records —
// object.TCB itself stays free of capability/vm imports, so this table is
// where a thread's
// identity is joined back to its address spaces.
type Dispatcher struct {
	Sched *sched.Scheduler
	IPC   *ipc.Engine

	CSpaces map[*object.TCB]*capability.CNode
	VSpaces map[*object.TCB]*vm.VSpace

	Log *logrus.Entry
}

// NewDispatcher wires a dispatcher to the kernel's one scheduler and IPC
// engine.
func NewDispatcher(s *sched.Scheduler, e *ipc.Engine, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		Sched:   s,
		IPC:     e,
		CSpaces: make(map[*object.TCB]*capability.CNode),
		VSpaces: make(map[*object.TCB]*vm.VSpace),
		Log:     log,
	}
}

// Bind records the CSpace and VSpace a thread was configured with, so
// Dispatch can resolve its capability arguments and walk its page tables.
func (d *Dispatcher) Bind(tcb *object.TCB, cspace *capability.CNode, vspace *vm.VSpace) {
	d.CSpaces[tcb] = cspace
	d.VSpaces[tcb] = vspace
}

func (d *Dispatcher) resolveCap(cspace *capability.CNode, cptr uint64) (*capability.SlotRef, error) {
	return capability.Lookup(cspace, cptr, CPtrBits)
}

// statusOf packs an error into the single status word every syscall
// returns: zero for success, the negated (1-based) error kind otherwise
// (spec.md §7: "zero = success, negative = error kind").
func statusOf(err error) uint64 {
	if err == nil {
		return 0
	}
	if ce, ok := err.(*capability.Error); ok {
		return uint64(int64(-(int64(ce.Kind) + 1)))
	}
	return uint64(int64(-1))
}

// Dispatch decodes the syscall number out of regs.X[NumberRegister],
// routes to the matching handler using caller's bound CSpace/VSpace, and
// writes the status (and any result registers) back into regs before
// returning — the arch layer then restores regs and executes ERET
// unchanged (spec.md §4.6).
//
// Argument validation happens up front inside each handler: every
// capability argument is resolved once, before any mutation, so a
// failed lookup never leaves partial state (spec.md §4.6, "Argument
// validation").
func (d *Dispatcher) Dispatch(caller *object.TCB, regs *object.RegisterFile) {
	num := Number(regs.X[NumberRegister])
	if !num.Valid() {
		regs.X[0] = statusOf(&capability.Error{Kind: capability.KindInvalidArgument, Op: "dispatch"})
		return
	}

	cspace := d.CSpaces[caller]
	args := regs.X[0:8]

	var status uint64
	switch num {
	case Send:
		status = d.doSend(caller, cspace, args)
	case Recv:
		status = d.doRecv(caller, cspace, args)
	case Call:
		status = d.doCall(caller, cspace, args)
	case Reply:
		status = d.doReply(caller, cspace, args)
	case NBSend:
		status = d.doNBSend(cspace, args)
	case Yield:
		d.Sched.Yield(caller)
		status = 0
	case ThreadSuspend:
		status = d.doThreadOp(cspace, args, d.Sched.Suspend)
	case ThreadResume:
		status = d.doThreadOp(cspace, args, d.Sched.Resume)
	case Signal:
		status = d.doSignal(cspace, args)
	case Wait:
		status = d.doWait(caller, cspace, args)
	case Poll:
		status = d.doPoll(cspace, args, regs)
	case MemoryMap:
		status = d.doMemoryMap(caller, cspace, args)
	case MemoryUnmap:
		status = d.doMemoryUnmap(caller, cspace, args)
	case MemoryProtect:
		status = d.doMemoryProtect(caller, cspace, args)
	case Retype:
		status = d.doRetype(cspace, args)
	case CapCopy:
		status = d.doCapCopy(cspace, args)
	case CapMint:
		status = d.doCapMint(cspace, args)
	case CapMove:
		status = d.doCapMove(cspace, args)
	case CapDelete:
		status = d.doCapDelete(cspace, args)
	case CapRevoke:
		status = d.doCapRevoke(cspace, args)
	case IRQHandlerGet:
		status = d.doIRQHandlerGet(cspace, args)
	case IRQHandlerAck:
		status = d.doIRQHandlerAck(cspace, args)
	case DebugPutchar:
		status = d.doDebugPutchar(args)
	default:
		status = statusOf(&capability.Error{Kind: capability.KindInvalidArgument, Op: "dispatch"})
	}

	regs.X[0] = status
}

func (d *Dispatcher) doSend(caller *object.TCB, cspace *capability.CNode, args []uint64) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindEndpoint {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "send"})
	}
	ep := cap.Object.(*object.Endpoint)
	msg := object.Message{Label: args[1], MR: [4]uint64{args[2], args[3], args[4], args[5]}}
	d.IPC.Send(ep, cap, caller, msg)
	return 0
}

func (d *Dispatcher) doNBSend(cspace *capability.CNode, args []uint64) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindEndpoint {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "nbsend"})
	}
	ep := cap.Object.(*object.Endpoint)
	msg := object.Message{Label: args[1], MR: [4]uint64{args[2], args[3], args[4], args[5]}}
	if !d.IPC.NBSend(ep, cap, msg) {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "nbsend"})
	}
	return 0
}

func (d *Dispatcher) doRecv(caller *object.TCB, cspace *capability.CNode, args []uint64) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindEndpoint {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "recv"})
	}
	ep := cap.Object.(*object.Endpoint)
	replySlot := args[1]
	if err := d.IPC.Recv(ep, caller, cspace, replySlot); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doCall(caller *object.TCB, cspace *capability.CNode, args []uint64) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindEndpoint {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "call"})
	}
	ep := cap.Object.(*object.Endpoint)
	msg := object.Message{Label: args[1], MR: [4]uint64{args[2], args[3], args[4], args[5]}}

	receiver, delivered := d.IPC.Call(ep, cap, caller, msg)
	if !delivered {
		return 0
	}
	receiverCSpace := d.CSpaces[receiver]
	if receiverCSpace == nil {
		return 0
	}
	if err := ipc.MintReply(receiverCSpace, receiver.ReplyCapSlot, caller); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doReply(caller *object.TCB, cspace *capability.CNode, args []uint64) uint64 {
	msg := object.Message{Label: args[0], MR: [4]uint64{args[1], args[2], args[3], args[4]}}
	if err := d.IPC.Reply(cspace, caller.ReplyCapSlot, msg); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doSignal(cspace *capability.CNode, args []uint64) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindNotification {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "signal"})
	}
	n := cap.Object.(*object.Notification)
	badge := args[1]
	if cap.HasBadge {
		badge = cap.Badge
	}
	d.IPC.Signal(n, badge)
	return 0
}

func (d *Dispatcher) doWait(caller *object.TCB, cspace *capability.CNode, args []uint64) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindNotification {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "wait"})
	}
	n := cap.Object.(*object.Notification)
	d.IPC.Wait(n, caller)
	return 0
}

func (d *Dispatcher) doPoll(cspace *capability.CNode, args []uint64, regs *object.RegisterFile) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindNotification {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "poll"})
	}
	n := cap.Object.(*object.Notification)
	regs.X[1] = d.IPC.Poll(n)
	return 0
}

func (d *Dispatcher) doThreadOp(cspace *capability.CNode, args []uint64, op func(*object.TCB)) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindTCB {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "thread_op"})
	}
	op(cap.Object.(*object.TCB))
	return 0
}

func (d *Dispatcher) doRetype(cspace *capability.CNode, args []uint64) uint64 {
	untypedSlot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	targetCNodeSlot, err := d.resolveCap(cspace, args[3])
	if err != nil {
		return statusOf(err)
	}
	targetCap := targetCNodeSlot.Get()
	if targetCap.Empty() || targetCap.Kind != object.KindCNode {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "retype"})
	}

	req := retype.Request{
		Untyped:          untypedSlot,
		Kind:             object.Kind(args[1]),
		SizeBits:         uint(args[2]),
		TargetCNode:      targetCap.Object.(*capability.CNode),
		TargetSlotOffset: args[4],
		Count:            args[5],
	}
	if err := retype.Do(req); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doCapCopy(cspace *capability.CNode, args []uint64) uint64 {
	src, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	dst, err := d.resolveCap(cspace, args[1])
	if err != nil {
		return statusOf(err)
	}
	rights := decodeRights(args[2])
	if err := capability.Copy(src, dst, rights); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doCapMint(cspace *capability.CNode, args []uint64) uint64 {
	src, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	dst, err := d.resolveCap(cspace, args[1])
	if err != nil {
		return statusOf(err)
	}
	rights := decodeRights(args[2])
	badge := args[3]
	if err := capability.Mint(src, dst, rights, badge); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doCapMove(cspace *capability.CNode, args []uint64) uint64 {
	src, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	dst, err := d.resolveCap(cspace, args[1])
	if err != nil {
		return statusOf(err)
	}
	if err := capability.Move(src, dst); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doCapDelete(cspace *capability.CNode, args []uint64) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	if err := capability.Delete(slot, d.finalizer()); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doCapRevoke(cspace *capability.CNode, args []uint64) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	if err := capability.Revoke(slot, d.finalizer()); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) finalizer() capability.Finalizer {
	return ipc.NewCancelFinalizer(d.Sched)
}

func (d *Dispatcher) doMemoryMap(caller *object.TCB, cspace *capability.CNode, args []uint64) uint64 {
	pageSlot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := pageSlot.Get()
	if cap.Empty() || cap.Kind != object.KindPage {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "memory_map"})
	}
	page := cap.Object.(*object.PageObj)
	vaddr := uintptr(args[1])
	rights := decodeRights(args[2])
	attr := object.CacheAttr(args[3])

	vspace := d.VSpaces[caller]
	if vspace == nil {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "memory_map"})
	}
	if err := vspace.MapPage(vaddr, page, rights, attr); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doMemoryUnmap(caller *object.TCB, cspace *capability.CNode, args []uint64) uint64 {
	pageSlot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := pageSlot.Get()
	if cap.Empty() || cap.Kind != object.KindPage {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "memory_unmap"})
	}
	page := cap.Object.(*object.PageObj)

	vspace := d.VSpaces[caller]
	if vspace == nil {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "memory_unmap"})
	}
	if err := vspace.UnmapPage(page); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doMemoryProtect(caller *object.TCB, cspace *capability.CNode, args []uint64) uint64 {
	pageSlot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := pageSlot.Get()
	if cap.Empty() || cap.Kind != object.KindPage {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "memory_protect"})
	}
	page := cap.Object.(*object.PageObj)
	rights := decodeRights(args[1])

	vspace := d.VSpaces[caller]
	if vspace == nil {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "memory_protect"})
	}
	if err := vspace.Protect(page, rights); err != nil {
		return statusOf(err)
	}
	return 0
}

func (d *Dispatcher) doIRQHandlerGet(cspace *capability.CNode, args []uint64) uint64 {
	ctrlSlot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	ctrlCap := ctrlSlot.Get()
	if ctrlCap.Empty() || ctrlCap.Kind != object.KindIRQControl {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "irq_handler_get"})
	}
	ctrl := ctrlCap.Object.(*object.IRQControl)
	irq := uint32(args[1])
	dstSlot, err := d.resolveCap(cspace, args[2])
	if err != nil {
		return statusOf(err)
	}
	if !dstSlot.Get().Empty() {
		return statusOf(&capability.Error{Kind: capability.KindNotEmpty, Op: "irq_handler_get"})
	}
	if ctrl.Issued[irq] {
		return statusOf(&capability.Error{Kind: capability.KindNotEmpty, Op: "irq_handler_get"})
	}
	if ctrl.Issued == nil {
		ctrl.Issued = make(map[uint32]bool)
	}
	ctrl.Issued[irq] = true

	refs := 1
	*dstSlot.Get() = capability.Capability{
		Kind:   object.KindIRQHandler,
		Object: &object.IRQHandler{IRQ: irq},
		Refs:   &refs,
	}
	return 0
}

func (d *Dispatcher) doIRQHandlerAck(cspace *capability.CNode, args []uint64) uint64 {
	slot, err := d.resolveCap(cspace, args[0])
	if err != nil {
		return statusOf(err)
	}
	cap := slot.Get()
	if cap.Empty() || cap.Kind != object.KindIRQHandler {
		return statusOf(&capability.Error{Kind: capability.KindInvalidCapability, Op: "irq_handler_ack"})
	}
	cap.Object.(*object.IRQHandler).Acked = true
	return 0
}

func (d *Dispatcher) doDebugPutchar(args []uint64) uint64 {
	if d.Log != nil {
		d.Log.Debugf("%c", rune(args[0]))
	}
	return 0
}

func decodeRights(packed uint64) object.Rights {
	return object.Rights{
		Read:  packed&0x1 != 0,
		Write: packed&0x2 != 0,
		Grant: packed&0x4 != 0,
		Exec:  packed&0x8 != 0,
	}
}
