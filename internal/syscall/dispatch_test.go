package syscall

import (
	"testing"

	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/ipc"
	"github.com/darmie/kaal/internal/object"
	"github.com/darmie/kaal/internal/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher() *Dispatcher {
	s := sched.New()
	return NewDispatcher(s, ipc.New(s), nil)
}

func setCap(cnode *capability.CNode, idx uint64, c capability.Capability) {
	*cnode.Slot(idx).Get() = c
}

func TestDispatchInvalidSyscallNumber(t *testing.T) {
	d := newDispatcher()
	regs := &object.RegisterFile{}
	regs.X[NumberRegister] = uint64(numSyscalls) + 5

	d.Dispatch(&object.TCB{}, regs)

	assert.NotEqual(t, uint64(0), regs.X[0])
}

func TestDispatchSendThenRecvRoundTrip(t *testing.T) {
	d := newDispatcher()
	cspace := capability.NewCNode(4, 0, 28)

	ep := object.NewEndpoint()
	refs := 1
	setCap(cspace, 1, capability.Capability{Kind: object.KindEndpoint, Object: ep, Refs: &refs})

	receiver := &object.TCB{Priority: 1}
	d.Bind(receiver, cspace, nil)

	recvRegs := &object.RegisterFile{}
	recvRegs.X[0] = 1 // ep cptr
	recvRegs.X[1] = 2 // reply slot
	recvRegs.X[NumberRegister] = uint64(Recv)
	d.Dispatch(receiver, recvRegs)
	require.Equal(t, uint64(0), recvRegs.X[0])
	assert.Equal(t, object.StateBlockedOnRecv, receiver.State)

	sender := &object.TCB{Priority: 1}
	d.Bind(sender, cspace, nil)
	sendRegs := &object.RegisterFile{}
	sendRegs.X[0] = 1 // ep cptr
	sendRegs.X[1] = 0xAB
	sendRegs.X[NumberRegister] = uint64(Send)
	d.Dispatch(sender, sendRegs)
	require.Equal(t, uint64(0), sendRegs.X[0])

	require.NotNil(t, receiver.Pending)
	assert.Equal(t, uint64(0xAB), receiver.Pending.Label)
}

func TestDispatchCallMintsReplyIntoReceiverCSpace(t *testing.T) {
	d := newDispatcher()
	cspace := capability.NewCNode(4, 0, 28)

	ep := object.NewEndpoint()
	refs := 1
	setCap(cspace, 1, capability.Capability{Kind: object.KindEndpoint, Object: ep, Refs: &refs})

	receiver := &object.TCB{Priority: 1, ReplyCapSlot: 3}
	d.Bind(receiver, cspace, nil)

	recvRegs := &object.RegisterFile{}
	recvRegs.X[0] = 1
	recvRegs.X[NumberRegister] = uint64(Recv)
	d.Dispatch(receiver, recvRegs)

	caller := &object.TCB{Priority: 1}
	callerCSpace := capability.NewCNode(4, 0, 28)
	setCap(callerCSpace, 1, capability.Capability{Kind: object.KindEndpoint, Object: ep, Refs: &refs})
	d.Bind(caller, callerCSpace, nil)

	callRegs := &object.RegisterFile{}
	callRegs.X[0] = 1
	callRegs.X[1] = 0x11
	callRegs.X[NumberRegister] = uint64(Call)
	d.Dispatch(caller, callRegs)
	require.Equal(t, uint64(0), callRegs.X[0])

	replySlot := cspace.Slot(3)
	require.False(t, replySlot.Get().Empty())
	assert.Equal(t, object.KindReply, replySlot.Get().Kind)
}

func TestDispatchRetypeCreatesTCB(t *testing.T) {
	d := newDispatcher()
	cspace := capability.NewCNode(4, 0, 28)

	refs := 1
	region := &object.UntypedRegion{SizeBits: 16}
	setCap(cspace, 1, capability.Capability{Kind: object.KindUntyped, Object: region, Refs: &refs})

	targetCNode := capability.NewCNode(3, 0, 0)
	setCap(cspace, 2, capability.Capability{Kind: object.KindCNode, Object: targetCNode, Refs: &refs})

	regs := &object.RegisterFile{}
	regs.X[0] = 1 // untyped cptr
	regs.X[1] = uint64(object.KindTCB)
	regs.X[2] = 0 // size_bits
	regs.X[3] = 2 // target cnode cptr
	regs.X[4] = 0 // target slot offset
	regs.X[5] = 1 // count
	regs.X[NumberRegister] = uint64(Retype)

	tcb := &object.TCB{}
	d.Bind(tcb, cspace, nil)
	d.Dispatch(tcb, regs)
	require.Equal(t, uint64(0), regs.X[0])

	created := targetCNode.Slot(0).Get()
	require.False(t, created.Empty())
	assert.Equal(t, object.KindTCB, created.Kind)
}

func TestDispatchCapCopyNarrowsRights(t *testing.T) {
	d := newDispatcher()
	cspace := capability.NewCNode(4, 0, 28)

	refs := 1
	setCap(cspace, 1, capability.Capability{
		Kind:   object.KindEndpoint,
		Object: object.NewEndpoint(),
		Rights: object.Rights{Read: true, Write: true},
		Refs:   &refs,
	})

	regs := &object.RegisterFile{}
	regs.X[0] = 1 // src
	regs.X[1] = 2 // dst
	regs.X[2] = 0x1 // rights: read only
	regs.X[NumberRegister] = uint64(CapCopy)

	tcb := &object.TCB{}
	d.Bind(tcb, cspace, nil)
	d.Dispatch(tcb, regs)
	require.Equal(t, uint64(0), regs.X[0])

	dstCap := cspace.Slot(2).Get()
	assert.True(t, dstCap.Rights.Read)
	assert.False(t, dstCap.Rights.Write)
}

func TestDispatchDebugPutcharSucceeds(t *testing.T) {
	d := newDispatcher()
	regs := &object.RegisterFile{}
	regs.X[0] = uint64('k')
	regs.X[NumberRegister] = uint64(DebugPutchar)

	d.Dispatch(&object.TCB{}, regs)
	assert.Equal(t, uint64(0), regs.X[0])
}

func TestDispatchSendWithInvalidCapabilityFails(t *testing.T) {
	d := newDispatcher()
	cspace := capability.NewCNode(4, 0, 28)

	regs := &object.RegisterFile{}
	regs.X[0] = 1 // empty slot
	regs.X[NumberRegister] = uint64(Send)

	tcb := &object.TCB{}
	d.Bind(tcb, cspace, nil)
	d.Dispatch(tcb, regs)

	assert.NotEqual(t, uint64(0), regs.X[0])
}
