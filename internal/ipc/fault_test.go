package ipc

import (
	"testing"

	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReifyDeliversFaultMessageToWaitingHandler(t *testing.T) {
	e := newEngine()
	faultEP := object.NewEndpoint()
	handler := &object.TCB{Priority: 1}
	e.Recv(faultEP, handler, nil, 0)

	faulting := &object.TCB{Priority: 1}
	replyCNode := capability.NewCNode(2, 0, 0)
	err := e.Reify(faultEP, FaultDataAbort, faulting, 0x96000044, 0xdeadbeef, replyCNode, 0)
	require.NoError(t, err)

	require.NotNil(t, handler.Pending)
	assert.Equal(t, FaultLabel, handler.Pending.Label)
	assert.Equal(t, uint64(FaultDataAbort), handler.Pending.MR[0])
	assert.Equal(t, uint64(0x96000044), handler.Pending.MR[1])
	assert.Equal(t, uint64(0xdeadbeef), handler.Pending.MR[2])
	assert.Equal(t, object.StateBlockedOnReply, faulting.State)

	require.False(t, replyCNode.Slot(0).Get().Empty())
}

func TestRestartOutcomes(t *testing.T) {
	regs := &object.RegisterFile{}

	assert.Equal(t, OutcomeRestart, Restart(regs, object.Message{MR: [4]uint64{0}}))
	assert.Equal(t, OutcomeModifyAndRestart, Restart(regs, object.Message{MR: [4]uint64{1}}))
	assert.Equal(t, OutcomeTerminate, Restart(regs, object.Message{MR: [4]uint64{2}}))
}

func TestReifyWithNoWaitingHandlerParksFaultingThread(t *testing.T) {
	e := newEngine()
	faultEP := object.NewEndpoint()
	faulting := &object.TCB{Priority: 1}

	err := e.Reify(faultEP, FaultPageFault, faulting, 0x1, 0x2, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, object.QueueSenders, faultEP.Direction)
	assert.Equal(t, object.StateBlockedOnReply, faulting.State)
}
