package ipc

import (
	"testing"

	"github.com/darmie/kaal/internal/object"
	"github.com/darmie/kaal/internal/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeEndpointCancelsAllWaiters(t *testing.T) {
	s := sched.New()
	cf := NewCancelFinalizer(s)

	ep := object.NewEndpoint()
	a := &object.TCB{Priority: 1, State: object.StateBlockedOnSend, BlockedOn: ep}
	b := &object.TCB{Priority: 1, State: object.StateBlockedOnSend, BlockedOn: ep}
	ep.Enqueue(object.QueueSenders, a)
	ep.Enqueue(object.QueueSenders, b)

	woken := cf.Finalize(object.KindEndpoint, ep)
	require.Len(t, woken, 2)

	for _, tcb := range []*object.TCB{a, b} {
		assert.Equal(t, object.StateReady, tcb.State)
		assert.Nil(t, tcb.BlockedOn)
		require.NotNil(t, tcb.Pending)
		assert.Equal(t, cancelledLabel, tcb.Pending.Label)
	}

	assert.Same(t, a, s.Next())
	assert.Same(t, b, s.Next())
}

func TestFinalizeNotificationCancelsWaiters(t *testing.T) {
	s := sched.New()
	cf := NewCancelFinalizer(s)

	n := object.NewNotification()
	waiter := &object.TCB{Priority: 1, State: object.StateBlockedOnNotify, BlockedOn: n}
	n.Enqueue(waiter)

	woken := cf.Finalize(object.KindNotification, n)
	require.Len(t, woken, 1)
	assert.Same(t, waiter, s.Next())
}

func TestFinalizeIgnoresUnrelatedKinds(t *testing.T) {
	s := sched.New()
	cf := NewCancelFinalizer(s)

	woken := cf.Finalize(object.KindTCB, &object.TCB{})
	assert.Nil(t, woken)
}
