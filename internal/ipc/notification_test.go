package ipc

import (
	"testing"

	"github.com/darmie/kaal/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalWithNoWaiterAccumulates(t *testing.T) {
	e := newEngine()
	n := object.NewNotification()

	e.Signal(n, 0x1)
	e.Signal(n, 0x4)

	assert.Equal(t, uint64(0x5), e.Poll(n))
	assert.Equal(t, uint64(0), e.Poll(n))
}

func TestSignalWakesWaiterWithAccumulatedWord(t *testing.T) {
	e := newEngine()
	n := object.NewNotification()
	waiter := &object.TCB{Priority: 1}

	e.Wait(n, waiter)
	assert.Equal(t, object.StateBlockedOnNotify, waiter.State)

	e.Signal(n, 0x2)

	require.NotNil(t, waiter.Pending)
	assert.Equal(t, uint64(0x2), waiter.Pending.Label)
	assert.Same(t, waiter, e.Sched.Next())
}

func TestWaitWithPendingWordReturnsImmediately(t *testing.T) {
	e := newEngine()
	n := object.NewNotification()
	e.Signal(n, 0x8)

	waiter := &object.TCB{Priority: 1}
	e.Wait(n, waiter)

	require.NotNil(t, waiter.Pending)
	assert.Equal(t, uint64(0x8), waiter.Pending.Label)
	assert.NotEqual(t, object.StateBlockedOnNotify, waiter.State)
}
