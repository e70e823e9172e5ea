package retype

import (
	"testing"

	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshUntyped(t *testing.T, sizeBits uint, device bool) (*capability.CNode, *capability.SlotRef, *object.UntypedRegion) {
	t.Helper()
	cn := capability.NewCNode(4, 0, 0)
	region := &object.UntypedRegion{SizeBits: sizeBits, Device: device}
	refs := 1
	cn.Slots[0] = capability.Capability{Kind: object.KindUntyped, Object: region, Refs: &refs}
	return cn, cn.Slot(0), region
}

func TestRetypeTwoTCBs(t *testing.T) {
	cn, untyped, region := freshUntyped(t, 16, false)

	err := Do(Request{
		Untyped:          untyped,
		Kind:             object.KindTCB,
		TargetCNode:      cn,
		TargetSlotOffset: 1,
		Count:            2,
	})
	require.NoError(t, err)

	assert.Equal(t, object.KindTCB, cn.Slots[1].Kind)
	assert.Equal(t, object.KindTCB, cn.Slots[2].Kind)
	assert.NotSame(t, cn.Slots[1].Object, cn.Slots[2].Object)
	assert.Equal(t, uint64(2048), region.Watermark)
}

func TestRetypeConservation(t *testing.T) {
	cn, untyped, region := freshUntyped(t, 9, false) // 512 bytes

	err := Do(Request{
		Untyped:          untyped,
		Kind:             object.KindEndpoint,
		TargetCNode:      cn,
		TargetSlotOffset: 1,
		Count:            15, // 15 * 64 = 960 > 512; slots 1..15 fit the 16-slot CNode
	})
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindRangeError))
	assert.Equal(t, uint64(0), region.Watermark)
	assert.True(t, cn.Slots[1].Empty())
}

func TestRetypeRollsBackOnPartialFailure(t *testing.T) {
	cn, untyped, region := freshUntyped(t, 16, false)
	// pre-occupy slot 3 so a 4-count retype starting at slot 1 fails midway
	preRefs := 1
	cn.Slots[3] = capability.Capability{Kind: object.KindTCB, Object: object.NewTCB(), Refs: &preRefs}

	err := Do(Request{
		Untyped:          untyped,
		Kind:             object.KindTCB,
		TargetCNode:      cn,
		TargetSlotOffset: 1,
		Count:            4,
	})
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindNotEmpty))

	assert.True(t, cn.Slots[1].Empty())
	assert.True(t, cn.Slots[2].Empty())
	assert.Equal(t, uint64(0), region.Watermark)
}

func TestRetypeDeviceUntypedForbidsTCB(t *testing.T) {
	cn, untyped, _ := freshUntyped(t, 16, true)

	err := Do(Request{
		Untyped:          untyped,
		Kind:             object.KindTCB,
		TargetCNode:      cn,
		TargetSlotOffset: 1,
		Count:            1,
	})
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindInvalidArgument))
}

func TestRetypeSlotOffsetOverflowFailsBeforeMutating(t *testing.T) {
	cn, untyped, region := freshUntyped(t, 16, false)

	err := Do(Request{
		Untyped:          untyped,
		Kind:             object.KindEndpoint,
		TargetCNode:      cn,
		TargetSlotOffset: 15,
		Count:            2, // 15+2 = 17 > 16 slots
	})
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindRangeError))
	assert.Equal(t, uint64(0), region.Watermark)
}

func TestRetypeCreatesCDTChildren(t *testing.T) {
	cn, untyped, _ := freshUntyped(t, 16, false)

	require.NoError(t, Do(Request{
		Untyped:          untyped,
		Kind:             object.KindNotification,
		TargetCNode:      cn,
		TargetSlotOffset: 1,
		Count:            1,
	}))

	child := cn.Slot(1).Get()
	assert.Same(t, untyped, child.Parent)
	require.NotNil(t, untyped.Get().FirstChild)
	assert.True(t, untyped.Get().FirstChild.Equal(cn.Slot(1)))
}

func TestRetypeRejectsUntypedCapability(t *testing.T) {
	cn := capability.NewCNode(2, 0, 0)
	refs := 1
	cn.Slots[0] = capability.Capability{Kind: object.KindTCB, Object: object.NewTCB(), Refs: &refs}

	err := Do(Request{
		Untyped:          cn.Slot(0),
		Kind:             object.KindEndpoint,
		TargetCNode:      cn,
		TargetSlotOffset: 1,
		Count:            1,
	})
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindInvalidCapability))
}
