package capability

import (
	"testing"

	"github.com/darmie/kaal/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinalizer struct {
	calls []object.Kind
}

func (f *fakeFinalizer) Finalize(kind object.Kind, obj any) []*object.TCB {
	f.calls = append(f.calls, kind)
	return nil
}

func oneRef() *int {
	n := 1
	return &n
}

func TestCopyNarrowsRights(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	cn.Slots[0] = Capability{
		Kind:   object.KindEndpoint,
		Object: object.NewEndpoint(),
		Rights: object.Rights{Read: true, Write: true, Grant: true},
		Refs:   oneRef(),
	}
	src, dst := cn.Slot(0), cn.Slot(1)

	err := Copy(src, dst, object.Rights{Read: true})
	require.NoError(t, err)

	dstCap := dst.Get()
	assert.True(t, dstCap.Rights.Read)
	assert.False(t, dstCap.Rights.Write)
	assert.False(t, dstCap.Rights.Grant)
	assert.Equal(t, 2, *src.Get().Refs)
}

func TestCopyFailsOnNonEmptyDst(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	cn.Slots[0] = Capability{Kind: object.KindEndpoint, Object: object.NewEndpoint(), Refs: oneRef()}
	cn.Slots[1] = Capability{Kind: object.KindEndpoint, Object: object.NewEndpoint(), Refs: oneRef()}

	err := Copy(cn.Slot(0), cn.Slot(1), object.Rights{Read: true})
	require.Error(t, err)
	assert.True(t, Is(err, KindNotEmpty))
}

func TestMintRequiresBadgeableKind(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	cn.Slots[0] = Capability{Kind: object.KindTCB, Object: object.NewTCB(), Refs: oneRef()}

	err := Mint(cn.Slot(0), cn.Slot(1), object.Rights{Read: true}, 0xBADE)
	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidCapability))
}

func TestMintSetsBadge(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	cn.Slots[0] = Capability{Kind: object.KindNotification, Object: object.NewNotification(), Refs: oneRef()}

	require.NoError(t, Mint(cn.Slot(0), cn.Slot(1), object.Rights{Read: true}, 0x42))
	dst := cn.Slot(1).Get()
	assert.True(t, dst.HasBadge)
	assert.Equal(t, uint64(0x42), dst.Badge)
}

func TestMoveEmptiesSrc(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	cn.Slots[0] = Capability{Kind: object.KindTCB, Object: object.NewTCB(), Refs: oneRef()}

	require.NoError(t, Move(cn.Slot(0), cn.Slot(1)))
	assert.True(t, cn.Slot(0).Get().Empty())
	assert.False(t, cn.Slot(1).Get().Empty())
}

func TestMoveFailsOnEmptySrc(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	err := Move(cn.Slot(0), cn.Slot(1))
	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidCapability))
}

func TestDeleteLastRefFinalizes(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	cn.Slots[0] = Capability{Kind: object.KindEndpoint, Object: object.NewEndpoint(), Refs: oneRef()}

	fz := &fakeFinalizer{}
	require.NoError(t, Delete(cn.Slot(0), fz))
	assert.True(t, cn.Slot(0).Get().Empty())
	assert.Equal(t, []object.Kind{object.KindEndpoint}, fz.calls)
}

func TestDeleteSharedRefDoesNotFinalize(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	ep := object.NewEndpoint()
	cn.Slots[0] = Capability{Kind: object.KindEndpoint, Object: ep, Refs: oneRef()}
	require.NoError(t, Copy(cn.Slot(0), cn.Slot(1), object.Rights{Read: true, Grant: true}))

	fz := &fakeFinalizer{}
	require.NoError(t, Delete(cn.Slot(0), fz))
	assert.Empty(t, fz.calls)
	assert.False(t, cn.Slot(1).Get().Empty())

	require.NoError(t, Delete(cn.Slot(1), fz))
	assert.Equal(t, []object.Kind{object.KindEndpoint}, fz.calls)
}

func TestDeleteMappedPageFails(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	cn.Slots[0] = Capability{Kind: object.KindPage, Object: &object.PageObj{Mapped: true}, Refs: oneRef()}

	err := Delete(cn.Slot(0), nil)
	require.Error(t, err)
	assert.True(t, Is(err, KindDeleteFirst))
}

func TestRevokeDeletesDescendantsPostOrder(t *testing.T) {
	cn := NewCNode(4, 0, 0)
	untyped := &object.UntypedRegion{SizeBits: 16, Watermark: 4096}
	cn.Slots[0] = Capability{Kind: object.KindUntyped, Object: untyped, Refs: oneRef()}
	untypedSlot := cn.Slot(0)

	cn.Slots[1] = Capability{Kind: object.KindEndpoint, Object: object.NewEndpoint(), Refs: oneRef()}
	cn.Slots[2] = Capability{Kind: object.KindTCB, Object: object.NewTCB(), Refs: oneRef()}
	linkChild(untypedSlot, cn.Slot(1))
	linkChild(untypedSlot, cn.Slot(2))

	fz := &fakeFinalizer{}
	require.NoError(t, Revoke(untypedSlot, fz))

	assert.True(t, cn.Slot(1).Get().Empty())
	assert.True(t, cn.Slot(2).Get().Empty())
	assert.False(t, untypedSlot.Get().Empty(), "revoke must not delete the capability itself")
	assert.Nil(t, untypedSlot.Get().FirstChild)
	assert.Equal(t, uint64(0), untyped.Watermark)
}

func TestRevokeEmptyFails(t *testing.T) {
	cn := NewCNode(2, 0, 0)
	_, err := Lookup(cn, 0, 2)
	require.Error(t, err)

	err = Revoke(cn.Slot(0), nil)
	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidCapability))
}
