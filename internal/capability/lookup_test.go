package capability

import (
	"testing"

	"github.com/darmie/kaal/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupSingleLevel(t *testing.T) {
	root := NewCNode(4, 0, 0) // radix 4, no guard -> 16 slots, resolves 4 bits
	root.Slots[5] = Capability{Kind: object.KindEndpoint, Object: object.NewEndpoint()}

	slot, err := Lookup(root, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), slot.Index)
}

func TestLookupTwoLevelsWithGuard(t *testing.T) {
	root := NewCNode(2, 0, 0) // 4 slots, resolves 2 bits
	leaf := NewCNode(3, 0b101, 3)
	root.Slots[1] = Capability{Kind: object.KindCNode, Object: leaf, Guard: 0b101, GuardBits: 3}
	leaf.Slots[6] = Capability{Kind: object.KindEndpoint, Object: object.NewEndpoint()}

	// low 8 address bits, most significant first: 2 bits root index (1), then 3 bits guard (0b101), then 3 bits leaf index (6)
	addr := (uint64(1) << (3 + 3)) | (uint64(0b101) << 3) | uint64(6)
	slot, err := Lookup(root, addr, 2+3+3)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), slot.Index)
	assert.Same(t, leaf, slot.CNode)
}

func TestLookupGuardMismatch(t *testing.T) {
	root := NewCNode(2, 0, 0)
	leaf := NewCNode(3, 0b101, 3)
	root.Slots[1] = Capability{Kind: object.KindCNode, Object: leaf, Guard: 0b101, GuardBits: 3}

	addr := (uint64(1) << (3 + 3)) | (uint64(0b010) << 3)
	_, err := Lookup(root, addr, 2+3+3)
	require.Error(t, err)
	assert.True(t, Is(err, KindNotFound))
}

func TestLookupEmptySlot(t *testing.T) {
	root := NewCNode(2, 0, 0)
	_, err := Lookup(root, 0, 2)
	require.Error(t, err)
	assert.True(t, Is(err, KindNotFound))
}

func TestLookupDepthMismatch(t *testing.T) {
	root := NewCNode(4, 0, 0)
	_, err := Lookup(root, 0, 2)
	require.Error(t, err)
	assert.True(t, Is(err, KindNotFound))
}

func TestLookupNilRoot(t *testing.T) {
	_, err := Lookup(nil, 0, 4)
	require.Error(t, err)
}
