package roottask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/elfimage"
	"github.com/darmie/kaal/internal/manifest"
	"github.com/darmie/kaal/internal/object"
	"github.com/darmie/kaal/internal/sched"
)

func freshUntyped(sizeBits uint) *capability.SlotRef {
	staging := capability.NewCNode(1, 0, 0)
	region := &object.UntypedRegion{SizeBits: sizeBits}
	refs := 1
	staging.Slots[0] = capability.Capability{Kind: object.KindUntyped, Object: region, Refs: &refs}
	return staging.Slot(0)
}

func TestSpawnBuildsRunnableChild(t *testing.T) {
	untyped := freshUntyped(24) // 16 MiB, ample for one small component
	staging := capability.NewCNode(8, 0, 0)
	s := sched.New()
	phys := NewPhysMem()
	sp := NewSpawner(s, phys, 0)

	img := &elfimage.Image{
		Entry: 0x400000,
		Segments: []elfimage.Segment{
			{
				VAddr:    0x400000,
				FileSize: 4,
				MemSize:  0x2000,
				Data:     []byte{0xde, 0xad, 0xbe, 0xef},
				Rights:   object.Rights{Read: true, Exec: true},
				Attr:     object.CacheCached,
			},
		},
	}

	req := SpawnRequest{
		Component: manifest.Component{Name: "demo", Priority: 120},
		Image:     img,
		Untyped:   untyped,
		Staging:   staging,
		Radix:     4,
		StackVA:   0x500000,
		StackSize: 0x2000,
	}

	result, err := sp.Spawn(req)
	require.NoError(t, err)
	require.NotNil(t, result.TCB)

	assert.Equal(t, object.StateReady, result.TCB.State)
	assert.Equal(t, uint8(120), result.TCB.Priority)
	assert.Equal(t, uint64(0x400000), result.TCB.Regs.ELR_EL1)
	assert.Equal(t, uint64(0x500000+0x2000), result.TCB.Regs.SPEL0)

	selfCSpaceCap := result.CSpace.Slot(ChildSlotSelfCSpace).Get()
	assert.Equal(t, object.KindCNode, selfCSpaceCap.Kind)
	assert.Same(t, result.CSpace, selfCSpaceCap.Object.(*capability.CNode))

	selfVSpaceCap := result.CSpace.Slot(ChildSlotSelfVSpace).Get()
	assert.Equal(t, object.KindVSpaceRoot, selfVSpaceCap.Kind)

	selfTCBCap := result.CSpace.Slot(ChildSlotSelfTCB).Get()
	assert.Equal(t, object.KindTCB, selfTCBCap.Kind)
	assert.Same(t, result.TCB, selfTCBCap.Object.(*object.TCB))
}

func TestSpawnLoadsSegmentDataIntoPhysicalFrame(t *testing.T) {
	untyped := freshUntyped(24)
	staging := capability.NewCNode(8, 0, 0)
	s := sched.New()
	phys := NewPhysMem()
	sp := NewSpawner(s, phys, 0)

	img := &elfimage.Image{
		Entry: 0x400000,
		Segments: []elfimage.Segment{
			{
				VAddr:    0x400000,
				FileSize: 4,
				MemSize:  0x1000,
				Data:     []byte{1, 2, 3, 4},
				Rights:   object.Rights{Read: true, Exec: true},
				Attr:     object.CacheCached,
			},
		},
	}

	result, err := sp.Spawn(SpawnRequest{
		Component: manifest.Component{Name: "demo", Priority: 1},
		Image:     img,
		Untyped:   untyped,
		Staging:   staging,
		Radix:     4,
		StackVA:   0x500000,
		StackSize: 0x1000,
	})
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)

	frame := phys.Read(result.Pages[0].PhysBase, 4096)
	assert.Equal(t, []byte{1, 2, 3, 4}, frame[:4])
}

func TestSpawnRejectsImageWithNoSegments(t *testing.T) {
	untyped := freshUntyped(20)
	staging := capability.NewCNode(8, 0, 0)
	sp := NewSpawner(sched.New(), NewPhysMem(), 0)

	_, err := sp.Spawn(SpawnRequest{
		Component: manifest.Component{Name: "empty"},
		Image:     &elfimage.Image{},
		Untyped:   untyped,
		Staging:   staging,
		Radix:     4,
		StackVA:   0x500000,
		StackSize: 0x1000,
	})
	require.Error(t, err)
}

func TestSpawnMultipleChildrenDoNotShareStagingSlots(t *testing.T) {
	untyped := freshUntyped(25)
	staging := capability.NewCNode(10, 0, 0)
	sp := NewSpawner(sched.New(), NewPhysMem(), 0)

	img := &elfimage.Image{
		Entry: 0x400000,
		Segments: []elfimage.Segment{
			{VAddr: 0x400000, FileSize: 2, MemSize: 0x1000, Data: []byte{9, 9}, Rights: object.Rights{Read: true, Exec: true}},
		},
	}

	first, err := sp.Spawn(SpawnRequest{
		Component: manifest.Component{Name: "a"}, Image: img, Untyped: untyped,
		Staging: staging, Radix: 4, StackVA: 0x500000, StackSize: 0x1000,
	})
	require.NoError(t, err)

	second, err := sp.Spawn(SpawnRequest{
		Component: manifest.Component{Name: "b"}, Image: img, Untyped: untyped,
		Staging: staging, Radix: 4, StackVA: 0x500000, StackSize: 0x1000,
	})
	require.NoError(t, err)

	assert.NotSame(t, first.TCB, second.TCB)
	assert.NotSame(t, first.CSpace, second.CSpace)
}
