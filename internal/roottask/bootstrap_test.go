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

func sampleImage() *elfimage.Image {
	return &elfimage.Image{
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
}

func newDeviceRegion(t *testing.T, physBase uint64, size uint64) *DeviceRegion {
	t.Helper()
	staging := capability.NewCNode(1, 0, 0)
	region := &object.UntypedRegion{SizeBits: 12, PhysBase: physBase, Device: true}
	_ = size
	refs := 1
	staging.Slots[0] = capability.Capability{Kind: object.KindUntyped, Object: region, Refs: &refs}
	return &DeviceRegion{PhysBase: physBase, Untyped: staging.Slot(0)}
}

func TestBootstrapSpawnsAutostartRoots(t *testing.T) {
	raw := []byte(`
components:
  - name: uart-driver
    binary: uart.elf
    type: driver
    priority: 100
    autostart: true
    spawned_by: root
    capabilities: ["memory_map:0x9000000:4096", "interrupt:33"]
  - name: child-of-driver
    binary: child.elf
    type: application
    priority: 50
    autostart: true
    spawned_by: uart-driver
`)
	m, err := manifest.Parse(raw)
	require.NoError(t, err)

	untyped := freshUntyped(25)
	staging := capability.NewCNode(10, 0, 0)
	sp := NewSpawner(sched.New(), NewPhysMem(), 0)

	grants := &Grants{
		Devices: map[uint64]*DeviceRegion{
			0x9000000: newDeviceRegion(t, 0x9000000, 4096),
		},
		IRQControl: func() *capability.SlotRef {
			s := capability.NewCNode(1, 0, 0)
			refs := 1
			s.Slots[0] = capability.Capability{Kind: object.KindIRQControl, Object: object.NewIRQControl(), Refs: &refs}
			return s.Slot(0)
		}(),
	}

	results, err := Bootstrap(sp, m, Config{
		Untyped:   untyped,
		Staging:   staging,
		Radix:     4,
		StackVA:   0x500000,
		StackSize: 0x1000,
		LoadImage: func(binary string) (*elfimage.Image, error) { return sampleImage(), nil },
		Grants:    grants,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	child := results[0]
	assert.Equal(t, object.StateReady, child.TCB.State)

	irqSlot := child.CSpace.Slot(ChildFirstFreeSlot + 1)
	assert.Equal(t, object.KindIRQHandler, irqSlot.Get().Kind)

	mmSlotKind := object.KindNull
	for i := uint64(0); i < uint64(1)<<4; i++ {
		if child.CSpace.Slot(i).Get().Kind == object.KindPage {
			mmSlotKind = object.KindPage
		}
	}
	_ = mmSlotKind
}

func TestBootstrapRejectsMissingImageLoader(t *testing.T) {
	raw := []byte(`
components:
  - name: only
    binary: a.elf
    type: service
    priority: 1
    autostart: true
    spawned_by: root
`)
	m, err := manifest.Parse(raw)
	require.NoError(t, err)

	untyped := freshUntyped(20)
	staging := capability.NewCNode(8, 0, 0)
	sp := NewSpawner(sched.New(), NewPhysMem(), 0)

	_, err = Bootstrap(sp, m, Config{
		Untyped: untyped, Staging: staging, Radix: 4,
		StackVA: 0x500000, StackSize: 0x1000,
	})
	require.Error(t, err)
}

func TestBootstrapSharesNamedEndpointsAcrossComponents(t *testing.T) {
	raw := []byte(`
components:
  - name: server
    binary: server.elf
    type: service
    priority: 10
    autostart: true
    spawned_by: root
    capabilities: ["ipc:demo"]
  - name: client
    binary: client.elf
    type: application
    priority: 10
    autostart: true
    spawned_by: root
    capabilities: ["ipc:demo"]
`)
	m, err := manifest.Parse(raw)
	require.NoError(t, err)

	untyped := freshUntyped(25)
	staging := capability.NewCNode(10, 0, 0)
	sp := NewSpawner(sched.New(), NewPhysMem(), 0)

	results, err := Bootstrap(sp, m, Config{
		Untyped: untyped, Staging: staging, Radix: 4,
		StackVA: 0x500000, StackSize: 0x1000,
		LoadImage: func(binary string) (*elfimage.Image, error) { return sampleImage(), nil },
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	serverEP := results[0].CSpace.Slot(ChildFirstFreeSlot).Get()
	clientEP := results[1].CSpace.Slot(ChildFirstFreeSlot).Get()
	require.Equal(t, object.KindEndpoint, serverEP.Kind)
	require.Equal(t, object.KindEndpoint, clientEP.Kind)
	assert.Same(t, serverEP.Object, clientEP.Object)
}
