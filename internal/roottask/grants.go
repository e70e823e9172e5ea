package roottask

import (
	"github.com/pkg/errors"

	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/manifest"
	"github.com/darmie/kaal/internal/object"
	"github.com/darmie/kaal/internal/retype"
	"github.com/darmie/kaal/internal/vm"
)

// DeviceRegion names one pre-carved, device-backed untyped the root task
// offers for `memory_map` grants: exactly Size bytes of device memory
// starting at PhysBase, one region per MMIO range a driver component might
// request. Keeping one untyped per range rather than one big device-untyped
// for all of MMIO means the first (and only) retype out of it lands at
// offset zero, so the resulting page's PhysBase always equals PhysBase —
// device pages map where the manifest says they should without needing an
// address-directed allocator.
type DeviceRegion struct {
	PhysBase uint64
	Untyped  *capability.SlotRef
}

// Grants bundles everything Bootstrap needs to satisfy a component's
// `capabilities` list beyond building it a runnable TCB (SPEC_FULL.md §4.9
// SUPPLEMENT: the manifest's six capability forms are granted, not just
// parsed).
type Grants struct {
	// Devices indexes pre-carved device memory by physical base address,
	// for `memory_map` requests.
	Devices map[uint64]*DeviceRegion

	// Endpoints indexes named IPC endpoints shared across components, for
	// `ipc` requests. Bootstrap populates one entry per distinct name the
	// manifest mentions before spawning anything, so two components
	// naming the same channel always resolve to the same Endpoint object.
	Endpoints map[string]*capability.SlotRef

	// ProcessControl is the untyped region copied into a component's
	// CSpace when it requests `process:create`, `process:destroy`, or
	// `memory:allocate`: in the absence of a dedicated admin-capability
	// kind, the right to retype (and, transitively, to revoke what it
	// retyped) from the same pool the root task itself spawns children
	// from stands in for a process/memory management capability.
	ProcessControl *capability.SlotRef

	// IRQControl is the root task's singleton IRQControl capability, used
	// to satisfy `interrupt` requests. Nil if the manifest names none.
	IRQControl *capability.SlotRef
}

// grant installs one decoded capability request into childCNode starting
// at slot *nextFree (Bootstrap starts it at ChildFirstFreeSlot), advancing
// *nextFree past every slot it fills. It returns only an error; the slots
// used are visible through *nextFree.
func (sp *Spawner) grant(req SpawnRequest, g *Grants, childCNode *capability.CNode, vspace *vm.VSpace, nextFree *uint64, cr manifest.CapabilityRequest) error {
	switch cr.Kind {
	case manifest.CapMemoryMap:
		return sp.grantMemoryMap(req, g, childCNode, vspace, nextFree, cr)

	case manifest.CapInterrupt:
		return sp.grantInterrupt(g, childCNode, nextFree, cr)

	case manifest.CapIPC:
		return sp.grantIPC(g, childCNode, nextFree, cr)

	case manifest.CapProcessCreate, manifest.CapProcessDestroy, manifest.CapMemoryAllocate:
		return sp.grantProcessControl(g, childCNode, nextFree)

	default:
		return errors.Errorf("roottask: unknown capability kind %d", cr.Kind)
	}
}

// grantMemoryMap maps cr.Size bytes of the device region starting at
// cr.Addr into vspace, identity-mapped (VA == PA) since every in-tree
// component addresses its device memory the same way the root task does:
// directly by physical address, matching how internal/arch/arm64 reads
// UART/GIC registers. Unlike the intermediate page-table objects
// mapSegment carves (kernel-internal, never capability-visible), each
// mapped device page also lands in childCNode: a driver holding
// `memory_map` should be able to name and later unmap what it was granted.
func (sp *Spawner) grantMemoryMap(req SpawnRequest, g *Grants, childCNode *capability.CNode, vspace *vm.VSpace, nextFree *uint64, cr manifest.CapabilityRequest) error {
	region, ok := g.Devices[cr.Addr]
	if !ok {
		return errors.Errorf("roottask: no device region registered at %#x", cr.Addr)
	}
	if cr.Size == 0 || cr.Size%vm.PageSize != 0 {
		return errors.Errorf("roottask: memory_map size %#x is not page-aligned", cr.Size)
	}

	tr := newInstallTracker()
	rights := object.Rights{Read: true, Write: true}
	for off := uint64(0); off < cr.Size; off += vm.PageSize {
		vaddr := cr.Addr + off
		if err := sp.ensureTables(SpawnRequest{Untyped: region.Untyped, Staging: req.Staging}, vspace, tr, vaddr); err != nil {
			return err
		}

		dst := childCNode.Slot(*nextFree)
		*nextFree++
		if err := retype.Do(retype.Request{
			Untyped:          region.Untyped,
			Kind:             object.KindPage,
			SizeBits:         12,
			TargetCNode:      childCNode,
			TargetSlotOffset: dst.Index,
			Count:            1,
		}); err != nil {
			return err
		}
		page := dst.Get().Object.(*object.PageObj)

		if err := vspace.MapPage(uintptr(vaddr), page, rights, object.CacheUncached); err != nil {
			return err
		}
	}
	return nil
}

// grantInterrupt mints an IRQHandler for cr.IRQ directly into childCNode,
// mirroring internal/syscall's doIRQHandlerGet: refuse a line already
// issued, otherwise hand back a fresh handler bound to no notification yet
// (the component binds one itself via irq_handler's normal syscall path
// once it is running).
func (sp *Spawner) grantInterrupt(g *Grants, childCNode *capability.CNode, nextFree *uint64, cr manifest.CapabilityRequest) error {
	if g.IRQControl == nil {
		return errors.New("roottask: no irq-control capability configured")
	}
	ctrlCap := g.IRQControl.Get()
	ctrl, ok := ctrlCap.Object.(*object.IRQControl)
	if !ok {
		return errors.New("roottask: irq-control capability is the wrong object kind")
	}
	if ctrl.Issued == nil {
		ctrl.Issued = make(map[uint32]bool)
	}
	if ctrl.Issued[cr.IRQ] {
		return errors.Errorf("roottask: interrupt %d already issued", cr.IRQ)
	}
	ctrl.Issued[cr.IRQ] = true

	dst := childCNode.Slot(*nextFree)
	*nextFree++
	refs := 1
	*dst.Get() = capability.Capability{
		Kind:   object.KindIRQHandler,
		Object: &object.IRQHandler{IRQ: cr.IRQ},
		Rights: fullRights,
		Refs:   &refs,
	}
	return nil
}

func (g *Grants) grantIPC(name string) (*capability.SlotRef, bool) {
	s, ok := g.Endpoints[name]
	return s, ok
}

func (sp *Spawner) grantIPC(g *Grants, childCNode *capability.CNode, nextFree *uint64, cr manifest.CapabilityRequest) error {
	src, ok := g.grantIPC(cr.Name)
	if !ok {
		return errors.Errorf("roottask: no endpoint named %q", cr.Name)
	}
	dst := childCNode.Slot(*nextFree)
	*nextFree++
	return capability.Copy(src, dst, fullRights)
}

func (sp *Spawner) grantProcessControl(g *Grants, childCNode *capability.CNode, nextFree *uint64) error {
	if g.ProcessControl == nil {
		return errors.New("roottask: no process-control untyped configured")
	}
	dst := childCNode.Slot(*nextFree)
	*nextFree++
	return capability.Copy(g.ProcessControl, dst, fullRights)
}

// retypeNamedEndpoints carves one Endpoint object per distinct `ipc:NAME`
// appearing anywhere in m, so every component naming the same channel
// resolves to the same object (manifest order determines which name wins
// the slot — a no-op because names are deduplicated by content, not
// position).
func (sp *Spawner) retypeNamedEndpoints(m *manifest.Manifest, untyped *capability.SlotRef, staging *capability.CNode) (map[string]*capability.SlotRef, error) {
	out := make(map[string]*capability.SlotRef)
	for _, c := range m.Components {
		for _, raw := range c.Capabilities {
			cr, err := manifest.ParseCapability(raw)
			if err != nil {
				return nil, err
			}
			if cr.Kind != manifest.CapIPC {
				continue
			}
			if _, ok := out[cr.Name]; ok {
				continue
			}
			slot, offset := sp.takeStagingSlot(SpawnRequest{Untyped: untyped, Staging: staging})
			if err := retype.Do(retype.Request{
				Untyped:          untyped,
				Kind:             object.KindEndpoint,
				TargetCNode:      staging,
				TargetSlotOffset: offset,
				Count:            1,
			}); err != nil {
				return nil, errors.Wrapf(err, "roottask: retype endpoint %q", cr.Name)
			}
			out[cr.Name] = slot
		}
	}
	return out, nil
}
