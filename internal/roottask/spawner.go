package roottask

import (
	"github.com/pkg/errors"

	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/elfimage"
	"github.com/darmie/kaal/internal/manifest"
	"github.com/darmie/kaal/internal/object"
	"github.com/darmie/kaal/internal/retype"
	"github.com/darmie/kaal/internal/sched"
	"github.com/darmie/kaal/internal/vm"
)

// Child CSpace slot layout: the fixed low slots every spawned
// component's own CNode reserves for the capabilities that describe
// itself, mirroring internal/bootinfo's root-task layout but scoped
// to a child (SPEC_FULL.md §3's "owner capability set" resolution).
const (
	ChildSlotSelfCSpace uint64 = 1
	ChildSlotSelfVSpace uint64 = 2
	ChildSlotSelfTCB    uint64 = 3
	ChildSlotFaultEP    uint64 = 4
	ChildFirstFreeSlot  uint64 = 5
)

var fullRights = object.Rights{Read: true, Write: true, Grant: true, Exec: true}

// SpawnRequest names everything Spawn needs to bring up one manifest
// component (spec.md §4.9 step 3).
type SpawnRequest struct {
	Component manifest.Component
	Image     *elfimage.Image

	// Untyped is the region children are retyped out of.
	Untyped *capability.SlotRef

	// Staging is a CNode with free slots the spawner can retype new
	// objects into before self-referencing them into the child's own
	// CSpace; in practice this is the root task's own CSpace.
	Staging *capability.CNode

	// Radix is the log2 slot count of the child's own CNode.
	Radix uint8

	StackVA   uint64
	StackSize uint64
}

// SpawnResult is the fully configured child, already resumed.
type SpawnResult struct {
	TCB    *object.TCB
	CSpace *capability.CNode
	VSpace *vm.VSpace

	// Pages are every frame Spawn mapped for the component's segments,
	// in ascending virtual-address order, for callers that need to
	// inspect what landed where (tests, debug tooling).
	Pages []*object.PageObj
}

// Spawner builds and resumes manifest-driven children by retyping
// from a parent untyped region, the hosted half of spec.md §4.9 step
// 3 ("allocate a child untyped... build its CSpace... VSpace...
// pages... TCB... load the child's ELF segments... configure the
// TCB's entry point and stack pointer; resume the TCB").
type Spawner struct {
	Sched *sched.Scheduler
	Phys  *PhysMem

	// nextStagingOffset is a bump cursor into each request's own
	// Staging CNode, shared across every object Spawn retypes there
	// (the child's own CNode/VSpaceRoot/TCB plus every page-table and
	// page it needs) so that two objects never contend for the same
	// scratch slot. It never resets: successive Spawn calls against
	// the same Staging CNode keep consuming fresh slots.
	nextStagingOffset uint64
}

// NewSpawner returns a Spawner that enqueues resumed children onto s,
// models physical frame contents in phys, and starts handing out
// staging-CNode slots from stagingBase.
func NewSpawner(s *sched.Scheduler, phys *PhysMem, stagingBase uint64) *Spawner {
	return &Spawner{Sched: s, Phys: phys, nextStagingOffset: stagingBase}
}

// Spawn builds one child component and resumes its TCB.
func (sp *Spawner) Spawn(req SpawnRequest) (*SpawnResult, error) {
	if req.Image == nil || len(req.Image.Segments) == 0 {
		return nil, errors.New("roottask: spawn requires a loaded image")
	}

	childCNode, err := sp.buildCNode(req)
	if err != nil {
		return nil, errors.Wrapf(err, "roottask: spawn %q cspace", req.Component.Name)
	}

	vspace, err := sp.buildVSpace(req, childCNode)
	if err != nil {
		return nil, errors.Wrapf(err, "roottask: spawn %q vspace", req.Component.Name)
	}

	tcb, err := sp.buildTCB(req, childCNode)
	if err != nil {
		return nil, errors.Wrapf(err, "roottask: spawn %q tcb", req.Component.Name)
	}

	installed := newInstallTracker()
	var pages []*object.PageObj
	for _, seg := range req.Image.Segments {
		segPages, err := sp.mapSegment(req, vspace, installed, seg)
		if err != nil {
			return nil, errors.Wrapf(err, "roottask: spawn %q segment at %#x", req.Component.Name, seg.VAddr)
		}
		pages = append(pages, segPages...)
	}
	if err := sp.mapStack(req, vspace, installed); err != nil {
		return nil, errors.Wrapf(err, "roottask: spawn %q stack", req.Component.Name)
	}

	tcb.Priority = req.Component.Priority
	tcb.Regs.ELR_EL1 = req.Image.Entry
	tcb.Regs.SPEL0 = req.StackVA + req.StackSize

	sp.Sched.Resume(tcb)

	return &SpawnResult{TCB: tcb, CSpace: childCNode, VSpace: vspace, Pages: pages}, nil
}

// takeStagingSlot reserves the next free slot in req.Staging and
// returns it, advancing the shared bump cursor.
func (sp *Spawner) takeStagingSlot(req SpawnRequest) (*capability.SlotRef, uint64) {
	offset := sp.nextStagingOffset
	sp.nextStagingOffset++
	return req.Staging.Slot(offset), offset
}

func (sp *Spawner) buildCNode(req SpawnRequest) (*capability.CNode, error) {
	slot, offset := sp.takeStagingSlot(req)
	err := retype.Do(retype.Request{
		Untyped:          req.Untyped,
		Kind:             object.KindCNode,
		SizeBits:         uint(req.Radix),
		TargetCNode:      req.Staging,
		TargetSlotOffset: offset,
		Count:            1,
	})
	if err != nil {
		return nil, err
	}
	cnode := slot.Get().Object.(*capability.CNode)

	if err := capability.Copy(slot, cnode.Slot(ChildSlotSelfCSpace), fullRights); err != nil {
		return nil, err
	}
	return cnode, nil
}

func (sp *Spawner) buildVSpace(req SpawnRequest, childCNode *capability.CNode) (*vm.VSpace, error) {
	slot, offset := sp.takeStagingSlot(req)
	err := retype.Do(retype.Request{
		Untyped:          req.Untyped,
		Kind:             object.KindVSpaceRoot,
		TargetCNode:      req.Staging,
		TargetSlotOffset: offset,
		Count:            1,
	})
	if err != nil {
		return nil, err
	}
	root := slot.Get().Object.(*object.VSpaceRoot)

	if err := capability.Copy(slot, childCNode.Slot(ChildSlotSelfVSpace), fullRights); err != nil {
		return nil, err
	}
	return vm.NewVSpace(root), nil
}

func (sp *Spawner) buildTCB(req SpawnRequest, childCNode *capability.CNode) (*object.TCB, error) {
	slot, offset := sp.takeStagingSlot(req)
	err := retype.Do(retype.Request{
		Untyped:          req.Untyped,
		Kind:             object.KindTCB,
		TargetCNode:      req.Staging,
		TargetSlotOffset: offset,
		Count:            1,
	})
	if err != nil {
		return nil, err
	}
	tcb := slot.Get().Object.(*object.TCB)

	if err := capability.Copy(slot, childCNode.Slot(ChildSlotSelfTCB), fullRights); err != nil {
		return nil, err
	}
	tcb.CSpaceRootSlot = ChildSlotSelfCSpace
	tcb.VSpaceRootSlot = ChildSlotSelfVSpace
	return tcb, nil
}

// installTracker remembers which L1/L2 tables this spawn call has
// already installed, so mapSegment/mapStack never re-issue
// InstallTable for a table range two pages already share.
type installTracker struct {
	l1 map[uint64]*vm.Table
	l2 map[uint64]*vm.Table
}

func newInstallTracker() *installTracker {
	return &installTracker{l1: make(map[uint64]*vm.Table), l2: make(map[uint64]*vm.Table)}
}

// ensureTables installs whatever L1/L2 tables are missing for vaddr,
// retyping fresh page-table objects out of req.Untyped as needed.
func (sp *Spawner) ensureTables(req SpawnRequest, v *vm.VSpace, tr *installTracker, vaddr uint64) error {
	l0Key := vaddr &^ ((uint64(1) << vm.L0Shift) - 1)
	if _, ok := tr.l1[l0Key]; !ok {
		obj, err := sp.retypePageTable(req)
		if err != nil {
			return err
		}
		table := vm.NewTable(obj, 1)
		if err := v.InstallTable(uintptr(vaddr), 1, table); err != nil {
			return err
		}
		tr.l1[l0Key] = table
	}

	l1Key := vaddr &^ ((uint64(1) << vm.L1Shift) - 1)
	if _, ok := tr.l2[l1Key]; !ok {
		obj, err := sp.retypePageTable(req)
		if err != nil {
			return err
		}
		table := vm.NewTable(obj, 2)
		if err := v.InstallTable(uintptr(vaddr), 2, table); err != nil {
			return err
		}
		tr.l2[l1Key] = table
	}

	return nil
}

func (sp *Spawner) retypePageTable(req SpawnRequest) (*object.PageTableObj, error) {
	slot, offset := sp.takeStagingSlot(req)
	err := retype.Do(retype.Request{
		Untyped:          req.Untyped,
		Kind:             object.KindPageTable,
		TargetCNode:      req.Staging,
		TargetSlotOffset: offset,
		Count:            1,
	})
	if err != nil {
		return nil, err
	}
	return slot.Get().Object.(*object.PageTableObj), nil
}

func (sp *Spawner) retypePage(req SpawnRequest) (*object.PageObj, error) {
	slot, offset := sp.takeStagingSlot(req)
	err := retype.Do(retype.Request{
		Untyped:          req.Untyped,
		Kind:             object.KindPage,
		SizeBits:         12,
		TargetCNode:      req.Staging,
		TargetSlotOffset: offset,
		Count:            1,
	})
	if err != nil {
		return nil, err
	}
	return slot.Get().Object.(*object.PageObj), nil
}

func (sp *Spawner) mapSegment(req SpawnRequest, v *vm.VSpace, tr *installTracker, seg elfimage.Segment) ([]*object.PageObj, error) {
	base := seg.VAddr &^ (uint64(vm.PageSize) - 1)
	end := seg.VAddr + seg.MemSize
	var pages []*object.PageObj
	for pageVA := base; pageVA < end; pageVA += vm.PageSize {
		if err := sp.ensureTables(req, v, tr, pageVA); err != nil {
			return nil, err
		}
		page, err := sp.retypePage(req)
		if err != nil {
			return nil, err
		}
		if err := v.MapPage(uintptr(pageVA), page, seg.Rights, seg.Attr); err != nil {
			return nil, err
		}

		var chunk [vm.PageSize]byte
		for i := 0; i < vm.PageSize; i++ {
			off := int64(pageVA+uint64(i)) - int64(seg.VAddr)
			if off >= 0 && off < int64(seg.FileSize) {
				chunk[i] = seg.Data[off]
			}
		}
		sp.Phys.Write(page.PhysBase, vm.PageSize, 0, chunk[:])
		pages = append(pages, page)
	}
	return pages, nil
}

func (sp *Spawner) mapStack(req SpawnRequest, v *vm.VSpace, tr *installTracker) error {
	base := req.StackVA &^ (uint64(vm.PageSize) - 1)
	end := req.StackVA + req.StackSize
	stackRights := object.Rights{Read: true, Write: true}
	for pageVA := base; pageVA < end; pageVA += vm.PageSize {
		if err := sp.ensureTables(req, v, tr, pageVA); err != nil {
			return err
		}
		page, err := sp.retypePage(req)
		if err != nil {
			return err
		}
		if err := v.MapPage(uintptr(pageVA), page, stackRights, object.CacheCached); err != nil {
			return err
		}
	}
	return nil
}
