// Package retype implements the sole primitive that creates kernel objects:
// carving zero or more typed objects out of an untyped region into
// caller-chosen CSpace slots (spec.md §4.5).
package retype

import (
	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/object"
)

// Request names one retype call's arguments (spec.md §4.5 signature:
// retype(untyped_cap, type, size_bits, target_cnode, target_slot_offset, count)).
type Request struct {
	Untyped          *capability.SlotRef
	Kind             object.Kind
	SizeBits         uint
	TargetCNode      *capability.CNode
	TargetSlotOffset uint64
	Count            uint64
}

// Do executes one retype request. On any failure partway through a batch it
// rolls back every slot already written and rewinds the untyped's
// watermark, so a failed retype leaves no observable state change
// (spec.md §4.5 step 4, §7 propagation policy).
func Do(req Request) error {
	untypedCap := req.Untyped.Get()
	if untypedCap.Empty() || untypedCap.Kind != object.KindUntyped {
		return newErr("retype", capability.KindInvalidCapability)
	}
	region, ok := untypedCap.Object.(*object.UntypedRegion)
	if !ok {
		return newErr("retype", capability.KindInvalidCapability)
	}

	if req.Kind == object.KindNull {
		return newErr("retype", capability.KindInvalidArgument)
	}
	if region.Device && !object.DeviceCompatible(req.Kind) {
		return newErr("retype", capability.KindInvalidArgument)
	}

	objSize, ok := object.ObjectSize(req.Kind, req.SizeBits)
	if !ok {
		return newErr("retype", capability.KindInvalidArgument)
	}
	if req.Count == 0 {
		return nil
	}

	if req.TargetSlotOffset+req.Count < req.TargetSlotOffset ||
		req.TargetSlotOffset+req.Count > uint64(len(req.TargetCNode.Slots)) {
		return newErr("retype", capability.KindRangeError)
	}

	align := objSize
	if align == 0 {
		align = 1
	}
	total := objSize * req.Count
	watermarkBefore := region.Watermark
	offset, ok := region.Reserve(total, align)
	if !ok {
		return newErr("retype", capability.KindRangeError)
	}

	written := make([]*capability.SlotRef, 0, req.Count)
	for i := uint64(0); i < req.Count; i++ {
		dst := req.TargetCNode.Slot(req.TargetSlotOffset + i)
		if !dst.Get().Empty() {
			rollback(written, region, watermarkBefore)
			return newErr("retype", capability.KindNotEmpty)
		}

		physBase := region.PhysBase + offset + objSize*i

		refs := 1
		dst.Get().Kind = req.Kind
		dst.Get().Object = newInstance(req.Kind, req.SizeBits, physBase)
		dst.Get().Rights = object.Rights{Read: true, Write: true, Grant: true, Exec: true}
		dst.Get().Refs = &refs

		capability.AttachChild(req.Untyped, dst)
		written = append(written, dst)
	}

	return nil
}

func rollback(written []*capability.SlotRef, region *object.UntypedRegion, watermark uint64) {
	for _, s := range written {
		capability.DetachChild(s)
		*s.Get() = capability.Capability{}
	}
	region.Rewind(watermark)
}

// newInstance builds the zeroed kernel object a retype of kind carves out,
// stamping physBase (this instance's offset within the untyped region plus
// the region's own physical base) onto every object kind that tracks one,
// so a VSpaceRoot/PageTable/Page is immediately usable by internal/vm
// without a separate "assign an address" step.
func newInstance(kind object.Kind, sizeBits uint, physBase uint64) any {
	switch kind {
	case object.KindTCB:
		return object.NewTCB()
	case object.KindEndpoint:
		return object.NewEndpoint()
	case object.KindNotification:
		return object.NewNotification()
	case object.KindCNode:
		return capability.NewCNode(uint8(sizeBits), 0, 0)
	case object.KindVSpaceRoot:
		return &object.VSpaceRoot{PhysBase: physBase}
	case object.KindPageTable:
		return &object.PageTableObj{PhysBase: physBase}
	case object.KindPage:
		return &object.PageObj{PhysBase: physBase}
	case object.KindIRQControl:
		return object.NewIRQControl()
	case object.KindIRQHandler:
		return &object.IRQHandler{}
	default:
		return nil
	}
}

func newErr(op string, kind capability.Kind) error {
	return &capability.Error{Kind: kind, Op: op}
}
