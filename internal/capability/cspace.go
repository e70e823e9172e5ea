package capability

import "github.com/darmie/kaal/internal/object"

// Finalizer dequeues every thread blocked on a kernel object immediately
// before that object's last capability is destroyed, returning the threads
// so the caller can transition each to inactive and report ipc-cancelled
// (spec.md §4.3's tie-break policy). internal/ipc implements this; passing
// it as a parameter rather than importing internal/ipc here keeps the
// capability package free of an IPC dependency.
type Finalizer interface {
	Finalize(kind object.Kind, obj any) []*object.TCB
}

// badgeable reports whether kind may carry a badge (spec.md §4.3 mint:
// "badging is only legal for endpoints and notifications").
func badgeable(kind object.Kind) bool {
	return kind == object.KindEndpoint || kind == object.KindNotification
}

// Copy writes dst with a capability identical to src but with rights
// narrowed to the intersection of src's rights and the requested rights
// (spec.md §4.3).
func Copy(src, dst *SlotRef, rights object.Rights) error {
	srcCap := src.Get()
	if srcCap.Empty() {
		return newErr("copy", KindInvalidCapability)
	}
	dstCap := dst.Get()
	if !dstCap.Empty() {
		return newErr("copy", KindNotEmpty)
	}

	*dstCap = *srcCap
	dstCap.Rights = intersect(srcCap.Rights, rights)
	dstCap.HasBadge = false
	dstCap.Badge = 0
	dstCap.Parent = nil
	dstCap.FirstChild = nil
	dstCap.NextSibling = nil
	dstCap.PrevSibling = nil

	if srcCap.Refs != nil {
		*srcCap.Refs++
	}

	linkChild(src, dst)
	return nil
}

// Mint is Copy plus a badge assignment; only legal for endpoint and
// notification capabilities (spec.md §4.3).
func Mint(src, dst *SlotRef, rights object.Rights, badge uint64) error {
	srcCap := src.Get()
	if srcCap.Empty() {
		return newErr("mint", KindInvalidCapability)
	}
	if !badgeable(srcCap.Kind) {
		return newErr("mint", KindInvalidCapability)
	}
	if err := Copy(src, dst, rights); err != nil {
		return err
	}
	dstCap := dst.Get()
	dstCap.HasBadge = true
	dstCap.Badge = badge
	return nil
}

// Move transfers src's capability (and its CDT position) into dst, leaving
// src empty (spec.md §4.3).
func Move(src, dst *SlotRef) error {
	srcCap := src.Get()
	if srcCap.Empty() {
		return newErr("move", KindInvalidCapability)
	}
	dstCap := dst.Get()
	if !dstCap.Empty() {
		return newErr("move", KindNotEmpty)
	}

	*dstCap = *srcCap
	*srcCap = Capability{}

	reparentOntoParent(src, dst)
	return nil
}

// Delete empties slot. If this was the last capability to the object, the
// object is finalized (any blocked waiters cancelled, per finalizer) and
// destroyed. Deleting a mapped page fails with delete-first (spec.md
// §4.3); no other kind is refused, so a CNode or untyped that still has
// CDT children is deleted like any other capability.
func Delete(slot *SlotRef, finalizer Finalizer) error {
	cap := slot.Get()
	if cap.Empty() {
		return nil
	}

	if cap.Kind == object.KindPage {
		if page, ok := cap.Object.(*object.PageObj); ok && page.Mapped {
			return newErr("delete", KindDeleteFirst)
		}
	}

	kind, obj, refs := cap.Kind, cap.Object, cap.Refs
	lastRef := refs == nil || *refs <= 1
	if refs != nil {
		*refs--
	}

	unlink(slot)
	*cap = Capability{}

	if lastRef && finalizer != nil {
		finalizer.Finalize(kind, obj)
	}
	return nil
}

// Revoke deletes every descendant of slot, in post-order, then leaves slot
// itself intact but with its child list empty (spec.md §4.3). The
// capability named by slot is not itself deleted — only its subtree.
func Revoke(slot *SlotRef, finalizer Finalizer) error {
	cap := slot.Get()
	if cap.Empty() {
		return newErr("revoke", KindInvalidCapability)
	}

	for _, d := range descendantsPostOrder(slot) {
		if err := Delete(d, finalizer); err != nil {
			return err
		}
	}

	// If the untyped itself backs this capability, revoking it also
	// resets the watermark (spec.md §3 untyped invariant).
	if cap.Kind == object.KindUntyped {
		if u, ok := cap.Object.(*object.UntypedRegion); ok {
			u.Reset()
		}
	}
	return nil
}

func intersect(a, b object.Rights) object.Rights {
	return object.Rights{
		Read:  a.Read && b.Read,
		Write: a.Write && b.Write,
		Grant: a.Grant && b.Grant,
		Exec:  a.Exec && b.Exec,
	}
}
