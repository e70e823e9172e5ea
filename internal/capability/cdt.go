package capability

// AttachChild makes child a CDT child of parent. internal/retype calls this
// directly (rather than going through Copy/Mint) because a freshly retyped
// object's capability is brand new, not a copy of parent's capability — the
// linkage is the same tree-edge either way.
func AttachChild(parent, child *SlotRef) {
	linkChild(parent, child)
}

// DetachChild removes slot from its parent's CDT child list without
// clearing the slot, exposed for internal/retype's rollback path.
func DetachChild(slot *SlotRef) {
	unlink(slot)
}

// linkChild inserts child as a CDT child of parent, at the head of parent's
// sibling list. Acyclicity holds because a capability is only ever linked
// once, at the moment it is created by retype/mint/copy, and a slot can
// hold at most one capability at a time (spec.md §3 CDT invariant).
func linkChild(parent, child *SlotRef) {
	childCap := child.Get()
	childCap.Parent = parent

	parentCap := parent.Get()
	if parentCap.FirstChild != nil {
		oldHead := parentCap.FirstChild
		oldHead.Get().PrevSibling = child
		childCap.NextSibling = oldHead
	}
	parentCap.FirstChild = child
}

// unlink removes slot from its parent's child list, patching sibling links.
// It does not clear slot.Parent itself; callers clear the whole slot.
func unlink(slot *SlotRef) {
	cap := slot.Get()

	if cap.PrevSibling != nil {
		cap.PrevSibling.Get().NextSibling = cap.NextSibling
	} else if cap.Parent != nil {
		cap.Parent.Get().FirstChild = cap.NextSibling
	}
	if cap.NextSibling != nil {
		cap.NextSibling.Get().PrevSibling = cap.PrevSibling
	}
}

// children returns the direct CDT children of slot, in sibling order.
func children(slot *SlotRef) []*SlotRef {
	var out []*SlotRef
	for cur := slot.Get().FirstChild; cur != nil; cur = cur.Get().NextSibling {
		out = append(out, cur)
	}
	return out
}

// descendantsPostOrder returns every descendant of slot (not including slot
// itself) in post-order: children of a node before the node, and within a
// node's children, in sibling-list order (FirstChild, then each
// NextSibling), each child's whole subtree before the next child — so a caller that
// deletes in this order never deletes a parent before its children
// (spec.md §4.3 revoke: "deleted in post-order").
func descendantsPostOrder(slot *SlotRef) []*SlotRef {
	var out []*SlotRef
	var walk func(s *SlotRef)
	walk = func(s *SlotRef) {
		for _, c := range children(s) {
			walk(c)
			out = append(out, c)
		}
	}
	walk(slot)
	return out
}

// reparentOntoParent is used by move: child keeps its CDT position, but the
// slot it lives in changes. Since CDT links are keyed by SlotRef, moving a
// capability to a new slot requires updating every link that names the old
// SlotRef to name the new one instead.
func reparentOntoParent(oldSlot, newSlot *SlotRef) {
	cap := newSlot.Get()

	if cap.Parent != nil {
		p := cap.Parent.Get()
		if p.FirstChild.Equal(oldSlot) {
			p.FirstChild = newSlot
		}
	}
	if cap.PrevSibling != nil {
		cap.PrevSibling.Get().NextSibling = newSlot
	}
	if cap.NextSibling != nil {
		cap.NextSibling.Get().PrevSibling = newSlot
	}
	for _, c := range children(newSlot) {
		c.Get().Parent = newSlot
	}
}
