package capability

import "github.com/darmie/kaal/internal/object"

// Capability is an entry in a CSpace slot (spec.md §3). A Kind of
// object.KindNull marks the slot empty. Capabilities are never exposed to
// userspace directly — the syscall layer only ever hands out the (CNode,
// Index) pair that names a slot.
type Capability struct {
	Kind   object.Kind
	Object any // *object.TCB, *object.Endpoint, *object.UntypedRegion, ...

	Rights   object.Rights
	HasBadge bool
	Badge    uint64

	// Refs counts the live capabilities that alias the same Object
	// pointer (i.e. copies and mints of this capability, not objects
	// retype carved out of it). Shared by pointer across every copy/mint
	// of one capability; the object is destroyed when the count reaches
	// zero. A freshly retyped capability owns a private counter set to 1.
	Refs *int

	// Guard and GuardBits are only meaningful when Kind == object.KindCNode:
	// they are the guard this CNode capability presents to lookups that
	// recurse into it.
	Guard     uint64
	GuardBits uint8

	// CDT links, threaded through slot identities rather than capability
	// values so a capability's position in the tree survives being
	// moved between slots (spec.md §3 CDT invariant).
	Parent      *SlotRef
	FirstChild  *SlotRef
	NextSibling *SlotRef
	PrevSibling *SlotRef
}

// Empty reports whether the slot holds no capability.
func (c *Capability) Empty() bool {
	return c == nil || c.Kind == object.KindNull
}

// SlotRef names one slot in one CNode. CNode pointers are allocated once at
// retype time and never relocated, so a SlotRef remains valid for the
// CNode's entire lifetime — this is the arena-of-slot-records discipline
// from spec.md §9, specialized to Go's pointer stability instead of an
// explicit index table.
type SlotRef struct {
	CNode *CNode
	Index uint64
}

// Equal reports whether two slot references name the same slot.
func (s *SlotRef) Equal(o *SlotRef) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.CNode == o.CNode && s.Index == o.Index
}

// Get returns the capability stored at the slot.
func (s *SlotRef) Get() *Capability {
	return &s.CNode.Slots[s.Index]
}

// CNode is a fixed-size array of capability slots with a radix (slot count
// = 2^Radix) and a guard (spec.md §3, §4.3). The slot array is allocated
// once, at the size retype computed, and never grows — so SlotRef.CNode
// pointers and slot addresses are stable for the CNode's lifetime.
type CNode struct {
	Radix     uint8
	Guard     uint64
	GuardBits uint8
	Slots     []Capability
}

// NewCNode allocates a CNode with 2^radix slots, all empty.
func NewCNode(radix uint8, guard uint64, guardBits uint8) *CNode {
	return &CNode{
		Radix:     radix,
		Guard:     guard,
		GuardBits: guardBits,
		Slots:     make([]Capability, uint64(1)<<radix),
	}
}

// Slot returns a stable reference to index i within n.
func (n *CNode) Slot(i uint64) *SlotRef {
	return &SlotRef{CNode: n, Index: i}
}
