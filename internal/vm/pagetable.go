// Package vm implements the ARM64 four-level page-table walk and the
// memory_map/memory_unmap/memory_protect operations (spec.md §4.4). It
// models a table purely as Go data (object.PageTableObj plus a slot array
// of entries) so the walk and the "parent tables must already be mapped"
// invariant are unit-testable without real hardware. This package performs
// no TLB invalidation and keeps no record of one: UnmapPage only clears the
// leaf entry and the page's mapping fields. internal/arch/arm64 is the only
// package that pokes physical PTE bytes, and it does not call this package;
// the level-shift and attribute-bit layout is adapted from
// mazboot/golang/main/mmu.go.
package vm

import (
	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/object"
)

// Level shifts for a 4KB-granule, 48-bit VA, four-level ARM64 walk
// (spec.md §4.1 / §4.4), carried over unchanged from the teacher's mmu.go.
const (
	L0Shift = 39
	L1Shift = 30
	L2Shift = 21
	L3Shift = 12

	EntriesPerTable = 512
	PageSize        = 4096
)

// Entry is one slot of a Table: either empty, a table descriptor pointing
// at the next level, or (only at L3) a leaf mapping of a Page.
type Entry struct {
	Child *Table
	Leaf  *object.PageObj
}

func (e *Entry) empty() bool { return e == nil || (e.Child == nil && e.Leaf == nil) }

// Table is one level of a page-table walk, backed by the kernel object that
// retype carved it out of.
type Table struct {
	Obj     *object.PageTableObj
	Level   int // 0..2 for intermediate tables; 3 is represented by the parent's Entry.Leaf directly
	Entries [EntriesPerTable]Entry
}

// NewTable wraps a freshly retyped page-table object at the given level.
func NewTable(obj *object.PageTableObj, level int) *Table {
	return &Table{Obj: obj, Level: level}
}

// VSpace is a thread's or process's address space: an L0 root table plus
// the ASID the arch layer tags TLB entries with.
type VSpace struct {
	Root *object.VSpaceRoot
	L0   *Table
}

// NewVSpace wraps a freshly retyped VSpace-root capability.
func NewVSpace(root *object.VSpaceRoot) *VSpace {
	return &VSpace{Root: root, L0: &Table{Level: 0}}
}

func indexFor(vaddr uintptr, shift uint) int {
	return int((uint64(vaddr) >> shift) & (EntriesPerTable - 1))
}

// InstallTable maps an intermediate page-table capability into its parent
// at vaddr's index for the parent's level, the table analogue of
// memory_map (spec.md §4.4: "mapping a page requires that its chain of
// parent tables has been mapped first"). level is the level of the table
// being installed (1 or 2); its parent is looked up by walking from L0.
func (v *VSpace) InstallTable(vaddr uintptr, level int, table *Table) error {
	if level < 1 || level > 2 {
		return newErr("memory_map", capability.KindInvalidArgument)
	}
	parent, err := v.walkTo(vaddr, level-1, false)
	if err != nil {
		return err
	}
	idx := indexFor(vaddr, shiftFor(level-1))
	entry := &parent.Entries[idx]
	if !entry.empty() {
		return newErr("memory_map", capability.KindNotEmpty)
	}
	if table.Obj != nil && table.Obj.Mapped {
		return newErr("memory_map", capability.KindInvalidCapability)
	}
	entry.Child = table
	table.Level = level
	if table.Obj != nil {
		table.Obj.Mapped = true
	}
	return nil
}

func shiftFor(level int) uint {
	switch level {
	case 0:
		return L0Shift
	case 1:
		return L1Shift
	case 2:
		return L2Shift
	default:
		return L3Shift
	}
}

// walkTo walks from the L0 root down to the table at the given level,
// following the vaddr's index at each intermediate level. It fails with
// range-error if any intermediate table along the path has not yet been
// installed — per spec.md §4.4, map never auto-allocates parent tables.
func (v *VSpace) walkTo(vaddr uintptr, level int, forLeaf bool) (*Table, error) {
	cur := v.L0
	for l := 0; l < level; l++ {
		idx := indexFor(vaddr, shiftFor(l))
		next := cur.Entries[idx].Child
		if next == nil {
			return nil, newErr("memory_map", capability.KindRangeError)
		}
		cur = next
	}
	return cur, nil
}

// MapPage installs page at vaddr within v, at rights/attr. Fails if page is
// already mapped anywhere (spec.md §4.4 invariant: a page capability tracks
// at most one mapping) or if the L2 table for vaddr is not yet installed.
func (v *VSpace) MapPage(vaddr uintptr, page *object.PageObj, rights object.Rights, attr object.CacheAttr) error {
	if vaddr%PageSize != 0 {
		return newErr("memory_map", capability.KindAlignmentError)
	}
	if page.Mapped {
		return newErr("memory_map", capability.KindInvalidCapability)
	}

	l2, err := v.walkTo(vaddr, 2, true)
	if err != nil {
		return err
	}
	idx := indexFor(vaddr, L3Shift)
	entry := &l2.Entries[idx]
	if !entry.empty() {
		return newErr("memory_map", capability.KindNotEmpty)
	}

	entry.Leaf = page
	page.Mapped = true
	page.VSpaceID = v.Root.ASID
	page.VAddr = vaddr
	page.Rights = rights
	page.Attr = attr
	return nil
}

// UnmapPage clears page's leaf entry and its mapping bookkeeping. A
// subsequent map(vaddr), unmap, map(vaddr) round trip leaves the page in
// the same observable state as a single map (spec.md §8, round-trip
// property): MapPage after UnmapPage re-walks from L0 and re-populates the
// same leaf slot.
func (v *VSpace) UnmapPage(page *object.PageObj) error {
	if !page.Mapped {
		return nil
	}
	l2, err := v.walkTo(page.VAddr, 2, true)
	if err != nil {
		return err
	}
	idx := indexFor(page.VAddr, L3Shift)
	l2.Entries[idx] = Entry{}

	page.Mapped = false
	page.VAddr = 0
	page.VSpaceID = 0
	return nil
}

// Protect updates the rights of an already-mapped page in place
// (spec.md §4.4 memory_protect).
func (v *VSpace) Protect(page *object.PageObj, rights object.Rights) error {
	if !page.Mapped {
		return newErr("memory_protect", capability.KindInvalidCapability)
	}
	page.Rights = rights
	return nil
}

func newErr(op string, kind capability.Kind) error {
	return &capability.Error{Kind: kind, Op: op}
}
