//go:build qemuvirt && arm64

package arm64

import (
	"unsafe"

	"github.com/darmie/kaal/internal/object"
)

// Page-table entry bits (spec.md §4.4; §2 component 1 "MMU setup"),
// carried over from the teacher's mmu.go with the same MAIR index
// assignment: 0 normal cacheable, 1 device. No normal non-cacheable index
// is programmed (see mairNormalDevice).
const (
	pteValid = 1 << 0
	pteTable = 1 << 1
	pteAF    = 1 << 10
	pteUXN   = 1 << 54
	pteAttrNormal = 0 << 2
	pteAttrDevice = 1 << 2
	pteSHInner    = 3 << 8
	pteAPRW       = 0 << 6
	pteAPRO       = 2 << 6
)

const pteAddrMask = 0x0000fffffffff000

// writePTE stores one 8-byte descriptor at entry index of the 4KB table
// at physical address tableBase. The hosted internal/vm package
// models the same tree in pure Go for unit testing; this file is the
// one place that also pokes the real PTE bytes, the split spec.md §9
// calls for in "arch layer mirrors the hosted walk but never replaces
// it".
func writePTE(tableBase uintptr, index int, val uint64) {
	addr := tableBase + uintptr(index)*8
	*(*uint64)(unsafe.Pointer(addr)) = val
}

func readPTE(tableBase uintptr, index int) uint64 {
	addr := tableBase + uintptr(index)*8
	return *(*uint64)(unsafe.Pointer(addr))
}

// InstallTable writes a table descriptor at parent[index] pointing at
// childPhys, mirroring vm.VSpace.InstallTable's hosted bookkeeping.
func InstallTable(parentPhys uintptr, index int, childPhys uintptr) {
	writePTE(parentPhys, index, uint64(childPhys)&pteAddrMask|pteValid|pteTable)
}

// MapLeaf writes an L3 page descriptor for paddr into l2TableBase at
// index, with the access/cacheability bits implied by rights/attr —
// the physical-memory side of vm.VSpace.MapPage.
func MapLeaf(l2TableBase uintptr, index int, paddr uintptr, rights object.Rights, attr object.CacheAttr) {
	entry := uint64(paddr)&pteAddrMask | pteValid | pteTable | pteAF | pteSHInner

	if attr == object.CacheUncached {
		entry |= pteAttrDevice
	} else {
		entry |= pteAttrNormal
	}

	if rights.Write {
		entry |= pteAPRW
	} else {
		entry |= pteAPRO
	}
	if !rights.Exec {
		entry |= pteUXN
	}

	writePTE(l2TableBase, index, entry)
}

// UnmapLeaf clears the L3 entry at index, the physical counterpart of
// vm.VSpace.UnmapPage.
func UnmapLeaf(l2TableBase uintptr, index int) {
	writePTE(l2TableBase, index, 0)
}

// InvalidateTLB flushes the whole TLB for the inner-shareable domain
// after any mapping change, via the standard `tlbi vmalle1is; dsb ish;
// isb` sequence. Declared via linkname since it is three instructions
// of assembly, not expressible in portable Go.
//
//go:linkname invalidate_tlb_all invalidate_tlb_all
//go:nosplit
func invalidate_tlb_all()

// InvalidateTLB is the exported wrapper internal callers use.
func InvalidateTLB() {
	invalidate_tlb_all()
}

// mairNormalDevice is MAIR_EL1 with index 0 = Normal write-back cacheable
// (0xFF) and index 1 = Device-nGnRnE (0x00), matching pteAttrNormal/
// pteAttrDevice's index assignment above and the teacher's mmu.go.
const mairNormalDevice = 0xFF

//go:linkname write_mair_el1 write_mair_el1
//go:nosplit
func write_mair_el1(v uint64)

//go:linkname write_tcr_el1 write_tcr_el1
//go:nosplit
func write_tcr_el1(v uint64)

//go:linkname write_ttbr0_el1 write_ttbr0_el1
//go:nosplit
func write_ttbr0_el1(v uint64)

//go:linkname read_sctlr_el1 read_sctlr_el1
//go:nosplit
func read_sctlr_el1() uint64

//go:linkname write_sctlr_el1 write_sctlr_el1
//go:nosplit
func write_sctlr_el1(v uint64)

//go:linkname isb isb
//go:nosplit
func isb()

//go:linkname dsb dsb
//go:nosplit
func dsb()

// tcrValue builds TCR_EL1 for a 48-bit (T0SZ=16), inner/outer write-back,
// inner-shareable single-range (TTBR1 disabled) translation setup —
// spec.md §2 component 1's "MAIR/TCR/SCTLR" contract, values carried over
// from the teacher's enableMMU.
func tcrValue() uint64 {
	const (
		t0sz  = 16 << 0
		irgn0 = 1 << 8
		orgn0 = 1 << 10
		sh0   = 3 << 12
		epd1  = 1 << 23
		ips   = 2 << 32
	)
	return t0sz | irgn0 | orgn0 | sh0 | epd1 | ips
}

// EnableMMU points TTBR0_EL1 at the identity-mapped L0 table ttbr0Phys
// already built (by cmd/elfloader's identity-map pass), programs
// MAIR_EL1/TCR_EL1, and sets SCTLR_EL1.M, enabling translation
// (spec.md §4.1 "MAIR/TCR/SCTLR" / §2 component 1).
func EnableMMU(ttbr0Phys uintptr) {
	write_mair_el1(mairNormalDevice)
	write_tcr_el1(tcrValue())
	isb()
	write_ttbr0_el1(uint64(ttbr0Phys))
	dsb()

	sctlr := read_sctlr_el1()
	sctlr |= 1 << 0  // M: MMU enable
	sctlr &^= 1 << 2 // C: data cache off until the kernel proper decides otherwise
	sctlr &^= 1 << 12

	dsb()
	isb()
	write_sctlr_el1(sctlr)
	isb()
	invalidate_tlb_all()
	dsb()
}
