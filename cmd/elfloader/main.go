//go:build qemuvirt && arm64

// Command elfloader is the first-stage binary QEMU's firmware hands
// control to: it parses the flattened device tree to learn the platform's
// RAM extent, relocates the embedded kernel image to its link address,
// identity-maps enough of physical memory to run with the MMU on, and
// jumps into the kernel with the six-register boot-info contract
// populated (spec.md §6, §4.1). The root-task's ELF bytes are left
// exactly where the build placed them — never relocated; only their ELF
// header is read, for the entry VA passed on in x3 — since turning them
// into a runnable thread is the kernel's own bootstrap work
// (cmd/kernel calls into internal/roottask for that), not this stage's.
// Like cmd/kernel, nothing here is unit tested — SPEC_FULL.md §1 puts it
// in the freestanding domain; the pure logic it leans on
// (internal/bootinfo's FDT walker, internal/elfimage's ELF reader) lives
// in hosted packages and is tested there instead.
package main

import (
	"bytes"
	"unsafe"

	"github.com/darmie/kaal/internal/arch/arm64"
	"github.com/darmie/kaal/internal/bootinfo"
	"github.com/darmie/kaal/internal/elfimage"
	"github.com/darmie/kaal/internal/object"
)

var identityMapRights = object.Rights{Read: true, Write: true, Exec: true}

// Linker-provided symbols bounding the embedded kernel and root-task ELF
// images, the way exception_vectors_start names the vector table's
// address in internal/arch/arm64/exceptions.go — the build's linker script
// places the two raw ELF files at these ranges rather than leaving the
// elfloader to fetch them from a filesystem it doesn't have. The three
// id_map_* symbols name statically reserved 4KB-aligned scratch pages the
// linker script sets aside for the identity-map L0/L1/L2 tables built
// below.
var (
	kernel_image_start   [0]byte
	kernel_image_end     [0]byte
	roottask_image_start [0]byte
	roottask_image_end   [0]byte
	id_map_l0            [0]byte
	id_map_l1            [0]byte
	id_map_l2            [0]byte
)

//go:linkname jump_to_kernel jump_to_kernel
//go:nosplit
func jump_to_kernel(entry uintptr, x0, x1, x2, x3, x4, x5 uint64)

func byteSliceAt(ptr unsafe.Pointer, n int) []byte {
	if n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), n)
}

func rangeOf(start, end unsafe.Pointer) []byte {
	base := uintptr(start)
	limit := uintptr(end)
	if limit <= base {
		return nil
	}
	return byteSliceAt(start, int(limit-base))
}

// loadKernelImage parses the kernel's raw ELF bytes and copies each
// PT_LOAD segment to its physical link address (this elfloader runs with
// the MMU off and link addresses equal physical addresses, per spec.md
// §4.1's "identity-mapped L0/L1/L2" contract), zero-filling the BSS tail
// of each segment. The root-task image is never relocated this way: its
// raw bytes are handed to the kernel as-is, to be parsed and retyped into
// capability-backed pages by internal/roottask instead.
func loadKernelImage(raw []byte) (*elfimage.Image, error) {
	img, err := elfimage.Load(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	for _, seg := range img.Segments {
		dst := byteSliceAt(unsafe.Pointer(uintptr(seg.VAddr)), int(seg.MemSize))
		n := copy(dst, seg.Data)
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
	}
	return img, nil
}

// KernelMain receives the standard ARM64 Linux-style boot registers QEMU
// sets before jumping to a loaded kernel image: x0 = DTB physical address,
// x1..x3 reserved zero. The elfloader only ever reads x0.
func KernelMain(dtbPtr, r1, r2 uint32) {
	arm64.InitUART()
	arm64.Puts("elfloader: entry\n")

	dtb := rangeOf(unsafe.Pointer(uintptr(dtbPtr)), unsafe.Pointer(uintptr(dtbPtr)+0x10000))

	addressCells, sizeCells, err := bootinfo.ParseRootCells(dtb)
	if err != nil || addressCells != 2 || sizeCells != 2 {
		arm64.Puts("elfloader: FATAL unsupported #address-cells/#size-cells\n")
		arm64.Halt()
	}

	regions, err := bootinfo.ParseMemoryRegions(dtb)
	if err != nil || len(regions) == 0 {
		arm64.Puts("elfloader: FATAL no memory regions in DTB\n")
		arm64.Halt()
	}
	ram := regions[0]
	arm64.Puts("elfloader: ram base 0x")
	arm64.PutHex64(ram.Base)
	arm64.Puts(" size 0x")
	arm64.PutHex64(ram.Size)
	arm64.Puts("\n")

	kernelRaw := rangeOf(unsafe.Pointer(&kernel_image_start), unsafe.Pointer(&kernel_image_end))
	roottaskStart := uintptr(unsafe.Pointer(&roottask_image_start))
	roottaskEnd := uintptr(unsafe.Pointer(&roottask_image_end))
	if kernelRaw == nil || roottaskEnd <= roottaskStart {
		arm64.Puts("elfloader: FATAL empty embedded image\n")
		arm64.Halt()
	}

	kernelImg, err := loadKernelImage(kernelRaw)
	if err != nil {
		arm64.Puts("elfloader: FATAL kernel image load failed\n")
		arm64.Halt()
	}
	arm64.Puts("elfloader: kernel image loaded\n")

	// Read the root-task ELF header to learn its entry VA without
	// relocating any of its segments — those stay exactly where they
	// were placed until the kernel retypes fresh pages for them.
	roottaskRaw := rangeOf(unsafe.Pointer(&roottask_image_start), unsafe.Pointer(&roottask_image_end))
	roottaskImg, err := elfimage.Load(bytes.NewReader(roottaskRaw))
	if err != nil {
		arm64.Puts("elfloader: FATAL root-task image header invalid\n")
		arm64.Halt()
	}

	identityMap(uintptr(ram.Base), uintptr(ram.Size))
	arm64.Puts("elfloader: identity map installed\n")

	l0 := uintptr(unsafe.Pointer(&id_map_l0))
	arm64.EnableMMU(l0)
	arm64.Puts("elfloader: mmu enabled, jumping to kernel\n")

	// Six-register handoff per bootinfo.FromRegisters' x0..x5 ordering:
	// root-task image start/end (still raw, untouched), a zero PV offset
	// (identity-mapped, so physical and virtual coincide), the root
	// task's own entry VA, and the DTB location/size.
	info := bootinfo.Info{
		RootTaskImageStart: uint64(roottaskStart),
		RootTaskImageEnd:   uint64(roottaskEnd),
		PVOffset:           0,
		RootTaskEntryVA:    roottaskImg.Entry,
		DTBPhysAddr:        uint64(dtbPtr),
		DTBSize:            uint64(len(dtb)),
	}

	jump_to_kernel(uintptr(kernelImg.Entry),
		info.RootTaskImageStart, info.RootTaskImageEnd, info.PVOffset,
		info.RootTaskEntryVA, info.DTBPhysAddr, info.DTBSize)

	arm64.Halt()
}

// identityMap covers [base, base+size) 2MB at a time, one L2 block per
// iteration, reusing the single pre-linked L0->L1->L2 chain at
// id_map_l0/l1/l2 (spec.md §4.1: "identity-mapped L0/L1/L2" — the
// elfloader runs with the MMU off until this call returns, so it needs no
// more than enough mapping to cover reported RAM, which is where the
// relocated kernel, the still-raw root-task bytes, and the tables
// themselves all live).
func identityMap(base, size uintptr) {
	const blockSize = 1 << 21 // 2MB, one L2 entry

	l0 := uintptr(unsafe.Pointer(&id_map_l0))
	l1 := uintptr(unsafe.Pointer(&id_map_l1))
	l2 := uintptr(unsafe.Pointer(&id_map_l2))

	arm64.InstallTable(l0, 0, l1)
	arm64.InstallTable(l1, int((base>>30)&0x1ff), l2)

	count := int((size + blockSize - 1) / blockSize)
	for i := 0; i < count; i++ {
		paddr := base + uintptr(i)*blockSize
		idx := int((paddr >> 21) & 0x1ff)
		arm64.MapLeaf(l2, idx, paddr, identityMapRights, object.CacheCached)
	}
}

// main exists only so the Go toolchain keeps KernelMain reachable; the
// boot stub calls KernelMain directly and never falls into this function.
func main() {
	KernelMain(0, 0, 0)
	for {
	}
}
