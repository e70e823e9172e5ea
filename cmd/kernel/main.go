//go:build qemuvirt && arm64

// Command kernel is KaaL's resident image: the arch bring-up, the
// exception-vector/syscall-dispatch wiring, the root-task bootstrap that
// turns the raw ELF bytes cmd/elfloader left untouched into a runnable
// first thread, and the scheduling loop that keeps it and every thread it
// spawns running. Nothing here is unit tested — SPEC_FULL.md §1 ("no Go
// runtime services are assumed to be safe across an exception boundary")
// puts this package in the freestanding domain; the algorithms it calls
// into (internal/roottask, internal/syscall, internal/sched, ...) are the
// hosted, tested half of the same logic.
package main

import (
	"bytes"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/darmie/kaal/internal/arch/arm64"
	"github.com/darmie/kaal/internal/bootinfo"
	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/elfimage"
	"github.com/darmie/kaal/internal/ipc"
	"github.com/darmie/kaal/internal/manifest"
	"github.com/darmie/kaal/internal/object"
	"github.com/darmie/kaal/internal/roottask"
	"github.com/darmie/kaal/internal/sched"
	"github.com/darmie/kaal/internal/syscall"
)

// manifest_start/manifest_end bound the component manifest YAML the
// linker script embeds alongside this image, the way kernel_image_start
// bounds the kernel binary in cmd/elfloader — one more range the build's
// linker script carves out rather than leaving this freestanding binary
// to read from a filesystem it doesn't have.
var (
	manifest_start [0]byte
	manifest_end   [0]byte
)

// context_switch is a hand-written assembly primitive (not shipped in
// this tree, the same way the teacher's mazboot/go_mazarin kernels lean on
// a handful of linker-provided primitives for what Go cannot express): it
// loads regs into the general-purpose/SP/ELR/SPSR registers and executes
// ERET, never returning to its caller directly — the next return into Go
// code is the following exception.
//
//go:linkname context_switch context_switch
//go:nosplit
func context_switch(regs *object.RegisterFile)

func rangeOf(start, end unsafe.Pointer) []byte {
	base := uintptr(start)
	limit := uintptr(end)
	if limit <= base {
		return nil
	}
	return unsafe.Slice((*byte)(start), int(limit-base))
}

// KernelMain is called directly from the assembly entry stub, carrying
// the six-register boot-info contract cmd/elfloader populated (spec.md
// §6): x0..x5 decode via bootinfo.FromRegisters into the root task's raw
// image bounds, entry VA, and the DTB location.
func KernelMain(x0, x1, x2, x3, x4, x5 uint64) {
	arm64.InitUART()
	arm64.Puts("kaal: kernel entry\n")

	info := bootinfo.FromRegisters(x0, x1, x2, x3, x4, x5)

	arm64.InitExceptions()
	arm64.Puts("kaal: exceptions installed\n")

	arm64.InitGIC()
	arm64.Puts("kaal: gic initialized\n")

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	entry := log.WithField("component", "kernel")

	scheduler := sched.New()
	engine := ipc.New(scheduler)
	dispatcher := syscall.NewDispatcher(scheduler, engine, entry)

	arm64.InstallHandler(&arm64.Handler{
		Dispatch: dispatcher.Dispatch,
		Fault:    dispatcher.HandleFault,
	})

	bootstrapRootTask(scheduler, dispatcher, info, entry)

	arm64.Puts("kaal: entering scheduling loop\n")
	for {
		tcb := scheduler.Next()
		if tcb == nil {
			arm64.Puts("kaal: no ready threads, halting\n")
			arm64.Halt()
		}
		context_switch(&tcb.Regs)
	}
}

// ramUntyped describes usable physical RAM beyond the end of the
// root-task's raw ELF bytes as a single Untyped capability, the seed
// internal/retype carves every other kernel object from — the
// freestanding counterpart of internal/roottask's test helper
// freshUntyped, sized from the real platform instead of a fixed constant.
func ramUntyped(physBase uint64) *capability.SlotRef {
	const sizeBits = 28 // 256 MiB, QEMU virt's default -m allotment
	staging := capability.NewCNode(1, 0, 0)
	region := &object.UntypedRegion{PhysBase: physBase, SizeBits: sizeBits}
	refs := 1
	staging.Slots[0] = capability.Capability{Kind: object.KindUntyped, Object: region, Refs: &refs}
	return staging.Slot(0)
}

// bootstrapRootTask turns the root-task ELF bytes cmd/elfloader left
// untouched at info.RootTaskImageStart..End into a resumed first thread
// on s, then hands it every capability its manifest entry asks for
// (spec.md §4.9 step 3, §6's "root task is launched with an initial
// CSpace"). This is the kernel-privileged half of root-task bring-up;
// seL4 does the same bootstrap work in its own kernel boot code rather
// than delegating it to the root task's own userspace, which is why this
// logic — unlike the components a running root task later spawns via
// syscalls — lives here instead of in a separate freestanding binary.
func bootstrapRootTask(s *sched.Scheduler, d *syscall.Dispatcher, info bootinfo.Info, log *logrus.Entry) {
	rawManifest := rangeOf(unsafe.Pointer(&manifest_start), unsafe.Pointer(&manifest_end))
	m, err := manifest.Parse(rawManifest)
	if err != nil {
		log.WithError(err).Error("root-task manifest parse failed")
		arm64.Puts("kaal: FATAL bad manifest\n")
		arm64.Halt()
	}
	if len(m.RootsOf()) == 0 {
		arm64.Puts("kaal: FATAL manifest has no root components\n")
		arm64.Halt()
	}

	untyped := ramUntyped(info.RootTaskImageEnd)
	staging := capability.NewCNode(10, 0, 0)
	phys := roottask.NewPhysMem()
	sp := roottask.NewSpawner(s, phys, 0)

	rawImage := rangeOf(unsafe.Pointer(uintptr(info.RootTaskImageStart)), unsafe.Pointer(uintptr(info.RootTaskImageEnd)))

	cfg := roottask.Config{
		Untyped:   untyped,
		Staging:   staging,
		Radix:     8,
		StackVA:   0x0020_0000_0000,
		StackSize: 1 << 16,
		LoadImage: func(binary string) (*elfimage.Image, error) {
			return elfimage.Load(bytes.NewReader(rawImage))
		},
	}

	results, err := roottask.Bootstrap(sp, m, cfg)
	if err != nil {
		log.WithError(err).Error("root-task bootstrap failed")
		arm64.Puts("kaal: FATAL root-task bootstrap failed\n")
		arm64.Halt()
	}
	for _, r := range results {
		d.Bind(r.TCB, r.CSpace, r.VSpace)
	}

	arm64.Puts("kaal: root task resumed\n")
}

// main exists only so the Go toolchain keeps KernelMain reachable; the
// boot stub calls KernelMain directly and never falls into this function.
func main() {
	KernelMain(0, 0, 0, 0, 0, 0)
	for {
	}
}
