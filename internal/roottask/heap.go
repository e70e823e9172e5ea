// Package roottask implements the kernel-privileged bootstrap logic that
// turns the root task's raw ELF bytes and a component manifest into the
// platform's first running threads (spec.md §4.9): a static heap for
// bookkeeping allocations, manifest-driven spawning of autostart children,
// and the capability grants each one's manifest entry asks for. cmd/kernel
// is the thin freestanding caller — everything that is pure Go data and
// algorithm lives here so it can be unit tested the way every other
// hosted package is.
package roottask

import "github.com/darmie/kaal/internal/capability"

// Heap is a bump-only allocator over a fixed-size backing range,
// adapted from the teacher's heap.go (mazarin/heap.go's segment-list
// design) but simplified per SPEC_FULL.md §4.9: the root task's own
// bookkeeping allocations (manifest records, spawn-time scratch
// state) never need to be freed individually — the root task either
// keeps running forever or the whole VSpace is torn down — so the
// teacher's free-list reclamation has nothing to reclaim here.
type Heap struct {
	base  uint64
	size  uint64
	mark  uint64
	align uint64
}

// NewHeap creates a bump allocator over [base, base+size), aligning
// every allocation up to align bytes (spec.md §4.9 step 1: "initialize
// a static heap for its own allocations").
func NewHeap(base, size, align uint64) *Heap {
	if align == 0 {
		align = 1
	}
	return &Heap{base: base, size: size, align: align}
}

// Alloc reserves n bytes and returns their base address, or false if
// the heap is exhausted.
func (h *Heap) Alloc(n uint64) (addr uint64, ok bool) {
	aligned := alignUp(h.mark, h.align)
	if aligned > h.size || n > h.size-aligned {
		return 0, false
	}
	h.mark = aligned + n
	return h.base + aligned, true
}

// Used reports how many bytes have been handed out so far, watermark
// included.
func (h *Heap) Used() uint64 {
	return h.mark
}

// Remaining reports how much space is left above the watermark.
func (h *Heap) Remaining() uint64 {
	if h.mark > h.size {
		return 0
	}
	return h.size - h.mark
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// newErr is a small local helper so roottask's own validation errors
// share the same Kind/Error shape as the rest of the hosted domain
// (capability.Error), rather than inventing a second error type.
func newErr(op string, kind capability.Kind) error {
	return &capability.Error{Kind: kind, Op: op}
}
