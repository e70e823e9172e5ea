package capability

import "github.com/darmie/kaal/internal/object"

// Lookup resolves addr against root by walking a chain of CNodes, reading
// GuardBits then Radix bits per level, until the remaining bits equal zero
// (spec.md §4.3). bits is the number of low-order address bits the caller
// wants resolved, consumed most-significant first; bits of addr above them
// are ignored, matching "lookup(cspace, addr, bits)".
//
// All four of the original's named failure modes (invalid-root,
// guard-mismatch, depth-mismatch, empty-slot) are reported as
// KindNotFound — §7's error-kind list has no finer subdivision for lookup
// failures, so the Op string on the returned *Error carries which one fired.
func Lookup(root *CNode, addr uint64, bits uint) (*SlotRef, error) {
	if root == nil {
		return nil, newErr("lookup:invalid-root", KindNotFound)
	}
	if bits > 64 {
		return nil, newErr("lookup:invalid-argument", KindInvalidArgument)
	}

	cur := root
	cursor := uint(64) - bits
	remaining := bits

	for {
		if remaining < uint(cur.GuardBits) {
			return nil, newErr("lookup:depth-mismatch", KindNotFound)
		}
		if cur.GuardBits > 0 {
			prefix := extractBits(addr, cursor, uint(cur.GuardBits))
			if prefix != cur.Guard&maskBits(uint(cur.GuardBits)) {
				return nil, newErr("lookup:guard-mismatch", KindNotFound)
			}
			cursor += uint(cur.GuardBits)
			remaining -= uint(cur.GuardBits)
		}

		if remaining < uint(cur.Radix) {
			return nil, newErr("lookup:depth-mismatch", KindNotFound)
		}
		index := extractBits(addr, cursor, uint(cur.Radix))
		cursor += uint(cur.Radix)
		remaining -= uint(cur.Radix)

		if index >= uint64(len(cur.Slots)) {
			return nil, newErr("lookup:depth-mismatch", KindNotFound)
		}

		if remaining == 0 {
			return cur.Slot(index), nil
		}

		slotCap := &cur.Slots[index]
		if slotCap.Empty() {
			return nil, newErr("lookup:empty-slot", KindNotFound)
		}
		if slotCap.Kind != object.KindCNode {
			return nil, newErr("lookup:depth-mismatch", KindNotFound)
		}
		cur = slotCap.Object.(*CNode)
	}
}

func extractBits(addr uint64, offset, width uint) uint64 {
	if width == 0 {
		return 0
	}
	shift := 64 - offset - width
	return (addr >> shift) & maskBits(width)
}

func maskBits(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}
