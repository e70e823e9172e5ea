// Package object defines the tagged kernel object model: the concrete
// storage every capability ultimately points at. Objects are created only
// by retype (internal/retype) and destroyed only when their originating
// untyped region is revoked.
package object

// Kind tags the object a capability refers to, mirroring the data model in
// the spec's §3. Null is the zero value so an empty capability slot and an
// empty Kind agree.
type Kind uint8

const (
	KindNull Kind = iota
	KindUntyped
	KindCNode
	KindTCB
	KindEndpoint
	KindNotification
	KindVSpaceRoot
	KindPageTable
	KindPage
	KindIRQControl
	KindIRQHandler
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUntyped:
		return "untyped"
	case KindCNode:
		return "cnode"
	case KindTCB:
		return "tcb"
	case KindEndpoint:
		return "endpoint"
	case KindNotification:
		return "notification"
	case KindVSpaceRoot:
		return "vspace-root"
	case KindPageTable:
		return "page-table"
	case KindPage:
		return "page"
	case KindIRQControl:
		return "irq-control"
	case KindIRQHandler:
		return "irq-handler"
	case KindReply:
		return "reply"
	default:
		return "unknown"
	}
}

// Sizeable objects (untyped, CNode, page) carry a size_bits parameter at
// retype time; fixed-size objects (page-table, TCB, endpoint, notification,
// VSpace root, IRQ-control, IRQ-handler, reply) ignore it. ObjectSize
// reports the storage, in bytes, that retype must reserve for one instance.
func ObjectSize(kind Kind, sizeBits uint) (uint64, bool) {
	const bytesPerSlot = 64

	switch kind {
	case KindUntyped, KindPage:
		return uint64(1) << sizeBits, true
	case KindCNode:
		// sizeBits is the CNode's radix: slot count = 2^sizeBits.
		return (uint64(1) << sizeBits) * bytesPerSlot, true
	case KindPageTable:
		return 4096, true
	case KindTCB:
		return 1024, true
	case KindEndpoint:
		return 64, true
	case KindNotification:
		return 64, true
	case KindVSpaceRoot:
		return 4096, true
	case KindIRQControl, KindIRQHandler, KindReply:
		return 0, true
	default:
		return 0, false
	}
}

// DeviceCompatible reports whether kind may be retyped from a device-untyped
// region. Device memory cannot back objects that require normal, cacheable
// storage for kernel metadata: TCB, endpoint, and notification are forbidden
// per spec.md §4.5, and CNode and VSpace root are forbidden as well;
// page-table objects are deliberately left to the
// implementer's resolved Open Question (b): KaaL permits them, since a
// device-backed page table is just another array of PTEs and the walker
// does not care which untyped it came from.
func DeviceCompatible(kind Kind) bool {
	switch kind {
	case KindTCB, KindEndpoint, KindNotification, KindCNode, KindVSpaceRoot:
		return false
	default:
		return true
	}
}
