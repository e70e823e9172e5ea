package manifest

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CapabilityRequest is one decoded entry of a manifest record's
// `capabilities` list (spec.md §6): a colon-separated string naming a
// capability the root task must grant the spawned component before
// resuming its TCB.
type CapabilityRequest struct {
	Kind CapabilityKind

	// MemoryMap fields, set when Kind == CapMemoryMap.
	Addr uint64
	Size uint64

	// IRQ field, set when Kind == CapInterrupt.
	IRQ uint32

	// Name field, set when Kind == CapIPC.
	Name string
}

// CapabilityKind enumerates the six request forms spec.md §6 names.
type CapabilityKind uint8

const (
	CapMemoryMap CapabilityKind = iota
	CapInterrupt
	CapIPC
	CapProcessCreate
	CapProcessDestroy
	CapMemoryAllocate
)

// ParseCapability decodes one `capabilities` list entry. The
// recognized forms are exactly spec.md §6's: `memory_map:ADDR:SIZE`,
// `interrupt:IRQ`, `ipc:NAME`, `process:create`, `process:destroy`,
// `memory:allocate`.
func ParseCapability(s string) (CapabilityRequest, error) {
	parts := strings.Split(s, ":")
	if len(parts) == 0 {
		return CapabilityRequest{}, errors.Errorf("manifest: empty capability string")
	}

	switch parts[0] {
	case "memory_map":
		if len(parts) != 3 {
			return CapabilityRequest{}, errors.Errorf("manifest: malformed memory_map capability %q", s)
		}
		addr, err := strconv.ParseUint(parts[1], 0, 64)
		if err != nil {
			return CapabilityRequest{}, errors.Wrapf(err, "manifest: memory_map address %q", s)
		}
		size, err := strconv.ParseUint(parts[2], 0, 64)
		if err != nil {
			return CapabilityRequest{}, errors.Wrapf(err, "manifest: memory_map size %q", s)
		}
		return CapabilityRequest{Kind: CapMemoryMap, Addr: addr, Size: size}, nil

	case "interrupt":
		if len(parts) != 2 {
			return CapabilityRequest{}, errors.Errorf("manifest: malformed interrupt capability %q", s)
		}
		irq, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return CapabilityRequest{}, errors.Wrapf(err, "manifest: interrupt number %q", s)
		}
		return CapabilityRequest{Kind: CapInterrupt, IRQ: uint32(irq)}, nil

	case "ipc":
		if len(parts) != 2 || parts[1] == "" {
			return CapabilityRequest{}, errors.Errorf("manifest: malformed ipc capability %q", s)
		}
		return CapabilityRequest{Kind: CapIPC, Name: parts[1]}, nil

	case "process":
		if len(parts) != 2 {
			return CapabilityRequest{}, errors.Errorf("manifest: malformed process capability %q", s)
		}
		switch parts[1] {
		case "create":
			return CapabilityRequest{Kind: CapProcessCreate}, nil
		case "destroy":
			return CapabilityRequest{Kind: CapProcessDestroy}, nil
		default:
			return CapabilityRequest{}, errors.Errorf("manifest: unknown process capability %q", s)
		}

	case "memory":
		if len(parts) != 2 || parts[1] != "allocate" {
			return CapabilityRequest{}, errors.Errorf("manifest: unknown memory capability %q", s)
		}
		return CapabilityRequest{Kind: CapMemoryAllocate}, nil

	default:
		return CapabilityRequest{}, errors.Errorf("manifest: unrecognized capability form %q", s)
	}
}
