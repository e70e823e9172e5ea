package roottask

import (
	"github.com/pkg/errors"

	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/elfimage"
	"github.com/darmie/kaal/internal/manifest"
)

// Config names everything Bootstrap needs beyond the manifest itself:
// where to carve children from, where the root task stages objects before
// self-referencing them, and how to turn a manifest component's `binary`
// field into a loaded image (spec.md §4.9 step 2's "loads the ELF image
// for each", left to the caller since resolving a binary name to bytes is
// a boot-medium concern cmd/kernel owns, not this package).
type Config struct {
	Untyped   *capability.SlotRef
	Staging   *capability.CNode
	Radix     uint8
	StackVA   uint64
	StackSize uint64

	LoadImage func(binary string) (*elfimage.Image, error)

	Grants *Grants
}

// Bootstrap is the hosted half of spec.md §4.9's root-task bootstrap
// sequence starting at step 2: given a validated manifest, spawn every
// autostart component whose spawned_by is root, in manifest order, granting
// each the capabilities its record lists before resuming it.
//
// Bootstrap does not itself idle-loop (step 4): every spawned thread is
// already enqueued ready via Spawn's call to Resume, so cmd/kernel's own
// scheduling loop picks each one up the moment Bootstrap returns — there is
// no separate "and now run them" step left to take.
func Bootstrap(sp *Spawner, m *manifest.Manifest, cfg Config) ([]*SpawnResult, error) {
	if cfg.Grants == nil {
		cfg.Grants = &Grants{}
	}
	if cfg.Grants.Endpoints == nil {
		endpoints, err := sp.retypeNamedEndpoints(m, cfg.Untyped, cfg.Staging)
		if err != nil {
			return nil, err
		}
		cfg.Grants.Endpoints = endpoints
	}

	var results []*SpawnResult
	for _, c := range m.RootsOf() {
		if cfg.LoadImage == nil {
			return nil, errors.Errorf("roottask: bootstrap %q: no image loader configured", c.Name)
		}
		img, err := cfg.LoadImage(c.Binary)
		if err != nil {
			return nil, errors.Wrapf(err, "roottask: bootstrap %q: load %q", c.Name, c.Binary)
		}

		result, err := sp.Spawn(SpawnRequest{
			Component: c,
			Image:     img,
			Untyped:   cfg.Untyped,
			Staging:   cfg.Staging,
			Radix:     cfg.Radix,
			StackVA:   cfg.StackVA,
			StackSize: cfg.StackSize,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "roottask: bootstrap %q", c.Name)
		}

		nextFree := ChildFirstFreeSlot
		for _, raw := range c.Capabilities {
			cr, err := manifest.ParseCapability(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "roottask: bootstrap %q", c.Name)
			}
			spawnReq := SpawnRequest{Untyped: cfg.Untyped, Staging: cfg.Staging}
			if err := sp.grant(spawnReq, cfg.Grants, result.CSpace, result.VSpace, &nextFree, cr); err != nil {
				return nil, errors.Wrapf(err, "roottask: bootstrap %q capability %q", c.Name, raw)
			}
		}

		results = append(results, result)
	}

	return results, nil
}
