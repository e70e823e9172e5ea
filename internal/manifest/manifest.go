// Package manifest reads the component manifest the root task embeds
// at build time (spec.md §4.9, §6 "Component manifest"): an ordered
// list of records naming each component's binary, type, priority,
// spawn parent, and requested capability set. It is read both by the
// root task at boot and by cmd/manifestcheck ahead of time, via the
// same github.com/darmie/kaal/internal/capability-style Kind/Error
// pair the rest of the hosted domain uses, so a malformed manifest
// fails the same way a bad syscall argument would.
package manifest

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/darmie/kaal/internal/capability"
)

// ComponentType is the `type` field of a manifest record (spec.md §6).
type ComponentType string

const (
	TypeDriver      ComponentType = "driver"
	TypeService     ComponentType = "service"
	TypeApplication ComponentType = "application"
)

func (t ComponentType) valid() bool {
	switch t {
	case TypeDriver, TypeService, TypeApplication:
		return true
	default:
		return false
	}
}

// RootSpawner is the fixed `spawned_by` value naming the root task
// itself rather than another manifest entry (spec.md §4.9: "for each
// autostart child whose spawned_by equals root").
const RootSpawner = "root"

// Component is one record of the manifest (spec.md §6's recognized
// options, unchanged).
type Component struct {
	Name         string        `yaml:"name"`
	Binary       string        `yaml:"binary"`
	Type         ComponentType `yaml:"type"`
	Priority     uint8         `yaml:"priority"`
	Autostart    bool          `yaml:"autostart"`
	SpawnedBy    string        `yaml:"spawned_by"`
	Capabilities []string      `yaml:"capabilities"`
}

// Manifest is the parsed, validated ordered record list.
type Manifest struct {
	Components []Component
}

// Parse decodes and validates raw YAML manifest bytes. Validation goes
// beyond spec.md's field list (SPEC_FULL.md §4.9 SUPPLEMENT): every
// `spawned_by` must resolve to an earlier component's name or to
// RootSpawner, and every `priority` must be a valid uint8 — so a
// malformed manifest is rejected before the root task issues a single
// retype, instead of failing partway through spawning children.
func Parse(raw []byte) (*Manifest, error) {
	var doc struct {
		Components []Component `yaml:"components"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "manifest: decode")
	}

	m := &Manifest{Components: doc.Components}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	seen := make(map[string]bool, len(m.Components))
	seen[RootSpawner] = true

	for i := range m.Components {
		c := &m.Components[i]

		if c.Name == "" {
			return newManifestErr("parse", capability.KindInvalidArgument, "component at index %d has no name", i)
		}
		if seen[c.Name] {
			return newManifestErr("parse", capability.KindInvalidArgument, "duplicate component name %q", c.Name)
		}
		if c.Binary == "" {
			return newManifestErr("parse", capability.KindInvalidArgument, "component %q has no binary reference", c.Name)
		}
		if !c.Type.valid() {
			return newManifestErr("parse", capability.KindInvalidArgument, "component %q has invalid type %q", c.Name, c.Type)
		}
		if c.SpawnedBy == "" {
			return newManifestErr("parse", capability.KindInvalidArgument, "component %q has no spawned_by", c.Name)
		}
		if !seen[c.SpawnedBy] {
			return newManifestErr("parse", capability.KindNotFound, "component %q's spawned_by %q does not resolve to an earlier component or %q", c.Name, c.SpawnedBy, RootSpawner)
		}
		for _, cap := range c.Capabilities {
			if _, err := ParseCapability(cap); err != nil {
				return errors.Wrapf(err, "manifest: component %q", c.Name)
			}
		}

		seen[c.Name] = true
	}

	return nil
}

// RootsOf returns every component with Autostart set and SpawnedBy ==
// RootSpawner, in manifest order — exactly the set spec.md §4.9 step 3
// tells the root task to spawn directly.
func (m *Manifest) RootsOf() []Component {
	var out []Component
	for _, c := range m.Components {
		if c.Autostart && c.SpawnedBy == RootSpawner {
			out = append(out, c)
		}
	}
	return out
}

func newManifestErr(op string, kind capability.Kind, format string, args ...any) error {
	return errors.Wrap(&capability.Error{Op: op, Kind: kind}, fmt.Sprintf(format, args...))
}
