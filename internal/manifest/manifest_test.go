package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
components:
  - name: uart-driver
    binary: uart-driver.elf
    type: driver
    priority: 200
    autostart: true
    spawned_by: root
    capabilities:
      - memory_map:0x09000000:0x1000
      - interrupt:33

  - name: console-service
    binary: console.elf
    type: service
    priority: 100
    autostart: true
    spawned_by: root
    capabilities:
      - ipc:uart-driver
      - process:create

  - name: console-helper
    binary: helper.elf
    type: application
    priority: 50
    autostart: false
    spawned_by: console-service
    capabilities:
      - memory:allocate
`

func TestParseValidManifest(t *testing.T) {
	m, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	require.Len(t, m.Components, 3)

	roots := m.RootsOf()
	require.Len(t, roots, 2)
	assert.Equal(t, "uart-driver", roots[0].Name)
	assert.Equal(t, "console-service", roots[1].Name)
}

func TestParseRejectsUnresolvedSpawnedBy(t *testing.T) {
	raw := `
components:
  - name: orphan
    binary: orphan.elf
    type: application
    priority: 1
    autostart: true
    spawned_by: nonexistent
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParseRejectsDuplicateNames(t *testing.T) {
	raw := `
components:
  - name: dup
    binary: a.elf
    type: application
    priority: 1
    autostart: false
    spawned_by: root
  - name: dup
    binary: b.elf
    type: application
    priority: 1
    autostart: false
    spawned_by: root
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParseRejectsInvalidType(t *testing.T) {
	raw := `
components:
  - name: bad
    binary: a.elf
    type: daemon
    priority: 1
    autostart: false
    spawned_by: root
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParseRejectsMalformedCapability(t *testing.T) {
	raw := `
components:
  - name: bad
    binary: a.elf
    type: application
    priority: 1
    autostart: false
    spawned_by: root
    capabilities:
      - memory_map:notanumber
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParseCapabilityForms(t *testing.T) {
	cases := []struct {
		in   string
		kind CapabilityKind
	}{
		{"memory_map:0x40000000:4096", CapMemoryMap},
		{"interrupt:42", CapInterrupt},
		{"ipc:some-service", CapIPC},
		{"process:create", CapProcessCreate},
		{"process:destroy", CapProcessDestroy},
		{"memory:allocate", CapMemoryAllocate},
	}
	for _, c := range cases {
		got, err := ParseCapability(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.kind, got.Kind, c.in)
	}
}

func TestParseCapabilityMemoryMapFields(t *testing.T) {
	got, err := ParseCapability("memory_map:0x09000000:0x1000")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x09000000), got.Addr)
	assert.Equal(t, uint64(0x1000), got.Size)
}

func TestParseCapabilityRejectsUnknownForm(t *testing.T) {
	_, err := ParseCapability("teleport:somewhere")
	require.Error(t, err)
}
