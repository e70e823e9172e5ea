package vm

import (
	"testing"

	"github.com/darmie/kaal/internal/capability"
	"github.com/darmie/kaal/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshVSpace() *VSpace {
	return NewVSpace(&object.VSpaceRoot{PhysBase: 0x1000, ASID: 7})
}

func TestMapRequiresInstalledTables(t *testing.T) {
	v := freshVSpace()
	page := &object.PageObj{PhysBase: 0x2000}

	err := v.MapPage(0x4000_0000, page, object.Rights{Read: true}, object.CacheCached)
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindRangeError))
}

func installChain(t *testing.T, v *VSpace, vaddr uintptr) {
	t.Helper()
	l1 := NewTable(&object.PageTableObj{PhysBase: 0x10000}, 1)
	require.NoError(t, v.InstallTable(vaddr, 1, l1))
	l2 := NewTable(&object.PageTableObj{PhysBase: 0x11000}, 2)
	require.NoError(t, v.InstallTable(vaddr, 2, l2))
}

func TestMapUnmapRoundTrip(t *testing.T) {
	v := freshVSpace()
	vaddr := uintptr(0x4000_0000)
	installChain(t, v, vaddr)

	page := &object.PageObj{PhysBase: 0x2000}
	rights := object.Rights{Read: true, Write: true}

	require.NoError(t, v.MapPage(vaddr, page, rights, object.CacheCached))
	assert.True(t, page.Mapped)
	assert.Equal(t, vaddr, page.VAddr)

	require.NoError(t, v.UnmapPage(page))
	assert.False(t, page.Mapped)

	// Round trip: map again at the same address must succeed identically.
	require.NoError(t, v.MapPage(vaddr, page, rights, object.CacheCached))
	assert.True(t, page.Mapped)
	assert.Equal(t, vaddr, page.VAddr)
}

func TestMapTwiceFails(t *testing.T) {
	v := freshVSpace()
	vaddr := uintptr(0x4000_0000)
	installChain(t, v, vaddr)

	page := &object.PageObj{PhysBase: 0x2000}
	require.NoError(t, v.MapPage(vaddr, page, object.Rights{Read: true}, object.CacheCached))

	err := v.MapPage(vaddr, page, object.Rights{Read: true}, object.CacheCached)
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindInvalidCapability))
}

func TestMapMisalignedFails(t *testing.T) {
	v := freshVSpace()
	page := &object.PageObj{PhysBase: 0x2000}
	err := v.MapPage(0x1001, page, object.Rights{Read: true}, object.CacheCached)
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindAlignmentError))
}

func TestProtectUpdatesRights(t *testing.T) {
	v := freshVSpace()
	vaddr := uintptr(0x4000_0000)
	installChain(t, v, vaddr)

	page := &object.PageObj{PhysBase: 0x2000}
	require.NoError(t, v.MapPage(vaddr, page, object.Rights{Read: true}, object.CacheCached))

	require.NoError(t, v.Protect(page, object.Rights{Read: true, Write: true}))
	assert.True(t, page.Rights.Write)
}

func TestProtectUnmappedFails(t *testing.T) {
	v := freshVSpace()
	page := &object.PageObj{}
	err := v.Protect(page, object.Rights{Read: true})
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindInvalidCapability))
}

func TestInstallTableTwiceFails(t *testing.T) {
	v := freshVSpace()
	vaddr := uintptr(0x4000_0000)
	l1 := NewTable(&object.PageTableObj{PhysBase: 0x10000}, 1)
	require.NoError(t, v.InstallTable(vaddr, 1, l1))

	other := NewTable(&object.PageTableObj{PhysBase: 0x12000}, 1)
	err := v.InstallTable(vaddr, 1, other)
	require.Error(t, err)
	assert.True(t, capability.Is(err, capability.KindNotEmpty))
}
