package bootinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFDT assembles a minimal flattened device tree by hand: a root
// node containing one child node with the given name and a "reg"
// property holding the given base/size pairs. Good enough to exercise
// ParseMemoryRegions without pulling in a full DTS compiler.
func buildFDT(t *testing.T, childName string, regions [][2]uint64) []byte {
	t.Helper()

	var strTab []byte
	regOff := len(strTab)
	strTab = append(strTab, []byte("reg\x00")...)

	putBE32 := func(buf []byte, v uint32) []byte {
		return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	putBE64 := func(buf []byte, v uint64) []byte {
		return append(buf, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	pad4 := func(buf []byte) []byte {
		for len(buf)&3 != 0 {
			buf = append(buf, 0)
		}
		return buf
	}

	var structBlock []byte
	// root node
	structBlock = putBE32(structBlock, fdtBeginNode)
	structBlock = append(structBlock, 0) // empty name + NUL
	structBlock = pad4(structBlock)

	// child node
	structBlock = putBE32(structBlock, fdtBeginNode)
	structBlock = append(structBlock, []byte(childName)...)
	structBlock = append(structBlock, 0)
	structBlock = pad4(structBlock)

	// reg property
	regVal := []byte{}
	for _, r := range regions {
		regVal = putBE64(regVal, r[0])
		regVal = putBE64(regVal, r[1])
	}
	structBlock = putBE32(structBlock, fdtProp)
	structBlock = putBE32(structBlock, uint32(len(regVal)))
	structBlock = putBE32(structBlock, uint32(regOff))
	structBlock = append(structBlock, regVal...)
	structBlock = pad4(structBlock)

	structBlock = putBE32(structBlock, fdtEndNode) // end child
	structBlock = putBE32(structBlock, fdtEndNode) // end root
	structBlock = putBE32(structBlock, fdtEnd)

	header := make([]byte, 16)
	offStruct := uint32(16)
	offStrings := offStruct + uint32(len(structBlock))
	copy(header[0:4], []byte{0xd0, 0x0d, 0xfe, 0xed})
	be32Into := func(b []byte, v uint32) {
		b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	}
	be32Into(header[8:12], offStruct)
	be32Into(header[12:16], offStrings)

	out := append([]byte{}, header...)
	out = append(out, structBlock...)
	out = append(out, strTab...)
	return out
}

// buildFDTWithRootCells assembles a minimal FDT whose root node carries
// #address-cells and #size-cells properties, to exercise ParseRootCells.
func buildFDTWithRootCells(t *testing.T, addressCells, sizeCells uint32) []byte {
	t.Helper()

	var strTab []byte
	acOff := len(strTab)
	strTab = append(strTab, []byte("#address-cells\x00")...)
	scOff := len(strTab)
	strTab = append(strTab, []byte("#size-cells\x00")...)

	putBE32 := func(buf []byte, v uint32) []byte {
		return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	pad4 := func(buf []byte) []byte {
		for len(buf)&3 != 0 {
			buf = append(buf, 0)
		}
		return buf
	}

	var structBlock []byte
	structBlock = putBE32(structBlock, fdtBeginNode)
	structBlock = append(structBlock, 0)
	structBlock = pad4(structBlock)

	structBlock = putBE32(structBlock, fdtProp)
	structBlock = putBE32(structBlock, 4)
	structBlock = putBE32(structBlock, uint32(acOff))
	structBlock = putBE32(structBlock, addressCells)

	structBlock = putBE32(structBlock, fdtProp)
	structBlock = putBE32(structBlock, 4)
	structBlock = putBE32(structBlock, uint32(scOff))
	structBlock = putBE32(structBlock, sizeCells)

	structBlock = putBE32(structBlock, fdtEndNode)
	structBlock = putBE32(structBlock, fdtEnd)

	header := make([]byte, 16)
	offStruct := uint32(16)
	offStrings := offStruct + uint32(len(structBlock))
	copy(header[0:4], []byte{0xd0, 0x0d, 0xfe, 0xed})
	be32Into := func(b []byte, v uint32) {
		b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	}
	be32Into(header[8:12], offStruct)
	be32Into(header[12:16], offStrings)

	out := append([]byte{}, header...)
	out = append(out, structBlock...)
	out = append(out, strTab...)
	return out
}

func TestParseRootCellsReadsExplicitValues(t *testing.T) {
	dtb := buildFDTWithRootCells(t, 2, 2)

	addressCells, sizeCells, err := ParseRootCells(dtb)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), addressCells)
	assert.Equal(t, uint32(2), sizeCells)
}

func TestParseRootCellsDefaultsToOne(t *testing.T) {
	dtb := buildFDT(t, "memory@0", [][2]uint64{{0x40000000, 0x1000}})

	addressCells, sizeCells, err := ParseRootCells(dtb)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), addressCells)
	assert.Equal(t, uint32(1), sizeCells)
}

func TestParseMemoryRegionsFindsSingleRegion(t *testing.T) {
	dtb := buildFDT(t, "memory@40000000", [][2]uint64{{0x40000000, 0x10000000}})

	regions, err := ParseMemoryRegions(dtb)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, uint64(0x40000000), regions[0].Base)
	assert.Equal(t, uint64(0x10000000), regions[0].Size)
}

func TestParseMemoryRegionsFindsMultipleRanges(t *testing.T) {
	dtb := buildFDT(t, "memory@0", [][2]uint64{
		{0x40000000, 0x8000000},
		{0x48000000, 0x8000000},
	})

	regions, err := ParseMemoryRegions(dtb)
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, uint64(0x48000000), regions[1].Base)
}

func TestParseMemoryRegionsIgnoresNonMemoryNodes(t *testing.T) {
	dtb := buildFDT(t, "uart@9000000", [][2]uint64{{0x9000000, 0x1000}})

	regions, err := ParseMemoryRegions(dtb)
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestParseMemoryRegionsRejectsBadMagic(t *testing.T) {
	_, err := ParseMemoryRegions(make([]byte, 32))
	require.Error(t, err)
}

func TestParseMemoryRegionsRejectsShortInput(t *testing.T) {
	_, err := ParseMemoryRegions([]byte{1, 2, 3})
	require.Error(t, err)
}
