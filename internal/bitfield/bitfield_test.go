package bitfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rightsWord struct {
	Read      bool   `bitfield:",1"`
	Write     bool   `bitfield:",1"`
	Grant     bool   `bitfield:",1"`
	GrantRep  bool   `bitfield:",1"`
	Reserved  uint32 `bitfield:",28"`
}

func TestPackUnpackRoundTrip(t *testing.T) {
	in := rightsWord{Read: true, Write: false, Grant: true, GrantRep: false, Reserved: 0x1234}

	packed, err := Pack(in, &Config{NumBits: 32})
	require.NoError(t, err)

	var out rightsWord
	require.NoError(t, Unpack(packed, &out))
	assert.Equal(t, in, out)
}

func TestPackAllBitsSet(t *testing.T) {
	in := rightsWord{Read: true, Write: true, Grant: true, GrantRep: true, Reserved: (1 << 28) - 1}
	packed, err := Pack(in, &Config{NumBits: 32})
	require.NoError(t, err)
	assert.Equal(t, uint64(0xFFFFFFFF), packed)
}

func TestPackRejectsOverflow(t *testing.T) {
	in := rightsWord{Reserved: 1 << 29}
	_, err := Pack(in, &Config{NumBits: 32})
	assert.Error(t, err)
}

func TestPackRejectsNonStruct(t *testing.T) {
	_, err := Pack(42, nil)
	assert.Error(t, err)
}

func TestUnpackRequiresPointer(t *testing.T) {
	err := Unpack(0, rightsWord{})
	assert.Error(t, err)
}

func TestPackTotalBitsExceedsNumBits(t *testing.T) {
	type wide struct {
		A uint32 `bitfield:",20"`
		B uint32 `bitfield:",20"`
	}
	_, err := Pack(wide{A: 1, B: 1}, &Config{NumBits: 32})
	assert.Error(t, err)
}
