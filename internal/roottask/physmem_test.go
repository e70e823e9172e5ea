package roottask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhysMemWriteReadRoundTrip(t *testing.T) {
	m := NewPhysMem()

	ok := m.Write(0x1000, 16, 4, []byte{1, 2, 3})
	assert.True(t, ok)

	got := m.Read(0x1000, 16)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0}, got)
}

func TestPhysMemReadUntouchedFrameIsZero(t *testing.T) {
	m := NewPhysMem()
	assert.Equal(t, make([]byte, 8), m.Read(0x9000, 8))
}

func TestPhysMemWriteRejectsOverflow(t *testing.T) {
	m := NewPhysMem()
	ok := m.Write(0x1000, 8, 6, []byte{1, 2, 3})
	assert.False(t, ok)
}
