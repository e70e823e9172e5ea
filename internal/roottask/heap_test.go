package roottask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeapAllocAligns(t *testing.T) {
	h := NewHeap(0x1000, 0x100, 16)

	a, ok := h.Alloc(3)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x1000), a)

	b, ok := h.Alloc(5)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x1010), b)
}

func TestHeapAllocFailsWhenExhausted(t *testing.T) {
	h := NewHeap(0, 16, 1)

	_, ok := h.Alloc(16)
	assert.True(t, ok)

	_, ok = h.Alloc(1)
	assert.False(t, ok)
}

func TestHeapRemainingTracksWatermark(t *testing.T) {
	h := NewHeap(0, 64, 1)
	assert.Equal(t, uint64(64), h.Remaining())

	h.Alloc(10)
	assert.Equal(t, uint64(54), h.Remaining())
	assert.Equal(t, uint64(10), h.Used())
}
