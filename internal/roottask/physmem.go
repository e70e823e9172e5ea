package roottask

// PhysMem is a hosted stand-in for the physical frames retype hands
// out: in the freestanding kernel a Page's PhysBase is a real
// address and loading a segment means copying bytes there directly;
// here it is a byte buffer keyed by PhysBase so the spawn algorithm's
// "load the child's ELF segments into its mapped pages" step (spec.md
// §4.9 step 3) is exercised and asserted on in a go test without any
// unsafe access.
type PhysMem struct {
	frames map[uint64][]byte
}

// NewPhysMem returns an empty physical-memory model.
func NewPhysMem() *PhysMem {
	return &PhysMem{frames: make(map[uint64][]byte)}
}

// Write copies data into the frame at physBase, starting at offset,
// allocating the frame's backing buffer on first use. frameSize bounds
// how large an individual frame's buffer may be (normally
// vm.PageSize); offset+len(data) must not exceed it.
func (m *PhysMem) Write(physBase uint64, frameSize int, offset int, data []byte) bool {
	if offset < 0 || offset+len(data) > frameSize {
		return false
	}
	buf, ok := m.frames[physBase]
	if !ok {
		buf = make([]byte, frameSize)
		m.frames[physBase] = buf
	}
	copy(buf[offset:], data)
	return true
}

// Read returns a copy of frameSize bytes starting at physBase, or nil
// if nothing has ever been written there (an untouched frame reads as
// all zero, matching a freshly retyped page).
func (m *PhysMem) Read(physBase uint64, frameSize int) []byte {
	buf, ok := m.frames[physBase]
	if !ok {
		return make([]byte, frameSize)
	}
	out := make([]byte, frameSize)
	copy(out, buf)
	return out
}
