// Package elfimage loads a component's ELF image into the in-memory
// segment list the elfloader and root task copy into physical memory
// and map into a VSpace (spec.md §4.1, §4.9). It is built on the
// standard library's debug/elf reader rather than a pack dependency:
// the only ELF code retrieved across the examples (xyproto/flapc and
// xyproto/vibe67's elf_complete.go) is a hand-rolled ELF *writer* built
// on encoding/binary, which solves the opposite problem — emitting an
// object file, not loading one — so it gives this package nothing to
// ground a reader on. debug/elf is the standard, idiomatic choice for
// reading ELF in Go and is used here exactly the way any Go loader
// would use it.
package elfimage

import (
	"debug/elf"
	"io"

	"github.com/pkg/errors"

	"github.com/darmie/kaal/internal/object"
)

// Segment is one PT_LOAD program header's content and placement, ready
// to be copied to a physical frame and mapped at VAddr (spec.md §4.1
// "identity-mapped L0/L1/L2" / §4.9 "load ELF segments").
type Segment struct {
	VAddr    uint64
	MemSize  uint64
	FileSize uint64
	Data     []byte // exactly FileSize bytes; the remaining MemSize-FileSize is BSS, zero-filled by the caller
	Rights   object.Rights
	Attr     object.CacheAttr
}

// Image is a parsed component binary: its entry point plus every
// loadable segment, in file order.
type Image struct {
	Entry    uint64
	Segments []Segment
}

// Load parses an ELF64 AArch64 executable from r and returns its
// loadable image. It rejects anything that is not a 64-bit
// little-endian AArch64 executable, since that is the only shape the
// boot chain's register contract and MMU setup assume (spec.md §4.1).
func Load(r io.ReaderAt) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, "elfimage: parse")
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return nil, errors.New("elfimage: not a 64-bit ELF")
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, errors.New("elfimage: not little-endian")
	}
	if f.Machine != elf.EM_AARCH64 {
		return nil, errors.New("elfimage: not AArch64")
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return nil, errors.New("elfimage: not an executable image")
	}

	img := &Image{Entry: f.Entry}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Filesz)
		if prog.Filesz > 0 {
			if _, err := prog.ReadAt(data, 0); err != nil && err != io.EOF {
				return nil, errors.Wrapf(err, "elfimage: read segment at vaddr %#x", prog.Vaddr)
			}
		}

		img.Segments = append(img.Segments, Segment{
			VAddr:    prog.Vaddr,
			MemSize:  prog.Memsz,
			FileSize: prog.Filesz,
			Data:     data,
			Rights:   rightsOf(prog.Flags),
			Attr:     object.CacheCached,
		})
	}

	if len(img.Segments) == 0 {
		return nil, errors.New("elfimage: no PT_LOAD segments")
	}

	return img, nil
}

// rightsOf translates an ELF program header's R/W/X flags into the
// capability rights memory_map expects (spec.md §4.4). Grant is never
// implied by an ELF segment; a component earns grant rights only by
// explicit capability transfer.
func rightsOf(flags elf.ProgFlag) object.Rights {
	return object.Rights{
		Read:  flags&elf.PF_R != 0,
		Write: flags&elf.PF_W != 0,
		Exec:  flags&elf.PF_X != 0,
	}
}
