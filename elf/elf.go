// Package elf loads the sigma ELF64 image into a freshly derived address
// space (component K, spec.md §2 row K): it walks PT_LOAD program headers,
// derives and maps a raw page per page-aligned chunk of each segment,
// copies the segment's file bytes into it (zero-filling the rest, which
// covers .bss), and applies R_RELATIVE relocations from a PT_DYNAMIC
// segment's DT_RELA table, since sigma is built as a position-independent
// executable.
//
// The parser is hand-rolled with encoding/binary rather than the standard
// library's debug/elf, the same choice abi makes for its own wire
// formats: debug/elf is an io.ReaderAt-based package built for a hosted
// OS reading files off a filesystem, and pulls in an import graph (os,
// compress/*) this kernel has no business depending on. Loading a byte
// slice already held in memory needs only the handful of field offsets
// this file defines.
package elf

import (
	"encoding/binary"
	"unsafe"

	"relickernel/capability"
	"relickernel/capability/paging"
	"relickernel/kernel/mem"
)

const (
	classELF64 = 2
	dataLSB    = 1

	etExec = 2
	etDyn  = 3

	ehdrSize = 64
	phdrSize = 56

	ptLoad    = 1
	ptDynamic = 2

	pfX = 1 << 0
	pfW = 1 << 1
	pfR = 1 << 2

	dtNull   = 0
	dtRela   = 7
	dtRelaSz = 8

	relaEntSize = 24

	rRelative = 8 // R_X86_64_RELATIVE
)

// Header is the subset of the ELF64 file header this loader needs.
type Header struct {
	Type      uint16
	Entry     uint64
	PhOff     uint64
	PhEntSize uint16
	PhNum     uint16
}

// ProgramHeader is the subset of an ELF64 program header this loader
// needs.
type ProgramHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	VAddr  uint64
	FileSz uint64
	MemSz  uint64
}

// Error is this package's fallible-parse result.
type Error string

func (e Error) Error() string { return string(e) }

const (
	errBadMagic           Error = "elf: bad magic"
	errNot64Bit           Error = "elf: not a 64-bit object"
	errBadEndian          Error = "elf: not little-endian"
	errBadType            Error = "elf: not an executable or shared object"
	errTruncated          Error = "elf: truncated image"
	errRelocationUnmapped Error = "elf: R_RELATIVE target is not mapped"
)

// ParseHeader validates img's ELF64 magic/class/endianness and decodes
// its file header.
func ParseHeader(img []byte) (Header, error) {
	if len(img) < ehdrSize {
		return Header{}, errTruncated
	}
	if img[0] != 0x7f || img[1] != 'E' || img[2] != 'L' || img[3] != 'F' {
		return Header{}, errBadMagic
	}
	if img[4] != classELF64 {
		return Header{}, errNot64Bit
	}
	if img[5] != dataLSB {
		return Header{}, errBadEndian
	}

	var h Header
	h.Type = binary.LittleEndian.Uint16(img[16:])
	h.Entry = binary.LittleEndian.Uint64(img[24:])
	h.PhOff = binary.LittleEndian.Uint64(img[32:])
	h.PhEntSize = binary.LittleEndian.Uint16(img[54:])
	h.PhNum = binary.LittleEndian.Uint16(img[56:])
	if h.Type != etExec && h.Type != etDyn {
		return Header{}, errBadType
	}
	return h, nil
}

// ProgramHeaders decodes img's program header table.
func ProgramHeaders(img []byte, h Header) ([]ProgramHeader, error) {
	phdrs := make([]ProgramHeader, 0, h.PhNum)
	for i := 0; i < int(h.PhNum); i++ {
		off := int(h.PhOff) + i*int(h.PhEntSize)
		if off+phdrSize > len(img) {
			return nil, errTruncated
		}
		raw := img[off:]
		phdrs = append(phdrs, ProgramHeader{
			Type:   binary.LittleEndian.Uint32(raw[0:]),
			Flags:  binary.LittleEndian.Uint32(raw[4:]),
			Offset: binary.LittleEndian.Uint64(raw[8:]),
			VAddr:  binary.LittleEndian.Uint64(raw[16:]),
			FileSz: binary.LittleEndian.Uint64(raw[32:]),
			MemSz:  binary.LittleEndian.Uint64(raw[40:]),
		})
	}
	return phdrs, nil
}

func segPerms(flags uint32) paging.Perms {
	var p paging.Perms
	if flags&pfR != 0 {
		p |= paging.PermRead
	}
	if flags&pfW != 0 {
		p |= paging.PermWrite
	}
	if flags&pfX != 0 {
		p |= paging.PermExecute
	}
	return p
}

// pageBytes views a just-derived base page's backing memory as a byte
// slice. PageAddr is already expressed in the higher-half global mapping
// (capability.Capability.StartPAddr's doc comment), so no translation is
// needed beyond the unsafe cast encoding/binary needs to index into it.
func pageBytes(page capability.Ref) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(page.PageAddr))), int(mem.PageSize))
}

// Load derives pages for each PT_LOAD segment of img, copies its
// contents, maps the pages into l4 at their intended virtual addresses,
// and applies R_RELATIVE relocations, per spec.md §2 row K. loadBias is
// added to every segment's p_vaddr and to every relocation's computed
// address, so an ET_DYN (PIE) image can be placed anywhere in the target
// address space; pass 0 for an ET_EXEC image that already links at its
// final address. cpoolOverflow may be nil; it is only consulted via
// paging.MapRetryingOverflow when cpool runs out of intermediate-table
// search room (spec.md §4.4).
func Load(img []byte, untyped, l4, cpool, cpoolOverflow capability.Ref, loadBias uint64) (entry uint64, err error) {
	h, perr := ParseHeader(img)
	if perr != nil {
		return 0, perr
	}
	phdrs, perr := ProgramHeaders(img, h)
	if perr != nil {
		return 0, perr
	}

	// mapped records every page this call maps, keyed by its page-aligned
	// virtual address, so applyRelocations can find the backing
	// capability for a R_RELATIVE target without re-walking the page
	// tables it just built.
	mapped := map[uint64]capability.Ref{}

	for _, ph := range phdrs {
		if ph.Type != ptLoad {
			continue
		}
		if err := loadSegment(img, ph, untyped, l4, cpool, cpoolOverflow, loadBias, mapped); err != nil {
			return 0, err
		}
	}

	for _, ph := range phdrs {
		if ph.Type != ptDynamic {
			continue
		}
		if err := applyRelocations(img, ph, loadBias, mapped); err != nil {
			return 0, err
		}
	}

	return h.Entry + loadBias, nil
}

// loadSegment maps one PT_LOAD segment a page at a time. Per spec.md's
// out-of-scope note on sigma's own image layout, this loader assumes
// segments are page-aligned (true of the toolchain sigma is built with),
// so each chunk is exactly one base page with no partial-page sharing
// between segments.
func loadSegment(img []byte, ph ProgramHeader, untyped, l4, cpool, cpoolOverflow capability.Ref, loadBias uint64, mapped map[uint64]capability.Ref) error {
	vaddrStart := ph.VAddr + loadBias
	pageCount := (ph.MemSz + uint64(mem.PageSize) - 1) / uint64(mem.PageSize)
	perms := segPerms(ph.Flags)

	for i := uint64(0); i < pageCount; i++ {
		var page capability.Capability
		if err := untyped.DerivePage(&page, mem.Size(mem.PageSize)); err != capability.ErrNone {
			return err
		}

		// Store the freshly derived page into cpool before mapping it,
		// the same "derive onto the stack, then DowngradeFree into the
		// owning cpool" idiom syscall.rawPageRetype uses: a capability's
		// real home is always a cpool slot, never a loose Go value.
		idx, downErr := cpool.DowngradeFree(page)
		if downErr != capability.ErrNone {
			return downErr
		}
		ref := cpool.Upgrade(idx, capability.KindBasePage)

		pageOff := i * uint64(mem.PageSize)
		fileStart := ph.Offset + pageOff
		copyLen := uint64(0)
		if pageOff < ph.FileSz {
			copyLen = ph.FileSz - pageOff
			if copyLen > uint64(mem.PageSize) {
				copyLen = uint64(mem.PageSize)
			}
		}
		if copyLen > 0 {
			copy(pageBytes(ref), img[fileStart:fileStart+copyLen])
		}

		pageVAddr := vaddrStart + pageOff
		vaddr := mem.VAddr(uintptr(pageVAddr))
		if mapErr := paging.MapRetryingOverflow(l4, vaddr, ref, untyped, cpool, cpoolOverflow, perms); mapErr != capability.ErrNone {
			return mapErr
		}
		mapped[pageVAddr] = ref
	}
	return nil
}

// applyRelocations scans a PT_DYNAMIC segment's dynamic entries (16-byte
// tag/value pairs) for DT_RELA/DT_RELASZ, then walks that many bytes of
// Elf64_Rela entries applying every R_X86_64_RELATIVE one: the 8-byte
// word at r_offset+loadBias is set to loadBias+r_addend. Per spec.md §2
// row K, RELATIVE is the only relocation type this loader handles, since
// sigma's own dynamic symbol table is empty (a PIE with no imports).
func applyRelocations(img []byte, ph ProgramHeader, loadBias uint64, mapped map[uint64]capability.Ref) error {
	var relaOff, relaSize uint64
	end := ph.Offset + ph.FileSz
	for off := ph.Offset; off+16 <= end; off += 16 {
		tag := binary.LittleEndian.Uint64(img[off:])
		val := binary.LittleEndian.Uint64(img[off+8:])
		if tag == dtNull {
			break
		}
		switch tag {
		case dtRela:
			relaOff = val
		case dtRelaSz:
			relaSize = val
		}
	}
	if relaOff == 0 || relaSize == 0 {
		return nil
	}

	for off := relaOff; off+relaEntSize <= relaOff+relaSize; off += relaEntSize {
		offset := binary.LittleEndian.Uint64(img[off:])
		info := binary.LittleEndian.Uint64(img[off+8:])
		addend := int64(binary.LittleEndian.Uint64(img[off+16:]))

		if info&0xFFFFFFFF != rRelative {
			continue
		}

		target := offset + loadBias
		value := loadBias + uint64(addend)
		if err := writeWordAt(mapped, target, value); err != nil {
			return err
		}
	}
	return nil
}

// writeWordAt writes an 8-byte little-endian value at the given virtual
// address by finding which already-mapped page backs it.
func writeWordAt(mapped map[uint64]capability.Ref, vaddr, value uint64) error {
	pageVAddr := vaddr &^ (uint64(mem.PageSize) - 1)
	offsetInPage := vaddr & (uint64(mem.PageSize) - 1)

	page, ok := mapped[pageVAddr]
	if !ok {
		return errRelocationUnmapped
	}
	binary.LittleEndian.PutUint64(pageBytes(page)[offsetInPage:], value)
	return nil
}
