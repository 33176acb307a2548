package abi

import "encoding/binary"

// FramebufferMode enumerates the pixel layouts the bootstrap loader may
// hand to sigma, named after the byte order of each 32-bit pixel.
type FramebufferMode uint8

const (
	FramebufferARGB FramebufferMode = iota
	FramebufferRGBA
	FramebufferABGR
	FramebufferBGRA
)

// FramebufferInfo describes the linear framebuffer sigma is handed at
// boot, per spec.md §6.2.
type FramebufferInfo struct {
	VAddr    uint64
	PAddr    uint64
	Size     uint64
	Width    uint32
	Height   uint32
	Scanline uint32
	Mode     FramebufferMode
}

// TLSInfo describes the thread-local-storage template sigma should use to
// initialize its own TLS block, if any was prepared by the loader.
type TLSInfo struct {
	// Present is false when no TLS template was prepared (e.g. the ELF
	// image has no PT_TLS segment).
	Present       bool
	TemplateVAddr uint64
	TemplateSize  uint64
	MemSize       uint64
	Align         uint64
}

// BootstrapInfo is the payload the kernel hands to sigma (via the task
// buffer) describing the capabilities and resources sigma was given at
// creation time. Per spec.md §6.2.
type BootstrapInfo struct {
	// CpoolCapability names sigma's own root capability pool.
	CpoolCapability CAddr

	// FreeMemRegionsStart and FreeMemRegionsEnd bound a contiguous run
	// of Untyped slots in that cpool: [start, end] inclusive, both
	// addressed relative to CpoolCapability.
	FreeMemRegionsStart CAddr
	FreeMemRegionsEnd   CAddr

	// TopLevelPML4 names sigma's L4 paging capability.
	TopLevelPML4 CAddr

	FBInfo  FramebufferInfo
	TLSInfo TLSInfo
}

// BootstrapInfoWireSize is the number of bytes Encode writes / Decode
// reads. It fits well within TaskBuffer's 1024-byte PayloadData, which is
// where the bootstrap loader places it (spec.md §6.2 is carried "via the
// task buffer", not as a page layout of its own).
const BootstrapInfoWireSize = 4*caddrWireSize + frameBufferInfoWireSize + tlsInfoWireSize

const frameBufferInfoWireSize = 8 + 8 + 8 + 4 + 4 + 4 + 1
const tlsInfoWireSize = 1 + 8 + 8 + 8 + 8

// Encode serializes bi into buf, which must be at least
// BootstrapInfoWireSize bytes.
func (bi *BootstrapInfo) Encode(buf []byte) {
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], bi.CpoolCapability.Uint64())
	off += caddrWireSize
	binary.LittleEndian.PutUint64(buf[off:], bi.FreeMemRegionsStart.Uint64())
	off += caddrWireSize
	binary.LittleEndian.PutUint64(buf[off:], bi.FreeMemRegionsEnd.Uint64())
	off += caddrWireSize
	binary.LittleEndian.PutUint64(buf[off:], bi.TopLevelPML4.Uint64())
	off += caddrWireSize

	binary.LittleEndian.PutUint64(buf[off:], bi.FBInfo.VAddr)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], bi.FBInfo.PAddr)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], bi.FBInfo.Size)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], bi.FBInfo.Width)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], bi.FBInfo.Height)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], bi.FBInfo.Scanline)
	off += 4
	buf[off] = byte(bi.FBInfo.Mode)
	off++

	if bi.TLSInfo.Present {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
	off++
	binary.LittleEndian.PutUint64(buf[off:], bi.TLSInfo.TemplateVAddr)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], bi.TLSInfo.TemplateSize)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], bi.TLSInfo.MemSize)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], bi.TLSInfo.Align)
}

// Decode populates bi from a buffer previously written by Encode.
func (bi *BootstrapInfo) Decode(buf []byte) {
	off := 0
	bi.CpoolCapability = CAddrFromUint64(binary.LittleEndian.Uint64(buf[off:]))
	off += caddrWireSize
	bi.FreeMemRegionsStart = CAddrFromUint64(binary.LittleEndian.Uint64(buf[off:]))
	off += caddrWireSize
	bi.FreeMemRegionsEnd = CAddrFromUint64(binary.LittleEndian.Uint64(buf[off:]))
	off += caddrWireSize
	bi.TopLevelPML4 = CAddrFromUint64(binary.LittleEndian.Uint64(buf[off:]))
	off += caddrWireSize

	bi.FBInfo.VAddr = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	bi.FBInfo.PAddr = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	bi.FBInfo.Size = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	bi.FBInfo.Width = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	bi.FBInfo.Height = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	bi.FBInfo.Scanline = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	bi.FBInfo.Mode = FramebufferMode(buf[off])
	off++

	bi.TLSInfo.Present = buf[off] != 0
	off++
	bi.TLSInfo.TemplateVAddr = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	bi.TLSInfo.TemplateSize = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	bi.TLSInfo.MemSize = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	bi.TLSInfo.Align = binary.LittleEndian.Uint64(buf[off:])
}
