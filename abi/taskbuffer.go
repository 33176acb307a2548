package abi

import "encoding/binary"

// TaskBufferSize is the size of the task buffer page (one base page). Per
// spec.md §6.3.
const TaskBufferSize = 4096

// PayloadCapacity is the number of bytes available for PayloadData.
const PayloadCapacity = 1024

// MaxCapArgs is the number of capability argument slots in a task buffer.
const MaxCapArgs = 32

// TaskBuffer describes the layout of the 4 KiB page the kernel maps into
// a task's address space for passing bulk syscall payloads and capability
// arguments, per spec.md §6.3. TaskBuffer is a view over raw page bytes,
// not a type the compiler lays out directly, since its SelfAddress field
// needs to be valid regardless of where in the virtual address space the
// page is mapped — whichever side maps the page fills it in once, after
// mapping.
type TaskBuffer struct {
	// SelfAddress is the page's own virtual address, written once by
	// whichever side (kernel or sigma) first maps it, so code running
	// through the page can compute further pointers without knowing its
	// load address in advance.
	SelfAddress uint64

	// PayloadLength is the number of valid bytes in PayloadData.
	PayloadLength uint64

	// PayloadData carries a variable-sized payload written by either
	// side of a syscall.
	PayloadData [PayloadCapacity]byte

	// Caps holds capability arguments for the syscall currently being
	// serviced. A nil entry (Depth == 0) means "no capability in this
	// slot".
	Caps [MaxCapArgs]CAddr

	// RawMessage carries a single scalar out-of-band value, used by
	// syscalls that don't need the full payload area.
	RawMessage uint64
}

// wireLayout offsets, matching the field order above when TaskBuffer is
// serialized into a raw page (encoding/binary.LittleEndian throughout,
// since the ABI is amd64-only).
const (
	offSelfAddress    = 0
	offPayloadLength  = 8
	offPayloadData    = 16
	offCaps           = offPayloadData + PayloadCapacity
	caddrWireSize     = 8
	offRawMessage     = offCaps + MaxCapArgs*caddrWireSize
	wireSize          = offRawMessage + 8
)

// Encode serializes tb into a 4 KiB page buffer. buf must be at least
// TaskBufferSize bytes.
func (tb *TaskBuffer) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[offSelfAddress:], tb.SelfAddress)
	binary.LittleEndian.PutUint64(buf[offPayloadLength:], tb.PayloadLength)
	copy(buf[offPayloadData:offPayloadData+PayloadCapacity], tb.PayloadData[:])
	for i, c := range tb.Caps {
		binary.LittleEndian.PutUint64(buf[offCaps+i*caddrWireSize:], c.Uint64())
	}
	binary.LittleEndian.PutUint64(buf[offRawMessage:], tb.RawMessage)
}

// Decode populates tb from a raw page buffer previously written by Encode.
func (tb *TaskBuffer) Decode(buf []byte) {
	tb.SelfAddress = binary.LittleEndian.Uint64(buf[offSelfAddress:])
	tb.PayloadLength = binary.LittleEndian.Uint64(buf[offPayloadLength:])
	copy(tb.PayloadData[:], buf[offPayloadData:offPayloadData+PayloadCapacity])
	for i := range tb.Caps {
		tb.Caps[i] = CAddrFromUint64(binary.LittleEndian.Uint64(buf[offCaps+i*caddrWireSize:]))
	}
	tb.RawMessage = binary.LittleEndian.Uint64(buf[offRawMessage:])
}
