package abi

// SyscallCode identifies which operation a `syscall` instruction is
// requesting. Encoded in the rdi register per spec.md §6.4.
type SyscallCode uint64

const (
	// SyscallYield returns control to the scheduler without any other
	// effect.
	SyscallYield SyscallCode = 1

	// SyscallUntypedTotalFree takes a CAddr (register a) naming an
	// Untyped and replies with its total length and remaining free
	// space.
	SyscallUntypedTotalFree SyscallCode = 2

	// SyscallRawPageRetype takes a CAddr (register a) naming an
	// Untyped, derives a 4 KiB raw page from it, and replies with the
	// cpool index the page was stored at.
	SyscallRawPageRetype SyscallCode = 3

	// SyscallRawPageMap takes four CAddrs/values (registers a, b, c, d):
	// an Untyped, an L4, a virtual address and a raw page, and maps the
	// page into the given address space.
	SyscallRawPageMap SyscallCode = 4
)

// Error is the stable numeric error code returned in the reply triple's
// rax register, per spec.md §6.5. It has a same-named code for every
// capability.Error (capability.Error.ToABI converts by name, since
// ErrUnknown's numeric value differs between the two), plus the
// syscall-only ErrSyscallNotFound and ErrTaskBufferNotFound; the two types
// are kept distinct so that the ABI surface (this package) has no
// dependency on the kernel's internal capability package.
type Error uint8

const (
	ErrNone Error = iota
	ErrCapabilityAlreadyOccupied
	ErrCapabilitySlotsFull
	ErrCapabilitySearchFailed
	ErrCapabilitySearchFailedPartial
	ErrCapabilityMismatch
	ErrMemoryAlreadyMapped
	ErrMemoryNotSufficient
	ErrMemoryAlignmentFailure
	ErrInvalidMemoryAddress
	ErrSyscallNotFound
	ErrTaskBufferNotFound
	ErrUnknown
)

// ReplyTriple is the three-register result of a syscall: an error code
// plus two result words, delivered on sysret as rax/rdi/r8 per spec.md
// §6.4.
type ReplyTriple struct {
	Err Error
	R1  uint64
	R2  uint64
}
