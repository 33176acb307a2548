package capability

import (
	"unsafe"

	"relickernel/kernel/mem"
	"relickernel/kernel/mem/boxed"
)

// NewRootUntyped builds an Untyped capability directly over a physical
// region handed to the kernel by bootstrap (component L). It is the only
// way to create an Untyped — derivation never produces one (spec.md
// §4.1's "Lifecycle" note) — so it writes straight into a Capability cell
// rather than going through CPool.WriteToIfEmpty; callers are expected to
// immediately store the result into the root cpool themselves.
func NewRootUntyped(cell Ref, start mem.PAddrGlobal, length mem.Size, isDevice bool) {
	*cell = Capability{
		Kind:             KindUntyped,
		UntypedStart:     start,
		UntypedLength:    length,
		UntypedWatermark: start,
		UntypedIsDevice:  isDevice,
	}
}

// NewDevice builds an Untyped capability over a device's MMIO region,
// per spec.md §5's "Device memory" paragraph: such a region must never be
// zeroed (it has side effects on read/write, or holds state the device
// itself owns), unlike every other Untyped this kernel ever derives from.
// It is a distinct constructor rather than NewRootUntyped's isDevice bool
// precisely so that invariant is documented at the one call site bootstrap
// uses for MMIO, instead of a boolean a caller could pass wrong.
func NewDevice(cell Ref, start mem.PAddrGlobal, length mem.Size) {
	NewRootUntyped(cell, start, length, true)
}

// alignUp rounds v up to the next multiple of align, which must be a
// power of two.
func alignUp(v mem.PAddrGlobal, align uintptr) mem.PAddrGlobal {
	if align == 0 {
		return v
	}
	mask := mem.PAddrGlobal(align - 1)
	return (v + mask) &^ mask
}

// Allocate bumps c's watermark by length bytes aligned to alignment and
// returns the aligned start address. alignment must be a power of two;
// length may be zero, in which case only the watermark's alignment is
// advanced. Per spec.md §4.2 and invariant I1, the watermark only ever
// grows and never exceeds start+length.
func (c *Capability) Allocate(length mem.Size, alignment uintptr) (mem.PAddrGlobal, Error) {
	if c.Kind != KindUntyped {
		return 0, ErrCapabilityMismatch
	}

	release := c.Guard.BorrowExclusive()
	defer release()

	return c.allocateLocked(length, alignment)
}

// allocateLocked is Allocate's body, callable by other methods in this
// file that already hold c.Guard exclusively.
func (c *Capability) allocateLocked(length mem.Size, alignment uintptr) (mem.PAddrGlobal, Error) {
	aligned := alignUp(c.UntypedWatermark, alignment)
	end := c.UntypedStart + mem.PAddrGlobal(c.UntypedLength)
	if aligned+mem.PAddrGlobal(length) > end {
		return 0, ErrMemoryNotSufficient
	}

	c.UntypedWatermark = aligned + mem.PAddrGlobal(length)
	return aligned, ErrNone
}

// GetFreeSpace returns the number of bytes remaining between the
// watermark and the end of the region.
func (c *Capability) GetFreeSpace() mem.Size {
	end := c.UntypedStart + mem.PAddrGlobal(c.UntypedLength)
	return mem.Size(end - c.UntypedWatermark)
}

// deriveRaw allocates sizeof(T) bytes (or sizeBytes, if non-zero, for
// callers deriving a variable-sized object such as a raw page) aligned to
// T's alignment, optionally zeroes it, and returns the resulting address
// as a boxed.Boxed[T]-ready mem.PAddrGlobal. It does not itself splice the
// sibling list or store into a cpool slot — callers finish initialising
// the new cell and link it via linkChild, per spec.md §4.2's derive<T>.
func deriveRaw[T any](u *Capability, sizeBytes mem.Size, zero bool) (mem.PAddrGlobal, Error) {
	var zeroVal T
	size := sizeBytes
	if size == 0 {
		size = mem.Size(unsafe.Sizeof(zeroVal))
	}
	align := unsafe.Alignof(zeroVal)

	addr, err := u.allocateLocked(size, align)
	if err != ErrNone {
		return 0, err
	}

	if zero && !u.UntypedIsDevice {
		p := (*T)(unsafe.Pointer(uintptr(addr)))
		*p = zeroVal
	}

	return addr, ErrNone
}

// linkChild splices child at the head of u's first_child sibling list, per
// spec.md §3's invariant I2.
func (u *Capability) linkChild(child Ref) {
	child.PrevMemItem = nil
	child.NextMemItem = u.UntypedFirstChild
	if u.UntypedFirstChild != nil {
		u.UntypedFirstChild.PrevMemItem = child
	}
	u.UntypedFirstChild = child
}

// DeriveCPool derives a new CPool capability from u, stores it into the
// dest cell, and splices it into u's child list. dest must currently be
// Empty.
func (u *Capability) DeriveCPool(dest Ref) Error {
	if u.Kind != KindUntyped {
		return ErrCapabilityMismatch
	}
	release := u.Guard.BorrowExclusive()
	defer release()

	addr, err := deriveRaw[CPoolSlots](u, 0, true)
	if err != ErrNone {
		return err
	}

	*dest = Capability{
		Kind:     KindCPool,
		CPoolData: boxed.New[CPoolSlots](addr),
	}
	u.linkChild(dest)
	return ErrNone
}

// DerivePagingTable derives a new paging-table capability of the given
// kind (L4/L3/L2/L1) from u into dest.
func (u *Capability) DerivePagingTable(dest Ref, kind Kind) Error {
	if u.Kind != KindUntyped {
		return ErrCapabilityMismatch
	}
	if !kind.IsPagingKind() {
		return ErrCapabilityMismatch
	}
	release := u.Guard.BorrowExclusive()
	defer release()

	addr, err := deriveRaw[PageTable](u, mem.Size(mem.PageSize), true)
	if err != ErrNone {
		return err
	}

	*dest = Capability{
		Kind:          kind,
		PageTableData: boxed.New[PageTable](addr),
	}
	if kind == KindL4 {
		inheritKernelHalf(dest)
	}
	u.linkChild(dest)
	return ErrNone
}

// DerivePage derives a raw page of the requested size (4 KiB, 2 MiB or
// 1 GiB) from u into dest, per spec.md §4.5.
func (u *Capability) DerivePage(dest Ref, size mem.Size) Error {
	if u.Kind != KindUntyped {
		return ErrCapabilityMismatch
	}

	var kind Kind
	switch size {
	case mem.Size(mem.PageSize):
		kind = KindBasePage
	case mem.Size(mem.LargePageSize):
		kind = KindLargePage
	case mem.Size(mem.HugePageSize):
		kind = KindHugePage
	default:
		return ErrMemoryAlignmentFailure
	}

	release := u.Guard.BorrowExclusive()
	defer release()

	addr, err := u.allocateLocked(size, uintptr(size))
	if err != ErrNone {
		return err
	}
	if !u.UntypedIsDevice {
		zeroRegion(addr, size)
	}

	*dest = Capability{
		Kind:     kind,
		PageAddr: addr,
		PageSize: size,
	}
	u.linkChild(dest)
	return ErrNone
}

// zeroRegion zeroes n bytes of physical-global memory starting at addr.
func zeroRegion(addr mem.PAddrGlobal, n mem.Size) {
	p := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), int(n))
	for i := range p {
		p[i] = 0
	}
}

// DeriveTask derives a new Task descriptor capability from u into dest,
// per spec.md §4.6's task_retype_from. The task starts Inactive with no
// cpool, address space or task buffer bound.
func (u *Capability) DeriveTask(dest Ref, priority uint8, id uint64) Error {
	if u.Kind != KindUntyped {
		return ErrCapabilityMismatch
	}
	release := u.Guard.BorrowExclusive()
	defer release()

	// A task descriptor has no fixed-size "T" in the original union
	// sense (it's Go state, not bytes read back out of the untyped
	// region) but still consumes untyped address space so that its
	// lifetime is tied to the same arena discipline as every other
	// capability, per spec.md §9's cyclic-object-graph note.
	if _, err := u.allocateLocked(1, 1); err != ErrNone {
		return err
	}

	*dest = Capability{
		Kind: KindTask,
		Descriptor: Descriptor{
			Status:   StatusInactive,
			Priority: priority,
			ID:       id,
		},
	}
	u.linkChild(dest)
	return ErrNone
}
