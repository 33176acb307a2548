package paging

import (
	"relickernel/capability"
	"relickernel/kernel/mem"
)

// MapSub installs child (a lower-level table or a raw page) into parent's
// table at the given index, per spec.md §4.4's map_sub steps 1-5. parent
// must be one of the four paging kinds; child may be a paging capability
// one level down or a raw page (for an L1 parent).
//
// Lock order is parent-then-child, per spec.md §5's "fixed lock order is
// root-down".
func MapSub(parent, child capability.Ref, index int, perms Perms, opts MapOpts) capability.Error {
	if !parent.Kind.IsPagingKind() {
		return capability.ErrCapabilityMismatch
	}

	releaseParent := parent.Guard.BorrowExclusive()
	defer releaseParent()

	table := parent.PageTableData.GetMut()
	if ptePresent(table[index]) {
		return capability.ErrMemoryAlreadyMapped
	}
	if child.PrevPagingItem != nil || child.NextPagingItem != nil {
		return capability.ErrMemoryAlreadyMapped
	}

	releaseChild := child.Guard.BorrowExclusive()
	defer releaseChild()

	table[index] = encodePTE(child.StartPAddr().Local(), perms, opts)

	oldHead := parent.ChildPagingItem
	child.PrevPagingItem = parent
	child.NextPagingItem = oldHead
	if oldHead != nil {
		oldHead.PrevPagingItem = child
	}
	parent.ChildPagingItem = child

	return capability.ErrNone
}

// findChildTable scans cpool's 256 slots for a capability of kind wantKind
// whose backing start address equals addr — the only way map's recursive
// walk can recover "the L3 that's already plugged into this L4 slot" from
// just the PTE's address field, since a PTE carries no capability
// identity of its own.
func findChildTable(cpool capability.Ref, wantKind capability.Kind, addr mem.PAddr) capability.Ref {
	slots := cpool.Slots()
	for i := range slots {
		c := &slots[i]
		if c.Kind == wantKind && c.StartPAddr().Local() == addr {
			return c
		}
	}
	return nil
}

// aligned reports whether vaddr is aligned to the given power-of-two
// boundary.
func aligned(vaddr mem.VAddr, boundary uintptr) bool {
	return uintptr(vaddr)%boundary == 0
}

// Map is L4::map from spec.md §4.4: it walks vaddr's four indices,
// deriving any missing L3/L2/L1 from untyped and storing them into
// cpoolPrimary (falling back to cpoolOverflow when primary is full), then
// maps page into the final L1 (or, for a large/huge page, into the L2/L3
// directly).
func Map(
	l4 capability.Ref,
	vaddr mem.VAddr,
	page capability.Ref,
	untyped capability.Ref,
	cpoolPrimary, cpoolOverflow capability.Ref,
	perms Perms,
) capability.Error {
	if l4.Kind != capability.KindL4 {
		return capability.ErrCapabilityMismatch
	}

	var opts MapOpts
	switch page.Kind {
	case capability.KindHugePage:
		opts.Huge = true
		if !aligned(vaddr, uintptr(mem.HugePageSize)) {
			return capability.ErrMemoryAlignmentFailure
		}
	case capability.KindLargePage:
		opts.Large = true
		if !aligned(vaddr, uintptr(mem.LargePageSize)) {
			return capability.ErrMemoryAlignmentFailure
		}
	case capability.KindBasePage:
		if !aligned(vaddr, uintptr(mem.PageSize)) {
			return capability.ErrMemoryAlignmentFailure
		}
	default:
		return capability.ErrCapabilityMismatch
	}

	// indices[i] is the slot, within the table being walked at step i,
	// that either already holds (or will receive) the next table down.
	// Walking ends one level early for a large (PD-level) or huge
	// (PDPT-level) page, which is mapped directly into its parent rather
	// than through a further L1.
	indices := Indices4(vaddr)
	descendSteps := 3
	if opts.Huge {
		descendSteps = 1
	} else if opts.Large {
		descendSteps = 2
	}

	parent := l4
	for level := 0; level < descendSteps; level++ {
		idx := indices[level]
		childKind := kindForLevel(parent.Kind)

		table := parent.PageTableData.GetMut()
		if ptePresent(table[idx]) {
			addr := pteAddr(table[idx])
			if child := findChildTable(cpoolPrimary, childKind, addr); child != nil {
				parent = child
				continue
			}
			if cpoolOverflow != nil {
				if child := findChildTable(cpoolOverflow, childKind, addr); child != nil {
					parent = child
					continue
				}
				return capability.ErrCapabilitySearchFailedPartial
			}
			return capability.ErrCapabilitySearchFailed
		}

		var child capability.Capability
		if err := untyped.DerivePagingTable(&child, childKind); err != capability.ErrNone {
			return err
		}

		dest := cpoolPrimary
		idxInCpool, err := dest.GetFreeIndex()
		if err != capability.ErrNone {
			if cpoolOverflow == nil {
				return capability.ErrCapabilitySlotsFull
			}
			dest = cpoolOverflow
			idxInCpool, err = dest.GetFreeIndex()
			if err != capability.ErrNone {
				return capability.ErrCapabilitySlotsFull
			}
		}
		ref, err := dest.WriteToIfEmpty(idxInCpool, child)
		if err != capability.ErrNone {
			return err
		}

		if err := MapSub(parent, ref, idx, PermRead|PermWrite, MapOpts{}); err != capability.ErrNone {
			return err
		}
		parent = ref
	}

	return MapSub(parent, page, indices[descendSteps], perms, opts)
}

// MapRetryingOverflow calls Map against cpoolPrimary alone first, and
// only enables cpoolOverflow on a retry if that first attempt reports
// ErrCapabilitySearchFailed — an intermediate table's PTE pointed
// somewhere cpoolPrimary couldn't account for. Per spec.md §4.4, both the
// ELF loader and the syscall processor need this exact retry-once
// behavior; factored here once instead of duplicated at each call site.
func MapRetryingOverflow(
	l4 capability.Ref,
	vaddr mem.VAddr,
	page capability.Ref,
	untyped capability.Ref,
	cpoolPrimary, cpoolOverflow capability.Ref,
	perms Perms,
) capability.Error {
	err := Map(l4, vaddr, page, untyped, cpoolPrimary, nil, perms)
	if err != capability.ErrCapabilitySearchFailed {
		return err
	}
	return Map(l4, vaddr, page, untyped, cpoolPrimary, cpoolOverflow, perms)
}
