package paging

import (
	"testing"

	"relickernel/capability"
	"relickernel/kernel/mem"
)

func newFixture(t *testing.T) (untyped, cpool *capability.Capability) {
	t.Helper()
	var u capability.Capability
	capability.NewRootUntyped(&u, mem.PAddrGlobal(0x10_0000), mem.Size(16*mem.Mb), false)

	var c capability.Capability
	if err := u.DeriveCPool(&c); err != capability.ErrNone {
		t.Fatalf("derive cpool failed: %v", err)
	}
	return &u, &c
}

func newL4(t *testing.T, u *capability.Capability) *capability.Capability {
	t.Helper()
	var l4 capability.Capability
	if err := u.DerivePagingTable(&l4, capability.KindL4); err != capability.ErrNone {
		t.Fatalf("derive l4 failed: %v", err)
	}
	return &l4
}

func TestIndicesSplitsVAddrIntoFourLevels(t *testing.T) {
	// A vaddr with a distinct, recognizable index at every level.
	vaddr := mem.VAddr(uintptr(1)<<39 | uintptr(2)<<30 | uintptr(3)<<21 | uintptr(4)<<12)
	l4, l3, l2, l1 := Indices(vaddr)
	if l4 != 1 || l3 != 2 || l2 != 3 || l1 != 4 {
		t.Fatalf("indices = (%d,%d,%d,%d), want (1,2,3,4)", l4, l3, l2, l1)
	}
}

func TestMapBasePageConsumesFullChain(t *testing.T) {
	u, cpool := newFixture(t)
	l4 := newL4(t, u)

	var page capability.Capability
	if err := u.DerivePage(&page, mem.Size(mem.PageSize)); err != capability.ErrNone {
		t.Fatalf("derive page failed: %v", err)
	}

	err := Map(l4, 0x0, &page, u, cpool, nil, PermRead|PermWrite)
	if err != capability.ErrNone {
		t.Fatalf("map failed: %v", err)
	}

	// The walk should have derived L3, L2, L1 into cpool (3 slots); the
	// page itself was derived separately by the caller, per spec.md §4.4.
	used := 0
	slots := cpool.Slots()
	for i := range slots {
		if slots[i].Kind != capability.KindEmpty {
			used++
		}
	}
	if used != 3 {
		t.Fatalf("cpool slots used = %d, want 3 (L3, L2, L1)", used)
	}
}

func TestMapSameAddressTwiceFails(t *testing.T) {
	u, cpool := newFixture(t)
	l4 := newL4(t, u)

	var page1, page2 capability.Capability
	u.DerivePage(&page1, mem.Size(mem.PageSize))
	u.DerivePage(&page2, mem.Size(mem.PageSize))

	if err := Map(l4, 0x0, &page1, u, cpool, nil, PermRead|PermWrite); err != capability.ErrNone {
		t.Fatalf("first map failed: %v", err)
	}
	if err := Map(l4, 0x0, &page2, u, cpool, nil, PermRead|PermWrite); err != capability.ErrMemoryAlreadyMapped {
		t.Fatalf("err = %v, want ErrMemoryAlreadyMapped", err)
	}
}

func TestMapLargePageMisalignedFails(t *testing.T) {
	u, cpool := newFixture(t)
	l4 := newL4(t, u)

	var large capability.Capability
	if err := u.DerivePage(&large, mem.Size(mem.LargePageSize)); err != capability.ErrNone {
		t.Fatalf("derive large page failed: %v", err)
	}

	if err := Map(l4, 0x1000, &large, u, cpool, nil, PermRead|PermWrite); err != capability.ErrMemoryAlignmentFailure {
		t.Fatalf("err = %v, want ErrMemoryAlignmentFailure", err)
	}
}

func TestMapReusesIntermediateTables(t *testing.T) {
	u, cpool := newFixture(t)
	l4 := newL4(t, u)

	var basePage capability.Capability
	u.DerivePage(&basePage, mem.Size(mem.PageSize))
	if err := Map(l4, 0x0, &basePage, u, cpool, nil, PermRead|PermWrite); err != capability.ErrNone {
		t.Fatalf("first map failed: %v", err)
	}

	slotsAfterFirst := 0
	slots := cpool.Slots()
	for i := range slots {
		if slots[i].Kind != capability.KindEmpty {
			slotsAfterFirst++
		}
	}

	var largePage capability.Capability
	u.DerivePage(&largePage, mem.Size(mem.LargePageSize))
	// 0x200000 (2 MiB) shares the same L4 and L3 entries as 0x0 and lands
	// in the next slot of the same L2, so the existing L3 and L2 are reused.
	if err := Map(l4, mem.VAddr(mem.LargePageSize), &largePage, u, cpool, nil, PermRead|PermWrite); err != capability.ErrNone {
		t.Fatalf("second map failed: %v", err)
	}

	slotsAfterSecond := 0
	for i := range slots {
		if slots[i].Kind != capability.KindEmpty {
			slotsAfterSecond++
		}
	}

	// The second map derives no new table: the large page is mapped
	// directly into the reused L2, and the large page capability itself is
	// supplied by the caller, not stored into cpool here.
	if slotsAfterSecond != slotsAfterFirst {
		t.Fatalf("expected the second mapping to reuse the existing tables, got %d -> %d cpool slots", slotsAfterFirst, slotsAfterSecond)
	}
}

func TestMapSubRejectsDoubleLinkedChild(t *testing.T) {
	u, cpool := newFixture(t)
	l4 := newL4(t, u)

	var l3a, l3b capability.Capability
	u.DerivePagingTable(&l3a, capability.KindL3)
	u.DerivePagingTable(&l3b, capability.KindL3)

	if err := MapSub(l4, &l3a, 0, PermRead|PermWrite, MapOpts{}); err != capability.ErrNone {
		t.Fatalf("first map_sub failed: %v", err)
	}
	// l3a is already linked into l4 at index 0; linking it again at a
	// different index must fail even though that slot is itself empty.
	if err := MapSub(l4, &l3a, 1, PermRead|PermWrite, MapOpts{}); err != capability.ErrMemoryAlreadyMapped {
		t.Fatalf("err = %v, want ErrMemoryAlreadyMapped", err)
	}
	_ = cpool
	_ = l3b
}
