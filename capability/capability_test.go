package capability

import (
	"testing"
)

func TestKindStringCoversAllVariants(t *testing.T) {
	kinds := []Kind{KindEmpty, KindUntyped, KindCPool, KindL4, KindL3, KindL2, KindL1,
		KindBasePage, KindLargePage, KindHugePage, KindTask}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		if s == "Unknown" {
			t.Errorf("Kind %d stringified as Unknown", k)
		}
		if seen[s] {
			t.Errorf("Kind %v produced a duplicate string %q", k, s)
		}
		seen[s] = true
	}
}

func TestIsPagingKindAndIsPageKind(t *testing.T) {
	paging := []Kind{KindL4, KindL3, KindL2, KindL1}
	for _, k := range paging {
		if !k.IsPagingKind() {
			t.Errorf("%v should be a paging kind", k)
		}
		if k.IsPageKind() {
			t.Errorf("%v should not be a page kind", k)
		}
	}

	pages := []Kind{KindBasePage, KindLargePage, KindHugePage}
	for _, k := range pages {
		if !k.IsPageKind() {
			t.Errorf("%v should be a page kind", k)
		}
		if k.IsPagingKind() {
			t.Errorf("%v should not be a paging kind", k)
		}
	}
}

func TestStartPAddrByKind(t *testing.T) {
	u := newTestUntyped(4096 * 16)

	if got := u.StartPAddr(); got != u.UntypedStart {
		t.Fatalf("untyped StartPAddr = %#x, want %#x", got, u.UntypedStart)
	}

	var l4 Capability
	if err := u.DerivePagingTable(&l4, KindL4); err != ErrNone {
		t.Fatalf("derive l4 failed: %v", err)
	}
	if got := l4.StartPAddr(); got != l4.PageTableData.Addr() {
		t.Fatalf("l4 StartPAddr = %#x, want %#x", got, l4.PageTableData.Addr())
	}

	var page Capability
	if err := u.DerivePage(&page, 4096); err != ErrNone {
		t.Fatalf("derive page failed: %v", err)
	}
	if got := page.StartPAddr(); got != page.PageAddr {
		t.Fatalf("page StartPAddr = %#x, want %#x", got, page.PageAddr)
	}

	var empty Capability
	if got := empty.StartPAddr(); got != 0 {
		t.Fatalf("empty StartPAddr = %#x, want 0", got)
	}
}
