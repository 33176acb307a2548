package capability

import (
	"testing"

	"relickernel/abi"
	"relickernel/kernel/mem"
)

func newTestCPool(t *testing.T) (*Capability, *Capability) {
	t.Helper()
	u := newTestUntyped(mem.Size(64 * mem.Kb))
	var cpool Capability
	if err := u.DeriveCPool(&cpool); err != ErrNone {
		t.Fatalf("derive failed: %v", err)
	}
	return u, &cpool
}

func TestGetFreeIndexFindsFirstEmpty(t *testing.T) {
	_, cpool := newTestCPool(t)
	i, err := cpool.GetFreeIndex()
	if err != ErrNone || i != 0 {
		t.Fatalf("i=%d err=%v, want 0/ErrNone", i, err)
	}
}

func TestWriteToIfEmptyRejectsOccupiedSlot(t *testing.T) {
	_, cpool := newTestCPool(t)
	if _, err := cpool.WriteToIfEmpty(0, Capability{Kind: KindUntyped}); err != ErrNone {
		t.Fatalf("first write failed: %v", err)
	}
	if _, err := cpool.WriteToIfEmpty(0, Capability{Kind: KindUntyped}); err != ErrCapabilityAlreadyOccupied {
		t.Fatalf("err = %v, want ErrCapabilityAlreadyOccupied", err)
	}
}

func TestUpgradeRejectsKindMismatch(t *testing.T) {
	_, cpool := newTestCPool(t)
	cpool.WriteToIfEmpty(0, Capability{Kind: KindUntyped})

	if cpool.Upgrade(0, KindCPool) != nil {
		t.Fatalf("expected nil on kind mismatch")
	}
	if cpool.Upgrade(0, KindUntyped) == nil {
		t.Fatalf("expected match on correct kind")
	}
}

func TestDowngradeFreeThenDowngradeAt(t *testing.T) {
	_, cpool := newTestCPool(t)
	i, err := cpool.DowngradeFree(Capability{Kind: KindUntyped})
	if err != ErrNone || i != 0 {
		t.Fatalf("i=%d err=%v", i, err)
	}
	if err := cpool.DowngradeAt(Capability{Kind: KindUntyped}, 1); err != ErrNone {
		t.Fatalf("downgrade at 1 failed: %v", err)
	}
	if err := cpool.DowngradeAt(Capability{Kind: KindUntyped}, 1); err != ErrCapabilityAlreadyOccupied {
		t.Fatalf("err = %v, want ErrCapabilityAlreadyOccupied", err)
	}
}

func TestResolveDepthOneReturnsThisCPool(t *testing.T) {
	_, cpool := newTestCPool(t)
	got, idx, err := cpool.Resolve(abi.NewCAddr(1, 9))
	if err != ErrNone {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cpool || idx != 9 {
		t.Fatalf("got cpool=%v idx=%d, want self/9", got == cpool, idx)
	}
}

func TestResolveDepthZeroFails(t *testing.T) {
	_, cpool := newTestCPool(t)
	if _, _, err := cpool.Resolve(abi.CAddr{}); err != ErrCapabilitySearchFailed {
		t.Fatalf("err = %v, want ErrCapabilitySearchFailed", err)
	}
}

func TestResolveNestedCPool(t *testing.T) {
	u, root := newTestCPool(t)

	var nested Capability
	if err := u.DeriveCPool(&nested); err != ErrNone {
		t.Fatalf("derive nested cpool failed: %v", err)
	}
	if _, err := root.WriteToIfEmpty(3, nested); err != ErrNone {
		t.Fatalf("write nested cpool failed: %v", err)
	}

	got, idx, err := root.Resolve(abi.NewCAddr(2, 3, 11))
	if err != ErrNone {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != 11 {
		t.Fatalf("idx = %d, want 11", idx)
	}
	if got.Kind != KindCPool {
		t.Fatalf("resolved cpool kind = %v", got.Kind)
	}
}

func TestResolveMissingIntermediateFails(t *testing.T) {
	_, cpool := newTestCPool(t)
	if _, _, err := cpool.Resolve(abi.NewCAddr(2, 200, 1)); err != ErrCapabilitySearchFailed {
		t.Fatalf("err = %v, want ErrCapabilitySearchFailed", err)
	}
}

func TestResolveWrongIntermediateTypeFails(t *testing.T) {
	_, cpool := newTestCPool(t)
	cpool.WriteToIfEmpty(4, Capability{Kind: KindUntyped})
	if _, _, err := cpool.Resolve(abi.NewCAddr(2, 4, 1)); err != ErrCapabilitySearchFailed {
		t.Fatalf("err = %v, want ErrCapabilitySearchFailed", err)
	}
}
