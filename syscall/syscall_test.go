package syscall

import (
	"testing"

	"relickernel/abi"
	"relickernel/capability"
	"relickernel/kernel/mem"
)

func newFixture(t *testing.T) (untyped, cpool *capability.Capability) {
	t.Helper()
	var u capability.Capability
	capability.NewRootUntyped(&u, mem.PAddrGlobal(0x20_0000), mem.Size(16*mem.Mb), false)

	var c capability.Capability
	if err := u.DeriveCPool(&c); err != capability.ErrNone {
		t.Fatalf("derive cpool failed: %v", err)
	}
	return &u, &c
}

func setPending(task capability.Ref, code abi.SyscallCode, args [4]uint64) {
	task.EnterSyscall(code, args[0], args[1], args[2], args[3])
}

func TestYieldReplies(t *testing.T) {
	_, cpool := newFixture(t)
	var task capability.Capability
	task.Kind = capability.KindTask
	task.Descriptor.Cpool = cpool

	setPending(&task, abi.SyscallYield, [4]uint64{})
	reply := Process(&task)
	if reply.Err != abi.ErrNone {
		t.Fatalf("reply.Err = %v, want ErrNone", reply.Err)
	}
}

func TestUnknownSyscallReturnsNotFound(t *testing.T) {
	_, cpool := newFixture(t)
	var task capability.Capability
	task.Kind = capability.KindTask
	task.Descriptor.Cpool = cpool

	setPending(&task, abi.SyscallCode(99), [4]uint64{})
	reply := Process(&task)
	if reply.Err != abi.ErrSyscallNotFound {
		t.Fatalf("reply.Err = %v, want ErrSyscallNotFound", reply.Err)
	}
}

func TestUntypedTotalFreeReportsLengthAndFreeSpace(t *testing.T) {
	u, cpool := newFixture(t)

	idx, err := cpool.DowngradeFree(*u)
	if err != capability.ErrNone {
		t.Fatalf("downgrade untyped into cpool failed: %v", err)
	}
	caddr := abi.NewCAddr(1, byte(idx))

	var task capability.Capability
	task.Kind = capability.KindTask
	task.Descriptor.Cpool = cpool
	setPending(&task, abi.SyscallUntypedTotalFree, [4]uint64{caddr.Uint64()})

	reply := Process(&task)
	if reply.Err != abi.ErrNone {
		t.Fatalf("reply.Err = %v, want ErrNone", reply.Err)
	}
	if reply.R1 != uint64(16*mem.Mb) {
		t.Fatalf("reply.R1 (length) = %d, want %d", reply.R1, uint64(16*mem.Mb))
	}
	if reply.R2 != uint64(u.GetFreeSpace()) {
		t.Fatalf("reply.R2 (free space) = %d, want %d", reply.R2, uint64(u.GetFreeSpace()))
	}
}

func TestUntypedTotalFreeOnEmptySlotFails(t *testing.T) {
	_, cpool := newFixture(t)

	// Slot 0 of a freshly derived cpool is still empty, so resolving it
	// must fail as a search failure rather than a mismatch.
	caddr := abi.NewCAddr(1, 0)
	var task capability.Capability
	task.Kind = capability.KindTask
	task.Descriptor.Cpool = cpool
	setPending(&task, abi.SyscallUntypedTotalFree, [4]uint64{caddr.Uint64()})

	reply := Process(&task)
	if reply.Err != abi.ErrCapabilitySearchFailed {
		t.Fatalf("reply.Err = %v, want ErrCapabilitySearchFailed resolving an empty slot as Untyped", reply.Err)
	}
}

func TestRawPageRetypeStoresIntoCallerCpool(t *testing.T) {
	u, cpool := newFixture(t)

	idx, err := cpool.DowngradeFree(*u)
	if err != capability.ErrNone {
		t.Fatalf("downgrade untyped failed: %v", err)
	}
	caddr := abi.NewCAddr(1, byte(idx))

	var task capability.Capability
	task.Kind = capability.KindTask
	task.Descriptor.Cpool = cpool
	setPending(&task, abi.SyscallRawPageRetype, [4]uint64{caddr.Uint64()})

	reply := Process(&task)
	if reply.Err != abi.ErrNone {
		t.Fatalf("reply.Err = %v, want ErrNone", reply.Err)
	}

	pageIdx := int(reply.R1)
	page := cpool.Upgrade(pageIdx, capability.KindBasePage)
	if page == nil {
		t.Fatalf("expected a base page capability at reported index %d", pageIdx)
	}
}

func TestRawPageMapRejectsKernelAddress(t *testing.T) {
	u, cpool := newFixture(t)

	var l4 capability.Capability
	if err := u.DerivePagingTable(&l4, capability.KindL4); err != capability.ErrNone {
		t.Fatalf("derive l4 failed: %v", err)
	}
	var page capability.Capability
	if err := u.DerivePage(&page, mem.Size(mem.PageSize)); err != capability.ErrNone {
		t.Fatalf("derive page failed: %v", err)
	}

	untypedIdx, _ := cpool.DowngradeFree(*u)
	l4Idx, _ := cpool.DowngradeFree(l4)
	pageIdx, _ := cpool.DowngradeFree(page)

	var task capability.Capability
	task.Kind = capability.KindTask
	task.Descriptor.Cpool = cpool

	kernelVAddr := uint64(0xFFFF_8000_0000_1000)
	setPending(&task, abi.SyscallRawPageMap, [4]uint64{
		abi.NewCAddr(1, byte(untypedIdx)).Uint64(),
		abi.NewCAddr(1, byte(l4Idx)).Uint64(),
		kernelVAddr,
		abi.NewCAddr(1, byte(pageIdx)).Uint64(),
	})

	reply := Process(&task)
	if reply.Err != abi.ErrInvalidMemoryAddress {
		t.Fatalf("reply.Err = %v, want ErrInvalidMemoryAddress", reply.Err)
	}
}
