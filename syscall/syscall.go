// Package syscall implements the syscall processor (component I, spec.md
// §4.9): it takes a task that trapped via SYSCALL, dispatches on the
// requested code, performs the capability-layer side effects, and
// produces the reply triple the scheduler writes back into the task's
// registers on next dispatch.
//
// Dispatch is a closed switch over abi.SyscallCode rather than an open
// handler registry, because spec.md §4.9 is explicit that an unrecognised
// code is an error (SyscallNotFound), not an extension point — unlike the
// teacher's irq.HandleExceptionWithCode, which does register arbitrary
// handlers for a genuinely open set of interrupt vectors.
package syscall

import (
	"relickernel/abi"
	"relickernel/capability"
	"relickernel/capability/paging"
	"relickernel/kernel/mem"
	"relickernel/sched"
)

// Process services one trapped syscall for task, mutating capability
// state as needed, and returns the reply triple to deliver. It never
// blocks and never itself touches the scheduler's run loop; the caller
// (invoked from sched.Scheduler.RunForever's dispatch callback) is
// responsible for calling task.DeliverReply and sched.Requeue afterward,
// per spec.md §4.9's "side-effects ... plus a re-enqueue" contract.
func Process(task capability.Ref) abi.ReplyTriple {
	d := &task.Descriptor
	code := d.PendingSyscall
	args := d.PendingArgs

	switch code {
	case abi.SyscallYield:
		return abi.ReplyTriple{Err: abi.ErrNone}

	case abi.SyscallUntypedTotalFree:
		return untypedTotalFree(d.Cpool, args[0])

	case abi.SyscallRawPageRetype:
		return rawPageRetype(d.Cpool, args[0])

	case abi.SyscallRawPageMap:
		return rawPageMap(d.Cpool, args[0], args[1], args[2], args[3])

	default:
		return abi.ReplyTriple{Err: abi.ErrSyscallNotFound}
	}
}

// reply adapts a capability.Error into the reply triple shape every
// syscall handler below returns, so the err.ToABI() conversion spec.md
// §7 requires of *every* internal failure path funnels through one
// function instead of being inlined at each call site.
func reply(err capability.Error, r1, r2 uint64) abi.ReplyTriple {
	return abi.ReplyTriple{Err: err.ToABI(), R1: r1, R2: r2}
}

func untypedTotalFree(cpool capability.Ref, rawCAddr uint64) abi.ReplyTriple {
	untyped, err := resolveKind(cpool, rawCAddr, capability.KindUntyped)
	if err != capability.ErrNone {
		return reply(err, 0, 0)
	}
	return reply(capability.ErrNone, uint64(untyped.UntypedLength), uint64(untyped.GetFreeSpace()))
}

func rawPageRetype(cpool capability.Ref, rawCAddr uint64) abi.ReplyTriple {
	untyped, err := resolveKind(cpool, rawCAddr, capability.KindUntyped)
	if err != capability.ErrNone {
		return reply(err, 0, 0)
	}

	var page capability.Capability
	if err := untyped.DerivePage(&page, mem.Size(mem.PageSize)); err != capability.ErrNone {
		return reply(err, 0, 0)
	}

	index, err := cpool.DowngradeFree(page)
	if err != capability.ErrNone {
		return reply(err, 0, 0)
	}
	return reply(capability.ErrNone, uint64(index), 0)
}

func rawPageMap(cpool capability.Ref, rawUntyped, rawL4, vaddrArg, rawPage uint64) abi.ReplyTriple {
	untyped, err := resolveKind(cpool, rawUntyped, capability.KindUntyped)
	if err != capability.ErrNone {
		return reply(err, 0, 0)
	}
	l4, err := resolveKind(cpool, rawL4, capability.KindL4)
	if err != capability.ErrNone {
		return reply(err, 0, 0)
	}
	page, err := resolvePage(cpool, rawPage)
	if err != capability.ErrNone {
		return reply(err, 0, 0)
	}

	vaddr := mem.VAddr(uintptr(vaddrArg))
	if !vaddr.ValidateUserMode() {
		return reply(capability.ErrInvalidMemoryAddress, 0, 0)
	}

	mapErr := paging.MapRetryingOverflow(l4, vaddr, page, untyped, cpool, nil, paging.PermRead|paging.PermWrite|paging.PermExecute)
	return reply(mapErr, 0, 0)
}

func resolveKind(cpool capability.Ref, rawCAddr uint64, kind capability.Kind) (capability.Ref, capability.Error) {
	ref, err := cpool.ResolveCapability(abi.CAddrFromUint64(rawCAddr))
	if err != capability.ErrNone {
		return nil, err
	}
	if ref.Kind != kind {
		return nil, capability.ErrCapabilityMismatch
	}
	return ref, capability.ErrNone
}

func resolvePage(cpool capability.Ref, rawCAddr uint64) (capability.Ref, capability.Error) {
	ref, err := cpool.ResolveCapability(abi.CAddrFromUint64(rawCAddr))
	if err != capability.ErrNone {
		return nil, err
	}
	if !ref.Kind.IsPageKind() {
		return nil, capability.ErrCapabilityMismatch
	}
	return ref, capability.ErrNone
}

// Dispatch is the scheduler-facing entry point: it runs Process, delivers
// the reply to task, and re-enqueues it onto s, per spec.md §4.8's
// run_forever ("SyscalledAndWaiting dispatches to the syscall processor
// which re-enqueues").
func Dispatch(s *sched.Scheduler, task capability.Ref) {
	reply := Process(task)
	task.DeliverReply(reply)
	s.Requeue(task)
}
