package capability

import (
	"sync/atomic"

	"relickernel/abi"
	"relickernel/kernel"
	"relickernel/kernel/cpu"
)

var nextTaskID uint64

// NextTaskID returns a fresh, process-wide unique task identifier, per
// spec.md §4.6. Safe to call concurrently; in this single-CPU kernel it
// is called by the bootstrap sequence when it derives sigma's task.
func NextTaskID() uint64 {
	return atomic.AddUint64(&nextTaskID, 1)
}

// Status is the scheduling state of a task, per spec.md §4.6. Unlike the
// Capability union, the variants here are mutually exclusive points in a
// task's lifecycle rather than different kinds of resource, so Status
// stays a plain tag; the few bytes each non-trivial state needs (the
// pending syscall, or the reply waiting to be delivered) live directly on
// Descriptor instead of being packed per-variant.
type Status uint8

const (
	// StatusInactive is the initial state: the task has never been
	// scheduled, and its cpool, address space and task buffer may not be
	// bound yet.
	StatusInactive Status = iota

	// StatusActive means the task is eligible to run and, if current, is
	// executing in userspace right now.
	StatusActive

	// StatusSyscalledAndWaiting means the task trapped into the kernel
	// via `syscall` and the syscall processor has not yet produced a
	// reply (component I is still running, or the task is blocked on
	// something the syscall itself queued).
	StatusSyscalledAndWaiting

	// StatusSyscalledReadyToResume means a reply triple has been computed
	// and is waiting to be written into the task's registers on next
	// dispatch.
	StatusSyscalledReadyToResume

	// StatusUnknown marks a descriptor that failed to initialize fully;
	// the scheduler must never hand out a task in this state.
	StatusUnknown
)

var (
	errTaskNotInactive     = &kernel.Error{Module: "task", Message: "task setter called on a task that is not inactive"}
	errTaskNotWaiting      = &kernel.Error{Module: "task", Message: "reply delivered to a task that isn't waiting on one"}
	errTaskNoAddressSpace  = &kernel.Error{Module: "task", Message: "switch_to called on a task with no L4 bound"}
	errTaskBadSwitchStatus = &kernel.Error{Module: "task", Message: "switch_to called on a task that is neither inactive nor ready to resume"}
)

// Descriptor is the KindTask payload: everything the scheduler and the
// syscall processor need to resume a task, per spec.md §3's Task
// component and §4.6/§4.7's operations.
type Descriptor struct {
	Status Status

	// ID is a stable, process-wide unique identifier assigned at
	// derivation time (spec.md §4.6); the kernel never reuses one.
	ID uint64

	// Cpool/TopLevelTable/TaskBuffer are capability references to this
	// task's own root resources. They start nil (StatusInactive) and are
	// filled in one at a time by the task_set_* operations before the
	// task can ever become Active.
	Cpool         Ref
	TopLevelTable Ref
	TaskBuffer    Ref

	// Registers holds the task's full general-purpose register file,
	// saved on syscall entry and restored on dispatch.
	Registers cpu.Registers

	// Priority is this task's scheduling priority (0-15, spec.md §4.8).
	Priority uint8

	// PendingSyscall/PendingArgs record the syscall a
	// SyscalledAndWaiting task trapped with, so the syscall processor
	// can be re-entered or inspected without re-reading registers.
	PendingSyscall abi.SyscallCode
	PendingArgs    [4]uint64

	// Reply holds the result a SyscalledReadyToResume task will have
	// written into its registers on next dispatch.
	Reply abi.ReplyTriple

	// NextSchedItem/PrevSchedItem are not used by package sched, which
	// threads a task into its priority's ring (component H) through the
	// Capability cell's own NextSchedItem/PrevSchedItem.
	NextSchedItem Ref
	PrevSchedItem Ref
}

// SetCPool installs the root CPool capability a task resolves all of its
// CAddrs against. May only be called on an inactive task (spec.md §4.6).
func (c *Capability) SetCPool(cpool Ref) {
	if c.Kind != KindTask {
		kernel.Panic(errWrongKind)
	}
	if c.Descriptor.Status != StatusInactive {
		kernel.Panic(errTaskNotInactive)
	}
	c.Descriptor.Cpool = cpool
}

// SetTopLevelTable installs the L4 capability rooting a task's address
// space.
func (c *Capability) SetTopLevelTable(l4 Ref) {
	if c.Kind != KindTask {
		kernel.Panic(errWrongKind)
	}
	if c.Descriptor.Status != StatusInactive {
		kernel.Panic(errTaskNotInactive)
	}
	c.Descriptor.TopLevelTable = l4
}

// SetTaskBuffer installs the base-page capability backing a task's task
// buffer (spec.md §6.3).
func (c *Capability) SetTaskBuffer(page Ref) {
	if c.Kind != KindTask {
		kernel.Panic(errWrongKind)
	}
	if c.Descriptor.Status != StatusInactive {
		kernel.Panic(errTaskNotInactive)
	}
	c.Descriptor.TaskBuffer = page
}

// Ready reports whether a task has all three root resources installed and
// can transition out of StatusInactive.
func (c *Capability) Ready() bool {
	d := &c.Descriptor
	return d.Cpool != nil && d.TopLevelTable != nil && d.TaskBuffer != nil
}

// Activate transitions an inactive, fully-configured task to Active so the
// scheduler may select it.
func (c *Capability) Activate() {
	if c.Kind != KindTask {
		kernel.Panic(errWrongKind)
	}
	if c.Descriptor.Status != StatusInactive || !c.Ready() {
		kernel.Panic(errTaskNotInactive)
	}
	c.Descriptor.Status = StatusActive
}

// EnterSyscall records a trapped syscall and moves the task to
// SyscalledAndWaiting. Called by the syscall processor (component I)
// immediately after decoding the trap.
func (c *Capability) EnterSyscall(code abi.SyscallCode, a, b, d2, e uint64) {
	c.Descriptor.Status = StatusSyscalledAndWaiting
	c.Descriptor.PendingSyscall = code
	c.Descriptor.PendingArgs = [4]uint64{a, b, d2, e}
}

// DeliverReply attaches a computed reply triple to a waiting task and
// moves it to SyscalledReadyToResume.
func (c *Capability) DeliverReply(reply abi.ReplyTriple) {
	if c.Descriptor.Status != StatusSyscalledAndWaiting {
		kernel.Panic(errTaskNotWaiting)
	}
	c.Descriptor.Reply = reply
	c.Descriptor.Status = StatusSyscalledReadyToResume
}

// SwitchTo dispatches this task: it writes the pending reply (if any) into
// the saved register file, switches the active page table to the task's
// own, and hands off to cpu.SwitchToUser, which returns once the task
// re-enters the kernel via SYSCALL (spec.md §4.7, §9). Called only by the
// scheduler's run loop.
func (c *Capability) SwitchTo() {
	if c.Kind != KindTask {
		kernel.Panic(errWrongKind)
	}

	d := &c.Descriptor
	if d.TopLevelTable == nil {
		kernel.Panic(errTaskNoAddressSpace)
	}

	switch d.Status {
	case StatusInactive:
		d.Reply = abi.ReplyTriple{}
	case StatusSyscalledReadyToResume:
		// d.Reply already holds the triple computed by DeliverReply.
	default:
		kernel.Panic(errTaskBadSwitchStatus)
	}

	d.Registers.SetReply(uint64(d.Reply.Err), d.Reply.R1, d.Reply.R2)
	d.Status = StatusActive

	d.TopLevelTable.ActivateAddressSpace()
	cpu.SwitchToUser(&d.Registers, uint64(d.Reply.Err), d.Reply.R1, d.Reply.R2)
}
