// Package boot implements the bootstrap sequence (component L, spec.md §2
// row L): given the platform's free-memory map and sigma's ELF image, it
// builds the root capability objects, loads and maps sigma, hands it a
// BootstrapInfo via its task buffer, and admits it into a freshly created
// scheduler.
//
// Early-boot trampolines, GDT/IDT setup and APIC/IOAPIC init are out of
// scope (spec.md §1) and are assumed to have already run by the time
// Boot is called — exactly as gopher-os's kmain is invoked only after its
// assembly trampoline and kernel/hal platform bring-up have already set up
// a stack and jumped into Go code. What this package owns is everything
// from "here is a free-memory map and an ELF image" onward.
package boot

import (
	"unsafe"

	"relickernel/abi"
	"relickernel/capability"
	"relickernel/capability/paging"
	"relickernel/elf"
	"relickernel/kernel"
	"relickernel/kernel/cpu"
	"relickernel/kernel/mem"
	"relickernel/sched"
	"relickernel/syscall"
)

// Fixed cpool slot layout for the task cpool Boot builds. BootstrapInfo's
// CAddrs (spec.md §6.2) all name slots in this same cpool, each one depth-1
// (a single path byte) since sigma resolves every CAddr it is ever handed
// against its own root cpool.
const (
	slotSelf       = 0 // the cpool's own capability, so CpoolCapability can name it
	slotL4         = 1
	slotTaskBuffer = 2
	slotFreeStart  = 3 // first of the Untyped free-region slots
)

// Virtual address layout sigma is booted with. Nothing in spec.md
// prescribes a specific layout (sigma's own image is out of scope, per
// spec.md §1); this is the one convention Boot and the image it loads
// must agree on.
const (
	sigmaLoadBias   = uint64(0x0040_0000)
	taskBufferVAddr = uint64(0x0100_0000)
	stackTopVAddr   = uint64(0x0000_7fff_ffff_f000)
)

// defaultStackSize is used when Config.StackSize is zero.
const defaultStackSize = mem.Size(16 * mem.PageSize)

var (
	errNoFreeRegions = &kernel.Error{Module: "boot", Message: "no free memory regions supplied"}
	errBadStackSize  = &kernel.Error{Module: "boot", Message: "stack size is not a whole number of pages"}
)

// FreeRegion is one entry of the platform-supplied physical memory map —
// the abstraction Boot consumes instead of parsing a multiboot tag list
// itself, since multiboot parsing is out of scope (spec.md §1) and belongs
// to whatever kernel/hal-backed platform code runs before Boot.
type FreeRegion struct {
	Start  mem.PAddrGlobal
	Length mem.Size

	// Device marks an MMIO-backed region (e.g. a framebuffer): Boot wraps
	// it with capability.NewDevice instead of capability.NewRootUntyped so
	// DerivePage never zeroes it.
	Device bool
}

// Config bundles everything Boot needs to build sigma's first address
// space and task.
type Config struct {
	// FreeRegions is the full physical memory map handed to the kernel.
	// FreeRegions[0] is consumed to build the root capability objects
	// (cpool, L4, task, task buffer, stack) before any of it — including
	// what's left of region 0 — is handed to sigma as Untyped capabilities
	// it can retype from.
	FreeRegions []FreeRegion

	// SigmaImage is sigma's ELF64 image, as produced by the toolchain it
	// was linked with (a position-independent executable).
	SigmaImage []byte

	Framebuffer abi.FramebufferInfo
	TLS         abi.TLSInfo

	// StackSize is sigma's initial user stack size. Must be a whole number
	// of pages (Boot returns an error otherwise); defaults to
	// defaultStackSize if zero.
	StackSize mem.Size

	// Priority is the scheduling priority (0-15, spec.md §4.8) sigma is
	// admitted at.
	Priority uint8
}

// Result is everything Run needs to drive the scheduler once Boot has
// finished building sigma's task.
type Result struct {
	Scheduler *sched.Scheduler
	Sigma     capability.Ref
}

// Boot builds the root capability objects from cfg.FreeRegions, loads and
// maps sigma, and admits it into a new scheduler, per spec.md §2's data
// flow: "Bootstrap (L) produces a set of untyped regions (C) stored in a
// root capability pool (D). The ELF loader (K) derives an L4 (E) ... A
// task capability (G) is built and enqueued in (H)."
func Boot(cfg Config) (Result, error) {
	if len(cfg.FreeRegions) == 0 {
		return Result{}, errNoFreeRegions
	}
	stackSize := cfg.StackSize
	if stackSize == 0 {
		stackSize = defaultStackSize
	}
	if stackSize%mem.Size(mem.PageSize) != 0 {
		return Result{}, errBadStackSize
	}

	cpu.EnableNX()
	cpu.EnablePCID()

	bootUntyped := new(capability.Capability)
	first := cfg.FreeRegions[0]
	if first.Device {
		capability.NewDevice(bootUntyped, first.Start, first.Length)
	} else {
		capability.NewRootUntyped(bootUntyped, first.Start, first.Length, false)
	}

	var cpool, l4, task, tbPage capability.Capability
	if err := bootUntyped.DeriveCPool(&cpool); err != capability.ErrNone {
		return Result{}, err
	}
	if err := bootUntyped.DerivePagingTable(&l4, capability.KindL4); err != capability.ErrNone {
		return Result{}, err
	}
	if err := bootUntyped.DeriveTask(&task, cfg.Priority, capability.NextTaskID()); err != capability.ErrNone {
		return Result{}, err
	}
	if err := bootUntyped.DerivePage(&tbPage, mem.Size(mem.PageSize)); err != capability.ErrNone {
		return Result{}, err
	}

	// Store the fixed slots first, so the cpool's own capability (slotSelf)
	// and L4 (slotL4) sit at the addresses BootstrapInfo's CAddrs name
	// regardless of how many free regions follow.
	if err := cpool.DowngradeAt(cpool, slotSelf); err != capability.ErrNone {
		return Result{}, err
	}
	l4Ref := storeAt(&cpool, &l4, slotL4)
	if l4Ref == nil {
		return Result{}, capability.ErrCapabilityAlreadyOccupied
	}
	tbRef := storeAt(&cpool, &tbPage, slotTaskBuffer)
	if tbRef == nil {
		return Result{}, capability.ErrCapabilityAlreadyOccupied
	}

	entry, err := elf.Load(cfg.SigmaImage, bootUntyped, l4Ref, &cpool, nil, sigmaLoadBias)
	if err != nil {
		return Result{}, err
	}

	tbVAddr := mem.VAddr(uintptr(taskBufferVAddr))
	if err := paging.MapRetryingOverflow(l4Ref, tbVAddr, tbRef, bootUntyped, &cpool, nil, paging.PermRead|paging.PermWrite); err != capability.ErrNone {
		return Result{}, err
	}

	stackTop, err := mapStack(bootUntyped, l4Ref, &cpool, stackSize)
	if err != nil {
		return Result{}, err
	}

	// bootUntyped's own leftover capacity becomes sigma's first free
	// region, immediately followed by every other region the platform
	// reported. Per spec.md §6.2, FreeMemRegionsStart/End bound a
	// contiguous run, so bootUntyped must be stored contiguously with the
	// rest rather than, say, appended at the end.
	untypedSlots := make([]capability.Ref, 0, len(cfg.FreeRegions))
	untypedSlots = append(untypedSlots, bootUntyped)
	for i := 1; i < len(cfg.FreeRegions); i++ {
		r := cfg.FreeRegions[i]
		u := new(capability.Capability)
		if r.Device {
			capability.NewDevice(u, r.Start, r.Length)
		} else {
			capability.NewRootUntyped(u, r.Start, r.Length, false)
		}
		untypedSlots = append(untypedSlots, u)
	}

	lastSlot := slotFreeStart
	for i, u := range untypedSlots {
		slot := slotFreeStart + i
		if storeAt(&cpool, u, slot) == nil {
			return Result{}, capability.ErrCapabilitySlotsFull
		}
		lastSlot = slot
	}

	info := abi.BootstrapInfo{
		CpoolCapability:     abi.NewCAddr(1, slotSelf),
		FreeMemRegionsStart: abi.NewCAddr(1, slotFreeStart),
		FreeMemRegionsEnd:   abi.NewCAddr(1, byte(lastSlot)),
		TopLevelPML4:        abi.NewCAddr(1, slotL4),
		FBInfo:              cfg.Framebuffer,
		TLSInfo:             cfg.TLS,
	}
	writeTaskBuffer(tbRef, taskBufferVAddr, info)

	taskRef := storeTask(&cpool, &task)
	if taskRef == nil {
		return Result{}, capability.ErrCapabilitySlotsFull
	}
	taskRef.SetCPool(&cpool)
	taskRef.SetTopLevelTable(l4Ref)
	taskRef.SetTaskBuffer(tbRef)

	taskRef.Descriptor.Registers.RIP = entry
	taskRef.Descriptor.Registers.RSP = stackTop
	if cfg.TLS.Present {
		taskRef.Descriptor.Registers.FSBase = cfg.TLS.TemplateVAddr
	}
	taskRef.Activate()

	s := sched.New()
	s.AddTaskWithPriority(taskRef)

	return Result{Scheduler: s, Sigma: taskRef}, nil
}

// Run drives r.Scheduler forever, closing the loop spec.md §4.7 and §4.9
// describe in separate components: SwitchTo (component J) runs the
// selected task until it re-enters the kernel via SYSCALL, at which point
// its trapped code/args are read back out of the saved register file and
// handed to EnterSyscall, and the syscall processor (component I) takes it
// from there. Never returns.
func Run(r Result) {
	r.Scheduler.RunForever(func(task capability.Ref) {
		task.SwitchTo()

		code, a, b, c, d := task.Descriptor.Registers.SyscallArgs()
		task.EnterSyscall(abi.SyscallCode(code), a, b, c, d)
		syscall.Dispatch(r.Scheduler, task)
	})
}

// storeAt stores a copy of cap into cpool's slot i and returns a Ref to it,
// or nil if the slot wasn't free.
func storeAt(cpool capability.Ref, cap capability.Ref, i int) capability.Ref {
	if err := cpool.DowngradeAt(*cap, i); err != capability.ErrNone {
		return nil
	}
	return cpool.UpgradeAny(i)
}

// storeTask stores task into the first free cpool slot and returns a Ref
// to it. Used instead of storeAt for the task itself since, unlike the
// fixed-layout capabilities above, sigma's own task capability is not
// named by any BootstrapInfo field — a task does not hold a capability
// naming itself.
func storeTask(cpool capability.Ref, task capability.Ref) capability.Ref {
	idx, err := cpool.DowngradeFree(*task)
	if err != capability.ErrNone {
		return nil
	}
	return cpool.Upgrade(idx, capability.KindTask)
}

// mapStack derives stackSize worth of base pages and maps them
// immediately below stackTopVAddr, growing down, and returns the initial
// RSP value (the top of the mapped range, 16-byte aligned per the amd64
// SysV ABI sigma's runtime expects on entry).
func mapStack(untyped, l4, cpool capability.Ref, stackSize mem.Size) (uint64, error) {
	pageCount := uint64(stackSize) / uint64(mem.PageSize)
	for i := uint64(0); i < pageCount; i++ {
		var page capability.Capability
		if err := untyped.DerivePage(&page, mem.Size(mem.PageSize)); err != capability.ErrNone {
			return 0, err
		}
		idx, downErr := cpool.DowngradeFree(page)
		if downErr != capability.ErrNone {
			return 0, downErr
		}
		ref := cpool.Upgrade(idx, capability.KindBasePage)

		pageVAddr := stackTopVAddr - (i+1)*uint64(mem.PageSize)
		vaddr := mem.VAddr(uintptr(pageVAddr))
		if mapErr := paging.MapRetryingOverflow(l4, vaddr, ref, untyped, cpool, nil, paging.PermRead|paging.PermWrite); mapErr != capability.ErrNone {
			return 0, mapErr
		}
	}
	return stackTopVAddr &^ 0xF, nil
}

// pageBytes views a just-derived base page's backing memory as a byte
// slice, the same narrow unsafe cast elf.pageBytes uses for the same
// reason: PageAddr is already expressed in the higher-half global mapping.
func pageBytes(page capability.Ref) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(page.PageAddr))), int(mem.PageSize))
}

// writeTaskBuffer encodes info into tb's PayloadData and writes the full
// wire-format task buffer into the page tbPage backs.
func writeTaskBuffer(tbPage capability.Ref, selfVAddr uint64, info abi.BootstrapInfo) {
	var tb abi.TaskBuffer
	tb.SelfAddress = selfVAddr
	info.Encode(tb.PayloadData[:abi.BootstrapInfoWireSize])
	tb.PayloadLength = uint64(abi.BootstrapInfoWireSize)

	raw := pageBytes(tbPage)
	tb.Encode(raw)
}
