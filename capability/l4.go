package capability

import (
	"unsafe"

	"relickernel/kernel"
	"relickernel/kernel/cpu"
	"relickernel/kernel/mem"
)

// kernelHalfEntries are the two PML4 slots (510 and 511) that map the
// kernel's higher-half image and recursive window. Every new address
// space inherits them unchanged so the kernel remains mapped regardless
// of which task's L4 is active, per spec.md §4.4 and §9's "kernel higher
// half copy on L4 retype" note.
var kernelHalfEntries = [2]int{510, 511}

// inheritKernelHalf copies entries 510/511 from the currently active L4
// (read via cpu.ActivePDT, the physical address in CR3) into a freshly
// derived L4, so a brand-new address space starts with working kernel
// mappings instead of faulting the instant the kernel tries to resume
// after switching to it.
func inheritKernelHalf(l4 Ref) {
	activePhys := cpu.ActivePDT()
	if activePhys == 0 {
		// No address space active yet (e.g. the very first L4 derived
		// during bootstrap, before CR3 points anywhere meaningful): there
		// is nothing to inherit.
		return
	}

	activeGlobal := mem.PAddrFromUintptr(activePhys).Global()
	activeTable := (*PageTable)(unsafe.Pointer(uintptr(activeGlobal)))

	table := l4.PageTableData.GetMut()
	for _, i := range kernelHalfEntries {
		table[i] = activeTable[i]
	}
}

// ActivateAddressSpace loads CR3 with c's physical address, per spec.md
// §4.4's L4::switch_to (named distinctly from Capability's Task-kind
// SwitchTo, since Go methods on one flat union type can't be overloaded
// per variant the way the original's per-type switch_to methods are).
func (c *Capability) ActivateAddressSpace() {
	if c.Kind != KindL4 {
		kernel.Panic(errWrongKind)
	}
	cpu.SwitchPDT(uintptr(c.PageTableData.Addr().Local()))
}
