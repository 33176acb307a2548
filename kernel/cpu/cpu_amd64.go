// Package cpu declares the architecture primitives the capability kernel
// needs but cannot express in Go: toggling interrupts, flushing TLB
// entries, switching CR3, and the SYSCALL/SYSRET trampoline. Per spec.md
// §1, the assembly bodies for these (GDT/IDT-adjacent, ring-transition
// plumbing) are out of scope for this module; only the Go-visible
// signatures live here, exactly as gopher-os's kernel/cpu/cpu_amd64.go
// declares functions with no body and lets a //go:build amd64 assembly
// file supply the implementation.
package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets CR3 to the given physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address currently loaded in CR3.
func ActivePDT() uintptr

// ReadCR2 returns the faulting address recorded by the last page fault.
func ReadCR2() uint64

// EnableNX sets EFER.NXE, the model-specific register bit that makes the
// page-table execute-disable bit (spec.md §4.4's encode_pte XD flag)
// actually stop instruction fetches instead of being silently ignored.
// Called once during bootstrap, before any address space maps an
// non-executable page.
func EnableNX()

// EnablePCID sets CR4.PCIDE, letting page tables carry a process-context
// ID so SwitchPDT doesn't have to flush the entire TLB on every address
// space switch. Called once during bootstrap, before the first
// ActivateAddressSpace.
func EnablePCID()

// InstallSyscallEntry points the SYSCALL entry MSR (IA32_LSTAR) at the
// kernel's naked trampoline, so that a user-mode SYSCALL instruction
// transfers control there. Called once during bootstrap.
func InstallSyscallEntry()

// SwitchToUser is the context-switch primitive described in spec.md §4.7:
// it saves the current kernel stack pointer/base pointer into a CPU-local
// cell, loads the register snapshot pointed to by regs into the CPU,
// installs the three-word reply pending for the task's next syscall
// (errCode, r1, r2), restores the user FS base, and issues SYSRETQ.
//
// Control returns to the Go call site only when the task re-enters the
// kernel via SYSCALL (or, in a future extension, an interrupt): the naked
// trampoline installed by InstallSyscallEntry captures the user registers
// into regs, stashes the pending post-syscall status, and jumps back to
// the return address of this call. SwitchToUser therefore behaves like a
// synchronous, re-entrant function call into user mode.
func SwitchToUser(regs *Registers, errCode, r1, r2 uint64)
