package cpu

import "relickernel/kernel/kfmt"

// Registers is a snapshot of all general-purpose and segment/flags
// registers captured on entry to the kernel (syscall, exception or IRQ) and
// restored on the way back out. Field layout and naming follow gopher-os's
// kernel/gate.Registers.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	RSP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// RIP is the instruction the task should resume at.
	RIP uint64

	// RFlags holds the saved FLAGS register.
	RFlags uint64

	// FSBase holds the task's FS segment base, used for thread-local
	// storage in userspace.
	FSBase uint64
}

// Print dumps the register contents via kfmt.Printf.
func (r *Registers) Print() {
	kfmt.Printf("RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Printf("RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Printf("RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Printf("RBP = %16x RSP = %16x\n", r.RBP, r.RSP)
	kfmt.Printf("R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Printf("R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Printf("R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Printf("R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Printf("RIP = %16x RFL = %16x\n", r.RIP, r.RFlags)
	kfmt.Printf("FSB = %16x\n", r.FSBase)
}

// SyscallArgs returns the five syscall argument registers in ABI order
// (code, a, b, c, d) per spec.md §6.4.
func (r *Registers) SyscallArgs() (code, a, b, c, d uint64) {
	return r.RDI, r.RSI, r.RDX, r.R8, r.R9
}

// SetReply writes a syscall reply triple into the registers used by the
// ABI's sysret reply-register layout (rax = error code, rdi = r1, r8 = r2).
func (r *Registers) SetReply(errCode, r1, r2 uint64) {
	r.RAX = errCode
	r.RDI = r1
	r.R8 = r2
}
