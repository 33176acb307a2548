//go:build amd64

// +build amd64

package mem

// PAddr is a physical memory address. It carries no validation of its own;
// whether the address is backed by real RAM is a property of the untyped
// region it was carved out of, not of the address value itself.
type PAddr uintptr

// Uintptr returns the raw integer value of the address.
func (a PAddr) Uintptr() uintptr { return uintptr(a) }

// Global translates a physical address into the kernel's higher-half
// identity mapping, producing a PAddrGlobal the kernel can dereference
// directly.
func (a PAddr) Global() PAddrGlobal { return PAddrGlobal(uintptr(a) + MemMapOffset) }

// PAddrFromUintptr constructs a PAddr from a raw integer value.
func PAddrFromUintptr(v uintptr) PAddr { return PAddr(v) }

// PAddrGlobal is a physical address already offset into the kernel's
// higher-half identity mapping (PAddr + MemMapOffset). Boxed[T] stores
// values of this type because they can be dereferenced directly by the
// kernel without any further page-table lookup.
type PAddrGlobal uintptr

// Uintptr returns the raw integer value of the address.
func (a PAddrGlobal) Uintptr() uintptr { return uintptr(a) }

// Local strips the higher-half offset, returning the underlying physical
// address. The round trip PAddr.Global().Local() is lossless.
func (a PAddrGlobal) Local() PAddr { return PAddr(uintptr(a) - MemMapOffset) }

// Add returns a + off.
func (a PAddrGlobal) Add(off uintptr) PAddrGlobal { return PAddrGlobal(uintptr(a) + off) }

// VAddr is a 64-bit virtual address.
type VAddr uintptr

// userModeMask covers the top 17 bits of a canonical amd64 address (bits
// 47..63); a valid user-mode address has all of them clear, a valid
// kernel-mode address has all of them set (sign-extension of a canonical
// 48-bit address space).
const userModeMask = uintptr(0xFFFF_8000_0000_0000)

// ValidateUserMode reports whether the address's top 17 bits are zero, as
// required of any address a user task may legally name (e.g. a syscall's
// vaddr argument, a task buffer mapping target).
func (a VAddr) ValidateUserMode() bool {
	return uintptr(a)&userModeMask == 0
}

// ValidateKernelMode reports whether the address's top 17 bits are all
// one, as required of kernel-only addresses (e.g. the recursive mapping
// window, MMIO windows established at boot).
func (a VAddr) ValidateKernelMode() bool {
	return uintptr(a)&userModeMask == userModeMask
}

// Uintptr returns the raw integer value of the address.
func (a VAddr) Uintptr() uintptr { return uintptr(a) }
