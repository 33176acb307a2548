// Package paging implements the four paging-table capability kinds
// (L4/L3/L2/L1) and the raw-page capabilities they map, per spec.md §4.4
// and §4.5. It depends on package capability (for Capability, Kind,
// Error) but is not depended on by it, so there is no import cycle with
// capability.Descriptor living directly in the capability package.
package paging

import (
	"relickernel/capability"
	"relickernel/kernel/mem"
)

// pteFlag is one bit of an x86_64 page-table entry. The encoding below is
// the standard amd64 4-level paging layout spec.md §1 names as a fixed
// collaborator table, not something this module is free to redefine.
type pteFlag uint64

const (
	flagPresent      pteFlag = 1 << 0
	flagReadWrite    pteFlag = 1 << 1
	flagUserspace    pteFlag = 1 << 2
	flagCacheDisable pteFlag = 1 << 4
	flagLargePage    pteFlag = 1 << 7 // PS bit: 2 MiB page at the PD level
	flagHugePage     pteFlag = 1 << 7 // PS bit: 1 GiB page at the PDPT level
	flagExecDisable  pteFlag = 1 << 63

	// addrMask extracts bits 12..51, the physical-address field of a PTE.
	addrMask = uint64(0x000F_FFFF_FFFF_F000)
)

// Perms is the permission set a caller requests when mapping a page or
// table, per spec.md §4.4 step 3.
type Perms uint8

const (
	PermRead    Perms = 1 << 0
	PermWrite   Perms = 1 << 1
	PermExecute Perms = 1 << 2
)

// MapOpts carries the non-permission knobs map_sub exposes, so adding one
// doesn't change every call site's signature.
type MapOpts struct {
	CacheDisable bool
	Large        bool // PD-level entry maps a 2 MiB page
	Huge         bool // PDPT-level entry maps a 1 GiB page
}

func encodePTE(addr mem.PAddr, perms Perms, opts MapOpts) uint64 {
	flags := flagPresent | flagUserspace
	if perms&PermWrite != 0 {
		flags |= flagReadWrite
	}
	if perms&PermExecute == 0 {
		flags |= flagExecDisable
	}
	if opts.CacheDisable {
		flags |= flagCacheDisable
	}
	if opts.Large || opts.Huge {
		flags |= flagLargePage
	}
	return uint64(addr.Uintptr())&addrMask | uint64(flags)
}

func ptePresent(pte uint64) bool {
	return pte&uint64(flagPresent) != 0
}

func pteAddr(pte uint64) mem.PAddr {
	return mem.PAddrFromUintptr(uintptr(pte & addrMask))
}

// Indices returns the four 9-bit page-table indices (PML4, PDPT, PD, PT)
// encoded in vaddr, per the standard amd64 4-level paging scheme.
func Indices(vaddr mem.VAddr) (l4, l3, l2, l1 int) {
	idx := Indices4(vaddr)
	return idx[0], idx[1], idx[2], idx[3]
}

// Indices4 is Indices in array form, for code that walks the levels in a
// loop rather than naming each one.
func Indices4(vaddr mem.VAddr) [4]int {
	v := uint64(vaddr)
	return [4]int{
		int((v >> 39) & 0x1FF),
		int((v >> 30) & 0x1FF),
		int((v >> 21) & 0x1FF),
		int((v >> 12) & 0x1FF),
	}
}

// kindForLevel returns the paging Kind one level below parent, so the
// recursive map walk knows what to derive for a missing intermediate
// table.
func kindForLevel(parent capability.Kind) capability.Kind {
	switch parent {
	case capability.KindL4:
		return capability.KindL3
	case capability.KindL3:
		return capability.KindL2
	case capability.KindL2:
		return capability.KindL1
	default:
		return capability.KindEmpty
	}
}
