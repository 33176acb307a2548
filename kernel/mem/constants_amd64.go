//go:build amd64

// +build amd64

package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's base (4 KiB) page size in bytes.
	PageSize = Size(1 << PageShift)

	// LargePageShift is equal to log2(LargePageSize); large pages are
	// mapped at the L2 (PD) paging level.
	LargePageShift = 21

	// LargePageSize defines the size of a 2 MiB large page.
	LargePageSize = Size(1 << LargePageShift)

	// HugePageShift is equal to log2(HugePageSize); huge pages are
	// mapped at the L3 (PDPT) paging level.
	HugePageShift = 30

	// HugePageSize defines the size of a 1 GiB huge page.
	HugePageSize = Size(1 << HugePageShift)

	// PointerShift is equal to log2(unsafe.Sizeof(uintptr(0))).
	PointerShift = 3

	// MemMapOffset is the virtual offset at which the kernel identity-maps
	// all physical memory (the "higher half"). PAddrGlobal values are
	// PAddr + MemMapOffset.
	MemMapOffset = uintptr(0xFFFF_8000_0000_0000)
)
