// Package capability implements the typed-capability model at the heart
// of the kernel (spec.md §3, §4.2, §4.3): Capability, the tagged-union
// cell every kernel object lives in; Untyped, the watermark bump
// allocator capabilities are derived from; CPool, the 256-slot container
// that addresses them; the four paging-table capabilities; raw pages; and
// Task, the capability a scheduled task's state lives in.
//
// Capability is modeled as gopher-os models pmm.Frame and friends: a flat
// Go struct wrapping the state needed to implement the type's behavior,
// with architecture-specific assembly kept out of it entirely. Where the
// Rust original uses an enum (tagged union) with per-variant payloads that
// overlap in memory, Go has no equivalent memory-layout primitive; this
// module represents the union as one struct holding the union of all
// variants' (small) fields, tagged by Kind — the "tagged union plus
// visitor pattern" spec.md §9 calls for in place of heap-allocated
// polymorphism. Bulk per-capability payloads (a page table, a page's
// bytes, a task's register save area) are NOT inlined into the cell; they
// are Boxed[T] elsewhere, exactly as spec.md §3 only inlines the small
// bookkeeping fields (start/length/watermark, linked-task pointers, list
// links) into the cell itself.
package capability

import (
	"relickernel/kernel/mem"
	"relickernel/kernel/mem/boxed"
	"relickernel/kernel/sync"
)

// Kind identifies which variant of the Capability union a cell holds.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindUntyped
	KindCPool
	KindL4
	KindL3
	KindL2
	KindL1
	KindBasePage
	KindLargePage
	KindHugePage
	KindTask
)

// String renders a Kind for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "Empty"
	case KindUntyped:
		return "Untyped"
	case KindCPool:
		return "CPool"
	case KindL4:
		return "L4"
	case KindL3:
		return "L3"
	case KindL2:
		return "L2"
	case KindL1:
		return "L1"
	case KindBasePage:
		return "BasePage"
	case KindLargePage:
		return "LargePage"
	case KindHugePage:
		return "HugePage"
	case KindTask:
		return "Task"
	default:
		return "Unknown"
	}
}

// IsPagingKind reports whether k is one of the four paging-table kinds.
func (k Kind) IsPagingKind() bool {
	return k == KindL4 || k == KindL3 || k == KindL2 || k == KindL1
}

// IsPageKind reports whether k is one of the three raw-page kinds.
func (k Kind) IsPageKind() bool {
	return k == KindBasePage || k == KindLargePage || k == KindHugePage
}

// Ref is a handle to a live Capability cell. It is a plain pointer: the
// cell's lifetime is tied to the arena (a CPool's slot array) it lives in,
// not to Go's garbage collector, since the cell's backing storage is
// itself carved out of an Untyped derivation (spec.md §9, "Cyclic object
// graph").
type Ref = *Capability

// Capability is a single capability-pool slot. Every non-Empty cell owns
// all the kernel resources it names (invariant I1); overwriting a
// non-Empty cell is a programming error enforced by CPool.WriteToIfEmpty.
type Capability struct {
	Kind Kind

	// Guard enforces spec.md §5's single-borrower rule for this cell.
	Guard sync.BorrowGuard

	// NextMemItem/PrevMemItem thread this capability into its parent
	// Untyped's first_child sibling list (invariant I2). Meaningful for
	// every derived kind; unused by Untyped itself (only bootstrap
	// creates untypeds, so they have no parent to be linked under).
	NextMemItem Ref
	PrevMemItem Ref

	// --- KindUntyped ---
	UntypedStart      mem.PAddrGlobal
	UntypedLength     mem.Size
	UntypedWatermark  mem.PAddrGlobal
	UntypedFirstChild Ref
	UntypedIsDevice   bool

	// --- KindCPool ---
	CPoolData       boxed.Boxed[CPoolSlots]
	CPoolLinkedTask Ref

	// --- KindL4/L3/L2/L1 ---
	PageTableData    boxed.Boxed[PageTable]
	ChildPagingItem  Ref
	NextPagingItem   Ref
	PrevPagingItem   Ref
	PagingLinkedTask Ref // L4 only

	// --- KindBasePage/LargePage/HugePage ---
	PageAddr       mem.PAddrGlobal
	PageSize       mem.Size
	PageNextItem   Ref
	PagePrevItem   Ref
	PageLinkedTask Ref

	// --- KindTask ---
	Descriptor Descriptor
	// NextSchedItem/PrevSchedItem thread this task into its priority's
	// scheduler ring (component H).
	NextSchedItem Ref
	PrevSchedItem Ref
}

// PageTableEntries is the number of entries in one page table (512 on
// amd64).
const PageTableEntries = 512

// PageTable is the boxed payload of an L4/L3/L2/L1 capability: a 4 KiB
// array of raw page-table entries. The entry encoding is standard x86_64
// 4-level paging, documented as a table in spec.md §1 and out of scope to
// redefine here; see capability/paging/pte.go for the flag bits this module does
// define and use.
type PageTable [PageTableEntries]uint64

// CPoolSlots is the boxed payload of a CPool capability: 256 capability
// cells.
type CPoolSlots [256]Capability

// StartPAddr returns the physical-global start address this capability's
// backing resource occupies. Used by the paging search routines (spec.md
// §4.4) to recognize an already-derived child table by address rather than
// by identity, and by invariant I2's sibling-list bookkeeping.
func (c *Capability) StartPAddr() mem.PAddrGlobal {
	switch {
	case c.Kind == KindUntyped:
		return c.UntypedStart
	case c.Kind.IsPagingKind():
		return c.PageTableData.Addr()
	case c.Kind.IsPageKind():
		return c.PageAddr
	default:
		return 0
	}
}
