// Package boxed provides Boxed[T], a thin owning handle to a value that
// lives at a fixed physical address rather than on the Go heap. The
// capability kernel has no heap during early boot (and, by policy, never
// frees capability-backing memory — see spec.md §4.2), so every typed
// kernel object is "allocated" by bumping an Untyped's watermark and then
// addressed through a Boxed[T] rather than through a Go pointer the
// garbage collector would need to track.
//
// This generalizes the single-purpose address-to-pointer casts gopher-os
// sprinkles through kernel/mem/vmm (e.g. ptePtrFn, pmm.Frame.Address) into
// one reusable, typed primitive.
package boxed

import (
	"unsafe"

	"relickernel/kernel/mem"
)

// Boxed is an owning handle to a T stored at a fixed physical address. It
// does not itself allocate or free that memory: the address must already
// be reserved (typically via Untyped.Allocate) before constructing a
// Boxed[T] over it, and the memory remains reserved for as long as the
// enclosing Untyped capability exists.
type Boxed[T any] struct {
	addr mem.PAddrGlobal
}

// New constructs a Boxed[T] pointing at addr. The caller must guarantee
// that addr names size_of(T) bytes of memory reserved for exclusive use by
// this box; New itself performs no allocation and no zeroing.
func New[T any](addr mem.PAddrGlobal) Boxed[T] {
	return Boxed[T]{addr: addr}
}

// Addr returns the physical-global address this box points at.
func (b Boxed[T]) Addr() mem.PAddrGlobal { return b.addr }

// Valid reports whether the box points anywhere at all.
func (b Boxed[T]) Valid() bool { return b.addr != 0 }

// Get returns a pointer to the boxed value for read access.
func (b Boxed[T]) Get() *T {
	return (*T)(unsafe.Pointer(uintptr(b.addr)))
}

// GetMut returns a pointer to the boxed value for mutation. Callers are
// responsible for ensuring they hold the appropriate sync.BorrowGuard
// borrow before mutating; Boxed itself does not track borrows, since a
// single capability may embed more than one Boxed field sharing one guard.
func (b Boxed[T]) GetMut() *T {
	return (*T)(unsafe.Pointer(uintptr(b.addr)))
}

// Drop resets the boxed value to T's zero value in place. It does not
// release the backing bytes: those are
// owned by the enclosing Untyped derivation and are never individually
// freed (spec.md §4.2, §9 "Monotonic watermark, no free").
func (b Boxed[T]) Drop() {
	var zero T
	*b.GetMut() = zero
}
