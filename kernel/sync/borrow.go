package sync

import (
	"sync/atomic"

	"relickernel/kernel"
)

// BorrowGuard.state packs a shared-borrow count into the lower 31 bits and an
// exclusive-borrow flag into the top bit of a single machine word so both
// can be inspected/updated with one atomic instruction.
const exclusiveBit = uint32(1) << 31

var errDoubleBorrow = &kernel.Error{Module: "borrow", Message: "capability cell already exclusively borrowed"}

// BorrowGuard enforces, for a single capability cell, that it is never
// mutably (exclusive) borrowed while any other borrow — shared or
// exclusive — is outstanding. Violating this is a programming error per
// spec.md §5 ("Borrow violations are programming errors and trigger kernel
// panic"), so BorrowGuard panics rather than returning an error.
//
// BorrowGuard is intentionally simpler than a sync.RWMutex: there is never
// a reason to block here, since the kernel is single-threaded with respect
// to capability mutation. A failed borrow means the caller (or a caller
// higher up the same call stack) already holds an incompatible borrow on
// the same cell.
type BorrowGuard struct {
	state uint32
}

// BorrowShared acquires a shared (read-only) borrow, panicking if the cell
// is currently exclusively borrowed. It returns a function that releases
// the borrow.
func (g *BorrowGuard) BorrowShared() func() {
	for {
		old := atomic.LoadUint32(&g.state)
		if old&exclusiveBit != 0 {
			kernel.Panic(errDoubleBorrow)
			return func() {}
		}
		if atomic.CompareAndSwapUint32(&g.state, old, old+1) {
			return func() { atomic.AddUint32(&g.state, ^uint32(0)) }
		}
	}
}

// BorrowExclusive acquires a mutable borrow, panicking if the cell is
// already borrowed in any way. It returns a function that releases the
// borrow.
func (g *BorrowGuard) BorrowExclusive() func() {
	if !atomic.CompareAndSwapUint32(&g.state, 0, exclusiveBit) {
		kernel.Panic(errDoubleBorrow)
	}
	return func() { atomic.StoreUint32(&g.state, 0) }
}
