// Package sync provides synchronization primitives for a kernel that has no
// preemption and, for most of its lifetime, no OS-level scheduler to block
// on: a Spinlock for the rare case where a CPU-local resource is touched
// from more than one Go-runtime-level goroutine (e.g. a driver callback),
// and a BorrowGuard implementing the capability kernel's single-threaded
// borrow-check primitive (spec.md §5: "a runtime borrow-check primitive
// enforces that no capability is mutably borrowed twice").
package sync

import "sync/atomic"

var (
	// yieldFn is mocked by tests and is automatically inlined by the
	// compiler in production builds; it is not used until context
	// switching exists, at which point it should yield the CPU instead
	// of busy-looping.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active
// task. Attempting to re-acquire a lock already held by the current task
// deadlocks.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		if yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if it could be
// acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock, allowing other tasks to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
