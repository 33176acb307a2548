package boxed

import (
	"testing"
	"unsafe"

	"relickernel/kernel/mem"
)

type point struct{ X, Y int64 }

func uintptrOf(p *point) uintptr { return uintptr(unsafe.Pointer(p)) }

func TestBoxedRoundTrip(t *testing.T) {
	var backing point
	addr := mem.PAddrGlobal(uintptrOf(&backing))

	b := New[point](addr)
	if !b.Valid() {
		t.Fatal("expected box to be valid")
	}

	b.GetMut().X, b.GetMut().Y = 10, 20
	if backing.X != 10 || backing.Y != 20 {
		t.Fatalf("writes through box did not reach backing storage: %+v", backing)
	}

	if got := b.Get().X; got != 10 {
		t.Fatalf("Get().X = %d, want 10", got)
	}
}

func TestBoxedDropZeroesInPlace(t *testing.T) {
	var backing point
	backing.X, backing.Y = 1, 2
	b := New[point](mem.PAddrGlobal(uintptrOf(&backing)))

	b.Drop()

	if backing != (point{}) {
		t.Fatalf("Drop did not zero backing storage: %+v", backing)
	}
}

func TestZeroBoxInvalid(t *testing.T) {
	var b Boxed[point]
	if b.Valid() {
		t.Fatal("zero-value box should be invalid")
	}
}
