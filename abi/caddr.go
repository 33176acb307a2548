// Package abi defines the wire format shared between the kernel and the
// userspace task it boots (sigma): capability addresses, the bootstrap
// payload, the task buffer layout and the syscall encoding. Nothing in
// this package depends on the kernel's internal capability representation
// — it is pure data, per spec.md §6.
package abi

// CAddr is an 8-byte capability address: a 7-byte nibble^H^Hbyte-indexed
// path through nested capability pools, plus a 1-byte depth in [0,7].
// Byte i of Path is the CPool slot index to resolve at step i; Depth says
// how many of those bytes are significant. Per spec.md §6.1 the in-memory
// layout is little-endian with the path occupying bytes 0..6 and depth in
// byte 7.
type CAddr struct {
	Path  [7]byte
	Depth uint8
}

// NewCAddr builds a CAddr from a sequence of capability pool indices
// (innermost last) and the given depth. Indices beyond depth are ignored.
func NewCAddr(depth uint8, indices ...byte) CAddr {
	var c CAddr
	c.Depth = depth
	for i := 0; i < len(indices) && i < len(c.Path); i++ {
		c.Path[i] = indices[i]
	}
	return c
}

// Uint64 encodes the CAddr into its 8-byte little-endian wire
// representation (bytes 0..6 = path, byte 7 = depth).
func (c CAddr) Uint64() uint64 {
	var v uint64
	for i := 0; i < 7; i++ {
		v |= uint64(c.Path[i]) << (8 * uint(i))
	}
	v |= uint64(c.Depth) << 56
	return v
}

// CAddrFromUint64 decodes the 8-byte wire representation produced by
// CAddr.Uint64 back into a CAddr.
func CAddrFromUint64(v uint64) CAddr {
	var c CAddr
	for i := 0; i < 7; i++ {
		c.Path[i] = byte(v >> (8 * uint(i)))
	}
	c.Depth = byte(v >> 56)
	return c
}

// Head returns the leading path byte (the CPool slot index to resolve
// first).
func (c CAddr) Head() byte {
	return c.Path[0]
}

// Shl ("shift left") consumes the leading path byte and decrements depth
// by one, producing the CAddr that should be resolved in the child cpool
// once Head() has been consumed in the current one. Per spec.md §4.3, a
// depth-0 CAddr has nothing left to consume; Shl on it returns the zero
// CAddr rather than panicking, since depth can arrive at 0 from
// user-supplied data and the resolver already treats that as "no result"
// rather than a fatal error (see capability.CPool.Resolve).
func (c CAddr) Shl() CAddr {
	if c.Depth == 0 {
		return CAddr{}
	}

	var next CAddr
	copy(next.Path[:], c.Path[1:])
	next.Depth = c.Depth - 1
	return next
}

// IsZero reports whether c names nothing (depth 0).
func (c CAddr) IsZero() bool { return c.Depth == 0 }
