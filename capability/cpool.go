package capability

import (
	"relickernel/abi"
	"relickernel/kernel"
)

// Slots returns the 256-entry capability array backing c.
func (c *Capability) Slots() *CPoolSlots {
	if c.Kind != KindCPool {
		kernel.Panic(errWrongKind)
	}
	return c.CPoolData.GetMut()
}

// GetFreeIndex linearly scans c for the first Empty slot, per spec.md
// §4.3.
func (c *Capability) GetFreeIndex() (int, Error) {
	slots := c.Slots()
	for i := range slots {
		if slots[i].Kind == KindEmpty {
			return i, ErrNone
		}
	}
	return 0, ErrCapabilitySlotsFull
}

// WriteToIfEmpty publishes cap into slot i if and only if that slot is
// currently Empty, returning a Ref to the now-live cell. Equivalent to the
// CAS-like publish spec.md §4.3 describes; this kernel never runs slot
// writes concurrently (single CPU, interrupts off while mutating a cpool)
// so a plain check-then-write suffices.
func (c *Capability) WriteToIfEmpty(i int, cap Capability) (Ref, Error) {
	slots := c.Slots()
	if i < 0 || i >= len(slots) {
		return nil, ErrInvalidMemoryAddress
	}
	if slots[i].Kind != KindEmpty {
		return nil, ErrCapabilityAlreadyOccupied
	}
	slots[i] = cap
	return &slots[i], ErrNone
}

// UpgradeAny returns a Ref to slot i regardless of its Kind, or nil if the
// slot is Empty.
func (c *Capability) UpgradeAny(i int) Ref {
	slots := c.Slots()
	if i < 0 || i >= len(slots) || slots[i].Kind == KindEmpty {
		return nil
	}
	return &slots[i]
}

// Upgrade returns a Ref to slot i only if it currently holds a capability
// of the given kind.
func (c *Capability) Upgrade(i int, kind Kind) Ref {
	ref := c.UpgradeAny(i)
	if ref == nil || ref.Kind != kind {
		return nil
	}
	return ref
}

// DowngradeFree stores cap into the first free slot and returns its index.
func (c *Capability) DowngradeFree(cap Capability) (int, Error) {
	i, err := c.GetFreeIndex()
	if err != ErrNone {
		return 0, err
	}
	if _, err := c.WriteToIfEmpty(i, cap); err != ErrNone {
		return 0, err
	}
	return i, ErrNone
}

// DowngradeAt stores cap into slot i specifically.
func (c *Capability) DowngradeAt(cap Capability, i int) Error {
	_, err := c.WriteToIfEmpty(i, cap)
	return err
}

// Resolve walks addr against c per spec.md §4.3's address-walk algorithm:
// depth 0 yields no result; depth 1 returns (this cpool, path[0]); depth >
// 1 upgrades path[0] as a CPool and recurses one level shallower.
func (c *Capability) Resolve(addr abi.CAddr) (cpool Ref, index int, err Error) {
	if c.Kind != KindCPool {
		return nil, 0, ErrCapabilityMismatch
	}
	if addr.Depth == 0 {
		return nil, 0, ErrCapabilitySearchFailed
	}
	if addr.Depth == 1 {
		return c, int(addr.Head()), ErrNone
	}

	child := c.Upgrade(int(addr.Head()), KindCPool)
	if child == nil {
		return nil, 0, ErrCapabilitySearchFailed
	}
	return child.Resolve(addr.Shl())
}

// ResolveCapability resolves addr all the way to the capability it names.
func (c *Capability) ResolveCapability(addr abi.CAddr) (Ref, Error) {
	cpool, index, err := c.Resolve(addr)
	if err != ErrNone {
		return nil, err
	}
	ref := cpool.UpgradeAny(index)
	if ref == nil {
		return nil, ErrCapabilitySearchFailed
	}
	return ref, ErrNone
}
