package boot

import (
	"encoding/binary"
	"testing"

	"relickernel/abi"
	"relickernel/capability"
	"relickernel/kernel/mem"
)

// buildMinimalImage assembles a trivial ET_DYN ELF64 image with a single
// PT_LOAD segment and no dynamic relocations, just enough for Boot to load
// and compute an entry point. Field offsets mirror elf_test.go's
// buildImage in package elf.
func buildMinimalImage(t *testing.T) []byte {
	t.Helper()

	const (
		phdrOff   = 64
		segOff    = 120
		segFileSz = 8
		segMemSz  = 4096
		segVAddr  = 0x1000
	)

	img := make([]byte, segOff+segMemSz)
	img[0], img[1], img[2], img[3] = 0x7f, 'E', 'L', 'F'
	img[4] = 2 // ELFCLASS64
	img[5] = 1 // ELFDATA2LSB
	binary.LittleEndian.PutUint16(img[16:], 3) // ET_DYN
	binary.LittleEndian.PutUint64(img[24:], 0x55) // e_entry
	binary.LittleEndian.PutUint64(img[32:], phdrOff)
	binary.LittleEndian.PutUint16(img[54:], 56) // e_phentsize
	binary.LittleEndian.PutUint16(img[56:], 1)  // e_phnum

	binary.LittleEndian.PutUint32(img[phdrOff:], 1)    // PT_LOAD
	binary.LittleEndian.PutUint32(img[phdrOff+4:], 5)  // R|X
	binary.LittleEndian.PutUint64(img[phdrOff+8:], segOff)
	binary.LittleEndian.PutUint64(img[phdrOff+16:], segVAddr)
	binary.LittleEndian.PutUint64(img[phdrOff+32:], segFileSz)
	binary.LittleEndian.PutUint64(img[phdrOff+40:], segMemSz)

	binary.LittleEndian.PutUint64(img[segOff:], 0xCAFEBABEDEADBEEF)
	return img
}

func newConfig(t *testing.T) Config {
	return Config{
		FreeRegions: []FreeRegion{
			{Start: mem.PAddrGlobal(0x10_0000), Length: mem.Size(4 * mem.Mb)},
			{Start: mem.PAddrGlobal(0x20_0000), Length: mem.Size(2 * mem.Mb)},
		},
		SigmaImage: buildMinimalImage(t),
		Framebuffer: abi.FramebufferInfo{
			Width: 1024, Height: 768, Mode: abi.FramebufferARGB,
		},
		Priority: 5,
	}
}

func TestBootProducesRunnableTask(t *testing.T) {
	res, err := Boot(newConfig(t))
	if err != nil {
		t.Fatalf("Boot failed: %v", err)
	}
	if res.Sigma == nil {
		t.Fatalf("Sigma task ref is nil")
	}
	if res.Sigma.Descriptor.Status != capability.StatusActive {
		t.Fatalf("status = %v, want Active", res.Sigma.Descriptor.Status)
	}
	if res.Sigma.Descriptor.Registers.RIP != 0x55+sigmaLoadBias {
		t.Fatalf("RIP = %#x, want %#x", res.Sigma.Descriptor.Registers.RIP, uint64(0x55+sigmaLoadBias))
	}

	got := res.Scheduler.GetTaskToRun()
	if got != res.Sigma {
		t.Fatalf("scheduler did not return the booted task")
	}
}

func TestBootstrapInfoIsWrittenToTaskBuffer(t *testing.T) {
	res, err := Boot(newConfig(t))
	if err != nil {
		t.Fatalf("Boot failed: %v", err)
	}

	tbRef := res.Sigma.Descriptor.TaskBuffer
	raw := pageBytes(tbRef)

	var tb abi.TaskBuffer
	tb.Decode(raw)
	if tb.SelfAddress != taskBufferVAddr {
		t.Fatalf("SelfAddress = %#x, want %#x", tb.SelfAddress, taskBufferVAddr)
	}

	var info abi.BootstrapInfo
	info.Decode(tb.PayloadData[:abi.BootstrapInfoWireSize])

	if info.CpoolCapability != abi.NewCAddr(1, slotSelf) {
		t.Fatalf("CpoolCapability = %+v", info.CpoolCapability)
	}
	if info.TopLevelPML4 != abi.NewCAddr(1, slotL4) {
		t.Fatalf("TopLevelPML4 = %+v", info.TopLevelPML4)
	}
	if info.FreeMemRegionsStart != abi.NewCAddr(1, slotFreeStart) {
		t.Fatalf("FreeMemRegionsStart = %+v", info.FreeMemRegionsStart)
	}
	if info.FBInfo.Width != 1024 || info.FBInfo.Height != 768 {
		t.Fatalf("framebuffer info not round-tripped: %+v", info.FBInfo)
	}
}

func TestBootCPoolSelfReferenceResolves(t *testing.T) {
	res, err := Boot(newConfig(t))
	if err != nil {
		t.Fatalf("Boot failed: %v", err)
	}

	cpool := res.Sigma.Descriptor.Cpool
	self, resErr := cpool.ResolveCapability(abi.NewCAddr(1, slotSelf))
	if resErr != capability.ErrNone {
		t.Fatalf("resolving self slot failed: %v", resErr)
	}
	if self.Kind != capability.KindCPool {
		t.Fatalf("self slot kind = %v, want CPool", self.Kind)
	}
}

func TestBootRejectsEmptyFreeRegions(t *testing.T) {
	cfg := newConfig(t)
	cfg.FreeRegions = nil
	if _, err := Boot(cfg); err == nil {
		t.Fatalf("expected an error with no free regions")
	}
}

func TestBootRejectsMisalignedStackSize(t *testing.T) {
	cfg := newConfig(t)
	cfg.StackSize = mem.Size(mem.PageSize) + 1
	if _, err := Boot(cfg); err == nil {
		t.Fatalf("expected an error with a misaligned stack size")
	}
}
