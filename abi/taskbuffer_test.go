package abi

import "testing"

func TestTaskBufferEncodeDecodeRoundTrip(t *testing.T) {
	var tb TaskBuffer
	tb.SelfAddress = 0xDEAD_BEEF_0000
	tb.PayloadLength = 3
	copy(tb.PayloadData[:], "abc")
	tb.Caps[0] = NewCAddr(2, 4, 5)
	tb.RawMessage = 0x42

	buf := make([]byte, TaskBufferSize)
	tb.Encode(buf)

	var got TaskBuffer
	got.Decode(buf)

	if got.SelfAddress != tb.SelfAddress {
		t.Errorf("SelfAddress = %#x, want %#x", got.SelfAddress, tb.SelfAddress)
	}
	if got.PayloadLength != 3 || string(got.PayloadData[:3]) != "abc" {
		t.Errorf("payload mismatch: %+v", got)
	}
	if got.Caps[0] != tb.Caps[0] {
		t.Errorf("Caps[0] = %+v, want %+v", got.Caps[0], tb.Caps[0])
	}
	if got.RawMessage != 0x42 {
		t.Errorf("RawMessage = %#x, want 0x42", got.RawMessage)
	}
}

func TestWireLayoutFitsInPage(t *testing.T) {
	if wireSize > TaskBufferSize {
		t.Fatalf("wireSize %d exceeds TaskBufferSize %d", wireSize, TaskBufferSize)
	}
}
