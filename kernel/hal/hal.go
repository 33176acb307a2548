// Package hal defines the small set of interfaces the capability kernel
// needs from architecture/board bring-up code that is out of scope for this
// module (GDT/IDT setup, APIC/IOAPIC init, serial console wiring). The
// kernel programs against these interfaces; platform integration code
// supplies the concrete implementation during early boot.
package hal

// Sink is anything early kernel output (kfmt.Printf, kernel.Panic traces)
// can be written to. A serial port, a VGA text buffer and a framebuffer
// console all satisfy it.
type Sink interface {
	WriteByte(b byte) error
	Write(p []byte) (int, error)
}

// ActiveSink is the currently installed output sink. It starts out nil, in
// which case kfmt buffers output internally until SetSink installs one.
var ActiveSink Sink

// SetSink installs the sink used by kfmt.Printf and kernel.Panic.
func SetSink(s Sink) {
	ActiveSink = s
}
