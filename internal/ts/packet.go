// Package ts defines the fixed-size transport packet, its out-of-band
// metadata and the bitrate types shared by the pipeline engine and plugins.
//
// The engine never interprets packet payload. The only byte it gives meaning
// to is the first one: a valid packet starts with the sync byte and a dropped
// packet has it zeroed in place.
package ts

const (
	// PacketSize is the fixed size in bytes of a transport packet.
	PacketSize = 188

	// SyncByte is the expected value of the first byte of every packet.
	SyncByte = 0x47
)

// PID is a 13-bit packet identifier.
type PID uint16

const (
	// PIDNull identifies null (stuffing) packets.
	PIDNull PID = 0x1FFF

	// PIDMax is one past the highest valid PID value.
	PIDMax PID = 0x2000
)

// Packet is one fixed-size transport packet. It is a plain value type so a
// buffer of packets is a single contiguous allocation.
type Packet [PacketSize]byte

// nullPacket is the canonical null packet: sync byte, null PID, no
// adaptation field, payload filled with 0xFF.
var nullPacket = func() Packet {
	var p Packet
	p[0] = SyncByte
	p[1] = 0x1F
	p[2] = 0xFF
	p[3] = 0x10
	for i := 4; i < PacketSize; i++ {
		p[i] = 0xFF
	}
	return p
}()

// NullPacket returns a copy of the canonical null packet.
func NullPacket() Packet { return nullPacket }

// SetNull overwrites the packet with the canonical null packet.
func (p *Packet) SetNull() { *p = nullPacket }

// HasValidSync reports whether the packet starts with the sync byte.
func (p *Packet) HasValidSync() bool { return p[0] == SyncByte }

// Drop marks the packet as dropped by zeroing its sync byte. The payload is
// left alone; downstream stages must not inspect a dropped packet beyond
// this marker.
func (p *Packet) Drop() { p[0] = 0 }

// Dropped reports whether the packet carries the drop marker.
func (p *Packet) Dropped() bool { return p[0] == 0 }

// PID returns the 13-bit packet identifier.
func (p *Packet) PID() PID {
	return PID(p[1]&0x1F)<<8 | PID(p[2])
}

// SetPID replaces the 13-bit packet identifier, leaving the other header
// bits untouched.
func (p *Packet) SetPID(pid PID) {
	p[1] = (p[1] &^ 0x1F) | byte(pid>>8)&0x1F
	p[2] = byte(pid)
}

// ContinuityCounter returns the 4-bit continuity counter.
func (p *Packet) ContinuityCounter() uint8 { return p[3] & 0x0F }

// SetContinuityCounter replaces the 4-bit continuity counter.
func (p *Packet) SetContinuityCounter(cc uint8) {
	p[3] = (p[3] &^ 0x0F) | (cc & 0x0F)
}

// HasPayload reports whether the header announces a payload.
func (p *Packet) HasPayload() bool { return p[3]&0x10 != 0 }

// TransportError reports whether the transport error indicator is set.
func (p *Packet) TransportError() bool { return p[1]&0x80 != 0 }

// PayloadUnitStart reports whether the payload unit start indicator is set.
func (p *Packet) PayloadUnitStart() bool { return p[1]&0x40 != 0 }
