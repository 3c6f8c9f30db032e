// Package pipeline implements the packet pipeline execution engine: one
// goroutine per plugin stage, a shared circular packet arena, lock-protected
// hand-off of index ranges between adjacent stages, bitrate propagation and
// the joint-termination protocol.
//
// The engine moves 188-byte transport packets from one input plugin through
// zero or more processor plugins to one output plugin, in order, without
// copying the stream. Stages exchange buffer boundaries, never packet data:
// each stage holds a temporary lease on a contiguous index range of the
// arena and releases it downstream when done.
package pipeline

import "github.com/banshee-data/tspipe/internal/ts"

// PacketBuffer is the circular packet arena shared by all stages of one
// pipeline. It is a fixed-capacity array of packet/metadata pairs and holds
// no synchronization of its own: the hand-off protocol in the executors
// guarantees that at any time each slot belongs to exactly one stage.
type PacketBuffer struct {
	pkts  []ts.Packet
	metas []ts.Metadata
}

// NewPacketBuffer allocates an arena of the given capacity in packets.
func NewPacketBuffer(capacity int) *PacketBuffer {
	return &PacketBuffer{
		pkts:  make([]ts.Packet, capacity),
		metas: make([]ts.Metadata, capacity),
	}
}

// Capacity returns the arena size in packets.
func (b *PacketBuffer) Capacity() int { return len(b.pkts) }

// At returns the packet and metadata at index, modulo capacity.
func (b *PacketBuffer) At(index int) (*ts.Packet, *ts.Metadata) {
	i := index % len(b.pkts)
	return &b.pkts[i], &b.metas[i]
}

// Slice returns the contiguous packet and metadata slices for the range
// [first, first+count). The range must not wrap around the end of the arena;
// waitWork only hands out ranges that do not.
func (b *PacketBuffer) Slice(first, count int) ([]ts.Packet, []ts.Metadata) {
	first %= len(b.pkts)
	return b.pkts[first : first+count : first+count], b.metas[first : first+count : first+count]
}
