package ts

import (
	"fmt"
	"time"
)

// BitRate is a transport stream bitrate in bits per second, measured over
// full 188-byte packets.
type BitRate uint64

// BitRateConfidence qualifies how much a bitrate value can be trusted when
// two sources disagree. Higher values win.
type BitRateConfidence int

const (
	// ConfidenceLow marks a guess or an undetermined value.
	ConfidenceLow BitRateConfidence = iota

	// ConfidenceClock marks a value measured against a local clock, such
	// as a reception rate.
	ConfidenceClock

	// ConfidenceExact marks an authoritative value: declared by the
	// source device or forced on the command line.
	ConfidenceExact
)

func (c BitRateConfidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceClock:
		return "clock"
	case ConfidenceExact:
		return "exact"
	default:
		return fmt.Sprintf("confidence(%d)", int(c))
	}
}

// String formats the bitrate in a human unit.
func (b BitRate) String() string {
	switch {
	case b == 0:
		return "unknown"
	case b >= 1_000_000:
		return fmt.Sprintf("%.3f Mb/s", float64(b)/1e6)
	case b >= 1_000:
		return fmt.Sprintf("%.3f kb/s", float64(b)/1e3)
	default:
		return fmt.Sprintf("%d b/s", uint64(b))
	}
}

// PacketInterval returns the duration of one packet at this bitrate, or zero
// when the bitrate is unknown.
func (b BitRate) PacketInterval() time.Duration {
	if b == 0 {
		return 0
	}
	return time.Duration(uint64(PacketSize) * 8 * uint64(time.Second) / uint64(b))
}

// PacketsIn returns how many whole packets fit in d at this bitrate.
func (b BitRate) PacketsIn(d time.Duration) int64 {
	if b == 0 || d <= 0 {
		return 0
	}
	bits := uint64(d) * uint64(b) / uint64(time.Second)
	return int64(bits / (PacketSize * 8))
}

// BitRateOver computes the bitrate corresponding to count packets observed
// over the elapsed duration. Returns zero when the duration is not positive.
func BitRateOver(count int64, elapsed time.Duration) BitRate {
	if count <= 0 || elapsed <= 0 {
		return 0
	}
	bits := uint64(count) * PacketSize * 8
	return BitRate(bits * uint64(time.Second) / uint64(elapsed))
}
