package ts

import "time"

// MaxLabels is the number of per-packet labels available in a LabelSet.
const MaxLabels = 32

// LabelSet is a set of small integer labels attached to a packet. Labels are
// carried with the packet from the stage that sets them to the end of the
// chain; the engine itself never sets or clears one.
type LabelSet uint32

// Has reports whether label n is in the set. Out-of-range labels are never
// in the set.
func (s LabelSet) Has(n int) bool {
	if n < 0 || n >= MaxLabels {
		return false
	}
	return s&(1<<uint(n)) != 0
}

// With returns the set with label n added.
func (s LabelSet) With(n int) LabelSet {
	if n < 0 || n >= MaxLabels {
		return s
	}
	return s | 1<<uint(n)
}

// Without returns the set with label n removed.
func (s LabelSet) Without(n int) LabelSet {
	if n < 0 || n >= MaxLabels {
		return s
	}
	return s &^ (1 << uint(n))
}

// Any reports whether the set intersects other.
func (s LabelSet) Any(other LabelSet) bool { return s&other != 0 }

// None reports whether the set is empty.
func (s LabelSet) None() bool { return s == 0 }

// Metadata is the out-of-band record attached to each packet slot. It
// travels alongside the packet through the whole chain.
//
// FlushRequest and BitRateChange are signals from a processor plugin to its
// own executor: the executor clears both before each ProcessPacket call and
// acts on whatever the plugin set when the call returns. They are not
// propagated downstream.
type Metadata struct {
	// Labels set by processor plugins, preserved downstream.
	Labels LabelSet

	// InputStamp is the time the packet entered the pipeline. The input
	// stage fills it when the input plugin does not.
	InputStamp time.Time

	// Nullified is set when a processor replaced the packet with the null
	// packet (either by returning StatusNull or by rewriting it).
	Nullified bool

	// Stuffed is set on null packets inserted by the input stage itself
	// (start/stop/interleaved stuffing), which never came from the plugin.
	Stuffed bool

	// FlushRequest asks the executor to pass processed packets downstream
	// without waiting for a full batch.
	FlushRequest bool

	// BitRateChange tells the executor the plugin has a new bitrate to
	// report.
	BitRateChange bool
}

// Reset returns the metadata to its zero state. Called by the input stage
// when a buffer slot is reused for a new packet.
func (m *Metadata) Reset() { *m = Metadata{} }

// ClearSignals clears the plugin-to-executor signals only, keeping labels
// and timestamps.
func (m *Metadata) ClearSignals() {
	m.FlushRequest = false
	m.BitRateChange = false
}

// HasInputStamp reports whether an input timestamp was recorded.
func (m *Metadata) HasInputStamp() bool { return !m.InputStamp.IsZero() }
