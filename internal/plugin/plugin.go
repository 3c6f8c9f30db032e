// Package plugin defines the contract between the pipeline engine and the
// plugins it runs: the three plugin roles, the host services a plugin can
// call back into, the name registry and the application event channel.
package plugin

import (
	"fmt"
	"time"

	"github.com/banshee-data/tspipe/internal/ts"
)

// Kind is the role of a plugin in the chain. The set is closed: every plugin
// is exactly one of input, processor or output.
type Kind int

const (
	KindInput Kind = iota
	KindProcessor
	KindOutput
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindProcessor:
		return "processor"
	case KindOutput:
		return "output"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Status is a processor plugin's verdict on one packet.
type Status int

const (
	// StatusOK passes the packet unchanged (or as modified in place).
	StatusOK Status = iota

	// StatusNull replaces the packet with the canonical null packet. The
	// slot stays alive: the packet is still counted and forwarded.
	StatusNull

	// StatusDrop marks the packet as dropped. It is still counted but
	// never delivered to the output plugin.
	StatusDrop

	// StatusEnd terminates the stream: the packet returning it and
	// everything after it is discarded, downstream sees end-of-input and
	// upstream is aborted.
	StatusEnd
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNull:
		return "null"
	case StatusDrop:
		return "drop"
	case StatusEnd:
		return "end"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Base is the part of the contract common to all three roles.
//
// Configure parses and validates the plugin's own options; an error fails
// pipeline construction before any stage starts. Start and Stop bracket the
// run; Stop is called exactly once, from the plugin's own stage goroutine,
// after the last Receive/ProcessPacket/Send call.
type Base interface {
	Configure(args []string) error
	Start() error
	Stop() error
}

// Input is a pull-style packet source.
type Input interface {
	Base

	// Receive fills up to len(pkts) packet slots and their metadata and
	// returns how many it filled. Returning 0 with a nil error means end
	// of stream; a non-nil error is a plugin I/O failure, fatal to the
	// stage. pkts and metas always have the same length.
	Receive(pkts []ts.Packet, metas []ts.Metadata) (int, error)

	// IsRealTime reports whether the source paces itself (live device,
	// network) rather than delivering as fast as asked (file).
	IsRealTime() bool

	// BitRate returns the stream bitrate as known by the plugin, or zero
	// when unknown.
	BitRate() (ts.BitRate, ts.BitRateConfidence)
}

// Processor transforms packets in place, one at a time.
type Processor interface {
	Base

	// ProcessPacket examines or rewrites one packet. The engine clears
	// meta.FlushRequest and meta.BitRateChange before the call and acts
	// on whatever the plugin set when it returns.
	ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) Status
}

// Output is a push-style packet sink.
type Output interface {
	Base

	// Send delivers a contiguous run of non-dropped packets. An error is
	// fatal to the stage and aborts the pipeline.
	Send(pkts []ts.Packet, metas []ts.Metadata) error
}

// BitRater is an optional capability of processor plugins: reporting an own
// output bitrate. The executor queries it when a ProcessPacket call sets
// meta.BitRateChange.
type BitRater interface {
	BitRate() (ts.BitRate, ts.BitRateConfidence)
}

// Aborter is an optional capability: breaking a blocked Receive or Send from
// another goroutine. The input watchdog uses it on receive timeout, and
// pipeline abort uses it to unblock a stalled input. Abort reports whether
// the plugin was able to interrupt the call.
type Aborter interface {
	Abort() bool
}

// ReceiveTimeouter is an optional capability of input plugins that can bound
// their own Receive calls. When the configured receive timeout is accepted
// here, the engine does not arm its watchdog.
type ReceiveTimeouter interface {
	SetReceiveTimeout(d time.Duration) bool
}

// Host is the engine-side interface handed to every plugin at construction.
// All methods are safe to call from the plugin's stage goroutine; SignalEvent
// delivers synchronously in that same goroutine.
type Host interface {
	// Logf reports through the diagnostics sink, prefixed with the
	// plugin's stage name.
	Logf(format string, args ...any)

	// Debugf reports on the diagnostics stream, dropped unless debug
	// logging is enabled.
	Debugf(format string, args ...any)

	// BitRate returns the bitrate currently propagated to this stage.
	BitRate() (ts.BitRate, ts.BitRateConfidence)

	// Aborting reports whether this stage has been asked to stop. Plugins
	// with long internal loops should poll it.
	Aborting() bool

	// TotalPackets is the number of packets of all kinds that went
	// through this stage, including dropped and stuffed ones.
	TotalPackets() uint64

	// PluginPackets is the number of packets submitted to this plugin.
	PluginPackets() uint64

	// UseJointTermination declares that this plugin wants to take part in
	// the joint termination agreement.
	UseJointTermination()

	// JointTerminate records this plugin's vote to stop at its current
	// packet count. The pipeline ends once every participating plugin has
	// voted and the agreed ceiling is reached.
	JointTerminate()

	// UsingJointTermination reports whether this plugin opted in.
	UsingJointTermination() bool

	// JointTerminated reports whether this plugin already voted.
	JointTerminated() bool

	// SignalEvent delivers an application event to every registered
	// handler whose criteria match this stage. Handlers run synchronously
	// and must not retain data past the call.
	SignalEvent(code uint32, data any)
}
