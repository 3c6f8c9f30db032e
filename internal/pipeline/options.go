package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/tspipe/internal/monitoring"
	"github.com/banshee-data/tspipe/internal/timeutil"
	"github.com/banshee-data/tspipe/internal/ts"
)

const (
	// DefaultBufferSize is the default arena size in bytes.
	DefaultBufferSize = 16 * 1024 * 1024

	// DefaultBufferPackets is the default arena capacity in packets.
	DefaultBufferPackets = DefaultBufferSize / ts.PacketSize

	// DefaultMaxFlushPackets bounds how many processed packets a processor
	// stage may hold before passing them downstream, for offline sources.
	DefaultMaxFlushPackets = 10_000

	// DefaultMaxFlushPacketsRealTime is the same bound for real-time
	// sources, where end-to-end latency matters more than batching.
	DefaultMaxFlushPacketsRealTime = 1_000

	// DefaultMaxInputPacketsRealTime bounds a single receive call for
	// real-time sources so one call cannot monopolize the arena.
	DefaultMaxInputPacketsRealTime = 1_000

	// DefaultBitRateAdjustInterval is how often the input stage re-evaluates
	// the input bitrate once a value is known.
	DefaultBitRateAdjustInterval = 5 * time.Second

	// DefaultInitBitRateAdjustPackets is how often, in received packets, the
	// input stage retries the bitrate evaluation while it is still unknown.
	DefaultInitBitRateAdjustPackets = 1_000
)

// Options are the global pipeline knobs, as opposed to per-plugin options
// which each plugin parses itself.
type Options struct {
	// BufferPackets is the arena capacity in packets.
	BufferPackets int

	// MaxFlushPackets bounds how many processed packets a processor stage
	// accumulates before passing them downstream. Zero picks the default for
	// the input plugin's real-time mode.
	MaxFlushPackets int

	// MaxInputPackets bounds a single input receive call. Zero means no
	// bound for offline sources and the real-time default for live ones.
	MaxInputPackets int

	// InitialInputPackets is the backlog the input stage accumulates before
	// its first hand-off. Zero means half the arena.
	InitialInputPackets int

	// StuffStart and StuffStop insert that many null packets before the
	// first received packet and after the last one.
	StuffStart int
	StuffStop  int

	// StuffNull and StuffInput interleave StuffNull null packets every
	// StuffInput input packets. Both zero disables interleaved stuffing.
	StuffNull  int
	StuffInput int

	// FixedBitRate forces the input bitrate instead of querying the input
	// plugin. Propagated with Exact confidence.
	FixedBitRate ts.BitRate

	// BitRateAdjustInterval is the period of input bitrate re-evaluation
	// once a value is known.
	BitRateAdjustInterval time.Duration

	// InitBitRateAdjustPackets is the retry period, in received packets,
	// while the bitrate is still unknown.
	InitBitRateAdjustPackets uint64

	// ReceiveTimeout bounds each input receive call. When the input plugin
	// cannot bound its own calls, a watchdog aborts the stalled call. Zero
	// disables the timeout.
	ReceiveTimeout time.Duration

	// IgnoreJointTermination makes every joint termination call a no-op.
	IgnoreJointTermination bool

	// LogPluginIndex appends the chain position to each stage's log prefix,
	// to tell apart several instances of the same plugin.
	LogPluginIndex bool

	// Clock abstracts time for the input cadence and watchdog. Nil means
	// the real clock.
	Clock timeutil.Clock

	// Log is the diagnostics sink. Nil means monitoring.Logf.
	Log func(format string, args ...interface{})
}

// DefaultOptions returns the offline defaults.
func DefaultOptions() Options {
	return Options{
		BufferPackets:            DefaultBufferPackets,
		BitRateAdjustInterval:    DefaultBitRateAdjustInterval,
		InitBitRateAdjustPackets: DefaultInitBitRateAdjustPackets,
		Clock:                    timeutil.RealClock{},
		Log:                      monitoring.Logf,
	}
}

// Validate checks the options and fills the nil-able fields.
func (o *Options) Validate() error {
	if o.BufferPackets <= 0 {
		return fmt.Errorf("buffer capacity must be positive, got %d packets", o.BufferPackets)
	}
	if o.MaxFlushPackets < 0 || o.MaxInputPackets < 0 || o.InitialInputPackets < 0 {
		return errors.New("packet count knobs must not be negative")
	}
	if o.StuffStart < 0 || o.StuffStop < 0 || o.StuffNull < 0 || o.StuffInput < 0 {
		return errors.New("stuffing counts must not be negative")
	}
	if (o.StuffNull > 0) != (o.StuffInput > 0) {
		return errors.New("interleaved stuffing needs both a null count and an input count")
	}
	if o.ReceiveTimeout < 0 {
		return errors.New("receive timeout must not be negative")
	}
	if o.BitRateAdjustInterval <= 0 {
		o.BitRateAdjustInterval = DefaultBitRateAdjustInterval
	}
	if o.InitBitRateAdjustPackets == 0 {
		o.InitBitRateAdjustPackets = DefaultInitBitRateAdjustPackets
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.Log == nil {
		o.Log = monitoring.Logf
	}
	return nil
}

// applyRealTimeDefaults fills the mode-dependent knobs once the input
// plugin's real-time nature is known.
func (o *Options) applyRealTimeDefaults(realTime bool) {
	if o.MaxFlushPackets == 0 {
		if realTime {
			o.MaxFlushPackets = DefaultMaxFlushPacketsRealTime
		} else {
			o.MaxFlushPackets = DefaultMaxFlushPackets
		}
	}
	if o.MaxInputPackets == 0 && realTime {
		o.MaxInputPackets = DefaultMaxInputPacketsRealTime
	}
	if o.InitialInputPackets == 0 {
		o.InitialInputPackets = o.BufferPackets / 2
	}
	if o.InitialInputPackets > o.BufferPackets {
		o.InitialInputPackets = o.BufferPackets
	}
}
