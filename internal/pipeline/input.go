package pipeline

import (
	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/timeutil"
	"github.com/banshee-data/tspipe/internal/ts"
)

// inputExecutor runs the input stage: it bridges the pull-style receive
// operation of the input plugin to the arena, stamps metadata, owns the
// bitrate evaluation cadence and the null-packet input stuffing, and is the
// only stage that originates end-of-input.
type inputExecutor struct {
	*executor
	input plugin.Input

	clock timeutil.Clock

	pluginCompleted bool
	syncLost        bool
	receiveFailed   bool

	stuffStartRemain int
	stuffStopRemain  int
	stuffNullRemain  int
	stuffInputRemain int

	watchdog    *timeutil.Watchdog
	useWatchdog bool
}

func newInputExecutor(base *executor, in plugin.Input, opts *Options) *inputExecutor {
	e := &inputExecutor{
		executor:         base,
		input:            in,
		clock:            opts.Clock,
		stuffStartRemain: opts.StuffStart,
		stuffStopRemain:  opts.StuffStop,
	}
	if opts.ReceiveTimeout > 0 {
		if rt, ok := in.(plugin.ReceiveTimeouter); ok && rt.SetReceiveTimeout(opts.ReceiveTimeout) {
			// The plugin bounds its own receive calls.
		} else {
			e.Debugf("input plugin does not bound its receive calls, arming watchdog")
			e.useWatchdog = true
			e.watchdog = timeutil.NewWatchdog(opts.Clock, opts.ReceiveTimeout, e.onReceiveTimeout)
		}
	}
	return e
}

// onReceiveTimeout runs on the watchdog goroutine when a receive call stalls
// past the configured timeout.
func (e *inputExecutor) onReceiveTimeout() {
	e.Logf("receive timeout, aborting input")
	if a, ok := e.input.(plugin.Aborter); !ok || !a.Abort() {
		e.Logf("failed to abort input on receive timeout, not supported by this plugin")
	}
}

func (e *inputExecutor) run() {
	e.Debugf("input thread started")

	opts := &e.pipe.opts
	bitrateDueTime := e.clock.Now().Add(opts.BitRateAdjustInterval)
	bitrateDuePackets := opts.InitBitRateAdjustPackets

	// Initial bitrate, before any packet moves.
	if br, conf := e.queryBitrate(); br != 0 {
		e.Debugf("initial input bitrate is %s (%s)", br, conf)
		e.setCurrentBitrate(br, conf)
	} else {
		e.Debugf("unknown initial input bitrate")
	}

	initialFill := opts.InitialInputPackets
	inputEnd := false
	aborted := false

	for {
		w := e.waitWork(1)
		if w.aborted {
			aborted = true
			break
		}

		pktMax := w.count
		if opts.MaxInputPackets > 0 && pktMax > opts.MaxInputPackets {
			pktMax = opts.MaxInputPackets
		}

		// Never read past the joint termination ceiling: those packets
		// would be discarded anyway.
		if allowed, limited := e.ceilingAllowance(); limited {
			if allowed == 0 {
				e.passInput(0, true)
				break
			}
			if pktMax > allowed {
				pktMax = allowed
			}
		}

		read := 0
		if !e.pluginCompleted {
			if initialFill > 1 {
				// Accumulate a starting backlog before the first hand-off
				// so downstream stages do not run dry immediately.
				target := min(pktMax, initialFill)
				for read < target && !e.pluginCompleted {
					read += e.receiveAndStuff(w.first+read, target-read)
				}
				e.Debugf("initial buffer load: %d packets", read)
			} else {
				read = e.receiveAndStuff(w.first, pktMax)
			}
			initialFill = 0
		}

		// Trailing stuffing once the plugin is done.
		if e.pluginCompleted && e.stuffStopRemain > 0 && read < pktMax {
			n := e.receiveNullPackets(w.first+read, min(e.stuffStopRemain, pktMax-read))
			read += n
			e.stuffStopRemain -= n
		}

		inputEnd = e.pluginCompleted && e.stuffStopRemain == 0

		// Periodic bitrate re-evaluation: every BitRateAdjustInterval once
		// a value is known, every InitBitRateAdjustPackets while it is not.
		if opts.FixedBitRate == 0 {
			now := e.clock.Now()
			br, _ := e.currentBitrate()
			if (br == 0 && e.pluginPackets.Load() >= bitrateDuePackets) || now.After(bitrateDueTime) {
				if br == 0 {
					for bitrateDuePackets <= e.pluginPackets.Load() {
						bitrateDuePackets += opts.InitBitRateAdjustPackets
					}
				}
				if !now.Before(bitrateDueTime) {
					bitrateDueTime = now.Add(opts.BitRateAdjustInterval)
				}
				if nb, nc := e.queryBitrate(); nb != 0 {
					e.setCurrentBitrate(nb, nc)
					e.Debugf("input bitrate now %s (%s)", nb, nc)
				}
			}
		}

		e.passInput(read, inputEnd)
		if inputEnd {
			break
		}
	}

	e.Debugf("stopping the input plugin")
	if err := e.input.Stop(); err != nil {
		e.Logf("stop: %v", err)
	}
	if e.watchdog != nil {
		e.watchdog.Close()
	}
	if e.receiveFailed {
		aborted = true
	}
	state := "terminated"
	if aborted {
		state = "aborted"
	}
	e.Debugf("input thread %s after %d packets", state, e.totalPackets.Load())
}

// passInput hands packets downstream. The input stage never propagates an
// abort upstream: its ring predecessor is the output stage, and only freed
// slots travel over that edge.
func (e *inputExecutor) passInput(count int, inputEnd bool) {
	br, conf := e.currentBitrate()
	e.passPackets(count, br, conf, inputEnd, false)
}

// receiveAndStuff reads up to max packets starting at buffer index first,
// weaving in the configured start and interleaved null stuffing.
func (e *inputExecutor) receiveAndStuff(first, max int) int {
	done := 0
	remain := max

	for e.stuffStartRemain > 0 && remain > 0 {
		e.receiveNullPackets(first+done, 1)
		e.stuffStartRemain--
		done++
		remain--
	}

	if e.pipe.opts.StuffInput == 0 {
		if remain > 0 {
			done += e.receiveAndValidate(first+done, remain)
		}
		return done
	}

	// Alternate runs of input packets and null packets per the N/M knob.
	for remain > 0 {
		n := e.receiveNullPackets(first+done, min(e.stuffNullRemain, remain))
		e.stuffNullRemain -= n
		done += n
		remain -= n
		if remain == 0 {
			break
		}
		if e.stuffNullRemain == 0 && e.stuffInputRemain == 0 {
			e.stuffInputRemain = e.pipe.opts.StuffInput
		}
		maxInput := min(remain, e.stuffInputRemain)
		n = e.receiveAndValidate(first+done, maxInput)
		done += n
		remain -= n
		e.stuffInputRemain -= n
		if e.stuffNullRemain == 0 && e.stuffInputRemain == 0 {
			e.stuffNullRemain = e.pipe.opts.StuffNull
		}
		if n < maxInput {
			break
		}
	}
	return done
}

// receiveAndValidate invokes the plugin receive operation once and validates
// what came back: timestamps are stamped when the plugin left them empty and
// the sync byte of every packet is checked. Loss of synchronization or a
// receive error terminates the input.
func (e *inputExecutor) receiveAndValidate(first, max int) int {
	if e.syncLost || max <= 0 {
		return 0
	}
	pkts, metas := e.pipe.buffer.Slice(first, max)
	for i := range metas {
		metas[i].Reset()
	}

	if e.useWatchdog {
		e.watchdog.Restart()
	}
	count, err := e.input.Receive(pkts, metas)
	if e.useWatchdog {
		e.watchdog.Suspend()
	}

	if err != nil {
		// Plugin I/O failure: fatal to the stage. Downstream drains what it
		// already has and stops on the end-of-input that follows.
		e.Logf("receive error: %v", err)
		e.receiveFailed = true
		e.pluginCompleted = true
		e.pipe.noteAbort()
		return 0
	}
	if count <= 0 {
		e.pluginCompleted = true
		return 0
	}
	if count > max {
		count = max
	}

	// Stamp packets the plugin did not timestamp itself. Plugins stamp all
	// packets or none, so checking the first is enough.
	if !metas[0].HasInputStamp() {
		now := e.clock.Now()
		for i := 0; i < count; i++ {
			metas[i].InputStamp = now
		}
	}

	for i := 0; i < count; i++ {
		if !pkts[i].HasValidSync() {
			e.Logf("synchronization lost after %d packets, got 0x%02X instead of 0x%02X",
				e.pluginPackets.Load(), pkts[i][0], ts.SyncByte)
			e.syncLost = true
			e.pluginCompleted = true
			count = i
			break
		}
	}
	e.addPluginPackets(count)
	return count
}

// receiveNullPackets fills count slots starting at first with stuffed null
// packets. They are alive packets: counted and forwarded, never from the
// plugin.
func (e *inputExecutor) receiveNullPackets(first, count int) int {
	if count <= 0 {
		return 0
	}
	pkts, metas := e.pipe.buffer.Slice(first, count)
	now := e.clock.Now()
	for i := range pkts {
		pkts[i].SetNull()
		metas[i].Reset()
		metas[i].Stuffed = true
		metas[i].InputStamp = now
	}
	e.addNonPluginPackets(count)
	return count
}

// queryBitrate returns the forced bitrate when one is configured, the
// plugin's otherwise, adjusted for the dilution by interleaved stuffing.
func (e *inputExecutor) queryBitrate() (ts.BitRate, ts.BitRateConfidence) {
	opts := &e.pipe.opts
	br, conf := opts.FixedBitRate, ts.ConfidenceExact
	if opts.FixedBitRate == 0 {
		br, conf = e.input.BitRate()
	}
	if br != 0 && opts.StuffInput != 0 {
		br = br * ts.BitRate(opts.StuffNull+opts.StuffInput) / ts.BitRate(opts.StuffInput)
	}
	return br, conf
}
