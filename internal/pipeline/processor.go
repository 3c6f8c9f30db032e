package pipeline

import (
	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// processorExecutor runs one processor stage: it pulls ranges from its input
// edge, submits alive packets to the plugin one at a time, applies the
// returned status in place and flushes partial ranges downstream so a slow
// batch never holds the whole pipeline back.
type processorExecutor struct {
	*executor
	proc plugin.Processor
}

func newProcessorExecutor(base *executor, p plugin.Processor) *processorExecutor {
	return &processorExecutor{executor: base, proc: p}
}

func (e *processorExecutor) run() {
	e.Debugf("packet processing thread started")

	opts := &e.pipe.opts
	var passed, dropped, nullified uint64
	outBitrate, outConfidence := e.currentBitrate()
	bitrateNeverModified := true
	inputEnd := false
	aborted := false

	for !inputEnd && !aborted {
		w := e.waitWork(1)
		inputEnd = w.inputEnd
		aborted = w.aborted

		// Until the plugin ever reports a bitrate of its own, the input
		// bitrate passes through unmodified. Once it has, the plugin's
		// latched value wins forever after.
		if bitrateNeverModified {
			outBitrate, outConfidence = w.bitrate, w.confidence
		}

		if aborted && !inputEnd {
			// The successor gave up; tell the predecessor and stop.
			e.passPackets(0, outBitrate, outConfidence, true, true)
			break
		}
		if w.count == 0 && inputEnd {
			// Clean end of stream: nothing left to process.
			e.passPackets(0, outBitrate, outConfidence, true, false)
			break
		}

		pktCnt := w.count
		done := 0
		flush := 0

		for done < pktCnt && !aborted {
			// The joint termination ceiling can become final at any moment;
			// never process a packet beyond it. Whatever is pending goes
			// downstream with end-of-input, the rest of the range is
			// discarded and the abort travels upstream.
			if allowed, limited := e.ceilingAllowance(); limited && allowed == 0 {
				pktCnt = done
				inputEnd = true
				aborted = true
				e.passPackets(flush, outBitrate, outConfidence, true, true)
				flush = 0
				break
			}

			pkt, meta := e.pipe.buffer.At(w.first + done)
			gotNewBitrate := false
			done++
			flush++

			if pkt.Dropped() {
				// Already dropped by an earlier stage: keep it moving
				// without submitting it to the plugin.
				meta.ClearSignals()
				e.addNonPluginPackets(1)
			} else {
				wasNull := pkt.PID() == ts.PIDNull
				meta.ClearSignals()
				e.addPluginPackets(1)
				status := e.proc.ProcessPacket(pkt, meta)

				switch status {
				case plugin.StatusOK:
					passed++
				case plugin.StatusNull:
					pkt.SetNull()
				case plugin.StatusDrop:
					pkt.Drop()
					dropped++
				case plugin.StatusEnd:
					// Stop the stream: the triggering packet and everything
					// after it is never forwarded.
					e.Debugf("plugin requests termination")
					inputEnd = true
					aborted = true
					done--
					flush--
					pktCnt = done
				default:
					e.Logf("invalid packet processing status %d, passing packet through", int(status))
					passed++
				}

				if !wasNull && !pkt.Dropped() && pkt.PID() == ts.PIDNull {
					meta.Nullified = true
					nullified++
				}

				if meta.BitRateChange {
					if br, ok := e.proc.(plugin.BitRater); ok {
						if nb, nc := br.BitRate(); nb != 0 {
							bitrateNeverModified = false
							gotNewBitrate = nb != outBitrate
							outBitrate, outConfidence = nb, nc
						}
					}
				}
			}

			// Do not sit on processed packets: flush on plugin request, on
			// a new bitrate, when the range is exhausted and at the latest
			// every MaxFlushPackets packets.
			if meta.FlushRequest || gotNewBitrate || done == pktCnt ||
				(opts.MaxFlushPackets > 0 && flush >= opts.MaxFlushPackets) {
				ok := e.passPackets(flush, outBitrate, outConfidence, done == pktCnt && inputEnd, aborted)
				aborted = !ok
				flush = 0
			}
		}
	}

	e.Debugf("stopping the plugin")
	if err := e.proc.Stop(); err != nil {
		e.Logf("stop: %v", err)
	}

	state := "terminated"
	if !inputEnd {
		state = "aborted"
	}
	e.Debugf("packet processing thread %s after %d packets, %d passed, %d dropped, %d nullified",
		state, e.pluginPackets.Load(), passed, dropped, nullified)
}
