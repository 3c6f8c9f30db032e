package pipeline

import (
	"sync"

	"github.com/banshee-data/tspipe/internal/plugin"
)

// outputExecutor runs the output stage: it pulls flushed ranges from its
// input edge, delivers maximal runs of non-dropped packets to the push-style
// send operation of the output plugin, skips dropped runs while keeping them
// in the global count, and returns every slot to the input stage over the
// ring.
type outputExecutor struct {
	*executor
	output plugin.Output

	stopOnce sync.Once
}

func newOutputExecutor(base *executor, out plugin.Output) *outputExecutor {
	return &outputExecutor{executor: base, output: out}
}

// stopPlugin stops the output plugin exactly once, whatever path the stage
// exits through.
func (e *outputExecutor) stopPlugin() {
	e.stopOnce.Do(func() {
		e.Debugf("stopping the output plugin")
		if err := e.output.Stop(); err != nil {
			e.Logf("stop: %v", err)
		}
	})
}

func (e *outputExecutor) run() {
	e.Debugf("output thread started")

	var forwarded, droppedCnt uint64
	aborted := false

	for {
		w := e.waitWork(1)
		if w.aborted {
			aborted = true
			break
		}
		if w.count == 0 && w.inputEnd {
			// Clean end of stream.
			e.passPackets(0, w.bitrate, w.confidence, true, false)
			break
		}

		// Never deliver a packet past the joint termination ceiling.
		atCeiling := false
		if allowed, limited := e.ceilingAllowance(); limited {
			if allowed == 0 {
				aborted = true
				e.abort()
				break
			}
			if w.count >= allowed {
				w.count = allowed
				atCeiling = true
			}
		}

		// Split the range into maximal runs of dropped and non-dropped
		// packets: one send per non-dropped run, dropped runs skipped but
		// counted.
		sendFailed := false
		i := 0
		for i < w.count {
			if pkt, _ := e.pipe.buffer.At(w.first + i); pkt.Dropped() {
				e.addNonPluginPackets(1)
				droppedCnt++
				i++
				continue
			}
			j := i + 1
			for j < w.count {
				if pkt, _ := e.pipe.buffer.At(w.first + j); pkt.Dropped() {
					break
				}
				j++
			}
			pkts, metas := e.pipe.buffer.Slice(w.first+i, j-i)
			err := e.output.Send(pkts, metas)
			e.addPluginPackets(j - i)
			if err != nil {
				e.Logf("send error: %v", err)
				sendFailed = true
				break
			}
			forwarded += uint64(j - i)
			i = j
		}

		if sendFailed {
			// A send failure is fatal to the stage: stop the plugin first,
			// then abort so the failure travels upstream.
			e.stopPlugin()
			e.pipe.noteAbort()
			e.passPackets(w.count, w.bitrate, w.confidence, false, true)
			aborted = true
			break
		}

		if atCeiling {
			e.passPackets(w.count, w.bitrate, w.confidence, false, true)
			aborted = true
			break
		}

		e.passPackets(w.count, w.bitrate, w.confidence, w.inputEnd, false)
		if w.inputEnd {
			break
		}
	}

	e.stopPlugin()
	state := "terminated"
	if aborted {
		state = "aborted"
	}
	e.Debugf("output thread %s after %d packets, %d forwarded, %d dropped",
		state, e.totalPackets.Load(), forwarded, droppedCnt)
}
