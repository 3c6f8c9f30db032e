package pipeline

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// hookProc is a processor plugin whose per-packet behaviour is a test
// closure. calls is 1-based and only touched from the stage goroutine.
type hookProc struct {
	onPacket func(call int, pkt *ts.Packet, meta *ts.Metadata) plugin.Status
	bitrate  ts.BitRate
	conf     ts.BitRateConfidence

	calls   int
	stopped atomic.Bool
}

func (h *hookProc) Configure(args []string) error { return nil }
func (h *hookProc) Start() error                  { return nil }
func (h *hookProc) Stop() error                   { h.stopped.Store(true); return nil }

func (h *hookProc) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
	h.calls++
	if h.onPacket != nil {
		return h.onPacket(h.calls, pkt, meta)
	}
	return plugin.StatusOK
}

func (h *hookProc) BitRate() (ts.BitRate, ts.BitRateConfidence) { return h.bitrate, h.conf }

// startProcessor spins up one processor stage over a bare ring. The test
// plays the roles of the input stage (crediting packets) and the output
// stage (inspecting the successor edge).
func startProcessor(t *testing.T, capacity, maxFlush int, proc plugin.Processor) (p *Pipeline, in, out *executor, done chan struct{}) {
	t.Helper()
	p = newBareRing(capacity, plugin.KindInput, plugin.KindProcessor, plugin.KindOutput)
	p.opts.MaxFlushPackets = maxFlush
	in, out = p.execs[0], p.execs[2]
	pe := newProcessorExecutor(p.execs[1], proc)
	done = make(chan struct{})
	go func() {
		defer close(done)
		pe.run()
	}()
	return p, in, out, done
}

// fillAlive initializes count arena slots from first with valid sync and the
// given PID, so the stage does not treat fresh zeroed slots as dropped.
func fillAlive(p *Pipeline, first, count int, pid ts.PID) {
	for i := 0; i < count; i++ {
		pkt, meta := p.buffer.At(first + i)
		pkt.SetNull()
		pkt.SetPID(pid)
		meta.Reset()
	}
}

func edgeCount(e *edge) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count, e.inputEnd
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stage goroutine did not finish")
	}
}

func waitEdgeCount(t *testing.T, e *edge, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if c, _ := edgeCount(e); c >= n {
			return
		}
		if time.Now().After(deadline) {
			c, _ := edgeCount(e)
			t.Fatalf("edge count stuck at %d, want %d", c, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestProcessorFlushesEveryMaxFlushPackets(t *testing.T) {
	var downstream []int
	var out *executor
	proc := &hookProc{}
	proc.onPacket = func(call int, pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
		c, _ := edgeCount(out.in)
		downstream = append(downstream, c)
		return plugin.StatusOK
	}

	p, in, o, done := startProcessor(t, 64, 10, proc)
	out = o
	fillAlive(p, 0, 25, 0x100)
	in.passPackets(25, 0, ts.ConfidenceLow, false, false)
	in.passPackets(0, 0, ts.ConfidenceLow, true, false)
	waitDone(t, done)

	// Nothing downstream during the first ten calls, exactly ten after the
	// tenth, twenty after the twentieth.
	if downstream[9] != 0 {
		t.Errorf("flushed %d packets before the flush bound", downstream[9])
	}
	if downstream[10] != 10 {
		t.Errorf("downstream saw %d packets after the first flush, want 10", downstream[10])
	}
	if downstream[20] != 20 {
		t.Errorf("downstream saw %d packets after the second flush, want 20", downstream[20])
	}
	if c, end := edgeCount(out.in); c != 25 || !end {
		t.Errorf("final downstream state = %d,%v, want 25,true", c, end)
	}
	if !proc.stopped.Load() {
		t.Error("plugin not stopped")
	}
}

func TestProcessorFlushesOnPluginRequest(t *testing.T) {
	var atCall4 int
	var out *executor
	proc := &hookProc{}
	proc.onPacket = func(call int, pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
		if call == 3 {
			meta.FlushRequest = true
		}
		if call == 4 {
			atCall4, _ = edgeCount(out.in)
		}
		return plugin.StatusOK
	}

	p, in, o, done := startProcessor(t, 64, 1000, proc)
	out = o
	fillAlive(p, 0, 10, 0x100)
	in.passPackets(10, 0, ts.ConfidenceLow, true, false)
	waitDone(t, done)

	if atCall4 != 3 {
		t.Errorf("downstream saw %d packets after the flush request, want 3", atCall4)
	}
}

func TestProcessorEndDiscardsTriggerAndAbortsUpstream(t *testing.T) {
	proc := &hookProc{}
	proc.onPacket = func(call int, pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
		if call == 3 {
			return plugin.StatusEnd
		}
		return plugin.StatusOK
	}

	p, in, out, done := startProcessor(t, 64, 1000, proc)
	fillAlive(p, 0, 5, 0x100)
	in.passPackets(5, 0, ts.ConfidenceLow, false, false)
	waitDone(t, done)

	// The triggering packet and the two after it never reach downstream.
	if c, end := edgeCount(out.in); c != 2 || !end {
		t.Errorf("downstream state = %d,%v, want 2,true", c, end)
	}
	if !p.execs[1].aborting.Load() {
		t.Error("stage did not mark itself aborting for the upstream side")
	}
	if w := in.waitWork(1); !w.aborted {
		t.Error("upstream did not observe the abort")
	}
	if p.Aborted() {
		t.Error("a plugin-requested end counted as a pipeline failure")
	}
}

func TestProcessorSkipsDroppedPackets(t *testing.T) {
	proc := &hookProc{}
	p, in, out, done := startProcessor(t, 64, 1000, proc)

	fillAlive(p, 0, 4, 0x100)
	for _, i := range []int{1, 2} {
		pkt, meta := p.buffer.At(i)
		pkt.Drop()
		meta.FlushRequest = true // stale signal from a fictional earlier stage
	}
	in.passPackets(4, 0, ts.ConfidenceLow, true, false)
	waitDone(t, done)

	if proc.calls != 2 {
		t.Errorf("plugin saw %d packets, want 2 (dropped ones bypass it)", proc.calls)
	}
	if c, _ := edgeCount(out.in); c != 4 {
		t.Errorf("downstream saw %d packets, want all 4 including dropped", c)
	}
	e := p.execs[1]
	if e.totalPackets.Load() != 4 || e.pluginPackets.Load() != 2 {
		t.Errorf("counters = %d total / %d plugin, want 4/2",
			e.totalPackets.Load(), e.pluginPackets.Load())
	}
	if _, meta := p.buffer.At(1); meta.FlushRequest {
		t.Error("stale flush request on a dropped packet not cleared")
	}
}

func TestProcessorInvalidStatusPassesPacketThrough(t *testing.T) {
	proc := &hookProc{}
	proc.onPacket = func(call int, pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
		return plugin.Status(99)
	}

	p, in, out, done := startProcessor(t, 64, 1000, proc)
	fillAlive(p, 0, 1, 0x100)
	in.passPackets(1, 0, ts.ConfidenceLow, true, false)
	waitDone(t, done)

	if c, _ := edgeCount(out.in); c != 1 {
		t.Errorf("downstream saw %d packets, want 1", c)
	}
	if pkt, _ := p.buffer.At(0); pkt.Dropped() || pkt.PID() != 0x100 {
		t.Error("packet with invalid status was not passed through unchanged")
	}
}

func TestProcessorMarksNullifiedPackets(t *testing.T) {
	proc := &hookProc{}
	proc.onPacket = func(call int, pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
		return plugin.StatusNull
	}

	p, in, _, done := startProcessor(t, 64, 1000, proc)
	fillAlive(p, 0, 2, 0x100)
	// The second packet is already null; nullifying it is not a change.
	second, _ := p.buffer.At(1)
	second.SetPID(ts.PIDNull)
	in.passPackets(2, 0, ts.ConfidenceLow, true, false)
	waitDone(t, done)

	pkt, meta := p.buffer.At(0)
	if pkt.PID() != ts.PIDNull || !meta.Nullified {
		t.Error("replaced packet not marked Nullified")
	}
	if _, meta := p.buffer.At(1); meta.Nullified {
		t.Error("packet that was already null marked Nullified")
	}
}

func TestProcessorLatchesOwnBitrate(t *testing.T) {
	proc := &hookProc{bitrate: 7777, conf: ts.ConfidenceExact}
	proc.onPacket = func(call int, pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
		if call == 1 {
			meta.BitRateChange = true
		}
		return plugin.StatusOK
	}

	p, in, out, done := startProcessor(t, 64, 1000, proc)
	fillAlive(p, 0, 2, 0x100)
	in.passPackets(1, 1000, ts.ConfidenceClock, false, false)
	waitEdgeCount(t, out.in, 1)

	out.in.mu.Lock()
	br := out.in.bitrate
	out.in.mu.Unlock()
	if br != 7777 {
		t.Fatalf("downstream bitrate = %d, want the plugin's 7777", br)
	}

	// A later input bitrate no longer passes through: the latch wins forever.
	in.passPackets(1, 2000, ts.ConfidenceClock, true, false)
	waitDone(t, done)
	out.in.mu.Lock()
	br = out.in.bitrate
	out.in.mu.Unlock()
	if br != 7777 {
		t.Errorf("downstream bitrate = %d after new input bitrate, want 7777", br)
	}
}

func TestProcessorPassesInputBitrateUntilModified(t *testing.T) {
	proc := &hookProc{}
	p, in, out, done := startProcessor(t, 64, 1000, proc)
	fillAlive(p, 0, 2, 0x100)

	in.passPackets(1, 1000, ts.ConfidenceClock, false, false)
	waitEdgeCount(t, out.in, 1)
	out.in.mu.Lock()
	br, conf := out.in.bitrate, out.in.confidence
	out.in.mu.Unlock()
	if br != 1000 || conf != ts.ConfidenceClock {
		t.Errorf("downstream bitrate = %d/%v, want 1000/clock", br, conf)
	}

	in.passPackets(1, 2000, ts.ConfidenceClock, true, false)
	waitDone(t, done)
	out.in.mu.Lock()
	br = out.in.bitrate
	out.in.mu.Unlock()
	if br != 2000 {
		t.Errorf("downstream bitrate = %d, want the new input value 2000", br)
	}
}

func TestProcessorStopsAtJointTerminationCeiling(t *testing.T) {
	proc := &hookProc{}
	p, in, out, done := startProcessor(t, 64, 1000, proc)
	p.coord.ceilVal.Store(3)
	p.coord.final.Store(true)

	fillAlive(p, 0, 5, 0x100)
	in.passPackets(5, 0, ts.ConfidenceLow, false, false)
	waitDone(t, done)

	if c, end := edgeCount(out.in); c != 3 || !end {
		t.Errorf("downstream state = %d,%v, want exactly 3 packets and end", c, end)
	}
	if got := p.execs[1].totalPackets.Load(); got != 3 {
		t.Errorf("stage processed %d packets, want 3", got)
	}
	if w := in.waitWork(1); !w.aborted {
		t.Error("upstream not aborted after the ceiling was reached")
	}
}
