package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// edge is the hand-off state between a stage and its predecessor. Its
// first/count fields delimit the reader stage's current slice of the arena:
// the predecessor appends by growing count, the reader consumes by advancing
// first. Boundaries, not packets, cross the lock.
//
// The stages form a ring: the edge in front of the input stage carries the
// free slots the output stage returns, so the same protocol covers
// buffer-full blocking of the producer and buffer-empty blocking of every
// consumer.
type edge struct {
	mu   sync.Mutex
	toDo *sync.Cond

	first int
	count int

	bitrate    ts.BitRate
	confidence ts.BitRateConfidence
	inputEnd   bool
}

func newEdge() *edge {
	e := &edge{}
	e.toDo = sync.NewCond(&e.mu)
	return e
}

// work is one contiguous packet range returned by waitWork, together with
// the flags that travelled with it.
type work struct {
	first      int
	count      int
	bitrate    ts.BitRate
	confidence ts.BitRateConfidence

	// inputEnd is reported only when count covers everything that will ever
	// arrive: count == 0 with inputEnd set is a clean end of stream.
	inputEnd bool

	// aborted means the stage should stop now and discard the range.
	aborted bool
}

// executor is the part of a stage common to the three roles: the goroutine
// identity, the plugin handle, the input edge, the neighbour links and the
// counters. It implements plugin.Host for its plugin.
type executor struct {
	pipe    *Pipeline
	kind    plugin.Kind
	name    string
	logName string
	index   int

	in   *edge
	prev *executor
	next *executor

	aborting atomic.Bool

	// totalPackets counts every packet that went through the stage,
	// dropped and stuffed ones included; pluginPackets counts only those
	// submitted to the plugin. Termination agreement uses totalPackets.
	totalPackets  atomic.Uint64
	pluginPackets atomic.Uint64

	curBitrate    atomic.Uint64
	curConfidence atomic.Int32
}

// waitWork blocks until at least min packets are available on the input
// edge, end of input is signalled, or an abort is requested, and returns a
// contiguous range. A range that wraps around the end of the arena is
// returned up to the wrap point; the remainder comes with a later call, so
// callers never deal with wraparound themselves.
func (e *executor) waitWork(min int) work {
	capacity := e.pipe.buffer.Capacity()
	if min > capacity {
		min = capacity
	}
	// The output stage does not watch its ring successor: that is the input
	// stage, and aborts never cross the output→input edge.
	watchNext := e.kind != plugin.KindOutput
	in := e.in
	in.mu.Lock()
	for in.count < min && !in.inputEnd && !(watchNext && e.next.aborting.Load()) && !e.aborting.Load() {
		in.toDo.Wait()
	}
	w := work{
		first:      in.first,
		count:      in.count,
		bitrate:    in.bitrate,
		confidence: in.confidence,
	}
	if contiguous := capacity - in.first; w.count > contiguous {
		w.count = contiguous
	}
	w.inputEnd = in.inputEnd && w.count == in.count
	in.mu.Unlock()

	// An aborting successor aborts this stage too. The exception is the
	// output stage, whose successor on the ring is the input stage: only
	// freed slots travel over that edge, never aborts.
	w.aborted = e.kind != plugin.KindOutput && e.next.aborting.Load()
	if e.aborting.Load() {
		w.aborted = true
	}

	e.setCurrentBitrate(w.bitrate, w.confidence)
	return w
}

// passPackets releases the first count packets of this stage's lease and
// credits them to the successor, together with the bitrate pair and a sticky
// end-of-input flag. When aborted is set, or the successor is already
// aborting, the stage marks itself aborting and wakes its predecessor so the
// abort travels upstream. Returns false when the stage should stop.
func (e *executor) passPackets(count int, bitrate ts.BitRate, confidence ts.BitRateConfidence, inputEnd, aborted bool) bool {
	in := e.in
	in.mu.Lock()
	in.first = (in.first + count) % e.pipe.buffer.Capacity()
	in.count -= count
	in.mu.Unlock()

	out := e.next.in
	out.mu.Lock()
	out.count += count
	out.bitrate = bitrate
	out.confidence = confidence
	out.inputEnd = out.inputEnd || inputEnd
	if count > 0 || inputEnd {
		out.toDo.Signal()
	}
	out.mu.Unlock()

	if e.kind != plugin.KindOutput {
		aborted = aborted || e.next.aborting.Load()
	}
	if aborted {
		e.abort()
	}
	return !inputEnd && !aborted
}

// abort marks the stage as aborting and wakes the predecessor, which checks
// this stage's flag in its wait predicate. The signal runs under the
// predecessor's edge lock so the wakeup cannot be lost.
func (e *executor) abort() {
	e.aborting.Store(true)
	p := e.prev.in
	p.mu.Lock()
	p.toDo.Signal()
	p.mu.Unlock()
}

// wake signals the stage's own edge so a pending waitWork re-evaluates its
// predicate. Used by Pipeline.Abort.
func (e *executor) wake() {
	e.in.mu.Lock()
	e.in.toDo.Broadcast()
	e.in.mu.Unlock()
}

func (e *executor) addPluginPackets(n int) {
	e.pluginPackets.Add(uint64(n))
	e.totalPackets.Add(uint64(n))
}

func (e *executor) addNonPluginPackets(n int) {
	e.totalPackets.Add(uint64(n))
}

func (e *executor) setCurrentBitrate(br ts.BitRate, conf ts.BitRateConfidence) {
	e.curBitrate.Store(uint64(br))
	e.curConfidence.Store(int32(conf))
}

func (e *executor) currentBitrate() (ts.BitRate, ts.BitRateConfidence) {
	return ts.BitRate(e.curBitrate.Load()), ts.BitRateConfidence(e.curConfidence.Load())
}

// ceilingAllowance returns how many more packets this stage may forward
// under the joint termination ceiling. limited is false while no ceiling
// applies.
func (e *executor) ceilingAllowance() (allowed int, limited bool) {
	ceiling, ok := e.pipe.coord.ceiling()
	if !ok {
		return 0, false
	}
	total := e.totalPackets.Load()
	if total >= ceiling {
		return 0, true
	}
	return int(ceiling - total), true
}

// Logf implements plugin.Host.
func (e *executor) Logf(format string, args ...interface{}) {
	e.pipe.opts.Log("["+e.logName+"] "+format, args...)
}

// Debugf implements plugin.Host.
func (e *executor) Debugf(format string, args ...interface{}) {
	debugf("["+e.logName+"] "+format, args...)
}

// BitRate implements plugin.Host: the bitrate currently propagated to this
// stage.
func (e *executor) BitRate() (ts.BitRate, ts.BitRateConfidence) {
	return e.currentBitrate()
}

// Aborting implements plugin.Host.
func (e *executor) Aborting() bool { return e.aborting.Load() }

// TotalPackets implements plugin.Host.
func (e *executor) TotalPackets() uint64 { return e.totalPackets.Load() }

// PluginPackets implements plugin.Host.
func (e *executor) PluginPackets() uint64 { return e.pluginPackets.Load() }

// UseJointTermination implements plugin.Host.
func (e *executor) UseJointTermination() { e.pipe.coord.use(e) }

// JointTerminate implements plugin.Host.
func (e *executor) JointTerminate() { e.pipe.coord.terminate(e) }

// UsingJointTermination implements plugin.Host.
func (e *executor) UsingJointTermination() bool { return e.pipe.coord.using(e) }

// JointTerminated implements plugin.Host.
func (e *executor) JointTerminated() bool { return e.pipe.coord.voted(e) }

// SignalEvent implements plugin.Host: synchronous delivery to every matching
// registered handler, in the calling stage's goroutine.
func (e *executor) SignalEvent(code uint32, data interface{}) {
	e.pipe.events.Signal(plugin.EventContext{
		Code:          code,
		PluginName:    e.name,
		PluginIndex:   e.index,
		PluginKind:    e.kind,
		PluginPackets: e.pluginPackets.Load(),
		TotalPackets:  e.totalPackets.Load(),
		Data:          data,
	})
}
