package pipeline

import (
	"sync"
	"sync/atomic"
)

// jointTermination is the coordinator for the multi-stage stop agreement.
// Stages opt in, then vote once their plugin reaches its own willing-to-stop
// condition; the vote records the stage's total packet count at that moment.
// Once every participant has voted, the ceiling is the count recorded by the
// most-downstream voting stage, the largest one, so no stage stops before it
// has seen everything the others agreed to send. The ceiling is final:
// later votes or opt-ins cannot move it.
//
// This is one of the two global locks of the engine (the other is the event
// handler registry); the hot read path, ceiling(), is lock-free.
type jointTermination struct {
	ignore bool
	log    func(format string, args ...interface{})

	mu     sync.Mutex
	states map[*executor]jtState

	final   atomic.Bool
	ceilVal atomic.Uint64
}

type jtState struct {
	voted bool
	count uint64
}

func newJointTermination(ignore bool, log func(format string, args ...interface{})) *jointTermination {
	return &jointTermination{
		ignore: ignore,
		log:    log,
		states: make(map[*executor]jtState),
	}
}

// use opts a stage into the agreement. A no-op once the ceiling is final.
func (j *jointTermination) use(e *executor) {
	if j.ignore {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.final.Load() {
		return
	}
	if _, ok := j.states[e]; !ok {
		j.states[e] = jtState{}
	}
}

// terminate records the stage's vote at its current total packet count and
// computes the ceiling once every participant has voted.
func (j *jointTermination) terminate(e *executor) {
	if j.ignore {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	st, ok := j.states[e]
	if !ok || st.voted || j.final.Load() {
		return
	}
	j.states[e] = jtState{voted: true, count: e.totalPackets.Load()}
	debugf("[%s] joint termination vote at %d packets", e.logName, e.totalPackets.Load())

	var ceiling uint64
	for _, st := range j.states {
		if !st.voted {
			return
		}
		if st.count > ceiling {
			ceiling = st.count
		}
	}
	j.ceilVal.Store(ceiling)
	j.final.Store(true)
	j.log("joint termination: stopping after %d packets", ceiling)
}

// ceiling returns the agreed packet ceiling once all participants voted.
func (j *jointTermination) ceiling() (uint64, bool) {
	if !j.final.Load() {
		return 0, false
	}
	return j.ceilVal.Load(), true
}

// using reports whether the stage opted in.
func (j *jointTermination) using(e *executor) bool {
	if j.ignore {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.states[e]
	return ok
}

// voted reports whether the stage already voted.
func (j *jointTermination) voted(e *executor) bool {
	if j.ignore {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.states[e].voted
}
