package pipeline

import (
	"testing"
)

func mutedLog(string, ...interface{}) {}

func TestJointTerminationCeilingIsMaxOfVotes(t *testing.T) {
	p, in, proc, _ := threeStageRing(16)
	j := p.coord

	j.use(in)
	j.use(proc)

	in.totalPackets.Store(100)
	j.terminate(in)
	if _, ok := j.ceiling(); ok {
		t.Fatal("ceiling final before every participant voted")
	}

	proc.totalPackets.Store(150)
	j.terminate(proc)
	c, ok := j.ceiling()
	if !ok || c != 150 {
		t.Errorf("ceiling = %d,%v, want 150 once both voted", c, ok)
	}
}

func TestJointTerminationCeilingIsFinal(t *testing.T) {
	p, in, proc, out := threeStageRing(16)
	j := p.coord

	j.use(in)
	in.totalPackets.Store(40)
	j.terminate(in)

	c, _ := j.ceiling()
	if c != 40 {
		t.Fatalf("ceiling = %d, want 40", c)
	}

	// Neither a later opt-in nor a later, larger vote moves it.
	j.use(proc)
	proc.totalPackets.Store(999)
	j.terminate(proc)
	j.use(out)

	if c, _ := j.ceiling(); c != 40 {
		t.Errorf("ceiling moved to %d after finality", c)
	}
}

func TestJointTerminationVoteWithoutOptInIgnored(t *testing.T) {
	p, in, _, _ := threeStageRing(16)
	j := p.coord

	in.totalPackets.Store(7)
	j.terminate(in)
	if _, ok := j.ceiling(); ok {
		t.Error("vote from a non-participant produced a ceiling")
	}
	if j.voted(in) {
		t.Error("non-participant recorded as voted")
	}
}

func TestJointTerminationRepeatVoteKeepsFirstCount(t *testing.T) {
	p, in, proc, _ := threeStageRing(16)
	j := p.coord

	j.use(in)
	j.use(proc)

	in.totalPackets.Store(10)
	j.terminate(in)
	in.totalPackets.Store(500)
	j.terminate(in) // second vote: no-op

	proc.totalPackets.Store(20)
	j.terminate(proc)

	if c, _ := j.ceiling(); c != 20 {
		t.Errorf("ceiling = %d, want 20 (first vote of each stage counts)", c)
	}
}

func TestJointTerminationIgnoreMode(t *testing.T) {
	j := newJointTermination(true, mutedLog)
	e := &executor{}
	j.use(e)
	j.terminate(e)
	if j.using(e) || j.voted(e) {
		t.Error("ignore mode still recorded participation")
	}
	if _, ok := j.ceiling(); ok {
		t.Error("ignore mode produced a ceiling")
	}
}

func TestCeilingAllowance(t *testing.T) {
	p, in, _, _ := threeStageRing(16)

	if _, limited := in.ceilingAllowance(); limited {
		t.Fatal("allowance limited with no ceiling")
	}

	p.coord.ceilVal.Store(10)
	p.coord.final.Store(true)

	in.totalPackets.Store(4)
	if allowed, limited := in.ceilingAllowance(); !limited || allowed != 6 {
		t.Errorf("allowance = %d,%v, want 6,true", allowed, limited)
	}
	in.totalPackets.Store(10)
	if allowed, limited := in.ceilingAllowance(); !limited || allowed != 0 {
		t.Errorf("allowance = %d,%v, want 0,true at the ceiling", allowed, limited)
	}
}
