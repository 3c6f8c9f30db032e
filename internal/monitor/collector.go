package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/tspipe/internal/journal"
	"github.com/banshee-data/tspipe/internal/monitoring"
	"github.com/banshee-data/tspipe/internal/timeutil"
)

// maxSamples bounds the in-memory sample ring; at the default 5s period
// this covers an hour of history.
const maxSamples = 720

// Collector periodically samples the pipeline's propagated bitrate into an
// in-memory ring and, when a journal run is active, into the journal.
type Collector struct {
	clock    timeutil.Clock
	interval time.Duration
	source   StatusSource
	journal  *journal.Journal
	runID    string

	mu       sync.Mutex
	samples  []journal.Sample
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewCollector creates a collector; jnl and runID may be empty to sample
// into memory only.
func NewCollector(clock timeutil.Clock, interval time.Duration, source StatusSource, jnl *journal.Journal, runID string) *Collector {
	return &Collector{
		clock:    clock,
		interval: interval,
		source:   source,
		journal:  jnl,
		runID:    runID,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling goroutine. Starting twice is a no-op.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	// Create the ticker before the goroutine starts so a mock clock advanced
	// right after Start sees it registered.
	tick := c.clock.NewTicker(c.interval)
	go c.run(tick)
}

// Stop halts sampling and waits for the goroutine to exit.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Collector) run(tick timeutil.Ticker) {
	defer close(c.done)
	defer tick.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-tick.C():
			c.sample(now)
		}
	}
}

func (c *Collector) sample(now time.Time) {
	stages := c.source.Snapshot()
	if len(stages) == 0 {
		return
	}
	// The input stage carries the authoritative propagated bitrate.
	in := stages[0]
	s := journal.Sample{At: now, BitRate: in.BitRate, Confidence: in.Confidence}
	c.add(s)
	if c.journal != nil && c.runID != "" {
		if err := c.journal.AddSample(c.runID, s.At, s.BitRate, s.Confidence); err != nil {
			monitoring.Logf("journal sample write failed: %v", err)
		}
	}
}

func (c *Collector) add(s journal.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) == maxSamples {
		c.samples = append(c.samples[1:], s)
		return
	}
	c.samples = append(c.samples, s)
}

// Samples returns the in-memory samples in chronological order.
func (c *Collector) Samples() []journal.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]journal.Sample, len(c.samples))
	copy(out, c.samples)
	return out
}
