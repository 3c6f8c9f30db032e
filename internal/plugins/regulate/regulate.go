// Package regulate provides the regulate processor plugin: it paces the
// stream to the propagated bitrate, sleeping between bursts so a fast
// offline source plays out at real-time speed.
package regulate

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/timeutil"
	"github.com/banshee-data/tspipe/internal/ts"
)

const defaultBurst = 16

// Register adds the regulate processor plugin to reg.
func Register(reg *plugin.Registry) {
	reg.RegisterProcessor("regulate", func(h plugin.Host) plugin.Processor { return New(h, timeutil.RealClock{}) })
}

// New returns a regulate processor on the given clock.
func New(h plugin.Host, clock timeutil.Clock) plugin.Processor {
	return &processor{host: h, clock: clock, burst: defaultBurst}
}

type processor struct {
	host  plugin.Host
	clock timeutil.Clock
	burst int

	bitrate ts.BitRate
	due     time.Time
	pending int
}

func (p *processor) Configure(args []string) error {
	fs := flag.NewFlagSet("regulate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&p.burst, "burst", defaultBurst, "packets released per wakeup")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if p.burst <= 0 {
		return fmt.Errorf("burst must be positive, got %d", p.burst)
	}
	return nil
}

func (p *processor) Start() error { return nil }
func (p *processor) Stop() error  { return nil }

func (p *processor) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
	br, _ := p.host.BitRate()
	if br == 0 {
		// Nothing to pace against yet; pass freely until a bitrate is known.
		return plugin.StatusOK
	}
	if br != p.bitrate {
		p.host.Debugf("regulating at %s", br)
		p.bitrate = br
		p.due = p.clock.Now()
		p.pending = 0
	}

	p.pending++
	if p.pending < p.burst {
		return plugin.StatusOK
	}

	p.due = p.due.Add(time.Duration(p.pending) * br.PacketInterval())
	p.pending = 0
	if d := p.due.Sub(p.clock.Now()); d > 0 {
		p.clock.Sleep(d)
	} else if d < -time.Second {
		// Fell badly behind (stalled upstream): restart the schedule rather
		// than releasing an unbounded burst.
		p.due = p.clock.Now()
	}
	// Pacing is pointless if released packets sit in the batch buffer.
	meta.FlushRequest = true
	return plugin.StatusOK
}
