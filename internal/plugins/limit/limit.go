// Package limit provides the limit processor plugin: the stream ends, or
// joint-terminates, after a given number of packets.
package limit

import (
	"errors"
	"flag"
	"io"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// Register adds the limit processor plugin to reg.
func Register(reg *plugin.Registry) {
	reg.RegisterProcessor("limit", func(h plugin.Host) plugin.Processor { return &processor{host: h} })
}

type processor struct {
	host  plugin.Host
	max   uint64
	joint bool

	seen uint64
}

func (p *processor) Configure(args []string) error {
	fs := flag.NewFlagSet("limit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Uint64Var(&p.max, "packets", 0, "number of packets to let through")
	fs.BoolVar(&p.joint, "joint", false, "joint-terminate at the limit instead of ending the stream")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if p.max == 0 {
		return errors.New("missing or zero -packets")
	}
	return nil
}

func (p *processor) Start() error {
	if p.joint {
		p.host.UseJointTermination()
	}
	return nil
}

func (p *processor) Stop() error { return nil }

func (p *processor) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
	p.seen++
	if p.seen > p.max {
		if p.joint {
			return plugin.StatusOK
		}
		return plugin.StatusEnd
	}
	if p.seen == p.max && p.joint && !p.host.JointTerminated() {
		p.host.JointTerminate()
	}
	return plugin.StatusOK
}
