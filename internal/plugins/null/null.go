// Package null provides the null input plugin: a generator of canonical
// null packets, useful as a load source and in tests.
package null

import (
	"errors"
	"flag"
	"io"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// Register adds the null input plugin to reg.
func Register(reg *plugin.Registry) {
	reg.RegisterInput("null", func(h plugin.Host) plugin.Input { return &input{host: h} })
}

type input struct {
	host  plugin.Host
	count uint64 // 0 = unbounded
	joint bool

	emitted uint64
}

func (i *input) Configure(args []string) error {
	fs := flag.NewFlagSet("null", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Uint64Var(&i.count, "count", 0, "number of packets to generate, 0 for unbounded")
	fs.BoolVar(&i.joint, "joint", false, "joint-terminate after count packets instead of ending")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return errors.New("unexpected argument " + fs.Arg(0))
	}
	if i.joint && i.count == 0 {
		return errors.New("-joint requires -count")
	}
	return nil
}

func (i *input) Start() error {
	if i.joint {
		i.host.UseJointTermination()
	}
	return nil
}

func (i *input) Stop() error { return nil }

func (i *input) IsRealTime() bool { return false }

func (i *input) BitRate() (ts.BitRate, ts.BitRateConfidence) { return 0, ts.ConfidenceLow }

func (i *input) Receive(pkts []ts.Packet, metas []ts.Metadata) (int, error) {
	n := len(pkts)
	if i.count > 0 && i.emitted >= i.count {
		if !i.joint {
			return 0, nil
		}
		// The vote is cast with every previous batch already counted, so
		// the recorded stop point is exactly count. Generation continues
		// until the agreed ceiling cuts the stream.
		if !i.host.JointTerminated() {
			i.host.JointTerminate()
		}
	} else if i.count > 0 {
		// Do not overshoot the vote point within one batch.
		if remain := i.count - i.emitted; uint64(n) > remain {
			n = int(remain)
		}
	}
	for j := 0; j < n; j++ {
		pkts[j].SetNull()
	}
	i.emitted += uint64(n)
	return n, nil
}
