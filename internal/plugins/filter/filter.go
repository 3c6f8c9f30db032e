// Package filter provides the filter processor plugin: packets matching a
// PID list are dropped, nullified or labelled.
package filter

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// Register adds the filter processor plugin to reg.
func Register(reg *plugin.Registry) {
	reg.RegisterProcessor("filter", func(h plugin.Host) plugin.Processor { return &processor{host: h, label: -1} })
}

type processor struct {
	host plugin.Host

	pids   [ts.PIDMax]bool
	negate bool
	null   bool
	drop   bool
	label  int
}

func (p *processor) Configure(args []string) error {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var pidList string
	fs.StringVar(&pidList, "pid", "", "comma-separated PID list, decimal or 0x hex")
	fs.BoolVar(&p.negate, "negate", false, "act on packets whose PID is not in the list")
	fs.BoolVar(&p.drop, "drop", false, "drop matching packets")
	fs.BoolVar(&p.null, "null", false, "replace matching packets with null packets")
	fs.IntVar(&p.label, "label", -1, "set this label on matching packets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if pidList == "" {
		return errors.New("missing -pid list")
	}
	if p.drop && p.null {
		return errors.New("-drop and -null are mutually exclusive")
	}
	if p.label >= ts.MaxLabels {
		return fmt.Errorf("label %d out of range, maximum is %d", p.label, ts.MaxLabels-1)
	}
	// Without an explicit disposition or label, matching packets are dropped.
	if !p.drop && !p.null && p.label < 0 {
		p.drop = true
	}
	for _, field := range strings.Split(pidList, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(field), 0, 16)
		if err != nil || v >= uint64(ts.PIDMax) {
			return fmt.Errorf("invalid PID %q", field)
		}
		p.pids[v] = true
	}
	return nil
}

func (p *processor) Start() error { return nil }
func (p *processor) Stop() error  { return nil }

func (p *processor) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
	match := p.pids[pkt.PID()]
	if p.negate {
		match = !match
	}
	if !match {
		return plugin.StatusOK
	}
	if p.label >= 0 {
		meta.Labels = meta.Labels.With(p.label)
	}
	switch {
	case p.null:
		return plugin.StatusNull
	case p.drop:
		return plugin.StatusDrop
	default:
		return plugin.StatusOK
	}
}
