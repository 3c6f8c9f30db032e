// Package drop provides the drop output plugin: a sink that discards
// everything, for benchmarks and as the default output.
package drop

import (
	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// Register adds the drop output plugin to reg.
func Register(reg *plugin.Registry) {
	reg.RegisterOutput("drop", func(h plugin.Host) plugin.Output { return &output{} })
}

type output struct{}

func (*output) Configure(args []string) error { return nil }
func (*output) Start() error                  { return nil }
func (*output) Stop() error                   { return nil }

func (*output) Send(pkts []ts.Packet, metas []ts.Metadata) error { return nil }
