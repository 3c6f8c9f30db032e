// Package plugins bundles the built-in plugins shipped with the engine.
package plugins

import (
	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/plugins/drop"
	"github.com/banshee-data/tspipe/internal/plugins/file"
	"github.com/banshee-data/tspipe/internal/plugins/filter"
	"github.com/banshee-data/tspipe/internal/plugins/limit"
	"github.com/banshee-data/tspipe/internal/plugins/null"
	"github.com/banshee-data/tspipe/internal/plugins/pcap"
	"github.com/banshee-data/tspipe/internal/plugins/regulate"
)

// Builtins returns a registry holding every built-in plugin.
func Builtins() *plugin.Registry {
	reg := plugin.NewRegistry()
	drop.Register(reg)
	file.Register(reg)
	filter.Register(reg)
	limit.Register(reg)
	null.Register(reg)
	pcap.Register(reg)
	regulate.Register(reg)
	return reg
}
