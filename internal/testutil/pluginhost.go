package testutil

import (
	"fmt"
	"sync"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// PluginHost is a plugin.Host fake for plugin tests: it records log lines,
// joint-termination calls and signalled events, and serves a configurable
// bitrate.
type PluginHost struct {
	mu sync.Mutex

	Rate       ts.BitRate
	Confidence ts.BitRateConfidence
	Total      uint64
	Plugin     uint64
	IsAborting bool

	Logs       []string
	UsingJoint bool
	Voted      bool
	Events     []plugin.EventContext
}

var _ plugin.Host = (*PluginHost)(nil)

func (h *PluginHost) Logf(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Logs = append(h.Logs, fmt.Sprintf(format, args...))
}

func (h *PluginHost) Debugf(format string, args ...any) {}

func (h *PluginHost) BitRate() (ts.BitRate, ts.BitRateConfidence) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Rate, h.Confidence
}

// SetBitRate changes the bitrate the fake reports.
func (h *PluginHost) SetBitRate(br ts.BitRate, conf ts.BitRateConfidence) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Rate, h.Confidence = br, conf
}

func (h *PluginHost) Aborting() bool        { return h.IsAborting }
func (h *PluginHost) TotalPackets() uint64  { return h.Total }
func (h *PluginHost) PluginPackets() uint64 { return h.Plugin }

func (h *PluginHost) UseJointTermination() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.UsingJoint = true
}

func (h *PluginHost) JointTerminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Voted = true
}

func (h *PluginHost) UsingJointTermination() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.UsingJoint
}

func (h *PluginHost) JointTerminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Voted
}

func (h *PluginHost) SignalEvent(code uint32, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, plugin.EventContext{Code: code, Data: data})
}
