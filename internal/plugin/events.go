package plugin

import "sync"

// EventContext describes one plugin event at delivery time. It is built
// fresh for every SignalEvent call and must not be retained by handlers.
type EventContext struct {
	// Code is the application-defined event code.
	Code uint32

	// PluginName and PluginIndex identify the signalling stage. The input
	// stage is index 0, the output stage is last.
	PluginName  string
	PluginIndex int
	PluginKind  Kind

	// PluginPackets and TotalPackets are the signalling stage's packet
	// counters at signal time.
	PluginPackets uint64
	TotalPackets  uint64

	// Data is the value the plugin attached to the event, if any.
	Data any
}

// EventHandler receives plugin events. It runs synchronously in the
// signalling stage's goroutine and must return quickly.
type EventHandler func(ctx EventContext)

// EventCriteria restricts which events a handler receives. Zero-valued
// fields match everything.
type EventCriteria struct {
	// Code, when non-nil, matches only events with this code.
	Code *uint32

	// PluginName, when non-empty, matches only this plugin name.
	PluginName string

	// PluginIndex, when non-nil, matches only this position in the chain.
	PluginIndex *int

	// PluginKind, when non-nil, matches only stages of this role.
	PluginKind *Kind
}

func (c EventCriteria) matches(ctx EventContext) bool {
	if c.Code != nil && *c.Code != ctx.Code {
		return false
	}
	if c.PluginName != "" && c.PluginName != ctx.PluginName {
		return false
	}
	if c.PluginIndex != nil && *c.PluginIndex != ctx.PluginIndex {
		return false
	}
	if c.PluginKind != nil && *c.PluginKind != ctx.PluginKind {
		return false
	}
	return true
}

type eventRegistration struct {
	handler  EventHandler
	criteria EventCriteria
}

// EventRegistry holds the application's event handlers. One registry serves
// the whole pipeline; its mutex is taken only to register and to snapshot
// the handler list, never across a handler call, so a slow handler cannot
// block registration and signalling stages never hold the lock while
// running application code.
type EventRegistry struct {
	mu       sync.Mutex
	handlers []eventRegistration
}

// Register adds a handler with its criteria. Handlers cannot be removed;
// the registry lives as long as the pipeline.
func (r *EventRegistry) Register(h EventHandler, c EventCriteria) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, eventRegistration{handler: h, criteria: c})
}

// Signal delivers ctx to every matching handler, synchronously, in
// registration order.
func (r *EventRegistry) Signal(ctx EventContext) {
	r.mu.Lock()
	snapshot := make([]eventRegistration, len(r.handlers))
	copy(snapshot, r.handlers)
	r.mu.Unlock()

	for _, reg := range snapshot {
		if reg.criteria.matches(ctx) {
			reg.handler(ctx)
		}
	}
}
