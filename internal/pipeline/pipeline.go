package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// PluginSpec names one plugin of the chain with its own options.
type PluginSpec struct {
	Name string
	Args []string
}

// Chain is the ordered plugin specification of a pipeline: one input, zero
// or more processors, one output.
type Chain struct {
	Input      PluginSpec
	Processors []PluginSpec
	Output     PluginSpec
}

// StageStatus is a point-in-time snapshot of one stage, readable at any time
// without touching the hand-off locks.
type StageStatus struct {
	Name          string               `json:"name"`
	Kind          string               `json:"kind"`
	Index         int                  `json:"index"`
	PluginPackets uint64               `json:"plugin_packets"`
	TotalPackets  uint64               `json:"total_packets"`
	BitRate       ts.BitRate           `json:"bitrate"`
	Confidence    ts.BitRateConfidence `json:"bitrate_confidence"`
	Aborting      bool                 `json:"aborting"`
}

// Pipeline is the controller: it builds the stage ring from a chain
// specification, starts and stops the stage goroutines, owns the event
// handler registry and exposes a blocking completion wait.
type Pipeline struct {
	opts   Options
	events *plugin.EventRegistry
	coord  *jointTermination
	buffer *PacketBuffer

	input  *inputExecutor
	procs  []*processorExecutor
	output *outputExecutor
	execs  []*executor

	wg         sync.WaitGroup
	started    atomic.Bool
	abortFlag  atomic.Bool
	reportOnce sync.Once
}

// New builds a pipeline from the chain specification. Plugin names are
// resolved against the registry and each plugin's options are parsed and
// validated here, so every configuration error surfaces before any goroutine
// starts.
func New(chain Chain, opts Options, reg *plugin.Registry) (*Pipeline, error) {
	if reg == nil {
		return nil, errors.New("nil plugin registry")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	stageCount := len(chain.Processors) + 2
	if opts.BufferPackets < stageCount {
		return nil, fmt.Errorf("buffer of %d packets is too small for %d stages", opts.BufferPackets, stageCount)
	}

	p := &Pipeline{
		opts:   opts,
		events: &plugin.EventRegistry{},
	}
	p.coord = newJointTermination(opts.IgnoreJointTermination, p.opts.Log)
	p.buffer = NewPacketBuffer(opts.BufferPackets)

	// Build the base executors and close the ring before instantiating the
	// plugins: factories receive their executor as host.
	names := make([]string, 0, stageCount)
	kinds := make([]plugin.Kind, 0, stageCount)
	names = append(names, chain.Input.Name)
	kinds = append(kinds, plugin.KindInput)
	for _, ps := range chain.Processors {
		names = append(names, ps.Name)
		kinds = append(kinds, plugin.KindProcessor)
	}
	names = append(names, chain.Output.Name)
	kinds = append(kinds, plugin.KindOutput)

	for i := range names {
		logName := names[i]
		if opts.LogPluginIndex {
			logName = fmt.Sprintf("%s#%d", names[i], i)
		}
		p.execs = append(p.execs, &executor{
			pipe:    p,
			kind:    kinds[i],
			name:    names[i],
			logName: logName,
			index:   i,
			in:      newEdge(),
		})
	}
	for i, e := range p.execs {
		e.prev = p.execs[(i+stageCount-1)%stageCount]
		e.next = p.execs[(i+1)%stageCount]
	}

	// The input stage starts owning the whole arena as free slots; every
	// other stage starts empty.
	p.execs[0].in.count = p.buffer.Capacity()

	in, err := reg.NewInput(chain.Input.Name, p.execs[0])
	if err != nil {
		return nil, err
	}
	if err := in.Configure(chain.Input.Args); err != nil {
		return nil, fmt.Errorf("input plugin %q: %w", chain.Input.Name, err)
	}

	// Mode-dependent defaults follow the input plugin's nature.
	p.opts.applyRealTimeDefaults(in.IsRealTime())

	p.input = newInputExecutor(p.execs[0], in, &p.opts)

	for i, ps := range chain.Processors {
		proc, err := reg.NewProcessor(ps.Name, p.execs[1+i])
		if err != nil {
			return nil, err
		}
		if err := proc.Configure(ps.Args); err != nil {
			return nil, fmt.Errorf("processor plugin %q: %w", ps.Name, err)
		}
		p.procs = append(p.procs, newProcessorExecutor(p.execs[1+i], proc))
	}

	out, err := reg.NewOutput(chain.Output.Name, p.execs[stageCount-1])
	if err != nil {
		return nil, err
	}
	if err := out.Configure(chain.Output.Args); err != nil {
		return nil, fmt.Errorf("output plugin %q: %w", chain.Output.Name, err)
	}
	p.output = newOutputExecutor(p.execs[stageCount-1], out)

	return p, nil
}

// RegisterEventHandler adds an application event handler, delivered
// synchronously in the signalling stage's goroutine for every event matching
// the criteria. Must be called before Start.
func (p *Pipeline) RegisterEventHandler(h plugin.EventHandler, c plugin.EventCriteria) {
	p.events.Register(h, c)
}

// Start starts every plugin, input to output, then launches one goroutine
// per stage. A plugin start failure stops the already-started plugins and no
// goroutine runs.
func (p *Pipeline) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("pipeline already started")
	}

	type startedPlugin struct {
		name string
		base plugin.Base
	}
	var started []startedPlugin
	fail := func(kind plugin.Kind, name string, err error) error {
		for i := len(started) - 1; i >= 0; i-- {
			if serr := started[i].base.Stop(); serr != nil {
				p.opts.Log("[%s] stop after failed start: %v", started[i].name, serr)
			}
		}
		return fmt.Errorf("starting %s plugin %q: %w", kind, name, err)
	}

	if err := p.input.input.Start(); err != nil {
		return fail(plugin.KindInput, p.input.name, err)
	}
	started = append(started, startedPlugin{p.input.name, p.input.input})
	for _, pe := range p.procs {
		if err := pe.proc.Start(); err != nil {
			return fail(plugin.KindProcessor, pe.name, err)
		}
		started = append(started, startedPlugin{pe.name, pe.proc})
	}
	if err := p.output.output.Start(); err != nil {
		return fail(plugin.KindOutput, p.output.name, err)
	}

	p.wg.Add(len(p.execs))
	go func() {
		defer p.wg.Done()
		p.input.run()
	}()
	for _, pe := range p.procs {
		pe := pe
		go func() {
			defer p.wg.Done()
			pe.run()
		}()
	}
	go func() {
		defer p.wg.Done()
		p.output.run()
	}()

	debugf("pipeline started: %d stages, %d packet buffer", len(p.execs), p.buffer.Capacity())
	return nil
}

// Wait blocks until every stage goroutine has exited, then emits the final
// per-stage packet report. It always returns; success versus abort is
// exposed by Aborted and the already-emitted diagnostics.
func (p *Pipeline) Wait() {
	p.wg.Wait()
	p.reportOnce.Do(p.finalReport)
}

// Abort asks every stage to stop: all abort flags are set and every pending
// waitWork is unblocked, so no goroutine hangs on a dead neighbour. A plugin
// call already blocked inside its own I/O is interrupted only when the
// plugin supports it.
func (p *Pipeline) Abort() {
	p.noteAbort()
	for _, e := range p.execs {
		e.aborting.Store(true)
	}
	for _, e := range p.execs {
		e.wake()
	}
	if a, ok := p.input.input.(plugin.Aborter); ok {
		a.Abort()
	}
}

// Aborted reports whether the run ended on a failure or an external abort
// rather than a clean or jointly agreed end of stream.
func (p *Pipeline) Aborted() bool { return p.abortFlag.Load() }

// noteAbort records a stage-fatal failure for Aborted.
func (p *Pipeline) noteAbort() { p.abortFlag.Store(true) }

// Snapshot returns the current per-stage counters and bitrate, input first.
func (p *Pipeline) Snapshot() []StageStatus {
	out := make([]StageStatus, 0, len(p.execs))
	for _, e := range p.execs {
		br, conf := e.currentBitrate()
		out = append(out, StageStatus{
			Name:          e.name,
			Kind:          e.kind.String(),
			Index:         e.index,
			PluginPackets: e.pluginPackets.Load(),
			TotalPackets:  e.totalPackets.Load(),
			BitRate:       br,
			Confidence:    conf,
			Aborting:      e.aborting.Load(),
		})
	}
	return out
}

func (p *Pipeline) finalReport() {
	for _, e := range p.execs {
		total, through := e.totalPackets.Load(), e.pluginPackets.Load()
		p.opts.Log("[%s] %s: %d packets total, %d through the plugin, %d excluded",
			e.logName, e.kind, total, through, total-through)
	}
}
