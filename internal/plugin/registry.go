package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// InputFactory builds an input plugin bound to its host.
type InputFactory func(host Host) Input

// ProcessorFactory builds a processor plugin bound to its host.
type ProcessorFactory func(host Host) Processor

// OutputFactory builds an output plugin bound to its host.
type OutputFactory func(host Host) Output

// Registry maps plugin names to factories, per role. A name may be
// registered under several roles (a "file" input and a "file" output can
// coexist). Registration normally happens at program start; lookups happen
// at pipeline construction.
type Registry struct {
	mu         sync.Mutex
	inputs     map[string]InputFactory
	processors map[string]ProcessorFactory
	outputs    map[string]OutputFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inputs:     make(map[string]InputFactory),
		processors: make(map[string]ProcessorFactory),
		outputs:    make(map[string]OutputFactory),
	}
}

// RegisterInput adds or replaces the input factory for name.
func (r *Registry) RegisterInput(name string, f InputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs[name] = f
}

// RegisterProcessor adds or replaces the processor factory for name.
func (r *Registry) RegisterProcessor(name string, f ProcessorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = f
}

// RegisterOutput adds or replaces the output factory for name.
func (r *Registry) RegisterOutput(name string, f OutputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[name] = f
}

// NewInput instantiates the named input plugin.
func (r *Registry) NewInput(name string, host Host) (Input, error) {
	r.mu.Lock()
	f, ok := r.inputs[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown input plugin %q (have %v)", name, r.InputNames())
	}
	return f(host), nil
}

// NewProcessor instantiates the named processor plugin.
func (r *Registry) NewProcessor(name string, host Host) (Processor, error) {
	r.mu.Lock()
	f, ok := r.processors[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown processor plugin %q (have %v)", name, r.ProcessorNames())
	}
	return f(host), nil
}

// NewOutput instantiates the named output plugin.
func (r *Registry) NewOutput(name string, host Host) (Output, error) {
	r.mu.Lock()
	f, ok := r.outputs[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown output plugin %q (have %v)", name, r.OutputNames())
	}
	return f(host), nil
}

// InputNames returns the registered input plugin names, sorted.
func (r *Registry) InputNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.inputs)
}

// ProcessorNames returns the registered processor plugin names, sorted.
func (r *Registry) ProcessorNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.processors)
}

// OutputNames returns the registered output plugin names, sorted.
func (r *Registry) OutputNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.outputs)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
