package plugin

import (
	"sync"
	"testing"
)

func uint32p(v uint32) *uint32 { return &v }
func intp(v int) *int          { return &v }
func kindp(k Kind) *Kind       { return &k }

func TestEventCriteriaMatching(t *testing.T) {
	ctx := EventContext{
		Code:        7,
		PluginName:  "filter",
		PluginIndex: 2,
		PluginKind:  KindProcessor,
	}

	cases := []struct {
		name string
		c    EventCriteria
		want bool
	}{
		{"empty matches all", EventCriteria{}, true},
		{"code match", EventCriteria{Code: uint32p(7)}, true},
		{"code mismatch", EventCriteria{Code: uint32p(8)}, false},
		{"name match", EventCriteria{PluginName: "filter"}, true},
		{"name mismatch", EventCriteria{PluginName: "limit"}, false},
		{"index match", EventCriteria{PluginIndex: intp(2)}, true},
		{"index mismatch", EventCriteria{PluginIndex: intp(0)}, false},
		{"kind match", EventCriteria{PluginKind: kindp(KindProcessor)}, true},
		{"kind mismatch", EventCriteria{PluginKind: kindp(KindOutput)}, false},
		{"all fields", EventCriteria{
			Code:        uint32p(7),
			PluginName:  "filter",
			PluginIndex: intp(2),
			PluginKind:  kindp(KindProcessor),
		}, true},
	}

	for _, c := range cases {
		if got := c.c.matches(ctx); got != c.want {
			t.Errorf("%s: matches = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestEventRegistryDelivery(t *testing.T) {
	var reg EventRegistry
	var order []string

	reg.Register(func(ctx EventContext) { order = append(order, "first") }, EventCriteria{})
	reg.Register(func(ctx EventContext) { order = append(order, "second") }, EventCriteria{Code: uint32p(1)})
	reg.Register(func(ctx EventContext) { order = append(order, "never") }, EventCriteria{Code: uint32p(2)})

	reg.Signal(EventContext{Code: 1})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("delivery order = %v, want [first second]", order)
	}
}

func TestEventRegistryNilHandler(t *testing.T) {
	var reg EventRegistry
	reg.Register(nil, EventCriteria{})
	reg.Signal(EventContext{}) // must not panic
}

func TestEventRegistryConcurrentSignal(t *testing.T) {
	var reg EventRegistry
	var mu sync.Mutex
	count := 0

	reg.Register(func(ctx EventContext) {
		mu.Lock()
		count++
		mu.Unlock()
	}, EventCriteria{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Signal(EventContext{Code: uint32(j)})
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 800 {
		t.Errorf("delivered %d events, want 800", count)
	}
}
