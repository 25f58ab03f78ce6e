package poller

import (
	"context"
	"sort"
	"sync"
)

// Controller is the type-erased view of a Subscription
type Controller interface {
	ID() string
	Name() string
	Start(ctx context.Context)
	Stop()
	Refresh()
	Running() bool
	Stats() Stats
}

// Stats holds a subscription's counters
type Stats struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Interval   string `json:"interval"`
	Running    bool   `json:"running"`
	Generation uint64 `json:"generation"`
	Ticks      int64  `json:"ticks"`
	Successes  int64  `json:"successes"`
	Failures   int64  `json:"failures"`
	Discarded  int64  `json:"discarded"`
}

// Group indexes subscriptions by name
type Group struct {
	mu   sync.RWMutex
	subs map[string]Controller
}

// NewGroup creates an empty group
func NewGroup() *Group {
	return &Group{subs: make(map[string]Controller)}
}

// Add registers c under its name, replacing any previous entry
func (g *Group) Add(c Controller) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs[c.Name()] = c
}

// Get looks a subscription up by name
func (g *Group) Get(name string) (Controller, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.subs[name]
	return c, ok
}

// Refresh forces an immediate fetch of the named subscription. It reports false
// when no such subscription exists.
func (g *Group) Refresh(name string) bool {
	c, ok := g.Get(name)
	if !ok {
		return false
	}
	c.Refresh()
	return true
}

// StartAll starts every subscription
func (g *Group) StartAll(ctx context.Context) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.subs {
		c.Start(ctx)
	}
}

// StopAll stops every subscription
func (g *Group) StopAll() {
	g.mu.RLock()
	subs := make([]Controller, 0, len(g.subs))
	for _, c := range g.subs {
		subs = append(subs, c)
	}
	g.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range subs {
		wg.Add(1)
		go func(c Controller) {
			defer wg.Done()
			c.Stop()
		}(c)
	}
	wg.Wait()
}

// Stats returns the counters of every subscription sorted by name
func (g *Group) Stats() []Stats {
	g.mu.RLock()
	stats := make([]Stats, 0, len(g.subs))
	for _, c := range g.subs {
		stats = append(stats, c.Stats())
	}
	g.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
