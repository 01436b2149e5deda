// Package monitor detects which files under a local tree changed since they
// were last synced.
//
// Detection is pluggable through Strategy. SnapshotStrategy compares the tree
// with a recorded snapshot of modification times and sizes; GitStrategy asks
// git for uncommitted changes; GitBranchStrategy lists what the current
// branch changed relative to another branch.
//
// All paths in Changes are slash-separated and relative to the monitored
// root.
package monitor

import (
	"context"
	"sort"
	"sync"
)

// Changes lists files that differ from the last sync.
type Changes struct {
	Added   []string
	Removed []string
	Updated []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

// Len returns the total number of changed files.
func (c Changes) Len() int {
	return len(c.Added) + len(c.Removed) + len(c.Updated)
}

func (c *Changes) sort() {
	sort.Strings(c.Added)
	sort.Strings(c.Removed)
	sort.Strings(c.Updated)
}

// Strategy detects changes under root.
type Strategy interface {
	Check(ctx context.Context, root string) (Changes, error)
}

// Resetter is implemented by strategies that keep their own record of the
// synced state.
type Resetter interface {
	// Reset marks paths as synced.
	Reset(ctx context.Context, root string, paths ...string) error
	// ResetAll marks the whole tree as synced.
	ResetAll(ctx context.Context, root string) error
}

// Monitor watches one root with a swappable strategy.
type Monitor struct {
	mu       sync.Mutex
	root     string
	strategy Strategy
	last     Changes
}

// New creates a monitor for root.
func New(root string, strategy Strategy) *Monitor {
	return &Monitor{root: root, strategy: strategy}
}

// Root returns the monitored directory.
func (m *Monitor) Root() string {
	return m.root
}

// SetStrategy replaces the detection strategy.
func (m *Monitor) SetStrategy(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategy = s
	m.last = Changes{}
}

// Check runs the strategy and remembers the result.
func (m *Monitor) Check(ctx context.Context) (Changes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changes, err := m.strategy.Check(ctx, m.root)
	if err != nil {
		return Changes{}, err
	}
	changes.sort()
	m.last = changes
	return changes, nil
}

// Last returns the result of the most recent Check.
func (m *Monitor) Last() Changes {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Reset marks paths as synced. It is a no-op for strategies that have no
// record of their own.
func (m *Monitor) Reset(ctx context.Context, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.strategy.(Resetter); ok {
		return r.Reset(ctx, m.root, paths...)
	}
	return nil
}

// ResetAll marks the whole tree as synced.
func (m *Monitor) ResetAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.strategy.(Resetter); ok {
		return r.ResetAll(ctx, m.root)
	}
	return nil
}
