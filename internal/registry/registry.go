// Package registry maps job ids to their runners.
//
// All map mutations are serialized by one lock; the runners themselves run
// independently and are only signalled through their own methods.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"tsched/internal/runner"
)

type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*runner.Runner
}

func New() *Registry {
	return &Registry{jobs: map[string]*runner.Runner{}}
}

// Insert registers r under id. An existing entry blocks the insert unless it
// is terminal, in which case it is replaced.
func (g *Registry) Insert(id string, r *runner.Runner) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.jobs[id]; ok && !cur.State().Terminal() {
		return fmt.Errorf("%w: %q", runner.ErrDuplicateJob, id)
	}
	g.jobs[id] = r
	return nil
}

func (g *Registry) Lookup(id string) (*runner.Runner, error) {
	g.mu.RLock()
	r, ok := g.jobs[id]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", runner.ErrUnknownJob, id)
	}
	return r, nil
}

// Remove stops the runner registered under id and evicts it.
func (g *Registry) Remove(id string) (*runner.Runner, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", runner.ErrUnknownJob, id)
	}
	delete(g.jobs, id)
	if err := r.Stop(); err != nil && !errors.Is(err, runner.ErrInvalidTransition) {
		return r, err
	}
	return r, nil
}

// Evict drops id only if it still maps to r. It does not stop the runner.
func (g *Registry) Evict(id string, r *runner.Runner) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.jobs[id]; ok && cur == r {
		delete(g.jobs, id)
		return true
	}
	return false
}

// EvictCompleted drops every Completed entry and returns how many went.
func (g *Registry) EvictCompleted() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for id, r := range g.jobs {
		if r.State() == runner.Completed {
			delete(g.jobs, id)
			n++
		}
	}
	return n
}

// Drain stops and evicts every runner, returning them so callers can wait.
func (g *Registry) Drain() []*runner.Runner {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*runner.Runner, 0, len(g.jobs))
	for id, r := range g.jobs {
		_ = r.Stop()
		out = append(out, r)
		delete(g.jobs, id)
	}
	return out
}

// IDs returns tracked ids in lexical order.
func (g *Registry) IDs() []string {
	g.mu.RLock()
	ids := make([]string, 0, len(g.jobs))
	for id := range g.jobs {
		ids = append(ids, id)
	}
	g.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshots returns a point-in-time status for every tracked id.
func (g *Registry) Snapshots() map[string]runner.Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]runner.Snapshot, len(g.jobs))
	for id, r := range g.jobs {
		out[id] = r.Snapshot()
	}
	return out
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.jobs)
}
