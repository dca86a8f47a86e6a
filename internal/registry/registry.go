// Package registry tracks live agent capabilities and load, adapted from
// internal/memory/agent.go's persistence shape and guarded the way
// internal/captain/captain.go guards its in-memory agent map.
package registry

import (
	"sync"
	"time"

	"github.com/swebotic/coordfab/internal/model"
)

// Persister is the durable backend a Registry mirrors to. *store.Store
// satisfies this.
type Persister interface {
	UpsertAgent(model.AgentCapability) error
	ListAgents() ([]model.AgentCapability, error)
}

// Registry is the thread-safe source of truth for which agents exist, what
// roles/skills they carry, and how loaded they currently are.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*model.AgentCapability
	store  Persister
	now    func() time.Time
}

// New builds an empty Registry, optionally backed by a Persister for restarts.
func New(store Persister) *Registry {
	return &Registry{agents: make(map[string]*model.AgentCapability), store: store, now: time.Now}
}

// LoadFromStore hydrates the in-memory map from the durable backend.
func (r *Registry) LoadFromStore() error {
	if r.store == nil {
		return nil
	}
	agents, err := r.store.ListAgents()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range agents {
		a := agents[i]
		r.agents[a.AgentID] = &a
	}
	return nil
}

// Register adds or refreshes an agent's declared capabilities.
func (r *Registry) Register(cap model.AgentCapability) error {
	cap.LastSeen = r.now()
	r.mu.Lock()
	r.agents[cap.AgentID] = &cap
	r.mu.Unlock()
	if r.store != nil {
		return r.store.UpsertAgent(cap)
	}
	return nil
}

// Heartbeat refreshes LastSeen for agentID without touching load/roles.
func (r *Registry) Heartbeat(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return false
	}
	a.LastSeen = r.now()
	return true
}

// Get returns a copy of the agent's capability record.
func (r *Registry) Get(agentID string) (model.AgentCapability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return model.AgentCapability{}, false
	}
	return *a, true
}

// ByRole returns every agent (copies) capable of serving role that still has
// capacity headroom (current_task_count < max_concurrent_tasks), sorted by
// current load ascending -- least-loaded first, the order Scheduler's
// _find_best_agent scan consumes. A role-matching agent at or over its
// declared capacity is never a candidate, matching the original's
// `a.availability and a.current_task_count < a.max_concurrent_tasks` filter.
func (r *Registry) ByRole(role model.AgentRole) []model.AgentCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.AgentCapability
	for _, a := range r.agents {
		if a.HasRole(role) && a.HasHeadroom() {
			out = append(out, *a)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CurrentLoad < out[j-1].CurrentLoad; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// AdjustLoad applies delta to agentID's CurrentLoad, clamped at zero, and
// mirrors the change to the durable backend.
func (r *Registry) AdjustLoad(agentID string, delta int) error {
	r.mu.Lock()
	a, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	a.CurrentLoad += delta
	if a.CurrentLoad < 0 {
		a.CurrentLoad = 0
	}
	snapshot := *a
	r.mu.Unlock()

	if r.store != nil {
		return r.store.UpsertAgent(snapshot)
	}
	return nil
}

// All returns a copy of every known agent.
func (r *Registry) All() []model.AgentCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.AgentCapability, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	return out
}
