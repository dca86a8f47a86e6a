// Package metrics collects gauges about the coordination fabric's own
// state — agent load, plan/task counts by status, and rate-limiter
// denials — for the operator dashboard and for regression tests that
// assert on invariants like "current_task_count tracks the assigned set".
package metrics

import (
	"sync"
	"time"

	"github.com/swebotic/coordfab/internal/model"
)

// AgentGauge is a point-in-time view of one registered agent's load.
type AgentGauge struct {
	AgentID     string
	Roles       []model.AgentRole
	CurrentLoad int
	MaxLoad     int
	Available   bool
}

// Snapshot is one TakeSnapshot() capture of the whole fabric.
type Snapshot struct {
	Timestamp     time.Time
	Agents        map[string]AgentGauge
	TasksByStatus map[model.SubTaskStatus]int
	ActivePlans   int
	RateDenials   map[model.OperationType]int
}

// Collector aggregates fabric-state gauges and keeps a bounded history of
// snapshots, following the teacher's bounded-history pattern
// (maxHistory, prune-to-exactly-N on overflow).
type Collector struct {
	mu          sync.RWMutex
	agents      map[string]AgentGauge
	rateDenials map[model.OperationType]int
	history     []Snapshot
	maxHistory  int
}

// NewCollector creates a metrics collector with the teacher's default
// history bound.
func NewCollector() *Collector {
	return &Collector{
		agents:      make(map[string]AgentGauge),
		rateDenials: make(map[model.OperationType]int),
		history:     []Snapshot{},
		maxHistory:  1000,
	}
}

// UpdateAgent records the current load/capacity of one registered agent.
func (c *Collector) UpdateAgent(cap model.AgentCapability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[cap.AgentID] = AgentGauge{
		AgentID:     cap.AgentID,
		Roles:       cap.Roles,
		CurrentLoad: cap.CurrentLoad,
		MaxLoad:     cap.MaxLoad,
		Available:   cap.CurrentLoad < cap.MaxLoad,
	}
}

// RemoveAgent drops an agent's gauge, e.g. on deregistration.
func (c *Collector) RemoveAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.agents, agentID)
}

// RecordDenial increments the denial counter for an operation type,
// fed by RateLimiter.Check call sites whenever they return a RateLimited
// error — giving the dashboard visibility into C1's gate without C1
// itself taking a metrics dependency.
func (c *Collector) RecordDenial(opType model.OperationType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateDenials[opType]++
}

// TakeSnapshot captures the current agent gauges and task/plan counts
// supplied by the caller (the scheduler owns that state; the collector
// does not reach into it directly) and appends the snapshot to history.
func (c *Collector) TakeSnapshot(tasksByStatus map[model.SubTaskStatus]int, activePlans int) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Timestamp:     time.Now(),
		Agents:        make(map[string]AgentGauge, len(c.agents)),
		TasksByStatus: make(map[model.SubTaskStatus]int, len(tasksByStatus)),
		ActivePlans:   activePlans,
		RateDenials:   make(map[model.OperationType]int, len(c.rateDenials)),
	}
	for k, v := range c.agents {
		snap.Agents[k] = v
	}
	for k, v := range tasksByStatus {
		snap.TasksByStatus[k] = v
	}
	for k, v := range c.rateDenials {
		snap.RateDenials[k] = v
	}

	c.history = append(c.history, snap)
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
	return snap
}

// GetHistory returns a defensive copy of the captured snapshot history.
func (c *Collector) GetHistory() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, len(c.history))
	copy(out, c.history)
	return out
}

// ResetHistory clears the snapshot history without touching live gauges.
func (c *Collector) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}
