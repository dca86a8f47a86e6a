// Package scheduler orders a plan's SubTasks into a dependency-respecting
// schedule and assigns each ready SubTask to the best available agent,
// ported from
// original_source/engine/runners/coordinator_agent.py's
// `_topological_sort`/`_find_best_agent`/`assign_tasks`, guarded the way
// internal/captain/captain.go guards its dispatch critical section with a
// single mutex.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swebotic/coordfab/internal/model"
)

// AgentSource supplies candidate agents for a role and lets the scheduler
// keep CurrentLoad accurate as it assigns and releases work.
// *registry.Registry satisfies this.
type AgentSource interface {
	ByRole(role model.AgentRole) []model.AgentCapability
	AdjustLoad(agentID string, delta int) error
}

// AssignmentSink persists assignments. *store.Store satisfies this.
type AssignmentSink interface {
	SaveAssignment(model.TaskAssignment) error
}

// Scheduler serializes plan dispatch through a single mutex, matching the
// "scheduler critical section" the teacher protects in captain.go.
type Scheduler struct {
	mu       sync.Mutex
	agents   AgentSource
	sink     AssignmentSink
	now      func() time.Time
	verbRole map[string]model.AgentRole
}

// New builds a Scheduler.
func New(agents AgentSource, sink AssignmentSink) *Scheduler {
	return &Scheduler{agents: agents, sink: sink, now: time.Now}
}

// TopologicalOrder runs Kahn's algorithm over the plan's SubTasks, breaking
// ties among ready tasks by descending priority (re-sorted by `-priority`
// exactly as `_topological_sort` does), then by ID for determinism.
func TopologicalOrder(plan *model.ExecutionPlan, priority func(*model.SubTask) int) ([]*model.SubTask, error) {
	byID := make(map[string]*model.SubTask, len(plan.SubTasks))
	indegree := make(map[string]int, len(plan.SubTasks))
	dependents := make(map[string][]string)

	for _, st := range plan.SubTasks {
		byID[st.ID] = st
		if _, ok := indegree[st.ID]; !ok {
			indegree[st.ID] = 0
		}
	}
	for _, st := range plan.SubTasks {
		for _, dep := range st.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue // dependency outside this plan: treat as already satisfied
			}
			indegree[st.ID]++
			dependents[dep] = append(dependents[dep], st.ID)
		}
	}

	var ready []*model.SubTask
	for _, st := range plan.SubTasks {
		if indegree[st.ID] == 0 {
			ready = append(ready, st)
		}
	}

	var order []*model.SubTask
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool {
			pi, pj := priority(ready[i]), priority(ready[j])
			if pi != pj {
				return pi > pj
			}
			return ready[i].ID < ready[j].ID
		})
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, depID := range dependents[next.ID] {
			indegree[depID]--
			if indegree[depID] == 0 {
				ready = append(ready, byID[depID])
			}
		}
	}

	if len(order) != len(plan.SubTasks) {
		return nil, &CycleError{PlanID: plan.ID}
	}
	return order, nil
}

// CycleError is returned when a plan's DependsOn graph is not a DAG.
type CycleError struct{ PlanID string }

func (e *CycleError) Error() string { return "dependency cycle detected in plan " + e.PlanID }

// DefaultPriority returns a flat priority (the plan's own priority) for
// every subtask, the common case when subtasks don't carry individual
// priorities of their own.
func DefaultPriority(plan *model.ExecutionPlan) func(*model.SubTask) int {
	return func(*model.SubTask) int { return plan.Priority }
}

// FindBestAgent scores every candidate capable of role and returns the
// highest scorer, matching _find_best_agent's formula: +10 for an exact
// role match, plus up to 5 points from (1 - current/max) load headroom.
// Ties break toward the lowest current load, then lowest AgentID. Agents at
// or over their declared capacity (current_task_count >= max_concurrent_tasks)
// are never candidates, regardless of whether the AgentSource already
// filtered them -- this is the Scheduler-held invariant from SPEC_FULL.md §3.
func (s *Scheduler) FindBestAgent(role model.AgentRole) (model.AgentCapability, bool) {
	var candidates []model.AgentCapability
	for _, c := range s.agents.ByRole(role) {
		if c.HasHeadroom() {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return model.AgentCapability{}, false
	}

	best := candidates[0]
	bestScore := scoreAgent(best, role)
	for _, c := range candidates[1:] {
		score := scoreAgent(c, role)
		if score > bestScore ||
			(score == bestScore && c.CurrentLoad < best.CurrentLoad) ||
			(score == bestScore && c.CurrentLoad == best.CurrentLoad && c.AgentID < best.AgentID) {
			best = c
			bestScore = score
		}
	}
	return best, true
}

func scoreAgent(a model.AgentCapability, role model.AgentRole) float64 {
	score := 0.0
	if a.HasRole(role) {
		score += 10
	}
	maxLoad := a.MaxLoad
	if maxLoad <= 0 {
		maxLoad = 1
	}
	headroom := 1 - float64(a.CurrentLoad)/float64(maxLoad)
	if headroom < 0 {
		headroom = 0
	}
	score += headroom * 5
	return score
}

// AssignReady walks the plan in topological order and assigns every
// currently-ready (indegree-zero, Pending) SubTask to its best agent,
// transitioning it to Assigned and persisting the TaskAssignment. It
// returns the assignments it made this pass. The whole pass runs under the
// scheduler's single mutex (the critical section SPEC_FULL.md §5 names).
func (s *Scheduler) AssignReady(plan *model.ExecutionPlan) ([]model.TaskAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := TopologicalOrder(plan, DefaultPriority(plan))
	if err != nil {
		return nil, err
	}

	depSatisfied := func(st *model.SubTask) bool {
		for _, depID := range st.DependsOn {
			for _, other := range plan.SubTasks {
				if other.ID == depID && other.Status != model.SubTaskCompleted {
					return false
				}
			}
		}
		return true
	}

	var assignments []model.TaskAssignment
	now := s.now()
	for _, st := range order {
		if st.Status != model.SubTaskPending || !depSatisfied(st) {
			continue
		}
		agent, ok := s.FindBestAgent(st.RequiredRole)
		if !ok {
			continue
		}
		if err := st.TransitionTo(model.SubTaskAssigned, now); err != nil {
			continue
		}
		st.AssignedTo = agent.AgentID
		assignment := model.TaskAssignment{
			ID: uuid.NewString(), SubTaskID: st.ID, AgentID: agent.AgentID,
			AssignedAt: now, Score: scoreAgent(agent, st.RequiredRole),
		}
		if s.sink != nil {
			if err := s.sink.SaveAssignment(assignment); err != nil {
				return assignments, err
			}
		}
		if err := s.agents.AdjustLoad(agent.AgentID, 1); err != nil {
			return assignments, err
		}
		assignments = append(assignments, assignment)
	}
	return assignments, nil
}

// ReleaseAgent decrements agentID's load by one, matching the load given
// back to the registry when a SubTask leaves in_progress for a terminal
// state (completed or failed) -- the counterpart to AssignReady's +1, kept
// here so current_task_count tracks exactly the assigned-and-in-progress
// set SPEC_FULL.md §3 defines it as.
func (s *Scheduler) ReleaseAgent(agentID string) error {
	return s.agents.AdjustLoad(agentID, -1)
}

// MonitorProgress reports status counts, mirroring monitor_progress()
// (the completion percentage comes from ExecutionPlan.CompletionPercentage,
// not from this function), and auto-transitions the plan to Completed
// once every SubTask reaches a terminal successful state.
func MonitorProgress(plan *model.ExecutionPlan, now time.Time) map[model.SubTaskStatus]int {
	counts := make(map[model.SubTaskStatus]int)
	allDone := len(plan.SubTasks) > 0
	for _, st := range plan.SubTasks {
		counts[st.Status]++
		if st.Status != model.SubTaskCompleted {
			allDone = false
		}
	}
	if allDone && plan.Status != model.PlanCompleted {
		plan.Status = model.PlanCompleted
		plan.UpdatedAt = now
	}
	return counts
}
