package scheduler

import (
	"testing"
	"time"

	"github.com/swebotic/coordfab/internal/model"
)

type fakeAgents struct {
	byRole   map[model.AgentRole][]model.AgentCapability
	adjusted map[string]int
}

func (f *fakeAgents) ByRole(role model.AgentRole) []model.AgentCapability {
	return f.byRole[role]
}

func (f *fakeAgents) AdjustLoad(agentID string, delta int) error {
	if f.adjusted == nil {
		f.adjusted = make(map[string]int)
	}
	f.adjusted[agentID] += delta
	for role, agents := range f.byRole {
		for i := range agents {
			if agents[i].AgentID == agentID {
				f.byRole[role][i].CurrentLoad += delta
			}
		}
	}
	return nil
}

type fakeSink struct {
	saved []model.TaskAssignment
}

func (f *fakeSink) SaveAssignment(a model.TaskAssignment) error {
	f.saved = append(f.saved, a)
	return nil
}

func TestTopologicalOrder_RespectsDependenciesAndPriority(t *testing.T) {
	plan := &model.ExecutionPlan{
		ID:       "p1",
		Priority: 5,
		SubTasks: []*model.SubTask{
			{ID: "A", Status: model.SubTaskPending},
			{ID: "B", Status: model.SubTaskPending, DependsOn: []string{"A"}},
			{ID: "C", Status: model.SubTaskPending, DependsOn: []string{"A"}},
		},
	}
	order, err := TopologicalOrder(plan, DefaultPriority(plan))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0].ID != "A" {
		t.Fatalf("expected A first, got %v", ids(order))
	}
	// B and C are both ready after A; tie-break is by ID.
	if order[1].ID != "B" || order[2].ID != "C" {
		t.Fatalf("expected B then C after A, got %v", ids(order))
	}
}

func TestTopologicalOrder_DetectsCycle(t *testing.T) {
	plan := &model.ExecutionPlan{
		ID: "cyclic",
		SubTasks: []*model.SubTask{
			{ID: "A", DependsOn: []string{"B"}},
			{ID: "B", DependsOn: []string{"A"}},
		},
	}
	_, err := TopologicalOrder(plan, DefaultPriority(plan))
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestFindBestAgent_PrefersLeastLoaded(t *testing.T) {
	agents := &fakeAgents{byRole: map[model.AgentRole][]model.AgentCapability{
		model.RoleDeveloper: {
			{AgentID: "busy", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 5, CurrentLoad: 4},
			{AgentID: "idle", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 5, CurrentLoad: 0},
		},
	}}
	s := New(agents, nil)
	best, ok := s.FindBestAgent(model.RoleDeveloper)
	if !ok || best.AgentID != "idle" {
		t.Fatalf("expected idle agent to win, got %+v ok=%v", best, ok)
	}
}

func TestAssignReady_AssignsOnlyDependencySatisfiedPendingTasks(t *testing.T) {
	agents := &fakeAgents{byRole: map[model.AgentRole][]model.AgentCapability{
		model.RoleDeveloper: {{AgentID: "dev1", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 5}},
	}}
	sink := &fakeSink{}
	s := New(agents, sink)
	now := time.Now()
	plan := &model.ExecutionPlan{
		ID:       "p1",
		Priority: 5,
		SubTasks: []*model.SubTask{
			{ID: "A", Status: model.SubTaskPending, RequiredRole: model.RoleDeveloper, CreatedAt: now, UpdatedAt: now},
			{ID: "B", Status: model.SubTaskPending, RequiredRole: model.RoleDeveloper, DependsOn: []string{"A"}, CreatedAt: now, UpdatedAt: now},
		},
	}
	assignments, err := s.AssignReady(plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assignments) != 1 || assignments[0].SubTaskID != "A" {
		t.Fatalf("expected only A assigned this pass, got %v", assignments)
	}
	if plan.SubTasks[0].Status != model.SubTaskAssigned {
		t.Fatalf("expected A transitioned to Assigned, got %s", plan.SubTasks[0].Status)
	}
	if plan.SubTasks[1].Status != model.SubTaskPending {
		t.Fatalf("expected B still Pending (blocked on A), got %s", plan.SubTasks[1].Status)
	}
	if len(sink.saved) != 1 {
		t.Fatalf("expected assignment persisted, got %d", len(sink.saved))
	}
}

func TestAssignReady_SingleCapacityAgentTakesOneTaskPerPass(t *testing.T) {
	agents := &fakeAgents{byRole: map[model.AgentRole][]model.AgentCapability{
		model.RoleDeveloper: {{AgentID: "dev1", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 1}},
	}}
	sink := &fakeSink{}
	s := New(agents, sink)
	now := time.Now()
	plan := &model.ExecutionPlan{
		ID:       "p1",
		Priority: 5,
		SubTasks: []*model.SubTask{
			{ID: "A", Status: model.SubTaskPending, RequiredRole: model.RoleDeveloper, CreatedAt: now, UpdatedAt: now},
			{ID: "B", Status: model.SubTaskPending, RequiredRole: model.RoleDeveloper, DependsOn: []string{"A"}, CreatedAt: now, UpdatedAt: now},
			{ID: "C", Status: model.SubTaskPending, RequiredRole: model.RoleDeveloper, DependsOn: []string{"A"}, CreatedAt: now, UpdatedAt: now},
		},
	}

	first, err := s.AssignReady(plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 1 || first[0].SubTaskID != "A" {
		t.Fatalf("expected only A assigned while the agent is at capacity, got %v", first)
	}

	plan.SubTasks[0].Status = model.SubTaskCompleted
	if err := s.ReleaseAgent("dev1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := s.AssignReady(plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 1 || second[0].SubTaskID != "B" {
		t.Fatalf("expected only B (same priority as C, first by ID) assigned once capacity frees up, got %v", second)
	}
	if plan.SubTasks[2].Status != model.SubTaskPending {
		t.Fatalf("expected C to remain pending -- the single-capacity agent is full again, got %s", plan.SubTasks[2].Status)
	}
}

func TestMonitorProgress_MarksPlanCompletedWhenAllSubtasksDone(t *testing.T) {
	plan := &model.ExecutionPlan{
		Status: model.PlanActive,
		SubTasks: []*model.SubTask{
			{ID: "A", Status: model.SubTaskCompleted},
			{ID: "B", Status: model.SubTaskCompleted},
		},
	}
	counts := MonitorProgress(plan, time.Now())
	if counts[model.SubTaskCompleted] != 2 {
		t.Fatalf("expected 2 completed, got %d", counts[model.SubTaskCompleted])
	}
	if plan.Status != model.PlanCompleted {
		t.Fatalf("expected plan auto-completed, got %s", plan.Status)
	}
}

func ids(tasks []*model.SubTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
