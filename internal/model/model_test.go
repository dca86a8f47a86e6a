package model

import (
	"testing"
	"time"
)

func TestNewExecutionPlan_DeepCopiesSubtasksAgainstFixtureAliasing(t *testing.T) {
	now := time.Now()
	shared := []*SubTask{{ID: "1", DependsOn: []string{"x"}}}

	planA := NewExecutionPlan("planA", "acme/widgets", 1, 5, shared, now)
	planB := NewExecutionPlan("planB", "acme/widgets", 2, 5, shared, now)

	planA.SubTasks[0].DependsOn = append(planA.SubTasks[0].DependsOn, "mutated")

	if len(planB.SubTasks[0].DependsOn) != 1 {
		t.Fatalf("expected planB's subtask unaffected by planA's mutation, got %v", planB.SubTasks[0].DependsOn)
	}
	if len(shared[0].DependsOn) != 1 {
		t.Fatalf("expected original fixture slice unaffected, got %v", shared[0].DependsOn)
	}
}

func TestSubTask_TransitionTo_RejectsInvalidTransition(t *testing.T) {
	st := &SubTask{Status: SubTaskPending}
	err := st.TransitionTo(SubTaskCompleted, time.Now())
	if err == nil {
		t.Fatal("expected error transitioning pending -> completed directly")
	}
	if st.Status != SubTaskPending {
		t.Fatal("expected status unchanged after rejected transition")
	}
}

func TestSubTask_TransitionTo_AllowsValidChainToTerminal(t *testing.T) {
	st := &SubTask{Status: SubTaskPending}
	steps := []SubTaskStatus{SubTaskAssigned, SubTaskInProgress, SubTaskReview, SubTaskCompleted}
	for _, next := range steps {
		if err := st.TransitionTo(next, time.Now()); err != nil {
			t.Fatalf("unexpected error transitioning to %s: %v", next, err)
		}
	}
	if !st.Status.IsTerminal() {
		t.Fatal("expected completed to be terminal")
	}
}

func TestExecutionPlan_CompletionPercentage(t *testing.T) {
	now := time.Now()
	plan := NewExecutionPlan("p1", "acme/widgets", 1, 5, []*SubTask{
		{ID: "a", Status: SubTaskCompleted},
		{ID: "b", Status: SubTaskInProgress},
	}, now)
	if pct := plan.CompletionPercentage(); pct != 50 {
		t.Fatalf("expected 50%%, got %v", pct)
	}
}
