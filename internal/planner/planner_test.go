package planner

import (
	"testing"

	"github.com/swebotic/coordfab/internal/model"
)

func TestPlan_ComputesPriorityFromLabels(t *testing.T) {
	p := New()
	issue := model.Issue{Repo: "acme/widgets", Number: 42, Labels: []string{"security", "bug"}}
	plan := p.Plan(issue, []Blueprint{{Title: "fix the hole", Description: "implement a patch"}})
	if plan.Priority != 5 {
		t.Fatalf("expected priority 5 (security beats bug), got %d", plan.Priority)
	}
}

func TestPlan_DefaultPriorityWhenNoLabelMatches(t *testing.T) {
	p := New()
	issue := model.Issue{Repo: "acme/widgets", Number: 1, Labels: []string{"good-first-issue"}}
	plan := p.Plan(issue, []Blueprint{{Title: "t", Description: "implement x"}})
	if plan.Priority != defaultPriority {
		t.Fatalf("expected default priority, got %d", plan.Priority)
	}
}

func TestPlan_ResolvesDependencyIDsByTitle(t *testing.T) {
	p := New()
	issue := model.Issue{Repo: "acme/widgets", Number: 1}
	plan := p.Plan(issue, []Blueprint{
		{Title: "design", Description: "investigate the schema"},
		{Title: "implement", Description: "implement the migration", DependsOn: []string{"design"}},
	})
	var design, impl *model.SubTask
	for _, st := range plan.SubTasks {
		switch st.Title {
		case "design":
			design = st
		case "implement":
			impl = st
		}
	}
	if design == nil || impl == nil {
		t.Fatal("expected both subtasks present")
	}
	if len(impl.DependsOn) != 1 || impl.DependsOn[0] != design.ID {
		t.Fatalf("expected implement to depend on design's ID, got %v", impl.DependsOn)
	}
	if design.RequiredRole != model.RoleResearcher {
		t.Fatalf("expected design task routed to researcher, got %s", design.RequiredRole)
	}
	if impl.RequiredRole != model.RoleDeveloper {
		t.Fatalf("expected implement task routed to developer, got %s", impl.RequiredRole)
	}
}

func TestPlan_DeepCopiesSubtasksAgainstAliasing(t *testing.T) {
	p := New()
	issue := model.Issue{Repo: "acme/widgets", Number: 1}
	plan := p.Plan(issue, []Blueprint{{Title: "a", Description: "implement a"}})
	original := plan.SubTasks[0]
	plan2 := p.Plan(issue, []Blueprint{{Title: "a", Description: "implement a"}})
	plan2.SubTasks[0].DependsOn = append(plan2.SubTasks[0].DependsOn, "zzz")
	if len(original.DependsOn) != 0 {
		t.Fatal("expected independently built plans not to alias dependency slices")
	}
}

func TestAdapt_InsertsBlockerAndLinksDependency(t *testing.T) {
	p := New()
	issue := model.Issue{Repo: "acme/widgets", Number: 1}
	plan := p.Plan(issue, []Blueprint{{Title: "main", Description: "implement main feature"}})
	blockedID := plan.SubTasks[0].ID

	blocker := p.Adapt(plan, blockedID, "resolve missing credentials", "investigate missing API credentials")

	if plan.Status != model.PlanAdapted {
		t.Fatalf("expected plan marked Adapted, got %s", plan.Status)
	}
	if len(plan.SubTasks) != 2 {
		t.Fatalf("expected blocker task appended, got %d subtasks", len(plan.SubTasks))
	}
	found := false
	for _, id := range plan.SubTasks[0].DependsOn {
		if id == blocker.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected blocked subtask to depend on the new blocker task")
	}
}
