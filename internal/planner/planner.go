// Package planner decomposes a complex Issue into an ExecutionPlan of
// dependent SubTasks, ported from
// original_source/engine/runners/coordinator_agent.py's
// `_build_dependency_graph`/`_identify_required_roles`/`_compute_plan_priority`.
package planner

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swebotic/coordfab/internal/model"
)

// labelPriority mirrors _compute_plan_priority's label->priority mapping,
// clamped to SPEC_FULL.md §4.7's [1,5] scale: {critical, security, p0,
// high-priority}->5; {bug, p1, urgent}->4; {enhancement, feature}->3;
// {documentation, chore}->2; else->1.
var labelPriority = map[string]int{
	"critical":      5,
	"security":      5,
	"p0":            5,
	"high-priority": 5,
	"bug":           4,
	"p1":            4,
	"urgent":        4,
	"enhancement":   3,
	"feature":       3,
	"documentation": 2,
	"chore":         2,
}

const defaultPriority = 1

// roleVerbs maps a SubTask description's leading verb to the role best
// suited to perform it, mirroring _identify_required_roles's verb table.
var roleVerbs = map[string]model.AgentRole{
	"implement": model.RoleDeveloper,
	"fix":       model.RoleDeveloper,
	"build":     model.RoleDeveloper,
	"write":     model.RoleDeveloper,
	"refactor":  model.RoleDeveloper,
	"review":    model.RoleReviewer,
	"audit":     model.RoleReviewer,
	"test":      model.RoleTester,
	"validate":  model.RoleTester,
	"document":  model.RoleDocumenter,
	"document-update": model.RoleDocumenter,
	"investigate": model.RoleResearcher,
	"research":    model.RoleResearcher,
	"analyze":     model.RoleResearcher,
}

// Blueprint is one planned unit of work before IDs/timestamps are assigned.
type Blueprint struct {
	Title       string
	Description string
	DependsOn   []string // references other Blueprint.Title values
}

// Planner builds ExecutionPlans.
type Planner struct {
	now func() time.Time
}

// New returns a ready Planner.
func New() *Planner { return &Planner{now: time.Now} }

// Plan assembles an ExecutionPlan from blueprints for the given issue,
// computing priority from its labels and the role each blueprint needs from
// its description's leading verb.
func (p *Planner) Plan(issue model.Issue, blueprints []Blueprint) *model.ExecutionPlan {
	now := p.now()
	priority := computePriority(issue.Labels)

	idByTitle := make(map[string]string, len(blueprints))
	subtasks := make([]*model.SubTask, 0, len(blueprints))
	for _, bp := range blueprints {
		idByTitle[bp.Title] = uuid.NewString()
	}
	for _, bp := range blueprints {
		deps := make([]string, 0, len(bp.DependsOn))
		for _, depTitle := range bp.DependsOn {
			if id, ok := idByTitle[depTitle]; ok {
				deps = append(deps, id)
			}
		}
		subtasks = append(subtasks, &model.SubTask{
			ID:           idByTitle[bp.Title],
			Title:        bp.Title,
			Description:  bp.Description,
			RequiredRole: identifyRole(bp.Description),
			DependsOn:    deps,
			Status:       model.SubTaskPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	return model.NewExecutionPlan(uuid.NewString(), issue.Repo, issue.Number, priority, subtasks, now)
}

// DefaultBlueprints returns the canonical implement/test/document skeleton
// spec.md §4.7 names as the rule-based baseline decomposition, used when
// no LLM-proposed blueprints are available to merge in.
func DefaultBlueprints(issue model.Issue) []Blueprint {
	return []Blueprint{
		{
			Title:       "Implement: " + issue.Title,
			Description: "Implement the change described in " + issue.Repo + "#" + itoa(issue.Number) + ".",
		},
		{
			Title:       "Test: " + issue.Title,
			Description: "Write and run tests covering the change.",
			DependsOn:   []string{"Implement: " + issue.Title},
		},
		{
			Title:       "Document: " + issue.Title,
			Description: "Document the change for users and maintainers.",
			DependsOn:   []string{"Implement: " + issue.Title},
		},
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// computePriority mirrors _compute_plan_priority's label scan, taking the
// highest-scoring matched label.
func computePriority(labels []string) int {
	best := defaultPriority
	matched := false
	for _, l := range labels {
		if score, ok := labelPriority[strings.ToLower(l)]; ok {
			if !matched || score > best {
				best = score
				matched = true
			}
		}
	}
	return best
}

// identifyRole mirrors _identify_required_roles: the verb match that comes
// first in the lowercase description (as its leading word or as a
// space-delimited word) selects the role; unmatched descriptions default to
// developer.
func identifyRole(description string) model.AgentRole {
	lower := strings.ToLower(description)
	role, bestPos, bestVerb := model.RoleDeveloper, -1, ""
	for verb, r := range roleVerbs {
		pos := -1
		if strings.HasPrefix(lower, verb) {
			pos = 0
		} else if i := strings.Index(lower, " "+verb+" "); i >= 0 {
			pos = i + 1
		}
		if pos >= 0 && (bestPos < 0 || pos < bestPos || (pos == bestPos && len(verb) > len(bestVerb))) {
			role, bestPos, bestVerb = r, pos, verb
		}
	}
	return role
}

// Adapt inserts a blocker-resolution SubTask ahead of a blocked SubTask,
// matching adapt_plan()'s "insert a blocker-fix task, make the blocked
// task depend on it" behavior, and marks the plan Adapted.
func (p *Planner) Adapt(plan *model.ExecutionPlan, blockedID, blockerTitle, blockerDescription string) *model.SubTask {
	now := p.now()
	blocker := &model.SubTask{
		ID:           uuid.NewString(),
		PlanID:       plan.ID,
		Title:        blockerTitle,
		Description:  blockerDescription,
		RequiredRole: identifyRole(blockerDescription),
		Status:       model.SubTaskPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	plan.SubTasks = append(plan.SubTasks, blocker)
	for _, st := range plan.SubTasks {
		if st.ID == blockedID {
			st.DependsOn = append(st.DependsOn, blocker.ID)
			st.UpdatedAt = now
		}
	}
	plan.Status = model.PlanAdapted
	plan.UpdatedAt = now
	return blocker
}
