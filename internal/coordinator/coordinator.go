// Package coordinator implements CoordinatorGateway, the mandatory entry
// point every issue passes through before any agent touches it. Ported
// from original_source/engine/operations/coordinator_gateway.py's
// CoordinatorGateway, whose docstring is blunt about the invariant this
// package enforces: "This is the ONLY way issues enter the system. No
// bypassing the coordinator."
package coordinator

import (
	"context"
	"fmt"

	"github.com/swebotic/coordfab/internal/complexity"
	"github.com/swebotic/coordfab/internal/forge"
	"github.com/swebotic/coordfab/internal/model"
	"github.com/swebotic/coordfab/internal/planner"
)

// Forge is the subset of *forge.Client the gateway needs to post its one
// decision comment and open sub-issues during orchestration.
type Forge interface {
	AddComment(ctx context.Context, repo string, number int, body string) error
	CreateIssue(ctx context.Context, repo string, req forge.CreateIssueRequest) (forge.Issue, error)
}

// Agents is the subset of *registry.Registry the gateway needs to find a
// candidate worker before delegating, matching get_available_agent().
type Agents interface {
	ByRole(role model.AgentRole) []model.AgentCapability
}

// Scheduler is the subset of *scheduler.Scheduler the orchestrate path
// needs to dispatch a freshly built plan's ready subtasks.
type Scheduler interface {
	AssignReady(plan *model.ExecutionPlan) ([]model.TaskAssignment, error)
}

// Gateway is the mandatory entry point: ProcessIssue performs the full
// pipeline -- analysis, routing, and the forge side effects -- for one
// issue.
type Gateway struct {
	analyzer  complexity.Analyzer
	forge     Forge
	agents    Agents
	planner   *planner.Planner
	scheduler Scheduler
}

// New builds a Gateway.
func New(analyzer complexity.Analyzer, fc Forge, agents Agents, pl *planner.Planner, sched Scheduler) *Gateway {
	return &Gateway{analyzer: analyzer, forge: fc, agents: agents, planner: pl, scheduler: sched}
}

// Decision is ProcessIssue's outcome, matching process_issue()'s returned
// dict shape (status/action/message plus route-specific detail fields).
type Decision struct {
	Status      string // "delegated", "orchestrating", "error"
	Action      model.RouteAction
	AgentID     string // set for DELEGATE_* routes when an agent was found
	PlanID      string // set for ORCHESTRATE
	Plan        *model.ExecutionPlan // set for ORCHESTRATE, so callers can persist it
	SubIssues   []int  // set for ORCHESTRATE
	Message     string
	Analysis    model.ComplexityAnalysis
}

// ProcessIssue runs the full gateway pipeline for one issue: analyze
// complexity, pick a route, post exactly one coordinator-decision comment,
// then execute the route. It mirrors process_issue()'s three numbered
// steps.
func (g *Gateway) ProcessIssue(ctx context.Context, issue model.Issue, blueprints []planner.Blueprint) (Decision, error) {
	analysis := g.analyzer.Analyze(issue)

	if err := g.forge.AddComment(ctx, issue.Repo, issue.Number, decisionComment(analysis)); err != nil {
		return Decision{}, err
	}

	switch analysis.Route {
	case model.RouteDelegateSimple, model.RouteDelegateEscalation:
		return g.delegate(analysis), nil
	case model.RouteOrchestrate:
		return g.orchestrate(ctx, issue, analysis, blueprints)
	default:
		return Decision{Status: "error", Message: "unknown routing action"}, nil
	}
}

// delegate mirrors _delegate_to_code_agent: find a developer agent in the
// registry; report delegate_failed (not an error) when none is available,
// matching the original's graceful degradation.
func (g *Gateway) delegate(analysis model.ComplexityAnalysis) Decision {
	candidates := g.agents.ByRole(model.RoleDeveloper)
	if len(candidates) == 0 {
		return Decision{
			Status:   "error",
			Action:   "delegate_failed",
			Message:  "no developer agent available in registry",
			Analysis: analysis,
		}
	}
	agent := candidates[0]
	for _, c := range candidates[1:] {
		if c.CurrentLoad < agent.CurrentLoad {
			agent = c
		}
	}
	return Decision{
		Status:   "delegated",
		Action:   analysis.Route,
		AgentID:  agent.AgentID,
		Message:  fmt.Sprintf("delegated to %s", agent.AgentID),
		Analysis: analysis,
	}
}

// orchestrate mirrors _orchestrate_complex_issue: build an ExecutionPlan,
// open one sub-issue per SubTask, then run the scheduler's first
// assignment pass over the plan.
func (g *Gateway) orchestrate(ctx context.Context, issue model.Issue, analysis model.ComplexityAnalysis, blueprints []planner.Blueprint) (Decision, error) {
	plan := g.planner.Plan(issue, blueprints)

	subIssues := make([]int, 0, len(plan.SubTasks))
	for _, st := range plan.SubTasks {
		created, err := g.forge.CreateIssue(ctx, issue.Repo, forge.CreateIssueRequest{
			Title: fmt.Sprintf("[#%d] %s", issue.Number, st.Title),
			Body:  st.Description,
		})
		if err != nil {
			return Decision{}, err
		}
		subIssues = append(subIssues, created.Number)
	}

	if _, err := g.scheduler.AssignReady(plan); err != nil {
		return Decision{}, err
	}

	return Decision{
		Status:    "orchestrating",
		Action:    model.RouteOrchestrate,
		PlanID:    plan.ID,
		Plan:      plan,
		SubIssues: subIssues,
		Message:   fmt.Sprintf("orchestrating with %d sub-issues", len(subIssues)),
		Analysis:  analysis,
	}, nil
}

// decisionComment renders the single coordinator-decision comment posted
// for every route, matching _post_coordination_comment's three message
// bodies (collapsed from Markdown-heavy prose into plain, terse text in
// keeping with this fabric's comment style elsewhere).
func decisionComment(a model.ComplexityAnalysis) string {
	switch a.Route {
	case model.RouteDelegateSimple:
		return "Coordinator decision: simple delegation. Issue is straightforward; a developer agent will begin work directly, no orchestration needed."
	case model.RouteDelegateEscalation:
		return "Coordinator decision: delegate with escalation. Complexity is uncertain; a developer agent will start, with escalation enabled if scope grows during work."
	case model.RouteOrchestrate:
		return fmt.Sprintf(
			"Coordinator decision: orchestration. Complexity score %d requires breaking this issue into sub-issues with a dependency-ordered execution plan. %s",
			a.Score, a.Rationale,
		)
	default:
		return "Coordinator decision: unrecognized route."
	}
}
