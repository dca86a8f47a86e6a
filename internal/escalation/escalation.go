// Package escalation decides when a stuck or over-scoped SubTask should be
// handed to the coordinator instead of left with its current agent, ported
// from original_source/engine/operations/agent_escalator.py.
package escalation

import (
	"fmt"
	"time"
)

// Thresholds mirrors AgentEscalator's class constants.
type Thresholds struct {
	MaxFilesSimple      int
	MaxComponentsSimple int
	MaxFailedAttempts   int
	MaxStuckTime        time.Duration
}

// DefaultThresholds matches the original's MAX_FILES_SIMPLE=5,
// MAX_COMPONENTS_SIMPLE=3, MAX_FAILED_ATTEMPTS=2, MAX_STUCK_TIME_MINUTES=30.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxFilesSimple: 5, MaxComponentsSimple: 3, MaxFailedAttempts: 2, MaxStuckTime: 30 * time.Minute}
}

// Context is the state check_escalation_triggers inspects, matching
// EscalationContext.
type Context struct {
	FilesChanged      int
	ComponentsTouched int
	FailedAttempts    int
	MinutesSpent      float64
	StuckSince        time.Time
	Now               time.Time
	ExplicitlyStuck   bool
	Blocker           string
	ArchitectureChange bool
}

// Result mirrors EscalationResult.
type Result struct {
	ShouldEscalate bool
	Triggers       []string
}

// Escalator evaluates escalation triggers against Thresholds.
type Escalator struct {
	t Thresholds
}

// New builds an Escalator.
func New(t Thresholds) *Escalator { return &Escalator{t: t} }

// ShouldEscalate mirrors should_escalate()/check_escalation_triggers():
// any single trigger firing is sufficient, and all firing triggers are
// reported, not just the first.
func (e *Escalator) ShouldEscalate(ctx Context) Result {
	var triggers []string

	if ctx.FilesChanged > e.t.MaxFilesSimple {
		triggers = append(triggers, fmt.Sprintf("files changed (%d) exceeds simple-task limit (%d)", ctx.FilesChanged, e.t.MaxFilesSimple))
	}
	if ctx.ComponentsTouched > e.t.MaxComponentsSimple {
		triggers = append(triggers, fmt.Sprintf("components touched (%d) exceeds simple-task limit (%d)", ctx.ComponentsTouched, e.t.MaxComponentsSimple))
	}
	if ctx.FailedAttempts >= e.t.MaxFailedAttempts {
		triggers = append(triggers, fmt.Sprintf("failed attempts (%d) reached limit (%d)", ctx.FailedAttempts, e.t.MaxFailedAttempts))
	}
	if ctx.MinutesSpent > e.t.MaxStuckTime.Minutes() {
		triggers = append(triggers, fmt.Sprintf("time spent (%.0fm) exceeds limit (%.0fm)", ctx.MinutesSpent, e.t.MaxStuckTime.Minutes()))
	}
	if !ctx.StuckSince.IsZero() {
		stuckFor := ctx.Now.Sub(ctx.StuckSince)
		if stuckFor > e.t.MaxStuckTime {
			triggers = append(triggers, fmt.Sprintf("stuck for %s exceeds limit %s", stuckFor.Round(time.Second), e.t.MaxStuckTime))
		}
	}
	if ctx.ArchitectureChange {
		triggers = append(triggers, "architecture change required")
	}
	if ctx.ExplicitlyStuck {
		reason := ctx.Blocker
		if reason == "" {
			reason = "no blocker description given"
		}
		triggers = append(triggers, "agent reported itself stuck: "+reason)
	}

	return Result{ShouldEscalate: len(triggers) > 0, Triggers: triggers}
}

// Action is what a worker does after calling ShouldEscalate, matching
// should_escalate()'s three-way return.
type Action string

const (
	ActionWaitForCoordinator Action = "wait_for_coordinator"
	ActionContinue           Action = "continue"
	ActionAbort              Action = "abort"
)

// Decide picks the worker's next action. When no coordinator is wired in
// (coordinatorAvailable == false), escalation cannot be handed off, so the
// result is always abort, matching "if no coordinator is wired in ... return
// abort".
func Decide(res Result, coordinatorAvailable bool) Action {
	if !res.ShouldEscalate {
		return ActionContinue
	}
	if !coordinatorAvailable {
		return ActionAbort
	}
	return ActionWaitForCoordinator
}

// CommentTemplate renders the escalation notice posted to the issue/PR,
// matching _post_escalation_comment's structure (a fixed opening line plus
// one bullet per trigger).
func CommentTemplate(res Result) string {
	if !res.ShouldEscalate {
		return ""
	}
	out := "This task has been escalated to the coordinator for re-planning:\n"
	for _, trig := range res.Triggers {
		out += "- " + trig + "\n"
	}
	return out
}
