// Package prworkflow implements PRWorkflow, the state machine that carries
// a pull request from review through labeling, reviewer assignment, merge
// decision and (conditionally) merge, ported from
// original_source/engine/operations/pr_workflow_orchestrator.py's
// WorkflowOrchestrator.
package prworkflow

import (
	"context"
	"fmt"
	"time"

	"github.com/swebotic/coordfab/internal/forge"
	"github.com/swebotic/coordfab/internal/merge"
	"github.com/swebotic/coordfab/internal/model"
	"github.com/swebotic/coordfab/internal/review"
)

// State is PRWorkflow's lifecycle, matching SPEC_FULL.md §4.13's
// Idle->Locked->Reviewed->Labeled->AssignedReviewers->Decided->
// {Merged|Drafted|Parked}->Released machine.
type State string

const (
	StateIdle              State = "idle"
	StateLocked            State = "locked"
	StateReviewed          State = "reviewed"
	StateLabeled           State = "labeled"
	StateAssignedReviewers State = "assigned_reviewers"
	StateDecided           State = "decided"
	StateMerged            State = "merged"
	StateDrafted           State = "drafted"
	StateParked            State = "parked"
	StateReleased          State = "released"
)

// Locks is the non-blocking mutual-exclusion backend. *store.Store
// satisfies this.
type Locks interface {
	TryAcquireReviewLock(model.ReviewLock) (bool, error)
	ReleaseReviewLock(repo string, prNumber int) error
}

// Forge is the subset of *forge.Client the workflow needs.
type Forge interface {
	GetPR(ctx context.Context, repo string, number int) (forge.PullRequest, error)
	ListPRFiles(ctx context.Context, repo string, number int) ([]forge.PRFile, error)
	AddComment(ctx context.Context, repo string, number int, body string) error
	AddLabels(ctx context.Context, repo string, number int, labels []string) error
	RequestReviewers(ctx context.Context, repo string, number int, reviewers []string) (bool, error)
	SetAssignees(ctx context.Context, repo string, number int, assignees []string) error
	ConvertPRToDraft(ctx context.Context, repo string, number int, reason string) error
	MergePR(ctx context.Context, repo string, number int, opts forge.MergeOptions) error
}

// Reviewer is the subset of *review.Engine the workflow runs.
type Reviewer interface {
	Review(ctx context.Context, repo string, prNumber int, files []review.ChangedFile, workDir string, manifestPresence map[string]bool, testTimeoutSeconds int) (model.PRReviewResult, error)
}

// Options configures one workflow run, matching
// complete_review_and_merge_workflow's keyword arguments.
type Options struct {
	AutoMergeIfApproved  bool
	MergeWithSuggestions bool
	MergeMethod          forge.MergeMethod
	Reviewers            []string
	Assignees            []string
	WorkDir              string
	ManifestPresence     map[string]bool
	TestTimeoutSeconds   int
}

// Result is the workflow's outcome, matching complete_review_and_merge_workflow's
// returned dict fields.
type Result struct {
	State             State
	Skipped           bool
	SkipReason        string
	Review            model.PRReviewResult
	Decision          model.MergeDecision
	ReviewersAssigned bool
	LabelsAdded       []string
	ConvertedToDraft  bool
	Merged            bool
}

// QualityTracker is the subset of *review.QualityTracker the workflow needs
// to fold a review outcome into its author's rolling quality score. Nil
// means quality tracking is disabled.
type QualityTracker interface {
	Record(agentID string, result model.PRReviewResult, firstPass bool) error
}

// Workflow drives one PR through the full lifecycle.
type Workflow struct {
	locks    Locks
	forge    Forge
	reviewer Reviewer
	botLogin string
	quality  QualityTracker
	now      func() time.Time
}

// New builds a Workflow. botLogin is compared against a PR's author login
// to detect self-review, matching _is_self_review's "bot cannot review its
// own PR" guard.
func New(locks Locks, fc Forge, reviewer Reviewer, botLogin string) *Workflow {
	return &Workflow{locks: locks, forge: fc, reviewer: reviewer, botLogin: botLogin, now: time.Now}
}

// WithQualityTracker enables per-author quality-score recording. Without
// this call the workflow runs exactly as before, untracked.
func (w *Workflow) WithQualityTracker(t QualityTracker) *Workflow {
	w.quality = t
	return w
}

// Run executes the complete state machine for one PR. It always releases
// the review lock before returning, matching the original's try/finally.
func (w *Workflow) Run(ctx context.Context, repo string, prNumber int, opts Options) (Result, error) {
	acquired, err := w.locks.TryAcquireReviewLock(model.ReviewLock{Repo: repo, PRNumber: prNumber, HolderID: w.botLogin, AcquiredAt: w.now()})
	if err != nil {
		return Result{}, err
	}
	if !acquired {
		return Result{State: StateIdle, Skipped: true, SkipReason: "review already in progress (locked by another process)"}, nil
	}
	defer w.locks.ReleaseReviewLock(repo, prNumber)

	state := StateLocked

	pr, err := w.forge.GetPR(ctx, repo, prNumber)
	if err != nil {
		return Result{State: state}, err
	}
	if pr.User.Login == w.botLogin {
		return Result{State: state, Skipped: true, SkipReason: "self-review prevented"}, nil
	}

	prFiles, err := w.forge.ListPRFiles(ctx, repo, prNumber)
	if err != nil {
		return Result{State: state}, err
	}
	files := make([]review.ChangedFile, 0, len(prFiles))
	for _, pf := range prFiles {
		files = append(files, review.ChangedFile{Path: pf.Filename, Content: pf.Patch})
	}

	result, err := w.reviewer.Review(ctx, repo, prNumber, files, opts.WorkDir, opts.ManifestPresence, opts.TestTimeoutSeconds)
	if err != nil {
		return Result{State: state}, err
	}
	state = StateReviewed

	if err := w.forge.AddComment(ctx, repo, prNumber, review.FormatComment(result)); err != nil {
		return Result{State: state, Review: result}, err
	}

	if w.quality != nil {
		firstPass := !hasLabel(pr.Labels, "changes-requested")
		if err := w.quality.Record(pr.User.Login, result, firstPass); err != nil {
			return Result{State: state, Review: result}, err
		}
	}

	labels := determineLabels(result)
	if err := w.forge.AddLabels(ctx, repo, prNumber, labels); err != nil {
		return Result{State: state, Review: result}, err
	}
	state = StateLabeled

	reviewers := opts.Reviewers
	if len(reviewers) == 0 {
		reviewers = []string{w.botLogin}
	}
	assigned, err := w.forge.RequestReviewers(ctx, repo, prNumber, reviewers)
	if err != nil {
		return Result{State: state, Review: result, LabelsAdded: labels}, err
	}
	assignees := opts.Assignees
	if len(assignees) == 0 {
		assignees = reviewers
	}
	if err := w.forge.SetAssignees(ctx, repo, prNumber, assignees); err != nil {
		return Result{State: state, Review: result, LabelsAdded: labels, ReviewersAssigned: assigned}, err
	}
	state = StateAssignedReviewers

	decision := merge.Decide(result)
	state = StateDecided

	res := Result{
		State: state, Review: result, Decision: decision,
		ReviewersAssigned: assigned, LabelsAdded: labels,
	}

	if decision.Recommendation == model.MergeDoNotMerge && decision.CriticalCount > 0 {
		if err := w.forge.ConvertPRToDraft(ctx, repo, prNumber, fmt.Sprintf("%d critical issues", decision.CriticalCount)); err != nil {
			return res, err
		}
		if err := w.forge.AddComment(ctx, repo, prNumber, draftComment(result, decision)); err != nil {
			return res, err
		}
		res.ConvertedToDraft = true
		res.State = StateDrafted
		return res, nil
	}

	if !shouldMerge(decision, opts.AutoMergeIfApproved, opts.MergeWithSuggestions) {
		res.State = StateParked
		return res, nil
	}

	if err := w.forge.MergePR(ctx, repo, prNumber, forge.MergeOptions{Method: opts.MergeMethod}); err != nil {
		return res, err
	}
	res.Merged = true
	res.State = StateMerged
	return res, nil
}

// shouldMerge mirrors _should_execute_merge's three-way switch.
func shouldMerge(d model.MergeDecision, autoMergeIfApproved, mergeWithSuggestions bool) bool {
	switch d.Recommendation {
	case model.MergeAutoMerge:
		return autoMergeIfApproved
	case model.MergeWithConsideration:
		return mergeWithSuggestions
	default:
		return false
	}
}

// hasLabel reports whether name is among labels, used to detect whether a
// PR already went through a changes-requested round before this review.
func hasLabel(labels []forge.Label, name string) bool {
	for _, l := range labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// determineLabels mirrors _determine_labels: approval/suggestion labels,
// a review-method label, and a critical-issues flag when warranted.
func determineLabels(r model.PRReviewResult) []string {
	var labels []string
	totalFindings := len(r.StaticFindings) + len(r.LLMFindings)
	switch {
	case r.Approved && totalFindings == 0:
		labels = append(labels, "approved", "ready-for-merge")
	case r.Approved:
		labels = append(labels, "approved-with-suggestions", "ready-for-merge")
	default:
		labels = append(labels, "changes-requested", "needs-work")
	}
	if r.UsedLLM {
		labels = append(labels, "ai-reviewed")
	} else {
		labels = append(labels, "static-reviewed")
	}
	if r.CriticalCount > 0 {
		labels = append(labels, "critical-issues")
	}
	return labels
}

// draftComment mirrors _handle_critical_issues's explanatory comment body.
func draftComment(result model.PRReviewResult, decision model.MergeDecision) string {
	out := fmt.Sprintf("Converted to draft: automated review found %d critical issue(s) that must be addressed before merging.\n\nCritical findings:\n", decision.CriticalCount)
	for _, f := range result.StaticFindings {
		if f.Severity == "CRITICAL" {
			out += fmt.Sprintf("- %s:%d: %s\n", f.File, f.Line, f.Message)
		}
	}
	for _, f := range result.LLMFindings {
		if f.Severity == "CRITICAL" {
			out += fmt.Sprintf("- %s:%d: %s\n", f.File, f.Line, f.Message)
		}
	}
	out += "\nFix the issues, push changes, and mark this PR ready for review again."
	return out
}
