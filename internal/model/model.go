// Package model holds the data-model entities shared across the
// coordination fabric's components, mirroring the shared internal/types
// package the teacher uses to avoid import cycles between feature packages.
package model

import "time"

// Issue is a forge issue as seen by the triage/routing pipeline.
type Issue struct {
	Repo      string
	Number    int
	Title     string
	Body      string
	Labels    []string
	Author    string
	CreatedAt time.Time
}

// RouteAction is the outcome of CoordinatorGateway's routing decision.
type RouteAction string

const (
	RouteDelegateSimple      RouteAction = "DELEGATE_SIMPLE"
	RouteDelegateEscalation  RouteAction = "DELEGATE_WITH_ESCALATION"
	RouteOrchestrate         RouteAction = "ORCHESTRATE"
)

// ComplexitySignals are the raw counts IssueComplexityAnalyzer gathers
// before scoring, named identically to the original's ComplexitySignals.
type ComplexitySignals struct {
	BodyLength         int
	FileMentions       int
	ComponentMentions  int
	TaskCount          int
	CodeBlocks         int
	DependencyMentions int
	HasRefactorKeyword bool
	HasArchKeyword     bool
	ComplexLabelCount  int
	CrossCuttingCount  int
}

// ComplexityAnalysis is the scored result for an Issue.
type ComplexityAnalysis struct {
	Score          int
	Signals        ComplexitySignals
	Route          RouteAction
	Rationale      string
	UsedLLM        bool
	EscalationFlag bool
}

// SubTaskStatus is the lifecycle of a single unit of planned work.
type SubTaskStatus string

const (
	SubTaskPending           SubTaskStatus = "pending"
	SubTaskAssigned          SubTaskStatus = "assigned"
	SubTaskInProgress        SubTaskStatus = "in_progress"
	SubTaskBlocked           SubTaskStatus = "blocked"
	SubTaskReview            SubTaskStatus = "review"
	SubTaskChangesRequested  SubTaskStatus = "changes_requested"
	SubTaskCompleted         SubTaskStatus = "completed"
	SubTaskFailed            SubTaskStatus = "failed"
)

// validSubTaskTransitions mirrors internal/tasks/types.go's validTransitions
// table idiom: the state machine is data, checked generically by TransitionTo.
var validSubTaskTransitions = map[SubTaskStatus][]SubTaskStatus{
	SubTaskPending:          {SubTaskAssigned, SubTaskBlocked, SubTaskFailed},
	SubTaskAssigned:         {SubTaskInProgress, SubTaskBlocked, SubTaskFailed},
	SubTaskInProgress:       {SubTaskReview, SubTaskBlocked, SubTaskFailed},
	SubTaskReview:           {SubTaskChangesRequested, SubTaskCompleted, SubTaskFailed},
	SubTaskChangesRequested: {SubTaskInProgress, SubTaskFailed},
	SubTaskBlocked:          {SubTaskAssigned, SubTaskFailed},
	SubTaskCompleted:        {},
	SubTaskFailed:           {},
}

// IsTerminal reports whether no further transitions are valid from s.
func (s SubTaskStatus) IsTerminal() bool {
	return len(validSubTaskTransitions[s]) == 0
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s SubTaskStatus) CanTransitionTo(next SubTaskStatus) bool {
	for _, candidate := range validSubTaskTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AgentRole is one of the seven worker roles spec.md §3 names.
type AgentRole string

const (
	RoleCoordinator AgentRole = "coordinator"
	RoleDeveloper   AgentRole = "developer"
	RoleReviewer    AgentRole = "reviewer"
	RoleTester      AgentRole = "tester"
	RoleDocumenter  AgentRole = "documenter"
	RoleBot         AgentRole = "bot"
	RoleResearcher  AgentRole = "researcher"
)

// SubTask is one unit of an ExecutionPlan.
type SubTask struct {
	ID           string
	PlanID       string
	Title        string
	Description  string
	RequiredRole AgentRole
	DependsOn    []string
	Status       SubTaskStatus
	AssignedTo   string
	FailedAttempts int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
}

// TransitionTo validates and applies a status change, matching
// internal/tasks/types.go's TransitionTo semantics.
func (t *SubTask) TransitionTo(next SubTaskStatus, now time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return &TransitionError{From: t.Status, To: next}
	}
	t.Status = next
	t.UpdatedAt = now
	if next == SubTaskInProgress && t.StartedAt == nil {
		t.StartedAt = &now
	}
	return nil
}

// TransitionError reports an illegal SubTaskStatus transition.
type TransitionError struct {
	From SubTaskStatus
	To   SubTaskStatus
}

func (e *TransitionError) Error() string {
	return "invalid subtask transition: " + string(e.From) + " -> " + string(e.To)
}

// PlanStatus is the lifecycle of an ExecutionPlan.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanAdapted   PlanStatus = "adapted"
	PlanCompleted PlanStatus = "completed"
	PlanAborted   PlanStatus = "aborted"
)

// ExecutionPlan is the DAG of SubTasks produced by the Planner for one Issue.
//
// NewExecutionPlan deep-copies SubTasks so that callers passing a shared
// fixture slice cannot alias plan state afterward -- the Go analogue of the
// original's ExecutionPlan.__post_init__ deep-copy guard.
type ExecutionPlan struct {
	ID        string
	IssueRepo string
	IssueNum  int
	Priority  int
	Status    PlanStatus
	SubTasks  []*SubTask
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewExecutionPlan builds a plan, deep-copying subTasks.
func NewExecutionPlan(id, repo string, issueNum, priority int, subTasks []*SubTask, now time.Time) *ExecutionPlan {
	copied := make([]*SubTask, len(subTasks))
	for i, st := range subTasks {
		dup := *st
		dup.DependsOn = append([]string(nil), st.DependsOn...)
		copied[i] = &dup
	}
	return &ExecutionPlan{
		ID:        id,
		IssueRepo: repo,
		IssueNum:  issueNum,
		Priority:  priority,
		Status:    PlanActive,
		SubTasks:  copied,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CompletionPercentage returns the percentage (0-100) of SubTasks in a
// terminal successful state, matching monitor_progress()'s
// completion_percentage.
func (p *ExecutionPlan) CompletionPercentage() float64 {
	if len(p.SubTasks) == 0 {
		return 0
	}
	done := 0
	for _, st := range p.SubTasks {
		if st.Status == SubTaskCompleted {
			done++
		}
	}
	return float64(done) / float64(len(p.SubTasks)) * 100
}

// TaskAssignment records a SubTask <-> agent binding made by the Scheduler.
type TaskAssignment struct {
	ID         string
	SubTaskID  string
	AgentID    string
	AssignedAt time.Time
	Score      float64
}

// AgentCapability describes a worker's declared skills and current load.
type AgentCapability struct {
	AgentID      string
	Roles        []AgentRole
	Skills       []string
	MaxLoad      int
	CurrentLoad  int
	LastSeen     time.Time
}

// HasRole reports whether the agent can serve role.
func (a AgentCapability) HasRole(role AgentRole) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasHeadroom reports whether the agent can take on another task without
// exceeding its declared capacity: current_task_count <= max_concurrent_tasks
// is the Scheduler-held invariant. An agent with MaxLoad <= 0 is treated as
// having no declared capacity and is never available.
func (a AgentCapability) HasHeadroom() bool {
	return a.MaxLoad > 0 && a.CurrentLoad < a.MaxLoad
}

// OperationType is the class of rate-limited forge side effect.
type OperationType string

const (
	OpComment      OperationType = "comment"
	OpPRCreate     OperationType = "pr_create"
	OpPRMerge      OperationType = "pr_merge"
	OpLabelChange  OperationType = "label_change"
	OpBranchCreate OperationType = "branch_create"
)

// OperationRecord is one logged side-effecting call, named identically to
// the original's OperationRecord dataclass.
type OperationRecord struct {
	OpType      OperationType
	Repo        string
	Timestamp   time.Time
	ContentHash string
}

// PRReviewResult is ReviewEngine's output for one pull request.
type PRReviewResult struct {
	Repo           string
	PRNumber       int
	StaticFindings []ReviewFinding
	TestsRun       bool
	TestsPassed    bool
	TestOutput     string
	LLMFindings    []ReviewFinding
	CriticalCount  int
	WarningCount   int
	Approved       bool
	UsedLLM        bool
}

// ReviewFinding is a single issue surfaced by a review pass.
type ReviewFinding struct {
	File     string
	Line     int
	Severity string // CRITICAL, WARNING, INFO
	Message  string
}

// MergeRecommendation is MergeDecider's four-way verdict.
type MergeRecommendation string

const (
	MergeAutoMerge            MergeRecommendation = "AUTO_MERGE"
	MergeWithConsideration    MergeRecommendation = "MERGE_WITH_CONSIDERATION"
	MergeManualReview         MergeRecommendation = "MANUAL_REVIEW"
	MergeDoNotMerge           MergeRecommendation = "DO_NOT_MERGE"
)

// MergeDecision is MergeDecider's pure-function output: a deterministic
// function of a PRReviewResult only (SPEC_FULL.md §8 property 6), never of
// reviewer assignment or labeling.
type MergeDecision struct {
	Recommendation MergeRecommendation
	Reason         string
	CriticalCount  int
	WarningCount   int
}

// QualityScore is an agent's rolling review track record: how often its
// PRs are approved, how often they're approved without a round of
// changes requested, and how many defects its reviewed work accumulates.
// It is kept up to date by internal/review.QualityTracker; the Scheduler
// does not read it. Grounded on the teacher's review_board.go.
type QualityScore struct {
	AgentID   string
	Approvals int
	FirstPass int
	Reviews   int
	Defects   int
}

// ApprovalRate is the fraction of reviewed PRs that were approved.
func (q QualityScore) ApprovalRate() float64 {
	if q.Reviews == 0 {
		return 0
	}
	return float64(q.Approvals) / float64(q.Reviews)
}

// FirstPassRate is the fraction of reviewed PRs approved without any
// changes-requested round trip.
func (q QualityScore) FirstPassRate() float64 {
	if q.Reviews == 0 {
		return 0
	}
	return float64(q.FirstPass) / float64(q.Reviews)
}

// DefectDensity is defects found per reviewed PR.
func (q QualityScore) DefectDensity() float64 {
	if q.Reviews == 0 {
		return 0
	}
	return float64(q.Defects) / float64(q.Reviews)
}

// ReviewLock is one non-blocking per-PR lock entry; internal/store keeps
// held locks as rows of its SQLite review_locks table.
type ReviewLock struct {
	Repo      string
	PRNumber  int
	HolderID  string
	AcquiredAt time.Time
}
