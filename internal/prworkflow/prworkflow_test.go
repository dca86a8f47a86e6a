package prworkflow

import (
	"context"
	"testing"

	"github.com/swebotic/coordfab/internal/forge"
	"github.com/swebotic/coordfab/internal/model"
	"github.com/swebotic/coordfab/internal/review"
)

type fakeLocks struct {
	held    bool
	release int
}

func (f *fakeLocks) TryAcquireReviewLock(lock model.ReviewLock) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLocks) ReleaseReviewLock(repo string, prNumber int) error {
	f.release++
	f.held = false
	return nil
}

type fakeForge struct {
	pr          forge.PullRequest
	files       []forge.PRFile
	comments    []string
	labels      [][]string
	merged      bool
	draftReason string
}

func (f *fakeForge) GetPR(ctx context.Context, repo string, number int) (forge.PullRequest, error) {
	return f.pr, nil
}
func (f *fakeForge) ListPRFiles(ctx context.Context, repo string, number int) ([]forge.PRFile, error) {
	return f.files, nil
}
func (f *fakeForge) AddComment(ctx context.Context, repo string, number int, body string) error {
	f.comments = append(f.comments, body)
	return nil
}
func (f *fakeForge) AddLabels(ctx context.Context, repo string, number int, labels []string) error {
	f.labels = append(f.labels, labels)
	return nil
}
func (f *fakeForge) RequestReviewers(ctx context.Context, repo string, number int, reviewers []string) (bool, error) {
	return true, nil
}
func (f *fakeForge) SetAssignees(ctx context.Context, repo string, number int, assignees []string) error {
	return nil
}
func (f *fakeForge) ConvertPRToDraft(ctx context.Context, repo string, number int, reason string) error {
	f.draftReason = reason
	return nil
}
func (f *fakeForge) MergePR(ctx context.Context, repo string, number int, opts forge.MergeOptions) error {
	f.merged = true
	return nil
}

type fakeReviewer struct {
	result model.PRReviewResult
}

func (f *fakeReviewer) Review(ctx context.Context, repo string, prNumber int, files []review.ChangedFile, workDir string, manifestPresence map[string]bool, testTimeoutSeconds int) (model.PRReviewResult, error) {
	return f.result, nil
}

func TestRun_SelfReviewIsSkipped(t *testing.T) {
	fc := &fakeForge{pr: forge.PullRequest{User: forge.User{Login: "coordfab-bot"}}}
	wf := New(&fakeLocks{}, fc, &fakeReviewer{}, "coordfab-bot")
	res, err := wf.Run(context.Background(), "acme/widgets", 1, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped || res.SkipReason != "self-review prevented" {
		t.Fatalf("expected self-review skip, got %+v", res)
	}
}

func TestRun_LockAlreadyHeldIsSkipped(t *testing.T) {
	fc := &fakeForge{}
	locks := &fakeLocks{held: true}
	wf := New(locks, fc, &fakeReviewer{}, "coordfab-bot")
	res, err := wf.Run(context.Background(), "acme/widgets", 1, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped {
		t.Fatal("expected skip when review lock already held")
	}
}

func TestRun_FullyApprovedWithAutoMergeReachesMerged(t *testing.T) {
	fc := &fakeForge{pr: forge.PullRequest{User: forge.User{Login: "someone-else"}}}
	reviewer := &fakeReviewer{result: model.PRReviewResult{Approved: true}}
	wf := New(&fakeLocks{}, fc, reviewer, "coordfab-bot")

	res, err := wf.Run(context.Background(), "acme/widgets", 7, Options{AutoMergeIfApproved: true, MergeMethod: forge.MergeSquash})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateMerged || !res.Merged {
		t.Fatalf("expected merged state, got %+v", res)
	}
	if !fc.merged {
		t.Fatal("expected MergePR to have been called")
	}
}

func TestRun_CriticalFindingsConvertToDraftNotMerge(t *testing.T) {
	fc := &fakeForge{pr: forge.PullRequest{User: forge.User{Login: "someone-else"}}}
	reviewer := &fakeReviewer{result: model.PRReviewResult{
		Approved:      false,
		CriticalCount: 2,
		StaticFindings: []model.ReviewFinding{
			{File: "a.go", Line: 10, Severity: "CRITICAL", Message: "swallowed error"},
		},
	}}
	wf := New(&fakeLocks{}, fc, reviewer, "coordfab-bot")

	res, err := wf.Run(context.Background(), "acme/widgets", 9, Options{AutoMergeIfApproved: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateDrafted || !res.ConvertedToDraft {
		t.Fatalf("expected drafted state, got %+v", res)
	}
	if fc.merged {
		t.Fatal("must not merge a PR converted to draft")
	}
	if fc.draftReason == "" {
		t.Fatal("expected a draft reason to be recorded")
	}
}

func TestRun_MergeWithConsiderationParkedWithoutFlag(t *testing.T) {
	fc := &fakeForge{pr: forge.PullRequest{User: forge.User{Login: "someone-else"}}}
	reviewer := &fakeReviewer{result: model.PRReviewResult{
		Approved:     true,
		WarningCount: 2,
		StaticFindings: []model.ReviewFinding{
			{File: "a.go", Severity: "WARNING", Message: "minor"},
			{File: "b.go", Severity: "WARNING", Message: "minor"},
		},
	}}
	wf := New(&fakeLocks{}, fc, reviewer, "coordfab-bot")

	res, err := wf.Run(context.Background(), "acme/widgets", 11, Options{MergeWithSuggestions: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateParked {
		t.Fatalf("expected parked state when merge_with_suggestions is off, got %+v", res)
	}
	if fc.merged {
		t.Fatal("expected no merge without the merge-with-suggestions flag")
	}
}

func TestRun_CleanStaticReviewLabelsApprovedReadyStaticReviewed(t *testing.T) {
	fc := &fakeForge{pr: forge.PullRequest{User: forge.User{Login: "someone-else"}}}
	reviewer := &fakeReviewer{result: model.PRReviewResult{Approved: true, UsedLLM: false}}
	wf := New(&fakeLocks{}, fc, reviewer, "coordfab-bot")

	if _, err := wf.Run(context.Background(), "acme/widgets", 21, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.labels) != 1 {
		t.Fatalf("expected exactly one AddLabels call, got %d", len(fc.labels))
	}
	got := fc.labels[0]
	want := []string{"approved", "ready-for-merge", "static-reviewed"}
	if len(got) != len(want) {
		t.Fatalf("expected labels %v, got %v", want, got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("expected labels %v, got %v", want, got)
		}
	}
}

func TestRun_LLMReviewedLabelsUseAIReviewed(t *testing.T) {
	fc := &fakeForge{pr: forge.PullRequest{User: forge.User{Login: "someone-else"}}}
	reviewer := &fakeReviewer{result: model.PRReviewResult{Approved: true, UsedLLM: true}}
	wf := New(&fakeLocks{}, fc, reviewer, "coordfab-bot")

	if _, err := wf.Run(context.Background(), "acme/widgets", 22, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := fc.labels[0]
	for _, l := range got {
		if l == "ai-reviewed" {
			return
		}
	}
	t.Fatalf("expected ai-reviewed label when the review used an LLM pass, got %v", got)
}

func TestRun_AlwaysReleasesLockEvenWhenParked(t *testing.T) {
	fc := &fakeForge{pr: forge.PullRequest{User: forge.User{Login: "someone-else"}}}
	locks := &fakeLocks{}
	reviewer := &fakeReviewer{result: model.PRReviewResult{Approved: true, WarningCount: 99, StaticFindings: make([]model.ReviewFinding, 99)}}
	wf := New(locks, fc, reviewer, "coordfab-bot")

	if _, err := wf.Run(context.Background(), "acme/widgets", 13, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locks.release != 1 {
		t.Fatalf("expected the lock to be released exactly once, got %d", locks.release)
	}
}
