package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/swebotic/coordfab/internal/config"
	"github.com/swebotic/coordfab/internal/errs"
	"github.com/swebotic/coordfab/internal/model"
)

type fakeHistory struct {
	recorded []model.OperationRecord
}

func (f *fakeHistory) RecordOperation(r model.OperationRecord) error {
	f.recorded = append(f.recorded, r)
	return nil
}

func (f *fakeHistory) RecentOperations(model.OperationType, string, time.Time) ([]model.OperationRecord, error) {
	return nil, nil
}

func newTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()
	cfg := config.RateLimitsConfig{
		Operations: map[string]config.OperationLimits{
			"comment": {
				PerMinute: 5, PerHour: 20, PerDay: 100, CooldownSecs: 20,
				BurstWindow: 60, BurstMax: 3,
				DuplicateWindowSecs: 3600, MaxDuplicates: 1,
			},
		},
	}
	cur := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(cfg, &fakeHistory{})
	l.now = func() time.Time { return cur }
	return l, &cur
}

func TestCheck_CooldownBlocksRapidRepeat(t *testing.T) {
	l, cur := newTestLimiter(t)

	if err := l.Check(model.OpComment, "acme/widgets", "first comment"); err != nil {
		t.Fatalf("first check should pass: %v", err)
	}
	if err := l.Record(model.OpComment, "acme/widgets", "first comment"); err != nil {
		t.Fatalf("record: %v", err)
	}

	*cur = cur.Add(5 * time.Second)
	err := l.Check(model.OpComment, "acme/widgets", "second comment")
	var rl *errs.RateLimited
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimited within cooldown, got %v", err)
	}
	if rl.CapKind != "cooldown" {
		t.Fatalf("expected cooldown cap kind, got %s", rl.CapKind)
	}

	*cur = cur.Add(16 * time.Second) // total 21s elapsed, past the 20s cooldown
	if err := l.Check(model.OpComment, "acme/widgets", "second comment"); err != nil {
		t.Fatalf("expected check to pass after cooldown elapses: %v", err)
	}
}

func TestCheck_DuplicateContentBlockedAfterCooldown(t *testing.T) {
	l, cur := newTestLimiter(t)
	if err := l.Record(model.OpComment, "acme/widgets", "same text"); err != nil {
		t.Fatalf("record: %v", err)
	}
	*cur = cur.Add(25 * time.Second) // past cooldown
	err := l.Check(model.OpComment, "acme/widgets", "same text")
	var rl *errs.RateLimited
	if !errors.As(err, &rl) || rl.CapKind != "duplicate" {
		t.Fatalf("expected duplicate rate limit, got %v", err)
	}
}

func TestCheck_BurstCapExceeded(t *testing.T) {
	l, cur := newTestLimiter(t)
	for i := 0; i < 3; i++ {
		content := "msg"
		if err := l.Record(model.OpComment, "acme/widgets", content+string(rune('a'+i))); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		*cur = cur.Add(5 * time.Second)
	}
	*cur = cur.Add(16 * time.Second) // clears the 20s cooldown without leaving the 60s burst window
	err := l.Check(model.OpComment, "acme/widgets", "msgd")
	var rl *errs.RateLimited
	if !errors.As(err, &rl) || rl.CapKind != "burst" {
		t.Fatalf("expected burst cap violation, got %v", err)
	}
}

func TestCheck_BurstIsGlobalAcrossRepos(t *testing.T) {
	l, cur := newTestLimiter(t)
	for i, repo := range []string{"acme/widgets", "acme/gadgets", "acme/sprockets"} {
		content := "msg"
		if err := l.Record(model.OpComment, repo, content+string(rune('a'+i))); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		*cur = cur.Add(5 * time.Second)
	}
	*cur = cur.Add(16 * time.Second)
	err := l.Check(model.OpComment, "acme/widgets", "msgd")
	var rl *errs.RateLimited
	if !errors.As(err, &rl) || rl.CapKind != "burst" {
		t.Fatalf("expected burst cap to trip across repos of the same op type, got %v", err)
	}
}

func TestCheck_UnconfiguredOperationNeverLimited(t *testing.T) {
	l, _ := newTestLimiter(t)
	if err := l.Check(model.OperationType("unknown_op"), "acme/widgets", "anything"); err != nil {
		t.Fatalf("unconfigured op type should never be limited: %v", err)
	}
}

func TestCleanupOlderThan_DropsStaleRecords(t *testing.T) {
	l, cur := newTestLimiter(t)
	_ = l.Record(model.OpComment, "acme/widgets", "old")
	*cur = cur.Add(2 * time.Hour)
	l.CleanupOlderThan(time.Hour)
	if n := l.Stats(model.OpComment, "acme/widgets", 3*time.Hour); n != 0 {
		t.Fatalf("expected stale record purged, got count %d", n)
	}
}

func TestCheck_PlatformHeadroomLowDeniesEverything(t *testing.T) {
	l, cur := newTestLimiter(t)
	l.ObservePlatformLimits(42, cur.Add(time.Minute))

	err := l.Check(model.OpComment, "acme/widgets", "hello")
	var rl *errs.RateLimited
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimited when platform headroom is low, got %v", err)
	}
	if rl.CapKind != "platform_headroom" {
		t.Fatalf("expected platform_headroom cap kind, got %q", rl.CapKind)
	}
}

func TestCheck_PlatformHeadroomHealthyDoesNotBlock(t *testing.T) {
	l, cur := newTestLimiter(t)
	l.ObservePlatformLimits(5000, cur.Add(time.Hour))

	if err := l.Check(model.OpComment, "acme/widgets", "hello"); err != nil {
		t.Fatalf("healthy platform headroom should not deny: %v", err)
	}
}
