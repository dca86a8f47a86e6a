package forge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/swebotic/coordfab/internal/errs"
	"github.com/swebotic/coordfab/internal/model"
)

// fakeLimiter records Check/Record/ObservePlatformLimits calls so tests can
// assert the gate-then-record sequencing without a real ratelimit.Limiter.
type fakeLimiter struct {
	denyNext      error
	checked       []model.OperationType
	recorded      []model.OperationType
	observedRem   int
	observedReset time.Time
}

func (f *fakeLimiter) Check(opType model.OperationType, repo, content string) error {
	f.checked = append(f.checked, opType)
	if f.denyNext != nil {
		err := f.denyNext
		f.denyNext = nil
		return err
	}
	return nil
}

func (f *fakeLimiter) Record(opType model.OperationType, repo, content string) error {
	f.recorded = append(f.recorded, opType)
	return nil
}

func (f *fakeLimiter) ObservePlatformLimits(remaining int, resetAt time.Time) {
	f.observedRem = remaining
	f.observedReset = resetAt
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client, *fakeLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	lim := &fakeLimiter{}
	c := New(srv.URL, "test-token", "2024", lim, srv.Client())
	return srv, c, lim
}

func TestListIssues_FiltersOutPullRequests(t *testing.T) {
	_, c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("X-RateLimit-Reset", "9999999999")
		w.Write([]byte(`[{"number":1,"title":"a real issue"},{"number":2,"title":"a pr","pull_request":{}}]`))
	})
	issues, err := c.ListIssues(context.Background(), "acme/widgets", ListIssuesFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 1 || issues[0].Number != 1 {
		t.Fatalf("expected only the non-PR issue, got %+v", issues)
	}
}

func TestDoJSON_ObservesPlatformHeadersOnEveryCall(t *testing.T) {
	_, c, lim := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		w.Write([]byte(`{"number":7}`))
	})
	if _, err := c.GetIssue(context.Background(), "acme/widgets", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lim.observedRem != 42 {
		t.Fatalf("expected limiter to observe remaining=42, got %d", lim.observedRem)
	}
}

func TestCommentIssue_ChecksBeforeCallingThenRecords(t *testing.T) {
	called := false
	_, c, lim := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})
	if err := c.CommentIssue(context.Background(), "acme/widgets", 1, "hello world"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected the HTTP call to happen")
	}
	if len(lim.checked) != 1 || lim.checked[0] != model.OpComment {
		t.Fatalf("expected one Check(OpComment), got %v", lim.checked)
	}
	if len(lim.recorded) != 1 || lim.recorded[0] != model.OpComment {
		t.Fatalf("expected one Record(OpComment), got %v", lim.recorded)
	}
}

func TestCommentIssue_DeniedByLimiterNeverCallsHTTP(t *testing.T) {
	called := false
	_, c, lim := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	lim.denyNext = &errs.RateLimited{OpType: "comment", CapKind: "cooldown"}
	err := c.CommentIssue(context.Background(), "acme/widgets", 1, "hello")
	if err == nil {
		t.Fatal("expected rate-limited error")
	}
	if called {
		t.Fatal("expected the HTTP call to be skipped when the limiter denies")
	}
	if len(lim.recorded) != 0 {
		t.Fatal("expected no Record call when the limiter denies before the side effect happens")
	}
}

func TestRequestReviewers_GracefullyHandlesPlatformRejection(t *testing.T) {
	_, c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"reviewer cannot be the PR author"}`))
	})
	ok, err := c.RequestReviewers(context.Background(), "acme/widgets", 5, []string{"author-login"})
	if err != nil {
		t.Fatalf("expected graceful false, not an error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false when the forge rejects the reviewer set")
	}
}

func TestMergePR_AuthErrorOn401(t *testing.T) {
	_, c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	err := c.MergePR(context.Background(), "acme/widgets", 9, MergeOptions{Method: MergeSquash})
	var authErr *errs.AuthError
	if err == nil {
		t.Fatal("expected an auth error")
	}
	if !isAuthError(err, &authErr) {
		t.Fatalf("expected *errs.AuthError, got %T: %v", err, err)
	}
}

func isAuthError(err error, target **errs.AuthError) bool {
	if ae, ok := err.(*errs.AuthError); ok {
		*target = ae
		return true
	}
	return false
}

func TestCheckAccess_FalseOn404WithoutError(t *testing.T) {
	_, c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ok, err := c.CheckAccess(context.Background(), "acme/widgets", "nobody")
	if err != nil {
		t.Fatalf("expected no error on 404, got %v", err)
	}
	if ok {
		t.Fatal("expected false access for a 404")
	}
}

func TestFingerprint_DeterministicSixteenHexChars(t *testing.T) {
	a := Fingerprint("hello world")
	b := Fingerprint("hello world")
	if a != b {
		t.Fatal("expected fingerprint to be deterministic")
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%q)", len(a), a)
	}
}
