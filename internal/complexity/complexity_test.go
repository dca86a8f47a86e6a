package complexity

import (
	"testing"

	"github.com/swebotic/coordfab/internal/model"
)

func TestAnalyze_TrivialIssueRoutesDelegateSimple(t *testing.T) {
	issue := model.Issue{Title: "Fix typo in README", Body: "There's a typo on line 12."}
	got := NewRuleBased().Analyze(issue)
	if got.Score != 0 {
		t.Fatalf("expected score 0, got %d", got.Score)
	}
	if got.Route != model.RouteDelegateSimple {
		t.Fatalf("expected DELEGATE_SIMPLE, got %s", got.Route)
	}
}

func TestAnalyze_ArchitectureKeywordRoutesOrchestrate(t *testing.T) {
	issue := model.Issue{
		Title: "Redesign the authentication architecture",
		Body: `This requires a full architecture migration across auth.go, api/handlers.go,
frontend/login.tsx, and backend/session_store.go, touching the frontend, backend,
database and api components.`,
		Labels: []string{"epic", "needs-design"},
	}
	got := NewRuleBased().Analyze(issue)
	if got.Route != model.RouteOrchestrate {
		t.Fatalf("expected ORCHESTRATE, got %s (score=%d)", got.Route, got.Score)
	}
	if !ShouldUseCoordinator(got) {
		t.Fatal("expected ShouldUseCoordinator true for ORCHESTRATE route")
	}
	if !got.EscalationFlag {
		t.Fatal("expected escalation flag enabled for cross-cutting architecture issue")
	}
}

func TestAnalyze_ModerateComplexityRoutesDelegateWithEscalation(t *testing.T) {
	issue := model.Issue{
		Title: "Refactor the api.go rate limiter",
		Body:  "Needs a refactor of api.go to clean up duplicated logic.",
	}
	got := NewRuleBased().Analyze(issue)
	if got.Route != model.RouteDelegateEscalation {
		t.Fatalf("expected DELEGATE_WITH_ESCALATION, got %s (score=%d)", got.Route, got.Score)
	}
}

func TestAnalyze_ChecklistAndFileMentionsRouteOrchestrate(t *testing.T) {
	issue := model.Issue{
		Title: "Refactor the authentication flow",
		Body: `- [ ] update auth.py
- [ ] update db.py
- [ ] update api.py
- [ ] add tests
- [ ] update docs
- [ ] rotate secrets
- [ ] notify downstream teams

Touches auth.py, db.py, and api.py.`,
		Labels: []string{"refactor"},
	}
	got := NewRuleBased().Analyze(issue)
	if got.Score < 26 {
		t.Fatalf("expected score >= 26, got %d", got.Score)
	}
	if got.Route != model.RouteOrchestrate {
		t.Fatalf("expected ORCHESTRATE, got %s (score=%d)", got.Route, got.Score)
	}
}

func TestRouteFor_BoundaryFavorsLowerBucket(t *testing.T) {
	if route := routeFor(SimpleThreshold); route != model.RouteDelegateSimple {
		t.Fatalf("expected score==SimpleThreshold to route DELEGATE_SIMPLE, got %s", route)
	}
	if route := routeFor(ComplexThreshold); route != model.RouteDelegateEscalation {
		t.Fatalf("expected score==ComplexThreshold to route DELEGATE_WITH_ESCALATION, got %s", route)
	}
	if route := routeFor(ComplexThreshold + 1); route != model.RouteOrchestrate {
		t.Fatalf("expected score>ComplexThreshold to route ORCHESTRATE, got %s", route)
	}
}

func TestCalculateScore_CapsAtMax(t *testing.T) {
	s := model.ComplexitySignals{
		BodyLength: 5000, FileMentions: 20, HasRefactorKeyword: true,
		HasArchKeyword: true, ComponentMentions: 10, ComplexLabelCount: 10,
	}
	if score := calculateScore(s); score != maxScore {
		t.Fatalf("expected score capped at %d, got %d", maxScore, score)
	}
}

func TestLLMAssisted_FallsBackOnSemanticFailure(t *testing.T) {
	rb := NewRuleBased()
	analyzer := NewLLMAssisted(rb, func(model.Issue) (int, bool) { return 0, false })
	issue := model.Issue{Title: "Fix typo", Body: "small fix"}
	base := rb.Analyze(issue)
	got := analyzer.Analyze(issue)
	if got.Score != base.Score || got.UsedLLM {
		t.Fatalf("expected fallback result unchanged, got %+v", got)
	}
}

func TestLLMAssisted_AppliesAdjustmentAndRerouting(t *testing.T) {
	rb := NewRuleBased()
	analyzer := NewLLMAssisted(rb, func(model.Issue) (int, bool) { return 30, true })
	issue := model.Issue{Title: "Fix typo", Body: "small fix"}
	got := analyzer.Analyze(issue)
	if !got.UsedLLM {
		t.Fatal("expected UsedLLM true")
	}
	if got.Route != model.RouteOrchestrate {
		t.Fatalf("expected boosted score to reroute to ORCHESTRATE, got %s (score=%d)", got.Route, got.Score)
	}
}
