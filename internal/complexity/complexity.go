// Package complexity scores an Issue's implementation complexity and
// derives a routing action, ported verbatim (thresholds and point
// contributions) from
// original_source/engine/operations/issue_complexity_analyzer.py.
package complexity

import (
	"regexp"
	"strings"

	"github.com/swebotic/coordfab/internal/model"
)

const (
	// SimpleThreshold and ComplexThreshold bound the three routing bands,
	// matching IssueComplexityAnalyzer.SIMPLE_THRESHOLD/COMPLEX_THRESHOLD.
	SimpleThreshold  = 10
	ComplexThreshold = 25
	maxScore         = 65
)

var (
	refactorKeywords = []string{"refactor", "rewrite", "redesign", "restructure", "overhaul"}
	archKeywords     = []string{"architecture", "migration", "migrate to", "breaking change", "design doc"}
	complexLabels    = []string{"epic", "needs-design", "architecture", "breaking-change", "rfc"}
	fileMentionRe    = regexp.MustCompile(`[\w./-]+\.\w{1,5}\b`)
	componentWords   = []string{"frontend", "backend", "database", "api", "ui", "auth", "cli", "worker", "scheduler", "cache"}
	dependencyRe     = regexp.MustCompile(`(?i)(depends on|blocked by|requires|needs) #\d+`)
)

// Analyzer is the tagged-variant interface: RuleBased scores deterministically;
// LLMAssisted wraps a RuleBased fallback and, when its semantic pass fails,
// falls back to the rule-based score -- the Go shape of the original's
// optional LLM-assisted path (`_llm_semantic_analysis`), modeled as two
// concrete implementations behind one interface per SPEC_FULL.md §9.
type Analyzer interface {
	Analyze(issue model.Issue) model.ComplexityAnalysis
}

// RuleBased implements Analyzer using only keyword/signal scoring.
type RuleBased struct{}

// NewRuleBased returns the deterministic analyzer.
func NewRuleBased() *RuleBased { return &RuleBased{} }

// Analyze gathers signals and scores them, matching analyze_issue().
func (RuleBased) Analyze(issue model.Issue) model.ComplexityAnalysis {
	signals := gatherSignals(issue)
	score := calculateScore(signals)
	route := routeFor(score)
	return model.ComplexityAnalysis{
		Score:          score,
		Signals:        signals,
		Route:          route,
		Rationale:      rationale(signals, score),
		EscalationFlag: escalationEnabled(signals),
	}
}

func gatherSignals(issue model.Issue) model.ComplexitySignals {
	body := issue.Body
	lowerBody := strings.ToLower(body)
	lowerTitle := strings.ToLower(issue.Title)
	combined := lowerTitle + " " + lowerBody

	s := model.ComplexitySignals{
		BodyLength:         len(body),
		FileMentions:       len(fileMentionRe.FindAllString(body, -1)),
		TaskCount:          strings.Count(body, "- [ ]") + strings.Count(body, "- [x]") + strings.Count(body, "- [X]"),
		CodeBlocks:         strings.Count(body, "```"),
		DependencyMentions: len(dependencyRe.FindAllString(body, -1)),
	}

	for _, kw := range refactorKeywords {
		if strings.Contains(combined, kw) {
			s.HasRefactorKeyword = true
			break
		}
	}
	for _, kw := range archKeywords {
		if strings.Contains(combined, kw) {
			s.HasArchKeyword = true
			break
		}
	}
	seenComponents := map[string]bool{}
	for _, w := range componentWords {
		if strings.Contains(combined, w) {
			seenComponents[w] = true
		}
	}
	s.ComponentMentions = len(seenComponents)
	if s.ComponentMentions >= 2 {
		s.CrossCuttingCount = s.ComponentMentions
	}

	for _, label := range issue.Labels {
		for _, cl := range complexLabels {
			if strings.EqualFold(label, cl) {
				s.ComplexLabelCount++
				break
			}
		}
	}
	return s
}

// calculateScore mirrors _calculate_complexity_score's exact point
// contributions, capped at maxScore (65).
func calculateScore(s model.ComplexitySignals) int {
	score := 0

	switch {
	case s.BodyLength > 2000:
		score += 15
	case s.BodyLength > 800:
		score += 8
	case s.BodyLength > 300:
		score += 3
	}

	switch {
	case s.FileMentions > 5:
		score += 15
	case s.FileMentions > 2:
		score += 8
	case s.FileMentions > 0:
		score += 3
	}

	if s.HasRefactorKeyword {
		score += 12
	}
	if s.HasArchKeyword {
		score += 15
	}

	switch {
	case s.ComponentMentions > 3:
		score += 10
	case s.ComponentMentions > 1:
		score += 5
	}

	switch {
	case s.TaskCount >= 10:
		score += 10
	case s.TaskCount >= 5:
		score += 6
	case s.TaskCount >= 3:
		score += 3
	}

	switch {
	case s.CodeBlocks >= 6:
		score += 3
	case s.CodeBlocks >= 3:
		score += 2
	}

	if dep := s.DependencyMentions * 2; dep < 5 {
		score += dep
	} else {
		score += 5
	}

	score += s.ComplexLabelCount * 8
	if score > maxScore {
		score = maxScore
	}
	return score
}

func routeFor(score int) model.RouteAction {
	switch {
	case score <= SimpleThreshold:
		return model.RouteDelegateSimple
	case score <= ComplexThreshold:
		return model.RouteDelegateEscalation
	default:
		return model.RouteOrchestrate
	}
}

// escalationEnabled mirrors escalation_enabled(): escalation machinery only
// engages once an issue shows cross-cutting signals, not on score alone.
func escalationEnabled(s model.ComplexitySignals) bool {
	return s.CrossCuttingCount > 0 || s.HasArchKeyword
}

func rationale(s model.ComplexitySignals, score int) string {
	var reasons []string
	if s.HasArchKeyword {
		reasons = append(reasons, "architecture/migration keywords present")
	}
	if s.HasRefactorKeyword {
		reasons = append(reasons, "refactor keywords present")
	}
	if s.FileMentions > 0 {
		reasons = append(reasons, "file references found")
	}
	if s.ComponentMentions > 1 {
		reasons = append(reasons, "multiple components mentioned")
	}
	if s.TaskCount >= 3 {
		reasons = append(reasons, "sizable task checklist present")
	}
	if s.CodeBlocks >= 3 {
		reasons = append(reasons, "multiple code blocks present")
	}
	if s.DependencyMentions > 0 {
		reasons = append(reasons, "dependency mentions found")
	}
	if s.ComplexLabelCount > 0 {
		reasons = append(reasons, "complexity-indicating labels present")
	}
	if len(reasons) == 0 {
		return "no complexity signals detected"
	}
	return strings.Join(reasons, "; ")
}

// ShouldUseCoordinator mirrors should_use_coordinator(): only ORCHESTRATE
// routes engage the multi-agent coordinator/planner pipeline.
func ShouldUseCoordinator(a model.ComplexityAnalysis) bool {
	return a.Route == model.RouteOrchestrate
}

// LLMAssisted wraps a rule-based analyzer and (when given a working
// semantic function) blends its signal; on failure it returns the
// fallback's result untouched, matching _llm_semantic_analysis's
// try/except-and-fall-back shape.
type LLMAssisted struct {
	fallback *RuleBased
	Semantic func(issue model.Issue) (adjust int, ok bool)
}

// NewLLMAssisted builds an LLM-assisted analyzer around a RuleBased fallback.
func NewLLMAssisted(fallback *RuleBased, semantic func(model.Issue) (int, bool)) *LLMAssisted {
	return &LLMAssisted{fallback: fallback, Semantic: semantic}
}

// Analyze runs the rule-based pass, then adjusts the score with the
// semantic function if it succeeds, re-deriving the route from the
// adjusted score.
func (l *LLMAssisted) Analyze(issue model.Issue) model.ComplexityAnalysis {
	base := l.fallback.Analyze(issue)
	if l.Semantic == nil {
		return base
	}
	adjust, ok := l.Semantic(issue)
	if !ok {
		return base
	}
	base.Score += adjust
	if base.Score > maxScore {
		base.Score = maxScore
	}
	if base.Score < 0 {
		base.Score = 0
	}
	base.UsedLLM = true
	base.Route = routeFor(base.Score)
	return base
}
