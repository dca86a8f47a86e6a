// Package conflict implements ConflictAnalyzer, which scores a pull
// request's merge-conflict complexity and recommends a resolution
// strategy, ported from
// original_source/engine/operations/conflict_analyzer.py's
// ConflictComplexityAnalyzer.
package conflict

import (
	"strconv"
	"strings"
	"time"
)

// SimpleThreshold and ModerateThreshold bound the three resolution bands,
// matching ConflictComplexityAnalyzer.SIMPLE_THRESHOLD/MODERATE_THRESHOLD.
const (
	SimpleThreshold   = 8
	ModerateThreshold = 15
)

// corePatterns mirrors _is_core_file's substring list, generalized from
// Python-project paths to this fabric's own layout.
var corePatterns = []string{
	"internal/coordinator/", "internal/ratelimit/", "internal/merge/",
	"go.mod", "go.sum", "internal/config/", "README.md",
}

// Metrics are the raw conflict signals _gather_conflict_metrics collects,
// named identically to the original's metrics dict keys.
type Metrics struct {
	ConflictedFiles    int
	ConflictMarkers    int
	LinesAffected      int
	FilesOverlap       bool
	AgeDays            int
	CommitsBehind      int
	TotalFilesChanged  int
	CoreFilesAffected  bool
}

// PRFile is the subset of a forge pull-request file entry the metrics
// gatherer needs.
type PRFile struct {
	Filename  string
	Status    string
	Additions int
	Deletions int
	Changes   int
}

// GatherMetrics mirrors _gather_conflict_metrics: it estimates conflict
// markers and overlap from the PR's file diff stats rather than running an
// actual merge, since the forge API exposes stats, not conflict markers.
func GatherMetrics(createdAt, now time.Time, commitsAhead int, files []PRFile) Metrics {
	m := Metrics{
		AgeDays:           int(now.Sub(createdAt).Hours() / 24),
		CommitsBehind:     commitsAhead,
		TotalFilesChanged: len(files),
	}

	var conflicted int
	for _, f := range files {
		if f.Status == "modified" && f.Additions > 0 && f.Deletions > 0 {
			conflicted++
			estimatedMarkers := min(f.Additions, f.Deletions) / 20
			if estimatedMarkers < 1 {
				estimatedMarkers = 1
			}
			m.ConflictMarkers += estimatedMarkers
			m.LinesAffected += f.Changes
		}
		if isCoreFile(f.Filename) {
			m.CoreFilesAffected = true
		}
	}
	m.ConflictedFiles = conflicted
	if m.ConflictedFiles > 2 {
		m.FilesOverlap = true
	}
	return m
}

func isCoreFile(filename string) bool {
	for _, p := range corePatterns {
		if strings.Contains(filename, p) {
			return true
		}
	}
	return false
}

// Action is the recommended resolution strategy.
type Action string

const (
	ActionAutoResolve      Action = "auto_resolve"
	ActionManualFix        Action = "manual_fix"
	ActionCloseAndRecreate Action = "close_and_recreate"
)

// Analysis is Score's output, matching analyze_pr_conflicts's returned dict.
type Analysis struct {
	Score             int
	RecommendedAction Action
	Reasoning         string
	Metrics           Metrics
}

// Score computes the 0-55 complexity score and its recommended action,
// following _calculate_complexity_score's exact point contributions per
// metric and analyze_pr_conflicts's threshold bands.
func Score(m Metrics) Analysis {
	score := 0

	switch {
	case m.ConflictedFiles <= 2:
		score += 1
	case m.ConflictedFiles <= 5:
		score += 5
	default:
		score += 10
	}

	switch {
	case m.ConflictMarkers <= 5:
		score += 2
	case m.ConflictMarkers <= 15:
		score += 6
	default:
		score += 10
	}

	switch {
	case m.LinesAffected <= 50:
		score += 1
	case m.LinesAffected <= 200:
		score += 5
	default:
		score += 10
	}

	if m.FilesOverlap {
		score += 5
	}

	switch {
	case m.AgeDays <= 1:
		score += 0
	case m.AgeDays <= 3:
		score += 2
	default:
		score += 5
	}

	switch {
	case m.CommitsBehind <= 3:
		score += 1
	case m.CommitsBehind <= 10:
		score += 5
	default:
		score += 10
	}

	if m.CoreFilesAffected {
		score += 5
	}

	var action Action
	var reasoning string
	switch {
	case score <= SimpleThreshold:
		action = ActionAutoResolve
		reasoning = "conflicts are minimal and can be auto-resolved via rebase"
	case score <= ModerateThreshold:
		action = ActionManualFix
		reasoning = "conflicts require manual review but are manageable"
	default:
		action = ActionCloseAndRecreate
		reasoning = "conflicts are too complex; recreating the PR from scratch is more efficient"
	}

	return Analysis{Score: score, RecommendedAction: action, Reasoning: reasoning, Metrics: m}
}

// ShouldCloseAndRecreate mirrors should_close_and_recreate's convenience
// wrapper, appending the metrics summary to the reasoning exactly as the
// original does when it recommends closing.
func ShouldCloseAndRecreate(a Analysis) (bool, string) {
	shouldClose := a.RecommendedAction == ActionCloseAndRecreate
	reason := a.Reasoning
	if shouldClose {
		reason += " (" +
			strconv.Itoa(a.Metrics.ConflictedFiles) + " files, " +
			strconv.Itoa(a.Metrics.CommitsBehind) + " commits behind, " +
			strconv.Itoa(a.Metrics.AgeDays) + " days old)"
	}
	return shouldClose, reason
}
