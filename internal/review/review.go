// Package review runs static heuristics, the project's test suite, and an
// optional LLM pass over a pull request's changed files, ported from
// original_source/engine/operations/pr_review_logic.py, generalized from
// Python-only checks to a per-language heuristic table since this
// coordination fabric reviews whatever language the repo under review uses.
package review

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/swebotic/coordfab/internal/model"
	"github.com/swebotic/coordfab/internal/sandbox"
)

// ChangedFile is one file touched by a PR, as fed to the review pass.
type ChangedFile struct {
	Path    string
	Content string
}

const largeFileLines = 500

var (
	debugStmtRe = map[string]*regexp.Regexp{
		".go": regexp.MustCompile(`\bfmt\.Println\(|\blog\.Print\(`),
		".py": regexp.MustCompile(`\bprint\(`),
		".js": regexp.MustCompile(`\bconsole\.log\(`),
		".ts": regexp.MustCompile(`\bconsole\.log\(`),
	}
	emptyGoErrCheck = regexp.MustCompile(`if err != nil \{\s*\}`)
	emptyPyExcept   = regexp.MustCompile(`except[^:]*:\s*pass`)
	todoRe          = regexp.MustCompile(`(?i)\bTODO\b|\bFIXME\b`)
)

// Engine runs static + dynamic review passes.
type Engine struct {
	sandbox *sandbox.Sandbox
	llm     func(ctx context.Context, file ChangedFile) ([]model.ReviewFinding, error)
}

// New builds an Engine. llm may be nil to skip the LLM pass entirely,
// matching the original's `llm_enabled` config flag.
func New(sb *sandbox.Sandbox, llm func(context.Context, ChangedFile) ([]model.ReviewFinding, error)) *Engine {
	return &Engine{sandbox: sb, llm: llm}
}

// ReviewFile applies review_python_file's checks (generalized across
// languages by extension): file-size, debug-print statements, TODO/FIXME
// count, and silent-error-handler detection.
func ReviewFile(f ChangedFile) []model.ReviewFinding {
	var findings []model.ReviewFinding
	lines := strings.Split(f.Content, "\n")

	if len(lines) > largeFileLines {
		findings = append(findings, model.ReviewFinding{
			File: f.Path, Severity: "WARNING",
			Message: "file exceeds 500 lines; consider splitting",
		})
	}

	ext := extOf(f.Path)
	if re, ok := debugStmtRe[ext]; ok {
		for i, line := range lines {
			if re.MatchString(line) {
				findings = append(findings, model.ReviewFinding{
					File: f.Path, Line: i + 1, Severity: "INFO",
					Message: "debug/print statement left in code",
				})
			}
		}
	}

	if n := len(todoRe.FindAllString(f.Content, -1)); n > 0 {
		findings = append(findings, model.ReviewFinding{
			File: f.Path, Severity: "INFO",
			Message: "contains unresolved TODO/FIXME markers",
		})
	}

	if emptyGoErrCheck.MatchString(f.Content) || emptyPyExcept.MatchString(f.Content) {
		findings = append(findings, model.ReviewFinding{
			File: f.Path, Severity: "CRITICAL",
			Message: "error/exception is silently swallowed",
		})
	}

	return findings
}

func extOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}

// RunTests executes the project's test command in workDir under a bounded
// timeout, mirroring run_tests()'s pytest-subprocess call generalized to
// whatever language the repo is written in via sandbox.DetectTestCommand.
// ran is false when no recognized build manifest was present to run tests
// against, matching the original's "tests changed but no runner found" skip.
func (e *Engine) RunTests(ctx context.Context, workDir string, manifestPresence map[string]bool, timeoutSeconds int) (ran, passed bool, output string, err error) {
	cmd, ok := sandbox.DetectTestCommand(manifestPresence)
	if !ok {
		return false, false, "", nil
	}
	res, runErr := e.sandbox.Run(ctx, cmd, workDir, time.Duration(timeoutSeconds)*time.Second)
	if runErr != nil {
		return true, false, res.Stdout + res.Stderr, runErr
	}
	return true, res.Status == sandbox.StatusSuccess, res.Stdout + res.Stderr, nil
}

// Review assembles a PRReviewResult: static findings over every changed
// file, the test run, and (if configured) the LLM pass.
func (e *Engine) Review(ctx context.Context, repo string, prNumber int, files []ChangedFile, workDir string, manifestPresence map[string]bool, testTimeoutSeconds int) (model.PRReviewResult, error) {
	result := model.PRReviewResult{Repo: repo, PRNumber: prNumber}

	for _, f := range files {
		result.StaticFindings = append(result.StaticFindings, ReviewFile(f)...)
	}

	ran, passed, output, err := e.RunTests(ctx, workDir, manifestPresence, testTimeoutSeconds)
	if err != nil {
		return result, err
	}
	result.TestsRun = ran
	result.TestsPassed = passed
	result.TestOutput = output

	result.UsedLLM = e.llm != nil
	if e.llm != nil {
		for _, f := range files {
			findings, err := e.llm(ctx, f)
			if err != nil {
				continue // LLM pass is best-effort; static findings still stand
			}
			result.LLMFindings = append(result.LLMFindings, findings...)
		}
	}

	for _, f := range append(append([]model.ReviewFinding{}, result.StaticFindings...), result.LLMFindings...) {
		switch f.Severity {
		case "CRITICAL":
			result.CriticalCount++
		case "WARNING":
			result.WarningCount++
		}
	}

	// approved = no critical issues AND tests pass when run, matching
	// pr_review_logic.py's review_pr() approval gate.
	result.Approved = result.CriticalCount == 0 && (!result.TestsRun || result.TestsPassed)
	return result, nil
}

// verdict mirrors post_review_comment's three-way GitHub review status
// (APPROVE/REQUEST_CHANGES/COMMENT), derived from the same fields
// _evaluate_merge_decision inspects.
func verdict(r model.PRReviewResult) string {
	switch {
	case !r.Approved:
		return "REQUEST_CHANGES"
	case r.CriticalCount == 0 && r.WarningCount == 0 && len(r.LLMFindings) == 0:
		return "APPROVE"
	default:
		return "COMMENT"
	}
}

// FormatComment renders a PRReviewResult into the single review comment
// posted back to the PR, matching post_review_comment's summary-then-findings
// layout.
func FormatComment(r model.PRReviewResult) string {
	var b strings.Builder
	b.WriteString("Automated review: ")
	b.WriteString(verdict(r))
	b.WriteString("\n\n")
	if r.TestsRun {
		if r.TestsPassed {
			b.WriteString("Tests: passed.\n")
		} else {
			b.WriteString("Tests: failed.\n")
		}
	} else {
		b.WriteString("Tests: no test runner detected for this change.\n")
	}
	b.WriteString(fmt.Sprintf("Findings: %d critical, %d warning.\n", r.CriticalCount, r.WarningCount))

	all := append(append([]model.ReviewFinding{}, r.StaticFindings...), r.LLMFindings...)
	if len(all) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	for _, f := range all {
		if f.Line > 0 {
			b.WriteString(fmt.Sprintf("- [%s] %s:%d: %s\n", f.Severity, f.File, f.Line, f.Message))
		} else {
			b.WriteString(fmt.Sprintf("- [%s] %s: %s\n", f.Severity, f.File, f.Message))
		}
	}
	return b.String()
}
