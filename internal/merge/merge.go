// Package merge implements MergeDecider, a pure function from a review
// result to a merge recommendation, ported from
// original_source/engine/operations/pr_workflow_orchestrator.py's
// _evaluate_merge_decision. It deliberately has no dependencies on forge,
// store, or any other component -- its output is a function of the
// PRReviewResult argument alone, matching SPEC_FULL.md §8 property 6.
package merge

import (
	"fmt"

	"github.com/swebotic/coordfab/internal/model"
)

// maxWarningsForAutoConsideration mirrors _evaluate_merge_decision's
// hardcoded "<= 3 warnings" threshold for MERGE_WITH_CONSIDERATION.
const maxWarningsForAutoConsideration = 3

// Decide evaluates result and returns the four-way merge recommendation,
// following _evaluate_merge_decision's exact branch order:
//
//  1. not Approved                         -> DO_NOT_MERGE
//  2. CriticalCount > 0                    -> DO_NOT_MERGE
//  3. no findings at all                   -> AUTO_MERGE
//  4. WarningCount <= 3                    -> MERGE_WITH_CONSIDERATION
//  5. otherwise                            -> MANUAL_REVIEW
func Decide(result model.PRReviewResult) model.MergeDecision {
	base := model.MergeDecision{CriticalCount: result.CriticalCount, WarningCount: result.WarningCount}

	if !result.Approved {
		base.Recommendation = model.MergeDoNotMerge
		base.Reason = "review did not approve the change (tests failed or unresolved critical findings)"
		return base
	}

	if result.CriticalCount > 0 {
		base.Recommendation = model.MergeDoNotMerge
		base.Reason = fmt.Sprintf("%d critical finding(s) outstanding", result.CriticalCount)
		return base
	}

	totalFindings := len(result.StaticFindings) + len(result.LLMFindings)
	if totalFindings == 0 {
		base.Recommendation = model.MergeAutoMerge
		base.Reason = "no findings and tests pass"
		return base
	}

	if result.WarningCount <= maxWarningsForAutoConsideration {
		base.Recommendation = model.MergeWithConsideration
		base.Reason = fmt.Sprintf("%d warning(s) within acceptable range", result.WarningCount)
		return base
	}

	base.Recommendation = model.MergeManualReview
	base.Reason = fmt.Sprintf("%d warning(s) exceeds auto-consideration threshold (%d)", result.WarningCount, maxWarningsForAutoConsideration)
	return base
}
