package review

import "github.com/swebotic/coordfab/internal/model"

// QualityStore is the persistence backend QualityTracker reads and updates.
// *store.Store satisfies this.
type QualityStore interface {
	GetQualityScore(agentID string) (model.QualityScore, bool, error)
	UpsertQualityScore(model.QualityScore) error
}

// QualityTracker folds one PR's review outcome into its author's rolling
// AgentQualityScore (SPEC_FULL.md §3 expansion type), grounded on the
// teacher's internal/memory/review_board.go win/loss tally. Nothing in
// PRWorkflow requires this signal, and the Scheduler does not read it.
type QualityTracker struct {
	store QualityStore
}

// NewQualityTracker builds a tracker over store. A nil store makes Record a
// no-op, so callers that don't want quality tracking can pass nil.
func NewQualityTracker(store QualityStore) *QualityTracker {
	return &QualityTracker{store: store}
}

// Record folds one more reviewed PR into agentID's running score. firstPass
// is true when the PR reached approval without ever having been sent back
// with changes requested.
func (t *QualityTracker) Record(agentID string, result model.PRReviewResult, firstPass bool) error {
	if t.store == nil || agentID == "" {
		return nil
	}
	score, _, err := t.store.GetQualityScore(agentID)
	if err != nil {
		return err
	}
	score.AgentID = agentID
	score.Reviews++
	score.Defects += result.CriticalCount + result.WarningCount
	if result.Approved {
		score.Approvals++
		if firstPass {
			score.FirstPass++
		}
	}
	return t.store.UpsertQualityScore(score)
}
