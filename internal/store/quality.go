package store

import (
	"database/sql"
	"fmt"

	"github.com/swebotic/coordfab/internal/model"
)

// UpsertQualityScore writes q's counters in full, overwriting any existing
// row for q.AgentID. Callers accumulate counters in memory (see
// internal/review.QualityTracker) and persist the running total, rather than
// issuing an incremental UPDATE per review outcome.
func (s *Store) UpsertQualityScore(q model.QualityScore) error {
	_, err := s.db.Exec(
		`INSERT INTO agent_quality_scores (agent_id, approvals, first_pass, reviews, defects) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET approvals=excluded.approvals, first_pass=excluded.first_pass,
		   reviews=excluded.reviews, defects=excluded.defects`,
		q.AgentID, q.Approvals, q.FirstPass, q.Reviews, q.Defects,
	)
	if err != nil {
		return fmt.Errorf("upsert quality score: %w", err)
	}
	return nil
}

// GetQualityScore returns the stored score for agentID, or ok=false if the
// agent has no recorded reviews yet.
func (s *Store) GetQualityScore(agentID string) (model.QualityScore, bool, error) {
	var q model.QualityScore
	err := s.db.QueryRow(
		`SELECT agent_id, approvals, first_pass, reviews, defects FROM agent_quality_scores WHERE agent_id = ?`,
		agentID,
	).Scan(&q.AgentID, &q.Approvals, &q.FirstPass, &q.Reviews, &q.Defects)
	if err == sql.ErrNoRows {
		return model.QualityScore{}, false, nil
	}
	if err != nil {
		return model.QualityScore{}, false, fmt.Errorf("get quality score: %w", err)
	}
	return q, true, nil
}

// ListQualityScores returns every agent's recorded score.
func (s *Store) ListQualityScores() ([]model.QualityScore, error) {
	rows, err := s.db.Query(`SELECT agent_id, approvals, first_pass, reviews, defects FROM agent_quality_scores`)
	if err != nil {
		return nil, fmt.Errorf("list quality scores: %w", err)
	}
	defer rows.Close()

	var out []model.QualityScore
	for rows.Next() {
		var q model.QualityScore
		if err := rows.Scan(&q.AgentID, &q.Approvals, &q.FirstPass, &q.Reviews, &q.Defects); err != nil {
			return nil, fmt.Errorf("scan quality score: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
