package store

// migration002 adds the quality-score table backing AgentQualityScore
// (SPEC_FULL.md §3 expansion), following
// the teacher's version-gated migration idiom in internal/memory/db.go.
const migration002 = `
CREATE TABLE IF NOT EXISTS agent_quality_scores (
    agent_id TEXT PRIMARY KEY,
    approvals INTEGER NOT NULL DEFAULT 0,
    first_pass INTEGER NOT NULL DEFAULT 0,
    reviews INTEGER NOT NULL DEFAULT 0,
    defects INTEGER NOT NULL DEFAULT 0
);
`
