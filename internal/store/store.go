// Package store is the coordination fabric's persistence layer: a
// SQLite-backed log of rate-limited operations, agent registrations, task
// assignments and review locks, plus JSON snapshot files for execution
// plans -- adapted from the teacher's internal/memory/db.go (schema +
// version-gated migrations) and internal/persistence/store.go (JSON
// round-trip for human-inspectable documents).
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/swebotic/coordfab/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 2

// Store is the concrete SQLite-backed persistence layer.
type Store struct {
	db      *sql.DB
	planDir string
}

// Open creates or opens the store's SQLite database at path, running any
// pending migrations, and ensures planDir exists for JSON plan snapshots.
func Open(path, planDir string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	if err := os.MkdirAll(planDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plan directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &Store{db: db, planDir: planDir}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 2 {
		if _, err := s.db.Exec(migration002); err != nil {
			return fmt.Errorf("run migration 002: %w", err)
		}
		if _, err := s.db.Exec("UPDATE schema_version SET version = ?", schemaVersion); err != nil {
			return fmt.Errorf("bump schema version: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordOperation persists one rate-limited side effect for later window
// lookups, mirroring record_operation() in the original rate limiter.
func (s *Store) RecordOperation(rec model.OperationRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO operation_records (op_type, repo, occurred_at, content_hash) VALUES (?, ?, ?, ?)`,
		string(rec.OpType), rec.Repo, rec.Timestamp.UTC(), rec.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

// RecentOperations returns operation records of opType for repo since the
// given time, ordered oldest first -- the window data check_rate_limit needs.
func (s *Store) RecentOperations(opType model.OperationType, repo string, since time.Time) ([]model.OperationRecord, error) {
	rows, err := s.db.Query(
		`SELECT op_type, repo, occurred_at, content_hash FROM operation_records
		 WHERE op_type = ? AND repo = ? AND occurred_at >= ? ORDER BY occurred_at ASC`,
		string(opType), repo, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query recent operations: %w", err)
	}
	defer rows.Close()

	var out []model.OperationRecord
	for rows.Next() {
		var rec model.OperationRecord
		var op string
		if err := rows.Scan(&op, &rec.Repo, &rec.Timestamp, &rec.ContentHash); err != nil {
			return nil, fmt.Errorf("scan operation record: %w", err)
		}
		rec.OpType = model.OperationType(op)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CleanupOldOperations deletes records older than cutoff, mirroring
// cleanup_old_records().
func (s *Store) CleanupOldOperations(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM operation_records WHERE occurred_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup old operations: %w", err)
	}
	return res.RowsAffected()
}

// SaveAssignment persists a TaskAssignment.
func (s *Store) SaveAssignment(a model.TaskAssignment) error {
	_, err := s.db.Exec(
		`INSERT INTO assignments (id, subtask_id, agent_id, assigned_at, score) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET subtask_id=excluded.subtask_id, agent_id=excluded.agent_id,
		   assigned_at=excluded.assigned_at, score=excluded.score`,
		a.ID, a.SubTaskID, a.AgentID, a.AssignedAt.UTC(), a.Score,
	)
	if err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

// UpsertAgent persists or refreshes an AgentCapability record.
func (s *Store) UpsertAgent(a model.AgentCapability) error {
	roles, err := json.Marshal(a.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	skills, err := json.Marshal(a.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO agents (agent_id, roles, skills, max_load, current_load, last_seen) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET roles=excluded.roles, skills=excluded.skills,
		   max_load=excluded.max_load, current_load=excluded.current_load, last_seen=excluded.last_seen`,
		a.AgentID, string(roles), string(skills), a.MaxLoad, a.CurrentLoad, a.LastSeen.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// ListAgents returns all registered agents.
func (s *Store) ListAgents() ([]model.AgentCapability, error) {
	rows, err := s.db.Query(`SELECT agent_id, roles, skills, max_load, current_load, last_seen FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []model.AgentCapability
	for rows.Next() {
		var a model.AgentCapability
		var roles, skills string
		if err := rows.Scan(&a.AgentID, &roles, &skills, &a.MaxLoad, &a.CurrentLoad, &a.LastSeen); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		_ = json.Unmarshal([]byte(roles), &a.Roles)
		_ = json.Unmarshal([]byte(skills), &a.Skills)
		out = append(out, a)
	}
	return out, rows.Err()
}

// TryAcquireReviewLock inserts a review lock row if none exists for
// (repo, prNumber); returns false if already held, mirroring the
// non-blocking try-acquire semantics of ReviewLock.
func (s *Store) TryAcquireReviewLock(lock model.ReviewLock) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO review_locks (repo, pr_number, holder_id, acquired_at) VALUES (?, ?, ?, ?)`,
		lock.Repo, lock.PRNumber, lock.HolderID, lock.AcquiredAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("acquire review lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire review lock: %w", err)
	}
	return n == 1, nil
}

// ReleaseReviewLock removes a held lock.
func (s *Store) ReleaseReviewLock(repo string, prNumber int) error {
	_, err := s.db.Exec(`DELETE FROM review_locks WHERE repo = ? AND pr_number = ?`, repo, prNumber)
	if err != nil {
		return fmt.Errorf("release review lock: %w", err)
	}
	return nil
}

// SavePlan writes an ExecutionPlan both as a queryable row and as a
// human-readable JSON snapshot file, following the teacher's debounced
// JSON-store idiom (here a direct write; the fabric calls SavePlan off the
// scheduler's own goroutine, so no further debouncing is required).
func (s *Store) SavePlan(p *model.ExecutionPlan) error {
	doc, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO plans (id, issue_repo, issue_num, status, priority, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, priority=excluded.priority,
		   document=excluded.document, updated_at=excluded.updated_at`,
		p.ID, p.IssueRepo, p.IssueNum, string(p.Status), p.Priority, string(doc), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return os.WriteFile(filepath.Join(s.planDir, p.ID+".json"), doc, 0o644)
}

// LoadPlan loads an ExecutionPlan by ID from the database.
func (s *Store) LoadPlan(id string) (*model.ExecutionPlan, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM plans WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan %s: %w", id, os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	var p model.ExecutionPlan
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return &p, nil
}

// ListPlanIDs returns all known plan IDs, newest first.
func (s *Store) ListPlanIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM plans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
