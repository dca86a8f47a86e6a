// Package ratelimit implements the coordination fabric's anti-spam engine:
// per-operation-type caps, cooldowns, duplicate-content suppression and
// burst detection, adapted from original_source's engine/core/rate_limiter.py
// and restructured around a mutex-guarded in-memory mirror the way the
// teacher's internal/mcp/connection_limiter.go guards its connection counts.
package ratelimit

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/swebotic/coordfab/internal/config"
	"github.com/swebotic/coordfab/internal/errs"
	"github.com/swebotic/coordfab/internal/model"
)

// History is the persistence backend a Limiter needs: durable storage of
// operation records across restarts. *store.Store satisfies this.
type History interface {
	RecordOperation(model.OperationRecord) error
	RecentOperations(opType model.OperationType, repo string, since time.Time) ([]model.OperationRecord, error)
}

// Limiter enforces per-operation-type rate caps, global across every repo,
// matching the original's operations_by_type/last_operation_time/
// content_hashes dictionaries, which are never keyed by target. The hot
// Check/Record path never reads History -- it consults an in-memory mirror
// guarded by mu, matching the teacher's in-memory counters in
// connection_limiter.go. Record also writes each record to History, but New
// does not load History back, so after a restart the mirror starts empty and
// caps, cooldowns and duplicate windows count only operations recorded
// since. repo is still carried on each OperationRecord for
// attribution/reporting (see Stats), it just never gates a decision.
type Limiter struct {
	mu      sync.Mutex
	cfg     map[model.OperationType]config.OperationLimits
	hist    History
	records map[model.OperationType][]model.OperationRecord // opType -> records, newest last, all repos
	last    map[model.OperationType]time.Time                // opType -> last occurrence (cooldown)
	now     func() time.Time

	platformRemaining int
	platformResetAt   time.Time
	platformHeadroomFloor int
}

// platformHeadroomFloorDefault mirrors the original's hardcoded "remaining <
// 100" platform-exhaustion guard.
const platformHeadroomFloorDefault = 100

// defaultDuplicateWindowSecs/defaultMaxDuplicates mirror the original's
// RateLimitConfig.duplicate_detection_window/max_duplicate_operations and
// apply whenever an operation's configured limits leave them unset.
const (
	defaultDuplicateWindowSecs = 3600
	defaultMaxDuplicates       = 2
)

// New builds a Limiter from the configured per-operation caps.
func New(cfg config.RateLimitsConfig, hist History) *Limiter {
	limits := make(map[model.OperationType]config.OperationLimits, len(cfg.Operations))
	for k, v := range cfg.Operations {
		limits[model.OperationType(k)] = v
	}
	return &Limiter{
		cfg:                   limits,
		hist:                  hist,
		records:               make(map[model.OperationType][]model.OperationRecord),
		last:                  make(map[model.OperationType]time.Time),
		now:                   time.Now,
		platformRemaining:     -1, // -1 == never observed; treated as unlimited
		platformHeadroomFloor: platformHeadroomFloorDefault,
	}
}

// ObservePlatformLimits feeds the forge's rate-limit response headers into
// the limiter, mirroring observe_platform_limits(). Headers that fail to
// parse upstream are the caller's problem, not this method's -- this is a
// best-effort telemetry sink, never a source of errors.
func (l *Limiter) ObservePlatformLimits(remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.platformRemaining = remaining
	l.platformResetAt = resetAt
}

// Check evaluates whether opType/content is allowed right now, independent
// of repo -- caps, cooldowns, burst and duplicate detection are all global
// per operation type, matching the original's check_rate_limit() and
// SPEC_FULL.md §5 ("enforced per operation type, not per target"). repo is
// accepted for symmetry with Record and for the RateLimited error message
// only; it never gates the decision. Check does not record the operation --
// callers must call Record after the side effect actually happens, exactly
// as the original's check-then-record two-step (check_rate_limit then
// record_operation) requires.
//
// The checks run in this order, matching check_rate_limit():
//  1. platform headroom
//  2. cooldown since the last operation of this type, globally
//  3. per-minute, per-hour and per-day caps
//  4. duplicate content fingerprint within the duplicate window
//  5. burst cap within the burst window
func (l *Limiter) Check(opType model.OperationType, repo, content string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.platformRemaining >= 0 && l.platformRemaining < l.platformHeadroomFloor {
		return &errs.RateLimited{
			OpType: string(opType), CapKind: "platform_headroom",
			RetryAfter:  time.Until(l.platformResetAt).Seconds(),
			Description: fmt.Sprintf("platform headroom low (%d remaining)", l.platformRemaining),
		}
	}

	limits, ok := l.cfg[opType]
	if !ok {
		return nil // unconfigured operation types are not limited
	}

	now := l.now()
	hash := fingerprint(content)

	if last, ok := l.last[opType]; ok {
		elapsed := now.Sub(last).Seconds()
		if elapsed < limits.CooldownSecs {
			return &errs.RateLimited{
				OpType: string(opType), CapKind: "cooldown",
				RetryAfter:  limits.CooldownSecs - elapsed,
				Description: fmt.Sprintf("must wait %.1fs between %s operations", limits.CooldownSecs, opType),
			}
		}
	}

	recs := l.records[opType]

	if limits.PerMinute > 0 {
		if n := countSince(recs, now.Add(-time.Minute)); n >= limits.PerMinute {
			return &errs.RateLimited{OpType: string(opType), CapKind: "minute", RetryAfter: 60, Description: "per-minute cap exceeded"}
		}
	}
	if limits.PerHour > 0 {
		if n := countSince(recs, now.Add(-time.Hour)); n >= limits.PerHour {
			return &errs.RateLimited{OpType: string(opType), CapKind: "hour", RetryAfter: 3600, Description: "per-hour cap exceeded"}
		}
	}
	if limits.PerDay > 0 {
		if n := countSince(recs, now.Add(-24*time.Hour)); n >= limits.PerDay {
			return &errs.RateLimited{OpType: string(opType), CapKind: "day", RetryAfter: 86400, Description: "per-day cap exceeded"}
		}
	}

	if content != "" {
		dupWindow := limits.DuplicateWindowSecs
		if dupWindow <= 0 {
			dupWindow = defaultDuplicateWindowSecs
		}
		maxDup := limits.MaxDuplicates
		if maxDup <= 0 {
			maxDup = defaultMaxDuplicates
		}
		dupCutoff := now.Add(-time.Duration(dupWindow) * time.Second)
		if n := countMatchingSince(recs, hash, dupCutoff); n >= maxDup {
			return &errs.RateLimited{
				OpType: string(opType), CapKind: "duplicate",
				RetryAfter:  dupWindow,
				Description: fmt.Sprintf("identical content submitted %d times within %.0fs", n, dupWindow),
			}
		}
	}

	if limits.BurstMax > 0 {
		burstCutoff := now.Add(-time.Duration(limits.BurstWindow) * time.Second)
		count := countSince(recs, burstCutoff)
		if count >= limits.BurstMax {
			return &errs.RateLimited{
				OpType: string(opType), CapKind: "burst",
				RetryAfter:  limits.BurstWindow,
				Description: fmt.Sprintf("burst cap of %d per %.0fs exceeded", limits.BurstMax, limits.BurstWindow),
			}
		}
	}

	return nil
}

// Record logs that opType actually happened against repo with content,
// updating both the in-memory mirror and durable History. repo is kept on
// the record for attribution and Stats filtering, but Check never uses it
// to scope a cap.
func (l *Limiter) Record(opType model.OperationType, repo, content string) error {
	rec := model.OperationRecord{OpType: opType, Repo: repo, Timestamp: l.now(), ContentHash: fingerprint(content)}

	l.mu.Lock()
	l.records[opType] = append(l.records[opType], rec)
	l.last[opType] = rec.Timestamp
	l.mu.Unlock()

	if l.hist != nil {
		return l.hist.RecordOperation(rec)
	}
	return nil
}

// CleanupOlderThan drops in-memory records older than the given age,
// mirroring cleanup_old_records(); durable history retains full records
// until the caller separately prunes the store.
func (l *Limiter) CleanupOlderThan(age time.Duration) {
	cutoff := l.now().Add(-age)
	l.mu.Lock()
	defer l.mu.Unlock()
	for opType, recs := range l.records {
		kept := recs[:0]
		for _, r := range recs {
			if r.Timestamp.After(cutoff) {
				kept = append(kept, r)
			}
		}
		l.records[opType] = kept
	}
}

// Stats reports the current in-memory count of operations of opType within
// the last window, optionally filtered to repo, for dashboard/metrics
// consumption. Pass an empty repo to count across every repo.
func (l *Limiter) Stats(opType model.OperationType, repo string, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-window)
	n := 0
	for _, r := range l.records[opType] {
		if r.Timestamp.After(cutoff) && (repo == "" || r.Repo == repo) {
			n++
		}
	}
	return n
}

func countSince(recs []model.OperationRecord, cutoff time.Time) int {
	n := 0
	for _, r := range recs {
		if r.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

func countMatchingSince(recs []model.OperationRecord, hash string, cutoff time.Time) int {
	n := 0
	for _, r := range recs {
		if r.Timestamp.After(cutoff) && r.ContentHash == hash {
			n++
		}
	}
	return n
}

// fingerprint hashes content to its first 16 hex chars of SHA-256, matching
// the original's _hash_content and internal/memory/db.go's hashString.
func fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)[:16]
}
