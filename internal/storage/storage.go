// Package storage is vetloop's durable state layer: the content-addressed
// cache slots, the rolling metrics window, suspended-session snapshots, and
// the session log, all in a single SQLite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kberard/vetloop/internal/types"
)

// ErrNotFound is returned when a lookup has no row. Callers in the cache
// layer treat it (and any other read error) as a miss.
var ErrNotFound = errors.New("not found")

// DefaultPath is the default database location relative to the project root.
const DefaultPath = ".vetloop/vetloop.db"

// CacheEntry is one stored cache slot: a fingerprint plus the opaque payload
// computed from the fingerprinted inputs.
type CacheEntry struct {
	Key         string
	Fingerprint string
	Payload     []byte
	CreatedAt   time.Time
}

// SessionSnapshot is the persisted, resumable form of a suspended session.
type SessionSnapshot struct {
	SessionID  string
	Tier       types.Tier
	LoopIndex  int
	MaxLoops   int
	Mode       types.Mode
	Status     types.SessionStatus
	Violations types.ViolationSet
	TakenAt    time.Time
}

// LogEntry is one session log line.
type LogEntry struct {
	SessionID string
	Phase     string
	Message   string
	At        time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. WAL mode keeps
// concurrent readers safe while a writer commits; the cache swap is a single
// REPLACE so readers see either the old entry or the new one, never a blend.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a throwaway in-memory store (tests).
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetCacheEntry returns the single live entry for a logical key.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, payload, created_at FROM cache_entries WHERE key = ?`, key)

	entry := CacheEntry{Key: key}
	if err := row.Scan(&entry.Fingerprint, &entry.Payload, &entry.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading cache entry %q: %w", key, err)
	}
	return &entry, nil
}

// PutCacheEntry replaces the slot for key. Single slot per logical key:
// entries for stale fingerprints are superseded, not kept as history. The
// REPLACE is atomic and last-writer-wins.
func (s *Store) PutCacheEntry(ctx context.Context, key, fp string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, fingerprint, payload, created_at) VALUES (?, ?, ?, ?)`,
		key, fp, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing cache entry %q: %w", key, err)
	}
	return nil
}

// DeleteCacheEntry drops the slot for key (explicit refresh).
func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting cache entry %q: %w", key, err)
	}
	return nil
}

// AppendSample records one metric observation.
func (s *Store) AppendSample(ctx context.Context, sample types.MetricSample) error {
	at := sample.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metric_samples (id, metric, session_id, value, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), sample.Metric, sample.SessionID, sample.Value, at.UTC())
	if err != nil {
		return fmt.Errorf("appending sample for %s: %w", sample.Metric, err)
	}
	return nil
}

// SessionAggregates returns per-session sums of a metric for the most recent
// n sessions, ordered oldest first. This is the anomaly monitor's window.
func (s *Store) SessionAggregates(ctx context.Context, metric string, n int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT SUM(value) AS total
		FROM metric_samples
		WHERE metric = ?
		GROUP BY session_id
		ORDER BY MAX(recorded_at) DESC
		LIMIT ?`, metric, n)
	if err != nil {
		return nil, fmt.Errorf("querying aggregates for %s: %w", metric, err)
	}
	defer rows.Close()

	var recentFirst []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}
		recentFirst = append(recentFirst, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]float64, len(recentFirst))
	for i, v := range recentFirst {
		out[len(out)-1-i] = v
	}
	return out, nil
}

// PruneSamples drops samples for all but the most recent keep sessions of a
// metric. Old observations are summarized by the aggregates before pruning,
// never silently corrupted.
func (s *Store) PruneSamples(ctx context.Context, metric string, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM metric_samples
		WHERE metric = ? AND session_id NOT IN (
			SELECT session_id FROM metric_samples
			WHERE metric = ?
			GROUP BY session_id
			ORDER BY MAX(recorded_at) DESC
			LIMIT ?
		)`, metric, metric, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning samples for %s: %w", metric, err)
	}
	return res.RowsAffected()
}

// SaveSnapshot persists a resumable session snapshot (one per session).
func (s *Store) SaveSnapshot(ctx context.Context, snap SessionSnapshot) error {
	violations, err := json.Marshal(snap.Violations)
	if err != nil {
		return fmt.Errorf("encoding snapshot violations: %w", err)
	}
	at := snap.TakenAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO session_snapshots
		(session_id, tier, loop_index, max_loops, mode, status, violations, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, int(snap.Tier), snap.LoopIndex, snap.MaxLoops,
		int(snap.Mode), int(snap.Status), string(violations), at.UTC())
	if err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", snap.SessionID, err)
	}
	return nil
}

// GetSnapshot loads a session snapshot.
func (s *Store) GetSnapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tier, loop_index, max_loops, mode, status, violations, taken_at
		FROM session_snapshots WHERE session_id = ?`, sessionID)

	var (
		snap       = SessionSnapshot{SessionID: sessionID}
		tier, mode int
		status     int
		violations string
	)
	if err := row.Scan(&tier, &snap.LoopIndex, &snap.MaxLoops, &mode, &status, &violations, &snap.TakenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading snapshot for %s: %w", sessionID, err)
	}
	snap.Tier = types.Tier(tier)
	snap.Mode = types.Mode(mode)
	snap.Status = types.SessionStatus(status)
	if err := json.Unmarshal([]byte(violations), &snap.Violations); err != nil {
		return nil, fmt.Errorf("decoding snapshot violations: %w", err)
	}
	return &snap, nil
}

// LatestSuspended returns the most recently suspended session's snapshot.
func (s *Store) LatestSuspended(ctx context.Context) (*SessionSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id FROM session_snapshots
		WHERE status = ?
		ORDER BY taken_at DESC LIMIT 1`, int(types.SessionSuspended))

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding suspended session: %w", err)
	}
	return s.GetSnapshot(ctx, id)
}

// DeleteSnapshot removes a snapshot (after resume or abort).
func (s *Store) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting snapshot for %s: %w", sessionID, err)
	}
	return nil
}

// AppendLog records one phase-transition line in the running session log.
func (s *Store) AppendLog(ctx context.Context, sessionID, phase, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_log (session_id, phase, message, at) VALUES (?, ?, ?, ?)`,
		sessionID, phase, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("appending session log: %w", err)
	}
	return nil
}

// RecentLog returns the last limit log lines for a session, oldest first.
func (s *Store) RecentLog(ctx context.Context, sessionID string, limit int) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phase, message, at FROM (
			SELECT id, phase, message, at FROM session_log
			WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading session log: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		e := LogEntry{SessionID: sessionID}
		if err := rows.Scan(&e.Phase, &e.Message, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
