// Package sqlitestore persists claim state and the claim attempt ledger in a
// single SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/roomkeeper/roomkeeper/pkg/claim"
)

const schema = `
CREATE TABLE IF NOT EXISTS claim_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_claim_time TEXT,
	max_hp_reached_today INTEGER NOT NULL DEFAULT 0,
	last_check_day INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS claim_attempts (
	id TEXT PRIMARY KEY,
	attempted_at TEXT NOT NULL,
	success INTEGER NOT NULL,
	max_hp_reached INTEGER NOT NULL,
	message TEXT NOT NULL,
	points TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_claim_attempts_at ON claim_attempts(attempted_at);
`

// fixed width UTC so text order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements claim.StateStore and claim.Ledger.
type Store struct {
	db *sql.DB
}

var (
	_ claim.StateStore = (*Store)(nil)
	_ claim.Ledger     = (*Store)(nil)
)

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open claim state: %w", err)
	}
	// one writer; the worker is the only client
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load returns the stored state, or the zero State when none was saved.
func (s *Store) Load(ctx context.Context) (claim.State, error) {
	var (
		last  sql.NullString
		maxHP int
		day   int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_claim_time, max_hp_reached_today, last_check_day FROM claim_state WHERE id = 1`,
	).Scan(&last, &maxHP, &day)
	if errors.Is(err, sql.ErrNoRows) {
		return claim.State{}, nil
	}
	if err != nil {
		return claim.State{}, fmt.Errorf("failed to load claim state: %w", err)
	}

	st := claim.State{MaxHPReachedToday: maxHP != 0, LastCheckDay: day}
	if last.Valid && last.String != "" {
		t, err := time.Parse(timeLayout, last.String)
		if err != nil {
			return claim.State{}, fmt.Errorf("invalid last_claim_time %q: %w", last.String, err)
		}
		st.LastClaimTime = &t
	}
	return st, nil
}

// Save upserts the single state row.
func (s *Store) Save(ctx context.Context, st claim.State) error {
	var last sql.NullString
	if st.LastClaimTime != nil {
		last = sql.NullString{String: st.LastClaimTime.UTC().Format(timeLayout), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claim_state (id, last_claim_time, max_hp_reached_today, last_check_day, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_claim_time = excluded.last_claim_time,
			max_hp_reached_today = excluded.max_hp_reached_today,
			last_check_day = excluded.last_check_day,
			updated_at = excluded.updated_at
	`, last, boolInt(st.MaxHPReachedToday), st.LastCheckDay, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save claim state: %w", err)
	}
	return nil
}

// Record appends one attempt row with a fresh id.
func (s *Store) Record(ctx context.Context, a claim.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claim_attempts (id, attempted_at, success, max_hp_reached, message, points)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), a.At.UTC().Format(timeLayout), boolInt(a.Result.Success), boolInt(a.Result.MaxHPReached),
		a.Result.Message, a.Result.Points)
	if err != nil {
		return fmt.Errorf("failed to record claim attempt: %w", err)
	}
	return nil
}

// Attempt is one ledger row.
type Attempt struct {
	ID string
	claim.Attempt
}

// Attempts returns ledger rows at or after since, oldest first.
func (s *Store) Attempts(ctx context.Context, since time.Time) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempted_at, success, max_hp_reached, message, points
		FROM claim_attempts WHERE attempted_at >= ? ORDER BY attempted_at, rowid
	`, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query claim attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a       Attempt
			at      string
			success int
			maxHP   int
		)
		if err := rows.Scan(&a.ID, &at, &success, &maxHP, &a.Result.Message, &a.Result.Points); err != nil {
			return nil, fmt.Errorf("failed to scan claim attempt: %w", err)
		}
		if a.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("invalid attempted_at %q: %w", at, err)
		}
		a.Result.Success = success != 0
		a.Result.MaxHPReached = maxHP != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
