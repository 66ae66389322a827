// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite.
// ABOUTME: Provides delegation/pattern/ledger persistence with automatic schema creation.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path. The schema
// is automatically created if it doesn't exist. Parent directories are
// created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS delegation_decisions (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			boss_id TEXT NOT NULL,
			user_command TEXT NOT NULL,
			selected_agent_id TEXT NOT NULL DEFAULT '',
			selected_agent_name TEXT NOT NULL DEFAULT '',
			reasoning TEXT NOT NULL DEFAULT '',
			alternative_agents TEXT NOT NULL DEFAULT '[]',
			confidence TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_boss
			ON delegation_decisions(boss_id, timestamp DESC);

		CREATE TABLE IF NOT EXISTS remembered_patterns (
			tool TEXT NOT NULL,
			pattern TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			PRIMARY KEY (tool, pattern)
		);

		CREATE TABLE IF NOT EXISTS ledger_events (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_timestamp
			ON ledger_events(timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveDelegationDecision inserts or replaces a decision row. Replacement
// happens only when a pending decision under the same id is finalized.
func (s *SQLiteStore) SaveDelegationDecision(ctx context.Context, d *DelegationDecision) error {
	alts, err := json.Marshal(d.AlternativeAgents)
	if err != nil {
		return fmt.Errorf("encoding alternatives: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO delegation_decisions
			(id, timestamp, boss_id, user_command, selected_agent_id,
			 selected_agent_name, reasoning, alternative_agents, confidence, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Timestamp.UTC(), d.BossID, d.UserCommand, d.SelectedAgentID,
		d.SelectedAgentName, d.Reasoning, string(alts), string(d.Confidence), string(d.Status),
	)
	if err != nil {
		return fmt.Errorf("saving delegation decision: %w", err)
	}
	return nil
}

// ListDelegationDecisions returns decisions for a boss, newest first.
func (s *SQLiteStore) ListDelegationDecisions(ctx context.Context, bossID string, limit int) ([]*DelegationDecision, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, boss_id, user_command, selected_agent_id,
		       selected_agent_name, reasoning, alternative_agents, confidence, status
		FROM delegation_decisions
		WHERE boss_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, bossID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying delegation decisions: %w", err)
	}
	defer rows.Close()

	var out []*DelegationDecision
	for rows.Next() {
		var d DelegationDecision
		var alts, confidence, status string
		if err := rows.Scan(&d.ID, &d.Timestamp, &d.BossID, &d.UserCommand,
			&d.SelectedAgentID, &d.SelectedAgentName, &d.Reasoning,
			&alts, &confidence, &status); err != nil {
			return nil, fmt.Errorf("scanning delegation decision: %w", err)
		}
		if err := json.Unmarshal([]byte(alts), &d.AlternativeAgents); err != nil {
			s.logger.Warn("corrupt alternative_agents column", "decision_id", d.ID, "error", err)
		}
		d.Confidence = Confidence(confidence)
		d.Status = DecisionStatus(status)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// SaveRememberedPattern persists a pattern; an existing (tool, pattern)
// pair is left untouched.
func (s *SQLiteStore) SaveRememberedPattern(ctx context.Context, p *RememberedPattern) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO remembered_patterns (tool, pattern, description, created_at)
		VALUES (?, ?, ?, ?)`,
		p.Tool, p.Pattern, p.Description, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving remembered pattern: %w", err)
	}
	return nil
}

// ListRememberedPatterns returns all patterns ordered by creation time.
func (s *SQLiteStore) ListRememberedPatterns(ctx context.Context) ([]*RememberedPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool, pattern, description, created_at
		FROM remembered_patterns
		ORDER BY created_at, tool, pattern`)
	if err != nil {
		return nil, fmt.Errorf("querying remembered patterns: %w", err)
	}
	defer rows.Close()

	var out []*RememberedPattern
	for rows.Next() {
		var p RememberedPattern
		if err := rows.Scan(&p.Tool, &p.Pattern, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning remembered pattern: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SaveEvent appends a broadcast event to the ledger.
func (s *SQLiteStore) SaveEvent(ctx context.Context, e *LedgerEvent) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_events (id, agent_id, type, payload, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.AgentID, e.Type, e.Payload, ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving ledger event: %w", err)
	}
	return nil
}

// ListEventsSince returns ledger events at or after since in timestamp order.
func (s *SQLiteStore) ListEventsSince(ctx context.Context, since time.Time, limit int) ([]*LedgerEvent, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, type, payload, timestamp
		FROM ledger_events
		WHERE timestamp >= ?
		ORDER BY timestamp
		LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger events: %w", err)
	}
	defer rows.Close()

	var out []*LedgerEvent
	for rows.Next() {
		var e LedgerEvent
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Type, &e.Payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning ledger event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
