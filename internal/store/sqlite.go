// ABOUTME: SQLite implementation of the audit store using modernc.org/sqlite.
// ABOUTME: Creates its schema on open; WAL mode for concurrent appends and reads.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements AuditStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite audit store at the given path. The
// schema is created if it doesn't exist; parent directories are created if
// needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("audit store initialized", "path", path)
	return s, nil
}

// createSchema creates the audit table if it doesn't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			tool TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_invocations_subject
			ON invocations(subject);
		CREATE INDEX IF NOT EXISTS idx_invocations_tool
			ON invocations(tool);
		CREATE INDEX IF NOT EXISTS idx_invocations_created_at
			ON invocations(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendInvocation appends an audit record, generating ID and CreatedAt if
// unset.
func (s *SQLiteStore) AppendInvocation(ctx context.Context, inv *Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invocations (id, subject, tool, outcome, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Subject, inv.Tool, inv.Outcome, inv.Reason, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending invocation: %w", err)
	}
	return nil
}

// ListInvocations returns audit records matching the filter, most recent
// first.
func (s *SQLiteStore) ListInvocations(ctx context.Context, filter InvocationFilter) ([]*Invocation, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	var conds []string
	var args []any
	if filter.Subject != nil {
		conds = append(conds, "subject = ?")
		args = append(args, *filter.Subject)
	}
	if filter.Tool != nil {
		conds = append(conds, "tool = ?")
		args = append(args, *filter.Tool)
	}
	if filter.Outcome != nil {
		conds = append(conds, "outcome = ?")
		args = append(args, *filter.Outcome)
	}

	query := "SELECT id, subject, tool, outcome, reason, created_at FROM invocations"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invocations: %w", err)
	}
	defer rows.Close()

	var result []*Invocation
	for rows.Next() {
		inv := &Invocation{}
		if err := rows.Scan(&inv.ID, &inv.Subject, &inv.Tool, &inv.Outcome, &inv.Reason, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning invocation: %w", err)
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
