package usage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/noesis-labs/noesis/pkg/schema"
)

// LibSQLLedger keeps the usage ledger in an embedded libSQL database.
type LibSQLLedger struct {
	db *sql.DB
}

// migration holds a versioned SQL migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{Version: 1, Name: "usage_ledger", SQL: `
		CREATE TABLE IF NOT EXISTS usage_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			total_tokens INTEGER NOT NULL,
			cost_estimate REAL NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_usage_ledger_created ON usage_ledger (created_at);
		CREATE INDEX IF NOT EXISTS idx_usage_ledger_identity ON usage_ledger (identity);
	`},
}

// NewLibSQLLedger opens the database at dbPath, applies connection PRAGMAs
// and runs pending migrations. The path should be a file URI, e.g.
// "file:/path/to/usage.db".
func NewLibSQLLedger(ctx context.Context, dbPath string) (*LibSQLLedger, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "open libsql at %s: %s", dbPath, err.Error()).WithCause(err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	l := &LibSQLLedger{db: db}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, schema.NewErrorf(schema.ErrCodeStore, "migrate usage ledger: %s", err.Error()).WithCause(err)
	}
	return l, nil
}

func (l *LibSQLLedger) migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		for _, stmt := range splitStatements(m.SQL) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var stmts []string
	for _, raw := range strings.Split(script, ";") {
		s := strings.TrimSpace(raw)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func (l *LibSQLLedger) Record(ctx context.Context, entry *Entry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage_ledger (identity, input_tokens, output_tokens, total_tokens, cost_estimate, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Identity, entry.InputTokens, entry.OutputTokens, entry.TotalTokens, entry.CostEstimate, created,
	)
	return err
}

// PurgeBefore deletes entries older than cutoff and reports how many rows
// were removed.
func (l *LibSQLLedger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM usage_ledger WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TotalsSince aggregates tokens and cost for one identity since the given
// time. Used by tests and ad-hoc inspection.
func (l *LibSQLLedger) TotalsSince(ctx context.Context, identity string, since time.Time) (tokens int64, cost float64, err error) {
	err = l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_estimate), 0)
		 FROM usage_ledger WHERE identity = ? AND created_at >= ?`,
		identity, since,
	).Scan(&tokens, &cost)
	return tokens, cost, err
}

func (l *LibSQLLedger) Close() error { return l.db.Close() }
