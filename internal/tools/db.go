// ABOUTME: Database tool: read-only SQL queries with a cursor-level row cap.
// ABOUTME: The classifier gates every statement; writes never reach the driver.

package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/calder-labs/opsgate/internal/auth"
	"github.com/calder-labs/opsgate/internal/registry"
	"github.com/calder-labs/opsgate/internal/sandbox"
	"github.com/calder-labs/opsgate/internal/tool"
)

// DBConfig configures the query tool.
type DBConfig struct {
	Path     string // sqlite database file
	RowLimit int    // max rows returned per query
}

// dbTools holds the open handle and the row cap.
type dbTools struct {
	db       *sql.DB
	rowLimit int
}

// RegisterDB opens the database and registers the query tool. The returned
// closer releases the handle on shutdown.
func RegisterDB(reg *registry.Registry, authz *auth.Authorizer, cfg DBConfig) (io.Closer, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	t := &dbTools{db: db, rowLimit: cfg.RowLimit}

	reg.Register(tool.Definition{
		Name:        "query",
		Description: "Run a read-only SQL query against the configured database.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"sql": {"type": "string", "description": "A read-only SQL statement"}
			},
			"required": ["sql"]
		}`),
	}, t.query)
	authz.Require("query", "read:database")

	return db, nil
}

func (t *dbTools) query(ctx context.Context, args json.RawMessage) *tool.Result {
	var a struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}

	if !sandbox.IsReadOnlyQuery(a.SQL) {
		return tool.Errorf("query rejected: only read-only statements are allowed")
	}

	rows, err := t.db.QueryContext(ctx, a.SQL)
	if err != nil {
		return tool.Errorf("query failed: %s", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return tool.Errorf("query failed: %s", err)
	}

	var b strings.Builder
	fmt.Fprintln(&b, strings.Join(cols, " | "))

	// The limit is enforced while scanning the cursor, bounding memory
	// independent of the underlying table size.
	count := 0
	truncated := false
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if count >= t.rowLimit {
			truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return tool.Errorf("scanning row: %s", err)
		}
		fields := make([]string, len(values))
		for i, v := range values {
			fields[i] = formatValue(v)
		}
		fmt.Fprintln(&b, strings.Join(fields, " | "))
		count++
	}
	if err := rows.Err(); err != nil {
		return tool.Errorf("reading rows: %s", err)
	}

	fmt.Fprintf(&b, "(%d rows)", count)
	if truncated {
		fmt.Fprintf(&b, " [row limit %d reached]", t.rowLimit)
	}
	return tool.Text(b.String())
}

// formatValue renders a scanned column value for display.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
