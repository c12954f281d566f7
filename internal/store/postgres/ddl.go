package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"strings"
)

//go:embed schema.sql
var ddlFile string

// DDLStatements returns the schema statements from schema.sql, split on
// semicolons with blank fragments dropped.
func DDLStatements() []string {
	var out []string
	for _, p := range strings.Split(ddlFile, ";") {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// EnsureSchema applies the schema to db. Statements are idempotent
// (IF NOT EXISTS) so repeated calls are safe. Used by integration tests;
// production deployments run migrations instead.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range DDLStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
