// Package duckdb is the DuckDB storage backend, for analysts who want the
// merged extract as a local analytical database file.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"redcapetl/internal/storage"
)

// Dialect is DuckDB's DDL flavor.
var Dialect = storage.Dialect{QuoteIdent: storage.DoubleQuote, TextType: "VARCHAR"}

// Repository is a DuckDB-backed storage.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

var _ storage.Repository = (*Repository)(nil)

// Open opens the database at path; an empty path is an in-memory database.
func Open(ctx context.Context, path, table string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: ping: %w", err)
	}
	return &Repository{db: db, table: table}, nil
}

func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	stmt := storage.InsertStatement(Dialect, r.table, columns, storage.QuestionMark)
	n, err := storage.InsertTx(ctx, r.db, stmt, columns, rows)
	if err != nil {
		return n, fmt.Errorf("duckdb: %w", err)
	}
	return n, nil
}

func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("duckdb: exec: %w", err)
	}
	return nil
}

func (r *Repository) Close() { _ = r.db.Close() }

func init() {
	storage.Register("duckdb", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN, cfg.Table)
	})
	storage.RegisterDDL("duckdb", Dialect)
}
