// Package mysql is the MySQL storage backend (go-sql-driver/mysql).
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"redcapetl/internal/storage"
)

// Dialect is MySQL's DDL flavor: backtick quoting and TEXT columns.
var Dialect = storage.Dialect{
	QuoteIdent: func(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" },
	TextType:   "TEXT",
	Truncate:   func(q string) string { return "TRUNCATE TABLE " + q },
}

// Repository is a MySQL-backed storage.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

var _ storage.Repository = (*Repository)(nil)

// Open validates dsn and connects.
func Open(ctx context.Context, dsn, table string) (*Repository, error) {
	if _, err := gomysql.ParseDSN(dsn); err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Repository{db: db, table: table}, nil
}

func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	stmt := storage.InsertStatement(Dialect, r.table, columns, storage.QuestionMark)
	n, err := storage.InsertTx(ctx, r.db, stmt, columns, rows)
	if err != nil {
		return n, fmt.Errorf("mysql: %w", err)
	}
	return n, nil
}

func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mysql: exec: %w", err)
	}
	return nil
}

func (r *Repository) Close() { _ = r.db.Close() }

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN, cfg.Table)
	})
	storage.RegisterDDL("mysql", Dialect)
}
