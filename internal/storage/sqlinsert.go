package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// InsertStatement builds a single-row INSERT using placeholder(i) for the
// i-th (0-based) bind parameter.
func InsertStatement(d Dialect, table string, columns []string, placeholder func(int) string) string {
	cols := make([]string, len(columns))
	ph := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = d.QuoteIdent(c)
		ph[i] = placeholder(i)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteFQN(table), strings.Join(cols, ", "), strings.Join(ph, ", "))
}

// QuestionMark is the "?" placeholder style.
func QuestionMark(int) string { return "?" }

// InsertTx inserts rows with a prepared statement inside one transaction;
// any failure rolls the whole batch back. It serves database/sql backends
// without a bulk-load API.
func InsertTx(ctx context.Context, db *sql.DB, stmtSQL string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("insert: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert: row %d has %d values for %d columns", i, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int64(len(rows)), nil
}
