package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ColumnDef is one column of a table to create.
type ColumnDef struct {
	Name     string
	Nullable bool
}

// TableDef describes a table whose columns all hold text. FQN may be
// schema-qualified ("public.extract").
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Dialect renders backend-specific SQL.
type Dialect struct {
	// QuoteIdent quotes one identifier segment.
	QuoteIdent func(string) string
	// TextType is the column type used for every column.
	TextType string
	// CreateTable wraps a column list into a create-if-absent statement.
	// When nil, CREATE TABLE IF NOT EXISTS is used.
	CreateTable func(fqn, quotedFQN, body string) string
	// Truncate empties a table. When nil, DELETE FROM is used.
	Truncate func(quotedFQN string) string
}

var (
	dialectMu sync.RWMutex
	dialects  = map[string]Dialect{}
)

// RegisterDDL registers the dialect for a backend kind. Backends call it from
// init next to Register.
func RegisterDDL(kind string, d Dialect) {
	dialectMu.Lock()
	defer dialectMu.Unlock()
	dialects[kind] = d
}

func dialectFor(kind string) (Dialect, error) {
	dialectMu.RLock()
	d, ok := dialects[kind]
	dialectMu.RUnlock()
	if !ok {
		return Dialect{}, fmt.Errorf("storage: no DDL registered for kind %q", kind)
	}
	return d, nil
}

// QuoteFQN quotes each segment of a possibly qualified name; empty segments
// are dropped.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, d.QuoteIdent(p))
		}
	}
	return strings.Join(out, ".")
}

// CreateTableSQL renders the create-if-absent statement for def.
func (d Dialect) CreateTableSQL(def TableDef) (string, error) {
	fqn := strings.TrimSpace(def.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(def.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	cols := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		col := d.QuoteIdent(c.Name) + " " + d.TextType
		if !c.Nullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	body := strings.Join(cols, ",\n  ")
	quoted := d.QuoteFQN(fqn)
	if d.CreateTable != nil {
		return d.CreateTable(fqn, quoted, body), nil
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", quoted, body), nil
}

// TruncateSQL renders the statement that empties fqn.
func (d Dialect) TruncateSQL(fqn string) string {
	if d.Truncate != nil {
		return d.Truncate(d.QuoteFQN(fqn))
	}
	return "DELETE FROM " + d.QuoteFQN(fqn)
}

// EnsureTable creates def through repo using the dialect registered for kind.
func EnsureTable(ctx context.Context, kind string, repo Repository, def TableDef) error {
	d, err := dialectFor(kind)
	if err != nil {
		return err
	}
	stmt, err := d.CreateTableSQL(def)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("apply DDL: %w", err)
	}
	return nil
}

// TruncateTable empties fqn through repo.
func TruncateTable(ctx context.Context, kind string, repo Repository, fqn string) error {
	d, err := dialectFor(kind)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, d.TruncateSQL(fqn))
}

// DoubleQuote is the ANSI identifier quoting shared by postgres, sqlite and
// duckdb.
func DoubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
