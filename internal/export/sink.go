package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"redcapetl/internal/config"
	"redcapetl/internal/metrics"
	"redcapetl/internal/storage"
	"redcapetl/internal/table"
)

// Sink loads a table into the configured database. Column names are
// sanitized into portable identifiers and every cell is stored as text.
type Sink struct {
	Config config.Storage
	Job    string
	Logger *zap.Logger
}

// Store writes t and returns the number of rows the backend reported. An
// empty storage kind disables the sink.
func (s Sink) Store(ctx context.Context, t *table.Table) (int64, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if s.Config.Kind == "" {
		return 0, nil
	}
	if t == nil {
		log.Warn("no merged table; database load skipped")
		return 0, nil
	}

	start := time.Now()
	n, err := s.store(ctx, t, log)
	metrics.RecordStep(s.Job, "", "store", err, time.Since(start))
	if err != nil {
		return n, fmt.Errorf("store %s %s: %w", s.Config.Kind, s.Config.DB.Table, err)
	}
	metrics.RecordRows(s.Job, "", "store", int(n))
	log.Info("stored merged table",
		zap.String("kind", s.Config.Kind), zap.String("table", s.Config.DB.Table),
		zap.Int64("rows", n), zap.Duration("elapsed", time.Since(start)))
	return n, nil
}

func (s Sink) store(ctx context.Context, t *table.Table, log *zap.Logger) (int64, error) {
	db := s.Config.DB
	repo, err := storage.New(ctx, storage.Config{Kind: s.Config.Kind, DSN: db.DSN, Table: db.Table})
	if err != nil {
		return 0, err
	}
	defer repo.Close()

	columns := storage.SanitizeColumns(t.Columns())
	if db.AutoCreateTable {
		def := storage.TableDef{FQN: db.Table, Columns: make([]storage.ColumnDef, len(columns))}
		for i, c := range columns {
			def.Columns[i] = storage.ColumnDef{Name: c, Nullable: true}
		}
		if err := storage.EnsureTable(ctx, s.Config.Kind, repo, def); err != nil {
			return 0, err
		}
	}
	if db.Truncate {
		if err := storage.TruncateTable(ctx, s.Config.Kind, repo, db.Table); err != nil {
			return 0, fmt.Errorf("truncate: %w", err)
		}
	}
	return storage.LoadBatches(ctx, columns, Rows(t), db.BatchSize, repo.CopyFrom, log)
}

// Rows renders t as text rows for a database load; missing cells are nil.
func Rows(t *table.Table) [][]any {
	names := t.Columns()
	rows := make([][]any, t.Len())
	for i := range rows {
		row := make([]any, len(names))
		for j, n := range names {
			v, _ := t.Value(i, n)
			if !table.IsMissing(v) {
				row[j] = table.String(v)
			}
		}
		rows[i] = row
	}
	return rows
}
