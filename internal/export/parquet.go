package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"redcapetl/internal/table"
)

// ExportMergedParquet writes the merged table to
// transformed-merged_redcap-extract.parquet under Path.
func (e *Exporter) ExportMergedParquet(t *table.Table) *Exporter {
	if e.err != nil {
		return e
	}
	if t == nil {
		e.logger().Warn("no merged table; parquet export skipped")
		return e
	}
	path := filepath.Join(e.Path, MergedBaseName+".parquet")
	if err := writeParquetFile(path, t); err != nil {
		e.err = fmt.Errorf("export %s: %w", path, err)
		return e
	}
	e.logger().Info("exported table", zap.String("path", path),
		zap.Int("rows", t.Len()), zap.Int("columns", t.Width()))
	return e
}

func writeParquetFile(path string, t *table.Table) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteParquet(f, t)
}

// WriteParquet encodes t as a Parquet file with one optional string column
// per table column; missing cells are null and other cells are rendered as
// text. Parquet orders group fields by name, so the file's column order is
// sorted rather than the table's.
func WriteParquet(w io.Writer, t *table.Table) error {
	names := t.Columns()
	group := make(parquet.Group, len(names))
	for _, n := range names {
		group[n] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("redcap_extract", group)

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	pw := parquet.NewWriter(w, schema)
	rows := make([]parquet.Row, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := make(parquet.Row, len(sorted))
		for col, n := range sorted {
			v, _ := t.Value(i, n)
			if table.IsMissing(v) {
				row[col] = parquet.NullValue().Level(0, 0, col)
				continue
			}
			row[col] = parquet.ByteArrayValue([]byte(table.String(v))).Level(0, 1, col)
		}
		rows = append(rows, row)
	}
	if _, err := pw.WriteRows(rows); err != nil {
		return fmt.Errorf("parquet: write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("parquet: close: %w", err)
	}
	return nil
}
