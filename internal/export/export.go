// Package export writes pipeline products to disk: delimited files for the
// raw, transformed and merged tables, a Parquet copy of the merged table, and
// a database sink.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"redcapetl/internal/config"
	"redcapetl/internal/pipeline"
	"redcapetl/internal/table"
)

// MergedBaseName is the file stem of the merged export.
const MergedBaseName = "transformed-merged_redcap-extract"

// Exporter writes delimited files under Path. Each Export method returns the
// exporter so calls can be chained; the first failure is kept in Err and
// turns later calls into no-ops.
type Exporter struct {
	Path        string
	Delimiter   string
	Extension   string
	FloatFormat string
	Logger      *zap.Logger

	err error
}

// New returns an Exporter configured from the export section and the run's
// float format.
func New(cfg config.Export, floatFormat string, log *zap.Logger) *Exporter {
	return &Exporter{
		Path:        cfg.Path,
		Delimiter:   cfg.Delimiter,
		Extension:   cfg.Extension,
		FloatFormat: floatFormat,
		Logger:      log,
	}
}

// Err returns the first error encountered.
func (e *Exporter) Err() error { return e.err }

// ExportRaw writes {key}_raw{ext} for every fetched report.
func (e *Exporter) ExportRaw(reports []*pipeline.Report) *Exporter {
	for _, r := range reports {
		if r.Raw == nil {
			e.logger().Warn("report not fetched; raw export skipped", zap.String("report", r.Key))
			continue
		}
		e.write(r.Key+"_raw", r.Raw)
	}
	return e
}

// ExportTransformed writes {key}_transformed{ext} for every transformed
// report.
func (e *Exporter) ExportTransformed(reports []*pipeline.Report) *Exporter {
	for _, r := range reports {
		if r.Transformed == nil {
			e.logger().Warn("report not transformed; export skipped", zap.String("report", r.Key))
			continue
		}
		e.write(r.Key+"_transformed", r.Transformed)
	}
	return e
}

// ExportMerged writes the merged table. A nil table is skipped with a warning.
func (e *Exporter) ExportMerged(t *table.Table) *Exporter {
	if t == nil {
		e.logger().Warn("no merged table; merged export skipped")
		return e
	}
	e.write(MergedBaseName, t)
	return e
}

// FilePath returns where a table with the given stem is written.
func (e *Exporter) FilePath(stem string) string {
	ext := e.Extension
	if ext == "" {
		ext = config.DefaultExtension
	}
	return filepath.Join(e.Path, stem+ext)
}

func (e *Exporter) write(stem string, t *table.Table) {
	if e.err != nil {
		return
	}
	path := e.FilePath(stem)
	if err := e.writeFile(path, t); err != nil {
		e.err = fmt.Errorf("export %s: %w", path, err)
		return
	}
	e.logger().Info("exported table", zap.String("path", path),
		zap.Int("rows", t.Len()), zap.Int("columns", t.Width()))
}

func (e *Exporter) writeFile(path string, t *table.Table) (err error) {
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
	return Writer{Delimiter: e.Delimiter, FloatFormat: e.FloatFormat}.Write(f, t)
}

func (e *Exporter) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
