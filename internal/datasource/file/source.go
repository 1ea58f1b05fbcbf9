// Package file implements a local filesystem source laid out as a REDCap
// export snapshot:
//
//	<dir>/metadata.json       project data dictionary
//	<dir>/report_<id>.csv     one file per report
//
// It backs offline runs and tests.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"redcapetl/internal/datasource"
	"redcapetl/internal/schema"
	"redcapetl/internal/table"
)

// MetadataFile is the name of the data dictionary within a snapshot.
const MetadataFile = "metadata.json"

// Source reads a snapshot directory.
type Source struct{ dir string }

var _ datasource.Source = (*Source)(nil)

// New returns a Source bound to dir. The directory is read lazily, so a
// Source is safe for concurrent use as long as the snapshot is not rewritten.
func New(dir string) *Source { return &Source{dir: dir} }

// ReportPath returns the file a report id is read from.
func (s *Source) ReportPath(id string) string {
	return filepath.Join(s.dir, "report_"+id+".csv")
}

// ExportSchema decodes <dir>/metadata.json.
func (s *Source) ExportSchema(ctx context.Context) ([]schema.FieldDefinition, error) {
	f, err := s.open(ctx, filepath.Join(s.dir, MetadataFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return schema.DecodeFields(f)
}

// ExportReport reads the CSV for params["report_id"]. Other parameters are
// ignored: a snapshot holds raw values only.
func (s *Source) ExportReport(ctx context.Context, params map[string]string) (*table.Table, error) {
	id := params[datasource.ParamReportID]
	if id == "" {
		return nil, errors.New("file: report_id is required")
	}
	f, err := s.open(ctx, s.ReportPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file: report %s: %w", id, datasource.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := table.ReadCSV(f, table.CSVOptions{})
	if err != nil {
		return nil, fmt.Errorf("file: report %s: %w", id, err)
	}
	return t, nil
}

// open returns the context error without touching the filesystem when ctx is
// already done. Filesystem errors keep errors.Is(err, fs.ErrNotExist).
func (s *Source) open(ctx context.Context, path string) (*os.File, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
