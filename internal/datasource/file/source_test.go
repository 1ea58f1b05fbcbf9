package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"redcapetl/internal/datasource"
)

func writeSnapshot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		MetadataFile: `[{"field_name":"record_id","form_name":"f","field_type":"text"},
{"field_name":"sex","form_name":"f","field_type":"radio","select_choices_or_calculations":"1, Male | 2, Female"}]`,
		"report_7.csv": "record_id,sex\n1,1\n2,\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// TestSource covers schema and report reads, a missing report, and a
// pre-canceled context.
func TestSource(t *testing.T) {
	t.Parallel()

	dir := writeSnapshot(t)
	src := New(dir)

	type tc struct {
		name      string
		ctx       func() context.Context
		id        string
		wantErrIs error
		wantRows  int
	}
	canceled := func() context.Context {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	cases := []tc{
		{name: "reads_report", ctx: context.Background, id: "7", wantRows: 2},
		{name: "missing_report", ctx: context.Background, id: "8", wantErrIs: datasource.ErrNotFound},
		{name: "pre_canceled_context", ctx: canceled, id: "7", wantErrIs: context.Canceled},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got, err := src.ExportReport(c.ctx(), map[string]string{datasource.ParamReportID: c.id})
			if c.wantErrIs != nil {
				if !errors.Is(err, c.wantErrIs) {
					t.Fatalf("errors.Is(%v, %v) = false", err, c.wantErrIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExportReport: %v", err)
			}
			if got.Len() != c.wantRows {
				t.Fatalf("rows = %d, want %d", got.Len(), c.wantRows)
			}
			if v, _ := got.Value(1, "sex"); v != nil {
				t.Fatalf("empty cell = %#v, want nil", v)
			}
		})
	}

	t.Run("schema", func(t *testing.T) {
		t.Parallel()
		fields, err := src.ExportSchema(context.Background())
		if err != nil {
			t.Fatalf("ExportSchema: %v", err)
		}
		if len(fields) != 2 || fields[1].Choices != "1, Male | 2, Female" {
			t.Fatalf("unexpected fields: %+v", fields)
		}
	})
}

func TestSourceMissingMetadata(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir()).ExportSchema(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}
