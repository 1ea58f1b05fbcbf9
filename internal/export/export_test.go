package export

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"redcapetl/internal/config"
	"redcapetl/internal/pipeline"
	"redcapetl/internal/table"

	_ "redcapetl/internal/storage/sqlite"
)

func sample() *table.Table {
	return table.New([]string{"record_id", "say \"hi\"", "score", "visits"}, [][]any{
		{"1", "a\"b", 1.0 / 3, int64(2)},
		{"2", nil, math.NaN(), nil},
	})
}

func TestWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Writer{Delimiter: "\t", FloatFormat: "%.2f"}.Write(&buf, sample()))
	want := "\"record_id\"\t\"say \"\"hi\"\"\"\t\"score\"\t\"visits\"\n" +
		"\"1\"\t\"a\"\"b\"\t0.33\t2\n" +
		"\"2\"\t\t\t\n"
	assert.Equal(t, want, buf.String())
}

func TestWriterDefaultsAndDelimiter(t *testing.T) {
	var buf bytes.Buffer
	tb := table.New([]string{"a", "b"}, [][]any{{2.5, "x"}})
	require.NoError(t, Writer{Delimiter: ","}.Write(&buf, tb))
	assert.Equal(t, "\"a\",\"b\"\n2.50,\"x\"\n", buf.String())
}

func TestExporterFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	reports := []*pipeline.Report{
		{Key: "dashboard", Raw: sample(), Transformed: sample()},
		{Key: "visits"},
	}
	ex := New(config.Export{Path: dir, Delimiter: "\t", Extension: ".tsv"}, "%.1f", nil)
	ex.ExportRaw(reports).ExportTransformed(reports).ExportMerged(sample())
	require.NoError(t, ex.Err())

	for _, name := range []string{"dashboard_raw.tsv", "dashboard_transformed.tsv", MergedBaseName + ".tsv"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.NoFileExists(t, filepath.Join(dir, "visits_raw.tsv"))

	b, err := os.ReadFile(filepath.Join(dir, MergedBaseName+".tsv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "\t0.3\t")
}

func TestExporterNilMergedIsSkipped(t *testing.T) {
	dir := t.TempDir()
	ex := New(config.Export{Path: dir}, "", nil).ExportMerged(nil).ExportMergedParquet(nil)
	require.NoError(t, ex.Err())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExporterKeepsFirstError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	ex := New(config.Export{Path: filepath.Join(blocker, "sub")}, "", nil)
	ex.ExportMerged(sample())
	first := ex.Err()
	require.Error(t, first)

	ex.Path = dir
	ex.ExportMerged(sample())
	assert.Same(t, first, ex.Err())
	assert.NoFileExists(t, filepath.Join(dir, MergedBaseName+".tsv"))
}

func TestFilePathDefaultExtension(t *testing.T) {
	ex := &Exporter{Path: "out"}
	assert.Equal(t, filepath.Join("out", "x"+config.DefaultExtension), ex.FilePath("x"))
}

func TestWriteParquet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, sample()))

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.NumRows())

	var names []string
	for _, field := range f.Schema().Fields() {
		names = append(names, field.Name())
	}
	assert.Equal(t, []string{"record_id", "say \"hi\"", "score", "visits"}, names)

	r := parquet.NewReader(bytes.NewReader(buf.Bytes()))
	defer r.Close()
	rows := make([]parquet.Row, 2)
	n, err := r.ReadRows(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		require.NoError(t, err)
	}
	require.Equal(t, 2, n)
	assert.Equal(t, "1", rows[0][0].String())
	assert.Equal(t, "2", rows[0][3].String())
	assert.True(t, rows[1][1].IsNull())
	assert.True(t, rows[1][2].IsNull())
}

func TestExportMergedParquetFile(t *testing.T) {
	dir := t.TempDir()
	ex := New(config.Export{Path: dir}, "", nil).ExportMergedParquet(sample())
	require.NoError(t, ex.Err())
	assert.FileExists(t, filepath.Join(dir, MergedBaseName+".parquet"))
}

func TestSinkStoresIntoSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "extract.db")
	sink := Sink{Job: "test", Config: config.Storage{
		Kind: "sqlite",
		DB: config.DBConfig{
			DSN:             "file:" + path,
			Table:           "extract",
			AutoCreateTable: true,
			Truncate:        true,
			BatchSize:       1,
		},
	}}

	n, err := sink.Store(ctx, sample())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	// Truncate makes a second load replace the first.
	_, err = sink.Store(ctx, sample())
	require.NoError(t, err)

	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extract`).Scan(&count))
	assert.Equal(t, 2, count)

	var say sql.NullString
	var score sql.NullString
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT say_hi, score FROM extract WHERE record_id = '1'`).Scan(&say, &score))
	assert.Equal(t, "a\"b", say.String)
	assert.Equal(t, "0.3333333333333333", score.String)

	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT score FROM extract WHERE record_id = '2'`).Scan(&score))
	assert.False(t, score.Valid)
}

func TestSinkDisabled(t *testing.T) {
	n, err := Sink{}.Store(context.Background(), sample())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = Sink{Config: config.Storage{Kind: "sqlite"}}.Store(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSinkUnknownKind(t *testing.T) {
	_, err := Sink{Config: config.Storage{Kind: "oracle", DB: config.DBConfig{Table: "t"}}}.Store(context.Background(), sample())
	assert.ErrorContains(t, err, "unknown kind")
}
