package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVOptions configures ReadCSV. The zero value reads comma-separated input.
type CSVOptions struct {
	// Comma is the field delimiter; ',' when zero.
	Comma rune
	// TrimSpace trims surrounding whitespace from header names.
	TrimSpace bool
}

const utf8BOM = "\uFEFF"

// ReadCSV decodes a headed CSV document. Empty cells become nil; every other
// cell is kept as text. Rows of the wrong width are padded or truncated.
func ReadCSV(r io.Reader, opt CSVOptions) (*Table, error) {
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if opt.TrimSpace {
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
	}

	var rows [][]any
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		row := make([]any, len(rec))
		for i, s := range rec {
			if s != "" {
				row[i] = s
			}
		}
		rows = append(rows, row)
	}
	return New(header, rows), nil
}
