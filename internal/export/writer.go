package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"redcapetl/internal/table"
)

// Writer writes a table as delimited text. The header and every text cell are
// double-quoted with embedded quotes doubled; numeric cells are written bare,
// floats through FloatFormat; missing cells are empty.
//
// encoding/csv only quotes when it must, so it cannot produce this layout.
type Writer struct {
	Delimiter   string
	FloatFormat string
}

// Write encodes t to w.
func (wr Writer) Write(w io.Writer, t *table.Table) error {
	delim := wr.Delimiter
	if delim == "" {
		delim = "\t"
	}
	ff := wr.FloatFormat
	if ff == "" {
		ff = "%.2f"
	}
	bw := bufio.NewWriter(w)

	for i, c := range t.Columns() {
		if i > 0 {
			bw.WriteString(delim)
		}
		writeQuoted(bw, c)
	}
	bw.WriteByte('\n')

	for r := 0; r < t.Len(); r++ {
		for i, v := range t.Row(r) {
			if i > 0 {
				bw.WriteString(delim)
			}
			writeCell(bw, v, ff)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func writeCell(bw *bufio.Writer, v any, ff string) {
	switch x := v.(type) {
	case nil:
	case float64:
		if math.IsNaN(x) {
			return
		}
		fmt.Fprintf(bw, ff, x)
	case int64:
		bw.WriteString(strconv.FormatInt(x, 10))
	case int:
		bw.WriteString(strconv.Itoa(x))
	case string:
		writeQuoted(bw, x)
	default:
		writeQuoted(bw, table.String(x))
	}
}

func writeQuoted(bw *bufio.Writer, s string) {
	bw.WriteByte('"')
	bw.WriteString(strings.ReplaceAll(s, `"`, `""`))
	bw.WriteByte('"')
}
