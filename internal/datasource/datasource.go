// Package datasource defines where REDCap schemas and reports come from.
package datasource

import (
	"context"
	"errors"

	"redcapetl/internal/schema"
	"redcapetl/internal/table"
)

// ErrNotFound is returned when a requested report does not exist.
var ErrNotFound = errors.New("report not found")

// Source exports the project data dictionary and individual reports.
// Report parameters use the REDCap API names (report_id, rawOrLabel, ...).
type Source interface {
	ExportSchema(ctx context.Context) ([]schema.FieldDefinition, error)
	ExportReport(ctx context.Context, params map[string]string) (*table.Table, error)
}

// ParamReportID is the parameter naming the report to export.
const ParamReportID = "report_id"

// apiNames translates snake_case fetch parameter names to REDCap API names.
var apiNames = map[string]string{
	"raw_or_label":           "rawOrLabel",
	"raw_or_label_headers":   "rawOrLabelHeaders",
	"export_checkbox_labels": "exportCheckboxLabel",
	"export_checkbox_label":  "exportCheckboxLabel",
	"csv_delimiter":          "csvDelimiter",
	"decimal_character":      "decimalCharacter",
}

// APIParams returns params with snake_case keys translated to the names the
// REDCap API expects. Unknown keys pass through unchanged.
func APIParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if n, ok := apiNames[k]; ok {
			k = n
		}
		out[k] = v
	}
	return out
}
