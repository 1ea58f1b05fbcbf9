// Package config defines the pipeline configuration model for the REDCap
// report ETL. A pipeline file (JSON or YAML) names the reports to pull from the
// source system, the ordered transforms applied to each, how the transformed
// reports are merged, and where results are exported.
//
// Example (trimmed):
//
//	{
//	  "job": "study-42",
//	  "source":  { "kind": "redcap", "redcap": { "url": "https://redcap.example.org/api/" } },
//	  "index_columns": ["record_id"],
//	  "reports": [
//	    { "key": "dashboard", "report_id": "242544",
//	      "transforms": [ { "kind": "remap_values_by_columns", "options": { "columns": [] } } ] }
//	  ],
//	  "merge": { "index_columns": ["record_id"], "steps": [ { "report": "dashboard" } ] },
//	  "export": { "path": "out" }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by (*Pipeline).ApplyDefaults.
const (
	DefaultMultiValueSeparator = "|"
	DefaultFloatFormat         = "%.2f"
	DefaultMissingValue        = "Value Unavailable"
	DefaultDelimiter           = "\t"
	DefaultExtension           = ".tsv"
	DefaultTokenEnv            = "REDCAP_API_KEY"
	DefaultURLEnv              = "REDCAP_API_URL"
	DefaultFetchTimeout        = 60 * time.Second
)

// DefaultIndexColumns is used when index_columns is not configured.
var DefaultIndexColumns = []string{"record_id"}

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run for logs and metrics.
	Job string `json:"job" yaml:"job"`

	Source Source `json:"source" yaml:"source"`

	// IndexColumns identify a record across reports.
	IndexColumns []string `json:"index_columns" yaml:"index_columns"`

	Reports []Report `json:"reports" yaml:"reports"`

	Merge Merge `json:"merge" yaml:"merge"`

	// PostMergeTransforms run on the merged table, without annotations.
	PostMergeTransforms []Transform `json:"post_merge_transforms" yaml:"post_merge_transforms"`

	// MultiValueSeparator joins remapped multi-choice codes.
	MultiValueSeparator string `json:"multivalue_separator" yaml:"multivalue_separator"`

	// FloatFormat is a printf verb used for numeric cells on export.
	FloatFormat string `json:"float_format" yaml:"float_format"`

	// MissingValue is the canonical label for missing cells.
	MissingValue string `json:"missing_value" yaml:"missing_value"`

	Export  Export        `json:"export" yaml:"export"`
	Storage Storage       `json:"storage" yaml:"storage"`
	Logging Logging       `json:"logging" yaml:"logging"`
	Metrics Metrics       `json:"metrics" yaml:"metrics"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// Source selects where reports come from.
type Source struct {
	// Kind is "redcap" (live API) or "file" (previously exported files).
	Kind   string       `json:"kind" yaml:"kind"`
	REDCap REDCapSource `json:"redcap" yaml:"redcap"`
	File   FileSource   `json:"file" yaml:"file"`
}

// REDCapSource configures the API client.
type REDCapSource struct {
	URL string `json:"url" yaml:"url"`
	// Token is the API token. Prefer TokenEnv to keep secrets out of files.
	Token    string `json:"token" yaml:"token"`
	TokenEnv string `json:"token_env" yaml:"token_env"`

	Timeout            Duration `json:"timeout" yaml:"timeout"`
	MaxRetries         int      `json:"max_retries" yaml:"max_retries"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// FileSource reads metadata.json and report_<id>.csv from Dir.
type FileSource struct {
	Dir string `json:"dir" yaml:"dir"`
}

// Report configures one report pulled from the source.
type Report struct {
	Key      string `json:"key" yaml:"key"`
	ReportID string `json:"report_id" yaml:"report_id"`

	// FetchParameters are passed to the export call. A few keys are pinned by
	// the pipeline because transforms rely on raw codes and raw headers.
	FetchParameters map[string]string `json:"fetch_parameters" yaml:"fetch_parameters"`

	Transforms []Transform `json:"transforms" yaml:"transforms"`
}

// Transform is one step of a transform sequence.
type Transform struct {
	// Kind names the transform (e.g. "drop_columns").
	Kind string `json:"kind" yaml:"kind"`

	// Options is interpreted by the selected transform.
	Options Options `json:"options" yaml:"options"`
}

// Merge is the ordered join plan over transformed reports.
type Merge struct {
	IndexColumns []string    `json:"index_columns" yaml:"index_columns"`
	Steps        []MergeStep `json:"steps" yaml:"steps"`
}

// MergeStep joins one report onto the accumulated result.
type MergeStep struct {
	Report  string      `json:"report" yaml:"report"`
	Options JoinOptions `json:"options" yaml:"options"`
}

// JoinOptions mirrors table.JoinOptions in configuration form.
type JoinOptions struct {
	How      string   `json:"how" yaml:"how"`
	On       []string `json:"on" yaml:"on"`
	LeftOn   []string `json:"left_on" yaml:"left_on"`
	RightOn  []string `json:"right_on" yaml:"right_on"`
	Suffixes []string `json:"suffixes" yaml:"suffixes"`
}

// Export configures file outputs.
type Export struct {
	Path        string `json:"path" yaml:"path"`
	Delimiter   string `json:"delimiter" yaml:"delimiter"`
	Extension   string `json:"extension" yaml:"extension"`
	Raw         bool   `json:"raw" yaml:"raw"`
	Transformed bool   `json:"transformed" yaml:"transformed"`
	Merged      bool   `json:"merged" yaml:"merged"`
	Parquet     bool   `json:"parquet" yaml:"parquet"`
}

// Storage selects an optional database sink for the merged table.
type Storage struct {
	// Kind is one of postgres, mssql, mysql, sqlite, duckdb. Empty disables
	// the sink.
	Kind string   `json:"kind" yaml:"kind"`
	DB   DBConfig `json:"db" yaml:"db"`
}

// DBConfig configures the database sink.
type DBConfig struct {
	// DSN is the driver connection string.
	DSN string `json:"dsn" yaml:"dsn"`

	// Table is the destination table, optionally schema-qualified.
	Table string `json:"table" yaml:"table"`

	// AutoCreateTable creates the table from the merged table's columns when
	// it does not exist.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table"`

	// Truncate empties the table before loading.
	Truncate bool `json:"truncate" yaml:"truncate"`

	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// Logging configures the zap logger built by the CLI.
type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Metrics selects a metrics backend.
type Metrics struct {
	Backend        string `json:"backend" yaml:"backend"`
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr" yaml:"datadog_addr"`
}

// RuntimeConfig bounds blocking calls.
type RuntimeConfig struct {
	// FetchTimeout bounds each schema or report export call.
	FetchTimeout Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
}

// ApplyDefaults fills zero values with the documented defaults.
func (p *Pipeline) ApplyDefaults() {
	if p.Job == "" {
		p.Job = "redcap_etl"
	}
	if p.Source.Kind == "" {
		p.Source.Kind = "redcap"
	}
	if p.Source.REDCap.TokenEnv == "" {
		p.Source.REDCap.TokenEnv = DefaultTokenEnv
	}
	if len(p.IndexColumns) == 0 {
		p.IndexColumns = append([]string(nil), DefaultIndexColumns...)
	}
	if len(p.Merge.IndexColumns) == 0 {
		p.Merge.IndexColumns = append([]string(nil), p.IndexColumns...)
	}
	if p.MultiValueSeparator == "" {
		p.MultiValueSeparator = DefaultMultiValueSeparator
	}
	if p.FloatFormat == "" {
		p.FloatFormat = DefaultFloatFormat
	}
	if p.MissingValue == "" {
		p.MissingValue = DefaultMissingValue
	}
	if p.Export.Delimiter == "" {
		p.Export.Delimiter = DefaultDelimiter
	}
	if p.Export.Extension == "" {
		p.Export.Extension = DefaultExtension
	}
	if p.Runtime.FetchTimeout <= 0 {
		p.Runtime.FetchTimeout = Duration(DefaultFetchTimeout)
	}
	for i := range p.Reports {
		if p.Reports[i].FetchParameters == nil {
			p.Reports[i].FetchParameters = map[string]string{}
		}
	}
}

// Duration is a time.Duration that decodes from "30s"-style strings or from
// a number of seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case nil:
		*d = 0
	case string:
		if x == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(x * float64(time.Second))
	case int:
		*d = Duration(time.Duration(x) * time.Second)
	default:
		return fmt.Errorf("config: invalid duration %v", v)
	}
	return nil
}
