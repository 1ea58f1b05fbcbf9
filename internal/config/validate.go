// Package config provides configuration models and helpers for ETL pipelines.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "reports[1].transforms[0].kind").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// TransformKinds lists every transform name the interpreter understands.
var TransformKinds = []string{
	"drop_columns",
	"keep_columns",
	"append_column_suffix",
	"prepend_column_prefix",
	"remap_values_by_columns",
	"map_missing_values_by_columns",
	"drop_rows",
	"aggregate_repeat_instrument_by_index",
	"new_column_from_binary_columns_positive_class",
	"new_column_from_binary_columns_negative_class",
	"transform_values_by_column",
}

// annotationKinds need column annotations and are not meaningful post-merge
// unless given explicit parameters.
var annotationKinds = map[string]string{
	"remap_values_by_columns":              "value_map",
	"aggregate_repeat_instrument_by_index": "",
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline; callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateReports(p.Reports)...)
	issues = append(issues, validateMerge(p)...)
	issues = append(issues, validatePostMerge(p.PostMergeTransforms)...)
	issues = append(issues, validateExport(p)...)
	issues = append(issues, validateStorage(p.Storage)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	switch s.Kind {
	case "redcap":
		if strings.TrimSpace(s.REDCap.URL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.redcap.url",
				Message:  fmt.Sprintf("redcap source requires a url (or %s)", DefaultURLEnv),
			})
		}
		if strings.TrimSpace(s.REDCap.Token) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.redcap.token",
				Message:  fmt.Sprintf("redcap source requires a token; set %s", s.REDCap.TokenEnv),
			})
		}
		if s.REDCap.MaxRetries < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.redcap.max_retries",
				Message:  "max_retries must not be negative",
			})
		}
	case "file":
		if strings.TrimSpace(s.File.Dir) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.dir",
				Message:  "file source requires a non-empty dir",
			})
		}
	case "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q (want redcap or file)", s.Kind),
		})
	}
	return issues
}

func validateReports(rs []Report) []Issue {
	var issues []Issue
	if len(rs) == 0 {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "reports",
			Message:  "at least one report is required",
		})
	}
	seen := map[string]int{}
	for i, r := range rs {
		base := fmt.Sprintf("reports[%d]", i)
		if strings.TrimSpace(r.Key) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: base + ".key", Message: "report key must not be empty"})
		} else if prev, dup := seen[r.Key]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".key",
				Message:  fmt.Sprintf("duplicate report key %q (also reports[%d])", r.Key, prev),
			})
		} else {
			seen[r.Key] = i
		}
		if strings.TrimSpace(r.ReportID) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: base + ".report_id", Message: "report_id must not be empty"})
		}
		issues = append(issues, validateTransforms(base+".transforms", r.Transforms)...)
	}
	return issues
}

func validateTransforms(path string, ts []Transform) []Issue {
	var issues []Issue
	known := make(map[string]struct{}, len(TransformKinds))
	for _, k := range TransformKinds {
		known[k] = struct{}{}
	}
	for i, t := range ts {
		p := fmt.Sprintf("%s[%d].kind", path, i)
		if strings.TrimSpace(t.Kind) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: p, Message: "transform kind must not be empty"})
			continue
		}
		if _, ok := known[t.Kind]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p,
				Message:  fmt.Sprintf("unknown transform kind %q", t.Kind),
			})
		}
	}
	return issues
}

func validateMerge(p Pipeline) []Issue {
	var issues []Issue
	if len(p.Merge.Steps) == 0 {
		return append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "merge.steps",
			Message:  "no merge steps configured; no merged table will be produced",
		})
	}
	if len(p.Merge.IndexColumns) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "merge.index_columns",
			Message:  "merge requires at least one index column",
		})
	}
	keys := map[string]struct{}{}
	for _, r := range p.Reports {
		keys[r.Key] = struct{}{}
	}
	for i, s := range p.Merge.Steps {
		base := fmt.Sprintf("merge.steps[%d]", i)
		if _, ok := keys[s.Report]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".report",
				Message:  fmt.Sprintf("merge step references unknown report %q", s.Report),
			})
		}
		switch strings.ToLower(s.Options.How) {
		case "", "inner", "left", "right", "outer":
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".options.how",
				Message:  fmt.Sprintf("unknown join type %q", s.Options.How),
			})
		}
		if len(s.Options.LeftOn) != len(s.Options.RightOn) && len(s.Options.LeftOn) > 0 && len(s.Options.RightOn) > 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".options",
				Message:  "left_on and right_on must have the same length",
			})
		}
		if len(s.Options.Suffixes) != 0 && len(s.Options.Suffixes) != 2 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".options.suffixes",
				Message:  "suffixes must have exactly two entries",
			})
		}
	}
	return issues
}

func validatePostMerge(ts []Transform) []Issue {
	issues := validateTransforms("post_merge_transforms", ts)
	for i, t := range ts {
		param, ok := annotationKinds[t.Kind]
		if !ok {
			continue
		}
		if param != "" && t.Options.Has(param) {
			continue
		}
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     fmt.Sprintf("post_merge_transforms[%d]", i),
			Message:  fmt.Sprintf("%s relies on column annotations, which are not available after the merge", t.Kind),
		})
	}
	return issues
}

func validateExport(p Pipeline) []Issue {
	var issues []Issue
	if len([]rune(p.Export.Delimiter)) != 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "export.delimiter",
			Message:  "delimiter must be a single character",
		})
	}
	if !strings.Contains(p.FloatFormat, "%") {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "float_format",
			Message:  fmt.Sprintf("float_format %q is not a printf verb", p.FloatFormat),
		})
	}
	if p.MultiValueSeparator == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "multivalue_separator",
			Message:  "multivalue_separator must not be empty",
		})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return nil
	}
	known := map[string]struct{}{
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
		"duckdb":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty",
		})
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.table",
			Message:  "storage.db.table must not be empty",
		})
	}
	if s.DB.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	return issues
}
