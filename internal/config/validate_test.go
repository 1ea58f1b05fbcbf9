package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

// validPipeline returns a pipeline that passes validation with defaults
// applied.
func validPipeline() Pipeline {
	p := Pipeline{
		Job:    "study",
		Source: Source{Kind: "file", File: FileSource{Dir: "snapshot"}},
		Reports: []Report{
			{Key: "dashboard", ReportID: "1", Transforms: []Transform{{Kind: "drop_columns"}}},
			{Key: "visits", ReportID: "2"},
		},
		Merge: Merge{Steps: []MergeStep{{Report: "dashboard"}, {Report: "visits"}}},
	}
	p.ApplyDefaults()
	return p
}

func TestValidatePipeline_Valid(t *testing.T) {
	if issues := ValidatePipeline(validPipeline()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

/*
TestValidatePipeline_MissingJob verifies that an empty Job field produces a
SeverityError with path "job".
*/
func TestValidatePipeline_MissingJob(t *testing.T) {
	p := validPipeline()
	p.Job = ""
	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "job", "must not be empty") {
		t.Fatalf("expected job error, got %v", issues)
	}
	if !HasErrors(issues) {
		t.Fatal("HasErrors should be true")
	}
}

func TestValidatePipeline_Source(t *testing.T) {
	cases := []struct {
		name string
		src  Source
		path string
		msg  string
	}{
		{"no url", Source{Kind: "redcap", REDCap: REDCapSource{Token: "t"}}, "source.redcap.url", "requires a url"},
		{"no token", Source{Kind: "redcap", REDCap: REDCapSource{URL: "u", TokenEnv: "TOK"}}, "source.redcap.token", "set TOK"},
		{"negative retries", Source{Kind: "redcap", REDCap: REDCapSource{URL: "u", Token: "t", MaxRetries: -1}}, "source.redcap.max_retries", "negative"},
		{"file without dir", Source{Kind: "file"}, "source.file.dir", "non-empty dir"},
		{"unknown", Source{Kind: "ftp"}, "source.kind", "unknown source kind"},
		{"empty", Source{}, "source.kind", "must not be empty"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := validPipeline()
			p.Source = c.src
			if issues := ValidatePipeline(p); !hasIssue(t, issues, SeverityError, c.path, c.msg) {
				t.Fatalf("expected %s error, got %v", c.path, issues)
			}
		})
	}
}

func TestValidatePipeline_Reports(t *testing.T) {
	p := validPipeline()
	p.Reports = append(p.Reports,
		Report{Key: "dashboard", ReportID: "3"},
		Report{Key: "", ReportID: ""},
		Report{Key: "x", ReportID: "4", Transforms: []Transform{{Kind: "explode"}, {Kind: ""}}},
	)
	issues := ValidatePipeline(p)
	for _, want := range []struct{ path, msg string }{
		{"reports[2].key", `duplicate report key "dashboard" (also reports[0])`},
		{"reports[3].key", "must not be empty"},
		{"reports[3].report_id", "must not be empty"},
		{"reports[4].transforms[0].kind", `unknown transform kind "explode"`},
		{"reports[4].transforms[1].kind", "must not be empty"},
	} {
		if !hasIssue(t, issues, SeverityError, want.path, want.msg) {
			t.Errorf("missing %s: %s in %v", want.path, want.msg, issues)
		}
	}

	p.Reports = nil
	if !hasIssue(t, ValidatePipeline(p), SeverityError, "reports", "at least one") {
		t.Fatal("expected error for no reports")
	}
}

func TestValidatePipeline_Merge(t *testing.T) {
	p := validPipeline()
	p.Merge.Steps = append(p.Merge.Steps,
		MergeStep{Report: "ghost"},
		MergeStep{Report: "visits", Options: JoinOptions{How: "cross", LeftOn: []string{"a"}, RightOn: []string{"a", "b"}, Suffixes: []string{"_x"}}},
	)
	issues := ValidatePipeline(p)
	for _, want := range []struct{ path, msg string }{
		{"merge.steps[2].report", `unknown report "ghost"`},
		{"merge.steps[3].options.how", `unknown join type "cross"`},
		{"merge.steps[3].options", "same length"},
		{"merge.steps[3].options.suffixes", "exactly two"},
	} {
		if !hasIssue(t, issues, SeverityError, want.path, want.msg) {
			t.Errorf("missing %s: %s in %v", want.path, want.msg, issues)
		}
	}

	p.Merge.Steps = nil
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "merge.steps", "no merged table") || HasErrors(issues) {
		t.Fatalf("empty merge plan should only warn, got %v", issues)
	}
}

func TestValidatePipeline_PostMergeAnnotations(t *testing.T) {
	p := validPipeline()
	p.PostMergeTransforms = []Transform{
		{Kind: "remap_values_by_columns"},
		{Kind: "remap_values_by_columns", Options: Options{"value_map": map[string]any{"1": "Yes"}}},
		{Kind: "aggregate_repeat_instrument_by_index"},
	}
	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "post_merge_transforms[0]", "column annotations") {
		t.Errorf("expected warning for remap without value_map: %v", issues)
	}
	if hasIssue(t, issues, SeverityWarning, "post_merge_transforms[1]", "") {
		t.Errorf("remap with value_map should not warn: %v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "post_merge_transforms[2]", "column annotations") {
		t.Errorf("expected warning for aggregate: %v", issues)
	}
}

func TestValidatePipeline_ExportAndStorage(t *testing.T) {
	p := validPipeline()
	p.Export.Delimiter = "||"
	p.FloatFormat = "2f"
	p.Storage = Storage{Kind: "oracle", DB: DBConfig{BatchSize: -1}}
	issues := ValidatePipeline(p)
	for _, want := range []struct {
		sev  IssueSeverity
		path string
	}{
		{SeverityError, "export.delimiter"},
		{SeverityError, "float_format"},
		{SeverityWarning, "storage.kind"},
		{SeverityError, "storage.db.dsn"},
		{SeverityError, "storage.db.table"},
		{SeverityError, "storage.db.batch_size"},
	} {
		if !hasIssue(t, issues, want.sev, want.path, "") {
			t.Errorf("missing %s at %s in %v", want.sev, want.path, issues)
		}
	}
}

func TestIssueError(t *testing.T) {
	iss := Issue{Severity: SeverityError, Path: "job", Message: "bad"}
	if got := iss.Error(); got != "error at job: bad" {
		t.Fatalf("got %q", got)
	}
}
