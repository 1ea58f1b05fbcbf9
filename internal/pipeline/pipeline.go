// Package pipeline runs the report ETL: fetch each configured report, annotate
// it from the project schema, fold its transforms, merge the results and run
// the post-merge transforms.
//
// A Pipeline runs on a single goroutine. Reports are processed in configured
// order and the first failure aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"redcapetl/internal/config"
	"redcapetl/internal/datasource"
	"redcapetl/internal/metrics"
	"redcapetl/internal/schema"
	"redcapetl/internal/table"
	"redcapetl/internal/transformer"
	"redcapetl/internal/transformer/builtin"
)

// pinnedParameters are always sent with a report export, whatever the
// configuration says: transforms expect raw codes and raw headers.
var pinnedParameters = map[string]string{
	"rawOrLabel":          "raw",
	"rawOrLabelHeaders":   "raw",
	"exportCheckboxLabel": "false",
}

// Options configures a Pipeline beyond its config file.
type Options struct {
	Logger *zap.Logger
	// FetchTimeout overrides runtime.fetch_timeout when positive.
	FetchTimeout time.Duration
}

// Pipeline holds the configured reports and the products of the last run.
type Pipeline struct {
	job          string
	src          datasource.Source
	log          *zap.Logger
	fetchTimeout time.Duration

	settings transformer.Settings
	reports  []*Report
	byKey    map[string]*Report
	merge    MergeSpec
	post     transformer.Chain

	runID  string
	merged *table.Table
}

// New validates the wiring of cfg and builds every transform up front, so an
// unknown transform or merge reference fails before anything is fetched.
func New(cfg config.Pipeline, src datasource.Source, opts Options) (*Pipeline, error) {
	if src == nil {
		return nil, fmt.Errorf("pipeline: source is required")
	}
	cfg.ApplyDefaults()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Runtime.FetchTimeout.D()
	if opts.FetchTimeout > 0 {
		timeout = opts.FetchTimeout
	}

	p := &Pipeline{
		job:          cfg.Job,
		src:          src,
		log:          log,
		fetchTimeout: timeout,
		settings: transformer.Settings{
			Separator:    cfg.MultiValueSeparator,
			Missing:      schema.NewMissing(cfg.MissingValue),
			IndexColumns: append([]string(nil), cfg.IndexColumns...),
		},
		byKey: make(map[string]*Report, len(cfg.Reports)),
		merge: NewMergeSpec(cfg.Merge),
	}

	for _, rc := range cfg.Reports {
		if _, dup := p.byKey[rc.Key]; dup {
			return nil, fmt.Errorf("pipeline: duplicate report key %q", rc.Key)
		}
		chain, err := builtin.BuildChain(rc.Transforms)
		if err != nil {
			return nil, fmt.Errorf("pipeline: report %q: %w", rc.Key, err)
		}
		params := make(map[string]string, len(rc.FetchParameters))
		for k, v := range rc.FetchParameters {
			params[k] = v
		}
		r := &Report{Key: rc.Key, ReportID: rc.ReportID, FetchParameters: params, chain: chain}
		p.reports = append(p.reports, r)
		p.byKey[rc.Key] = r
	}

	for i, s := range p.merge.Steps {
		if _, ok := p.byKey[s.Report]; !ok {
			return nil, fmt.Errorf("pipeline: merge step %d: %w: %q", i, ErrUnknownReport, s.Report)
		}
	}

	post, err := builtin.BuildChain(cfg.PostMergeTransforms)
	if err != nil {
		return nil, fmt.Errorf("pipeline: post-merge: %w", err)
	}
	p.post = post
	return p, nil
}

// RunID identifies the most recent run; empty before the first.
func (p *Pipeline) RunID() string { return p.runID }

// Report returns the report configured under key.
func (p *Pipeline) Report(key string) (*Report, error) {
	r, ok := p.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, key)
	}
	return r, nil
}

// Reports returns every report in configured order.
func (p *Pipeline) Reports() []*Report {
	return append([]*Report(nil), p.reports...)
}

// Merged returns the merged, post-transformed table of the last run, or nil
// when the merge plan is empty or no run has completed.
func (p *Pipeline) Merged() *table.Table { return p.merged }

// Run executes one full pass. The schema is exported once and shared by all
// reports.
func (p *Pipeline) Run(ctx context.Context) error {
	p.runID = uuid.NewString()
	log := p.log.With(zap.String("job", p.job), zap.String("run_id", p.runID))
	start := time.Now()
	log.Info("run started", zap.Int("reports", len(p.reports)))

	err := p.run(ctx, log)
	metrics.RecordStep(p.job, "", "run", err, time.Since(start))
	if err != nil {
		log.Error("run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return err
	}
	log.Info("run finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Rerun discards every product of the previous run and runs again.
func (p *Pipeline) Rerun(ctx context.Context) error {
	for _, r := range p.reports {
		r.reset()
	}
	p.merged = nil
	return p.Run(ctx)
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger) error {
	fields, err := p.exportSchema(ctx, log)
	if err != nil {
		return err
	}
	extractor := schema.NewExtractor(p.settings.Missing, log)

	for _, r := range p.reports {
		if err := p.fetch(ctx, log, r); err != nil {
			return err
		}
		p.annotate(log, extractor, fields, r)
		if err := p.transform(log, r); err != nil {
			return err
		}
	}

	start := time.Now()
	merged, err := Merge(p.merge, p.transformedTable, log.With(zap.String("stage", StageMerge)))
	metrics.RecordStep(p.job, "", StageMerge, err, time.Since(start))
	if err != nil {
		return err
	}
	if merged == nil {
		return nil
	}
	metrics.RecordRows(p.job, "", StageMerge, merged.Len())

	start = time.Now()
	env := transformer.Env{Logger: log, Settings: p.settings}
	out, err := p.post.Apply(env, merged)
	metrics.RecordStep(p.job, "", StagePostMerge, err, time.Since(start))
	if err != nil {
		return stageErr("", StagePostMerge, err)
	}
	p.merged = out
	log.Info("merged reports", zap.Int("rows", out.Len()), zap.Int("columns", out.Width()))
	return nil
}

func (p *Pipeline) exportSchema(ctx context.Context, log *zap.Logger) ([]schema.FieldDefinition, error) {
	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	fields, err := p.src.ExportSchema(fctx)
	metrics.RecordStep(p.job, "", StageSchema, err, time.Since(start))
	if err != nil {
		return nil, stageErr("", StageSchema, err)
	}
	log.Debug("exported schema", zap.Int("fields", len(fields)))
	return fields, nil
}

func (p *Pipeline) fetch(ctx context.Context, log *zap.Logger, r *Report) error {
	params := p.fetchParameters(log, r)
	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	raw, err := p.src.ExportReport(fctx, params)
	metrics.RecordStep(p.job, r.Key, StageFetch, err, time.Since(start))
	if err != nil {
		return stageErr(r.Key, StageFetch, err)
	}
	r.Raw = raw
	r.State = Fetched
	metrics.RecordRows(p.job, r.Key, StageFetch, raw.Len())
	log.Info("fetched report",
		zap.String("report", r.Key), zap.String("report_id", r.ReportID),
		zap.Int("rows", raw.Len()), zap.Int("columns", raw.Width()))
	return nil
}

// fetchParameters merges the configured options with the pinned ones; pinned
// values win and an overridden user value is logged.
func (p *Pipeline) fetchParameters(log *zap.Logger, r *Report) map[string]string {
	params := datasource.APIParams(r.FetchParameters)
	for k, v := range pinnedParameters {
		if uv, ok := params[k]; ok && uv != v {
			log.Warn("fetch parameter overridden",
				zap.String("report", r.Key), zap.String("parameter", k),
				zap.String("configured", uv), zap.String("used", v))
		}
		params[k] = v
	}
	params[datasource.ParamReportID] = r.ReportID
	return params
}

func (p *Pipeline) annotate(log *zap.Logger, ex schema.Extractor, fields []schema.FieldDefinition, r *Report) {
	start := time.Now()
	ex.Logger = log.With(zap.String("report", r.Key))
	r.Annotations = ex.Extract(fields, r.Raw.Columns())
	r.State = Annotated
	metrics.RecordStep(p.job, r.Key, StageAnnotate, nil, time.Since(start))
}

func (p *Pipeline) transform(log *zap.Logger, r *Report) error {
	start := time.Now()
	env := transformer.Env{
		Logger:      log,
		Report:      r.Key,
		Annotations: r.Annotations,
		Settings:    p.settings,
	}
	out, err := r.chain.Apply(env, r.Raw)
	metrics.RecordStep(p.job, r.Key, StageTransform, err, time.Since(start))
	if err != nil {
		return stageErr(r.Key, StageTransform, err)
	}
	r.Transformed = out
	r.State = Transformed
	metrics.RecordRows(p.job, r.Key, StageTransform, out.Len())
	log.Debug("transformed report",
		zap.String("report", r.Key), zap.Int("steps", len(r.chain)),
		zap.Int("rows", out.Len()), zap.Int("columns", out.Width()))
	return nil
}

func (p *Pipeline) transformedTable(key string) (*table.Table, error) {
	r, err := p.Report(key)
	if err != nil {
		return nil, err
	}
	if r.State != Transformed {
		return nil, fmt.Errorf("report %q is %s, not transformed", key, r.State)
	}
	return r.Transformed, nil
}
