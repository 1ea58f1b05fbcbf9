package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"redcapetl/internal/config"
	"redcapetl/internal/datasource"
	"redcapetl/internal/datasource/file"
	"redcapetl/internal/datasource/redcap"
	"redcapetl/internal/export"
	"redcapetl/internal/metrics"
	"redcapetl/internal/metrics/datadog"
	"redcapetl/internal/metrics/prompush"
	"redcapetl/internal/pipeline"
)

const defaultPushgatewayURL = "http://localhost:9091"

// run executes one extract: fetch, transform and merge every report, then
// write the configured exports and load the database sink.
func run(ctx context.Context, p config.Pipeline, log *zap.Logger) error {
	src, err := newSource(p.Source, log)
	if err != nil {
		return err
	}
	pl, err := pipeline.New(p, src, pipeline.Options{Logger: log})
	if err != nil {
		return err
	}
	if err := pl.Run(ctx); err != nil {
		return err
	}
	log = log.With(zap.String("run_id", pl.RunID()))

	ex := export.New(p.Export, p.FloatFormat, log)
	if p.Export.Raw {
		ex.ExportRaw(pl.Reports())
	}
	if p.Export.Transformed {
		ex.ExportTransformed(pl.Reports())
	}
	if p.Export.Merged {
		ex.ExportMerged(pl.Merged())
	}
	if p.Export.Parquet {
		ex.ExportMergedParquet(pl.Merged())
	}
	if err := ex.Err(); err != nil {
		return err
	}

	sink := export.Sink{Config: p.Storage, Job: p.Job, Logger: log}
	if _, err := sink.Store(ctx, pl.Merged()); err != nil {
		return err
	}
	return nil
}

func newSource(s config.Source, log *zap.Logger) (datasource.Source, error) {
	switch s.Kind {
	case "redcap":
		return redcap.New(redcap.Config{
			URL:                s.REDCap.URL,
			Token:              s.REDCap.Token,
			Timeout:            s.REDCap.Timeout.D(),
			MaxRetries:         s.REDCap.MaxRetries,
			InsecureSkipVerify: s.REDCap.InsecureSkipVerify,
			Logger:             log,
		})
	case "file":
		return file.New(s.File.Dir), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", s.Kind)
	}
}

// newMetricsBackend returns nil for "" or "none" and an error for an unknown name.
func newMetricsBackend(name string, p config.Pipeline, gwURL string) (metrics.Backend, error) {
	switch name {
	case "pushgateway":
		if gwURL == "" {
			gwURL = defaultPushgatewayURL
		}
		return prompush.NewBackend(p.Job, gwURL)
	case "datadog":
		addr := firstNonEmpty(p.Metrics.DatadogAddr, os.Getenv("DD_DOGSTATSD_URL"))
		return datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "redcap_etl.",
			GlobalTags: []string{"job:" + p.Job},
		})
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", name)
	}
}

// newLogger builds the process logger from the logging section; verbose
// forces debug level.
func newLogger(cfg config.Logging, verbose bool) (*zap.Logger, error) {
	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		zc = zap.NewDevelopmentConfig()
		zc.Development = false
	case "json":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
