package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"redcapetl/internal/config"
	"redcapetl/internal/metrics"

	// register all backends with the storage factory.
	_ "redcapetl/internal/storage/all"
)

// main loads the pipeline config, validates it, optionally initializes a
// metrics backend, and runs one extract.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		outDir            string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipeline.yaml", "pipeline config path (.json, .yaml or .yml)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none); overrides env METRICS_BACKEND and config")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&outDir, "out", "", "export directory (overrides export.path)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if outDir != "" {
		p.Export.Path = outDir
	}

	log, err := newLogger(p.Logging, *verbose)
	if err != nil {
		fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Error("configuration is invalid", zap.String("config", cfgPath))
		os.Exit(1)
	}
	if validate {
		log.Info("configuration is valid", zap.String("config", cfgPath))
		return
	}

	flush := setupMetrics(log, p, metricsSelection{
		backend:        metricsBackendFlg,
		pushgatewayURL: pushGatewayURLFlg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	start := time.Now()
	err = run(ctx, p, log)
	stop()
	flush()
	if err != nil {
		log.Error("extract failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("completed", zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

// metricsSelection carries the metrics flags; empty values fall back to the
// environment and then the config file.
type metricsSelection struct {
	backend        string
	pushgatewayURL string
}

// setupMetrics installs the selected backend and returns a flush func that
// is safe to call when metrics are disabled.
func setupMetrics(log *zap.Logger, p config.Pipeline, sel metricsSelection) func() {
	name := firstNonEmpty(sel.backend, os.Getenv("METRICS_BACKEND"), p.Metrics.Backend)
	b, err := newMetricsBackend(name, p, firstNonEmpty(sel.pushgatewayURL, os.Getenv("PUSHGATEWAY_URL"), p.Metrics.PushgatewayURL))
	if err != nil {
		log.Warn("metrics disabled", zap.String("backend", name), zap.Error(err))
		return func() {}
	}
	if b == nil {
		log.Debug("metrics disabled", zap.String("backend", name))
		return func() {}
	}
	log.Info("metrics enabled", zap.String("backend", name), zap.String("job", p.Job))
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush failed", zap.Error(err))
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
