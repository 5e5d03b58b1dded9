package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ormasoftchile/uirun/pkg/artifacts"
	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/browser/pwdriver"
	"github.com/ormasoftchile/uirun/pkg/config"
	"github.com/ormasoftchile/uirun/pkg/engine"
	"github.com/ormasoftchile/uirun/pkg/events"
	"github.com/ormasoftchile/uirun/pkg/generator"
	"github.com/ormasoftchile/uirun/pkg/logging"
	"github.com/ormasoftchile/uirun/pkg/resolve"
	"github.com/ormasoftchile/uirun/pkg/runstore"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// newDriver is replaced in tests.
var newDriver = func(cfg *config.Config) (browser.Driver, func() error) {
	d := pwdriver.New()
	d.InstallBrowsers = cfg.Browser.Install
	return d, d.Stop
}

// app is the process wiring shared by the commands.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	runner *engine.Runner
	runs   *runstore.Store

	closers []func() error
}

// appOptions are the per-command parts of the wiring.
type appOptions struct {
	generator generator.Generator
	// sink receives events in addition to the configured sinks.
	sink     events.Sink
	skipScan bool
	// metrics serves /metrics when the config sets an address.
	metrics bool
}

// loadConfig reads the config file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})
	if err := a.wire(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, opts appOptions) error {
	cfg := a.cfg
	sinks := events.Multi{opts.sink}

	if cfg.Events.JSONL != "" {
		w, err := events.NewFileWriter(cfg.Events.JSONL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, w.Close)
		sinks = append(sinks, w)
	}
	if cfg.Events.NATS.URL != "" {
		ns, err := events.NewNATSSink(events.NATSConfig{
			URL:           cfg.Events.NATS.URL,
			SubjectPrefix: cfg.Events.NATS.SubjectPrefix,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, ns.Close)
		sinks = append(sinks, ns)
		a.log.Info("publishing events to nats", zap.String("url", cfg.Events.NATS.URL))
	}

	var store artifacts.Store
	switch {
	case cfg.Artifacts.MinIO != nil:
		s, err := artifacts.NewMinIOStore(ctx, *cfg.Artifacts.MinIO)
		if err != nil {
			return err
		}
		store = s
	case cfg.Artifacts.Dir != "":
		s, err := artifacts.NewFileStore(cfg.Artifacts.Dir)
		if err != nil {
			return err
		}
		store = s
	}

	var runs engine.RunSaver
	if cfg.RunStore.Path != "" {
		s, err := runstore.Open(cfg.RunStore.Path)
		if err != nil {
			return err
		}
		a.runs = s
		a.closers = append(a.closers, s.Close)
		runs = s
	}

	var metrics *engine.Metrics
	if opts.metrics && cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		metrics = engine.NewMetrics(reg)
		a.serveMetrics(reg)
	}

	driver, stop := newDriver(cfg)
	a.closers = append(a.closers, stop)

	gen := opts.generator
	if gen == nil {
		gen = generator.Func(func(context.Context, generator.Request) ([]schema.StepDefinition, error) {
			return nil, errors.New("no step generator configured")
		})
	}

	r, err := engine.New(engine.Config{
		Driver:    driver,
		Generator: gen,
		Resolver:  resolve.New(resolve.WithTimeout(cfg.Resolver.StrategyTimeout), resolve.WithObserver(a.observe)),
		Sink:      sinks,
		Artifacts: store,
		Runs:      runs,
		Logger:    a.log,
		Metrics:   metrics,
		Options:   cfg.RunOptions,
		SkipScan:  opts.skipScan,
	})
	if err != nil {
		return err
	}
	a.runner = r
	return nil
}

// observe logs every resolution attempt at debug level.
func (a *app) observe(at resolve.Attempt) {
	a.log.Debug("resolve attempt",
		zap.String("strategy", at.Strategy),
		zap.Bool("matched", at.Matched),
		zap.Duration("elapsed", at.Elapsed))
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", a.cfg.Metrics.Addr))
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("shutdown", zap.Error(err))
		}
	}
	a.closers = nil
}

func requireRunStore(a *app) error {
	if a.runs == nil {
		return fmt.Errorf("%w: set runstore.path or UIRUN_RUNSTORE", runstore.ErrStoreUnavailable)
	}
	return nil
}
