// Package app is the composition root: it builds every component from a
// configuration and owns their start and stop order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/arsession/internal/analytics"
	"git.home.luguber.info/inful/arsession/internal/capability"
	"git.home.luguber.info/inful/arsession/internal/config"
	"git.home.luguber.info/inful/arsession/internal/diagnostics"
	"git.home.luguber.info/inful/arsession/internal/events"
	"git.home.luguber.info/inful/arsession/internal/eventstore"
	"git.home.luguber.info/inful/arsession/internal/logfields"
	"git.home.luguber.info/inful/arsession/internal/metrics"
	"git.home.luguber.info/inful/arsession/internal/observability"
	"git.home.luguber.info/inful/arsession/internal/performance"
	"git.home.luguber.info/inful/arsession/internal/retry"
	"git.home.luguber.info/inful/arsession/internal/session"
	"git.home.luguber.info/inful/arsession/internal/tracking"
)

// Status is the lifecycle status of the application.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

const (
	busBuffer         = 64
	metricsReadHeader = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// App owns the session controller, the performance monitor and their
// supporting infrastructure.
type App struct {
	mu     sync.Mutex
	status atomic.Value

	cfg      *config.Config
	clock    clockwork.Clock
	logLevel *slog.LevelVar

	bus        *events.Bus
	registry   *prom.Registry
	recorder   *metrics.PrometheusRecorder
	tracer     *observability.TracerProvider
	resolver   *capability.Resolver
	analyzer   *tracking.Analyzer
	monitor    *performance.Monitor
	controller *session.Controller

	dispatcher *analytics.Dispatcher
	store      eventstore.Store
	projection *eventstore.SessionHistoryProjection

	metricsServer *http.Server
	watcher       *config.ConfigWatcher

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe []func()
	closed      bool
}

// Option configures an App.
type Option func(*App)

// WithClock injects the clock shared by every component.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithLogLevel lets configuration reloads adjust the level of the default logger.
func WithLogLevel(level *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = level }
}

// New builds the application for cfg around the given engine and metrics
// source. Analytics sinks that cannot be reached are logged and skipped.
func New(ctx context.Context, cfg *config.Config, engine session.Engine, source performance.Source, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	a := &App{
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		bus:      events.NewBus(),
		registry: prom.NewRegistry(),
		tracer:   observability.NewTracerProvider(),
	}
	a.status.Store(StatusStopped)
	for _, opt := range opts {
		opt(a)
	}

	a.registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	a.recorder = metrics.NewPrometheusRecorder(a.registry)

	caps, err := capability.FromDeviceConfig(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("device capabilities: %w", err)
	}
	requested, err := capability.FromConfig(cfg.Session.Options)
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	a.resolver = capability.NewResolver(caps)

	a.analyzer = tracking.NewAnalyzer(
		tracking.WithClock(a.clock),
		tracking.WithCapacity(cfg.Tracking.HistoryCapacity),
		tracking.WithTrendWindow(cfg.Tracking.TrendWindow.Duration()),
		tracking.WithIssueWindow(cfg.Tracking.IssueWindow),
	)

	a.controller = session.NewController(engine, a.resolver,
		session.WithClock(a.clock),
		session.WithPolicy(retry.FromConfig(cfg.Session)),
		session.WithAnalyzer(a.analyzer),
		session.WithRecorder(a.recorder),
		session.WithPublisher(a.bus),
		session.WithTracer(a.tracer),
		session.WithRequestedOptions(requested),
	)

	a.monitor = performance.NewMonitor(source, cfg.Thresholds(),
		performance.WithClock(a.clock),
		performance.WithInterval(cfg.Performance.SampleInterval.Duration()),
		performance.WithCapacity(cfg.Performance.HistoryCapacity),
		performance.WithPublisher(a.bus),
		performance.WithRecorder(a.recorder),
		performance.WithQualityProvider(a.controller.Quality),
	)

	if cfg.Analytics.Enabled {
		a.dispatcher = analytics.NewDispatcher(cfg.Analytics.BufferSize, a.analyticsSinks(ctx), analytics.WithRecorder(a.recorder))
	}

	slog.Info("Application assembled",
		logfields.Environment(string(cfg.Environment)),
		slog.String("device_profile", cfg.Device.Profile),
		slog.Bool("analytics", cfg.Analytics.Enabled),
		slog.Bool("metrics", cfg.Metrics.Enabled))
	return a, nil
}

func (a *App) analyticsSinks(ctx context.Context) []analytics.Sink {
	sinks := []analytics.Sink{analytics.NewLogSink(slog.Default())}

	if path := a.cfg.Analytics.StorePath; path != "" {
		store, err := eventstore.NewSQLiteStore(path)
		if err != nil {
			slog.Warn("Analytics event store unavailable", slog.String("path", path), logfields.Error(err))
		} else {
			a.store = store
			a.projection = eventstore.NewSessionHistoryProjection(store, config.DefaultHistoryCapacity)
			if err := a.projection.Rebuild(ctx); err != nil {
				slog.Warn("Session history rebuild failed", logfields.Error(err))
			}
			sinks = append(sinks, analytics.NewStoreSink(store, a.projection))
		}
	}

	if a.cfg.Analytics.NATS.URL != "" {
		sink, err := analytics.NewNATSSink(ctx, a.cfg.Analytics.NATS)
		if err != nil {
			slog.Warn("NATS analytics sink unavailable", slog.String("url", a.cfg.Analytics.NATS.URL), logfields.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// Start launches the analytics pipeline, the optimization subscription, the
// performance monitor and the metrics endpoint. The session itself is
// started with StartSession.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("application closed")
	}
	if a.GetStatus() != StatusStopped {
		return fmt.Errorf("application is %s", a.GetStatus())
	}
	a.status.Store(StatusStarting)

	runCtx, cancel := context.WithCancel(observability.WithComponent(ctx, "app"))
	a.cancel = cancel

	if a.dispatcher != nil {
		// Delivery outlives runCtx so Stop can drain the queue.
		a.dispatcher.Start(context.WithoutCancel(runCtx))
		ch, unsubscribe := events.Subscribe[events.Event](a.bus, busBuffer)
		a.unsubscribe = append(a.unsubscribe, unsubscribe)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.dispatcher.Consume(runCtx, ch, a.controller.SessionID)
		}()
	}

	optimizations, unsubscribe := events.Subscribe[events.OptimizationsChanged](a.bus, busBuffer)
	a.unsubscribe = append(a.unsubscribe, unsubscribe)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.applyOptimizations(runCtx, optimizations)
	}()

	if err := a.monitor.Start(runCtx); err != nil {
		a.abortStartLocked()
		return fmt.Errorf("start performance monitor: %w", err)
	}

	if a.cfg.Metrics.Enabled && a.cfg.Metrics.ListenAddr != "" {
		if err := a.startMetricsServerLocked(); err != nil {
			_ = a.monitor.Stop()
			a.abortStartLocked()
			return err
		}
	}

	a.status.Store(StatusRunning)
	slog.Info("Application started", slog.Duration("sample_interval", a.monitor.Interval()))
	return nil
}

func (a *App) abortStartLocked() {
	for _, u := range a.unsubscribe {
		u()
	}
	a.unsubscribe = nil
	a.cancel()
	a.wg.Wait()
	a.status.Store(StatusStopped)
}

// applyOptimizations hands every directive change to the session controller.
func (a *App) applyOptimizations(ctx context.Context, ch <-chan events.OptimizationsChanged) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			a.controller.ApplyOptimizations(performance.ParseDirectiveSet(evt.Active))
		}
	}
}

func (a *App) startMetricsServerLocked() error {
	ln, err := net.Listen("tcp", a.cfg.Metrics.ListenAddr)
	if err != nil {
		return fmt.Errorf("metrics listener on %s: %w", a.cfg.Metrics.ListenAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(a.registry))
	a.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeader}

	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	slog.Info("Metrics endpoint listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// StartSession starts the AR session and waits for tracking to be confirmed.
func (a *App) StartSession(ctx context.Context) error {
	return a.controller.Start(ctx)
}

// WatchConfig reloads thresholds and the log level whenever path changes.
func (a *App) WatchConfig(ctx context.Context, path string) error {
	w, err := config.NewConfigWatcher(path, a.Reload)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	a.mu.Lock()
	a.watcher = w
	a.mu.Unlock()
	return nil
}

// Reload applies the reloadable parts of cfg: performance thresholds and the
// log level. Session options take effect on the next start.
func (a *App) Reload(ctx context.Context, cfg *config.Config) error {
	if err := a.monitor.SetThresholds(cfg.Thresholds()); err != nil {
		return fmt.Errorf("apply thresholds: %w", err)
	}
	if a.logLevel != nil {
		a.logLevel.Set(cfg.Logging.Level.SlogLevel())
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	observability.InfoContext(ctx, "Configuration reloaded",
		logfields.Environment(string(cfg.Environment)),
		slog.String("log_level", string(cfg.Logging.Level)))
	return nil
}

// Stop shuts components down in reverse start order. Queued analytics are
// delivered before the sinks close. An App is not restartable after Stop.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.status.Store(StatusStopping)
	slog.Info("Stopping application")

	var errs []error
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop config watcher: %w", err))
		}
		a.watcher = nil
	}
	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
		cancel()
		a.metricsServer = nil
	}
	if err := a.monitor.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop performance monitor: %w", err))
	}

	// Consumers keep draining the bus while the controller flushes its
	// notifications; closed subscriptions are read to the end.
	a.controller.Close()

	for _, u := range a.unsubscribe {
		u()
	}
	a.unsubscribe = nil
	a.wg.Wait()
	if a.cancel != nil {
		a.cancel()
	}

	if a.dispatcher != nil {
		if err := a.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close analytics: %w", err))
		}
	}
	a.bus.Close()

	a.status.Store(StatusStopped)
	slog.Info("Application stopped")
	return errors.Join(errs...)
}

// GetStatus returns the lifecycle status.
func (a *App) GetStatus() Status {
	if s, ok := a.status.Load().(Status); ok {
		return s
	}
	return StatusStopped
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Monitor returns the performance monitor.
func (a *App) Monitor() *performance.Monitor { return a.monitor }

// Analyzer returns the tracking quality analyzer.
func (a *App) Analyzer() *tracking.Analyzer { return a.analyzer }

// Bus returns the notification bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Registry returns the Prometheus registry backing the metrics endpoint.
func (a *App) Registry() *prom.Registry { return a.registry }

// Dispatcher returns the analytics dispatcher, or nil when analytics are disabled.
func (a *App) Dispatcher() *analytics.Dispatcher { return a.dispatcher }

// History returns the persisted session summaries, newest first. It is empty
// without an event store.
func (a *App) History() []eventstore.SessionSummary {
	if a.projection == nil {
		return nil
	}
	return a.projection.GetHistory()
}

// Diagnostics collects a snapshot of every component.
func (a *App) Diagnostics() diagnostics.Snapshot {
	c := &diagnostics.Collector{
		Session:      a.controller,
		Tracking:     a.analyzer,
		Performance:  a.monitor,
		Capabilities: a.resolver,
		Clock:        a.clock,
	}
	return c.Snapshot()
}
