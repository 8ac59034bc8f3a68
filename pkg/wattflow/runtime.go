package wattflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/suhail953/wattflow/internal/adapters/httpapi"
	"github.com/suhail953/wattflow/internal/adapters/journal"
	"github.com/suhail953/wattflow/internal/adapters/mirror/influx"
	"github.com/suhail953/wattflow/internal/adapters/mqtt"
	"github.com/suhail953/wattflow/internal/adapters/observability"
	"github.com/suhail953/wattflow/internal/app/health"
	"github.com/suhail953/wattflow/internal/app/pipeline"
	"github.com/suhail953/wattflow/internal/app/pubsub"
	"github.com/suhail953/wattflow/internal/ports"
)

const shutdownTimeout = 10 * time.Second

// Option customizes the dependencies used by Runtime.
type Option func(*overrides)

type overrides struct {
	store         Store
	audit         AuditSink
	mirrors       []Mirror
	transport     Transport
	noTransport   bool
	observability Observability
	logger        *slog.Logger
	registry      *prometheus.Registry
}

// WithStore injects a record store instead of the one named by store.driver.
func WithStore(s Store) Option {
	return func(o *overrides) {
		o.store = s
	}
}

// WithAuditSink replaces the daily audit journal.
func WithAuditSink(a AuditSink) Option {
	return func(o *overrides) {
		o.audit = a
	}
}

// WithMirror adds mirrors that receive every committed record.
func WithMirror(m ...Mirror) Option {
	return func(o *overrides) {
		for _, mirror := range m {
			if mirror != nil {
				o.mirrors = append(o.mirrors, mirror)
			}
		}
	}
}

// WithTransport injects a pub/sub transport instead of the one named by
// mqtt.mode. A nil transport disables the pub/sub channel.
func WithTransport(t Transport) Option {
	return func(o *overrides) {
		o.transport = t
		o.noTransport = t == nil
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) Option {
	return func(o *overrides) {
		o.observability = obs
	}
}

// WithLogger sets the slog logger used by the default adapters.
func WithLogger(l *slog.Logger) Option {
	return func(o *overrides) {
		o.logger = l
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *overrides) {
		o.registry = reg
	}
}

// Runtime wires transport → pipeline → store/audit/mirrors and exposes
// simple lifecycle hooks for embedding the ingestion service in any Go
// program.
type Runtime struct {
	cfg      *Config
	logger   *slog.Logger
	registry *prometheus.Registry
	obs      ports.Observability

	store     ports.Store
	audit     ports.AuditSink
	mirrors   []ports.Mirror
	transport ports.Transport

	pipeline *pipeline.Pipeline
	pubsub   *pubsub.Adapter
	reporter *health.Reporter

	router     http.Handler
	httpSrv    *httpapi.Server
	metricsSrv *http.Server
	metricsLn  net.Listener

	closers        []func(context.Context) error
	tracerShutdown func(context.Context) error

	group      *errgroup.Group
	groupCtx   context.Context
	stopGroup  context.CancelFunc
	started    bool
	shutdownMu sync.Mutex
	shutdown   bool
}

// NewRuntime bootstraps the default adapters (store from store.driver, daily
// journals, InfluxDB mirror when configured, broker or bridge from
// mqtt.mode, Prometheus observability). Options override any dependency.
func NewRuntime(ctx context.Context, cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	r := &Runtime{cfg: cfg}

	r.logger = o.logger
	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	r.registry = o.registry
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r.obs = o.observability
	if r.obs == nil {
		events := journal.NewEventLog(cfg.Logs.Dir)
		r.closers = append(r.closers, func(context.Context) error { return events.Close() })
		r.obs = observability.NewPromObs(r.registry, r.logger, events)
	}

	r.audit = o.audit
	if r.audit == nil {
		auditLog := journal.NewAuditLog(cfg.Logs.Dir)
		r.closers = append(r.closers, func(context.Context) error { return auditLog.Close() })
		r.audit = auditLog
	}

	r.store = o.store
	if r.store == nil {
		s, err := openStore(ctx, cfg, r.logger)
		if s == nil {
			r.closeAll(ctx)
			return nil, err
		}
		if err != nil {
			r.obs.LogError("store_unavailable", err, ports.Field{Key: "driver", Value: cfg.Store.Driver})
		}
		r.store = s
	}
	r.closers = append(r.closers, r.store.Close)

	r.mirrors = append(r.mirrors, o.mirrors...)
	if cfg.Influx.URL != "" {
		w := influx.NewWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		r.closers = append(r.closers, func(context.Context) error { w.Close(); return nil })
		r.mirrors = append(r.mirrors, w)
	}

	r.pipeline = pipeline.New(pipeline.Deps{
		Store:   r.store,
		Audit:   r.audit,
		Mirrors: r.mirrors,
		Obs:     r.obs,
	}, cfg.Policy)

	switch {
	case o.transport != nil:
		r.transport = o.transport
	case o.noTransport:
	default:
		r.transport = defaultTransport(cfg, r.logger)
	}

	var clients health.ClientCounter
	if r.transport != nil {
		r.pubsub = pubsub.NewAdapter(r.pipeline, r.obs)
		r.transport.Handle(r.pubsub)
		clients = r.pubsub
	}
	r.reporter = health.NewReporter(r.store, clients)

	r.router = httpapi.NewRouter(httpapi.Options{
		Ingester:    r.pipeline,
		Health:      r.reporter,
		Obs:         r.obs,
		BodyLimit:   cfg.HTTP.BodyLimitBytes,
		MQTTAddr:    cfg.MQTT.Addr,
		ServiceName: cfg.Tracing.ServiceName,
	})
	r.httpSrv = httpapi.NewServer(cfg.HTTP.Addr, r.router)

	return r, nil
}

// Start binds every listener and serves in the background. It returns
// immediately; call Run to block on a context instead.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	if r.started {
		return fmt.Errorf("runtime already started")
	}
	r.started = true

	if r.cfg.Tracing.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, r.cfg.Tracing.OTLPEndpoint, r.cfg.Tracing.ServiceName)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		r.tracerShutdown = shutdown
	}

	if err := r.httpSrv.Listen(); err != nil {
		return fmt.Errorf("http listen %s: %w", r.cfg.HTTP.Addr, err)
	}
	if err := r.listenMetrics(); err != nil {
		return err
	}
	if r.transport != nil {
		if err := r.transport.Start(ctx); err != nil {
			return fmt.Errorf("%s: %w", r.transport.Name(), err)
		}
	}

	groupCtx, stop := context.WithCancel(context.Background())
	r.group, r.groupCtx = errgroup.WithContext(groupCtx)
	r.stopGroup = stop

	r.group.Go(r.httpSrv.Serve)
	r.group.Go(func() error {
		if err := r.metricsSrv.Serve(r.metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	r.group.Go(func() error {
		r.probeStore(r.groupCtx, r.cfg.Store.ProbeInterval)
		return nil
	})

	r.obs.LogInfo("wattflow_started",
		ports.Field{Key: "http", Value: r.httpSrv.Addr()},
		ports.Field{Key: "metrics", Value: r.metricsLn.Addr().String()},
		ports.Field{Key: "store", Value: r.store.Name()},
		ports.Field{Key: "transport", Value: r.transportName()})
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled
// or a server fails. It then shuts down gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(err, r.Shutdown(shutdownCtx))
	}

	select {
	case <-ctx.Done():
	case <-r.groupCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the transport, drains in-flight publishes, stops the HTTP
// and metrics servers, then closes the store, mirrors and journals.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownMu.Lock()
	defer r.shutdownMu.Unlock()
	if r.shutdown {
		return nil
	}
	r.shutdown = true

	var errs []error

	if r.transport != nil && r.started {
		if err := r.transport.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s stop: %w", r.transport.Name(), err))
		}
	}
	if r.pubsub != nil {
		if err := r.pubsub.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain publishes: %w", err))
		}
	}

	if r.started {
		if err := r.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if r.metricsSrv != nil {
			if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}
	}
	if r.stopGroup != nil {
		r.stopGroup()
		if err := r.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := r.closeAll(ctx); err != nil {
		errs = append(errs, err)
	}

	if r.tracerShutdown != nil {
		if err := r.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Ingest runs one payload through the pipeline, for in-process producers.
func (r *Runtime) Ingest(ctx context.Context, payload []byte, origin Origin) Outcome {
	return r.pipeline.Ingest(ctx, payload, origin)
}

// Health builds a health snapshot.
func (r *Runtime) Health(ctx context.Context) HealthSnapshot {
	return r.reporter.Report(ctx)
}

// Handler is the HTTP API, for mounting in another server.
func (r *Runtime) Handler() http.Handler { return r.router }

// HTTPAddr is the bound HTTP address once started.
func (r *Runtime) HTTPAddr() string { return r.httpSrv.Addr() }

// MetricsAddr is the bound metrics address once started.
func (r *Runtime) MetricsAddr() string {
	if r.metricsLn != nil {
		return r.metricsLn.Addr().String()
	}
	return r.cfg.Metrics.Addr
}

// Store returns the record store in use.
func (r *Runtime) Store() Store { return r.store }

func (r *Runtime) listenMetrics() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", r.cfg.Metrics.Addr, err)
	}
	r.metricsLn = ln
	r.metricsSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// probeStore refreshes store connectivity and the resource gauges.
func (r *Runtime) probeStore(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	connected := r.store.IsConnected()
	r.recordGauges(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, r.cfg.Store.Timeout)
			err := r.store.Ping(pingCtx)
			cancel()

			now := err == nil
			if now != connected {
				if now {
					r.obs.LogInfo("store_reconnected", ports.Field{Key: "store", Value: r.store.Name()})
				} else {
					r.obs.LogError("store_disconnected", err, ports.Field{Key: "store", Value: r.store.Name()})
				}
				connected = now
			}
			r.recordGauges(ctx)
		}
	}
}

func (r *Runtime) recordGauges(ctx context.Context) {
	if r.store.IsConnected() {
		r.obs.SetGauge(ports.MetricStoreConnected, 1)
		countCtx, cancel := context.WithTimeout(ctx, r.cfg.Store.Timeout)
		if n, err := r.store.Count(countCtx); err == nil {
			r.obs.SetGauge(ports.MetricStoredRecords, float64(n))
		}
		cancel()
	} else {
		r.obs.SetGauge(ports.MetricStoreConnected, 0)
	}
	if sized, ok := r.audit.(interface{ SizeBytes() int64 }); ok {
		r.obs.SetGauge(ports.MetricAuditLogBytes, float64(sized.SizeBytes()))
	}
}

func (r *Runtime) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) transportName() string {
	if r.transport == nil {
		return "none"
	}
	return r.transport.Name()
}

func defaultTransport(cfg *Config, logger *slog.Logger) ports.Transport {
	switch cfg.MQTT.Mode {
	case MQTTEmbedded:
		return mqtt.NewBroker(cfg.MQTT.Addr, logger)
	case MQTTBridge:
		level := -1
		if cfg.MQTT.Bridge.ClientIDLevel != nil {
			level = *cfg.MQTT.Bridge.ClientIDLevel
		}
		return mqtt.NewBridge(mqtt.BridgeConfig{
			Broker:        cfg.MQTT.Bridge.Broker,
			ClientID:      cfg.MQTT.Bridge.ClientID,
			Username:      cfg.MQTT.Bridge.Username,
			Password:      cfg.MQTT.Bridge.Password,
			Topic:         cfg.MQTT.Bridge.Topic,
			QoS:           cfg.MQTT.Bridge.QoS,
			ClientIDLevel: level,
		}, logger)
	default:
		return nil
	}
}
