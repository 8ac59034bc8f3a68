package observability

import (
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/suhail953/wattflow/internal/adapters/journal"
	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

// PromObs exports counters and gauges to Prometheus, writes structured logs
// through slog and mirrors log lines into the daily event journal.
type PromObs struct {
	logger   *slog.Logger
	events   *journal.EventLog
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
	rejected *prometheus.CounterVec
}

// NewPromObs registers the service metrics on reg. A nil reg uses the
// default registerer, a nil logger uses slog.Default() and a nil events
// journal disables event lines.
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger, events *journal.EventLog) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	committed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricRecordsCommitted,
		Help: "Records durably written to the store.",
	})
	samples := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSamplesIngested,
		Help: "Samples contained in committed records.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricIngestFailed,
		Help: "Valid batches that could not be stored.",
	})
	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricAuditFailures,
		Help: "Audit journal appends that failed.",
	})
	mirrorFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricMirrorFailures,
		Help: "Mirror writes that failed after a successful store.",
	})
	storeConnected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricStoreConnected,
		Help: "1 when the record store is reachable.",
	})
	storedRecords := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricStoredRecords,
		Help: "Records held by the store at the last probe.",
	})
	clients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricPubSubClients,
		Help: "Publishers currently connected to the broker.",
	})
	auditBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricAuditLogBytes,
		Help: "Size of today's audit journal file.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricStoreSaveLatency,
		Help:    "Latency of store saves.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wattflow_ingest_rejected_total",
		Help: "Payloads rejected before reaching the store.",
	}, []string{"source", "reason"})

	reg.MustRegister(committed, samples, failed, auditFailures, mirrorFailures,
		storeConnected, storedRecords, clients, auditBytes, latency, rejected)

	return &PromObs{
		logger: logger,
		events: events,
		counters: map[string]prometheus.Counter{
			ports.MetricRecordsCommitted: committed,
			ports.MetricSamplesIngested:  samples,
			ports.MetricIngestFailed:     failed,
			ports.MetricAuditFailures:    auditFailures,
			ports.MetricMirrorFailures:   mirrorFailures,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricStoreConnected: storeConnected,
			ports.MetricStoredRecords:  storedRecords,
			ports.MetricPubSubClients:  clients,
			ports.MetricAuditLogBytes:  auditBytes,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricStoreSaveLatency: latency,
		},
		rejected: rejected,
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields, nil)...)
	p.event("info", msg, fields, nil)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, attrs(fields, err)...)
	p.event("error", msg, fields, err)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields, err), slog.Bool("critical", true))...)
	p.event("critical", msg, fields, err)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordRejected(origin domain.Origin, reason string) {
	p.rejected.WithLabelValues(string(origin.Source), reason).Inc()
}

func (p *PromObs) event(level, msg string, fields []ports.Field, err error) {
	if p.events == nil {
		return
	}
	data := make(map[string]any, len(fields)+2)
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	if err != nil {
		data["error"] = err.Error()
	}
	data["event"] = msg
	if werr := p.events.Write(level, readable(msg, fields), data); werr != nil {
		p.logger.Warn("event journal write failed", slog.Any("error", werr))
	}
}

// readable turns an event key such as client_connected into
// "Client connected: <clientId>" for the operator-facing journal.
func readable(msg string, fields []ports.Field) string {
	text := strings.ReplaceAll(msg, "_", " ")
	if text != "" {
		text = strings.ToUpper(text[:1]) + text[1:]
	}
	for _, f := range fields {
		if f.Key == "clientId" {
			if id, ok := f.Value.(string); ok && id != "" {
				return text + ": " + id
			}
		}
	}
	return text
}

func attrs(fields []ports.Field, err error) []any {
	out := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	if err != nil {
		out = append(out, slog.Any("error", err))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
