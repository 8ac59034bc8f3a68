package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultMirrorTimeout = 2 * time.Second
)

// Deps are the collaborators shared by every ingest call.
type Deps struct {
	Store   ports.Store
	Audit   ports.AuditSink
	Mirrors []ports.Mirror
	Obs     ports.Observability
	Tracer  trace.Tracer
}

// Pipeline turns raw payloads into committed records. It holds no mutable
// state of its own; concurrent Ingest calls only share the store, the audit
// sink and the mirrors.
type Pipeline struct {
	store   ports.Store
	audit   ports.AuditSink
	mirrors []ports.Mirror
	obs     ports.Observability
	tracer  trace.Tracer
	pol     ports.Policy
	rules   domain.Rules

	auditBE  BestEffort
	mirrorBE BestEffort
	now      func() time.Time
}

func New(deps Deps, pol ports.Policy) *Pipeline {
	if pol.StoreTimeout <= 0 {
		pol.StoreTimeout = defaultStoreTimeout
	}
	if pol.MirrorTimeout <= 0 {
		pol.MirrorTimeout = defaultMirrorTimeout
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/suhail953/wattflow/pipeline")
	}
	return &Pipeline{
		store:   deps.Store,
		audit:   deps.Audit,
		mirrors: deps.Mirrors,
		obs:     deps.Obs,
		tracer:  tracer,
		pol:     pol,
		rules: domain.Rules{
			RequireTimestamps: pol.RequireTimestamps,
			RejectEmpty:       pol.RejectEmptySamples,
		},
		auditBE:  NewBestEffort(deps.Obs, ports.MetricAuditFailures),
		mirrorBE: NewBestEffort(deps.Obs, ports.MetricMirrorFailures),
		now:      time.Now,
	}
}

// Ingest parses, validates and stores one payload, then writes the audit
// envelope and mirrors. Only the store write decides between Committed and
// Failed.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte, origin domain.Origin) Outcome {
	ctx, span := p.tracer.Start(ctx, "pipeline.Ingest",
		trace.WithAttributes(
			attribute.String("wattflow.source", string(origin.Source)),
			attribute.Int("wattflow.payload_bytes", len(raw)),
		))
	defer span.End()

	out := p.ingest(ctx, raw, origin)

	span.SetAttributes(attribute.String("wattflow.outcome", out.Kind.String()))
	if out.Mac != "" {
		span.SetAttributes(attribute.String("wattflow.mac", out.Mac))
	}
	switch out.Kind {
	case Committed:
		span.SetStatus(codes.Ok, "")
	case Rejected:
		span.SetAttributes(attribute.String("wattflow.reason", out.Reason()))
	case Failed:
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	return out
}

func (p *Pipeline) ingest(ctx context.Context, raw []byte, origin domain.Origin) Outcome {
	rb, err := domain.Parse(raw)
	if err != nil {
		p.obs.RecordRejected(origin, ReasonParse)
		p.obs.LogError("payload_parse_failed", err, originFields(origin,
			ports.Field{Key: "payload", Value: string(raw)})...)
		return Outcome{Kind: Rejected, Err: err}
	}

	batch, err := domain.Validate(rb, p.rules)
	if err != nil {
		out := Outcome{Kind: Rejected, Err: err}
		p.obs.RecordRejected(origin, out.Reason())
		return out
	}

	rec := domain.NewRecord(batch, origin)

	saveCtx, cancel := context.WithTimeout(ctx, p.pol.StoreTimeout)
	start := time.Now()
	stored, err := p.store.Save(saveCtx, rec)
	cancel()
	p.obs.ObserveLatency(ports.MetricStoreSaveLatency, time.Since(start).Seconds())
	if err != nil {
		serr := &StoreError{Store: p.store.Name(), Err: err}
		p.obs.IncCounter(ports.MetricIngestFailed, 1)
		p.obs.LogError("store_save_failed", serr, originFields(origin,
			ports.Field{Key: "mac", Value: batch.Mac})...)
		if p.pol.AuditFailedAttempts {
			p.appendAudit(string(origin.Source)+"-failed", batch)
		}
		return Outcome{Kind: Failed, Mac: batch.Mac, Err: serr}
	}

	p.obs.IncCounter(ports.MetricRecordsCommitted, 1)
	p.obs.IncCounter(ports.MetricSamplesIngested, float64(len(rec.Samples)))

	p.appendAudit(string(origin.Source), batch)
	p.mirror(ctx, rec)

	return Outcome{
		Kind:        Committed,
		ID:          stored.ID,
		Mac:         rec.Mac,
		ReceivedAt:  stored.ReceivedAt,
		SampleCount: len(rec.Samples),
	}
}

func (p *Pipeline) appendAudit(source string, batch *domain.TelemetryBatch) {
	if p.audit == nil {
		return
	}
	env := domain.AuditEnvelope{
		Timestamp: p.now().UTC(),
		Source:    source,
		Data:      batch.Raw,
	}
	p.auditBE.Do("audit_append", func() error {
		return p.audit.Append(env)
	}, ports.Field{Key: "source", Value: source}, ports.Field{Key: "mac", Value: batch.Mac})
}

func (p *Pipeline) mirror(ctx context.Context, rec *domain.IngestedRecord) {
	for _, m := range p.mirrors {
		m := m
		mctx, cancel := context.WithTimeout(ctx, p.pol.MirrorTimeout)
		p.mirrorBE.Do("mirror_write", func() error {
			return m.Mirror(mctx, rec)
		}, ports.Field{Key: "mirror", Value: m.Name()}, ports.Field{Key: "mac", Value: rec.Mac})
		cancel()
	}
}

func originFields(origin domain.Origin, extra ...ports.Field) []ports.Field {
	fields := []ports.Field{{Key: "source", Value: string(origin.Source)}}
	if origin.ClientID != "" {
		fields = append(fields, ports.Field{Key: "clientId", Value: origin.ClientID})
	}
	if origin.Topic != "" {
		fields = append(fields, ports.Field{Key: "topic", Value: origin.Topic})
	}
	return append(fields, extra...)
}
