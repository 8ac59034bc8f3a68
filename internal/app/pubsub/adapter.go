package pubsub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/suhail953/wattflow/internal/app/pipeline"
	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

// Ingester is the part of the pipeline the adapter drives.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, origin domain.Origin) pipeline.Outcome
}

// Adapter feeds broker publishes into the pipeline. Each publish runs on
// its own goroutine so a slow store never stalls the broker's dispatch.
type Adapter struct {
	ingester Ingester
	obs      ports.Observability

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	clients  atomic.Int64
}

func NewAdapter(ingester Ingester, obs ports.Observability) *Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{ingester: ingester, obs: obs, ctx: ctx, cancel: cancel}
}

func (a *Adapter) OnConnect(clientID, remoteAddr string) {
	n := a.clients.Add(1)
	a.obs.SetGauge(ports.MetricPubSubClients, float64(n))
	a.obs.LogInfo("client_connected",
		ports.Field{Key: "clientId", Value: clientID},
		ports.Field{Key: "remoteAddr", Value: remoteAddr})
}

func (a *Adapter) OnDisconnect(clientID string, err error) {
	n := a.releaseClient()
	a.obs.SetGauge(ports.MetricPubSubClients, float64(n))
	if err != nil {
		a.obs.LogError("client_disconnected", err, ports.Field{Key: "clientId", Value: clientID})
		return
	}
	a.obs.LogInfo("client_disconnected", ports.Field{Key: "clientId", Value: clientID})
}

// releaseClient decrements the client count without going below zero.
func (a *Adapter) releaseClient() int64 {
	for {
		cur := a.clients.Load()
		if cur <= 0 {
			return 0
		}
		if a.clients.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// OnPublish copies the payload and returns immediately.
func (a *Adapter) OnPublish(clientID, topic string, payload []byte) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.obs.LogError("publish_after_shutdown", context.Canceled,
			ports.Field{Key: "clientId", Value: clientID},
			ports.Field{Key: "topic", Value: topic})
		return
	}
	raw := make([]byte, len(payload))
	copy(raw, payload)

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		a.handle(clientID, topic, raw)
	}()
}

func (a *Adapter) handle(clientID, topic string, raw []byte) {
	out := a.ingester.Ingest(a.ctx, raw, domain.PubSubOrigin(clientID, topic))
	fields := []ports.Field{
		{Key: "clientId", Value: clientID},
		{Key: "topic", Value: topic},
	}
	switch out.Kind {
	case pipeline.Committed:
		a.obs.LogInfo("telemetry_stored", append(fields,
			ports.Field{Key: "id", Value: out.ID},
			ports.Field{Key: "mac", Value: out.Mac},
			ports.Field{Key: "dataPoints", Value: out.SampleCount})...)
	case pipeline.Rejected:
		a.obs.LogError("telemetry_rejected", out.Err, append(fields,
			ports.Field{Key: "reason", Value: out.Reason()})...)
	case pipeline.Failed:
		a.obs.LogError("telemetry_store_failed", out.Err, append(fields,
			ports.Field{Key: "mac", Value: out.Mac})...)
	}
}

// ConnectedClients is the number of currently connected publishers.
func (a *Adapter) ConnectedClients() int { return int(a.clients.Load()) }

// Drain stops accepting publishes and waits for in-flight ingests. When ctx
// expires first, outstanding ingests are cancelled and ctx.Err is returned.
func (a *Adapter) Drain(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		<-done
		return ctx.Err()
	}
}

var _ ports.BrokerEvents = (*Adapter)(nil)
