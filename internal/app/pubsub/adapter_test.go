package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	badgerstore "github.com/suhail953/wattflow/internal/adapters/store/badger"
	"github.com/suhail953/wattflow/internal/app/pipeline"
	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

type logLine struct {
	msg    string
	err    error
	fields map[string]any
}

type recordingObs struct {
	mu     sync.Mutex
	lines  []logLine
	gauges map[string]float64
}

func newRecordingObs() *recordingObs { return &recordingObs{gauges: map[string]float64{}} }

func (o *recordingObs) add(msg string, err error, fields []ports.Field) {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, logLine{msg: msg, err: err, fields: m})
}

func (o *recordingObs) LogInfo(msg string, fields ...ports.Field) { o.add(msg, nil, fields) }
func (o *recordingObs) LogError(msg string, err error, fields ...ports.Field) {
	o.add(msg, err, fields)
}
func (o *recordingObs) LogCritical(msg string, err error, fields ...ports.Field) {
	o.add(msg, err, fields)
}
func (o *recordingObs) IncCounter(string, float64)     {}
func (o *recordingObs) ObserveLatency(string, float64) {}
func (o *recordingObs) SetGauge(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gauges[name] = v
}
func (o *recordingObs) RecordRejected(domain.Origin, string) {}

func (o *recordingObs) find(msg string) (logLine, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, l := range o.lines {
		if l.msg == msg {
			return l, true
		}
	}
	return logLine{}, false
}

type blockingIngester struct {
	release chan struct{}
	mu      sync.Mutex
	calls   []domain.Origin
}

func (b *blockingIngester) Ingest(ctx context.Context, raw []byte, origin domain.Origin) pipeline.Outcome {
	b.mu.Lock()
	b.calls = append(b.calls, origin)
	b.mu.Unlock()
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return pipeline.Outcome{Kind: pipeline.Committed, ID: "x", Mac: "m", SampleCount: 1}
}

func TestPublishIsIngestedWithOrigin(t *testing.T) {
	store, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	obs := newRecordingObs()
	p := pipeline.New(pipeline.Deps{Store: store, Obs: obs}, ports.Policy{RequireTimestamps: true})
	a := NewAdapter(p, obs)

	a.OnPublish("dev-7", "wattmon/dev-7/data", []byte(`{"mac":"AA","data":[{"ts":1,"power":2}]}`))
	a.OnPublish("dev-7", "wattmon/dev-7/data", []byte(`{"data":[]}`))
	require.NoError(t, a.Drain(context.Background()))

	latest, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "dev-7", latest.ClientID)
	assert.Equal(t, "wattmon/dev-7/data", latest.Topic)
	assert.Equal(t, domain.SourcePubSub, latest.Source)

	stored, ok := obs.find("telemetry_stored")
	require.True(t, ok)
	assert.Equal(t, "AA", stored.fields["mac"])

	rejected, ok := obs.find("telemetry_rejected")
	require.True(t, ok)
	assert.Equal(t, string(domain.MissingMac), rejected.fields["reason"])
}

func TestPublishPayloadIsCopied(t *testing.T) {
	ing := &blockingIngester{release: make(chan struct{})}
	got := make(chan []byte, 1)
	a := NewAdapter(ingestFunc(func(_ context.Context, raw []byte, _ domain.Origin) pipeline.Outcome {
		<-ing.release
		got <- raw
		return pipeline.Outcome{Kind: pipeline.Committed}
	}), newRecordingObs())

	buf := []byte(`{"mac":"AA"}`)
	a.OnPublish("c", "t", buf)
	copy(buf, "XXXXXXXXXXXX")
	close(ing.release)

	assert.Equal(t, `{"mac":"AA"}`, string(<-got))
	require.NoError(t, a.Drain(context.Background()))
}

func TestPublishDoesNotBlockDispatch(t *testing.T) {
	ing := &blockingIngester{release: make(chan struct{})}
	a := NewAdapter(ing, newRecordingObs())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			a.OnPublish("c", "t", []byte("{}"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnPublish blocked on a slow ingest")
	}
	close(ing.release)
	require.NoError(t, a.Drain(context.Background()))

	ing.mu.Lock()
	defer ing.mu.Unlock()
	assert.Len(t, ing.calls, 10)
}

func TestDrainTimeoutCancelsInflight(t *testing.T) {
	ing := &blockingIngester{release: make(chan struct{})}
	a := NewAdapter(ing, newRecordingObs())
	a.OnPublish("c", "t", []byte("{}"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.Drain(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishAfterDrainIsDropped(t *testing.T) {
	ing := &blockingIngester{release: make(chan struct{})}
	close(ing.release)
	obs := newRecordingObs()
	a := NewAdapter(ing, obs)
	require.NoError(t, a.Drain(context.Background()))

	a.OnPublish("c", "t", []byte("{}"))
	_, ok := obs.find("publish_after_shutdown")
	assert.True(t, ok)
	assert.Empty(t, ing.calls)
}

func TestClientCounting(t *testing.T) {
	obs := newRecordingObs()
	a := NewAdapter(&blockingIngester{}, obs)

	a.OnConnect("a", "10.0.0.1:5000")
	a.OnConnect("b", "10.0.0.2:5000")
	assert.Equal(t, 2, a.ConnectedClients())

	a.OnDisconnect("a", nil)
	a.OnDisconnect("b", errors.New("keepalive timeout"))
	a.OnDisconnect("ghost", nil)
	assert.Equal(t, 0, a.ConnectedClients())
	assert.Equal(t, 0.0, obs.gauges[ports.MetricPubSubClients])

	line, ok := obs.find("client_disconnected")
	require.True(t, ok)
	assert.Equal(t, "a", line.fields["clientId"])
}

func TestClientCountingConcurrentChurn(t *testing.T) {
	a := NewAdapter(&blockingIngester{}, newRecordingObs())

	// Unmatched disconnects race with connects; none of the connects may be lost.
	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.OnDisconnect("ghost", nil)
		}()
		go func() {
			defer wg.Done()
			a.OnConnect("dev", "10.0.0.1:5000")
		}()
	}
	wg.Wait()

	got := a.ConnectedClients()
	assert.GreaterOrEqual(t, got, 0)
	assert.LessOrEqual(t, got, n)

	for i := 0; i < got; i++ {
		a.OnDisconnect("dev", nil)
	}
	assert.Equal(t, 0, a.ConnectedClients())
	a.OnConnect("dev", "10.0.0.1:5000")
	assert.Equal(t, 1, a.ConnectedClients())
}

type ingestFunc func(ctx context.Context, raw []byte, origin domain.Origin) pipeline.Outcome

func (f ingestFunc) Ingest(ctx context.Context, raw []byte, origin domain.Origin) pipeline.Outcome {
	return f(ctx, raw, origin)
}
