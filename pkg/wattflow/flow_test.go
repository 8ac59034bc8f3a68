package wattflow

import (
	"context"
	"testing"

	badgerstore "github.com/suhail953/wattflow/internal/adapters/store/badger"
)

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg := testConfig(t)

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	store, err := badgerstore.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	transport := &stubTransport{}
	audit := &stubAudit{}

	rt, err := flow.
		StreamIN(
			StreamInTransport(transport),
			StreamInObservability(&stubObservability{}),
		).
		StreamOUT(context.Background(),
			StreamOutStore(store),
			StreamOutAudit(audit),
			StreamOutCallback("cb", func(context.Context, Record) error { return nil }),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if rt.transport != transport {
		t.Fatalf("expected custom transport to be wired")
	}
	if rt.store != store {
		t.Fatalf("expected custom store to be wired")
	}
	if rt.audit != audit {
		t.Fatalf("expected custom audit sink to be wired")
	}
	if len(rt.mirrors) != 1 || rt.mirrors[0].Name() != "cb" {
		t.Fatalf("expected callback mirror to be wired")
	}
}

func TestFlowNoTransport(t *testing.T) {
	cfg := testConfig(t)
	cfg.MQTT.Mode = MQTTEmbedded

	flow, err := ConfFromConfig(cfg, WithFlowOptions(WithLogger(quietLogger())))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	rt, err := flow.StreamIN(StreamInNoTransport()).StreamOUT(context.Background())
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if rt.transport != nil || rt.pubsub != nil {
		t.Fatalf("expected pub/sub channel to be disabled")
	}
	if snap := rt.Health(context.Background()); snap.MQTT.Status != "inactive" {
		t.Fatalf("expected inactive mqtt status, got %q", snap.MQTT.Status)
	}
}

func TestFlowRunStopsOnCancel(t *testing.T) {
	flow, err := ConfFromConfig(testConfig(t), WithFlowOptions(WithLogger(quietLogger())))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := flow.StreamIN(StreamInObservability(&stubObservability{})).Run(ctx); err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
}

func TestConfLoadsFileOrDefaults(t *testing.T) {
	if _, err := Conf("/does/not/exist.yaml"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
	flow, err := Conf("")
	if err != nil {
		t.Fatalf("Conf with defaults returned error: %v", err)
	}
	if flow.Config().Store.Driver == "" {
		t.Fatalf("expected defaults to be applied")
	}
}
