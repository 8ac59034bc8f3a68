package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/suhail953/wattflow/internal/adapters/journal"
	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)

	obs.IncCounter(ports.MetricRecordsCommitted, 5)
	if got := testutil.ToFloat64(obs.counters[ports.MetricRecordsCommitted]); got != 5 {
		t.Fatalf("expected committed counter 5, got %f", got)
	}

	obs.IncCounter(ports.MetricAuditFailures, 2)
	if got := testutil.ToFloat64(obs.counters[ports.MetricAuditFailures]); got != 2 {
		t.Fatalf("expected audit failure counter 2, got %f", got)
	}

	obs.SetGauge(ports.MetricPubSubClients, 3)
	if got := testutil.ToFloat64(obs.gauges[ports.MetricPubSubClients]); got != 3 {
		t.Fatalf("expected clients gauge 3, got %f", got)
	}

	obs.ObserveLatency(ports.MetricStoreSaveLatency, 0.5)
	hCollector := obs.histos[ports.MetricStoreSaveLatency].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.RecordRejected(domain.RequestOrigin(), "MissingMac")
	obs.RecordRejected(domain.RequestOrigin(), "MissingMac")
	obs.RecordRejected(domain.PubSubOrigin("dev", "t"), "ParseError")
	if got := testutil.ToFloat64(obs.rejected.WithLabelValues("http", "MissingMac")); got != 2 {
		t.Fatalf("expected 2 http rejections, got %f", got)
	}
	if got := testutil.ToFloat64(obs.rejected.WithLabelValues("mqtt", "ParseError")); got != 1 {
		t.Fatalf("expected 1 mqtt rejection, got %f", got)
	}

	// unknown names are ignored
	obs.IncCounter("nope", 1)
	obs.SetGauge("nope", 1)
	obs.ObserveLatency("nope", 1)
}

func TestPromObsLogsToSlogAndJournal(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	events := journal.NewEventLog(dir)
	t.Cleanup(func() { _ = events.Close() })

	obs := NewPromObs(prometheus.NewRegistry(), slog.New(slog.NewJSONHandler(&buf, nil)), events)
	obs.LogInfo("client_connected", ports.Field{Key: "clientId", Value: "dev-1"})
	obs.LogError("store_save_failed", errors.New("boom"), ports.Field{Key: "mac", Value: "AA"})

	if !strings.Contains(buf.String(), `"clientId":"dev-1"`) {
		t.Fatalf("slog output missing field: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Fatalf("slog output missing error: %s", buf.String())
	}

	path := filepath.Join(dir, "mqtt-logs-"+time.Now().UTC().Format("2006-01-02")+".json")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open event journal: %v", err)
	}
	defer f.Close()

	var lines []journal.Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev journal.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 events, got %d", len(lines))
	}
	if lines[0].Level != "INFO" || lines[0].Message != "Client connected: dev-1" {
		t.Fatalf("unexpected event %+v", lines[0])
	}
	if lines[1].Level != "ERROR" || lines[1].Message != "Store save failed" {
		t.Fatalf("unexpected event %+v", lines[1])
	}
	data, ok := lines[1].Data.(map[string]any)
	if !ok || data["error"] != "boom" || data["mac"] != "AA" || data["event"] != "store_save_failed" {
		t.Fatalf("unexpected event data %#v", lines[1].Data)
	}
}

func TestReadableEventMessage(t *testing.T) {
	cases := []struct {
		msg    string
		fields []ports.Field
		want   string
	}{
		{"client_connected", []ports.Field{{Key: "clientId", Value: "dev-1"}}, "Client connected: dev-1"},
		{"client_disconnected", []ports.Field{{Key: "clientId", Value: ""}}, "Client disconnected"},
		{"payload_parse_failed", nil, "Payload parse failed"},
		{"", nil, ""},
	}
	for _, tc := range cases {
		if got := readable(tc.msg, tc.fields); got != tc.want {
			t.Fatalf("readable(%q) = %q, want %q", tc.msg, got, tc.want)
		}
	}
}
