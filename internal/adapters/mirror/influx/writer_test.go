package influx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suhail953/wattflow/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestPointsSkipsEmptySamples(t *testing.T) {
	rec := &domain.IngestedRecord{
		Mac:        "AA:BB",
		ClientID:   "dev-1",
		Source:     domain.SourcePubSub,
		ReceivedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Samples: []domain.TelemetrySample{
			{Timestamp: 1700000000000, Power: ptr(120.5), Voltage: ptr(230.1)},
			{Timestamp: 1700000001000},
		},
	}

	points := Points(rec)
	require.Len(t, points, 1)
	assert.Equal(t, measurement, points[0].Name())
	assert.Equal(t, time.UnixMilli(1700000000000), points[0].Time())
	assert.Len(t, points[0].FieldList(), 2)
	assert.Len(t, points[0].TagList(), 3)
}

func TestMirrorWritesLineProtocol(t *testing.T) {
	var (
		mu   sync.Mutex
		body string
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body, path = string(b), r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWriter(srv.URL, "token", "org", "bucket")
	defer w.Close()

	err := w.Mirror(context.Background(), &domain.IngestedRecord{
		Mac:     "AA:BB",
		Source:  domain.SourceRequest,
		Samples: []domain.TelemetrySample{{Timestamp: 1700000000000, Temperature: ptr(21.5)}},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/api/v2/write", path)
	assert.True(t, strings.HasPrefix(body, "wattmon_samples,mac=AA:BB,source=http temperature=21.5 "), body)
}

func TestMirrorReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"unauthorized","message":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWriter(srv.URL, "token", "org", "bucket")
	defer w.Close()

	err := w.Mirror(context.Background(), &domain.IngestedRecord{
		Mac:     "AA:BB",
		Samples: []domain.TelemetrySample{{Timestamp: 1, Power: ptr(1)}},
	})
	assert.Error(t, err)
}

func TestMirrorNoPointsIsNoop(t *testing.T) {
	w := NewWriter("http://127.0.0.1:1", "", "org", "bucket")
	defer w.Close()
	assert.NoError(t, w.Mirror(context.Background(), &domain.IngestedRecord{Mac: "m"}))
}
