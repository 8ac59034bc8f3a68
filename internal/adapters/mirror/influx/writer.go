package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

const measurement = "wattmon_samples"

// Writer copies committed samples into InfluxDB, one point per sample.
type Writer struct {
	client influxdb2.Client
	api    api.WriteAPIBlocking
}

// NewWriter creates an InfluxDB write API client. Caller should call Close() when done.
func NewWriter(url, token, org, bucket string) *Writer {
	client := influxdb2.NewClient(url, token)
	return &Writer{client: client, api: client.WriteAPIBlocking(org, bucket)}
}

func (w *Writer) Name() string { return "influxdb" }

// Close releases the InfluxDB client.
func (w *Writer) Close() {
	w.client.Close()
}

// Health checks that InfluxDB is reachable and the token is valid.
func (w *Writer) Health(ctx context.Context) error {
	_, err := w.client.Health(ctx)
	return err
}

// Mirror writes every sample of rec. Samples without measurements are
// skipped because a point needs at least one field.
func (w *Writer) Mirror(ctx context.Context, rec *domain.IngestedRecord) error {
	points := Points(rec)
	if len(points) == 0 {
		return nil
	}
	if err := w.api.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Points converts rec into line-protocol points tagged by device and channel.
func Points(rec *domain.IngestedRecord) []*write.Point {
	points := make([]*write.Point, 0, len(rec.Samples))
	for _, s := range rec.Samples {
		values := s.Fields()
		if len(values) == 0 {
			continue
		}
		fields := make(map[string]interface{}, len(values))
		for k, v := range values {
			fields[k] = v
		}

		tags := map[string]string{
			"mac":    rec.Mac,
			"source": string(rec.Source),
		}
		if rec.ClientID != "" {
			tags["clientId"] = rec.ClientID
		}

		pointTime := time.UnixMilli(s.Timestamp)
		if s.Timestamp <= 0 {
			pointTime = rec.ReceivedAt
		}
		points = append(points, write.NewPoint(measurement, tags, fields, pointTime))
	}
	return points
}

var _ ports.Mirror = (*Writer)(nil)
