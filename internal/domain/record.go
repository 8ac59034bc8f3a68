package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Source tags which ingress channel produced a record.
type Source string

const (
	SourcePubSub  Source = "mqtt"
	SourceRequest Source = "http"
)

// Origin carries the channel metadata of a single ingest call. ClientID and
// Topic are only set for pub/sub deliveries.
type Origin struct {
	Source   Source
	ClientID string
	Topic    string
}

// PubSubOrigin builds the origin of a broker publish.
func PubSubOrigin(clientID, topic string) Origin {
	return Origin{Source: SourcePubSub, ClientID: clientID, Topic: topic}
}

// RequestOrigin builds the origin of a direct request.
func RequestOrigin() Origin {
	return Origin{Source: SourceRequest}
}

// TelemetrySample is one timestamped reading from a device.
type TelemetrySample struct {
	Timestamp   int64    `json:"ts" bson:"ts" validate:"gt=0"`
	Power       *float64 `json:"power,omitempty" bson:"power,omitempty"`
	Voltage     *float64 `json:"voltage,omitempty" bson:"voltage,omitempty"`
	Current     *float64 `json:"current,omitempty" bson:"current,omitempty"`
	Energy      *float64 `json:"energy,omitempty" bson:"energy,omitempty"`
	Frequency   *float64 `json:"frequency,omitempty" bson:"frequency,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" bson:"temperature,omitempty"`
}

// UnmarshalJSON accepts ts written as any JSON number, including exponent
// and decimal forms such as 1.7e12 or 1700000000000.0. Fractional
// milliseconds are truncated toward zero. A missing or null ts decodes as 0.
func (s *TelemetrySample) UnmarshalJSON(b []byte) error {
	type plain TelemetrySample
	var aux struct {
		plain
		TS json.RawMessage `json:"ts"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	ts, err := decodeTimestamp(aux.TS)
	if err != nil {
		return err
	}
	*s = TelemetrySample(aux.plain)
	s.Timestamp = ts
	return nil
}

func decodeTimestamp(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '"' {
		return 0, fmt.Errorf("ts must be a number, got %s", raw)
	}
	if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("ts must be a number, got %s", raw)
	}
	f = math.Trunc(f)
	if math.IsInf(f, 0) || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("ts %s is out of range", raw)
	}
	return int64(f), nil
}

// TelemetryBatch is the validated wire-level submission. Raw keeps the
// original payload bytes for the audit trail.
type TelemetryBatch struct {
	Mac     string
	Samples []TelemetrySample
	Raw     json.RawMessage
}

// IngestedRecord is the canonical stored form of a batch. ID and ReceivedAt
// are assigned by the store on commit; a committed record is never mutated.
type IngestedRecord struct {
	ID         string            `json:"id"`
	Mac        string            `json:"mac"`
	ClientID   string            `json:"clientId,omitempty"`
	Topic      string            `json:"topic,omitempty"`
	Samples    []TelemetrySample `json:"data"`
	Source     Source            `json:"source"`
	ReceivedAt time.Time         `json:"receivedAt"`
}

// NewRecord derives the record for a validated batch and its origin.
func NewRecord(b *TelemetryBatch, origin Origin) *IngestedRecord {
	rec := &IngestedRecord{
		Mac:     b.Mac,
		Samples: CopySamples(b.Samples),
		Source:  origin.Source,
	}
	if origin.Source == SourcePubSub {
		rec.ClientID = origin.ClientID
		rec.Topic = origin.Topic
	}
	return rec
}

// StoredRecord is what a store reports back after a successful save.
type StoredRecord struct {
	ID         string
	ReceivedAt time.Time
}

// AuditEnvelope is one line of the audit stream.
type AuditEnvelope struct {
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// CopySamples returns a deep copy so records never alias caller memory.
func CopySamples(src []TelemetrySample) []TelemetrySample {
	if src == nil {
		return []TelemetrySample{}
	}
	dst := make([]TelemetrySample, len(src))
	for i, s := range src {
		dst[i] = TelemetrySample{
			Timestamp:   s.Timestamp,
			Power:       copyFloat(s.Power),
			Voltage:     copyFloat(s.Voltage),
			Current:     copyFloat(s.Current),
			Energy:      copyFloat(s.Energy),
			Frequency:   copyFloat(s.Frequency),
			Temperature: copyFloat(s.Temperature),
		}
	}
	return dst
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// Fields returns the present measurement values keyed by their wire name.
func (s TelemetrySample) Fields() map[string]float64 {
	out := make(map[string]float64, 6)
	add := func(key string, v *float64) {
		if v != nil {
			out[key] = *v
		}
	}
	add("power", s.Power)
	add("voltage", s.Voltage)
	add("current", s.Current)
	add("energy", s.Energy)
	add("frequency", s.Frequency)
	add("temperature", s.Temperature)
	return out
}
