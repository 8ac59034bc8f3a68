package wattflow

import (
	"github.com/suhail953/wattflow/internal/app/config"
	"github.com/suhail953/wattflow/internal/app/health"
	"github.com/suhail953/wattflow/internal/app/pipeline"
	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls store timeouts and validation strictness.
	Policy = ports.Policy
	// HTTPConfig configures the request channel.
	HTTPConfig = config.HTTPConfig
	// MQTTConfig selects the embedded broker or an upstream bridge.
	MQTTConfig = config.MQTTConfig
	// BridgeConfig points the bridge at an upstream broker.
	BridgeConfig = config.BridgeConfig
	// StoreConfig selects and configures the record store.
	StoreConfig = config.StoreConfig
	// MongoConfig configures the MongoDB store.
	MongoConfig = config.MongoConfig
	// PostgresConfig configures the Postgres store.
	PostgresConfig = config.PostgresConfig
	// BadgerConfig configures the embedded store.
	BadgerConfig = config.BadgerConfig
	// LogsConfig sets where audit and event journals are written.
	LogsConfig = config.LogsConfig
	// InfluxConfig enables the InfluxDB mirror.
	InfluxConfig = config.InfluxConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// TracingConfig configures OTLP trace export.
	TracingConfig = config.TracingConfig
)

const (
	DriverMongo    = config.DriverMongo
	DriverPostgres = config.DriverPostgres
	DriverBadger   = config.DriverBadger

	MQTTEmbedded = config.MQTTEmbedded
	MQTTBridge   = config.MQTTBridge
	MQTTDisabled = config.MQTTDisabled
)

// LoadConfig loads YAML from disk (or defaults when path is empty) and
// applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return config.Default()
}

// Record is a committed telemetry batch.
type Record = domain.IngestedRecord

// Sample is one timestamped reading inside a record.
type Sample = domain.TelemetrySample

// Origin tells the pipeline which channel a payload came from.
type Origin = domain.Origin

// Outcome is the result of one ingest call.
type Outcome = pipeline.Outcome

// HealthSnapshot is the body served by the health endpoint.
type HealthSnapshot = health.Snapshot

// Store persists records; see the mongo, postgres and badger backends.
type Store = ports.Store

// AuditSink receives the raw payload of every committed batch.
type AuditSink = ports.AuditSink

// Mirror receives committed records after the audit append.
type Mirror = ports.Mirror

// Transport delivers pub/sub broker events.
type Transport = ports.Transport

// BrokerEvents is the handler a Transport drives.
type BrokerEvents = ports.BrokerEvents

// Observability emits logs and metrics about ingestion.
type Observability = ports.Observability

// Field is a structured log/metric field used by Observability implementations.
type Field = ports.Field

const (
	Committed = pipeline.Committed
	Rejected  = pipeline.Rejected
	Failed    = pipeline.Failed
)

// PubSubOrigin and RequestOrigin build origins for Runtime.Ingest.
var (
	PubSubOrigin  = domain.PubSubOrigin
	RequestOrigin = domain.RequestOrigin
)
