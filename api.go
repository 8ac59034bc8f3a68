package wattflow

import (
	"context"
	"log/slog"

	base "github.com/suhail953/wattflow/pkg/wattflow"
)

// Re-exported errors for convenience.
var (
	ErrChannelMirrorClosed = base.ErrChannelMirrorClosed
)

// Type aliases so consumers can import github.com/suhail953/wattflow directly.
type (
	Config          = base.Config
	Policy          = base.Policy
	HTTPConfig      = base.HTTPConfig
	MQTTConfig      = base.MQTTConfig
	BridgeConfig    = base.BridgeConfig
	StoreConfig     = base.StoreConfig
	MongoConfig     = base.MongoConfig
	PostgresConfig  = base.PostgresConfig
	BadgerConfig    = base.BadgerConfig
	LogsConfig      = base.LogsConfig
	InfluxConfig    = base.InfluxConfig
	MetricsConfig   = base.MetricsConfig
	TracingConfig   = base.TracingConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Runtime         = base.Runtime
	Option          = base.Option
	Record          = base.Record
	Sample          = base.Sample
	Origin          = base.Origin
	Outcome         = base.Outcome
	HealthSnapshot  = base.HealthSnapshot
	RecordHandler   = base.RecordHandler
	Store           = base.Store
	AuditSink       = base.AuditSink
	Mirror          = base.Mirror
	Transport       = base.Transport
	BrokerEvents    = base.BrokerEvents
	Observability   = base.Observability
	Field           = base.Field
)

const (
	DriverMongo    = base.DriverMongo
	DriverPostgres = base.DriverPostgres
	DriverBadger   = base.DriverBadger

	MQTTEmbedded = base.MQTTEmbedded
	MQTTBridge   = base.MQTTBridge
	MQTTDisabled = base.MQTTDisabled

	Committed = base.Committed
	Rejected  = base.Rejected
	Failed    = base.Failed
)

var (
	PubSubOrigin  = base.PubSubOrigin
	RequestOrigin = base.RequestOrigin
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...Option) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInTransport(t Transport) StreamInOption {
	return base.StreamInTransport(t)
}

func StreamInNoTransport() StreamInOption {
	return base.StreamInNoTransport()
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutStore(s Store) StreamOutOption {
	return base.StreamOutStore(s)
}

func StreamOutAudit(a AuditSink) StreamOutOption {
	return base.StreamOutAudit(a)
}

func StreamOutMirror(m Mirror) StreamOutOption {
	return base.StreamOutMirror(m)
}

func StreamOutCallback(name string, fn RecordHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(ctx context.Context, cfg *Config, opts ...Option) (*Runtime, error) {
	return base.NewRuntime(ctx, cfg, opts...)
}

func OpenStore(ctx context.Context, cfg *Config) (Store, error) {
	return base.OpenStore(ctx, cfg)
}

func WithStore(s Store) Option {
	return base.WithStore(s)
}

func WithAuditSink(a AuditSink) Option {
	return base.WithAuditSink(a)
}

func WithMirror(m ...Mirror) Option {
	return base.WithMirror(m...)
}

func WithTransport(t Transport) Option {
	return base.WithTransport(t)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithLogger(l *slog.Logger) Option {
	return base.WithLogger(l)
}

// Mirror adapters.
func NewCallbackMirror(name string, fn RecordHandler) Mirror {
	return base.NewCallbackMirror(name, fn)
}

func NewChannelMirror(name string, buffer int) (Mirror, <-chan Record, func()) {
	return base.NewChannelMirror(name, buffer)
}
