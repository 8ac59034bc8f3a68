package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/suhail953/wattflow/internal/ports"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"

	MQTTEmbedded = "embedded"
	MQTTBridge   = "bridge"
	MQTTDisabled = "disabled"
)

type Config struct {
	Policy  ports.Policy  `yaml:"policy"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Store   StoreConfig   `yaml:"store"`
	Logs    LogsConfig    `yaml:"logs"`
	Influx  InfluxConfig  `yaml:"influx"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type HTTPConfig struct {
	Addr           string `yaml:"addr"`
	BodyLimitBytes int64  `yaml:"body_limit_bytes"`
}

type MQTTConfig struct {
	Mode   string       `yaml:"mode"`
	Addr   string       `yaml:"addr"`
	Bridge BridgeConfig `yaml:"bridge"`
}

type BridgeConfig struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	Topic         string `yaml:"topic"`
	QoS           byte   `yaml:"qos"`
	ClientIDLevel *int   `yaml:"client_id_level"`
}

type StoreConfig struct {
	Driver        string         `yaml:"driver"`
	Mongo         MongoConfig    `yaml:"mongo"`
	Postgres      PostgresConfig `yaml:"postgres"`
	Badger        BadgerConfig   `yaml:"badger"`
	Timeout       time.Duration  `yaml:"timeout"`
	ProbeInterval time.Duration  `yaml:"probe_interval"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type LogsConfig struct {
	Dir string `yaml:"dir"`
}

// InfluxConfig enables the time-series mirror when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TracingConfig installs an OTLP gRPC exporter when OTLPEndpoint is set.
type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Load reads YAML from path, applies environment overrides and defaults,
// then validates. An empty path starts from defaults.
func Load(path string) (*Config, error) {
	// Preset fields survive Unmarshal when the YAML omits them.
	cfg := Config{Policy: ports.Policy{RequireTimestamps: true}}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given, without
// environment overrides.
func Default() *Config {
	cfg := &Config{Policy: ports.Policy{RequireTimestamps: true}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.HTTP.Addr = ":" + v
	}
	if v := getenv("MQTT_PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("MQTT_PORT: %w", err)
		}
		c.MQTT.Addr = ":" + v
	}
	if v := getenv("MONGODB_URI"); v != "" {
		c.Store.Mongo.URI = v
	}
	if v := getenv("WATTFLOW_STORE_DRIVER"); v != "" {
		c.Store.Driver = strings.ToLower(v)
	}
	if v := getenv("WATTFLOW_LOG_DIR"); v != "" {
		c.Logs.Dir = v
	}
	if v := getenv("INFLUX_URL"); v != "" {
		c.Influx.URL = v
	}
	if v := getenv("INFLUX_TOKEN"); v != "" {
		c.Influx.Token = v
	}
	if v := getenv("INFLUX_ORG"); v != "" {
		c.Influx.Org = v
	}
	if v := getenv("INFLUX_BUCKET"); v != "" {
		c.Influx.Bucket = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Policy.StoreTimeout == 0 {
		c.Policy.StoreTimeout = 5 * time.Second
	}
	if c.Policy.MirrorTimeout == 0 {
		c.Policy.MirrorTimeout = 2 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":3000"
	}
	if c.HTTP.BodyLimitBytes == 0 {
		c.HTTP.BodyLimitBytes = 10 << 20
	}
	if c.MQTT.Mode == "" {
		c.MQTT.Mode = MQTTEmbedded
	}
	if c.MQTT.Addr == "" {
		c.MQTT.Addr = ":1883"
	}
	if c.MQTT.Bridge.Topic == "" {
		c.MQTT.Bridge.Topic = "#"
	}
	if c.MQTT.Bridge.ClientID == "" {
		c.MQTT.Bridge.ClientID = "wattflow-bridge"
	}
	if c.MQTT.Bridge.ClientIDLevel == nil {
		level := -1
		c.MQTT.Bridge.ClientIDLevel = &level
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMongo
	}
	if c.Store.Mongo.URI == "" {
		c.Store.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Store.Mongo.Database == "" {
		c.Store.Mongo.Database = "wattmon_db"
	}
	if c.Store.Mongo.Collection == "" {
		c.Store.Mongo.Collection = "wattmondatas"
	}
	if c.Store.Postgres.Table == "" {
		c.Store.Postgres.Table = "wattmon_records"
	}
	if c.Store.Badger.Path == "" {
		c.Store.Badger.Path = "./data/badger"
	}
	if c.Store.Timeout == 0 {
		c.Store.Timeout = 10 * time.Second
	}
	if c.Store.ProbeInterval == 0 {
		c.Store.ProbeInterval = 15 * time.Second
	}
	if c.Logs.Dir == "" {
		c.Logs.Dir = "./logs"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "wattflow"
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMongo:
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri is required")
		}
	case DriverPostgres:
		if c.Store.Postgres.ConnString == "" {
			return fmt.Errorf("store.postgres.conn_string is required")
		}
	case DriverBadger:
		if !c.Store.Badger.InMemory && c.Store.Badger.Path == "" {
			return fmt.Errorf("store.badger.path is required")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of mongo, postgres, badger", c.Store.Driver)
	}

	switch c.MQTT.Mode {
	case MQTTEmbedded, MQTTDisabled:
	case MQTTBridge:
		if c.MQTT.Bridge.Broker == "" {
			return fmt.Errorf("mqtt.bridge.broker is required in bridge mode")
		}
		if c.MQTT.Bridge.QoS > 2 {
			return fmt.Errorf("mqtt.bridge.qos must be 0, 1 or 2")
		}
	default:
		return fmt.Errorf("mqtt.mode %q is not one of embedded, bridge, disabled", c.MQTT.Mode)
	}

	if c.Influx.URL != "" && (c.Influx.Org == "" || c.Influx.Bucket == "") {
		return fmt.Errorf("influx.org and influx.bucket are required when influx.url is set")
	}
	if c.HTTP.BodyLimitBytes < 0 {
		return fmt.Errorf("http.body_limit_bytes must be positive")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	if c.Logs.Dir == "" {
		return fmt.Errorf("logs.dir is required")
	}
	return nil
}
