package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/suhail953/wattflow/internal/ports"
)

// BridgeConfig points the bridge at an upstream broker.
type BridgeConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	// ClientIDLevel selects the topic segment reported as the publisher id,
	// e.g. 1 for "wattmon/{device}/data". Negative disables it.
	ClientIDLevel  int
	ConnectTimeout time.Duration
}

// Bridge subscribes to an upstream broker and reports its publishes. The
// upstream broker does not expose its clients, so OnConnect and
// OnDisconnect describe the bridge's own session.
type Bridge struct {
	cfg    BridgeConfig
	logger *slog.Logger

	mu     sync.Mutex
	events ports.BrokerEvents
	client paho.Client
}

func NewBridge(cfg BridgeConfig, logger *slog.Logger) *Bridge {
	if cfg.Topic == "" {
		cfg.Topic = "#"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "wattflow-bridge"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{cfg: cfg, logger: logger}
}

func (b *Bridge) Name() string { return "mqtt-bridge" }

func (b *Bridge) Handle(events ports.BrokerEvents) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = events
}

// Start connects and subscribes. The subscription is renewed on every
// reconnect.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		return errors.New("mqtt bridge: no event handler registered")
	}
	if b.client != nil {
		return errors.New("mqtt bridge: already started")
	}

	events := b.events
	opts := paho.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(b.cfg.ConnectTimeout)

	opts.SetOnConnectHandler(func(c paho.Client) {
		events.OnConnect(b.cfg.ClientID, b.cfg.Broker)
		token := c.Subscribe(b.cfg.Topic, b.cfg.QoS, b.onMessage(events))
		if token.WaitTimeout(b.cfg.ConnectTimeout) && token.Error() != nil {
			b.logger.Error("mqtt bridge subscribe failed",
				slog.String("topic", b.cfg.Topic), slog.Any("error", token.Error()))
			return
		}
		b.logger.Info("mqtt bridge subscribed",
			slog.String("topic", b.cfg.Topic), slog.Int("qos", int(b.cfg.QoS)))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		events.OnDisconnect(b.cfg.ClientID, err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt bridge connect %s: %w", b.cfg.Broker, err)
	}
	b.client = client
	return nil
}

func (b *Bridge) onMessage(events ports.BrokerEvents) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		clientID, ok := ClientIDFromTopic(msg.Topic(), b.cfg.ClientIDLevel)
		if !ok {
			clientID = b.cfg.ClientID
		}
		events.OnPublish(clientID, msg.Topic(), msg.Payload())
	}
}

func (b *Bridge) Stop() error {
	b.mu.Lock()
	client := b.client
	b.client = nil
	events := b.events
	b.mu.Unlock()
	if client == nil {
		return nil
	}
	client.Disconnect(250)
	events.OnDisconnect(b.cfg.ClientID, nil)
	return nil
}

// ClientIDFromTopic returns the non-empty topic segment at level.
func ClientIDFromTopic(topic string, level int) (string, bool) {
	if level < 0 {
		return "", false
	}
	parts := strings.Split(topic, "/")
	if level >= len(parts) || parts[level] == "" {
		return "", false
	}
	return parts[level], true
}

var _ ports.Transport = (*Bridge)(nil)
