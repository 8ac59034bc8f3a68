package mqtt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/suhail953/wattflow/internal/ports"
)

// Broker embeds an MQTT broker and reports its client events. Any client
// may connect and publish on any topic.
type Broker struct {
	addr   string
	logger *slog.Logger

	mu     sync.Mutex
	events ports.BrokerEvents
	server *mochi.Server
}

func NewBroker(addr string, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{addr: addr, logger: logger}
}

func (b *Broker) Name() string { return "mqtt-embedded" }

func (b *Broker) Handle(events ports.BrokerEvents) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = events
}

// Start binds the listener and serves in the background.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		return errors.New("mqtt broker: no event handler registered")
	}
	if b.server != nil {
		return errors.New("mqtt broker: already started")
	}

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       b.logger.With("component", "mqtt-broker"),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return fmt.Errorf("mqtt broker auth hook: %w", err)
	}
	if err := server.AddHook(&eventHook{events: b.events}, nil); err != nil {
		return fmt.Errorf("mqtt broker event hook: %w", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "wattflow-tcp", Address: b.addr})
	if err := server.AddListener(tcp); err != nil {
		return fmt.Errorf("mqtt broker listen %s: %w", b.addr, err)
	}
	if err := server.Serve(); err != nil {
		_ = server.Close()
		return fmt.Errorf("mqtt broker serve: %w", err)
	}
	b.server = server
	b.logger.Info("mqtt broker listening", slog.String("addr", b.addr))
	return nil
}

// Publish sends a message from the broker's inline client. Such messages
// are not reported as telemetry.
func (b *Broker) Publish(topic string, payload []byte, qos byte) error {
	b.mu.Lock()
	server := b.server
	b.mu.Unlock()
	if server == nil {
		return errors.New("mqtt broker: not started")
	}
	return server.Publish(topic, payload, false, qos)
}

func (b *Broker) Stop() error {
	b.mu.Lock()
	server := b.server
	b.server = nil
	b.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Close()
}

// eventHook forwards connect, disconnect and publish events.
type eventHook struct {
	mochi.HookBase
	events ports.BrokerEvents
}

func (h *eventHook) ID() string { return "wattflow-events" }

func (h *eventHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mochi.OnConnect,
		mochi.OnDisconnect,
		mochi.OnPublished,
	}, []byte{b})
}

func (h *eventHook) OnConnect(cl *mochi.Client, pk packets.Packet) error {
	if cl.Net.Inline {
		return nil
	}
	h.events.OnConnect(cl.ID, cl.Net.Remote)
	return nil
}

func (h *eventHook) OnDisconnect(cl *mochi.Client, err error, expire bool) {
	if cl.Net.Inline {
		return
	}
	h.events.OnDisconnect(cl.ID, err)
}

func (h *eventHook) OnPublished(cl *mochi.Client, pk packets.Packet) {
	if cl == nil || cl.Net.Inline {
		return
	}
	h.events.OnPublish(cl.ID, pk.TopicName, pk.Payload)
}

var _ ports.Transport = (*Broker)(nil)
