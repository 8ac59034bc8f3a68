package wattflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/suhail953/wattflow/internal/domain"
)

// ErrChannelMirrorClosed is returned when a channel mirror is written to after being closed.
var ErrChannelMirrorClosed = errors.New("wattflow: channel mirror closed")

// RecordHandler is invoked with every committed record.
type RecordHandler func(ctx context.Context, rec Record) error

// NewCallbackMirror adapts a RecordHandler into a Mirror so callers can plug
// arbitrary functions without defining structs. The handler receives a copy.
func NewCallbackMirror(name string, fn RecordHandler) Mirror {
	if name == "" {
		name = "callback"
	}
	return &callbackMirror{name: name, fn: fn}
}

// NewChannelMirror exposes committed records via a channel; it returns the
// mirror, the read-only channel, and a close function that the caller should
// invoke during shutdown. A full channel blocks until the mirror timeout.
func NewChannelMirror(name string, buffer int) (Mirror, <-chan Record, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Record, buffer)
	m := &channelMirror{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return m, ch, func() { m.close() }
}

type callbackMirror struct {
	name string
	fn   RecordHandler
}

func (m *callbackMirror) Mirror(ctx context.Context, rec *domain.IngestedRecord) error {
	if m.fn == nil {
		return fmt.Errorf("callback mirror %q: nil handler", m.name)
	}
	return m.fn(ctx, copyRecord(rec))
}

func (m *callbackMirror) Name() string { return m.name }

type channelMirror struct {
	name   string
	mu     sync.RWMutex
	ch     chan Record
	closed chan struct{}
	once   sync.Once
}

func (m *channelMirror) Mirror(ctx context.Context, rec *domain.IngestedRecord) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	select {
	case <-m.closed:
		return ErrChannelMirrorClosed
	default:
	}

	select {
	case <-m.closed:
		return ErrChannelMirrorClosed
	case <-ctx.Done():
		return ctx.Err()
	case m.ch <- copyRecord(rec):
		return nil
	}
}

func (m *channelMirror) Name() string { return m.name }

func (m *channelMirror) close() {
	m.once.Do(func() {
		close(m.closed)
		m.mu.Lock()
		close(m.ch)
		m.mu.Unlock()
	})
}

func copyRecord(rec *domain.IngestedRecord) Record {
	out := *rec
	out.Samples = domain.CopySamples(rec.Samples)
	return out
}
