package wattflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/suhail953/wattflow/internal/domain"
)

func testRecord() *domain.IngestedRecord {
	power := 3.14
	return &domain.IngestedRecord{
		ID:      "rec-1",
		Mac:     "AA:BB",
		Source:  domain.SourceRequest,
		Samples: []domain.TelemetrySample{{Timestamp: 42, Power: &power}},
	}
}

func TestNewCallbackMirror(t *testing.T) {
	var received []Record
	mirror := NewCallbackMirror("cb", func(_ context.Context, rec Record) error {
		received = append(received, rec)
		return nil
	})

	input := testRecord()
	if err := mirror.Mirror(context.Background(), input); err != nil {
		t.Fatalf("Mirror returned error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 record, got %d", len(received))
	}
	got := received[0]
	if got.ID != input.ID || got.Mac != input.Mac {
		t.Fatalf("mismatched record: %+v vs %+v", got, input)
	}

	*got.Samples[0].Power = 0
	if *input.Samples[0].Power != 3.14 {
		t.Fatalf("expected samples to be copied")
	}
	if mirror.Name() != "cb" {
		t.Fatalf("unexpected name %q", mirror.Name())
	}
}

func TestNewCallbackMirrorNilHandler(t *testing.T) {
	mirror := NewCallbackMirror("", nil)
	if err := mirror.Mirror(context.Background(), testRecord()); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
	if mirror.Name() != "callback" {
		t.Fatalf("expected default name, got %q", mirror.Name())
	}
}

func TestNewChannelMirror(t *testing.T) {
	mirror, ch, closeFn := NewChannelMirror("chan", 1)
	defer closeFn()

	input := testRecord()
	errCh := make(chan error, 1)

	go func() {
		errCh <- mirror.Mirror(context.Background(), input)
	}()

	var rec Record
	select {
	case rec = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel record")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Mirror returned error: %v", err)
	}
	if rec.Mac != input.Mac {
		t.Fatalf("unexpected record data: %+v", rec)
	}

	closeFn()
	if err := mirror.Mirror(context.Background(), input); !errors.Is(err, ErrChannelMirrorClosed) {
		t.Fatalf("expected ErrChannelMirrorClosed, got %v", err)
	}
}

func TestChannelMirrorRespectsContext(t *testing.T) {
	mirror, _, closeFn := NewChannelMirror("full", 0)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := mirror.Mirror(ctx, testRecord()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestChannelMirrorCloseUnblocksWriter(t *testing.T) {
	mirror, _, closeFn := NewChannelMirror("blocked", 0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- mirror.Mirror(context.Background(), testRecord())
	}()
	time.Sleep(10 * time.Millisecond)
	closeFn()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrChannelMirrorClosed) {
			t.Fatalf("expected ErrChannelMirrorClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer stayed blocked after close")
	}
}
