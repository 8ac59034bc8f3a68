package pipeline

import (
	"errors"
	"testing"
)

func TestBestEffortSwallowsErrorsAndPanics(t *testing.T) {
	obs := newMockObs()
	be := NewBestEffort(obs, "failures")

	if !be.Do("ok", func() error { return nil }) {
		t.Fatalf("expected success")
	}
	if be.Do("write", func() error { return errors.New("disk full") }) {
		t.Fatalf("expected failure to be reported")
	}
	if be.Do("boom", func() error { panic("bad") }) {
		t.Fatalf("expected panic to be reported as failure")
	}
	if obs.counter("failures") != 2 {
		t.Fatalf("expected 2 counted failures, got %v", obs.counter("failures"))
	}
	if !obs.loggedError("write_failed") || !obs.loggedError("boom_failed") {
		t.Fatalf("expected failures on the diagnostic channel, got %v", obs.errors)
	}
}
