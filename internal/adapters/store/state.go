// Package store holds helpers shared by the Store backends.
package store

import (
	"sync/atomic"
	"time"

	"github.com/suhail953/wattflow/internal/domain"
)

// State tracks the last known connectivity of a backend. Operations report
// their outcome through Observe; readers never block.
type State struct {
	connected atomic.Bool
}

func NewState(connected bool) *State {
	s := &State{}
	s.connected.Store(connected)
	return s
}

func (s *State) Connected() bool { return s.connected.Load() }

func (s *State) Set(connected bool) { s.connected.Store(connected) }

// Observe marks the backend connected on success and disconnected when
// isConnErr classifies err as a connectivity failure.
func (s *State) Observe(err error, isConnErr func(error) bool) {
	switch {
	case err == nil:
		s.connected.Store(true)
	case isConnErr != nil && isConnErr(err):
		s.connected.Store(false)
	}
}

// Stamp assigns ReceivedAt when it is zero. Times are truncated to
// milliseconds so every backend round-trips the same value.
func Stamp(rec *domain.IngestedRecord, now func() time.Time) {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = now().UTC().Truncate(time.Millisecond)
	}
}
