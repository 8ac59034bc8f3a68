package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/suhail953/wattflow/internal/domain"
)

var errDown = errors.New("down")

func TestStateObserve(t *testing.T) {
	s := NewState(false)
	s.Observe(nil, nil)
	assert.True(t, s.Connected())

	isConn := func(err error) bool { return errors.Is(err, errDown) }
	s.Observe(errors.New("constraint violation"), isConn)
	assert.True(t, s.Connected(), "non-connectivity errors keep the state")

	s.Observe(errDown, isConn)
	assert.False(t, s.Connected())
}

func TestStampKeepsExistingReceivedAt(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)
	rec := &domain.IngestedRecord{}
	Stamp(rec, func() time.Time { return fixed })
	assert.Equal(t, fixed.Truncate(time.Millisecond), rec.ReceivedAt)

	earlier := fixed.Add(-time.Hour)
	rec.ReceivedAt = earlier
	Stamp(rec, func() time.Time { return fixed })
	assert.Equal(t, earlier, rec.ReceivedAt)
}
