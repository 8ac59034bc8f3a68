package pipeline

import (
	"fmt"

	"github.com/suhail953/wattflow/internal/ports"
)

// BestEffort runs side effects whose failure must never change an ingest
// outcome. Errors and panics are logged and counted, then swallowed.
type BestEffort struct {
	obs     ports.Observability
	counter string
}

func NewBestEffort(obs ports.Observability, counter string) BestEffort {
	return BestEffort{obs: obs, counter: counter}
}

// Do runs fn and reports whether it succeeded.
func (b BestEffort) Do(op string, fn func() error, fields ...ports.Field) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.fail(op, fmt.Errorf("panic: %v", r), fields)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		b.fail(op, err, fields)
		return false
	}
	return true
}

func (b BestEffort) fail(op string, err error, fields []ports.Field) {
	b.obs.LogError(op+"_failed", err, fields...)
	if b.counter != "" {
		b.obs.IncCounter(b.counter, 1)
	}
}
