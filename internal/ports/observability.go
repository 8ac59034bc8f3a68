package ports

import "github.com/suhail953/wattflow/internal/domain"

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	// RecordRejected counts a payload that never reached the store.
	RecordRejected(origin domain.Origin, reason string)
}

type Field struct {
	Key   string
	Value any
}
