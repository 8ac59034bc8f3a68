package pipeline

import (
	"errors"
	"time"

	"github.com/suhail953/wattflow/internal/domain"
)

// Kind classifies the result of one ingest call.
type Kind int

const (
	Committed Kind = iota + 1
	Rejected
	Failed
)

func (k Kind) String() string {
	switch k {
	case Committed:
		return "committed"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReasonParse labels rejections of payloads that are not valid JSON.
const ReasonParse = "ParseError"

// StoreError wraps a failed store write.
type StoreError struct {
	Store string
	Err   error
}

func (e *StoreError) Error() string { return e.Store + " save failed: " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

// Outcome is what Ingest reports back to a channel adapter.
//
// Committed outcomes carry the stored id, receive time and sample count.
// Rejected outcomes carry domain.ErrParse or a *domain.ValidationError in
// Err. Failed outcomes carry a *StoreError.
type Outcome struct {
	Kind        Kind
	ID          string
	Mac         string
	ReceivedAt  time.Time
	SampleCount int
	Err         error
}

// Reason reports the validation reason of a rejected outcome, or
// ReasonParse for malformed payloads.
func (o Outcome) Reason() string {
	if o.Kind != Rejected {
		return ""
	}
	if r, ok := domain.ReasonOf(o.Err); ok {
		return string(r)
	}
	return ReasonParse
}

// IsParseError reports whether the payload was rejected as malformed JSON.
func (o Outcome) IsParseError() bool {
	return o.Kind == Rejected && errors.Is(o.Err, domain.ErrParse)
}

// StoreError returns the underlying store failure of a Failed outcome.
func (o Outcome) StoreError() *StoreError {
	var se *StoreError
	if errors.As(o.Err, &se) {
		return se
	}
	return nil
}
