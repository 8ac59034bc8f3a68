package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrParse marks payloads that are not well-formed JSON.
var ErrParse = errors.New("payload is not valid JSON")

// Reason enumerates why a well-formed payload was rejected.
type Reason string

const (
	MissingMac     Reason = "MissingMac"
	MissingSamples Reason = "MissingSamples"
	InvalidSample  Reason = "InvalidSample"
)

// ValidationError is returned for payloads that parse but are incomplete.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case MissingMac:
		return "MAC address is required"
	case MissingSamples:
		if e.Detail != "" {
			return "Data array is required: " + e.Detail
		}
		return "Data array is required"
	default:
		if e.Detail != "" {
			return "Invalid data point: " + e.Detail
		}
		return "Invalid data point"
	}
}

// Rules toggles the checks layered on top of the mac/data presence rules.
type Rules struct {
	// RequireTimestamps rejects samples whose ts is missing or not positive.
	RequireTimestamps bool
	// RejectEmpty rejects a batch whose data array has no elements.
	RejectEmpty bool
}

// DefaultRules enables timestamp checks and keeps empty batches permissive.
func DefaultRules() Rules {
	return Rules{RequireTimestamps: true}
}

// RawBatch is a parsed but not yet validated payload. Fields is nil when the
// payload is valid JSON but not an object.
type RawBatch struct {
	Fields map[string]json.RawMessage
	Raw    json.RawMessage
}

// Parse checks the payload is well-formed JSON and splits the top-level object.
func Parse(payload []byte) (*RawBatch, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, ErrParse
	}
	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)

	rb := &RawBatch{Raw: raw}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &rb.Fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	}
	return rb, nil
}

var (
	sampleValidate     *validator.Validate
	sampleValidateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	sampleValidateOnce.Do(func() {
		sampleValidate = validator.New(validator.WithRequiredStructEnabled())
	})
	return sampleValidate
}

// Validate applies the batch rules in order and stops at the first failure.
// It has no side effects and is safe for concurrent use.
func Validate(rb *RawBatch, rules Rules) (*TelemetryBatch, error) {
	if rb == nil {
		return nil, &ValidationError{Reason: MissingMac}
	}

	var mac string
	macRaw, ok := rb.Fields["mac"]
	if !ok || json.Unmarshal(macRaw, &mac) != nil || mac == "" {
		return nil, &ValidationError{Reason: MissingMac}
	}

	dataRaw, ok := rb.Fields["data"]
	dataRaw = bytes.TrimSpace(dataRaw)
	if !ok || len(dataRaw) == 0 || dataRaw[0] != '[' {
		return nil, &ValidationError{Reason: MissingSamples}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(dataRaw, &elems); err != nil {
		return nil, &ValidationError{Reason: MissingSamples, Detail: err.Error()}
	}
	if len(elems) == 0 && rules.RejectEmpty {
		return nil, &ValidationError{Reason: MissingSamples, Detail: "data array is empty"}
	}

	samples := make([]TelemetrySample, 0, len(elems))
	for i, elem := range elems {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			return nil, &ValidationError{Reason: InvalidSample, Detail: fmt.Sprintf("data[%d] is not an object", i)}
		}
		var s TelemetrySample
		if err := json.Unmarshal(elem, &s); err != nil {
			return nil, &ValidationError{Reason: InvalidSample, Detail: fmt.Sprintf("data[%d]: %v", i, err)}
		}
		if rules.RequireTimestamps {
			if err := validatorInstance().Struct(s); err != nil {
				return nil, &ValidationError{Reason: InvalidSample, Detail: fmt.Sprintf("data[%d].ts must be a positive epoch-millisecond timestamp", i)}
			}
		}
		samples = append(samples, s)
	}

	return &TelemetryBatch{Mac: mac, Samples: samples, Raw: rb.Raw}, nil
}

// ReasonOf extracts the validation reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}
