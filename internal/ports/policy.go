package ports

import "time"

type Policy struct {
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	MirrorTimeout time.Duration `yaml:"mirror_timeout"`

	RequireTimestamps  bool `yaml:"require_timestamps"`
	RejectEmptySamples bool `yaml:"reject_empty_samples"`

	// AuditFailedAttempts also writes an audit envelope when the store save fails.
	AuditFailedAttempts bool `yaml:"audit_failed_attempts"`
}
