package ports

import (
	"context"

	"github.com/suhail953/wattflow/internal/domain"
)

// AuditSink appends envelopes to the audit trail.
type AuditSink interface {
	Append(env domain.AuditEnvelope) error
}

// Mirror receives committed records after the audit append, e.g. to copy
// samples into a time-series database.
type Mirror interface {
	Mirror(ctx context.Context, rec *domain.IngestedRecord) error
	Name() string
}
