package ports

import (
	"context"

	"github.com/suhail953/wattflow/internal/domain"
)

// Store persists committed records and answers the aggregate queries used by
// the health reporter. Implementations must be safe for concurrent use.
type Store interface {
	// Save assigns ReceivedAt (when zero) and a unique ID.
	Save(ctx context.Context, rec *domain.IngestedRecord) (domain.StoredRecord, error)
	Count(ctx context.Context) (uint64, error)
	// Latest returns nil, nil when the store is empty.
	Latest(ctx context.Context) (*domain.IngestedRecord, error)
	// IsConnected reports the last known connectivity state without blocking.
	IsConnected() bool
	// Ping probes the backend and refreshes the connectivity state.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	Name() string
}
