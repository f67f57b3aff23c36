package ports

import (
	"context"

	"quantRouter/internal/domain"
)

// SnapshotRepository stores the per-instrument position snapshot the router
// seeds from at startup and rewrites after every successful execution.
type SnapshotRepository interface {
	// Save upserts the snapshot for the position's symbol.
	Save(ctx context.Context, pos domain.Position) error
	// Load retrieves the snapshot for a symbol.
	// Returns nil, nil if no snapshot exists yet.
	Load(ctx context.Context, symbol string) (*domain.Position, error)
}

// ExecutionRepository persists the audit trail of routing decisions.
type ExecutionRepository interface {
	// Record saves one execution result and returns its assigned ID.
	Record(ctx context.Context, res *domain.ExecutionResult) (int64, error)
	// RecentBySymbol retrieves the most recent results for a symbol, newest
	// first, up to a limit.
	RecentBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ExecutionResult, error)
}
