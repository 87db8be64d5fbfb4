package port

import (
	"context"

	"marketsim/internal/domain"
)

// DepthCache publishes the latest depth snapshot of a run for external
// observers.
type DepthCache interface {
	SetDepth(ctx context.Context, runID string, snap *domain.DepthSnapshot) error
	GetDepth(ctx context.Context, runID string) (*domain.DepthSnapshot, error)
}
