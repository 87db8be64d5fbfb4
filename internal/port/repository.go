package port

import (
	"context"

	"marketsim/internal/domain"
)

// Repository persists simulation outputs: fills and run summaries. Book
// state itself is never stored; replaying the tape reproduces it.
type Repository interface {
	SaveRun(ctx context.Context, run *domain.RunSummary) error
	SaveFill(ctx context.Context, f *domain.Fill) error
	// SaveRunWithFills finalizes a run atomically: the summary and its fills
	// land together or not at all. Fills already written incrementally are
	// deduplicated by record ID.
	SaveRunWithFills(ctx context.Context, run *domain.RunSummary, fills []*domain.Fill) error
	LoadFills(ctx context.Context, runID string) ([]*domain.Fill, error)
	Close(ctx context.Context)
}
