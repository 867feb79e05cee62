package ports

import (
	"context"

	"ndilive/internal/core/domain"
)

// SourceDirectory stores the latest source snapshot of this instance where
// other processes can read it.
type SourceDirectory interface {
	Publish(ctx context.Context, sources []domain.Source) error
	Lookup(ctx context.Context, instanceID string) ([]domain.Source, error)
}
