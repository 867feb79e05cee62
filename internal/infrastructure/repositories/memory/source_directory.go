package memory

import (
	"context"
	"fmt"
	"sync"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"
)

// SourceDirectory keeps source snapshots in process. It serves a single
// instance when no shared directory is configured.
type SourceDirectory struct {
	instance string

	mu        sync.RWMutex
	snapshots map[string][]domain.Source
}

var (
	_ ports.SourceDirectory = (*SourceDirectory)(nil)
	_ ports.SourceObserver  = (*SourceDirectory)(nil)
)

func NewSourceDirectory(instance string) *SourceDirectory {
	return &SourceDirectory{
		instance:  instance,
		snapshots: make(map[string][]domain.Source),
	}
}

func (d *SourceDirectory) Publish(ctx context.Context, sources []domain.Source) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots[d.instance] = append([]domain.Source{}, sources...)
	return nil
}

func (d *SourceDirectory) Lookup(ctx context.Context, instance string) ([]domain.Source, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sources, ok := d.snapshots[instance]
	if !ok {
		return nil, fmt.Errorf("%w: no snapshot for instance %s", domain.ErrSourceNotFound, instance)
	}
	return append([]domain.Source{}, sources...), nil
}

func (d *SourceDirectory) SourcesChanged(ctx context.Context, sources []domain.Source) {
	_ = d.Publish(ctx, sources)
}
