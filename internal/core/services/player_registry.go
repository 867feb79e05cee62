package services

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"weak"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"
	"ndilive/pkg/tracing"

	"go.uber.org/zap"
)

// PlayerRegistry hands out at most one live Player per source name. It
// holds players weakly: a player stays registered only while something
// else references it.
type PlayerRegistry struct {
	transport ports.Transport
	opts      PlayerOptions
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	players map[string]weak.Pointer[Player]
}

// NewPlayerRegistry creates a registry. When discovery is non-nil, name
// lookups go through its shared monitor instead of a fresh discovery
// instance per acquisition.
func NewPlayerRegistry(transport ports.Transport, discovery *DiscoveryRegistry, opts PlayerOptions) *PlayerRegistry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Lookup == nil && discovery != nil {
		opts.Lookup = sharedLookup(discovery, opts.Logger)
	}
	return &PlayerRegistry{
		transport: transport,
		opts:      opts,
		logger:    opts.Logger,
		players:   make(map[string]weak.Pointer[Player]),
	}
}

func sharedLookup(discovery *DiscoveryRegistry, logger *zap.SugaredLogger) SourceLookup {
	return func(ctx context.Context, name string) (domain.Source, bool) {
		ctx, span := tracing.TraceSourceLookup(ctx, name)
		defer span.End()

		m, err := discovery.Shared()
		if err != nil {
			logger.Warnw("source lookup without discovery", "source", name, "error", err)
			return domain.Source{}, false
		}
		return m.FindSourceByName(ctx, name)
	}
}

// ForName returns the live player for name, creating one if needed.
func (r *PlayerRegistry) ForName(name string) *Player {
	return r.get(name, nil)
}

// ForSource returns the live player for source.Name. A newly created player
// connects to source directly without a name lookup.
func (r *PlayerRegistry) ForSource(source domain.Source) *Player {
	return r.get(source.Name, &source)
}

func (r *PlayerRegistry) get(name string, source *domain.Source) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wp, ok := r.players[name]; ok {
		if p := wp.Value(); p != nil && !p.core.isClosed() {
			return p
		}
	}

	p := NewPlayer(r.transport, name, source, r.opts)
	wp := weak.Make(p)
	r.players[name] = wp
	runtime.AddCleanup(p, func(name string) { r.prune(name, wp) }, name)
	r.logger.Debugw("player created", "source", name)
	return p
}

func (r *PlayerRegistry) prune(name string, wp weak.Pointer[Player]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.players[name]; ok && cur == wp {
		delete(r.players, name)
	}
}

// Players returns the live, open players ordered by name.
func (r *PlayerRegistry) Players() []*Player {
	r.mu.Lock()
	players := make([]*Player, 0, len(r.players))
	for name, wp := range r.players {
		p := wp.Value()
		if p == nil {
			delete(r.players, name)
			continue
		}
		if p.core.isClosed() {
			continue
		}
		players = append(players, p)
	}
	r.mu.Unlock()

	sort.Slice(players, func(i, j int) bool { return players[i].Name() < players[j].Name() })
	return players
}

// Len returns the number of registered entries, including ones whose player
// has been collected but not yet pruned.
func (r *PlayerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Close closes every live player and empties the registry.
func (r *PlayerRegistry) Close() {
	r.mu.Lock()
	players := make([]*Player, 0, len(r.players))
	for _, wp := range r.players {
		if p := wp.Value(); p != nil {
			players = append(players, p)
		}
	}
	r.players = make(map[string]weak.Pointer[Player])
	r.mu.Unlock()

	for _, p := range players {
		p.Close()
	}
}
