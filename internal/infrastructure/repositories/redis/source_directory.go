package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"
	"ndilive/pkg/circuitbreaker"
	"ndilive/pkg/retry"
	"ndilive/pkg/tracing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Snapshot is the stored and published form of one instance's sources.
type Snapshot struct {
	Instance  string          `json:"instance"`
	Sources   []domain.Source `json:"sources"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type DirectoryOptions struct {
	Prefix   string
	Instance string
	// TTL expires the snapshot of an instance that stopped refreshing it.
	TTL   time.Duration
	Retry retry.Config
	// Breaker guards redis once retries keep failing.
	Breaker circuitbreaker.Config
	Logger  *zap.SugaredLogger
}

// SourceDirectory keeps this instance's source list in redis. The snapshot
// lives under <prefix>:sources:<instance> and every update is also
// published on <prefix>:sources.
type SourceDirectory struct {
	store   store
	opts    DirectoryOptions
	breaker *circuitbreaker.Breaker

	// mu serializes writes so a refresh never stores an older list over a
	// newer one.
	mu     sync.Mutex
	latest []domain.Source
	set    bool
}

var (
	_ ports.SourceDirectory = (*SourceDirectory)(nil)
	_ ports.SourceObserver  = (*SourceDirectory)(nil)
)

func NewSourceDirectory(client redis.UniversalClient, opts DirectoryOptions) *SourceDirectory {
	return newSourceDirectory(clientStore{client: client}, opts)
}

func newSourceDirectory(s store, opts DirectoryOptions) *SourceDirectory {
	if opts.Prefix == "" {
		opts.Prefix = "ndilive"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if !opts.Retry.Enabled && opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	opts.Retry.Permanent = append(slices.Clip(opts.Retry.Permanent), redis.Nil)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	d := &SourceDirectory{
		store:   s,
		opts:    opts,
		breaker: circuitbreaker.New("redis-source-directory", opts.Breaker),
	}
	d.breaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		d.opts.Logger.Warnw("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	})
	return d
}

func (d *SourceDirectory) Channel() string {
	return d.opts.Prefix + ":sources"
}

func (d *SourceDirectory) key(instance string) string {
	return d.opts.Prefix + ":sources:" + instance
}

// Publish stores sources as this instance's snapshot and announces it.
// The list is kept as the latest even when redis fails, and Run stores it
// on its next refresh.
func (d *SourceDirectory) Publish(ctx context.Context, sources []domain.Source) error {
	if sources == nil {
		sources = []domain.Source{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = append([]domain.Source(nil), sources...)
	d.set = true
	return d.storeLocked(ctx, d.latest)
}

func (d *SourceDirectory) storeLocked(ctx context.Context, sources []domain.Source) error {
	ctx, span := tracing.TraceDirectoryOperation(ctx, "publish", d.key(d.opts.Instance))
	defer span.End()

	data, err := json.Marshal(Snapshot{Instance: d.opts.Instance, Sources: sources, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal source snapshot: %w", err)
	}

	err = d.breaker.Execute(func() error {
		return retry.Do(ctx, d.opts.Retry, func(ctx context.Context) error {
			if err := d.store.Set(ctx, d.key(d.opts.Instance), string(data), d.opts.TTL); err != nil {
				return fmt.Errorf("failed to store source snapshot: %w", err)
			}
			if err := d.store.Publish(ctx, d.Channel(), string(data)); err != nil {
				return fmt.Errorf("failed to publish source snapshot: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

// refresh stores the latest list again, if there is one.
func (d *SourceDirectory) refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.set {
		return nil
	}
	return d.storeLocked(ctx, d.latest)
}

// Lookup returns the sources an instance last stored. A missing or
// expired snapshot yields domain.ErrSourceNotFound.
func (d *SourceDirectory) Lookup(ctx context.Context, instance string) ([]domain.Source, error) {
	ctx, span := tracing.TraceDirectoryOperation(ctx, "lookup", d.key(instance))
	defer span.End()

	// a missing key is an answer, not a redis failure
	var missing bool
	data, err := circuitbreaker.Execute(d.breaker, func() (string, error) {
		v, err := retry.DoWithResult(ctx, d.opts.Retry, func(ctx context.Context) (string, error) {
			return d.store.Get(ctx, d.key(instance))
		})
		if errors.Is(err, redis.Nil) {
			missing = true
			return "", nil
		}
		return v, err
	})
	if missing {
		return nil, fmt.Errorf("%w: no snapshot for instance %s", domain.ErrSourceNotFound, instance)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to get source snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source snapshot: %w", err)
	}
	return snap.Sources, nil
}

// SourcesChanged publishes every snapshot the shared monitor reports.
func (d *SourceDirectory) SourcesChanged(ctx context.Context, sources []domain.Source) {
	if err := d.Publish(ctx, sources); err != nil {
		d.opts.Logger.Warnw("source directory publish failed", "instance", d.opts.Instance, "sources", len(sources), "error", err)
		return
	}
	d.opts.Logger.Debugw("source directory updated", "instance", d.opts.Instance, "sources", len(sources))
}

// Run stores the latest list again every half TTL, so a stable list does
// not expire and a list whose publish failed is retried. The snapshot is
// withdrawn when ctx is done.
func (d *SourceDirectory) Run(ctx context.Context) {
	ticker := time.NewTicker(d.opts.TTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			withdrawCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := d.Withdraw(withdrawCtx); err != nil {
				d.opts.Logger.Warnw("source directory withdraw failed", "instance", d.opts.Instance, "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := d.refresh(ctx); err != nil {
				d.opts.Logger.Warnw("source directory refresh failed", "instance", d.opts.Instance, "error", err)
			}
		}
	}
}

// Withdraw deletes this instance's snapshot.
func (d *SourceDirectory) Withdraw(ctx context.Context) error {
	if err := d.store.Del(ctx, d.key(d.opts.Instance)); err != nil {
		return fmt.Errorf("failed to delete source snapshot: %w", err)
	}
	return nil
}
