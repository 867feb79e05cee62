package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"

	"go.uber.org/zap"
)

const (
	defaultPollInterval = 10 * time.Millisecond
	maxPollInterval     = time.Second
)

type DiscoveryOptions struct {
	Find ports.FindOptions
	// PollInterval is the pause between non-blocking polls in AwaitChange.
	PollInterval time.Duration
	Logger       *zap.SugaredLogger
}

// Discovery wraps one transport discovery instance. Native calls on the
// instance are serialized.
type Discovery struct {
	transport    ports.Transport
	handle       ports.FindHandle
	pollInterval time.Duration
	logger       *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// NewDiscovery creates a discovery instance. It returns
// domain.ErrDiscoveryUnavailable when the transport cannot be initialized
// or refuses to create the instance.
func NewDiscovery(transport ports.Transport, opts DiscoveryOptions) (*Discovery, error) {
	if transport == nil {
		return nil, domain.ErrDiscoveryUnavailable
	}
	if err := transport.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiscoveryUnavailable, err)
	}
	h, err := transport.FindCreate(opts.Find)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiscoveryUnavailable, err)
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if interval > maxPollInterval {
		interval = maxPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Discovery{
		transport:    transport,
		handle:       h,
		pollInterval: interval,
		logger:       logger,
	}, nil
}

// PollChanged makes one native wait call bounded by timeout and reports
// whether the source list changed.
func (d *Discovery) PollChanged(timeout time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if timeout < 0 {
		timeout = 0
	}
	return d.transport.FindWaitForSources(d.handle, timeout)
}

// CurrentSources returns the latest snapshot without touching the network.
func (d *Discovery) CurrentSources() []domain.Source {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	return d.transport.FindCurrentSources(d.handle)
}

// AwaitChange polls until the source list changes or ctx is done. It never
// holds the native call for longer than one zero-timeout poll, so
// cancellation is observed within one poll interval.
func (d *Discovery) AwaitChange(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	for {
		if d.PollChanged(0) {
			return true
		}
		if d.isClosed() {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(d.pollInterval):
		}
	}
}

// FindSourceByName returns the first source named name, waiting for
// discovery changes until it shows up or ctx is done.
func (d *Discovery) FindSourceByName(ctx context.Context, name string) (domain.Source, bool) {
	for {
		for _, src := range d.CurrentSources() {
			if src.Name == name {
				return src, true
			}
		}
		if !d.AwaitChange(ctx) {
			return domain.Source{}, false
		}
	}
}

func (d *Discovery) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.transport.FindDestroy(d.handle)
}

func (d *Discovery) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
