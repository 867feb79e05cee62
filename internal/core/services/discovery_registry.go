package services

import (
	"context"
	"runtime"
	"sync"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"

	"go.uber.org/zap"
)

const defaultRefreshInterval = 20 * time.Millisecond

type MonitorOptions struct {
	Discovery DiscoveryOptions
	// RefreshInterval is the pause between background polls. Zero uses the
	// default; a negative value only yields the processor.
	RefreshInterval time.Duration
	Metrics         ports.Metrics
	Logger          *zap.SugaredLogger
}

// SourceMonitor keeps a shared Discovery polled in the background and fans
// source list changes out to watchers and observers.
type SourceMonitor struct {
	discovery *Discovery
	refresh   time.Duration
	metrics   ports.Metrics
	logger    *zap.SugaredLogger

	mu        sync.RWMutex
	sources   []domain.Source
	watchers  map[uint64]chan []domain.Source
	observers []*observerFeed
	nextID    uint64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	observing sync.WaitGroup
}

// observerFeed hands snapshots to one observer on its own goroutine. Only
// the newest undelivered snapshot is kept. A slow observer skips
// intermediate lists.
type observerFeed struct {
	observer ports.SourceObserver
	pending  chan []domain.Source
}

func newSourceMonitor(d *Discovery, opts MonitorOptions, observers []ports.SourceObserver) *SourceMonitor {
	refresh := opts.RefreshInterval
	if refresh == 0 {
		refresh = defaultRefreshInterval
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &SourceMonitor{
		discovery: d,
		refresh:   refresh,
		metrics:   metrics,
		logger:    logger,
		watchers:  make(map[uint64]chan []domain.Source),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.sources = d.CurrentSources()
	for _, o := range observers {
		m.addObserverLocked(o)
	}
	go m.run()
	return m
}

func (m *SourceMonitor) run() {
	defer close(m.done)
	m.logger.Infow("source monitor started", "refresh_interval", m.refresh)

	initial := m.Sources()
	m.metrics.SetSourcesDiscovered(len(initial))
	if len(initial) > 0 {
		m.notify(initial)
	}

	for m.ctx.Err() == nil {
		if m.discovery.PollChanged(0) {
			m.publish(m.discovery.CurrentSources())
		}

		if m.refresh < 0 {
			runtime.Gosched()
			continue
		}
		select {
		case <-m.ctx.Done():
		case <-time.After(m.refresh):
		}
	}

	m.logger.Infow("source monitor stopped")
}

func (m *SourceMonitor) publish(sources []domain.Source) {
	m.mu.Lock()
	if domain.SourcesEqual(m.sources, sources) {
		m.mu.Unlock()
		return
	}
	m.sources = sources
	for _, ch := range m.watchers {
		offerNewest(ch, sources)
	}
	m.mu.Unlock()

	m.metrics.SetSourcesDiscovered(len(sources))
	m.logger.Debugw("sources changed", "count", len(sources))
	m.notify(sources)
}

func (m *SourceMonitor) notify(sources []domain.Source) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.observers {
		offerNewest(f.pending, sources)
	}
}

func (m *SourceMonitor) deliver(f *observerFeed) {
	defer m.observing.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case sources := <-f.pending:
			f.observer.SourcesChanged(m.ctx, sources)
		}
	}
}

// offerNewest replaces whatever is buffered in ch with v.
func offerNewest(ch chan []domain.Source, v []domain.Source) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Sources returns the most recent snapshot.
func (m *SourceMonitor) Sources() []domain.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Source(nil), m.sources...)
}

// Watch returns a channel that receives the current snapshot and then each
// change. Only the newest unread snapshot is kept. The channel is closed
// when ctx is done or the monitor stops.
func (m *SourceMonitor) Watch(ctx context.Context) <-chan []domain.Source {
	ch := make(chan []domain.Source, 1)

	m.mu.Lock()
	select {
	case <-m.done:
		m.mu.Unlock()
		close(ch)
		return ch
	default:
	}
	id := m.nextID
	m.nextID++
	m.watchers[id] = ch
	ch <- append([]domain.Source(nil), m.sources...)
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.done:
		}
		m.mu.Lock()
		delete(m.watchers, id)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

// AddObserver registers o for future changes. Observers are called from
// their own goroutine, one snapshot at a time.
func (m *SourceMonitor) AddObserver(o ports.SourceObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addObserverLocked(o)
}

func (m *SourceMonitor) addObserverLocked(o ports.SourceObserver) {
	if m.ctx.Err() != nil {
		return
	}
	f := &observerFeed{observer: o, pending: make(chan []domain.Source, 1)}
	m.observers = append(m.observers, f)
	m.observing.Add(1)
	go m.deliver(f)
}

// Discovery exposes the shared discovery instance for lookups.
func (m *SourceMonitor) Discovery() *Discovery {
	return m.discovery
}

// FindSourceByName waits for a snapshot containing name. It reads the
// monitor's snapshots rather than polling the shared discovery, so lookups
// never consume a change the monitor has yet to publish.
func (m *SourceMonitor) FindSourceByName(ctx context.Context, name string) (domain.Source, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for sources := range m.Watch(ctx) {
		for _, src := range sources {
			if src.Name == name {
				return src, true
			}
		}
	}
	return domain.Source{}, false
}

func (m *SourceMonitor) close() {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()
	<-m.done
	m.observing.Wait()
	m.discovery.Close()
}

// DiscoveryRegistry owns the process-wide shared SourceMonitor.
type DiscoveryRegistry struct {
	transport ports.Transport
	opts      MonitorOptions

	mu        sync.Mutex
	monitor   *SourceMonitor
	observers []ports.SourceObserver
}

func NewDiscoveryRegistry(transport ports.Transport, opts MonitorOptions) *DiscoveryRegistry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Discovery.Logger == nil {
		opts.Discovery.Logger = opts.Logger
	}
	return &DiscoveryRegistry{transport: transport, opts: opts}
}

// Shared returns the shared monitor, creating it on first use. Concurrent
// first callers get the same instance. A creation failure is returned and
// the next call tries again.
func (r *DiscoveryRegistry) Shared() (*SourceMonitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.monitor != nil {
		return r.monitor, nil
	}

	d, err := NewDiscovery(r.transport, r.opts.Discovery)
	if err != nil {
		r.opts.Logger.Warnw("shared discovery unavailable", "error", err)
		return nil, err
	}
	r.monitor = newSourceMonitor(d, r.opts, r.observers)
	return r.monitor, nil
}

// AddObserver registers o with the current shared monitor and any monitor
// created later.
func (r *DiscoveryRegistry) AddObserver(o ports.SourceObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
	if r.monitor != nil {
		r.monitor.AddObserver(o)
	}
}

// Close stops the shared monitor. A later Shared call starts a new one.
func (r *DiscoveryRegistry) Close() {
	r.mu.Lock()
	m := r.monitor
	r.monitor = nil
	r.mu.Unlock()

	if m != nil {
		m.close()
	}
}
