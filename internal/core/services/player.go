package services

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"
	"ndilive/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCaptureTimeout = time.Second

// SourceLookup resolves a source name, waiting until it appears or ctx is
// done.
type SourceLookup func(ctx context.Context, name string) (domain.Source, bool)

type PlayerOptions struct {
	// CaptureTimeout bounds each native capture call, and with it how long
	// the capture loop takes to notice a stop request.
	CaptureTimeout time.Duration
	// BufferPolicy is used by Frames and the typed frame helpers.
	BufferPolicy domain.BufferPolicy
	// ReleaseIdleReceiver closes the receiver whenever the capture loop
	// stops. By default it is kept for the next subscriber.
	ReleaseIdleReceiver bool
	Receiver            ReceiverOptions
	// Lookup resolves source names. Nil uses a fresh discovery instance per
	// acquisition.
	Lookup  SourceLookup
	Metrics ports.Metrics
	Logger  *zap.SugaredLogger
}

func DefaultPlayerOptions() PlayerOptions {
	return PlayerOptions{
		CaptureTimeout: defaultCaptureTimeout,
		BufferPolicy:   domain.DefaultBufferPolicy(),
		Receiver:       DefaultReceiverOptions(),
	}
}

// Player shares one source among any number of subscriptions. A receiver
// is acquired on demand and a capture loop runs only while at least one
// subscription is registered.
//
// The Player value is the handle consumers and registries hold. All state
// lives in playerCore, which the background goroutines reference, so the
// Player can be collected once no holder and no subscription remains; its
// core is then shut down.
type Player struct {
	core *playerCore
}

type acquisition struct {
	done     chan struct{}
	receiver *Receiver
	err      error
	// requested is set when Connect waits on the acquisition, so the
	// receiver is wanted even without subscribers.
	requested bool
}

type playerCore struct {
	name      string
	source    *domain.Source
	transport ports.Transport
	opts      PlayerOptions
	metrics   ports.Metrics
	logger    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	closed        bool
	receiver      *Receiver
	acq           *acquisition
	subs          map[uuid.UUID]*Subscription
	kinds         domain.CaptureKinds
	loopRunning   bool
	stopRequested bool
	loopDone      chan struct{}
	lastVideo     *domain.VideoFrame
	lastFrameAt   time.Time
	lastErr       error

	captured      atomic.Uint64
	delivered     atomic.Uint64
	dropped       atomic.Uint64
	statusChanges atomic.Uint64
}

// NewPlayer creates a player for the source called name. When source is
// non-nil the name lookup is skipped.
func NewPlayer(transport ports.Transport, name string, source *domain.Source, opts PlayerOptions) *Player {
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = defaultCaptureTimeout
	}
	if opts.BufferPolicy == (domain.BufferPolicy{}) {
		opts.BufferPolicy = domain.DefaultBufferPolicy()
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Receiver.Logger == nil {
		opts.Receiver.Logger = opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &playerCore{
		name:      name,
		transport: transport,
		opts:      opts,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("source", name),
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[uuid.UUID]*Subscription),
	}
	if source != nil {
		src := *source
		c.source = &src
	}

	p := &Player{core: c}
	runtime.AddCleanup(p, func(c *playerCore) { c.shutdown() }, c)
	return p
}

func (p *Player) Name() string {
	return p.core.name
}

// State reports the player's lifecycle state.
func (p *Player) State() domain.PlayerState {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (p *Player) Stats() domain.PlayerStats {
	c := p.core
	c.mu.Lock()
	st := domain.PlayerStats{
		Name:        c.name,
		State:       c.stateLocked(),
		Subscribers: len(c.subs),
		LoopRunning: c.loopRunning,
		HasReceiver: c.receiver != nil,
		LastFrameAt: c.lastFrameAt,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.mu.Unlock()

	st.StateName = st.State.String()
	st.FramesCaptured = c.captured.Load()
	st.FramesDelivered = c.delivered.Load()
	st.FramesDropped = c.dropped.Load()
	st.StatusChanges = c.statusChanges.Load()
	return st
}

// Connect acquires the receiver without subscribing. Concurrent callers
// share a single acquisition. ctx only bounds the wait; an abandoned
// acquisition still completes and its receiver is kept.
func (p *Player) Connect(ctx context.Context) error {
	c := p.core
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrPlayerClosed
	}
	if c.receiver != nil {
		c.mu.Unlock()
		return nil
	}
	a := c.acquireLocked()
	a.requested = true
	c.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a consumer for kinds. The subscription ends when ctx
// is done or Close is called. A video subscriber first receives the most
// recently captured video frame, if any.
func (p *Player) Subscribe(ctx context.Context, kinds domain.CaptureKinds, policy domain.BufferPolicy) (*Subscription, error) {
	if kinds.Empty() {
		return nil, fmt.Errorf("subscribe %q: no capture kinds selected", p.core.name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := p.core
	s := newSubscription(p, kinds, policy)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.shutdown()
		return nil, domain.ErrPlayerClosed
	}
	c.subs[s.id] = s
	c.kinds = c.kinds.Union(kinds)
	if kinds.Has(domain.CaptureVideo) && c.lastVideo != nil {
		c.lastVideo.Retain()
		s.offer(c.lastVideo)
	}
	c.ensureRunningLocked()
	n := len(c.subs)
	c.mu.Unlock()

	c.metrics.SetSubscribers(c.name, n)
	c.logger.Debugw("subscription added", "subscription_id", s.id, "kinds", kinds.String(), "subscribers", n)

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Frames subscribes to every frame kind with the player's default buffer
// policy.
func (p *Player) Frames(ctx context.Context) (<-chan domain.Frame, error) {
	s, err := p.Subscribe(ctx, domain.CaptureAll, p.core.opts.BufferPolicy)
	if err != nil {
		return nil, err
	}
	return s.Frames(), nil
}

func (p *Player) VideoFrames(ctx context.Context) (<-chan *domain.VideoFrame, error) {
	return subscribeTyped[*domain.VideoFrame](ctx, p, domain.CaptureVideo)
}

func (p *Player) AudioFrames(ctx context.Context) (<-chan *domain.AudioFrame, error) {
	return subscribeTyped[*domain.AudioFrame](ctx, p, domain.CaptureAudio)
}

func (p *Player) MetadataFrames(ctx context.Context) (<-chan *domain.MetadataFrame, error) {
	return subscribeTyped[*domain.MetadataFrame](ctx, p, domain.CaptureMetadata)
}

// subscribeTyped narrows a subscription to one frame variant.
func subscribeTyped[T domain.Frame](ctx context.Context, p *Player, kinds domain.CaptureKinds) (<-chan T, error) {
	s, err := p.Subscribe(ctx, kinds, p.core.opts.BufferPolicy)
	if err != nil {
		return nil, err
	}

	out := make(chan T)
	go func() {
		defer close(out)
		for f := range s.Frames() {
			v, ok := f.(T)
			if !ok {
				f.Release()
				continue
			}
			select {
			case out <- v:
			case <-s.Done():
				v.Release()
			}
		}
	}()
	return out, nil
}

// Close ends every subscription, stops the capture loop and releases the
// receiver. It waits for the capture loop to exit.
func (p *Player) Close() {
	if done := p.core.shutdown(); done != nil {
		<-done
	}
}

func (c *playerCore) stateLocked() domain.PlayerState {
	switch {
	case c.loopRunning && c.stopRequested:
		return domain.PlayerDraining
	case c.loopRunning:
		return domain.PlayerActive
	case c.acq != nil:
		return domain.PlayerConnecting
	default:
		return domain.PlayerIdle
	}
}

func (c *playerCore) ensureRunningLocked() {
	switch {
	case c.loopRunning:
		// rejoin a draining loop
		c.stopRequested = false
	case c.receiver != nil:
		c.startLoopLocked()
	default:
		c.acquireLocked()
	}
}

func (c *playerCore) acquireLocked() *acquisition {
	if c.acq != nil {
		return c.acq
	}
	a := &acquisition{done: make(chan struct{})}
	c.acq = a
	go c.acquire(a)
	return a
}

func (c *playerCore) acquire(a *acquisition) {
	start := time.Now()
	ctx, span := tracing.TraceReceiverAcquisition(c.ctx, c.name)
	defer span.End()

	r, err := c.createReceiver(ctx)
	c.metrics.ObserveAcquisition(c.name, time.Since(start), err)
	if err != nil {
		tracing.RecordError(ctx, err)
	}

	c.mu.Lock()
	c.acq = nil
	switch {
	case c.closed:
		if r != nil {
			r.Close()
		}
		r, err = nil, domain.ErrPlayerClosed
	case err != nil:
		c.lastErr = err
		c.logger.Warnw("receiver acquisition failed", "error", err, "subscribers", len(c.subs))
	default:
		c.receiver = r
		c.lastErr = nil
		c.logger.Infow("receiver acquired", "duration", time.Since(start), "subscribers", len(c.subs))
		switch {
		case len(c.subs) > 0:
			c.startLoopLocked()
		case c.opts.ReleaseIdleReceiver && !a.requested:
			// every subscriber left while connecting
			c.releaseReceiverLocked()
		}
	}
	a.receiver, a.err = r, err
	close(a.done)
	c.mu.Unlock()
}

func (c *playerCore) createReceiver(ctx context.Context) (*Receiver, error) {
	if c.source != nil {
		return NewReceiver(c.transport, c.source, c.opts.Receiver)
	}

	r, err := NewReceiver(c.transport, nil, c.opts.Receiver)
	if err != nil {
		return nil, err
	}

	var ok bool
	if c.opts.Lookup != nil {
		var src domain.Source
		if src, ok = c.opts.Lookup(ctx, c.name); ok {
			r.Connect(src)
		}
	} else {
		ok = r.ConnectByName(ctx, c.name)
	}
	if !ok {
		r.Close()
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, domain.ErrPlayerClosed
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, c.name)
	}
	return r, nil
}

func (c *playerCore) startLoopLocked() {
	c.loopRunning = true
	c.stopRequested = false
	c.loopDone = make(chan struct{})
	go c.captureLoop(c.receiver, c.loopDone)
	c.metrics.SetCaptureLoopActive(c.name, true)
}

// captureLoop owns an OS thread for the blocking native capture calls.
func (c *playerCore) captureLoop(r *Receiver, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	c.logger.Infow("capture loop started")
	for {
		c.mu.Lock()
		kinds := c.kinds
		c.mu.Unlock()

		f := r.Capture(kinds, c.opts.CaptureTimeout)
		if c.handleFrame(f) {
			c.logger.Infow("capture loop stopped")
			return
		}
	}
}

// handleFrame dispatches one capture result and applies any pending stop
// request, both under the core lock. It reports whether the loop must exit.
func (c *playerCore) handleFrame(f domain.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch v := f.(type) {
	case domain.NoFrame:
	case *domain.VideoFrame:
		c.frameCaptured(v)
		if c.lastVideo != nil {
			c.lastVideo.Release()
		}
		v.Retain()
		c.lastVideo = v
		c.fanOutLocked(v)
	case *domain.AudioFrame:
		c.frameCaptured(v)
		c.fanOutLocked(v)
	case *domain.MetadataFrame:
		c.frameCaptured(v)
		c.fanOutLocked(v)
	case domain.StatusChange:
		c.statusChanges.Add(1)
		c.metrics.IncStatusChanges(c.name)
		c.logger.Debugw("source status changed")
	case domain.UnknownFrame:
		c.logger.Debugw("ignoring frame", "type", v.Code)
	}
	f.Release()

	if !c.closed && !c.stopRequested {
		return false
	}

	c.loopRunning = false
	c.stopRequested = false
	c.metrics.SetCaptureLoopActive(c.name, false)
	if c.closed || c.opts.ReleaseIdleReceiver {
		c.releaseReceiverLocked()
	}
	return true
}

func (c *playerCore) frameCaptured(f domain.Frame) {
	c.captured.Add(1)
	c.lastFrameAt = time.Now()
	c.metrics.IncFramesCaptured(c.name, f.Type())
}

func (c *playerCore) fanOutLocked(f domain.Frame) {
	for _, s := range c.subs {
		if !s.wants(f.Type()) {
			continue
		}
		f.Retain()
		if s.offer(f) {
			c.dropped.Add(1)
			c.metrics.IncFramesDropped(c.name, f.Type())
		}
	}
}

func (c *playerCore) frameDelivered(t domain.FrameType) {
	c.delivered.Add(1)
	c.metrics.IncFramesDelivered(c.name, t)
}

func (c *playerCore) releaseReceiverLocked() {
	if c.lastVideo != nil {
		c.lastVideo.Release()
		c.lastVideo = nil
	}
	if c.receiver != nil {
		c.receiver.Close()
		c.receiver = nil
	}
}

func (c *playerCore) removeSubscription(s *Subscription) {
	c.mu.Lock()
	if _, ok := c.subs[s.id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, s.id)
	c.kinds = domain.CaptureNone
	for _, other := range c.subs {
		c.kinds = c.kinds.Union(other.kinds)
	}
	if len(c.subs) == 0 && c.loopRunning {
		c.stopRequested = true
	}
	n := len(c.subs)
	c.mu.Unlock()

	c.metrics.SetSubscribers(c.name, n)
	c.logger.Debugw("subscription removed", "subscription_id", s.id, "subscribers", n)
}

// shutdown closes the core without waiting. It returns the running capture
// loop's done channel, if any.
func (c *playerCore) shutdown() chan struct{} {
	c.mu.Lock()
	if c.closed {
		done := c.loopDone
		running := c.loopRunning
		c.mu.Unlock()
		if running {
			return done
		}
		return nil
	}
	c.closed = true
	c.cancel()

	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = make(map[uuid.UUID]*Subscription)
	c.kinds = domain.CaptureNone

	var done chan struct{}
	if c.loopRunning {
		done = c.loopDone
	} else {
		c.releaseReceiverLocked()
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
	c.metrics.SetSubscribers(c.name, 0)
	c.logger.Infow("player closed", "subscribers", len(subs))
	return done
}

func (c *playerCore) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
