package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"

	"go.uber.org/zap"
)

type ReceiverOptions struct {
	ColorFormat      ports.ColorFormat
	Bandwidth        ports.Bandwidth
	AllowVideoFields bool
	Name             string
	Discovery        DiscoveryOptions
	Logger           *zap.SugaredLogger
}

func DefaultReceiverOptions() ReceiverOptions {
	return ReceiverOptions{
		ColorFormat:      ports.ColorFormatUYVYBGRA,
		Bandwidth:        ports.BandwidthHighest,
		AllowVideoFields: true,
	}
}

// Receiver owns one transport receive handle. Capture must be called from
// a single goroutine at a time.
//
// The handle is reference counted: the owner holds one reference, released
// by Close, and every payload frame returned by Capture holds another until
// it is released. The handle is destroyed when the count reaches zero.
type Receiver struct {
	transport ports.Transport
	handle    ports.RecvHandle
	opts      ReceiverOptions
	logger    *zap.SugaredLogger

	refs      atomic.Int64
	closeOnce sync.Once
	closed    atomic.Bool

	mu     sync.Mutex
	source *domain.Source
}

// NewReceiver creates a receive handle, optionally connected to source. It
// returns domain.ErrReceiverUnavailable when the transport cannot provide
// one.
func NewReceiver(transport ports.Transport, source *domain.Source, opts ReceiverOptions) (*Receiver, error) {
	if transport == nil {
		return nil, domain.ErrReceiverUnavailable
	}
	if err := transport.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReceiverUnavailable, err)
	}
	h, err := transport.RecvCreate(ports.RecvOptions{
		Source:           source,
		ColorFormat:      opts.ColorFormat,
		Bandwidth:        opts.Bandwidth,
		AllowVideoFields: opts.AllowVideoFields,
		Name:             opts.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReceiverUnavailable, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Receiver{
		transport: transport,
		handle:    h,
		opts:      opts,
		logger:    logger,
	}
	if source != nil {
		src := *source
		r.source = &src
	}
	r.refs.Store(1)
	return r, nil
}

// Connect switches the receiver to source. Calling it again with the same
// source reconnects.
func (r *Receiver) Connect(source domain.Source) {
	if r.closed.Load() {
		return
	}
	r.mu.Lock()
	r.source = &source
	r.mu.Unlock()
	r.transport.RecvConnect(r.handle, &source)
}

// ConnectByName resolves name with a fresh discovery instance and connects
// to it. It waits until the source appears or ctx is done, and reports
// whether a connection was made.
func (r *Receiver) ConnectByName(ctx context.Context, name string) bool {
	d, err := NewDiscovery(r.transport, r.opts.Discovery)
	if err != nil {
		r.logger.Warnw("discovery unavailable for connect", "source", name, "error", err)
		return false
	}
	defer d.Close()

	src, ok := d.FindSourceByName(ctx, name)
	if !ok {
		return false
	}
	r.Connect(src)
	return true
}

// Source returns the source the receiver was last connected to.
func (r *Receiver) Source() (domain.Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.source == nil {
		return domain.Source{}, false
	}
	return *r.source, true
}

// Capture makes exactly one native capture call limited to kinds and
// waiting at most timeout. After Close it returns NoFrame immediately. The
// handle stays alive for the duration of the call even if Close runs
// concurrently.
func (r *Receiver) Capture(kinds domain.CaptureKinds, timeout time.Duration) domain.Frame {
	if r.closed.Load() || !r.tryRetain() {
		return domain.NoFrame{}
	}
	defer r.release()
	if timeout < 0 {
		timeout = 0
	}

	res := r.transport.RecvCapture(r.handle, kinds, timeout)
	switch res.Type {
	case domain.FrameTypeNone:
		return domain.NoFrame{}
	case domain.FrameTypeVideo:
		r.retain()
		native := res.Native
		return domain.NewVideoFrame(res.Video, func() {
			r.transport.RecvFreeVideo(r.handle, native)
			r.release()
		})
	case domain.FrameTypeAudio:
		r.retain()
		native := res.Native
		return domain.NewAudioFrame(res.Audio, func() {
			r.transport.RecvFreeAudio(r.handle, native)
			r.release()
		})
	case domain.FrameTypeMetadata:
		r.retain()
		native := res.Native
		return domain.NewMetadataFrame(res.Metadata, func() {
			r.transport.RecvFreeMetadata(r.handle, native)
			r.release()
		})
	case domain.FrameTypeStatusChange:
		r.logger.Debugw("receiver status changed")
		return domain.StatusChange{}
	default:
		r.logger.Debugw("unhandled frame type", "type", int(res.Type))
		return domain.UnknownFrame{Code: int(res.Type)}
	}
}

// Close drops the owner's reference. The native handle is destroyed once
// every outstanding frame has been released.
func (r *Receiver) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.release()
	})
}

func (r *Receiver) retain() {
	r.refs.Add(1)
}

// tryRetain takes a reference unless the handle is already destroyed.
func (r *Receiver) tryRetain() bool {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return false
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (r *Receiver) release() {
	if r.refs.Add(-1) == 0 {
		r.transport.RecvDestroy(r.handle)
		r.logger.Debugw("receiver destroyed")
	}
}
