package ports

import (
	"context"
	"time"

	"ndilive/internal/core/domain"
)

// SourceObserver is notified whenever the shared discovery sees a new
// source list.
type SourceObserver interface {
	SourcesChanged(ctx context.Context, sources []domain.Source)
}

type SourceObserverFunc func(ctx context.Context, sources []domain.Source)

func (f SourceObserverFunc) SourcesChanged(ctx context.Context, sources []domain.Source) {
	f(ctx, sources)
}

// Metrics receives engine counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	SetSourcesDiscovered(n int)
	ObserveAcquisition(source string, d time.Duration, err error)
	SetCaptureLoopActive(source string, active bool)
	SetSubscribers(source string, n int)
	IncFramesCaptured(source string, t domain.FrameType)
	IncFramesDelivered(source string, t domain.FrameType)
	IncFramesDropped(source string, t domain.FrameType)
	IncStatusChanges(source string)
}

type NopMetrics struct{}

func (NopMetrics) SetSourcesDiscovered(int)                        {}
func (NopMetrics) ObserveAcquisition(string, time.Duration, error) {}
func (NopMetrics) SetCaptureLoopActive(string, bool)               {}
func (NopMetrics) SetSubscribers(string, int)                      {}
func (NopMetrics) IncFramesCaptured(string, domain.FrameType)      {}
func (NopMetrics) IncFramesDelivered(string, domain.FrameType)     {}
func (NopMetrics) IncFramesDropped(string, domain.FrameType)       {}
func (NopMetrics) IncStatusChanges(string)                         {}
