package services

import (
	"sync"
	"sync/atomic"

	"ndilive/internal/core/domain"

	"github.com/google/uuid"
)

// Subscription is one consumer registration on a Player. Frames are queued
// per kind up to the subscription's BufferPolicy; when a kind is full the
// oldest queued frame of that kind is released to make room, so the
// capture loop never waits on a consumer.
//
// Every frame received from Frames must be released by the consumer.
type Subscription struct {
	id     uuid.UUID
	player *Player
	kinds  domain.CaptureKinds
	policy domain.BufferPolicy

	mu     sync.Mutex
	queue  []domain.Frame
	counts map[domain.FrameType]int
	closed bool

	notify    chan struct{}
	out       chan domain.Frame
	done      chan struct{}
	closeOnce sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func newSubscription(p *Player, kinds domain.CaptureKinds, policy domain.BufferPolicy) *Subscription {
	s := &Subscription{
		id:     uuid.New(),
		player: p,
		kinds:  kinds,
		policy: policy,
		counts: make(map[domain.FrameType]int),
		notify: make(chan struct{}, 1),
		out:    make(chan domain.Frame),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Subscription) ID() uuid.UUID                 { return s.id }
func (s *Subscription) Kinds() domain.CaptureKinds    { return s.kinds }
func (s *Subscription) Policy() domain.BufferPolicy   { return s.policy }
func (s *Subscription) Frames() <-chan domain.Frame   { return s.out }
func (s *Subscription) Done() <-chan struct{}         { return s.done }
func (s *Subscription) Delivered() uint64             { return s.delivered.Load() }
func (s *Subscription) Dropped() uint64               { return s.dropped.Load() }
func (s *Subscription) wants(t domain.FrameType) bool { return s.kinds.Has(domain.KindOf(t)) }

// Close deregisters the subscription. Queued frames are released and the
// Frames channel is closed.
func (s *Subscription) Close() {
	s.shutdown()
	s.player.core.removeSubscription(s)
}

func (s *Subscription) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}

// offer queues f, taking over the caller's reference. It never blocks and
// reports whether an older frame was dropped to make room.
func (s *Subscription) offer(f domain.Frame) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		f.Release()
		return false
	}

	t := f.Type()
	var evicted domain.Frame
	if s.counts[t] >= s.policy.Limit(t) {
		for i, q := range s.queue {
			if q.Type() == t {
				evicted = q
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.counts[t]--
				break
			}
		}
	}
	s.queue = append(s.queue, f)
	s.counts[t]++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}

	if evicted != nil {
		evicted.Release()
		s.dropped.Add(1)
		return true
	}
	return false
}

func (s *Subscription) next() (domain.Frame, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			f := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.counts[f.Type()]--
			s.mu.Unlock()
			return f, true
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
			return nil, false
		}
	}
}

// pump hands queued frames to the consumer in capture order.
func (s *Subscription) pump() {
	defer func() {
		s.drain()
		close(s.out)
	}()

	for {
		f, ok := s.next()
		if !ok {
			return
		}
		select {
		case s.out <- f:
			s.delivered.Add(1)
			s.player.core.frameDelivered(f.Type())
		case <-s.done:
			f.Release()
			return
		}
	}
}

func (s *Subscription) drain() {
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	s.counts = make(map[domain.FrameType]int)
	s.mu.Unlock()

	for _, f := range queued {
		f.Release()
	}
}
