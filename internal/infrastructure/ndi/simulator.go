package ndi

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"

	"go.uber.org/zap"
)

var (
	errSimInitFailed       = errors.New("simulator: initialize failed")
	errSimFindCreateFailed = errors.New("simulator: find create failed")
	errSimRecvCreateFailed = errors.New("simulator: recv create failed")
)

// SimulatorConfig controls the synthetic sources produced by a Simulator.
type SimulatorConfig struct {
	Sources []domain.Source

	// Synthetic makes connected receivers produce paced video and audio
	// frames whenever no scripted frame is queued.
	Synthetic       bool
	Width           int
	Height          int
	FrameRateN      int
	FrameRateD      int
	AudioSampleRate int
	AudioChannels   int
}

func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Width:           1280,
		Height:          720,
		FrameRateN:      30000,
		FrameRateD:      1001,
		AudioSampleRate: 48000,
		AudioChannels:   2,
	}
}

// Simulator is an in-memory Transport. Sources and frames are scripted by
// the caller; every native buffer handed out is tracked so leaks and double
// frees are observable.
type Simulator struct {
	cfg    SimulatorConfig
	logger *zap.SugaredLogger

	mu          sync.Mutex
	initialized bool
	sources     []domain.Source
	generation  uint64
	changed     chan struct{}
	finds       map[ports.FindHandle]*simFind
	recvs       map[ports.RecvHandle]*simRecv
	queues      map[string]*simQueue
	nextHandle  uintptr
	outstanding map[*simNative]struct{}

	failInit       bool
	failFindCreate bool
	failRecvCreate bool
	recvCreateGate chan struct{}

	findsCreated   atomic.Int64
	findsDestroyed atomic.Int64
	recvsCreated   atomic.Int64
	recvsDestroyed atomic.Int64
	captures       atomic.Int64
	frees          atomic.Int64
	doubleFrees    atomic.Int64
}

type simFind struct {
	seen uint64
}

type simRecv struct {
	source       *domain.Source
	destroyed    bool
	lastKinds    domain.CaptureKinds
	nextSynth    time.Time
	synthCounter uint64
	videoBuf     []byte
	audioBuf     []float32
}

type simQueue struct {
	frames []ports.CaptureResult
	notify chan struct{}
}

type simNative struct {
	kind  domain.FrameType
	recv  ports.RecvHandle
	freed bool
}

func NewSimulator(cfg SimulatorConfig, logger *zap.SugaredLogger) *Simulator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	def := DefaultSimulatorConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.FrameRateN <= 0 || cfg.FrameRateD <= 0 {
		cfg.FrameRateN, cfg.FrameRateD = def.FrameRateN, def.FrameRateD
	}
	if cfg.AudioSampleRate <= 0 {
		cfg.AudioSampleRate = def.AudioSampleRate
	}
	if cfg.AudioChannels <= 0 {
		cfg.AudioChannels = def.AudioChannels
	}
	return &Simulator{
		cfg:         cfg,
		logger:      logger,
		sources:     append([]domain.Source(nil), cfg.Sources...),
		changed:     make(chan struct{}),
		finds:       make(map[ports.FindHandle]*simFind),
		recvs:       make(map[ports.RecvHandle]*simRecv),
		queues:      make(map[string]*simQueue),
		outstanding: make(map[*simNative]struct{}),
		generation:  1,
	}
}

func (s *Simulator) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInit {
		return errSimInitFailed
	}
	s.initialized = true
	return nil
}

func (s *Simulator) Destroy() {
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
}

// --- discovery ---

func (s *Simulator) FindCreate(opts ports.FindOptions) (ports.FindHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFindCreate || !s.initialized {
		return 0, errSimFindCreateFailed
	}
	s.nextHandle++
	h := ports.FindHandle(s.nextHandle)
	s.finds[h] = &simFind{}
	s.findsCreated.Add(1)
	return h, nil
}

func (s *Simulator) FindDestroy(h ports.FindHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.finds[h]; ok {
		delete(s.finds, h)
		s.findsDestroyed.Add(1)
	}
}

func (s *Simulator) FindWaitForSources(h ports.FindHandle, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		f, ok := s.finds[h]
		if !ok {
			s.mu.Unlock()
			return false
		}
		if f.seen != s.generation {
			f.seen = s.generation
			s.mu.Unlock()
			return true
		}
		changed := s.changed
		s.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-changed:
			timer.Stop()
		case <-timer.C:
			return false
		}
	}
}

func (s *Simulator) FindCurrentSources(h ports.FindHandle) []domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.finds[h]; !ok {
		return nil
	}
	return append([]domain.Source(nil), s.sources...)
}

// SetSources replaces the advertised source list and wakes waiting finders.
func (s *Simulator) SetSources(sources ...domain.Source) {
	s.mu.Lock()
	s.sources = append([]domain.Source(nil), sources...)
	s.bumpLocked()
	s.mu.Unlock()
}

func (s *Simulator) AddSource(src domain.Source) {
	s.mu.Lock()
	s.sources = append(s.sources, src)
	s.bumpLocked()
	s.mu.Unlock()
}

func (s *Simulator) RemoveSource(name string) {
	s.mu.Lock()
	kept := s.sources[:0]
	for _, src := range s.sources {
		if src.Name != name {
			kept = append(kept, src)
		}
	}
	s.sources = kept
	s.bumpLocked()
	s.mu.Unlock()
}

func (s *Simulator) bumpLocked() {
	s.generation++
	close(s.changed)
	s.changed = make(chan struct{})
}

// --- receive ---

func (s *Simulator) RecvCreate(opts ports.RecvOptions) (ports.RecvHandle, error) {
	s.mu.Lock()
	gate := s.recvCreateGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecvCreate || !s.initialized {
		return 0, errSimRecvCreateFailed
	}
	s.nextHandle++
	h := ports.RecvHandle(s.nextHandle)
	r := &simRecv{}
	if opts.Source != nil {
		src := *opts.Source
		r.source = &src
	}
	s.recvs[h] = r
	s.recvsCreated.Add(1)
	return h, nil
}

func (s *Simulator) RecvDestroy(h ports.RecvHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recvs[h]
	if !ok || r.destroyed {
		return
	}
	r.destroyed = true
	delete(s.recvs, h)
	s.recvsDestroyed.Add(1)
	for n := range s.outstanding {
		if n.recv == h {
			s.logger.Warnw("receiver destroyed with outstanding frame", "handle", h, "kind", n.kind)
		}
	}
}

func (s *Simulator) RecvConnect(h ports.RecvHandle, source *domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recvs[h]
	if !ok {
		return
	}
	if source == nil {
		r.source = nil
		return
	}
	src := *source
	r.source = &src
}

func (s *Simulator) RecvCapture(h ports.RecvHandle, kinds domain.CaptureKinds, timeout time.Duration) ports.CaptureResult {
	s.captures.Add(1)
	deadline := time.Now().Add(timeout)

	for {
		s.mu.Lock()
		r, ok := s.recvs[h]
		if !ok {
			s.mu.Unlock()
			return ports.CaptureResult{Type: domain.FrameTypeNone}
		}
		r.lastKinds = kinds

		var notify chan struct{}
		var nextSynth time.Time
		connected := r.source != nil
		if connected {
			q := s.queueLocked(r.source.Name)
			if res, ok := q.popLocked(kinds); ok {
				s.trackLocked(h, &res)
				s.mu.Unlock()
				return res
			}
			notify = q.notify
			if s.cfg.Synthetic {
				if res, ok := s.synthesizeLocked(h, r, kinds, deadline); ok {
					s.mu.Unlock()
					return res
				}
				nextSynth = r.nextSynth
			}
		}
		s.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ports.CaptureResult{Type: domain.FrameTypeNone}
		}
		if s.cfg.Synthetic && connected {
			if wait := time.Until(nextSynth); wait > 0 && wait < remaining {
				remaining = wait
			}
		}
		timer := time.NewTimer(remaining)
		select {
		case <-notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *Simulator) RecvFreeVideo(h ports.RecvHandle, native any) {
	s.free(h, native, domain.FrameTypeVideo)
}

func (s *Simulator) RecvFreeAudio(h ports.RecvHandle, native any) {
	s.free(h, native, domain.FrameTypeAudio)
}

func (s *Simulator) RecvFreeMetadata(h ports.RecvHandle, native any) {
	s.free(h, native, domain.FrameTypeMetadata)
}

func (s *Simulator) free(h ports.RecvHandle, native any, kind domain.FrameType) {
	n, ok := native.(*simNative)
	if !ok {
		s.logger.Errorw("free of foreign native token", "handle", h, "kind", kind)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.freed || n.kind != kind || n.recv != h {
		s.doubleFrees.Add(1)
		s.logger.Errorw("invalid native free", "handle", h, "kind", kind, "freed", n.freed)
		return
	}
	n.freed = true
	delete(s.outstanding, n)
	s.frees.Add(1)
}

func (s *Simulator) trackLocked(h ports.RecvHandle, res *ports.CaptureResult) {
	switch res.Type {
	case domain.FrameTypeVideo, domain.FrameTypeAudio, domain.FrameTypeMetadata:
		n := &simNative{kind: res.Type, recv: h}
		s.outstanding[n] = struct{}{}
		res.Native = n
	}
}

func (s *Simulator) queueLocked(name string) *simQueue {
	q, ok := s.queues[name]
	if !ok {
		q = &simQueue{notify: make(chan struct{})}
		s.queues[name] = q
	}
	return q
}

func (q *simQueue) popLocked(kinds domain.CaptureKinds) (ports.CaptureResult, bool) {
	for i, res := range q.frames {
		k := domain.KindOf(res.Type)
		if k != domain.CaptureNone && !kinds.Has(k) {
			continue
		}
		q.frames = append(q.frames[:i], q.frames[i+1:]...)
		return res, true
	}
	return ports.CaptureResult{}, false
}

func (s *Simulator) push(source string, res ports.CaptureResult) {
	s.mu.Lock()
	q := s.queueLocked(source)
	q.frames = append(q.frames, res)
	close(q.notify)
	q.notify = make(chan struct{})
	s.mu.Unlock()
}

// PushVideo queues a video frame for the next receiver capturing from source.
func (s *Simulator) PushVideo(source string, data domain.VideoFrameData) {
	s.push(source, ports.CaptureResult{Type: domain.FrameTypeVideo, Video: data})
}

func (s *Simulator) PushAudio(source string, data domain.AudioFrameData) {
	s.push(source, ports.CaptureResult{Type: domain.FrameTypeAudio, Audio: data})
}

func (s *Simulator) PushMetadata(source string, data domain.MetadataFrameData) {
	s.push(source, ports.CaptureResult{Type: domain.FrameTypeMetadata, Metadata: data})
}

func (s *Simulator) PushStatusChange(source string) {
	s.push(source, ports.CaptureResult{Type: domain.FrameTypeStatusChange})
}

func (s *Simulator) PushUnknown(source string, code int) {
	s.push(source, ports.CaptureResult{Type: domain.FrameType(code)})
}

// Pending returns the number of queued frames not yet captured for source.
func (s *Simulator) Pending(source string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queueLocked(source).frames)
}

func (s *Simulator) synthesizeLocked(h ports.RecvHandle, r *simRecv, kinds domain.CaptureKinds, deadline time.Time) (ports.CaptureResult, bool) {
	now := time.Now()
	if r.nextSynth.IsZero() {
		r.nextSynth = now
	}
	if now.Before(r.nextSynth) {
		return ports.CaptureResult{}, false
	}

	period := time.Duration(int64(time.Second) * int64(s.cfg.FrameRateD) / int64(s.cfg.FrameRateN))
	r.synthCounter++
	tc := domain.TimecodeFromTime(now)

	// video and audio alternate when both are requested
	both := kinds.Has(domain.CaptureVideo | domain.CaptureAudio)
	if both {
		period /= 2
	}
	wantAudio := r.synthCounter%2 == 0
	var res ports.CaptureResult
	switch {
	case kinds.Has(domain.CaptureAudio) && (wantAudio || !kinds.Has(domain.CaptureVideo)):
		samples := s.cfg.AudioSampleRate * s.cfg.FrameRateD / s.cfg.FrameRateN
		if len(r.audioBuf) != samples*s.cfg.AudioChannels {
			r.audioBuf = make([]float32, samples*s.cfg.AudioChannels)
		}
		res = ports.CaptureResult{Type: domain.FrameTypeAudio, Audio: domain.AudioFrameData{
			SampleRate:    s.cfg.AudioSampleRate,
			Channels:      s.cfg.AudioChannels,
			Samples:       samples,
			ChannelStride: samples * 4,
			Timecode:      tc,
			Timestamp:     tc,
			Data:          r.audioBuf,
		}}
		r.nextSynth = r.nextSynth.Add(period)
	case kinds.Has(domain.CaptureVideo):
		stride := s.cfg.Width * 2
		if len(r.videoBuf) != stride*s.cfg.Height {
			r.videoBuf = make([]byte, stride*s.cfg.Height)
		}
		res = ports.CaptureResult{Type: domain.FrameTypeVideo, Video: domain.VideoFrameData{
			Width:       s.cfg.Width,
			Height:      s.cfg.Height,
			FourCC:      domain.FourCCUYVY,
			FrameRateN:  s.cfg.FrameRateN,
			FrameRateD:  s.cfg.FrameRateD,
			AspectRatio: float32(s.cfg.Width) / float32(s.cfg.Height),
			Timecode:    tc,
			Timestamp:   tc,
			LineStride:  stride,
			Data:        r.videoBuf,
		}}
		r.nextSynth = r.nextSynth.Add(period)
	default:
		r.nextSynth = deadline
		return ports.CaptureResult{}, false
	}
	s.trackLocked(h, &res)
	return res, true
}

// --- fault injection and inspection ---

func (s *Simulator) SetFailInitialize(fail bool) {
	s.mu.Lock()
	s.failInit = fail
	s.mu.Unlock()
}

func (s *Simulator) SetFailFindCreate(fail bool) {
	s.mu.Lock()
	s.failFindCreate = fail
	s.mu.Unlock()
}

func (s *Simulator) SetFailRecvCreate(fail bool) {
	s.mu.Lock()
	s.failRecvCreate = fail
	s.mu.Unlock()
}

// HoldRecvCreate blocks every RecvCreate call until the returned function
// is called.
func (s *Simulator) HoldRecvCreate() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.recvCreateGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.recvCreateGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// LastCaptureKinds returns the kinds requested by the latest capture call of
// any live receiver connected to source.
func (s *Simulator) LastCaptureKinds(source string) domain.CaptureKinds {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recvs {
		if r.source != nil && r.source.Name == source {
			return r.lastKinds
		}
	}
	return domain.CaptureNone
}

type SimulatorStats struct {
	FindsCreated   int64
	FindsDestroyed int64
	RecvsCreated   int64
	RecvsDestroyed int64
	LiveReceivers  int
	Captures       int64
	Frees          int64
	DoubleFrees    int64
	Outstanding    int
}

func (s *Simulator) Stats() SimulatorStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SimulatorStats{
		FindsCreated:   s.findsCreated.Load(),
		FindsDestroyed: s.findsDestroyed.Load(),
		RecvsCreated:   s.recvsCreated.Load(),
		RecvsDestroyed: s.recvsDestroyed.Load(),
		LiveReceivers:  len(s.recvs),
		Captures:       s.captures.Load(),
		Frees:          s.frees.Load(),
		DoubleFrees:    s.doubleFrees.Load(),
		Outstanding:    len(s.outstanding),
	}
}
