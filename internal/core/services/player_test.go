package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/infrastructure/ndi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlayer(t *testing.T, sim *ndi.Simulator, opts PlayerOptions) *Player {
	t.Helper()
	src := camA
	p := NewPlayer(sim, camA.Name, &src, opts)
	t.Cleanup(p.Close)
	return p
}

func pushVideo(sim *ndi.Simulator, tc int64) {
	sim.PushVideo(camA.Name, domain.VideoFrameData{
		Width:      16,
		Height:     9,
		FourCC:     domain.FourCCUYVY,
		FrameRateN: 30000,
		FrameRateD: 1001,
		Timecode:   domain.Timecode(tc),
	})
}

func pushAudio(sim *ndi.Simulator, tc int64) {
	sim.PushAudio(camA.Name, domain.AudioFrameData{SampleRate: 48000, Channels: 2, Samples: 1601, Timecode: domain.Timecode(tc)})
}

func waitState(t *testing.T, p *Player, want domain.PlayerState) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == want }, 2*time.Second, 2*time.Millisecond,
		"player never reached %s", want)
}

func TestPlayer_StartsIdle(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))

	assert.Equal(t, camA.Name, p.Name())
	assert.Equal(t, domain.PlayerIdle, p.State())
	assert.Zero(t, sim.Stats().RecvsCreated)
}

func TestPlayer_FanOutToSubscribers(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))
	ctx := context.Background()

	a, err := p.Subscribe(ctx, domain.CaptureAll, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	b, err := p.Subscribe(ctx, domain.CaptureAll, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)

	sim.PushMetadata(camA.Name, domain.MetadataFrameData{Timecode: 7, Data: "<tally on_program=\"true\"/>"})

	for _, s := range []*Subscription{a, b} {
		f := recvFrame(t, s.Frames())
		m, ok := f.(*domain.MetadataFrame)
		require.True(t, ok)
		assert.Equal(t, domain.Timecode(7), m.Timecode)
		m.Release()
	}

	assert.Equal(t, int64(1), sim.Stats().RecvsCreated)
	assert.Equal(t, uint64(1), p.Stats().FramesCaptured)
	require.Eventually(t, func() bool { return p.Stats().FramesDelivered == 2 }, time.Second, 2*time.Millisecond)

	p.Close()
	st := sim.Stats()
	assert.Zero(t, st.Outstanding)
	assert.Equal(t, int64(1), st.Frees)
	assert.Zero(t, st.DoubleFrees)
	assert.Equal(t, int64(1), st.RecvsDestroyed)
}

func TestPlayer_KindFiltering(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))
	ctx := context.Background()

	audio, err := p.Subscribe(ctx, domain.CaptureAudio, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)

	pushAudio(sim, 1)
	f := recvFrame(t, audio.Frames())
	assert.Equal(t, domain.FrameTypeAudio, f.Type())
	f.Release()

	// video is not requested from the transport while nobody wants it
	pushVideo(sim, 2)
	expectNoFrame(t, audio.Frames(), 60*time.Millisecond)
	assert.Equal(t, 1, sim.Pending(camA.Name))
	assert.Equal(t, domain.CaptureAudio, sim.LastCaptureKinds(camA.Name))
}

func TestPlayer_CaptureKindsAreUnionOfSubscribers(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))
	ctx := context.Background()

	video, err := p.Subscribe(ctx, domain.CaptureVideo, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sim.LastCaptureKinds(camA.Name) == domain.CaptureVideo
	}, 2*time.Second, 2*time.Millisecond)

	meta, err := p.Subscribe(ctx, domain.CaptureMetadata, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sim.LastCaptureKinds(camA.Name) == domain.CaptureVideo|domain.CaptureMetadata
	}, 2*time.Second, 2*time.Millisecond)

	video.Close()
	require.Eventually(t, func() bool {
		return sim.LastCaptureKinds(camA.Name) == domain.CaptureMetadata
	}, 2*time.Second, 2*time.Millisecond)
	meta.Close()
}

func TestPlayer_LatestVideoDeliveredToNewSubscriber(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))
	ctx := context.Background()

	first, err := p.Subscribe(ctx, domain.CaptureVideo, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)

	pushVideo(sim, 42)
	f := recvFrame(t, first.Frames())
	f.Release()

	late, err := p.Subscribe(ctx, domain.CaptureVideo, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	v, ok := recvFrame(t, late.Frames()).(*domain.VideoFrame)
	require.True(t, ok)
	assert.Equal(t, domain.Timecode(42), v.Timecode)
	v.Release()

	// audio subscribers do not get the cached video frame
	audio, err := p.Subscribe(ctx, domain.CaptureAudio, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	expectNoFrame(t, audio.Frames(), 50*time.Millisecond)

	p.Close()
	assert.Zero(t, sim.Stats().Outstanding)
	assert.Zero(t, sim.Stats().DoubleFrees)
}

func TestPlayer_SlowSubscriberDropsOldest(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))
	ctx := context.Background()

	policy := domain.BufferPolicy{Video: 1, Audio: 2, Metadata: 1}
	s, err := p.Subscribe(ctx, domain.CaptureAudio, policy)
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)

	const total = 6
	for i := int64(1); i <= total; i++ {
		pushAudio(sim, i)
	}
	require.Eventually(t, func() bool { return p.Stats().FramesCaptured == total }, 2*time.Second, 2*time.Millisecond)

	var got []domain.Timecode
	for {
		select {
		case f := <-s.Frames():
			got = append(got, domain.FrameTimecode(f))
			f.Release()
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}

	// at most the queue limit plus the frame already handed to the pump
	assert.LessOrEqual(t, len(got), policy.Audio+1)
	require.NotEmpty(t, got)
	assert.Equal(t, domain.Timecode(total), got[len(got)-1])
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
	assert.Equal(t, uint64(total), uint64(len(got))+s.Dropped())
	assert.Equal(t, s.Dropped(), p.Stats().FramesDropped)

	p.Close()
	assert.Zero(t, sim.Stats().Outstanding)
}

func TestPlayer_LoopStopsWithLastSubscriber(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))
	ctx := context.Background()

	s, err := p.Subscribe(ctx, domain.CaptureAll, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)

	s.Close()
	expectClosed(t, s.Frames())
	waitState(t, p, domain.PlayerIdle)

	st := p.Stats()
	assert.False(t, st.LoopRunning)
	assert.True(t, st.HasReceiver)
	assert.Zero(t, st.Subscribers)

	// the idle receiver is reused
	s, err = p.Subscribe(ctx, domain.CaptureAll, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)
	assert.Equal(t, int64(1), sim.Stats().RecvsCreated)
	s.Close()
}

func TestPlayer_UnsubscribeStopsDeliveryAndLoop(t *testing.T) {
	sim := newSim(t, camA)
	opts := testPlayerOptions(t)
	opts.CaptureTimeout = 50 * time.Millisecond
	p := newTestPlayer(t, sim, opts)

	s, err := p.Subscribe(context.Background(), domain.CaptureVideo, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)

	for tc := int64(1); tc <= 3; tc++ {
		pushVideo(sim, tc)
	}
	for tc := int64(1); tc <= 3; tc++ {
		f := recvFrame(t, s.Frames())
		assert.Equal(t, domain.FrameTypeVideo, f.Type())
		assert.Equal(t, domain.Timecode(tc), domain.FrameTimecode(f))
		f.Release()
	}

	s.Close()
	stopped := time.Now()
	pushVideo(sim, 4)

	for f := range s.Frames() {
		f.Release()
		t.Fatalf("frame %d delivered after unsubscribe", domain.FrameTimecode(f))
	}

	// one capture call in flight when the stop is requested, plus scheduling slack
	require.Eventually(t, func() bool { return !p.Stats().LoopRunning }, opts.CaptureTimeout+100*time.Millisecond, time.Millisecond)
	assert.Less(t, time.Since(stopped), opts.CaptureTimeout+100*time.Millisecond)
	assert.Equal(t, domain.PlayerIdle, p.State())
	assert.Equal(t, uint64(3), p.Stats().FramesDelivered)
	assert.Equal(t, uint64(3), s.Delivered())
}

func TestPlayer_ReleaseIdleReceiver(t *testing.T) {
	sim := newSim(t, camA)
	opts := testPlayerOptions(t)
	opts.ReleaseIdleReceiver = true
	p := newTestPlayer(t, sim, opts)

	s, err := p.Subscribe(context.Background(), domain.CaptureVideo, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)
	pushVideo(sim, 1)
	recvFrame(t, s.Frames()).Release()

	s.Close()
	require.Eventually(t, func() bool { return sim.Stats().RecvsDestroyed == 1 }, 2*time.Second, 2*time.Millisecond)
	assert.False(t, p.Stats().HasReceiver)
	assert.Zero(t, sim.Stats().Outstanding)
}

func TestPlayer_RejoinWhileDraining(t *testing.T) {
	sim := newSim(t, camA)
	opts := testPlayerOptions(t)
	opts.CaptureTimeout = time.Second
	p := newTestPlayer(t, sim, opts)
	ctx := context.Background()

	s, err := p.Subscribe(ctx, domain.CaptureMetadata, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)
	require.Eventually(t, func() bool { return sim.Stats().Captures > 0 }, time.Second, time.Millisecond)

	s.Close()
	assert.Equal(t, domain.PlayerDraining, p.State())

	s, err = p.Subscribe(ctx, domain.CaptureMetadata, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerActive, p.State())

	sim.PushMetadata(camA.Name, domain.MetadataFrameData{Data: "<still-here/>"})
	f := recvFrame(t, s.Frames())
	assert.Equal(t, domain.FrameTypeMetadata, f.Type())
	f.Release()

	assert.Equal(t, domain.PlayerActive, p.State())
	assert.Equal(t, int64(1), sim.Stats().RecvsCreated)
}

func TestPlayer_ConcurrentConnectSharesAcquisition(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))

	release := sim.HoldRecvCreate()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Connect(context.Background())
		}()
	}

	waitState(t, p, domain.PlayerConnecting)
	release()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), sim.Stats().RecvsCreated)
	// connected without consumers: receiver kept, loop not started
	assert.Equal(t, domain.PlayerIdle, p.State())
	assert.True(t, p.Stats().HasReceiver)
}

func TestPlayer_ConnectContextBoundsWaitOnly(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))

	release := sim.HoldRecvCreate()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Connect(ctx), context.DeadlineExceeded)

	release()
	require.Eventually(t, func() bool { return p.Stats().HasReceiver }, 2*time.Second, 2*time.Millisecond)
	assert.NoError(t, p.Connect(context.Background()))
	assert.Equal(t, int64(1), sim.Stats().RecvsCreated)
}

func TestPlayer_AcquisitionFailureAndRetry(t *testing.T) {
	sim := newSim(t, camA)
	sim.SetFailRecvCreate(true)
	p := newTestPlayer(t, sim, testPlayerOptions(t))

	err := p.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrReceiverUnavailable)
	assert.Equal(t, domain.PlayerIdle, p.State())
	assert.NotEmpty(t, p.Stats().LastError)

	sim.SetFailRecvCreate(false)
	s, err := p.Subscribe(context.Background(), domain.CaptureAll, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)
	assert.Empty(t, p.Stats().LastError)
	s.Close()
}

func TestPlayer_ConnectByName(t *testing.T) {
	sim := newSim(t)
	p := NewPlayer(sim, camB.Name, nil, testPlayerOptions(t))
	defer p.Close()

	go func() {
		time.Sleep(30 * time.Millisecond)
		sim.AddSource(camB)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Connect(ctx))

	s, err := p.Subscribe(ctx, domain.CaptureMetadata, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	sim.PushMetadata(camB.Name, domain.MetadataFrameData{Data: "<b/>"})
	f := recvFrame(t, s.Frames())
	assert.Equal(t, domain.FrameTypeMetadata, f.Type())
	f.Release()
}

func TestPlayer_CustomLookup(t *testing.T) {
	sim := newSim(t)
	opts := testPlayerOptions(t)
	var looked []string
	var mu sync.Mutex
	opts.Lookup = func(_ context.Context, name string) (domain.Source, bool) {
		mu.Lock()
		looked = append(looked, name)
		mu.Unlock()
		return domain.Source{Name: name, URL: "10.0.0.9:5961"}, true
	}
	p := NewPlayer(sim, "REMOTE (Cam)", nil, opts)
	defer p.Close()

	require.NoError(t, p.Connect(context.Background()))
	mu.Lock()
	assert.Equal(t, []string{"REMOTE (Cam)"}, looked)
	mu.Unlock()
	assert.Zero(t, sim.Stats().FindsCreated)
}

func TestPlayer_SourceNotFound(t *testing.T) {
	sim := newSim(t)
	opts := testPlayerOptions(t)
	opts.Lookup = func(context.Context, string) (domain.Source, bool) { return domain.Source{}, false }
	p := NewPlayer(sim, "GONE (Cam)", nil, opts)
	defer p.Close()

	err := p.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
	assert.Equal(t, int64(1), sim.Stats().RecvsDestroyed)
}

func TestPlayer_ContextCancelUnsubscribes(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))

	ctx, cancel := context.WithCancel(context.Background())
	s, err := p.Subscribe(ctx, domain.CaptureAll, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)

	cancel()
	expectClosed(t, s.Frames())
	require.Eventually(t, func() bool { return p.Stats().Subscribers == 0 }, time.Second, 2*time.Millisecond)
	waitState(t, p, domain.PlayerIdle)
}

func TestPlayer_SubscribeValidation(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))

	_, err := p.Subscribe(context.Background(), domain.CaptureNone, domain.DefaultBufferPolicy())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Subscribe(ctx, domain.CaptureAll, domain.DefaultBufferPolicy())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.PlayerIdle, p.State())
}

func TestPlayer_StatusChangesAreCountedNotDelivered(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))

	s, err := p.Subscribe(context.Background(), domain.CaptureAll, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)

	sim.PushStatusChange(camA.Name)
	sim.PushUnknown(camA.Name, int(domain.FrameTypeError))
	sim.PushMetadata(camA.Name, domain.MetadataFrameData{Data: "<after/>"})

	f := recvFrame(t, s.Frames())
	assert.Equal(t, domain.FrameTypeMetadata, f.Type())
	f.Release()
	assert.Equal(t, uint64(1), p.Stats().StatusChanges)
	assert.Equal(t, uint64(1), p.Stats().FramesCaptured)
}

func TestPlayer_TypedStreams(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	videos, err := p.VideoFrames(ctx)
	require.NoError(t, err)
	audios, err := p.AudioFrames(ctx)
	require.NoError(t, err)
	metas, err := p.MetadataFrames(ctx)
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)

	pushVideo(sim, 1)
	pushAudio(sim, 2)
	sim.PushMetadata(camA.Name, domain.MetadataFrameData{Timecode: 3})

	select {
	case v := <-videos:
		assert.Equal(t, domain.Timecode(1), v.Timecode)
		v.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("no video")
	}
	select {
	case a := <-audios:
		assert.Equal(t, domain.Timecode(2), a.Timecode)
		a.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("no audio")
	}
	select {
	case m := <-metas:
		assert.Equal(t, domain.Timecode(3), m.Timecode)
		m.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("no metadata")
	}
}

func TestPlayer_FramesUsesDefaultPolicy(t *testing.T) {
	sim := newSim(t, camA)
	p := newTestPlayer(t, sim, testPlayerOptions(t))

	frames, err := p.Frames(context.Background())
	require.NoError(t, err)
	pushVideo(sim, 5)
	f := recvFrame(t, frames)
	assert.Equal(t, domain.Timecode(5), domain.FrameTimecode(f))
	f.Release()
}

func TestPlayer_Close(t *testing.T) {
	sim := newSim(t, camA)
	p := NewPlayer(sim, camA.Name, &camA, testPlayerOptions(t))

	s, err := p.Subscribe(context.Background(), domain.CaptureAll, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	waitState(t, p, domain.PlayerActive)
	pushVideo(sim, 1)
	pushVideo(sim, 2)
	require.Eventually(t, func() bool { return p.Stats().FramesCaptured == 2 }, 2*time.Second, 2*time.Millisecond)

	p.Close()
	p.Close()
	expectClosed(t, s.Frames())

	st := sim.Stats()
	assert.Zero(t, st.Outstanding)
	assert.Zero(t, st.DoubleFrees)
	assert.Equal(t, int64(1), st.RecvsDestroyed)
	assert.Equal(t, domain.PlayerIdle, p.State())

	_, err = p.Subscribe(context.Background(), domain.CaptureAll, domain.DefaultBufferPolicy())
	assert.ErrorIs(t, err, domain.ErrPlayerClosed)
	assert.ErrorIs(t, p.Connect(context.Background()), domain.ErrPlayerClosed)
}

func TestPlayer_LastSubscriberLeavesDuringAcquisition(t *testing.T) {
	for _, release := range []bool{false, true} {
		sim := newSim(t, camA)
		opts := testPlayerOptions(t)
		opts.ReleaseIdleReceiver = release
		p := newTestPlayer(t, sim, opts)

		unblock := sim.HoldRecvCreate()
		s, err := p.Subscribe(context.Background(), domain.CaptureAll, domain.DefaultBufferPolicy())
		require.NoError(t, err)
		waitState(t, p, domain.PlayerConnecting)

		s.Close()
		unblock()

		// the acquisition completes and no loop starts
		waitState(t, p, domain.PlayerIdle)
		assert.Equal(t, int64(1), sim.Stats().RecvsCreated)
		assert.False(t, p.Stats().LoopRunning)
		if release {
			require.Eventually(t, func() bool { return sim.Stats().RecvsDestroyed == 1 }, time.Second, 2*time.Millisecond)
			assert.False(t, p.Stats().HasReceiver)
		} else {
			assert.True(t, p.Stats().HasReceiver)
			assert.Zero(t, sim.Stats().RecvsDestroyed)
		}
	}
}

func TestPlayer_ConnectKeepsReceiverWhenReleasingIdle(t *testing.T) {
	sim := newSim(t, camA)
	opts := testPlayerOptions(t)
	opts.ReleaseIdleReceiver = true
	p := newTestPlayer(t, sim, opts)

	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.Stats().HasReceiver)
}

func TestPlayer_CloseDuringAcquisition(t *testing.T) {
	sim := newSim(t, camA)
	p := NewPlayer(sim, camA.Name, &camA, testPlayerOptions(t))

	release := sim.HoldRecvCreate()
	errc := make(chan error, 1)
	go func() { errc <- p.Connect(context.Background()) }()
	waitState(t, p, domain.PlayerConnecting)

	p.Close()
	release()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, domain.ErrPlayerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not return")
	}
	require.Eventually(t, func() bool { return sim.Stats().RecvsDestroyed == 1 }, time.Second, 2*time.Millisecond)
}

func TestPlayer_SyntheticSourceHasNoLeaks(t *testing.T) {
	cfg := ndi.DefaultSimulatorConfig()
	cfg.Sources = []domain.Source{camA}
	cfg.Synthetic = true
	cfg.Width, cfg.Height = 64, 36
	sim := ndi.NewSimulator(cfg, testLogger(t))
	p := NewPlayer(sim, camA.Name, &camA, testPlayerOptions(t))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	frames, err := p.Frames(ctx)
	require.NoError(t, err)

	var video, audio int
	for f := range frames {
		switch f.Type() {
		case domain.FrameTypeVideo:
			video++
		case domain.FrameTypeAudio:
			audio++
		}
		f.Release()
	}
	assert.Positive(t, video)
	assert.Positive(t, audio)

	p.Close()
	st := sim.Stats()
	assert.Zero(t, st.Outstanding)
	assert.Zero(t, st.DoubleFrees)
	assert.Zero(t, st.LiveReceivers)
}
