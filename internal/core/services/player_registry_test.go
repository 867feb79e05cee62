package services

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/infrastructure/ndi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlayerRegistry(t *testing.T, sim *ndi.Simulator, discovery *DiscoveryRegistry) *PlayerRegistry {
	t.Helper()
	r := NewPlayerRegistry(sim, discovery, testPlayerOptions(t))
	t.Cleanup(r.Close)
	return r
}

func TestPlayerRegistry_OnePlayerPerName(t *testing.T) {
	sim := newSim(t, camA, camB)
	r := newTestPlayerRegistry(t, sim, nil)

	a1 := r.ForName(camA.Name)
	a2 := r.ForName(camA.Name)
	b := r.ForName(camB.Name)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Same(t, a1, r.ForSource(camA))
	assert.Equal(t, 2, r.Len())

	players := r.Players()
	require.Len(t, players, 2)
	assert.Equal(t, camA.Name, players[0].Name())
	assert.Equal(t, camB.Name, players[1].Name())
}

func TestPlayerRegistry_ConcurrentForNameSharesPlayer(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestPlayerRegistry(t, sim, nil)

	const n = 16
	players := make([]*Player, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := r.ForName(camA.Name)
			assert.NoError(t, p.Connect(context.Background()))
			players[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range players {
		assert.Same(t, players[0], p)
	}
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, int64(1), sim.Stats().RecvsCreated)
}

func TestPlayerRegistry_ForSourceSkipsLookup(t *testing.T) {
	// not advertised: only a direct connection can reach it
	sim := newSim(t)
	r := newTestPlayerRegistry(t, sim, nil)

	p := r.ForSource(camA)
	require.NoError(t, p.Connect(context.Background()))
	assert.Zero(t, sim.Stats().FindsCreated)
	assert.True(t, p.Stats().HasReceiver)
}

func TestPlayerRegistry_ClosedPlayerIsReplaced(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestPlayerRegistry(t, sim, nil)

	first := r.ForName(camA.Name)
	first.Close()

	second := r.ForName(camA.Name)
	assert.NotSame(t, first, second)
	assert.Equal(t, domain.PlayerIdle, second.State())
	assert.Equal(t, 1, r.Len())
}

func TestPlayerRegistry_UnreferencedPlayerIsCollected(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestPlayerRegistry(t, sim, nil)

	func() {
		p := r.ForName(camA.Name)
		require.NoError(t, p.Connect(context.Background()))
	}()
	require.Equal(t, int64(1), sim.Stats().RecvsCreated)

	require.Eventually(t, func() bool {
		runtime.GC()
		return r.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// the collected player's receiver is released by its cleanup
	require.Eventually(t, func() bool {
		runtime.GC()
		return sim.Stats().RecvsDestroyed == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPlayerRegistry_SubscriptionKeepsPlayerAlive(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestPlayerRegistry(t, sim, nil)

	var s *Subscription
	func() {
		p := r.ForName(camA.Name)
		var err error
		s, err = p.Subscribe(context.Background(), domain.CaptureMetadata, domain.DefaultBufferPolicy())
		require.NoError(t, err)
	}()

	for i := 0; i < 5; i++ {
		runtime.GC()
	}
	require.Equal(t, 1, r.Len())
	p := r.ForName(camA.Name)
	assert.Equal(t, 1, p.Stats().Subscribers)

	sim.PushMetadata(camA.Name, domain.MetadataFrameData{Data: "<alive/>"})
	f := recvFrame(t, s.Frames())
	assert.Equal(t, domain.FrameTypeMetadata, f.Type())
	f.Release()
	s.Close()
}

func TestPlayerRegistry_SharedDiscoveryLookup(t *testing.T) {
	sim := newSim(t)
	discovery := newTestRegistry(t, sim)
	r := newTestPlayerRegistry(t, sim, discovery)

	go func() {
		time.Sleep(30 * time.Millisecond)
		sim.AddSource(camB)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p := r.ForName(camB.Name)
	require.NoError(t, p.Connect(ctx))

	// every lookup goes through the one shared discovery instance
	assert.Equal(t, int64(1), sim.Stats().FindsCreated)
}

func TestPlayerRegistry_Close(t *testing.T) {
	sim := newSim(t, camA, camB)
	r := NewPlayerRegistry(sim, nil, testPlayerOptions(t))

	a := r.ForName(camA.Name)
	b := r.ForName(camB.Name)
	sa, err := a.Subscribe(context.Background(), domain.CaptureAll, domain.DefaultBufferPolicy())
	require.NoError(t, err)
	require.NoError(t, b.Connect(context.Background()))

	r.Close()
	expectClosed(t, sa.Frames())
	assert.Zero(t, r.Len())
	require.Eventually(t, func() bool { return sim.Stats().RecvsDestroyed == 2 }, 2*time.Second, 2*time.Millisecond)
	assert.ErrorIs(t, a.Connect(context.Background()), domain.ErrPlayerClosed)
}
