package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, sim ports.Transport) *DiscoveryRegistry {
	t.Helper()
	r := NewDiscoveryRegistry(sim, MonitorOptions{
		Discovery:       DiscoveryOptions{PollInterval: 5 * time.Millisecond},
		RefreshInterval: 5 * time.Millisecond,
		Logger:          testLogger(t),
	})
	t.Cleanup(r.Close)
	return r
}

func TestDiscoveryRegistry_SharedIsSingleton(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestRegistry(t, sim)

	const n = 16
	monitors := make([]*SourceMonitor, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.Shared()
			assert.NoError(t, err)
			monitors[i] = m
		}(i)
	}
	wg.Wait()

	for _, m := range monitors {
		assert.Same(t, monitors[0], m)
	}
	assert.Equal(t, int64(1), sim.Stats().FindsCreated)
}

func TestDiscoveryRegistry_FailureIsNotCached(t *testing.T) {
	sim := newSim(t, camA)
	sim.SetFailFindCreate(true)
	r := newTestRegistry(t, sim)

	_, err := r.Shared()
	require.ErrorIs(t, err, domain.ErrDiscoveryUnavailable)

	sim.SetFailFindCreate(false)
	m, err := r.Shared()
	require.NoError(t, err)
	assert.Equal(t, []domain.Source{camA}, m.Sources())
}

func TestDiscoveryRegistry_CloseStartsOver(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestRegistry(t, sim)

	first, err := r.Shared()
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, int64(1), sim.Stats().FindsDestroyed)

	second, err := r.Shared()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(2), sim.Stats().FindsCreated)
}

func TestSourceMonitor_Watch(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestRegistry(t, sim)
	m, err := r.Shared()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := m.Watch(ctx)

	select {
	case got := <-ch:
		assert.Equal(t, []domain.Source{camA}, got)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	sim.AddSource(camB)
	select {
	case got := <-ch:
		assert.Equal(t, []domain.Source{camA, camB}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSourceMonitor_Observers(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestRegistry(t, sim)

	got := make(chan []domain.Source, 8)
	r.AddObserver(ports.SourceObserverFunc(func(_ context.Context, sources []domain.Source) {
		got <- sources
	}))

	_, err := r.Shared()
	require.NoError(t, err)

	select {
	case s := <-got:
		assert.Equal(t, []domain.Source{camA}, s)
	case <-time.After(time.Second):
		t.Fatal("observer missed initial snapshot")
	}

	sim.RemoveSource(camA.Name)
	select {
	case s := <-got:
		assert.Empty(t, s)
	case <-time.After(2 * time.Second):
		t.Fatal("observer missed removal")
	}
}

func TestSourceMonitor_FindSourceByName(t *testing.T) {
	sim := newSim(t)
	r := newTestRegistry(t, sim)
	m, err := r.Shared()
	require.NoError(t, err)

	watch := m.Watch(context.Background())
	<-watch

	go func() {
		time.Sleep(20 * time.Millisecond)
		sim.AddSource(camB)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	src, ok := m.FindSourceByName(ctx, camB.Name)
	require.True(t, ok)
	assert.Equal(t, camB, src)

	// a lookup does not steal the change from other watchers
	select {
	case s := <-watch:
		assert.Equal(t, []domain.Source{camB}, s)
	case <-time.After(time.Second):
		t.Fatal("watcher missed change")
	}
}

func TestSourceMonitor_FindSourceByNameTimeout(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestRegistry(t, sim)
	m, err := r.Shared()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, ok := m.FindSourceByName(ctx, camB.Name)
	assert.False(t, ok)
}

func TestSourceMonitor_SlowObserverDoesNotStallRefresh(t *testing.T) {
	sim := newSim(t, camA)
	r := newTestRegistry(t, sim)

	release := make(chan struct{})
	var calls [][]domain.Source
	var mu sync.Mutex
	r.AddObserver(ports.SourceObserverFunc(func(ctx context.Context, sources []domain.Source) {
		mu.Lock()
		calls = append(calls, sources)
		mu.Unlock()
		select {
		case <-release:
		case <-ctx.Done():
		}
	}))

	m, err := r.Shared()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)

	sim.AddSource(camB)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	src, ok := m.FindSourceByName(ctx, camB.Name)
	require.True(t, ok)
	assert.Equal(t, camB, src)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	sim.RemoveSource(camA.Name)
	require.Eventually(t, func() bool {
		return domain.SourcesEqual(m.Sources(), []domain.Source{camB})
	}, time.Second, 5*time.Millisecond)

	// the blocked observer catches up with the newest list
	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return domain.SourcesEqual(calls[len(calls)-1], []domain.Source{camB})
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.LessOrEqual(t, len(calls), 3)
	mu.Unlock()
}
