package ndi

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type lifecycleCalls struct {
	mu        sync.Mutex
	ok        bool
	inits     int
	destroyed int
}

func (c *lifecycleCalls) lifecycle() *lifecycle {
	return newLifecycle(
		func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.inits++
			return c.ok
		},
		func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.destroyed++
		},
	)
}

func TestLifecycle_DestroyRunsOnce(t *testing.T) {
	calls := &lifecycleCalls{ok: true}
	l := calls.lifecycle()

	assert.NoError(t, l.Initialize())
	assert.NoError(t, l.Initialize())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Destroy()
		}()
	}
	wg.Wait()
	l.Destroy()

	assert.Equal(t, 1, calls.inits)
	assert.Equal(t, 1, calls.destroyed)
}

func TestLifecycle_FailedInitializeIsNotDestroyed(t *testing.T) {
	calls := &lifecycleCalls{ok: false}
	l := calls.lifecycle()

	assert.ErrorIs(t, l.Initialize(), errInitialize)
	assert.ErrorIs(t, l.Initialize(), errInitialize)
	l.Destroy()

	assert.Equal(t, 1, calls.inits)
	assert.Zero(t, calls.destroyed)
}

func TestLifecycle_DestroyWithoutInitialize(t *testing.T) {
	calls := &lifecycleCalls{ok: true}
	l := calls.lifecycle()

	l.Destroy()
	assert.Zero(t, calls.inits)
	assert.Zero(t, calls.destroyed)
	// a destroyed runtime does not start again
	assert.ErrorIs(t, l.Initialize(), errInitialize)
}
