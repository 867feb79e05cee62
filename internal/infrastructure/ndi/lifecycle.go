package ndi

import (
	"errors"
	"sync"
)

var errInitialize = errors.New("failed to initialize NDI SDK - ensure NDI runtime is installed")

// lifecycle runs the runtime's process-wide initialize and destroy calls.
// Initialize runs at most once and its outcome is kept. Destroy runs at
// most once, and only after a successful initialize.
type lifecycle struct {
	initialize func() bool
	destroy    func()

	initOnce    sync.Once
	initErr     error
	destroyOnce sync.Once
}

func newLifecycle(initialize func() bool, destroy func()) *lifecycle {
	return &lifecycle{initialize: initialize, destroy: destroy}
}

func (l *lifecycle) Initialize() error {
	l.initOnce.Do(func() {
		if !l.initialize() {
			l.initErr = errInitialize
		}
	})
	return l.initErr
}

func (l *lifecycle) Destroy() {
	l.destroyOnce.Do(func() {
		// a runtime that never started has nothing to tear down
		l.initOnce.Do(func() { l.initErr = errInitialize })
		if l.initErr == nil {
			l.destroy()
		}
	})
}
