//go:build !ndi

package ndi

import (
	"errors"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"

	"go.uber.org/zap"
)

var errNotAvailable = errors.New("NDI SDK not available - build with -tags ndi")

// SDK is the native transport. This build has no SDK linked in, so
// Initialize always fails and every other call is inert.
type SDK struct {
	logger *zap.SugaredLogger
}

func NewSDK(logger *zap.SugaredLogger) *SDK {
	return &SDK{logger: logger}
}

func Available() bool { return false }

func Version() string { return "unavailable" }

func (s *SDK) Initialize() error { return errNotAvailable }
func (s *SDK) Destroy()          {}

func (s *SDK) FindCreate(ports.FindOptions) (ports.FindHandle, error) { return 0, errNotAvailable }
func (s *SDK) FindDestroy(ports.FindHandle)                           {}
func (s *SDK) FindWaitForSources(_ ports.FindHandle, timeout time.Duration) bool {
	time.Sleep(timeout)
	return false
}
func (s *SDK) FindCurrentSources(ports.FindHandle) []domain.Source { return nil }

func (s *SDK) RecvCreate(ports.RecvOptions) (ports.RecvHandle, error) { return 0, errNotAvailable }
func (s *SDK) RecvDestroy(ports.RecvHandle)                           {}
func (s *SDK) RecvConnect(ports.RecvHandle, *domain.Source)           {}
func (s *SDK) RecvCapture(_ ports.RecvHandle, _ domain.CaptureKinds, timeout time.Duration) ports.CaptureResult {
	time.Sleep(timeout)
	return ports.CaptureResult{Type: domain.FrameTypeNone}
}
func (s *SDK) RecvFreeVideo(ports.RecvHandle, any)    {}
func (s *SDK) RecvFreeAudio(ports.RecvHandle, any)    {}
func (s *SDK) RecvFreeMetadata(ports.RecvHandle, any) {}
