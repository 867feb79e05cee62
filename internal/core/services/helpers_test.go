package services

import (
	"testing"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/infrastructure/ndi"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var (
	camA = domain.Source{Name: "STUDIO (Cam A)", URL: "192.168.1.20:5961"}
	camB = domain.Source{Name: "STUDIO (Cam B)", URL: "192.168.1.21:5961"}
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

func newSim(t *testing.T, sources ...domain.Source) *ndi.Simulator {
	t.Helper()
	return ndi.NewSimulator(ndi.SimulatorConfig{Sources: sources}, testLogger(t))
}

func testPlayerOptions(t *testing.T) PlayerOptions {
	opts := DefaultPlayerOptions()
	opts.CaptureTimeout = 20 * time.Millisecond
	opts.Logger = testLogger(t)
	opts.Receiver.Discovery.PollInterval = 5 * time.Millisecond
	return opts
}

func recvFrame(t *testing.T, ch <-chan domain.Frame) domain.Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		require.True(t, ok, "frame channel closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func expectNoFrame(t *testing.T, ch <-chan domain.Frame, wait time.Duration) {
	t.Helper()
	select {
	case f, ok := <-ch:
		if ok {
			f.Release()
			t.Fatalf("unexpected frame of type %s", f.Type())
		}
	case <-time.After(wait):
	}
}

func expectClosed(t *testing.T, ch <-chan domain.Frame) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return
			}
			f.Release()
		case <-deadline:
			t.Fatal("frame channel not closed")
		}
	}
}
