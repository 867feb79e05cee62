package ports

import (
	"fmt"
	"time"

	"ndilive/internal/core/domain"
)

// FindHandle and RecvHandle are opaque transport instance handles. Zero is
// never a valid handle.
type FindHandle uintptr
type RecvHandle uintptr

type FindOptions struct {
	ShowLocalSources bool
	Groups           string
	ExtraIPs         string
}

type ColorFormat int

const (
	ColorFormatBGRXBGRA ColorFormat = 0
	ColorFormatUYVYBGRA ColorFormat = 1
	ColorFormatRGBXRGBA ColorFormat = 2
	ColorFormatUYVYRGBA ColorFormat = 3
	ColorFormatFastest  ColorFormat = 100
	ColorFormatBest     ColorFormat = 101
)

type Bandwidth int

const (
	BandwidthMetadataOnly Bandwidth = -10
	BandwidthAudioOnly    Bandwidth = 10
	BandwidthLowest       Bandwidth = 0
	BandwidthHighest      Bandwidth = 100
)

var colorFormatNames = map[string]ColorFormat{
	"bgrx_bgra": ColorFormatBGRXBGRA,
	"uyvy_bgra": ColorFormatUYVYBGRA,
	"rgbx_rgba": ColorFormatRGBXRGBA,
	"uyvy_rgba": ColorFormatUYVYRGBA,
	"fastest":   ColorFormatFastest,
	"best":      ColorFormatBest,
}

// ParseColorFormat maps a config name such as "uyvy_bgra" to its value.
func ParseColorFormat(name string) (ColorFormat, error) {
	if f, ok := colorFormatNames[name]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("unknown color format %q", name)
}

var bandwidthNames = map[string]Bandwidth{
	"metadata_only": BandwidthMetadataOnly,
	"audio_only":    BandwidthAudioOnly,
	"lowest":        BandwidthLowest,
	"highest":       BandwidthHighest,
}

func ParseBandwidth(name string) (Bandwidth, error) {
	if b, ok := bandwidthNames[name]; ok {
		return b, nil
	}
	return 0, fmt.Errorf("unknown bandwidth %q", name)
}

type RecvOptions struct {
	Source           *domain.Source
	ColorFormat      ColorFormat
	Bandwidth        Bandwidth
	AllowVideoFields bool
	Name             string
}

// CaptureResult is the raw outcome of one capture call. Exactly one of the
// payload fields is meaningful, selected by Type. Native is the token the
// transport needs to free the payload and must be handed back unchanged.
type CaptureResult struct {
	Type     domain.FrameType
	Video    domain.VideoFrameData
	Audio    domain.AudioFrameData
	Metadata domain.MetadataFrameData
	Native   any
}

// Transport is the capability surface of the media transport library.
// Implementations must tolerate concurrent calls on different handles;
// callers serialize calls on the same handle.
type Transport interface {
	Initialize() error
	Destroy()

	FindCreate(opts FindOptions) (FindHandle, error)
	FindDestroy(h FindHandle)
	// FindWaitForSources blocks up to timeout and reports whether the
	// source list changed.
	FindWaitForSources(h FindHandle, timeout time.Duration) bool
	FindCurrentSources(h FindHandle) []domain.Source

	RecvCreate(opts RecvOptions) (RecvHandle, error)
	RecvDestroy(h RecvHandle)
	RecvConnect(h RecvHandle, source *domain.Source)
	RecvCapture(h RecvHandle, kinds domain.CaptureKinds, timeout time.Duration) CaptureResult
	RecvFreeVideo(h RecvHandle, native any)
	RecvFreeAudio(h RecvHandle, native any)
	RecvFreeMetadata(h RecvHandle, native any)
}
