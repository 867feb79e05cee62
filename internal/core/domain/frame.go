package domain

import (
	"fmt"
	"sync/atomic"
	"time"
)

// FrameType is the kind reported by a capture call. Values match the
// transport's frame type codes.
type FrameType int

const (
	FrameTypeNone         FrameType = 0
	FrameTypeVideo        FrameType = 1
	FrameTypeAudio        FrameType = 2
	FrameTypeMetadata     FrameType = 3
	FrameTypeError        FrameType = 4
	FrameTypeStatusChange FrameType = 100
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeNone:
		return "none"
	case FrameTypeVideo:
		return "video"
	case FrameTypeAudio:
		return "audio"
	case FrameTypeMetadata:
		return "metadata"
	case FrameTypeError:
		return "error"
	case FrameTypeStatusChange:
		return "status_change"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// FourCC identifies a video pixel layout.
type FourCC uint32

const (
	FourCCUYVY FourCC = 0x59565955
	FourCCUYVA FourCC = 0x41565955
	FourCCBGRA FourCC = 0x41524742
	FourCCBGRX FourCC = 0x58524742
	FourCCRGBA FourCC = 0x41424752
	FourCCRGBX FourCC = 0x58424752
	FourCCNV12 FourCC = 0x3231564E
	FourCCI420 FourCC = 0x30323449
	FourCCP216 FourCC = 0x36313250
)

func (f FourCC) String() string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08X", uint32(f))
		}
	}
	return string(b)
}

// Frame is the result of one capture call. The set of implementations is
// closed: NoFrame, *VideoFrame, *AudioFrame, *MetadataFrame, StatusChange
// and UnknownFrame.
//
// Payload frames hold a native buffer owned by the transport. Every holder
// calls Release exactly once; Retain adds a holder. The buffer is returned
// to the transport when the last holder releases it. Retain and Release are
// no-ops on the payload-less variants.
type Frame interface {
	Type() FrameType
	Retain()
	Release()

	frame()
}

// NoFrame is returned when a capture call times out.
type NoFrame struct{}

func (NoFrame) Type() FrameType { return FrameTypeNone }
func (NoFrame) Retain()         {}
func (NoFrame) Release()        {}
func (NoFrame) frame()          {}

// StatusChange reports that the sender's connection status changed.
type StatusChange struct{}

func (StatusChange) Type() FrameType { return FrameTypeStatusChange }
func (StatusChange) Retain()         {}
func (StatusChange) Release()        {}
func (StatusChange) frame()          {}

// UnknownFrame carries a frame type code the receiver does not handle.
type UnknownFrame struct {
	Code int
}

func (f UnknownFrame) Type() FrameType { return FrameType(f.Code) }
func (UnknownFrame) Retain()           {}
func (UnknownFrame) Release()          {}
func (UnknownFrame) frame()            {}

// frameRef counts the holders of a native buffer and runs free once.
type frameRef struct {
	refs atomic.Int32
	free func()
}

func newFrameRef(free func()) *frameRef {
	r := &frameRef{free: free}
	r.refs.Store(1)
	return r
}

func (r *frameRef) retain() {
	if r.refs.Add(1) <= 1 {
		panic("domain: retain of a released frame")
	}
}

func (r *frameRef) release() {
	n := r.refs.Add(-1)
	switch {
	case n == 0:
		if r.free != nil {
			r.free()
		}
	case n < 0:
		panic("domain: frame released more times than retained")
	}
}

func (r *frameRef) live() bool {
	return r.refs.Load() > 0
}

// VideoFrameData describes a captured video frame. Data aliases native
// memory and is valid until the owning frame is released.
type VideoFrameData struct {
	Width       int
	Height      int
	FourCC      FourCC
	FrameRateN  int
	FrameRateD  int
	AspectRatio float32
	FormatType  int
	Timecode    Timecode
	Timestamp   Timecode
	LineStride  int
	Data        []byte
	Metadata    string
}

// FrameRate returns the frame rate in frames per second.
func (d VideoFrameData) FrameRate() float64 {
	if d.FrameRateD == 0 {
		return 0
	}
	return float64(d.FrameRateN) / float64(d.FrameRateD)
}

type VideoFrame struct {
	VideoFrameData
	ref *frameRef
}

// NewVideoFrame wraps captured video data. free runs once, when the last
// holder releases the frame.
func NewVideoFrame(data VideoFrameData, free func()) *VideoFrame {
	return &VideoFrame{VideoFrameData: data, ref: newFrameRef(free)}
}

func (f *VideoFrame) Type() FrameType { return FrameTypeVideo }
func (f *VideoFrame) Retain()         { f.ref.retain() }
func (f *VideoFrame) Release()        { f.ref.release() }
func (f *VideoFrame) Live() bool      { return f.ref.live() }
func (f *VideoFrame) frame()          {}

// AudioFrameData describes captured planar float audio. Data aliases
// native memory and is valid until the owning frame is released.
type AudioFrameData struct {
	SampleRate    int
	Channels      int
	Samples       int
	ChannelStride int
	Timecode      Timecode
	Timestamp     Timecode
	Data          []float32
	Metadata      string
}

// Duration returns the playback length of the buffer.
func (d AudioFrameData) Duration() time.Duration {
	if d.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(d.Samples) * int64(time.Second) / int64(d.SampleRate))
}

type AudioFrame struct {
	AudioFrameData
	ref *frameRef
}

func NewAudioFrame(data AudioFrameData, free func()) *AudioFrame {
	return &AudioFrame{AudioFrameData: data, ref: newFrameRef(free)}
}

func (f *AudioFrame) Type() FrameType { return FrameTypeAudio }
func (f *AudioFrame) Retain()         { f.ref.retain() }
func (f *AudioFrame) Release()        { f.ref.release() }
func (f *AudioFrame) Live() bool      { return f.ref.live() }
func (f *AudioFrame) frame()          {}

// MetadataFrameData is a metadata message, usually XML.
type MetadataFrameData struct {
	Timecode Timecode
	Data     string
}

type MetadataFrame struct {
	MetadataFrameData
	ref *frameRef
}

func NewMetadataFrame(data MetadataFrameData, free func()) *MetadataFrame {
	return &MetadataFrame{MetadataFrameData: data, ref: newFrameRef(free)}
}

func (f *MetadataFrame) Type() FrameType { return FrameTypeMetadata }
func (f *MetadataFrame) Retain()         { f.ref.retain() }
func (f *MetadataFrame) Release()        { f.ref.release() }
func (f *MetadataFrame) Live() bool      { return f.ref.live() }
func (f *MetadataFrame) frame()          {}

// FrameTimecode returns the timecode of a payload frame, or
// TimecodeUndefined for the other variants.
func FrameTimecode(f Frame) Timecode {
	switch v := f.(type) {
	case *VideoFrame:
		return v.Timecode
	case *AudioFrame:
		return v.Timecode
	case *MetadataFrame:
		return v.Timecode
	default:
		return TimecodeUndefined
	}
}
