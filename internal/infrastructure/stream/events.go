package stream

import (
	"ndilive/internal/core/domain"
)

// FrameEvent is the JSON description of one frame sent to stream clients.
// Sample and pixel data are never included.
type FrameEvent struct {
	Type       string `json:"type"`
	Source     string `json:"source"`
	Timecode   int64  `json:"timecode"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	FourCC     string `json:"fourcc,omitempty"`
	FrameRateN int    `json:"frame_rate_n,omitempty"`
	FrameRateD int    `json:"frame_rate_d,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Samples    int    `json:"samples,omitempty"`
	Metadata   string `json:"metadata,omitempty"`
}

// EventFromFrame describes f. It reports false for frames without payload.
func EventFromFrame(source string, f domain.Frame) (FrameEvent, bool) {
	ev := FrameEvent{Type: f.Type().String(), Source: source}

	switch v := f.(type) {
	case *domain.VideoFrame:
		ev.Timecode = int64(v.Timecode)
		ev.Timestamp = timestamp(v.Timestamp)
		ev.Width = v.Width
		ev.Height = v.Height
		ev.FourCC = v.FourCC.String()
		ev.FrameRateN = v.FrameRateN
		ev.FrameRateD = v.FrameRateD
		ev.Metadata = v.VideoFrameData.Metadata
	case *domain.AudioFrame:
		ev.Timecode = int64(v.Timecode)
		ev.Timestamp = timestamp(v.Timestamp)
		ev.SampleRate = v.SampleRate
		ev.Channels = v.Channels
		ev.Samples = v.Samples
		ev.Metadata = v.AudioFrameData.Metadata
	case *domain.MetadataFrame:
		ev.Timecode = int64(v.Timecode)
		ev.Metadata = v.Data
	default:
		return FrameEvent{}, false
	}
	return ev, true
}

func timestamp(tc domain.Timecode) int64 {
	if !tc.Defined() {
		return 0
	}
	return int64(tc)
}

// errorEvent is sent before the server closes a stream.
type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
