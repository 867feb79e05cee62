package domain

import "time"

type PlayerState int

const (
	PlayerIdle PlayerState = iota
	PlayerConnecting
	PlayerActive
	PlayerDraining
)

func (s PlayerState) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerConnecting:
		return "connecting"
	case PlayerActive:
		return "active"
	case PlayerDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// BufferPolicy bounds how many frames of each kind may wait in a
// subscription's queue. When a kind is full the oldest queued frame of that
// kind is dropped.
type BufferPolicy struct {
	Video    int `yaml:"video" json:"video"`
	Audio    int `yaml:"audio" json:"audio"`
	Metadata int `yaml:"metadata" json:"metadata"`
}

func DefaultBufferPolicy() BufferPolicy {
	return BufferPolicy{Video: 1, Audio: 32, Metadata: 8}
}

// Limit returns the queue limit for a frame type. Limits below one are
// treated as one.
func (p BufferPolicy) Limit(t FrameType) int {
	var n int
	switch t {
	case FrameTypeVideo:
		n = p.Video
	case FrameTypeAudio:
		n = p.Audio
	case FrameTypeMetadata:
		n = p.Metadata
	}
	if n < 1 {
		return 1
	}
	return n
}

type PlayerStats struct {
	Name            string      `json:"name"`
	State           PlayerState `json:"-"`
	StateName       string      `json:"state"`
	Subscribers     int         `json:"subscribers"`
	LoopRunning     bool        `json:"loop_running"`
	HasReceiver     bool        `json:"has_receiver"`
	FramesCaptured  uint64      `json:"frames_captured"`
	FramesDelivered uint64      `json:"frames_delivered"`
	FramesDropped   uint64      `json:"frames_dropped"`
	StatusChanges   uint64      `json:"status_changes"`
	LastFrameAt     time.Time   `json:"last_frame_at,omitempty"`
	LastError       string      `json:"last_error,omitempty"`
}
