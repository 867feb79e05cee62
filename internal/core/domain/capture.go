package domain

import "strings"

// CaptureKinds selects which frame kinds a capture call may return.
type CaptureKinds uint8

const (
	CaptureVideo CaptureKinds = 1 << iota
	CaptureAudio
	CaptureMetadata

	CaptureNone CaptureKinds = 0
	CaptureAll               = CaptureVideo | CaptureAudio | CaptureMetadata
)

func (k CaptureKinds) Has(other CaptureKinds) bool {
	return k&other == other && other != 0
}

func (k CaptureKinds) Union(other CaptureKinds) CaptureKinds {
	return k | other
}

func (k CaptureKinds) Empty() bool {
	return k&CaptureAll == 0
}

func (k CaptureKinds) String() string {
	if k.Empty() {
		return "none"
	}
	var parts []string
	if k.Has(CaptureVideo) {
		parts = append(parts, "video")
	}
	if k.Has(CaptureAudio) {
		parts = append(parts, "audio")
	}
	if k.Has(CaptureMetadata) {
		parts = append(parts, "metadata")
	}
	return strings.Join(parts, ",")
}

// ParseCaptureKinds parses a comma separated list such as "video,audio".
// An empty string selects every kind.
func ParseCaptureKinds(s string) (CaptureKinds, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return CaptureAll, true
	}
	var kinds CaptureKinds
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "video":
			kinds |= CaptureVideo
		case "audio":
			kinds |= CaptureAudio
		case "metadata":
			kinds |= CaptureMetadata
		case "all":
			kinds |= CaptureAll
		default:
			return CaptureNone, false
		}
	}
	return kinds, true
}

// KindOf maps a frame type to the capture kind that selects it.
func KindOf(t FrameType) CaptureKinds {
	switch t {
	case FrameTypeVideo:
		return CaptureVideo
	case FrameTypeAudio:
		return CaptureAudio
	case FrameTypeMetadata:
		return CaptureMetadata
	default:
		return CaptureNone
	}
}
