package recording

import (
	"errors"
	"fmt"

	"ndilive/internal/core/domain"
)

// Message is one status line printed by the recording tool. It is one of
// RecordStarted, Recording or RecordStopped.
type Message interface {
	message()
}

// RecordStarted reports the file a recording is being written to.
type RecordStarted struct {
	Filename        string
	PreviewFilename string
	FrameRateN      int
	FrameRateD      int
	// XRes and YRes are omitted by some versions of the tool.
	XRes *int
	YRes *int
}

func (RecordStarted) message() {}

func (m RecordStarted) FrameRate() float64 {
	if m.FrameRateD == 0 {
		return 0
	}
	return float64(m.FrameRateN) / float64(m.FrameRateD)
}

// Resolution returns the frame size when the tool reported it.
func (m RecordStarted) Resolution() (width, height int, ok bool) {
	if m.XRes == nil || m.YRes == nil {
		return 0, 0, false
	}
	return *m.XRes, *m.YRes, true
}

// Recording is the periodic progress report.
type Recording struct {
	Frames               int
	Timecode             domain.Timecode
	RealTimecodeInFlight domain.Timecode
	// VUdB is the audio level; -Inf for silence.
	VUdB          float64
	StartTimecode *domain.Timecode
}

func (Recording) message() {}

type RecordStopped struct {
	Frames       int
	LastTimecode domain.Timecode
}

func (RecordStopped) message() {}

var (
	ErrAdditionalElements = errors.New("recording message has additional elements")
	ErrElementNotFound    = errors.New("recording message has no element")
)

type UnrecognizedMessageError struct {
	Name string
}

func (e *UnrecognizedMessageError) Error() string {
	return fmt.Sprintf("unrecognized recording message %q", e.Name)
}

type XMLError struct {
	Err error
}

func (e *XMLError) Error() string { return "recording message is not valid xml: " + e.Err.Error() }
func (e *XMLError) Unwrap() error { return e.Err }

type MissingAttributeError struct {
	Message   string
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("%s: missing attribute %q", e.Message, e.Attribute)
}

type InvalidAttributeError struct {
	Message   string
	Attribute string
	Value     string
}

func (e *InvalidAttributeError) Error() string {
	return fmt.Sprintf("%s: invalid value %q for attribute %q", e.Message, e.Value, e.Attribute)
}
