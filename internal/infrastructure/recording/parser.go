package recording

import (
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"ndilive/internal/core/domain"
)

// ParseMessage parses a single status line. Every message is one empty
// XML element.
func ParseMessage(line string) (Message, error) {
	dec := xml.NewDecoder(strings.NewReader(line))

	var start *xml.StartElement
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &XMLError{Err: err}
		}
		if se, ok := tok.(xml.StartElement); ok {
			if start != nil {
				return nil, ErrAdditionalElements
			}
			se = se.Copy()
			start = &se
		}
	}
	if start == nil {
		return nil, ErrElementNotFound
	}

	a := attrs{name: start.Name.Local, values: make(map[string]string, len(start.Attr))}
	for _, attr := range start.Attr {
		a.values[attr.Name.Local] = attr.Value
	}

	switch a.name {
	case "record_started":
		return a.recordStarted()
	case "recording":
		return a.recording()
	case "record_stopped":
		return a.recordStopped()
	default:
		return nil, &UnrecognizedMessageError{Name: a.name}
	}
}

type attrs struct {
	name   string
	values map[string]string
}

func (a attrs) value(key string) (string, error) {
	v, ok := a.values[key]
	if !ok {
		return "", &MissingAttributeError{Message: a.name, Attribute: key}
	}
	return v, nil
}

func (a attrs) integer(key string) (int, error) {
	v, err := a.value(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &InvalidAttributeError{Message: a.name, Attribute: key, Value: v}
	}
	return n, nil
}

func (a attrs) timecode(key string) (domain.Timecode, error) {
	v, err := a.value(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &InvalidAttributeError{Message: a.name, Attribute: key, Value: v}
	}
	return domain.Timecode(n), nil
}

func (a attrs) number(key string) (float64, error) {
	v, err := a.value(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &InvalidAttributeError{Message: a.name, Attribute: key, Value: v}
	}
	return f, nil
}

func (a attrs) recordStarted() (Message, error) {
	var (
		m   RecordStarted
		err error
	)
	if m.Filename, err = a.value("filename"); err != nil {
		return nil, err
	}
	if m.PreviewFilename, err = a.value("filename_pvw"); err != nil {
		return nil, err
	}
	if m.FrameRateN, err = a.integer("frame_rate_n"); err != nil {
		return nil, err
	}
	if m.FrameRateD, err = a.integer("frame_rate_d"); err != nil {
		return nil, err
	}
	if x, err := a.integer("xres"); err == nil {
		m.XRes = &x
	}
	if y, err := a.integer("yres"); err == nil {
		m.YRes = &y
	}
	return m, nil
}

func (a attrs) recording() (Message, error) {
	var (
		m   Recording
		err error
	)
	if m.Frames, err = a.integer("no_frames"); err != nil {
		return nil, err
	}
	if m.Timecode, err = a.timecode("timecode"); err != nil {
		return nil, err
	}
	if m.RealTimecodeInFlight, err = a.timecode("real_timecode_inflight"); err != nil {
		return nil, err
	}
	if m.VUdB, err = a.number("vu_dB"); err != nil {
		return nil, err
	}
	if tc, err := a.timecode("start_timecode"); err == nil {
		m.StartTimecode = &tc
	}
	return m, nil
}

func (a attrs) recordStopped() (Message, error) {
	var (
		m   RecordStopped
		err error
	)
	if m.Frames, err = a.integer("no_frames"); err != nil {
		return nil, err
	}
	if m.LastTimecode, err = a.timecode("last_timecode"); err != nil {
		return nil, err
	}
	return m, nil
}
