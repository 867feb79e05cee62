package domain

import (
	"math"
	"time"
)

// TimecodeScale is the number of timecode ticks per second (100ns units).
const TimecodeScale int64 = 10_000_000

// TimecodeUndefined marks a timestamp the sender did not provide.
const TimecodeUndefined Timecode = math.MaxInt64

// Timecode is an absolute point in time, in 100ns ticks since the Unix epoch.
type Timecode int64

// TimecodeFromTime converts a wall-clock time to a timecode.
func TimecodeFromTime(t time.Time) Timecode {
	return Timecode(t.Unix()*TimecodeScale + int64(t.Nanosecond())/100)
}

// TimecodeNow returns the current system time as a timecode.
func TimecodeNow() Timecode {
	return TimecodeFromTime(time.Now())
}

func (tc Timecode) Defined() bool {
	return tc != TimecodeUndefined
}

// Time converts the timecode to a wall-clock time. It returns false for
// TimecodeUndefined.
func (tc Timecode) Time() (time.Time, bool) {
	if !tc.Defined() {
		return time.Time{}, false
	}
	sec := int64(tc) / TimecodeScale
	rem := int64(tc) % TimecodeScale
	if rem < 0 {
		sec--
		rem += TimecodeScale
	}
	return time.Unix(sec, rem*100), true
}

// Rational returns the timecode as a (value, scale) pair for media clocks.
func (tc Timecode) Rational() (int64, int32) {
	return int64(tc), int32(TimecodeScale)
}

func (tc Timecode) Sub(other Timecode) time.Duration {
	return time.Duration(tc-other) * 100
}
