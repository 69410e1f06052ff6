package magneto

import (
	"fmt"
	"strconv"
	"time"
)

// State is the validity tag attached to every sample. The numeric values are
// shared with the firmware line protocol.
type State uint8

const (
	Ok State = iota
	Saturated
	ReadError
	NeedsSoftReset
	NeedsHardReset
	FlatLine
	Outlier
)

var stateNames = [...]string{
	Ok:             "ok",
	Saturated:      "saturated",
	ReadError:      "read_error",
	NeedsSoftReset: "needs_soft_reset",
	NeedsHardReset: "needs_hard_reset",
	FlatLine:       "flat_line",
	Outlier:        "outlier",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return int(s) < len(stateNames)
}

// ParseState parses the numeric state code used on the wire.
func ParseState(s string) (State, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid state: %w", err)
	}
	st := State(v)
	if !st.Valid() {
		return 0, fmt.Errorf("unknown state code %d", v)
	}
	return st, nil
}

// RawSample is one magnetometer reading as reported by the sensor reader.
// A sample with Reset set carries no reading; it announces that the sensor
// was re-initialised and any derived state must be discarded.
type RawSample struct {
	Timestamp time.Time
	X         int16
	Y         int16
	State     State
	Reset     bool
}

// ResetNotice returns a sample announcing a sensor reset.
func ResetNotice(at time.Time) RawSample {
	return RawSample{Timestamp: at, Reset: true}
}
