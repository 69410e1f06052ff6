package flow

import (
	"fmt"
	"math"

	"github.com/itohio/wmr/pkg/magneto"
)

// Mode is the pulse detection strategy currently in use.
type Mode uint8

const (
	// Bootstrapping waits for the moving average to fill after start or reset.
	Bootstrapping Mode = iota
	// TangentMode detects pulses from the direction of travel between
	// consecutive points while no ellipse has been confirmed.
	TangentMode
	// CenterMode detects pulses from the angle around the confirmed ellipse.
	CenterMode
)

func (m Mode) String() string {
	switch m {
	case Bootstrapping:
		return "bootstrapping"
	case TangentMode:
		return "tangent"
	case CenterMode:
		return "center"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Sink receives the detector signals. Calls are made synchronously from
// OnSample and must not block.
type Sink interface {
	OnPulse(mode Mode)
	OnAnomaly(packed uint16)
	OnDrift(outliers int)
	// OnNoFit reports the angular travel in degrees when a full fit buffer did
	// not produce a new ellipse. Negative values mean the fit was attempted
	// and failed or lacked coverage; positive values mean the refit was
	// skipped because too little new travel accumulated.
	OnNoFit(degrees int)
}

type discard struct{}

func (discard) OnPulse(Mode)     {}
func (discard) OnAnomaly(uint16) {}
func (discard) OnDrift(int)      {}
func (discard) OnNoFit(int)      {}

// Discard is a Sink that ignores every signal.
var Discard Sink = discard{}

// EventKind identifies a detector signal.
type EventKind uint8

const (
	PulseEvent EventKind = iota
	AnomalyEvent
	DriftEvent
	NoFitEvent
)

func (k EventKind) String() string {
	switch k {
	case PulseEvent:
		return "pulse"
	case AnomalyEvent:
		return "anomaly"
	case DriftEvent:
		return "drift"
	case NoFitEvent:
		return "no_fit"
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Event is a recorded signal. Mode is only set for pulses. Value holds the
// packed anomaly, the drift outlier count or the no-fit degrees.
type Event struct {
	Kind  EventKind
	Mode  Mode
	Value int
}

// Recorder is a Sink that keeps the signals in order.
type Recorder struct {
	Events []Event
}

func (r *Recorder) OnPulse(mode Mode) {
	r.Events = append(r.Events, Event{Kind: PulseEvent, Mode: mode})
}

func (r *Recorder) OnAnomaly(packed uint16) {
	r.Events = append(r.Events, Event{Kind: AnomalyEvent, Value: int(packed)})
}

func (r *Recorder) OnDrift(outliers int) {
	r.Events = append(r.Events, Event{Kind: DriftEvent, Value: outliers})
}

func (r *Recorder) OnNoFit(degrees int) {
	r.Events = append(r.Events, Event{Kind: NoFitEvent, Value: degrees})
}

// Count returns the number of recorded events of the given kind.
func (r *Recorder) Count(kind EventKind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Drain returns the recorded events and empties the recorder. The returned
// slice is only valid until the next signal is recorded.
func (r *Recorder) Drain() []Event {
	events := r.Events
	r.Events = r.Events[:0]
	return events
}

const (
	anomalyCodeBits = 4
	maxAnomalyScale = 1<<12 - 1
)

// PackAnomaly encodes a sample state in the low four bits and the distance
// from the confirmed ellipse, in hundredths and clamped to 12 bits, above it.
func PackAnomaly(state magneto.State, distance float64) uint16 {
	scaled := math.Round(distance * 100)
	switch {
	case !(scaled > 0):
		scaled = 0
	case scaled > maxAnomalyScale:
		scaled = maxAnomalyScale
	}
	return uint16(scaled)<<anomalyCodeBits | uint16(state)&(1<<anomalyCodeBits-1)
}

// UnpackAnomaly reverses PackAnomaly.
func UnpackAnomaly(packed uint16) (magneto.State, float64) {
	return magneto.State(packed & (1<<anomalyCodeBits - 1)), float64(packed>>anomalyCodeBits) / 100
}
