// Package meter accumulates flow detector signals into volume and keeps the
// recent history shown by the scope.
package meter

import (
	"sync"
	"time"

	"github.com/itohio/wmr/pkg/config"
	"github.com/itohio/wmr/pkg/ellipse"
	"github.com/itohio/wmr/pkg/flow"
	"github.com/itohio/wmr/pkg/geometry"
	"github.com/itohio/wmr/pkg/magneto"
	"github.com/itohio/wmr/pkg/sample"
	"github.com/rs/zerolog/log"
)

var _ WaterMeter = (*Meter)(nil)

// Event is a detector signal stamped with the time of the sample that caused it.
type Event struct {
	flow.Event
	Time time.Time
}

// Totals are the counters accumulated since the meter was created.
type Totals struct {
	Samples       int
	Skipped       int
	Resets        int
	Pulses        int
	TangentPulses int
	CenterPulses  int
	Anomalies     int
	Drifts        int
	NoFits        int
	Fits          int
	Liters        float64
}

// Snapshot is a copy of the meter state handed to update callbacks.
type Snapshot struct {
	Totals  Totals
	Mode    flow.Mode
	Fit     ellipse.Cartesian
	Average geometry.Coordinate
	Trace   []geometry.Coordinate // accepted moving average points, oldest first
	Events  []Event               // most recent signals, oldest first
	Last    time.Time
}

// Recorder persists detector signals and confirmed fits.
type Recorder interface {
	RecordEvent(ev flow.Event, at time.Time) error
	RecordFit(fit ellipse.Cartesian, at time.Time) error
}

// WaterMeter processes samples and reports flow.
type WaterMeter interface {
	ProcessSamples(input <-chan magneto.RawSample)
	Snapshot() Snapshot
	Totals() Totals
	OnUpdate(func(Snapshot))
}

// Meter implements WaterMeter on top of a single flow.Detector.
type Meter struct {
	cfg config.MeterConfig

	detector *flow.Detector
	signals  *flow.Recorder

	mu     sync.RWMutex
	trace  *sample.Ring[geometry.Coordinate]
	events *sample.Ring[Event]
	totals Totals
	fit    ellipse.Cartesian
	fitGen int // detector fit generation behind fit
	last   time.Time

	metrics  *Metrics
	recorder Recorder

	callbacks []func(Snapshot)
	cbMu      sync.RWMutex

	// Set when the input channel closes; no callbacks are sent afterwards.
	shutdown bool
}

// New creates a meter from the detector and meter sections of cfg.
func New(cfg *config.Config) *Meter {
	if cfg == nil {
		cfg = config.Default()
	}
	mc := cfg.Meter
	def := config.Default().Meter
	if mc.LitersPerPulse <= 0 {
		mc.LitersPerPulse = def.LitersPerPulse
	}
	if mc.TracePoints <= 0 {
		mc.TracePoints = def.TracePoints
	}
	if mc.EventHistory <= 0 {
		mc.EventHistory = def.EventHistory
	}

	signals := &flow.Recorder{}
	dc := cfg.Detector
	return &Meter{
		cfg:      mc,
		detector: flow.New(&dc, signals),
		signals:  signals,
		trace:    sample.NewRing[geometry.Coordinate](mc.TracePoints),
		events:   sample.NewRing[Event](mc.EventHistory),
	}
}

// SetMetrics attaches prometheus collectors. Call before ProcessSamples.
func (m *Meter) SetMetrics(metrics *Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// SetRecorder attaches an event log. Call before ProcessSamples.
func (m *Meter) SetRecorder(r Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder = r
}

// ProcessSamples feeds samples from the input channel to the detector until
// the channel closes. After that no callbacks are sent.
func (m *Meter) ProcessSamples(input <-chan magneto.RawSample) {
	for s := range input {
		m.processSample(s)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// ResetShutdown allows callbacks again. Call it before starting a new chain.
func (m *Meter) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

func (m *Meter) processSample(s magneto.RawSample) {
	m.mu.Lock()

	m.last = s.Timestamp
	m.totals.Samples++
	if m.metrics != nil {
		m.metrics.Samples.Inc()
	}

	if s.Reset {
		log.Info().Time("at", s.Timestamp).Msg("meter: sensor was reset")
		m.totals.Resets++
		m.detector.OnSensorReset()
		m.trace.Clear()
	} else {
		m.detector.OnSample(s)
		if m.detector.Skipped() {
			m.totals.Skipped++
		} else {
			m.trace.Push(m.detector.MovingAverage())
		}
	}

	for _, ev := range m.signals.Drain() {
		m.handle(ev)
	}
	m.updateFit()

	shouldNotify := !m.shutdown
	var snap Snapshot
	if shouldNotify {
		snap = m.snapshot()
	}
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks(snap)
	}
}

func (m *Meter) handle(ev flow.Event) {
	m.events.Push(Event{Event: ev, Time: m.last})

	switch ev.Kind {
	case flow.PulseEvent:
		m.totals.Pulses++
		m.totals.Liters += m.cfg.LitersPerPulse
		if ev.Mode == flow.CenterMode {
			m.totals.CenterPulses++
		} else {
			m.totals.TangentPulses++
		}
	case flow.AnomalyEvent:
		m.totals.Anomalies++
	case flow.DriftEvent:
		m.totals.Drifts++
		m.trace.Clear()
	case flow.NoFitEvent:
		m.totals.NoFits++
	}

	if m.metrics != nil {
		m.metrics.observe(ev, m.cfg.LitersPerPulse)
	}
	if m.recorder != nil {
		if err := m.recorder.RecordEvent(ev, m.last); err != nil {
			log.Warn().Err(err).Stringer("kind", ev.Kind).Msg("meter: failed to record event")
		}
	}
}

// updateFit picks up a newly confirmed ellipse.
func (m *Meter) updateFit() {
	fit := m.detector.ConfirmedFit()
	m.fit = fit
	gen := m.detector.Fits()
	if gen == m.fitGen {
		return
	}
	// a reset drops the generation back to zero with no fit
	m.fitGen = gen
	if !fit.Valid() {
		return
	}

	m.totals.Fits++
	if m.metrics != nil {
		m.metrics.observeFit(fit)
	}
	if m.recorder != nil {
		if err := m.recorder.RecordFit(fit, m.last); err != nil {
			log.Warn().Err(err).Msg("meter: failed to record fit")
		}
	}
}

// snapshot copies the state. Caller holds mu.
func (m *Meter) snapshot() Snapshot {
	return Snapshot{
		Totals:  m.totals,
		Mode:    m.detector.Mode(),
		Fit:     m.fit,
		Average: m.detector.MovingAverage(),
		Trace:   m.trace.Values(nil),
		Events:  m.events.Values(nil),
		Last:    m.last,
	}
}

// Snapshot returns a copy of the current state.
func (m *Meter) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot()
}

// Totals returns the accumulated counters.
func (m *Meter) Totals() Totals {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totals
}

// Readout returns the detector fixed point view.
func (m *Meter) Readout() flow.Readout {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detector.Readout()
}

// OnUpdate registers a callback invoked after every processed sample.
// Callbacks share the snapshot, must not modify it and should return quickly.
func (m *Meter) OnUpdate(callback func(Snapshot)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Meter) notifyCallbacks(snap Snapshot) {
	m.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(snap)
		}
	}
}
