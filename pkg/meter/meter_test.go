package meter

import (
	"math"
	"testing"
	"time"

	"github.com/itohio/wmr/pkg/config"
	"github.com/itohio/wmr/pkg/ellipse"
	"github.com/itohio/wmr/pkg/flow"
	"github.com/itohio/wmr/pkg/magneto"
	"github.com/itohio/wmr/pkg/sample"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplesPerRevolution = 32

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Detector.NoiseThreshold = 1
	return cfg
}

// circleSample returns the k-th reading on a radius 10 circle turning
// clockwise, 32 readings per revolution.
func circleSample(k int) magneto.RawSample {
	phase := math.Pi + math.Pi/64 - 2*math.Pi*float64(k)/samplesPerRevolution
	return magneto.RawSample{
		Timestamp: time.UnixMicro(int64(k) * 10000),
		X:         int16(math.Round(-100 + 10*math.Cos(phase))),
		Y:         int16(math.Round(100 + 10*math.Sin(phase))),
	}
}

func feed(m *Meter, from, to int) {
	for k := from; k < to; k++ {
		m.processSample(circleSample(k))
	}
}

type fakeRecorder struct {
	events []flow.Event
	fits   []ellipse.Cartesian
}

func (r *fakeRecorder) RecordEvent(ev flow.Event, at time.Time) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRecorder) RecordFit(fit ellipse.Cartesian, at time.Time) error {
	r.fits = append(r.fits, fit)
	return nil
}

func TestNew(t *testing.T) {
	m := New(nil)

	assert.NotNil(t, m)
	snap := m.Snapshot()
	assert.Empty(t, snap.Trace)
	assert.Empty(t, snap.Events)
	assert.Equal(t, Totals{}, snap.Totals)
	assert.Equal(t, flow.Bootstrapping, snap.Mode)
	assert.False(t, snap.Fit.Valid())
}

func TestNew_MeterDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Meter = config.MeterConfig{}
	m := New(cfg)

	assert.Equal(t, config.Default().Meter, m.cfg)
}

func TestProcessSample_CountsPulses(t *testing.T) {
	m := New(testConfig())

	feed(m, 0, 5*samplesPerRevolution)

	snap := m.Snapshot()
	assert.Equal(t, 5*samplesPerRevolution, snap.Totals.Samples)
	assert.Equal(t, 5, snap.Totals.Pulses)
	assert.Equal(t, 1, snap.Totals.TangentPulses)
	assert.Equal(t, 4, snap.Totals.CenterPulses)
	assert.InDelta(t, 2.5, snap.Totals.Liters, 1e-9)
	assert.Zero(t, snap.Totals.Anomalies)
	assert.Zero(t, snap.Totals.NoFits)
	assert.Zero(t, snap.Totals.Drifts)
	// every revolution refits the same circle
	assert.Equal(t, 4, snap.Totals.Fits)

	assert.Equal(t, flow.CenterMode, snap.Mode)
	require.True(t, snap.Fit.Valid())
	assert.InDelta(t, -100, snap.Fit.Center.X, 0.05)
	assert.InDelta(t, 100, snap.Fit.Center.Y, 0.05)

	assert.Len(t, snap.Trace, snap.Totals.Samples-snap.Totals.Skipped)
	assert.Equal(t, snap.Average, snap.Trace[len(snap.Trace)-1])
	assert.Len(t, snap.Events, 5)
	assert.Equal(t, circleSample(5*samplesPerRevolution-1).Timestamp, snap.Last)
}

func TestProcessSample_EventHistoryBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Meter.EventHistory = 2
	cfg.Meter.TracePoints = 10
	m := New(cfg)

	feed(m, 0, 5*samplesPerRevolution)

	snap := m.Snapshot()
	require.Len(t, snap.Events, 2)
	for _, ev := range snap.Events {
		assert.Equal(t, flow.PulseEvent, ev.Kind)
		assert.Equal(t, flow.CenterMode, ev.Mode)
	}
	assert.True(t, snap.Events[0].Time.Before(snap.Events[1].Time))
	assert.Len(t, snap.Trace, 10)
}

func TestProcessSample_SensorReset(t *testing.T) {
	m := New(testConfig())
	feed(m, 0, 48)
	require.True(t, m.Snapshot().Fit.Valid())

	m.processSample(magneto.ResetNotice(time.UnixMicro(480000)))

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.Totals.Resets)
	assert.Equal(t, 49, snap.Totals.Samples)
	assert.Equal(t, flow.Bootstrapping, snap.Mode)
	assert.False(t, snap.Fit.Valid())
	assert.Empty(t, snap.Trace)

	// pulses counted before the reset are kept
	assert.Equal(t, 1, snap.Totals.Pulses)
	assert.Equal(t, 1, snap.Totals.Fits)

	feed(m, 0, 48)
	assert.Equal(t, 2, m.Totals().Fits, "the first fit after a reset is a new fit")
}

func TestProcessSample_SensorFault(t *testing.T) {
	m := New(testConfig())

	m.processSample(magneto.RawSample{State: magneto.ReadError})

	totals := m.Totals()
	assert.Equal(t, 1, totals.Anomalies)
	assert.Equal(t, 1, totals.Skipped)
	require.Len(t, m.Snapshot().Events, 1)
	state, _ := flow.UnpackAnomaly(uint16(m.Snapshot().Events[0].Value))
	assert.Equal(t, magneto.ReadError, state)
}

func TestProcessSample_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	m := New(testConfig())
	m.SetRecorder(rec)

	feed(m, 0, 5*samplesPerRevolution)

	assert.Len(t, rec.events, 5)
	assert.Len(t, rec.fits, 4)
	assert.Equal(t, 4, m.Totals().Fits)
	for _, fit := range rec.fits {
		assert.True(t, fit.Valid())
	}
}

func TestProcessSample_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(testConfig())
	m.SetMetrics(NewMetrics(reg))

	feed(m, 0, 5*samplesPerRevolution)
	m.processSample(magneto.RawSample{State: magneto.NeedsSoftReset})

	assert.Equal(t, float64(5*samplesPerRevolution+1), gathered(t, reg, "wmr_samples_total", ""))
	assert.Equal(t, float64(1), gathered(t, reg, "wmr_pulses_total", "tangent"))
	assert.Equal(t, float64(4), gathered(t, reg, "wmr_pulses_total", "center"))
	assert.Equal(t, float64(1), gathered(t, reg, "wmr_anomalies_total", "needs_soft_reset"))
	assert.InDelta(t, 2.5, gathered(t, reg, "wmr_liters_total", ""), 1e-9)
	assert.Equal(t, float64(m.Totals().Fits), gathered(t, reg, "wmr_fits_total", ""))
	assert.InDelta(t, 100, gathered(t, reg, "wmr_fit_center", "y"), 0.05)
}

// gathered returns the value of the named metric. With a label value only the
// series carrying it is considered.
func gathered(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label != "" {
				matched := false
				for _, lp := range metric.GetLabel() {
					if lp.GetValue() == label {
						matched = true
					}
				}
				if !matched {
					continue
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s{%s} not found", name, label)
	return 0
}

func TestReadout(t *testing.T) {
	m := New(testConfig())
	feed(m, 0, 48)

	r := m.Readout()
	assert.InDelta(t, -1000, int(r.CenterX), 1)
	assert.InDelta(t, 1000, int(r.CenterY), 1)
}

// TestMeter_MockTrace runs a simulated meter through the validator into the
// meter the way the application wires them.
func TestMeter_MockTrace(t *testing.T) {
	cfg := config.Default()
	cfg.Mock.Noise = 0
	trace := magneto.NewTrace(&cfg.Mock, 1)

	const revolutions = 10
	n := int(math.Round(revolutions / (cfg.Mock.FlowRate * cfg.Mock.SampleRate.Seconds())))

	raw := make(chan magneto.RawSample, 64)
	go func() {
		defer close(raw)
		now := time.Unix(0, 0)
		for i := 0; i < n; i++ {
			now = now.Add(cfg.Mock.SampleRate)
			x, y, state := trace.Next(cfg.Mock.SampleRate)
			raw <- magneto.RawSample{Timestamp: now, X: x, Y: y, State: state}
		}
	}()

	m := New(cfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.ProcessSamples(sample.NewValidator(cfg.Sensor, 64)(raw))
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not finish")
	}

	totals := m.Totals()
	assert.Equal(t, n, totals.Samples)
	assert.Equal(t, revolutions-1, totals.Pulses)
	assert.Zero(t, totals.Anomalies)
	assert.Zero(t, totals.Drifts)

	fit := m.Snapshot().Fit
	require.True(t, fit.Valid())
	assert.InDelta(t, cfg.Mock.CenterX, fit.Center.X, 0.5)
	assert.InDelta(t, cfg.Mock.CenterY, fit.Center.Y, 0.5)
	assert.InDelta(t, cfg.Mock.RadiusX, fit.Radius.X, 0.5)
	assert.InDelta(t, cfg.Mock.RadiusY, fit.Radius.Y, 0.5)
}
