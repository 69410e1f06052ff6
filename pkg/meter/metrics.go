package meter

import (
	"github.com/itohio/wmr/pkg/ellipse"
	"github.com/itohio/wmr/pkg/flow"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by the meter.
type Metrics struct {
	Samples   prometheus.Counter
	Pulses    *prometheus.CounterVec
	Anomalies *prometheus.CounterVec
	Drifts    prometheus.Counter
	NoFits    *prometheus.CounterVec
	Liters    prometheus.Counter
	Fits      prometheus.Counter
	Radius    *prometheus.GaugeVec
	Center    *prometheus.GaugeVec
}

// NewMetrics creates the meter collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Samples: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wmr_samples_total",
				Help: "Total number of sensor samples processed",
			},
		),
		Pulses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wmr_pulses_total",
				Help: "Total number of meter pulses by detection mode",
			},
			[]string{"mode"},
		),
		Anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wmr_anomalies_total",
				Help: "Total number of rejected samples by sensor state",
			},
			[]string{"state"},
		),
		Drifts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wmr_drifts_total",
				Help: "Total number of detector restarts caused by sensor drift",
			},
		),
		NoFits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wmr_no_fits_total",
				Help: "Total number of refits that did not produce an ellipse",
			},
			[]string{"reason"},
		),
		Liters: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wmr_liters_total",
				Help: "Total measured volume in liters",
			},
		),
		Fits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wmr_fits_total",
				Help: "Total number of confirmed ellipse fits",
			},
		),
		Radius: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wmr_fit_radius",
				Help: "Semi axes of the confirmed ellipse in sensor units",
			},
			[]string{"axis"},
		),
		Center: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wmr_fit_center",
				Help: "Center of the confirmed ellipse in sensor units",
			},
			[]string{"axis"},
		),
	}

	reg.MustRegister(
		m.Samples,
		m.Pulses,
		m.Anomalies,
		m.Drifts,
		m.NoFits,
		m.Liters,
		m.Fits,
		m.Radius,
		m.Center,
	)
	return m
}

func (m *Metrics) observe(ev flow.Event, litersPerPulse float64) {
	switch ev.Kind {
	case flow.PulseEvent:
		m.Pulses.WithLabelValues(ev.Mode.String()).Inc()
		m.Liters.Add(litersPerPulse)
	case flow.AnomalyEvent:
		state, _ := flow.UnpackAnomaly(uint16(ev.Value))
		m.Anomalies.WithLabelValues(state.String()).Inc()
	case flow.DriftEvent:
		m.Drifts.Inc()
	case flow.NoFitEvent:
		reason := "insufficient"
		if ev.Value > 0 {
			reason = "skipped"
		}
		m.NoFits.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) observeFit(fit ellipse.Cartesian) {
	m.Fits.Inc()
	m.Radius.WithLabelValues("major").Set(fit.Radius.X)
	m.Radius.WithLabelValues("minor").Set(fit.Radius.Y)
	m.Center.WithLabelValues("x").Set(fit.Center.X)
	m.Center.WithLabelValues("y").Set(fit.Center.Y)
}
