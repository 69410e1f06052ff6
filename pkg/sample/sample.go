// Package sample classifies raw magnetometer readings before they reach the
// flow detector.
package sample

import (
	"math"
	"time"

	"github.com/itohio/wmr/pkg/config"
	"github.com/itohio/wmr/pkg/magneto"
	"github.com/rs/zerolog/log"
)

// Converter is a pipeline stage between the device and the meter.
type Converter func(in <-chan magneto.RawSample) <-chan magneto.RawSample

// Classifier tags readings the firmware reported as Ok with a more specific
// state when they are saturated, dead or jump implausibly far. A dead sensor
// reads exactly x=0,y=0; a stopped meter repeating any other reading is fine.
type Classifier struct {
	cfg config.SensorConfig

	lastX, lastY int16
	haveLast     bool
	zeros        int // consecutive x=0,y=0 readings, including the last one
}

// NewClassifier returns a Classifier with zero limits replaced by defaults.
func NewClassifier(cfg config.SensorConfig) *Classifier {
	def := config.Default().Sensor
	if cfg.SaturationLimit <= 0 {
		cfg.SaturationLimit = def.SaturationLimit
	}
	if cfg.FlatLineSamples <= 0 {
		cfg.FlatLineSamples = def.FlatLineSamples
	}
	return &Classifier{cfg: cfg}
}

// Reset forgets the reading history.
func (v *Classifier) Reset() {
	v.haveLast = false
	v.zeros = 0
}

// Classify returns s with its State refined. Reset notices clear the history
// and pass through, as do samples the firmware already flagged.
func (v *Classifier) Classify(s magneto.RawSample) magneto.RawSample {
	if s.Reset {
		v.Reset()
		return s
	}
	if s.State != magneto.Ok {
		return s
	}

	if saturated(s.X, v.cfg.SaturationLimit) || saturated(s.Y, v.cfg.SaturationLimit) {
		s.State = magneto.Saturated
		return s
	}

	if s.X == 0 && s.Y == 0 {
		v.zeros++
	} else {
		v.zeros = 0
	}
	if v.zeros >= v.cfg.FlatLineSamples {
		s.State = magneto.FlatLine
		return s
	}

	if v.haveLast && v.cfg.OutlierJump > 0 && jump(s, v.lastX, v.lastY) > v.cfg.OutlierJump {
		s.State = magneto.Outlier
		return s
	}
	v.lastX, v.lastY, v.haveLast = s.X, s.Y, true

	return s
}

func saturated(v, limit int16) bool {
	a := int32(v)
	if a < 0 {
		a = -a
	}
	return a >= int32(limit)
}

func jump(s magneto.RawSample, x, y int16) float64 {
	return math.Hypot(float64(s.X)-float64(x), float64(s.Y)-float64(y))
}

// NewValidator creates a converter stage that classifies every sample.
func NewValidator(cfg config.SensorConfig, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan magneto.RawSample) <-chan magneto.RawSample {
		out := make(chan magneto.RawSample, bufSize)
		v := NewClassifier(cfg)

		go func() {
			defer close(out)

			for raw := range in {
				s := v.Classify(raw)
				if s.State != raw.State {
					log.Debug().Stringer("state", s.State).Int16("x", s.X).Int16("y", s.Y).Msg("sample reclassified")
				}

				select {
				case out <- s:
				case <-time.After(time.Second):
					log.Warn().Msg("validator output channel full, dropping sample")
				}
			}
		}()

		return out
	}
}
