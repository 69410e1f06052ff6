package sample

import (
	"testing"
	"time"

	"github.com/itohio/wmr/pkg/config"
	"github.com/itohio/wmr/pkg/magneto"
	"github.com/stretchr/testify/assert"
)

func testSensorConfig() config.SensorConfig {
	return config.SensorConfig{
		SaturationLimit: 2000,
		FlatLineSamples: 3,
		OutlierJump:     100,
	}
}

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name    string
		history []magneto.RawSample
		in      magneto.RawSample
		want    magneto.State
	}{
		{
			name: "plain reading",
			in:   magneto.RawSample{X: 10, Y: 20},
			want: magneto.Ok,
		},
		{
			name: "positive saturation",
			in:   magneto.RawSample{X: 2000, Y: 20},
			want: magneto.Saturated,
		},
		{
			name: "negative saturation",
			in:   magneto.RawSample{X: 10, Y: -32768},
			want: magneto.Saturated,
		},
		{
			name: "firmware state passes through",
			in:   magneto.RawSample{X: 2000, Y: 20, State: magneto.NeedsSoftReset},
			want: magneto.NeedsSoftReset,
		},
		{
			name:    "jump from last reading",
			history: []magneto.RawSample{{X: 10, Y: 20}},
			in:      magneto.RawSample{X: 200, Y: 20},
			want:    magneto.Outlier,
		},
		{
			name:    "small move",
			history: []magneto.RawSample{{X: 10, Y: 20}},
			in:      magneto.RawSample{X: 60, Y: 70},
			want:    magneto.Ok,
		},
		{
			name:    "flat line",
			history: []magneto.RawSample{{}, {}},
			in:      magneto.RawSample{},
			want:    magneto.FlatLine,
		},
		{
			name:    "not yet flat",
			history: []magneto.RawSample{{X: 4, Y: 5}, {}},
			in:      magneto.RawSample{},
			want:    magneto.Ok,
		},
		{
			name:    "zero on one axis only",
			history: []magneto.RawSample{{X: 0, Y: 5}, {X: 0, Y: 5}},
			in:      magneto.RawSample{X: 0, Y: 5},
			want:    magneto.Ok,
		},
		{
			name:    "idle meter repeats its reading",
			history: []magneto.RawSample{{X: -312, Y: 877}, {X: -312, Y: 877}},
			in:      magneto.RawSample{X: -312, Y: 877},
			want:    magneto.Ok,
		},
		{
			name:    "reset clears history",
			history: []magneto.RawSample{{X: 10, Y: 20}, magneto.ResetNotice(time.Time{})},
			in:      magneto.RawSample{X: 800, Y: 20},
			want:    magneto.Ok,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(testSensorConfig())
			for _, s := range tt.history {
				c.Classify(s)
			}
			got := c.Classify(tt.in)
			assert.Equal(t, tt.want, got.State)
			assert.Equal(t, tt.in.X, got.X)
			assert.Equal(t, tt.in.Y, got.Y)
		})
	}
}

func TestClassifier_OutlierDoesNotMoveReference(t *testing.T) {
	c := NewClassifier(testSensorConfig())

	c.Classify(magneto.RawSample{X: 10, Y: 20})
	assert.Equal(t, magneto.Outlier, c.Classify(magneto.RawSample{X: 500, Y: 20}).State)
	assert.Equal(t, magneto.Outlier, c.Classify(magneto.RawSample{X: 510, Y: 20}).State)
	assert.Equal(t, magneto.Ok, c.Classify(magneto.RawSample{X: 15, Y: 20}).State)
}

func TestClassifier_FlatLineContinues(t *testing.T) {
	c := NewClassifier(testSensorConfig())

	var states []magneto.State
	for i := 0; i < 5; i++ {
		states = append(states, c.Classify(magneto.RawSample{}).State)
	}
	states = append(states, c.Classify(magneto.RawSample{X: 2, Y: 1}).State)

	assert.Equal(t, []magneto.State{
		magneto.Ok, magneto.Ok, magneto.FlatLine, magneto.FlatLine, magneto.FlatLine, magneto.Ok,
	}, states)
}

func TestClassifier_IdleMeterIsNotFlat(t *testing.T) {
	c := NewClassifier(config.Default().Sensor)

	flagged := 0
	for i := 0; i < 1000; i++ {
		if c.Classify(magneto.RawSample{X: -312, Y: 877}).State != magneto.Ok {
			flagged++
		}
	}
	assert.Zero(t, flagged)
}

func TestNewClassifier_Defaults(t *testing.T) {
	c := NewClassifier(config.SensorConfig{})
	def := config.Default().Sensor

	assert.Equal(t, def.SaturationLimit, c.cfg.SaturationLimit)
	assert.Equal(t, def.FlatLineSamples, c.cfg.FlatLineSamples)
	assert.Zero(t, c.cfg.OutlierJump, "jump detection stays disabled")
}

func TestNewValidator_ChannelProcessing(t *testing.T) {
	stage := NewValidator(testSensorConfig(), 10)
	input := make(chan magneto.RawSample, 4)

	input <- magneto.RawSample{X: 10, Y: 10}
	input <- magneto.RawSample{X: 3000, Y: 10}
	input <- magneto.ResetNotice(time.Time{})
	input <- magneto.RawSample{X: 900, Y: 10}
	close(input)

	var got []magneto.RawSample
	for s := range stage(input) {
		got = append(got, s)
	}

	assert.Len(t, got, 4)
	assert.Equal(t, magneto.Ok, got[0].State)
	assert.Equal(t, magneto.Saturated, got[1].State)
	assert.True(t, got[2].Reset)
	assert.Equal(t, magneto.Ok, got[3].State)
}
