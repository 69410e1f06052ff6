package main

import (
	"fmt"

	"github.com/itohio/wmr/pkg/config"
	"github.com/itohio/wmr/pkg/magneto"
	"github.com/itohio/wmr/pkg/meter"
	"github.com/itohio/wmr/pkg/sample"
	"github.com/itohio/wmr/pkg/store"
	"github.com/rs/zerolog/log"
)

// measurementChain tracks the components of the measurement chain for
// graceful shutdown.
type measurementChain struct {
	device    magneto.Device
	source    string
	meter     *meter.Meter
	store     *store.Store
	run       string
	meterDone chan struct{} // closed when the meter goroutine exits
}

// openDevice creates the sensor device selected by the flags. The returned
// source names it in logs and in the event store.
func openDevice(cfg *config.Config, mock bool) (magneto.Device, string) {
	if mock {
		return magneto.NewMock(&cfg.Mock), "mock"
	}
	return magneto.New(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.Buffer), cfg.Serial.Port
}

// startChain connects the device and pipes its samples through the validator
// into m. When storage is configured a new run is recorded.
func startChain(cfg *config.Config, device magneto.Device, source string, m *meter.Meter) (*measurementChain, error) {
	chain := &measurementChain{
		device:    device,
		source:    source,
		meter:     m,
		meterDone: make(chan struct{}),
	}

	if cfg.Storage.Path != "" {
		st, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		run, err := st.NewRun(source)
		if err != nil {
			st.Close()
			return nil, err
		}
		chain.store = st
		chain.run = run
		m.SetRecorder(st.Log(run))
		log.Info().Str("path", cfg.Storage.Path).Str("run", run).Msg("recording events")
	}

	if err := device.Connect(); err != nil {
		chain.closeStore()
		return nil, fmt.Errorf("failed to connect to %s: %w", source, err)
	}
	log.Info().Str("source", source).Msg("sensor connected")

	m.ResetShutdown()
	samples := sample.NewValidator(cfg.Sensor, cfg.Serial.Buffer)(device.Samples())
	go func() {
		defer close(chain.meterDone)
		m.ProcessSamples(samples)
	}()

	return chain, nil
}

// close closes the device and waits until the meter drained the pipeline.
func (c *measurementChain) close() {
	if c == nil {
		return
	}
	if c.device != nil {
		c.device.Close()
	}
	<-c.meterDone
	c.closeStore()

	t := c.meter.Totals()
	log.Info().
		Str("source", c.source).
		Int("samples", t.Samples).
		Int("pulses", t.Pulses).
		Float64("liters", t.Liters).
		Msg("sensor disconnected")
}

func (c *measurementChain) closeStore() {
	if c.store == nil {
		return
	}
	if err := c.store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close event store")
	}
	c.store = nil
}
