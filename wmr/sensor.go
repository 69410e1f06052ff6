package main

import (
	"fmt"

	"fyne.io/fyne/v2/dialog"
	"github.com/rs/zerolog/log"
)

// handleSensorReset asks the firmware to re-initialise the magnetometer. The
// device answers with a reset notice which restarts detection in the meter.
func handleSensorReset(state *appState) {
	if state.device == nil || !state.device.IsConnected() {
		return
	}

	if err := state.device.Reset(); err != nil {
		dialog.ShowError(fmt.Errorf("failed to reset sensor: %w", err), state.window)
		return
	}
	log.Info().Msg("sensor reset requested")
}
