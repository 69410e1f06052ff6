package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/wmr/pkg/magneto"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
// Detector, sensor and meter changes apply to the next connection.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createDetectorTab(state),
		createSensorTab(state),
		createMeterTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

func saveConfig(state *appState) {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

func floatEntry(v float64, format string) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(fmt.Sprintf(format, v))
	return e
}

func intEntry(v int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.Itoa(v))
	return e
}

func parseFloat(e *widget.Entry, dst *float64) {
	if v, err := strconv.ParseFloat(e.Text, 64); err == nil {
		*dst = v
	}
}

func parseInt(e *widget.Entry, dst *int) {
	if v, err := strconv.Atoi(e.Text); err == nil {
		*dst = v
	}
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := magneto.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // display name to port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}
	baudEntry := intEntry(state.cfg.Serial.BaudRate)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			before := state.cfg.Serial
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected
				}
				state.cfg.Serial.Port = selectedPort
			}
			parseInt(baudEntry, &state.cfg.Serial.BaudRate)
			saveConfig(state)

			// reconnect a running serial chain to the new port
			changed := before != state.cfg.Serial
			if changed && !state.useMock && state.device != nil && state.device.IsConnected() {
				handleConnect(state)
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createDetectorTab creates the flow detector tuning tab.
func createDetectorTab(state *appState) *container.TabItem {
	d := &state.cfg.Detector
	noiseEntry := floatEntry(d.NoiseThreshold, "%.2f")
	factorEntry := floatEntry(d.OutlierFactor, "%.2f")
	cycleEntry := floatEntry(d.MinCycleForFit, "%.2f")
	outliersEntry := intEntry(d.MaxConsecutiveOutliers)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Noise Threshold", Widget: noiseEntry},
			{Text: "Outlier Factor (× threshold)", Widget: factorEntry},
			{Text: "Min Cycle For Fit (rev)", Widget: cycleEntry},
			{Text: "Max Consecutive Outliers", Widget: outliersEntry},
		},
		OnSubmit: func() {
			parseFloat(noiseEntry, &d.NoiseThreshold)
			parseFloat(factorEntry, &d.OutlierFactor)
			parseFloat(cycleEntry, &d.MinCycleForFit)
			parseInt(outliersEntry, &d.MaxConsecutiveOutliers)
			d.EnsureDefaults()
			saveConfig(state)
		},
	}

	return container.NewTabItem("Detector", form)
}

// createSensorTab creates the sample validity tab.
func createSensorTab(state *appState) *container.TabItem {
	s := &state.cfg.Sensor
	saturationEntry := intEntry(int(s.SaturationLimit))
	flatEntry := intEntry(s.FlatLineSamples)
	jumpEntry := floatEntry(s.OutlierJump, "%.1f")

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Saturation Limit", Widget: saturationEntry},
			{Text: "Flat Line Samples", Widget: flatEntry},
			{Text: "Outlier Jump (0=disabled)", Widget: jumpEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseInt(saturationEntry.Text, 10, 16); err == nil {
				s.SaturationLimit = int16(v)
			}
			parseInt(flatEntry, &s.FlatLineSamples)
			parseFloat(jumpEntry, &s.OutlierJump)
			saveConfig(state)
		},
	}

	return container.NewTabItem("Sensor", form)
}

// createMeterTab creates the volume and display tab.
func createMeterTab(state *appState) *container.TabItem {
	m := &state.cfg.Meter
	litersEntry := floatEntry(m.LitersPerPulse, "%.3f")
	traceEntry := intEntry(m.TracePoints)
	historyEntry := intEntry(m.EventHistory)
	storageEntry := widget.NewEntry()
	storageEntry.SetText(state.cfg.Storage.Path)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Liters Per Pulse", Widget: litersEntry},
			{Text: "Trace Points", Widget: traceEntry},
			{Text: "Event History", Widget: historyEntry},
			{Text: "Event Store (empty=off)", Widget: storageEntry},
		},
		OnSubmit: func() {
			parseFloat(litersEntry, &m.LitersPerPulse)
			parseInt(traceEntry, &m.TracePoints)
			parseInt(historyEntry, &m.EventHistory)
			state.cfg.Storage.Path = storageEntry.Text
			saveConfig(state)
		},
	}

	return container.NewTabItem("Meter", form)
}

// createMockTab creates the Mock device configuration tab.
func createMockTab(state *appState) *container.TabItem {
	mc := &state.cfg.Mock
	centerXEntry := floatEntry(mc.CenterX, "%.1f")
	centerYEntry := floatEntry(mc.CenterY, "%.1f")
	radiusXEntry := floatEntry(mc.RadiusX, "%.1f")
	radiusYEntry := floatEntry(mc.RadiusY, "%.1f")
	tiltEntry := floatEntry(mc.Tilt, "%.1f")
	noiseEntry := floatEntry(mc.Noise, "%.2f")
	flowEntry := floatEntry(mc.FlowRate, "%.2f")
	glitchEntry := floatEntry(mc.GlitchRate, "%.4f")
	sampleRateEntry := widget.NewEntry()
	sampleRateEntry.SetText(mc.SampleRate.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Center X", Widget: centerXEntry},
			{Text: "Center Y", Widget: centerYEntry},
			{Text: "Radius X", Widget: radiusXEntry},
			{Text: "Radius Y", Widget: radiusYEntry},
			{Text: "Tilt (°)", Widget: tiltEntry},
			{Text: "Noise", Widget: noiseEntry},
			{Text: "Flow Rate (rev/s)", Widget: flowEntry},
			{Text: "Glitch Rate", Widget: glitchEntry},
			{Text: "Sample Rate", Widget: sampleRateEntry},
		},
		OnSubmit: func() {
			parseFloat(centerXEntry, &mc.CenterX)
			parseFloat(centerYEntry, &mc.CenterY)
			parseFloat(radiusXEntry, &mc.RadiusX)
			parseFloat(radiusYEntry, &mc.RadiusY)
			parseFloat(tiltEntry, &mc.Tilt)
			parseFloat(noiseEntry, &mc.Noise)
			parseFloat(flowEntry, &mc.FlowRate)
			parseFloat(glitchEntry, &mc.GlitchRate)
			if sr, err := time.ParseDuration(sampleRateEntry.Text); err == nil && sr > 0 {
				mc.SampleRate = sr
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Mock", form)
}
