package main

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/wmr/pkg/config"
	"github.com/itohio/wmr/pkg/magneto"
	"github.com/itohio/wmr/pkg/meter"
	"github.com/itohio/wmr/pkg/scope"
)

// Scope updates are throttled to ~60 FPS.
const updateInterval = 16 * time.Millisecond

// appState holds the GUI application state.
type appState struct {
	cfg        *config.Config
	configPath string
	useMock    bool

	device      magneto.Device
	waterMeter  *meter.Meter
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	connectBtn  *widget.Button
	resetBtn    *widget.Button
	chain       *measurementChain // nil if not connected

	updates throttle
}

func runGUI(a *app) error {
	application := app.NewWithID("com.itohio.wmr")

	window := application.NewWindow("Water Meter Reader")
	window.Resize(fyne.NewSize(1000, 700))
	window.CenterOnScreen()

	state := &appState{
		cfg:        a.cfg,
		configPath: a.configPath,
		useMock:    a.mock,
		window:     window,
		updates:    throttle{interval: updateInterval},
	}

	toolbar := createToolbar(state)

	state.scopeWidget = scope.New(a.cfg)

	content := container.NewBorder(
		toolbar,
		nil,
		nil,
		nil,
		state.scopeWidget,
	)

	window.SetContent(content)
	window.SetOnClosed(func() {
		closeMeasurementChain(state)
	})
	window.ShowAndRun()
	return nil
}

// createToolbar creates the application toolbar with Connect, Settings and
// Reset Sensor buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	resetBtn := widget.NewButtonWithIcon("Reset sensor", theme.ViewRefreshIcon(), func() {
		handleSensorReset(state)
	})
	resetBtn.Disable()
	state.resetBtn = resetBtn

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, settingsBtn),
		container.NewHBox(resetBtn),
		nil,
	)
}

// closeMeasurementChain gracefully closes the running chain, if any.
func closeMeasurementChain(state *appState) {
	state.chain.close()
	state.chain = nil
	state.device = nil
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.device != nil && state.device.IsConnected() {
		closeMeasurementChain(state)
		state.resetBtn.Disable()
		state.connectBtn.SetIcon(theme.LoginIcon())
		return
	}
	// the stream may have ended on its own
	closeMeasurementChain(state)

	// every connection is a new measurement session
	state.waterMeter = meter.New(state.cfg)
	state.waterMeter.OnUpdate(func(snap meter.Snapshot) {
		if !state.updates.allow(time.Now()) {
			return
		}
		UpdateWidgetOnMainThread(func() {
			state.scopeWidget.UpdateData(snap)
		})
	})

	device, source := openDevice(state.cfg, state.useMock)
	chain, err := startChain(state.cfg, device, source, state.waterMeter)
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to start measurement: %w", err), state.window)
		return
	}

	state.device = device
	state.chain = chain
	state.resetBtn.Enable()
	state.connectBtn.SetIcon(theme.LogoutIcon())
}

// throttle lets through at most one event per interval.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func (t *throttle) allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
