// Command hcsr04-monitor shows live ultrasonic distance or depth readings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/hcsr04/pkg/config"
	"github.com/itohio/hcsr04/pkg/gpio"
	"github.com/itohio/hcsr04/pkg/hcsr04"
	"github.com/itohio/hcsr04/pkg/monitor"
	"github.com/itohio/hcsr04/pkg/scope"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use simulated sensor instead of GPIO")
		portFlag   = flag.String("p", "", "Serial bridge port override (e.g., COM3 or /dev/ttyACM0)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *mockFlag {
		cfg.Backend.Driver = "mock"
	}
	if *portFlag != "" {
		cfg.Backend.Driver = "serial"
		cfg.Backend.Port = *portFlag
	}

	// Create Fyne application
	application := app.NewWithID("com.itohio.hcsr04")

	window := application.NewWindow("Ultrasonic Monitor")
	window.Resize(fyne.NewSize(900, 600))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		window:     window,
	}

	toolbar := createToolbar(state)

	state.valueLabel = widget.NewLabelWithStyle("Disconnected", fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	state.valueLabel.SizeName = theme.SizeNameHeadingText

	state.scopeWidget = scope.New(cfg.Monitor.Window, unitSymbol(cfg.Sensor.Unit))

	content := container.NewBorder(
		container.NewVBox(toolbar, state.valueLabel),
		nil,
		nil,
		nil,
		state.scopeWidget,
	)

	window.SetContent(content)
	window.SetOnClosed(func() {
		disconnect(state)
	})
	window.ShowAndRun()
}

// session is one running measurement loop.
type session struct {
	io     gpio.DigitalIO
	cancel context.CancelFunc
	done   chan struct{} // Closed when the monitor goroutine exits
}

// appState holds the application state.
type appState struct {
	cfg        *config.Config
	configPath string

	window      fyne.Window
	connectBtn  *widget.Button
	valueLabel  *widget.Label
	scopeWidget *scope.ScopeWidget

	mu      sync.Mutex
	session *session // nil if not connected

	// Throttling for scope updates
	lastUpdateTime time.Time
}

// createToolbar creates the application toolbar with Connect and Settings buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	return container.NewHBox(connectBtn, settingsBtn)
}

func (s *appState) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.connected() {
		disconnect(state)
		state.connectBtn.SetIcon(theme.LoginIcon())
		state.valueLabel.SetText("Disconnected")
		return
	}

	if err := connect(state); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	state.connectBtn.SetIcon(theme.LogoutIcon())
	state.valueLabel.SetText("Measuring...")
}

// connect opens the configured backend and starts the monitor.
func connect(state *appState) error {
	cfg := state.cfg

	io, err := gpio.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s driver: %w", cfg.Backend.Driver, err)
	}

	var opts []hcsr04.Option
	if mock, ok := io.(*gpio.Mock); ok {
		opts = append(opts, hcsr04.WithClock(mock))
	}
	sensor, err := hcsr04.FromAppConfig(io, cfg, opts...)
	if err != nil {
		gpio.Close(io)
		return fmt.Errorf("invalid sensor configuration: %w", err)
	}

	m := monitor.New(sensor, cfg)
	unit := unitSymbol(cfg.Sensor.Unit)
	label := "Distance"
	if cfg.Monitor.HoleDepth != 0 {
		label = "Depth"
	}
	state.scopeWidget.SetUnit(unit)

	// Throttle updates to ~30 FPS
	const updateInterval = 33 * time.Millisecond
	m.OnUpdate(func(readings []monitor.Reading) {
		now := time.Now()
		state.mu.Lock()
		if now.Sub(state.lastUpdateTime) < updateInterval {
			state.mu.Unlock()
			return
		}
		state.lastUpdateTime = now
		state.mu.Unlock()

		latest := readings[len(readings)-1]
		text := fmt.Sprintf("%s: %g %s", label, latest.Value, unit)
		if latest.Err != nil {
			text = fmt.Sprintf("%s: %v", label, latest.Err)
		}

		fyne.Do(func() {
			state.valueLabel.SetText(text)
			state.scopeWidget.UpdateData(readings)
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{io: io, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sess.done)
		m.Run(ctx)
	}()

	state.mu.Lock()
	state.session = sess
	state.mu.Unlock()

	log.Printf("Connected using %s driver (trigger %d, echo %d)", cfg.Backend.Driver, cfg.Sensor.TriggerPin, cfg.Sensor.EchoPin)
	return nil
}

// disconnect stops the monitor, waits for it to finish and closes the backend.
func disconnect(state *appState) {
	state.mu.Lock()
	sess := state.session
	state.session = nil
	state.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	<-sess.done
	if err := gpio.Close(sess.io); err != nil {
		log.Printf("Error closing %s driver: %v", state.cfg.Backend.Driver, err)
	}
	log.Printf("Disconnected")
}

// reconnect restarts a running session so that new settings take effect.
func reconnect(state *appState) {
	if !state.connected() {
		return
	}
	disconnect(state)
	if err := connect(state); err != nil {
		state.connectBtn.SetIcon(theme.LoginIcon())
		state.valueLabel.SetText("Disconnected")
		dialog.ShowError(err, state.window)
	}
}

func unitSymbol(unit string) string {
	if hcsr04.Unit(unit) == hcsr04.Imperial {
		return "in"
	}
	return "cm"
}
