package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/hcsr04/pkg/config"
	"github.com/itohio/hcsr04/pkg/gpio"
	"github.com/itohio/hcsr04/pkg/hcsr04"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSensorTab(state),
		createSamplingTab(state),
		createBackendTab(state),
		createMonitorTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(500, 400))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(500, 400))
	d.Show()
}

// apply validates the edited copy, adopts it, saves it and restarts a running
// session.
func apply(state *appState, edited *config.Config) {
	if err := edited.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if _, err := hcsr04.FromConfig(edited.Sensor); err != nil {
		dialog.ShowError(err, state.window)
		return
	}

	*state.cfg = *edited
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return
	}
	reconnect(state)
}

// createSensorTab creates the Sensor configuration tab.
func createSensorTab(state *appState) *container.TabItem {
	trigEntry := widget.NewEntry()
	trigEntry.SetText(strconv.Itoa(state.cfg.Sensor.TriggerPin))

	echoEntry := widget.NewEntry()
	echoEntry.SetText(strconv.Itoa(state.cfg.Sensor.EchoPin))

	unitSelect := widget.NewSelect([]string{string(hcsr04.Metric), string(hcsr04.Imperial)}, nil)
	unitSelect.SetSelected(state.cfg.Sensor.Unit)

	tempEntry := widget.NewEntry()
	tempEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Sensor.Temperature))

	precisionEntry := widget.NewEntry()
	precisionEntry.SetText(strconv.Itoa(state.cfg.Sensor.Precision))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Trigger Pin", Widget: trigEntry},
			{Text: "Echo Pin", Widget: echoEntry},
			{Text: "Unit", Widget: unitSelect},
			{Text: "Temperature (C / F)", Widget: tempEntry},
			{Text: "Precision", Widget: precisionEntry},
		},
		OnSubmit: func() {
			edited := *state.cfg
			if v, err := strconv.Atoi(trigEntry.Text); err == nil {
				edited.Sensor.TriggerPin = v
			}
			if v, err := strconv.Atoi(echoEntry.Text); err == nil {
				edited.Sensor.EchoPin = v
			}
			if unitSelect.Selected != "" {
				edited.Sensor.Unit = unitSelect.Selected
			}
			if v, err := strconv.ParseFloat(tempEntry.Text, 64); err == nil {
				edited.Sensor.Temperature = v
			}
			if v, err := strconv.Atoi(precisionEntry.Text); err == nil {
				edited.Sensor.Precision = v
			}
			apply(state, &edited)
		},
	}

	return container.NewTabItem("Sensor", form)
}

// createSamplingTab creates the Sampling configuration tab.
func createSamplingTab(state *appState) *container.TabItem {
	sizeEntry := widget.NewEntry()
	sizeEntry.SetText(strconv.Itoa(state.cfg.Sampling.SampleSize))

	waitEntry := widget.NewEntry()
	waitEntry.SetText(state.cfg.Sampling.SampleWait.String())

	pollsEntry := widget.NewEntry()
	pollsEntry.SetText(strconv.Itoa(state.cfg.Sampling.MaxPolls))

	deadlineEntry := widget.NewEntry()
	deadlineEntry.SetText(state.cfg.Sampling.EchoDeadline.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Sample Size", Widget: sizeEntry},
			{Text: "Sample Wait", Widget: waitEntry},
			{Text: "Max Polls (0 = off)", Widget: pollsEntry},
			{Text: "Echo Deadline (0 = off)", Widget: deadlineEntry},
		},
		OnSubmit: func() {
			edited := *state.cfg
			if v, err := strconv.Atoi(sizeEntry.Text); err == nil {
				edited.Sampling.SampleSize = v
			}
			if v, err := time.ParseDuration(waitEntry.Text); err == nil {
				edited.Sampling.SampleWait = v
			}
			if v, err := strconv.Atoi(pollsEntry.Text); err == nil {
				edited.Sampling.MaxPolls = v
			}
			if v, err := time.ParseDuration(deadlineEntry.Text); err == nil {
				edited.Sampling.EchoDeadline = v
			}
			apply(state, &edited)
		},
	}

	return container.NewTabItem("Sampling", form)
}

// createBackendTab creates the GPIO backend configuration tab.
func createBackendTab(state *appState) *container.TabItem {
	driverSelect := widget.NewSelect(gpio.Drivers, nil)
	driverSelect.SetSelected(state.cfg.Backend.Driver)

	chipEntry := widget.NewEntry()
	chipEntry.SetText(state.cfg.Backend.Chip)

	// Get available serial ports
	portOptions := []string{}
	if ports, err := gpio.Ports(); err == nil {
		for _, port := range ports {
			portOptions = append(portOptions, port.Name)
		}
	}
	portSelect := widget.NewSelectEntry(portOptions)
	portSelect.SetText(state.cfg.Backend.Port)

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Backend.Baud))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Driver", Widget: driverSelect},
			{Text: "GPIO Chip", Widget: chipEntry},
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			edited := *state.cfg
			if driverSelect.Selected != "" {
				edited.Backend.Driver = driverSelect.Selected
			}
			if chipEntry.Text != "" {
				edited.Backend.Chip = chipEntry.Text
			}
			if portSelect.Text != "" {
				edited.Backend.Port = portSelect.Text
			}
			if v, err := strconv.Atoi(baudEntry.Text); err == nil && v > 0 {
				edited.Backend.Baud = v
			}
			apply(state, &edited)
		},
	}

	return container.NewTabItem("Backend", form)
}

// createMonitorTab creates the Monitor configuration tab.
func createMonitorTab(state *appState) *container.TabItem {
	intervalEntry := widget.NewEntry()
	intervalEntry.SetText(state.cfg.Monitor.Interval.String())

	windowEntry := widget.NewEntry()
	windowEntry.SetText(state.cfg.Monitor.Window.String())

	holeEntry := widget.NewEntry()
	holeEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Monitor.HoleDepth))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Interval", Widget: intervalEntry},
			{Text: "Window", Widget: windowEntry},
			{Text: "Hole Depth (0 = distance)", Widget: holeEntry},
		},
		OnSubmit: func() {
			edited := *state.cfg
			if v, err := time.ParseDuration(intervalEntry.Text); err == nil && v > 0 {
				edited.Monitor.Interval = v
			}
			if v, err := time.ParseDuration(windowEntry.Text); err == nil && v > 0 {
				edited.Monitor.Window = v
			}
			if v, err := strconv.ParseFloat(holeEntry.Text, 64); err == nil {
				edited.Monitor.HoleDepth = v
			}
			apply(state, &edited)
		},
	}

	return container.NewTabItem("Monitor", form)
}

// createMockTab creates the simulated sensor configuration tab.
func createMockTab(state *appState) *container.TabItem {
	distanceEntry := widget.NewEntry()
	distanceEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.Distance))

	jitterEntry := widget.NewEntry()
	jitterEntry.SetText(fmt.Sprintf("%.2f", state.cfg.Mock.Jitter))

	echoDelayEntry := widget.NewEntry()
	echoDelayEntry.SetText(state.cfg.Mock.EchoDelay.String())

	pollStepEntry := widget.NewEntry()
	pollStepEntry.SetText(state.cfg.Mock.PollStep.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Distance (cm)", Widget: distanceEntry},
			{Text: "Jitter (cm)", Widget: jitterEntry},
			{Text: "Echo Delay", Widget: echoDelayEntry},
			{Text: "Poll Step", Widget: pollStepEntry},
		},
		OnSubmit: func() {
			edited := *state.cfg
			if v, err := strconv.ParseFloat(distanceEntry.Text, 64); err == nil {
				edited.Mock.Distance = v
			}
			if v, err := strconv.ParseFloat(jitterEntry.Text, 64); err == nil {
				edited.Mock.Jitter = v
			}
			if v, err := time.ParseDuration(echoDelayEntry.Text); err == nil {
				edited.Mock.EchoDelay = v
			}
			if v, err := time.ParseDuration(pollStepEntry.Text); err == nil && v > 0 {
				edited.Mock.PollStep = v
			}
			apply(state, &edited)
		},
	}

	return container.NewTabItem("Mock", form)
}
