// Package scope implements a fyne widget plotting the readings of a monitor
// window over time.
package scope

import (
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/hcsr04/pkg/monitor"
)

// ScopeWidget is a custom Fyne widget that displays readings oscilloscope style.
type ScopeWidget struct {
	widget.BaseWidget

	window time.Duration

	// Data (protected by mu)
	mu       sync.RWMutex
	unit     string
	readings []monitor.Reading
	stats    monitor.Stats

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Time
}

// New creates a new ScopeWidget showing at least window of time.
func New(window time.Duration, unit string) *ScopeWidget {
	s := &ScopeWidget{
		window:   window,
		unit:     unit,
		readings: make([]monitor.Reading, 0),
	}
	s.ExtendBaseWidget(s)
	s.updateAutoScale()
	return s
}

// SetUnit changes the unit shown on the axis labels.
func (s *ScopeWidget) SetUnit(unit string) {
	s.mu.Lock()
	s.unit = unit
	s.mu.Unlock()
	s.Refresh()
}

// UpdateData replaces the plotted readings.
// This should be called from the monitor callback using fyne.Do().
func (s *ScopeWidget) UpdateData(readings []monitor.Reading) {
	s.mu.Lock()
	s.readings = readings
	s.stats = monitor.Summarize(readings)
	s.updateAutoScale()
	s.mu.Unlock()

	// Refresh the widget (must be outside lock to avoid potential deadlock)
	s.Refresh()
}

// updateAutoScale calculates the axis ranges from the current readings.
func (s *ScopeWidget) updateAutoScale() {
	if len(s.readings) == 0 {
		now := time.Now()
		s.yMin, s.yMax = 0, 1
		s.xMin, s.xMax = now, now.Add(s.window)
		return
	}

	if s.stats.Count > 0 {
		s.yMin, s.yMax = s.stats.Min, s.stats.Max
	} else {
		s.yMin, s.yMax = 0, 1
	}

	// Add 10% margin
	span := s.yMax - s.yMin
	if span == 0 {
		span = 1.0
	}
	margin := span * 0.1
	s.yMin -= margin
	s.yMax += margin

	s.xMin = s.readings[0].Timestamp
	s.xMax = s.readings[len(s.readings)-1].Timestamp
	// Ensure minimum window
	if s.xMax.Sub(s.xMin) < s.window {
		s.xMax = s.xMin.Add(s.window)
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	return newRenderer(s)
}
