// Package view holds the user-driven view state of the dashboard and every display
// value derived from polled snapshots. Derivations are pure functions recomputed on
// each read; nothing here performs I/O.
package view

import (
	"fmt"
	"sync"

	"monitora-dashboard/internal/models"
)

// Filter selects which devices the list shows
type Filter string

const (
	FilterAll     Filter = "all"
	FilterOnline  Filter = "online"
	FilterOffline Filter = "offline"
)

// ParseFilter validates a filter name
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case FilterAll, FilterOnline, FilterOffline:
		return f, nil
	}
	return "", fmt.Errorf("invalid filter %q: must be all, online or offline", s)
}

// ViewMode is the fuel page mode
type ViewMode string

const (
	ModeGlobal     ViewMode = "global"
	ModeIndividual ViewMode = "individual"
)

// ParseViewMode validates a fuel page mode
func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(s); m {
	case ModeGlobal, ModeIndividual:
		return m, nil
	}
	return "", fmt.Errorf("invalid view mode %q: must be global or individual", s)
}

// TimeRange is the chart window in minutes
type TimeRange int

const (
	Range15m TimeRange = 15
	Range1h  TimeRange = 60
	Range6h  TimeRange = 360
)

// TimeRanges lists the selectable chart windows in display order
var TimeRanges = []TimeRange{Range15m, Range1h, Range6h}

// ParseTimeRange validates a chart window
func ParseTimeRange(minutes int) (TimeRange, error) {
	for _, r := range TimeRanges {
		if int(r) == minutes {
			return r, nil
		}
	}
	return 0, fmt.Errorf("invalid time range %d: must be 15, 60 or 360 minutes", minutes)
}

func (r TimeRange) Minutes() int { return int(r) }

// Label is the button caption of the range
func (r TimeRange) Label() string {
	switch r {
	case Range15m:
		return "15min"
	case Range1h:
		return "1h"
	case Range6h:
		return "6h"
	}
	return fmt.Sprintf("%dmin", int(r))
}

// Phase is the selection state of the dashboard
type Phase string

const (
	PhaseNoSelection    Phase = "no_selection"
	PhaseDeviceSelected Phase = "device_selected" // selected but absent from the latest list
	PhaseOnline         Phase = "online"
	PhaseOffline        Phase = "offline"
)

// Selection is a copy of the view state at one instant
type Selection struct {
	DeviceID string    `json:"device_id,omitempty"`
	Filter   Filter    `json:"filter"`
	Mode     ViewMode  `json:"mode"`
	Range    TimeRange `json:"range_minutes"`
}

// State is the mutable view state. It changes only through user actions.
type State struct {
	mu       sync.RWMutex
	selected string
	filter   Filter
	mode     ViewMode
	rng      TimeRange
}

// NewState returns the initial state: nothing selected, all devices, global fuel
// mode and a one hour chart window.
func NewState() *State {
	return &State{
		filter: FilterAll,
		mode:   ModeGlobal,
		rng:    Range1h,
	}
}

// Select makes deviceID the selected device. The id does not need to be in the
// current device list. An empty id clears the selection.
func (s *State) Select(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = deviceID
}

// ClearSelection returns to the no-selection phase
func (s *State) ClearSelection() {
	s.Select("")
}

// SetFilter changes the list filter. The selection is kept.
func (s *State) SetFilter(f Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
}

func (s *State) SetMode(m ViewMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

func (s *State) SetRange(r TimeRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = r
}

// Selected returns the selected device id, "" when none
func (s *State) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Snapshot copies the state
func (s *State) Snapshot() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Selection{
		DeviceID: s.selected,
		Filter:   s.filter,
		Mode:     s.mode,
		Range:    s.rng,
	}
}

// Phase resolves the selection against the latest device list
func (s *State) Phase(devices []models.DeviceStatus) Phase {
	return PhaseOf(s.Selected(), devices)
}

// PhaseOf resolves a selected id against a device list
func PhaseOf(selected string, devices []models.DeviceStatus) Phase {
	if selected == "" {
		return PhaseNoSelection
	}
	d, ok := FindDevice(devices, selected)
	if !ok {
		return PhaseDeviceSelected
	}
	if d.Online {
		return PhaseOnline
	}
	return PhaseOffline
}

// FindDevice looks a device up by id
func FindDevice(devices []models.DeviceStatus, id string) (models.DeviceStatus, bool) {
	for _, d := range devices {
		if d.DeviceID == id {
			return d, true
		}
	}
	return models.DeviceStatus{}, false
}
