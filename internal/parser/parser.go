// Package parser validates payloads decoded from the telemetry service before they
// reach view state. Each validator returns the list of problems found; an empty list
// means the payload honours its contract.
package parser

import (
	"fmt"
	"math"

	"monitora-dashboard/internal/models"
)

// ValidateDevice validates a single device-list entry
func ValidateDevice(d *models.DeviceStatus) []string {
	var errors []string

	if d.DeviceID == "" {
		errors = append(errors, "device_id is required")
	}
	if d.LastSeen.IsZero() {
		errors = append(errors, "last_seen is required")
	}
	errors = append(errors, validateCoords(d.LastLat, d.LastLon)...)
	if d.LastSpeed != nil && (*d.LastSpeed < 0 || math.IsNaN(*d.LastSpeed)) {
		errors = append(errors, "last_speed cannot be negative")
	}

	return errors
}

// ValidateDevices validates the whole device list and rejects duplicate ids
func ValidateDevices(devices []models.DeviceStatus) []string {
	var errors []string
	seen := make(map[string]bool, len(devices))

	for i := range devices {
		for _, e := range ValidateDevice(&devices[i]) {
			errors = append(errors, fmt.Sprintf("devices[%d]: %s", i, e))
		}
		id := devices[i].DeviceID
		if id == "" {
			continue
		}
		if seen[id] {
			errors = append(errors, fmt.Sprintf("devices[%d]: duplicate device_id %s", i, id))
		}
		seen[id] = true
	}

	return errors
}

// ValidateEvent validates a telemetry sample
func ValidateEvent(e *models.TelemetryEvent) []string {
	var errors []string

	if e.DeviceID == "" {
		errors = append(errors, "device_id is required")
	}
	if e.TS.IsZero() {
		errors = append(errors, "ts is required")
	}
	errors = append(errors, validateCoords(e.Lat, e.Lon)...)
	if e.SpeedKmh != nil && *e.SpeedKmh < 0 {
		errors = append(errors, "speed_kmh cannot be negative")
	}
	if e.BatteryV != nil && *e.BatteryV < 0 {
		errors = append(errors, "battery_v cannot be negative")
	}

	return errors
}

// ValidateEvents validates an event history. Every event must belong to deviceID
// when deviceID is set.
func ValidateEvents(deviceID string, events []models.TelemetryEvent) []string {
	var errors []string

	for i := range events {
		for _, e := range ValidateEvent(&events[i]) {
			errors = append(errors, fmt.Sprintf("events[%d]: %s", i, e))
		}
		if deviceID != "" && events[i].DeviceID != "" && events[i].DeviceID != deviceID {
			errors = append(errors, fmt.Sprintf("events[%d]: belongs to %s, expected %s", i, events[i].DeviceID, deviceID))
		}
	}

	return errors
}

// ValidateMetrics validates the metrics summary
func ValidateMetrics(m *models.MetricsSummary) []string {
	var errors []string

	if m.DevicesOnline < 0 {
		errors = append(errors, "devices_online cannot be negative")
	}
	if m.EventsLastMinute < 0 {
		errors = append(errors, "events_last_minute cannot be negative")
	}
	if m.AvgSpeed5Min < 0 || math.IsNaN(m.AvgSpeed5Min) {
		errors = append(errors, "avg_speed_5min must be a non-negative number")
	}
	if m.AlertsLast10Min < 0 {
		errors = append(errors, "alerts_last_10min cannot be negative")
	}

	return errors
}

// ValidateAlerts validates the alert list
func ValidateAlerts(alerts []models.Alert) []string {
	var errors []string

	for i, a := range alerts {
		if a.DeviceID == "" {
			errors = append(errors, fmt.Sprintf("alerts[%d]: device_id is required", i))
		}
		if a.TS.IsZero() {
			errors = append(errors, fmt.Sprintf("alerts[%d]: ts is required", i))
		}
	}

	return errors
}

// ValidateWaste validates a waste breakdown. Percentages are not range-checked here,
// the view clamps them when sizing bars.
func ValidateWaste(w *models.WasteBreakdown) []string {
	var errors []string

	costs := map[string]float64{
		"idle_cost":       w.IdleCost,
		"aggressive_cost": w.AggressiveCost,
		"route_cost":      w.RouteCost,
		"total_waste":     w.TotalWaste,
	}
	for _, name := range []string{"idle_cost", "aggressive_cost", "route_cost", "total_waste"} {
		if math.IsNaN(costs[name]) || math.IsInf(costs[name], 0) {
			errors = append(errors, name+" must be a finite number")
		}
	}
	if w.IdleHours < 0 {
		errors = append(errors, "idle_hours cannot be negative")
	}
	if w.AggressiveEvents < 0 {
		errors = append(errors, "aggressive_events cannot be negative")
	}

	return errors
}

// ValidateDriverScores validates a driver ranking
func ValidateDriverScores(drivers []models.DriverScore) []string {
	var errors []string

	for i, d := range drivers {
		if d.DriverID == "" {
			errors = append(errors, fmt.Sprintf("drivers[%d]: driver_id is required", i))
		}
		if d.Score < 0 || d.Score > 100 {
			errors = append(errors, fmt.Sprintf("drivers[%d]: score must be between 0 and 100", i))
		}
	}

	return errors
}

// ValidateFuelDashboard validates the fleet-wide fuel analysis
func ValidateFuelDashboard(f *models.FuelEconomyDashboard) []string {
	var errors []string

	if f.WasteBreakdown == nil {
		errors = append(errors, "waste_breakdown is required")
	} else {
		for _, e := range ValidateWaste(f.WasteBreakdown) {
			errors = append(errors, "waste_breakdown: "+e)
		}
	}
	errors = append(errors, ValidateDriverScores(f.TopDrivers)...)
	for i, a := range f.CriticalAlerts {
		if a.DeviceID == "" {
			errors = append(errors, fmt.Sprintf("critical_alerts[%d]: device_id is required", i))
		}
	}

	return errors
}

// ValidateVehicleAnalysis validates a per-vehicle fuel analysis. A nil breakdown is
// valid: the vehicle has not accumulated enough telemetry yet.
func ValidateVehicleAnalysis(deviceID string, v *models.VehicleAnalysis) []string {
	var errors []string

	if v.DeviceID == "" {
		errors = append(errors, "device_id is required")
	} else if deviceID != "" && v.DeviceID != deviceID {
		errors = append(errors, fmt.Sprintf("analysis belongs to %s, expected %s", v.DeviceID, deviceID))
	}
	if v.PeriodHours < 0 {
		errors = append(errors, "period_hours cannot be negative")
	}
	if v.WasteBreakdown != nil {
		for _, e := range ValidateWaste(v.WasteBreakdown) {
			errors = append(errors, "waste_breakdown: "+e)
		}
	}

	return errors
}

func validateCoords(lat, lon *float64) []string {
	var errors []string

	if lat != nil && (*lat < -90 || *lat > 90) {
		errors = append(errors, "latitude must be between -90 and 90")
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		errors = append(errors, "longitude must be between -180 and 180")
	}

	return errors
}
