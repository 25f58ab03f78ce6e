package models

// DeviceStatus is one entry of the service's device list
type DeviceStatus struct {
	DeviceID    string   `json:"device_id"`
	Online      bool     `json:"online"`
	LastSeen    Time     `json:"last_seen"`
	LastLat     *float64 `json:"last_lat"`
	LastLon     *float64 `json:"last_lon"`
	LastSpeed   *float64 `json:"last_speed"`   // km/h
	LastTemp    *float64 `json:"last_temp"`    // Celsius
	LastBattery *float64 `json:"last_battery"` // volts
}

// Position returns the last known coordinate, ok is false when either half is missing.
func (d DeviceStatus) Position() (lat, lon float64, ok bool) {
	if d.LastLat == nil || d.LastLon == nil {
		return 0, 0, false
	}
	return *d.LastLat, *d.LastLon, true
}

// TelemetryEvent is a single sample from a device's recent history
type TelemetryEvent struct {
	ID          int64    `json:"id"`
	DeviceID    string   `json:"device_id"`
	TS          Time     `json:"ts"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	SpeedKmh    *float64 `json:"speed_kmh"`
	EngineTempC *float64 `json:"engine_temp_c"`
	BatteryV    *float64 `json:"battery_v"`
}

// MetricsSummary holds the aggregates recomputed by the service on each request
type MetricsSummary struct {
	DevicesOnline    int     `json:"devices_online"`
	EventsLastMinute int     `json:"events_last_minute"`
	AvgSpeed5Min     float64 `json:"avg_speed_5min"`
	AlertsLast10Min  int     `json:"alerts_last_10min"`
}

// Alert represents a threshold alert raised by the service
type Alert struct {
	ID        int64   `json:"id"`
	DeviceID  string  `json:"device_id"`
	TS        Time    `json:"ts"`
	AlertType string  `json:"alert_type"`
	Value     float64 `json:"value"`
	Message   string  `json:"message"`
}

// Health is the service liveness payload
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Version string `json:"version,omitempty"`
}

// Float dereferences an optional reading, missing values read as zero.
func Float(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 {
	return &v
}
