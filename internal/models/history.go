package models

import "time"

// DeviceSnapshot is a recorded device-list entry, kept whenever a device's last_seen advances
type DeviceSnapshot struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	RecordedAt time.Time `json:"recorded_at"`
	Online     bool      `json:"online"`
	LastSeen   time.Time `json:"last_seen"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Temp       *float64  `json:"temp,omitempty"`
	Battery    *float64  `json:"battery,omitempty"`
}

// HistoryQuery represents query parameters for snapshot history searches
type HistoryQuery struct {
	DeviceID  string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// PollFailure is a recorded failed poll tick
type PollFailure struct {
	Resource   string    `json:"resource"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}
