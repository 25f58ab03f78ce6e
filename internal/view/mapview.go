package view

import (
	"fmt"

	"monitora-dashboard/internal/models"
)

const (
	MarkerOnline  = "#22c55e"
	MarkerOffline = "#6b7280"

	SelectedZoom = 14
	DefaultZoom  = 12
)

// DefaultCenter is the map centre with no marker (São Paulo)
var DefaultCenter = LatLng{Lat: -23.5505, Lon: -46.6333}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Popup is the text of the marker popup
type Popup struct {
	Title   string `json:"title"`
	Speed   string `json:"speed"`
	Temp    string `json:"temp"`
	Battery string `json:"battery"`
}

// Marker is the single map marker of the selected device
type Marker struct {
	DeviceID string `json:"device_id"`
	Position LatLng `json:"position"`
	Color    string `json:"color"`
	Popup    Popup  `json:"popup"`
}

// MapView is the map model: at most one marker plus the camera
type MapView struct {
	Marker *Marker `json:"marker,omitempty"`
	Center LatLng  `json:"center"`
	Zoom   int     `json:"zoom"`
}

// NewMapView builds the map for the selected device. A nil device, or one without
// both coordinates, yields no marker and the default camera.
func NewMapView(device *models.DeviceStatus) MapView {
	if device == nil {
		return MapView{Center: DefaultCenter, Zoom: DefaultZoom}
	}
	lat, lon, ok := device.Position()
	if !ok {
		return MapView{Center: DefaultCenter, Zoom: DefaultZoom}
	}

	color := MarkerOffline
	if device.Online {
		color = MarkerOnline
	}
	pos := LatLng{Lat: lat, Lon: lon}

	return MapView{
		Marker: &Marker{
			DeviceID: device.DeviceID,
			Position: pos,
			Color:    color,
			Popup: Popup{
				Title:   device.DeviceID,
				Speed:   fmt.Sprintf("%.1f km/h", models.Float(device.LastSpeed)),
				Temp:    fmt.Sprintf("%.1f°C", models.Float(device.LastTemp)),
				Battery: fmt.Sprintf("%.1fV", models.Float(device.LastBattery)),
			},
		},
		Center: pos,
		Zoom:   SelectedZoom,
	}
}
