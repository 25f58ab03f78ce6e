package view

import (
	"fmt"
	"strconv"
	"time"

	"monitora-dashboard/internal/models"
)

// MetricCard is one of the four summary cards
type MetricCard struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Tone  Tone   `json:"tone"`
}

// MetricCards renders the summary cards. A nil summary renders zeros.
func MetricCards(m *models.MetricsSummary) []MetricCard {
	var s models.MetricsSummary
	if m != nil {
		s = *m
	}
	return []MetricCard{
		{Title: "Devices Online", Value: strconv.Itoa(s.DevicesOnline), Tone: ToneGreen},
		{Title: "Eventos (1min)", Value: strconv.Itoa(s.EventsLastMinute), Tone: ToneBlue},
		{Title: "Velocidade Média", Value: fmt.Sprintf("%.1f km/h", s.AvgSpeed5Min), Tone: ToneAmber},
		{Title: "Alertas (10min)", Value: strconv.Itoa(s.AlertsLast10Min), Tone: ToneRed},
	}
}

// DeviceRow is one line of the device list
type DeviceRow struct {
	DeviceID   string  `json:"device_id"`
	Online     bool    `json:"online"`
	Selected   bool    `json:"selected"`
	Speed      float64 `json:"speed"`
	SpeedTone  Tone    `json:"speed_tone"`
	LastSeen   string  `json:"last_seen"`
	LastSeenAt string  `json:"last_seen_at"`
}

// DeviceRows renders the filtered device list
func DeviceRows(devices []models.DeviceStatus, selected string, now time.Time) []DeviceRow {
	rows := make([]DeviceRow, 0, len(devices))
	for _, d := range devices {
		speed := models.Float(d.LastSpeed)
		row := DeviceRow{
			DeviceID:  d.DeviceID,
			Online:    d.Online,
			Selected:  d.DeviceID == selected,
			Speed:     speed,
			SpeedTone: SpeedColor(speed),
			LastSeen:  "---",
		}
		if !d.LastSeen.IsZero() {
			row.LastSeen = CompactTimeAgo(d.LastSeen.Time, now)
			row.LastSeenAt = d.LastSeen.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return rows
}

// WasteBar is one bar of the waste breakdown
type WasteBar struct {
	Label      string  `json:"label"`
	Detail     string  `json:"detail"`
	Cost       string  `json:"cost"`
	Percentage float64 `json:"percentage"`
	Width      float64 `json:"width"`
	Tone       Tone    `json:"tone"`
}

// WasteBars renders the idle, aggressive driving and routing bars
func WasteBars(w *models.WasteBreakdown) []WasteBar {
	if w == nil {
		return nil
	}
	return []WasteBar{
		{
			Label:      "Motor Ocioso",
			Detail:     fmt.Sprintf("%.1f horas parado", w.IdleHours),
			Cost:       FormatBRL(w.IdleCost),
			Percentage: w.IdlePercentage,
			Width:      BarWidth(w.IdlePercentage),
			Tone:       ToneAmber,
		},
		{
			Label:      "Direção Agressiva",
			Detail:     fmt.Sprintf("%d eventos", w.AggressiveEvents),
			Cost:       FormatBRL(w.AggressiveCost),
			Percentage: w.AggressivePercentage,
			Width:      BarWidth(w.AggressivePercentage),
			Tone:       ToneRed,
		},
		{
			Label:      "Rotas Ineficientes",
			Detail:     fmt.Sprintf("%.1f km extras", w.RouteExtraKM),
			Cost:       FormatBRL(w.RouteCost),
			Percentage: w.RoutePercentage,
			Width:      BarWidth(w.RoutePercentage),
			Tone:       ToneBlue,
		},
	}
}

// DriverRow is one line of the driver ranking
type DriverRow struct {
	Position       int     `json:"position"`
	DriverID       string  `json:"driver_id"`
	Score          int     `json:"score"`
	Badge          string  `json:"badge"`
	Tone           Tone    `json:"tone"`
	AvgConsumption string  `json:"avg_consumption"`
	HarshEvents    int     `json:"harsh_events"`
	EstimatedWaste string  `json:"estimated_waste"`
	IdleHours      float64 `json:"idle_hours"`
}

// DriverRows renders a ranking. Position is the service rank when present, the list
// position otherwise.
func DriverRows(drivers []models.DriverScore) []DriverRow {
	rows := make([]DriverRow, 0, len(drivers))
	for i, d := range drivers {
		pos := i + 1
		if d.Rank != nil {
			pos = *d.Rank
		}
		rows = append(rows, DriverRow{
			Position:       pos,
			DriverID:       d.DriverID,
			Score:          d.Score,
			Badge:          ScoreBadge(d.Score),
			Tone:           ScoreColor(d.Score),
			AvgConsumption: fmt.Sprintf("%.1f km/L", d.AvgConsumption),
			HarshEvents:    d.HarshEvents,
			EstimatedWaste: FormatBRL(d.EstimatedWaste),
			IdleHours:      d.IdleHours,
		})
	}
	return rows
}
