package view

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"monitora-dashboard/internal/models"
)

// Tone is the colour family a value renders in
type Tone string

const (
	ToneRed   Tone = "red"
	ToneAmber Tone = "amber"
	ToneGreen Tone = "green"
	ToneBlue  Tone = "blue"
	ToneGray  Tone = "gray"
)

var toneHex = map[Tone]string{
	ToneRed:   "#ef4444",
	ToneAmber: "#f59e0b",
	ToneGreen: "#22c55e",
	ToneBlue:  "#3b82f6",
	ToneGray:  "#6b7280",
}

// Hex returns the CSS colour of the tone
func (t Tone) Hex() string {
	if h, ok := toneHex[t]; ok {
		return h
	}
	return toneHex[ToneGray]
}

// FilterDevices applies the status filter. Unknown filters behave as all.
func FilterDevices(devices []models.DeviceStatus, f Filter) []models.DeviceStatus {
	if f != FilterOnline && f != FilterOffline {
		return devices
	}

	wantOnline := f == FilterOnline
	out := make([]models.DeviceStatus, 0, len(devices))
	for _, d := range devices {
		if d.Online == wantOnline {
			out = append(out, d)
		}
	}
	return out
}

// CountOnline counts devices with online=true
func CountOnline(devices []models.DeviceStatus) int {
	n := 0
	for _, d := range devices {
		if d.Online {
			n++
		}
	}
	return n
}

// CountOffline counts devices with online=false
func CountOffline(devices []models.DeviceStatus) int {
	return len(devices) - CountOnline(devices)
}

// SpeedColor bands a speed in km/h: above 80 is a high alert, above 60 a warning.
func SpeedColor(speed float64) Tone {
	switch {
	case speed > 80:
		return ToneRed
	case speed > 60:
		return ToneAmber
	default:
		return ToneGreen
	}
}

// ScoreColor bands a driver score
func ScoreColor(score int) Tone {
	switch {
	case score >= 80:
		return ToneGreen
	case score >= 60:
		return ToneBlue
	case score >= 40:
		return ToneAmber
	default:
		return ToneRed
	}
}

// ScoreBadge is the caption shown next to a driver score
func ScoreBadge(score int) string {
	switch {
	case score >= 80:
		return "Excelente"
	case score >= 60:
		return "Bom"
	case score >= 40:
		return "Regular"
	default:
		return "Crítico"
	}
}

// BarWidth clamps a percentage to a bar width in [0, 100]
func BarWidth(percentage float64) float64 {
	switch {
	case math.IsNaN(percentage):
		return 0
	case percentage < 0:
		return 0
	case percentage > 100:
		return 100
	}
	return percentage
}

// FormatTimeAgo renders the distance between t and now in Portuguese, flooring to the
// largest whole unit. Anything within five seconds, or in the future, is "agora".
func FormatTimeAgo(t, now time.Time) string {
	sec := int64(now.Sub(t) / time.Second)
	if sec <= 5 {
		return "agora"
	}
	return "há " + compact(sec)
}

// CompactTimeAgo is the device-list variant of FormatTimeAgo without the "agora"
// bucket. Future timestamps render "0s".
func CompactTimeAgo(t, now time.Time) string {
	sec := int64(now.Sub(t) / time.Second)
	if sec < 0 {
		sec = 0
	}
	return compact(sec)
}

func compact(sec int64) string {
	switch {
	case sec < 60:
		return fmt.Sprintf("%ds", sec)
	case sec < 3600:
		return fmt.Sprintf("%dmin", sec/60)
	case sec < 86400:
		return fmt.Sprintf("%dh", sec/3600)
	default:
		return fmt.Sprintf("%dd", sec/86400)
	}
}

// ChartPoint is one sample of the device charts
type ChartPoint struct {
	Label   string    `json:"label"`
	Time    time.Time `json:"time"`
	Speed   float64   `json:"speed"`
	Temp    float64   `json:"temp"`
	Battery float64   `json:"battery"`
}

// ChartSeries turns a newest-first event history into oldest-first chart points.
// Missing readings plot as zero.
func ChartSeries(events []models.TelemetryEvent) []ChartPoint {
	points := make([]ChartPoint, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		points = append(points, ChartPoint{
			Label:   e.TS.Local().Format("15:04:05"),
			Time:    e.TS.Time,
			Speed:   models.Float(e.SpeedKmh),
			Temp:    models.Float(e.EngineTempC),
			Battery: models.Float(e.BatteryV),
		})
	}
	return points
}

// DefaultROI is shown when the analysis carries no ROI data
var DefaultROI = models.ROIData{
	SystemCost:     70000,
	MonthlySavings: 0,
	PaybackMonths:  999,
	AnnualSavings:  0,
	ROIPercent:     0,
}

// ROIOrDefault returns roi, or DefaultROI when roi is nil
func ROIOrDefault(roi *models.ROIData) models.ROIData {
	if roi == nil {
		return DefaultROI
	}
	return *roi
}

// MonthlyProjection extrapolates a per-day waste total to thirty days
func MonthlyProjection(w *models.WasteBreakdown) float64 {
	if w == nil {
		return 0
	}
	return w.TotalWaste * 30
}

// TopDrivers returns the first n entries of a ranking
func TopDrivers(drivers []models.DriverScore, n int) []models.DriverScore {
	if n < 0 {
		n = 0
	}
	if len(drivers) <= n {
		return drivers
	}
	return drivers[:n]
}

// FormatBRL renders an amount in reais with pt-BR separators, e.g. "R$ 12.345,60".
func FormatBRL(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	neg := v < 0
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "R$ " + b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}
