package charts

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"monitora-dashboard/internal/view"
)

func series(n int) []view.ChartPoint {
	base := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	points := make([]view.ChartPoint, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, view.ChartPoint{
			Time:    base.Add(time.Duration(i) * 3 * time.Second),
			Speed:   float64(40 + i*5),
			Temp:    float64(85 + i),
			Battery: 12.2 + float64(i)*0.05,
		})
	}
	return points
}

func TestRender(t *testing.T) {
	for _, m := range Metrics {
		t.Run(string(m), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Render(&buf, "TRUCK-01", m, series(10)); err != nil {
				t.Fatalf("Render: %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
				t.Error("output is not a PNG")
			}
		})
	}
}

func TestRender_FlatSeries(t *testing.T) {
	points := series(5)
	for i := range points {
		points[i].Speed = 0
		points[i].Temp = 90
	}
	var buf bytes.Buffer
	if err := Render(&buf, "TRUCK-01", MetricSpeed, points); err != nil {
		t.Errorf("flat speed: %v", err)
	}
	buf.Reset()
	if err := Render(&buf, "TRUCK-01", MetricTemp, points); err != nil {
		t.Errorf("flat temp: %v", err)
	}
}

func TestRender_NotEnoughData(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, "TRUCK-01", MetricSpeed, series(1)); !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("expected ErrNotEnoughData, got %v", err)
	}

	same := series(2)
	same[1].Time = same[0].Time
	if err := Render(&buf, "TRUCK-01", MetricSpeed, same); !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("identical timestamps: expected ErrNotEnoughData, got %v", err)
	}
}

func TestParseMetric(t *testing.T) {
	if m, err := ParseMetric("battery"); err != nil || m.Title() != "Bateria" {
		t.Errorf("ParseMetric(battery) = %v, %v", m, err)
	}
	if _, err := ParseMetric("fuel"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestGenTicks(t *testing.T) {
	ticks := genTicks(11, 13, 0.5)
	if len(ticks) != 5 || ticks[0].Label != "11.0" || ticks[4].Label != "13.0" {
		t.Errorf("unexpected ticks %+v", ticks)
	}
	if ticks := genTicks(0, 100, 10); ticks[1].Label != "10" {
		t.Errorf("integer step should format without decimals, got %q", ticks[1].Label)
	}
}
