// Package charts renders the speed, temperature and battery charts of a device as PNG.
package charts

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"monitora-dashboard/internal/view"
)

// ErrNotEnoughData is returned when fewer than two distinct samples are available
var ErrNotEnoughData = errors.New("not enough data to draw a chart")

type Metric string

const (
	MetricSpeed   Metric = "speed"
	MetricTemp    Metric = "temp"
	MetricBattery Metric = "battery"
)

// Metrics lists the renderable metrics in display order
var Metrics = []Metric{MetricSpeed, MetricTemp, MetricBattery}

type metricStyle struct {
	title  string
	unit   string
	color  string
	fill   string
	value  func(p view.ChartPoint) float64
	yRange func(min, max float64) (float64, float64)
}

var styles = map[Metric]metricStyle{
	MetricSpeed: {
		title: "Velocidade",
		unit:  "km/h",
		color: "3b82f6",
		fill:  "dbeafe",
		value: func(p view.ChartPoint) float64 { return p.Speed },
		yRange: func(_, max float64) (float64, float64) {
			return 0, math.Max(10, math.Ceil(max*1.1))
		},
	},
	MetricTemp: {
		title: "Temperatura",
		unit:  "°C",
		color: "ef4444",
		fill:  "fee2e2",
		value: func(p view.ChartPoint) float64 { return p.Temp },
		yRange: func(min, max float64) (float64, float64) {
			return math.Floor(min - 5), math.Ceil(max + 5)
		},
	},
	MetricBattery: {
		title: "Bateria",
		unit:  "V",
		color: "22c55e",
		fill:  "dcfce7",
		value: func(p view.ChartPoint) float64 { return p.Battery },
		yRange: func(_, _ float64) (float64, float64) {
			return 11, 13
		},
	},
}

// ParseMetric validates a metric name
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if _, ok := styles[m]; !ok {
		return "", fmt.Errorf("unknown metric %q: must be speed, temp or battery", s)
	}
	return m, nil
}

// Title is the chart caption of the metric
func (m Metric) Title() string {
	return styles[m].title
}

// Render draws one metric of an oldest-first series as PNG
func Render(w io.Writer, deviceID string, metric Metric, points []view.ChartPoint) error {
	st, ok := styles[metric]
	if !ok {
		return fmt.Errorf("unknown metric %q", metric)
	}
	if len(points) < 2 || !points[len(points)-1].Time.After(points[0].Time) {
		return ErrNotEnoughData
	}

	var (
		xs, ys []float64
		iMax   int
	)
	for i, p := range points {
		v := st.value(p)
		if v > st.value(points[iMax]) {
			iMax = i
		}
		xs = append(xs, float64(p.Time.Unix()))
		ys = append(ys, v)
	}

	yMin, yMax := bounds(ys)
	lo, hi := st.yRange(yMin, yMax)

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s - %s", deviceID, st.title),
		Width:  800,
		Height: 300,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   10,
				Right:  25,
				Bottom: 10,
			},
			FillColor: drawing.ColorFromHex("ffffff"),
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				vf, ok := v.(float64)
				if !ok {
					return ""
				}
				return time.Unix(int64(vf), 0).Local().Format("15:04:05")
			},
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("cbd5e1"),
			},
		},
		YAxis: chart.YAxis{
			Name: st.unit,
			NameStyle: chart.Style{
				TextRotationDegrees: 270,
			},
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
			Ticks: genTicks(lo, hi, tickStep(lo, hi)),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    st.title,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex(st.color),
					StrokeWidth: 2,
					FillColor:   drawing.ColorFromHex(st.fill),
				},
			},
			chart.AnnotationSeries{
				Annotations: []chart.Value2{
					{
						XValue: xs[iMax],
						YValue: ys[iMax],
						Label:  fmt.Sprintf("Max %.1f %s", ys[iMax], st.unit),
					},
				},
			},
		},
	}

	return graph.Render(chart.PNG, w)
}

func bounds(vs []float64) (min, max float64) {
	min, max = vs[0], vs[0]
	for _, v := range vs[1:] {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max
}

func tickStep(lo, hi float64) float64 {
	span := hi - lo
	switch {
	case span <= 2:
		return 0.5
	case span <= 20:
		return 2
	case span <= 100:
		return 10
	default:
		return math.Ceil(span/100) * 20
	}
}

func genTicks(min, max, step float64) []chart.Tick {
	var ticks []chart.Tick
	format := "%.1f"
	if step == math.Floor(step) {
		format = "%.f"
	}
	for v := min; v <= max; v += step {
		ticks = append(ticks, chart.Tick{
			Value: v,
			Label: fmt.Sprintf(format, v),
		})
	}
	return ticks
}
