// Package client is the data-fetch layer for the MonitoraEngine telemetry service.
// Every operation issues exactly one GET and either returns a validated payload or a
// RequestFailed, NetworkUnreachable or InvalidPayload error naming the resource.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"monitora-dashboard/internal/models"
	"monitora-dashboard/internal/parser"
)

// Resource names, also used as retry keys by the dashboard pages.
const (
	ResourceHealth        = "health"
	ResourceDevices       = "devices"
	ResourceDeviceLatest  = "device_latest"
	ResourceDeviceEvents  = "device_events"
	ResourceMetrics       = "metrics"
	ResourceAlerts        = "alerts"
	ResourceFuelDashboard = "fuel_dashboard"
	ResourceVehicleFuel   = "vehicle_fuel"
	ResourceDriverRanking = "driver_ranking"
)

// Default query windows, matching the service's own defaults.
const (
	DefaultEventsMinutes  = 60
	DefaultEventsLimit    = 500
	DefaultMetricsMinutes = 5
	DefaultAlertsMinutes  = 10
	DefaultFuelHours      = 24
	DefaultRankingHours   = 720
)

// Client talks to the remote telemetry service
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates a client for the service at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches the service liveness payload
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var h models.Health
	if err := c.get(ctx, ResourceHealth, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Devices fetches the device list with online/offline status
func (c *Client) Devices(ctx context.Context) ([]models.DeviceStatus, error) {
	var devices []models.DeviceStatus
	if err := c.get(ctx, ResourceDevices, "/devices", nil, &devices); err != nil {
		return nil, err
	}
	if problems := parser.ValidateDevices(devices); len(problems) > 0 {
		return nil, &InvalidPayload{Resource: ResourceDevices, Problems: problems}
	}
	return devices, nil
}

// DeviceLatest fetches the most recent telemetry event of a device
func (c *Client) DeviceLatest(ctx context.Context, deviceID string) (*models.TelemetryEvent, error) {
	var e models.TelemetryEvent
	if err := c.get(ctx, ResourceDeviceLatest, devicePath(deviceID, "latest"), nil, &e); err != nil {
		return nil, err
	}
	if problems := parser.ValidateEvents(deviceID, []models.TelemetryEvent{e}); len(problems) > 0 {
		return nil, &InvalidPayload{Resource: ResourceDeviceLatest, Problems: problems}
	}
	return &e, nil
}

// DeviceEvents fetches a device's event history for the last minutes, newest first
func (c *Client) DeviceEvents(ctx context.Context, deviceID string, minutes, limit int) ([]models.TelemetryEvent, error) {
	q := url.Values{}
	q.Set("minutes", strconv.Itoa(orDefault(minutes, DefaultEventsMinutes)))
	q.Set("limit", strconv.Itoa(orDefault(limit, DefaultEventsLimit)))

	var events []models.TelemetryEvent
	if err := c.get(ctx, ResourceDeviceEvents, devicePath(deviceID, "events"), q, &events); err != nil {
		return nil, err
	}
	if problems := parser.ValidateEvents(deviceID, events); len(problems) > 0 {
		return nil, &InvalidPayload{Resource: ResourceDeviceEvents, Problems: problems}
	}
	return events, nil
}

// MetricsSummary fetches the aggregate metrics for the last minutes
func (c *Client) MetricsSummary(ctx context.Context, minutes int) (*models.MetricsSummary, error) {
	q := url.Values{}
	q.Set("minutes", strconv.Itoa(orDefault(minutes, DefaultMetricsMinutes)))

	var m models.MetricsSummary
	if err := c.get(ctx, ResourceMetrics, "/metrics/summary", q, &m); err != nil {
		return nil, err
	}
	if problems := parser.ValidateMetrics(&m); len(problems) > 0 {
		return nil, &InvalidPayload{Resource: ResourceMetrics, Problems: problems}
	}
	return &m, nil
}

// Alerts fetches the alerts raised in the last minutes
func (c *Client) Alerts(ctx context.Context, minutes int) ([]models.Alert, error) {
	q := url.Values{}
	q.Set("minutes", strconv.Itoa(orDefault(minutes, DefaultAlertsMinutes)))

	var alerts []models.Alert
	if err := c.get(ctx, ResourceAlerts, "/alerts", q, &alerts); err != nil {
		return nil, err
	}
	if problems := parser.ValidateAlerts(alerts); len(problems) > 0 {
		return nil, &InvalidPayload{Resource: ResourceAlerts, Problems: problems}
	}
	return alerts, nil
}

// FuelDashboard fetches the fleet-wide fuel economy analysis
func (c *Client) FuelDashboard(ctx context.Context, hours int) (*models.FuelEconomyDashboard, error) {
	q := url.Values{}
	q.Set("hours", strconv.Itoa(orDefault(hours, DefaultFuelHours)))

	var f models.FuelEconomyDashboard
	if err := c.get(ctx, ResourceFuelDashboard, "/fuel-analysis/dashboard", q, &f); err != nil {
		return nil, err
	}
	if problems := parser.ValidateFuelDashboard(&f); len(problems) > 0 {
		return nil, &InvalidPayload{Resource: ResourceFuelDashboard, Problems: problems}
	}
	return &f, nil
}

// VehicleFuel fetches the fuel analysis of one vehicle
func (c *Client) VehicleFuel(ctx context.Context, deviceID string, hours int) (*models.VehicleAnalysis, error) {
	q := url.Values{}
	q.Set("hours", strconv.Itoa(orDefault(hours, DefaultFuelHours)))

	var v models.VehicleAnalysis
	path := "/fuel-analysis/calculate/" + url.PathEscape(deviceID)
	if err := c.get(ctx, ResourceVehicleFuel, path, q, &v); err != nil {
		return nil, err
	}
	if problems := parser.ValidateVehicleAnalysis(deviceID, &v); len(problems) > 0 {
		return nil, &InvalidPayload{Resource: ResourceVehicleFuel, Problems: problems}
	}
	return &v, nil
}

// DriverRanking fetches every driver ranked by score
func (c *Client) DriverRanking(ctx context.Context, hours int) ([]models.DriverScore, error) {
	q := url.Values{}
	q.Set("hours", strconv.Itoa(orDefault(hours, DefaultRankingHours)))

	var drivers []models.DriverScore
	if err := c.get(ctx, ResourceDriverRanking, "/fuel-analysis/driver-ranking", q, &drivers); err != nil {
		return nil, err
	}
	if problems := parser.ValidateDriverScores(drivers); len(problems) > 0 {
		return nil, &InvalidPayload{Resource: ResourceDriverRanking, Problems: problems}
	}
	return drivers, nil
}

func (c *Client) get(ctx context.Context, resource, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &NetworkUnreachable{Resource: resource, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkUnreachable{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &RequestFailed{Resource: resource, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return &NetworkUnreachable{Resource: resource, Err: ctx.Err()}
		}
		return &InvalidPayload{Resource: resource, Problems: []string{"malformed JSON: " + err.Error()}, Err: err}
	}
	return nil
}

func devicePath(deviceID, suffix string) string {
	return "/devices/" + url.PathEscape(deviceID) + "/" + suffix
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
