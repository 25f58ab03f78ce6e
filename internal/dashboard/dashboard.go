package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"monitora-dashboard/internal/client"
	"monitora-dashboard/internal/models"
	"monitora-dashboard/internal/poller"
	"monitora-dashboard/internal/view"
)

// ErrUnknownResource is returned by Retry for a resource the page does not poll
var ErrUnknownResource = errors.New("unknown resource")

const PageDashboard = "dashboard"

type eventsKey struct {
	DeviceID string
	Minutes  int
}

// Dashboard is the live monitoring page
type Dashboard struct {
	notifier

	fetch Fetcher
	opts  Options
	state *view.State
	subs  *poller.Group
	now   func() time.Time

	devices *Slot[[]models.DeviceStatus]
	metrics *Slot[*models.MetricsSummary]
	health  *Slot[*models.Health]
	alerts  *Slot[[]models.Alert]
	events  *Slot[[]models.TelemetryEvent]

	eventsSub *poller.Subscription[eventsKey, []models.TelemetryEvent]

	// mu keeps the view state and the events parameter in step
	mu sync.Mutex
}

// New builds a stopped dashboard page
func New(fetch Fetcher, opts Options) *Dashboard {
	d := &Dashboard{
		fetch:   fetch,
		opts:    opts,
		state:   view.NewState(),
		subs:    poller.NewGroup(),
		now:     time.Now,
		devices: newSlot[[]models.DeviceStatus](client.ResourceDevices),
		metrics: newSlot[*models.MetricsSummary](client.ResourceMetrics),
		health:  newSlot[*models.Health](client.ResourceHealth),
		alerts:  newSlot[[]models.Alert](client.ResourceAlerts),
		events:  newSlot[[]models.TelemetryEvent](client.ResourceDeviceEvents),
	}

	d.subs.Add(poller.New(poller.Config[struct{}, []models.DeviceStatus]{
		Name:     client.ResourceDevices,
		Interval: opts.DevicesInterval,
		Fetch: func(ctx context.Context, _ struct{}) ([]models.DeviceStatus, error) {
			return fetch.Devices(ctx)
		},
		OnResult: apply(d, client.ResourceDevices, d.devices),
	}))

	d.subs.Add(poller.New(poller.Config[int, *models.MetricsSummary]{
		Name:     client.ResourceMetrics,
		Interval: opts.MetricsInterval,
		Param:    opts.MetricsMinutes,
		Fetch:    fetch.MetricsSummary,
		OnResult: apply(d, client.ResourceMetrics, d.metrics),
	}))

	d.subs.Add(poller.New(poller.Config[struct{}, *models.Health]{
		Name:     client.ResourceHealth,
		Interval: opts.HealthInterval,
		Fetch: func(ctx context.Context, _ struct{}) (*models.Health, error) {
			return fetch.Health(ctx)
		},
		OnResult: apply(d, client.ResourceHealth, d.health),
	}))

	d.subs.Add(poller.New(poller.Config[int, []models.Alert]{
		Name:     client.ResourceAlerts,
		Interval: opts.AlertsInterval,
		Param:    opts.AlertsMinutes,
		Fetch:    fetch.Alerts,
		OnResult: apply(d, client.ResourceAlerts, d.alerts),
	}))

	d.eventsSub = poller.New(poller.Config[eventsKey, []models.TelemetryEvent]{
		Name:     client.ResourceDeviceEvents,
		Interval: opts.EventsInterval,
		Param:    eventsKey{Minutes: d.state.Snapshot().Range.Minutes()},
		Ready:    func(k eventsKey) bool { return k.DeviceID != "" },
		Fetch: func(ctx context.Context, k eventsKey) ([]models.TelemetryEvent, error) {
			return fetch.DeviceEvents(ctx, k.DeviceID, k.Minutes, opts.EventsLimit)
		},
		OnResult: apply(d, client.ResourceDeviceEvents, d.events),
		OnReset:  func(eventsKey) { d.events.Reset() },
	})
	d.subs.Add(d.eventsSub)

	return d
}

func apply[T any](d *Dashboard, resource string, slot *Slot[T]) func(poller.Result[T]) {
	return func(res poller.Result[T]) {
		slot.Apply(res)
		if res.Err != nil {
			slog.Warn("poll failed", "page", PageDashboard, "resource", resource, "error", res.Err)
		}
		d.notify(Update{Page: PageDashboard, Resource: resource, Err: res.Err, At: res.CompletedAt})
	}
}

// Start begins polling every resource
func (d *Dashboard) Start(ctx context.Context) {
	d.subs.StartAll(ctx)
	slog.Info("dashboard polling started", "selected", d.state.Selected())
}

// Close stops every subscription
func (d *Dashboard) Close() {
	d.subs.StopAll()
}

// Select makes deviceID the selected device. Events of the previous selection are
// dropped and any response still in flight for it is discarded.
func (d *Dashboard) Select(deviceID string) {
	d.mu.Lock()
	d.state.Select(deviceID)
	d.syncEvents()
	d.mu.Unlock()
	d.notify(Update{Page: PageDashboard, Resource: "selection", At: d.now()})
}

// ClearSelection returns to the no-selection phase
func (d *Dashboard) ClearSelection() {
	d.Select("")
}

// SetFilter changes the device list filter. The selection is kept.
func (d *Dashboard) SetFilter(f view.Filter) {
	d.state.SetFilter(f)
	d.notify(Update{Page: PageDashboard, Resource: "filter", At: d.now()})
}

// SetRange changes the chart window and refetches the selected device's events
func (d *Dashboard) SetRange(r view.TimeRange) {
	d.mu.Lock()
	d.state.SetRange(r)
	d.syncEvents()
	d.mu.Unlock()
	d.notify(Update{Page: PageDashboard, Resource: "range", At: d.now()})
}

// syncEvents points the events subscription at the current selection. d.mu must be held.
func (d *Dashboard) syncEvents() {
	sel := d.state.Snapshot()
	d.eventsSub.SetParams(eventsKey{DeviceID: sel.DeviceID, Minutes: sel.Range.Minutes()})
}

// Retry fetches resource immediately
func (d *Dashboard) Retry(resource string) error {
	if !d.subs.Refresh(resource) {
		return fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	return nil
}

// Stats returns the subscription counters
func (d *Dashboard) Stats() []poller.Stats {
	return d.subs.Stats()
}

// Selection returns a copy of the view state
func (d *Dashboard) Selection() view.Selection {
	return d.state.Snapshot()
}

// Devices returns the last-good device list
func (d *Dashboard) Devices() ([]models.DeviceStatus, bool) {
	return d.devices.Get()
}

// Events returns the last-good event history of the selected device, newest first
func (d *Dashboard) Events() ([]models.TelemetryEvent, bool) {
	return d.events.Get()
}

// Payload returns the raw last-good data of a resource, for mirroring
func (d *Dashboard) Payload(resource string) (interface{}, bool) {
	switch resource {
	case client.ResourceDevices:
		return payload(d.devices)
	case client.ResourceMetrics:
		return payload(d.metrics)
	case client.ResourceHealth:
		return payload(d.health)
	case client.ResourceAlerts:
		return payload(d.alerts)
	}
	return nil, false
}

func payload[T any](slot *Slot[T]) (interface{}, bool) {
	data, ok := slot.Get()
	if !ok {
		return nil, false
	}
	return data, true
}

// Warm restores the shared resources from a snapshot store saved by an earlier run.
// Per-device data is not restored.
func (d *Dashboard) Warm(ctx context.Context, store SnapshotStore) {
	warm(ctx, store, client.ResourceDevices, d.devices)
	warm(ctx, store, client.ResourceMetrics, d.metrics)
	warm(ctx, store, client.ResourceHealth, d.health)
	warm(ctx, store, client.ResourceAlerts, d.alerts)
}

func warm[T any](ctx context.Context, store SnapshotStore, resource string, slot *Slot[T]) {
	var data T
	savedAt, ok, err := store.Load(ctx, resource, &data)
	if err != nil {
		slog.Warn("snapshot restore failed", "resource", resource, "error", err)
		return
	}
	if !ok {
		return
	}
	slot.Set(data, savedAt)
	slog.Debug("snapshot restored", "resource", resource, "saved_at", savedAt)
}

// Counts are the device list totals
type Counts struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// Snapshot is everything the dashboard page renders
type Snapshot struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Selection   view.Selection              `json:"selection"`
	Phase       view.Phase                  `json:"phase"`
	Counts      Counts                      `json:"counts"`
	Devices     Section[[]view.DeviceRow]   `json:"devices"`
	Metrics     Section[[]view.MetricCard]  `json:"metrics"`
	Health      Section[*models.Health]     `json:"health"`
	Alerts      Section[[]models.Alert]     `json:"alerts"`
	Selected    *models.DeviceStatus        `json:"selected_device,omitempty"`
	Map         view.MapView                `json:"map"`
	Charts      *Section[[]view.ChartPoint] `json:"charts,omitempty"`
	Ranges      []RangeOption               `json:"ranges"`
}

// RangeOption is one chart window button
type RangeOption struct {
	Minutes int    `json:"minutes"`
	Label   string `json:"label"`
	Active  bool   `json:"active"`
}

// Snapshot derives the page from the current slots and view state
func (d *Dashboard) Snapshot() Snapshot {
	now := d.now()
	sel := d.state.Snapshot()
	devicesSec := d.devices.Section()
	devices := devicesSec.Data

	snap := Snapshot{
		GeneratedAt: now,
		Selection:   sel,
		Phase:       view.PhaseOf(sel.DeviceID, devices),
		Counts: Counts{
			Total:   len(devices),
			Online:  view.CountOnline(devices),
			Offline: view.CountOffline(devices),
		},
		Devices: MapSection(devicesSec, func(ds []models.DeviceStatus) []view.DeviceRow {
			return view.DeviceRows(view.FilterDevices(ds, sel.Filter), sel.DeviceID, now)
		}),
		Metrics: MapSection(d.metrics.Section(), view.MetricCards),
		Health:  d.health.Section(),
		Alerts:  d.alerts.Section(),
		Map:     view.NewMapView(nil),
	}

	if dev, ok := view.FindDevice(devices, sel.DeviceID); ok && sel.DeviceID != "" {
		snap.Selected = &dev
		snap.Map = view.NewMapView(&dev)
	}
	if sel.DeviceID != "" {
		charts := MapSection(d.events.Section(), view.ChartSeries)
		snap.Charts = &charts
	}

	for _, r := range view.TimeRanges {
		snap.Ranges = append(snap.Ranges, RangeOption{Minutes: r.Minutes(), Label: r.Label(), Active: r == sel.Range})
	}
	return snap
}
