package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"monitora-dashboard/internal/client"
	"monitora-dashboard/internal/models"
	"monitora-dashboard/internal/view"
)

// fakeFetcher serves canned payloads. Hooks, when set, replace the canned answer.
type fakeFetcher struct {
	mu sync.Mutex

	devices    []models.DeviceStatus
	metrics    *models.MetricsSummary
	metricsErr error
	events     map[string][]models.TelemetryEvent
	eventsHook func(ctx context.Context, deviceID string) ([]models.TelemetryEvent, error)
	fuel       *models.FuelEconomyDashboard
	ranking    []models.DriverScore
	vehicles   map[string]*models.VehicleAnalysis

	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		events:   make(map[string][]models.TelemetryEvent),
		vehicles: make(map[string]*models.VehicleAnalysis),
		calls:    make(map[string]int),
	}
}

func (f *fakeFetcher) count(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[resource]
}

func (f *fakeFetcher) hit(resource string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[resource]++
}

func (f *fakeFetcher) Health(ctx context.Context) (*models.Health, error) {
	f.hit(client.ResourceHealth)
	return &models.Health{Status: "ok"}, nil
}

func (f *fakeFetcher) Devices(ctx context.Context) ([]models.DeviceStatus, error) {
	f.hit(client.ResourceDevices)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, nil
}

func (f *fakeFetcher) DeviceEvents(ctx context.Context, deviceID string, minutes, limit int) ([]models.TelemetryEvent, error) {
	f.hit(client.ResourceDeviceEvents)
	f.mu.Lock()
	hook := f.eventsHook
	events := f.events[deviceID]
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, deviceID)
	}
	return events, nil
}

func (f *fakeFetcher) MetricsSummary(ctx context.Context, minutes int) (*models.MetricsSummary, error) {
	f.hit(client.ResourceMetrics)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	return f.metrics, nil
}

func (f *fakeFetcher) Alerts(ctx context.Context, minutes int) ([]models.Alert, error) {
	f.hit(client.ResourceAlerts)
	return nil, nil
}

func (f *fakeFetcher) FuelDashboard(ctx context.Context, hours int) (*models.FuelEconomyDashboard, error) {
	f.hit(client.ResourceFuelDashboard)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fuel, nil
}

func (f *fakeFetcher) VehicleFuel(ctx context.Context, deviceID string, hours int) (*models.VehicleAnalysis, error) {
	f.hit(client.ResourceVehicleFuel)
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vehicles[deviceID]; ok {
		return v, nil
	}
	return &models.VehicleAnalysis{DeviceID: deviceID, PeriodHours: hours}, nil
}

func (f *fakeFetcher) DriverRanking(ctx context.Context, hours int) ([]models.DriverScore, error) {
	f.hit(client.ResourceDriverRanking)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ranking, nil
}

// slowOptions keeps timers out of the way so tests drive every fetch explicitly
func slowOptions() Options {
	opts := DefaultOptions()
	opts.DevicesInterval = time.Hour
	opts.MetricsInterval = time.Hour
	opts.EventsInterval = time.Hour
	opts.HealthInterval = time.Hour
	opts.AlertsInterval = time.Hour
	opts.FuelInterval = time.Hour
	return opts
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fleet() []models.DeviceStatus {
	now := models.NewTime(time.Now())
	return []models.DeviceStatus{
		{DeviceID: "TRUCK-01", Online: true, LastSeen: now, LastLat: models.FloatPtr(-23.56), LastLon: models.FloatPtr(-46.65), LastSpeed: models.FloatPtr(85)},
		{DeviceID: "TRUCK-02", Online: false, LastSeen: now},
		{DeviceID: "TRUCK-03", Online: true, LastSeen: now, LastLat: models.FloatPtr(-22.9), LastLon: models.FloatPtr(-43.2)},
	}
}

func TestMetricsFailureKeepsLastGoodCards(t *testing.T) {
	f := newFakeFetcher()
	f.metrics = &models.MetricsSummary{DevicesOnline: 4, EventsLastMinute: 120, AvgSpeed5Min: 48, AlertsLast10Min: 1}

	d := New(f, slowOptions())
	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "metrics loaded", func() bool { return d.Snapshot().Metrics.Status == StatusReady })
	before := d.Snapshot().Metrics.Data

	f.mu.Lock()
	f.metricsErr = &client.NetworkUnreachable{Resource: client.ResourceMetrics, Err: errors.New("connection refused")}
	f.mu.Unlock()

	if err := d.Retry(client.ResourceMetrics); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	waitFor(t, "metrics stale", func() bool { return d.Snapshot().Metrics.Status == StatusStale })

	after := d.Snapshot().Metrics
	if len(after.Data) != len(before) {
		t.Fatalf("cards changed: %+v", after.Data)
	}
	for i := range before {
		if after.Data[i] != before[i] {
			t.Errorf("card %d changed from %+v to %+v", i, before[i], after.Data[i])
		}
	}
	if after.Error != "failed to load metrics" || after.Retry != client.ResourceMetrics {
		t.Errorf("unexpected error state %q/%q", after.Error, after.Retry)
	}
}

func TestMetricsFailureBeforeFirstLoad(t *testing.T) {
	f := newFakeFetcher()
	f.metricsErr = &client.RequestFailed{Resource: client.ResourceMetrics, StatusCode: 503}

	d := New(f, slowOptions())
	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "metrics failed", func() bool { return d.Snapshot().Metrics.Status == StatusFailed })
	if d.Snapshot().Metrics.Data != nil {
		t.Error("failed section without data must not render cards")
	}
}

func TestSelectionSwitchDiscardsStaleEvents(t *testing.T) {
	f := newFakeFetcher()
	f.devices = fleet()
	releaseA := make(chan struct{})
	startedA := make(chan struct{}, 1)
	f.eventsHook = func(ctx context.Context, id string) ([]models.TelemetryEvent, error) {
		ts := models.NewTime(time.Now())
		if id == "TRUCK-01" {
			startedA <- struct{}{}
			<-releaseA
			return []models.TelemetryEvent{{ID: 1, DeviceID: id, TS: ts, SpeedKmh: models.FloatPtr(11)}}, nil
		}
		return []models.TelemetryEvent{{ID: 2, DeviceID: id, TS: ts, SpeedKmh: models.FloatPtr(22)}}, nil
	}

	d := New(f, slowOptions())
	d.Start(context.Background())
	defer d.Close()

	d.Select("TRUCK-01")
	<-startedA
	d.Select("TRUCK-03")

	waitFor(t, "events of TRUCK-03", func() bool {
		events, ok := d.Events()
		return ok && len(events) == 1
	})
	close(releaseA)

	waitFor(t, "stale response discarded", func() bool {
		for _, st := range d.Stats() {
			if st.Name == client.ResourceDeviceEvents && st.Discarded == 1 {
				return true
			}
		}
		return false
	})

	events, _ := d.Events()
	if events[0].DeviceID != "TRUCK-03" {
		t.Fatalf("events belong to %s", events[0].DeviceID)
	}
	charts := d.Snapshot().Charts
	if charts == nil || len(charts.Data) != 1 || charts.Data[0].Speed != 22 {
		t.Errorf("unexpected charts %+v", charts)
	}
}

func TestSelectedDeviceMarker(t *testing.T) {
	f := newFakeFetcher()
	f.devices = fleet()

	d := New(f, slowOptions())
	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "devices loaded", func() bool { return d.Snapshot().Devices.Status == StatusReady })

	snap := d.Snapshot()
	if snap.Map.Marker != nil || snap.Phase != view.PhaseNoSelection {
		t.Fatal("no marker expected before a selection")
	}

	d.Select("TRUCK-01")
	snap = d.Snapshot()
	if snap.Phase != view.PhaseOnline {
		t.Errorf("phase = %s", snap.Phase)
	}
	m := snap.Map.Marker
	if m == nil || m.Position != (view.LatLng{Lat: -23.56, Lon: -46.65}) || m.Color != view.MarkerOnline {
		t.Fatalf("unexpected marker %+v", m)
	}

	d.Select("TRUCK-02")
	if d.Snapshot().Map.Marker != nil {
		t.Error("device without coordinates must not get a marker")
	}
}

func TestFilterKeepsSelectionAndCounts(t *testing.T) {
	f := newFakeFetcher()
	f.devices = fleet()

	d := New(f, slowOptions())
	d.Start(context.Background())
	defer d.Close()
	waitFor(t, "devices loaded", func() bool { return d.Snapshot().Devices.Status == StatusReady })

	d.Select("TRUCK-02")
	d.SetFilter(view.FilterOnline)

	snap := d.Snapshot()
	if snap.Selection.DeviceID != "TRUCK-02" {
		t.Error("filter change cleared the selection")
	}
	if len(snap.Devices.Data) != 2 {
		t.Errorf("expected 2 online rows, got %d", len(snap.Devices.Data))
	}
	if snap.Counts != (Counts{Total: 3, Online: 2, Offline: 1}) {
		t.Errorf("unexpected counts %+v", snap.Counts)
	}
	if snap.Devices.Data[0].SpeedTone != view.ToneRed {
		t.Errorf("85 km/h should be red, got %s", snap.Devices.Data[0].SpeedTone)
	}
}

func TestNoSelectionIssuesNoEventRequests(t *testing.T) {
	f := newFakeFetcher()
	d := New(f, slowOptions())
	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "devices polled", func() bool { return f.count(client.ResourceDevices) == 1 })
	if err := d.Retry(client.ResourceDeviceEvents); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := f.count(client.ResourceDeviceEvents); n != 0 {
		t.Errorf("expected no events request, got %d", n)
	}
	if d.Snapshot().Charts != nil {
		t.Error("no charts without a selection")
	}
}

func TestRetryUnknownResource(t *testing.T) {
	d := New(newFakeFetcher(), slowOptions())
	if err := d.Retry("fuel_dashboard"); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("expected ErrUnknownResource, got %v", err)
	}
}

func TestUpdatesNotifyListeners(t *testing.T) {
	f := newFakeFetcher()
	d := New(f, slowOptions())

	var mu sync.Mutex
	seen := map[string]bool{}
	d.OnUpdate(func(u Update) {
		mu.Lock()
		seen[u.Resource] = true
		mu.Unlock()
	})

	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "all shared resources reported", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[client.ResourceDevices] && seen[client.ResourceMetrics] && seen[client.ResourceHealth] && seen[client.ResourceAlerts]
	})
}

type memStore map[string]interface{}

func (m memStore) Load(ctx context.Context, resource string, dst interface{}) (time.Time, bool, error) {
	v, ok := m[resource]
	if !ok {
		return time.Time{}, false, nil
	}
	switch p := dst.(type) {
	case *[]models.DeviceStatus:
		*p = v.([]models.DeviceStatus)
	case **models.MetricsSummary:
		*p = v.(*models.MetricsSummary)
	default:
		return time.Time{}, false, nil
	}
	return time.Unix(1700000000, 0), true, nil
}

func TestWarmFromSnapshotStore(t *testing.T) {
	d := New(newFakeFetcher(), slowOptions())
	d.Warm(context.Background(), memStore{
		client.ResourceDevices: fleet(),
		client.ResourceMetrics: &models.MetricsSummary{DevicesOnline: 9},
	})

	snap := d.Snapshot()
	if snap.Devices.Status != StatusReady || snap.Counts.Total != 3 {
		t.Errorf("devices not restored: %+v", snap.Devices)
	}
	if snap.Metrics.Data[0].Value != "9" {
		t.Errorf("metrics not restored: %+v", snap.Metrics.Data)
	}
	if snap.Health.Status != StatusLoading {
		t.Errorf("health should still be loading, got %s", snap.Health.Status)
	}
}

func TestConcurrentSelectionKeepsEventsInStep(t *testing.T) {
	ids := []string{"TRUCK-01", "TRUCK-02", "TRUCK-03"}

	for trial := 0; trial < 200; trial++ {
		d := New(newFakeFetcher(), slowOptions())

		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(2)
			go func(id string) {
				defer wg.Done()
				d.Select(id)
			}(id)
			go func(r view.TimeRange) {
				defer wg.Done()
				d.SetRange(r)
			}(view.TimeRanges[i%len(view.TimeRanges)])
		}
		wg.Wait()

		sel := d.Selection()
		got := d.eventsSub.Param()
		if got.DeviceID != sel.DeviceID || got.Minutes != sel.Range.Minutes() {
			t.Fatalf("trial %d: selection %s/%d but events poll %s/%d",
				trial, sel.DeviceID, sel.Range.Minutes(), got.DeviceID, got.Minutes)
		}
	}
}
