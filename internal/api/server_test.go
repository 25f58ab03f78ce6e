package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"monitora-dashboard/internal/dashboard"
	"monitora-dashboard/internal/models"

	"github.com/gorilla/websocket"
)

type fakeFetcher struct {
	mu     sync.Mutex
	events map[string][]models.TelemetryEvent
}

func (f *fakeFetcher) Health(ctx context.Context) (*models.Health, error) {
	return &models.Health{Status: "ok"}, nil
}

func (f *fakeFetcher) Devices(ctx context.Context) ([]models.DeviceStatus, error) {
	now := time.Now()
	return []models.DeviceStatus{
		{DeviceID: "TRUCK-01", Online: true, LastSeen: models.NewTime(now), LastLat: models.FloatPtr(-23.5), LastLon: models.FloatPtr(-46.6), LastSpeed: models.FloatPtr(72)},
		{DeviceID: "TRUCK-02", Online: false, LastSeen: models.NewTime(now.Add(-time.Hour))},
	}, nil
}

func (f *fakeFetcher) DeviceEvents(ctx context.Context, deviceID string, minutes, limit int) ([]models.TelemetryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[deviceID], nil
}

func (f *fakeFetcher) MetricsSummary(ctx context.Context, minutes int) (*models.MetricsSummary, error) {
	return &models.MetricsSummary{DevicesOnline: 1, EventsLastMinute: 20, AvgSpeed5Min: 48.2}, nil
}

func (f *fakeFetcher) Alerts(ctx context.Context, minutes int) ([]models.Alert, error) {
	return []models.Alert{{ID: 1, DeviceID: "TRUCK-01", AlertType: "overspeed", Value: 92, Message: "Velocidade acima do limite"}}, nil
}

func (f *fakeFetcher) FuelDashboard(ctx context.Context, hours int) (*models.FuelEconomyDashboard, error) {
	return &models.FuelEconomyDashboard{
		CurrentMonthCost:  12000,
		PreviousMonthCost: 13500,
		Savings:           1500,
		TopDrivers:        []models.DriverScore{{DriverID: "TRUCK-01", Score: 91}},
		CriticalAlerts:    []models.CriticalAlert{{DeviceID: "TRUCK-02", Type: "idle", Message: "Motor ocioso por 3h", Cost: 120}},
	}, nil
}

func (f *fakeFetcher) VehicleFuel(ctx context.Context, deviceID string, hours int) (*models.VehicleAnalysis, error) {
	return &models.VehicleAnalysis{DeviceID: deviceID, PeriodHours: hours}, nil
}

func (f *fakeFetcher) DriverRanking(ctx context.Context, hours int) ([]models.DriverScore, error) {
	return []models.DriverScore{{DriverID: "D-1", Score: 91}}, nil
}

type fakeHistory struct {
	lastQuery models.HistoryQuery
}

func (h *fakeHistory) QueryHistory(q models.HistoryQuery) ([]models.DeviceSnapshot, error) {
	h.lastQuery = q
	return []models.DeviceSnapshot{{ID: 1, DeviceID: q.DeviceID, Online: true}}, nil
}

func (h *fakeHistory) RecentFailures(limit int) ([]models.PollFailure, error) {
	return []models.PollFailure{{Resource: "metrics", Message: "failed to load metrics"}}, nil
}

func (h *fakeHistory) GetStats() (map[string]interface{}, error) {
	return map[string]interface{}{"total_snapshots": 1}, nil
}

func slowOptions() dashboard.Options {
	opts := dashboard.DefaultOptions()
	opts.DevicesInterval = time.Hour
	opts.MetricsInterval = time.Hour
	opts.EventsInterval = time.Hour
	opts.HealthInterval = time.Hour
	opts.AlertsInterval = time.Hour
	opts.FuelInterval = time.Hour
	return opts
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestServer(t *testing.T, history History) (*Server, *fakeFetcher) {
	t.Helper()
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	fetch := &fakeFetcher{events: map[string][]models.TelemetryEvent{
		"TRUCK-01": {
			{ID: 3, DeviceID: "TRUCK-01", TS: models.NewTime(base.Add(6 * time.Second)), SpeedKmh: models.FloatPtr(70), EngineTempC: models.FloatPtr(90), BatteryV: models.FloatPtr(12.4)},
			{ID: 2, DeviceID: "TRUCK-01", TS: models.NewTime(base.Add(3 * time.Second)), SpeedKmh: models.FloatPtr(64), EngineTempC: models.FloatPtr(89), BatteryV: models.FloatPtr(12.5)},
			{ID: 1, DeviceID: "TRUCK-01", TS: models.NewTime(base), SpeedKmh: models.FloatPtr(55), EngineTempC: models.FloatPtr(88), BatteryV: models.FloatPtr(12.5)},
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	dash := dashboard.New(fetch, slowOptions())
	fuel := dashboard.NewFuelPage(fetch, slowOptions())
	s := NewServer(dash, fuel, history)

	dash.Start(ctx)
	fuel.Start(ctx)
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		dash.Close()
		fuel.Close()
	})

	waitFor(t, func() bool {
		snap := dash.Snapshot()
		return snap.Devices.Status == dashboard.StatusReady &&
			snap.Metrics.Status == dashboard.StatusReady &&
			snap.Alerts.Status == dashboard.StatusReady
	})
	return s, fetch
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp apiResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: invalid JSON response: %v", method, path, err)
		}
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec, resp := do(t, s, "GET", "/health", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Errorf("health: %d %+v", rec.Code, resp)
	}
}

func TestDashboardSnapshot(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec, resp := do(t, s, "GET", "/api/v1/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	data := resp.Data.(map[string]interface{})
	counts := data["counts"].(map[string]interface{})
	if counts["total"].(float64) != 2 || counts["online"].(float64) != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
	if data["phase"] != "no_selection" {
		t.Errorf("phase = %v", data["phase"])
	}
	if _, ok := data["charts"]; ok {
		t.Error("charts should be absent with no selection")
	}
}

func TestUserActions(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"select", "/api/v1/select", `{"device_id":"TRUCK-01"}`, http.StatusOK},
		{"filter", "/api/v1/filter", `{"filter":"offline"}`, http.StatusOK},
		{"bad filter", "/api/v1/filter", `{"filter":"parked"}`, http.StatusBadRequest},
		{"range", "/api/v1/range", `{"minutes":360}`, http.StatusOK},
		{"bad range", "/api/v1/range", `{"minutes":30}`, http.StatusBadRequest},
		{"fuel mode", "/api/v1/fuel/mode", `{"mode":"individual"}`, http.StatusOK},
		{"bad fuel mode", "/api/v1/fuel/mode", `{"mode":"weekly"}`, http.StatusBadRequest},
		{"fuel select", "/api/v1/fuel/select", `{"device_id":"TRUCK-02"}`, http.StatusOK},
		{"fuel select empty", "/api/v1/fuel/select", `{}`, http.StatusBadRequest},
		{"invalid json", "/api/v1/select", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, s, "POST", tt.path, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	sel := s.dash.Selection()
	if sel.DeviceID != "TRUCK-01" || sel.Filter != "offline" || sel.Range.Minutes() != 360 {
		t.Errorf("unexpected selection %+v", sel)
	}
	if fs := s.fuel.Selection(); fs.Mode != "individual" || fs.DeviceID != "TRUCK-02" {
		t.Errorf("unexpected fuel selection %+v", fs)
	}

	// empty id clears
	do(t, s, "POST", "/api/v1/select", `{"device_id":""}`)
	if s.dash.Selection().DeviceID != "" {
		t.Error("selection should be cleared")
	}
}

func TestRetry(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, tt := range []struct {
		resource string
		status   int
	}{
		{"metrics", http.StatusAccepted},
		{"fuel_dashboard", http.StatusAccepted},
		{"weather", http.StatusNotFound},
	} {
		rec, _ := do(t, s, "POST", "/api/v1/retry/"+tt.resource, "")
		if rec.Code != tt.status {
			t.Errorf("retry %s: status %d, want %d", tt.resource, rec.Code, tt.status)
		}
	}
}

func TestChart(t *testing.T) {
	s, _ := newTestServer(t, nil)

	if rec, _ := do(t, s, "GET", "/api/v1/charts/speed.png", ""); rec.Code != http.StatusConflict {
		t.Errorf("no selection: status %d", rec.Code)
	}

	s.dash.Select("TRUCK-01")
	waitFor(t, func() bool {
		events, ok := s.dash.Events()
		return ok && len(events) == 3
	})

	rec, _ := do(t, s, "GET", "/api/v1/charts/battery.png", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("chart: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "\x89PNG") {
		t.Error("body is not a PNG")
	}

	if rec, _ := do(t, s, "GET", "/api/v1/charts/fuel.png", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown metric: status %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if rec, _ := do(t, s, "GET", "/api/v1/history/TRUCK-01", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled history: status %d", rec.Code)
	}

	h := &fakeHistory{}
	s, _ = newTestServer(t, h)

	rec, resp := do(t, s, "GET", "/api/v1/history/TRUCK-01?limit=5&start_time=2026-10-17T10:00:00Z", "")
	if rec.Code != http.StatusOK || resp.Meta == nil || resp.Meta.Total != 1 {
		t.Fatalf("history: %d %+v", rec.Code, resp)
	}
	if h.lastQuery.DeviceID != "TRUCK-01" || h.lastQuery.Limit != 5 || h.lastQuery.StartTime.Hour() != 10 {
		t.Errorf("unexpected query %+v", h.lastQuery)
	}

	if rec, _ := do(t, s, "GET", "/api/v1/history/TRUCK-01?end_time=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad end_time: status %d", rec.Code)
	}
	if rec, _ := do(t, s, "GET", "/api/v1/failures", ""); rec.Code != http.StatusOK {
		t.Errorf("failures: status %d", rec.Code)
	}

	for _, path := range []string{
		"/api/v1/history/TRUCK-01?limit=abc",
		"/api/v1/history/TRUCK-01?limit=-1",
		"/api/v1/history/TRUCK-01?limit=0",
		"/api/v1/history/TRUCK-01?offset=-3",
		"/api/v1/failures?limit=abc",
		"/api/v1/failures?limit=-1",
	} {
		if rec, _ := do(t, s, "GET", path, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", path, rec.Code)
		}
	}
	if h.lastQuery.Limit != 5 {
		t.Errorf("rejected query reached the store: %+v", h.lastQuery)
	}

	rec, resp = do(t, s, "GET", "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	stats := resp.Data.(map[string]interface{})
	if len(stats["dashboard"].([]interface{})) != 5 || stats["history"] == nil {
		t.Errorf("unexpected stats %v", stats)
	}
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.dash.Select("TRUCK-01")

	rec, _ := do(t, s, "GET", "/", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("index: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	body := rec.Body.String()
	for _, want := range []string{"TRUCK-01", "Velocidade Média", "48.2 km/h", "Velocidade acima do limite"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestIndexControls(t *testing.T) {
	s, _ := newTestServer(t, nil)
	waitFor(t, func() bool {
		g := s.fuel.Snapshot().Global
		return g != nil && g.Status == dashboard.StatusReady
	})

	rec, _ := do(t, s, "GET", "/", "")
	page := rec.Body.String()
	for _, want := range []string{
		`data-filter="all" disabled`, `data-filter="online"`, `data-filter="offline"`,
		`data-mode="global" disabled`, `data-mode="individual"`,
		"Melhores motoristas", "Motor ocioso por 3h",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("index missing %q", want)
		}
	}

	s.fuel.SetMode("individual")
	waitFor(t, func() bool { return s.fuel.Selection().DeviceID != "" })
	rec, _ = do(t, s, "GET", "/", "")
	if !strings.Contains(rec.Body.String(), `data-fuel-device="TRUCK-02"`) {
		t.Error("individual mode should list vehicles to pick")
	}
}

func TestWebsocket(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() Message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		return m
	}

	if m := read(); m.Type != dashboard.PageDashboard {
		t.Errorf("first message type %q", m.Type)
	}
	if m := read(); m.Type != dashboard.PageFuel {
		t.Errorf("second message type %q", m.Type)
	}
	waitFor(t, func() bool { return s.hub.Count() == 1 })

	// a user action triggers a broadcast
	s.dash.SetFilter("online")
	if m := read(); m.Type != dashboard.PageDashboard {
		t.Errorf("broadcast type %q", m.Type)
	}
}

func TestHubNotifyNeverBlocks(t *testing.T) {
	h := NewHub(func() []Message { return nil })
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Notify()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked without a running hub")
	}
}

func TestHubRejectsClientsAfterShutdown(t *testing.T) {
	h := NewHub(func() []Message { return []Message{{Type: "dashboard"}} })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown: %v, want going-away close", err)
	}
	if h.Count() != 0 {
		t.Errorf("stopped hub registered %d clients", h.Count())
	}
}
