package db

import (
	"path/filepath"
	"testing"
	"time"

	"monitora-dashboard/internal/models"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func device(id string, online bool, seen time.Time, speed *float64) models.DeviceStatus {
	return models.DeviceStatus{
		DeviceID:  id,
		Online:    online,
		LastSeen:  models.NewTime(seen),
		LastLat:   models.FloatPtr(-23.55),
		LastLon:   models.FloatPtr(-46.63),
		LastSpeed: speed,
	}
}

func TestRecordDevices_OnlyWhenLastSeenAdvances(t *testing.T) {
	db := openTestDB(t)
	t0 := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	n, err := db.RecordDevices([]models.DeviceStatus{
		device("TRUCK-01", true, t0, models.FloatPtr(50)),
		device("TRUCK-02", false, t0, nil),
	}, t0)
	if err != nil || n != 2 {
		t.Fatalf("first record: n=%d err=%v", n, err)
	}

	// same poll answer again: nothing new
	n, err = db.RecordDevices([]models.DeviceStatus{
		device("TRUCK-01", true, t0, models.FloatPtr(50)),
		device("TRUCK-02", false, t0, nil),
	}, t0.Add(2*time.Second))
	if err != nil || n != 0 {
		t.Fatalf("repeat record: n=%d err=%v", n, err)
	}

	n, err = db.RecordDevices([]models.DeviceStatus{
		device("TRUCK-01", true, t0.Add(3*time.Second), models.FloatPtr(61)),
		device("TRUCK-02", false, t0, nil),
	}, t0.Add(4*time.Second))
	if err != nil || n != 1 {
		t.Fatalf("advanced record: n=%d err=%v", n, err)
	}

	count, _ := db.GetRecordCount()
	if count != 3 {
		t.Errorf("GetRecordCount = %d, want 3", count)
	}

	ids, err := db.ListDevices()
	if err != nil || len(ids) != 2 || ids[0] != "TRUCK-01" {
		t.Errorf("ListDevices = %v, %v", ids, err)
	}
}

func TestQueryHistory(t *testing.T) {
	db := openTestDB(t)
	t0 := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		seen := t0.Add(time.Duration(i) * time.Minute)
		if _, err := db.RecordDevices([]models.DeviceStatus{device("TRUCK-01", true, seen, models.FloatPtr(float64(40+i)))}, seen); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		query models.HistoryQuery
		want  int
	}{
		{"all", models.HistoryQuery{DeviceID: "TRUCK-01"}, 5},
		{"limit", models.HistoryQuery{DeviceID: "TRUCK-01", Limit: 2}, 2},
		{"offset", models.HistoryQuery{DeviceID: "TRUCK-01", Limit: 10, Offset: 3}, 2},
		{"window", models.HistoryQuery{DeviceID: "TRUCK-01", StartTime: t0.Add(time.Minute), EndTime: t0.Add(3 * time.Minute)}, 3},
		{"other device", models.HistoryQuery{DeviceID: "TRUCK-09"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.QueryHistory(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d snapshots, want %d", len(got), tt.want)
			}
		})
	}

	latest, err := db.GetLatestSnapshot("TRUCK-01")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Speed == nil || *latest.Speed != 44 || !latest.LastSeen.Equal(t0.Add(4*time.Minute)) {
		t.Errorf("unexpected latest snapshot %+v", latest)
	}
	if latest.Temp != nil {
		t.Error("missing reading should stay nil")
	}
}

func TestFailures(t *testing.T) {
	db := openTestDB(t)
	t0 := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	for i, r := range []string{"metrics", "devices", "metrics"} {
		err := db.RecordFailure(models.PollFailure{Resource: r, Message: "failed to load " + r, OccurredAt: t0.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatal(err)
		}
	}

	failures, err := db.RecentFailures(2)
	if err != nil || len(failures) != 2 || failures[0].Resource != "metrics" || failures[1].Resource != "devices" {
		t.Errorf("RecentFailures = %+v, %v", failures, err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats["poll_failures"].(int64) != 3 || stats["total_snapshots"].(int64) != 0 {
		t.Errorf("unexpected stats %v", stats)
	}
}
