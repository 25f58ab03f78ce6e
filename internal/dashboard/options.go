// Package dashboard composes poll subscriptions with view state into the two pages of
// the product: the live dashboard and the fuel economy page. Each page keeps one
// last-good snapshot per resource and notifies listeners whenever one is applied.
package dashboard

import (
	"context"
	"sync"
	"time"

	"monitora-dashboard/internal/config"
	"monitora-dashboard/internal/models"
)

// Fetcher is the data-fetch layer used by the pages
type Fetcher interface {
	Health(ctx context.Context) (*models.Health, error)
	Devices(ctx context.Context) ([]models.DeviceStatus, error)
	DeviceEvents(ctx context.Context, deviceID string, minutes, limit int) ([]models.TelemetryEvent, error)
	MetricsSummary(ctx context.Context, minutes int) (*models.MetricsSummary, error)
	Alerts(ctx context.Context, minutes int) ([]models.Alert, error)
	FuelDashboard(ctx context.Context, hours int) (*models.FuelEconomyDashboard, error)
	VehicleFuel(ctx context.Context, deviceID string, hours int) (*models.VehicleAnalysis, error)
	DriverRanking(ctx context.Context, hours int) ([]models.DriverScore, error)
}

// Options holds poll intervals and query windows
type Options struct {
	DevicesInterval time.Duration
	MetricsInterval time.Duration
	EventsInterval  time.Duration
	HealthInterval  time.Duration
	AlertsInterval  time.Duration
	FuelInterval    time.Duration

	MetricsMinutes int
	AlertsMinutes  int
	EventsLimit    int
	FuelHours      int
	RankingHours   int
}

func DefaultOptions() Options {
	return Options{
		DevicesInterval: 2 * time.Second,
		MetricsInterval: 2 * time.Second,
		EventsInterval:  3 * time.Second,
		HealthInterval:  5 * time.Second,
		AlertsInterval:  5 * time.Second,
		FuelInterval:    60 * time.Second,
		MetricsMinutes:  5,
		AlertsMinutes:   10,
		EventsLimit:     500,
		FuelHours:       24,
		RankingHours:    720,
	}
}

// OptionsFromConfig copies the poll settings out of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DevicesInterval: cfg.DevicesInterval,
		MetricsInterval: cfg.MetricsInterval,
		EventsInterval:  cfg.EventsInterval,
		HealthInterval:  cfg.HealthInterval,
		AlertsInterval:  cfg.AlertsInterval,
		FuelInterval:    cfg.FuelInterval,
		MetricsMinutes:  cfg.MetricsMinutes,
		AlertsMinutes:   cfg.AlertsMinutes,
		EventsLimit:     cfg.EventsLimit,
		FuelHours:       cfg.FuelHours,
		RankingHours:    cfg.RankingHours,
	}
}

// Update describes one applied fetch result
type Update struct {
	Page     string    `json:"page"`
	Resource string    `json:"resource"`
	Err      error     `json:"-"`
	At       time.Time `json:"at"`
}

// Listener receives updates. It runs on the poll goroutine and must not block.
type Listener func(Update)

type notifier struct {
	mu        sync.RWMutex
	listeners []Listener
}

// OnUpdate registers a listener
func (n *notifier) OnUpdate(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

func (n *notifier) notify(u Update) {
	n.mu.RLock()
	listeners := n.listeners
	n.mu.RUnlock()

	for _, l := range listeners {
		l(u)
	}
}

// SnapshotStore restores last-good snapshots saved by a previous run
type SnapshotStore interface {
	Load(ctx context.Context, resource string, dst interface{}) (time.Time, bool, error)
}
