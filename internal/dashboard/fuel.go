package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"monitora-dashboard/internal/client"
	"monitora-dashboard/internal/models"
	"monitora-dashboard/internal/poller"
	"monitora-dashboard/internal/view"
)

const PageFuel = "fuel"

// FuelPage is the fuel economy page. In global mode it polls the fleet analysis and
// the driver ranking; in individual mode it fetches the selected vehicle's analysis
// once per selection.
type FuelPage struct {
	notifier

	state *view.State
	subs  *poller.Group
	now   func() time.Time

	devices *Slot[[]models.DeviceStatus]
	global  *Slot[*models.FuelEconomyDashboard]
	ranking *Slot[[]models.DriverScore]
	vehicle *Slot[*models.VehicleAnalysis]

	devicesSub *poller.Subscription[struct{}, []models.DeviceStatus]
	globalSub  *poller.Subscription[int, *models.FuelEconomyDashboard]
	rankingSub *poller.Subscription[int, []models.DriverScore]
	vehicleSub *poller.Subscription[string, *models.VehicleAnalysis]

	mu      sync.Mutex
	ctx     context.Context
	started bool
}

// NewFuelPage builds a stopped fuel page in global mode
func NewFuelPage(fetch Fetcher, opts Options) *FuelPage {
	p := &FuelPage{
		state:   view.NewState(),
		subs:    poller.NewGroup(),
		now:     time.Now,
		devices: newSlot[[]models.DeviceStatus](client.ResourceDevices),
		global:  newSlot[*models.FuelEconomyDashboard](client.ResourceFuelDashboard),
		ranking: newSlot[[]models.DriverScore](client.ResourceDriverRanking),
		vehicle: newSlot[*models.VehicleAnalysis](client.ResourceVehicleFuel),
	}

	p.devicesSub = poller.New(poller.Config[struct{}, []models.DeviceStatus]{
		Name: client.ResourceDevices,
		Fetch: func(ctx context.Context, _ struct{}) ([]models.DeviceStatus, error) {
			return fetch.Devices(ctx)
		},
		OnResult: func(res poller.Result[[]models.DeviceStatus]) {
			p.devices.Apply(res)
			p.report(client.ResourceDevices, res.Err, res.CompletedAt)
			if res.Err == nil && len(res.Data) > 0 {
				p.selectDefault(res.Data[0].DeviceID)
			}
		},
	})

	p.globalSub = poller.New(poller.Config[int, *models.FuelEconomyDashboard]{
		Name:     client.ResourceFuelDashboard,
		Interval: opts.FuelInterval,
		Param:    opts.FuelHours,
		Fetch:    fetch.FuelDashboard,
		OnResult: func(res poller.Result[*models.FuelEconomyDashboard]) {
			p.global.Apply(res)
			p.report(client.ResourceFuelDashboard, res.Err, res.CompletedAt)
		},
	})

	p.rankingSub = poller.New(poller.Config[int, []models.DriverScore]{
		Name:     client.ResourceDriverRanking,
		Interval: opts.FuelInterval,
		Param:    opts.RankingHours,
		Fetch:    fetch.DriverRanking,
		OnResult: func(res poller.Result[[]models.DriverScore]) {
			p.ranking.Apply(res)
			p.report(client.ResourceDriverRanking, res.Err, res.CompletedAt)
		},
	})

	p.vehicleSub = poller.New(poller.Config[string, *models.VehicleAnalysis]{
		Name:  client.ResourceVehicleFuel,
		Ready: func(id string) bool { return id != "" },
		Fetch: func(ctx context.Context, id string) (*models.VehicleAnalysis, error) {
			return fetch.VehicleFuel(ctx, id, opts.FuelHours)
		},
		OnResult: func(res poller.Result[*models.VehicleAnalysis]) {
			p.vehicle.Apply(res)
			p.report(client.ResourceVehicleFuel, res.Err, res.CompletedAt)
		},
		OnReset: func(string) { p.vehicle.Reset() },
	})

	p.subs.Add(p.devicesSub)
	p.subs.Add(p.globalSub)
	p.subs.Add(p.rankingSub)
	p.subs.Add(p.vehicleSub)
	return p
}

func (p *FuelPage) report(resource string, err error, at time.Time) {
	if err != nil {
		slog.Warn("poll failed", "page", PageFuel, "resource", resource, "error", err)
	}
	p.notify(Update{Page: PageFuel, Resource: resource, Err: err, At: at})
}

// Start fetches the device list once and starts the subscriptions of the current mode
func (p *FuelPage) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctx = ctx
	p.started = true
	p.devicesSub.Start(ctx)
	p.startMode(p.state.Snapshot().Mode)
}

func (p *FuelPage) startMode(mode view.ViewMode) {
	if mode == view.ModeIndividual {
		p.globalSub.Stop()
		p.rankingSub.Stop()
		p.vehicleSub.Start(p.ctx)
		return
	}
	p.vehicleSub.Stop()
	p.globalSub.Start(p.ctx)
	p.rankingSub.Start(p.ctx)
}

// Close stops every subscription
func (p *FuelPage) Close() {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	p.subs.StopAll()
}

// SetMode switches between the fleet and the per-vehicle view. Subscriptions of the
// other mode are stopped; entering individual mode refetches the selected vehicle.
func (p *FuelPage) SetMode(mode view.ViewMode) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.state.Snapshot().Mode
	p.state.SetMode(mode)
	if p.started && prev != mode {
		p.startMode(mode)
	}
	p.notify(Update{Page: PageFuel, Resource: "mode", At: p.now()})
}

// Select chooses the vehicle of the individual view
func (p *FuelPage) Select(deviceID string) {
	p.mu.Lock()
	p.state.Select(deviceID)
	p.vehicleSub.SetParams(deviceID)
	p.mu.Unlock()
	p.notify(Update{Page: PageFuel, Resource: "selection", At: p.now()})
}

// selectDefault selects deviceID only while nothing is selected
func (p *FuelPage) selectDefault(deviceID string) {
	p.mu.Lock()
	if p.state.Selected() != "" {
		p.mu.Unlock()
		return
	}
	p.state.Select(deviceID)
	p.vehicleSub.SetParams(deviceID)
	p.mu.Unlock()
	p.notify(Update{Page: PageFuel, Resource: "selection", At: p.now()})
}

// Retry fetches resource immediately
func (p *FuelPage) Retry(resource string) error {
	if !p.subs.Refresh(resource) {
		return fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	return nil
}

// Stats returns the subscription counters
func (p *FuelPage) Stats() []poller.Stats {
	return p.subs.Stats()
}

// Selection returns a copy of the page's view state
func (p *FuelPage) Selection() view.Selection {
	return p.state.Snapshot()
}

// GlobalFuelView is the rendered fleet analysis
type GlobalFuelView struct {
	CurrentMonthCost  string                 `json:"current_month_cost"`
	PreviousMonthCost string                 `json:"previous_month_cost"`
	Savings           string                 `json:"savings"`
	SavingsPercent    string                 `json:"savings_percent"`
	TotalWaste        string                 `json:"total_waste"`
	Waste             []view.WasteBar        `json:"waste"`
	TopDrivers        []view.DriverRow       `json:"top_drivers"`
	CriticalAlerts    []models.CriticalAlert `json:"critical_alerts"`
	ROI               models.ROIData         `json:"roi"`
	Payback           string                 `json:"payback"`
}

func newGlobalFuelView(f *models.FuelEconomyDashboard) *GlobalFuelView {
	if f == nil {
		return nil
	}
	roi := view.ROIOrDefault(f.ROIData)
	g := &GlobalFuelView{
		CurrentMonthCost:  view.FormatBRL(f.CurrentMonthCost),
		PreviousMonthCost: view.FormatBRL(f.PreviousMonthCost),
		Savings:           view.FormatBRL(f.Savings),
		SavingsPercent:    fmt.Sprintf("%.1f%%", f.SavingsPercent),
		Waste:             view.WasteBars(f.WasteBreakdown),
		TopDrivers:        view.DriverRows(view.TopDrivers(f.TopDrivers, 5)),
		CriticalAlerts:    f.CriticalAlerts,
		ROI:               roi,
		Payback:           fmt.Sprintf("%.1f meses", roi.PaybackMonths),
	}
	if f.WasteBreakdown != nil {
		g.TotalWaste = view.FormatBRL(f.WasteBreakdown.TotalWaste)
	}
	return g
}

// VehicleFuelView is the rendered per-vehicle analysis
type VehicleFuelView struct {
	DeviceID          string          `json:"device_id"`
	PeriodHours       int             `json:"period_hours"`
	HasData           bool            `json:"has_data"`
	Message           string          `json:"message,omitempty"`
	TotalWaste        string          `json:"total_waste,omitempty"`
	IdleHours         string          `json:"idle_hours,omitempty"`
	MonthlyProjection string          `json:"monthly_projection,omitempty"`
	Waste             []view.WasteBar `json:"waste,omitempty"`
}

func newVehicleFuelView(v *models.VehicleAnalysis) *VehicleFuelView {
	if v == nil {
		return nil
	}
	out := &VehicleFuelView{
		DeviceID:    v.DeviceID,
		PeriodHours: v.PeriodHours,
		Message:     v.Message,
		HasData:     v.WasteBreakdown != nil,
	}
	if w := v.WasteBreakdown; w != nil {
		out.TotalWaste = view.FormatBRL(w.TotalWaste)
		out.IdleHours = fmt.Sprintf("%.1fh", w.IdleHours)
		out.MonthlyProjection = view.FormatBRL(view.MonthlyProjection(w))
		out.Waste = view.WasteBars(w)
	}
	return out
}

// FuelSnapshot is everything the fuel page renders. Only the sections of the
// current mode are filled.
type FuelSnapshot struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Selection   view.Selection             `json:"selection"`
	Devices     Section[[]string]          `json:"devices"`
	Global      *Section[*GlobalFuelView]  `json:"global,omitempty"`
	Ranking     *Section[[]view.DriverRow] `json:"ranking,omitempty"`
	Vehicle     *Section[*VehicleFuelView] `json:"vehicle,omitempty"`
}

// Snapshot derives the page from the current slots and view state
func (p *FuelPage) Snapshot() FuelSnapshot {
	sel := p.state.Snapshot()
	snap := FuelSnapshot{
		GeneratedAt: p.now(),
		Selection:   sel,
		Devices: MapSection(p.devices.Section(), func(ds []models.DeviceStatus) []string {
			ids := make([]string, 0, len(ds))
			for _, d := range ds {
				ids = append(ids, d.DeviceID)
			}
			return ids
		}),
	}

	if sel.Mode == view.ModeIndividual {
		vehicle := MapSection(p.vehicle.Section(), newVehicleFuelView)
		snap.Vehicle = &vehicle
		return snap
	}

	global := MapSection(p.global.Section(), newGlobalFuelView)
	ranking := MapSection(p.ranking.Section(), view.DriverRows)
	snap.Global = &global
	snap.Ranking = &ranking
	return snap
}
