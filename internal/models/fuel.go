package models

// WasteBreakdown splits estimated fuel waste into idle, aggressive driving and routing
type WasteBreakdown struct {
	IdleCost             float64 `json:"idle_cost"`
	IdleHours            float64 `json:"idle_hours"`
	IdlePercentage       float64 `json:"idle_percentage"`
	AggressiveCost       float64 `json:"aggressive_cost"`
	AggressiveEvents     int     `json:"aggressive_events"`
	AggressivePercentage float64 `json:"aggressive_percentage"`
	RouteCost            float64 `json:"route_cost"`
	RouteExtraKM         float64 `json:"route_extra_km"`
	RoutePercentage      float64 `json:"route_percentage"`
	TotalWaste           float64 `json:"total_waste"`
}

// DriverScore is one entry of the driver ranking
type DriverScore struct {
	DriverID       string  `json:"driver_id"`
	Score          int     `json:"score"`           // 0-100
	AvgConsumption float64 `json:"avg_consumption"` // km/L
	HarshEvents    int     `json:"harsh_events"`
	IdleHours      float64 `json:"idle_hours"`
	EstimatedWaste float64 `json:"estimated_waste"`
	Rank           *int    `json:"rank,omitempty"`
}

// CriticalAlert is a high-cost waste finding for a single vehicle
type CriticalAlert struct {
	DeviceID string  `json:"device_id"`
	Type     string  `json:"type"` // idle, aggressive, mechanical
	Message  string  `json:"message"`
	Cost     float64 `json:"cost"`
}

// ROIData is the payback projection for the monitoring system investment
type ROIData struct {
	PaybackMonths  float64 `json:"payback_months"`
	AnnualSavings  float64 `json:"annual_savings"`
	ROIPercent     float64 `json:"roi_percent"`
	SystemCost     float64 `json:"system_cost"`
	MonthlySavings float64 `json:"monthly_savings"`
}

// FuelEconomyDashboard is the fleet-wide fuel analysis
type FuelEconomyDashboard struct {
	CurrentMonthCost  float64         `json:"current_month_cost"`
	PreviousMonthCost float64         `json:"previous_month_cost"`
	Savings           float64         `json:"savings"`
	SavingsPercent    float64         `json:"savings_percent"`
	WasteBreakdown    *WasteBreakdown `json:"waste_breakdown"`
	TopDrivers        []DriverScore   `json:"top_drivers"`
	CriticalAlerts    []CriticalAlert `json:"critical_alerts"`
	ROIData           *ROIData        `json:"roi_data"`
}

// FuelConfig is the per-vehicle fuel profile the service used for an analysis
type FuelConfig struct {
	TankCapacity      float64 `json:"tank_capacity"`
	ExpectedKML       float64 `json:"expected_kml"`
	FuelPrice         float64 `json:"fuel_price"`
	IdleConsumptionLH float64 `json:"idle_consumption_lh"`
}

// VehicleAnalysis is the fuel analysis of a single vehicle. WasteBreakdown is nil
// while the vehicle has not reported enough telemetry.
type VehicleAnalysis struct {
	DeviceID       string          `json:"device_id"`
	PeriodHours    int             `json:"period_hours"`
	Message        string          `json:"message,omitempty"`
	WasteBreakdown *WasteBreakdown `json:"waste_breakdown"`
	Config         *FuelConfig     `json:"config,omitempty"`
}
