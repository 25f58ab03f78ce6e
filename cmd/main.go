package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"monitora-dashboard/internal/charts"
	"monitora-dashboard/internal/client"
	"monitora-dashboard/internal/config"
	"monitora-dashboard/internal/db"
	"monitora-dashboard/internal/models"
	"monitora-dashboard/internal/view"

	"github.com/spf13/cobra"
)

var (
	apiURL       string
	outputFormat string
	timeout      time.Duration
	verbose      bool
	cfg          *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "monitora",
		Short: "MonitoraEngine dashboard - live fleet telemetry and fuel economy",
		Long: `A dashboard for the MonitoraEngine telemetry service. 'serve' polls the
service and exposes the live dashboard and fuel economy pages over HTTP and
websocket; the other commands fetch a single resource and print it.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			cfg = config.Load()
			if apiURL != "" {
				cfg.APIURL = apiURL
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Telemetry service URL (overrides MONITORA_API_URL)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout for one-shot commands")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	// Add commands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(latestCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(fuelCmd())
	rootCmd.AddCommand(rankingCmd())
	rootCmd.AddCommand(chartCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(nearbyCmd())
	rootCmd.AddCommand(updatesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() (*client.Client, error) {
	return client.New(cfg.APIURL)
}

// fetchOnce runs one client call under the --timeout deadline
func fetchOnce(cmd *cobra.Command, call func(ctx context.Context, c *client.Client) error) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return call(ctx, c)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(v *float64, format string) string {
	if v == nil {
		return "---"
	}
	return fmt.Sprintf(format, *v)
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the telemetry service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchOnce(cmd, func(ctx context.Context, c *client.Client) error {
				h, err := c.Health(ctx)
				if err != nil {
					return err
				}
				if outputFormat == "json" {
					return printJSON(h)
				}
				fmt.Printf("%s: %s %s\n", c.BaseURL(), h.Status, h.Version)
				return nil
			})
		},
	}
}

func devicesCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices and their last known state",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := view.ParseFilter(filter)
			if err != nil {
				return err
			}
			return fetchOnce(cmd, func(ctx context.Context, c *client.Client) error {
				devices, err := c.Devices(ctx)
				if err != nil {
					return err
				}
				shown := view.FilterDevices(devices, f)
				if outputFormat == "json" {
					return printJSON(shown)
				}
				printDevices(devices, shown, "", time.Now())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "Filter (all, online, offline)")
	return cmd
}

func printDevices(all, shown []models.DeviceStatus, selected string, now time.Time) {
	fmt.Printf("%d devices · %d online · %d offline\n\n", len(all), view.CountOnline(all), view.CountOffline(all))
	fmt.Printf("  %-16s %-8s %-12s %-8s\n", "Device", "Status", "Speed", "Seen")
	for _, r := range view.DeviceRows(shown, selected, now) {
		status := "offline"
		if r.Online {
			status = "online"
		}
		marker := " "
		if r.Selected {
			marker = ">"
		}
		fmt.Printf("%s %-16s %-8s %-12s %-8s\n", marker, r.DeviceID, status, fmt.Sprintf("%.1f km/h", r.Speed), r.LastSeen)
	}
	if len(shown) == 0 {
		fmt.Println("  Nenhum device encontrado")
	}
}

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest [device_id]",
		Short: "Show the latest event of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchOnce(cmd, func(ctx context.Context, c *client.Client) error {
				e, err := c.DeviceLatest(ctx, args[0])
				if err != nil {
					return err
				}
				if outputFormat == "json" {
					return printJSON(e)
				}
				printEvents([]models.TelemetryEvent{*e})
				return nil
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	var minutes, limit int

	cmd := &cobra.Command{
		Use:   "events [device_id]",
		Short: "Show the recent events of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchOnce(cmd, func(ctx context.Context, c *client.Client) error {
				events, err := c.DeviceEvents(ctx, args[0], minutes, limit)
				if err != nil {
					return err
				}
				if outputFormat == "json" {
					return printJSON(events)
				}
				fmt.Printf("Found %d events in the last %d minutes\n\n", len(events), minutes)
				printEvents(events)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&minutes, "minutes", "m", client.DefaultEventsMinutes, "Window in minutes")
	cmd.Flags().IntVarP(&limit, "limit", "l", client.DefaultEventsLimit, "Maximum events to return")
	return cmd
}

func printEvents(events []models.TelemetryEvent) {
	for _, e := range events {
		fmt.Printf("[%s] %s | Pos: %s,%s | Speed: %s | Temp: %s | Battery: %s\n",
			e.TS.Local().Format("2006-01-02 15:04:05"), e.DeviceID,
			optional(e.Lat, "%.6f"), optional(e.Lon, "%.6f"),
			optional(e.SpeedKmh, "%.1f km/h"), optional(e.EngineTempC, "%.1f°C"),
			optional(e.BatteryV, "%.1fV"))
	}
}

func metricsCmd() *cobra.Command {
	var minutes int

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show the fleet summary cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchOnce(cmd, func(ctx context.Context, c *client.Client) error {
				m, err := c.MetricsSummary(ctx, minutes)
				if err != nil {
					return err
				}
				if outputFormat == "json" {
					return printJSON(m)
				}
				for _, card := range view.MetricCards(m) {
					fmt.Printf("  %-18s %s\n", card.Title, card.Value)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&minutes, "minutes", "m", client.DefaultMetricsMinutes, "Average speed window in minutes")
	return cmd
}

func alertsCmd() *cobra.Command {
	var minutes int

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show recent alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchOnce(cmd, func(ctx context.Context, c *client.Client) error {
				alerts, err := c.Alerts(ctx, minutes)
				if err != nil {
					return err
				}
				if outputFormat == "json" {
					return printJSON(alerts)
				}
				if len(alerts) == 0 {
					fmt.Println("Sem alertas")
				}
				now := time.Now()
				for _, a := range alerts {
					fmt.Printf("⚠️  %-12s %-10s %-8s %s (%.1f)\n", a.DeviceID, view.FormatTimeAgo(a.TS.Time, now), a.AlertType, a.Message, a.Value)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&minutes, "minutes", "m", client.DefaultAlertsMinutes, "Window in minutes")
	return cmd
}

func fuelCmd() *cobra.Command {
	var deviceID string
	var hours int

	cmd := &cobra.Command{
		Use:   "fuel",
		Short: "Show the fuel economy analysis of the fleet or one vehicle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchOnce(cmd, func(ctx context.Context, c *client.Client) error {
				if deviceID != "" {
					v, err := c.VehicleFuel(ctx, deviceID, hours)
					if err != nil {
						return err
					}
					if outputFormat == "json" {
						return printJSON(v)
					}
					printVehicleFuel(v)
					return nil
				}

				f, err := c.FuelDashboard(ctx, hours)
				if err != nil {
					return err
				}
				if outputFormat == "json" {
					return printJSON(f)
				}
				printFleetFuel(f)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "Analyse a single vehicle")
	cmd.Flags().IntVarP(&hours, "hours", "H", client.DefaultFuelHours, "Analysis window in hours")
	return cmd
}

func printWaste(w *models.WasteBreakdown) {
	for _, b := range view.WasteBars(w) {
		fmt.Printf("  %-20s %14s  %5.1f%%  %s\n", b.Label, b.Cost, b.Percentage, b.Detail)
	}
}

func printFleetFuel(f *models.FuelEconomyDashboard) {
	roi := view.ROIOrDefault(f.ROIData)

	fmt.Println("⛽ Economia de Combustível")
	fmt.Println("=========================")
	fmt.Printf("  Mês atual:     %s\n", view.FormatBRL(f.CurrentMonthCost))
	fmt.Printf("  Mês anterior:  %s\n", view.FormatBRL(f.PreviousMonthCost))
	fmt.Printf("  Economia:      %s (%.1f%%)\n", view.FormatBRL(f.Savings), f.SavingsPercent)
	if f.WasteBreakdown != nil {
		fmt.Printf("  Desperdício:   %s\n\n", view.FormatBRL(f.WasteBreakdown.TotalWaste))
		printWaste(f.WasteBreakdown)
	}
	fmt.Printf("\n  ROI: %.1f%% · payback %.1f meses\n", roi.ROIPercent, roi.PaybackMonths)

	if len(f.CriticalAlerts) > 0 {
		fmt.Println("\nAlertas críticos:")
		for _, a := range f.CriticalAlerts {
			fmt.Printf("  %-12s %-10s %s %s\n", a.DeviceID, a.Type, view.FormatBRL(a.Cost), a.Message)
		}
	}
	if len(f.TopDrivers) > 0 {
		fmt.Println("\nMelhores motoristas:")
		printDrivers(view.TopDrivers(f.TopDrivers, 5))
	}
}

func printVehicleFuel(v *models.VehicleAnalysis) {
	fmt.Printf("⛽ %s (%dh)\n", v.DeviceID, v.PeriodHours)
	if v.WasteBreakdown == nil {
		msg := v.Message
		if msg == "" {
			msg = "Sem dados suficientes"
		}
		fmt.Println("  " + msg)
		return
	}
	fmt.Printf("  Desperdício:     %s\n", view.FormatBRL(v.WasteBreakdown.TotalWaste))
	fmt.Printf("  Motor ocioso:    %.1fh\n", v.WasteBreakdown.IdleHours)
	fmt.Printf("  Projeção mensal: %s\n\n", view.FormatBRL(view.MonthlyProjection(v.WasteBreakdown)))
	printWaste(v.WasteBreakdown)
}

func printDrivers(drivers []models.DriverScore) {
	fmt.Printf("  %-4s %-14s %-6s %-10s %-10s %-8s %s\n", "#", "Motorista", "Score", "Status", "Consumo", "Eventos", "Desperdício")
	for _, r := range view.DriverRows(drivers) {
		fmt.Printf("  %-4d %-14s %-6d %-10s %-10s %-8d %s\n", r.Position, r.DriverID, r.Score, r.Badge, r.AvgConsumption, r.HarshEvents, r.EstimatedWaste)
	}
}

func rankingCmd() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Show the driver ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchOnce(cmd, func(ctx context.Context, c *client.Client) error {
				drivers, err := c.DriverRanking(ctx, hours)
				if err != nil {
					return err
				}
				if outputFormat == "json" {
					return printJSON(view.DriverRows(drivers))
				}
				printDrivers(drivers)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&hours, "hours", "H", client.DefaultRankingHours, "Ranking window in hours")
	return cmd
}

func chartCmd() *cobra.Command {
	var metric string
	var out string
	var minutes int

	cmd := &cobra.Command{
		Use:   "chart [device_id]",
		Short: "Render a speed, temperature or battery chart to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := charts.ParseMetric(metric)
			if err != nil {
				return err
			}
			rng, err := view.ParseTimeRange(minutes)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("%s_%s.png", args[0], m)
			}

			return fetchOnce(cmd, func(ctx context.Context, c *client.Client) error {
				events, err := c.DeviceEvents(ctx, args[0], rng.Minutes(), cfg.EventsLimit)
				if err != nil {
					return err
				}

				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("error creating output file: %w", err)
				}
				defer file.Close()

				if err := charts.Render(file, args[0], m, view.ChartSeries(events)); err != nil {
					return err
				}
				fmt.Printf("✓ %s chart of %s (%s, %d events) written to %s\n", m.Title(), args[0], rng.Label(), len(events), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&metric, "metric", "m", "speed", "Metric (speed, temp, battery)")
	cmd.Flags().StringVar(&out, "out", "", "Output PNG path (default <device>_<metric>.png)")
	cmd.Flags().IntVar(&minutes, "minutes", 60, "Window in minutes (15, 60, 360)")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	var startTime string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history [device_id]",
		Short: "Show snapshots recorded by 'serve'",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = cfg.HistoryDB
			}
			database, err := db.New(dbPath)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			if len(args) == 0 {
				return printHistoryStats(database)
			}

			q := models.HistoryQuery{DeviceID: args[0], Limit: limit}
			if startTime != "" {
				t, err := models.ParseTime(startTime)
				if err != nil {
					return fmt.Errorf("invalid start time: %w", err)
				}
				q.StartTime = t
			}

			start := time.Now()
			results, err := database.QueryHistory(q)
			if err != nil {
				return fmt.Errorf("query error: %w", err)
			}
			elapsed := time.Since(start)

			if outputFormat == "json" {
				return printJSON(results)
			}
			fmt.Printf("Found %d snapshots (query time: %v)\n\n", len(results), elapsed)
			for _, s := range results {
				status := "offline"
				if s.Online {
					status = "online"
				}
				fmt.Printf("[%s] %s %-7s | Pos: %s,%s | Speed: %s | Temp: %s | Battery: %s\n",
					s.LastSeen.Local().Format("2006-01-02 15:04:05"), s.DeviceID, status,
					optional(s.Lat, "%.6f"), optional(s.Lon, "%.6f"),
					optional(s.Speed, "%.1f km/h"), optional(s.Temp, "%.1f°C"),
					optional(s.Battery, "%.1fV"))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "Maximum snapshots to return")
	cmd.Flags().StringVarP(&startTime, "start", "s", "", "Start time (RFC3339)")
	cmd.Flags().StringVar(&dbPath, "db", "", "History database (overrides HISTORY_DB)")
	return cmd
}

func printHistoryStats(database *db.Database) error {
	stats, err := database.GetStats()
	if err != nil {
		return fmt.Errorf("error getting stats: %w", err)
	}
	ids, err := database.ListDevices()
	if err != nil {
		return err
	}
	failures, err := database.RecentFailures(5)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(map[string]interface{}{"stats": stats, "devices": ids, "recent_failures": failures})
	}

	fmt.Println("📊 Snapshot History")
	fmt.Println("===================")
	fmt.Printf("  Devices:        %v\n", stats["total_devices"])
	fmt.Printf("  Snapshots:      %v\n", stats["total_snapshots"])
	fmt.Printf("  Poll failures:  %v\n", stats["poll_failures"])
	for _, id := range ids {
		fmt.Printf("    %s\n", id)
	}
	if len(failures) > 0 {
		fmt.Println("\nRecent failures:")
		for _, f := range failures {
			fmt.Printf("  [%s] %s\n", f.OccurredAt.Local().Format("2006-01-02 15:04:05"), f.Message)
		}
	}
	return nil
}
