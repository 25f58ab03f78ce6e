package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"monitora-dashboard/internal/api"
	"monitora-dashboard/internal/cache"
	"monitora-dashboard/internal/client"
	"monitora-dashboard/internal/dashboard"
	"monitora-dashboard/internal/db"
	"monitora-dashboard/internal/models"
	"monitora-dashboard/internal/view"

	"github.com/spf13/cobra"
)

// sink persists applied poll results off the poll goroutines: device snapshots and
// failures go to the history database, last-good payloads to the redis mirror.
type sink struct {
	dash    *dashboard.Dashboard
	history *db.Database
	mirror  *cache.RedisCache
	updates chan dashboard.Update
	done    chan struct{}
}

func newSink(dash *dashboard.Dashboard, history *db.Database, mirror *cache.RedisCache) *sink {
	return &sink{
		dash:    dash,
		history: history,
		mirror:  mirror,
		updates: make(chan dashboard.Update, 64),
		done:    make(chan struct{}),
	}
}

// Listen is a dashboard.Listener. Updates are dropped when the sink falls behind.
func (s *sink) Listen(u dashboard.Update) {
	select {
	case s.updates <- u:
	default:
		slog.Warn("sink queue full, dropping update", "page", u.Page, "resource", u.Resource)
	}
}

// Run handles updates until ctx is done
func (s *sink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.updates:
			s.handle(ctx, u)
		}
	}
}

// Wait blocks until Run has returned
func (s *sink) Wait() {
	<-s.done
}

func (s *sink) handle(ctx context.Context, u dashboard.Update) {
	if u.Err != nil {
		if s.history != nil {
			f := models.PollFailure{Resource: u.Resource, Message: client.Message(u.Err), OccurredAt: u.At}
			if err := s.history.RecordFailure(f); err != nil {
				slog.Error("failed to record poll failure", "resource", u.Resource, "error", err)
			}
		}
		return
	}
	if u.Page != dashboard.PageDashboard {
		return
	}

	if u.Resource == client.ResourceDevices {
		devices, ok := s.dash.Devices()
		if !ok {
			return
		}
		if s.history != nil {
			n, err := s.history.RecordDevices(devices, u.At)
			if err != nil {
				slog.Error("failed to record device snapshots", "error", err)
			} else if n > 0 {
				slog.Debug("device snapshots recorded", "count", n)
			}
		}
		if s.mirror != nil {
			if err := s.mirror.StorePositions(ctx, devices); err != nil {
				slog.Warn("failed to index positions", "error", err)
			}
		}
	}

	if s.mirror == nil {
		return
	}
	data, ok := s.dash.Payload(u.Resource)
	if !ok {
		return
	}
	if err := s.mirror.Store(ctx, u.Resource, data); err != nil {
		slog.Warn("failed to mirror snapshot", "resource", u.Resource, "error", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serveCmd runs the polling dashboard and its HTTP server
func serveCmd() *cobra.Command {
	var addr string
	var historyPath string
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the telemetry service and serve the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if historyPath != "" {
				cfg.HistoryDB = historyPath
			}

			c, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			opts := dashboard.OptionsFromConfig(cfg)
			dash := dashboard.New(c, opts)
			fuel := dashboard.NewFuelPage(c, opts)

			var database *db.Database
			var history api.History
			if !noHistory {
				database, err = db.New(cfg.HistoryDB)
				if err != nil {
					return fmt.Errorf("database error: %w", err)
				}
				defer database.Close()
				history = database
			}

			var mirror *cache.RedisCache
			if cfg.RedisAddr != "" {
				mirror, err = cache.NewRedisCache(ctx, cfg)
				if err != nil {
					slog.Warn("redis mirror disabled", "addr", cfg.RedisAddr, "error", err)
				} else {
					defer mirror.Close()
					dash.Warm(ctx, mirror)
				}
			}

			if database != nil || mirror != nil {
				sk := newSink(dash, database, mirror)
				dash.OnUpdate(sk.Listen)
				fuel.OnUpdate(sk.Listen)
				go sk.Run(ctx)
				// runs before the deferred closes of the database and the mirror
				defer func() {
					stop()
					sk.Wait()
				}()
			}

			server := api.NewServer(dash, fuel, history)
			go server.Run(ctx)

			dash.Start(ctx)
			fuel.Start(ctx)
			defer dash.Close()
			defer fuel.Close()

			httpServer := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- httpServer.ListenAndServe()
			}()

			slog.Info("dashboard server started",
				"addr", cfg.ListenAddr,
				"api", c.BaseURL(),
				"history", cfg.HistoryDB,
				"history_enabled", database != nil,
				"redis_enabled", mirror != nil,
			)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides LISTEN_ADDR)")
	cmd.Flags().StringVar(&historyPath, "db", "", "History database (overrides HISTORY_DB)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record device snapshots")
	return cmd
}

// watchCmd renders the live dashboard in the terminal
func watchCmd() *cobra.Command {
	var filter string
	var deviceID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live device list and summary in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := view.ParseFilter(filter)
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			dash := dashboard.New(c, dashboard.OptionsFromConfig(cfg))
			dash.SetFilter(f)
			if deviceID != "" {
				dash.Select(deviceID)
			}

			redraw := make(chan struct{}, 1)
			dash.OnUpdate(func(dashboard.Update) {
				select {
				case redraw <- struct{}{}:
				default:
				}
			})

			dash.Start(ctx)
			defer dash.Close()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-redraw:
					renderWatch(dash.Snapshot(), dash)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "Filter (all, online, offline)")
	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "Select a device")
	return cmd
}

func renderWatch(snap dashboard.Snapshot, dash *dashboard.Dashboard) {
	fmt.Print("\033[H\033[2J")
	fmt.Printf("MonitoraEngine · %s · filtro %s\n\n", snap.GeneratedAt.Local().Format("15:04:05"), snap.Selection.Filter)

	switch snap.Metrics.Status {
	case dashboard.StatusLoading:
		fmt.Println("  Carregando métricas...")
	case dashboard.StatusFailed:
		fmt.Println("  " + snap.Metrics.Error)
	default:
		for _, card := range snap.Metrics.Data {
			fmt.Printf("  %-18s %s\n", card.Title, card.Value)
		}
		if snap.Metrics.Error != "" {
			fmt.Println("  (" + snap.Metrics.Error + ")")
		}
	}
	fmt.Println()

	if snap.Devices.Status == dashboard.StatusFailed {
		fmt.Println("  " + snap.Devices.Error)
	} else {
		all, _ := dash.Devices()
		printDevices(all, view.FilterDevices(all, snap.Selection.Filter), snap.Selection.DeviceID, snap.GeneratedAt)
	}

	if m := snap.Map.Marker; m != nil {
		fmt.Printf("\n%s @ %.5f,%.5f · %s · %s · %s\n", m.DeviceID, m.Position.Lat, m.Position.Lon, m.Popup.Speed, m.Popup.Temp, m.Popup.Battery)
	}
	if snap.Charts != nil {
		fmt.Printf("%d pontos (%s)\n", len(snap.Charts.Data), snap.Selection.Range.Label())
	}

	if len(snap.Alerts.Data) > 0 {
		fmt.Println("\nAlertas:")
		for _, a := range snap.Alerts.Data {
			fmt.Printf("  ⚠️  %-12s %-8s %s\n", a.DeviceID, a.AlertType, a.Message)
		}
	}
}

func nearbyCmd() *cobra.Command {
	var lat, lon, radius float64

	cmd := &cobra.Command{
		Use:   "nearby",
		Short: "List devices mirrored to redis near a point",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.RedisAddr == "" {
				return errors.New("REDIS_ADDR is not set")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			mirror, err := cache.NewRedisCache(ctx, cfg)
			if err != nil {
				return err
			}
			defer mirror.Close()

			ids, err := mirror.Nearby(ctx, lat, lon, radius)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(ids)
			}
			fmt.Printf("%d devices within %.1f km of %.5f,%.5f\n", len(ids), radius, lat, lon)
			for _, id := range ids {
				fmt.Println("  " + id)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", view.DefaultCenter.Lat, "Latitude")
	cmd.Flags().Float64Var(&lon, "lon", view.DefaultCenter.Lon, "Longitude")
	cmd.Flags().Float64VarP(&radius, "radius", "r", 5, "Radius in km")
	return cmd
}

func updatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "updates",
		Short: "Follow snapshot updates published by a running 'serve'",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.RedisAddr == "" {
				return errors.New("REDIS_ADDR is not set")
			}
			ctx, stop := signalContext()
			defer stop()

			mirror, err := cache.NewRedisCache(ctx, cfg)
			if err != nil {
				return err
			}
			defer mirror.Close()

			notices, err := mirror.Subscribe(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Listening on %s...\n", cache.UpdateChannel)
			for resource := range notices {
				fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), resource)
			}
			return nil
		},
	}
}
