package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"daybrief/internal/agg"
	"daybrief/internal/clock"
	"daybrief/internal/config"
	"daybrief/internal/ics"
	appLog "daybrief/internal/log"
	"daybrief/internal/recurring"
	"daybrief/internal/store"
	"daybrief/internal/summarize"
	"daybrief/internal/synth"
	"daybrief/internal/weather"
	"daybrief/internal/web"
)

var (
	configPath string
	verbose    bool
)

func main() {
	// Secrets (API keys) come from the environment; a local .env is
	// optional and its absence is fine.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "daybrief",
		Short: "Household daily planning snapshot service",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				appLog.SetLevel(appLog.LevelDebug)
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./daybrief.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(serveCmd(), generateCmd(), snapshotCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything a command needs after wiring.
type app struct {
	cfg    *config.Config
	clk    *clock.Clock
	st     *store.Store
	runner *synth.Runner
}

func (a *app) close() {
	if err := a.st.Close(); err != nil {
		appLog.Error("closing store failed", err)
	}
}

func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clk := clock.New(loc)

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	aggregator := agg.New(ics.NewFetcher(cfg.CacheDir), loc)
	engine := recurring.NewEngine(st)

	var weatherProvider synth.WeatherProvider
	if key := os.Getenv("DAYBRIEF_WEATHER_API_KEY"); key != "" {
		weatherProvider = weather.NewClient(key, cfg.Weather.Units)
	} else {
		appLog.Warn("DAYBRIEF_WEATHER_API_KEY unset, snapshots will have no forecast")
	}

	var narrator synth.NarrativeProvider
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		s, err := summarize.New(cfg.Summarizer)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("summarizer: %w", err)
		}
		narrator = s
	} else {
		appLog.Warn("ANTHROPIC_API_KEY unset, snapshots will have no narrative")
	}

	runner := synth.NewRunner(cfg, clk, st, aggregator, engine, weatherProvider, narrator)

	appLog.Info("effective config",
		"timezone", cfg.Timezone,
		"horizon_days", cfg.HorizonDays,
		"dinner_days", cfg.DinnerDays,
		"generate_after", cfg.GenerateAfter,
		"db_path", cfg.DBPath,
	)

	return &app{cfg: cfg, clk: clk, st: st, runner: runner}, nil
}

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			if listen != "" {
				a.cfg.Listen = listen
			}

			scheduler, err := synth.NewScheduler(a.runner, a.st, a.clk, a.cfg.CheckCron, a.cfg.GenerateAfter)
			if err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			scheduler.Start()
			defer scheduler.Stop()

			srv := &http.Server{
				Addr:    a.cfg.Listen,
				Handler: web.NewServer(a.cfg, a.st, a.runner).Handler(),
			}

			errCh := make(chan error, 1)
			go func() {
				appLog.Info("HTTP server listening", "addr", a.cfg.Listen)
				errCh <- srv.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				appLog.Info("signal received, shutting down", "signal", sig.String())
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Run one synthesis pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			snap, err := a.runner.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("snapshot %d for %s written and activated\n", snap.ID, snap.Date)
			return nil
		},
	}
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the active snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			snap, err := a.st.ActiveSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			if snap == nil {
				return errors.New("no snapshot generated yet")
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}
