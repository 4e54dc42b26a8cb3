package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-city-tracker/internal/config"
	"github.com/i474232898/weather-city-tracker/internal/persistence"
	"github.com/i474232898/weather-city-tracker/internal/store"
	"github.com/i474232898/weather-city-tracker/internal/weather"
	"github.com/i474232898/weather-city-tracker/internal/weather/providers"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "weather-city-tracker",
	Short: "Track weather forecasts for a list of cities",
	Long: `weather-city-tracker fetches OpenWeatherMap forecasts for the cities you track,
averages them per day, and keeps the list in a local SQLite database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (overrides DB_PATH)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// app bundles everything a command needs; Close flushes the pending save.
type app struct {
	cfg     *config.AppConfig
	kv      *persistence.SQLiteKV
	store   *store.CityStore
	service *weather.Service
}

// openApp loads config, opens the database and restores the persisted city list.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	kv, err := persistence.NewSQLiteKV(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	adapter := persistence.NewAdapter(kv, persistence.JSONCodec{})

	saved, err := adapter.LoadState(ctx)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("restoring cities: %w", err)
	}

	cityStore := store.NewCityStore(adapter, store.Options{
		Dedupe: cfg.DedupeCities,
		Units:  saved.Units,
	})
	if err := cityStore.Restore(ctx, saved.Cities); err != nil {
		cityStore.Close()
		kv.Close()
		return nil, err
	}

	// Shared HTTP client for outbound forecast calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	client := providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, providers.OpenWeatherOptions{
		BaseURL: cfg.OpenWeatherBaseURL,
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.FetchMaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		RatePerSecond: cfg.FetchRatePerSec,
		Burst:         cfg.FetchBurst,
	})

	return &app{
		cfg:     cfg,
		kv:      kv,
		store:   cityStore,
		service: weather.NewService(cityStore, client),
	}, nil
}

func (a *app) Close() error {
	a.store.Close()
	return a.kv.Close()
}
