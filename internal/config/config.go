package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string

	// Outbound forecast calls.
	HTTPTimeout     time.Duration
	FetchMaxRetries int     // 0 = single attempt
	FetchRatePerSec float64 // 0 = unlimited
	FetchBurst      int

	// RefreshInterval controls how often tracked cities are re-fetched (0 = disabled).
	RefreshInterval time.Duration

	DBPath       string
	Port         string
	DedupeCities bool

	MQTT MQTTConfig
}

// MQTTConfig describes the optional broker carrying "update weather" triggers.
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// fileConfig mirrors AppConfig in the YAML file; every field is optional.
type fileConfig struct {
	OpenWeatherAPIKey  string   `yaml:"openweather_api_key,omitempty"`
	OpenWeatherBaseURL string   `yaml:"openweather_base_url,omitempty"`
	HTTPTimeout        string   `yaml:"http_timeout,omitempty"`
	FetchMaxRetries    *int     `yaml:"fetch_max_retries,omitempty"`
	FetchRatePerSec    *float64 `yaml:"fetch_rate_per_sec,omitempty"`
	FetchBurst         *int     `yaml:"fetch_burst,omitempty"`
	RefreshInterval    string   `yaml:"refresh_interval,omitempty"`
	DBPath             string   `yaml:"db_path,omitempty"`
	Port               string   `yaml:"port,omitempty"`
	DedupeCities       *bool    `yaml:"dedupe_cities,omitempty"`
	MQTT               struct {
		Enabled  *bool  `yaml:"enabled,omitempty"`
		Broker   string `yaml:"broker,omitempty"`
		Topic    string `yaml:"topic,omitempty"`
		ClientID string `yaml:"client_id,omitempty"`
		Username string `yaml:"username,omitempty"`
		Password string `yaml:"password,omitempty"`
	} `yaml:"mqtt,omitempty"`
}

// DefaultConfigPath returns the default config file path (local directory).
func DefaultConfigPath() string {
	return "config.yaml"
}

// Load builds the configuration from defaults, the optional YAML file at path,
// and the environment (a .env file is loaded first when present). Environment wins.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := defaults()

	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		OpenWeatherBaseURL: "https://api.openweathermap.org/data/2.5",
		HTTPTimeout:        10 * time.Second,
		FetchRatePerSec:    1,
		FetchBurst:         5,
		RefreshInterval:    30 * time.Minute,
		DBPath:             "weather.db",
		Port:               "8080",
		MQTT: MQTTConfig{
			Topic:    "weather/update",
			ClientID: "weather-city-tracker",
		},
	}
}

func applyFile(cfg *AppConfig, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	setString(&cfg.OpenWeatherAPIKey, fc.OpenWeatherAPIKey)
	setString(&cfg.OpenWeatherBaseURL, fc.OpenWeatherBaseURL)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.Port, fc.Port)
	if fc.HTTPTimeout != "" {
		d, err := time.ParseDuration(fc.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("invalid http_timeout: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	if fc.RefreshInterval != "" {
		d, err := time.ParseDuration(fc.RefreshInterval)
		if err != nil {
			return fmt.Errorf("invalid refresh_interval: %w", err)
		}
		cfg.RefreshInterval = d
	}
	if fc.FetchMaxRetries != nil {
		cfg.FetchMaxRetries = *fc.FetchMaxRetries
	}
	if fc.FetchRatePerSec != nil {
		cfg.FetchRatePerSec = *fc.FetchRatePerSec
	}
	if fc.FetchBurst != nil {
		cfg.FetchBurst = *fc.FetchBurst
	}
	if fc.DedupeCities != nil {
		cfg.DedupeCities = *fc.DedupeCities
	}

	if fc.MQTT.Enabled != nil {
		cfg.MQTT.Enabled = *fc.MQTT.Enabled
	}
	setString(&cfg.MQTT.Broker, fc.MQTT.Broker)
	setString(&cfg.MQTT.Topic, fc.MQTT.Topic)
	setString(&cfg.MQTT.ClientID, fc.MQTT.ClientID)
	setString(&cfg.MQTT.Username, fc.MQTT.Username)
	setString(&cfg.MQTT.Password, fc.MQTT.Password)
	return nil
}

func applyEnv(cfg *AppConfig) error {
	cfg.OpenWeatherAPIKey = getenvDefault("OPENWEATHER_API_KEY", cfg.OpenWeatherAPIKey)
	cfg.OpenWeatherBaseURL = getenvDefault("OPENWEATHER_BASE_URL", cfg.OpenWeatherBaseURL)
	cfg.DBPath = getenvDefault("DB_PATH", cfg.DBPath)
	cfg.Port = getenvDefault("PORT", cfg.Port)

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", cfg.RefreshInterval); err != nil {
		return err
	}

	cfg.FetchMaxRetries = getenvInt("FETCH_MAX_RETRIES", cfg.FetchMaxRetries)
	cfg.FetchBurst = getenvInt("FETCH_BURST", cfg.FetchBurst)
	cfg.FetchRatePerSec = getenvFloat("FETCH_RATE_PER_SEC", cfg.FetchRatePerSec)
	cfg.DedupeCities = getenvBool("DEDUPE_CITIES", cfg.DedupeCities)

	cfg.MQTT.Enabled = getenvBool("MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.Broker = getenvDefault("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.Topic = getenvDefault("MQTT_TOPIC", cfg.MQTT.Topic)
	cfg.MQTT.ClientID = getenvDefault("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getenvDefault("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getenvDefault("MQTT_PASSWORD", cfg.MQTT.Password)

	if cfg.FetchMaxRetries < 0 {
		return fmt.Errorf("invalid FETCH_MAX_RETRIES: must not be negative")
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("MQTT broker address is required when enabled")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
