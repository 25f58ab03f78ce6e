package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Remote telemetry service
	APIURL string

	// Local dashboard server
	ListenAddr string

	// Snapshot history (sqlite)
	HistoryDB string

	// Redis snapshot mirror, disabled when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Poll intervals
	DevicesInterval time.Duration
	MetricsInterval time.Duration
	EventsInterval  time.Duration
	HealthInterval  time.Duration
	AlertsInterval  time.Duration
	FuelInterval    time.Duration

	// Query windows
	MetricsMinutes int
	AlertsMinutes  int
	EventsLimit    int
	FuelHours      int
	RankingHours   int
}

// Load reads .env (when present) and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using process environment")
	}

	return &Config{
		APIURL:          getEnv("MONITORA_API_URL", "http://localhost:8000"),
		ListenAddr:      getEnv("LISTEN_ADDR", ":3000"),
		HistoryDB:       getEnv("HISTORY_DB", "monitora_history.db"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RedisTTL:        getEnvDuration("REDIS_TTL", 10*time.Minute),
		DevicesInterval: getEnvDuration("POLL_DEVICES", 2*time.Second),
		MetricsInterval: getEnvDuration("POLL_METRICS", 2*time.Second),
		EventsInterval:  getEnvDuration("POLL_EVENTS", 3*time.Second),
		HealthInterval:  getEnvDuration("POLL_HEALTH", 5*time.Second),
		AlertsInterval:  getEnvDuration("POLL_ALERTS", 5*time.Second),
		FuelInterval:    getEnvDuration("POLL_FUEL", 60*time.Second),
		MetricsMinutes:  getEnvInt("METRICS_MINUTES", 5),
		AlertsMinutes:   getEnvInt("ALERTS_MINUTES", 10),
		EventsLimit:     getEnvInt("EVENTS_LIMIT", 500),
		FuelHours:       getEnvInt("FUEL_HOURS", 24),
		RankingHours:    getEnvInt("RANKING_HOURS", 720),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
