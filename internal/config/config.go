package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the alert service.
type Config struct {
	ListenAddr string

	// Ingestion
	FetchInterval  time.Duration
	FetchWindow    time.Duration
	Lookback       time.Duration
	AdapterTimeout time.Duration
	MaxConcurrency int
	StaticDataPath string
	FeedURLs       []string
	TaxonomyPath   string

	// Correlation
	CorrelationThreshold float64
	CorrelationEpsilon   float64

	// Storage
	MongoURI      string
	MongoDatabase string

	// Fan-out
	NATSURL     string
	NATSSubject string
	EventBuffer int

	// Classification service
	ClassifierURL    string
	ClassifierAPIKey string

	// SMTP dispatch
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// FromEnv creates a configuration instance sourced from environment variables.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:           getEnv("ALERTS_LISTEN_ADDR", ":8080"),
		FetchInterval:        5 * time.Minute,
		FetchWindow:          24 * time.Hour,
		Lookback:             72 * time.Hour,
		AdapterTimeout:       20 * time.Second,
		MaxConcurrency:       4,
		StaticDataPath:       getEnv("ALERTS_STATIC_DATA", ""),
		FeedURLs:             splitList(os.Getenv("ALERTS_FEED_URLS")),
		TaxonomyPath:         getEnv("ALERTS_TAXONOMY_PATH", ""),
		CorrelationThreshold: 0.55,
		CorrelationEpsilon:   0.05,
		MongoURI:             getEnv("ALERTS_MONGO_URI", ""),
		MongoDatabase:        getEnv("ALERTS_MONGO_DB", "travelrisk"),
		NATSURL:              getEnv("ALERTS_NATS_URL", ""),
		NATSSubject:          getEnv("ALERTS_NATS_SUBJECT", "alerts.updated"),
		EventBuffer:          256,
		ClassifierURL:        getEnv("ALERTS_CLASSIFIER_URL", ""),
		ClassifierAPIKey:     getEnv("ALERTS_CLASSIFIER_API_KEY", ""),
		SMTPHost:             getEnv("ALERTS_SMTP_HOST", "localhost"),
		SMTPPort:             587,
		SMTPUsername:         getEnv("ALERTS_SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("ALERTS_SMTP_PASSWORD", ""),
		SMTPFrom:             getEnv("ALERTS_SMTP_FROM", "alerts@travelrisk.local"),
	}

	var err error
	if cfg.FetchInterval, err = durationEnv("ALERTS_FETCH_INTERVAL", cfg.FetchInterval); err != nil {
		return Config{}, err
	}
	if cfg.FetchWindow, err = durationEnv("ALERTS_FETCH_WINDOW", cfg.FetchWindow); err != nil {
		return Config{}, err
	}
	if cfg.Lookback, err = durationEnv("ALERTS_LOOKBACK", cfg.Lookback); err != nil {
		return Config{}, err
	}
	if cfg.AdapterTimeout, err = durationEnv("ALERTS_ADAPTER_TIMEOUT", cfg.AdapterTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrency, err = intEnv("ALERTS_MAX_CONCURRENCY", cfg.MaxConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.EventBuffer, err = intEnv("ALERTS_EVENT_BUFFER", cfg.EventBuffer); err != nil {
		return Config{}, err
	}
	if cfg.SMTPPort, err = intEnv("ALERTS_SMTP_PORT", cfg.SMTPPort); err != nil {
		return Config{}, err
	}
	if cfg.CorrelationThreshold, err = floatEnv("ALERTS_CORRELATION_THRESHOLD", cfg.CorrelationThreshold); err != nil {
		return Config{}, err
	}
	if cfg.CorrelationEpsilon, err = floatEnv("ALERTS_CORRELATION_EPSILON", cfg.CorrelationEpsilon); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func intEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
