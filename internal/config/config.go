package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"taskcal/internal/timeparse"

	"github.com/joho/godotenv"
)

// Config holds every setting read from the environment.
type Config struct {
	LogLevel     string
	DatabasePath string
	HTTPAddr     string
	SecureCookie bool
	TimeZone     *time.Location

	LLM      LLM
	Estimate Estimate

	Google Google
	Sync   Sync
	CalDAV CalDAV
}

// LLM selects and configures the language model provider.
type LLM struct {
	Provider        string // "ollama" or "genai"
	OllamaEndpoint  string
	OllamaModel     string
	OllamaEmbedding string
	GenAIAPIKey     string
	GenAIModel      string
	GenAIEmbedding  string
}

// Estimate configures the duration estimation pipeline.
type Estimate struct {
	Bounds      timeparse.Bounds
	MaxAttempts int
	TopK        int
	Rate        float64 // Estimates per minute per user, 0 disables limiting
}

// Google holds the OAuth client credentials.
type Google struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // web flow callback, served at /api/google/callback
}

// Sync configures the Google Calendar push.
type Sync struct {
	Schedule string // cron spec, empty disables periodic sync
	DryRun   bool
	Days     int
}

// CalDAV configures event publishing.
type CalDAV struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarName string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "taskcal.db"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		LLM: LLM{
			Provider:        strings.ToLower(getEnv("LLM_PROVIDER", "ollama")),
			OllamaEndpoint:  getEnv("OLLAMA_ENDPOINT", "http://localhost:11434"),
			OllamaModel:     getEnv("OLLAMA_MODEL", "llama3.2"),
			OllamaEmbedding: getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			GenAIAPIKey:     os.Getenv("GENAI_API_KEY"),
			GenAIModel:      getEnv("GENAI_MODEL", "gemini-2.0-flash"),
			GenAIEmbedding:  getEnv("GENAI_EMBED_MODEL", "gemini-embedding-001"),
		},
		Google: Google{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/google/callback"),
		},
		Sync: Sync{
			Schedule: os.Getenv("SYNC_SCHEDULE"),
		},
		CalDAV: CalDAV{
			Endpoint:     getEnv("CALDAV_ENDPOINT", "https://caldav.icloud.com/"),
			Username:     os.Getenv("CALDAV_USERNAME"),
			Password:     os.Getenv("CALDAV_PASSWORD"),
			CalendarName: os.Getenv("CALDAV_CALENDAR_NAME"),
		},
	}

	var err error
	if cfg.Estimate.Bounds, err = boundsFromEnv(); err != nil {
		return nil, err
	}
	if cfg.Estimate.MaxAttempts, err = intFromEnv("ESTIMATE_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.Estimate.TopK, err = intFromEnv("RAG_TOP_K", 4); err != nil {
		return nil, err
	}
	if cfg.Sync.Days, err = intFromEnv("SYNC_DAYS", 30); err != nil {
		return nil, err
	}
	if v := os.Getenv("ESTIMATE_RATE"); v != "" {
		if cfg.Estimate.Rate, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid ESTIMATE_RATE %q: %w", v, err)
		}
	} else {
		cfg.Estimate.Rate = 10
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		if cfg.SecureCookie, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid COOKIE_SECURE %q: %w", v, err)
		}
	}
	if v := os.Getenv("SYNC_DRY_RUN"); v != "" {
		if cfg.Sync.DryRun, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid SYNC_DRY_RUN %q: %w", v, err)
		}
	}

	tzStr := getEnv("PRIMARY_TIMEZONE", "UTC")
	if cfg.TimeZone, err = time.LoadLocation(tzStr); err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", tzStr, err)
	}

	switch cfg.LLM.Provider {
	case "ollama":
	case "genai":
		if cfg.LLM.GenAIAPIKey == "" {
			return nil, fmt.Errorf("GENAI_API_KEY environment variable not set")
		}
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLM.Provider)
	}
	return cfg, nil
}

// boundsFromEnv reads ESTIMATE_MIN and ESTIMATE_MAX. Both accept any
// expression timeparse understands, e.g. "15 minutes" or "8h".
func boundsFromEnv() (timeparse.Bounds, error) {
	b := timeparse.DefaultBounds
	for _, item := range []struct {
		key string
		dst *time.Duration
	}{
		{"ESTIMATE_MIN", &b.Min},
		{"ESTIMATE_MAX", &b.Max},
	} {
		v := os.Getenv(item.key)
		if v == "" {
			continue
		}
		d, err := timeparse.Parse(v)
		if err != nil {
			return b, fmt.Errorf("invalid %s %q: %w", item.key, v, err)
		}
		*item.dst = d.Std()
	}
	if b.Max > 0 && b.Min > b.Max {
		return b, fmt.Errorf("ESTIMATE_MIN %s is greater than ESTIMATE_MAX %s", b.Min, b.Max)
	}
	return b, nil
}

func intFromEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
