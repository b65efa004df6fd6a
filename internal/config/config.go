package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/templog/internal/logging"
)

const (
	BackendMemory     = "memory"
	BackendSQLite     = "sqlite"
	BackendSheets     = "sheets"
	BackendRealtimeDB = "realtimedb"
)

type AppConfig struct {
	Port     string
	AppEnv   string
	LogLevel slog.Level

	// Backend selects the persistence provider.
	Backend string `validate:"oneof=memory sqlite sheets realtimedb"`

	SQLitePath      string `validate:"required_if=Backend sqlite"`
	StoreMaxHistory int    `validate:"gte=0"` // memory backend only (0 = unlimited)

	SheetsSpreadsheetID string `validate:"required_if=Backend sheets"`
	SheetsSheetName     string
	SheetsBaseURL       string `validate:"omitempty,url"`

	RealtimeDBURL  string `validate:"omitempty,url"`
	RealtimeDBPath string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	GoogleAccessToken  string
	GoogleTokenURL     string `validate:"omitempty,url"`

	// RequireAuth makes every mutation sign in first.
	RequireAuth bool

	HTTPTimeout         time.Duration `validate:"gt=0"`
	ResyncInterval      time.Duration `validate:"gte=0"`
	NotificationTimeout time.Duration `validate:"gte=0"`

	// Location decides which day "today" is for readings without a date.
	Location *time.Location
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found or error loading it", "error", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.AppEnv = getenvDefault("APP_ENV", "prod")

	level, err := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	cfg.Backend = strings.ToLower(getenvDefault("BACKEND", BackendMemory))
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "data/templog.db")
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 0)

	cfg.SheetsSpreadsheetID = os.Getenv("SHEETS_SPREADSHEET_ID")
	cfg.SheetsSheetName = getenvDefault("SHEETS_SHEET_NAME", "Sheet1")
	cfg.SheetsBaseURL = os.Getenv("SHEETS_BASE_URL")

	cfg.RealtimeDBURL = os.Getenv("REALTIMEDB_URL")
	cfg.RealtimeDBPath = getenvDefault("REALTIMEDB_PATH", "temperatures")

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRefreshToken = os.Getenv("GOOGLE_REFRESH_TOKEN")
	cfg.GoogleAccessToken = os.Getenv("GOOGLE_ACCESS_TOKEN")
	cfg.GoogleTokenURL = getenvDefault("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")

	cfg.RequireAuth = getenvBool("REQUIRE_AUTH", false)

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	// Resync: default 1 minute, "0" disables.
	if cfg.ResyncInterval, err = getenvDuration("RESYNC_INTERVAL", "1m"); err != nil {
		return nil, err
	}
	if cfg.NotificationTimeout, err = getenvDuration("NOTIFICATION_TIMEOUT", "6s"); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(getenvDefault("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and backend-specific requirements.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Backend == BackendRealtimeDB && c.RealtimeDBURL == "" {
		return fmt.Errorf("invalid configuration: BACKEND=realtimedb needs REALTIMEDB_URL")
	}
	if c.RequireAuth && c.GoogleRefreshToken == "" && c.GoogleAccessToken == "" {
		return fmt.Errorf("invalid configuration: REQUIRE_AUTH needs GOOGLE_REFRESH_TOKEN or GOOGLE_ACCESS_TOKEN")
	}
	if c.GoogleRefreshToken != "" && c.GoogleClientID == "" {
		return fmt.Errorf("invalid configuration: GOOGLE_REFRESH_TOKEN needs GOOGLE_CLIENT_ID")
	}
	return nil
}

// UsesOAuth reports whether sign-in goes through the refresh-token flow.
func (c *AppConfig) UsesOAuth() bool {
	return c.GoogleRefreshToken != ""
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

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	if v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
