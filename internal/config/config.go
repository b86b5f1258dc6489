package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trainlog/internal/units"
)

const (
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

type Config struct {
	BaseURL    string
	ServerAddr string

	StoreBackend          string
	DatabasePath          string
	GoogleSheetsID        string
	GoogleCredentialsFile string
	GoogleClientEmail     string
	GooglePrivateKey      string

	FitnessSyncerClientID     string
	FitnessSyncerClientSecret string
	FitnessSyncerRedirectURI  string
	FitnessSyncerBaseURL      string
	FitnessSyncerAuthURL      string
	FitnessSyncerTokenURL     string
	FitnessSyncerSourceID     string

	StravaClientID           string
	StravaClientSecret       string
	StravaRedirectURL        string
	StravaBaseURL            string
	StravaAuthBaseURL        string
	StravaAthleteID          int64
	StravaVerifyToken        string
	StravaWebhookSecret      string
	StravaWebhookCallbackURL string
	StravaWebhookAutoReplace bool
	StravaSyncLimit          int

	Zone2          units.Band
	MAF            units.Band
	ReportTimezone string
	Location       *time.Location
	SyncLimit      int
	SyncInterval   time.Duration

	RateLimitPerWindow int
	RateLimitWindow    time.Duration

	JWTSecret string
	JWTIssuer string

	LogLevel string
	LogFile  string
	LogJSON  bool
}

func Load(path string) (Config, error) {
	cfg := Config{
		ServerAddr:           ":8080",
		StoreBackend:         BackendSQLite,
		FitnessSyncerBaseURL: "https://api.fitnesssyncer.com/api",
		StravaBaseURL:        "https://www.strava.com/api/v3",
		Zone2:                units.Band{Min: 123, Max: 133},
		MAF:                  units.Band{Min: 128, Max: 138},
		ReportTimezone:       "UTC",
		SyncLimit:            100,
		StravaSyncLimit:      30,
		RateLimitPerWindow:   100,
		RateLimitWindow:      15 * time.Minute,
		LogLevel:             "info",
	}

	if path != "" {
		if err := loadDotEnv(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")

	cfg.StoreBackend = strings.ToLower(getenv("STORE_BACKEND", cfg.StoreBackend))
	cfg.DatabasePath = getenv("DATABASE_PATH", "trainlog.db")
	cfg.GoogleSheetsID = os.Getenv("GOOGLE_SHEETS_ID")
	cfg.GoogleCredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	cfg.GoogleClientEmail = os.Getenv("GOOGLE_CLIENT_EMAIL")
	cfg.GooglePrivateKey = os.Getenv("GOOGLE_PRIVATE_KEY")

	cfg.FitnessSyncerClientID = os.Getenv("FITNESSSYNCER_CLIENT_ID")
	cfg.FitnessSyncerClientSecret = os.Getenv("FITNESSSYNCER_CLIENT_SECRET")
	cfg.FitnessSyncerRedirectURI = os.Getenv("FITNESSSYNCER_REDIRECT_URI")
	cfg.FitnessSyncerBaseURL = strings.TrimRight(getenv("FITNESSSYNCER_BASE_URL", cfg.FitnessSyncerBaseURL), "/")
	cfg.FitnessSyncerAuthURL = os.Getenv("FITNESSSYNCER_AUTH_URL")
	cfg.FitnessSyncerTokenURL = os.Getenv("FITNESSSYNCER_TOKEN_URL")
	cfg.FitnessSyncerSourceID = os.Getenv("FITNESSSYNCER_SOURCE_ID")

	cfg.StravaClientID = os.Getenv("STRAVA_CLIENT_ID")
	cfg.StravaClientSecret = os.Getenv("STRAVA_CLIENT_SECRET")
	cfg.StravaBaseURL = strings.TrimRight(getenv("STRAVA_BASE_URL", cfg.StravaBaseURL), "/")
	cfg.StravaAuthBaseURL = os.Getenv("STRAVA_AUTH_BASE_URL")
	cfg.StravaVerifyToken = os.Getenv("STRAVA_VERIFY_TOKEN")
	cfg.StravaWebhookSecret = os.Getenv("STRAVA_WEBHOOK_SECRET")
	if cfg.BaseURL != "" {
		cfg.StravaRedirectURL = joinURL(cfg.BaseURL, "/strava/callback")
		cfg.StravaWebhookCallbackURL = joinURL(cfg.BaseURL, "/webhook")
		if cfg.FitnessSyncerRedirectURI == "" {
			cfg.FitnessSyncerRedirectURI = joinURL(cfg.BaseURL, "/fitnessSyncer/callback")
		}
	}
	cfg.StravaRedirectURL = getenv("STRAVA_REDIRECT_URL", cfg.StravaRedirectURL)
	cfg.StravaWebhookCallbackURL = getenv("STRAVA_WEBHOOK_CALLBACK_URL", cfg.StravaWebhookCallbackURL)

	cfg.ReportTimezone = getenv("REPORT_TIMEZONE", cfg.ReportTimezone)
	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("REPORT_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	cfg.JWTSecret = os.Getenv("API_JWT_SECRET")
	cfg.JWTIssuer = os.Getenv("API_JWT_ISSUER")
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = os.Getenv("LOG_FILE")

	ints := []struct {
		key    string
		target *int
	}{
		{"SYNC_LIMIT", &cfg.SyncLimit},
		{"STRAVA_SYNC_LIMIT", &cfg.StravaSyncLimit},
		{"RATE_LIMIT_PER_WINDOW", &cfg.RateLimitPerWindow},
	}
	for _, v := range ints {
		if raw := os.Getenv(v.key); raw != "" {
			if err := parseInt(v.target, raw); err != nil {
				return Config{}, fmt.Errorf("%s: %w", v.key, err)
			}
		}
	}

	floats := []struct {
		key    string
		target *float64
	}{
		{"ZONE2_MIN", &cfg.Zone2.Min},
		{"ZONE2_MAX", &cfg.Zone2.Max},
		{"MAF_MIN", &cfg.MAF.Min},
		{"MAF_MAX", &cfg.MAF.Max},
	}
	for _, v := range floats {
		if raw := os.Getenv(v.key); raw != "" {
			if err := parseFloat(v.target, raw); err != nil {
				return Config{}, fmt.Errorf("%s: %w", v.key, err)
			}
		}
	}

	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if err := parseDuration(&cfg.RateLimitWindow, v); err != nil {
			return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW: %w", err)
		}
	}
	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		if err := parseDuration(&cfg.SyncInterval, v); err != nil {
			return Config{}, fmt.Errorf("SYNC_INTERVAL: %w", err)
		}
	}
	if v := os.Getenv("STRAVA_ATHLETE_ID"); v != "" {
		if err := parseInt64(&cfg.StravaAthleteID, v); err != nil {
			return Config{}, fmt.Errorf("STRAVA_ATHLETE_ID: %w", err)
		}
	}
	if v := os.Getenv("STRAVA_WEBHOOK_AUTO_REPLACE"); v != "" {
		if err := parseBool(&cfg.StravaWebhookAutoReplace, v); err != nil {
			return Config{}, fmt.Errorf("STRAVA_WEBHOOK_AUTO_REPLACE: %w", err)
		}
	}
	if v := os.Getenv("LOG_JSON"); v != "" {
		if err := parseBool(&cfg.LogJSON, v); err != nil {
			return Config{}, fmt.Errorf("LOG_JSON: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that can be judged without contacting anything.
// Provider credentials are checked when a provider is first used.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendSQLite:
		if c.DatabasePath == "" {
			return errors.New("DATABASE_PATH is required for the sqlite backend")
		}
	case BackendSheets:
		if c.GoogleSheetsID == "" {
			return errors.New("GOOGLE_SHEETS_ID is required for the sheets backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND: unknown backend %q", c.StoreBackend)
	}
	if err := c.Zone2.Validate(); err != nil {
		return fmt.Errorf("zone 2 band: %w", err)
	}
	if err := c.MAF.Validate(); err != nil {
		return fmt.Errorf("MAF band: %w", err)
	}
	if c.SyncLimit <= 0 || c.StravaSyncLimit <= 0 {
		return errors.New("sync limits must be positive")
	}
	if c.SyncInterval < 0 {
		return errors.New("SYNC_INTERVAL must not be negative")
	}
	if c.RateLimitPerWindow < 0 || c.RateLimitWindow < 0 {
		return errors.New("rate limit settings must not be negative")
	}
	return nil
}

func loadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		// Real environment wins over the file.
		if _, set := os.LookupEnv(key); set {
			continue
		}
		_ = os.Setenv(key, strings.Trim(value, `"`))
	}

	return scanner.Err()
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseInt(target *int, value string) error {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func parseInt64(target *int64, value string) error {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func parseFloat(target *float64, value string) error {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func parseBool(target *bool, value string) error {
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func parseDuration(target *time.Duration, value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func joinURL(base, path string) string {
	if base == "" {
		return ""
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
