package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trainlog/internal/units"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.ServerAddr)
	require.Equal(t, BackendSQLite, cfg.StoreBackend)
	require.Equal(t, units.Band{Min: 123, Max: 133}, cfg.Zone2)
	require.Equal(t, units.Band{Min: 128, Max: 138}, cfg.MAF)
	require.Equal(t, time.UTC, cfg.Location)
	require.Equal(t, 100, cfg.SyncLimit)
	require.Equal(t, 30, cfg.StravaSyncLimit)
	require.Zero(t, cfg.SyncInterval)
	require.Equal(t, 100, cfg.RateLimitPerWindow)
	require.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BASE_URL", "https://train.example.com/")
	t.Setenv("ZONE2_MIN", "120")
	t.Setenv("ZONE2_MAX", "130.5")
	t.Setenv("REPORT_TIMEZONE", "Europe/Berlin")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")
	t.Setenv("STRAVA_ATHLETE_ID", "42")
	t.Setenv("STRAVA_WEBHOOK_AUTO_REPLACE", "true")
	t.Setenv("SYNC_INTERVAL", "1h")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, units.Band{Min: 120, Max: 130.5}, cfg.Zone2)
	require.Equal(t, "Europe/Berlin", cfg.Location.String())
	require.Equal(t, time.Minute, cfg.RateLimitWindow)
	require.Equal(t, int64(42), cfg.StravaAthleteID)
	require.True(t, cfg.StravaWebhookAutoReplace)
	require.Equal(t, time.Hour, cfg.SyncInterval)
	require.Equal(t, "https://train.example.com/strava/callback", cfg.StravaRedirectURL)
	require.Equal(t, "https://train.example.com/webhook", cfg.StravaWebhookCallbackURL)
	require.Equal(t, "https://train.example.com/fitnessSyncer/callback", cfg.FitnessSyncerRedirectURI)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"SYNC_LIMIT":        "many",
		"ZONE2_MIN":         "140",
		"REPORT_TIMEZONE":   "Nowhere/Land",
		"STORE_BACKEND":     "csv",
		"SYNC_INTERVAL":     "-1m",
		"STRAVA_SYNC_LIMIT": "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoadSheetsNeedsSpreadsheet(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Sheets")
	_, err := Load("")
	require.ErrorContains(t, err, "GOOGLE_SHEETS_ID")

	t.Setenv("GOOGLE_SHEETS_ID", "sheet-1")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, BackendSheets, cfg.StoreBackend)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nTRAINLOG_TEST_FILE_ONLY=\"from-file\"\nTRAINLOG_TEST_BOTH=from-file\nbroken line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TRAINLOG_TEST_BOTH", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("TRAINLOG_TEST_FILE_ONLY") })

	require.NoError(t, loadDotEnv(path))
	require.Equal(t, "from-file", os.Getenv("TRAINLOG_TEST_FILE_ONLY"))
	require.Equal(t, "from-env", os.Getenv("TRAINLOG_TEST_BOTH"))

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}
