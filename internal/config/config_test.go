package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no .env
	t.Setenv("BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendMemory || cfg.Port != "8080" || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.ResyncInterval != time.Minute || cfg.HTTPTimeout != 10*time.Second {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("expected UTC, got %v", cfg.Location)
	}
}

func TestLoadSheetsRequiresSpreadsheet(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BACKEND", "sheets")
	t.Setenv("SHEETS_SPREADSHEET_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without SHEETS_SPREADSHEET_ID")
	}

	t.Setenv("SHEETS_SPREADSHEET_ID", "abc")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SheetsSheetName != "Sheet1" {
		t.Fatalf("expected default sheet, got %q", cfg.SheetsSheetName)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"BACKEND":         "postgres",
		"HTTP_TIMEOUT":    "soon",
		"LOG_LEVEL":       "loud",
		"TIMEZONE":        "Mars/Olympus",
		"REALTIMEDB_URL":  "not a url",
		"RESYNC_INTERVAL": "-1m",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestLoadAuthRequirements(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("REQUIRE_AUTH", "true")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without credentials")
	}

	t.Setenv("GOOGLE_REFRESH_TOKEN", "refresh")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without client id")
	}

	t.Setenv("GOOGLE_CLIENT_ID", "client")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.RequireAuth || !cfg.UsesOAuth() {
		t.Fatalf("unexpected auth config %+v", cfg)
	}
}

func TestResyncCanBeDisabled(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RESYNC_INTERVAL", "0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ResyncInterval != 0 {
		t.Fatalf("expected resync disabled, got %v", cfg.ResyncInterval)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
}
