package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"SCHEDULER_HTTP_PORT",
	"SCHEDULER_STORE",
	"SCHEDULER_SQLITE_DSN",
	"SCHEDULER_API_KEY_HASH",
	"SCHEDULER_TENANT_CONFIG",
	"SCHEDULER_LOG_LEVEL",
	"SCHEDULER_DIRECTORY",
	"SCHEDULER_GRAPH_TENANT_ID",
	"SCHEDULER_GRAPH_CLIENT_ID",
	"SCHEDULER_GRAPH_CLIENT_SECRET",
	"SCHEDULER_GRAPH_BASE_URL",
	"SCHEDULER_MEETING_ORGANIZER_ID",
	"SCHEDULER_TEAM_POLL_INTERVAL",
	"SCHEDULER_TEAM_POLL_ATTEMPTS",
	"SCHEDULER_TAB_POLL_INTERVAL",
	"SCHEDULER_TAB_POLL_ATTEMPTS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		// Register restoration before unsetting.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when optional variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_API_KEY_HASH", "hash")
		t.Setenv("SCHEDULER_TENANT_CONFIG", "tenant.yaml")
		t.Setenv("SCHEDULER_DIRECTORY", "memory")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StoreSQLite {
			t.Fatalf("expected default store sqlite, got %q", cfg.Store)
		}
		if cfg.SQLiteDSN != "file:scheduler.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.TeamPollInterval != 5*time.Second || cfg.TeamPollAttempts != 12 {
			t.Fatalf("unexpected team polling defaults: %s x %d", cfg.TeamPollInterval, cfg.TeamPollAttempts)
		}
		if cfg.TabPollAttempts != 6 {
			t.Fatalf("expected 6 tab attempts, got %d", cfg.TabPollAttempts)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		for _, key := range []string{
			"SCHEDULER_API_KEY_HASH",
			"SCHEDULER_TENANT_CONFIG",
			"SCHEDULER_GRAPH_TENANT_ID",
			"SCHEDULER_GRAPH_CLIENT_ID",
			"SCHEDULER_GRAPH_CLIENT_SECRET",
			"SCHEDULER_MEETING_ORGANIZER_ID",
		} {
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s in error, got %q", key, err.Error())
			}
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_API_KEY_HASH", "hash")
		t.Setenv("SCHEDULER_TENANT_CONFIG", "tenant.yaml")
		t.Setenv("SCHEDULER_DIRECTORY", "memory")
		t.Setenv("SCHEDULER_STORE", "postgres")
		t.Setenv("SCHEDULER_TEAM_POLL_INTERVAL", "soon")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "environment variables have invalid values: SCHEDULER_STORE, SCHEDULER_TEAM_POLL_INTERVAL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses graph and polling fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_API_KEY_HASH", "hash")
		t.Setenv("SCHEDULER_TENANT_CONFIG", "tenant.yaml")
		t.Setenv("SCHEDULER_HTTP_PORT", "9090")
		t.Setenv("SCHEDULER_STORE", "memory")
		t.Setenv("SCHEDULER_GRAPH_TENANT_ID", "tenant")
		t.Setenv("SCHEDULER_GRAPH_CLIENT_ID", "client")
		t.Setenv("SCHEDULER_GRAPH_CLIENT_SECRET", "secret")
		t.Setenv("SCHEDULER_MEETING_ORGANIZER_ID", "organizer")
		t.Setenv("SCHEDULER_TAB_POLL_INTERVAL", "250ms")
		t.Setenv("SCHEDULER_TAB_POLL_ATTEMPTS", "3")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StoreMemory {
			t.Fatalf("expected memory store, got %q", cfg.Store)
		}
		if cfg.Directory != DirectoryGraph || cfg.GraphClientID != "client" || cfg.MeetingOrganizer != "organizer" {
			t.Fatalf("unexpected graph settings: %+v", cfg)
		}
		if cfg.TabPollInterval != 250*time.Millisecond || cfg.TabPollAttempts != 3 {
			t.Fatalf("unexpected tab polling: %s x %d", cfg.TabPollInterval, cfg.TabPollAttempts)
		}
	})
}
