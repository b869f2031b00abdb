package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Directory backends.
const (
	DirectoryGraph  = "graph"
	DirectoryMemory = "memory"
)

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort     int
	Store        string
	SQLiteDSN    string
	APIKeyHash   string
	TenantConfig string
	LogLevel     string

	Directory        string
	GraphTenantID    string
	GraphClientID    string
	GraphSecret      string
	GraphBaseURL     string
	MeetingOrganizer string

	TeamPollInterval time.Duration
	TeamPollAttempts int
	TabPollInterval  time.Duration
	TabPollAttempts  int
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults. Every missing or malformed variable is
// collected so a single error names all of them.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:         8080,
		Store:            StoreSQLite,
		SQLiteDSN:        "file:scheduler.db",
		LogLevel:         "info",
		Directory:        DirectoryGraph,
		GraphBaseURL:     "https://graph.microsoft.com/v1.0",
		TeamPollInterval: 5 * time.Second,
		TeamPollAttempts: 12,
		TabPollInterval:  5 * time.Second,
		TabPollAttempts:  6,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	positiveInt := func(key string, target *int) {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			return
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			invalid = append(invalid, key)
			return
		}
		*target = n
	}
	positiveDuration := func(key string, target *time.Duration) {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			invalid = append(invalid, key)
			return
		}
		*target = d
	}
	optional := func(key string, target *string) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*target = value
		}
	}
	required := func(key string, target *string) {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			missing = append(missing, key)
			return
		}
		*target = value
	}
	oneOf := func(key string, target *string, allowed ...string) {
		value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
		if value == "" {
			return
		}
		for _, candidate := range allowed {
			if value == candidate {
				*target = value
				return
			}
		}
		invalid = append(invalid, key)
	}

	positiveInt("SCHEDULER_HTTP_PORT", &cfg.HTTPPort)
	oneOf("SCHEDULER_STORE", &cfg.Store, StoreSQLite, StoreMemory)
	optional("SCHEDULER_SQLITE_DSN", &cfg.SQLiteDSN)
	required("SCHEDULER_API_KEY_HASH", &cfg.APIKeyHash)
	required("SCHEDULER_TENANT_CONFIG", &cfg.TenantConfig)
	oneOf("SCHEDULER_LOG_LEVEL", &cfg.LogLevel, "debug", "info", "warn", "error")

	oneOf("SCHEDULER_DIRECTORY", &cfg.Directory, DirectoryGraph, DirectoryMemory)
	optional("SCHEDULER_GRAPH_BASE_URL", &cfg.GraphBaseURL)
	if cfg.Directory == DirectoryGraph {
		required("SCHEDULER_GRAPH_TENANT_ID", &cfg.GraphTenantID)
		required("SCHEDULER_GRAPH_CLIENT_ID", &cfg.GraphClientID)
		required("SCHEDULER_GRAPH_CLIENT_SECRET", &cfg.GraphSecret)
		required("SCHEDULER_MEETING_ORGANIZER_ID", &cfg.MeetingOrganizer)
	} else {
		optional("SCHEDULER_MEETING_ORGANIZER_ID", &cfg.MeetingOrganizer)
	}

	positiveDuration("SCHEDULER_TEAM_POLL_INTERVAL", &cfg.TeamPollInterval)
	positiveInt("SCHEDULER_TEAM_POLL_ATTEMPTS", &cfg.TeamPollAttempts)
	positiveDuration("SCHEDULER_TAB_POLL_INTERVAL", &cfg.TabPollInterval)
	positiveInt("SCHEDULER_TAB_POLL_ATTEMPTS", &cfg.TabPollAttempts)

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
