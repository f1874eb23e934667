package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string

	PolicyPath  string
	PolicyWatch bool

	IdempotencyTTLSec int

	WriteWhitelistCSV string

	SchedulePollSec int

	MemoryRecentWindow int

	HeartbeatStaleSec int
}

func FromEnv() Config {
	dataDir := stringOrDefault("GOVERNOR_DATA_DIR", "/data")

	return Config{
		Environment:        stringOrDefault("GOVERNOR_ENV", "development"),
		HTTPAddr:           stringOrDefault("GOVERNOR_HTTP_ADDR", ":8080"),
		DataDir:            dataDir,
		DBPath:             stringOrDefault("GOVERNOR_DB_PATH", filepath.Join(dataDir, "governor", "meta.sqlite")),
		PolicyPath:         stringOrDefault("GOVERNOR_POLICY_PATH", filepath.Join(dataDir, "governor", "policy.json")),
		PolicyWatch:        boolOrDefault("GOVERNOR_POLICY_WATCH", true),
		IdempotencyTTLSec:  intOrDefault("GOVERNOR_IDEMPOTENCY_TTL_SECONDS", 600),
		WriteWhitelistCSV:  stringOrDefault("GOVERNOR_WRITE_WHITELIST", filepath.Join(dataDir, "workspace")),
		SchedulePollSec:    intOrDefault("GOVERNOR_SCHEDULE_POLL_SECONDS", 15),
		MemoryRecentWindow: intOrDefault("GOVERNOR_MEMORY_RECENT_WINDOW", 50),
		HeartbeatStaleSec:  intOrDefault("GOVERNOR_HEARTBEAT_STALE_SECONDS", 120),
	}
}

// WriteWhitelist splits the CSV whitelist into cleaned absolute prefixes.
func (c Config) WriteWhitelist() []string {
	var roots []string
	for _, entry := range strings.Split(c.WriteWhitelistCSV, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		roots = append(roots, filepath.Clean(entry))
	}
	return roots
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
