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
	CatalogFile string

	TelegramToken       string
	TelegramAPI         string
	TelegramPoll        int
	CommandSyncEnabled  bool
	TelegramRateLimit   float64
	TelegramRateBurst   int
	TelegramSendRetries int

	TimezoneOffset string
	CountryKeyword string
	TrailingRegion string
	TagPriorityCSV string

	DispatchLanes int
	DispatchQueue int

	RetentionDays int
	RetentionCron string

	HeartbeatIntervalSec int
	HeartbeatStaleSec    int
	HeartbeatNotifyAdmin bool
}

func FromEnv() Config {
	dataDir := stringOrDefault("REGION_RELAY_DATA_DIR", "/data")
	dbPath := stringOrDefault("REGION_RELAY_DB_PATH", filepath.Join(dataDir, "region-relay", "relay.sqlite"))

	return Config{
		Environment: stringOrDefault("REGION_RELAY_ENV", "development"),
		HTTPAddr:    stringOrDefault("REGION_RELAY_HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		DBPath:      dbPath,
		CatalogFile: strings.TrimSpace(os.Getenv("REGION_RELAY_CATALOG_FILE")),

		TelegramToken:       strings.TrimSpace(os.Getenv("REGION_RELAY_TELEGRAM_TOKEN")),
		TelegramAPI:         stringOrDefault("REGION_RELAY_TELEGRAM_API_BASE", "https://api.telegram.org"),
		TelegramPoll:        intOrDefault("REGION_RELAY_TELEGRAM_POLL_SECONDS", 25),
		CommandSyncEnabled:  boolOrDefault("REGION_RELAY_COMMAND_SYNC_ENABLED", true),
		TelegramRateLimit:   floatOrDefault("REGION_RELAY_TELEGRAM_RATE_LIMIT", 25),
		TelegramRateBurst:   intOrDefault("REGION_RELAY_TELEGRAM_RATE_BURST", 5),
		TelegramSendRetries: intOrDefault("REGION_RELAY_TELEGRAM_SEND_RETRIES", 5),

		TimezoneOffset: stringOrDefault("REGION_RELAY_TZ_OFFSET", "+03:00"),
		CountryKeyword: strings.TrimSpace(os.Getenv("REGION_RELAY_COUNTRY_KEYWORD")),
		TrailingRegion: strings.ToUpper(strings.TrimSpace(os.Getenv("REGION_RELAY_TRAILING_REGION"))),
		TagPriorityCSV: strings.TrimSpace(os.Getenv("REGION_RELAY_TAG_PRIORITY")),

		DispatchLanes: intOrDefault("REGION_RELAY_DISPATCH_LANES", 4),
		DispatchQueue: intOrDefault("REGION_RELAY_DISPATCH_QUEUE", 64),

		RetentionDays: intOrDefault("REGION_RELAY_RETENTION_DAYS", 0),
		RetentionCron: stringOrDefault("REGION_RELAY_RETENTION_CRON", "0 4 * * *"),

		HeartbeatIntervalSec: intOrDefault("REGION_RELAY_HEARTBEAT_INTERVAL_SECONDS", 30),
		HeartbeatStaleSec:    intOrDefault("REGION_RELAY_HEARTBEAT_STALE_SECONDS", 120),
		HeartbeatNotifyAdmin: boolOrDefault("REGION_RELAY_HEARTBEAT_NOTIFY_ADMIN", true),
	}
}

// TagPriority splits the configured priority classes. An empty list means
// catalog tag order.
func (c Config) TagPriority() []string {
	classes := []string{}
	for _, part := range strings.Split(c.TagPriorityCSV, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			classes = append(classes, part)
		}
	}
	return classes
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

func floatOrDefault(name string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
