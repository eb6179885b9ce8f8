package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTableBuckets = "2:5,4:3,6:2"
	defaultDepartments  = "emergency,general,pediatrics"
)

type Config struct {
	Port                      string
	DatabaseURL               string
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	RedisChannel              string
	TableBuckets              map[int]int
	TableTurnMinutes          int
	Departments               []string
	MaxPriority               int
	SessionIdleTTL            time.Duration
	SessionSweepInterval      time.Duration
	JournalMemoryLimit        int
	JournalRetention          time.Duration
	JournalPruneInterval      time.Duration
	RateLimitPerMinute        int
	RateLimitBurst            int
	SessionRateLimitPerMinute int
	SessionRateLimitBurst     int
	LogFormat                 string
	LogLevel                  string
	OTLPEndpoint              string
	OTLPInsecure              bool
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	channel := os.Getenv("REDIS_CHANNEL")
	if channel == "" {
		channel = "admission.events"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return Config{
		Port:                      port,
		DatabaseURL:               os.Getenv("DB_DSN"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   readInt("REDIS_DB", 0),
		RedisChannel:              channel,
		TableBuckets:              readBuckets("TABLE_BUCKETS", defaultTableBuckets),
		TableTurnMinutes:          readInt("TABLE_TURN_MINUTES", 30),
		Departments:               readList("TRIAGE_DEPARTMENTS", defaultDepartments),
		MaxPriority:               readInt("TRIAGE_MAX_PRIORITY", 2),
		SessionIdleTTL:            readDurationSeconds("SESSION_IDLE_TTL_SECONDS", 3600),
		SessionSweepInterval:      readDurationSeconds("SESSION_SWEEP_INTERVAL_SECONDS", 60),
		JournalMemoryLimit:        readInt("JOURNAL_MEMORY_LIMIT", 500),
		JournalRetention:          readDurationHours("JOURNAL_RETENTION_HOURS", 168),
		JournalPruneInterval:      readDurationSeconds("JOURNAL_PRUNE_INTERVAL_SECONDS", 3600),
		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		SessionRateLimitPerMinute: readInt("SESSION_RATE_LIMIT_PER_MIN", 600),
		SessionRateLimitBurst:     readInt("SESSION_RATE_LIMIT_BURST", 120),
		LogFormat:                 logFormat,
		LogLevel:                  logLevel,
		OTLPEndpoint:              os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:              readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readDurationHours(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Hour
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

// readList parses a comma separated list of lowercase names. An empty result
// falls back to the defaults.
func readList(key, fallback string) []string {
	if values := parseList(os.Getenv(key)); len(values) > 0 {
		return values
	}
	return parseList(fallback)
}

func parseList(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// readBuckets parses "size:count" pairs such as "2:5,4:3". Malformed pairs
// are skipped; if none survive the defaults are used.
func readBuckets(key, fallback string) map[int]int {
	if buckets := parseBuckets(os.Getenv(key)); len(buckets) > 0 {
		return buckets
	}
	return parseBuckets(fallback)
}

func parseBuckets(raw string) map[int]int {
	buckets := make(map[int]int)
	for _, part := range strings.Split(raw, ",") {
		sizeRaw, countRaw, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		size, err := strconv.Atoi(strings.TrimSpace(sizeRaw))
		if err != nil || size <= 0 {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(countRaw))
		if err != nil || count < 0 {
			continue
		}
		buckets[size] = count
	}
	return buckets
}
