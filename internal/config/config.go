package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Process roles. A deployment runs any subset of them in one binary.
const (
	RoleLivePoller         = "live-poller"
	RoleRefreshPoller      = "refresh-poller"
	RoleH2HPoller          = "h2h-poller"
	RoleDispatcher         = "dispatcher"
	RolePrematchDispatcher = "prematch-dispatcher"
	RolePrematchBackfill   = "prematch-backfill"
	RoleAPI                = "api"
)

var allRoles = []string{
	RoleLivePoller, RoleRefreshPoller, RoleH2HPoller,
	RoleDispatcher, RolePrematchDispatcher, RolePrematchBackfill, RoleAPI,
}

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	Roles []string

	// Database URLs
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Model
	ModelPath string

	// Upstream
	APIFootballKey     string
	APIFootballBaseURL string
	UpstreamRPS        float64
	UpstreamBurst      int
	LeagueIDs          []int64
	Season             int

	// Pollers
	LivePollInterval time.Duration
	RefreshInterval  time.Duration
	H2HPollInterval  time.Duration
	H2HStale         time.Duration
	H2HBatchLimit    int
	H2HLast          int
	BackfillLimit    int

	// Streams
	StreamPartitions int
	OwnedPartitions  []int
	StreamMaxLen     int64
	ConsumerGroup    string
	ConsumerName     string
	ReadBlock        time.Duration
	ReadCount        int
	ClaimMinIdle     time.Duration

	// Timeouts
	UpstreamTimeout time.Duration
	StoreTimeout    time.Duration

	// Prediction archive
	ArchiveQueueSize     int
	ArchiveBatchSize     int
	ArchiveFlushInterval time.Duration
}

// Load loads configuration from environment variables, reading a .env file first
// when one exists. It returns an error if configuration the selected roles need is
// missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "production"),

		ClickHouseURL: getEnv("CLICKHOUSE_URL", ""),
		PostgresURL:   getEnv("POSTGRES_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		ModelPath:     getEnv("MODEL_PATH", ""),

		APIFootballKey:     getEnv("API_FOOTBALL_KEY", ""),
		APIFootballBaseURL: getEnv("API_FOOTBALL_BASE_URL", "https://v3.football.api-sports.io"),
		UpstreamRPS:        getEnvFloat("UPSTREAM_RPS", 5),
		UpstreamBurst:      getEnvInt("UPSTREAM_BURST", 5),
		Season:             getEnvInt("SEASON", 2025),

		LivePollInterval: getEnvDuration("LIVE_POLL_INTERVAL", 10*time.Second),
		RefreshInterval:  getEnvDuration("REFRESH_INTERVAL", 6*time.Hour),
		H2HPollInterval:  getEnvDuration("H2H_POLL_INTERVAL", 60*time.Second),
		H2HStale:         getEnvDuration("H2H_STALE", 12*time.Hour),
		H2HBatchLimit:    getEnvInt("H2H_BATCH_LIMIT", 5000),
		H2HLast:          getEnvInt("H2H_LAST", 10),
		BackfillLimit:    getEnvInt("BACKFILL_LIMIT", 5000),

		StreamPartitions: getEnvInt("STREAM_PARTITIONS", 4),
		StreamMaxLen:     int64(getEnvInt("STREAM_MAX_LEN", 100000)),
		ConsumerGroup:    getEnv("CONSUMER_GROUP", "predictor"),
		ConsumerName:     getEnv("CONSUMER_NAME", hostname()),
		ReadBlock:        getEnvDuration("READ_BLOCK", 2*time.Second),
		ReadCount:        getEnvInt("READ_COUNT", 50),
		ClaimMinIdle:     getEnvDuration("CLAIM_MIN_IDLE", time.Minute),

		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 25*time.Second),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 15*time.Second),

		ArchiveQueueSize:     getEnvInt("ARCHIVE_QUEUE_SIZE", 10000),
		ArchiveBatchSize:     getEnvInt("ARCHIVE_BATCH_SIZE", 500),
		ArchiveFlushInterval: getEnvDuration("ARCHIVE_FLUSH_INTERVAL", time.Second),
	}

	if cfg.StreamPartitions <= 0 {
		return nil, fmt.Errorf("STREAM_PARTITIONS must be positive, got %d", cfg.StreamPartitions)
	}

	// CORS
	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"))

	cfg.Roles = splitList(getEnv("ROLES", strings.Join(allRoles, ",")))
	for _, r := range cfg.Roles {
		if !isRole(r) {
			return nil, fmt.Errorf("unknown role %q in ROLES", r)
		}
	}

	var err error
	if cfg.LeagueIDs, err = parseInt64List(getEnv("LEAGUE_IDS", "39,140,78,135,61")); err != nil {
		return nil, fmt.Errorf("LEAGUE_IDS: %w", err)
	}

	owned := getEnv("OWNED_PARTITIONS", "")
	if owned == "" {
		for p := 0; p < cfg.StreamPartitions; p++ {
			cfg.OwnedPartitions = append(cfg.OwnedPartitions, p)
		}
	} else {
		ids, err := parseInt64List(owned)
		if err != nil {
			return nil, fmt.Errorf("OWNED_PARTITIONS: %w", err)
		}
		for _, id := range ids {
			if id < 0 || id >= int64(cfg.StreamPartitions) {
				return nil, fmt.Errorf("OWNED_PARTITIONS: partition %d outside 0..%d", id, cfg.StreamPartitions-1)
			}
			cfg.OwnedPartitions = append(cfg.OwnedPartitions, int(id))
		}
	}

	// Critical configuration - fail if missing
	if err := cfg.requireForRoles(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HasRole reports whether role was selected.
func (c *Config) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (c *Config) requireForRoles() error {
	needs := map[string][]string{
		RoleLivePoller:         {"REDIS_URL", "API_FOOTBALL_KEY"},
		RoleRefreshPoller:      {"REDIS_URL", "API_FOOTBALL_KEY"},
		RoleH2HPoller:          {"POSTGRES_URL", "REDIS_URL"},
		RoleDispatcher:         {"POSTGRES_URL", "REDIS_URL", "MODEL_PATH"},
		RolePrematchDispatcher: {"POSTGRES_URL", "REDIS_URL", "API_FOOTBALL_KEY"},
		RolePrematchBackfill:   {"POSTGRES_URL"},
		RoleAPI:                {"POSTGRES_URL"},
	}
	values := map[string]string{
		"POSTGRES_URL":     c.PostgresURL,
		"REDIS_URL":        c.RedisURL,
		"MODEL_PATH":       c.ModelPath,
		"API_FOOTBALL_KEY": c.APIFootballKey,
	}

	for _, role := range c.Roles {
		for _, key := range needs[role] {
			if values[key] == "" {
				return fmt.Errorf("missing required environment variable: %s (needed by role %s)", key, role)
			}
		}
	}
	return nil
}

func isRole(r string) bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "predictor-" + uuid.NewString()[:8]
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInt64List(raw string) ([]int64, error) {
	var out []int64
	for _, part := range splitList(raw) {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
