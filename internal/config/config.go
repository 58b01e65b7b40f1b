package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	PostgresURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	NSQDAddress        string
	FirehoseTopic      string
	IPLimitPerMinute   int64
	GeoIPCityMMDB      string
	SeedDefaultProject bool
	CleanupInterval    time.Duration
	CleanupRetention   time.Duration
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8000"),
		PostgresURL:        strings.TrimSpace(os.Getenv("POSTGRES_URL")),
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            parseIntDefault(getenvDefault("REDIS_DB", "0"), 0),
		NSQDAddress:        strings.TrimSpace(os.Getenv("NSQD_ADDRESS")),
		FirehoseTopic:      getenvDefault("FIREHOSE_TOPIC", "events"),
		IPLimitPerMinute:   int64(parseIntDefault(getenvDefault("IP_LIMIT_PER_MINUTE", "100"), 100)),
		GeoIPCityMMDB:      strings.TrimSpace(os.Getenv("GEOIP_CITY_MMDB")),
		SeedDefaultProject: parseBoolDefault(getenvDefault("SEED_DEFAULT_PROJECT", "false"), false),
	}
	cfg.CleanupInterval = parseDurationDefault(getenvDefault("RATELIMIT_CLEANUP_INTERVAL", "1h"), time.Hour)
	cfg.CleanupRetention = parseDurationDefault(getenvDefault("RATELIMIT_RETENTION", "168h"), 168*time.Hour)

	if cfg.PostgresURL == "" {
		return Config{}, fmt.Errorf("POSTGRES_URL is required")
	}
	if cfg.IPLimitPerMinute <= 0 {
		return Config{}, fmt.Errorf("IP_LIMIT_PER_MINUTE must be positive")
	}
	return cfg, nil
}

func getenvDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBoolDefault(value string, defaultValue bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseIntDefault(value string, defaultValue int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationDefault(value string, defaultValue time.Duration) time.Duration {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}

func (c Config) String() string {
	return fmt.Sprintf(
		"http=%s pg=%s redis=%s nsqd=%s firehose=%s ip_limit=%d geoip=%v seed=%v cleanup(every=%s keep=%s)",
		c.HTTPAddr,
		redactPostgresURL(c.PostgresURL),
		redactRedis(c.RedisAddr),
		redactRedis(c.NSQDAddress),
		c.FirehoseTopic,
		c.IPLimitPerMinute,
		c.GeoIPCityMMDB != "",
		c.SeedDefaultProject,
		c.CleanupInterval,
		c.CleanupRetention,
	)
}

func redactPostgresURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "<none>"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<set>"
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	host := u.Host
	db := strings.TrimPrefix(u.Path, "/")
	if user == "" && host == "" && db == "" {
		return "<set>"
	}
	if user == "" {
		user = "?"
	}
	if host == "" {
		host = "?"
	}
	if db == "" {
		db = "?"
	}
	return fmt.Sprintf("%s@%s/%s", user, host, db)
}

func redactRedis(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "<none>"
	}
	return addr
}
