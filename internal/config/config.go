package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmarkov/weather-notify/internal/models"
	"github.com/dmarkov/weather-notify/internal/scheduler"
)

// Config holds service configuration loaded from YAML and env. Fixed at
// process start; never reloaded.
type Config struct {
	Timezone  *time.Location
	Units     string
	Locations []models.Location
	Slots     []scheduler.Slot

	TickInterval time.Duration
	MissedGrace  time.Duration

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	CacheTTL     time.Duration
	CacheBackend string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	TempJumpDelta float64
	HighWindSpeed float64

	UpstreamRateLimitRPS   float64
	UpstreamRateLimitBurst int

	BreakerEnabled     bool
	BreakerMaxFailures uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration

	TelegramToken string
	Subscribers   []string
	SendTimeout   time.Duration

	StorePath string // empty disables history

	OpsPort         string
	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Timezone string `yaml:"timezone"`
	Units    string `yaml:"units"`

	Locations []models.Location `yaml:"locations"`

	Schedule struct {
		Slots        []string `yaml:"slots"`
		TickInterval string   `yaml:"tick_interval"`
		MissedGrace  string   `yaml:"missed_grace"`
	} `yaml:"schedule"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Alerts struct {
		TemperatureJump float64 `yaml:"temperature_jump"`
		HighWind        float64 `yaml:"high_wind"`
	} `yaml:"alerts"`

	Reliability struct {
		UpstreamRateLimitRPS   float64 `yaml:"upstream_rate_limit_rps"`
		UpstreamRateLimitBurst int     `yaml:"upstream_rate_limit_burst"`
		Breaker                struct {
			Enabled     bool   `yaml:"enabled"`
			MaxFailures uint32 `yaml:"max_failures"`
			Interval    string `yaml:"interval"`
			Timeout     string `yaml:"timeout"`
		} `yaml:"breaker"`
	} `yaml:"reliability"`

	Notifications struct {
		Subscribers []string `yaml:"subscribers"`
		SendTimeout string   `yaml:"send_timeout"`
	} `yaml:"notifications"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Ops struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"ops"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// OPENWEATHER_API_KEY comes from env and is required; TELEGRAM_BOT_TOKEN
// is required when subscribers are configured. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return build(&fc)
}

func build(fc *fileConfig) (*Config, error) {
	cfg := &Config{}

	tzName := fc.Timezone
	if tzName == "" {
		tzName = "Europe/Moscow"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tzName, err)
	}
	cfg.Timezone = tz

	cfg.Units = strings.TrimSpace(strings.ToLower(fc.Units))
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	switch cfg.Units {
	case "metric", "imperial", "standard":
	default:
		return nil, fmt.Errorf("units must be metric, imperial or standard, got %q", cfg.Units)
	}

	cfg.Locations = fc.Locations
	if len(cfg.Locations) == 0 {
		cfg.Locations = []models.Location{
			{ID: "Moscow", Name: "Moscow"},
			{ID: "Saint Petersburg", Name: "Saint Petersburg"},
			{ID: "Pskov", Name: "Pskov"},
			{ID: "Belgrade", Name: "Belgrade"},
		}
	}
	seen := make(map[string]struct{}, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		if loc.ID == "" {
			return nil, fmt.Errorf("location with empty id")
		}
		if _, dup := seen[loc.ID]; dup {
			return nil, fmt.Errorf("duplicate location id %q", loc.ID)
		}
		seen[loc.ID] = struct{}{}
	}

	slotSpecs := fc.Schedule.Slots
	if len(slotSpecs) == 0 {
		slotSpecs = []string{"08:00", "21:30"}
	}
	for _, spec := range slotSpecs {
		slot, err := scheduler.ParseSlot(spec)
		if err != nil {
			return nil, err
		}
		cfg.Slots = append(cfg.Slots, slot)
	}

	cfg.TickInterval = parseDuration(fc.Schedule.TickInterval, 30*time.Second)
	cfg.MissedGrace = parseDuration(fc.Schedule.MissedGrace, 30*time.Minute)

	cfg.WeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("OPENWEATHER_API_KEY required")
	}
	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 30*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return nil, fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.TempJumpDelta = fc.Alerts.TemperatureJump
	if cfg.TempJumpDelta <= 0 {
		cfg.TempJumpDelta = 5.0
	}
	cfg.HighWindSpeed = fc.Alerts.HighWind
	if cfg.HighWindSpeed <= 0 {
		cfg.HighWindSpeed = 15.0
	}

	cfg.UpstreamRateLimitRPS = fc.Reliability.UpstreamRateLimitRPS
	cfg.UpstreamRateLimitBurst = fc.Reliability.UpstreamRateLimitBurst
	if cfg.UpstreamRateLimitRPS > 0 && cfg.UpstreamRateLimitBurst <= 0 {
		cfg.UpstreamRateLimitBurst = len(cfg.Locations)
	}

	cfg.BreakerEnabled = fc.Reliability.Breaker.Enabled
	cfg.BreakerMaxFailures = fc.Reliability.Breaker.MaxFailures
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	cfg.BreakerInterval = parseDuration(fc.Reliability.Breaker.Interval, 2*time.Minute)
	cfg.BreakerTimeout = parseDuration(fc.Reliability.Breaker.Timeout, 1*time.Minute)

	cfg.Subscribers = fc.Notifications.Subscribers
	cfg.SendTimeout = parseDuration(fc.Notifications.SendTimeout, 10*time.Second)
	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if len(cfg.Subscribers) > 0 && cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN required when subscribers are configured")
	}

	cfg.StorePath = fc.Store.Path

	cfg.OpsPort = fc.Ops.Port
	if cfg.OpsPort == "" {
		cfg.OpsPort = "8080"
	}
	cfg.ShutdownTimeout = parseDuration(fc.Ops.ShutdownTimeout, 15*time.Second)

	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
