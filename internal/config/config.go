package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"servedate/internal/servedate"
	"servedate/internal/slots"
)

// DefaultPath is used when SERVEDATE_CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

// Storage drivers for the local order slot.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

type Config struct {
	Business struct {
		WindowDays         int `yaml:"window_days"`
		ExtendedWindowDays int `yaml:"extended_window_days"`
	} `yaml:"business"`

	Slots struct {
		Open        string `yaml:"open"`
		Close       string `yaml:"close"`
		CafeClose   string `yaml:"cafe_close"`
		DailyCutoff string `yaml:"daily_cutoff"`
		SlotMinutes int    `yaml:"slot_minutes"`
		DisableCafe bool   `yaml:"disable_cafe"`
	} `yaml:"slots"`

	// Backend is the ordering API: orders and menus are sent to and read from it.
	Backend struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"backend"`

	// ServerTime falls back to the backend URL and key when its own are unset.
	ServerTime struct {
		Enabled             bool   `yaml:"enabled"`
		BaseURL             string `yaml:"base_url"`
		APIKey              string `yaml:"api_key"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
		TimeoutSeconds      int    `yaml:"timeout_seconds"`
		RetryAttempts       int    `yaml:"retry_attempts"`
		MinRefreshSeconds   int    `yaml:"min_refresh_seconds"`
	} `yaml:"server_time"`

	Storage struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
		Key        string `yaml:"key"`
		TTLHours   int    `yaml:"ttl_hours"`
	} `yaml:"storage"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	MenuCache struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"menu_cache"`

	Rollover struct {
		CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	} `yaml:"rollover"`

	API struct {
		Port int `yaml:"port"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Log struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"log"`
}

// PathFromEnv returns SERVEDATE_CONFIG_PATH or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv("SERVEDATE_CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// LoadEnv loads .env files into the environment if present. Existing
// variables win.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Driver == DriverSQLite {
		if err = os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := slots.DefaultSchedule()
	if c.Business.WindowDays <= 0 {
		c.Business.WindowDays = servedate.DefaultWindowDays
	}
	if c.Business.ExtendedWindowDays <= 0 {
		c.Business.ExtendedWindowDays = servedate.ExtendedWindowDays
	}
	if c.Slots.Open == "" {
		c.Slots.Open = def.Open
	}
	if c.Slots.Close == "" {
		c.Slots.Close = def.Close
	}
	switch {
	case c.Slots.DisableCafe:
		c.Slots.CafeClose = ""
	case c.Slots.CafeClose == "":
		c.Slots.CafeClose = def.CafeClose
	}
	if c.Slots.DailyCutoff == "" {
		c.Slots.DailyCutoff = def.DailyCutoff
	}
	if c.Slots.SlotMinutes <= 0 {
		c.Slots.SlotMinutes = def.SlotDuration
	}
	c.Backend.BaseURL = strings.TrimSpace(c.Backend.BaseURL)
	if c.ServerTime.BaseURL == "" {
		c.ServerTime.BaseURL = c.Backend.BaseURL
	}
	if c.ServerTime.APIKey == "" {
		c.ServerTime.APIKey = c.Backend.APIKey
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/servedate.db"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "servedate:"
	}
	if c.API.Port <= 0 {
		c.API.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverRedis:
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("redis.address is required for the redis storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.ServerTime.Enabled && c.ServerTime.BaseURL == "" {
		errs = append(errs, errors.New("server_time.base_url or backend.base_url is required when server_time is enabled"))
	}
	if c.MenuCache.TTLSeconds > 0 && c.Redis.Address == "" {
		errs = append(errs, errors.New("menu_cache requires redis.address"))
	}
	if c.Business.ExtendedWindowDays < c.Business.WindowDays {
		errs = append(errs, errors.New("business.extended_window_days must not be shorter than window_days"))
	}
	return errors.Join(errs...)
}

// Schedule converts the slot section.
func (c *Config) Schedule() slots.Schedule {
	return slots.Schedule{
		Open:         c.Slots.Open,
		Close:        c.Slots.Close,
		CafeClose:    c.Slots.CafeClose,
		DailyCutoff:  c.Slots.DailyCutoff,
		SlotDuration: c.Slots.SlotMinutes,
	}
}

// BackendEnabled reports whether orders and menus have somewhere to go.
func (c *Config) BackendEnabled() bool {
	return c.Backend.BaseURL != ""
}

func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	if c.ServerTime.PollIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ServerTime.PollIntervalSeconds) * time.Second
}

func (c *Config) ServerTimeTimeout() time.Duration {
	if c.ServerTime.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ServerTime.TimeoutSeconds) * time.Second
}

func (c *Config) MinRefresh() time.Duration {
	if c.ServerTime.MinRefreshSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ServerTime.MinRefreshSeconds) * time.Second
}

func (c *Config) RolloverInterval() time.Duration {
	if c.Rollover.CheckIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Rollover.CheckIntervalSeconds) * time.Second
}

func (c *Config) MenuCacheTTL() time.Duration {
	if c.MenuCache.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.MenuCache.TTLSeconds) * time.Second
}

// StorageTTL bounds how long an abandoned order slot lingers in redis.
func (c *Config) StorageTTL() time.Duration {
	if c.Storage.TTLHours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(c.Storage.TTLHours) * time.Hour
}
