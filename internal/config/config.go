package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Backup  BackupConfig  `yaml:"backup"`
	Drawing DrawingConfig `yaml:"drawing"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	GinMode string `yaml:"gin_mode"`
}

type LogConfig struct {
	File    string `yaml:"file"`
	Verbose bool   `yaml:"verbose"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // json | sqlite | postgres | memory
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type BackupConfig struct {
	Dir      string `yaml:"dir"`
	Schedule string `yaml:"schedule"`
	Keep     int    `yaml:"keep"`
}

type DrawingConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	JanitorSchedule string        `yaml:"janitor_schedule"`
}

var drivers = map[string]bool{"json": true, "sqlite": true, "postgres": true, "memory": true}

// Load reads the YAML file at path (optional), then applies RAFFLE_* variables
// from the environment and from a .env file in the working directory.
func Load(path string) (Config, error) {
	cfg := defaults()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf(".env: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", GinMode: "release"},
		Store:  StoreConfig{Driver: "json", Path: "raffle_data.json"},
		Backup: BackupConfig{Dir: "backups", Schedule: "@every 1h", Keep: 10},
		Drawing: DrawingConfig{
			IdleTimeout:     time.Hour,
			JanitorSchedule: "@every 10m",
		},
	}
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"RAFFLE_ADDR":             &c.Server.Addr,
		"RAFFLE_GIN_MODE":         &c.Server.GinMode,
		"RAFFLE_LOG_FILE":         &c.Log.File,
		"RAFFLE_STORE_DRIVER":     &c.Store.Driver,
		"RAFFLE_STORE_PATH":       &c.Store.Path,
		"RAFFLE_STORE_DSN":        &c.Store.DSN,
		"RAFFLE_BACKUP_DIR":       &c.Backup.Dir,
		"RAFFLE_BACKUP_SCHEDULE":  &c.Backup.Schedule,
		"RAFFLE_JANITOR_SCHEDULE": &c.Drawing.JanitorSchedule,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("RAFFLE_LOG_VERBOSE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RAFFLE_LOG_VERBOSE: %w", err)
		}
		c.Log.Verbose = b
	}
	if v, ok := os.LookupEnv("RAFFLE_BACKUP_KEEP"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RAFFLE_BACKUP_KEEP: %w", err)
		}
		c.Backup.Keep = n
	}
	if v, ok := os.LookupEnv("RAFFLE_IDLE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RAFFLE_IDLE_TIMEOUT: %w", err)
		}
		c.Drawing.IdleTimeout = d
	}
	return nil
}

// Normalize trims string fields and lowercases the store driver.
func (c *Config) Normalize() {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Server.GinMode = strings.ToLower(strings.TrimSpace(c.Server.GinMode))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	c.Backup.Dir = strings.TrimSpace(c.Backup.Dir)
	c.Backup.Schedule = strings.TrimSpace(c.Backup.Schedule)
	c.Drawing.JanitorSchedule = strings.TrimSpace(c.Drawing.JanitorSchedule)
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch c.Server.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("unknown server.gin_mode %q", c.Server.GinMode)
	}
	if !drivers[c.Store.Driver] {
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Store.Driver {
	case "json", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for %s", c.Store.Driver)
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn is required for postgres")
		}
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup.keep must be >= 0, got %d", c.Backup.Keep)
	}
	if c.Drawing.IdleTimeout < 0 {
		return fmt.Errorf("drawing.idle_timeout must be >= 0, got %s", c.Drawing.IdleTimeout)
	}
	return nil
}
