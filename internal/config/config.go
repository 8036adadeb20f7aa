package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Telegram       TelegramConfig       `yaml:"telegram"`
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Ban            BanConfig            `yaml:"ban"`
	Lottery        LotteryConfig        `yaml:"lottery"`
	Sweep          SweepConfig          `yaml:"sweep"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token string `yaml:"token"`
	// AdminIDs are Telegram user IDs allowed to run mutating commands.
	AdminIDs []int64 `yaml:"admin_ids"`
	// Debug enables verbose logging of the Telegram API traffic.
	Debug bool `yaml:"debug"`
}

// IsAdmin reports whether the given Telegram user ID is in the admin list.
func (t TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range t.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "sqlx" or "dbsql"
	// Migrate runs embedded schema migrations on connect.
	Migrate bool `yaml:"migrate"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// BanConfig holds the ban economy settings.
//
// Multipliers are applied to a player's current buyout price when a new ban
// is issued; DurationHours maps a multiplier to the ban length in hours.
type BanConfig struct {
	StartingBalance    int         `yaml:"starting_balance"`
	BaseBuyoutPrice    int         `yaml:"base_buyout_price"`
	LotteryMultiplier  int         `yaml:"lottery_multiplier"`
	WeeklyMultiplier   int         `yaml:"weekly_multiplier"`
	PersonalMultiplier int         `yaml:"personal_multiplier"`
	DurationHours      map[int]int `yaml:"duration_hours"`
}

// LotteryConfig holds weekly word rotation settings.
type LotteryConfig struct {
	Enabled bool `yaml:"enabled"`
	// RotationWeekday and RotationHour set the weekly firing point, in UTC.
	RotationWeekday time.Weekday `yaml:"rotation_weekday"`
	RotationHour    int          `yaml:"rotation_hour"`
}

// SweepConfig holds the expired-ban sweep settings.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "sqlx",
			Migrate: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "banbot",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "banbot-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Ban: BanConfig{
			StartingBalance:    1000,
			BaseBuyoutPrice:    100,
			LotteryMultiplier:  2,
			WeeklyMultiplier:   4,
			PersonalMultiplier: 4,
			DurationHours:      map[int]int{1: 1, 2: 2, 4: 8},
		},
		Lottery: LotteryConfig{
			Enabled:         true,
			RotationWeekday: time.Monday,
			RotationHour:    0,
		},
		Sweep: SweepConfig{
			Interval: 5 * time.Minute,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlx", "dbsql":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"sqlx\" or \"dbsql\"", c.Database.Driver)
	}
	if c.Ban.BaseBuyoutPrice <= 0 {
		return fmt.Errorf("ban.base_buyout_price must be positive, got %d", c.Ban.BaseBuyoutPrice)
	}
	if c.Ban.LotteryMultiplier < 1 || c.Ban.WeeklyMultiplier < 1 || c.Ban.PersonalMultiplier < 1 {
		return fmt.Errorf("ban multipliers must be >= 1")
	}
	if len(c.Ban.DurationHours) == 0 {
		return fmt.Errorf("ban.duration_hours must not be empty")
	}
	if c.Lottery.RotationHour < 0 || c.Lottery.RotationHour > 23 {
		return fmt.Errorf("lottery.rotation_hour must be in [0, 23], got %d", c.Lottery.RotationHour)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive, got %s", c.Sweep.Interval)
	}
	return nil
}
