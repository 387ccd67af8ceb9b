/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the monitor service configuration from flags,
// environment variables, and an optional YAML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the monitor service
type Config struct {
	// configFileUsed is the path to the config file that was loaded (empty if none)
	configFileUsed string

	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string `mapstructure:"log-level"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Sweeps configuration for the background loops
	Sweeps SweepsConfig `mapstructure:"sweeps"`
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	// Host is the bind address (empty for all interfaces)
	Host string `mapstructure:"host" json:"host,omitempty"`

	// Port for the API server
	Port int `mapstructure:"port" json:"port"`

	// APIKey required on ingest requests (empty disables auth)
	APIKey string `mapstructure:"api-key" json:"-"`

	// IngestRatePerSecond caps accepted ingest requests (0 disables limiting)
	IngestRatePerSecond float64 `mapstructure:"ingest-rate-per-second" json:"ingestRatePerSecond"`

	// IngestBurst is the ingest rate limiter burst size
	IngestBurst int `mapstructure:"ingest-burst" json:"ingestBurst"`
}

// StorageConfig configures the storage backend
type StorageConfig struct {
	// Type is the storage backend type (sqlite, postgres, mysql)
	Type string `mapstructure:"type" json:"type"`

	// SQLite configuration
	SQLite SQLiteConfig `mapstructure:"sqlite" json:"sqlite,omitempty"`

	// PostgreSQL configuration
	PostgreSQL PostgreSQLConfig `mapstructure:"postgres" json:"postgres,omitempty"`

	// MySQL configuration
	MySQL MySQLConfig `mapstructure:"mysql" json:"mysql,omitempty"`
}

// SQLiteConfig configures SQLite storage
type SQLiteConfig struct {
	// Path to database file
	Path string `mapstructure:"path" json:"path"`
}

// PostgreSQLConfig configures PostgreSQL storage
type PostgreSQLConfig struct {
	// Host is the database host
	Host string `mapstructure:"host" json:"host,omitempty"`

	// Port is the database port
	Port int `mapstructure:"port" json:"port,omitempty"`

	// Database name
	Database string `mapstructure:"database" json:"database,omitempty"`

	// Username for authentication
	Username string `mapstructure:"username" json:"username,omitempty"`

	// Password for authentication (omitted from JSON for security)
	Password string `mapstructure:"password" json:"-"`

	// SSLMode for connection
	SSLMode string `mapstructure:"ssl-mode" json:"sslMode,omitempty"`
}

// MySQLConfig configures MySQL/MariaDB storage
type MySQLConfig struct {
	// Host is the database host
	Host string `mapstructure:"host" json:"host,omitempty"`

	// Port is the database port
	Port int `mapstructure:"port" json:"port,omitempty"`

	// Database name
	Database string `mapstructure:"database" json:"database,omitempty"`

	// Username for authentication
	Username string `mapstructure:"username" json:"username,omitempty"`

	// Password for authentication (omitted from JSON for security)
	Password string `mapstructure:"password" json:"-"`
}

// SweepsConfig configures the background loops
type SweepsConfig struct {
	// EvaluatorInterval is how often checks are graded for lateness
	EvaluatorInterval time.Duration `mapstructure:"evaluator-interval" json:"evaluatorInterval"`

	// RetentionInterval is how often old events are pruned
	RetentionInterval time.Duration `mapstructure:"retention-interval" json:"retentionInterval"`

	// RetentionDays is how long events are kept
	RetentionDays int `mapstructure:"retention-days" json:"retentionDays"`

	// RecoveryTTL is how long RECOVERY alerts stay open before auto-close
	RecoveryTTL time.Duration `mapstructure:"recovery-ttl" json:"recoveryTTL"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:                7410,
			IngestRatePerSecond: 0,
			IngestBurst:         0,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path: "chief-monitor.db",
			},
			PostgreSQL: PostgreSQLConfig{
				Port:    5432,
				SSLMode: "require",
			},
			MySQL: MySQLConfig{
				Port: 3306,
			},
		},
		Sweeps: SweepsConfig{
			EvaluatorInterval: 15 * time.Second,
			RetentionInterval: 1 * time.Hour,
			RetentionDays:     30,
			RecoveryTTL:       15 * time.Minute,
		},
	}
}

// BindFlags binds configuration flags to pflags
func BindFlags(flags *pflag.FlagSet) {
	// Top-level
	flags.String("config", "", "Path to config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	// Server
	flags.String("server.host", "", "API server bind address (empty for all interfaces)")
	flags.Int("server.port", 7410, "API server port")
	flags.String("server.api-key", "", "API key required on ingest requests (empty disables auth)")
	flags.Float64("server.ingest-rate-per-second", 0, "Ingest rate limit in requests per second (0 disables)")
	flags.Int("server.ingest-burst", 0, "Ingest rate limiter burst size (0 derives from the rate)")

	// Storage
	flags.String("storage.type", "sqlite", "Storage backend type (sqlite, postgres, mysql)")
	flags.String("storage.sqlite.path", "chief-monitor.db", "Path to SQLite database file")
	flags.String("storage.postgres.host", "", "PostgreSQL host")
	flags.Int("storage.postgres.port", 5432, "PostgreSQL port")
	flags.String("storage.postgres.database", "", "PostgreSQL database name")
	flags.String("storage.postgres.username", "", "PostgreSQL username")
	flags.String("storage.postgres.password", "", "PostgreSQL password")
	flags.String("storage.postgres.ssl-mode", "require", "PostgreSQL SSL mode")
	flags.String("storage.mysql.host", "", "MySQL host")
	flags.Int("storage.mysql.port", 3306, "MySQL port")
	flags.String("storage.mysql.database", "", "MySQL database name")
	flags.String("storage.mysql.username", "", "MySQL username")
	flags.String("storage.mysql.password", "", "MySQL password")

	// Sweeps
	flags.Duration("sweeps.evaluator-interval", 15*time.Second, "How often checks are graded for lateness")
	flags.Duration("sweeps.retention-interval", 1*time.Hour, "How often old events are pruned")
	flags.Int("sweeps.retention-days", 30, "How long events are kept, in days")
	flags.Duration("sweeps.recovery-ttl", 15*time.Minute, "How long RECOVERY alerts stay open before auto-close")
}

// Load loads configuration from flags, environment, and config file
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults from DefaultConfig
	defaults := DefaultConfig()
	v.SetDefault("log-level", defaults.LogLevel)
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.api-key", defaults.Server.APIKey)
	v.SetDefault("server.ingest-rate-per-second", defaults.Server.IngestRatePerSecond)
	v.SetDefault("server.ingest-burst", defaults.Server.IngestBurst)
	v.SetDefault("storage.type", defaults.Storage.Type)
	v.SetDefault("storage.sqlite.path", defaults.Storage.SQLite.Path)
	v.SetDefault("storage.postgres.port", defaults.Storage.PostgreSQL.Port)
	v.SetDefault("storage.postgres.ssl-mode", defaults.Storage.PostgreSQL.SSLMode)
	v.SetDefault("storage.mysql.port", defaults.Storage.MySQL.Port)
	v.SetDefault("sweeps.evaluator-interval", defaults.Sweeps.EvaluatorInterval)
	v.SetDefault("sweeps.retention-interval", defaults.Sweeps.RetentionInterval)
	v.SetDefault("sweeps.retention-days", defaults.Sweeps.RetentionDays)
	v.SetDefault("sweeps.recovery-ttl", defaults.Sweeps.RecoveryTTL)

	// Bind flags
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	// Environment variables
	v.SetEnvPrefix("CHIEF_MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Config file
	var configFileUsed string
	if configFile, _ := flags.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		configFileUsed = v.ConfigFileUsed()
	} else {
		// Try default locations
		v.SetConfigName("chief-monitor")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/chief-monitor")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err == nil {
			configFileUsed = v.ConfigFileUsed()
		}
		// Ignore error if no config file found - will use defaults
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Store which config file was used (empty string if none)
	cfg.configFileUsed = configFileUsed

	return cfg, nil
}

// ConfigFileUsed returns the path to the config file that was loaded (empty if none)
func (c *Config) ConfigFileUsed() string {
	return c.configFileUsed
}

// DSN builds the storage connection string for the configured backend.
func (c *Config) DSN() (string, error) {
	switch c.Storage.Type {
	case "sqlite":
		return c.Storage.SQLite.Path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	case "postgres":
		pg := c.Storage.PostgreSQL
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			pg.Host, pg.Port, pg.Username, pg.Password, pg.Database, pg.SSLMode), nil
	case "mysql":
		my := c.Storage.MySQL
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			my.Username, my.Password, my.Host, my.Port, my.Database), nil
	default:
		return "", fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
}
