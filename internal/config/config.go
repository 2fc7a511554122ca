// Package config provides configuration management for mediaforge using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8000
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultMaxUploadSize    = 4 * 1024 * 1024 * 1024 // 4G
	defaultTempRetention    = 24 * time.Hour
	defaultTokenExpiry      = 30 // minutes
	defaultBcryptCost       = 10
	defaultStallTimeout     = 30 * time.Second
	defaultStderrTailLines  = 20
	defaultTokenRatePerMin  = 5
	defaultJanitorSchedule  = "0 0 3 * * *" // daily at 3 AM (6-field cron)
	defaultDispatcherIdle   = 100 * time.Millisecond
	defaultDispatcherYield  = 10 * time.Millisecond
	defaultProgressStep     = 10
	defaultProgressInterval = 3 * time.Second
)

// defaultAllowedExtensions is the upload extension allowlist applied when the
// config provides none.
var defaultAllowedExtensions = []string{
	".mp4", ".mkv", ".mov", ".avi", ".webm", ".flv", ".ts", ".m4v",
	".mp3", ".flac", ".wav", ".aac", ".ogg", ".m4a", ".wma", ".opus",
}

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Transcoder TranscoderConfig `mapstructure:"transcoder"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	TokenRatePerMin int           `mapstructure:"token_rate_per_min"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds workspace filesystem configuration.
type StorageConfig struct {
	// WorkspaceRoot is the directory under which all per-owner asset
	// directories live: {workspace_root}/{owner_id}/{opaque-basename}.
	WorkspaceRoot string `mapstructure:"workspace_root"`
	// MaxUploadSize is the upper bound for a single uploaded file.
	// Supports human-readable values like "500M", "4G", or raw byte counts.
	MaxUploadSize ByteSize `mapstructure:"max_upload_size"`
	// AllowedExtensions is the upload extension allowlist (lowercase, with dot).
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	// TempRetention is how long orphaned temp outputs survive before the
	// janitor removes them.
	TempRetention Duration `mapstructure:"temp_retention"`
	// JanitorSchedule is a 6-field cron expression for the temp-file janitor.
	JanitorSchedule string `mapstructure:"janitor_schedule"`
}

// AuthConfig holds token signing and credential hashing configuration.
type AuthConfig struct {
	// SecretKey signs bearer tokens. Required; startup aborts when empty.
	SecretKey string `mapstructure:"secret_key"`
	// Algorithm is the JWT signing algorithm.
	Algorithm string `mapstructure:"algorithm"`
	// AccessTokenExpireMinutes bounds bearer token lifetime.
	AccessTokenExpireMinutes int `mapstructure:"access_token_expire_minutes"`
	// BcryptCost is the bcrypt work factor for password hashes.
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// TranscoderConfig holds transcoder binary configuration.
type TranscoderConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`  // Path to ffmpeg binary (empty = resolve on PATH)
	FFprobePath string `mapstructure:"ffprobe_path"` // Path to ffprobe binary (empty = resolve on PATH)
	// HardwareDetection enables probing the host for hardware encoders.
	HardwareDetection bool `mapstructure:"hardware_detection"`
	// HardwareOverride forces a vendor (nvidia, amd, intel, vaapi, apple,
	// none) without probing. Empty means detect.
	HardwareOverride string        `mapstructure:"hardware_override"`
	StallTimeout     time.Duration `mapstructure:"stall_timeout"`
	StderrTailLines  int           `mapstructure:"stderr_tail_lines"`
}

// DispatcherConfig holds task dispatcher tuning.
type DispatcherConfig struct {
	// IdleSleep is how long the dispatcher sleeps when every queue is empty.
	IdleSleep time.Duration `mapstructure:"idle_sleep"`
	// PassYield is the pause between round-robin passes.
	PassYield time.Duration `mapstructure:"pass_yield"`
	// ProgressStepPercent and ProgressInterval define the coalescing policy:
	// a tick is published when progress advanced by at least the step or the
	// interval elapsed since the last publish.
	ProgressStepPercent int           `mapstructure:"progress_step_percent"`
	ProgressInterval    time.Duration `mapstructure:"progress_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with MEDIAFORGE_ and use underscores
// for nesting. Example: MEDIAFORGE_SERVER_PORT=8000.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/mediaforge")
		v.AddConfigPath("$HOME/.mediaforge")
	}

	// Environment variable settings
	v.SetEnvPrefix("MEDIAFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindDeploymentEnv(v)

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a Config from an already-initialized
// viper instance (defaults set, config file read, env and flags bound).
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// BindDeploymentEnv binds the bare (unprefixed) environment variable names
// that deployments of the original service already use, so existing
// environments keep working without the MEDIAFORGE_ prefix.
func BindDeploymentEnv(v *viper.Viper) {
	// Errors from BindEnv only occur with zero arguments; ignore.
	_ = v.BindEnv("auth.secret_key", "MEDIAFORGE_AUTH_SECRET_KEY", "SECRET_KEY")
	_ = v.BindEnv("auth.algorithm", "MEDIAFORGE_AUTH_ALGORITHM", "ALGORITHM")
	_ = v.BindEnv("auth.access_token_expire_minutes", "MEDIAFORGE_AUTH_ACCESS_TOKEN_EXPIRE_MINUTES", "ACCESS_TOKEN_EXPIRE_MINUTES")
	_ = v.BindEnv("server.cors_origins", "MEDIAFORGE_SERVER_CORS_ORIGINS", "CORS_ORIGINS")
	_ = v.BindEnv("storage.max_upload_size", "MEDIAFORGE_STORAGE_MAX_UPLOAD_SIZE", "MAX_UPLOAD_SIZE")
	_ = v.BindEnv("transcoder.hardware_detection", "MEDIAFORGE_TRANSCODER_HARDWARE_DETECTION", "ENABLE_HARDWARE_ACCELERATION_DETECTION")
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.token_rate_per_min", defaultTokenRatePerMin)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "mediaforge.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.workspace_root", "./uploads")
	v.SetDefault("storage.max_upload_size", defaultMaxUploadSize)
	v.SetDefault("storage.allowed_extensions", defaultAllowedExtensions)
	v.SetDefault("storage.temp_retention", defaultTempRetention)
	v.SetDefault("storage.janitor_schedule", defaultJanitorSchedule)

	// Auth defaults
	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.algorithm", "HS256")
	v.SetDefault("auth.access_token_expire_minutes", defaultTokenExpiry)
	v.SetDefault("auth.bcrypt_cost", defaultBcryptCost)

	// Transcoder defaults
	v.SetDefault("transcoder.ffmpeg_path", "")
	v.SetDefault("transcoder.ffprobe_path", "")
	v.SetDefault("transcoder.hardware_detection", true)
	v.SetDefault("transcoder.hardware_override", "")
	v.SetDefault("transcoder.stall_timeout", defaultStallTimeout)
	v.SetDefault("transcoder.stderr_tail_lines", defaultStderrTailLines)

	// Dispatcher defaults
	v.SetDefault("dispatcher.idle_sleep", defaultDispatcherIdle)
	v.SetDefault("dispatcher.pass_yield", defaultDispatcherYield)
	v.SetDefault("dispatcher.progress_step_percent", defaultProgressStep)
	v.SetDefault("dispatcher.progress_interval", defaultProgressInterval)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// Storage validation
	if c.Storage.WorkspaceRoot == "" {
		return fmt.Errorf("storage.workspace_root is required")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("storage.max_upload_size must be positive")
	}

	// Auth validation
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key is required (set SECRET_KEY)")
	}
	validAlgorithms := map[string]bool{"HS256": true, "HS384": true, "HS512": true}
	if !validAlgorithms[c.Auth.Algorithm] {
		return fmt.Errorf("auth.algorithm must be one of: HS256, HS384, HS512")
	}
	if c.Auth.AccessTokenExpireMinutes < 1 {
		return fmt.Errorf("auth.access_token_expire_minutes must be at least 1")
	}

	// Transcoder validation
	if c.Transcoder.StallTimeout <= 0 {
		return fmt.Errorf("transcoder.stall_timeout must be positive")
	}
	if c.Transcoder.HardwareOverride != "" {
		validVendors := map[string]bool{
			"nvidia": true, "amd": true, "intel": true,
			"vaapi": true, "apple": true, "none": true,
		}
		if !validVendors[c.Transcoder.HardwareOverride] {
			return fmt.Errorf("transcoder.hardware_override must be one of: nvidia, amd, intel, vaapi, apple, none")
		}
	}

	// Dispatcher validation
	if c.Dispatcher.ProgressStepPercent < 1 || c.Dispatcher.ProgressStepPercent > 100 {
		return fmt.Errorf("dispatcher.progress_step_percent must be between 1 and 100")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ExtensionAllowed reports whether the lowercase dotted extension is in the
// upload allowlist.
func (c *StorageConfig) ExtensionAllowed(ext string) bool {
	for _, allowed := range c.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// TokenLifetime returns the bearer token lifetime as a duration.
func (c *AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}
