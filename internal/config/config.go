package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	SLA      SLAConfig      `mapstructure:"sla"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig holds engine behavior switches
type WorkflowConfig struct {
	// AllowOverdueActions lets assignees still decide OVERDUE tasks
	AllowOverdueActions bool `mapstructure:"allow_overdue_actions"`
	// Authorizer is "roles" to re-check role membership at decision time, or "none"
	Authorizer          string        `mapstructure:"authorizer"`
	NotificationTimeout time.Duration `mapstructure:"notification_timeout"`
}

// SLAConfig holds scheduler settings
type SLAConfig struct {
	Enabled                  bool          `mapstructure:"enabled"`
	EscalationEnabled        bool          `mapstructure:"escalation_enabled"`
	EscalationGraceHours     int           `mapstructure:"escalation_grace_hours"`
	EscalationRoleName       string        `mapstructure:"escalation_role_name"`
	EscalationExtensionHours int           `mapstructure:"escalation_extension_hours"`
	EscalationStrategy       string        `mapstructure:"escalation_strategy"`
	SchedulerIntervalMinutes int           `mapstructure:"scheduler_interval_minutes"`
	SchedulerBatchSize       int           `mapstructure:"scheduler_batch_size"`
	InitialDelay             time.Duration `mapstructure:"initial_delay"`
	Workers                  int           `mapstructure:"workers"`
	MaxConflictRetries       int           `mapstructure:"max_conflict_retries"`
}

// Interval returns the scheduler period
func (s SLAConfig) Interval() time.Duration {
	return time.Duration(s.SchedulerIntervalMinutes) * time.Minute
}

// LarkConfig holds Lark messaging configuration
type LarkConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	AppID               string        `mapstructure:"app_id"`
	AppSecret           string        `mapstructure:"app_secret"`
	ReceiveIDType       string        `mapstructure:"receive_id_type"`
	BreakerMaxRequests  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailureLimit uint32        `mapstructure:"breaker_failure_limit"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads an optional .env file, the YAML file at configPath (skipped when
// empty) and APPROVAL_* environment variables, in increasing precedence.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("APPROVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/approval.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Workflow defaults
	v.SetDefault("workflow.allow_overdue_actions", false)
	v.SetDefault("workflow.authorizer", "roles")
	v.SetDefault("workflow.notification_timeout", 10*time.Second)

	// SLA defaults
	v.SetDefault("sla.enabled", true)
	v.SetDefault("sla.escalation_enabled", true)
	v.SetDefault("sla.escalation_grace_hours", 24)
	v.SetDefault("sla.escalation_role_name", "ESCALATION_MANAGER")
	v.SetDefault("sla.escalation_extension_hours", 24)
	v.SetDefault("sla.escalation_strategy", "first")
	v.SetDefault("sla.scheduler_interval_minutes", 10)
	v.SetDefault("sla.scheduler_batch_size", 100)
	v.SetDefault("sla.initial_delay", 30*time.Second)
	v.SetDefault("sla.workers", 1)
	v.SetDefault("sla.max_conflict_retries", 3)

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.receive_id_type", "user_id")
	v.SetDefault("lark.breaker_max_requests", 1)
	v.SetDefault("lark.breaker_interval", time.Minute)
	v.SetDefault("lark.breaker_timeout", 30*time.Second)
	v.SetDefault("lark.breaker_failure_limit", 5)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// bindEnvVars binds the unprefixed credential variables
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", "APPROVAL_LARK_APP_ID", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "APPROVAL_LARK_APP_SECRET", "LARK_APP_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Workflow.Authorizer {
	case "roles", "none":
	default:
		return fmt.Errorf("workflow.authorizer must be roles or none, got %q", c.Workflow.Authorizer)
	}

	if c.SLA.SchedulerIntervalMinutes <= 0 {
		return fmt.Errorf("sla.scheduler_interval_minutes must be positive")
	}
	if c.SLA.SchedulerBatchSize <= 0 {
		return fmt.Errorf("sla.scheduler_batch_size must be positive")
	}
	if c.SLA.EscalationGraceHours < 0 {
		return fmt.Errorf("sla.escalation_grace_hours must not be negative")
	}
	if c.SLA.EscalationExtensionHours <= 0 {
		return fmt.Errorf("sla.escalation_extension_hours must be positive")
	}
	if c.SLA.Workers <= 0 {
		return fmt.Errorf("sla.workers must be positive")
	}
	switch c.SLA.EscalationStrategy {
	case "first", "least_loaded":
	default:
		return fmt.Errorf("sla.escalation_strategy must be first or least_loaded, got %q", c.SLA.EscalationStrategy)
	}
	if c.SLA.EscalationEnabled && c.SLA.EscalationRoleName == "" {
		return fmt.Errorf("sla.escalation_role_name is required when escalation is enabled")
	}

	// Validate Lark credentials
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}
