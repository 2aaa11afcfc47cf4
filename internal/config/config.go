// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	cfg *Config
	mu  sync.RWMutex
)

// Config represents the application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Email     EmailConfig     `mapstructure:"email"`
	SLA       SLAConfig       `mapstructure:"sla"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Debug    bool   `mapstructure:"debug"`
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type EmailConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	From    string `mapstructure:"from"`
	SMTP    struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		StartTLS bool   `mapstructure:"starttls"`
	} `mapstructure:"smtp"`
}

// SLAConfig carries the engine's tunables.
type SLAConfig struct {
	// ComplianceTarget is the monthly compliance percentage an organization
	// must meet to be marked compliant.
	ComplianceTarget float64 `mapstructure:"compliance_target"`
	// WarningWindow is how far ahead of a due date the warning sweep notifies.
	WarningWindow time.Duration `mapstructure:"warning_window"`
	// SystemActorID is the actor recorded for sweep-originated writes.
	SystemActorID int64 `mapstructure:"system_actor_id"`
}

// SchedulerConfig holds cron expressions for the periodic jobs.
type SchedulerConfig struct {
	BreachSweep        string `mapstructure:"breach_sweep"`
	WarningSweep       string `mapstructure:"warning_sweep"`
	EscalationSweep    string `mapstructure:"escalation_sweep"`
	MonthlyAggregation string `mapstructure:"monthly_aggregation"`
}

// Load reads configuration from the given file (optional) plus OPSDESK_*
// environment overrides, applies defaults, and caches the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OPSDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	mu.Lock()
	cfg = c
	mu.Unlock()
	return c, nil
}

// Get returns the last loaded configuration, loading defaults if needed.
func Get() *Config {
	mu.RLock()
	c := cfg
	mu.RUnlock()
	if c != nil {
		return c
	}
	c, err := Load("")
	if err != nil {
		// Defaults cannot fail to unmarshal; keep the zero config as a guard.
		return &Config{}
	}
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "opsdesk")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.timezone", "UTC")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "opsdesk:opsdesk@tcp(localhost:3306)/opsdesk?parseTime=true")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.from", "noreply@opsdesk.local")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.starttls", true)

	v.SetDefault("sla.compliance_target", 95.0)
	v.SetDefault("sla.warning_window", time.Hour)
	v.SetDefault("sla.system_actor_id", 1)

	v.SetDefault("scheduler.breach_sweep", "*/5 * * * *")
	v.SetDefault("scheduler.warning_sweep", "*/15 * * * *")
	v.SetDefault("scheduler.escalation_sweep", "*/10 * * * *")
	v.SetDefault("scheduler.monthly_aggregation", "15 0 * * *")
}
