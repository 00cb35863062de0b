package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the main config struct
type Config struct {
	Environment string           `yaml:"environment" env:"ENVIRONMENT" env-default:"production" env-description:"Environment name"`
	Secret      string           `yaml:"secret" env:"SECRET" env-default:"" env-description:"Bearer token for the admin API group"`
	Verbose     string           `yaml:"verbose" env:"VERBOSE" env-default:"info" env-description:"Verbose mode for debug output"`
	Database    DatabaseConfig   `yaml:"database"`
	API         APIConfig        `yaml:"api"`
	Moderation  ModerationConfig `yaml:"moderation"`
	Influx      InfluxConfig     `yaml:"influx"`
	Webhook     WebhookConfig    `yaml:"webhook"`
}

// API config
type APIConfig struct {
	Host         string        `yaml:"host" env:"API_HOST" env-default:"localhost" env-description:"API host address to bind to"`
	Port         int           `yaml:"port" env:"API_PORT" env-default:"8080" env-description:"API port to bind to"`
	Timeout      time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"30s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"API_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"API_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"API_IDLE_TIMEOUT" env-default:"15s"`
}

// SQLite, PostgreSQL or MySQL config
type DatabaseConfig struct {
	// Driver is the database driver to use. Supported drivers are "sqlite3", "postgres" and "mysql".
	Driver     string `yaml:"driver" env:"DATABASE_DRIVER" env-default:"sqlite3" env-description:"Database driver to use"`
	Connection string `yaml:"connection" env:"DATABASE_CONNECTION" env-default:":memory:" env-description:"Database connection string"`
}

// Moderation policy config: report quotas, intake validation, sanctions.
type ModerationConfig struct {
	HourlyReportLimit int64         `yaml:"hourly_report_limit" env:"MODERATION_HOURLY_REPORT_LIMIT" env-default:"5" env-description:"Max reports per reporter per rolling hour"`
	DailyReportLimit  int64         `yaml:"daily_report_limit" env:"MODERATION_DAILY_REPORT_LIMIT" env-default:"20" env-description:"Max reports per reporter per rolling 24 hours"`
	MinReasonLength   int           `yaml:"min_reason_length" env:"MODERATION_MIN_REASON_LENGTH" env-default:"20" env-description:"Minimum report reason length"`
	DefaultSuspension time.Duration `yaml:"default_suspension" env:"MODERATION_DEFAULT_SUSPENSION" env-default:"168h" env-description:"Suspension duration when a resolution carries none"`
}

// InfluxDB metrics config. Metrics are disabled when the URL is empty.
type InfluxConfig struct {
	URL    string `yaml:"url" env:"INFLUX_URL" env-default:"" env-description:"InfluxDB URL, empty disables metrics"`
	Token  string `yaml:"token" env:"INFLUX_TOKEN" env-default:""`
	Org    string `yaml:"org" env:"INFLUX_ORG" env-default:""`
	Bucket string `yaml:"bucket" env:"INFLUX_BUCKET" env-default:""`
}

// Webhook notification config. Events are not delivered when the URL is empty.
type WebhookConfig struct {
	URL   string      `yaml:"url" env:"WEBHOOK_URL" env-default:"" env-description:"Endpoint receiving moderation domain events"`
	Proxy ProxyConfig `yaml:"proxy"`
}

// Optional SOCKS5 proxy for outbound webhook delivery.
type ProxyConfig struct {
	Address  string `yaml:"address" env:"PROXY_ADDRESS" env-default:""`
	Port     int    `yaml:"port" env:"PROXY_PORT" env-default:"0"`
	Username string `yaml:"username" env:"PROXY_USERNAME" env-default:""`
	Password string `yaml:"password" env:"PROXY_PASSWORD" env-default:""`
}

// ConfigError - config loading error with a human-readable message.
type ConfigError struct {
	Message string
}

// Error - implementation of the error interface.
func (e *ConfigError) Error() string {
	return e.Message
}

// MustLoadConfig reads the config file pointed to by CONFIG_PATH (falling
// back to ./config.yml) and applies environment overrides. When no file
// exists the environment alone is used.
func MustLoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yml"
	}

	var config Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, &ConfigError{
				Message: fmt.Sprintf("Cannot read config from environment: %s", err),
			}
		}

		return &config, nil
	}

	if err := cleanenv.ReadConfig(configPath, &config); err != nil {
		return nil, &ConfigError{
			Message: fmt.Sprintf("Cannot read config file: %s", err),
		}
	}

	return &config, nil
}
