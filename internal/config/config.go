package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`
	Auth         AuthConfig         `yaml:"auth" mapstructure:"auth"`
	Slack        SlackConfig        `yaml:"slack" mapstructure:"slack"`
	PagerDuty    PagerDutyConfig    `yaml:"pagerduty" mapstructure:"pagerduty"`
	Heartbeat    HeartbeatConfig    `yaml:"heartbeat" mapstructure:"heartbeat"`
	Approval     ApprovalConfig     `yaml:"approval" mapstructure:"approval"`
	WorkingHours WorkingHoursConfig `yaml:"working_hours" mapstructure:"working_hours"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Name            string        `yaml:"name" mapstructure:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
}

type SlackConfig struct {
	BotToken        string        `yaml:"bot_token" mapstructure:"bot_token"`
	SigningSecret   string        `yaml:"signing_secret" mapstructure:"signing_secret"`
	ApprovalChannel string        `yaml:"approval_channel" mapstructure:"approval_channel"`
	AlertChannel    string        `yaml:"alert_channel" mapstructure:"alert_channel"`
	APIBaseURL      string        `yaml:"api_base_url" mapstructure:"api_base_url"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type PagerDutyConfig struct {
	RoutingKey string        `yaml:"routing_key" mapstructure:"routing_key"`
	EventsURL  string        `yaml:"events_url" mapstructure:"events_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type HeartbeatConfig struct {
	// EvaluationInterval is how often the staleness pass runs.
	EvaluationInterval time.Duration `yaml:"evaluation_interval" mapstructure:"evaluation_interval"`
	// IngestToken, when set, is required of agents posting heartbeats.
	// Empty leaves ingestion open.
	IngestToken string `yaml:"ingest_token" mapstructure:"ingest_token"`
}

type ApprovalConfig struct {
	// TTL bounds how long an approval request stays open; zero means
	// requests never expire.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

type WorkingHoursConfig struct {
	Timezone                    string `yaml:"timezone" mapstructure:"timezone"`
	Start                       string `yaml:"start" mapstructure:"start"` // HH:MM
	End                         string `yaml:"end" mapstructure:"end"`   // HH:MM
	PageOnlyOutsideWorkingHours bool   `yaml:"page_only_outside_working_hours" mapstructure:"page_only_outside_working_hours"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"` // json, text
	Output     string `yaml:"output" mapstructure:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`    // MB
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`     // days
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // number of backup files
	Compress   bool   `yaml:"compress" mapstructure:"compress"`    // compress backup files
}

type MonitoringConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	MetricsPath string        `yaml:"metrics_path" mapstructure:"metrics_path"`
	Tracing     TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// TracingConfig holds the OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`     // OTLP gRPC endpoint, e.g. otel-collector:4317
	Insecure    bool    `yaml:"insecure" mapstructure:"insecure"`     // plaintext for local/dev
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"` // 0.0 - 1.0
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"` // defaults to "pulseguard"
}

func Load() *Config {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}
	return &config
}

// GetDefaultConfig returns the built-in defaults.
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "pulseguard",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: 3600 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Slack: SlackConfig{
			APIBaseURL: "https://slack.com/api",
			Timeout:    30 * time.Second,
		},
		PagerDuty: PagerDutyConfig{
			Timeout: 30 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			EvaluationInterval: 30 * time.Second,
		},
		Approval: ApprovalConfig{
			TTL:           30 * time.Minute,
			SweepInterval: 60 * time.Second,
		},
		WorkingHours: WorkingHoursConfig{
			Timezone: "UTC",
			Start:    "09:00",
			End:      "18:00",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "both",
			FilePath:   "./logs/pulseguard.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "pulseguard",
			},
		},
	}
}
