package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	DocIntel DocIntelConfig `yaml:"docintel" mapstructure:"docintel"`
	Poll     PollConfig     `yaml:"poll" mapstructure:"poll"`
	Agents   AgentsConfig   `yaml:"agents" mapstructure:"agents"`
	CaseMgmt CaseMgmtConfig `yaml:"casemgmt" mapstructure:"casemgmt"`
	Temporal TemporalConfig `yaml:"temporal" mapstructure:"temporal"`
	Intake   IntakeConfig   `yaml:"intake" mapstructure:"intake"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DocIntelConfig configures the document-intelligence API.
type DocIntelConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	AuthURL          string  `yaml:"auth_url" mapstructure:"auth_url"`
	DataURL          string  `yaml:"data_url" mapstructure:"data_url"`
	ClientID         string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret     string  `yaml:"client_secret" mapstructure:"client_secret"`
	APIKey           string  `yaml:"api_key" mapstructure:"api_key"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// PollConfig configures the wait on a document-intelligence job.
type PollConfig struct {
	InitialIntervalSecs  int    `yaml:"initial_interval_secs" mapstructure:"initial_interval_secs"`
	MaxIntervalSecs      int    `yaml:"max_interval_secs" mapstructure:"max_interval_secs"`
	StatusPath           string `yaml:"status_path" mapstructure:"status_path"`
	ActivityTimeoutMins  int    `yaml:"activity_timeout_mins" mapstructure:"activity_timeout_mins"`
	HeartbeatTimeoutSecs int    `yaml:"heartbeat_timeout_secs" mapstructure:"heartbeat_timeout_secs"`
}

// InitialInterval returns the first backoff interval.
func (p PollConfig) InitialInterval() time.Duration {
	return time.Duration(p.InitialIntervalSecs) * time.Second
}

// MaxInterval returns the backoff ceiling.
func (p PollConfig) MaxInterval() time.Duration {
	return time.Duration(p.MaxIntervalSecs) * time.Second
}

// AgentsConfig configures the insight agent service.
type AgentsConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	RosterFile      string `yaml:"roster_file" mapstructure:"roster_file"`
	CallTimeoutSecs int    `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// CaseMgmtConfig configures the case-management ingestion endpoint.
type CaseMgmtConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// TemporalConfig configures the workflow orchestrator connection.
type TemporalConfig struct {
	HostPort            string `yaml:"host_port" mapstructure:"host_port"`
	Namespace           string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue           string `yaml:"task_queue" mapstructure:"task_queue"`
	WorkflowTimeoutMins int    `yaml:"workflow_timeout_mins" mapstructure:"workflow_timeout_mins"`
}

// IntakeConfig configures the intake endpoint.
type IntakeConfig struct {
	WaitPollSecs    int      `yaml:"wait_poll_secs" mapstructure:"wait_poll_secs"`
	WaitMaxAttempts int      `yaml:"wait_max_attempts" mapstructure:"wait_max_attempts"`
	MaxUploadMB     int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("docintel.base_url", "")
	v.SetDefault("docintel.auth_url", "")
	v.SetDefault("docintel.data_url", "")
	v.SetDefault("docintel.client_id", "")
	v.SetDefault("docintel.client_secret", "")
	v.SetDefault("docintel.api_key", "")
	v.SetDefault("docintel.rate_limit", 5.0)
	v.SetDefault("docintel.max_attempts", 3)
	v.SetDefault("docintel.initial_backoff_ms", 500)
	v.SetDefault("docintel.max_backoff_ms", 10000)
	v.SetDefault("poll.initial_interval_secs", 30)
	v.SetDefault("poll.max_interval_secs", 120)
	v.SetDefault("poll.status_path", "status")
	v.SetDefault("poll.activity_timeout_mins", 120)
	v.SetDefault("poll.heartbeat_timeout_secs", 300)
	v.SetDefault("agents.base_url", "")
	v.SetDefault("agents.roster_file", "")
	v.SetDefault("agents.call_timeout_secs", 300)
	v.SetDefault("casemgmt.url", "")
	v.SetDefault("casemgmt.username", "")
	v.SetDefault("casemgmt.password", "")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "submission-intake")
	v.SetDefault("temporal.workflow_timeout_mins", 240)
	v.SetDefault("intake.wait_poll_secs", 10)
	v.SetDefault("intake.wait_max_attempts", 60)
	v.SetDefault("intake.max_upload_mb", 50)
	v.SetDefault("intake.allowed_origins", []string{"*"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
