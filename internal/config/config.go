// Package config loads the host settings of the agent runtime. The run
// payload itself is handled by internal/bootstrap; this file only tunes how
// the host compiles agents, talks to the hub and records runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nuyoahch/agent-runtime/internal/capability"
	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

// Config is the host settings file. JSON files load too.
type Config struct {
	Logger   logger.Config     `yaml:"logger"`
	Loader   LoaderConfig      `yaml:"loader"`
	Hub      HubConfig         `yaml:"hub"`
	Policy   capability.Policy `yaml:"policy"`
	Events   EventsConfig      `yaml:"events"`
	RunStore RunStoreConfig    `yaml:"run_store"`
	Metrics  MetricsConfig     `yaml:"metrics"`
	Poll     PollConfig        `yaml:"poll"`
	Alerting AlertingConfig    `yaml:"alerting"`
}

// LoaderConfig 控制智能体源码的编译方式。
type LoaderConfig struct {
	// OutputDir receives compiled artifacts. Empty means the directory of
	// the running executable.
	OutputDir      string   `yaml:"output_dir"`
	GoBinary       string   `yaml:"go_binary"`
	WorkDir        string   `yaml:"work_dir"`
	EntryName      string   `yaml:"entry_name"`
	BuildFlags     []string `yaml:"build_flags"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Timeout bounds one compile.
func (c LoaderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HubConfig 调整访问 hub 的传输参数。
type HubConfig struct {
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Timeout bounds one hub request.
func (c HubConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EventsConfig selects where lifecycle events go.
type EventsConfig struct {
	Driver   string         `yaml:"driver"`
	Buffer   int            `yaml:"buffer"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 描述基于 Redis 列表的事件通道。
type RedisConfig struct {
	Address          string `yaml:"address"`
	Password         string `yaml:"password"`
	DB               int    `yaml:"db"`
	Key              string `yaml:"key"`
	BlockWaitSeconds int    `yaml:"block_wait_seconds"`
}

// RabbitMQConfig is the AMQP transport.
type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
	Durable  bool   `yaml:"durable"`
}

// RunStoreConfig 选择调用记录的存储后端。
type RunStoreConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
	AutoMigrate            bool   `yaml:"auto_migrate"`
}

// MetricsConfig enables the status server (/metrics, /healthz and the
// invocation ledger API) when Address is set.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// PollConfig 设置 run 轮询的次数与间隔。
type PollConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	AttemptDelayMS int `yaml:"attempt_delay_ms"`
}

// AlertingConfig lists the channels paged on load and compile failures.
// Empty URLs disable a channel.
type AlertingConfig struct {
	WebhookURL      string `yaml:"webhook_url"`
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// Timeout bounds one alert delivery.
func (c AlertingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AttemptDelay is the wait before each attempt.
func (c PollConfig) AttemptDelay() time.Duration {
	return time.Duration(c.AttemptDelayMS) * time.Millisecond
}

// Default returns the settings used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults("")
	return cfg
}

// Load parses the YAML (or JSON) file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置默认值，相对路径基于 baseDir 解析。
func (c *Config) applyDefaults(baseDir string) {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	c.Logger.Audit.Path = resolve(baseDir, c.Logger.Audit.Path)

	if c.Loader.GoBinary == "" {
		c.Loader.GoBinary = "go"
	}
	if c.Loader.EntryName == "" {
		c.Loader.EntryName = "agent"
	}
	if c.Loader.TimeoutSeconds <= 0 {
		c.Loader.TimeoutSeconds = 300
	}
	c.Loader.OutputDir = resolve(baseDir, c.Loader.OutputDir)
	c.Loader.WorkDir = resolve(baseDir, c.Loader.WorkDir)

	if c.Hub.TimeoutSeconds <= 0 {
		c.Hub.TimeoutSeconds = 60
	}
	if c.Hub.Burst <= 0 {
		c.Hub.Burst = 1
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}
	if c.Events.Buffer <= 0 {
		c.Events.Buffer = 64
	}
	if c.Events.Redis.Key == "" {
		c.Events.Redis.Key = "agentrt:events"
	}
	if c.Events.Redis.BlockWaitSeconds <= 0 {
		c.Events.Redis.BlockWaitSeconds = 5
	}
	if c.Events.RabbitMQ.Queue == "" {
		c.Events.RabbitMQ.Queue = "agentrt.events"
	}

	if c.RunStore.Driver == "" {
		c.RunStore.Driver = "memory"
	}

	if c.Poll.MaxAttempts <= 0 {
		c.Poll.MaxAttempts = 30
	}
	if c.Poll.AttemptDelayMS <= 0 {
		c.Poll.AttemptDelayMS = 1000
	}

	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 10
	}
}

func (c *Config) validate() error {
	switch c.Events.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("unsupported events driver %q", c.Events.Driver)
	}
	switch c.RunStore.Driver {
	case "memory":
	case "mysql":
		if c.RunStore.DSN == "" {
			return errors.New("run_store.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unsupported run_store driver %q", c.RunStore.Driver)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
