// Package config holds the settings shared by the mcpi commands. Values come
// from DefaultConfig, then an optional YAML file, then command-line flags.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/qcserestipy/gompi/pkg/remote"
	"github.com/qcserestipy/gompi/pkg/rng"
)

// Strategy names accepted by StrategyConfig.Name.
const (
	StrategySequential   = "sequential"
	StrategyThreadPool   = "threadpool"
	StrategyParallelLoop = "parallel-loop"
	StrategyHTTP         = "http"
	StrategyNATS         = "nats"
)

// Config holds all mcpi configuration
type Config struct {
	Samples  uint64         `yaml:"samples"`
	Seed     uint64         `yaml:"seed"`
	RNG      string         `yaml:"rng"`
	Strategy StrategyConfig `yaml:"strategy"`
	Remote   RemoteConfig   `yaml:"remote"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StrategyConfig selects how jobs are executed. Zero counts mean "use the
// available parallelism".
type StrategyConfig struct {
	Name    string `yaml:"name"`
	Jobs    int    `yaml:"jobs"`
	Workers int    `yaml:"workers"`
}

// RemoteConfig holds the remote executor endpoints.
type RemoteConfig struct {
	Endpoints []string      `yaml:"endpoints"`
	NATSURL   string        `yaml:"nats_url"`
	Subject   string        `yaml:"subject"`
	Queue     string        `yaml:"queue"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ServerConfig holds compute node settings.
type ServerConfig struct {
	Port        int `yaml:"port"`
	Workers     int `yaml:"workers"`
	TaskHistory int `yaml:"task_history"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Samples: 10_000_000,
		Seed:    8888,
		RNG:     rng.Default.String(),
		Strategy: StrategyConfig{
			Name: StrategyThreadPool,
		},
		Remote: RemoteConfig{
			Endpoints: []string{"http://localhost:3000"},
			NATSURL:   "nats://127.0.0.1:4222",
			Subject:   remote.DefaultSubject,
			Queue:     remote.DefaultQueue,
			Timeout:   5 * time.Minute,
		},
		Server: ServerConfig{
			Port:        3000,
			TaskHistory: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration for values no command can use.
func (c *Config) Validate() error {
	if c.Samples == 0 {
		return errors.New("samples must be positive")
	}
	if _, err := rng.ParseKind(c.RNG); err != nil {
		return err
	}
	switch c.Strategy.Name {
	case StrategySequential, StrategyThreadPool, StrategyParallelLoop:
	case StrategyHTTP:
		if len(c.Remote.Endpoints) == 0 {
			return errors.New("strategy http needs at least one remote endpoint")
		}
	case StrategyNATS:
		if c.Remote.NATSURL == "" {
			return errors.New("strategy nats needs remote.nats_url")
		}
	default:
		return errors.Errorf("unknown strategy %q", c.Strategy.Name)
	}
	if c.Strategy.Jobs < 0 || c.Strategy.Workers < 0 {
		return errors.New("strategy jobs and workers must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.Workers < 0 || c.Server.TaskHistory < 0 {
		return errors.New("server workers and task_history must not be negative")
	}
	if c.Remote.Timeout < 0 {
		return errors.New("remote timeout must not be negative")
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errors.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Kind returns the configured random generator.
func (c *Config) Kind() rng.Kind {
	kind, err := rng.ParseKind(c.RNG)
	if err != nil {
		return rng.Default
	}
	return kind
}

// Apply configures the standard logrus logger.
func (l LoggingConfig) Apply() error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	switch strings.ToLower(l.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		formatter := &logrus.TextFormatter{}
		formatter.FullTimestamp = true
		formatter.TimestampFormat = time.RFC3339
		logrus.SetFormatter(formatter)
	}
	logrus.SetLevel(level)
	return nil
}
