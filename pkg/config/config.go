package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		InferenceTopic string   `yaml:"inference_topic"`
		DriftTopic     string   `yaml:"drift_topic"`
		RequiredAcks   int      `yaml:"required_acks"`
		Compression    string   `yaml:"compression"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		KeyPrefix  string        `yaml:"key_prefix"`
	} `yaml:"queue"`
	Registry struct {
		Dir      string `yaml:"dir"`
		KeepMax  int    `yaml:"keep_max"`
		KeepDays int    `yaml:"keep_days"`
	} `yaml:"registry"`
	Exchange struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
		Enabled bool          `yaml:"enabled"`
	} `yaml:"exchange"`
	Data struct {
		Symbols      []string `yaml:"symbols"`
		Timeframe    string   `yaml:"timeframe"`
		LookbackDays int      `yaml:"lookback_days"`
	} `yaml:"data"`
	Training struct {
		MinExamples   int     `yaml:"min_examples"`
		ReferenceBins int     `yaml:"reference_bins"`
		AutoPromote   bool    `yaml:"auto_promote"`
		SplitRatio    float64 `yaml:"split_ratio"`
		Folds         int     `yaml:"folds"`
	} `yaml:"training"`
	Drift struct {
		Interval          time.Duration `yaml:"interval"`
		Lookback          time.Duration `yaml:"lookback"`
		Bins              int           `yaml:"bins"`
		MinSamples        int           `yaml:"min_samples"`
		MinOutcomes       int           `yaml:"min_outcomes"`
		PSIModerate       float64       `yaml:"psi_moderate"`
		PSISignificant    float64       `yaml:"psi_significant"`
		AccuracyDropLimit float64       `yaml:"accuracy_drop_limit"`
		Maturity          time.Duration `yaml:"maturity"`
		CacheTTL          time.Duration `yaml:"cache_ttl"`
		RetrainOnDrift    bool          `yaml:"retrain_on_drift"`
	} `yaml:"drift"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Registry.Dir = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Data.Symbols = strings.Split(v, ",")
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Registry.Dir == "" {
		return fmt.Errorf("registry.dir is required")
	}
	if len(c.Data.Symbols) == 0 {
		return fmt.Errorf("data.symbols cannot be empty")
	}
	switch c.Data.Timeframe {
	case "", "1s", "1m", "5m":
	default:
		return fmt.Errorf("data.timeframe must be 1s, 1m or 5m, got '%s'", c.Data.Timeframe)
	}
	if c.Training.SplitRatio != 0 && (c.Training.SplitRatio <= 0 || c.Training.SplitRatio >= 1) {
		return fmt.Errorf("training.split_ratio must be in (0, 1)")
	}
	if c.Drift.PSIModerate != 0 && c.Drift.PSISignificant != 0 &&
		c.Drift.PSIModerate > c.Drift.PSISignificant {
		return fmt.Errorf("drift.psi_moderate cannot exceed drift.psi_significant")
	}
	return nil
}
