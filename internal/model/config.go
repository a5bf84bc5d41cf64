package model

import "time"

// Config is the complete runtime configuration
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Classifier  ClassifierConfig  `yaml:"classifier" mapstructure:"classifier"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Backup      BackupConfig      `yaml:"backup" mapstructure:"backup"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// StoreConfig locates the fingerprint database
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// HTTPConfig controls thumbnail downloads
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HostRPS       float64       `yaml:"host_rps" mapstructure:"host_rps"` // 0 disables per-host limiting
	HostBurst     int           `yaml:"host_burst" mapstructure:"host_burst"`
}

// ClassifierConfig selects and tunes the vision model
type ClassifierConfig struct {
	Provider      string        `yaml:"provider" mapstructure:"provider"` // gemini, openai, anthropic, ollama
	Model         string        `yaml:"model" mapstructure:"model"`
	APIKey        string        `yaml:"-" mapstructure:"api_key"`
	BaseURL       string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"` // 0 = unlimited
	RPS           float64       `yaml:"rps" mapstructure:"rps"`                       // 0 = unlimited
}

// ConcurrencyConfig bounds the batch scheduler
type ConcurrencyConfig struct {
	Workers     int           `yaml:"workers" mapstructure:"workers"`
	ItemTimeout time.Duration `yaml:"item_timeout" mapstructure:"item_timeout"`
}

// CacheConfig controls the classifier verdict cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// OutputConfig controls result export
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	BaseName string `yaml:"base_name" mapstructure:"base_name"`
	Format   string `yaml:"format" mapstructure:"format"` // csv, json
	Verbose  bool   `yaml:"verbose" mapstructure:"verbose"`
	LogJSON  bool   `yaml:"log_json" mapstructure:"log_json"`
}

// BackupConfig controls thumbnail upload to S3-compatible storage
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket        string `yaml:"bucket" mapstructure:"bucket"`
	Region        string `yaml:"region" mapstructure:"region"`
	Endpoint      string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
	PublicBaseURL string `yaml:"public_base_url,omitempty" mapstructure:"public_base_url"`
	// Attempts is how many times one thumbnail upload is tried
	Attempts   int           `yaml:"attempts" mapstructure:"attempts"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" mapstructure:"addr"` // empty disables the endpoint
}

// DefaultConfig returns the stock configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "processed_watches_db.json",
		},
		HTTP: HTTPConfig{
			Timeout:      10 * time.Second,
			UserAgent:    "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15",
			MaxBodyBytes: 10_000_000,
			HostRPS:      0,
			HostBurst:    10,
		},
		Classifier: ClassifierConfig{
			Provider:      "gemini",
			Model:         "", // provider default
			Timeout:       30 * time.Second,
			MaxAttempts:   2,
			BaseDelay:     2 * time.Second,
			MaxConcurrent: 0,
			RPS:           0,
		},
		Concurrency: ConcurrencyConfig{
			Workers:     50,
			ItemTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".thumbsieve-cache",
			TTL:     30 * 24 * time.Hour,
		},
		Output: OutputConfig{
			Dir:      ".",
			BaseName: "watch_sources",
			Format:   "csv",
		},
		Backup: BackupConfig{
			Prefix:     "douyin_thumbnails",
			Region:     "us-east-1",
			Attempts:   3,
			RetryDelay: 2 * time.Second,
		},
	}
}
