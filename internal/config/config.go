package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	State     StateConfig     `mapstructure:"state"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Handoff   HandoffConfig   `mapstructure:"handoff"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the status API settings
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
}

// RemoteConfig holds the story API settings
type RemoteConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	MetadataPath  string        `mapstructure:"metadata_path"` // "{slug}" is replaced per request
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	SessionCookie string        `mapstructure:"session_cookie"`
	Proxies       []string      `mapstructure:"proxies"`
	TargetLocale  string        `mapstructure:"target_locale"`
	DownloadTypes []string      `mapstructure:"download_types"` // In order of preference
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
}

type CatalogConfig struct {
	Source string `mapstructure:"source"` // Local path or http(s) URL
}

type DiscoveryConfig struct {
	MappingFile     string `mapstructure:"mapping_file"`
	MaxProbes       int    `mapstructure:"max_probes"` // Unknown entries probed during initialization
	ProbesPerMinute int    `mapstructure:"probes_per_minute"`
}

// SchedulerConfig controls concurrency, the rate ceiling and retries
type SchedulerConfig struct {
	Mode              string        `mapstructure:"mode"` // "pool" or "sequential"
	MaxWorkers        int           `mapstructure:"max_workers"`
	MaxOperations     int           `mapstructure:"max_operations"` // Per rolling window
	Window            time.Duration `mapstructure:"window"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	ProgressInterval  time.Duration `mapstructure:"progress_interval"`
}

type StorageConfig struct {
	AssetDir        string `mapstructure:"asset_dir"`
	ContentDir      string `mapstructure:"content_dir"`
	MetadataDir     string `mapstructure:"metadata_dir"`
	ScratchDir      string `mapstructure:"scratch_dir"`
	MinPayloadBytes int64  `mapstructure:"min_payload_bytes"`
	MinContentBytes int64  `mapstructure:"min_content_bytes"`
	MaxMemberBytes  int64  `mapstructure:"max_member_bytes"`
	SnapshotBackend string `mapstructure:"snapshot_backend"` // "file" or "postgres"
}

type StateConfig struct {
	Backend   string `mapstructure:"backend"` // "file" or "redis"
	Dir       string `mapstructure:"dir"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

type HandoffConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Stream        string `mapstructure:"stream"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Load loads configuration from a YAML file with environment variable overrides.
// An empty path looks for config.yaml in the current directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("harvest")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if !strings.Contains(c.Remote.MetadataPath, "{slug}") {
		return fmt.Errorf("remote.metadata_path must contain {slug}")
	}
	switch c.Scheduler.Mode {
	case "pool", "sequential":
	default:
		return fmt.Errorf("scheduler.mode must be pool or sequential, got %q", c.Scheduler.Mode)
	}
	if c.Scheduler.MaxWorkers < 1 {
		return fmt.Errorf("scheduler.max_workers must be positive")
	}
	if c.Scheduler.MaxOperations < 1 || c.Scheduler.Window <= 0 {
		return fmt.Errorf("scheduler.max_operations and scheduler.window must be positive")
	}
	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("scheduler.max_attempts must be at least 1")
	}
	switch c.State.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("state.backend must be file or redis, got %q", c.State.Backend)
	}
	switch c.Storage.SnapshotBackend {
	case "file", "postgres":
	default:
		return fmt.Errorf("storage.snapshot_backend must be file or postgres, got %q", c.Storage.SnapshotBackend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")

	v.SetDefault("remote.base_url", "https://storyweaver.org.in")
	v.SetDefault("remote.metadata_path", "/api/v1/stories/{slug}/translations_and_videos")
	v.SetDefault("remote.timeout", "60s")
	v.SetDefault("remote.user_agent", "storyweaver-harvester/1.0 (+bulk research export)")
	v.SetDefault("remote.session_cookie", "")
	v.SetDefault("remote.target_locale", "English")
	v.SetDefault("remote.download_types", []string{"application/zip", "ZIP", "Text", "PDF"})
	v.SetDefault("remote.max_body_bytes", 100*1024*1024)

	v.SetDefault("catalog.source", "./catalog.xml")

	v.SetDefault("discovery.mapping_file", "")
	v.SetDefault("discovery.max_probes", 50)
	v.SetDefault("discovery.probes_per_minute", 20)

	v.SetDefault("scheduler.mode", "pool")
	v.SetDefault("scheduler.max_workers", 3)
	v.SetDefault("scheduler.max_operations", 30)
	v.SetDefault("scheduler.window", "60s")
	v.SetDefault("scheduler.max_attempts", 4)
	v.SetDefault("scheduler.backoff_base", "5s")
	v.SetDefault("scheduler.backoff_max", "5m")
	v.SetDefault("scheduler.rate_limit_cooldown", "30s")
	v.SetDefault("scheduler.progress_interval", "30s")

	v.SetDefault("storage.asset_dir", "./data/assets")
	v.SetDefault("storage.content_dir", "./data/content")
	v.SetDefault("storage.metadata_dir", "./data/metadata")
	v.SetDefault("storage.scratch_dir", "")
	v.SetDefault("storage.min_payload_bytes", 1024)
	v.SetDefault("storage.min_content_bytes", 200)
	v.SetDefault("storage.max_member_bytes", 50*1024*1024)
	v.SetDefault("storage.snapshot_backend", "file")

	v.SetDefault("state.backend", "file")
	v.SetDefault("state.dir", "./data/state")
	v.SetDefault("state.key_prefix", "harvest:")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "harvest")
	v.SetDefault("database.user", "harvest_user")
	v.SetDefault("database.password", "harvest_pass")

	v.SetDefault("handoff.enabled", false)
	v.SetDefault("handoff.stream", "harvest:stream:ContentReadyTask")
	v.SetDefault("handoff.consumer_group", "analysis")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
