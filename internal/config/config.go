package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Admin   AdminConfig   `yaml:"admin" json:"admin"`
	GRPC    GRPCConfig    `yaml:"grpc" json:"grpc"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

type ServerConfig struct {
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Workers int    `yaml:"workers" json:"workers"`
	Pool    string `yaml:"pool" json:"pool"` // "shared" or "naive"
}

type StorageConfig struct {
	Engine              string       `yaml:"engine" json:"engine"`
	DataPath            string       `yaml:"data_path" json:"data_path"`
	CompactionThreshold int64        `yaml:"compaction_threshold" json:"compaction_threshold"` // dead bytes before compaction
	SyncWrites          bool         `yaml:"sync_writes" json:"sync_writes"`
	LogReads            bool         `yaml:"log_reads" json:"log_reads"`
	Badger              BadgerConfig `yaml:"badger" json:"badger"`
	Redis               RedisConfig  `yaml:"redis" json:"redis"`
}

type BadgerConfig struct {
	InMemory   bool          `yaml:"in_memory" json:"in_memory"`
	ValueLogGC bool          `yaml:"value_log_gc" json:"value_log_gc"`
	GCInterval time.Duration `yaml:"gc_interval" json:"gc_interval"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr" json:"addr"`
	Password  string        `yaml:"password" json:"password"`
	DB        int           `yaml:"db" json:"db"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// CacheSize > 0 puts an LRU read cache in front of redis.
	CacheSize int           `yaml:"cache_size" json:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type AdminConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Port         int           `yaml:"port" json:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	MetricsPath  string        `yaml:"metrics_path" json:"metrics_path"`
}

type GRPCConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

func Load(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    4000,
			Workers: runtime.NumCPU(),
			Pool:    "shared",
		},
		Storage: StorageConfig{
			Engine:              "kvs",
			DataPath:            "./data",
			CompactionThreshold: 1024 * 1024, // 1MB
			SyncWrites:          false,
			LogReads:            false,
			Badger: BadgerConfig{
				InMemory:   false,
				ValueLogGC: true,
				GCInterval: 5 * time.Minute,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				DB:        0,
				KeyPrefix: "kvs:",
				Timeout:   5 * time.Second,
			},
		},
		Admin: AdminConfig{
			Enabled:      false,
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MetricsPath:  "/metrics",
		},
		GRPC: GRPCConfig{
			Enabled: false,
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

func loadFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}

// envVar binds one KV_* variable to a config field.
type envVar struct {
	name  string
	apply func(c *Config, v string) error
}

func envString(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func envInt(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func envBool(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envVars = []envVar{
	{"KV_SERVER_HOST", envString(func(c *Config) *string { return &c.Server.Host })},
	{"KV_SERVER_PORT", envInt(func(c *Config) *int { return &c.Server.Port })},
	{"KV_SERVER_WORKERS", envInt(func(c *Config) *int { return &c.Server.Workers })},
	{"KV_SERVER_POOL", envString(func(c *Config) *string { return &c.Server.Pool })},

	{"KV_STORAGE_ENGINE", envString(func(c *Config) *string { return &c.Storage.Engine })},
	{"KV_STORAGE_DATA_PATH", envString(func(c *Config) *string { return &c.Storage.DataPath })},
	{"KV_STORAGE_COMPACTION_THRESHOLD", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			c.Storage.CompactionThreshold = n
		}
		return err
	}},
	{"KV_STORAGE_SYNC_WRITES", envBool(func(c *Config) *bool { return &c.Storage.SyncWrites })},
	{"KV_STORAGE_LOG_READS", envBool(func(c *Config) *bool { return &c.Storage.LogReads })},

	{"KV_REDIS_ADDR", envString(func(c *Config) *string { return &c.Storage.Redis.Addr })},
	{"KV_REDIS_PASSWORD", envString(func(c *Config) *string { return &c.Storage.Redis.Password })},
	{"KV_REDIS_CACHE_SIZE", envInt(func(c *Config) *int { return &c.Storage.Redis.CacheSize })},
	{"KV_REDIS_CACHE_TTL", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err == nil {
			c.Storage.Redis.CacheTTL = d
		}
		return err
	}},

	{"KV_ADMIN_ENABLED", envBool(func(c *Config) *bool { return &c.Admin.Enabled })},
	{"KV_ADMIN_PORT", envInt(func(c *Config) *int { return &c.Admin.Port })},
	{"KV_GRPC_ENABLED", envBool(func(c *Config) *bool { return &c.GRPC.Enabled })},
	{"KV_GRPC_PORT", envInt(func(c *Config) *int { return &c.GRPC.Port })},

	{"KV_LOG_LEVEL", envString(func(c *Config) *string { return &c.Logging.Level })},
	{"KV_LOG_FORMAT", envString(func(c *Config) *string { return &c.Logging.Format })},
	{"KV_LOG_OUTPUT", envString(func(c *Config) *string { return &c.Logging.Output })},
}

// loadFromEnvironment applies every set KV_* variable. Empty values are
// ignored; malformed ones are an error.
func loadFromEnvironment(config *Config) error {
	for _, ev := range envVars {
		v := os.Getenv(ev.name)
		if v == "" {
			continue
		}
		if err := ev.apply(config, v); err != nil {
			return fmt.Errorf("%s=%q: %w", ev.name, v, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	switch c.Server.Pool {
	case "shared", "naive":
	default:
		return fmt.Errorf("invalid pool kind: %s", c.Server.Pool)
	}

	// Storage validation
	switch c.Storage.Engine {
	case "kvs":
		if c.Storage.DataPath == "" {
			return fmt.Errorf("data path cannot be empty for the kvs engine")
		}
		if c.Storage.CompactionThreshold <= 0 {
			return fmt.Errorf("compaction threshold must be positive")
		}
	case "badger":
		if !c.Storage.Badger.InMemory && c.Storage.DataPath == "" {
			return fmt.Errorf("data path cannot be empty when not using in-memory storage")
		}
		if c.Storage.Badger.ValueLogGC && c.Storage.Badger.GCInterval <= 0 {
			return fmt.Errorf("GC interval must be positive")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		if c.Storage.Redis.CacheSize < 0 || c.Storage.Redis.CacheTTL < 0 {
			return fmt.Errorf("redis cache size and ttl cannot be negative")
		}
	case "":
		return fmt.Errorf("storage engine cannot be empty")
	default:
		return fmt.Errorf("unknown storage engine: %s", c.Storage.Engine)
	}

	// Listener validation
	if c.Admin.Enabled {
		if c.Admin.Port < 0 || c.Admin.Port > 65535 {
			return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
		}
		if c.Admin.Port != 0 && c.Admin.Port == c.Server.Port {
			return fmt.Errorf("admin port conflicts with server port: %d", c.Admin.Port)
		}
		if c.Admin.MetricsPath == "" {
			return fmt.Errorf("metrics path cannot be empty when admin is enabled")
		}
	}
	if c.GRPC.Enabled {
		if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
			return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
		}
		if c.GRPC.Port != 0 && (c.GRPC.Port == c.Server.Port || (c.Admin.Enabled && c.GRPC.Port == c.Admin.Port)) {
			return fmt.Errorf("gRPC port conflicts with other ports: %d", c.GRPC.Port)
		}
	}

	// Logging validation
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Address returns the host:port the request listener binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
