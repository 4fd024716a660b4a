package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidStore    = errors.New("invalid store kind")
	ErrInvalidCatalog  = errors.New("invalid catalog kind")
	ErrInvalidRatio    = errors.New("memory ratio must be in (0, 1]")
	ErrInvalidWorkers  = errors.New("workers must be positive")
	ErrInvalidSize     = errors.New("invalid byte size")
	ErrInvalidEviction = errors.New("invalid eviction policy")
)

// Default configuration values.
const (
	defaultWorkers     = 4
	defaultMemoryRatio = 0.25
	defaultBlockSize   = "64KiB"
	defaultFrameRate   = 60
)

// Config holds all configuration of a streaming session.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Models  []ModelConfig `mapstructure:"models"`
}

// StoreConfig selects where trees and payloads are read from.
type StoreConfig struct {
	// Kind is local, s3 or minio.
	Kind string `mapstructure:"kind"`
	Root string `mapstructure:"root"`
	Mmap bool   `mapstructure:"mmap"`

	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
}

// CacheConfig configures the block cache in front of remote stores.
type CacheConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	RAMSize     string `mapstructure:"ram_size"`
	Directory   string `mapstructure:"directory"`
	DiskSize    string `mapstructure:"disk_size"`
	Compression string `mapstructure:"compression"`
	BlockSize   string `mapstructure:"block_size"`
}

// CatalogConfig selects where the model list comes from.
type CatalogConfig struct {
	// Kind is static (the models list), vis or dynamodb.
	Kind    string `mapstructure:"kind"`
	VisFile string `mapstructure:"vis_file"`
	Table   string `mapstructure:"table"`
	Session string `mapstructure:"session"`
}

// StreamConfig sizes the slot pool and its workers.
type StreamConfig struct {
	Workers     int     `mapstructure:"workers"`
	MemoryRatio float64 `mapstructure:"memory_ratio"`
	// CacheSize overrides MemoryRatio with a fixed budget.
	CacheSize string `mapstructure:"cache_size"`
	// SlotCount overrides both.
	SlotCount int `mapstructure:"slot_count"`
	// UploadPerFrame bounds payload reads per frame; 0 disables the limit.
	UploadPerFrame string `mapstructure:"upload_per_frame"`
	FrameRate      int    `mapstructure:"frame_rate"`
	Eviction       string `mapstructure:"eviction"`
}

// WatchConfig enables hot-adding trees dropped into a directory.
type WatchConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ModelConfig is one statically listed model.
type ModelConfig struct {
	Path string `mapstructure:"path"`
	Key  string `mapstructure:"key"`
}

// Load reads configuration from path (optional) and LODSTREAM_* variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LODSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration Load produces without a file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.kind", "local")
	v.SetDefault("store.root", "")
	v.SetDefault("store.mmap", false)
	v.SetDefault("store.bucket", "")
	v.SetDefault("store.prefix", "")
	v.SetDefault("store.endpoint", "")
	v.SetDefault("store.access_key", "")
	v.SetDefault("store.secret_key", "")
	v.SetDefault("store.secure", true)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.directory", "")
	v.SetDefault("cache.ram_size", "256MiB")
	v.SetDefault("cache.disk_size", "4GiB")
	v.SetDefault("cache.compression", "lz4")
	v.SetDefault("cache.block_size", defaultBlockSize)

	v.SetDefault("catalog.kind", "static")
	v.SetDefault("catalog.vis_file", "")
	v.SetDefault("catalog.table", "")
	v.SetDefault("catalog.session", "")

	v.SetDefault("stream.workers", defaultWorkers)
	v.SetDefault("stream.memory_ratio", defaultMemoryRatio)
	v.SetDefault("stream.cache_size", "")
	v.SetDefault("stream.slot_count", 0)
	v.SetDefault("stream.upload_per_frame", "")
	v.SetDefault("stream.frame_rate", defaultFrameRate)
	v.SetDefault("stream.eviction", "priority")

	v.SetDefault("watch.dir", "")
	v.SetDefault("watch.debounce", "500ms")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case "local", "s3", "minio":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStore, c.Store.Kind)
	}

	switch c.Catalog.Kind {
	case "static", "vis", "dynamodb":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCatalog, c.Catalog.Kind)
	}

	switch c.Stream.Eviction {
	case "priority", "lru", "none":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEviction, c.Stream.Eviction)
	}

	if c.Stream.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Stream.Workers)
	}

	if c.Stream.MemoryRatio <= 0 || c.Stream.MemoryRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidRatio, c.Stream.MemoryRatio)
	}

	for _, s := range []string{c.Stream.CacheSize, c.Stream.UploadPerFrame, c.Cache.RAMSize, c.Cache.DiskSize, c.Cache.BlockSize} {
		if _, err := ParseSize(s); err != nil {
			return err
		}
	}

	return nil
}

// ParseSize parses a human readable byte size such as "512MiB". The empty
// string is zero.
func ParseSize(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidSize, s, err)
	}

	return n, nil
}

// IOLimitBytesPerSec converts the per-frame upload budget to a rate.
func (s StreamConfig) IOLimitBytesPerSec() int64 {
	perFrame, err := ParseSize(s.UploadPerFrame)
	if err != nil || perFrame == 0 {
		return 0
	}

	rate := s.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}

	return int64(perFrame) * int64(rate)
}
