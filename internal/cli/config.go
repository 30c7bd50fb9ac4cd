package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	koanfenv "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/hupe1980/oodb/resource"
)

// DefaultConfigFile is looked up in the working directory when no config
// file is given.
const DefaultConfigFile = "oodb.yaml"

// EnvPrefix prefixes environment overrides. OODB_STORE_BUCKET sets
// store.bucket.
const EnvPrefix = "OODB_"

// Config is the CLI configuration.
type Config struct {
	Store       StoreConfig `koanf:"store"`
	Compression string      `koanf:"compression"`
	CacheBytes  int64       `koanf:"cache_bytes"`
	Limits      Limits      `koanf:"limits"`
	Log         LogConfig   `koanf:"log"`
}

// Limits bound the resources the database uses. Zero disables a limit.
type Limits struct {
	MemoryBytes      int64 `koanf:"memory_bytes"`
	ConcurrentIO     int64 `koanf:"concurrent_io"`
	IOBytesPerSecond int64 `koanf:"io_bytes_per_second"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// Backend is one of local, memory, s3 or minio.
	Backend   string `koanf:"backend"`
	Path      string `koanf:"path"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
	// CommitTable is a DynamoDB table holding the commit pointer of s3
	// stores. Empty keeps the pointer in the bucket.
	CommitTable string `koanf:"commit_table"`
}

// LogConfig configures CLI logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File rotates logs into a file instead of stderr.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

func defaults() map[string]any {
	return map[string]any{
		"store.backend":   "local",
		"store.path":      "./data",
		"store.use_ssl":   true,
		"compression":     "none",
		"cache_bytes":     0,
		"log.level":       "warn",
		"log.format":      "text",
		"log.max_size_mb": 100,
		"log.max_backups": 3,
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"backend":      "store.backend",
	"path":         "store.path",
	"bucket":       "store.bucket",
	"prefix":       "store.prefix",
	"region":       "store.region",
	"endpoint":     "store.endpoint",
	"commit-table": "store.commit_table",
	"compression":  "compression",
	"cache-bytes":  "cache_bytes",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-file":     "log.file",
	"io-limit":     "limits.io_bytes_per_second",
}

// LoadConfig loads configuration from defaults, the config file,
// environment variables and flags, later sources overriding earlier ones.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			cfgFile = DefaultConfigFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// OODB_STORE_COMMIT_TABLE -> store.commit_table
	if err := k.Load(koanfenv.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		section, rest, ok := strings.Cut(key, "_")
		if ok && (section == "store" || section == "log" || section == "limits") {
			return section + "." + rest
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, cfg.validate()
}

// Controller returns the resource controller for the configured limits,
// nil when none is set.
func (c *Config) Controller() *resource.Controller {
	l := c.Limits
	if l.MemoryBytes == 0 && l.ConcurrentIO == 0 && l.IOBytesPerSecond == 0 {
		return nil
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes:   l.MemoryBytes,
		MaxConcurrentIO:    l.ConcurrentIO,
		IOLimitBytesPerSec: l.IOBytesPerSecond,
	})
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "local":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the local backend")
		}
	case "memory":
	case "s3", "minio":
		if c.Store.Bucket == "" {
			return fmt.Errorf("store.bucket is required for the %s backend", c.Store.Backend)
		}
		if c.Store.Backend == "minio" && c.Store.Endpoint == "" {
			return fmt.Errorf("store.endpoint is required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.CacheBytes < 0 || c.Limits.MemoryBytes < 0 || c.Limits.ConcurrentIO < 0 || c.Limits.IOBytesPerSecond < 0 {
		return fmt.Errorf("sizes and limits must not be negative")
	}
	return nil
}
