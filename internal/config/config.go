package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/rebeliceyang/lazyfilter/internal/storage"
	"github.com/spf13/viper"
)

// AppName names the config directory and the environment prefix
const AppName = "lazyfilter"

// Config holds all application configuration
type Config struct {
	Storage StorageConfig           `mapstructure:"storage"`
	Session SessionConfig           `mapstructure:"session"`
	Search  SearchConfig            `mapstructure:"search"`
	Query   QueryConfig             `mapstructure:"query"`
	Catalog models.ConnectionConfig `mapstructure:"catalog"`
	Log     LogConfig               `mapstructure:"log"`
}

type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	Key       string `mapstructure:"key"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

// Options returns the storage backend options
func (s StorageConfig) Options() storage.Options {
	return storage.Options{
		Backend:   s.Backend,
		Path:      s.Path,
		RedisAddr: s.RedisAddr,
		RedisDB:   s.RedisDB,
	}
}

type SessionConfig struct {
	DebounceMs int `mapstructure:"debounce_ms"`
}

// Debounce returns the search debounce delay
func (s SessionConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

type SearchConfig struct {
	Fields []string `mapstructure:"fields"`
}

type QueryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDefaults returns a Config with all default values
func GetDefaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:   storage.BackendFile,
			Path:      defaultDataPath(),
			Key:       "lazyfilter-saved-filters",
			RedisAddr: "localhost:6379",
			RedisDB:   0,
		},
		Session: SessionConfig{
			DebounceMs: 500,
		},
		Search: SearchConfig{
			Fields: []string{"id", "skuId", "attributes.brand", "attributes.name"},
		},
		Query: QueryConfig{
			DefaultLimit: 50,
		},
		Catalog: models.ConnectionConfig{
			Driver:     "none",
			Host:       "localhost",
			Collection: "products",
			Table:      "products",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from the default search paths
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from file, or from the default search paths
// when file is empty. Environment variables prefixed LAZYFILTER_ override both.
func LoadFrom(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// 1. User config directory
		if configDir, err := GetConfigPath(); err == nil {
			v.AddConfigPath(configDir)
		}
		// 2. Current directory
		v.AddConfigPath(".")
		// 3. Default config directory
		v.AddConfigPath("./config")
	}

	setDefaults(v, GetDefaults())

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config (it's okay if file doesn't exist, we have defaults)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.key", d.Storage.Key)
	v.SetDefault("storage.redis_addr", d.Storage.RedisAddr)
	v.SetDefault("storage.redis_db", d.Storage.RedisDB)
	v.SetDefault("session.debounce_ms", d.Session.DebounceMs)
	v.SetDefault("search.fields", d.Search.Fields)
	v.SetDefault("query.default_limit", d.Query.DefaultLimit)
	v.SetDefault("catalog.driver", d.Catalog.Driver)
	v.SetDefault("catalog.uri", d.Catalog.URI)
	v.SetDefault("catalog.host", d.Catalog.Host)
	v.SetDefault("catalog.port", d.Catalog.Port)
	v.SetDefault("catalog.user", d.Catalog.User)
	v.SetDefault("catalog.password", d.Catalog.Password)
	v.SetDefault("catalog.ssl_mode", d.Catalog.SSLMode)
	v.SetDefault("catalog.database", d.Catalog.Database)
	v.SetDefault("catalog.collection", d.Catalog.Collection)
	v.SetDefault("catalog.table", d.Catalog.Table)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case storage.BackendMemory, storage.BackendFile, storage.BackendSQLite, storage.BackendRedis:
	default:
		return fmt.Errorf("invalid storage.backend %q", c.Storage.Backend)
	}
	switch c.Catalog.Driver {
	case "none", "mongo", "postgres":
	default:
		return fmt.Errorf("invalid catalog.driver %q", c.Catalog.Driver)
	}
	if c.Session.DebounceMs < 0 {
		return fmt.Errorf("session.debounce_ms must not be negative")
	}
	if c.Query.DefaultLimit <= 0 {
		return fmt.Errorf("query.default_limit must be positive")
	}
	return nil
}

// GetConfigPath returns the user config directory path
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

func defaultDataPath() string {
	if dir, err := GetConfigPath(); err == nil {
		return filepath.Join(dir, "data")
	}
	return filepath.Join(".", AppName+"-data")
}
