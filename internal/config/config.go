// Package config loads caldora-recur settings from a YAML file, a .env file
// and CALDORA_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	appName  = "caldora-recur"
	fileName = ".caldora-recur"
	// EnvPrefix prefixes every environment override, e.g. CALDORA_STORAGE_BACKEND.
	EnvPrefix = "CALDORA"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDocument = "document"
)

// SQLite drivers registered with database/sql.
const (
	DriverModernc = "sqlite"
	DriverCGo     = "sqlite3"
)

// ID schemes.
const (
	SchemeUUID = "uuid"
	SchemeULID = "ulid"
)

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the SQLite file or Badger directory. Empty selects a default
	// under the XDG data home.
	Path         string `mapstructure:"path" yaml:"path"`
	SQLiteDriver string `mapstructure:"sqlite_driver" yaml:"sqlite_driver"`
}

type IDConfig struct {
	Scheme string `mapstructure:"scheme" yaml:"scheme"`
}

type EngineConfig struct {
	CacheEnabled  bool          `mapstructure:"cache_enabled" yaml:"cache_enabled"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	MaxCandidates int           `mapstructure:"max_candidates" yaml:"max_candidates"`
}

type FeedConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Realm  string `mapstructure:"realm" yaml:"realm"`
	// MaxWindow bounds one request's window; zero means unlimited.
	MaxWindow time.Duration `mapstructure:"max_window" yaml:"max_window"`
}

// Config is the top-level application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	IDs     IDConfig      `mapstructure:"ids" yaml:"ids"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Feed    FeedConfig    `mapstructure:"feed" yaml:"feed"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{Backend: BackendSQLite, SQLiteDriver: DriverModernc},
		IDs:     IDConfig{Scheme: SchemeUUID},
		Engine:  EngineConfig{CacheEnabled: true, CacheTTL: 10 * time.Minute, MaxCandidates: 10000},
		Feed:    FeedConfig{Listen: "127.0.0.1:8080", Realm: appName, MaxWindow: 366 * 24 * time.Hour},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.sqlite_driver", d.Storage.SQLiteDriver)
	v.SetDefault("ids.scheme", d.IDs.Scheme)
	v.SetDefault("engine.cache_enabled", d.Engine.CacheEnabled)
	v.SetDefault("engine.cache_ttl", d.Engine.CacheTTL)
	v.SetDefault("engine.max_candidates", d.Engine.MaxCandidates)
	v.SetDefault("feed.listen", d.Feed.Listen)
	v.SetDefault("feed.realm", d.Feed.Realm)
	v.SetDefault("feed.max_window", d.Feed.MaxWindow)
}

// Options control where Load looks.
type Options struct {
	// File is an explicit config file. It must exist when set.
	File string
	// EnvFile is a dotenv file; empty means ./.env when present.
	EnvFile string
}

// Load reads the configuration. Without an explicit file it searches the home
// directory for .caldora-recur.yaml; a missing file there is not an error.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("locate home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Validate rejects unknown enumerations and non-positive limits.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite, BackendDocument:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	switch c.Storage.SQLiteDriver {
	case DriverModernc, DriverCGo:
	default:
		return fmt.Errorf("storage.sqlite_driver: unknown driver %q", c.Storage.SQLiteDriver)
	}
	switch c.IDs.Scheme {
	case SchemeUUID, SchemeULID:
	default:
		return fmt.Errorf("ids.scheme: unknown scheme %q", c.IDs.Scheme)
	}
	if c.Engine.MaxCandidates <= 0 {
		return fmt.Errorf("engine.max_candidates: must be positive, got %d", c.Engine.MaxCandidates)
	}
	if c.Feed.MaxWindow < 0 {
		return fmt.Errorf("feed.max_window: must not be negative, got %s", c.Feed.MaxWindow)
	}
	return nil
}

// StoragePath returns the configured path or the backend's default location.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	switch c.Storage.Backend {
	case BackendDocument:
		return filepath.Join(xdg.DataHome, appName, "badger")
	default:
		return filepath.Join(xdg.DataHome, appName, "caldora.db")
	}
}

// DefaultFile returns $HOME/.caldora-recur.yaml.
func DefaultFile() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fileName+".yaml"), nil
}

// WriteDefault writes the built-in configuration to path with 0600
// permissions. An existing file is left alone unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".caldora-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
