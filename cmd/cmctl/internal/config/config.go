// Package config loads cmctl settings with viper from .cmctl.yaml, CMCTL_*
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage kinds.
const (
	StorageFile  = "file"
	StorageRedis = "redis"
)

// Config is the complete cmctl configuration.
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Storage StorageConfig `mapstructure:"storage"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig selects where the session token is kept between runs.
type StorageConfig struct {
	Kind        string `mapstructure:"kind"`
	Dir         string `mapstructure:"dir"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

type OutputConfig struct {
	Colors bool `mapstructure:"colors"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration. envFile is loaded first when it exists; an
// empty envFile means ".env".
func Load(cfgFile, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".cmctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cmctl")
	}

	v.SetEnvPrefix("CMCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:5000/api")
	v.SetDefault("timeout", 15*time.Second)

	v.SetDefault("storage.kind", StorageFile)
	v.SetDefault("storage.dir", defaultStorageDir())
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_prefix", "cm")

	v.SetDefault("output.colors", true)
	v.SetDefault("logging.level", "warn")
}

func defaultStorageDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "cmctl")
	}
	return ".cmctl"
}

// Validate checks cfg for errors.
func Validate(cfg *Config) error {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base_url: %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s (must be > 0)", cfg.Timeout)
	}

	switch cfg.Storage.Kind {
	case StorageFile:
		if cfg.Storage.Dir == "" {
			return errors.New("storage.dir is required for file storage")
		}
	case StorageRedis:
		if cfg.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for redis storage")
		}
	default:
		return fmt.Errorf("invalid storage.kind: %s (must be file or redis)", cfg.Storage.Kind)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", cfg.Logging.Level)
	}
	return nil
}
