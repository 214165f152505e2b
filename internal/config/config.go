// Package config loads the pageflow CLI configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aretw0/pageflow/internal/logging"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Candidates are the file names looked up when no path is given.
var Candidates = []string{"pageflow.yaml", "pageflow.yml", "pageflow.json", "pageflow.toml"}

// Config is the full CLI configuration.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Store    StoreConfig    `mapstructure:"store"`
	Serve    ServeConfig    `mapstructure:"serve"`
	Navigate NavigateConfig `mapstructure:"navigate"`
}

// StoreConfig selects the history store.
type StoreConfig struct {
	Kind      string        `mapstructure:"kind"`
	Path      string        `mapstructure:"path"`
	Name      string        `mapstructure:"name"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`

	// Redact lists key patterns whose entry data values are masked.
	Redact []string `mapstructure:"redact"`
	// EncryptionKey is a base64 AES-256 key sealing entry data at rest.
	EncryptionKey string `mapstructure:"encryption_key"`
	// FallbackKeys are older base64 keys still accepted for reading.
	FallbackKeys []string `mapstructure:"fallback_keys"`
}

// ServeConfig configures the fixture server.
type ServeConfig struct {
	Addr    string `mapstructure:"addr"`
	Dir     string `mapstructure:"dir"`
	Metrics bool   `mapstructure:"metrics"`
}

// NavigateConfig configures headless sessions.
type NavigateConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	FallbackDelay time.Duration `mapstructure:"fallback_delay"`
	UserAgent     string        `mapstructure:"user_agent"`
	Scripts       bool          `mapstructure:"scripts"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogLevel: "info",
		Store: StoreConfig{
			Kind: StoreMemory,
			Path: ".pageflow/history",
			Name: "default",
		},
		Serve: ServeConfig{
			Addr:    ":8080",
			Dir:     ".",
			Metrics: true,
		},
		Navigate: NavigateConfig{
			Timeout:       30 * time.Second,
			FallbackDelay: 300 * time.Millisecond,
			UserAgent:     "pageflow",
			Scripts:       true,
		},
	}
}

// Load reads path, or the first of Candidates found in the working
// directory when path is empty. A missing default file yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		for _, name := range Candidates {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	raw, err := parse(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return Decode(raw)
}

// Decode applies raw values on top of Default().
func Decode(raw map[string]any) (Config, error) {
	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, cfg.Validate()
}

func parse(data []byte, ext string) (map[string]any, error) {
	raw := map[string]any{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// Validate checks enumerations and required values.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file store"))
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	if c.Store.EncryptionKey == "" && len(c.Store.FallbackKeys) > 0 {
		errs = append(errs, errors.New("store.fallback_keys requires store.encryption_key"))
	}
	if c.Navigate.FallbackDelay < 0 {
		errs = append(errs, errors.New("navigate.fallback_delay must not be negative"))
	}
	return errors.Join(errs...)
}
