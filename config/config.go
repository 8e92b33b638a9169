// Package config reads the server configuration from a file, DARS_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gigapi/gigapi-dars/catalog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const EnvPrefix = "DARS"

type Configuration struct {
	Address     string `mapstructure:"address"`
	Port        int    `mapstructure:"port"`
	FlightPort  int    `mapstructure:"flight_port"`
	DataDir     string `mapstructure:"data_dir"`
	RootURL     string `mapstructure:"root_url"`
	CacheSize   int    `mapstructure:"cache_size"`
	Parallelism int    `mapstructure:"parallelism"`
	// RequestTimeout bounds every data query.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LogLevel       string        `mapstructure:"log_level"`
	Development    bool          `mapstructure:"development"`
	// Warm describes every dataset at load instead of on first request.
	Warm     bool            `mapstructure:"warm"`
	Datasets []catalog.Entry `mapstructure:"datasets"`
}

// Config is the configuration read by InitConfig. Reloads do not replace
// it; they are delivered to Watch callbacks.
var Config = &Configuration{}

var (
	current   *viper.Viper
	overrides []Override
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("address", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("flight_port", 8082)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("root_url", "")
	v.SetDefault("cache_size", 64)
	v.SetDefault("parallelism", 4)
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("development", false)
	v.SetDefault("warm", false)
	v.SetDefault("datasets", []catalog.Entry{})
}

// New prepares a viper instance reading path from fs. An empty path looks
// for an optional dars.{yaml,toml,json} in the working directory and
// /etc/dars.
func New(fs afero.Fs, path string) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dars")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dars")
	}
	return v
}

// Override adjusts a decoded configuration before it is validated.
// Command line flags are applied this way so they hold across reloads.
type Override func(*Configuration)

// Load reads and decodes the configuration.
func Load(v *viper.Viper, o ...Override) (*Configuration, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return decode(v, o)
}

func decode(v *viper.Viper, o []Override) (*Configuration, error) {
	cfg := &Configuration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	for _, override := range o {
		override(cfg)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.FlightPort < 0 || cfg.FlightPort > 65535 {
		return nil, fmt.Errorf("invalid flight_port %d", cfg.FlightPort)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	return cfg, nil
}

// InitConfig reads the configuration from the OS filesystem into Config.
// The overrides are applied again to every reload seen by Watch.
func InitConfig(path string, o ...Override) error {
	v := New(afero.NewOsFs(), path)
	cfg, err := Load(v, o...)
	if err != nil {
		return err
	}
	Config = cfg
	current = v
	overrides = o
	return nil
}

// Watch calls fn with the new configuration whenever the file read by
// InitConfig changes. Changes that fail to decode are passed to onError.
func Watch(fn func(*Configuration), onError func(error)) {
	if current == nil || current.ConfigFileUsed() == "" {
		return
	}
	watch(current, overrides, fn, onError)
}

func watch(v *viper.Viper, o []Override, fn func(*Configuration), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		changed(v, e, o, fn, onError)
	})
	v.WatchConfig()
}

// changed handles one file event. Viper has already re-read the file.
func changed(v *viper.Viper, e fsnotify.Event, o []Override, fn func(*Configuration), onError func(error)) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := decode(v, o)
	if err != nil {
		onError(err)
		return
	}
	fn(cfg)
}
