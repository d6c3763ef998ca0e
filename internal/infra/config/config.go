package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addons    []string      `mapstructure:"addons" yaml:"addons"`
	TargetDir string        `mapstructure:"target_dir" yaml:"target_dir"`
	Work      WorkConfig    `mapstructure:"work" yaml:"work"`
	Cache     CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Browser   BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Log       LogConfig     `mapstructure:"log" yaml:"log"`

	Port string `mapstructure:"port" yaml:"port"`
}

type WorkConfig struct {
	DownloadDir      string        `mapstructure:"download_dir" yaml:"download_dir"`
	UnzipDir         string        `mapstructure:"unzip_dir" yaml:"unzip_dir"`
	DurabilityMargin time.Duration `mapstructure:"durability_margin" yaml:"durability_margin"`
}

type CacheConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	BlobDir     string `mapstructure:"blob_dir" yaml:"blob_dir"`
}

type BrowserConfig struct {
	ExecPath           string        `mapstructure:"exec_path" yaml:"exec_path"`
	Headless           bool          `mapstructure:"headless" yaml:"headless"`
	UserDataDir        string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	DownloadDir        string        `mapstructure:"download_dir" yaml:"download_dir"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	DownloadStartGrace time.Duration `mapstructure:"download_start_grace" yaml:"download_start_grace"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

func Load(path string) (*Config, error) {

	if path == "" {
		path = "config.yaml"
	}

	// 1. Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// FALLBACK: If we are in Docker (or similar) and didn't provide a flag, check /config/config.yaml
		if path == "config.yaml" {
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			} else if _, errEx := os.Stat("config.yaml.example"); errEx == nil {
				// If config.yaml is missing but example exists, give a helpful error
				return nil, fmt.Errorf("configuration file 'config.yaml' not found\n\n" +
					"To fix this, run:\n" +
					"  cp config.yaml.example config.yaml\n" +
					"Then list your addon URLs and AddOns folder in it.")
			} else {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
		} else {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	v := viper.New()
	setDefaults(v)

	// Read config File
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	// Support Environment Variables
	v.SetEnvPrefix("ADDONSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("work.download_dir", "./work/download")
	v.SetDefault("work.unzip_dir", "./work/unzip")
	v.SetDefault("work.durability_margin", 250*time.Millisecond)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.sqlite_path", "./data/addonsync.db")
	v.SetDefault("cache.blob_dir", "./data/smartupdate")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.download_dir", "./work/browser")
	v.SetDefault("browser.navigation_timeout", 60*time.Second)
	v.SetDefault("browser.download_start_grace", 5*time.Second)
	v.SetDefault("log.path", "addonsync.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
}

func (c *Config) validate() error {
	if c.TargetDir == "" {
		return errors.New("target_dir is required")
	}

	seen := make(map[string]struct{}, len(c.Addons))
	for i, a := range c.Addons {
		a = strings.TrimSpace(a)
		if !strings.HasPrefix(a, "https://") && !strings.HasPrefix(a, "http://") {
			return fmt.Errorf("addons[%d]: %q is not an http(s) url", i, a)
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("addons[%d]: %q is listed twice", i, a)
		}
		seen[a] = struct{}{}
		c.Addons[i] = a
	}

	switch c.Cache.Driver {
	case "", "sqlite":
		c.Cache.Driver = "sqlite"
	case "postgres":
		if c.Cache.PostgresDSN == "" {
			return errors.New("cache.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("cache.driver %q is not supported (sqlite, postgres)", c.Cache.Driver)
	}

	// The working directories get wiped on every run
	target, _ := filepath.Abs(c.TargetDir)
	for _, dir := range []string{c.Work.DownloadDir, c.Work.UnzipDir} {
		if abs, _ := filepath.Abs(dir); abs == target {
			return fmt.Errorf("work directory %s must differ from target_dir", dir)
		}
	}

	if c.Work.DurabilityMargin < 0 {
		c.Work.DurabilityMargin = 0
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 60 * time.Second
	}
	if c.Browser.DownloadStartGrace <= 0 {
		c.Browser.DownloadStartGrace = 5 * time.Second
	}

	return nil
}
