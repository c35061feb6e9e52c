// Package config handles configuration loading and validation for depgraph.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imyousuf/depgraph/internal/graph"
)

const (
	// ProjectDirName is the per-repository directory holding config and the snapshot store.
	ProjectDirName = ".depgraph"
	// ProjectConfigFile is the config file name inside ProjectDirName.
	ProjectConfigFile = "config.yaml"
	// DefaultDBName is the snapshot store directory inside ProjectDirName.
	DefaultDBName = "graph.db"
)

// Config holds all configuration for depgraph.
type Config struct {
	// Root is the repository to analyze. A relative root is resolved against
	// the directory containing ProjectDirName.
	Root string `mapstructure:"root" yaml:"root"`
	// Languages restricts analysis to these languages; empty means all.
	Languages []string `mapstructure:"languages" yaml:"languages"`
	// Exclude lists glob patterns (relative, slash-separated) to skip.
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
	// MaxFileSize skips larger files; zero disables the limit.
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size"`
	// Workers bounds per-file parallelism; zero means GOMAXPROCS.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// Builtins adjusts the call-name exclusion set.
	Builtins BuiltinsConfig `mapstructure:"builtins" yaml:"builtins"`
	// Output controls the export file.
	Output OutputConfig `mapstructure:"output" yaml:"output"`
	// Store controls the snapshot store.
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	// Server controls the HTTP entry point.
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	// Watch controls watch mode.
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`

	// ConfigDir is the discovered ProjectDirName, if any. Not serialized.
	ConfigDir string `mapstructure:"-" yaml:"-"`
}

// BuiltinsConfig adjusts the builtin names excluded from call resolution.
type BuiltinsConfig struct {
	// Extra names are excluded in addition to the language's builtins.
	Extra []string `mapstructure:"extra" yaml:"extra"`
	// Keep names are resolved even though they are builtins.
	Keep []string `mapstructure:"keep" yaml:"keep"`
}

// OutputConfig holds export settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// StoreConfig holds snapshot store settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// QuietPeriod is how long to wait after the last change before re-analyzing.
	QuietPeriod time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
}

// Load loads configuration from file, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	var configDir string
	explicit := false
	// Check if a specific config file was set via CLI flag (stored in global viper)
	globalViper := viper.GetViper()
	if configFile := globalViper.GetString("config_file"); configFile != "" {
		v.SetConfigFile(configFile)
		configDir = filepath.Dir(configFile)
		explicit = true
	} else if cwd, err := os.Getwd(); err == nil {
		if dir := DiscoverProjectDir(cwd); dir != "" {
			v.SetConfigFile(filepath.Join(dir, ProjectConfigFile))
			configDir = dir
		}
	}

	v.SetEnvPrefix("DEPGRAPH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configDir != "" {
		// A discovered project directory may not hold a config file yet.
		if err := v.ReadInConfig(); err != nil && (explicit || !isNotFound(err)) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if configDir != "" {
		if abs, err := filepath.Abs(configDir); err == nil {
			configDir = abs
		}
		cfg.ConfigDir = configDir
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment overrides apply.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return os.IsNotExist(err)
}

// DiscoverProjectDir walks up from start looking for ProjectDirName and
// returns its path, or "" if none is found.
func DiscoverProjectDir(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if _, err := graph.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must be >= 0, got %d", c.MaxFileSize)
	}
	if c.Watch.QuietPeriod < 0 {
		return fmt.Errorf("watch.quiet_period must be >= 0, got %s", c.Watch.QuietPeriod)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// ResolveRoot returns the absolute repository root, or override when set.
func (c *Config) ResolveRoot(override string) (string, error) {
	root := override
	if root == "" {
		root = c.Root
		if root == "" {
			root = "."
		}
		if !filepath.IsAbs(root) && c.ConfigDir != "" {
			root = filepath.Join(filepath.Dir(c.ConfigDir), root)
		}
	}
	return filepath.Abs(root)
}

// ResolveDBPath returns the snapshot store path: the flag value, then
// store.path, then the project directory default. It is empty when none apply.
func (c *Config) ResolveDBPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.ConfigDir != "" {
		return filepath.Join(c.ConfigDir, DefaultDBName)
	}
	return ""
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("languages", []string{"python"})
	v.SetDefault("exclude", []string{})
	v.SetDefault("max_file_size", 1<<20)
	v.SetDefault("workers", 0)

	v.SetDefault("builtins.extra", []string{})
	v.SetDefault("builtins.keep", []string{})

	v.SetDefault("output.format", string(graph.FormatDOT))
	v.SetDefault("output.path", "")

	v.SetDefault("store.path", "")

	v.SetDefault("server.addr", ":8000")

	v.SetDefault("watch.quiet_period", 500*time.Millisecond)
}
