// Package config holds user-overridable server settings, loaded from
// .java-lsp.yaml in the project root.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds server-wide settings.
type Config struct {
	// JavaHome overrides JDK discovery. Default: JAVA_HOME, then java on PATH.
	JavaHome string `yaml:"java_home"`

	// CacheDir is the directory for the artifact cache database.
	// Default: $XDG_CACHE_HOME/java-lsp or ~/.cache/java-lsp.
	CacheDir string `yaml:"cache_dir"`

	// MavenRepository overrides the local repository path.
	// Default: ~/.m2/repository.
	MavenRepository string `yaml:"maven_repository"`

	// GradleExecutable overrides the gradle binary used for dependency
	// resolution when no wrapper is present.
	GradleExecutable string `yaml:"gradle_executable"`

	// Watch enables the polling file watcher. Default: true.
	Watch *bool `yaml:"watch"`

	// LogLevel sets the slog level: debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{}
}

// Load reads .java-lsp.yaml from the given directory.
// Returns default config if the file doesn't exist or is invalid.
func Load(dir string) *Config {
	cfg := DefaultConfig()

	path := filepath.Join(dir, ".java-lsp.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg // file not found or unreadable, use defaults
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig() // invalid YAML, use defaults
	}

	return cfg
}

// EffectiveCacheDir returns the configured cache directory or the
// platform default.
func (c *Config) EffectiveCacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "java-lsp")
	}
	return filepath.Join(os.TempDir(), "java-lsp")
}

// EffectiveWatch returns whether the file watcher should run.
func (c *Config) EffectiveWatch() bool {
	if c.Watch != nil {
		return *c.Watch
	}
	return true
}

// EffectiveLogLevel maps the configured level name to a slog level string,
// defaulting to info.
func (c *Config) EffectiveLogLevel() string {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		return c.LogLevel
	}
	return "info"
}
