package mustach

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all configuration options for the mustach engine.
type Config struct {
	// MaxNesting overrides the compiler's nesting limit (partial depth and
	// per-template section nesting). Evaluate does not read it: at render
	// time the package constant MaxNesting always applies.
	MaxNesting int
	// CacheMaxSize is the maximum number of compiled programs to cache. 0 disables caching.
	CacheMaxSize int
	// CacheTTL is the time-to-live for cached programs. 0 means no expiration.
	CacheTTL time.Duration
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string
	// StrictMode turns a value-map lookup miss on a top-level name into a
	// hard render error instead of the default empty-string substitution.
	StrictMode bool
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func init() {
	// Initialize global config from environment at package initialization.
	configOnce.Do(func() {
		globalConfig = ConfigFromEnvironment()
	})
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxNesting:   MaxNesting,
		CacheMaxSize: 100,
		CacheTTL:     0,
		LogLevel:     "info",
		StrictMode:   false,
	}
}

// ConfigFromEnvironment creates a configuration from environment variables.
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	if val := os.Getenv("MUSTACH_MAX_NESTING"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.MaxNesting = n
		}
	}

	if val := os.Getenv("MUSTACH_CACHE_MAX_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.CacheMaxSize = size
		}
	}

	if val := os.Getenv("MUSTACH_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.CacheTTL = duration
		}
	}

	if val := os.Getenv("MUSTACH_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	if val := os.Getenv("MUSTACH_STRICT_MODE"); val != "" {
		config.StrictMode = parseBool(val)
	}

	return config
}

// configFile mirrors Config for YAML decoding; kept separate so Config
// itself carries no struct tags.
type configFile struct {
	MaxNesting   int    `yaml:"max_nesting"`
	CacheMaxSize int    `yaml:"cache_max_size"`
	CacheTTL     string `yaml:"cache_ttl"`
	LogLevel     string `yaml:"log_level"`
	StrictMode   bool   `yaml:"strict_mode"`
}

// ConfigFromFile loads a YAML configuration file over DefaultConfig:
// fields that are absent, zero or unparsable in the file keep their
// default values, and strict_mode is taken from the file as written. It
// does not read environment variables, and no function in this package
// merges its result with ConfigFromEnvironment's.
func ConfigFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cf configFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if cf.MaxNesting != 0 {
		config.MaxNesting = cf.MaxNesting
	}
	if cf.CacheMaxSize != 0 {
		config.CacheMaxSize = cf.CacheMaxSize
	}
	if cf.CacheTTL != "" {
		if d, err := time.ParseDuration(cf.CacheTTL); err == nil {
			config.CacheTTL = d
		}
	}
	if cf.LogLevel != "" {
		config.LogLevel = cf.LogLevel
	}
	config.StrictMode = cf.StrictMode

	return config, nil
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields.
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	config := *overrides

	if config.MaxNesting == 0 {
		config.MaxNesting = defaults.MaxNesting
	}
	if config.CacheMaxSize == 0 {
		config.CacheMaxSize = defaults.CacheMaxSize
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}

	return &config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxNesting <= 0 {
		return errors.New("max nesting must be positive")
	}

	if c.CacheMaxSize < 0 {
		return errors.New("cache max size cannot be negative")
	}

	if c.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}

	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	return nil
}

// GetGlobalConfig returns the global configuration.
func GetGlobalConfig() *Config {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration.
func SetGlobalConfig(config *Config) {
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	// Update logger based on new config outside the lock to avoid deadlock.
	UpdateLoggerFromConfig()
}

// parseBool parses a boolean value from a string.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
