package mustach

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigurationIntegration(t *testing.T) {
	originalConfig := GetGlobalConfig()
	defer SetGlobalConfig(originalConfig)

	t.Run("cache uses global config", func(t *testing.T) {
		config := &Config{
			CacheMaxSize: 25,
			CacheTTL:     10 * time.Second,
			LogLevel:     "debug",
			MaxNesting:   50,
			StrictMode:   false,
		}
		SetGlobalConfig(config)

		cache := NewProgramCache()

		require.Equal(t, 25, cache.config.MaxSize)
		require.Equal(t, 10*time.Second, cache.config.TTL)
	})

	t.Run("max nesting is enforced at compile time", func(t *testing.T) {
		loader := NewLoader(FileResolver{}).WithMaxNesting(2)

		var src string
		for i := 0; i < 3; i++ {
			src += "{{#a}}"
		}
		for i := 0; i < 3; i++ {
			src += "{{/a}}"
		}

		_, err := loader.CompileString("deep.mustache", src)
		require.Error(t, err)
		require.True(t, IsKind(err, KindTooDeep))
	})

	t.Run("environment config initialization", func(t *testing.T) {
		os.Setenv("MUSTACH_CACHE_MAX_SIZE", "75")
		os.Setenv("MUSTACH_LOG_LEVEL", "warn")
		defer os.Unsetenv("MUSTACH_CACHE_MAX_SIZE")
		defer os.Unsetenv("MUSTACH_LOG_LEVEL")

		config := ConfigFromEnvironment()

		require.Equal(t, 75, config.CacheMaxSize)
		require.Equal(t, "warn", config.LogLevel)
	})
}

func TestConfigLoggerIntegration(t *testing.T) {
	originalConfig := GetGlobalConfig()
	defer SetGlobalConfig(originalConfig)

	t.Run("logger updates when config changes", func(t *testing.T) {
		config := &Config{
			CacheMaxSize: 100,
			LogLevel:     "error",
			MaxNesting:   MaxNesting,
			StrictMode:   false,
		}
		SetGlobalConfig(config)

		logger := GetLogger()

		config.LogLevel = "debug"
		SetGlobalConfig(config)
		UpdateLoggerFromConfig()

		require.True(t, logger.IsDebugMode())
	})
}

func TestStrictModeConfiguration(t *testing.T) {
	originalConfig := GetGlobalConfig()
	defer SetGlobalConfig(originalConfig)

	t.Run("strict mode affects missing top-level names", func(t *testing.T) {
		config := DefaultConfig()
		config.StrictMode = false
		SetGlobalConfig(config)

		engine := NewWithConfig(config)
		prog, err := engine.PrepareString("t.mustache", "Hello {{missing}}!")
		require.NoError(t, err)

		out, err := engine.Render(prog, map[string]any{})
		require.NoError(t, err)
		require.Equal(t, "Hello !", out)

		config.StrictMode = true
		engine.SetConfig(config)

		_, err = engine.Render(prog, map[string]any{})
		require.Error(t, err)
	})
}
