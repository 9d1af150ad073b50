package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// WindowConfig sizes the demo window.
type WindowConfig struct {
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Title  string `mapstructure:"title"`
}

// Config is the file/env/flag configuration of a GPU and the windowed view.
type Config struct {
	// Backend is "auto", "wgpu" or "software".
	Backend string `mapstructure:"backend"`
	// ForceFallbackAdapter asks wgpu for its software adapter.
	ForceFallbackAdapter bool `mapstructure:"force_fallback_adapter"`
	// LibraryPath is a WGSL file compiled as the GPU's library. Empty uses the device default.
	LibraryPath string `mapstructure:"library_path"`
	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `mapstructure:"log_level"`
	// Profile enables pass statistics.
	Profile bool `mapstructure:"profile"`
	// FrameInterval is the redraw interval of a rate-driven view. Zero draws manually.
	FrameInterval time.Duration `mapstructure:"frame_interval"`

	Window WindowConfig `mapstructure:"window"`
}

// DefaultConfig returns the configuration used when nothing is set.
//
// Returns:
//   - Config: the defaults
func DefaultConfig() Config {
	return Config{
		Backend:       string(BackendAuto),
		LogLevel:      "info",
		FrameInterval: time.Second / 60,
		Window: WindowConfig{
			Width:  800,
			Height: 600,
			Title:  "oxy-gpu",
		},
	}
}

// SlogLevel parses LogLevel.
//
// Returns:
//   - slog.Level: the level, Info when unset
//   - error: error if the level is unknown
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(c.LogLevel) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// LoadConfig reads the configuration from v. Defaults are registered first, then cfgFile (or
// oxygpu.yaml in the working directory and $HOME/.oxygpu when cfgFile is empty) and OXYGPU_*
// environment variables. Flags bound to v take precedence over both.
//
// Parameters:
//   - v: the viper instance, with any flags already bound
//   - cfgFile: an explicit config file, or empty to search
//
// Returns:
//   - Config: the merged configuration
//   - error: error if the config file cannot be parsed or a value is invalid
func LoadConfig(v *viper.Viper, cfgFile string) (Config, error) {
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("oxygpu")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".oxygpu"))
		}
	}

	v.SetEnvPrefix("OXYGPU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, errors.Wrap(err, "failed to read config")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the backend, the log level and the window size.
//
// Returns:
//   - error: the first invalid value
func (c Config) Validate() error {
	if _, err := ParseBackend(c.Backend); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.FrameInterval < 0 {
		return errors.Newf("frame interval must not be negative, got %s", c.FrameInterval)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("force_fallback_adapter", cfg.ForceFallbackAdapter)
	v.SetDefault("library_path", cfg.LibraryPath)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("profile", cfg.Profile)
	v.SetDefault("frame_interval", cfg.FrameInterval)

	v.SetDefault("window.width", cfg.Window.Width)
	v.SetDefault("window.height", cfg.Window.Height)
	v.SetDefault("window.title", cfg.Window.Title)
}

// NewGPUFromConfig creates a GPU from cfg. Options are applied after the configured ones.
//
// Parameters:
//   - cfg: the configuration
//   - options: additional GPU options
//
// Returns:
//   - GPU: the GPU
//   - error: error if the backend is unknown, the library cannot be read or the device cannot be created
func NewGPUFromConfig(cfg Config, options ...GPUBuilderOption) (GPU, error) {
	backend, err := ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	configured := []GPUBuilderOption{
		WithBackend(backend),
		WithForceFallbackAdapter(cfg.ForceFallbackAdapter),
		WithProfiling(cfg.Profile),
	}
	if cfg.LibraryPath != "" {
		source, err := os.ReadFile(cfg.LibraryPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read library %s", cfg.LibraryPath)
		}
		configured = append(configured, WithLibrarySource(cfg.LibraryPath, string(source)))
	}
	return NewGPU(append(configured, options...)...)
}
