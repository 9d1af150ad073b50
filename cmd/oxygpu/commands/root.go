package commands

import (
	"log/slog"
	"os"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     = engine.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "oxygpu",
	Short: "Run compute and render passes on a GPU",
	Long: `oxygpu runs shader passes on a WebGPU device, or on the in-process software
device when no adapter is available.

Configuration is read from oxygpu.yaml (working directory or $HOME/.oxygpu),
OXYGPU_* environment variables and flags, in increasing precedence.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./oxygpu.yaml or $HOME/.oxygpu/oxygpu.yaml)")
	flags.String("backend", cfg.Backend, "device backend: auto, wgpu or software")
	flags.Bool("force-fallback-adapter", false, "ask wgpu for its software adapter")
	flags.String("library", "", "WGSL file used as the shader library")
	flags.String("log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	flags.Bool("profile", false, "log pass statistics")

	v.BindPFlag("backend", flags.Lookup("backend"))
	v.BindPFlag("force_fallback_adapter", flags.Lookup("force-fallback-adapter"))
	v.BindPFlag("library_path", flags.Lookup("library"))
	v.BindPFlag("log_level", flags.Lookup("log-level"))
	v.BindPFlag("profile", flags.Lookup("profile"))
}

// loadConfig merges file, environment and flags into cfg and installs the logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := engine.LoadConfig(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	if used := v.ConfigFileUsed(); used != "" {
		common.Logger().Debug("using config file", "path", used)
	}
	return nil
}
