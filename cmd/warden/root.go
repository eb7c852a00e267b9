package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warden-dev/warden/internal/infrastructure/system"
)

var (
	cfgFile   string
	verbose   bool
	ephemeral bool
)

// rootCmd is the application entry point.
var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Capability-gated plugin runtime",
	Long: `Warden hosts WebAssembly, JavaScript and Lua plugins behind a capability
guard. Plugins declare a trust tier and the vault partitions, hosts and
environment they need; warden grants exactly that and nothing more, and
serves the plugin panels to UI clients over a WebSocket bridge.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogging()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.warden/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep settings, approvals and vault files in memory")
}

// initConfig sets up environment overrides. Every config key can be set with
// WARDEN_<KEY>, nested keys joined by underscores (WARDEN_BRIDGE_ADDR).
func initConfig() {
	viper.SetEnvPrefix("WARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile == "" {
		cfgFile = system.DefaultPath()
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("using config file", "file", viper.ConfigFileUsed())
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
