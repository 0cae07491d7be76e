// Carlinkd drives a USB carlink adapter: it keeps the adapter session alive,
// plays its audio, forwards its video and exposes a local status server.
//
// Usage:
//
//	carlinkd run [flags]
//	carlinkd monitor [--addr host:port]
//	carlinkd config show|init|path
//	carlinkd version
//
// Settings come from config.yaml in the platform configuration directory,
// overridable with --config or CARLINK_CONFIG. A .env file in the working
// directory is loaded first.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/muurk/carlink/internal/config"
	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/ui"
	"github.com/muurk/carlink/internal/version"
)

// Environment overrides, applied after .env is loaded
const (
	envConfig      = "CARLINK_CONFIG"
	envAdapterAddr = "CARLINK_ADAPTER_ADDR"
)

var (
	configPath string
	envFile    string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "carlinkd",
	Short: "Carlink adapter host daemon",
	Long: `Host-side driver for USB carlink adapters.

carlinkd opens the adapter, performs the session handshake, keeps the link
alive with heartbeats and reopens it after unplugs or timeouts. Audio is
played through the system output, video can be written to H.264 files and
a local status server publishes session events for 'carlinkd monitor'.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		if configPath == "" {
			configPath = os.Getenv(envConfig)
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: platform config directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("carlinkd "+version.Version, version.Details())
	},
}

// loadConfig reads the settings file and applies environment overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if addr := os.Getenv(envAdapterAddr); addr != "" {
		cfg.Adapter.TCPAddr = addr
	}
	return cfg, nil
}

// initLogging starts zap at the flag level, else the config level, else
// CARLINK_LOG_LEVEL
func initLogging(cfg *config.Config) error {
	level := logLevel
	if level == "" && cfg != nil {
		level = cfg.Logging.Level
	}
	return logging.Initialize(level)
}
