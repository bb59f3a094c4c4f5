// Package cmd implements the p1streamd CLI command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/version"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:     "p1streamd",
	Short:   "Broadcaster daemon: composes video/audio sources and pushes RTMP",
	Version: version.Short(),
	Long: `p1streamd runs one broadcaster pipeline: a VideoMixer composing
registered video sources on a clock tick, an AudioMixer mixing and AAC-
encoding registered audio sources, and a Connection pushing the result to one
or more RTMP destinations.

Configuration is a single YAML file (see --config); P1STREAM_-prefixed
environment variables override any file value.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("p1streamd: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "p1stream.yaml", "path to the pipeline YAML config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides P1STREAM_LOG_LEVEL)")

	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		logger.Init()
		if logLevel != "" {
			if err := logger.SetLevel(logLevel); err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
		}
		return nil
	}
}
