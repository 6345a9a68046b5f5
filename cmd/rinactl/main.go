// Command rinactl is a dev CLI for running single bot cycles and
// inspecting rina's config and state.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "rinactl",
	Short:         "Maintenance and debugging for the rina bot",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is the user config dir)")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level")

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func configPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, nil
	}
	return config.ConfigPath()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level)
}
