package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/rina/internal/agent"
	"github.com/ibeckermayer/rina/internal/app"
	"github.com/ibeckermayer/rina/internal/config"
)

// --- cycles ---

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Run one publish cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycle(cmd, func(ctx context.Context, a *app.App) error {
			return a.PublishCycle(ctx)
		})
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Run one notification cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycle(cmd, func(ctx context.Context, a *app.App) error {
			return a.NotificationCycle(ctx)
		})
	},
}

func runCycle(cmd *cobra.Command, cycle func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := app.Build(ctx, cfg, log, false)
	if err != nil {
		return err
	}

	cycleErr := rt.Scheduler.RunNow(ctx, cmd.Name(), func(ctx context.Context) error {
		return cycle(ctx, rt.App)
	})
	if err := rt.Close(ctx); err != nil && cycleErr == nil {
		cycleErr = err
	}
	if cycleErr != nil {
		return cycleErr
	}

	return printJSON(cmd, rt.App.Status())
}

// --- state ---

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect persisted bot state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the memory log and processed notifications as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		st, closeState, err := app.OpenState(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeState()

		snap := st.Snapshot()
		memory := snap.Memory
		if n, _ := cmd.Flags().GetInt("last"); n > 0 && len(memory) > n {
			memory = memory[len(memory)-n:]
		}

		return printJSON(cmd, map[string]any{
			"backend":    cfg.State.Backend,
			"memory_len": len(snap.Memory),
			"memory":     memory,
			"processed":  snap.ProcessedIDs(),
		})
	},
}

func init() {
	stateShowCmd.Flags().Int("last", 10, "number of most recent memory entries to show (0 for all)")
	stateCmd.AddCommand(stateShowCmd)
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Ask the primary agent whether it would answer a post",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		agents, err := agent.FromConfig(cfg, log)
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			return app.ErrNoAgents
		}

		d, err := agents[0].Classify(context.Background(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.Kind, strings.TrimSpace(d.Raw))
		return nil
	},
}

// --- open ---

var openCmd = &cobra.Command{
	Use:       "open <config|cache>",
	Short:     "Open the config file or cache directory",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"config", "cache"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		var err error

		switch args[0] {
		case "config":
			path, err = configPath(cmd)
		case "cache":
			path, err = config.CacheDir()
		default:
			return fmt.Errorf("unknown target: %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to get path: %w", err)
		}

		if err := browser.OpenFile(path); err != nil {
			return fmt.Errorf("failed to open: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath(cmd)
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		if err := config.Default().SaveFile(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
