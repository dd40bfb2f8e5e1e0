package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fortuna/tipoff/internal/config"
	"github.com/fortuna/tipoff/internal/logger"
)

const (
	appName    = "tipoff"
	appVersion = "1.0.0"
)

func main() {
	if err := rootCommand(&app{}).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// app holds state shared by every subcommand.
type app struct {
	configPath string
	season     string
	dest       string
	logLevel   string

	cfg *config.Config
	log logger.Logger
}

func rootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Build per-game basketball datasets from pre-game statistics",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file (env TIPOFF_CONFIG)")
	root.PersistentFlags().StringVar(&a.season, "season", "", "Season label, e.g. 2023-24")
	root.PersistentFlags().StringVar(&a.dest, "dest", "", "Directory datasets are written to")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		runCommand(a, modeGenerate),
		runCommand(a, modeUpdate),
		runCommand(a, modeToday),
		inspectCommand(a),
		serveCommand(a),
	)
	return root
}

// load reads the config and applies the global flag overrides.
func (a *app) load(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(ctx, a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("season") {
		cfg.Season = a.season
	}
	if flags.Changed("dest") {
		cfg.Destination = a.dest
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}

	log, err := logger.NewFromString(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	a.cfg = cfg
	a.log = log
	return nil
}
