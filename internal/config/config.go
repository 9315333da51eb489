// Package config provides CLI configuration and application logic for tsugite.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/mazrean/tsugite/internal/tsugite"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI is the root command configuration with subcommands.
type CLI struct {
	LogLevel string           `kong:"short='l',help='Log level',enum='debug,info,warn,error',default='info'"`
	Plan     PlanCmd          `kong:"cmd,default='withargs',help='Emit construction plans (default)'"`
	Check    CheckCmd         `kong:"cmd,help='Validate compositions without writing plans'"`
	Version  kong.VersionFlag `kong:"short='v',help='Show version and exit.'"`
}

// PlanCmd is the default command for emitting construction plans.
type PlanCmd struct {
	Packages []string `kong:"short='p',help='Go package patterns loaded for type information'"`
	Files    []string `kong:"arg,help='Composition manifests to process'"`
}

// Run executes the plan command.
func (c *PlanCmd) Run(cli *CLI) error {
	setupLogger(cli.LogLevel)

	if len(c.Files) == 0 {
		return fmt.Errorf("no files specified")
	}

	slog.Info("Emitting construction plans", "files", c.Files)

	processor := tsugite.NewProcessor()
	if err := attachOracle(processor, c.Packages); err != nil {
		return err
	}
	return processor.ProcessFiles(context.Background(), c.Files)
}

// CheckCmd validates compositions and reports diagnostics only.
type CheckCmd struct {
	Packages []string `kong:"short='p',help='Go package patterns loaded for type information'"`
	Files    []string `kong:"arg,help='Composition manifests to process'"`
}

// Run executes the check command.
func (c *CheckCmd) Run(cli *CLI) error {
	setupLogger(cli.LogLevel)

	if len(c.Files) == 0 {
		return fmt.Errorf("no files specified")
	}

	slog.Info("Checking compositions", "files", c.Files)

	processor := tsugite.NewProcessor()
	processor.DryRun = true
	if err := attachOracle(processor, c.Packages); err != nil {
		return err
	}
	return processor.ProcessFiles(context.Background(), c.Files)
}

func attachOracle(p *tsugite.Processor, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}

	oracle, err := tsugite.NewGoOracle(patterns...)
	if err != nil {
		return fmt.Errorf("load packages: %w", err)
	}
	p.Oracle = oracle
	return nil
}

func Run() error {
	var cli CLI
	kongCtx := kong.Parse(&cli,
		kong.Name("tsugite"),
		kong.Description("A dependency injection resolver emitting construction plans for composition roots"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s) released on %s", version, commit, date),
		},
	)

	return kongCtx.Run(&cli)
}

func setupLogger(level string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
