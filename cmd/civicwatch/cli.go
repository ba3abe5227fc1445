package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/abelbrown/civicwatch/internal/logging"
	"github.com/abelbrown/civicwatch/internal/ui"
)

func runCLI(args []string) error {
	fs := pflag.NewFlagSet("cli", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a YAML config file")
	logFile := fs.String("log-file", "", "log file (default ~/.civicwatch/logs/civicwatch-DATE.log)")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}

	// Log to a file so output never interferes with the terminal.
	path := cfg.Logging.File
	if path == "" {
		if path, err = logging.DefaultPath(); err != nil {
			return err
		}
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, closer, err := logging.Open(path, level)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("shell started", "sources", len(a.aggregator.Sources()), "cache", cfg.Cache.Backend)

	p := tea.NewProgram(ui.New(ctx, a.dispatcher, cfg.Cache.AnalysisKey), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("shell: %w", err)
	}
	return nil
}
