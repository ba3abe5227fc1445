package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/abelbrown/civicwatch/internal/analysis"
	"github.com/abelbrown/civicwatch/internal/publish"
)

func runAnalyze(args []string) error {
	fs := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a YAML config file")
	doPublish := fs.Bool("publish", false, "post the report to the configured Telegram chat")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *doPublish && !cfg.TelegramEnabled() {
		return errors.New("--publish needs TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.dispatcher.AnalyzeNews(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch or analyze news: %w", err)
	}
	if err := writeReport(os.Stdout, report); err != nil {
		return err
	}

	if !*doPublish {
		return nil
	}
	tg, err := publish.NewTelegram(cfg.Telegram.BotToken, "", cfg.Telegram.ChatID, logger.WithPrefix("telegram"))
	if err != nil {
		return err
	}
	sent, err := tg.PublishReport(ctx, report)
	if err != nil {
		return fmt.Errorf("publish (%d delivered): %w", sent, err)
	}
	return nil
}

func writeReport(w io.Writer, report analysis.Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
