package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gaceta/internal/config"
	"gaceta/internal/core"
	"gaceta/internal/deliver"
	"gaceta/internal/fetch"
	"gaceta/internal/ledger"
	"gaceta/internal/notify"
	"gaceta/internal/sources"
)

var (
	configPath = flag.String("config", "config.toml", "Path to configuration file")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("Received signal, cancelling run", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	logger := slog.Default().With("run", cfg.Run.Name)

	store, err := ledger.Open(ctx, ledger.Config{
		Type: cfg.Ledger.Type,
		Path: cfg.Ledger.Path,
		Addr: cfg.Ledger.Addr,
		Key:  cfg.Ledger.Key,
	})
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	source, err := sources.New(cfg.Source.Type, cfg.Source.Type, sources.Settings{
		URL:       cfg.Source.URL,
		Ref:       cfg.Source.Ref,
		Extension: cfg.Source.Extension,
		MaxItems:  cfg.Source.MaxItems,
		Token:     creds.SourceToken,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build source: %w", err)
	}

	deliverer, err := deliver.New(cfg.Delivery.Type, cfg.Delivery.Type, deliver.Settings{
		Host:     cfg.Delivery.Host,
		Port:     cfg.Delivery.Port,
		From:     cfg.Delivery.From,
		To:       cfg.Delivery.To,
		Subject:  cfg.Delivery.Subject,
		Body:     cfg.Delivery.Body,
		Password: creds.SMTPPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to build delivery channel: %w", err)
	}

	notifier := buildNotifier(cfg, creds, logger)

	engine := core.NewEngine(core.EngineConfig{
		Source:    source,
		Fetcher:   fetch.NewHTTPFetcher(0),
		Deliverer: deliverer,
		Notifier:  notifier,
		Ledger:    store,
		Logger:    logger,
	})

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	_, err = engine.Run(runCtx)
	if err == nil {
		return nil
	}

	// Per-item failures never reach here; of the run-level failures only a
	// ledger persistence error is worth a non-zero exit. A dead listing is
	// already logged and notified, and the next scheduled run retries it.
	if core.IsPersistenceError(err) {
		return err
	}

	logger.Error("Run ended with top-level error", "error", err)
	return nil
}

func buildNotifier(cfg *config.Config, creds *config.Credentials, logger *slog.Logger) core.Notifier {
	var channels []core.Notifier

	if cfg.Notify.Discord.ChannelID != "" && creds.DiscordToken != "" {
		discord, err := notify.NewDiscordNotifier(creds.DiscordToken, cfg.Notify.Discord.ChannelID)
		if err != nil {
			logger.Warn("Discord notifier disabled", "error", err)
		} else {
			channels = append(channels, discord)
		}
	}

	return notify.NewMulti(logger, channels...)
}
