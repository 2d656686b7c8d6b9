package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"secret-santa/infrastructure/telegram"
	"secret-santa/internal"
	"secret-santa/repositories"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run builds every component and blocks until a signal or a fatal error.
// Deferred cleanups run before main exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Snapshot storage
	var repository repositories.ISnapshotRepository
	switch config.StorageBackend {
	case internal.StorageFile:
		repository = repositories.NewFileSnapshotRepository(config.SnapshotFilepath, log)
	default:
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		repository = repositories.NewBadgerSnapshotRepository(db, log)
	}

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Telegram transport
	// Notices go out on NotifyWorkers concurrent requests, keep that many connections alive
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = config.NotifyWorkers + 1
	client := telegram.NewClient(config.TelegramAPIURL, config.BotToken, config.SendRetries, log,
		telegram.WithHTTPClient(&http.Client{Transport: transport}))
	meCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	me, err := client.GetMe(meCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("bot token check failed: %w", err)
	}
	log.Info("Connected to Telegram", "bot", me.Username)
	source := telegram.NewSource(client, config.PollLimit, config.PollTimeout, log)

	// 5. Bot
	bot, err := internal.NewBot(config, client, source, repository, me.Username, log)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting bot", "at", time.Now().UTC(), "storage", config.StorageBackend)
		errChan <- bot.Run(ctx)
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 7. Final Cleanup
	bot.Stop()
	if err := <-errChan; err != nil {
		return err
	}
	log.Info("Program stopped cleanly")
	return nil
}
