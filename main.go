package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"paper_trading/config"
	"paper_trading/internal/engine"
	"paper_trading/internal/exchange"
	"paper_trading/internal/ledger"
	"paper_trading/internal/storage"
	"paper_trading/internal/telegram"
	"paper_trading/internal/web"
	"strings"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("err", err))
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.Info("🚀 Starting paper trading...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.StorageDriver,
		Dir:         cfg.StorageDir,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		slog.Error("Failed to open store", slog.String("driver", cfg.StorageDriver), slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	policy, err := ledger.ParseShortPolicy(cfg.ShortPolicy)
	if err != nil {
		slog.Error("Invalid short policy", slog.Any("err", err))
		os.Exit(1)
	}
	book := ledger.New(store, ledger.WithShortPolicy(policy))
	book.Load(ctx)

	market, err := exchange.New(cfg.PriceSource, cfg.APIURL)
	if err != nil {
		slog.Error("Failed to create market data client", slog.Any("err", err))
		os.Exit(1)
	}

	opts := engine.Options{
		PollInterval: cfg.PollInterval,
		MaxPriceAge:  cfg.PriceMaxAge,
	}
	if cfg.StreamEnabled && strings.EqualFold(cfg.PriceSource, config.SourceHyperliquid) {
		opts.StreamURL = cfg.StreamURL
		if opts.StreamURL == "" {
			opts.StreamURL = exchange.DefaultHyperliquidWSURL
		}
	}
	tradingEngine := engine.NewTradingEngine(book, market, opts)

	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(cfg.TelegramToken, cfg.AuthorizedUserID, tradingEngine)
		if err != nil {
			slog.Error("Failed to create Telegram bot", slog.Any("err", err))
			os.Exit(1)
		}
		tradingEngine.SetCallbacks(bot.SendExecution, bot.SendClose)
		go bot.Start()
	} else {
		slog.Info("Telegram bot disabled: TELEGRAM_BOT_TOKEN not set")
	}

	tradingEngine.Start(ctx)

	webServer := web.NewServer(tradingEngine, cfg.Port)
	webServer.Start()

	slog.Info("✅ All systems initialized",
		slog.String("source", cfg.PriceSource),
		slog.String("storage", cfg.StorageDriver),
		slog.String("short_policy", string(policy)),
	)

	<-ctx.Done()

	slog.Info("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Web server shutdown", slog.Any("err", err))
	}
	if bot != nil {
		bot.Stop()
	}
	tradingEngine.Stop()

	slog.Info("👋 Goodbye!")
}
