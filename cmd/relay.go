package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/synchearts/relay/internal/bootstrap"
	"github.com/synchearts/relay/internal/bus"
	"github.com/synchearts/relay/internal/channels"
	"github.com/synchearts/relay/internal/channels/telegram"
	"github.com/synchearts/relay/internal/config"
	"github.com/synchearts/relay/internal/responder"
	"github.com/synchearts/relay/internal/router"
	"github.com/synchearts/relay/internal/store"
	"github.com/synchearts/relay/internal/store/pg"
	"github.com/synchearts/relay/internal/store/sqlite"
	"github.com/synchearts/relay/internal/telemetry"
)

// dispatchRetention is how long forward dispatch records are kept for reply
// correlation before pruning. Old replies still resolve via the text marker.
const dispatchRetention = 30 * 24 * time.Hour

func runRelay() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Telegram.Token == "" {
		fmt.Println("No Telegram bot token found. Set RELAY_TELEGRAM_TOKEN or run:  relay onboard")
		os.Exit(1)
	}
	if cfg.Telegram.OperatorID == 0 {
		slog.Warn("no operator configured; forwards and admin commands are disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	if _, err := bootstrap.SeedAgents(ctx, stores.Agents); err != nil {
		slog.Warn("agent seeding failed", "error", err)
	}

	msgBus := bus.New()

	respOpts := []responder.Option{}
	if d := cfg.ResponderDelay(); d > 0 {
		respOpts = append(respOpts, responder.WithDelay(d))
	}
	if cfg.Responder.RepliesFile != "" {
		respOpts = append(respOpts, responder.WithRepliesFile(config.ExpandHome(cfg.Responder.RepliesFile)))
	}
	resp := responder.New(respOpts...)
	if err := resp.Watch(ctx); err != nil {
		slog.Warn("replies watcher failed", "error", err)
	}

	core := router.New(msgBus, stores, resp, router.Config{
		OperatorID:      cfg.Telegram.OperatorID,
		StartingCredits: cfg.Ledger.StartingCredits,
		TextCost:        cfg.Ledger.TextCost,
		MeterAssisted:   cfg.Ledger.MeterAssisted,
	})
	go core.Run(ctx)

	channelMgr := channels.NewManager(msgBus)
	tg, err := telegram.New(cfg.Telegram, msgBus)
	if err != nil {
		slog.Error("telegram channel init failed", "error", err)
		os.Exit(1)
	}
	channelMgr.RegisterChannel(tg.Name(), tg)

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("channel start failed", "error", err)
		os.Exit(1)
	}

	go pruneDispatches(ctx, stores)

	mode := "standalone"
	if cfg.IsManagedMode() {
		mode = "managed"
	}
	slog.Info("relay started", "version", Version, "mode", mode)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	channelMgr.StopAll(context.Background())
	cancel()
}

// openStores selects the storage backend: Postgres when managed mode is
// configured, a local SQLite file otherwise.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		return pg.NewPGStores(store.Config{
			Mode:        cfg.Database.Mode,
			PostgresDSN: cfg.Database.PostgresDSN,
		})
	}

	path := cfg.SQLitePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return sqlite.Open(path)
}

// pruneDispatches drops expired forward dispatch records once a day.
func pruneDispatches(ctx context.Context, stores *store.Stores) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := stores.Dispatches.Prune(ctx, time.Now().Add(-dispatchRetention))
			if err != nil {
				slog.Warn("dispatch prune failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("pruned dispatch records", "count", n)
			}
		}
	}
}
