// Command core runs the Flow local-first sync core as a standalone
// process: it restores persisted state, watches connectivity, and keeps
// draining queued mutations against the remote API until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowapp/flowsync/internal/api"
	"github.com/flowapp/flowsync/internal/cache"
	"github.com/flowapp/flowsync/internal/config"
	"github.com/flowapp/flowsync/internal/connectivity"
	"github.com/flowapp/flowsync/internal/core"
	"github.com/flowapp/flowsync/internal/db"
	"github.com/flowapp/flowsync/internal/logging"
	syncpkg "github.com/flowapp/flowsync/internal/sync"
	"github.com/flowapp/flowsync/internal/sync/queue"
	"github.com/flowapp/flowsync/internal/sync/scheduler"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "flowsync: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))
	logging.Info("Flow sync core starting", map[string]interface{}{
		"version":  Version,
		"data_dir": cfg.DataDir,
		"remote":   cfg.Remote.BaseURL,
	})

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		return err
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	store := cache.New(repo)
	store.Load()

	actionQueue := queue.NewActionQueue(repo, cfg.Sync.AttemptWarnAfter)
	actionQueue.Load()

	client := api.NewClient(cfg.Remote.BaseURL, cfg.Remote.RequestTimeout)
	engine := syncpkg.NewEngine(actionQueue, client, store)

	sched := scheduler.NewScheduler(engine, &scheduler.Config{
		DrainInterval: cfg.Sync.DrainInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := connectivity.NewMonitor(client.Health, cfg.Sync.ProbeInterval)
	monitor.OnChange(func(online bool) {
		sched.SetOnlineStatus(ctx, online)
	})

	coordinator := core.NewCoordinator(store, actionQueue, sched, nil, cfg.Sync.UndoWindow)

	sched.Start(ctx)
	defer sched.Stop()
	monitor.Start(ctx)
	defer monitor.Stop()

	var socket *connectivity.SocketWatch
	if cfg.Remote.SocketPath != "" {
		socket = connectivity.NewSocketWatch(monitor, socketURL(cfg))
		socket.Start(ctx)
		defer socket.Stop()
	}

	// Periodic status report while running. The coordinator is also the
	// mutation surface for an embedding UI layer.
	statusTicker := time.NewTicker(cfg.Sync.DrainInterval)
	defer statusTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-statusTicker.C:
			status := coordinator.Status()
			logging.Debug("Sync status", map[string]interface{}{
				"online":  status.Online,
				"pending": status.PendingActions,
			})
		case <-sig:
			logging.Info("Flow sync core shutting down", nil)
			return nil
		}
	}
}

// socketURL derives the websocket endpoint from the HTTP base URL.
func socketURL(cfg *config.Config) string {
	base := cfg.Remote.BaseURL
	switch {
	case len(base) > 8 && base[:8] == "https://":
		base = "wss://" + base[8:]
	case len(base) > 7 && base[:7] == "http://":
		base = "ws://" + base[7:]
	}
	return base + cfg.Remote.SocketPath
}
