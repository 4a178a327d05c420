// Command smokersim runs the smoker health simulation behind an HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/smokersim/internal/api"
	"github.com/talgya/smokersim/internal/config"
	"github.com/talgya/smokersim/internal/engine"
	"github.com/talgya/smokersim/internal/entropy"
	"github.com/talgya/smokersim/internal/history"
	"github.com/talgya/smokersim/internal/persistence"
	"github.com/talgya/smokersim/internal/policy"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("smokersim starting",
		"initial_age", cfg.InitialAge,
		"initial_cigarettes", cfg.InitialCigarettes,
		"tick_interval", cfg.TickInterval,
	)

	// ── Random source ────────────────────────────────────────────────
	var rnd entropy.Source
	switch {
	case cfg.HasSeed:
		rnd = entropy.NewSeeded(cfg.Seed)
		slog.Info("using seeded random source", "seed", cfg.Seed)
	case cfg.RandomOrgKey != "":
		pool := entropy.NewPool(cfg.RandomOrgKey)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := pool.Prefetch(ctx); err != nil {
			slog.Warn("random.org prefetch failed; drawing from crypto/rand until a refill succeeds", "error", err)
		}
		cancel()
		rnd = pool
		slog.Info("using random.org entropy pool (crypto/rand fallback)", "buffered", pool.Buffered())
	default:
		rnd = entropy.Crypto{}
	}

	// ── Simulation ───────────────────────────────────────────────────
	sim := engine.NewSimulation(cfg.InitialAge, cfg.InitialCigarettes, policy.DefaultInputs(), rnd)
	if cfg.StressDrift > 0 {
		seed := cfg.Seed
		if !cfg.HasSeed {
			seed = time.Now().UnixNano()
		}
		sim.SetStressDrift(policy.NewStressDrift(seed, cfg.StressDrift))
		slog.Info("life stress drift enabled", "amplitude", cfg.StressDrift)
	}

	eng := engine.NewEngine(sim)
	if err := eng.SetInterval(cfg.TickInterval); err != nil {
		slog.Error("invalid tick interval", "error", err)
		os.Exit(1)
	}

	recorder := history.NewRecorder(cfg.HistoryPoints)
	hub := api.NewHub()
	eng.AddObserver(recorder)
	eng.AddObserver(hub)

	// ── Journal ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.JournalEnabled() {
		db, err = persistence.Open(cfg.DBDialect, cfg.DBDSN)
		if err != nil {
			slog.Error("failed to open journal", "dialect", string(cfg.DBDialect), "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if last, err := db.GetMeta("last_run_id"); err == nil {
			slog.Info("journal opened", "dialect", string(db.Dialect()), "last_run_id", last)
		}
		eng.AddObserver(persistence.NewJournal(db))
	} else {
		slog.Warn("DB_DIALECT=none; runs will not be journaled")
	}

	// ── HTTP API ─────────────────────────────────────────────────────
	switch {
	case cfg.ControlKey != "":
	case cfg.OpenControl:
		slog.Warn("SMOKERSIM_OPEN_CONTROL set without a control key; control endpoints are open")
	default:
		slog.Warn("SMOKERSIM_CONTROL_KEY not set; control endpoints will refuse POSTs")
	}
	server := &api.Server{
		Eng:         eng,
		History:     recorder,
		Hub:         hub,
		DB:          db,
		Addr:        cfg.Addr,
		ControlKey:  cfg.ControlKey,
		OpenControl: cfg.OpenControl,
		StreamKey:   cfg.StreamKey,
		CORSOrigins: cfg.CORSOrigins,
	}
	server.Start()
	slog.Info("API ready", "addr", cfg.Addr, "status", "/api/v1/status")

	// ── Run until signalled ──────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	slog.Info("received signal, shutting down")

	eng.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	snap := eng.Snapshot()
	slog.Info("simulation stopped",
		"run_id", eng.RunID(),
		"phase", snap.Phase.String(),
		"tick", snap.Tick,
		"age", snap.Age,
	)
}
