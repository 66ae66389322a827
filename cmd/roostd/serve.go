// ABOUTME: The serve subcommand: wires the store, probes, runner, orchestrator and server.
// ABOUTME: Runs until SIGINT/SIGTERM, then tears everything down in order.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/broadcast"
	"github.com/2389/roost/internal/dedupe"
	"github.com/2389/roost/internal/delegation"
	"github.com/2389/roost/internal/orchestrator"
	"github.com/2389/roost/internal/permission"
	"github.com/2389/roost/internal/probe"
	"github.com/2389/roost/internal/runner"
	"github.com/2389/roost/internal/server"
	"github.com/2389/roost/internal/store"
)

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dataPath := getDataPath()
		if err := os.MkdirAll(dataPath, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		dbPath = filepath.Join(dataPath, "roost.db")
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", dbPath)
	fmt.Println()

	logger.Info("starting roostd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", dbPath,
	)

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	roster := agent.NewRoster(logger)
	tracker := dedupe.NewTracker(cfg.Orchestrator.DedupeMaxEntries)
	hub := broadcast.NewHub(tracker, st, logger)
	defer hub.Close()

	notify := &orchestrator.HubNotifier{Hub: hub}
	perms := permission.NewService(roster, st, notify, cfg.Orchestrator.PermissionTimeout, logger)
	judge := &delegation.ClaudeJudge{
		Binary: cfg.Provider.Binary,
		Model:  cfg.Provider.JudgmentModel,
	}
	deleg := delegation.NewService(roster, judge, st, notify, cfg.Orchestrator.JudgmentTimeout, logger)

	activity := probe.NewActivityProbe(cfg.Provider.SessionDir, logger)
	defer activity.Close()
	procs := probe.NewProcessProbe(logger)

	claudeRunner := runner.NewClaudeRunner(cfg.Provider.Binary, cfg.Provider.Model, logger)
	defer claudeRunner.StopAll()

	orch := orchestrator.New(orchestrator.Options{
		Roster:      roster,
		Runners:     map[string]runner.Runner{"claude": claudeRunner},
		Hub:         hub,
		Permissions: perms,
		Delegation:  deleg,
		Activity:    activity,
		Processes:   procs,
		Config:      cfg.Orchestrator,
		Logger:      logger,
	})
	orch.Start()
	defer orch.Close()

	srv := server.New(cfg.Server.HTTPAddr, orch, hub, st, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	return nil
}
