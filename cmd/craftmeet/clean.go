package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/craftmeet/agent/persistence"
)

// =============================================================================
// 🧹 clean 命令
// =============================================================================

func runClean(args []string) {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	common := registerCommonFlags(fs)
	sessionID := fs.String("session", "", "Only purge the given meeting")
	participants := fs.Bool("participants", false, "Also purge participant memories")
	backup := fs.Bool("backup", false, "Back up records before purging")
	fs.Parse(args)

	cfg := mustLoadConfig(common)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	report, err := app.clean(ctx, persistence.CleanerConfig{
		SessionID:           *sessionID,
		IncludeParticipants: *participants || cfg.Cleaner.Participants,
		Backup:              *backup || cfg.Backup.Enabled,
	})
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if err != nil {
		logger.Error("clean failed", zap.Error(err))
		os.Exit(1)
	}
}
