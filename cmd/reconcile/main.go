// Command reconcile repairs rows left behind by a crash: items stuck in
// processing go back to draft and unfinished ingestion batches are marked
// interrupted. Run it before starting the api after an unclean stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/shinyyama/snaplist-backend/internal/config"
	"github.com/shinyyama/snaplist-backend/internal/db"
	"github.com/shinyyama/snaplist-backend/internal/logging"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/repository"
)

func main() {
	olderThan := flag.Duration("older-than", 15*time.Minute, "only touch rows last updated before now minus this")
	dryRun := flag.Bool("dry-run", false, "connect and report the cutoff without writing")
	flag.Parse()

	if err := run(*olderThan, *dryRun); err != nil {
		log.Fatal().Err(err).Msg("reconcile failed")
	}
}

func run(olderThan time.Duration, dryRun bool) error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.LoadTool()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	gdb, err := db.Connect(&cfg.DBConfig)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	if dryRun {
		log.Info().Time("cutoff", cutoff).Msg("dry run; nothing written")
		return nil
	}

	items := repository.NewItemRepository(gdb)
	reset, err := items.ResetStale(ctx, model.ItemStatusProcessing, model.ItemStatusDraft, cutoff)
	if err != nil {
		return fmt.Errorf("reset stale items: %w", err)
	}

	batches := repository.NewIngestionRepository(gdb)
	interrupted, err := batches.MarkInterrupted(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("mark interrupted batches: %w", err)
	}

	log.Info().
		Time("cutoff", cutoff).
		Int64("itemsReset", reset).
		Int64("batchesInterrupted", interrupted).
		Msg("reconcile complete")
	return nil
}
