// ABOUTME: Migration utility for moving schedule data between backends.
// ABOUTME: Copies locations, prospects, services and reminders with dry-run and SQLite backup support.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/spruce/app"
	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/config"
	"github.com/harperreed/spruce/logging"
	"github.com/harperreed/spruce/realtime"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Config file")
	from := flag.String("from", "", "Source backend: sqlite, postgres or charm (required)")
	fromDB := flag.String("from-db", "", "Source SQLite path or Postgres DSN")
	to := flag.String("to", "", "Destination backend: sqlite, postgres or charm (required)")
	toDB := flag.String("to-db", "", "Destination SQLite path or Postgres DSN")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Back up a SQLite destination before writing")
	flag.Parse()

	if *from == "" || *to == "" {
		log.Fatal("Error: -from and -to flags are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "spruce-migrate")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srcCfg, err := target(cfg, *from, *fromDB)
	if err != nil {
		log.Fatalf("Invalid source: %v", err)
	}
	dstCfg, err := target(cfg, *to, *toDB)
	if err != nil {
		log.Fatalf("Invalid destination: %v", err)
	}
	if srcCfg.Backend == dstCfg.Backend && srcCfg.DatabasePath == dstCfg.DatabasePath && srcCfg.PostgresDSN == dstCfg.PostgresDSN {
		log.Fatal("Error: source and destination are the same")
	}

	if *backup && !*dryRun && dstCfg.Backend == config.BackendSQLite {
		if err := backupFile(dstCfg.DatabasePath); err != nil {
			log.Fatalf("Backup failed: %v", err)
		}
	}

	src, _, err := app.OpenBackend(srcCfg, logger, realtime.Publishers{})
	if err != nil {
		log.Fatalf("Failed to open source: %v", err)
	}
	defer func() { _ = src.Close() }()

	dst, _, err := app.OpenBackend(dstCfg, logger, realtime.Publishers{})
	if err != nil {
		log.Fatalf("Failed to open destination: %v", err)
	}
	defer func() { _ = dst.Close() }()

	summary, err := migrate(ctx, src, dst, *dryRun, logger)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	prefix := "Copied "
	if *dryRun {
		prefix = "[DRY RUN] Would copy "
	}
	log.Printf("%s%d locations, %d prospects, %d reminders", prefix, summary.Locations, summary.Prospects, summary.Reminders)
}

// target derives the config for one side of the migration.
func target(base *config.Config, kind, location string) (*config.Config, error) {
	cfg := *base
	cfg.Backend = kind
	if location != "" {
		switch kind {
		case config.BackendPostgres:
			cfg.PostgresDSN = location
		default:
			cfg.DatabasePath = location
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func backupFile(path string) error {
	input, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}
	backupPath := fmt.Sprintf("%s.backup.%s", path, time.Now().Format("20060102-150405"))
	log.Printf("Creating backup: %s", backupPath)
	if err := os.WriteFile(backupPath, input, 0600); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

type summary struct {
	Locations int
	Prospects int
	Reminders int
}

// migrate copies every location and prospect from src to dst. Locations that already
// exist in dst by name are reused. Prospects keep their board position.
func migrate(ctx context.Context, src, dst backend.Backend, dryRun bool, logger *zap.Logger) (summary, error) {
	var sum summary

	locations, err := src.ListLocations(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list source locations: %w", err)
	}
	existing, err := dst.ListLocations(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list destination locations: %w", err)
	}
	byName := make(map[string]string, len(existing))
	for _, l := range existing {
		byName[l.Name] = l.ID
	}

	locationIDs := make(map[string]string, len(locations))
	for _, l := range locations {
		if id, ok := byName[l.Name]; ok {
			locationIDs[l.ID] = id
			continue
		}
		sum.Locations++
		if dryRun {
			locationIDs[l.ID] = l.ID
			continue
		}
		created, err := dst.CreateLocation(ctx, l.Name)
		if err != nil {
			return sum, fmt.Errorf("failed to copy location %q: %w", l.Name, err)
		}
		locationIDs[l.ID] = created.ID
		logger.Debug("location copied", zap.String("from", l.ID), zap.String("to", created.ID))
	}

	prospects, err := src.ListProspects(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list source prospects: %w", err)
	}
	for i := range prospects {
		p := &prospects[i]
		in := p.Input()
		if in.LocationID != "" {
			in.LocationID = locationIDs[in.LocationID]
		}
		sum.Prospects++
		sum.Reminders += len(in.Reminders)
		if dryRun {
			continue
		}
		created, err := dst.CreateProspect(ctx, in)
		if err != nil {
			return sum, fmt.Errorf("failed to copy prospect %s: %w", p.ID, err)
		}
		logger.Debug("prospect copied", zap.String("from", p.ID.String()), zap.String("to", created.ID.String()))
	}
	return sum, nil
}
