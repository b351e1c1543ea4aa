package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aniketpanjwani/local-media-tools/internal/config"
	"github.com/aniketpanjwani/local-media-tools/internal/database"
	"github.com/aniketpanjwani/local-media-tools/internal/logging"
	"github.com/aniketpanjwani/local-media-tools/internal/metrics"
	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

const usage = `usage: localevents [-config FILE] COMMAND

Commands:
  migrate           bring the datastore schema up to the current version
  stats             print an operational snapshot as JSON
  events FROM TO    print events in the inclusive date range (YYYY-MM-DD)
`

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	fallback := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var cfg config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fallback.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fallback.Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	collector, err := metrics.NewStoreCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	store, err := database.NewStore(ctx, database.Options{
		Datastore: database.Config{
			Path:        cfg.Storage.Path,
			BusyTimeout: cfg.Storage.BusyTimeout,
		},
		VenueMatchThreshold: cfg.Matching.VenueThreshold,
		TitleMatchThreshold: cfg.Matching.TitleThreshold,
		CrossSourceMatch:    cfg.Matching.CrossSource,
		AutoBackup:          cfg.Storage.AutoBackup,
		Logger:              logger,
		Observer:            collector,
	})
	if err != nil {
		logger.Error("failed to open datastore", "path", cfg.Storage.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	switch cmd := flag.Arg(0); cmd {
	case "migrate":
		// NewStore already ran pending migrations.
		logger.Info("datastore ready", "path", cfg.Storage.Path, "schema_version", database.SchemaVersion)

	case "stats":
		stats, err := store.Stats(ctx)
		if err != nil {
			logger.Error("failed to collect stats", "error", err)
			os.Exit(1)
		}
		printJSON(stats)

	case "events":
		if flag.NArg() != 3 {
			flag.Usage()
			os.Exit(2)
		}
		from, err := time.Parse(models.DateLayout, flag.Arg(1))
		if err != nil {
			logger.Error("invalid FROM date", "value", flag.Arg(1))
			os.Exit(2)
		}
		to, err := time.Parse(models.DateLayout, flag.Arg(2))
		if err != nil {
			logger.Error("invalid TO date", "value", flag.Arg(2))
			os.Exit(2)
		}
		events, err := store.QueryEvents(ctx, from, to)
		if err != nil {
			logger.Error("query failed", "error", err)
			os.Exit(1)
		}
		printJSON(events)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "encode output:", err)
		os.Exit(1)
	}
}
