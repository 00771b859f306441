// Command dwload loads the five warehouse CSV batches into the star schema:
// reset the tables, load the dimensions, resolve database-generated surrogate
// keys, and insert the assembled fact rows. One invocation is one full load.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"dwload/internal/config"
	"dwload/internal/csvsource"
	"dwload/internal/metrics"
	"dwload/internal/metrics/datadog"
	"dwload/internal/storage"
	"dwload/internal/warehouse"

	_ "dwload/internal/storage/postgres"
	_ "dwload/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataDirFlag := flag.String("data-dir", "data", "directory holding the five CSV batch files (or set DWLOAD_DATA_DIR env var)")
	encodingFlag := flag.String("encoding", "", "CSV byte encoding: utf-8 (default), latin-1, windows-1252")
	storageFlag := flag.String("storage", "postgres", "storage backend: postgres or sqlite (or set DWLOAD_STORAGE env var)")
	dsnFlag := flag.String("dsn", "", "override the backend DSN; default builds a Postgres DSN from POSTGRES_* env vars")
	datadogFlag := flag.Bool("datadog", false, "submit metrics to Datadog (requires DD_API_KEY)")
	datadogTagsFlag := flag.String("datadog-tags", "", "extra Datadog tags as comma-separated key:value pairs")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument %q\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}

	log := newLogger(*verboseFlag).With("run_id", uuid.NewString())

	// Environment overrides, then .env fallback for the POSTGRES_* family.
	if v := os.Getenv("DWLOAD_DATA_DIR"); v != "" {
		*dataDirFlag = v
	}
	if v := os.Getenv("DWLOAD_STORAGE"); v != "" {
		*storageFlag = v
	}
	if v := os.Getenv("DWLOAD_DSN"); v != "" {
		*dsnFlag = v
	}

	dotenv, err := config.LoadDotenv()
	if err != nil {
		return err
	}
	if dotenv != "" {
		log.Debug("loaded environment file", "path", dotenv)
	}

	dsn := *dsnFlag
	if dsn == "" {
		switch *storageFlag {
		case "postgres":
			cfg := config.FromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}
			dsn = cfg.DSN()
		case "sqlite":
			dsn = "file:dwload.db"
		}
	}

	ctx := context.Background()

	var mb metrics.Backend = metrics.Nop{}
	if *datadogFlag {
		dd, err := datadog.New(ctx, datadog.Options{
			Tags: datadog.ParseTagsCSV(*datadogTagsFlag),
		})
		if err != nil {
			return fmt.Errorf("datadog: %w", err)
		}
		mb = dd
	}
	defer func() {
		if err := mb.Close(); err != nil {
			log.Warn("metrics close failed", "error", err)
		}
	}()

	log.Info("reading batches", "data_dir", *dataDirFlag)
	batches, err := csvsource.Load(csvsource.Options{
		DataDir:  *dataDirFlag,
		Encoding: *encodingFlag,
	})
	if err != nil {
		return err
	}

	repo, err := storage.New(ctx, storage.Config{Kind: *storageFlag, DSN: dsn})
	if err != nil {
		return err
	}
	defer repo.Close()

	job := &warehouse.Job{
		Repo:    repo,
		Log:     log,
		Metrics: mb,
	}

	start := time.Now()
	if err := job.Run(ctx, batches); err != nil {
		return err
	}
	log.Info("load complete", "backend", *storageFlag, "duration", time.Since(start))
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(t.Format("2006-01-02T15:04:05.000Z"))
			}
			return a
		},
	}))
}
