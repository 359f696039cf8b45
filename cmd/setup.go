package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/embedding"
	"github.com/kozaktomas/attendance/internal/embedding/dlib"
	"github.com/kozaktomas/attendance/internal/events"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/ledger"
	"github.com/kozaktomas/attendance/internal/logger"
	"github.com/kozaktomas/attendance/internal/roster"
)

const defaultSQLitePath = "attendance.db"

// loadConfig loads the environment configuration and applies the
// persistent flag overrides.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()

	if changed(cmd, "images") {
		cfg.Roster.ImagesDir = mustGetString(cmd, "images")
	}
	if changed(cmd, "ledger-file") {
		cfg.Ledger.Path = mustGetString(cmd, "ledger-file")
	}
	if changed(cmd, "ledger-backend") {
		cfg.Ledger.Backend = mustGetString(cmd, "ledger-backend")
	}
	if changed(cmd, "log-level") {
		cfg.Log.Level = mustGetString(cmd, "log-level")
	}
	if changed(cmd, "log-format") {
		cfg.Log.Format = mustGetString(cmd, "log-format")
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	l := logger.FromFormat(cfg.Log.Format, cfg.Log.Level, os.Stderr)
	slog.SetDefault(l)
	return l
}

// newDetector creates the configured face detector. The returned function
// releases it.
func newDetector(cfg *config.Config, log *slog.Logger) (embedding.Detector, func(), error) {
	switch cfg.Embedding.Backend {
	case "", "http":
		log.Debug("using embedding server", "url", cfg.Embedding.URL, "model", cfg.Embedding.Model)
		return embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model), func() {}, nil
	case "dlib":
		rec, err := dlib.New(cfg.Embedding.DlibModelsDir, false)
		if err != nil {
			return nil, nil, err
		}
		// Tolerance follows the model that actually produces the embeddings.
		cfg.Embedding.Model = dlib.Model
		log.Debug("using in-process dlib recognizer", "models", cfg.Embedding.DlibModelsDir)
		return rec, rec.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported embedding backend %q", cfg.Embedding.Backend)
	}
}

// buildRoster loads the reference images, using the cache when configured.
func buildRoster(ctx context.Context, cfg *config.Config, detector embedding.Detector, log *slog.Logger, showProgress bool) (*roster.Roster, *roster.BuildReport, error) {
	opts := []roster.BuildOption{roster.WithLogger(log)}

	var cache *roster.Cache
	if cfg.Roster.CachePath != "" {
		c, err := roster.LoadCache(cfg.Roster.CachePath)
		if err != nil {
			log.Warn("ignoring unreadable roster cache", "path", cfg.Roster.CachePath, "error", err)
		} else {
			log.Debug("roster cache loaded", "path", cfg.Roster.CachePath, "entries", c.Len())
		}
		cache = c
		opts = append(opts, roster.WithCache(cache))
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		opts = append(opts, roster.WithProgress(
			func(total int) {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Loading reference images"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("images"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionFullWidth(),
				)
			},
			func() {
				if bar != nil {
					_ = bar.Add(1)
				}
			},
		))
	}

	log.Info("loading reference images", "dir", cfg.Roster.ImagesDir)
	r, report, err := roster.Build(ctx, cfg.Roster.ImagesDir, detector, opts...)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build roster: %w", err)
	}

	if cache != nil {
		if err := cache.Save(); err != nil {
			log.Warn("failed to save roster cache", "path", cfg.Roster.CachePath, "error", err)
		}
	}
	if r.Len() == 0 {
		log.Warn("roster is empty, every face will be reported as unknown", "dir", cfg.Roster.ImagesDir)
	}
	return r, report, nil
}

// applyTolerance applies the --tolerance flag when the user set it.
func applyTolerance(cmd *cobra.Command, cfg *config.Config) error {
	if !changed(cmd, "tolerance") {
		return nil
	}
	t := mustGetFloat64(cmd, "tolerance")
	if t < 0 {
		return fmt.Errorf("tolerance must not be negative, got %v", t)
	}
	cfg.SetTolerance(t)
	return nil
}

// newMatcher builds the matcher for r. The tolerance follows the model that
// produced the roster embeddings, not the configured profile name.
func newMatcher(cfg *config.Config, r *roster.Roster) *facematch.Matcher {
	return facematch.NewMatcher(r, cfg.ToleranceFor(r.Model()), facematch.WithHNSW(cfg.Match.HNSWMinReferences))
}

// openStore opens the configured ledger storage backend.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (ledger.Store, string, error) {
	switch cfg.Ledger.Backend {
	case "", "csv":
		s, err := ledger.OpenCSV(cfg.Ledger.Path)
		if err != nil {
			return nil, "", err
		}
		if n := s.Malformed(); n > 0 {
			log.Warn("skipped malformed ledger rows", "path", s.Path(), "rows", n)
		}
		return s, s.Path(), nil
	case database.SQLite, database.Postgres, database.MySQL:
		dsn := cfg.Ledger.DatabaseURL
		if dsn == "" && cfg.Ledger.Backend == database.SQLite {
			dsn = defaultSQLitePath
		}
		pool, err := database.Open(ctx, cfg.Ledger.Backend, dsn)
		if err != nil {
			return nil, "", err
		}
		applied, err := pool.Migrate(ctx)
		if err != nil {
			pool.Close()
			return nil, "", fmt.Errorf("failed to run migrations: %w", err)
		}
		for _, m := range applied {
			log.Info("applied migration", "file", m)
		}
		return database.NewAttendanceRepository(pool, nil), cfg.Ledger.Backend, nil
	default:
		return nil, "", fmt.Errorf("unsupported ledger backend %q", cfg.Ledger.Backend)
	}
}

// openLedger opens the storage backend and wraps it in a Ledger.
func openLedger(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...ledger.Option) (*ledger.Ledger, string, error) {
	store, where, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open ledger: %w", err)
	}
	opts = append([]ledger.Option{
		ledger.WithLogger(log),
		ledger.WithAttempts(cfg.Ledger.AppendRetries),
	}, opts...)
	return ledger.New(store, opts...), where, nil
}

// newPublisher creates the Kafka publisher when brokers are configured.
func newPublisher(cfg *config.Config, log *slog.Logger) events.Publisher {
	if len(cfg.Events.Brokers) == 0 {
		return events.Nop{}
	}
	p, err := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, log)
	if err != nil {
		log.Warn("event publishing disabled", "error", err)
		return events.Nop{}
	}
	return p
}
