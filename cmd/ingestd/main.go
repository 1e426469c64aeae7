package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"tg_ingest/internal/config"
	"tg_ingest/internal/export"
	"tg_ingest/internal/ingest"
	"tg_ingest/internal/provider"
	"tg_ingest/internal/publish"
	"tg_ingest/internal/quota"
	"tg_ingest/internal/realtime"
	"tg_ingest/internal/report"
	"tg_ingest/internal/retry"
	"tg_ingest/internal/sink"
	"tg_ingest/internal/storage"
)

func main() {
	app := &cli.App{
		Name:  "ingestd",
		Usage: "Rate-limited message ingestion into SQLite and CSV exports",
		Commands: []*cli.Command{
			{
				Name:      "single",
				Usage:     "Ingest one source's history",
				ArgsUsage: "<source-id or name>",
				Flags:     []cli.Flag{keywordsFlag()},
				Action:    singleCommand,
			},
			{
				Name:   "bulk",
				Usage:  "Ingest every known source in one run",
				Flags:  []cli.Flag{keywordsFlag()},
				Action: bulkCommand,
			},
			{
				Name:   "realtime",
				Usage:  "Listen for pushed messages and persist them as they arrive",
				Action: realtimeCommand,
			},
			{
				Name:      "search",
				Usage:     "Search stored messages by text or sender",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of messages to display",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "export",
						Usage: "Also write the results to a CSV file",
					},
				},
				Action: searchCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show store statistics and recent sessions",
				Action: statsCommand,
			},
			{
				Name:   "sources",
				Usage:  "List sources known to the provider",
				Action: sourcesCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func keywordsFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "keyword",
		Aliases: []string{"k"},
		Usage:   "Accept only messages containing this keyword (repeatable)",
	}
}

func singleCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one source argument")
	}

	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.close()

	coord, err := env.newCoordinator()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, err := coord.RunSingleSource(ctx, c.Args().First(), c.StringSlice("keyword"))
	env.saveQuota()
	if err != nil {
		return err
	}

	fmt.Print(report.FormatRunReport(r))
	return nil
}

func bulkCommand(c *cli.Context) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.close()

	coord, err := env.newCoordinator()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, err := coord.RunBulk(ctx, c.StringSlice("keyword"))
	env.saveQuota()
	if err != nil {
		return err
	}

	fmt.Print(report.FormatBulkReport(r))
	return nil
}

func realtimeCommand(c *cli.Context) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.close()

	if env.cfg.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for realtime mode")
	}

	appender := export.NewDailyAppender(env.cfg.RealtimeDir())
	listener, err := realtime.New(env.cfg.TelegramBotToken, env.newSink(), appender, env.log)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	listener.Run(ctx)
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query argument")
	}
	query := c.Args().First()

	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := signalContext()
	defer cancel()

	msgs, err := env.store.SearchMessages(ctx, query, 0)
	if err != nil {
		return err
	}

	fmt.Print(report.FormatSearchResults(query, msgs, c.Int("limit")))

	if c.Bool("export") && len(msgs) > 0 {
		path, err := export.WriteSearchResults(env.cfg.SearchResultsDir(), query, msgs, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("\nResults written to %s\n", path)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := signalContext()
	defer cancel()

	stats, err := env.store.Stats(ctx)
	if err != nil {
		return err
	}
	sessions, err := env.store.RecentSessions(ctx, 5)
	if err != nil {
		return err
	}

	fmt.Print(report.FormatStats(stats, sessions))
	return nil
}

func sourcesCommand(c *cli.Context) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.close()

	coord, err := env.newCoordinator()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	infos, err := coord.ListSources(ctx)
	if err != nil {
		return err
	}

	fmt.Print(report.FormatSourceList(infos))
	return nil
}

// env holds the pieces every command needs: configuration, logger,
// an open store, the quota tracker, and the optional queue publisher.
type env struct {
	cfg   *config.Config
	log   *slog.Logger
	store storage.Storage
	quota *quota.Tracker
	pub   *publish.Publisher
}

func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	tracker := quota.New(quota.Limits{
		Hourly:           cfg.HourlyLimit,
		Daily:            cfg.DailyLimit,
		MaxSourcesPerDay: cfg.MaxSourcesPerDay,
		Cooldown:         cfg.Cooldown,
		Restricted:       cfg.ReadOnlyMode,
	})
	if cfg.QuotaStatePath != "" {
		if err := tracker.LoadFile(cfg.QuotaStatePath); err != nil {
			log.Warn("loading quota state failed, starting fresh", "path", cfg.QuotaStatePath, "error", err)
		}
	}

	e := &env{cfg: cfg, log: log, store: store, quota: tracker}

	if cfg.AMQPURL != "" {
		pub, err := publish.New(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect queue: %w", err)
		}
		e.pub = pub
	}
	return e, nil
}

func (e *env) newSink() *sink.Sink {
	var pub sink.Publisher
	if e.pub != nil {
		pub = e.pub
	}
	return sink.New(e.store, pub, e.log)
}

func (e *env) newCoordinator() (*ingest.Coordinator, error) {
	if e.cfg.GatewayURL == "" {
		return nil, fmt.Errorf("GATEWAY_URL is required for this command")
	}

	gw := provider.NewGateway(&http.Client{Timeout: 30 * time.Second}, e.cfg.GatewayURL)
	exec := retry.New(e.cfg.MaxRetries, e.cfg.RateLimitDelay, e.log)
	opts := ingest.Options{
		BatchSize:           e.cfg.BatchSize,
		MaxBatchesPerSource: e.cfg.MaxBatchesPerSource,
		MaxBatchesBulk:      e.cfg.MaxBatchesBulk,
		BatchDelay:          e.cfg.BatchDelay,
		SourceDelay:         e.cfg.SourceDelay,
		ExportsDir:          e.cfg.ExportsDir(),
		BulkExportsDir:      e.cfg.BulkExportsDir(),
	}

	fetcher := ingest.NewFetcher(gw, exec, e.quota, e.newSink(), e.log, opts)
	return ingest.NewCoordinator(e.store, e.quota, fetcher, gw, exec, e.log, opts), nil
}

// saveQuota snapshots the tracker after a batch run when a state path
// is configured. Restarting fresh otherwise is a deliberate policy.
func (e *env) saveQuota() {
	if e.cfg.QuotaStatePath == "" {
		return
	}
	if err := e.quota.SaveFile(e.cfg.QuotaStatePath); err != nil {
		e.log.Warn("saving quota state failed", "path", e.cfg.QuotaStatePath, "error", err)
	}
}

func (e *env) close() {
	if e.pub != nil {
		_ = e.pub.Close()
	}
	_ = e.store.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
