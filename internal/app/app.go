package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"memecoin-radar/internal/alerting"
	"memecoin-radar/internal/config"
	"memecoin-radar/internal/extract"
	"memecoin-radar/internal/fetcher"
	"memecoin-radar/internal/metrics"
	"memecoin-radar/internal/scheduler"
	"memecoin-radar/internal/service"
	"memecoin-radar/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output (tables, JSON).
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newExtractor() *extract.Extractor {
	cfg := a.Config.Extract
	return extract.New(extract.Options{
		NamePlaceholder: cfg.NamePlaceholder,
		NameMaxRunes:    cfg.NameMaxRunes,
		MarketCapNA:     cfg.MarketCapNA,
		DefaultMentions: cfg.DefaultMentions,
		TimeNA:          cfg.TimeNA,
	})
}

func (a *App) newFileStore() *storage.FileStore {
	return storage.NewFileStore(a.Config.Store.Path, a.Config.Store.MaxEntries, a.Logger)
}

func (a *App) newQuotes() *fetcher.Market {
	cfg := a.Config.DexScreener
	return fetcher.NewMarket(fetcher.MarketOptions{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) openArchive(ctx context.Context) (*storage.Archive, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	archive := storage.NewArchive(pool)
	if err := archive.EnsureSchema(ctx); err != nil {
		archive.Close()
		return nil, nil, err
	}
	return archive, archive.Close, nil
}

func (a *App) newTelegram(ctx context.Context, interactive bool) (*fetcher.Telegram, error) {
	cfg := a.Config.Telegram
	return fetcher.NewTelegram(ctx, fetcher.TelegramOptions{
		APIID:         cfg.APIID,
		APIHash:       cfg.APIHash,
		SessionString: cfg.SessionString,
		SessionFile:   cfg.SessionFile,
		Phone:         cfg.Phone,
		Password:      cfg.Password,
		Interactive:   interactive,
	}, a.Logger)
}

func (a *App) newService(src fetcher.Source, store storage.TokenStore, archive *storage.Archive, opts service.Options) *service.Service {
	deps := service.Deps{
		Source:    src,
		Extractor: a.newExtractor(),
		Store:     store,
	}
	// a nil *Archive must not become a non-nil interface
	if archive != nil {
		deps.Archive = archive
		deps.Locker = archive
	}
	if notifier := a.newNotifier(); notifier != nil {
		deps.Notifier = notifier
		deps.Quotes = a.newQuotes()
	}
	return service.New(opts, deps, a.Logger)
}

// ingestion is the shared setup of run, schedule and backfill.
type ingestion struct {
	store    *storage.FileStore
	telegram *fetcher.Telegram
	service  *service.Service
	close    func()
}

func (a *App) prepareIngestion(ctx context.Context, batch bool, opts service.Options) (*ingestion, error) {
	if err := a.Config.RequireTelegram(batch); err != nil {
		return nil, err
	}

	store := a.newFileStore()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if tokens, err := store.Load(ctx); err == nil {
		metrics.SetStoreEntries(len(tokens))
	}

	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return nil, err
	}
	if archive == nil {
		a.Logger.Warn().Msg("database.dsn not configured; archive and cross-process locking disabled")
	}

	tg, err := a.newTelegram(ctx, !batch)
	if err != nil {
		if closeArchive != nil {
			closeArchive()
		}
		return nil, err
	}

	closer := func() {}
	if closeArchive != nil {
		closer = closeArchive
	}
	return &ingestion{
		store:    store,
		telegram: tg,
		service:  a.newService(tg, store, archive, opts),
		close:    closer,
	}, nil
}

// Run executes one ingestion run. Batch mode makes a single catch-up pass and returns;
// listening mode blocks until the session ends or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	batch := a.Config.Ingest.Batch
	ing, err := a.prepareIngestion(ctx, batch, service.OptionsFromConfig(a.Config))
	if err != nil {
		return err
	}
	defer ing.close()

	if batch {
		a.Logger.Info().Strs("channels", a.Config.Ingest.Channels).Msg("starting batch pass")
		return ing.telegram.Run(ctx, func(ctx context.Context) error {
			_, err := ing.service.Batch(ctx)
			return err
		})
	}

	a.Logger.Info().Strs("channels", a.Config.Ingest.Channels).Msg("starting listener")
	return a.runWithMetrics(ctx, func(ctx context.Context) error {
		return ing.telegram.Run(ctx, ing.service.Listen)
	})
}

// Schedule repeats batch passes in-process on the configured interval.
func (a *App) Schedule(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ing, err := a.prepareIngestion(ctx, false, service.OptionsFromConfig(a.Config))
	if err != nil {
		return err
	}
	defer ing.close()

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Scheduler.Interval,
		AlignToInterval: a.Config.Scheduler.AlignToInterval,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
		RunAtStart:      a.Config.Scheduler.RunAtStart,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting scheduled batch passes")
	return a.runWithMetrics(ctx, func(ctx context.Context) error {
		return ing.telegram.Run(ctx, func(ctx context.Context) error {
			return sched.Run(ctx, func(ctx context.Context, slot time.Time) error {
				_, err := ing.service.Batch(ctx)
				return err
			})
		})
	})
}

// runWithMetrics runs fn next to the /metrics endpoint, stopping both when fn returns.
func (a *App) runWithMetrics(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.Logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		defer stop()
		return fn(gctx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("ingestion terminated with error")
		return err
	}
	a.Logger.Info().Msg("ingestion stopped")
	return nil
}

// ExportOptions hold parameters for exporting stored tokens.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	Archive bool
	Limit   int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit   int
	Archive bool
	Quotes  bool
}

// BackfillOptions configure a one-off catch-up pass with a wider window.
type BackfillOptions struct {
	Lookback time.Duration
	Limit    int
	DryRun   bool
}
