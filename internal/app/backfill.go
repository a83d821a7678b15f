package app

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"memecoin-radar/internal/service"
	"memecoin-radar/internal/storage"
)

// Backfill makes one batch pass with a wider window, e.g. after the job was down for hours.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.Lookback <= 0 {
		return errors.New("回填窗口必须大于 0")
	}
	if opts.Limit <= 0 {
		opts.Limit = a.Config.Ingest.HistoryLimit
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcOpts := service.OptionsFromConfig(a.Config)
	svcOpts.Lookback = opts.Lookback
	svcOpts.HistoryLimit = opts.Limit

	ing, err := a.prepareIngestion(ctx, false, svcOpts)
	if err != nil {
		return err
	}
	defer ing.close()

	svc := ing.service
	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入 token 文件")
		svc = service.New(svcOpts, service.Deps{
			Source:    ing.telegram,
			Extractor: a.newExtractor(),
			Store:     newDryRunStore(ing.store),
		}, a.Logger)
	}

	return ing.telegram.Run(ctx, func(ctx context.Context) error {
		res, err := svc.Batch(ctx)
		if err != nil {
			return err
		}
		a.Logger.Info().
			Bool("dry_run", opts.DryRun).
			Int("would_insert", res.Inserted).
			Int("duplicates", res.Duplicates).
			Int("failed_channels", res.Failed).
			Msg("回填完成")
		return nil
	})
}

// dryRunStore answers merges against the current document without writing it.
type dryRunStore struct {
	base storage.TokenStore

	mu   sync.Mutex
	seen map[string]struct{}
}

func newDryRunStore(base storage.TokenStore) *dryRunStore {
	return &dryRunStore{base: base}
}

func (d *dryRunStore) Load(ctx context.Context) ([]storage.Token, error) {
	return d.base.Load(ctx)
}

func (d *dryRunStore) Merge(ctx context.Context, token storage.Token) (storage.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen == nil {
		tokens, err := d.base.Load(ctx)
		if err != nil {
			return 0, err
		}
		d.seen = make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			d.seen[tok.ID] = struct{}{}
		}
	}
	if _, ok := d.seen[token.ID]; ok {
		return storage.OutcomeAlreadyPresent, nil
	}
	d.seen[token.ID] = struct{}{}
	return storage.OutcomeInserted, nil
}

var _ storage.TokenStore = (*dryRunStore)(nil)
