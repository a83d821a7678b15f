package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"memecoin-radar/internal/alerting"
	"memecoin-radar/internal/chain"
	"memecoin-radar/internal/config"
	"memecoin-radar/internal/extract"
	"memecoin-radar/internal/fetcher"
	"memecoin-radar/internal/metrics"
	"memecoin-radar/internal/storage"
)

// Options control one ingestion service.
type Options struct {
	Channels     []string
	HistoryLimit int
	Lookback     time.Duration
	// LockKey is the advisory lock guarding the token document; zero disables locking.
	LockKey   int64
	WithQuote bool
}

// OptionsFromConfig maps configuration onto service options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Channels:     cfg.Ingest.Channels,
		HistoryLimit: cfg.Ingest.HistoryLimit,
		Lookback:     cfg.Ingest.Lookback,
		LockKey:      cfg.Store.LockKey,
		WithQuote:    cfg.Alerting.WithQuote,
	}
}

// Deps are the collaborators of a Service. Archive, Locker, Quotes and Notifier are optional.
type Deps struct {
	Source    fetcher.Source
	Extractor *extract.Extractor
	Store     storage.TokenStore
	Archive   storage.TokenArchive
	Locker    storage.AdvisoryLocker
	Quotes    fetcher.QuoteFetcher
	Notifier  alerting.Notifier
}

// BatchResult counts what one batch pass did.
type BatchResult struct {
	Channels   int
	Failed     int
	Scanned    int
	Inserted   int
	Duplicates int
	Rejected   int
	// Skipped is set when another process held the store lock.
	Skipped bool
}

// Service orchestrates fetching, extraction, persistence and alerting.
type Service struct {
	opts Options
	deps Deps

	logger zerolog.Logger
	now    func() time.Time
}

// New constructs the ingestion service.
func New(opts Options, deps Deps, logger zerolog.Logger) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 30 * time.Minute
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New(extract.DefaultOptions())
	}
	return &Service{
		opts:   opts,
		deps:   deps,
		logger: logger.With().Str("component", "service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Listen subscribes to the configured channels and processes each new message until the
// transport session ends. Cancellation is a clean exit.
func (s *Service) Listen(ctx context.Context) error {
	if len(s.opts.Channels) == 0 {
		return errors.New("no channels configured")
	}
	s.logger.Info().Strs("channels", s.opts.Channels).Msg("listening mode started")

	err := s.deps.Source.Subscribe(ctx, s.opts.Channels, func(ctx context.Context, msg fetcher.Message) error {
		_, _, err := s.processLocked(ctx, msg, msg.Channel)
		return err
	})
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// Batch runs one bounded catch-up pass over every configured channel. Channel failures are
// logged and counted; only lock errors and cancellation are returned.
func (s *Service) Batch(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	unlock, proceed, err := s.tryLock(ctx)
	if err != nil {
		return res, err
	}
	if !proceed {
		s.logger.Info().Int64("lock_key", s.opts.LockKey).Msg("skip batch because store lock held elsewhere")
		res.Skipped = true
		return res, nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := s.now()
	cutoff := started.Add(-s.opts.Lookback)
	s.logger.Info().Time("cutoff", cutoff).Int("channels", len(s.opts.Channels)).Msg("batch pass started")

	for _, channel := range s.opts.Channels {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Channels++
		if err := s.batchChannel(ctx, channel, cutoff, &res); err != nil {
			res.Failed++
			metrics.RecordChannelError(channel)
			s.logger.Error().Err(err).Str("channel", channel).Msg("channel failed, continuing")
		}
	}

	finished := s.now()
	metrics.ObserveBatch(finished.Sub(started), finished)
	s.logger.Info().
		Int("channels", res.Channels).
		Int("failed", res.Failed).
		Int("scanned", res.Scanned).
		Int("inserted", res.Inserted).
		Int("duplicates", res.Duplicates).
		Int("rejected", res.Rejected).
		Dur("took", finished.Sub(started)).
		Msg("batch pass finished")
	return res, nil
}

func (s *Service) batchChannel(ctx context.Context, channel string, cutoff time.Time, res *BatchResult) error {
	s.logger.Info().Str("channel", channel).Msg("checking channel")

	msgs, err := s.deps.Source.FetchHistory(ctx, channel, s.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	for _, msg := range msgs {
		// newest first: everything after the first stale message is stale too
		if msg.Date.Before(cutoff) {
			break
		}
		res.Scanned++
		if msg.Text == "" {
			metrics.RecordMessage(channel, metrics.ResultEmpty)
			continue
		}

		outcome, extracted, err := s.Process(ctx, msg, channel)
		if err != nil {
			return err
		}
		switch {
		case !extracted:
			res.Rejected++
		case outcome == storage.OutcomeInserted:
			res.Inserted++
		case outcome == storage.OutcomeAlreadyPresent:
			res.Duplicates++
		}
	}
	return nil
}

// Process extracts one message and merges it into the store with channel as provenance.
// The boolean reports whether the text carried a contract address.
func (s *Service) Process(ctx context.Context, msg fetcher.Message, channel string) (storage.Outcome, bool, error) {
	fields, ok := s.deps.Extractor.Extract(msg.Text)
	if !ok {
		metrics.RecordMessage(channel, metrics.ResultNoAddress)
		s.logger.Debug().Int64("message_id", msg.ID).Str("channel", channel).Msg("no contract address")
		return 0, false, nil
	}

	token := BuildToken(fields, msg, channel)
	outcome, err := s.deps.Store.Merge(ctx, token)
	if err != nil {
		metrics.RecordMessage(channel, metrics.ResultError)
		return 0, true, fmt.Errorf("merge token %s: %w", token.ID, err)
	}
	metrics.RecordMessage(channel, outcome.String())

	if outcome == storage.OutcomeInserted {
		s.logger.Info().
			Str("id", token.ID).
			Str("name", token.Name).
			Str("ca", token.ContractAddress).
			Str("channel", channel).
			Msg("token saved")
		s.afterInsert(ctx, token)
	} else {
		s.logger.Debug().Str("id", token.ID).Str("channel", channel).Msg("token already stored")
	}
	return outcome, true, nil
}

// BuildToken attaches provenance to extracted fields.
func BuildToken(fields extract.Fields, msg fetcher.Message, channel string) storage.Token {
	return storage.Token{
		ID:              storage.MessageID(msg.ID),
		Name:            fields.Name,
		ContractAddress: fields.ContractAddress,
		Channel:         channel,
		Timestamp:       storage.EpochSeconds(msg.Date),
		MarketCap:       fields.MarketCap,
		Mentions:        fields.CommunityCount,
		TimeSinceLaunch: fields.TimeSinceLaunch,
	}
}

func (s *Service) processLocked(ctx context.Context, msg fetcher.Message, channel string) (storage.Outcome, bool, error) {
	if s.opts.LockKey != 0 && s.deps.Locker != nil {
		unlock, err := s.deps.Locker.AdvisoryLock(ctx, s.opts.LockKey)
		if err != nil {
			return 0, false, fmt.Errorf("acquire advisory lock: %w", err)
		}
		defer unlock()
	}
	return s.Process(ctx, msg, channel)
}

// afterInsert fans a new token out to the optional sinks. Failures are logged only.
func (s *Service) afterInsert(ctx context.Context, token storage.Token) {
	kind := chain.Detect(token.ContractAddress)

	if tokens, err := s.deps.Store.Load(ctx); err == nil {
		metrics.SetStoreEntries(len(tokens))
	}

	var sightings int64
	if s.deps.Archive != nil {
		if _, err := s.deps.Archive.ArchiveToken(ctx, token, string(kind)); err != nil {
			s.logger.Error().Err(err).Str("id", token.ID).Msg("failed to archive token")
		} else if sightings, err = s.deps.Archive.CountByAddress(ctx, token.ContractAddress); err != nil {
			s.logger.Warn().Err(err).Str("ca", token.ContractAddress).Msg("count sightings failed")
			sightings = 0
		}
	}

	if s.deps.Notifier == nil {
		return
	}
	note := alerting.Notification{
		PostedAt:        token.Time(),
		Channel:         token.Channel,
		Name:            token.Name,
		ContractAddress: chain.Display(token.ContractAddress),
		Chain:           string(kind),
		MarketCap:       token.MarketCap,
		Mentions:        token.Mentions,
		TimeSinceLaunch: token.TimeSinceLaunch,
		Sightings:       sightings,
	}
	if s.opts.WithQuote && s.deps.Quotes != nil {
		quote, err := s.deps.Quotes.FetchQuote(ctx, token.ContractAddress)
		if err != nil {
			s.logger.Warn().Err(err).Str("ca", token.ContractAddress).Msg("quote unavailable")
		} else {
			note.Quote = quote
		}
	}
	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("id", token.ID).Msg("failed to dispatch alert")
	}
}

func (s *Service) tryLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
