package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"memecoin-radar/internal/alerting"
	"memecoin-radar/internal/chain"
)

// SimulateOptions describe the fake token announced by simulate-alert.
type SimulateOptions struct {
	Name      string
	Address   string
	MarketCap string
	WithQuote bool
}

// SimulateAlert 发送一条模拟的新币提醒，用于检查告警通道配置。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	address := strings.TrimSpace(opts.Address)
	if _, ok := a.newExtractor().Extract(address); !ok {
		return errors.New("--ca 不是有效的合约地址")
	}

	channel := "simulation"
	if len(a.Config.Ingest.Channels) > 0 {
		channel = a.Config.Ingest.Channels[0]
	}
	note := alerting.Notification{
		PostedAt:        time.Now().UTC(),
		Channel:         channel,
		Name:            opts.Name,
		ContractAddress: chain.Display(address),
		Chain:           string(chain.Detect(address)),
		MarketCap:       opts.MarketCap,
		Mentions:        a.Config.Extract.DefaultMentions,
		TimeSinceLaunch: a.Config.Extract.TimeNA,
		AdditionalMsg:   "(simulated)",
	}
	if opts.WithQuote {
		quote, err := a.newQuotes().FetchQuote(ctx, address)
		if err != nil {
			a.Logger.Warn().Err(err).Str("ca", address).Msg("quote unavailable")
		} else {
			note.Quote = quote
		}
	}
	return notifier.Notify(ctx, note)
}
