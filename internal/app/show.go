package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"memecoin-radar/internal/chain"
	"memecoin-radar/internal/storage"
)

// Show prints stored tokens, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	tokens, err := a.loadTokens(ctx, opts.Archive, opts.Limit)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		fmt.Fprintln(a.Out, "no tokens found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	header := "Time (UTC)\tName\tCA\tChain\tMCap\tMentions\tSince Open\tChannel"
	if opts.Quotes {
		header += "\tPrice USD\t24h%"
	}
	fmt.Fprintln(writer, header)

	quotes := a.newQuotes()
	for _, tok := range tokens {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s",
			tok.Time().Format(time.RFC3339),
			sanitizeInline(tok.Name),
			tok.ContractAddress,
			tok.Chain,
			tok.MarketCap,
			tok.Mentions,
			sanitizeInline(tok.TimeSinceLaunch),
			sanitizeInline(tok.Channel),
		)
		if opts.Quotes {
			price, change := "-", "-"
			if q, err := quotes.FetchQuote(ctx, tok.ContractAddress); err != nil {
				a.Logger.Debug().Err(err).Str("ca", tok.ContractAddress).Msg("quote unavailable")
			} else {
				price = q.PriceUSD.String()
				change = formatDecimal(q.Change24h, 2)
			}
			fmt.Fprintf(writer, "\t%s\t%s", price, change)
		}
		fmt.Fprintln(writer)
	}

	return writer.Flush()
}

// loadTokens reads the JSON document, or the PostgreSQL archive when fromArchive is set.
func (a *App) loadTokens(ctx context.Context, fromArchive bool, limit int) ([]storage.ArchivedToken, error) {
	if fromArchive {
		archive, closeArchive, err := a.openArchive(ctx)
		if err != nil {
			return nil, err
		}
		if archive == nil {
			return nil, fmt.Errorf("database not configured; cannot read archive")
		}
		defer closeArchive()
		return archive.ListRecentTokens(ctx, limit)
	}

	tokens, err := a.newFileStore().Load(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(tokens) > limit {
		tokens = tokens[:limit]
	}
	out := make([]storage.ArchivedToken, len(tokens))
	for i, tok := range tokens {
		out[i] = storage.ArchivedToken{Token: tok, Chain: string(chain.Detect(tok.ContractAddress))}
	}
	return out, nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
