package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"memecoin-radar/internal/version"
)

const dexSearchPath = "/latest/dex/search"

// ErrNoPairs is returned when DexScreener knows no trading pair for an address.
var ErrNoPairs = errors.New("dexscreener: no pairs for address")

// Quote is the market snapshot of the best trading pair for a token.
type Quote struct {
	ChainID      string
	DexID        string
	Symbol       string
	Name         string
	PriceUSD     decimal.Decimal
	Change24h    decimal.Decimal
	LiquidityUSD decimal.Decimal
	MarketCapUSD decimal.Decimal
	URL          string
}

// MarketOptions parameterise the DexScreener client.
type MarketOptions struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// Market fetches pair quotes from DexScreener.
type Market struct {
	logger zerolog.Logger
	client *resty.Client
}

// NewMarket constructs a DexScreener quote fetcher.
func NewMarket(opts MarketOptions, logger zerolog.Logger) *Market {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = version.UserAgent()
	}

	client := resty.New()
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	}
	client.SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &Market{
		logger: logger.With().Str("component", "dexscreener").Logger(),
		client: client,
	}
}

// FetchQuote searches DexScreener for address and returns the pair whose base token it is.
func (m *Market) FetchQuote(ctx context.Context, address string) (*Quote, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("address is required")
	}

	var res searchResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParam("q", address).
		SetResult(&res).
		Get(dexSearchPath)
	if err != nil {
		return nil, fmt.Errorf("dexscreener request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode(), resp.Body())
	}

	pair, ok := pickPair(res.Pairs, address)
	if !ok {
		return nil, ErrNoPairs
	}

	m.logger.Debug().Str("ca", address).Str("pair", pair.PairAddress).Msg("quote fetched")

	return &Quote{
		ChainID:      pair.ChainID,
		DexID:        pair.DexID,
		Symbol:       pair.BaseToken.Symbol,
		Name:         pair.BaseToken.Name,
		PriceUSD:     pair.PriceUSD,
		Change24h:    pair.PriceChange.H24,
		LiquidityUSD: pair.Liquidity.USD,
		MarketCapUSD: pair.MarketCap,
		URL:          pair.URL,
	}, nil
}

// pickPair prefers the most liquid pair whose base token is address, else the first pair.
func pickPair(pairs []dexPair, address string) (dexPair, bool) {
	if len(pairs) == 0 {
		return dexPair{}, false
	}
	best := -1
	for i, p := range pairs {
		if !strings.EqualFold(p.BaseToken.Address, address) {
			continue
		}
		if best < 0 || p.Liquidity.USD.GreaterThan(pairs[best].Liquidity.USD) {
			best = i
		}
	}
	if best < 0 {
		return pairs[0], true
	}
	return pairs[best], true
}

type searchResponse struct {
	SchemaVersion string    `json:"schemaVersion"`
	Pairs         []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	URL         string `json:"url"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD    decimal.Decimal `json:"priceUsd"`
	PriceChange struct {
		H24 decimal.Decimal `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"liquidity"`
	MarketCap decimal.Decimal `json:"marketCap"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("dexscreener api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("dexscreener api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("dexscreener api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("dexscreener api error (%d)", status)
}

var _ QuoteFetcher = (*Market)(nil)
