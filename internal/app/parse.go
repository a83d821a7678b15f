package app

import (
	"encoding/json"

	"memecoin-radar/internal/chain"
	"memecoin-radar/internal/extract"
)

// ParseResult is what the parse command prints.
type ParseResult struct {
	Matched bool            `json:"matched"`
	Fields  *extract.Fields `json:"fields,omitempty"`
	Chain   string          `json:"chain,omitempty"`
	// MarketCapUSD is the expanded market cap, empty when it is not a number.
	MarketCapUSD string `json:"market_cap_usd,omitempty"`
}

// Parse runs the extractor on text and prints the result as JSON.
func (a *App) Parse(text string) (ParseResult, error) {
	var res ParseResult
	if fields, ok := a.newExtractor().Extract(text); ok {
		res.Matched = true
		res.Fields = &fields
		res.Chain = string(chain.Detect(fields.ContractAddress))
		if v, err := extract.ParseMagnitude(fields.MarketCap); err == nil {
			res.MarketCapUSD = v.String()
		}
	}

	enc := json.NewEncoder(a.Out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return res, enc.Encode(res)
}
