package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"memecoin-radar/internal/extract"
	"memecoin-radar/internal/storage"
)

// Export renders stored tokens as CSV and/or a market-cap PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	tokens, err := a.loadTokens(ctx, opts.Archive, opts.Limit)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		a.Logger.Info().Msg("no tokens found to export")
		return nil
	}
	a.Logger.Info().Int("tokens", len(tokens)).Msg("exporting tokens")

	if opts.CSVPath != "" {
		if err := writeTokensCSV(opts.CSVPath, tokens); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		points := marketCapPoints(tokens)
		if len(points) < 2 {
			return fmt.Errorf("chart needs at least two tokens with a market cap, have %d", len(points))
		}
		if err := writeMarketCapPNG(opts.PNGPath, points, a.Config.Export.ChartWidth, a.Config.Export.ChartHeight); err != nil {
			return err
		}
	}

	return nil
}

func writeTokensCSV(path string, tokens []storage.ArchivedToken) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"id", "posted_at", "name", "ca", "chain", "channel", "mcap", "mcap_usd", "mentions", "time_since_open"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, tok := range tokens {
		mcapUSD := ""
		if v, err := extract.ParseMagnitude(tok.MarketCap); err == nil {
			mcapUSD = v.String()
		}
		record := []string{
			tok.ID,
			tok.Time().Format(time.RFC3339),
			tok.Name,
			tok.ContractAddress,
			tok.Chain,
			tok.Channel,
			tok.MarketCap,
			mcapUSD,
			tok.Mentions,
			tok.TimeSinceLaunch,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

type mcapPoint struct {
	at   time.Time
	mcap decimal.Decimal
}

// marketCapPoints keeps tokens with a parseable market cap, oldest first.
func marketCapPoints(tokens []storage.ArchivedToken) []mcapPoint {
	points := make([]mcapPoint, 0, len(tokens))
	for _, tok := range tokens {
		v, err := extract.ParseMagnitude(tok.MarketCap)
		if err != nil {
			continue
		}
		points = append(points, mcapPoint{at: tok.Time(), mcap: v})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].at.Before(points[j].at) })
	return points
}

func writeMarketCapPNG(path string, points []mcapPoint, width, height int) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.at
		y[i] = p.mcap.InexactFloat64()
	}

	usdFormatter := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			return formatCompactUSD(decimal.NewFromFloat(f))
		}
		return ""
	}
	graph := chart.Chart{
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Market cap at announcement (USD)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: "Market cap",
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    4,
				},
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// formatCompactUSD renders 46740 as "46.74K", the way channels write market caps.
func formatCompactUSD(v decimal.Decimal) string {
	switch abs := v.Abs(); {
	case abs.GreaterThanOrEqual(billion):
		return v.Div(billion).StringFixed(2) + "B"
	case abs.GreaterThanOrEqual(million):
		return v.Div(million).StringFixed(2) + "M"
	case abs.GreaterThanOrEqual(thousand):
		return v.Div(thousand).StringFixed(2) + "K"
	default:
		return v.StringFixed(0)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
