package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memecoin-radar/internal/config"
	"memecoin-radar/internal/storage"
)

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Ingest: config.IngestConfig{Channels: []string{"MomentumTrackerCN2"}, HistoryLimit: 50, Lookback: 30 * time.Minute},
		Extract: config.ExtractConfig{
			NamePlaceholder: "Unknown",
			NameMaxRunes:    15,
			MarketCapNA:     "N/A",
			DefaultMentions: "1",
			TimeNA:          "暂无",
		},
		Store:  config.StoreConfig{Path: filepath.Join(t.TempDir(), "meme_data.json"), MaxEntries: 100},
		Export: config.ExportConfig{ChartWidth: 640, ChartHeight: 360},
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func seedTokens(t *testing.T, a *App, tokens ...storage.Token) {
	t.Helper()
	store := a.newFileStore()
	for i := len(tokens) - 1; i >= 0; i-- {
		_, err := store.Merge(context.Background(), tokens[i])
		require.NoError(t, err)
	}
}

func token(id, name, mcap string, at time.Time) storage.Token {
	return storage.Token{
		ID:              id,
		Name:            name,
		ContractAddress: bonkMint,
		Channel:         "MomentumTrackerCN2",
		Timestamp:       storage.EpochSeconds(at),
		MarketCap:       mcap,
		Mentions:        "3",
		TimeSinceLaunch: "12秒",
	}
}

func TestRunRequiresCredentialsBeforeConnecting(t *testing.T) {
	a, _ := newTestApp(t)
	a.Config.Ingest.Batch = true

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingCredentials))

	_, statErr := os.Stat(a.Config.Store.Path)
	assert.True(t, os.IsNotExist(statErr), "no side effects before credentials are checked")
}

func TestParsePrintsFields(t *testing.T) {
	a, out := newTestApp(t)

	res, err := a.Parse("💊 $FOO " + bonkMint + " 市值：$46.74K 已在4个社区推广 开盘后12秒在第一个社区推广")
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "solana", res.Chain)
	assert.Equal(t, "46740", res.MarketCapUSD)

	var printed map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	fields := printed["fields"].(map[string]any)
	assert.Equal(t, "FOO", fields["name"])
	assert.Equal(t, "12秒", fields["time_since_launch"])
}

func TestParseNoAddress(t *testing.T) {
	a, out := newTestApp(t)

	res, err := a.Parse("no address in here")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.JSONEq(t, `{"matched": false}`, out.String())
}

func TestShowFromFileStore(t *testing.T) {
	a, out := newTestApp(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seedTokens(t, a, token("2", "NEWER", "1.2M", now), token("1", "OLDER\nLINE", "N/A", now.Add(-time.Hour)))

	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 10}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Since Open")
	assert.Contains(t, lines[1], "NEWER")
	assert.Contains(t, lines[1], "solana")
	assert.Contains(t, lines[2], "OLDER LINE")
}

func TestShowLimitAndEmpty(t *testing.T) {
	a, out := newTestApp(t)
	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 10}))
	assert.Equal(t, "no tokens found\n", out.String())

	out.Reset()
	now := time.Now().UTC()
	seedTokens(t, a, token("3", "C", "1K", now), token("2", "B", "1K", now), token("1", "A", "1K", now))
	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 2}))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 3)
}

func TestShowArchiveNeedsDatabase(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Error(t, a.Show(context.Background(), ShowOptions{Limit: 10, Archive: true}))
}

func TestExportCSVAndPNG(t *testing.T) {
	a, _ := newTestApp(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seedTokens(t, a,
		token("3", "C", "2.5M", now),
		token("2", "B", "N/A", now.Add(-time.Minute)),
		token("1", "A", "46.74K", now.Add(-2*time.Minute)),
	)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "tokens.csv")
	pngPath := filepath.Join(dir, "out", "mcap.png")
	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: csvPath, PNGPath: pngPath}))

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "mcap_usd", records[0][7])
	assert.Equal(t, "3", records[1][0])
	assert.Equal(t, "2500000", records[1][7])
	assert.Equal(t, "", records[2][7], "N/A has no numeric market cap")

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestExportValidation(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))

	seedTokens(t, a, token("1", "A", "N/A", time.Now()))
	err := a.Export(context.Background(), ExportOptions{PNGPath: filepath.Join(t.TempDir(), "x.png")})
	assert.Error(t, err, "a single point cannot be charted")
}

func TestMarketCapPointsSortedOldestFirst(t *testing.T) {
	now := time.Now().UTC()
	points := marketCapPoints([]storage.ArchivedToken{
		{Token: token("2", "B", "2K", now)},
		{Token: token("1", "A", "1K", now.Add(-time.Hour))},
		{Token: token("0", "Z", "N/A", now.Add(-2*time.Hour))},
	})
	require.Len(t, points, 2)
	assert.True(t, points[0].mcap.Equal(decimal.NewFromInt(1000)))
}

func TestFormatCompactUSD(t *testing.T) {
	cases := map[string]string{
		"46740":      "46.74K",
		"2500000":    "2.50M",
		"3100000000": "3.10B",
		"999":        "999",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatCompactUSD(decimal.RequireFromString(in)), in)
	}
}

func TestDryRunStoreNeverWrites(t *testing.T) {
	a, _ := newTestApp(t)
	now := time.Now().UTC()
	seedTokens(t, a, token("1", "A", "1K", now))
	before, err := os.ReadFile(a.Config.Store.Path)
	require.NoError(t, err)

	dry := newDryRunStore(a.newFileStore())
	ctx := context.Background()

	outcome, err := dry.Merge(ctx, token("1", "A", "1K", now))
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeAlreadyPresent, outcome)

	outcome, err = dry.Merge(ctx, token("2", "B", "1K", now))
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeInserted, outcome)

	outcome, err = dry.Merge(ctx, token("2", "B", "1K", now))
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeAlreadyPresent, outcome)

	after, err := os.ReadFile(a.Config.Store.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSimulateAlertRequiresAlerting(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Error(t, a.SimulateAlert(context.Background(), SimulateOptions{Name: "X", Address: bonkMint}))

	a.Config.Alerting.Enabled = true
	assert.Error(t, a.SimulateAlert(context.Background(), SimulateOptions{Name: "X", Address: "short"}))
	assert.NoError(t, a.SimulateAlert(context.Background(), SimulateOptions{Name: "X", Address: bonkMint, MarketCap: "1K"}))
}
