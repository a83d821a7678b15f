package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, max int) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "data", "meme_data.json"), max, zerolog.Nop())
}

func testToken(id int) Token {
	return Token{
		ID:              fmt.Sprintf("%d", id),
		Name:            fmt.Sprintf("TOK%d", id),
		ContractAddress: "9n4pL3KxQ7vW2mZr8TbYc5HdEf6GjAk1Np2Sq3Ux4V",
		Channel:         "MomentumTrackerCN2",
		Timestamp:       float64(1_700_000_000 + id),
		MarketCap:       "46.74K",
		Mentions:        "4",
		TimeSinceLaunch: "12秒",
	}
}

func ids(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.ID
	}
	return out
}

func TestFileStore_InitCreatesEmptyDocument(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	require.NoError(t, store.Init(ctx))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))

	// existing content is left alone
	_, err = store.Merge(ctx, testToken(1))
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))

	tokens, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestFileStore_LoadMissingIsEmpty(t *testing.T) {
	store := newTestStore(t, 100)

	tokens, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tokens)
	assert.Empty(t, tokens)
}

func TestFileStore_MergePrependsNewestFirst(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		outcome, err := store.Merge(ctx, testToken(i))
		require.NoError(t, err)
		assert.Equal(t, OutcomeInserted, outcome)
	}

	tokens, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, ids(tokens))
}

func TestFileStore_MergeIsIdempotentOnID(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	_, err := store.Merge(ctx, testToken(1))
	require.NoError(t, err)
	_, err = store.Merge(ctx, testToken(2))
	require.NoError(t, err)

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	changed := testToken(1)
	changed.Name = "RENAMED"
	outcome, err := store.Merge(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPresent, outcome)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "duplicate merge must not rewrite the document")
}

func TestFileStore_LengthProperty(t *testing.T) {
	store := newTestStore(t, 5)
	ctx := context.Background()

	prev := 0
	for i := 0; i < 12; i++ {
		id := i % 8 // ids 0..7 then repeats
		tokens, err := store.Load(ctx)
		require.NoError(t, err)
		absent := 1
		for _, tok := range tokens {
			if tok.ID == testToken(id).ID {
				absent = 0
			}
		}

		_, err = store.Merge(ctx, testToken(id))
		require.NoError(t, err)

		tokens, err = store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, min(5, prev+absent), len(tokens))
		prev = len(tokens)
	}
}

func TestFileStore_CapDropsOldestOnly(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		_, err := store.Merge(ctx, testToken(i))
		require.NoError(t, err)
	}

	outcome, err := store.Merge(ctx, testToken(101))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	tokens, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 100)
	assert.Equal(t, "101", tokens[0].ID)
	assert.Equal(t, "2", tokens[99].ID)
	for _, tok := range tokens {
		assert.NotEqual(t, "1", tok.ID, "oldest entry should be dropped")
	}
}

func TestFileStore_DuplicateIntoFullStore(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		_, err := store.Merge(ctx, testToken(i))
		require.NoError(t, err)
	}
	before, err := store.Load(ctx)
	require.NoError(t, err)

	outcome, err := store.Merge(ctx, testToken(50))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPresent, outcome)

	after, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileStore_CorruptDocumentHeals(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`[{"id": "1", "name": `), 0o644))

	tokens, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	outcome, err := store.Merge(ctx, testToken(7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	tokens, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, ids(tokens))
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	want := []Token{testToken(3), testToken(2), testToken(1)}
	want[0].Timestamp = 1_700_000_123.456
	want[1].Name = "中文名 <&>"
	for i := len(want) - 1; i >= 0; i-- {
		_, err := store.Merge(ctx, want[i])
		require.NoError(t, err)
	}

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStore_WireFormat(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	_, err := store.Merge(ctx, testToken(1))
	require.NoError(t, err)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)

	keys := make([]string, 0, len(raw[0]))
	for k := range raw[0] {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"id", "name", "ca", "channel", "timestamp", "mcap", "mentions", "time_since_open"}, keys)
	assert.IsType(t, float64(0), raw[0]["timestamp"])
	assert.Equal(t, "1", raw[0]["id"])
}

func TestFileStore_ReadsLegacyPythonDocument(t *testing.T) {
	store := newTestStore(t, 100)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	legacy := `[
  {"id": "42", "name": "FOO", "ca": "abc", "channel": "Chan", "timestamp": 1700000000.0,
   "mcap": "N/A", "mentions": "1", "time_since_open": ""}
]`
	require.NoError(t, os.WriteFile(store.Path(), []byte(legacy), 0o644))

	tokens, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "42", tokens[0].ID)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), tokens[0].Time())
}

func TestFileStore_ConcurrentMergesSerialize(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := store.Merge(ctx, testToken(id))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	tokens, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 40)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.Merge(ctx, testToken(i))
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "meme_data.json", entries[0].Name())
}

func TestTokenTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tok := Token{Timestamp: EpochSeconds(at)}
	assert.Equal(t, at, tok.Time())
	assert.Equal(t, "123", MessageID(123))
	assert.Equal(t, "inserted", OutcomeInserted.String())
	assert.Equal(t, "already_present", OutcomeAlreadyPresent.String())
}
