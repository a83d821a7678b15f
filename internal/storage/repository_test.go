package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"memecoin-radar/internal/config"
)

// setupArchive starts a throwaway PostgreSQL and returns a migrated Archive.
func setupArchive(t *testing.T) *Archive {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("radar"),
		postgres.WithUsername("radar"),
		postgres.WithPassword("radar"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)

	archive := NewArchive(pool)
	t.Cleanup(archive.Close)
	require.NoError(t, archive.EnsureSchema(ctx))
	return archive
}

func TestArchive_ArchiveAndList(t *testing.T) {
	archive := setupArchive(t)
	ctx := context.Background()

	first := testToken(1)
	second := testToken(2)
	second.Channel = "OtherChannel"

	inserted, err := archive.ArchiveToken(ctx, first, "solana")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = archive.ArchiveToken(ctx, first, "solana")
	require.NoError(t, err)
	assert.False(t, inserted, "same message id and channel is archived once")

	inserted, err = archive.ArchiveToken(ctx, second, "solana")
	require.NoError(t, err)
	assert.True(t, inserted)

	recent, err := archive.ListRecentTokens(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].ID)
	assert.Equal(t, "solana", recent[0].Chain)
	assert.Equal(t, second.Timestamp, recent[0].Timestamp)
	assert.Equal(t, "12秒", recent[1].TimeSinceLaunch)

	count, err := archive.CountByAddress(ctx, first.ContractAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestArchive_AdvisoryLocks(t *testing.T) {
	archive := setupArchive(t)
	ctx := context.Background()
	const key = int64(4242)

	unlock, acquired, err := archive.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	require.True(t, acquired)

	_, acquiredAgain, err := archive.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	assert.False(t, acquiredAgain, "lock is held by another session")

	unlock()

	blockingUnlock, err := archive.AdvisoryLock(ctx, key)
	require.NoError(t, err)
	blockingUnlock()

	unlock, acquired, err = archive.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	assert.True(t, acquired)
	unlock()
}

func TestArchive_NotConfigured(t *testing.T) {
	var archive *Archive
	_, err := archive.ArchiveToken(context.Background(), testToken(1), "solana")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = NewArchive(nil).TryAdvisoryLock(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
