package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createTokensSQL = `CREATE TABLE IF NOT EXISTS tokens (
        message_id        TEXT        NOT NULL,
        channel           TEXT        NOT NULL,
        name              TEXT        NOT NULL,
        contract_address  TEXT        NOT NULL,
        chain             TEXT        NOT NULL,
        posted_at         TIMESTAMPTZ NOT NULL,
        market_cap        TEXT        NOT NULL,
        mentions          TEXT        NOT NULL,
        time_since_launch TEXT        NOT NULL,
        archived_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (message_id, channel)
    );
    CREATE INDEX IF NOT EXISTS tokens_contract_address_idx ON tokens (contract_address);
    CREATE INDEX IF NOT EXISTS tokens_posted_at_idx ON tokens (posted_at DESC);`

	insertTokenSQL = `INSERT INTO tokens (
        message_id,
        channel,
        name,
        contract_address,
        chain,
        posted_at,
        market_cap,
        mentions,
        time_since_launch
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (message_id, channel) DO NOTHING;`

	listRecentTokensSQL = `SELECT
        message_id,
        channel,
        name,
        contract_address,
        chain,
        posted_at,
        market_cap,
        mentions,
        time_since_launch,
        archived_at
    FROM tokens
    ORDER BY posted_at DESC, archived_at DESC
    LIMIT $1;`

	countByAddressSQL = `SELECT COUNT(*) FROM tokens WHERE contract_address = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryLockSQL    = `SELECT pg_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TokenArchive mirrors inserted tokens into long-term storage.
type TokenArchive interface {
	ArchiveToken(ctx context.Context, token Token, chain string) (bool, error)
	ListRecentTokens(ctx context.Context, limit int) ([]ArchivedToken, error)
	CountByAddress(ctx context.Context, address string) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
	AdvisoryLock(ctx context.Context, key int64) (unlock func(), err error)
}

// Archive is the PostgreSQL token archive.
type Archive struct {
	pool *pgxpool.Pool
}

// NewArchive wires a pgx pool into an Archive.
func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

// Close releases the underlying pool resources.
func (a *Archive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

func (a *Archive) getPool() (*pgxpool.Pool, error) {
	if a == nil || a.pool == nil {
		return nil, ErrNotConfigured
	}
	return a.pool, nil
}

// EnsureSchema creates the tokens table when missing.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	pool, err := a.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createTokensSQL); err != nil {
		return fmt.Errorf("ensure tokens schema: %w", err)
	}
	return nil
}

// ArchiveToken stores token once per (message_id, channel); the bool reports a new row.
func (a *Archive) ArchiveToken(ctx context.Context, token Token, chain string) (bool, error) {
	pool, err := a.getPool()
	if err != nil {
		return false, err
	}

	tag, execErr := pool.Exec(ctx, insertTokenSQL,
		token.ID,
		token.Channel,
		token.Name,
		token.ContractAddress,
		chain,
		token.Time(),
		token.MarketCap,
		token.Mentions,
		token.TimeSinceLaunch,
	)
	if execErr != nil {
		return false, fmt.Errorf("archive token: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ListRecentTokens lists archived tokens ordered by descending post time.
func (a *Archive) ListRecentTokens(ctx context.Context, limit int) ([]ArchivedToken, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentTokensSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent tokens: %w", queryErr)
	}
	defer rows.Close()

	tokens := make([]ArchivedToken, 0, limit)
	for rows.Next() {
		rec, scanErr := scanArchivedToken(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tokens = append(tokens, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tokens, nil
}

// CountByAddress counts archived announcements of one contract address across channels.
func (a *Archive) CountByAddress(ctx context.Context, address string) (int64, error) {
	pool, err := a.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countByAddressSQL, address).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count by address: %w", scanErr)
	}
	return count, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (a *Archive) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	return releaser(conn, key), true, nil
}

// AdvisoryLock blocks until the advisory lock is held or ctx ends.
func (a *Archive) AdvisoryLock(ctx context.Context, key int64) (func(), error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, advisoryLockSQL, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	return releaser(conn, key), nil
}

// releaser unlocks on the same session that took the lock; advisory locks are per connection.
func releaser(conn *pgxpool.Conn, key int64) func() {
	return func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// a failed unlock must not return a lock-holding session to the pool
			conn.Hijack().Close(ctxUnlock)
			return
		}
		conn.Release()
	}
}

func scanArchivedToken(rows pgx.Rows) (ArchivedToken, error) {
	var (
		rec      ArchivedToken
		postedAt time.Time
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.Channel,
		&rec.Name,
		&rec.ContractAddress,
		&rec.Chain,
		&postedAt,
		&rec.MarketCap,
		&rec.Mentions,
		&rec.TimeSinceLaunch,
		&rec.ArchivedAt,
	); err != nil {
		return ArchivedToken{}, fmt.Errorf("scan archived token: %w", err)
	}
	rec.Timestamp = EpochSeconds(postedAt)
	return rec, nil
}

var (
	_ TokenArchive   = (*Archive)(nil)
	_ AdvisoryLocker = (*Archive)(nil)
)
