package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"budgetfx/internal/currency"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSnapshotSQL = `INSERT INTO rate_snapshots (
        base_currency,
        fetched_at,
        provider_updated_at,
        rates
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (base_currency, fetched_at) DO NOTHING;`

	listSnapshotsBetweenSQL = `SELECT
        id,
        base_currency,
        fetched_at,
        provider_updated_at,
        rates,
        created_at
    FROM rate_snapshots
    WHERE base_currency = $1
      AND fetched_at >= $2
      AND fetched_at < $3
    ORDER BY fetched_at;`

	listRecentSnapshotsSQL = `SELECT
        id,
        base_currency,
        fetched_at,
        provider_updated_at,
        rates,
        created_at
    FROM rate_snapshots
    WHERE base_currency = $1
    ORDER BY fetched_at DESC
    LIMIT $2;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM rate_snapshots;`

	insertAlertSQL = `INSERT INTO alerts (
        kind,
        base_currency,
        message
    ) VALUES (
        $1,$2,$3
    )
    RETURNING id, kind, base_currency, message, created_at;`

	lastAlertAtSQL = `SELECT created_at
    FROM alerts
    WHERE kind = $1
    ORDER BY created_at DESC
    LIMIT 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotHistory records and lists successful refreshes.
type SnapshotHistory interface {
	InsertSnapshot(ctx context.Context, rec SnapshotRecord) error
	ListSnapshotsBetween(ctx context.Context, base currency.Code, from, to time.Time) ([]SnapshotRecord, error)
	ListRecentSnapshots(ctx context.Context, base currency.Code, limit int) ([]SnapshotRecord, error)
	CountSnapshots(ctx context.Context) (int64, error)
}

// AlertStore records emitted warnings.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	LastAlertAt(ctx context.Context, kind string) (time.Time, bool, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to snapshot history and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
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

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSnapshot persists a snapshot; repeated inserts of the same fetch are ignored.
func (s *Store) InsertSnapshot(ctx context.Context, rec SnapshotRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := encodeRates(rec.Rates)
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, insertSnapshotSQL,
		string(rec.Base),
		rec.FetchedAt,
		rec.ProviderUpdatedAt,
		payload,
	); execErr != nil {
		return fmt.Errorf("insert snapshot: %w", execErr)
	}
	return nil
}

// ListSnapshotsBetween lists snapshots for base within a time window, oldest first.
func (s *Store) ListSnapshotsBetween(ctx context.Context, base currency.Code, from, to time.Time) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, string(base), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	return collectSnapshots(rows, 0)
}

// ListRecentSnapshots lists the most recent snapshots for base, newest first.
func (s *Store) ListRecentSnapshots(ctx context.Context, base currency.Code, limit int) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, string(base), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	return collectSnapshots(rows, limit)
}

// CountSnapshots counts stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an emitted warning.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var rec AlertRecord
	var base string
	if scanErr := pool.QueryRow(ctx, insertAlertSQL, alert.Kind, string(alert.Base), alert.Message).Scan(
		&rec.ID,
		&rec.Kind,
		&base,
		&rec.Message,
		&rec.CreatedAt,
	); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	rec.Base = currency.Code(base)
	return rec, nil
}

// LastAlertAt returns when an alert of kind was last recorded.
func (s *Store) LastAlertAt(ctx context.Context, kind string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}
	var at time.Time
	scanErr := pool.QueryRow(ctx, lastAlertAtSQL, kind).Scan(&at)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if scanErr != nil {
		return time.Time{}, false, fmt.Errorf("last alert at: %w", scanErr)
	}
	return at, true, nil
}

func collectSnapshots(rows pgx.Rows, capacity int) ([]SnapshotRecord, error) {
	defer rows.Close()

	records := make([]SnapshotRecord, 0, capacity)
	for rows.Next() {
		rec, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanSnapshot(rows pgx.Rows) (SnapshotRecord, error) {
	var (
		rec     SnapshotRecord
		base    string
		payload json.RawMessage
	)

	if err := rows.Scan(
		&rec.ID,
		&base,
		&rec.FetchedAt,
		&rec.ProviderUpdatedAt,
		&payload,
		&rec.CreatedAt,
	); err != nil {
		return SnapshotRecord{}, err
	}

	table, err := decodeRates(payload)
	if err != nil {
		return SnapshotRecord{}, err
	}
	rec.Base = currency.Code(base)
	rec.Rates = table
	return rec, nil
}

func encodeRates(table map[currency.Code]decimal.Decimal) ([]byte, error) {
	payload, err := json.Marshal(table)
	if err != nil {
		return nil, fmt.Errorf("encode rates: %w", err)
	}
	return payload, nil
}

func decodeRates(payload []byte) (map[currency.Code]decimal.Decimal, error) {
	table := make(map[currency.Code]decimal.Decimal)
	if err := json.Unmarshal(payload, &table); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	return table, nil
}
