package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"optionwatch/internal/chain"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrPartialPersistence reports that some rows of a batch were not stored.
	ErrPartialPersistence = errors.New("storage: partial persistence failure")
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS option_snapshots (
        id                      BIGSERIAL PRIMARY KEY,
        identifier              VARCHAR(100) NOT NULL,
        index_name              VARCHAR(50) NOT NULL,
        option_type             VARCHAR(10) NOT NULL,
        strike_price            BIGINT NOT NULL,
        expiry_date             DATE,
        underlying_value        DOUBLE PRECISION NOT NULL DEFAULT 0,
        open_interest           DOUBLE PRECISION NOT NULL DEFAULT 0,
        change_in_open_interest DOUBLE PRECISION NOT NULL DEFAULT 0,
        percent_change          DOUBLE PRECISION NOT NULL DEFAULT 0,
        implied_volatility      DOUBLE PRECISION NOT NULL DEFAULT 0,
        last_price              DOUBLE PRECISION NOT NULL DEFAULT 0,
        total_traded_volume     DOUBLE PRECISION NOT NULL DEFAULT 0,
        total_buy_quantity      DOUBLE PRECISION NOT NULL DEFAULT 0,
        total_sell_quantity     DOUBLE PRECISION NOT NULL DEFAULT 0,
        bid_price               DOUBLE PRECISION NOT NULL DEFAULT 0,
        bid_qty                 DOUBLE PRECISION NOT NULL DEFAULT 0,
        ask_price               DOUBLE PRECISION NOT NULL DEFAULT 0,
        ask_qty                 DOUBLE PRECISION NOT NULL DEFAULT 0,
        alerted                 BOOLEAN NOT NULL DEFAULT FALSE,
        observed_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (identifier, observed_at)
    );`,
	`CREATE INDEX IF NOT EXISTS option_snapshots_alert_floor_idx
        ON option_snapshots (identifier, observed_at) WHERE alerted;`,
	`CREATE INDEX IF NOT EXISTS option_snapshots_observed_at_idx
        ON option_snapshots (observed_at DESC);`,
}

const (
	snapshotColumns = `identifier,
        index_name,
        option_type,
        strike_price,
        expiry_date,
        underlying_value,
        open_interest,
        change_in_open_interest,
        percent_change,
        implied_volatility,
        last_price,
        total_traded_volume,
        total_buy_quantity,
        total_sell_quantity,
        bid_price,
        bid_qty,
        ask_price,
        ask_qty,
        alerted,
        observed_at`

	insertSnapshotSQL = `INSERT INTO option_snapshots (
        ` + snapshotColumns + `
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
    );`

	maxAbsPercentChangeSQL = `SELECT MAX(ABS(percent_change))
    FROM option_snapshots
    WHERE identifier = $1
      AND alerted
      AND observed_at >= $2
      AND observed_at < $3;`

	listRecentSnapshotsSQL = `SELECT id, ` + snapshotColumns + `
    FROM option_snapshots
    ORDER BY observed_at DESC, id DESC
    LIMIT $1;`

	listSnapshotsForIdentifierSQL = `SELECT id, ` + snapshotColumns + `
    FROM option_snapshots
    WHERE identifier = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM option_snapshots;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotStore is the append-only contract snapshot log.
type SnapshotStore interface {
	AppendSnapshots(ctx context.Context, rows []SnapshotRow) ([]SnapshotRow, []SnapshotError)
	MaxAbsPercentChange(ctx context.Context, identifier string, from, to time.Time) (float64, bool, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]SnapshotRow, error)
	ListSnapshotsForIdentifier(ctx context.Context, identifier string, from, to time.Time) ([]SnapshotRow, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists contract snapshots in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool}
	if pool != nil {
		s.db = pool
	}
	return s
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getDB() (dbtx, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// EnsureSchema creates the snapshot table and its indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, ErrNotConfigured
	}

	conn, err := s.pool.Acquire(ctx)
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

// AppendSnapshots inserts every row independently. Rows that fail are reported
// alongside their error and do not prevent the remaining rows from being stored.
func (s *Store) AppendSnapshots(ctx context.Context, rows []SnapshotRow) ([]SnapshotRow, []SnapshotError) {
	db, err := s.getDB()
	if err != nil {
		failed := make([]SnapshotError, 0, len(rows))
		for _, row := range rows {
			failed = append(failed, SnapshotError{Row: row, Err: err})
		}
		return nil, failed
	}

	stored := make([]SnapshotRow, 0, len(rows))
	var failed []SnapshotError
	for _, row := range rows {
		if err := insertSnapshot(ctx, db, row); err != nil {
			failed = append(failed, SnapshotError{Row: row, Err: err})
			continue
		}
		stored = append(stored, row)
	}
	return stored, failed
}

func insertSnapshot(ctx context.Context, db dbtx, row SnapshotRow) error {
	c := row.Snapshot
	observedAt := c.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	var expiry any
	if !c.ExpiryDate.IsZero() {
		expiry = c.ExpiryDate
	}

	_, err := db.Exec(ctx, insertSnapshotSQL,
		c.Identifier,
		c.IndexName,
		string(c.OptionType),
		c.StrikePrice,
		expiry,
		c.UnderlyingValue,
		c.OpenInterest,
		c.ChangeInOpenInterest,
		c.PercentChange,
		c.ImpliedVolatility,
		c.LastPrice,
		c.TotalTradedVolume,
		c.TotalBuyQuantity,
		c.TotalSellQuantity,
		c.BidPrice,
		c.BidQuantity,
		c.AskPrice,
		c.AskQuantity,
		row.Alerted,
		observedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// MaxAbsPercentChange returns the largest |percent_change| among alerted
// snapshots of identifier observed in [from, to).
func (s *Store) MaxAbsPercentChange(ctx context.Context, identifier string, from, to time.Time) (float64, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, false, err
	}

	var value *float64
	if err := db.QueryRow(ctx, maxAbsPercentChangeSQL, identifier, from, to).Scan(&value); err != nil {
		return 0, false, fmt.Errorf("max abs percent change: %w", err)
	}
	if value == nil {
		return 0, false, nil
	}
	return *value, true, nil
}

// ListRecentSnapshots lists the most recent snapshots ordered by descending observation time.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	return collectSnapshots(rows)
}

// ListSnapshotsForIdentifier lists one contract's snapshots within a time window.
func (s *Store) ListSnapshotsForIdentifier(ctx context.Context, identifier string, from, to time.Time) ([]SnapshotRow, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listSnapshotsForIdentifierSQL, identifier, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", identifier, queryErr)
	}
	return collectSnapshots(rows)
}

// CountSnapshots counts stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := db.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

func collectSnapshots(rows pgx.Rows) ([]SnapshotRow, error) {
	defer rows.Close()

	out := make([]SnapshotRow, 0)
	for rows.Next() {
		row, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanSnapshot(rows pgx.Rows) (SnapshotRow, error) {
	var (
		row        SnapshotRow
		optionType string
		expiry     *time.Time
	)
	c := &row.Snapshot
	if err := rows.Scan(
		&row.ID,
		&c.Identifier,
		&c.IndexName,
		&optionType,
		&c.StrikePrice,
		&expiry,
		&c.UnderlyingValue,
		&c.OpenInterest,
		&c.ChangeInOpenInterest,
		&c.PercentChange,
		&c.ImpliedVolatility,
		&c.LastPrice,
		&c.TotalTradedVolume,
		&c.TotalBuyQuantity,
		&c.TotalSellQuantity,
		&c.BidPrice,
		&c.BidQuantity,
		&c.AskPrice,
		&c.AskQuantity,
		&row.Alerted,
		&c.ObservedAt,
	); err != nil {
		return SnapshotRow{}, fmt.Errorf("scan snapshot: %w", err)
	}
	c.OptionType = chain.OptionType(optionType)
	if expiry != nil {
		c.ExpiryDate = *expiry
	}
	return row, nil
}

var (
	_ SnapshotStore  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
	_ dbtx           = (*pgxpool.Pool)(nil)
)
