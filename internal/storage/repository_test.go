package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionwatch/internal/chain"
)

type fakeRow struct {
	value *float64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	ptr, ok := dest[0].(**float64)
	if !ok {
		return fmt.Errorf("unexpected scan target %T", dest[0])
	}
	*ptr = r.value
	return nil
}

type fakeDB struct {
	failOn   map[string]error
	inserted []string
	execs    []string
	args     [][]any
	row      fakeRow
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if len(args) > 0 {
		id := args[0].(string)
		if err, ok := f.failOn[id]; ok {
			return pgconn.CommandTag{}, err
		}
		f.inserted = append(f.inserted, id)
		f.args = append(f.args, args)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.args = append(f.args, args)
	return f.row
}

func batch(n int, at time.Time) []SnapshotRow {
	rows := make([]SnapshotRow, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, SnapshotRow{Snapshot: chain.ContractSnapshot{
			Identifier:  fmt.Sprintf("C%d", i),
			IndexName:   "NIFTY",
			OptionType:  chain.Put,
			StrikePrice: int64(22000 + i*50),
			ObservedAt:  at,
		}})
	}
	return rows
}

func TestAppendSnapshotsIsolatesFailures(t *testing.T) {
	db := &fakeDB{failOn: map[string]error{"C3": errors.New("value too long")}}
	store := &Store{db: db}

	stored, failed := store.AppendSnapshots(context.Background(), batch(5, time.Now()))

	assert.Equal(t, []string{"C1", "C2", "C4", "C5"}, db.inserted)
	require.Len(t, stored, 4)
	require.Len(t, failed, 1)
	assert.Equal(t, "C3", failed[0].Row.Snapshot.Identifier)
	assert.ErrorContains(t, failed[0], "value too long")
	assert.Contains(t, failed[0].Error(), "C3")
}

func TestAppendSnapshotsBindsColumns(t *testing.T) {
	db := &fakeDB{}
	store := &Store{db: db}
	at := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	rows := batch(1, at)
	rows[0].Alerted = true

	_, failed := store.AppendSnapshots(context.Background(), rows)
	require.Empty(t, failed)
	require.Len(t, db.args, 1)

	args := db.args[0]
	require.Len(t, args, 20)
	assert.Equal(t, "PUT", args[2])
	assert.Nil(t, args[4], "zero expiry is stored as NULL")
	assert.Equal(t, true, args[18])
	assert.Equal(t, at, args[19])
}

func TestAppendSnapshotsWithoutDatabase(t *testing.T) {
	var store *Store
	stored, failed := store.AppendSnapshots(context.Background(), batch(2, time.Now()))
	assert.Empty(t, stored)
	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed[0], ErrNotConfigured)
}

func TestMaxAbsPercentChange(t *testing.T) {
	value := 150.0
	db := &fakeDB{row: fakeRow{value: &value}}
	store := &Store{db: db}
	from := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	got, ok, err := store.MaxAbsPercentChange(context.Background(), "C1", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 150.0, got)
	assert.Equal(t, []any{"C1", from, from.AddDate(0, 0, 1)}, db.args[0])

	db.row = fakeRow{}
	_, ok, err = store.MaxAbsPercentChange(context.Background(), "C1", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, ok, "NULL means no alert yet today")

	db.row = fakeRow{err: errors.New("conn reset")}
	_, _, err = store.MaxAbsPercentChange(context.Background(), "C1", from, from.AddDate(0, 0, 1))
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	store := &Store{db: db}
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.Len(t, db.execs, len(schemaStatements))
	assert.True(t, strings.Contains(db.execs[0], "UNIQUE (identifier, observed_at)"))
}
