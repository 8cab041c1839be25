package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreFloorsOnlyCountAlertedRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	rows := batch(1, day.Add(10*time.Hour))
	rows[0].Snapshot.PercentChange = -140
	rows[0].Alerted = true
	quiet := batch(1, day.Add(11*time.Hour))
	quiet[0].Snapshot.PercentChange = 300

	_, failed := store.AppendSnapshots(ctx, append(rows, quiet...))
	require.Empty(t, failed)

	v, ok, err := store.MaxAbsPercentChange(ctx, "C1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 140.0, v)

	_, ok, err = store.MaxAbsPercentChange(ctx, "C1", day.AddDate(0, 0, 1), day.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Now()

	stored, failed := store.AppendSnapshots(ctx, batch(3, at))
	require.Len(t, stored, 3)
	require.Empty(t, failed)

	stored, failed = store.AppendSnapshots(ctx, batch(2, at))
	assert.Empty(t, stored)
	assert.Len(t, failed, 2)
	assert.Equal(t, 3, store.Len())
}

func TestMemoryStoreListing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, failed := store.AppendSnapshots(ctx, batch(2, base.Add(time.Duration(i)*time.Minute)))
		require.Empty(t, failed)
	}

	recent, err := store.ListRecentSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, base.Add(2*time.Minute), recent[0].Snapshot.ObservedAt)

	history, err := store.ListSnapshotsForIdentifier(ctx, "C2", base, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
