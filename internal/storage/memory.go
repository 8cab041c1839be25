package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local snapshot log used when no database is
// configured and by replay runs. It enforces the same (identifier,
// observed_at) uniqueness as the table.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   []SnapshotRow
	keys   map[string]struct{}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]struct{})}
}

func memoryKey(row SnapshotRow) string {
	return row.Snapshot.Identifier + "|" + row.Snapshot.ObservedAt.UTC().Format(time.RFC3339Nano)
}

// AppendSnapshots implements SnapshotStore.
func (m *MemoryStore) AppendSnapshots(_ context.Context, rows []SnapshotRow) ([]SnapshotRow, []SnapshotError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]SnapshotRow, 0, len(rows))
	var failed []SnapshotError
	for _, row := range rows {
		key := memoryKey(row)
		if _, dup := m.keys[key]; dup {
			failed = append(failed, SnapshotError{Row: row, Err: fmt.Errorf("duplicate snapshot %s", key)})
			continue
		}
		m.nextID++
		row.ID = m.nextID
		m.keys[key] = struct{}{}
		m.rows = append(m.rows, row)
		stored = append(stored, row)
	}
	return stored, failed
}

// MaxAbsPercentChange implements SnapshotStore.
func (m *MemoryStore) MaxAbsPercentChange(_ context.Context, identifier string, from, to time.Time) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	best, found := 0.0, false
	for _, row := range m.rows {
		c := row.Snapshot
		if !row.Alerted || c.Identifier != identifier || c.ObservedAt.Before(from) || !c.ObservedAt.Before(to) {
			continue
		}
		if v := math.Abs(c.PercentChange); !found || v > best {
			best, found = v, true
		}
	}
	return best, found, nil
}

// ListRecentSnapshots implements SnapshotStore.
func (m *MemoryStore) ListRecentSnapshots(_ context.Context, limit int) ([]SnapshotRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]SnapshotRow(nil), m.rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Snapshot.ObservedAt.After(out[j].Snapshot.ObservedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListSnapshotsForIdentifier implements SnapshotStore.
func (m *MemoryStore) ListSnapshotsForIdentifier(_ context.Context, identifier string, from, to time.Time) ([]SnapshotRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []SnapshotRow
	for _, row := range m.rows {
		c := row.Snapshot
		if c.Identifier == identifier && !c.ObservedAt.Before(from) && c.ObservedAt.Before(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Len returns the number of stored rows.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

var _ SnapshotStore = (*MemoryStore)(nil)
