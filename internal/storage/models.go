package storage

import (
	"fmt"

	"optionwatch/internal/chain"
)

// SnapshotRow is one persisted contract observation. Alerted marks the
// observations that produced an alert; the alert floor is derived from them.
type SnapshotRow struct {
	ID       int64
	Snapshot chain.ContractSnapshot
	Alerted  bool
}

// SnapshotError pairs a row that failed to persist with its cause.
type SnapshotError struct {
	Row SnapshotRow
	Err error
}

func (e SnapshotError) Error() string {
	return fmt.Sprintf("persist %s at %s: %v", e.Row.Snapshot.Identifier, e.Row.Snapshot.ObservedAt.Format("15:04:05"), e.Err)
}

func (e SnapshotError) Unwrap() error {
	return e.Err
}
