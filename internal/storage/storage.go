package storage

import (
	"context"

	"stakepool/internal/model"
)

// Store persists ledger snapshots.
type Store interface {
	Load(ctx context.Context) (model.Snapshot, bool, error)
	Save(ctx context.Context, snap model.Snapshot) error
}
