package storage

import (
	"context"

	"stakepool/internal/model"
	"stakepool/internal/storage/postgres"
)

// DBStore stores the snapshot in the ledger_state table under Name.
type DBStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStore) Load(ctx context.Context) (model.Snapshot, bool, error) {
	if s == nil || s.Store == nil {
		return model.Snapshot{}, false, nil
	}
	return s.Store.LoadSnapshot(ctx, s.Name)
}

func (s *DBStore) Save(ctx context.Context, snap model.Snapshot) error {
	return s.Store.SaveSnapshot(ctx, s.Name, snap)
}
