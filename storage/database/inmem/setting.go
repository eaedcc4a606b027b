package inmemdb

import (
	"context"
	"time"

	"github.com/pgri-okutimur/anggota/core/setting"
)

type settingRepository struct {
	db *settingTable
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *DB) setting.Repository {
	return &settingRepository{db: db.setting}
}

func (repo *settingRepository) GetSettings(ctx context.Context) (map[string]string, time.Time, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	vals := make(map[string]string, len(repo.db.values))
	for k, v := range repo.db.values {
		vals[k] = v
	}
	return vals, repo.db.updatedAt, nil
}

func (repo *settingRepository) SaveSettings(ctx context.Context, values map[string]string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for k, v := range values {
		repo.db.values[k] = v
	}
	repo.db.updatedAt = at
	return nil
}
