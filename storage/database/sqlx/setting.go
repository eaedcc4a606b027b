package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core/setting"
)

type settingRepository struct {
	db *sqlx.DB
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *sqlx.DB) setting.Repository {
	return &settingRepository{db: db}
}

func (repo *settingRepository) GetSettings(ctx context.Context) (map[string]string, time.Time, error) {
	var rows []struct {
		Key       string    `db:"key"`
		Value     string    `db:"value"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	if err := repo.db.SelectContext(ctx, &rows, `SELECT key, value, updated_at FROM setting`); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "getting settings")
	}

	vals := make(map[string]string, len(rows))
	var updatedAt time.Time
	for _, r := range rows {
		vals[r.Key] = r.Value
		if r.UpdatedAt.After(updatedAt) {
			updatedAt = r.UpdatedAt.UTC()
		}
	}
	return vals, updatedAt, nil
}

func (repo *settingRepository) SaveSettings(ctx context.Context, values map[string]string, at time.Time) error {
	q := `INSERT INTO setting (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, q, k, v, at.UTC()); err != nil {
				return errors.Wrapf(err, "saving setting %q", k)
			}
		}
		return nil
	})
}
