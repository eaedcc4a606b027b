package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core/region"
)

type regionRepository struct {
	db *sqlx.DB
}

var _ region.Repository = (*regionRepository)(nil) // interface compliance check

func NewRegionRepository(db *sqlx.DB) region.Repository {
	return &regionRepository{db: db}
}

// table returns the table of tier and its parent column ("" for provinces).
func table(tier region.Tier) (name, parentCol string, err error) {
	switch tier {
	case region.TierProvince:
		return "province", "", nil
	case region.TierRegency, region.TierDistrict, region.TierVillage:
		parent, _ := tier.Parent()
		return tier.String(), parent.String() + "_id", nil
	}
	return "", "", errors.Errorf("unknown tier %d", int(tier))
}

func selectUnits(tbl, parentCol string) string {
	if parentCol == "" {
		return `SELECT id, name, 0 AS parent_id FROM ` + tbl
	}
	return `SELECT id, name, ` + parentCol + ` AS parent_id FROM ` + tbl
}

func (repo *regionRepository) ListUnits(ctx context.Context, tier region.Tier, parentID int) ([]region.Unit, error) {
	tbl, parentCol, err := table(tier)
	if err != nil {
		return nil, err
	}

	units := make([]region.Unit, 0)
	if parentCol == "" {
		err = repo.db.SelectContext(ctx, &units, selectUnits(tbl, parentCol)+` ORDER BY name, id`)
	} else {
		q := selectUnits(tbl, parentCol) + ` WHERE ` + parentCol + ` = $1 ORDER BY name, id`
		err = repo.db.SelectContext(ctx, &units, q, parentID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", tier.Plural())
	}
	return units, nil
}

func (repo *regionRepository) GetUnit(ctx context.Context, tier region.Tier, id int) (region.Unit, error) {
	tbl, parentCol, err := table(tier)
	if err != nil {
		return region.Unit{}, err
	}
	var unit region.Unit
	if err = repo.db.GetContext(ctx, &unit, selectUnits(tbl, parentCol)+` WHERE id = $1`, id); err != nil {
		return region.Unit{}, trapNoRowsErr(err, region.ErrNotFound, "getting "+tier.String())
	}
	return unit, nil
}

// UpsertUnits inserts the units or renames/moves the existing ones, in one transaction.
func (repo *regionRepository) UpsertUnits(ctx context.Context, tier region.Tier, units []region.Unit) (int, error) {
	tbl, parentCol, err := table(tier)
	if err != nil {
		return 0, err
	}

	var q string
	if parentCol == "" {
		q = `INSERT INTO ` + tbl + ` (id, name) VALUES (:id, :name)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	} else {
		q = `INSERT INTO ` + tbl + ` (id, name, ` + parentCol + `) VALUES (:id, :name, :parent_id)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, ` + parentCol + ` = EXCLUDED.` + parentCol
	}

	err = inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, q)
		if err != nil {
			return errors.Wrapf(err, "preparing %s upsert", tier)
		}
		defer stmt.Close()
		for _, u := range units {
			if _, err = stmt.ExecContext(ctx, u); err != nil {
				return errors.Wrapf(err, "upserting %s %d", tier, u.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(units), nil
}

func (repo *regionRepository) CountUnits(ctx context.Context, tier region.Tier) (int, error) {
	tbl, _, err := table(tier)
	if err != nil {
		return 0, err
	}
	var n int
	if err = repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+tbl); err != nil {
		return 0, errors.Wrapf(err, "counting %s", tier.Plural())
	}
	return n, nil
}
