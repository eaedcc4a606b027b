package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core/region"
)

type regionRepository struct {
	db *regionTable
}

var _ region.Repository = (*regionRepository)(nil) // interface compliance check

func NewRegionRepository(db *DB) region.Repository {
	return &regionRepository{db: db.region}
}

func (repo *regionRepository) table(tier region.Tier) (map[int]region.Unit, error) {
	tbl, ok := repo.db.tables[tier]
	if !ok {
		return nil, errors.Errorf("unknown tier %d", int(tier))
	}
	return tbl, nil
}

func (repo *regionRepository) ListUnits(ctx context.Context, tier region.Tier, parentID int) ([]region.Unit, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbl, err := repo.table(tier)
	if err != nil {
		return nil, err
	}
	units := make([]region.Unit, 0)
	for _, u := range tbl {
		if tier == region.TierProvince || u.ParentID == parentID {
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Name == units[j].Name {
			return units[i].ID < units[j].ID
		}
		return units[i].Name < units[j].Name
	})
	return units, nil
}

func (repo *regionRepository) GetUnit(ctx context.Context, tier region.Tier, id int) (region.Unit, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbl, err := repo.table(tier)
	if err != nil {
		return region.Unit{}, err
	}
	u, ok := tbl[id]
	if !ok {
		return region.Unit{}, region.ErrNotFound
	}
	return u, nil
}

func (repo *regionRepository) UpsertUnits(ctx context.Context, tier region.Tier, units []region.Unit) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tbl, err := repo.table(tier)
	if err != nil {
		return 0, err
	}
	if parent, ok := tier.Parent(); ok {
		for _, u := range units {
			if _, exists := repo.db.tables[parent][u.ParentID]; !exists {
				return 0, errors.Errorf("%s %d: unknown %s %d", tier, u.ID, parent, u.ParentID)
			}
		}
	}
	for _, u := range units {
		tbl[u.ID] = u
	}
	return len(units), nil
}

func (repo *regionRepository) CountUnits(ctx context.Context, tier region.Tier) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbl, err := repo.table(tier)
	if err != nil {
		return 0, err
	}
	return len(tbl), nil
}
