package region

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core"
)

var (
	// errors
	ErrNotFound      = errors.New("geographic unit not found")
	ErrInvalidParent = errors.New("a parent id is required")
)

type (
	Repository interface {
		// ListUnits returns the units of tier whose parent is parentID, ordered by name.
		// parentID is ignored for TierProvince.
		ListUnits(ctx context.Context, tier Tier, parentID int) ([]Unit, error)
		GetUnit(ctx context.Context, tier Tier, id int) (Unit, error)
		UpsertUnits(ctx context.Context, tier Tier, units []Unit) (int, error)
		CountUnits(ctx context.Context, tier Tier) (int, error)
	}

	Service interface {
		Provinces(ctx context.Context) ([]Unit, error)
		// Children returns the units of tier scoped to parentID.
		Children(ctx context.Context, tier Tier, parentID int) ([]Unit, error)
		// ValidateSelection checks that sel is a complete path of existing units, each child
		// belonging to the selected parent.
		ValidateSelection(ctx context.Context, sel Selection) error
		// Names resolves the names of the selected units, keyed by tier.
		Names(ctx context.Context, sel Selection) (map[Tier]string, error)
		Import(ctx context.Context, trees ...Tree) (map[Tier]int, error)
		Counts(ctx context.Context) (map[Tier]int, error)
	}

	service struct {
		repo  Repository
		cache *cache.Cache
	}
)

var _ Service = (*service)(nil) // interface compliance check

// NewService returns a Service caching option lists for ttl. A zero ttl disables caching.
func NewService(repo Repository, ttl time.Duration) Service {
	svc := &service{repo: repo}
	if ttl > 0 {
		svc.cache = cache.New(ttl, 2*ttl)
	}
	return svc
}

func cacheKey(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key += ":" + fmt.Sprintf("%v", param)
	}
	return key
}

func (svc *service) list(ctx context.Context, tier Tier, parentID int) ([]Unit, error) {
	key := cacheKey("region", tier, parentID)
	if svc.cache != nil {
		if cached, ok := svc.cache.Get(key); ok {
			return cached.([]Unit), nil
		}
	}

	units, err := svc.repo.ListUnits(ctx, tier, parentID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", tier.Plural())
	}
	if units == nil {
		units = []Unit{}
	}
	if svc.cache != nil {
		svc.cache.SetDefault(key, units)
	}
	return units, nil
}

func (svc *service) Provinces(ctx context.Context) ([]Unit, error) {
	return svc.list(ctx, TierProvince, 0)
}

func (svc *service) Children(ctx context.Context, tier Tier, parentID int) ([]Unit, error) {
	if _, ok := tier.Parent(); !ok {
		return nil, errors.Errorf("%s has no parent tier", tier)
	}
	if parentID <= 0 {
		return nil, ErrInvalidParent
	}
	return svc.list(ctx, tier, parentID)
}

func (svc *service) ValidateSelection(ctx context.Context, sel Selection) error {
	for _, t := range Tiers {
		if sel.ID(t) == 0 {
			return core.NewValidationError(nil, core.FieldError{Field: t.String() + "_id", Error: "this field is required"})
		}
	}

	parentID := 0
	for _, t := range Tiers {
		id := sel.ID(t)
		unit, err := svc.repo.GetUnit(ctx, t, id)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return core.NewValidationError(err, core.FieldError{Field: t.String() + "_id", Error: "unknown " + t.String()})
			}
			return errors.Wrapf(err, "finding %s", t)
		}
		if t != TierProvince && unit.ParentID != parentID {
			return core.NewValidationError(nil, core.FieldError{
				Field: t.String() + "_id",
				Error: fmt.Sprintf("%s does not belong to the selected %s", t, mustParent(t)),
			})
		}
		parentID = id
	}
	return nil
}

func (svc *service) Names(ctx context.Context, sel Selection) (map[Tier]string, error) {
	names := make(map[Tier]string, len(Tiers))
	for _, t := range Tiers {
		id := sel.ID(t)
		if id == 0 {
			break
		}
		unit, err := svc.repo.GetUnit(ctx, t, id)
		if err != nil {
			return nil, errors.Wrapf(err, "finding %s", t)
		}
		names[t] = unit.Name
	}
	return names, nil
}

// Import stores the trees, parents first, and drops cached option lists.
func (svc *service) Import(ctx context.Context, trees ...Tree) (map[Tier]int, error) {
	perTier := make(map[Tier][]Unit, len(Tiers))
	for _, tr := range trees {
		for t, units := range tr.Flatten() {
			perTier[t] = append(perTier[t], units...)
		}
	}

	counts := make(map[Tier]int, len(Tiers))
	for _, t := range Tiers {
		if len(perTier[t]) == 0 {
			continue
		}
		n, err := svc.repo.UpsertUnits(ctx, t, perTier[t])
		if err != nil {
			return counts, errors.Wrapf(err, "importing %s", t.Plural())
		}
		counts[t] = n
	}
	if svc.cache != nil {
		svc.cache.Flush()
	}
	return counts, nil
}

func (svc *service) Counts(ctx context.Context) (map[Tier]int, error) {
	counts := make(map[Tier]int, len(Tiers))
	for _, t := range Tiers {
		n, err := svc.repo.CountUnits(ctx, t)
		if err != nil {
			return nil, errors.Wrapf(err, "counting %s", t.Plural())
		}
		counts[t] = n
	}
	return counts, nil
}

func mustParent(t Tier) Tier {
	p, _ := t.Parent()
	return p
}
