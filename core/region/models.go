// Package region holds the geographic master data (province, regency, district, village)
// members are located in.
package region

import "fmt"

// Tier is one level of the geographic hierarchy.
type Tier int

const (
	TierProvince Tier = iota
	TierRegency
	TierDistrict
	TierVillage
)

// Tiers lists every tier from the root down.
var Tiers = [...]Tier{TierProvince, TierRegency, TierDistrict, TierVillage}

func (t Tier) String() string {
	switch t {
	case TierProvince:
		return "province"
	case TierRegency:
		return "regency"
	case TierDistrict:
		return "district"
	case TierVillage:
		return "village"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Plural names the units of t, as in "regencies".
func (t Tier) Plural() string {
	if t == TierRegency {
		return "regencies"
	}
	return t.String() + "s"
}

// Parent returns the tier above t. The province tier has no parent.
func (t Tier) Parent() (Tier, bool) {
	if t <= TierProvince || t > TierVillage {
		return 0, false
	}
	return t - 1, true
}

// Unit is a GeographicUnit. ParentID is 0 for provinces.
type Unit struct {
	ID       int    `json:"id" yaml:"id" db:"id"`
	Name     string `json:"name" yaml:"name" db:"name"`
	ParentID int    `json:"parentId,omitempty" yaml:"-" db:"parent_id"`
}

// Selection is a province → regency → district → village path. Zero means unset.
type Selection struct {
	ProvinceID int `json:"province_id,omitempty"`
	RegencyID  int `json:"regency_id,omitempty"`
	DistrictID int `json:"district_id,omitempty"`
	VillageID  int `json:"village_id,omitempty"`
}

// ID returns the selected id at tier t.
func (s Selection) ID(t Tier) int {
	switch t {
	case TierProvince:
		return s.ProvinceID
	case TierRegency:
		return s.RegencyID
	case TierDistrict:
		return s.DistrictID
	case TierVillage:
		return s.VillageID
	}
	return 0
}

// With returns a copy of s with tier t set to id and every tier below t cleared.
func (s Selection) With(t Tier, id int) Selection {
	out := Selection{}
	for _, tier := range Tiers {
		switch {
		case tier < t:
			out = out.set(tier, s.ID(tier))
		case tier == t:
			out = out.set(tier, id)
		}
	}
	return out
}

func (s Selection) set(t Tier, id int) Selection {
	switch t {
	case TierProvince:
		s.ProvinceID = id
	case TierRegency:
		s.RegencyID = id
	case TierDistrict:
		s.DistrictID = id
	case TierVillage:
		s.VillageID = id
	}
	return s
}

// IsEmpty reports whether no tier is selected.
func (s Selection) IsEmpty() bool {
	return s == Selection{}
}

// IsConsistent reports whether every selected tier has all of its ancestors selected.
func (s Selection) IsConsistent() bool {
	parentSet := true
	for _, t := range Tiers {
		id := s.ID(t)
		if id != 0 && !parentSet {
			return false
		}
		parentSet = id != 0
	}
	return true
}

// Tree is a province with its nested children, as found in seed files.
type Tree struct {
	ID        int    `yaml:"id"`
	Name      string `yaml:"name"`
	Regencies []struct {
		ID        int    `yaml:"id"`
		Name      string `yaml:"name"`
		Districts []struct {
			ID       int    `yaml:"id"`
			Name     string `yaml:"name"`
			Villages []Unit `yaml:"villages"`
		} `yaml:"districts"`
	} `yaml:"regencies"`
}

// Flatten returns the units of the tree per tier, with parent ids filled in.
func (tr Tree) Flatten() map[Tier][]Unit {
	out := map[Tier][]Unit{
		TierProvince: {{ID: tr.ID, Name: tr.Name}},
	}
	for _, r := range tr.Regencies {
		out[TierRegency] = append(out[TierRegency], Unit{ID: r.ID, Name: r.Name, ParentID: tr.ID})
		for _, d := range r.Districts {
			out[TierDistrict] = append(out[TierDistrict], Unit{ID: d.ID, Name: d.Name, ParentID: r.ID})
			for _, v := range d.Villages {
				out[TierVillage] = append(out[TierVillage], Unit{ID: v.ID, Name: v.Name, ParentID: d.ID})
			}
		}
	}
	return out
}
