package member

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/region"
)

// Statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

var Statuses = []string{StatusPending, StatusApproved, StatusRejected}

// Genders
const (
	GenderMale   = "L"
	GenderFemale = "P"
)

const birthDateLayout = "2006-01-02"

type Member struct {
	ID              int              `json:"id"`
	UserID          int              `json:"user_id,omitempty"`
	FullName        string           `json:"full_name"`
	NIP             string           `json:"nip,omitempty"`
	NUPTK           string           `json:"nuptk,omitempty"`
	BirthPlace      string           `json:"birth_place"`
	BirthDate       time.Time        `json:"birth_date"`
	Gender          string           `json:"gender"`
	Phone           string           `json:"phone"`
	Email           string           `json:"email"`
	School          string           `json:"school"`
	Position        string           `json:"position,omitempty"`
	Address         string           `json:"address,omitempty"`
	Location        region.Selection `json:"location"`
	PhotoPath       string           `json:"-"`
	PhotoURL        string           `json:"photo_url,omitempty"`
	Status          string           `json:"status"`
	MemberNumber    string           `json:"member_number,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	IsOfficer       bool             `json:"is_officer"`
	OfficerPosition string           `json:"officer_position,omitempty"`
	ApprovedAt      time.Time        `json:"approved_at,omitempty"` // UTC
	ApprovedBy      int              `json:"approved_by,omitempty"`
	CreatedAt       time.Time        `json:"created_at"` // UTC
	UpdatedAt       time.Time        `json:"updated_at"` // UTC
}

func (m *Member) IsApproved() bool { return m.Status == StatusApproved }

// IsOwnedBy reports whether the member profile belongs to the user account userID.
func (m *Member) IsOwnedBy(userID int) bool { return m.UserID != 0 && m.UserID == userID }

// FormatNumber renders a member number: the approval year and a 5-digit sequence.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("%d.%05d", year, seq)
}

// ParseNumber is the inverse of FormatNumber.
func ParseNumber(number string) (year, seq int, err error) {
	parts := strings.SplitN(number, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed member number %q", number)
	}
	if year, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("malformed member number %q", number)
	}
	if seq, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("malformed member number %q", number)
	}
	return year, seq, nil
}

// NewMember contains the biodata needed to create a Member.
type NewMember struct {
	FullName   string `json:"full_name" validate:"required,notblank,max=120"`
	NIP        string `json:"nip" validate:"omitempty,nip"`
	NUPTK      string `json:"nuptk" validate:"omitempty,nuptk"`
	BirthPlace string `json:"birth_place" validate:"required,notblank"`
	BirthDate  string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Gender     string `json:"gender" validate:"required,oneof=L P"`
	Phone      string `json:"phone" validate:"required,phone"`
	Email      string `json:"email" validate:"required,email"`
	School     string `json:"school" validate:"required,notblank"`
	Position   string `json:"position"`
	Address    string `json:"address"`
	ProvinceID int    `json:"province_id" validate:"required"`
	RegencyID  int    `json:"regency_id" validate:"required"`
	DistrictID int    `json:"district_id" validate:"required"`
	VillageID  int    `json:"village_id" validate:"required"`
}

func (nm *NewMember) Clean() {
	nm.FullName = core.CleanString(nm.FullName)
	nm.NIP = core.CleanString(nm.NIP)
	nm.NUPTK = core.CleanString(nm.NUPTK)
	nm.BirthPlace = core.CleanString(nm.BirthPlace)
	nm.BirthDate = core.CleanString(nm.BirthDate)
	nm.Gender = strings.ToUpper(core.CleanString(nm.Gender))
	nm.Phone = strings.ReplaceAll(core.CleanString(nm.Phone), " ", "")
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	nm.School = core.CleanString(nm.School)
	nm.Position = core.CleanString(nm.Position)
	nm.Address = core.CleanString(nm.Address)
}

func (nm *NewMember) Location() region.Selection {
	return region.Selection{
		ProvinceID: nm.ProvinceID,
		RegencyID:  nm.RegencyID,
		DistrictID: nm.DistrictID,
		VillageID:  nm.VillageID,
	}
}

// SetLocation copies sel into the location fields.
func (nm *NewMember) SetLocation(sel region.Selection) {
	nm.ProvinceID = sel.ProvinceID
	nm.RegencyID = sel.RegencyID
	nm.DistrictID = sel.DistrictID
	nm.VillageID = sel.VillageID
}

// Registration is a self-service sign up: the member biodata plus its login account.
type Registration struct {
	NewMember
	Username        string `json:"username" validate:"omitempty,min=6,alphanum_"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

// UpdateMember defines what may be changed on an existing Member.
// Blank fields keep their current values.
type UpdateMember struct {
	FullName   string `json:"full_name" validate:"omitempty,max=120"`
	NIP        string `json:"nip" validate:"omitempty,nip"`
	NUPTK      string `json:"nuptk" validate:"omitempty,nuptk"`
	BirthPlace string `json:"birth_place"`
	BirthDate  string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Gender     string `json:"gender" validate:"omitempty,oneof=L P"`
	Phone      string `json:"phone" validate:"omitempty,phone"`
	Email      string `json:"email" validate:"omitempty,email"`
	School     string `json:"school"`
	Position   string `json:"position"`
	Address    string `json:"address"`
	// a location change replaces the whole selection
	ProvinceID int `json:"province_id"`
	RegencyID  int `json:"regency_id"`
	DistrictID int `json:"district_id"`
	VillageID  int `json:"village_id"`

	// admins only
	IsOfficer       *bool   `json:"is_officer"`
	OfficerPosition *string `json:"officer_position" validate:"omitempty,max=80"`
}

func (um *UpdateMember) HasAdminFields() bool {
	return um.IsOfficer != nil || um.OfficerPosition != nil
}

func (um *UpdateMember) Location() region.Selection {
	return region.Selection{
		ProvinceID: um.ProvinceID,
		RegencyID:  um.RegencyID,
		DistrictID: um.DistrictID,
		VillageID:  um.VillageID,
	}
}

// Clean fills the blank fields of um with the values of orig.
func (um *UpdateMember) Clean(orig Member) {
	keep := func(s *string, origVal string, lower ...bool) {
		if v := core.CleanString(*s, lower...); v != "" {
			*s = v
		} else {
			*s = origVal
		}
	}
	keep(&um.FullName, orig.FullName)
	keep(&um.NIP, orig.NIP)
	keep(&um.NUPTK, orig.NUPTK)
	keep(&um.BirthPlace, orig.BirthPlace)
	if !orig.BirthDate.IsZero() {
		keep(&um.BirthDate, orig.BirthDate.Format(birthDateLayout))
	} else {
		um.BirthDate = core.CleanString(um.BirthDate)
	}
	keep(&um.Gender, orig.Gender)
	um.Gender = strings.ToUpper(um.Gender)
	keep(&um.Phone, orig.Phone)
	um.Phone = strings.ReplaceAll(um.Phone, " ", "")
	keep(&um.Email, orig.Email, true /* lower */)
	keep(&um.School, orig.School)
	keep(&um.Position, orig.Position)
	keep(&um.Address, orig.Address)
	if um.Location().IsEmpty() {
		um.ProvinceID = orig.Location.ProvinceID
		um.RegencyID = orig.Location.RegencyID
		um.DistrictID = orig.Location.DistrictID
		um.VillageID = orig.Location.VillageID
	}
	if um.OfficerPosition != nil {
		pos := core.CleanString(*um.OfficerPosition)
		um.OfficerPosition = &pos
	}
}

type Rejection struct {
	Reason string `json:"reason" validate:"required,notblank,max=255"`
}

type QueryFilter struct {
	Search     string   `query:"search"`
	Statuses   []string `query:"status"`
	IsOfficer  *bool    `query:"is_officer"`
	ProvinceID int      `query:"province_id"`
	RegencyID  int      `query:"regency_id"`
	DistrictID int      `query:"district_id"`
	VillageID  int      `query:"village_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Match reports whether m satisfies every set field of the filter.
func (qf *QueryFilter) Match(m Member) bool {
	if qf == nil {
		return true
	}
	if qf.Search != "" {
		s := strings.ToLower(qf.Search)
		if !strings.Contains(strings.ToLower(m.FullName), s) &&
			!strings.Contains(m.NIP, s) &&
			!strings.Contains(m.NUPTK, s) &&
			!strings.Contains(m.MemberNumber, s) &&
			!strings.Contains(strings.ToLower(m.School), s) {
			return false
		}
	}
	if len(qf.Statuses) > 0 && !contains(qf.Statuses, m.Status) {
		return false
	}
	if qf.IsOfficer != nil && *qf.IsOfficer != m.IsOfficer {
		return false
	}
	for _, t := range region.Tiers {
		var want int
		switch t {
		case region.TierProvince:
			want = qf.ProvinceID
		case region.TierRegency:
			want = qf.RegencyID
		case region.TierDistrict:
			want = qf.DistrictID
		case region.TierVillage:
			want = qf.VillageID
		}
		if want != 0 && m.Location.ID(t) != want {
			return false
		}
	}
	return true
}

// Card is the printable member card.
type Card struct {
	MemberNumber string    `json:"member_number"`
	FullName     string    `json:"full_name"`
	NIP          string    `json:"nip,omitempty"`
	NUPTK        string    `json:"nuptk,omitempty"`
	BirthPlace   string    `json:"birth_place"`
	BirthDate    time.Time `json:"birth_date"`
	School       string    `json:"school"`
	Address      string    `json:"address,omitempty"`
	Village      string    `json:"village"`
	District     string    `json:"district"`
	Regency      string    `json:"regency"`
	Province     string    `json:"province"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	ChapterName  string    `json:"chapter_name"`
	Footer       string    `json:"footer,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ValidUntil   time.Time `json:"valid_until"`
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
