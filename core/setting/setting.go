// Package setting holds the site-wide settings editable by admins.
package setting

import (
	"context"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core"
)

// Keys
const (
	KeySiteName       = "site_name"
	KeyChapterAddress = "chapter_address"
	KeyContactEmail   = "contact_email"
	KeyContactPhone   = "contact_phone"
	KeyAnnouncement   = "announcement"
	KeyCardFooter     = "card_footer"
)

var (
	htmlPolicy  = bluemonday.UGCPolicy()
	plainPolicy = bluemonday.StrictPolicy()
)

type Settings struct {
	SiteName       string    `json:"site_name"`
	ChapterAddress string    `json:"chapter_address"`
	ContactEmail   string    `json:"contact_email"`
	ContactPhone   string    `json:"contact_phone"`
	Announcement   string    `json:"announcement"` // sanitized HTML
	CardFooter     string    `json:"card_footer"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

func (s *Settings) fields() map[string]*string {
	return map[string]*string{
		KeySiteName:       &s.SiteName,
		KeyChapterAddress: &s.ChapterAddress,
		KeyContactEmail:   &s.ContactEmail,
		KeyContactPhone:   &s.ContactPhone,
		KeyAnnouncement:   &s.Announcement,
		KeyCardFooter:     &s.CardFooter,
	}
}

// UpdateSettings changes the provided (non-nil) settings only.
type UpdateSettings struct {
	SiteName       *string `json:"site_name" validate:"omitempty,notblank,max=120"`
	ChapterAddress *string `json:"chapter_address" validate:"omitempty,max=255"`
	ContactEmail   *string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone   *string `json:"contact_phone" validate:"omitempty,phone"`
	Announcement   *string `json:"announcement"`
	CardFooter     *string `json:"card_footer" validate:"omitempty,max=255"`
}

func (us *UpdateSettings) values() map[string]string {
	vals := make(map[string]string)
	plain := map[string]*string{
		KeySiteName:       us.SiteName,
		KeyChapterAddress: us.ChapterAddress,
		KeyContactEmail:   us.ContactEmail,
		KeyContactPhone:   us.ContactPhone,
		KeyCardFooter:     us.CardFooter,
	}
	for k, v := range plain {
		if v != nil {
			vals[k] = core.CleanString(plainPolicy.Sanitize(*v))
		}
	}
	if us.Announcement != nil {
		vals[KeyAnnouncement] = core.CleanString(htmlPolicy.Sanitize(*us.Announcement))
	}
	return vals
}

type (
	Repository interface {
		GetSettings(ctx context.Context) (map[string]string, time.Time, error)
		SaveSettings(ctx context.Context, values map[string]string, at time.Time) error
	}

	Service interface {
		Get(ctx context.Context) (Settings, error)
		Update(ctx context.Context, us UpdateSettings) (Settings, error)
	}

	service struct {
		repo     Repository
		defaults Settings
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, conf *core.Config) Service {
	return &service{
		repo: repo,
		defaults: Settings{
			SiteName:     conf.AppName,
			ContactEmail: conf.DefaultFromAddress,
			CardFooter:   conf.ChapterName,
		},
	}
}

// Get returns the stored settings, falling back to the defaults for missing keys.
func (svc *service) Get(ctx context.Context) (Settings, error) {
	vals, updatedAt, err := svc.repo.GetSettings(ctx)
	if err != nil {
		return Settings{}, errors.Wrap(err, "getting settings")
	}
	s := svc.defaults
	for k, ptr := range s.fields() {
		if v, ok := vals[k]; ok {
			*ptr = v
		}
	}
	s.UpdatedAt = updatedAt
	return s, nil
}

func (svc *service) Update(ctx context.Context, us UpdateSettings) (Settings, error) {
	if err := core.Validate.Struct(us); err != nil {
		return Settings{}, err
	}
	vals := us.values()
	if len(vals) > 0 {
		if err := svc.repo.SaveSettings(ctx, vals, time.Now().UTC()); err != nil {
			return Settings{}, errors.Wrap(err, "saving settings")
		}
	}
	return svc.Get(ctx)
}
