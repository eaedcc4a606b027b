package setting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/setting"
	inmemdb "github.com/pgri-okutimur/anggota/storage/database/inmem"
)

func newService() setting.Service {
	conf := &core.Config{
		AppName:            "PGRI OKU Timur",
		ChapterName:        "PGRI Kabupaten OKU Timur",
		DefaultFromAddress: "noreply@pgri.test",
	}
	return setting.NewService(inmemdb.NewSettingRepository(inmemdb.Open()), conf)
}

func strPtr(s string) *string { return &s }

func TestService_Defaults(t *testing.T) {
	s, err := newService().Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "PGRI OKU Timur", s.SiteName)
	assert.Equal(t, "noreply@pgri.test", s.ContactEmail)
	assert.Equal(t, "PGRI Kabupaten OKU Timur", s.CardFooter)
	assert.Empty(t, s.Announcement)
	assert.True(t, s.UpdatedAt.IsZero())
}

func TestService_Update(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	s, err := svc.Update(ctx, setting.UpdateSettings{
		ChapterAddress: strPtr("  Jl. Lintas Sumatera, <b>Martapura</b> "),
		Announcement:   strPtr(`<p>Rapat <strong>pengurus</strong></p><script>alert(1)</script>`),
	})
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, "Jl. Lintas Sumatera, Martapura", s.ChapterAddress)
	assert.Equal(t, "<p>Rapat <strong>pengurus</strong></p>", s.Announcement)
	assert.Equal(t, "PGRI OKU Timur", s.SiteName, "untouched settings keep their defaults")
	assert.False(t, s.UpdatedAt.IsZero())

	_, err = svc.Update(ctx, setting.UpdateSettings{ContactEmail: strPtr("bukan-email")})
	assert.Error(t, err)
	_, err = svc.Update(ctx, setting.UpdateSettings{SiteName: strPtr("   ")})
	assert.Error(t, err)

	s, err = svc.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "noreply@pgri.test", s.ContactEmail)
	assert.Equal(t, "Jl. Lintas Sumatera, Martapura", s.ChapterAddress)
}
