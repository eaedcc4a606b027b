package member_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/region"
	"github.com/pgri-okutimur/anggota/core/user"
	"github.com/pgri-okutimur/anggota/services/email"
	"github.com/pgri-okutimur/anggota/tests"
)

var (
	fixedNow  = time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	pngHeader = []byte("\x89PNG\x0D\x0A\x1A\x0A\x00\x00\x00\x0DIHDR")
)

func setup(t *testing.T) (*testutil.Env, user.User) {
	t.Helper()
	restore := member.SetNowFunc(func() time.Time { return fixedNow })
	t.Cleanup(restore)

	env := testutil.NewEnv(t)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin_pgri", "admin@pgri.test", "", []string{user.RoleAdminOwner}, true)
	return env, admin
}

func fieldOf(err error) string {
	if verr, ok := err.(*core.ValidationError); ok && len(verr.Fields) > 0 {
		return verr.Fields[0].Field
	}
	return ""
}

func TestService_Register(t *testing.T) {
	env, _ := setup(t)
	ctx := context.Background()

	reg := testutil.ValidRegistration("siti@sekolah.test")
	reg.FullName = "  Siti Aminah "
	reg.Gender = "p"
	m, err := env.MemberSvc.Register(ctx, reg)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, "Siti Aminah", m.FullName)
	assert.Equal(t, member.GenderFemale, m.Gender)
	assert.Equal(t, member.StatusPending, m.Status)
	assert.Equal(t, testutil.Martapura, m.Location)
	assert.Equal(t, time.Date(1985, 4, 12, 0, 0, 0, 0, time.UTC), m.BirthDate)
	assert.Empty(t, m.MemberNumber)

	usr, err := env.UserSvc.GetByID(ctx, m.UserID)
	if assert.NoError(t, err) {
		assert.True(t, usr.IsMember())
		assert.False(t, usr.IsAdmin())
		assert.Equal(t, "siti@sekolah.test", usr.Email)
		assert.NoError(t, usr.CheckPassword(reg.Password))
	}

	msgs := emailsvc.MessagesTo("siti@sekolah.test")
	if assert.Len(t, msgs, 1) {
		assert.Equal(t, "member_registered", msgs[0].TemplateName)
		assert.Contains(t, msgs[0].TextContent, "Siti Aminah")
	}

	// the account email is taken now
	_, err = env.MemberSvc.Register(ctx, testutil.ValidRegistration("siti@sekolah.test"))
	assert.Equal(t, "email", fieldOf(err))
}

func TestService_RegisterValidation(t *testing.T) {
	env, _ := setup(t)

	tests := []struct {
		name      string
		mutate    func(reg *member.Registration)
		wantField string
	}{
		{name: "bad nip", mutate: func(reg *member.Registration) { reg.NIP = "123" }, wantField: "nip"},
		{name: "bad birth date", mutate: func(reg *member.Registration) { reg.BirthDate = "12-04-1985" }, wantField: "birth_date"},
		{name: "bad gender", mutate: func(reg *member.Registration) { reg.Gender = "X" }, wantField: "gender"},
		{name: "missing village", mutate: func(reg *member.Registration) { reg.VillageID = 0 }, wantField: "village_id"},
		{
			name: "village of another district",
			mutate: func(reg *member.Registration) {
				reg.SetLocation(region.Selection{ProvinceID: 16, RegencyID: 1608, DistrictID: 160802, VillageID: 1608011001})
			},
			wantField: "village_id",
		},
		{
			name: "regency of another province",
			mutate: func(reg *member.Registration) {
				reg.SetLocation(region.Selection{ProvinceID: 17, RegencyID: 1608, DistrictID: 160801, VillageID: 1608011001})
			},
			wantField: "regency_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := testutil.ValidRegistration(strings.ReplaceAll(tt.name, " ", "") + "@sekolah.test")
			tt.mutate(&reg)
			_, err := env.MemberSvc.Register(context.Background(), reg)
			if assert.Error(t, err) {
				assert.Contains(t, fieldsOf(err), tt.wantField, err.Error())
			}
		})
	}

	// nothing was stored
	members, err := env.MemberSvc.Query(context.Background(), nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, members)
}

// fieldsOf lists the fields reported by either kind of validation error.
func fieldsOf(err error) []string {
	var fields []string
	switch e := err.(type) {
	case *core.ValidationError:
		for _, f := range e.Fields {
			fields = append(fields, f.Field)
		}
	case validator.ValidationErrors:
		for _, fe := range e {
			fields = append(fields, fe.Field())
		}
	}
	return fields
}

func TestService_Approve(t *testing.T) {
	env, admin := setup(t)
	ctx := context.Background()

	testutil.CreateMember(t, env.MemberRepo, "Anggota Lama", "lama@sekolah.test", 0, "2025.00007")
	first := testutil.CreateMember(t, env.MemberRepo, "Budi", "budi@sekolah.test", 0, "")
	second := testutil.CreateMember(t, env.MemberRepo, "Citra", "citra@sekolah.test", 0, "")

	m, err := env.MemberSvc.Approve(ctx, first, admin)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, member.StatusApproved, m.Status)
	assert.Equal(t, "2026.00001", m.MemberNumber)
	assert.Equal(t, fixedNow, m.ApprovedAt)
	assert.Equal(t, admin.ID, m.ApprovedBy)

	m2, err := env.MemberSvc.Approve(ctx, second, admin)
	assert.NoError(t, err)
	assert.Equal(t, "2026.00002", m2.MemberNumber)

	_, err = env.MemberSvc.Approve(ctx, m, admin)
	assert.True(t, core.IsValidationError(err))

	msgs := emailsvc.MessagesTo("budi@sekolah.test")
	if assert.Len(t, msgs, 1) {
		assert.Equal(t, "member_approved", msgs[0].TemplateName)
		assert.Contains(t, msgs[0].TextContent, "2026.00001")
		assert.Contains(t, msgs[0].HTMLContent, "2026.00001")
	}
}

type racingRepo struct {
	member.Repository
	calls int
}

// NextSequence hands out a number taken in the meantime on its first call.
func (r *racingRepo) NextSequence(ctx context.Context, year int) (int, error) {
	r.calls++
	if r.calls == 1 {
		return 1, nil
	}
	return r.Repository.NextSequence(ctx, year)
}

func TestService_ApproveRetriesTakenNumber(t *testing.T) {
	env, admin := setup(t)
	repo := &racingRepo{Repository: env.MemberRepo}
	svc := member.NewService(member.Deps{
		Repo:       repo,
		UserSvc:    env.UserSvc,
		RegionSvc:  env.RegionSvc,
		SettingSvc: env.SettingSvc,
		Photos:     env.Photos,
		MailSvc:    env.MailSvc,
		Conf:       env.Conf,
	})

	testutil.CreateMember(t, env.MemberRepo, "Dewi", "dewi@sekolah.test", 0, "2026.00001")
	pending := testutil.CreateMember(t, env.MemberRepo, "Eko", "eko@sekolah.test", 0, "")

	m, err := svc.Approve(context.Background(), pending, admin)
	assert.NoError(t, err)
	assert.Equal(t, "2026.00002", m.MemberNumber)
	assert.Equal(t, 2, repo.calls)
}

func TestService_Reject(t *testing.T) {
	env, admin := setup(t)
	ctx := context.Background()
	pending := testutil.CreateMember(t, env.MemberRepo, "Fajar", "fajar@sekolah.test", 0, "")

	_, err := env.MemberSvc.Reject(ctx, pending, member.Rejection{Reason: "   "})
	assert.Error(t, err)

	m, err := env.MemberSvc.Reject(ctx, pending, member.Rejection{Reason: "NIP tidak sesuai"})
	if assert.NoError(t, err) {
		assert.Equal(t, member.StatusRejected, m.Status)
		assert.Equal(t, "NIP tidak sesuai", m.RejectionReason)
	}
	msgs := emailsvc.MessagesTo("fajar@sekolah.test")
	if assert.Len(t, msgs, 1) {
		assert.Contains(t, msgs[0].TextContent, "NIP tidak sesuai")
	}

	_, err = env.MemberSvc.Reject(ctx, m, member.Rejection{Reason: "lagi"})
	assert.True(t, core.IsValidationError(err))

	// a rejected registration can still be approved after corrections
	m, err = env.MemberSvc.Approve(ctx, m, admin)
	assert.NoError(t, err)
	assert.Empty(t, m.RejectionReason)
}

func TestService_Update(t *testing.T) {
	env, admin := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, env.UserRepo, "Gita", "gita_guru", "gita@sekolah.test", "", []string{user.RoleMember}, true)
	m := testutil.CreateMember(t, env.MemberRepo, "Gita", "gita@sekolah.test", owner.ID, "")

	// owners edit their biodata, blank fields are kept
	updated, err := env.MemberSvc.Update(ctx, m, member.UpdateMember{School: "SMP Negeri 2 Belitang", Phone: "0812 1111 2222"}, owner)
	if assert.NoError(t, err) {
		assert.Equal(t, "SMP Negeri 2 Belitang", updated.School)
		assert.Equal(t, "081211112222", updated.Phone)
		assert.Equal(t, "Gita", updated.FullName)
		assert.Equal(t, m.BirthDate, updated.BirthDate)
		assert.Equal(t, testutil.Martapura, updated.Location)
	}

	// a new location replaces the whole path and must be consistent
	belitang := region.Selection{ProvinceID: 16, RegencyID: 1608, DistrictID: 160802, VillageID: 1608021001}
	um := member.UpdateMember{}
	um.ProvinceID, um.RegencyID, um.DistrictID, um.VillageID = belitang.ProvinceID, belitang.RegencyID, belitang.DistrictID, belitang.VillageID
	updated, err = env.MemberSvc.Update(ctx, updated, um, owner)
	if assert.NoError(t, err) {
		assert.Equal(t, belitang, updated.Location)
	}
	_, err = env.MemberSvc.Update(ctx, updated, member.UpdateMember{ProvinceID: 16, RegencyID: 1601}, owner)
	assert.Equal(t, "district_id", fieldOf(err))

	// officer fields are for admins
	_, err = env.MemberSvc.Update(ctx, updated, member.UpdateMember{IsOfficer: core.BoolPtr(true)}, owner)
	assert.Equal(t, member.ErrPermissionDenied, err)

	pos := "Sekretaris"
	updated, err = env.MemberSvc.Update(ctx, updated, member.UpdateMember{IsOfficer: core.BoolPtr(true), OfficerPosition: &pos}, admin)
	if assert.NoError(t, err) {
		assert.True(t, updated.IsOfficer)
		assert.Equal(t, "Sekretaris", updated.OfficerPosition)
	}

	updated, err = env.MemberSvc.Update(ctx, updated, member.UpdateMember{IsOfficer: core.BoolPtr(false)}, admin)
	if assert.NoError(t, err) {
		assert.False(t, updated.IsOfficer)
		assert.Empty(t, updated.OfficerPosition)
	}
}

func TestService_QueryAndOfficers(t *testing.T) {
	env, admin := setup(t)
	ctx := context.Background()

	ketua := testutil.CreateMember(t, env.MemberRepo, "Hasan", "hasan@sekolah.test", 0, "2026.00010")
	bendahara := testutil.CreateMember(t, env.MemberRepo, "Indah", "indah@sekolah.test", 0, "2026.00011")
	testutil.CreateMember(t, env.MemberRepo, "Joko", "joko@sekolah.test", 0, "")

	for m, pos := range map[*member.Member]string{&ketua: "Ketua", &bendahara: "Bendahara"} {
		p := pos
		_, err := env.MemberSvc.Update(ctx, *m, member.UpdateMember{IsOfficer: core.BoolPtr(true), OfficerPosition: &p}, admin)
		assert.NoError(t, err)
	}

	officers, err := env.MemberSvc.Officers(ctx)
	if assert.NoError(t, err) && assert.Len(t, officers, 2) {
		assert.Equal(t, "Bendahara", officers[0].OfficerPosition)
		assert.Equal(t, "Ketua", officers[1].OfficerPosition)
	}

	pending, err := env.MemberSvc.Query(ctx, &member.QueryFilter{Statuses: []string{member.StatusPending}}, nil)
	if assert.NoError(t, err) && assert.Len(t, pending, 1) {
		assert.Equal(t, "Joko", pending[0].FullName)
	}

	found, err := env.MemberSvc.Query(ctx, &member.QueryFilter{Search: " 00011 "}, nil)
	if assert.NoError(t, err) && assert.Len(t, found, 1) {
		assert.Equal(t, "Indah", found[0].FullName)
	}

	inVillage, err := env.MemberSvc.Query(ctx, &member.QueryFilter{VillageID: testutil.Martapura.VillageID}, []core.DBOrdering{{Field: "full_name"}})
	if assert.NoError(t, err) && assert.Len(t, inVillage, 3) {
		assert.Equal(t, "Joko", inVillage[0].FullName)
	}
}

func TestService_SetPhoto(t *testing.T) {
	env, _ := setup(t)
	ctx := context.Background()
	m := testutil.CreateMember(t, env.MemberRepo, "Kartika", "kartika@sekolah.test", 0, "2026.00003")

	first, err := env.MemberSvc.SetPhoto(ctx, m, bytes.NewReader(pngHeader))
	if !assert.NoError(t, err) {
		return
	}
	assert.True(t, strings.HasPrefix(first.PhotoURL, "/media/photos/"))
	assert.Contains(t, first.PhotoURL, "?v=")

	// the URL is stable until the next upload
	got, err := env.MemberSvc.GetByID(ctx, m.ID)
	assert.NoError(t, err)
	assert.Equal(t, first.PhotoURL, got.PhotoURL)

	second, err := env.MemberSvc.SetPhoto(ctx, got, bytes.NewReader(pngHeader))
	assert.NoError(t, err)
	assert.NotEqual(t, first.PhotoURL, second.PhotoURL)

	stored, _ := env.MemberRepo.GetMember(ctx, m.ID)
	oldPath := strings.SplitN(strings.TrimPrefix(first.PhotoURL, "/media/"), "?", 2)[0]
	_, err = os.Stat(filepath.Join(env.Conf.MediaDir, oldPath))
	assert.True(t, os.IsNotExist(err), "the previous photo is removed")
	assert.FileExists(t, filepath.Join(env.Conf.MediaDir, stored.PhotoPath))

	_, err = env.MemberSvc.SetPhoto(ctx, stored, strings.NewReader("not an image"))
	assert.True(t, core.IsValidationError(err))
}

func TestService_Card(t *testing.T) {
	env, _ := setup(t)
	ctx := context.Background()

	pending := testutil.CreateMember(t, env.MemberRepo, "Lestari", "lestari@sekolah.test", 0, "")
	_, err := env.MemberSvc.Card(ctx, pending)
	assert.True(t, core.IsValidationError(err))

	approved := testutil.CreateMember(t, env.MemberRepo, "Maya", "maya@sekolah.test", 0, "2026.00004")
	card, err := env.MemberSvc.Card(ctx, approved)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, "2026.00004", card.MemberNumber)
	assert.Equal(t, "Pasar Martapura", card.Village)
	assert.Equal(t, "Martapura", card.District)
	assert.Equal(t, "Ogan Komering Ulu Timur", card.Regency)
	assert.Equal(t, "Sumatera Selatan", card.Province)
	assert.Equal(t, env.Conf.ChapterName, card.ChapterName)
	assert.Equal(t, env.Conf.ChapterName, card.Footer)
	assert.Equal(t, fixedNow, card.IssuedAt)
	assert.Equal(t, time.Date(2026, 12, 31, 23, 59, 59, 999999999, time.UTC), card.ValidUntil)
}

func TestService_Delete(t *testing.T) {
	env, _ := setup(t)
	ctx := context.Background()
	m := testutil.CreateMember(t, env.MemberRepo, "Nina", "nina@sekolah.test", 0, "")
	m, err := env.MemberSvc.SetPhoto(ctx, m, bytes.NewReader(pngHeader))
	assert.NoError(t, err)
	stored, _ := env.MemberRepo.GetMember(ctx, m.ID)

	assert.NoError(t, env.MemberSvc.Delete(ctx, m.ID))
	_, err = env.MemberSvc.GetByID(ctx, m.ID)
	assert.Equal(t, member.ErrNotFound, err)
	_, err = os.Stat(filepath.Join(env.Conf.MediaDir, stored.PhotoPath))
	assert.True(t, os.IsNotExist(err))
}

func TestMemberNumber(t *testing.T) {
	assert.Equal(t, "2026.00042", member.FormatNumber(2026, 42))
	year, seq, err := member.ParseNumber("2026.00042")
	assert.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 42, seq)
	_, _, err = member.ParseNumber("2026-42")
	assert.Error(t, err)
}
