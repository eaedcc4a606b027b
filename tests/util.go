package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/photo"
	"github.com/pgri-okutimur/anggota/core/region"
	"github.com/pgri-okutimur/anggota/core/setting"
	"github.com/pgri-okutimur/anggota/core/user"
	"github.com/pgri-okutimur/anggota/services/email"
	"github.com/pgri-okutimur/anggota/services/logger"
	"github.com/pgri-okutimur/anggota/storage/database/inmem"
)

// RegionSeed is a small slice of the master data: one complete path and a few siblings.
const RegionSeed = `
- id: 16
  name: Sumatera Selatan
  regencies:
    - id: 1608
      name: Ogan Komering Ulu Timur
      districts:
        - id: 160801
          name: Martapura
          villages:
            - {id: 1608011001, name: Pasar Martapura}
            - {id: 1608011002, name: Dusun Martapura}
        - id: 160802
          name: Belitang
          villages:
            - {id: 1608021001, name: Sidogede}
    - id: 1601
      name: Ogan Komering Ulu
- id: 17
  name: Bengkulu
`

// Martapura is a complete location of RegionSeed.
var Martapura = region.Selection{ProvinceID: 16, RegencyID: 1608, DistrictID: 160801, VillageID: 1608011001}

// Env wires the services on an in-memory database.
type Env struct {
	Conf   *core.Config
	Logger core.Logger

	UserRepo    user.Repository
	MemberRepo  member.Repository
	RegionRepo  region.Repository
	SettingRepo setting.Repository

	MailSvc    core.EmailService
	UserSvc    user.Service
	RegionSvc  region.Service
	SettingSvc setting.Service
	MemberSvc  member.Service
	Photos     photo.Store
	Versions   *photo.VersionCache
}

func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "PGRI OKU Timur",
		ChapterName:               "PGRI Kabupaten OKU Timur",
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:3000",
		MediaDir:                  t.TempDir(),
		MediaBaseURL:              "/media",
		PasswordResetTimeoutDelta: time.Hour,
		DefaultFromName:           "PGRI OKU Timur",
		DefaultFromAddress:        "noreply@pgri.test",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
	}
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	conf := NewConfig(t)
	lgr := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(conf, lgr)

	db := inmemdb.Open()
	env := &Env{
		Conf:        conf,
		Logger:      lgr,
		UserRepo:    inmemdb.NewUserRepository(db),
		MemberRepo:  inmemdb.NewMemberRepository(db),
		RegionRepo:  inmemdb.NewRegionRepository(db),
		SettingRepo: inmemdb.NewSettingRepository(db),
		MailSvc:     emailsvc.NewConsoleServiceMock(conf),
		Photos:      photo.NewFileStore(conf),
		Versions:    photo.NewVersionCache(),
	}
	env.UserSvc = user.NewServiceMock(env.UserRepo, env.MailSvc)
	env.RegionSvc = region.NewService(env.RegionRepo, 0)
	env.SettingSvc = setting.NewService(env.SettingRepo, conf)
	env.MemberSvc = member.NewService(member.Deps{
		Repo:       env.MemberRepo,
		UserSvc:    env.UserSvc,
		RegionSvc:  env.RegionSvc,
		SettingSvc: env.SettingSvc,
		Photos:     env.Photos,
		Versions:   env.Versions,
		MailSvc:    env.MailSvc,
		Conf:       conf,
	})
	SeedRegions(t, env.RegionSvc)
	return env
}

func SeedRegions(t *testing.T, svc region.Service) {
	t.Helper()
	var trees []region.Tree
	if err := yaml.Unmarshal([]byte(RegionSeed), &trees); err != nil {
		t.Fatalf("SeedRegions() failed: %v", err)
	}
	if _, err := svc.Import(context.Background(), trees...); err != nil {
		t.Fatalf("SeedRegions() failed: %v", err)
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateMember stores a member located in Martapura. A non-empty number marks it approved.
func CreateMember(t *testing.T, repo member.Repository, fullName, email string, userID int, number string) member.Member {
	t.Helper()
	now := time.Now().UTC()
	m := member.Member{
		UserID:     userID,
		FullName:   fullName,
		BirthPlace: "Martapura",
		BirthDate:  time.Date(1985, 4, 12, 0, 0, 0, 0, time.UTC),
		Gender:     member.GenderFemale,
		Phone:      "081234567890",
		Email:      email,
		School:     "SD Negeri 1 Martapura",
		Location:   Martapura,
		Status:     member.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if number != "" {
		m.Status = member.StatusApproved
		m.MemberNumber = number
		m.ApprovedAt = now
	}
	m, err := repo.CreateMember(context.Background(), m)
	if err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}
	return m
}

// ValidRegistration returns a registration that passes validation against RegionSeed.
func ValidRegistration(email string) member.Registration {
	reg := member.Registration{
		NewMember: member.NewMember{
			FullName:   "Siti Aminah",
			NIP:        "198504122010012003",
			NUPTK:      "1234567890123456",
			BirthPlace: "Martapura",
			BirthDate:  "1985-04-12",
			Gender:     member.GenderFemale,
			Phone:      "081234567890",
			Email:      email,
			School:     "SD Negeri 1 Martapura",
			Position:   "Guru Kelas",
		},
		Password:        "Rahasia-Sekali-2026",
		PasswordConfirm: "Rahasia-Sekali-2026",
	}
	reg.SetLocation(Martapura)
	return reg
}
