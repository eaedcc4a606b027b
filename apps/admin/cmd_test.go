package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/region"
	"github.com/pgri-okutimur/anggota/core/user"
	inmemdb "github.com/pgri-okutimur/anggota/storage/database/inmem"
	testutil "github.com/pgri-okutimur/anggota/tests"
)

const testPassword = "Rahasia-Sekali-2026"

// scriptedPrompter answers prompts from a script. An empty select answer keeps the default.
type scriptedPrompter struct {
	inputs  []string
	selects []string
}

func (p *scriptedPrompter) Input(msg, def string) (string, error) {
	if len(p.inputs) == 0 {
		return "", errAborted
	}
	answer := p.inputs[0]
	p.inputs = p.inputs[1:]
	return answer, nil
}

func (p *scriptedPrompter) Select(msg string, options []string, def int) (int, error) {
	if len(p.selects) == 0 {
		return 0, errAborted
	}
	want := p.selects[0]
	p.selects = p.selects[1:]
	if want == "" {
		return def, nil
	}
	for i, opt := range options {
		if opt == want {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%q is not offered by %q %v", want, msg, options)
}

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)
	cli := &commandLine{
		out:       out,
		prompt:    new(scriptedPrompter),
		logger:    env.Logger,
		usrRepo:   env.UserRepo,
		memberSvc: env.MemberSvc,
		regionSvc: env.RegionSvc,
	}
	return cli, env, out
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, out := setup(t)

	for _, tt := range []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Contains(t, out.String(), "seedregions -file FILE")
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "3"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_member_npa", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env, _ := setup(t)
	ctx := context.Background()

	existing := testutil.CreateUser(t, env.UserRepo, "Budi Santoso", "budisantoso", "budi@pgri.test", testPassword, []string{user.RoleMember}, false)

	t.Run("missing flags", func(t *testing.T) {
		mockPassword(testPassword)
		tt := cliTest{wantErr: errHelp}
		tt.check(t, cli.run([]string{"admin", "adduser", "-username", "ketuacabang"}))
	})

	t.Run("no password", func(t *testing.T) {
		mockPassword("")
		tt := cliTest{wantErr: errHelp}
		tt.check(t, cli.run([]string{"admin", "adduser", "-username", "ketuacabang", "-email", "ketua@pgri.test"}))
	})

	t.Run("new admin", func(t *testing.T) {
		mockPassword(testPassword)
		err := cli.run([]string{"admin", "adduser", "-name", "Ketua Cabang", "-username", "KetuaCabang", "-email", "ketua@pgri.test", "-admin"})
		if !assert.NoError(t, err) {
			return
		}
		usr, err := env.UserRepo.GetUser(ctx, user.GetFilter{Username: "ketuacabang"})
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "Ketua Cabang", usr.Name)
		assert.Equal(t, "ketua@pgri.test", usr.Email)
		assert.True(t, usr.IsActive)
		assert.True(t, usr.IsAdmin())
		assert.NoError(t, usr.CheckPassword(testPassword))
	})

	t.Run("existing user", func(t *testing.T) {
		mockPassword("Kata-Sandi-Baru-2026")
		err := cli.run([]string{"admin", "adduser", "-username", "budisantoso", "-email", "budi@pgri.test"})
		if !assert.NoError(t, err) {
			return
		}
		usr, err := env.UserRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, existing.Name, usr.Name)
		assert.True(t, usr.IsActive)
		assert.False(t, usr.IsAdmin())
		assert.NoError(t, usr.CheckPassword("Kata-Sandi-Baru-2026"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env, _ := setup(t)

	usr := testutil.CreateUser(t, env.UserRepo, "Budi Santoso", "budisantoso", "budi@pgri.test", testPassword, []string{user.RoleMember}, true)

	tests := []struct {
		cliTest
		pwd string
	}{
		{cliTest: cliTest{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "username but no password", args: []string{"resetpassword", "-username", "budisantoso"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "user not found", args: []string{"resetpassword", "-username", "siapa"}, wantErr: user.ErrNotFound}, pwd: "baru"},
		{cliTest: cliTest{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}}, pwd: "Sandi-Pertama-2026"},
		{cliTest: cliTest{name: "reset with email", args: []string{"resetpassword", "-username", "BUDI@pgri.test"}}, pwd: "Sandi-Kedua-2026"},
	}
	for _, tt := range tests {
		mockPassword(tt.pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if err != nil {
				return
			}
			refreshed, err := env.UserRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			if assert.NoError(t, err) {
				assert.NoError(t, refreshed.CheckPassword(tt.pwd))
			}
		})
	}
}

func Test_commandLine_seedRegions(t *testing.T) {
	cli, env, out := setup(t)
	dir := t.TempDir()

	writeFile := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("os.WriteFile(): %v", err)
		}
		return path
	}
	lampung := writeFile("lampung.yaml", `
- id: 18
  name: Lampung
  regencies:
    - id: 1807
      name: Way Kanan
      districts:
        - id: 180701
          name: Blambangan Umpu
          villages:
            - {id: 1807012001, name: Blambangan Umpu}
`)

	tests := []cliTest{
		{name: "no file flag", args: []string{"seedregions"}, wantErr: errHelp},
		{name: "missing file", args: []string{"seedregions", "-file", filepath.Join(dir, "nope.yaml")}, wantErr: os.ErrNotExist},
		{name: "empty file", args: []string{"seedregions", "-file", writeFile("empty.yaml", "[]")}, wantErrStr: filepath.Join(dir, "empty.yaml") + " has no provinces"},
		{name: "imported", args: []string{"seedregions", "-file", lampung}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr == os.ErrNotExist {
				assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
				return
			}
			tt.check(t, err)
		})
	}

	assert.Contains(t, out.String(), "village    1 imported")
	counts, err := env.RegionSvc.Counts(context.Background())
	if assert.NoError(t, err) {
		assert.Equal(t, map[region.Tier]int{
			region.TierProvince: 3,
			region.TierRegency:  3,
			region.TierDistrict: 3,
			region.TierVillage:  4,
		}, counts)
	}
	regencies, err := env.RegionSvc.Children(context.Background(), region.TierRegency, 18)
	if assert.NoError(t, err) {
		assert.Equal(t, []region.Unit{{ID: 1807, Name: "Way Kanan", ParentID: 18}}, regencies)
	}
}

func Test_commandLine_checkDB(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		cli, env, out := setup(t)
		testutil.CreateMember(t, env.MemberRepo, "Budi Santoso", "budi@pgri.test", 0, "2026.00001")
		testutil.CreateMember(t, env.MemberRepo, "Ani Lestari", "ani@pgri.test", 0, "")

		assert.NoError(t, cli.run([]string{"admin", "checkdb"}))
		assert.Contains(t, out.String(), "database   ok")
		assert.Contains(t, out.String(), "village    3")
		assert.Contains(t, out.String(), "approved   1 members")
		assert.Contains(t, out.String(), "pending    1 members")
	})

	t.Run("database down", func(t *testing.T) {
		cli, _, _ := setup(t)
		down := errors.New("connection refused")
		cli.statusCheck = func(ctx context.Context) error { return down }
		assert.Equal(t, down, errors.Cause(cli.run([]string{"admin", "checkdb"})))
	})

	t.Run("no master data", func(t *testing.T) {
		cli, _, _ := setup(t)
		cli.regionSvc = region.NewService(inmemdb.NewRegionRepository(inmemdb.Open()), 0)
		err := cli.run([]string{"admin", "checkdb"})
		assert.Equal(t, errMasterDataMissing, errors.Cause(err))
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "no province, regency, district, village")
		}
	})
}

func Test_commandLine_setLocation(t *testing.T) {
	cli, env, out := setup(t)
	m := testutil.CreateMember(t, env.MemberRepo, "Budi Santoso", "budi@pgri.test", 0, "")

	t.Run("usage", func(t *testing.T) {
		tt := cliTest{wantErr: errHelp}
		tt.check(t, cli.run([]string{"admin", "setlocation"}))
	})

	t.Run("unknown member", func(t *testing.T) {
		tt := cliTest{wantErr: member.ErrNotFound}
		tt.check(t, cli.run([]string{"admin", "setlocation", "-member", "9999"}))
	})

	t.Run("district without villages offered", func(t *testing.T) {
		cli.prompt = &scriptedPrompter{selects: []string{"", "Ogan Komering Ulu"}}
		err := cli.run([]string{"admin", "setlocation", "-member", strconv.Itoa(m.ID)})
		if assert.Error(t, err) {
			assert.Equal(t, "no district to choose from", err.Error())
		}
	})

	t.Run("moved", func(t *testing.T) {
		cli.prompt = &scriptedPrompter{selects: []string{"", "", "Belitang", "Sidogede"}}
		if !assert.NoError(t, cli.run([]string{"admin", "setlocation", "-member", strconv.Itoa(m.ID)})) {
			return
		}
		got, err := env.MemberSvc.GetByID(context.Background(), m.ID)
		if assert.NoError(t, err) {
			want := region.Selection{ProvinceID: 16, RegencyID: 1608, DistrictID: 160802, VillageID: 1608021001}
			assert.Equal(t, want, got.Location)
		}
		assert.Contains(t, out.String(), "location: Sidogede, Belitang, Ogan Komering Ulu Timur, Sumatera Selatan")
	})

	t.Run("unchanged", func(t *testing.T) {
		cli.prompt = &scriptedPrompter{selects: []string{"", "", "", ""}}
		assert.NoError(t, cli.run([]string{"admin", "setlocation", "-member", strconv.Itoa(m.ID)}))
		assert.Contains(t, out.String(), "location unchanged")
	})
}

// flakyRegions fails the first fetches of one tier.
type flakyRegions struct {
	region.Service

	mu    sync.Mutex
	tier  region.Tier
	fails int
}

func (f *flakyRegions) fail(tier region.Tier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tier != f.tier || f.fails == 0 {
		return nil
	}
	f.fails--
	return errors.New("connection reset by peer")
}

func (f *flakyRegions) Provinces(ctx context.Context) ([]region.Unit, error) {
	if err := f.fail(region.TierProvince); err != nil {
		return nil, err
	}
	return f.Service.Provinces(ctx)
}

func (f *flakyRegions) Children(ctx context.Context, tier region.Tier, parentID int) ([]region.Unit, error) {
	if err := f.fail(tier); err != nil {
		return nil, err
	}
	return f.Service.Children(ctx, tier, parentID)
}

func Test_commandLine_setLocationRetry(t *testing.T) {
	cli, env, out := setup(t)
	m := testutil.CreateMember(t, env.MemberRepo, "Budi Santoso", "budi@pgri.test", 0, "")
	args := []string{"admin", "setlocation", "-member", strconv.Itoa(m.ID)}

	t.Run("retried", func(t *testing.T) {
		cli.regionSvc = &flakyRegions{Service: env.RegionSvc, tier: region.TierDistrict, fails: 2}
		cli.prompt = &scriptedPrompter{selects: []string{"", "", "Retry", "Retry", "Belitang", "Sidogede"}}
		if !assert.NoError(t, cli.run(args)) {
			return
		}
		got, err := env.MemberSvc.GetByID(context.Background(), m.ID)
		if assert.NoError(t, err) {
			want := region.Selection{ProvinceID: 16, RegencyID: 1608, DistrictID: 160802, VillageID: 1608021001}
			assert.Equal(t, want, got.Location)
		}
		assert.Contains(t, out.String(), "! could not load the district options: connection reset by peer")
	})

	t.Run("canceled", func(t *testing.T) {
		cli.regionSvc = &flakyRegions{Service: env.RegionSvc, tier: region.TierVillage, fails: 1}
		cli.prompt = &scriptedPrompter{selects: []string{"", "", "", "Cancel"}}
		assert.Equal(t, errAborted, cli.run(args))
	})

	t.Run("provinces retried", func(t *testing.T) {
		mockPassword(testPassword)
		cli.regionSvc = &flakyRegions{Service: env.RegionSvc, tier: region.TierProvince, fails: 1}
		cli.prompt = &scriptedPrompter{
			inputs: []string{
				"Rina Marlina", "", "", "Martapura", "1991-02-03", "081300011122",
				"rina@pgri.test", "SD Negeri 5 Martapura", "", "",
			},
			selects: []string{"P (perempuan)", "Retry", "Sumatera Selatan", "Ogan Komering Ulu Timur", "Martapura", "Pasar Martapura"},
		}
		assert.NoError(t, cli.run([]string{"admin", "addmember"}))
		assert.Contains(t, out.String(), `member "Rina Marlina" registered`)
	})
}

func Test_commandLine_addMember(t *testing.T) {
	cli, env, out := setup(t)
	mockPassword(testPassword)

	biodata := []string{
		"Dewi Sartika", "", "", "Martapura", "1990-08-17", "0813 7778 8899",
		"Dewi@pgri.test", "SD Negeri 3 Martapura", "Guru Kelas", "",
	}

	t.Run("aborted", func(t *testing.T) {
		cli.prompt = &scriptedPrompter{inputs: biodata[:3]}
		assert.Equal(t, errAborted, cli.run([]string{"admin", "addmember"}))
	})

	t.Run("registered", func(t *testing.T) {
		cli.prompt = &scriptedPrompter{
			inputs:  biodata,
			selects: []string{"P (perempuan)", "Sumatera Selatan", "Ogan Komering Ulu Timur", "Martapura", "Dusun Martapura"},
		}
		if !assert.NoError(t, cli.run([]string{"admin", "addmember"})) {
			return
		}

		members, err := env.MemberSvc.Query(context.Background(), &member.QueryFilter{Search: "Dewi"}, nil)
		if !assert.NoError(t, err) || !assert.Len(t, members, 1) {
			return
		}
		m := members[0]
		assert.Equal(t, member.StatusPending, m.Status)
		assert.Equal(t, member.GenderFemale, m.Gender)
		assert.Equal(t, "dewi@pgri.test", m.Email)
		assert.Equal(t, "081377788899", m.Phone)
		assert.Equal(t, region.Selection{ProvinceID: 16, RegencyID: 1608, DistrictID: 160801, VillageID: 1608011002}, m.Location)
		assert.NotZero(t, m.UserID)
		assert.Contains(t, out.String(), `member "Dewi Sartika" registered`)
	})
}
