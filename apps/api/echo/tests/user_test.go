package tests

import (
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"

	"github.com/pgri-okutimur/anggota/apps/api/echo"
	"github.com/pgri-okutimur/anggota/core/user"
	"github.com/pgri-okutimur/anggota/services/email"
	"github.com/pgri-okutimur/anggota/tests"
)

const testPassword = "Rahasia-Sekali-2026"

func Test_userApi_login(t *testing.T) {
	app := newTestApp(t)

	testutil.CreateUser(t, app.UserRepo, "Budi Santoso", "budisantoso", "budi@pgri.test", testPassword, []string{user.RoleMember}, true)
	testutil.CreateUser(t, app.UserRepo, "Joko Susilo", "jokosusilo", "joko@pgri.test", testPassword, []string{user.RoleMember}, false)

	body := func(uname, pwd string) []byte {
		return marshalObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}
	tests := []httpTest{
		{
			name: "required fields", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, echoapi.LoginRequest{Username: "this field is required", Password: "this field is required"}),
		},
		{
			name: "unknown user", body: body("nobody", testPassword), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: body("budisantoso", "salah"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", body: body("jokosusilo", testPassword), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/users/login"
	}
	app.run(t, tests)

	for _, uname := range []string{"budisantoso", "BUDI@pgri.test"} {
		t.Run("logged in as "+uname, func(t *testing.T) {
			rec := app.do(http.MethodPost, "/api/users/login", "", body(uname, testPassword))
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp echoapi.LoginResponse
			decode(t, rec, &resp)
			assert.NotEmpty(t, resp.Token)
		})
	}
}

func Test_userApi_query(t *testing.T) {
	app := newTestApp(t)

	now := time.Now()
	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	owner := testutil.CreateUser(t, app.UserRepo, "Ketua Cabang", "ketuacabang", "ketua@pgri.test", "", []string{user.RoleAdminOwner}, true, now.Add(1*time.Hour))
	staff := testutil.CreateUser(t, app.UserRepo, "Staf Sekretariat", "stafsekre", "staf@pgri.test", "", []string{user.RoleAdminStaff}, true, now.Add(2*time.Hour))
	budi := testutil.CreateUser(t, app.UserRepo, "Budi Santoso", "budisantoso", "budi@pgri.test", "", []string{user.RoleMember}, true, now.Add(3*time.Hour))
	ani := testutil.CreateUser(t, app.UserRepo, "Ani Lestari", "anilestari", "ani@pgri.test", "", []string{user.RoleMember}, false, now.Add(4*time.Hour))

	ownerToken := getToken(t, owner)

	app.run(t, []httpTest{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "admin required", path: "/api/users", token: getToken(t, budi), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "all", path: "/api/users", token: ownerToken, wantData: marshalList(t, owner, staff, budi, ani)},
		{name: "search (unknown)", path: path("zzz", "", nil), token: ownerToken, wantData: marshalList(t)},
		{name: "search=SANTOSO", path: path("SANTOSO", "", nil), token: ownerToken, wantData: marshalList(t, budi)},
		{name: "role=admin:", path: path("", "", nil, user.RoleAdmin), token: ownerToken, wantData: marshalList(t, owner, staff)},
		{name: "role=member:", path: path("", "", nil, user.RoleMember), token: ownerToken, wantData: marshalList(t, budi, ani)},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: ownerToken, wantData: marshalList(t, ani)},
		{name: "order by -created_at", path: path("", "-created_at", nil), token: ownerToken, wantData: marshalList(t, ani, budi, staff, owner)},
		{name: "order by name", path: path("", "name", nil), token: ownerToken, wantData: marshalList(t, ani, budi, owner, staff)},
		{
			name: "filtering & ordering", path: path("", "-name", bPtr(true), user.RoleMember, user.RoleAdminStaff), token: ownerToken,
			wantData: marshalList(t, staff, budi),
		},
	})
}

func Test_userApi_retrieveAndDestroy(t *testing.T) {
	app := newTestApp(t)

	owner := testutil.CreateUser(t, app.UserRepo, "Ketua Cabang", "ketuacabang", "ketua@pgri.test", "", []string{user.RoleAdminOwner}, true)
	staff := testutil.CreateUser(t, app.UserRepo, "Staf Sekretariat", "stafsekre", "staf@pgri.test", "", []string{user.RoleAdminStaff}, true)
	budi := testutil.CreateUser(t, app.UserRepo, "Budi Santoso", "budisantoso", "budi@pgri.test", "", []string{user.RoleMember}, true)
	ani := testutil.CreateUser(t, app.UserRepo, "Ani Lestari", "anilestari", "ani@pgri.test", "", []string{user.RoleMember}, true)

	detail := func(usr user.User) string { return "/api/users/" + strconv.Itoa(usr.ID) }
	notFound := marshalObj(t, httpErr{Error: "not found"})
	forbidden := marshalObj(t, httpErr{Error: "permission denied"})

	app.run(t, []httpTest{
		{name: "self", path: detail(budi), token: getToken(t, budi), wantData: marshalObj(t, budi)},
		{name: "someone else", path: detail(ani), token: getToken(t, budi), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "admin", path: detail(ani), token: getToken(t, staff), wantData: marshalObj(t, ani)},
		{name: "unknown id", path: "/api/users/9999", token: getToken(t, owner), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "malformed id", path: "/api/users/abc", token: getToken(t, owner), wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "member cannot delete", method: http.MethodDelete, path: detail(budi), token: getToken(t, budi),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "cannot delete self", method: http.MethodDelete, path: detail(owner), token: getToken(t, owner),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "cannot delete higher role", method: http.MethodDelete, path: detail(owner), token: getToken(t, staff),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{name: "deleted", method: http.MethodDelete, path: detail(ani), token: getToken(t, staff), wantCode: http.StatusNoContent},
		{name: "gone", path: detail(ani), token: getToken(t, staff), wantCode: http.StatusNotFound, wantData: notFound},
	})
}

func Test_userApi_update(t *testing.T) {
	app := newTestApp(t)

	owner := testutil.CreateUser(t, app.UserRepo, "Ketua Cabang", "ketuacabang", "ketua@pgri.test", "", []string{user.RoleAdminOwner}, true)
	staff := testutil.CreateUser(t, app.UserRepo, "Staf Sekretariat", "stafsekre", "staf@pgri.test", "", []string{user.RoleAdminStaff}, true)
	budi := testutil.CreateUser(t, app.UserRepo, "Budi Santoso", "budisantoso", "budi@pgri.test", "", []string{user.RoleMember}, true)
	path := "/api/users/" + strconv.Itoa(budi.ID)

	t.Run("member cannot change roles", func(t *testing.T) {
		rec := app.do(http.MethodPut, path, getToken(t, budi), marshalObj(t, user.UpdateUser{Roles: []string{user.RoleAdminOwner}}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("staff cannot grant owner", func(t *testing.T) {
		rec := app.do(http.MethodPut, path, getToken(t, staff), marshalObj(t, user.UpdateUser{Roles: []string{user.RoleAdminOwner}}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"roles": "not enough rights to set these roles"}`, rec.Body.String())
	})

	t.Run("member renames self", func(t *testing.T) {
		rec := app.do(http.MethodPut, path, getToken(t, budi), marshalObj(t, user.UpdateUser{Name: "Budi S."}))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got user.User
		decode(t, rec, &got)
		assert.Equal(t, "Budi S.", got.Name)
		assert.Equal(t, budi.Username, got.Username)
	})

	t.Run("owner deactivates", func(t *testing.T) {
		rec := app.do(http.MethodPut, path, getToken(t, owner), marshalObj(t, user.UpdateUser{IsActive: new(bool)}))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got user.User
		decode(t, rec, &got)
		assert.False(t, got.IsActive)
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	app := newTestApp(t)

	naughty := testutil.CreateUser(t, app.UserRepo, "Joko Susilo", "jokosusilo", "joko@pgri.test", "", []string{user.RoleMember}, false)
	budi := testutil.CreateUser(t, app.UserRepo, "Budi Santoso", "budisantoso", "budi@pgri.test", "", []string{user.RoleMember}, true)

	now := time.Now()
	oldClaims := echoapi.GetUserClaims(budi, now.Add(-2*app.Conf.Server.JWTRefreshExpirationDelta).Unix())
	oldClaims.StandardClaims = jwt.StandardClaims{
		Issuer:    app.Conf.AppName,
		Subject:   strconv.Itoa(budi.ID),
		ExpiresAt: now.Add(app.Conf.Server.JWTExpirationDelta).Unix(),
		IssuedAt:  now.Unix(),
	}
	unrefreshableToken, err := echoapi.GenerateToken(oldClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "inactive user", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"})},
		{name: "refresh expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "refresh has expired"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/users/token-refresh"
	}
	app.run(t, tests)

	t.Run("refreshed", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/users/token-refresh", getToken(t, budi))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.LoginResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})
}

func Test_userApi_resetPassword(t *testing.T) {
	app := newTestApp(t)

	budi := testutil.CreateUser(t, app.UserRepo, "Budi Santoso", "budisantoso", "budi@pgri.test", "", []string{user.RoleMember}, true)
	success := marshalObj(t, echoapi.SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})

	tests := []httpTest{
		{
			name: "required fields", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, echoapi.PasswordResetRequest{Email: "this field is required"}),
		},
		{
			name: "invalid email", body: marshalObj(t, echoapi.PasswordResetRequest{Email: "budi"}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{name: "unknown email", body: marshalObj(t, echoapi.PasswordResetRequest{Email: "siapa@pgri.test"}), wantData: success},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/users/password-reset"
	}
	app.run(t, tests)
	assert.Empty(t, emailsvc.SentMessages)

	t.Run("known email", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/users/password-reset", "", marshalObj(t, echoapi.PasswordResetRequest{Email: "BUDI@pgri.test"}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, string(success), rec.Body.String())
		if msgs := emailsvc.MessagesTo(budi.Email); assert.Len(t, msgs, 1) {
			assert.Equal(t, "password_reset", msgs[0].TemplateName)
		}
	})
}
