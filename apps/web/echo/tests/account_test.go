package tests

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/apps/web/echo"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/tests"
)

func Test_web_accounts(t *testing.T) {
	resetDB(t)

	ana := testutil.CreateStudent(t, studentRepo, "Ana Alves")
	dir := testutil.CreateAccount(t, accRepo, "Dina Director", "dina@escola.test", account.RoleDirector, true)
	teacher := testutil.CreateAccount(t, accRepo, "Tom Teacher", "tom@escola.test", account.RoleTeacher, true)
	testutil.CreateAccount(t, accRepo, "Olga Other", "olga@escola.test", account.RoleDirector, true)
	testutil.Grant(t, accessRepo, teacher.ID, access.SchoolCreate, access.StudentCreate)

	dirC, teacherC := login(t, dir.Email), login(t, teacher.Email)
	dirPath := "/accounts/" + strconv.FormatInt(dir.ID, 10)
	teacherPath := "/accounts/" + strconv.FormatInt(teacher.ID, 10)

	newAcc := func(name, email, pwd, role string, studentID int64) url.Values {
		return url.Values{
			"name":             {name},
			"email":            {email},
			"password":         {pwd},
			"password_confirm": {pwd},
			"role":             {role},
			"student_id":       {strconv.FormatInt(studentID, 10)},
		}
	}

	tests := []httpTest{
		{name: "Teachers cannot manage accounts", client: teacherC, path: "/accounts", wantCode: http.StatusSeeOther, wantFlash: forbidden},
		{name: "No accounts link for teachers", client: teacherC, path: "/", notBody: []string{`href="/accounts"`}},
		{name: "Director list", client: dirC, path: "/accounts", wantBody: []string{"Olga Other", "Tom Teacher", "SCHOOL_CREATE"}},
		{name: "Filter by role", client: dirC, path: "/accounts?role=teacher", wantBody: []string{"Tom Teacher"}, notBody: []string{"Olga Other", "olga@escola.test"}},
		{
			name: "Short password", client: dirC, method: http.MethodPost, path: "/accounts/new",
			form:     newAcc("Nia New", "nia@escola.test", "k1wi", "teacher", 0),
			wantCode: http.StatusBadRequest, wantBody: []string{"password must contain at least 8 characters"},
		},
		{
			name: "Password without digit", client: dirC, method: http.MethodPost, path: "/accounts/new",
			form:     newAcc("Nia New", "nia@escola.test", "Kiwi-Basket", "teacher", 0),
			wantCode: http.StatusBadRequest, wantBody: []string{"password must contain at least 1 digit"},
		},
		{
			name: "Confirmation mismatch", client: dirC, method: http.MethodPost, path: "/accounts/new",
			form: url.Values{
				"name": {"Nia New"}, "email": {"nia@escola.test"}, "role": {"teacher"},
				"password": {testutil.DefaultPassword}, "password_confirm": {testutil.DefaultPassword + "x"},
			},
			wantCode: http.StatusBadRequest, wantBody: []string{"the two password fields"},
		},
		{
			name: "Bad email", client: dirC, method: http.MethodPost, path: "/accounts/new",
			form:     newAcc("Nia New", "nia-at-escola", testutil.DefaultPassword, "teacher", 0),
			wantCode: http.StatusBadRequest, wantBody: []string{`class="error"`},
		},
		{
			name: "Email taken, any case", client: dirC, method: http.MethodPost, path: "/accounts/new",
			form:     newAcc("Tom Two", "TOM@escola.test", testutil.DefaultPassword, "teacher", 0),
			wantCode: http.StatusBadRequest, wantBody: []string{"an account with this email already exists"},
		},
		{
			name: "Guardian needs a student", client: dirC, method: http.MethodPost, path: "/accounts/new",
			form:     newAcc("Gil Guardian", "gil@escola.test", testutil.DefaultPassword, "guardian", 0),
			wantCode: http.StatusBadRequest, wantBody: []string{"guardian and student accounts must be linked to a student"},
		},
		{
			name: "Guardian linked to a missing student", client: dirC, method: http.MethodPost, path: "/accounts/new",
			form:     newAcc("Gil Guardian", "gil@escola.test", testutil.DefaultPassword, "guardian", 987654),
			wantCode: http.StatusBadRequest, wantBody: []string{"linked student does not exist"},
		},
		{
			name: "Guardian created", client: dirC, method: http.MethodPost, path: "/accounts/new",
			form:     newAcc("Gil Guardian", "gil@escola.test", testutil.DefaultPassword, "guardian", ana.ID),
			wantCode: http.StatusSeeOther, wantLocation: "/accounts", wantFlash: "Account gil@escola.test created.",
		},
		{
			name: "Teacher created", client: dirC, method: http.MethodPost, path: "/accounts/new",
			form:     newAcc("Nia New", " Nia@Escola.test ", testutil.DefaultPassword, "teacher", 0),
			wantCode: http.StatusSeeOther, wantFlash: "Account nia@escola.test created.",
		},
		{
			name: "Own role is fixed", client: dirC, method: http.MethodPost, path: dirPath + "/edit",
			form:     url.Values{"name": {"Dina Director"}, "email": {dir.Email}, "role": {"teacher"}},
			wantCode: http.StatusBadRequest, wantBody: []string{"you cannot change your own role"},
		},
		{
			name: "Own account cannot be deactivated", client: dirC, method: http.MethodPost, path: dirPath + "/toggle-active",
			wantCode: http.StatusSeeOther, wantFlash: "You cannot delete or deactivate your own account.",
		},
		{
			name: "Own account cannot be deleted", client: dirC, method: http.MethodPost, path: dirPath + "/delete",
			wantCode: http.StatusSeeOther, wantFlash: "You cannot delete or deactivate your own account.",
		},
		{
			name: "Director grants are not editable", client: dirC, path: dirPath + "/permissions",
			wantCode: http.StatusSeeOther, wantFlash: "Directors hold every permission",
		},
		{
			name: "Unknown permission code", client: dirC, method: http.MethodPost, path: teacherPath + "/permissions",
			form:     url.Values{"codes": {"SCHOOL_CREATE", "BOGUS"}},
			wantCode: http.StatusBadRequest, wantBody: []string{"unknown permission code: BOGUS"},
		},
		{name: "Unknown account", client: dirC, path: "/accounts/999999/edit", wantCode: http.StatusSeeOther, wantFlash: "Account not found."},
	}
	runHTTPTests(t, tests)

	t.Run("New teachers get the default grants", func(t *testing.T) {
		nia, err := accRepo.GetAccountByEmail(context.Background(), "nia@escola.test")
		require.NoError(t, err)
		codes, err := accessSvc.Grants(context.Background(), nia.ID)
		require.NoError(t, err)
		assert.Equal(t, []access.Code{access.ActivityCreate}, codes)

		gil, err := accRepo.GetAccountByEmail(context.Background(), "gil@escola.test")
		require.NoError(t, err)
		codes, err = accessSvc.Grants(context.Background(), gil.ID)
		require.NoError(t, err)
		assert.Empty(t, codes)
		assert.Equal(t, ana.ID, gil.StudentID.Int64)
	})

	t.Run("Permission set is replaced", func(t *testing.T) {
		page := dirC.get(teacherPath + "/permissions")
		require.Equal(t, http.StatusOK, page.Code)
		assert.Contains(t, page.Body.String(), `value="SCHOOL_CREATE" checked`)

		rec := dirC.post(teacherPath+"/permissions", url.Values{"codes": {"SCHOOL_CREATE", "GRADE_CREATE"}})
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Contains(t, dirC.follow(rec).Body.String(), "Permissions of Tom Teacher updated.")

		codes, err := accessSvc.Grants(context.Background(), teacher.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []access.Code{access.SchoolCreate, access.GradeCreate}, codes)

		// teacher picks up the new grant on their next request
		assert.Contains(t, teacherC.get("/grades").Body.String(), "New grade")
		assert.NotContains(t, teacherC.get("/students").Body.String(), "New student")

		rec = dirC.post(teacherPath+"/permissions", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		codes, err = accessSvc.Grants(context.Background(), teacher.ID)
		require.NoError(t, err)
		assert.Empty(t, codes)
	})

	t.Run("Edit keeps the password when left empty", func(t *testing.T) {
		rec := dirC.post(teacherPath+"/edit", url.Values{
			"name": {"Tom Tutor"}, "email": {teacher.Email}, "role": {"teacher"},
		})
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Contains(t, dirC.follow(rec).Body.String(), "Tom Tutor")
		login(t, teacher.Email)
	})

	t.Run("Deactivating logs the account out", func(t *testing.T) {
		rec := dirC.post(teacherPath+"/toggle-active", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		page := dirC.follow(rec).Body.String()
		assert.Contains(t, page, "Account tom@escola.test deactivated.")
		assert.Equal(t, 1, countOccurrences(page, `class="online"`), "only the director is still online")
		assert.Equal(t, http.StatusSeeOther, teacherC.get("/").Code)

		rec = dirC.post(teacherPath+"/toggle-active", nil)
		assert.Contains(t, dirC.follow(rec).Body.String(), "Account tom@escola.test activated.")
	})

	t.Run("Deleting an account drops its grants", func(t *testing.T) {
		testutil.Grant(t, accessRepo, teacher.ID, access.SchoolEdit)

		rec := dirC.post(teacherPath+"/delete", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Contains(t, dirC.follow(rec).Body.String(), "Account deleted.")

		_, err := accRepo.GetAccountByID(context.Background(), teacher.ID)
		assert.Error(t, err)
		all, err := accessSvc.AllGrants(context.Background())
		require.NoError(t, err)
		assert.NotContains(t, all, teacher.ID)
	})
}

func Test_web_healthz(t *testing.T) {
	rec := newClient(t).get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	t.Run("Repeated ping failures stop the server", func(t *testing.T) {
		down := true
		d := *deps
		d.PingDB = func(context.Context) error {
			if down {
				return errors.New("connection refused")
			}
			return nil
		}
		sig := make(chan os.Signal, 1)
		srv := echoweb.NewServer("", sig, &d)
		ping := func() int {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			return rec.Code
		}

		for i := 1; i < conf.Server.MaxPingFailures; i++ {
			assert.Equal(t, http.StatusServiceUnavailable, ping())
		}
		down = false
		assert.Equal(t, http.StatusOK, ping(), "a successful ping resets the count")
		down = true
		for i := 1; i < conf.Server.MaxPingFailures; i++ {
			assert.Equal(t, http.StatusServiceUnavailable, ping())
		}
		assert.Empty(t, sig)

		assert.Equal(t, http.StatusInternalServerError, ping())
		select {
		case s := <-sig:
			assert.Equal(t, os.Interrupt, s)
		default:
			t.Fatal("shutdown was not signalled")
		}
	})
}
