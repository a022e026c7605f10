package tests

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/tests"
)

func Test_web_login(t *testing.T) {
	resetDB(t)

	testutil.CreateAccount(t, accRepo, "Dina Director", "dina@escola.test", account.RoleDirector, true)
	testutil.CreateAccount(t, accRepo, "Ivo Inactive", "ivo@escola.test", account.RoleTeacher, false)

	creds := func(email, pwd, next string) url.Values {
		v := url.Values{"email": {email}, "password": {pwd}}
		if next != "" {
			v.Set("next", next)
		}
		return v
	}

	tests := []httpTest{
		{name: "Login page", path: "/login", wantBody: []string{`name="email"`, `name="password"`}},
		{name: "Anonymous home", path: "/", wantCode: http.StatusSeeOther, wantLocation: "/login", wantFlash: "Please log in to continue."},
		{name: "Anonymous page", path: "/students", wantCode: http.StatusSeeOther, wantLocation: "/login?next=%2Fstudents"},
		{
			name: "Unknown email", method: http.MethodPost, path: "/login", form: creds("nobody@escola.test", testutil.DefaultPassword, ""),
			wantCode: http.StatusBadRequest, wantBody: []string{"Invalid credentials or inactive account."},
		},
		{
			name: "Wrong password", method: http.MethodPost, path: "/login", form: creds("dina@escola.test", "nope-nope-1", ""),
			wantCode: http.StatusBadRequest, wantBody: []string{"Invalid credentials or inactive account.", "dina@escola.test"},
		},
		{
			name: "Inactive account", method: http.MethodPost, path: "/login", form: creds("ivo@escola.test", testutil.DefaultPassword, ""),
			wantCode: http.StatusBadRequest, wantBody: []string{"Invalid credentials or inactive account."},
		},
		{
			name: "Logged in", method: http.MethodPost, path: "/login", form: creds("DINA@escola.test ", testutil.DefaultPassword, ""),
			wantCode: http.StatusSeeOther, wantLocation: "/", wantFlash: "Welcome, Dina Director.",
		},
		{
			name: "Next followed", method: http.MethodPost, path: "/login", form: creds("dina@escola.test", testutil.DefaultPassword, "/students?q=a"),
			wantCode: http.StatusSeeOther, wantLocation: "/students?q=a",
		},
		{
			name: "Foreign next ignored", method: http.MethodPost, path: "/login", form: creds("dina@escola.test", testutil.DefaultPassword, "//evil.test/x"),
			wantCode: http.StatusSeeOther, wantLocation: "/",
		},
	}
	runHTTPTests(t, tests)
}

func Test_web_sessions(t *testing.T) {
	resetDB(t)

	dir := testutil.CreateAccount(t, accRepo, "Dina Director", "dina@escola.test", account.RoleDirector, true)
	teacher := testutil.CreateAccount(t, accRepo, "Tom Teacher", "tom@escola.test", account.RoleTeacher, true)

	t.Run("Logout ends the session", func(t *testing.T) {
		c := login(t, dir.Email)
		rec := c.get("/")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = c.post("/logout", nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
		assert.Contains(t, c.follow(rec).Body.String(), "You have been logged out.")

		rec = c.get("/")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("Deactivated account loses its session", func(t *testing.T) {
		c := login(t, teacher.Email)
		require.Equal(t, http.StatusOK, c.get("/").Code)

		teacher.IsActive = false
		_, err := accRepo.UpdateAccount(context.Background(), teacher)
		require.NoError(t, err)

		rec := c.get("/")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("Deleted account loses its session", func(t *testing.T) {
		other := testutil.CreateAccount(t, accRepo, "Gil Guardian", "gil@escola.test", account.RoleTeacher, true)
		c := login(t, other.Email)
		require.Equal(t, http.StatusOK, c.get("/").Code)

		require.NoError(t, accRepo.DeleteAccount(context.Background(), other.ID))
		assert.Equal(t, http.StatusSeeOther, c.get("/").Code)
	})

	t.Run("Forged cookie is ignored", func(t *testing.T) {
		c := newClient(t)
		c.cookies["escola_session"] = &http.Cookie{Name: "escola_session", Value: "not.a.jwt"}
		rec := c.get("/")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Empty(t, c.cookies["escola_session"])
	})
}

func Test_web_passwordReset(t *testing.T) {
	resetDB(t)

	acc := testutil.CreateAccount(t, accRepo, "Tom Teacher", "tom@escola.test", account.RoleTeacher, true)
	testutil.CreateAccount(t, accRepo, "Ivo Inactive", "ivo@escola.test", account.RoleTeacher, false)
	generic := "If an active account uses this email, a password reset link has been sent to it."

	t.Run("Unknown and inactive emails look the same", func(t *testing.T) {
		for _, email := range []string{"nobody@escola.test", "ivo@escola.test"} {
			rec := newClient(t).post("/password-reset", url.Values{"email": {email}})
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), generic)
		}
		assert.Empty(t, mailSvc.Sent())
	})

	t.Run("Email required", func(t *testing.T) {
		rec := newClient(t).post("/password-reset", url.Values{"email": {"  "}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "email is required")
	})

	t.Run("Link shown when delivery fails in debug", func(t *testing.T) {
		mailSvc.FailWith(errors.New("smtp down"))
		defer mailSvc.FailWith(nil)

		rec := newClient(t).post("/password-reset", url.Values{"email": {acc.Email}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), generic)
		assert.Contains(t, rec.Body.String(), "/password-reset/confirm?")
	})

	t.Run("Reset then log in with the new password", func(t *testing.T) {
		mailSvc.Reset()
		rec := newClient(t).post("/password-reset", url.Values{"email": {acc.Email}})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "/password-reset/confirm?")

		sent := mailSvc.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, acc.Email, sent[0].To[0].Address)
		link, err := url.Parse(sent[0].TemplateData.(map[string]string)["Link"])
		require.NoError(t, err)
		uid, token := link.Query().Get("uid"), link.Query().Get("token")

		c := newClient(t)
		page := c.get("/password-reset/confirm?" + link.RawQuery)
		require.Equal(t, http.StatusOK, page.Code)
		assert.Contains(t, page.Body.String(), token)

		rec = c.post("/password-reset/confirm", url.Values{
			"uid": {uid}, "token": {token}, "password": {"Mango-77-Sunrise"}, "password_confirm": {"Mango-77-Sunris"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = c.post("/password-reset/confirm", url.Values{
			"uid": {uid}, "token": {token}, "password": {"Mango-77-Sunrise"}, "password_confirm": {"Mango-77-Sunrise"},
		})
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
		assert.Contains(t, c.follow(rec).Body.String(), "Your password has been reset.")

		// the token is bound to the old password hash
		rec = c.post("/password-reset/confirm", url.Values{
			"uid": {uid}, "token": {token}, "password": {"Papaya-88-Sunset"}, "password_confirm": {"Papaya-88-Sunset"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "the password reset link is invalid or has expired")

		rec = newClient(t).post("/login", url.Values{"email": {acc.Email}, "password": {"Mango-77-Sunrise"}})
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})
}

func Test_web_presence(t *testing.T) {
	resetDB(t)

	dir := testutil.CreateAccount(t, accRepo, "Dina Director", "dina@escola.test", account.RoleDirector, true)
	teacher := testutil.CreateAccount(t, accRepo, "Tom Teacher", "tom@escola.test", account.RoleTeacher, true)
	idle := testutil.CreateAccount(t, accRepo, "Ida Idle", "ida@escola.test", account.RoleTeacher, true)

	c := login(t, dir.Email)
	tc := login(t, teacher.Email)
	require.Equal(t, http.StatusOK, tc.get("/").Code)

	_, err := sessionRepo.CreateSession(context.Background(), staleSession(idle.ID, 20*time.Minute))
	require.NoError(t, err)

	rec := c.get("/accounts")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, 2, countOccurrences(body, `class="online"`), "director and teacher are online")
	assert.Equal(t, 1, countOccurrences(body, `class="offline"`), "the idle account is offline")

	// logging out takes the teacher offline at once
	tc.post("/logout", nil)
	rec = c.get("/accounts")
	assert.Equal(t, 1, countOccurrences(rec.Body.String(), `class="online"`))
}
