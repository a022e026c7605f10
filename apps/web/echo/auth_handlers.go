package echoweb

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/services/metrics"
)

type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
	Next     string `form:"next" query:"next"`
}

type passwordResetForm struct {
	Email string `form:"email"`
}

func (s *server) registerAuthRoutes() {
	s.app.GET("/login", s.loginPage)
	s.app.POST("/login", s.login)
	s.app.POST("/logout", s.logout)
	s.app.GET("/password-reset", s.passwordResetPage)
	s.app.POST("/password-reset", s.requestPasswordReset)
	s.app.GET("/password-reset/confirm", s.passwordResetConfirmPage)
	s.app.POST("/password-reset/confirm", s.confirmPasswordReset)
}

// safeNext only follows local paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (s *server) loginPage(ctx echo.Context) error {
	if _, ok := getContextAccount(ctx); ok {
		return ctx.Redirect(http.StatusSeeOther, "/")
	}
	p := s.newPage(ctx, "Log in")
	p.Form = loginForm{Next: ctx.QueryParam("next")}
	return s.renderOK(ctx, "login", p)
}

func (s *server) login(ctx echo.Context) error {
	var form loginForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to loginForm")
	}
	form.Email = core.CleanString(form.Email, true /* lower */)

	acc, err := s.AccountSvc.Authenticate(ctx.Request().Context(), form.Email, form.Password)
	metrics.ObserveLogin(err == nil)
	if err != nil {
		if errors.Cause(err) != account.ErrInvalidCredentials {
			return errors.Wrap(err, "authenticating")
		}
		p := s.newPage(ctx, "Log in")
		p.Form = loginForm{Email: form.Email, Next: form.Next}
		p.Flashes = []Flash{{Level: levelDanger, Message: "Invalid credentials or inactive account."}}
		return s.render(ctx, http.StatusBadRequest, "login", p)
	}

	if err = s.startSession(ctx, acc); err != nil {
		return err
	}
	return s.redirectWithFlash(ctx, safeNext(form.Next), levelSuccess, "Welcome, "+acc.Name+".")
}

func (s *server) logout(ctx echo.Context) error {
	if acc, ok := getContextAccount(ctx); ok {
		if claims, ok := getContextClaims(ctx); ok {
			if err := s.Tracker.End(ctx.Request().Context(), claims.Id, acc.ID); err != nil {
				s.Logger.Warn("ending presence session", err, acc.Person())
			}
		}
	}
	s.clearSessionCookie(ctx)
	return s.redirectWithFlash(ctx, "/login", levelInfo, "You have been logged out.")
}

func (s *server) passwordResetPage(ctx echo.Context) error {
	p := s.newPage(ctx, "Reset password")
	p.Form = passwordResetForm{}
	return s.renderOK(ctx, "password_reset", p)
}

// requestPasswordReset never tells whether the email belongs to an account.
func (s *server) requestPasswordReset(ctx echo.Context) error {
	var form passwordResetForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to passwordResetForm")
	}
	form.Email = core.CleanString(form.Email, true /* lower */)

	p := s.newPage(ctx, "Reset password")
	p.Form = form
	if form.Email == "" {
		p.Errors["email"] = "email is required"
		return s.render(ctx, http.StatusBadRequest, "password_reset", p)
	}

	link, err := s.AccountSvc.RequestPasswordReset(ctx.Request().Context(), form.Email)
	switch cause := errors.Cause(err); {
	case err == nil, cause == account.ErrNotFound:
	case cause == account.ErrDeliveryFailed:
		s.Logger.Warn("delivering password reset email", err)
		if s.Conf.Debug {
			p.Data = echo.Map{"Link": link}
		}
	default:
		return errors.Wrap(err, "requesting password reset")
	}

	p.Flashes = []Flash{{
		Level:   levelInfo,
		Message: "If an active account uses this email, a password reset link has been sent to it.",
	}}
	return s.renderOK(ctx, "password_reset", p)
}

func (s *server) passwordResetConfirmPage(ctx echo.Context) error {
	p := s.newPage(ctx, "Choose a new password")
	p.Form = account.ResetPassword{UID: ctx.QueryParam("uid"), Token: ctx.QueryParam("token")}
	return s.renderOK(ctx, "password_reset_confirm", p)
}

func (s *server) confirmPasswordReset(ctx echo.Context) error {
	var form account.ResetPassword
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to ResetPassword")
	}
	if err := s.AccountSvc.ResetPassword(ctx.Request().Context(), form); err != nil {
		if !core.IsValidationError(err) {
			return errors.Wrap(err, "resetting password")
		}
		p := s.newPage(ctx, "Choose a new password")
		p.Form = account.ResetPassword{UID: form.UID, Token: form.Token}
		return s.renderInvalid(ctx, "password_reset_confirm", p, err)
	}
	return s.redirectWithFlash(ctx, "/login", levelSuccess, "Your password has been reset. You may now log in.")
}
