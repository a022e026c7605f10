package echoweb

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/activity"
	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/timeslot"
)

func isNotFound(err error) bool {
	switch errors.Cause(err) {
	case account.ErrNotFound, student.ErrNotFound, school.ErrNotFound, grade.ErrNotFound,
		timeslot.ErrNotFound, activity.ErrNotFound:
		return true
	}
	return false
}

// backURL is the referring page when it belongs to this site, "/" otherwise.
func backURL(ctx echo.Context) string {
	ref := ctx.Request().Referer()
	if ref == "" {
		return "/"
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != ctx.Request().Host) {
		return "/"
	}
	if u.Path == ctx.Request().URL.Path && ctx.Request().Method == http.MethodGet {
		return "/"
	}
	back := u.Path
	if back == "" {
		back = "/"
	}
	if u.RawQuery != "" {
		back += "?" + u.RawQuery
	}
	return back
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler turning our errors into flash + redirect.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(s *server, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		var herr error
		origErr := errors.Cause(err)
		switch {
		case origErr == core.ErrUnauthenticated:
			next := ctx.Request().URL.RequestURI()
			target := "/login"
			if ctx.Request().Method == http.MethodGet && next != "/" {
				target += "?next=" + url.QueryEscape(next)
			}
			herr = s.redirectWithFlash(ctx, target, levelWarning, "Please log in to continue.")

		case origErr == core.ErrForbidden:
			herr = s.redirectWithFlash(ctx, backURL(ctx), levelDanger, "You don't have permission for this task.")

		case isNotFound(origErr):
			herr = s.redirectWithFlash(ctx, backURL(ctx), levelWarning, capitalize(origErr.Error())+".")

		case core.IsValidationError(err):
			herr = s.redirectWithFlash(ctx, backURL(ctx), levelDanger, capitalize(origErr.Error())+".")

		default:
			code := http.StatusInternalServerError
			msg := http.StatusText(code)
			if he, ok := origErr.(*echo.HTTPError); ok {
				code = he.Code
				if m, ok := he.Message.(string); ok {
					msg = m
				}
			}
			if code >= http.StatusInternalServerError {
				args := []interface{}{errors.Wrap(err, msg)}
				if acc, ok := getContextAccount(ctx); ok {
					args = append(args, acc.Person())
				}
				s.Logger.Error(msg, args...)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
			if ctx.Echo().Debug {
				msg = err.Error()
			}

			if ctx.Request().Method == http.MethodHead { // Issue #608
				herr = ctx.NoContent(code)
			} else {
				p := s.newPage(ctx, http.StatusText(code))
				p.Data = echo.Map{"Code": code, "Message": msg}
				herr = ctx.Render(code, "error", p)
			}
		}
		if herr != nil {
			ctx.Echo().Logger.Error(herr)
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
