package echoweb

import (
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/escola/core"
)

const flashSession = "escola_flash"

// Flash levels
const (
	levelSuccess = "success"
	levelInfo    = "info"
	levelWarning = "warning"
	levelDanger  = "danger"
)

type Flash struct {
	Level   string
	Message string
}

func newFlashStore(conf *core.Config) sessions.Store {
	store := sessions.NewCookieStore([]byte(conf.SecretKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   0,
		HttpOnly: true,
		Secure:   !(conf.Debug || conf.TestMode),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// addFlash queues a message for the next rendered page.
func (s *server) addFlash(ctx echo.Context, level, msg string) {
	sess, err := s.flashes.Get(ctx.Request(), flashSession)
	if err != nil && sess == nil {
		s.Logger.Warn("loading flash session", err)
		return
	}
	sess.AddFlash(level + "|" + msg)
	if err = sess.Save(ctx.Request(), ctx.Response()); err != nil {
		s.Logger.Warn("saving flash session", err)
	}
}

// popFlashes returns and clears the queued messages; must run before the body is written.
func (s *server) popFlashes(ctx echo.Context) []Flash {
	sess, err := s.flashes.Get(ctx.Request(), flashSession)
	if err != nil && sess == nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err = sess.Save(ctx.Request(), ctx.Response()); err != nil {
		s.Logger.Warn("saving flash session", err)
	}

	flashes := make([]Flash, 0, len(raw))
	for _, r := range raw {
		str, ok := r.(string)
		if !ok {
			continue
		}
		level, msg := levelInfo, str
		if i := strings.Index(str, "|"); i >= 0 {
			level, msg = str[:i], str[i+1:]
		}
		flashes = append(flashes, Flash{Level: level, Message: msg})
	}
	return flashes
}

// redirectWithFlash is the usual outcome of a form post.
func (s *server) redirectWithFlash(ctx echo.Context, url, level, msg string) error {
	s.addFlash(ctx, level, msg)
	return ctx.Redirect(http.StatusSeeOther, url)
}
