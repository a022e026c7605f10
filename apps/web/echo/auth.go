package echoweb

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/presence"
)

const (
	sessionCookie     = "escola_session"
	contextAccountKey = "account"
	contextClaimsKey  = "claims"
)

var (
	signingMethod = jwt.SigningMethodHS256
	errBadToken   = errors.New("invalid session token")

	nowFunc = time.Now // mockable
)

// Claims represents the session claims carried by the session cookie.
// Subject is the account ID and Id the presence session token.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64 `json:"oriat,omitempty"`
}

func (s *server) newClaims(acc account.Account, sessionToken string, origIat ...int64) *Claims {
	now := nowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    s.Conf.AppName,
			Subject:   strconv.FormatInt(acc.ID, 10),
			Id:        sessionToken,
			ExpiresAt: now.Add(s.Conf.Server.SessionTTL).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
	}
}

// generateToken signs the claims with the secret key.
func (s *server) generateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(signingMethod, claims)
	ss, err := token.SignedString([]byte(s.Conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (s *server) parseToken(raw string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, errBadToken
		}
		return []byte(s.Conf.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, errBadToken
	}
	return claims, nil
}

func (s *server) setSessionCookie(ctx echo.Context, claims *Claims) error {
	token, err := s.generateToken(claims)
	if err != nil {
		return err
	}
	ctx.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Unix(claims.ExpiresAt, 0),
		HttpOnly: true,
		Secure:   !(s.Conf.Debug || s.Conf.TestMode),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *server) clearSessionCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// startSession records the presence session then issues the session cookie.
func (s *server) startSession(ctx echo.Context, acc account.Account) error {
	sess, err := s.Tracker.Start(ctx.Request().Context(), acc.ID)
	if err != nil {
		return errors.Wrap(err, "starting presence session")
	}
	return s.setSessionCookie(ctx, s.newClaims(acc, sess.Token))
}

// loadSession resolves the account behind the session cookie, if any, refreshing its presence.
// Invalid cookies, missing and inactive accounts leave the request anonymous.
func (s *server) loadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		cookie, err := ctx.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			return next(ctx)
		}
		claims, err := s.parseToken(cookie.Value)
		if err != nil {
			s.clearSessionCookie(ctx)
			return next(ctx)
		}
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			s.clearSessionCookie(ctx)
			return next(ctx)
		}

		reqCtx := ctx.Request().Context()
		acc, err := s.AccountSvc.GetByID(reqCtx, id)
		if err != nil {
			if errors.Cause(err) != account.ErrNotFound {
				return errors.Wrap(err, "loading session account")
			}
			s.clearSessionCookie(ctx)
			return next(ctx)
		}
		if !acc.IsActive {
			_ = s.Tracker.End(reqCtx, claims.Id, acc.ID)
			s.clearSessionCookie(ctx)
			return next(ctx)
		}

		if err = s.Tracker.Touch(reqCtx, claims.Id); err != nil && errors.Cause(err) != presence.ErrUntracked {
			s.Logger.Warn("touching presence session", err, acc.Person())
		}
		s.maybeRefresh(ctx, acc, claims)

		ctx.Set(contextAccountKey, acc)
		ctx.Set(contextClaimsKey, claims)
		return next(ctx)
	}
}

// maybeRefresh re-issues the cookie once half its lifetime has passed, until the max session age.
func (s *server) maybeRefresh(ctx echo.Context, acc account.Account, claims *Claims) {
	now := nowFunc()
	halfLife := time.Unix(claims.IssuedAt, 0).Add(s.Conf.Server.SessionTTL / 2)
	maxAge := time.Unix(claims.OrigIssuedAt, 0).Add(s.Conf.Server.SessionMaxAge)
	if now.Before(halfLife) || now.After(maxAge) {
		return
	}
	if err := s.setSessionCookie(ctx, s.newClaims(acc, claims.Id, claims.OrigIssuedAt)); err != nil {
		s.Logger.Warn("refreshing session cookie", err, acc.Person())
	}
}

func getContextAccount(ctx echo.Context) (account.Account, bool) {
	acc, ok := ctx.Get(contextAccountKey).(account.Account)
	return acc, ok
}

func getContextClaims(ctx echo.Context) (*Claims, bool) {
	claims, ok := ctx.Get(contextClaimsKey).(*Claims)
	return claims, ok
}

func (s *server) requireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, ok := getContextAccount(ctx); !ok {
			return core.ErrUnauthenticated
		}
		return next(ctx)
	}
}

// requireAction lets the request through only if the logged in account may perform `action`.
func (s *server) requireAction(action access.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			acc, ok := getContextAccount(ctx)
			if !ok {
				return core.ErrUnauthenticated
			}
			allowed, err := s.Authorizer.Can(ctx.Request().Context(), &acc, action)
			if err != nil {
				return errors.Wrap(err, "checking permission")
			}
			if !allowed {
				return core.ErrForbidden
			}
			return next(ctx)
		}
	}
}

// can reports, for templates, which of `actions` the logged in account may perform.
func (s *server) can(ctx echo.Context, actions ...access.Action) map[string]bool {
	perms := make(map[string]bool, len(actions))
	acc, ok := getContextAccount(ctx)
	if !ok {
		return perms
	}
	for _, action := range actions {
		allowed, err := s.Authorizer.Can(ctx.Request().Context(), &acc, action)
		if err != nil {
			s.Logger.Error("checking permission", err, acc.Person())
			continue
		}
		perms[action.Name] = allowed
	}
	return perms
}

func scopeOf(ctx echo.Context) access.Scope {
	acc, _ := getContextAccount(ctx)
	return access.ScopeFor(acc)
}
