package echoweb

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/activity"
	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/presence"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/timeslot"
	"github.com/trezcool/escola/services/media"
	"github.com/trezcool/escola/services/metrics"
)

type (
	// Deps holds everything the handlers need; built once in main.
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		AccountSvc  *account.Service
		AccessSvc   *access.Service
		Authorizer  *access.Authorizer
		Tracker     *presence.Tracker
		SchoolSvc   *school.Service
		GradeSvc    *grade.Service
		TimeSlotSvc *timeslot.Service
		StudentSvc  *student.Service
		ActivitySvc *activity.Service
		Photos      *media.PhotoStore
		MailSvc     core.EmailService

		// PingDB reports whether the database answers; used by /healthz.
		PingDB func(ctx context.Context) error
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		*Deps
		address  string
		app      *echo.Echo
		flashes  sessions.Store
		errors   chan error
		shutdown chan os.Signal

		pingFailures int32 // consecutive, updated atomically
	}
)

var _ Server = (*server)(nil)

func NewServer(address string, shutdown chan os.Signal, deps *Deps) Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps, "deps"),
		vala.IsNotNil(deps.Conf, "deps.Conf"),
		vala.IsNotNil(deps.Logger, "deps.Logger"),
		vala.IsNotNil(deps.AccountSvc, "deps.AccountSvc"),
		vala.IsNotNil(deps.AccessSvc, "deps.AccessSvc"),
		vala.IsNotNil(deps.Authorizer, "deps.Authorizer"),
		vala.IsNotNil(deps.Tracker, "deps.Tracker"),
		vala.IsNotNil(deps.StudentSvc, "deps.StudentSvc"),
		vala.IsNotNil(deps.ActivitySvc, "deps.ActivitySvc"),
		vala.IsNotNil(deps.MailSvc, "deps.MailSvc"),
	).CheckAndPanic()

	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
	}
	s := &server{
		Deps:     deps,
		address:  address,
		app:      echo.New(),
		flashes:  newFlashStore(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Debug = s.Conf.Debug
	s.app.Renderer = newRenderer()
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.Conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.Conf.Debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.requestMetrics)
	if !s.Conf.Server.DisableCSRF {
		s.app.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
			TokenLookup:    "form:" + csrfField,
			ContextKey:     csrfContextKey,
			CookieName:     "_csrf",
			CookiePath:     "/",
			CookieHTTPOnly: true,
		}))
	}
	s.app.Use(s.loadSession)

	s.app.GET("/healthz", s.healthz)
	s.registerAuthRoutes()

	authed := s.app.Group("", s.requireLogin)
	authed.GET("/", s.home)
	authed.GET("/uploads/:name", s.servePhoto)

	s.registerStudentRoutes(authed)
	s.registerSchoolRoutes(authed)
	s.registerGradeRoutes(authed)
	s.registerTimeSlotRoutes(authed)
	s.registerActivityRoutes(authed)
	s.registerAccountRoutes(authed)
}

func (s *server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error { return s.errors }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- os.Interrupt:
	default:
	}
}

func (s *server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }

func (s *server) Close() error { return s.app.Close() }

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// requestMetrics counts requests by route pattern, once the handler and error handler ran.
func (s *server) requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		err := next(ctx)
		if err != nil {
			ctx.Error(err)
		}
		metrics.ObserveRequest(ctx.Request().Method, ctx.Path(), ctx.Response().Status)
		return nil
	}
}

func (s *server) healthz(ctx echo.Context) error {
	if s.PingDB == nil {
		return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
	start := time.Now()
	err := s.PingDB(ctx.Request().Context())
	metrics.ObserveDBPing(time.Since(start))
	if err != nil {
		failures := atomic.AddInt32(&s.pingFailures, 1)
		if limit := s.Conf.Server.MaxPingFailures; limit > 0 && int(failures) >= limit {
			return errors.Wrap(core.NewShutdownError("database unreachable after "+strconv.Itoa(limit)+" pings"), err.Error())
		}
		s.Logger.Error("healthz: database ping failed", err)
		return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
	}
	atomic.StoreInt32(&s.pingFailures, 0)
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
