package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // /debug/pprof
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/trezcool/escola/apps/web/echo"
	"github.com/trezcool/escola/assets"
	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/activity"
	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/presence"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/timeslot"
	"github.com/trezcool/escola/services/email"
	"github.com/trezcool/escola/services/logger"
	"github.com/trezcool/escola/services/media"
	"github.com/trezcool/escola/services/metrics"
	"github.com/trezcool/escola/services/notify"
	"github.com/trezcool/escola/storage/database"
	"github.com/trezcool/escola/storage/database/sqlx"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	zl, err := logsvc.NewZap(conf.LogLevel, conf.Env)
	if err != nil {
		return fmt.Errorf("building zap logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	logger, flush, err := newLogger(zl.Named("web"), conf)
	if err != nil {
		return err
	}
	defer flush()
	dbLogger, _, _ := newLogger(zl.Named("db"), conf)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	accRepo := sqlxrepos.NewAccountRepository(db)
	accessRepo := sqlxrepos.NewAccessRepository(db)
	sessionRepo := sqlxrepos.NewSessionRepository(db)
	schoolRepo := sqlxrepos.NewSchoolRepository(db)
	gradeRepo := sqlxrepos.NewGradeRepository(db)
	slotRepo := sqlxrepos.NewTimeSlotRepository(db)
	studentRepo := sqlxrepos.NewStudentRepository(db)
	activityRepo := sqlxrepos.NewActivityRepository(db)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	account.InitValidators(validate, translator)

	if err = core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, false); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, os.Stdout, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	bot, err := notify.NewTelegramBot(conf.TelegramBotToken)
	if err != nil {
		logger.Error(fmt.Sprintf("telegram disabled: %v", err), err)
		bot = nil
	}

	studentSvc := student.NewService(studentRepo, schoolRepo, gradeRepo, slotRepo, validate, translator)
	accSvc := account.NewService(accRepo, studentSvc, mailSvc, conf, validate, translator)
	accessSvc := access.NewService(accessRepo)
	dispatcher := notify.NewDispatcher(accSvc, mailSvc, bot, conf, logger)

	photos, err := media.NewPhotoStore(conf.Server.UploadDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up uploads: %v", err), err)
	}

	ctx := context.Background()
	if err = accessSvc.SeedCatalog(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("seeding permissions: %v", err), err)
	}
	if created, err := accSvc.EnsureDirector(ctx, conf.Admin.Email, conf.Admin.Password); err != nil {
		logger.Fatal(fmt.Sprintf("creating the first director: %v", err), err)
	} else if created {
		logger.Warn(fmt.Sprintf("created director %s with the configured password; change it", conf.Admin.Email))
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", metrics.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Web Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoweb.NewServer(
		conf.Server.Address,
		shutdown,
		&echoweb.Deps{
			Conf:        conf,
			Logger:      logger,
			Validate:    validate,
			Translator:  translator,
			AccountSvc:  accSvc,
			AccessSvc:   accessSvc,
			Authorizer:  access.NewAuthorizer(accessRepo),
			Tracker:     presence.NewTracker(sessionRepo, conf.Server.PresenceWindow),
			SchoolSvc:   school.NewService(schoolRepo, validate, translator),
			GradeSvc:    grade.NewService(gradeRepo, validate, translator),
			TimeSlotSvc: timeslot.NewService(slotRepo, validate, translator),
			StudentSvc:  studentSvc,
			ActivitySvc: activity.NewService(activityRepo, studentRepo, dispatcher, validate, translator),
			Photos:      photos,
			MailSvc:     mailSvc,
			PingDB:      db.PingContext,
		},
	)

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)
		return err

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not force stop server: %w", err)
			}
		}
	}
	return nil
}

// newLogger picks the error reporter; Debug mode only logs locally.
func newLogger(zl *zap.Logger, conf *core.Config) (core.Logger, func(), error) {
	if conf.ErrorReporter == "sentry" {
		l, flush, err := logsvc.NewSentryLogger(zl, conf)
		if err != nil {
			return nil, nil, err
		}
		return l, flush, nil
	}
	l := logsvc.NewRollbarLogger(zl, conf)
	l.Enable(!conf.Debug && conf.RollbarToken != "")
	return l, func() {}, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(context.Background(), db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
