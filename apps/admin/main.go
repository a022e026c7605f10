package main

import (
	"fmt"
	"os"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/services/email"
	"github.com/trezcool/escola/services/logger"
	"github.com/trezcool/escola/storage/database"
	"github.com/trezcool/escola/storage/database/sqlx"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf.LogLevel, conf.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		return 1
	}
	defer func() { _ = zl.Sync() }()
	logger := logsvc.NewZapLogger(zl.Named("admin"))

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Error("opening database", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	validate, translator := core.NewValidator()
	account.InitValidators(validate, translator)

	studentSvc := student.NewService(
		sqlxrepos.NewStudentRepository(db),
		sqlxrepos.NewSchoolRepository(db),
		sqlxrepos.NewGradeRepository(db),
		sqlxrepos.NewTimeSlotRepository(db),
		validate,
		translator,
	)

	// start CLI
	cli := commandLine{
		db:            db.DB,
		accSvc:        account.NewService(sqlxrepos.NewAccountRepository(db), studentSvc, emailsvc.NewConsoleService(conf, nil, logger), conf, validate, translator),
		accessSvc:     access.NewService(sqlxrepos.NewAccessRepository(db)),
		adminEmail:    conf.Admin.Email,
		adminPassword: conf.Admin.Password,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
