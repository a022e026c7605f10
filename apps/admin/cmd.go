package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	migrateFunc      = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db            *sql.DB
	accSvc        *account.Service
	accessSvc     *access.Service
	adminEmail    string
	adminPassword string
	out           io.Writer
}

func (cli *commandLine) printUsage() {
	w := cli.output()
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) against the database")
	_, _ = fmt.Fprintln(w, "  seed - seed the permission catalog and create the first director if there is no account")
	_, _ = fmt.Fprintln(w, "  adduser -name NAME -email EMAIL -role ROLE [-student ID] - create an account; the password will be prompted")
	_, _ = fmt.Fprintln(w, "  resetpassword -email EMAIL - reset an account's password; the password will be prompted")
}

func (cli *commandLine) output() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

// promptPassword reads a password without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	_, _ = fmt.Fprint(cli.output(), "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.output())
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.output())
	addUserName := addUserCmd.String("name", "", "The account holder's name.")
	addUserEmail := addUserCmd.String("email", "", "The account's email, used to log in.")
	addUserRole := addUserCmd.String("role", "", "director | teacher | guardian | student")
	addUserStudent := addUserCmd.Int64("student", 0, "The student a guardian or student account is linked to.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordCmd.SetOutput(cli.output())
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The account's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "seed":
		return cli.seed(ctx)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || *addUserEmail == "" || *addUserRole == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, account.NewAccount{
			Name:            *addUserName,
			Email:           *addUserEmail,
			Password:        pwd,
			PasswordConfirm: pwd,
			Role:            *addUserRole,
			StudentID:       *addUserStudent,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}
