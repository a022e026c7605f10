package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/account"
)

// addUser creates an account with the default grants of its role.
func (cli *commandLine) addUser(ctx context.Context, na account.NewAccount) error {
	acc, err := cli.accSvc.Create(ctx, na)
	if err != nil {
		return err
	}
	if err = cli.accessSvc.ApplyDefaults(ctx, acc); err != nil {
		return errors.Wrap(err, "granting default permissions")
	}
	_, _ = fmt.Fprintf(cli.output(), "%s account %s created.\n", acc.Role.DisplayName(), acc.Email)
	return nil
}

// seed makes a fresh database usable: the permission catalog and a first director.
func (cli *commandLine) seed(ctx context.Context) error {
	if err := cli.accessSvc.SeedCatalog(ctx); err != nil {
		return errors.Wrap(err, "seeding permissions")
	}
	created, err := cli.accSvc.EnsureDirector(ctx, cli.adminEmail, cli.adminPassword)
	if err != nil {
		return err
	}
	if created {
		_, _ = fmt.Fprintf(cli.output(), "Director account %s created.\n", cli.adminEmail)
	}
	return nil
}
