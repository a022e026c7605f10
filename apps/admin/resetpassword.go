package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	acc, err := cli.accSvc.SetPassword(ctx, email, pwd)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.output(), "Password of %s reset.\n", acc.Email)
	return nil
}
