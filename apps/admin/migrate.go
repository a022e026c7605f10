package main

import "context"

// migrate runs the goose command args[0] with the remaining args.
func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	return migrateFunc(ctx, cli.db, args[0], args[1:]...)
}
