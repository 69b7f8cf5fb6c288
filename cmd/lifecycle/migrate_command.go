package main

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-lifecycle/internal/storage"
	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the lifecycle schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := ctx.ensureModule()
			if err != nil {
				return err
			}
			db := module.Container().BunDB()
			if db == nil {
				return errors.New("migrate requires sql storage (sqlite or postgres)")
			}

			run, verb := storage.Migrate, "Applied"
			if down {
				run, verb = storage.Rollback, "Rolled back"
			}
			names, err := run(cmd.Context(), db)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "Schema is up to date")
				return nil
			}
			for _, name := range names {
				fmt.Fprintf(out, "%s %s\n", verb, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back the last applied migration group")
	return cmd
}
