package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dispatcher and fire due invocations",
		Long: "Run the dispatcher loop until interrupted. Missed invocations fire on the first pass.\n" +
			"With --once a single pass runs and the command exits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := ctx.ensureModule()
			if err != nil {
				return err
			}

			if path := strings.TrimSpace(module.Container().Config.Scheduler.LockFile); path != "" {
				lock := flock.New(path)
				ok, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire dispatcher lock: %w", err)
				}
				if !ok {
					return fmt.Errorf("another dispatcher holds %s", path)
				}
				defer lock.Unlock() //nolint:errcheck
			}

			out := cmd.OutOrStdout()
			if once {
				summary, err := module.ProcessDue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Processed %d due invocations: %d fired, %d failed, %d retried, %d stale\n",
					summary.Due, summary.Fired(), summary.Failed, summary.Retried, summary.Stale)
				return nil
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := module.Start(runCtx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Dispatcher running. Press Ctrl+C to stop.")
			<-runCtx.Done()
			module.Stop()
			fmt.Fprintln(out, "Dispatcher stopped")
			if err := runCtx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single dispatcher pass and exit")
	return cmd
}
