package main

import (
	"fmt"
	"io"

	"github.com/goliatone/go-lifecycle"
	lifecyclecmd "github.com/goliatone/go-lifecycle/internal/commands/lifecycle"
	"github.com/spf13/cobra"
)

func newRequestCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a publication change for a handle",
	}
	cmd.AddCommand(newRequestPublishCommand(ctx))
	cmd.AddCommand(newRequestDepublishCommand(ctx))
	cmd.AddCommand(newRequestWindowCommand(ctx))
	return cmd
}

func newRequestPublishCommand(ctx *commandContext) *cobra.Command {
	var atFlag, requestedBy string
	cmd := &cobra.Command{
		Use:   "publish <handle-id>",
		Short: "Publish now, or at --at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handlers, err := ctx.handlers()
			if err != nil {
				return err
			}
			msg := lifecyclecmd.RequestPublicationCommand{}
			if msg.HandleID, err = parseHandleID(args[0]); err != nil {
				return err
			}
			if msg.At, err = parseOptionalTime("at", atFlag); err != nil {
				return err
			}
			if msg.RequestedBy, err = parseOptionalUUID(requestedBy); err != nil {
				return fmt.Errorf("parse --requested-by: %w", err)
			}
			var result lifecycle.Result
			msg.Result = &result
			if err := handlers.RequestPublication.Execute(cmd.Context(), msg); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&atFlag, "at", "", "Publication time (RFC3339); empty or past runs immediately")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "Actor id recorded on the request")
	return cmd
}

func newRequestDepublishCommand(ctx *commandContext) *cobra.Command {
	var atFlag, requestedBy string
	cmd := &cobra.Command{
		Use:   "depublish <handle-id>",
		Short: "Depublish now, or at --at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handlers, err := ctx.handlers()
			if err != nil {
				return err
			}
			msg := lifecyclecmd.RequestDepublicationCommand{}
			if msg.HandleID, err = parseHandleID(args[0]); err != nil {
				return err
			}
			if msg.At, err = parseOptionalTime("at", atFlag); err != nil {
				return err
			}
			if msg.RequestedBy, err = parseOptionalUUID(requestedBy); err != nil {
				return fmt.Errorf("parse --requested-by: %w", err)
			}
			var result lifecycle.Result
			msg.Result = &result
			if err := handlers.RequestDepublication.Execute(cmd.Context(), msg); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&atFlag, "at", "", "Depublication time (RFC3339); empty or past runs immediately")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "Actor id recorded on the request")
	return cmd
}

func newRequestWindowCommand(ctx *commandContext) *cobra.Command {
	var publishAt, depublishAt, requestedBy string
	cmd := &cobra.Command{
		Use:   "window <handle-id>",
		Short: "Publish at --publish-at (or now) and depublish at --depublish-at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handlers, err := ctx.handlers()
			if err != nil {
				return err
			}
			msg := lifecyclecmd.RequestWindowCommand{}
			if msg.HandleID, err = parseHandleID(args[0]); err != nil {
				return err
			}
			if msg.PublishAt, err = parseOptionalTime("publish-at", publishAt); err != nil {
				return err
			}
			if msg.DepublishAt, err = parseRequiredTime("depublish-at", depublishAt); err != nil {
				return err
			}
			if msg.RequestedBy, err = parseOptionalUUID(requestedBy); err != nil {
				return fmt.Errorf("parse --requested-by: %w", err)
			}
			var result lifecycle.Result
			msg.Result = &result
			if err := handlers.RequestWindow.Execute(cmd.Context(), msg); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&publishAt, "publish-at", "", "Publication time (RFC3339); empty publishes immediately")
	cmd.Flags().StringVar(&depublishAt, "depublish-at", "", "Depublication time (RFC3339)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "Actor id recorded on the request")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <handle-id>",
		Short: "Withdraw the pending request of a handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handlers, err := ctx.handlers()
			if err != nil {
				return err
			}
			msg := lifecyclecmd.CancelRequestCommand{}
			if msg.HandleID, err = parseHandleID(args[0]); err != nil {
				return err
			}
			var result lifecycle.Result
			msg.Result = &result
			if err := handlers.CancelRequest.Execute(cmd.Context(), msg); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <handle-id>",
		Short: "Retire every variant of a handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handlers, err := ctx.handlers()
			if err != nil {
				return err
			}
			msg := lifecyclecmd.ArchiveCommand{}
			if msg.HandleID, err = parseHandleID(args[0]); err != nil {
				return err
			}
			var result lifecycle.Result
			msg.Result = &result
			if err := handlers.Archive.Execute(cmd.Context(), msg); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <handle-id>",
		Short: "Re-run the retained request of a failed handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handlers, err := ctx.handlers()
			if err != nil {
				return err
			}
			msg := lifecyclecmd.RetryCommand{}
			if msg.HandleID, err = parseHandleID(args[0]); err != nil {
				return err
			}
			var result lifecycle.Result
			msg.Result = &result
			if err := handlers.Retry.Execute(cmd.Context(), msg); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "restore <handle-id>",
		Short: "Copy a retained node into the unpublished slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handlers, err := ctx.handlers()
			if err != nil {
				return err
			}
			msg := lifecyclecmd.RestoreCommand{Source: source}
			if msg.HandleID, err = parseHandleID(args[0]); err != nil {
				return err
			}
			var result lifecycle.Result
			msg.Result = &result
			if err := handlers.Restore.Execute(cmd.Context(), msg); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Content store path of the node to restore")
	return cmd
}

func printResult(out io.Writer, result lifecycle.Result) {
	if result.Handle == nil {
		fmt.Fprintf(out, "State: %s\n", result.State)
		return
	}
	fmt.Fprintf(out, "Handle %s (%s) is %s\n", result.Handle.ID, result.Handle.Path, result.State)
	if result.InvocationID != "" {
		fmt.Fprintf(out, "Scheduled invocation %s\n", result.InvocationID)
	}
	if result.Purged {
		fmt.Fprintln(out, "Handle purged: no variants left")
	}
}
