package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-lifecycle"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/spf13/cobra"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var before string
	var states []string
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending requests and failed handles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := ctx.ensureModule()
			if err != nil {
				return err
			}
			query := lifecycle.PendingQuery{Limit: limit}
			if query.DueBefore, err = parseOptionalTime("before", before); err != nil {
				return err
			}
			for _, state := range states {
				if trimmed := strings.TrimSpace(state); trimmed != "" {
					query.States = append(query.States, lifecycle.WorkflowState(strings.ToLower(trimmed)))
				}
			}

			items, err := module.ListPending(cmd.Context(), query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No pending requests")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Handle", "Path", "State", "Kind", "Stage", "Fire At", "Invocation", "Error"},
				pendingRows(items),
				nil,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "Only requests due at or before this time (RFC3339)")
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only handles in these states")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to show")
	return cmd
}

func pendingRows(items []lifecycle.PendingItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		row := []string{
			item.Handle.ID.String(),
			item.Handle.Path,
			string(item.Handle.State),
			"-",
			"-",
			"-",
			"-",
			dashIfEmpty(item.Handle.LastError),
		}
		if request := item.Request; request != nil {
			row[3] = string(request.Kind)
			row[4] = string(request.Stage)
			row[5] = formatTimePtr(request.FireAt)
			row[6] = dashIfEmpty(request.InvocationID)
		}
		rows = append(rows, row)
	}
	return rows
}

func newInvocationsCommand(ctx *commandContext) *cobra.Command {
	var handle, dueBefore string
	var statuses []string
	var limit int

	cmd := &cobra.Command{
		Use:   "invocations",
		Short: "List scheduled invocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := ctx.ensureModule()
			if err != nil {
				return err
			}
			filter := lifecycle.InvocationFilter{Limit: limit}
			if strings.TrimSpace(handle) != "" {
				id, err := parseHandleID(handle)
				if err != nil {
					return err
				}
				filter.Subject = id.String()
			}
			if filter.DueBefore, err = parseOptionalTime("due-before", dueBefore); err != nil {
				return err
			}
			for _, status := range statuses {
				if trimmed := strings.TrimSpace(status); trimmed != "" {
					filter.Statuses = append(filter.Statuses, interfaces.JobStatus(strings.ToLower(trimmed)))
				}
			}

			jobs, err := module.ListInvocations(cmd.Context(), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No scheduled invocations")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					job.Subject,
					job.Type,
					string(job.Status),
					formatTime(job.RunAt),
					strconv.Itoa(job.Attempt) + "/" + strconv.Itoa(job.MaxAttempts),
					dashIfEmpty(job.LastError),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Handle", "Action", "Status", "Run At", "Attempts", "Last Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "Only invocations targeting this handle")
	cmd.Flags().StringVar(&dueBefore, "due-before", "", "Only invocations due at or before this time (RFC3339)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only invocations with these statuses (pending, running, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to show")
	return cmd
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
