package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"foreman/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				fmt.Fprintln(stdout, renderSectionHeader("Daemon", colorize))
				fmt.Fprintf(stdout, "  Running:  %s\n", yesNo(status.Running))
				fmt.Fprintf(stdout, "  PID:      %d\n", status.PID)
				if !status.StartedAt.IsZero() {
					fmt.Fprintf(stdout, "  Uptime:   %s\n", time.Since(status.StartedAt).Round(time.Second))
				}
				fmt.Fprintf(stdout, "  Lock:     %s\n", status.LockPath)
				fmt.Fprintln(stdout)

				fmt.Fprintln(stdout, renderSectionHeader("Workers", colorize))
				if len(status.Workers) == 0 {
					fmt.Fprintln(stdout, "No workers running")
					return nil
				}
				rows := make([][]string, 0, len(status.Workers))
				for _, w := range status.Workers {
					last := "-"
					if !w.LastActivity.IsZero() {
						last = time.Since(w.LastActivity).Round(time.Second).String() + " ago"
					}
					rows = append(rows, []string{
						w.ID,
						w.State,
						yesNo(w.Busy),
						strings.Join(w.Roles, ", "),
						last,
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Worker", "State", "Busy", "Roles", "Last Activity"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))

				if len(status.Metrics) == 0 {
					return nil
				}
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, renderSectionHeader("Actions", colorize))
				metricRows := make([][]string, 0, len(status.Metrics))
				for _, m := range status.Metrics {
					metricRows = append(metricRows, []string{
						m.Action,
						strconv.FormatInt(m.Count, 10),
						m.TotalDuration,
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Action", "Count", "Total Duration"},
					metricRows,
					[]columnAlignment{alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
