package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"foreman/internal/ipc"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var recentLimit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recorded task execution history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stats, err := client.Stats(recentLimit)
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				fmt.Fprintln(stdout, renderSectionHeader("Per-action history", colorize))
				if len(stats.Actions) == 0 {
					fmt.Fprintln(stdout, "No executions recorded")
				} else {
					rows := make([][]string, 0, len(stats.Actions))
					for _, a := range stats.Actions {
						last := "-"
						if !a.LastRun.IsZero() {
							last = a.LastRun.Local().Format(time.DateTime)
						}
						rows = append(rows, []string{
							a.Action,
							a.Category,
							strconv.FormatInt(a.Executions, 10),
							strconv.FormatInt(a.Failures, 10),
							strconv.FormatInt(a.Timeouts, 10),
							fmt.Sprintf("%dms", a.AverageMS),
							last,
						})
					}
					fmt.Fprintln(stdout, renderTable(
						[]string{"Action", "Category", "Runs", "Failures", "Timeouts", "Avg", "Last Run"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
					))
				}

				if len(stats.Recent) == 0 {
					return nil
				}
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, renderSectionHeader("Recent executions", colorize))
				rows := make([][]string, 0, len(stats.Recent))
				for _, rec := range stats.Recent {
					rows = append(rows, []string{
						rec.StartedAt.Local().Format(time.DateTime),
						rec.Action,
						rec.WorkerID,
						rec.Outcome,
						fmt.Sprintf("%dms", rec.DurationMS),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Started", "Action", "Worker", "Outcome", "Duration"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&recentLimit, "recent", 20, "Number of recent executions to show")
	return cmd
}
