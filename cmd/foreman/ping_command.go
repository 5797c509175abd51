package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"foreman/internal/ipc"
)

func newPingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Broadcast a ping to every worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Ping()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Status: %s\n", resp.Status)
				if resp.Message != "" {
					fmt.Fprintf(stdout, "Message: %s\n", resp.Message)
				}
				return nil
			})
		},
	}
}
