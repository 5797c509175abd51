package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"foreman/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var priority string
	var params []string

	cmd := &cobra.Command{
		Use:   "submit <action>",
		Short: "Submit a command to the worker pool and wait for its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(ipc.SubmitRequest{
					Action:   args[0],
					Params:   parsed,
					Priority: priority,
				})
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Status: %s\n", resp.Status)
				if resp.Message != "" {
					fmt.Fprintf(stdout, "Message: %s\n", resp.Message)
				}
				if len(resp.Fields) > 0 {
					data, err := json.MarshalIndent(resp.Fields, "", "  ")
					if err != nil {
						return fmt.Errorf("render response: %w", err)
					}
					fmt.Fprintln(stdout, string(data))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Submission priority (immediate, high, normal, low)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Command parameter as key=value; repeatable")
	return cmd
}

// parseParams turns repeated key=value flags into the command's parameter
// map. Values that parse as JSON keep their type; everything else stays a
// string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", pair)
		}
		var typed any
		if err := json.Unmarshal([]byte(value), &typed); err == nil {
			out[key] = typed
		} else {
			out[key] = value
		}
	}
	return out, nil
}
