// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ads-query-eval/internal/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the daily job schedule",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every job with its daily slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		registry, err := a.jobRegistry(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "JOB\tTIME (%s)\tQUERY\n", a.cfg.Schedule.Timezone)
		for _, j := range registry {
			fmt.Fprintf(tw, "%s\t%02d:%02d\t%s\n", j.Name, j.Hour, j.Minute, j.QueryLiteral)
		}
		return tw.Flush()
	},
}

var jobsCrontabCmd = &cobra.Command{
	Use:   "crontab",
	Short: "Print a crontab running each job in its slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		registry, err := a.jobRegistry(ctx)
		if err != nil {
			return err
		}
		command, _ := cmd.Flags().GetString("command")
		if command == "" {
			if command, err = os.Executable(); err != nil {
				return fmt.Errorf("locating executable: %w", err)
			}
		}
		return jobs.WriteCrontab(cmd.OutOrStdout(), registry, command, a.cfg.Schedule.Timezone)
	},
}

func init() {
	jobsCrontabCmd.Flags().String("command", "", "command each entry invokes (default: this executable)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCrontabCmd)
	rootCmd.AddCommand(jobsCmd)
}
