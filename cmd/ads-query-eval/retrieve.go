// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/jobs"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query literal>",
	Short: "Run the daily job of one query",
	Long: `Retrieve settles the retrieval of one stored query for a day, formats it
for evaluation and scores it against the query's topic reviews. Running it
again for the same day reuses the stored retrieval.`,
	Args: cobra.ExactArgs(1),
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
		job, ok := jobs.Find(registry, args[0])
		if !ok {
			return apperr.NotFound("Query", args[0])
		}
		runner, err := a.runner()
		if err != nil {
			return err
		}

		date, _ := cmd.Flags().GetString("date")
		h, err := runner.Run(ctx, job, date)
		if err != nil {
			return err
		}
		printOutcomes(cmd.OutOrStdout(), []jobs.Outcome{{Job: job, Handle: h}})
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily job of every stored query",
	Long: `Run executes every query's job for a day with bounded parallelism. A
failing job does not stop the others; the command fails if any job failed.`,
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
		runner, err := a.runner()
		if err != nil {
			return err
		}

		date, _ := cmd.Flags().GetString("date")
		parallel, _ := cmd.Flags().GetInt("parallel")
		if parallel <= 0 {
			parallel = a.cfg.Schedule.Parallelism
		}
		outcomes, err := runner.RunAll(ctx, registry, date, parallel)
		printOutcomes(cmd.OutOrStdout(), outcomes)
		return err
	},
}

func printOutcomes(w io.Writer, outcomes []jobs.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tDATE\tOUTCOME\tRETRIEVAL")
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(tw, "%s\t-\tfailed\t%v\n", o.Job.Name, o.Err)
		case o.Handle != nil:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Job.Name, o.Handle.Date, o.Handle.Outcome, o.Handle.RetrievalID)
		}
	}
	tw.Flush()
}

func init() {
	retrieveCmd.Flags().String("date", "", "day to retrieve (YYYY-MM-DD, default today); past days are backfilled")
	runCmd.Flags().String("date", "", "day to retrieve (YYYY-MM-DD, default today)")
	runCmd.Flags().Int("parallel", 0, "jobs to run at once (default schedule.parallelism)")

	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(runCmd)
}
