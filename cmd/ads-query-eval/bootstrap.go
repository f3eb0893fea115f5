package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ads-query-eval/internal/seed"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed the queries and the topic-review procedure",
	Long: `Bootstrap inserts every seed query that is not stored yet and the
topic-review evaluating procedure if it is missing. Existing documents are
left untouched, so it is safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		path, _ := cmd.Flags().GetString("seed-file")
		if path == "" {
			path = a.cfg.SeedFile
		}
		s, err := seed.Load(path)
		if err != nil {
			return err
		}
		res, err := seed.Bootstrap(ctx, a.docs, s)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, q := range res.QueriesInserted {
			fmt.Fprintf(out, "added query %s\n", q)
		}
		if res.ProcedureInserted {
			fmt.Fprintln(out, "added topic-review procedure")
		}
		fmt.Fprintf(out, "%d queries added, %d seeded in total\n", len(res.QueriesInserted), len(s.Queries))
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().String("seed-file", "", "YAML seed file (default: built-in query list)")
	rootCmd.AddCommand(bootstrapCmd)
}
