// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ads-query-eval/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export evaluations and their judgments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		query, _ := cmd.Flags().GetString("query")
		all, _ := cmd.Flags().GetBool("all")
		entries, err := export.Entries(ctx, a.docs, export.Options{QueryLiteral: query, CompletedOnly: !all})
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating %s: %w", path, err)
			}
			defer f.Close()
			w = f
		}
		format, _ := cmd.Flags().GetString("format")
		if err := export.Write(w, entries, format); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "exported %d evaluations\n", len(entries))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "yaml", "output format: yaml or json")
	exportCmd.Flags().String("query", "", "only evaluations of this query literal")
	exportCmd.Flags().Bool("all", false, "include evaluations still in progress")
	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
