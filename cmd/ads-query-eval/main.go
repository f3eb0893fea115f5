// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ads-query-eval CLI: bootstrap the
// store, run daily retrievals, export evaluations and serve the reviewer UI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ads-query-eval/internal/config"
	"github.com/pdiddy/ads-query-eval/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

var rootCmd = &cobra.Command{
	Use:   "ads-query-eval",
	Short: "Evaluate the relevance of ADS search queries over time",
	Long: `ads-query-eval retrieves a fixed set of ADS search queries once a day,
keeps every retrieval, and lets reviewers judge the relevance of the top
results. Known topic reviews score each retrieval automatically.

Run "bootstrap" once to seed the queries, schedule "run" (or the per-query
entries printed by "jobs crontab") daily, and "serve" the reviewer UI.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./ads-query-eval.yaml or ~/.config/ads-query-eval/ads-query-eval.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets/", "directory of secret files and .env")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(config.Name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", config.Name))
		}
	}

	config.BindEnv(v)

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
