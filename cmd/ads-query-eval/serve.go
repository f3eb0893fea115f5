// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ads-query-eval/internal/evaluation"
	"github.com/pdiddy/ads-query-eval/internal/logging"
	"github.com/pdiddy/ads-query-eval/internal/users"
	"github.com/pdiddy/ads-query-eval/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reviewer UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			a.cfg.Server.Addr = addr
		}
		if a.cfg.Server.AdminUsername == "" || a.cfg.Server.AdminPassword == "" {
			a.log.Warn().Msg("admin credentials not set; invite links cannot be created over HTTP")
		}

		srv, err := web.New(web.Deps{
			Docs: a.docs,
			Workflow: evaluation.NewWorkflow(a.docs, a.objects,
				evaluation.WithLogger(logging.Component(a.log, "evaluation")),
				evaluation.WithMetrics(a.metrics),
				evaluation.WithPublisher(a.events),
			),
			Users:    users.NewService(a.docs),
			Gatherer: a.registry,
			Log:      logging.Component(a.log, "web"),
			Config:   a.cfg.Server,
		})
		if err != nil {
			return err
		}
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Create an invite link for a new reviewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		link, err := users.NewService(a.docs).NewInviteLink(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s/invite_link/%s\n", strings.TrimSuffix(a.cfg.Server.SiteURL, "/"), link.Token)
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default server.addr)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inviteCmd)
}
