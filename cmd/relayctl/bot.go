package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/you/echo-relay/internal/config"
	"github.com/you/echo-relay/internal/credentials"
)

func newBotCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Manage Slack bot installations",
		Long: `Bot installations are normally written by the Slack OAuth flow. These
commands seed or inspect them by hand. Keys combine the configured client
token with the team id, exactly as the server looks them up.`,
	}

	var (
		team, token, botUser, clientToken string
	)
	keyFor := func(cfg config.Config) string {
		ct := cfg.Slack.ClientToken
		if clientToken != "" {
			ct = clientToken
		}
		return credentials.BotKey(ct, team)
	}

	put := &cobra.Command{
		Use:   "put",
		Short: "Store a bot installation for a team",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(team) == "" || strings.TrimSpace(token) == "" {
				return errors.New("--team and --token are required")
			}
			db, cfg, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			key := keyFor(cfg)
			auth := credentials.BotAuth{TeamID: team, BotAccessToken: token, BotUserID: botUser}
			if err := db.PutBotAuth(cmd.Context(), key, auth); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored bot auth for team %s (bot user %s)\n", team, botUser)
			return nil
		},
	}
	put.Flags().StringVar(&team, "team", "", "Slack team id")
	put.Flags().StringVar(&token, "token", "", "bot access token (xoxb-...)")
	put.Flags().StringVar(&botUser, "bot-user", "", "bot user id")
	put.Flags().StringVar(&clientToken, "client-token", "", "client token part of the key (defaults to config)")

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the bot installation for a team",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(team) == "" {
				return errors.New("--team is required")
			}
			db, cfg, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			auth, found, err := db.GetBotAuth(cmd.Context(), keyFor(cfg))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no bot auth for team %s", team)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "team=%s bot_user=%s token=%s\n", auth.TeamID, auth.BotUserID, config.Redact(auth.BotAccessToken))
			return nil
		},
	}
	get.Flags().StringVar(&team, "team", "", "Slack team id")
	get.Flags().StringVar(&clientToken, "client-token", "", "client token part of the key (defaults to config)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored bot installations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.ListBotAuth(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TEAM\tBOT USER\tTOKEN")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.TeamID, r.BotUserID, config.Redact(r.BotAccessToken))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(put, get, list)
	return cmd
}
