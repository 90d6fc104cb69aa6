package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/you/echo-relay/internal/config"
	"github.com/you/echo-relay/internal/credentials"
	"github.com/you/echo-relay/internal/slackbot"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user registrations",
	}

	var team, user, token string
	var force bool

	put := &cobra.Command{
		Use:   "put",
		Short: "Register a user's voice-assistant token",
		Long:  `Registrations are never overwritten; an existing record for the user is kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if team == "" || user == "" || token == "" {
				return errors.New("--team, --user and --token are required")
			}
			token = strings.TrimSpace(token)
			if !force && !slackbot.IsTokenShaped(token) {
				return fmt.Errorf("token %q is not 36 characters in five hyphen-separated parts (use --force to store anyway)", token)
			}
			db, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			key := credentials.UserKey(team, user)
			rec := credentials.UserRecord{TeamID: team, UserID: user, Token: token}
			if err := db.PutUser(cmd.Context(), key, rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s/%s\n", team, user)
			return nil
		},
	}
	put.Flags().StringVar(&team, "team", "", "Slack team id")
	put.Flags().StringVar(&user, "user", "", "Slack user id")
	put.Flags().StringVar(&token, "token", "", "registration token")
	put.Flags().BoolVar(&force, "force", false, "store a token that is not UUID-shaped")

	get := &cobra.Command{
		Use:   "get",
		Short: "Show a user's registration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if team == "" || user == "" {
				return errors.New("--team and --user are required")
			}
			db, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			rec, found, err := db.GetUser(cmd.Context(), credentials.UserKey(team, user))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s/%s is not registered", team, user)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "team=%s user=%s token=%s\n", rec.TeamID, rec.UserID, config.Redact(rec.Token))
			return nil
		},
	}
	get.Flags().StringVar(&team, "team", "", "Slack team id")
	get.Flags().StringVar(&user, "user", "", "Slack user id")

	cmd.AddCommand(put, get)
	return cmd
}
