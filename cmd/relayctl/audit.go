package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/you/echo-relay/internal/httpapi"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}

	var (
		platforms, outcomes []string
		team, since, order  string
		limit               int
		asJSON              bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded event outcomes",
		Example: `  relayctl audit list --platform slack --outcome error --since 1h
  relayctl audit list --team T024BE7LD --limit 20 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			values := url.Values{}
			for _, p := range platforms {
				values.Add("platform", p)
			}
			for _, o := range outcomes {
				values.Add("outcome", o)
			}
			if team != "" {
				values.Set("team", team)
			}
			if since != "" {
				values.Set("since", since)
			}
			if order != "" {
				values.Set("order", order)
			}
			values.Set("limit", fmt.Sprint(limit))

			filters, err := httpapi.ParseFilters(values)
			if err != nil {
				return err
			}

			db, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.ListAudit(cmd.Context(), filters)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tPLATFORM\tOUTCOME\tTEAM\tCHANNEL\tUSER\tEVENT\tERROR")
			for _, ev := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					ev.Ts.Local().Format(time.DateTime), ev.Platform, ev.Outcome,
					ev.TeamID, ev.ChannelID, ev.UserID, ev.EventID, ev.Error)
			}
			return w.Flush()
		},
	}
	list.Flags().StringSliceVar(&platforms, "platform", nil, "platform filter (slack, twitter)")
	list.Flags().StringSliceVar(&outcomes, "outcome", nil, "outcome filter (replied, error, ...)")
	list.Flags().StringVar(&team, "team", "", "team id filter")
	list.Flags().StringVar(&since, "since", "", "RFC3339 time, unix seconds or a duration such as 1h")
	list.Flags().StringVar(&order, "order", "desc", "asc or desc")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(list)
	return cmd
}
