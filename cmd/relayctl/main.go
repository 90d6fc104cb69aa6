package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/you/echo-relay/internal/config"
	"github.com/you/echo-relay/internal/store"
	"github.com/you/echo-relay/internal/version"
)

type rootOptions struct {
	cfgFile string
	dbPath  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "relayctl",
		Short: "Administer the relay's credential store and audit log",
		Long: `relayctl seeds bot installations and user registrations in the relay's
SQLite store, lists the audit log and prints the effective configuration.
It reads the same config file and RELAY_ environment as the server.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.cfgFile, "config", os.Getenv("RELAY_CONFIG"), "config file path")
	root.PersistentFlags().StringVar(&opts.dbPath, "sqlite", "", "SQLite database path (overrides config)")

	root.AddCommand(newBotCmd(opts))
	root.AddCommand(newUserCmd(opts))
	root.AddCommand(newAuditCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version of relayctl",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relayctl %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		},
	})
	return root
}

func (o *rootOptions) config() (config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if p := strings.TrimSpace(o.dbPath); p != "" {
		cfg.Store.SQLitePath = p
	}
	return cfg, nil
}

func (o *rootOptions) openStore() (*store.SQLiteStore, config.Config, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, config.Config{}, err
	}
	db, err := store.OpenSQLite(cfg.Store.SQLitePath)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("open %s: %w", cfg.Store.SQLitePath, err)
	}
	return db, cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
