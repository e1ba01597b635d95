// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags (e.g. -X main.Version=1.2.3).
var Version = "dev"

// flags shared by every subcommand
type rootFlags struct {
	configPath string
	port       int
	dbType     string
	dbPath     string
	dbDSN      string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:           "kioku",
		Short:         "Emotion-tagged conversation memory",
		Long:          "Kioku summarizes dialogue turns, tags them with emotions and recalls them by meaning.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&f.configPath, "config", "", "Path to config file (default ~/.kioku/configs/config.json)")
	root.PersistentFlags().IntVar(&f.port, "port", 0, "Server port (serve only)")
	root.PersistentFlags().StringVar(&f.dbType, "db-type", "", "Database type (sqlite or postgres)")
	root.PersistentFlags().StringVar(&f.dbPath, "db-path", "", "Database path (for sqlite)")
	root.PersistentFlags().StringVar(&f.dbDSN, "db-dsn", "", "Database DSN (for postgres)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), f)
		},
	})

	var user string
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP tool server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context(), f, user)
		},
	}
	mcpCmd.Flags().StringVar(&user, "user", "", "User the tools act for (default mcp.user, then $USER)")
	root.AddCommand(mcpCmd)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// MCP owns stdout; errors go to stderr
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
