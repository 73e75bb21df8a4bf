package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eringen/pubindex/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the pubindex MCP server (stdio)",
	Long: `Start a Model Context Protocol (MCP) server that exposes the index as tools
over STDIO: get_page, adjacent_to, tagged_page, popular_tags and rebuild.

Example:

  pubindex mcp --db data/index.db`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		// Log to stderr so we don't contaminate the JSON-RPC stream on stdout.
		fmt.Fprintf(os.Stderr, "pubindex MCP server started. DB: %s\n", dbPath)
		return mcp.Serve(mcp.NewServer(eng.Engine, version))
	},
}
