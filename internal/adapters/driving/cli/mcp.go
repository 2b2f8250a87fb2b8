package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/keepsake/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

By default, the server communicates over stdio using JSON-RPC. Use --port
to serve streamable HTTP instead.

The server exposes search, ingest and the plan lifecycle. Plans that change
data still need the confirmation hash returned by create_plan, so the
assistant's host should ask the user before calling confirm_plan.

Examples:
  # Stdio mode (default)
  keepsake mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  keepsake mcp serve --port 8080`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	a, err := requireApp()
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Search: a.Engine,
		Ingest: a.Engine,
		Plans:  a.Engine,
	})
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
