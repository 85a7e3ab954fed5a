package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/autorfp/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can submit and
inspect workflows.

By default, the server communicates over stdio using JSON-RPC. Workflows
submitted through it run inside the server process, so keep it running
until they finish.

Use --port to start an HTTP server instead, which enables:
  - Testing with MCP Inspector web UI
  - Remote access via HTTP

Examples:
  # Stdio mode (default, for desktop assistants)
  autorfp mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  autorfp mcp serve --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "autorfp": {
        "command": "/path/to/autorfp",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	Annotations: map[string]string{longRunning: "true"},
	RunE:        runMCPServe,
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

	ports := &mcp.Ports{
		Workflows: workflowService,
		Retention: retentionService,
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
