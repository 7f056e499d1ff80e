package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yetidevworks/yetisearch/internal/adapters/driving/mcp"
)

var (
	mcpPort int
	mcpHost string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose indices to MCP clients",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Serve the open database over the Model Context Protocol.

Tools:      search, index_document, index_stats
Resources:  yetisearch://indices, yetisearch://indices/{index}/documents/{id}

Without --port the server speaks JSON-RPC on stdin and stdout, which is
what desktop assistants expect:

  {"mcpServers": {"yetisearch": {"command": "yetisearch", "args": ["mcp", "serve"]}}}

With --port it serves streamable HTTP instead:

  yetisearch --db places.db mcp serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "serve HTTP on this port instead of stdio")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "localhost", "HTTP bind address")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(&mcp.Ports{Search: e, Catalog: e}, mcp.WithVersion(version))
	if err != nil {
		return err
	}

	if mcpPort <= 0 {
		return server.Run(cmd.Context())
	}

	addr := net.JoinHostPort(mcpHost, strconv.Itoa(mcpPort))
	cmd.PrintErrf("MCP server listening on http://%s\n", addr)
	if err := server.RunHTTP(cmd.Context(), addr); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
