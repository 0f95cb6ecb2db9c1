// ABOUTME: MCP server subcommand
// ABOUTME: Serves the scheduling tools on stdio while following realtime changes
package cli

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/harperreed/spruce/app"
	"github.com/harperreed/spruce/handlers"
)

func newMCPCommand(s *state, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				// Keep the store current so reads reflect changes made by other clients.
				sub := a.Reconciler.Sync()
				defer sub.Unsubscribe()

				a.Logger.Info("starting MCP server")
				server := handlers.NewServer(a.Executor, a.Backend, version)
				return server.Run(ctx, &mcp.StdioTransport{})
			})
		},
	}
}
