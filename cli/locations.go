// ABOUTME: Location CLI commands
// ABOUTME: Service areas are written straight to the backend; prospects pick them up on refresh
package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harperreed/spruce/app"
)

func newLocationCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "location",
		Aliases: []string{"loc"},
		Short:   "Manage service areas",
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a service area",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if name == "" {
				return fmt.Errorf("location name is required")
			}
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				loc, err := a.Backend.CreateLocation(ctx, name)
				if err != nil {
					return fmt.Errorf("failed to create location: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Location created: %s (ID: %s)\n", loc.Name, loc.ID)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List service areas",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				locations, err := a.Backend.ListLocations(ctx)
				if err != nil {
					return fmt.Errorf("failed to list locations: %w", err)
				}
				out := cmd.OutOrStdout()
				if len(locations) == 0 {
					fmt.Fprintln(out, "No locations found.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME")
				for _, l := range locations {
					fmt.Fprintf(w, "%s\t%s\n", l.ID, l.Name)
				}
				return w.Flush()
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a service area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Backend.DeleteLocation(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to delete location: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Location deleted: %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}
