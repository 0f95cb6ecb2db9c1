// ABOUTME: Charm sync CLI commands
// ABOUTME: Reports sync status, forces a sync and manages the server host and auto-sync setting
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harperreed/spruce/charm"
)

func newSyncCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Charm cloud sync for the charm backend",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show sync state and local key counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openCharm()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			st, err := charm.SyncStatus(client)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server:    %s\n", st.Host)
			fmt.Fprintf(out, "Auto-sync: %s\n", onOff(st.AutoSync))
			if st.Connected {
				fmt.Fprintf(out, "Connected: yes")
				if st.AccountID != "" {
					fmt.Fprintf(out, " (account %s)", st.AccountID)
				}
				fmt.Fprintln(out)
			} else {
				fmt.Fprintln(out, "Connected: no")
			}
			fmt.Fprintf(out, "Keys:      %d (%d prospects, %d locations)\n", st.Keys, st.Prospects, st.Locations)
			return nil
		},
	}

	now := &cobra.Command{
		Use:   "now",
		Short: "Sync with the charm server immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openCharm()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			if err := charm.SyncNow(client); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Synced")
			return nil
		},
	}

	auto := &cobra.Command{
		Use:       "auto <on|off>",
		Short:     "Turn sync after every write on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[0]) {
			case "on", "true", "yes":
				enabled = true
			case "off", "false", "no":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			cfg, err := charm.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.SetAutoSync(enabled); err != nil {
				return fmt.Errorf("failed to save charm config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Auto-sync %s\n", onOff(enabled))
			return nil
		},
	}

	host := &cobra.Command{
		Use:   "host <hostname>",
		Short: "Set the charm server host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := charm.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.SetHost(strings.TrimSpace(args[0])); err != nil {
				return fmt.Errorf("failed to save charm config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Server set to %s\n", cfg.Host)
			return nil
		},
	}

	var confirm bool
	wipe := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all local charm data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("this deletes every local prospect; rerun with --yes to confirm")
			}
			client, err := openCharm()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			if err := charm.Wipe(client); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Local data wiped")
			return nil
		},
	}
	wipe.Flags().BoolVar(&confirm, "yes", false, "Confirm the wipe")

	cmd.AddCommand(status, now, auto, host, wipe)
	return cmd
}

func openCharm() (*charm.Client, error) {
	cfg, err := charm.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load charm config: %w", err)
	}
	return charm.NewClient(cfg)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
