// ABOUTME: Reminder CLI commands
// ABOUTME: Adds, toggles and deletes follow-up reminders on a prospect
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harperreed/spruce/app"
	"github.com/harperreed/spruce/models"
)

func newReminderCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reminder",
		Aliases: []string{"r"},
		Short:   "Manage follow-up reminders",
	}
	cmd.AddCommand(
		newReminderAddCommand(s),
		newReminderToggleCommand(s),
		newReminderDeleteCommand(s),
	)
	return cmd
}

func newReminderAddCommand(s *state) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:     "add <prospect-id> <date>",
		Short:   "Add a reminder; one per prospect per day",
		Example: `  spruce reminder add 42 2026-07-02 --note "confirm parking"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := parseWhen("date", args[1])
			if err != nil {
				return err
			}
			if due == nil {
				return fmt.Errorf("reminder needs a date")
			}
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				r, err := a.Executor.AddReminder(ctx, models.ParseID(args[0]),
					models.ReminderInput{DueAt: *due, Note: strings.TrimSpace(note)})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Reminder added for %s (ID: %s)\n", due.Format("2006-01-02"), r.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "What to follow up on")
	return cmd
}

func newReminderToggleCommand(s *state) *cobra.Command {
	var reopen bool
	cmd := &cobra.Command{
		Use:     "toggle <prospect-id> <reminder-id>",
		Aliases: []string{"done"},
		Short:   "Mark a reminder completed, or open again with --reopen",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				r, err := a.Executor.ToggleReminder(ctx, models.ParseID(args[0]), models.ParseID(args[1]), !reopen)
				if err != nil {
					return err
				}
				label := "completed"
				if !r.Completed {
					label = "reopened"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Reminder %s %s\n", r.ID, label)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reopen, "reopen", false, "Mark the reminder open again")
	return cmd
}

func newReminderDeleteCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <prospect-id> <reminder-id>",
		Short: "Delete a reminder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id := models.ParseID(args[1])
				if err := a.Executor.DeleteReminder(ctx, models.ParseID(args[0]), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Reminder deleted: %s\n", id)
				return nil
			})
		},
	}
}
