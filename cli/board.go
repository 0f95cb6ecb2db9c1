// ABOUTME: Read-only schedule views: daily agenda, kanban board and live watch
// ABOUTME: watch follows one prospect through realtime events until interrupted
package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/harperreed/spruce/app"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/reconcile"
)

func newAgendaCommand(s *state) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Show one day's bookings and due reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if date != "" {
				t, err := parseWhen("date", date)
				if err != nil {
					return err
				}
				day = *t
			}
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				printAgenda(cmd.OutOrStdout(), day, a.Store.All())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to show (YYYY-MM-DD, default today)")
	return cmd
}

func printAgenda(out io.Writer, day time.Time, all []models.Prospect) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	models.SortByStart(all)

	fmt.Fprintf(out, "%s\n\n", start.Format("Monday, January 2 2006"))
	booked := 0
	for i := range all {
		p := &all[i]
		if !p.InRange(start, end) {
			continue
		}
		booked++
		fmt.Fprintf(out, "  %s  %s [%s] %s\n", formatWhen(p.StartsAt, p.AllDay), displayName(p), p.Status, describeServices(p.Services))
	}
	if booked == 0 {
		fmt.Fprintln(out, "  No bookings.")
	}

	var due []string
	for i := range all {
		for _, r := range all[i].Reminders {
			if !r.Completed && models.SameDay(start, r.DueAt) {
				due = append(due, fmt.Sprintf("  [ ] %s: %s (ID: %s)", displayName(&all[i]), r.Note, r.ID))
			}
		}
	}
	if len(due) > 0 {
		fmt.Fprintln(out, "\nReminders due:")
		for _, line := range due {
			fmt.Fprintln(out, line)
		}
	}
}

func newBoardCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the kanban board by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				for _, status := range models.Statuses {
					column := a.Store.Column(status)
					fmt.Fprintf(out, "%s (%d)\n", status, len(column))
					for i := range column {
						p := &column[i]
						fmt.Fprintf(out, "  %d. %s  %s  (ID: %s)\n", i, displayName(p), formatWhen(p.StartsAt, p.AllDay), p.ID)
					}
				}
				return nil
			})
		},
	}
}

// printView writes every refetch of a watched prospect.
type printView struct {
	out    io.Writer
	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func (v *printView) Refreshed(p models.Prospect) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "\n[%s] updated\n", time.Now().Format("15:04:05"))
	printProspect(v.out, p)
}

func (v *printView) Closed(id models.ID) {
	v.mu.Lock()
	fmt.Fprintf(v.out, "\nProspect %s was deleted.\n", id)
	v.mu.Unlock()
	v.once.Do(func() { close(v.closed) })
}

func (v *printView) Failed(id models.ID, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "\nRefresh of %s failed: %v\n", id, err)
}

func newWatchCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a prospect live until interrupted",
		Long: `Prints the prospect, then reprints it whenever it, its services or its reminders
change anywhere. Changes from other processes arrive through the Redis bridge.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := lookup(a, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printProspect(out, p)

				view := &printView{out: out, closed: make(chan struct{})}
				w, err := a.Reconciler.Watch(reconcile.DetailChannel, p.ID, view)
				if err != nil {
					return err
				}
				defer w.Close()

				select {
				case <-ctx.Done():
				case <-view.closed:
				}
				return nil
			})
		},
	}
}
