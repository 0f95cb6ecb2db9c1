// ABOUTME: Prospect CLI commands
// ABOUTME: Implements prospect add, list, show, update, delete and move
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harperreed/spruce/app"
	"github.com/harperreed/spruce/models"
)

type prospectFlags struct {
	name, phone, address, location string
	start, end                     string
	allDay                         bool
	notes, status, priority        string
	services                       []string
	reminders                      []string
}

func (f *prospectFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "Customer name")
	fl.StringVar(&f.phone, "phone", "", "Phone number")
	fl.StringVar(&f.address, "address", "", "Service address")
	fl.StringVar(&f.location, "location", "", "Location ID")
	fl.StringVar(&f.start, "start", "", "Start (YYYY-MM-DD or YYYY-MM-DDTHH:MM)")
	fl.StringVar(&f.end, "end", "", "End (YYYY-MM-DD or YYYY-MM-DDTHH:MM)")
	fl.BoolVar(&f.allDay, "all-day", false, "Whole-day booking")
	fl.StringVar(&f.notes, "notes", "", "Notes")
	fl.StringVar(&f.status, "status", "", "pending, confirmed, completed or cancelled")
	fl.StringVar(&f.priority, "priority", "", "low, medium or high")
	fl.StringArrayVar(&f.services, "service", nil, `Service, repeatable: "couch:material=linen,seats=3", "carpet:size=9x12,quantity=2"`)
	fl.StringArrayVar(&f.reminders, "remind", nil, `Reminder, repeatable: "2026-07-01 call to confirm"`)
}

// apply writes every flag the user set onto in.
func (f *prospectFlags) apply(cmd *cobra.Command, in *models.ProspectInput) error {
	changed := cmd.Flags().Changed
	if changed("name") {
		in.Name = f.name
	}
	if changed("phone") {
		in.Phone = f.phone
	}
	if changed("address") {
		in.Address = f.address
	}
	if changed("location") {
		in.LocationID = f.location
	}
	if changed("notes") {
		in.Notes = f.notes
	}
	if changed("all-day") {
		in.AllDay = f.allDay
	}
	if changed("status") {
		in.Status = models.Status(strings.ToLower(f.status))
	}
	if changed("priority") {
		in.Priority = models.Priority(strings.ToLower(f.priority))
	}
	var err error
	if changed("start") {
		if in.StartsAt, err = parseWhen("start", f.start); err != nil {
			return err
		}
	}
	if changed("end") {
		if in.EndsAt, err = parseWhen("end", f.end); err != nil {
			return err
		}
	}
	if changed("service") {
		if in.Services, err = parseServices(f.services); err != nil {
			return err
		}
	}
	if changed("remind") {
		in.Reminders = in.Reminders[:0]
		for _, raw := range f.reminders {
			r, err := parseReminder(raw)
			if err != nil {
				return err
			}
			in.Reminders = append(in.Reminders, r)
		}
	}
	return nil
}

func newProspectCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prospect",
		Aliases: []string{"p"},
		Short:   "Manage booking prospects",
	}
	cmd.AddCommand(
		newProspectAddCommand(s),
		newProspectListCommand(s),
		newProspectShowCommand(s),
		newProspectUpdateCommand(s),
		newProspectDeleteCommand(s),
		newProspectMoveCommand(s),
	)
	return cmd
}

func newProspectAddCommand(s *state) *cobra.Command {
	f := &prospectFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Book a new prospect",
		Example: `  spruce prospect add --name "Dana Ruiz" --phone 555-0142 --start 2026-07-04T10:00 \
    --service couch:material=linen,seats=3 --remind "2026-07-02 confirm parking"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in models.ProspectInput
			if err := f.apply(cmd, &in); err != nil {
				return err
			}
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.Executor.Create(ctx, in)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "✓ Prospect created: %s (ID: %s)\n", displayName(&p), p.ID)
				fmt.Fprintf(out, "  When: %s\n", formatWhen(p.StartsAt, p.AllDay))
				fmt.Fprintf(out, "  Services: %s\n", describeServices(p.Services))
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newProspectListCommand(s *state) *cobra.Command {
	var from, to, status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List prospects by start time",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromT, err := parseWhen("from", from)
			if err != nil {
				return err
			}
			toT, err := parseWhen("to", to)
			if err != nil {
				return err
			}
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Store.SetScope(deref(fromT), deref(toT))
				prospects := a.Store.Scoped()
				if status != "" {
					filtered := prospects[:0]
					for _, p := range prospects {
						if string(p.Status) == strings.ToLower(status) {
							filtered = append(filtered, p)
						}
					}
					prospects = filtered
				}
				models.SortByStart(prospects)
				printProspects(cmd.OutOrStdout(), prospects)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Only bookings starting at or after this date")
	cmd.Flags().StringVar(&to, "to", "", "Only bookings starting before this date")
	cmd.Flags().StringVar(&status, "status", "", "Only this status")
	return cmd
}

func printProspects(out io.Writer, prospects []models.Prospect) {
	if len(prospects) == 0 {
		fmt.Fprintln(out, "No prospects found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPHONE\tWHEN\tSTATUS\tPRIORITY\tSERVICES")
	for i := range prospects {
		p := &prospects[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, displayName(p), p.Phone, formatWhen(p.StartsAt, p.AllDay), p.Status, p.Priority, describeServices(p.Services))
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\nTotal: %d prospect(s)\n", len(prospects))
}

func newProspectShowCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one prospect with its reminders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := lookup(a, args[0])
				if err != nil {
					return err
				}
				printProspect(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
}

func lookup(a *app.App, raw string) (models.Prospect, error) {
	p, ok := a.Store.Get(models.ParseID(raw))
	if !ok {
		return models.Prospect{}, fmt.Errorf("prospect %s not found", raw)
	}
	return p, nil
}

func printProspect(out io.Writer, p models.Prospect) {
	fmt.Fprintf(out, "%s (ID: %s)\n", displayName(&p), p.ID)
	fmt.Fprintf(out, "  Phone: %s\n", p.Phone)
	if p.Address != "" {
		fmt.Fprintf(out, "  Address: %s\n", p.Address)
	}
	if p.LocationName != "" {
		fmt.Fprintf(out, "  Location: %s\n", p.LocationName)
	}
	fmt.Fprintf(out, "  When: %s\n", formatWhen(p.StartsAt, p.AllDay))
	fmt.Fprintf(out, "  Status: %s  Priority: %s\n", p.Status, p.Priority)
	fmt.Fprintf(out, "  Services: %s\n", describeServices(p.Services))
	if p.Notes != "" {
		fmt.Fprintf(out, "  Notes: %s\n", p.Notes)
	}
	if len(p.Reminders) > 0 {
		fmt.Fprintln(out, "  Reminders:")
		for _, r := range p.Reminders {
			mark := " "
			if r.Completed {
				mark = "x"
			}
			fmt.Fprintf(out, "    [%s] %s %s (ID: %s)\n", mark, r.DueAt.Local().Format(time.DateOnly), r.Note, r.ID)
		}
	}
}

func newProspectUpdateCommand(s *state) *cobra.Command {
	f := &prospectFlags{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a prospect; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				current, err := lookup(a, args[0])
				if err != nil {
					return err
				}
				in := current.Input()
				if err := f.apply(cmd, &in); err != nil {
					return err
				}
				p, err := a.Executor.Update(ctx, current.ID, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Prospect updated: %s (ID: %s)\n", displayName(&p), p.ID)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newProspectDeleteCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a prospect and its reminders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id := models.ParseID(args[0])
				if err := a.Executor.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Prospect deleted: %s\n", id)
				return nil
			})
		},
	}
}

func newProspectMoveCommand(s *state) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a prospect to a board column",
		Long:  "Moves the prospect into the status column at --index (0 is the top; default the bottom).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd, func(ctx context.Context, a *app.App) error {
				status := models.Status(strings.ToLower(args[1]))
				at := index
				if at < 0 {
					at = len(a.Store.Column(status))
				}
				p, err := a.Executor.Move(ctx, models.ParseID(args[0]), status, at)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s moved to %s\n", displayName(&p), p.Status)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&index, "index", -1, "Position in the target column")
	return cmd
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
