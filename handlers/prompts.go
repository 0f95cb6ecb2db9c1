// ABOUTME: MCP prompt handlers for reusable scheduling workflows
// ABOUTME: Builds a daily agenda briefing and a per-prospect follow-up plan from the store
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/mutation"
)

type PromptHandlers struct {
	exec *mutation.Executor
	now  func() time.Time
}

func NewPromptHandlers(exec *mutation.Executor) *PromptHandlers {
	return &PromptHandlers{exec: exec, now: time.Now}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(_ context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "daily-agenda":
		return h.dailyAgenda(request.Params.Arguments)
	case "follow-up-plan":
		return h.followUpPlan(request.Params.Arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) dailyAgenda(args map[string]string) (*mcp.GetPromptResult, error) {
	day := h.now()
	if raw := args["date"]; raw != "" {
		t, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date: %w", err)
		}
		day = t
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	all := h.exec.Store().All()
	models.SortByStart(all)

	var text strings.Builder
	fmt.Fprintf(&text, "Cleaning schedule for %s\n\n", start.Format("Monday, January 2 2006"))

	booked := 0
	for i := range all {
		p := &all[i]
		if !p.InRange(start, end) || p.Status == models.StatusCancelled {
			continue
		}
		booked++
		fmt.Fprintf(&text, "- %s %s (%s, %s)", p.StartsAt.Format("15:04"), displayName(p), p.Status, describeServices(p.Services))
		if p.Address != "" {
			fmt.Fprintf(&text, " at %s", p.Address)
		}
		text.WriteString("\n")
	}
	if booked == 0 {
		text.WriteString("No bookings.\n")
	}

	var due []string
	for i := range all {
		for _, r := range all[i].Reminders {
			if !r.Completed && models.SameDay(start, r.DueAt) {
				due = append(due, fmt.Sprintf("- %s: %s", displayName(&all[i]), r.Note))
			}
		}
	}
	if len(due) > 0 {
		text.WriteString("\nReminders due:\n")
		text.WriteString(strings.Join(due, "\n"))
		text.WriteString("\n")
	}

	text.WriteString("\nPlease suggest a route order for the bookings and flag anything that needs a confirmation call.")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Agenda for %s", start.Format(time.DateOnly)),
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text.String()},
			},
		},
	}, nil
}

func (h *PromptHandlers) followUpPlan(args map[string]string) (*mcp.GetPromptResult, error) {
	raw, ok := args["prospect_id"]
	if !ok || raw == "" {
		return nil, fmt.Errorf("prospect_id is required")
	}
	p, ok := h.exec.Store().Get(models.ParseID(raw))
	if !ok {
		return nil, fmt.Errorf("prospect %s: %w", raw, mutation.ErrUnknownProspect)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Customer: %s\nPhone: %s\nStatus: %s (priority %s)\n", displayName(&p), p.Phone, p.Status, p.Priority)
	if p.StartsAt != nil {
		fmt.Fprintf(&text, "Booked for: %s\n", p.StartsAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&text, "Services: %s\n", describeServices(p.Services))
	if len(p.Reminders) > 0 {
		text.WriteString("Existing reminders:\n")
		for _, r := range p.Reminders {
			state := "open"
			if r.Completed {
				state = "done"
			}
			fmt.Fprintf(&text, "- %s [%s] %s\n", r.DueAt.Format(time.DateOnly), state, r.Note)
		}
	}
	if p.Notes != "" {
		fmt.Fprintf(&text, "\nNotes: %s\n", p.Notes)
	}
	text.WriteString("\nPropose follow-up reminders (at most one per day) that move this booking forward.")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Follow-up plan for %s", displayName(&p)),
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text.String()},
			},
		},
	}, nil
}

func displayName(p *models.Prospect) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Phone
}

func describeServices(services []models.Service) string {
	if len(services) == 0 {
		return "no services"
	}
	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, string(s.Type))
	}
	return strings.Join(names, ", ")
}
