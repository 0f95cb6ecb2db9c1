// ABOUTME: Reminder and location MCP tool handlers
// ABOUTME: Reminders go through the executor; locations are written straight to the backend
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/mutation"
)

type ReminderHandlers struct {
	exec *mutation.Executor
}

func NewReminderHandlers(exec *mutation.Executor) *ReminderHandlers {
	return &ReminderHandlers{exec: exec}
}

type AddReminderInput struct {
	ProspectID string `json:"prospect_id" jsonschema:"Prospect ID (required)"`
	DueAt      string `json:"due_at" jsonschema:"Due date (RFC 3339 or YYYY-MM-DD, required); one reminder per day"`
	Note       string `json:"note,omitempty" jsonschema:"What to follow up on"`
}

func (h *ReminderHandlers) AddReminder(ctx context.Context, _ *mcp.CallToolRequest, input AddReminderInput) (*mcp.CallToolResult, ReminderOutput, error) {
	pid, err := requireID("prospect_id", input.ProspectID)
	if err != nil {
		return nil, ReminderOutput{}, err
	}
	due, err := parseTime("due_at", input.DueAt)
	if err != nil {
		return nil, ReminderOutput{}, err
	}
	if due == nil {
		return nil, ReminderOutput{}, fmt.Errorf("due_at is required")
	}

	r, err := h.exec.AddReminder(ctx, pid, models.ReminderInput{DueAt: *due, Note: input.Note})
	if err != nil {
		return nil, ReminderOutput{}, fmt.Errorf("failed to add reminder: %w", err)
	}
	return nil, reminderToOutput(r), nil
}

type ToggleReminderInput struct {
	ProspectID string `json:"prospect_id" jsonschema:"Prospect ID (required)"`
	ReminderID string `json:"reminder_id" jsonschema:"Reminder ID (required)"`
	Completed  bool   `json:"completed" jsonschema:"Mark done (true) or open (false)"`
}

func (h *ReminderHandlers) ToggleReminder(ctx context.Context, _ *mcp.CallToolRequest, input ToggleReminderInput) (*mcp.CallToolResult, ReminderOutput, error) {
	pid, err := requireID("prospect_id", input.ProspectID)
	if err != nil {
		return nil, ReminderOutput{}, err
	}
	rid, err := requireID("reminder_id", input.ReminderID)
	if err != nil {
		return nil, ReminderOutput{}, err
	}
	r, err := h.exec.ToggleReminder(ctx, pid, rid, input.Completed)
	if err != nil {
		return nil, ReminderOutput{}, fmt.Errorf("failed to toggle reminder: %w", err)
	}
	return nil, reminderToOutput(r), nil
}

type DeleteReminderInput struct {
	ProspectID string `json:"prospect_id" jsonschema:"Prospect ID (required)"`
	ReminderID string `json:"reminder_id" jsonschema:"Reminder ID (required)"`
}

func (h *ReminderHandlers) DeleteReminder(ctx context.Context, _ *mcp.CallToolRequest, input DeleteReminderInput) (*mcp.CallToolResult, DeleteOutput, error) {
	pid, err := requireID("prospect_id", input.ProspectID)
	if err != nil {
		return nil, DeleteOutput{}, err
	}
	rid, err := requireID("reminder_id", input.ReminderID)
	if err != nil {
		return nil, DeleteOutput{}, err
	}
	if err := h.exec.DeleteReminder(ctx, pid, rid); err != nil {
		return nil, DeleteOutput{}, fmt.Errorf("failed to delete reminder: %w", err)
	}
	return nil, DeleteOutput{ID: rid.String(), Deleted: true}, nil
}

type LocationHandlers struct {
	backend backend.Backend
}

func NewLocationHandlers(b backend.Backend) *LocationHandlers {
	return &LocationHandlers{backend: b}
}

type LocationOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type ListLocationsInput struct{}

type ListLocationsOutput struct {
	Locations []LocationOutput `json:"locations"`
}

func (h *LocationHandlers) ListLocations(ctx context.Context, _ *mcp.CallToolRequest, _ ListLocationsInput) (*mcp.CallToolResult, ListLocationsOutput, error) {
	locations, err := h.backend.ListLocations(ctx)
	if err != nil {
		return nil, ListLocationsOutput{}, fmt.Errorf("failed to list locations: %w", err)
	}
	out := ListLocationsOutput{Locations: make([]LocationOutput, 0, len(locations))}
	for _, l := range locations {
		out.Locations = append(out.Locations, locationToOutput(l))
	}
	return nil, out, nil
}

type AddLocationInput struct {
	Name string `json:"name" jsonschema:"Location name (required, unique)"`
}

func (h *LocationHandlers) AddLocation(ctx context.Context, _ *mcp.CallToolRequest, input AddLocationInput) (*mcp.CallToolResult, LocationOutput, error) {
	l, err := h.backend.CreateLocation(ctx, input.Name)
	if err != nil {
		return nil, LocationOutput{}, fmt.Errorf("failed to add location: %w", err)
	}
	return nil, locationToOutput(l), nil
}

func locationToOutput(l models.Location) LocationOutput {
	return LocationOutput{ID: l.ID, Name: l.Name, CreatedAt: l.CreatedAt.Format(time.RFC3339)}
}
