// ABOUTME: Prospect MCP tool handlers
// ABOUTME: Implements create, get, update, delete, move, retry and list over the mutation executor
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/mutation"
)

type ProspectHandlers struct {
	exec *mutation.Executor
}

func NewProspectHandlers(exec *mutation.Executor) *ProspectHandlers {
	return &ProspectHandlers{exec: exec}
}

type CreateProspectInput struct {
	Name       string       `json:"name,omitempty" jsonschema:"Customer name"`
	Phone      string       `json:"phone" jsonschema:"Customer phone number (required)"`
	Address    string       `json:"address,omitempty" jsonschema:"Service address"`
	LocationID string       `json:"location_id,omitempty" jsonschema:"Service area location ID"`
	StartsAt   string       `json:"starts_at,omitempty" jsonschema:"Booking start (RFC 3339 or YYYY-MM-DD); required when confirmed"`
	EndsAt     string       `json:"ends_at,omitempty" jsonschema:"Booking end (RFC 3339 or YYYY-MM-DD)"`
	AllDay     bool         `json:"all_day,omitempty" jsonschema:"Whole-day booking"`
	Notes      string       `json:"notes,omitempty" jsonschema:"Free-form notes"`
	Status     string       `json:"status,omitempty" jsonschema:"pending (default), confirmed, completed or cancelled"`
	Priority   string       `json:"priority,omitempty" jsonschema:"low, medium (default) or high"`
	Services   []ServiceArg `json:"services" jsonschema:"Services to perform (at least one)"`
}

func (in CreateProspectInput) toModel() (models.ProspectInput, error) {
	starts, err := parseTime("starts_at", in.StartsAt)
	if err != nil {
		return models.ProspectInput{}, err
	}
	ends, err := parseTime("ends_at", in.EndsAt)
	if err != nil {
		return models.ProspectInput{}, err
	}
	return models.ProspectInput{
		Name:       in.Name,
		Phone:      in.Phone,
		Address:    in.Address,
		LocationID: in.LocationID,
		StartsAt:   starts,
		EndsAt:     ends,
		AllDay:     in.AllDay,
		Notes:      in.Notes,
		Status:     models.Status(strings.ToLower(in.Status)),
		Priority:   models.Priority(strings.ToLower(in.Priority)),
		Services:   serviceInputs(in.Services),
	}, nil
}

func (h *ProspectHandlers) CreateProspect(ctx context.Context, _ *mcp.CallToolRequest, input CreateProspectInput) (*mcp.CallToolResult, ProspectOutput, error) {
	in, err := input.toModel()
	if err != nil {
		return nil, ProspectOutput{}, err
	}
	p, err := h.exec.Create(ctx, in)
	if err != nil {
		return nil, ProspectOutput{}, fmt.Errorf("failed to create prospect: %w", err)
	}
	return nil, prospectToOutput(p), nil
}

type ProspectIDInput struct {
	ID string `json:"id" jsonschema:"Prospect ID (pending IDs start with pending/)"`
}

func (h *ProspectHandlers) lookup(raw string) (models.Prospect, error) {
	id, err := requireID("id", raw)
	if err != nil {
		return models.Prospect{}, err
	}
	p, ok := h.exec.Store().Get(id)
	if !ok {
		return models.Prospect{}, fmt.Errorf("prospect %s: %w", id, mutation.ErrUnknownProspect)
	}
	return p, nil
}

func (h *ProspectHandlers) GetProspect(_ context.Context, _ *mcp.CallToolRequest, input ProspectIDInput) (*mcp.CallToolResult, ProspectOutput, error) {
	p, err := h.lookup(input.ID)
	if err != nil {
		return nil, ProspectOutput{}, err
	}
	return nil, prospectToOutput(p), nil
}

// UpdateProspectInput changes only the fields that are set.
type UpdateProspectInput struct {
	ID         string       `json:"id" jsonschema:"Prospect ID (required)"`
	Name       *string      `json:"name,omitempty" jsonschema:"New customer name"`
	Phone      *string      `json:"phone,omitempty" jsonschema:"New phone number"`
	Address    *string      `json:"address,omitempty" jsonschema:"New service address"`
	LocationID *string      `json:"location_id,omitempty" jsonschema:"New location ID (empty string clears)"`
	StartsAt   *string      `json:"starts_at,omitempty" jsonschema:"New start (empty string clears)"`
	EndsAt     *string      `json:"ends_at,omitempty" jsonschema:"New end (empty string clears)"`
	AllDay     *bool        `json:"all_day,omitempty" jsonschema:"Whole-day booking"`
	Notes      *string      `json:"notes,omitempty" jsonschema:"New notes"`
	Status     *string      `json:"status,omitempty" jsonschema:"New status"`
	Priority   *string      `json:"priority,omitempty" jsonschema:"New priority"`
	Services   []ServiceArg `json:"services,omitempty" jsonschema:"Replacement service list"`
}

func (h *ProspectHandlers) UpdateProspect(ctx context.Context, _ *mcp.CallToolRequest, input UpdateProspectInput) (*mcp.CallToolResult, ProspectOutput, error) {
	current, err := h.lookup(input.ID)
	if err != nil {
		return nil, ProspectOutput{}, err
	}

	in := current.Input()
	setString(&in.Name, input.Name)
	setString(&in.Phone, input.Phone)
	setString(&in.Address, input.Address)
	setString(&in.LocationID, input.LocationID)
	setString(&in.Notes, input.Notes)
	if input.AllDay != nil {
		in.AllDay = *input.AllDay
	}
	if input.Status != nil {
		in.Status = models.Status(strings.ToLower(*input.Status))
	}
	if input.Priority != nil {
		in.Priority = models.Priority(strings.ToLower(*input.Priority))
	}
	if input.StartsAt != nil {
		if in.StartsAt, err = parseTime("starts_at", *input.StartsAt); err != nil {
			return nil, ProspectOutput{}, err
		}
	}
	if input.EndsAt != nil {
		if in.EndsAt, err = parseTime("ends_at", *input.EndsAt); err != nil {
			return nil, ProspectOutput{}, err
		}
	}
	if len(input.Services) > 0 {
		in.Services = serviceInputs(input.Services)
	}

	updated, err := h.exec.Update(ctx, current.ID, in)
	if err != nil {
		return nil, ProspectOutput{}, fmt.Errorf("failed to update prospect: %w", err)
	}
	return nil, prospectToOutput(updated), nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

type DeleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (h *ProspectHandlers) DeleteProspect(ctx context.Context, _ *mcp.CallToolRequest, input ProspectIDInput) (*mcp.CallToolResult, DeleteOutput, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, DeleteOutput{}, err
	}
	if err := h.exec.Delete(ctx, id); err != nil {
		return nil, DeleteOutput{}, fmt.Errorf("failed to delete prospect: %w", err)
	}
	return nil, DeleteOutput{ID: id.String(), Deleted: true}, nil
}

type MoveProspectInput struct {
	ID     string `json:"id" jsonschema:"Prospect ID (required)"`
	Status string `json:"status" jsonschema:"Target column: pending, confirmed, completed or cancelled"`
	Index  int    `json:"index" jsonschema:"Zero-based position in the target column"`
}

func (h *ProspectHandlers) MoveProspect(ctx context.Context, _ *mcp.CallToolRequest, input MoveProspectInput) (*mcp.CallToolResult, ProspectOutput, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, ProspectOutput{}, err
	}
	moved, err := h.exec.Move(ctx, id, models.Status(strings.ToLower(input.Status)), input.Index)
	if err != nil {
		return nil, ProspectOutput{}, fmt.Errorf("failed to move prospect: %w", err)
	}
	return nil, prospectToOutput(moved), nil
}

func (h *ProspectHandlers) RetryProspect(ctx context.Context, _ *mcp.CallToolRequest, input ProspectIDInput) (*mcp.CallToolResult, ProspectOutput, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, ProspectOutput{}, err
	}
	p, err := h.exec.Retry(ctx, id)
	if err != nil {
		return nil, ProspectOutput{}, fmt.Errorf("failed to retry prospect: %w", err)
	}
	return nil, prospectToOutput(p), nil
}

type ListProspectsInput struct {
	From   string `json:"from,omitempty" jsonschema:"Only bookings starting at or after this time"`
	To     string `json:"to,omitempty" jsonschema:"Only bookings starting before this time"`
	Status string `json:"status,omitempty" jsonschema:"Only this status, in board order"`
}

type ListProspectsOutput struct {
	Prospects []ProspectOutput `json:"prospects"`
}

func (h *ProspectHandlers) ListProspects(_ context.Context, _ *mcp.CallToolRequest, input ListProspectsInput) (*mcp.CallToolResult, ListProspectsOutput, error) {
	from, err := parseTime("from", input.From)
	if err != nil {
		return nil, ListProspectsOutput{}, err
	}
	to, err := parseTime("to", input.To)
	if err != nil {
		return nil, ListProspectsOutput{}, err
	}

	var prospects []models.Prospect
	if input.Status != "" {
		status := models.Status(strings.ToLower(input.Status))
		if !status.Valid() {
			return nil, ListProspectsOutput{}, fmt.Errorf("unknown status %q", input.Status)
		}
		prospects = h.exec.Store().Column(status)
	} else {
		prospects = h.exec.Store().All()
		models.SortByStart(prospects)
	}

	out := ListProspectsOutput{Prospects: []ProspectOutput{}}
	for i := range prospects {
		if !prospects[i].InRange(deref(from), deref(to)) {
			continue
		}
		out.Prospects = append(out.Prospects, prospectToOutput(prospects[i]))
	}
	return nil, out, nil
}
