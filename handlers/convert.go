// ABOUTME: Conversions between MCP tool payloads and scheduler models
// ABOUTME: Times travel as RFC 3339 strings or YYYY-MM-DD dates
package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/spruce/models"
)

type ServiceArg struct {
	Type     string `json:"type" jsonschema:"Service type: couch, carpet, car-seats (alias auto-detailing) or mattress"`
	Material string `json:"material,omitempty" jsonschema:"Couch material"`
	Seats    int    `json:"seats,omitempty" jsonschema:"Seat count for couches and car seats"`
	Size     string `json:"size,omitempty" jsonschema:"Carpet or mattress size"`
	Quantity int    `json:"quantity,omitempty" jsonschema:"Number of carpets or mattresses"`
}

type ServiceOutput struct {
	Type     string `json:"type"`
	Material string `json:"material,omitempty"`
	Seats    int    `json:"seats,omitempty"`
	Size     string `json:"size,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

type ReminderOutput struct {
	ID        string `json:"id"`
	DueAt     string `json:"due_at"`
	Note      string `json:"note,omitempty"`
	Completed bool   `json:"completed"`
}

type ProspectOutput struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Phone        string           `json:"phone"`
	Address      string           `json:"address,omitempty"`
	LocationID   string           `json:"location_id,omitempty"`
	LocationName string           `json:"location_name,omitempty"`
	StartsAt     string           `json:"starts_at,omitempty"`
	EndsAt       string           `json:"ends_at,omitempty"`
	AllDay       bool             `json:"all_day"`
	Notes        string           `json:"notes,omitempty"`
	Status       string           `json:"status"`
	Priority     string           `json:"priority"`
	Position     float64          `json:"position"`
	SaveStatus   string           `json:"save_status,omitempty"`
	Services     []ServiceOutput  `json:"services"`
	Reminders    []ReminderOutput `json:"reminders"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

func prospectToOutput(p models.Prospect) ProspectOutput {
	out := ProspectOutput{
		ID:           p.ID.String(),
		Name:         p.Name,
		Phone:        p.Phone,
		Address:      p.Address,
		LocationID:   p.LocationID,
		LocationName: p.LocationName,
		StartsAt:     formatTime(p.StartsAt),
		EndsAt:       formatTime(p.EndsAt),
		AllDay:       p.AllDay,
		Notes:        p.Notes,
		Status:       string(p.Status),
		Priority:     string(p.Priority),
		Position:     p.Position,
		SaveStatus:   string(p.SaveStatus),
		Services:     make([]ServiceOutput, 0, len(p.Services)),
		Reminders:    make([]ReminderOutput, 0, len(p.Reminders)),
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    p.UpdatedAt.Format(time.RFC3339),
	}
	for _, s := range p.Services {
		out.Services = append(out.Services, ServiceOutput{
			Type:     string(s.Type),
			Material: s.Details.Material,
			Seats:    s.Details.Seats,
			Size:     s.Details.Size,
			Quantity: s.Details.Quantity,
		})
	}
	for _, r := range p.Reminders {
		out.Reminders = append(out.Reminders, reminderToOutput(r))
	}
	return out
}

func reminderToOutput(r models.Reminder) ReminderOutput {
	return ReminderOutput{
		ID:        r.ID.String(),
		DueAt:     r.DueAt.Format(time.RFC3339),
		Note:      r.Note,
		Completed: r.Completed,
	}
}

func serviceInputs(args []ServiceArg) []models.ServiceInput {
	out := make([]models.ServiceInput, 0, len(args))
	for _, a := range args {
		out = append(out, models.ServiceInput{
			Type: models.ServiceType(strings.ToLower(strings.TrimSpace(a.Type))),
			Details: models.ServiceDetails{
				Material: a.Material,
				Seats:    a.Seats,
				Size:     a.Size,
				Quantity: a.Quantity,
			},
		})
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// parseTime accepts RFC 3339 timestamps and YYYY-MM-DD dates. Empty input is nil.
func parseTime(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid %s %q: use RFC 3339 or YYYY-MM-DD", field, value)
}

func requireID(field, value string) (models.ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.ID{}, fmt.Errorf("%s is required", field)
	}
	return models.ParseID(value), nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
