// ABOUTME: Flag value parsing for services, dates and reminders
// ABOUTME: Keeps the command files free of string munging
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/spruce/models"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", time.DateOnly}

// parseWhen reads a local date or date-time. Empty input is nil.
func parseWhen(flag, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s %q: use YYYY-MM-DD or YYYY-MM-DDTHH:MM", flag, value)
}

// parseService reads "type[:key=value,...]", e.g. "couch:material=linen,seats=3".
func parseService(raw string) (models.ServiceInput, error) {
	kind, rest, _ := strings.Cut(strings.TrimSpace(raw), ":")
	svc := models.ServiceInput{Type: models.ServiceType(strings.ToLower(kind))}
	if rest == "" {
		return svc, nil
	}
	for _, pair := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return svc, fmt.Errorf("invalid service detail %q: want key=value", pair)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "material":
			svc.Details.Material = value
		case "size":
			svc.Details.Size = value
		case "seats", "quantity", "qty":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return svc, fmt.Errorf("invalid %s %q", key, value)
			}
			if key == "seats" {
				svc.Details.Seats = n
			} else {
				svc.Details.Quantity = n
			}
		default:
			return svc, fmt.Errorf("unknown service detail %q", key)
		}
	}
	return svc, nil
}

func parseServices(raw []string) ([]models.ServiceInput, error) {
	out := make([]models.ServiceInput, 0, len(raw))
	for _, r := range raw {
		svc, err := parseService(r)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// parseReminder reads "YYYY-MM-DD[ note]".
func parseReminder(raw string) (models.ReminderInput, error) {
	date, note, _ := strings.Cut(strings.TrimSpace(raw), " ")
	due, err := parseWhen("remind", date)
	if err != nil {
		return models.ReminderInput{}, err
	}
	if due == nil {
		return models.ReminderInput{}, fmt.Errorf("reminder needs a date")
	}
	return models.ReminderInput{DueAt: *due, Note: strings.TrimSpace(note)}, nil
}

func describeServices(services []models.Service) string {
	parts := make([]string, 0, len(services))
	for _, s := range services {
		d := s.Details
		var extra []string
		if d.Material != "" {
			extra = append(extra, d.Material)
		}
		if d.Size != "" {
			extra = append(extra, d.Size)
		}
		if d.Seats > 0 {
			extra = append(extra, fmt.Sprintf("%d seats", d.Seats))
		}
		if d.Quantity > 1 {
			extra = append(extra, fmt.Sprintf("x%d", d.Quantity))
		}
		if len(extra) > 0 {
			parts = append(parts, fmt.Sprintf("%s (%s)", s.Type, strings.Join(extra, ", ")))
		} else {
			parts = append(parts, string(s.Type))
		}
	}
	return strings.Join(parts, "; ")
}

func formatWhen(t *time.Time, allDay bool) string {
	if t == nil {
		return "-"
	}
	if allDay {
		return t.Local().Format("Mon Jan 2")
	}
	return t.Local().Format("Mon Jan 2 15:04")
}

func displayName(p *models.Prospect) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Phone
}
