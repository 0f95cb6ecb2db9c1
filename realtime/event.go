// ABOUTME: Change events pushed by the backend for prospects, services, reminders and locations
// ABOUTME: Mirrors the {eventType, table, old, new} shape of a row-level change feed
package realtime

import (
	"context"
	"errors"
	"time"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

type Table string

const (
	TableProspects Table = "prospects"
	TableServices  Table = "services"
	TableReminders Table = "reminders"
	TableLocations Table = "locations"
)

// Record carries the keys of a changed row. Consumers refetch instead of patching,
// so no other columns travel with the event.
type Record struct {
	ID         string `json:"id"`
	ProspectID string `json:"prospect_id,omitempty"`
}

type Event struct {
	Type  EventType `json:"eventType"`
	Table Table     `json:"table"`
	Old   *Record   `json:"old,omitempty"`
	New   *Record   `json:"new,omitempty"`
	At    time.Time `json:"at"`
}

// ProspectID names the prospect the change belongs to, or "" for locations.
func (e Event) ProspectID() string {
	switch e.Table {
	case TableProspects:
		if e.New != nil {
			return e.New.ID
		}
		if e.Old != nil {
			return e.Old.ID
		}
	case TableServices, TableReminders:
		if e.New != nil && e.New.ProspectID != "" {
			return e.New.ProspectID
		}
		if e.Old != nil {
			return e.Old.ProspectID
		}
	}
	return ""
}

// Touches reports whether the event concerns the given prospect: its own row
// (new.id or old.id) or a child row (new.prospect_id or old.prospect_id).
func (e Event) Touches(prospectID string) bool {
	if prospectID == "" {
		return false
	}
	if e.Table == TableProspects {
		return (e.New != nil && e.New.ID == prospectID) || (e.Old != nil && e.Old.ID == prospectID)
	}
	return (e.New != nil && e.New.ProspectID == prospectID) || (e.Old != nil && e.Old.ProspectID == prospectID)
}

// Removes reports whether the event means the prospect itself no longer exists.
func (e Event) Removes(prospectID string) bool {
	if e.Table != TableProspects || !e.Touches(prospectID) {
		return false
	}
	return e.Type == Delete || e.New == nil
}

// Publisher accepts change events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Publishers fans one event out to several publishers.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }
