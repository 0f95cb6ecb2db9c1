// ABOUTME: Data models for the cleaning-service scheduler
// ABOUTME: Defines Prospect, Service, Reminder and Location plus their enums
package models

import (
	"sort"
	"time"
)

// Status is the booking state of a prospect. Each status is a kanban column.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists the kanban columns in board order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// SaveStatus is client-only bookkeeping for optimistic creations. It never reaches the backend.
type SaveStatus string

const (
	SaveStatusNone   SaveStatus = ""
	SaveStatusSaving SaveStatus = "saving"
	SaveStatusSaved  SaveStatus = "saved"
	SaveStatusError  SaveStatus = "error"
)

type ServiceType string

const (
	ServiceCouch    ServiceType = "couch"
	ServiceCarpet   ServiceType = "carpet"
	ServiceCarSeats ServiceType = "car-seats"
	ServiceMattress ServiceType = "mattress"

	// ServiceAutoDetailing is accepted on input and stored as ServiceCarSeats.
	ServiceAutoDetailing ServiceType = "auto-detailing"
)

// NormalizeServiceType folds input aliases onto the stored service types.
func NormalizeServiceType(t ServiceType) ServiceType {
	if t == ServiceAutoDetailing {
		return ServiceCarSeats
	}
	return t
}

// ServiceDetails holds the type-specific fields of a service. Couch uses
// Material and Seats, carpet and mattress use Size and Quantity, car seats use Seats.
type ServiceDetails struct {
	Material string `json:"material,omitempty"`
	Seats    int    `json:"seats,omitempty"`
	Size     string `json:"size,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

type Service struct {
	ID         string         `json:"id"`
	ProspectID string         `json:"prospect_id"`
	Type       ServiceType    `json:"type"`
	Details    ServiceDetails `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

type Reminder struct {
	ID         ID        `json:"id"`
	ProspectID string    `json:"prospect_id"`
	DueAt      time.Time `json:"due_at"`
	Note       string    `json:"note,omitempty"`
	Completed  bool      `json:"completed"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Prospect is a customer booking. Services and reminders are owned by it and
// always replaced wholesale.
type Prospect struct {
	ID           ID         `json:"id"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address,omitempty"`
	LocationID   string     `json:"location_id,omitempty"`
	LocationName string     `json:"location_name,omitempty"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	AllDay       bool       `json:"all_day"`
	Notes        string     `json:"notes,omitempty"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority"`
	Position     float64    `json:"position"`
	Services     []Service  `json:"services"`
	Reminders    []Reminder `json:"reminders"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	SaveStatus   SaveStatus     `json:"-"`
	OriginalData *ProspectInput `json:"-"`
}

// InRange reports whether the prospect starts inside [from, to). A zero bound is open.
func (p *Prospect) InRange(from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	if p.StartsAt == nil {
		return false
	}
	if !from.IsZero() && p.StartsAt.Before(from) {
		return false
	}
	if !to.IsZero() && !p.StartsAt.Before(to) {
		return false
	}
	return true
}

// ReminderIndex returns the position of the reminder with the given ID, or -1.
func (p *Prospect) ReminderIndex(id ID) int {
	for i := range p.Reminders {
		if p.Reminders[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (p Prospect) Clone() Prospect {
	out := p
	out.StartsAt = cloneTime(p.StartsAt)
	out.EndsAt = cloneTime(p.EndsAt)
	if p.Services != nil {
		out.Services = append([]Service(nil), p.Services...)
	}
	if p.Reminders != nil {
		out.Reminders = append([]Reminder(nil), p.Reminders...)
	}
	if p.OriginalData != nil {
		in := p.OriginalData.Clone()
		out.OriginalData = &in
	}
	return out
}

// Input converts the prospect back into a submission payload.
func (p *Prospect) Input() ProspectInput {
	in := ProspectInput{
		Name:       p.Name,
		Phone:      p.Phone,
		Address:    p.Address,
		LocationID: p.LocationID,
		StartsAt:   cloneTime(p.StartsAt),
		EndsAt:     cloneTime(p.EndsAt),
		AllDay:     p.AllDay,
		Notes:      p.Notes,
		Status:     p.Status,
		Priority:   p.Priority,
		Position:   p.Position,
	}
	for _, s := range p.Services {
		in.Services = append(in.Services, ServiceInput{Type: s.Type, Details: s.Details})
	}
	for _, r := range p.Reminders {
		in.Reminders = append(in.Reminders, ReminderInput{DueAt: r.DueAt, Note: r.Note, Completed: r.Completed})
	}
	return in
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SortByStart orders prospects by start time with unscheduled ones last, then by creation.
func SortByStart(prospects []Prospect) {
	sort.SliceStable(prospects, func(i, j int) bool {
		a, b := prospects[i], prospects[j]
		switch {
		case a.StartsAt == nil && b.StartsAt != nil:
			return false
		case a.StartsAt != nil && b.StartsAt == nil:
			return true
		case a.StartsAt != nil && !a.StartsAt.Equal(*b.StartsAt):
			return a.StartsAt.Before(*b.StartsAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
