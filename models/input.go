// ABOUTME: Submission payloads and client-side validation rules
// ABOUTME: Uses validator tags for field rules plus explicit reminder cap and same-day checks
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxRemindersPerProspect caps how many reminders one prospect may carry.
const MaxRemindersPerProspect = 5

var (
	ErrTooManyReminders      = errors.New("reminder limit reached")
	ErrDuplicateReminderDate = errors.New("a reminder already exists on that day")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ServiceInput struct {
	Type    ServiceType    `json:"type" validate:"required,oneof=couch carpet car-seats mattress auto-detailing"`
	Details ServiceDetails `json:"details"`
}

type ReminderInput struct {
	DueAt     time.Time `json:"due_at" validate:"required"`
	Note      string    `json:"note,omitempty" validate:"max=500"`
	Completed bool      `json:"completed"`
}

// ProspectInput is a complete prospect submission without an identifier.
type ProspectInput struct {
	Name       string          `json:"name" validate:"max=200"`
	Phone      string          `json:"phone" validate:"required"`
	Address    string          `json:"address,omitempty"`
	LocationID string          `json:"location_id,omitempty"`
	StartsAt   *time.Time      `json:"starts_at,omitempty" validate:"required_if=Status confirmed"`
	EndsAt     *time.Time      `json:"ends_at,omitempty"`
	AllDay     bool            `json:"all_day"`
	Notes      string          `json:"notes,omitempty"`
	Status     Status          `json:"status" validate:"omitempty,oneof=pending confirmed completed cancelled"`
	Priority   Priority        `json:"priority" validate:"omitempty,oneof=low medium high"`
	Position   float64         `json:"position"`
	Services   []ServiceInput  `json:"services" validate:"min=1,dive"`
	Reminders  []ReminderInput `json:"reminders,omitempty" validate:"dive"`
}

// ValidationError lists every rule a submission broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + strings.Join(e.Problems, "; ")
}

// IsValidation reports whether err is a client-side rejection that never reached the backend.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrTooManyReminders) || errors.Is(err, ErrDuplicateReminderDate)
}

// Normalize fills defaults and folds aliases. It is applied before validation and submission.
func (in *ProspectInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Status == "" {
		in.Status = StatusPending
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	for i := range in.Services {
		in.Services[i].Type = NormalizeServiceType(in.Services[i].Type)
	}
}

// Validate checks the submission rules: phone, at least one service, a start time for
// confirmed bookings, the reminder cap and one reminder per day.
func (in ProspectInput) Validate() error {
	return in.ValidateWithLimit(MaxRemindersPerProspect)
}

// ValidateWithLimit is Validate with a configurable reminder cap.
func (in ProspectInput) ValidateWithLimit(limit int) error {
	if limit <= 0 {
		limit = MaxRemindersPerProspect
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
		return &ValidationError{Problems: problems}
	}

	if len(in.Reminders) > limit {
		return fmt.Errorf("%w: %d reminders, at most %d allowed", ErrTooManyReminders, len(in.Reminders), limit)
	}
	for i := range in.Reminders {
		for j := 0; j < i; j++ {
			if SameDay(in.Reminders[i].DueAt, in.Reminders[j].DueAt) {
				return fmt.Errorf("%w: %s", ErrDuplicateReminderDate, in.Reminders[i].DueAt.Format(time.DateOnly))
			}
		}
	}
	if in.EndsAt != nil && in.StartsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return &ValidationError{Problems: []string{"ends_at is before starts_at"}}
	}
	return nil
}

// Validate checks a reminder submission on its own.
func (in ReminderInput) Validate() error {
	if in.DueAt.IsZero() {
		return &ValidationError{Problems: []string{"due_at is required"}}
	}
	if err := validate.Struct(in); err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	return nil
}

// CheckReminderSlot rejects a reminder that would exceed limit or share a calendar day with
// another reminder on the prospect. skip excludes the reminder being edited.
func CheckReminderSlot(existing []Reminder, due time.Time, limit int, skip ID) error {
	if limit <= 0 {
		limit = MaxRemindersPerProspect
	}
	count := 0
	for _, r := range existing {
		if !skip.IsZero() && r.ID == skip {
			continue
		}
		count++
		if SameDay(r.DueAt, due) {
			return fmt.Errorf("%w: %s", ErrDuplicateReminderDate, due.Format(time.DateOnly))
		}
	}
	if count >= limit {
		return fmt.Errorf("%w: at most %d per prospect", ErrTooManyReminders, limit)
	}
	return nil
}

// SameDay compares calendar days in the location of a.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Clone deep-copies the submission.
func (in ProspectInput) Clone() ProspectInput {
	out := in
	out.StartsAt = cloneTime(in.StartsAt)
	out.EndsAt = cloneTime(in.EndsAt)
	if in.Services != nil {
		out.Services = append([]ServiceInput(nil), in.Services...)
	}
	if in.Reminders != nil {
		out.Reminders = append([]ReminderInput(nil), in.Reminders...)
	}
	return out
}

// Draft builds the optimistic local record for a submission under a pending ID.
func (in ProspectInput) Draft(id ID, now time.Time) Prospect {
	p := Prospect{
		ID:         id,
		Name:       in.Name,
		Phone:      in.Phone,
		Address:    in.Address,
		LocationID: in.LocationID,
		StartsAt:   cloneTime(in.StartsAt),
		EndsAt:     cloneTime(in.EndsAt),
		AllDay:     in.AllDay,
		Notes:      in.Notes,
		Status:     in.Status,
		Priority:   in.Priority,
		Position:   in.Position,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, s := range in.Services {
		p.Services = append(p.Services, Service{
			ID:        NewPendingID().Value(),
			Type:      NormalizeServiceType(s.Type),
			Details:   s.Details,
			CreatedAt: now,
		})
	}
	for _, r := range in.Reminders {
		p.Reminders = append(p.Reminders, Reminder{
			ID:        NewPendingID(),
			DueAt:     r.DueAt,
			Note:      r.Note,
			Completed: r.Completed,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return p
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		return field + " is required for confirmed bookings"
	case "min":
		return fmt.Sprintf("%s needs at least %s item(s)", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
