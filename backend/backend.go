// ABOUTME: Remote data service contract shared by the SQL and Charm KV implementations
// ABOUTME: Every write returns the full stored row including server-assigned ids and timestamps
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/harperreed/spruce/models"
)

var (
	// ErrNotFound means the requested row does not exist (anymore).
	ErrNotFound = errors.New("not found")
	// ErrConflict means the write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// Backend is the system of record for prospects and their children.
// Prospect reads always carry services, reminders and the joined location name.
type Backend interface {
	CreateProspect(ctx context.Context, in models.ProspectInput) (models.Prospect, error)
	GetProspect(ctx context.Context, id string) (models.Prospect, error)
	// UpdateProspect replaces the prospect and its services wholesale. Reminders are
	// managed through the reminder calls and are left untouched.
	UpdateProspect(ctx context.Context, id string, in models.ProspectInput) (models.Prospect, error)
	DeleteProspect(ctx context.Context, id string) error
	ListProspects(ctx context.Context) ([]models.Prospect, error)
	// ListProspectsBetween returns prospects starting in [from, to).
	ListProspectsBetween(ctx context.Context, from, to time.Time) ([]models.Prospect, error)
	MoveProspect(ctx context.Context, id string, status models.Status, position float64) (models.Prospect, error)

	CreateReminder(ctx context.Context, prospectID string, in models.ReminderInput) (models.Reminder, error)
	UpdateReminder(ctx context.Context, id string, in models.ReminderInput) (models.Reminder, error)
	DeleteReminder(ctx context.Context, id string) error

	CreateLocation(ctx context.Context, name string) (models.Location, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	DeleteLocation(ctx context.Context, id string) error

	Close() error
}
