// ABOUTME: Reminder database operations
// ABOUTME: Reminders belong to a prospect and are written individually
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/realtime"
)

func (s *Store) CreateReminder(ctx context.Context, prospectID string, in models.ReminderInput) (models.Reminder, error) {
	id := uuid.NewString()
	now := s.timestamp()

	err := s.inTx(ctx, func(tx *sql.Tx) ([]realtime.Event, error) {
		var exists int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM prospects WHERE id = ?`, prospectID).Scan(&exists); err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, fmt.Errorf("prospect %s: %w", prospectID, backend.ErrNotFound)
		}
		if err := s.insertReminder(ctx, tx, id, prospectID, in, now); err != nil {
			return nil, err
		}
		return []realtime.Event{{Type: realtime.Insert, Table: realtime.TableReminders, New: &realtime.Record{ID: id, ProspectID: prospectID}}}, nil
	})
	if err != nil {
		return models.Reminder{}, err
	}
	return s.getReminder(ctx, id)
}

func (s *Store) UpdateReminder(ctx context.Context, id string, in models.ReminderInput) (models.Reminder, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) ([]realtime.Event, error) {
		var prospectID string
		if err := s.queryRow(ctx, tx, `SELECT prospect_id FROM reminders WHERE id = ?`, id).Scan(&prospectID); err != nil {
			return nil, classify(err)
		}
		if _, err := s.exec(ctx, tx,
			`UPDATE reminders SET due_at = ?, note = ?, completed = ?, updated_at = ? WHERE id = ?`,
			in.DueAt.UTC(), in.Note, in.Completed, s.timestamp(), id,
		); err != nil {
			return nil, fmt.Errorf("failed to update reminder: %w", err)
		}
		rec := &realtime.Record{ID: id, ProspectID: prospectID}
		return []realtime.Event{{Type: realtime.Update, Table: realtime.TableReminders, Old: rec, New: rec}}, nil
	})
	if err != nil {
		return models.Reminder{}, err
	}
	return s.getReminder(ctx, id)
}

func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) ([]realtime.Event, error) {
		var prospectID string
		if err := s.queryRow(ctx, tx, `SELECT prospect_id FROM reminders WHERE id = ?`, id).Scan(&prospectID); err != nil {
			return nil, classify(err)
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete reminder: %w", err)
		}
		return []realtime.Event{{Type: realtime.Delete, Table: realtime.TableReminders, Old: &realtime.Record{ID: id, ProspectID: prospectID}}}, nil
	})
}

func (s *Store) getReminder(ctx context.Context, id string) (models.Reminder, error) {
	row := s.queryRow(ctx, s.db,
		`SELECT id, prospect_id, due_at, note, completed, created_at, updated_at FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err != nil {
		return models.Reminder{}, classify(err)
	}
	return r, nil
}

func (s *Store) insertReminder(ctx context.Context, tx *sql.Tx, id, prospectID string, in models.ReminderInput, now time.Time) error {
	if _, err := s.exec(ctx, tx, `
		INSERT INTO reminders (id, prospect_id, due_at, note, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, prospectID, in.DueAt.UTC(), in.Note, in.Completed, now, now); err != nil {
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(row scanner) (models.Reminder, error) {
	var r models.Reminder
	var id string
	if err := row.Scan(&id, &r.ProspectID, &r.DueAt, &r.Note, &r.Completed, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return models.Reminder{}, err
	}
	r.ID = models.PersistedID(id)
	r.DueAt = r.DueAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}
