// ABOUTME: Prospect database operations
// ABOUTME: Handles CRUD, kanban moves and date-range reads with services, reminders and location joined in
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/realtime"
)

const selectProspects = `
	SELECT p.id, p.name, p.phone, p.address, p.location_id, COALESCE(l.name, ''),
		p.starts_at, p.ends_at, p.all_day, p.notes, p.status, p.priority, p.position,
		p.created_at, p.updated_at
	FROM prospects p
	LEFT JOIN locations l ON l.id = p.location_id
`

func (s *Store) CreateProspect(ctx context.Context, in models.ProspectInput) (models.Prospect, error) {
	in.Normalize()
	id := uuid.NewString()
	now := s.timestamp()

	err := s.inTx(ctx, func(tx *sql.Tx) ([]realtime.Event, error) {
		position := in.Position
		if position == 0 {
			var last float64
			if err := s.queryRow(ctx, tx,
				`SELECT COALESCE(MAX(position), 0) FROM prospects WHERE status = ?`, string(in.Status),
			).Scan(&last); err != nil {
				return nil, fmt.Errorf("failed to read column tail: %w", err)
			}
			position = last + s.increment
		}

		if _, err := s.exec(ctx, tx, `
			INSERT INTO prospects (id, name, phone, address, location_id, starts_at, ends_at, all_day, notes, status, priority, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, in.Name, in.Phone, in.Address, nullString(in.LocationID), nullTime(in.StartsAt), nullTime(in.EndsAt),
			in.AllDay, in.Notes, string(in.Status), string(in.Priority), position, now, now); err != nil {
			return nil, fmt.Errorf("failed to insert prospect: %w", classify(err))
		}

		events := []realtime.Event{{Type: realtime.Insert, Table: realtime.TableProspects, New: &realtime.Record{ID: id}}}
		svcEvents, err := s.insertServices(ctx, tx, id, in.Services, now)
		if err != nil {
			return nil, err
		}
		events = append(events, svcEvents...)

		for _, r := range in.Reminders {
			rid := uuid.NewString()
			if err := s.insertReminder(ctx, tx, rid, id, r, now); err != nil {
				return nil, err
			}
			events = append(events, realtime.Event{Type: realtime.Insert, Table: realtime.TableReminders, New: &realtime.Record{ID: rid, ProspectID: id}})
		}
		return events, nil
	})
	if err != nil {
		return models.Prospect{}, err
	}

	return s.GetProspect(ctx, id)
}

func (s *Store) GetProspect(ctx context.Context, id string) (models.Prospect, error) {
	rows, err := s.query(ctx, s.db, selectProspects+` WHERE p.id = ?`, id)
	if err != nil {
		return models.Prospect{}, err
	}
	prospects, err := s.scanProspects(ctx, rows)
	if err != nil {
		return models.Prospect{}, err
	}
	if len(prospects) == 0 {
		return models.Prospect{}, backend.ErrNotFound
	}
	return prospects[0], nil
}

func (s *Store) UpdateProspect(ctx context.Context, id string, in models.ProspectInput) (models.Prospect, error) {
	in.Normalize()
	now := s.timestamp()

	err := s.inTx(ctx, func(tx *sql.Tx) ([]realtime.Event, error) {
		res, err := s.exec(ctx, tx, `
			UPDATE prospects
			SET name = ?, phone = ?, address = ?, location_id = ?, starts_at = ?, ends_at = ?, all_day = ?,
				notes = ?, status = ?, priority = ?, position = ?, updated_at = ?
			WHERE id = ?
		`, in.Name, in.Phone, in.Address, nullString(in.LocationID), nullTime(in.StartsAt), nullTime(in.EndsAt),
			in.AllDay, in.Notes, string(in.Status), string(in.Priority), in.Position, now, id)
		if err != nil {
			return nil, fmt.Errorf("failed to update prospect: %w", classify(err))
		}
		if err := mustAffect(res); err != nil {
			return nil, err
		}

		// Services are replaced wholesale with their parent.
		if _, err := s.exec(ctx, tx, `DELETE FROM services WHERE prospect_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to clear services: %w", err)
		}
		if _, err := s.insertServices(ctx, tx, id, in.Services, now); err != nil {
			return nil, err
		}

		return []realtime.Event{{
			Type:  realtime.Update,
			Table: realtime.TableProspects,
			Old:   &realtime.Record{ID: id},
			New:   &realtime.Record{ID: id},
		}}, nil
	})
	if err != nil {
		return models.Prospect{}, err
	}

	return s.GetProspect(ctx, id)
}

func (s *Store) DeleteProspect(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) ([]realtime.Event, error) {
		if _, err := s.exec(ctx, tx, `DELETE FROM services WHERE prospect_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete services: %w", err)
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM reminders WHERE prospect_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete reminders: %w", err)
		}
		res, err := s.exec(ctx, tx, `DELETE FROM prospects WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("failed to delete prospect: %w", err)
		}
		if err := mustAffect(res); err != nil {
			return nil, err
		}
		return []realtime.Event{{Type: realtime.Delete, Table: realtime.TableProspects, Old: &realtime.Record{ID: id}}}, nil
	})
}

func (s *Store) ListProspects(ctx context.Context) ([]models.Prospect, error) {
	rows, err := s.query(ctx, s.db, selectProspects+` ORDER BY p.starts_at IS NULL, p.starts_at, p.created_at`)
	if err != nil {
		return nil, err
	}
	return s.scanProspects(ctx, rows)
}

func (s *Store) ListProspectsBetween(ctx context.Context, from, to time.Time) ([]models.Prospect, error) {
	rows, err := s.query(ctx, s.db,
		selectProspects+` WHERE p.starts_at >= ? AND p.starts_at < ? ORDER BY p.starts_at, p.created_at`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	return s.scanProspects(ctx, rows)
}

func (s *Store) MoveProspect(ctx context.Context, id string, status models.Status, position float64) (models.Prospect, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) ([]realtime.Event, error) {
		res, err := s.exec(ctx, tx,
			`UPDATE prospects SET status = ?, position = ?, updated_at = ? WHERE id = ?`,
			string(status), position, s.timestamp(), id,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to move prospect: %w", err)
		}
		if err := mustAffect(res); err != nil {
			return nil, err
		}
		return []realtime.Event{{
			Type:  realtime.Update,
			Table: realtime.TableProspects,
			Old:   &realtime.Record{ID: id},
			New:   &realtime.Record{ID: id},
		}}, nil
	})
	if err != nil {
		return models.Prospect{}, err
	}
	return s.GetProspect(ctx, id)
}

func (s *Store) insertServices(ctx context.Context, tx *sql.Tx, prospectID string, services []models.ServiceInput, now time.Time) ([]realtime.Event, error) {
	events := make([]realtime.Event, 0, len(services))
	for i, svc := range services {
		details, err := json.Marshal(svc.Details)
		if err != nil {
			return nil, err
		}
		sid := uuid.NewString()
		if _, err := s.exec(ctx, tx, `
			INSERT INTO services (id, prospect_id, type, details, sort_order, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sid, prospectID, string(models.NormalizeServiceType(svc.Type)), string(details), i, now); err != nil {
			return nil, fmt.Errorf("failed to insert service: %w", err)
		}
		events = append(events, realtime.Event{Type: realtime.Insert, Table: realtime.TableServices, New: &realtime.Record{ID: sid, ProspectID: prospectID}})
	}
	return events, nil
}

// scanProspects reads prospect rows and attaches their services and reminders.
func (s *Store) scanProspects(ctx context.Context, rows *sql.Rows) ([]models.Prospect, error) {
	defer rows.Close()

	var prospects []models.Prospect
	for rows.Next() {
		var (
			p                models.Prospect
			id               string
			locationID       sql.NullString
			startsAt, endsAt sql.NullTime
			status, priority string
		)
		if err := rows.Scan(&id, &p.Name, &p.Phone, &p.Address, &locationID, &p.LocationName,
			&startsAt, &endsAt, &p.AllDay, &p.Notes, &status, &priority, &p.Position,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.ID = models.PersistedID(id)
		p.LocationID = locationID.String
		p.StartsAt = timePtr(startsAt)
		p.EndsAt = timePtr(endsAt)
		p.Status = models.Status(status)
		p.Priority = models.Priority(priority)
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		p.Services = []models.Service{}
		p.Reminders = []models.Reminder{}
		prospects = append(prospects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(prospects) == 0 {
		return prospects, nil
	}

	if err := s.attachChildren(ctx, prospects); err != nil {
		return nil, err
	}
	return prospects, nil
}

func (s *Store) attachChildren(ctx context.Context, prospects []models.Prospect) error {
	index := make(map[string]int, len(prospects))
	args := make([]any, 0, len(prospects))
	for i := range prospects {
		index[prospects[i].ID.Value()] = i
		args = append(args, prospects[i].ID.Value())
	}
	in := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ") + ")"

	svcRows, err := s.query(ctx, s.db,
		`SELECT id, prospect_id, type, details, created_at FROM services WHERE prospect_id IN `+in+` ORDER BY sort_order, id`, args...)
	if err != nil {
		return fmt.Errorf("failed to load services: %w", err)
	}
	defer svcRows.Close()
	for svcRows.Next() {
		var svc models.Service
		var typ, details string
		if err := svcRows.Scan(&svc.ID, &svc.ProspectID, &typ, &details, &svc.CreatedAt); err != nil {
			return err
		}
		svc.Type = models.ServiceType(typ)
		svc.CreatedAt = svc.CreatedAt.UTC()
		if details != "" {
			if err := json.Unmarshal([]byte(details), &svc.Details); err != nil {
				return fmt.Errorf("service %s has malformed details: %w", svc.ID, err)
			}
		}
		i := index[svc.ProspectID]
		prospects[i].Services = append(prospects[i].Services, svc)
	}
	if err := svcRows.Err(); err != nil {
		return err
	}

	remRows, err := s.query(ctx, s.db,
		`SELECT id, prospect_id, due_at, note, completed, created_at, updated_at FROM reminders WHERE prospect_id IN `+in+` ORDER BY due_at, id`, args...)
	if err != nil {
		return fmt.Errorf("failed to load reminders: %w", err)
	}
	defer remRows.Close()
	for remRows.Next() {
		r, err := scanReminder(remRows)
		if err != nil {
			return err
		}
		i := index[r.ProspectID]
		prospects[i].Reminders = append(prospects[i].Reminders, r)
	}
	return remRows.Err()
}
