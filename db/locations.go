// ABOUTME: Location database operations
// ABOUTME: Locations are a reference list; prospects join in the name on read
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/realtime"
)

func (s *Store) CreateLocation(ctx context.Context, name string) (models.Location, error) {
	loc := models.Location{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedAt: s.timestamp(),
	}
	if loc.Name == "" {
		return models.Location{}, &models.ValidationError{Problems: []string{"name is required"}}
	}

	err := s.inTx(ctx, func(tx *sql.Tx) ([]realtime.Event, error) {
		if _, err := s.exec(ctx, tx,
			`INSERT INTO locations (id, name, created_at) VALUES (?, ?, ?)`,
			loc.ID, loc.Name, loc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to insert location: %w", classify(err))
		}
		return []realtime.Event{{Type: realtime.Insert, Table: realtime.TableLocations, New: &realtime.Record{ID: loc.ID}}}, nil
	})
	if err != nil {
		return models.Location{}, err
	}
	return loc, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, name, created_at FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []models.Location{}
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.CreatedAt); err != nil {
			return nil, err
		}
		loc.CreatedAt = loc.CreatedAt.UTC()
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// DeleteLocation removes the location and detaches every prospect that referenced it.
func (s *Store) DeleteLocation(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) ([]realtime.Event, error) {
		if _, err := s.exec(ctx, tx, `UPDATE prospects SET location_id = NULL WHERE location_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to detach prospects: %w", err)
		}
		res, err := s.exec(ctx, tx, `DELETE FROM locations WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("failed to delete location: %w", err)
		}
		if err := mustAffect(res); err != nil {
			return nil, err
		}
		return []realtime.Event{{Type: realtime.Delete, Table: realtime.TableLocations, Old: &realtime.Record{ID: id}}}, nil
	})
}
