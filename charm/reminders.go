// ABOUTME: Reminder and location operations for the Charm KV backend
// ABOUTME: Reminders live inside their prospect's document and are found through reminder/<id>

package charm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/realtime"
)

// ownerOf returns the prospect holding reminder id.
func (b *Backend) ownerOf(id string) (models.Prospect, int, error) {
	var prospectID string
	if err := b.getJSON(reminderPrefix+id, &prospectID); err != nil {
		return models.Prospect{}, -1, err
	}
	p, err := b.loadProspect(prospectID)
	if err != nil {
		return models.Prospect{}, -1, err
	}
	i := p.ReminderIndex(models.PersistedID(id))
	if i < 0 {
		return models.Prospect{}, -1, backend.ErrNotFound
	}
	return p, i, nil
}

func (b *Backend) CreateReminder(ctx context.Context, prospectID string, in models.ReminderInput) (models.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return models.Reminder{}, err
	}
	if err := in.Validate(); err != nil {
		return models.Reminder{}, err
	}

	b.mu.Lock()
	p, err := b.loadProspect(prospectID)
	if err != nil {
		b.mu.Unlock()
		return models.Reminder{}, fmt.Errorf("prospect %s: %w", prospectID, err)
	}
	now := b.timestamp()
	r := models.Reminder{
		ID:         models.PersistedID(uuid.NewString()),
		ProspectID: prospectID,
		DueAt:      in.DueAt.UTC(),
		Note:       in.Note,
		Completed:  in.Completed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	p.Reminders = append(p.Reminders, r)
	if err := b.putJSON(reminderPrefix+r.ID.Value(), prospectID); err != nil {
		b.mu.Unlock()
		return models.Reminder{}, err
	}
	if err := b.saveProspect(p); err != nil {
		b.mu.Unlock()
		return models.Reminder{}, fmt.Errorf("failed to insert reminder: %w", err)
	}
	b.mu.Unlock()

	b.publish(ctx, realtime.Event{Type: realtime.Insert, Table: realtime.TableReminders, New: &realtime.Record{ID: r.ID.Value(), ProspectID: prospectID}})
	return r, nil
}

func (b *Backend) UpdateReminder(ctx context.Context, id string, in models.ReminderInput) (models.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return models.Reminder{}, err
	}
	if err := in.Validate(); err != nil {
		return models.Reminder{}, err
	}

	b.mu.Lock()
	p, i, err := b.ownerOf(id)
	if err != nil {
		b.mu.Unlock()
		return models.Reminder{}, err
	}
	r := p.Reminders[i]
	r.DueAt = in.DueAt.UTC()
	r.Note = in.Note
	r.Completed = in.Completed
	r.UpdatedAt = b.timestamp()
	p.Reminders[i] = r
	if err := b.saveProspect(p); err != nil {
		b.mu.Unlock()
		return models.Reminder{}, fmt.Errorf("failed to update reminder: %w", err)
	}
	b.mu.Unlock()

	rec := &realtime.Record{ID: id, ProspectID: r.ProspectID}
	b.publish(ctx, realtime.Event{Type: realtime.Update, Table: realtime.TableReminders, Old: rec, New: rec})
	return r, nil
}

func (b *Backend) DeleteReminder(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	p, i, err := b.ownerOf(id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	p.Reminders = append(p.Reminders[:i], p.Reminders[i+1:]...)
	if err := b.saveProspect(p); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	if err := b.client.Delete([]byte(reminderPrefix + id)); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to delete reminder index: %w", err)
	}
	b.mu.Unlock()

	b.publish(ctx, realtime.Event{Type: realtime.Delete, Table: realtime.TableReminders, Old: &realtime.Record{ID: id, ProspectID: p.ID.Value()}})
	return nil
}

func (b *Backend) CreateLocation(ctx context.Context, name string) (models.Location, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, err
	}
	loc := models.Location{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedAt: b.timestamp(),
	}
	if loc.Name == "" {
		return models.Location{}, &models.ValidationError{Problems: []string{"name is required"}}
	}

	b.mu.Lock()
	existing, err := b.locations()
	if err != nil {
		b.mu.Unlock()
		return models.Location{}, err
	}
	for _, other := range existing {
		if other.Name == loc.Name {
			b.mu.Unlock()
			return models.Location{}, fmt.Errorf("location %q: %w", loc.Name, backend.ErrConflict)
		}
	}
	if err := b.putJSON(locationPrefix+loc.ID, loc); err != nil {
		b.mu.Unlock()
		return models.Location{}, fmt.Errorf("failed to insert location: %w", err)
	}
	b.mu.Unlock()

	b.publish(ctx, realtime.Event{Type: realtime.Insert, Table: realtime.TableLocations, New: &realtime.Record{ID: loc.ID}})
	return loc, nil
}

func (b *Backend) locations() ([]models.Location, error) {
	keys, err := b.client.KeysWithPrefix([]byte(locationPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	out := make([]models.Location, 0, len(keys))
	for _, k := range keys {
		var loc models.Location
		err := b.getJSON(string(k), &loc)
		if errors.Is(err, backend.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *Backend) ListLocations(ctx context.Context) ([]models.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.locations()
}

// DeleteLocation removes the location and clears it from every prospect that used it.
func (b *Backend) DeleteLocation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	var loc models.Location
	if err := b.getJSON(locationPrefix+id, &loc); err != nil {
		b.mu.Unlock()
		return err
	}
	all, err := b.allProspects()
	if err != nil {
		b.mu.Unlock()
		return err
	}
	for _, p := range all {
		if p.LocationID != id {
			continue
		}
		p.LocationID = ""
		if err := b.saveProspect(p); err != nil {
			b.mu.Unlock()
			return fmt.Errorf("failed to detach location: %w", err)
		}
	}
	if err := b.client.Delete([]byte(locationPrefix + id)); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to delete location: %w", err)
	}
	b.mu.Unlock()

	b.publish(ctx, realtime.Event{Type: realtime.Delete, Table: realtime.TableLocations, Old: &realtime.Record{ID: id}})
	return nil
}
