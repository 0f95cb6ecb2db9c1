// ABOUTME: Charm KV implementation of the remote data service
// ABOUTME: Stores prospects as JSON documents with a reminder index and publishes change events

package charm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/ordering"
	"github.com/harperreed/spruce/realtime"
)

// Key layout:
//
//	prospect/<id>  prospect document with services and reminders embedded
//	reminder/<id>  id of the owning prospect
//	location/<id>  location document
const (
	prospectPrefix = "prospect/"
	reminderPrefix = "reminder/"
	locationPrefix = "location/"
)

// Backend serves the scheduler's data from a charm KV store.
type Backend struct {
	client    *Client
	events    realtime.Publisher
	logger    *zap.Logger
	increment float64
	now       func() time.Time

	// KV has no transactions; writes are read-modify-write under this lock.
	mu sync.Mutex
}

var _ backend.Backend = (*Backend)(nil)

type Option func(*Backend)

// WithPublisher sends a change event for every completed write.
func WithPublisher(p realtime.Publisher) Option {
	return func(b *Backend) { b.events = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithIncrement sets the ordering gap used when a new prospect is appended to its column.
func WithIncrement(inc float64) Option {
	return func(b *Backend) {
		if inc > 0 {
			b.increment = inc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

func NewBackend(c *Client, opts ...Option) *Backend {
	b := &Backend{
		client:    c,
		events:    realtime.Discard,
		logger:    zap.NewNop(),
		increment: ordering.DefaultIncrement,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) timestamp() time.Time {
	return b.now().UTC()
}

func (b *Backend) publish(ctx context.Context, events ...realtime.Event) {
	at := b.timestamp()
	for _, ev := range events {
		ev.At = at
		if err := b.events.Publish(ctx, ev); err != nil {
			b.logger.Warn("failed to publish change event",
				zap.String("table", string(ev.Table)),
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

func (b *Backend) getJSON(key string, v any) error {
	data, err := b.client.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (b *Backend) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := b.client.Set([]byte(key), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (b *Backend) loadProspect(id string) (models.Prospect, error) {
	var p models.Prospect
	if err := b.getJSON(prospectPrefix+id, &p); err != nil {
		return models.Prospect{}, err
	}
	return p, nil
}

func (b *Backend) saveProspect(p models.Prospect) error {
	p.LocationName = ""
	sort.SliceStable(p.Reminders, func(i, j int) bool { return p.Reminders[i].DueAt.Before(p.Reminders[j].DueAt) })
	return b.putJSON(prospectPrefix+p.ID.Value(), p)
}

func (b *Backend) allProspects() ([]models.Prospect, error) {
	keys, err := b.client.KeysWithPrefix([]byte(prospectPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list prospects: %w", err)
	}
	out := make([]models.Prospect, 0, len(keys))
	for _, k := range keys {
		p, err := b.loadProspect(strings.TrimPrefix(string(k), prospectPrefix))
		if errors.Is(err, backend.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// joinLocations fills in location names the way the SQL backend's join does.
func (b *Backend) joinLocations(prospects []models.Prospect) error {
	names := map[string]string{}
	for i := range prospects {
		id := prospects[i].LocationID
		if id == "" {
			continue
		}
		name, ok := names[id]
		if !ok {
			var loc models.Location
			err := b.getJSON(locationPrefix+id, &loc)
			if err != nil && !errors.Is(err, backend.ErrNotFound) {
				return err
			}
			name = loc.Name
			names[id] = name
		}
		prospects[i].LocationName = name
	}
	return nil
}

func (b *Backend) checkLocation(id string) error {
	if id == "" {
		return nil
	}
	var loc models.Location
	if err := b.getJSON(locationPrefix+id, &loc); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return &models.ValidationError{Problems: []string{fmt.Sprintf("unknown location %q", id)}}
		}
		return err
	}
	return nil
}

func (b *Backend) columnTail(status models.Status) (float64, error) {
	all, err := b.allProspects()
	if err != nil {
		return 0, err
	}
	var last float64
	for _, p := range all {
		if p.Status == status && p.Position > last {
			last = p.Position
		}
	}
	return last, nil
}

func (b *Backend) CreateProspect(ctx context.Context, in models.ProspectInput) (models.Prospect, error) {
	if err := ctx.Err(); err != nil {
		return models.Prospect{}, err
	}
	in.Normalize()
	id := uuid.NewString()
	now := b.timestamp()

	b.mu.Lock()
	if err := b.checkLocation(in.LocationID); err != nil {
		b.mu.Unlock()
		return models.Prospect{}, err
	}
	p := in.Draft(models.PersistedID(id), now)
	if p.Position == 0 {
		last, err := b.columnTail(p.Status)
		if err != nil {
			b.mu.Unlock()
			return models.Prospect{}, fmt.Errorf("failed to read column tail: %w", err)
		}
		p.Position = last + b.increment
	}

	events := []realtime.Event{{Type: realtime.Insert, Table: realtime.TableProspects, New: &realtime.Record{ID: id}}}
	for i := range p.Services {
		p.Services[i].ID = uuid.NewString()
		p.Services[i].ProspectID = id
		events = append(events, realtime.Event{Type: realtime.Insert, Table: realtime.TableServices, New: &realtime.Record{ID: p.Services[i].ID, ProspectID: id}})
	}
	for i := range p.Reminders {
		p.Reminders[i].ID = models.PersistedID(uuid.NewString())
		p.Reminders[i].ProspectID = id
		if err := b.putJSON(reminderPrefix+p.Reminders[i].ID.Value(), id); err != nil {
			b.mu.Unlock()
			return models.Prospect{}, err
		}
		events = append(events, realtime.Event{Type: realtime.Insert, Table: realtime.TableReminders, New: &realtime.Record{ID: p.Reminders[i].ID.Value(), ProspectID: id}})
	}
	if err := b.saveProspect(p); err != nil {
		b.mu.Unlock()
		return models.Prospect{}, fmt.Errorf("failed to insert prospect: %w", err)
	}
	b.mu.Unlock()

	b.publish(ctx, events...)
	return b.GetProspect(ctx, id)
}

func (b *Backend) GetProspect(ctx context.Context, id string) (models.Prospect, error) {
	if err := ctx.Err(); err != nil {
		return models.Prospect{}, err
	}
	p, err := b.loadProspect(id)
	if err != nil {
		return models.Prospect{}, err
	}
	one := []models.Prospect{p}
	if err := b.joinLocations(one); err != nil {
		return models.Prospect{}, err
	}
	return one[0], nil
}

func (b *Backend) UpdateProspect(ctx context.Context, id string, in models.ProspectInput) (models.Prospect, error) {
	if err := ctx.Err(); err != nil {
		return models.Prospect{}, err
	}
	in.Normalize()
	now := b.timestamp()

	b.mu.Lock()
	current, err := b.loadProspect(id)
	if err != nil {
		b.mu.Unlock()
		return models.Prospect{}, err
	}
	if err := b.checkLocation(in.LocationID); err != nil {
		b.mu.Unlock()
		return models.Prospect{}, err
	}

	next := in.Draft(current.ID, current.CreatedAt)
	next.UpdatedAt = now
	next.Reminders = current.Reminders
	for i := range next.Services {
		next.Services[i].ID = uuid.NewString()
		next.Services[i].ProspectID = id
		next.Services[i].CreatedAt = now
	}
	if err := b.saveProspect(next); err != nil {
		b.mu.Unlock()
		return models.Prospect{}, fmt.Errorf("failed to update prospect: %w", err)
	}
	b.mu.Unlock()

	b.publish(ctx, realtime.Event{Type: realtime.Update, Table: realtime.TableProspects, Old: &realtime.Record{ID: id}, New: &realtime.Record{ID: id}})
	return b.GetProspect(ctx, id)
}

func (b *Backend) DeleteProspect(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	p, err := b.loadProspect(id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	for _, r := range p.Reminders {
		if err := b.client.Delete([]byte(reminderPrefix + r.ID.Value())); err != nil {
			b.mu.Unlock()
			return fmt.Errorf("failed to delete reminder index: %w", err)
		}
	}
	if err := b.client.Delete([]byte(prospectPrefix + id)); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to delete prospect: %w", err)
	}
	b.mu.Unlock()

	b.publish(ctx, realtime.Event{Type: realtime.Delete, Table: realtime.TableProspects, Old: &realtime.Record{ID: id}})
	return nil
}

func (b *Backend) ListProspects(ctx context.Context) ([]models.Prospect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := b.allProspects()
	if err != nil {
		return nil, err
	}
	models.SortByStart(all)
	if err := b.joinLocations(all); err != nil {
		return nil, err
	}
	return all, nil
}

func (b *Backend) ListProspectsBetween(ctx context.Context, from, to time.Time) ([]models.Prospect, error) {
	all, err := b.ListProspects(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Prospect{}
	for _, p := range all {
		if p.StartsAt == nil || p.StartsAt.Before(from) || !p.StartsAt.Before(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (b *Backend) MoveProspect(ctx context.Context, id string, status models.Status, position float64) (models.Prospect, error) {
	if err := ctx.Err(); err != nil {
		return models.Prospect{}, err
	}
	if !status.Valid() {
		return models.Prospect{}, &models.ValidationError{Problems: []string{fmt.Sprintf("unknown status %q", status)}}
	}

	b.mu.Lock()
	p, err := b.loadProspect(id)
	if err != nil {
		b.mu.Unlock()
		return models.Prospect{}, err
	}
	p.Status = status
	p.Position = position
	p.UpdatedAt = b.timestamp()
	if err := b.saveProspect(p); err != nil {
		b.mu.Unlock()
		return models.Prospect{}, fmt.Errorf("failed to move prospect: %w", err)
	}
	b.mu.Unlock()

	b.publish(ctx, realtime.Event{Type: realtime.Update, Table: realtime.TableProspects, Old: &realtime.Record{ID: id}, New: &realtime.Record{ID: id}})
	return b.GetProspect(ctx, id)
}
