// ABOUTME: In-memory backend for tests with call recording and per-call hooks
// ABOUTME: Hooks can fail or block individual calls to control completion order
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/realtime"
)

// Call records one backend invocation.
type Call struct {
	Op        string
	ID        string
	Completed bool
}

// Hook runs before a call touches state. A non-nil error fails the call.
type Hook func(ctx context.Context, call Call) error

// Fake is a goroutine-safe backend.Backend kept in memory.
type Fake struct {
	mu        sync.Mutex
	prospects map[string]models.Prospect
	order     []string
	locations map[string]models.Location
	seq       int
	calls     []Call
	hook      Hook
	events    realtime.Publisher
	now       func() time.Time
}

var _ backend.Backend = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		prospects: make(map[string]models.Prospect),
		locations: make(map[string]models.Location),
		events:    realtime.Discard,
		now:       func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
}

// SetHook installs h for subsequent calls.
func (f *Fake) SetHook(h Hook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = h
}

// SetPublisher makes every successful write emit a change event.
func (f *Fake) SetPublisher(p realtime.Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = p
}

// Calls returns every call made so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the calls made to one operation.
func (f *Fake) CallsTo(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Seed stores a prospect as if it had been created earlier.
func (f *Fake) Seed(p models.Prospect) models.Prospect {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = models.PersistedID(f.nextID("p"))
	}
	if _, ok := f.prospects[p.ID.Value()]; !ok {
		f.order = append(f.order, p.ID.Value())
	}
	for i := range p.Reminders {
		if p.Reminders[i].ID.IsZero() {
			p.Reminders[i].ID = models.PersistedID(f.nextID("r"))
		}
		p.Reminders[i].ProspectID = p.ID.Value()
	}
	f.prospects[p.ID.Value()] = p.Clone()
	return p.Clone()
}

// Prospect returns the stored copy of a prospect.
func (f *Fake) Prospect(id string) (models.Prospect, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prospects[id]
	return p.Clone(), ok
}

// Remove deletes a prospect without recording a call, as another client would.
func (f *Fake) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prospects, id)
	for i, pid := range f.order {
		if pid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return prefix + strconv.Itoa(f.seq)
}

// enter records the call and runs the hook outside the lock.
func (f *Fake) enter(ctx context.Context, call Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, call)
	}
	return nil
}

func (f *Fake) emit(ctx context.Context, ev realtime.Event) {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	ev.At = f.now()
	_ = events.Publish(ctx, ev)
}

func (f *Fake) CreateProspect(ctx context.Context, in models.ProspectInput) (models.Prospect, error) {
	if err := f.enter(ctx, Call{Op: "CreateProspect"}); err != nil {
		return models.Prospect{}, err
	}
	in.Normalize()

	f.mu.Lock()
	id := f.nextID("p")
	now := f.now()
	p := in.Draft(models.PersistedID(id), now)
	for i := range p.Services {
		p.Services[i].ID = f.nextID("s")
		p.Services[i].ProspectID = id
	}
	for i := range p.Reminders {
		p.Reminders[i].ID = models.PersistedID(f.nextID("r"))
		p.Reminders[i].ProspectID = id
	}
	if loc, ok := f.locations[p.LocationID]; ok {
		p.LocationName = loc.Name
	}
	f.prospects[id] = p
	f.order = append(f.order, id)
	f.mu.Unlock()

	f.emit(ctx, realtime.Event{Type: realtime.Insert, Table: realtime.TableProspects, New: &realtime.Record{ID: id}})
	return p.Clone(), nil
}

func (f *Fake) GetProspect(ctx context.Context, id string) (models.Prospect, error) {
	if err := f.enter(ctx, Call{Op: "GetProspect", ID: id}); err != nil {
		return models.Prospect{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prospects[id]
	if !ok {
		return models.Prospect{}, backend.ErrNotFound
	}
	return p.Clone(), nil
}

func (f *Fake) UpdateProspect(ctx context.Context, id string, in models.ProspectInput) (models.Prospect, error) {
	if err := f.enter(ctx, Call{Op: "UpdateProspect", ID: id}); err != nil {
		return models.Prospect{}, err
	}
	in.Normalize()

	f.mu.Lock()
	current, ok := f.prospects[id]
	if !ok {
		f.mu.Unlock()
		return models.Prospect{}, backend.ErrNotFound
	}
	next := in.Draft(current.ID, current.CreatedAt)
	next.UpdatedAt = f.now()
	next.Reminders = current.Reminders
	for i := range next.Services {
		next.Services[i].ID = f.nextID("s")
		next.Services[i].ProspectID = id
	}
	if loc, ok := f.locations[next.LocationID]; ok {
		next.LocationName = loc.Name
	}
	f.prospects[id] = next
	f.mu.Unlock()

	f.emit(ctx, realtime.Event{Type: realtime.Update, Table: realtime.TableProspects, Old: &realtime.Record{ID: id}, New: &realtime.Record{ID: id}})
	return next.Clone(), nil
}

func (f *Fake) DeleteProspect(ctx context.Context, id string) error {
	if err := f.enter(ctx, Call{Op: "DeleteProspect", ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	if _, ok := f.prospects[id]; !ok {
		f.mu.Unlock()
		return backend.ErrNotFound
	}
	f.mu.Unlock()
	f.Remove(id)

	f.emit(ctx, realtime.Event{Type: realtime.Delete, Table: realtime.TableProspects, Old: &realtime.Record{ID: id}})
	return nil
}

func (f *Fake) ListProspects(ctx context.Context) ([]models.Prospect, error) {
	if err := f.enter(ctx, Call{Op: "ListProspects"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Prospect, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.prospects[id].Clone())
	}
	return out, nil
}

func (f *Fake) ListProspectsBetween(ctx context.Context, from, to time.Time) ([]models.Prospect, error) {
	all, err := f.ListProspects(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Prospect
	for _, p := range all {
		if p.StartsAt != nil && p.InRange(from, to) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartsAt.Before(*out[j].StartsAt) })
	return out, nil
}

func (f *Fake) MoveProspect(ctx context.Context, id string, status models.Status, position float64) (models.Prospect, error) {
	if err := f.enter(ctx, Call{Op: "MoveProspect", ID: id}); err != nil {
		return models.Prospect{}, err
	}
	f.mu.Lock()
	p, ok := f.prospects[id]
	if !ok {
		f.mu.Unlock()
		return models.Prospect{}, backend.ErrNotFound
	}
	p.Status = status
	p.Position = position
	p.UpdatedAt = f.now()
	f.prospects[id] = p
	f.mu.Unlock()

	f.emit(ctx, realtime.Event{Type: realtime.Update, Table: realtime.TableProspects, Old: &realtime.Record{ID: id}, New: &realtime.Record{ID: id}})
	return p.Clone(), nil
}

func (f *Fake) CreateReminder(ctx context.Context, prospectID string, in models.ReminderInput) (models.Reminder, error) {
	if err := f.enter(ctx, Call{Op: "CreateReminder", ID: prospectID, Completed: in.Completed}); err != nil {
		return models.Reminder{}, err
	}
	f.mu.Lock()
	p, ok := f.prospects[prospectID]
	if !ok {
		f.mu.Unlock()
		return models.Reminder{}, fmt.Errorf("prospect %s: %w", prospectID, backend.ErrNotFound)
	}
	now := f.now()
	r := models.Reminder{
		ID:         models.PersistedID(f.nextID("r")),
		ProspectID: prospectID,
		DueAt:      in.DueAt,
		Note:       in.Note,
		Completed:  in.Completed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	p.Reminders = append(append([]models.Reminder(nil), p.Reminders...), r)
	f.prospects[prospectID] = p
	f.mu.Unlock()

	f.emit(ctx, realtime.Event{Type: realtime.Insert, Table: realtime.TableReminders, New: &realtime.Record{ID: r.ID.Value(), ProspectID: prospectID}})
	return r, nil
}

func (f *Fake) UpdateReminder(ctx context.Context, id string, in models.ReminderInput) (models.Reminder, error) {
	if err := f.enter(ctx, Call{Op: "UpdateReminder", ID: id, Completed: in.Completed}); err != nil {
		return models.Reminder{}, err
	}
	f.mu.Lock()
	for pid, p := range f.prospects {
		i := p.ReminderIndex(models.PersistedID(id))
		if i < 0 {
			continue
		}
		p = p.Clone()
		r := p.Reminders[i]
		r.DueAt = in.DueAt
		r.Note = in.Note
		r.Completed = in.Completed
		r.UpdatedAt = f.now()
		p.Reminders[i] = r
		f.prospects[pid] = p
		f.mu.Unlock()

		rec := &realtime.Record{ID: id, ProspectID: pid}
		f.emit(ctx, realtime.Event{Type: realtime.Update, Table: realtime.TableReminders, Old: rec, New: rec})
		return r, nil
	}
	f.mu.Unlock()
	return models.Reminder{}, backend.ErrNotFound
}

func (f *Fake) DeleteReminder(ctx context.Context, id string) error {
	if err := f.enter(ctx, Call{Op: "DeleteReminder", ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	for pid, p := range f.prospects {
		i := p.ReminderIndex(models.PersistedID(id))
		if i < 0 {
			continue
		}
		p = p.Clone()
		p.Reminders = append(p.Reminders[:i], p.Reminders[i+1:]...)
		f.prospects[pid] = p
		f.mu.Unlock()

		f.emit(ctx, realtime.Event{Type: realtime.Delete, Table: realtime.TableReminders, Old: &realtime.Record{ID: id, ProspectID: pid}})
		return nil
	}
	f.mu.Unlock()
	return backend.ErrNotFound
}

func (f *Fake) CreateLocation(ctx context.Context, name string) (models.Location, error) {
	if err := f.enter(ctx, Call{Op: "CreateLocation"}); err != nil {
		return models.Location{}, err
	}
	f.mu.Lock()
	for _, loc := range f.locations {
		if loc.Name == name {
			f.mu.Unlock()
			return models.Location{}, backend.ErrConflict
		}
	}
	loc := models.Location{ID: f.nextID("l"), Name: name, CreatedAt: f.now()}
	f.locations[loc.ID] = loc
	f.mu.Unlock()

	f.emit(ctx, realtime.Event{Type: realtime.Insert, Table: realtime.TableLocations, New: &realtime.Record{ID: loc.ID}})
	return loc, nil
}

func (f *Fake) ListLocations(ctx context.Context) ([]models.Location, error) {
	if err := f.enter(ctx, Call{Op: "ListLocations"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Location, 0, len(f.locations))
	for _, loc := range f.locations {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) DeleteLocation(ctx context.Context, id string) error {
	if err := f.enter(ctx, Call{Op: "DeleteLocation", ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	if _, ok := f.locations[id]; !ok {
		f.mu.Unlock()
		return backend.ErrNotFound
	}
	delete(f.locations, id)
	for pid, p := range f.prospects {
		if p.LocationID == id {
			p.LocationID = ""
			p.LocationName = ""
			f.prospects[pid] = p
		}
	}
	f.mu.Unlock()

	f.emit(ctx, realtime.Event{Type: realtime.Delete, Table: realtime.TableLocations, Old: &realtime.Record{ID: id}})
	return nil
}

func (f *Fake) Close() error { return nil }
