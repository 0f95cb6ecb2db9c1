// ABOUTME: Mutation executor applying prospect changes locally and remotely
// ABOUTME: Owns the optimistic create, write-then-refetch update, confirmed delete and kanban move contracts
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/ordering"
	"github.com/harperreed/spruce/store"
)

var (
	// ErrNotPersisted means the operation needs a record the backend has confirmed.
	ErrNotPersisted = errors.New("record is not saved yet")
	// ErrUnknownProspect means the prospect is not in the local store.
	ErrUnknownProspect = errors.New("unknown prospect")
	// ErrUnknownReminder means the reminder is not on the prospect in the local store.
	ErrUnknownReminder = errors.New("unknown reminder")
	// ErrNotRetryable means the record is not a failed creation.
	ErrNotRetryable = errors.New("record has no failed submission to retry")
)

// Executor performs single logical changes against the backend and the store.
type Executor struct {
	backend      backend.Backend
	store        *store.Store
	notifier     Notifier
	logger       *zap.Logger
	maxReminders int
	increment    float64
	now          func() time.Time

	inFlight atomic.Int64
	queue    *serialQueue

	mu       sync.Mutex
	promoted map[models.ID]models.ID // pending reminder -> persisted
	aliases  map[models.ID]models.ID // persisted reminder -> the pending ID it was queued under

	// confirmed holds, per reminder queue key, the last row the backend accepted. Entries
	// live only while changes to that reminder are queued.
	reminderMu sync.Mutex
	confirmed  map[string]models.Reminder
}

type Option func(*Executor)

func WithNotifier(n Notifier) Option {
	return func(e *Executor) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxReminders caps reminders per prospect.
func WithMaxReminders(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxReminders = n
		}
	}
}

// WithIncrement sets the ordering gap used by moves and rebalances.
func WithIncrement(inc float64) Option {
	return func(e *Executor) {
		if inc > 0 {
			e.increment = inc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func New(b backend.Backend, s *store.Store, opts ...Option) *Executor {
	e := &Executor{
		backend:      b,
		store:        s,
		notifier:     nopNotifier{},
		logger:       zap.NewNop(),
		maxReminders: models.MaxRemindersPerProspect,
		increment:    ordering.DefaultIncrement,
		now:          time.Now,
		queue:        newSerialQueue(),
		promoted:     make(map[models.ID]models.ID),
		aliases:      make(map[models.ID]models.ID),
		confirmed:    make(map[string]models.Reminder),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the store the executor writes to.
func (e *Executor) Store() *store.Store { return e.store }

// Saving reports whether any remote write is in flight.
func (e *Executor) Saving() bool { return e.inFlight.Load() > 0 }

func (e *Executor) begin() func() {
	e.inFlight.Add(1)
	var once sync.Once
	return func() { once.Do(func() { e.inFlight.Add(-1) }) }
}

func (e *Executor) notify(level Level, op Op, subject string, err error) {
	e.notifier.Notify(Notice{Level: level, Op: op, Subject: subject, Err: err})
}

func (e *Executor) fail(op Op, subject string, err error) error {
	e.logger.Warn("mutation failed", zap.String("op", string(op)), zap.String("subject", subject), zap.Error(err))
	e.notify(LevelError, op, subject, err)
	return err
}

// Load sets the calendar scope and fetches every prospect.
func (e *Executor) Load(ctx context.Context, from, to time.Time) error {
	e.store.SetScope(from, to)
	return e.Refresh(ctx)
}

// Refresh refetches every persisted prospect. Pending records survive the reload.
func (e *Executor) Refresh(ctx context.Context) error {
	prospects, err := e.backend.ListProspects(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh prospects: %w", err)
	}
	e.store.Reload(prospects)
	return nil
}

// Create applies the submission optimistically under a pending ID, then submits it.
// On failure the record stays in the store flagged as an error with its original data.
func (e *Executor) Create(ctx context.Context, in models.ProspectInput) (models.Prospect, error) {
	original := in.Clone()
	in = in.Clone()
	in.Normalize()
	if err := in.ValidateWithLimit(e.maxReminders); err != nil {
		return models.Prospect{}, e.fail(OpCreate, "", err)
	}

	id := models.NewPendingID()
	draft := in.Draft(id, e.now().UTC())
	draft.SaveStatus = models.SaveStatusSaving
	draft.OriginalData = &original
	e.store.UpsertOne(draft)

	return e.submit(ctx, id, in)
}

// Retry resubmits the original data of a failed creation, replacing it in place on success.
func (e *Executor) Retry(ctx context.Context, id models.ID) (models.Prospect, error) {
	p, ok := e.store.Get(id)
	if !ok {
		return models.Prospect{}, fmt.Errorf("%s: %w", id, ErrUnknownProspect)
	}
	if !id.IsPending() || p.SaveStatus != models.SaveStatusError || p.OriginalData == nil {
		return models.Prospect{}, fmt.Errorf("%s: %w", id, ErrNotRetryable)
	}
	return e.Resubmit(ctx, id, *p.OriginalData)
}

// Resubmit retries a failed creation with edited data, as from a prefilled form.
func (e *Executor) Resubmit(ctx context.Context, id models.ID, in models.ProspectInput) (models.Prospect, error) {
	p, ok := e.store.Get(id)
	if !ok {
		return models.Prospect{}, fmt.Errorf("%s: %w", id, ErrUnknownProspect)
	}
	if !id.IsPending() || p.SaveStatus != models.SaveStatusError {
		return models.Prospect{}, fmt.Errorf("%s: %w", id, ErrNotRetryable)
	}
	original := in.Clone()
	in = in.Clone()
	in.Normalize()
	if err := in.ValidateWithLimit(e.maxReminders); err != nil {
		return models.Prospect{}, e.fail(OpCreate, id.String(), err)
	}

	draft := in.Draft(id, p.CreatedAt)
	draft.SaveStatus = models.SaveStatusSaving
	draft.OriginalData = &original
	e.store.UpsertOne(draft)

	return e.submit(ctx, id, in)
}

func (e *Executor) submit(ctx context.Context, id models.ID, in models.ProspectInput) (models.Prospect, error) {
	e.notify(LevelPending, OpCreate, id.String(), nil)
	done := e.begin()
	created, err := e.backend.CreateProspect(ctx, in.Clone())
	done()
	if err != nil {
		e.store.Update(id, func(p *models.Prospect) { p.SaveStatus = models.SaveStatusError })
		return models.Prospect{}, e.fail(OpCreate, id.String(), fmt.Errorf("failed to create prospect: %w", err))
	}

	created.SaveStatus = models.SaveStatusNone
	created.OriginalData = nil
	e.store.ReplaceOne(id, created)
	e.notify(LevelSuccess, OpCreate, created.ID.String(), nil)
	e.logger.Debug("prospect created", zap.String("pending_id", id.String()), zap.String("id", created.ID.String()))
	return created, nil
}

// Discard drops a failed creation from the store without contacting the backend.
func (e *Executor) Discard(id models.ID) error {
	p, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownProspect)
	}
	if !id.IsPending() || p.SaveStatus != models.SaveStatusError {
		return fmt.Errorf("%s: %w", id, ErrNotRetryable)
	}
	e.store.RemoveOne(id)
	return nil
}

var inputComparison = cmp.Options{cmpopts.EquateEmpty()}

// Update writes the full prospect and then refetches. Nothing is applied locally before
// the write returns, so a failure leaves the store untouched.
func (e *Executor) Update(ctx context.Context, id models.ID, in models.ProspectInput) (models.Prospect, error) {
	if id.IsPending() {
		return models.Prospect{}, fmt.Errorf("%s: %w", id, ErrNotPersisted)
	}
	in.Normalize()
	if err := in.ValidateWithLimit(e.maxReminders); err != nil {
		return models.Prospect{}, e.fail(OpUpdate, id.String(), err)
	}

	if current, ok := e.store.Get(id); ok {
		currentInput := current.Input()
		if cmp.Equal(currentInput, in, inputComparison) {
			return current, nil
		}
	}

	e.notify(LevelPending, OpUpdate, id.String(), nil)
	done := e.begin()
	defer done()

	updated, err := e.backend.UpdateProspect(ctx, id.Value(), in)
	if err != nil {
		return models.Prospect{}, e.fail(OpUpdate, id.String(), fmt.Errorf("failed to update prospect: %w", err))
	}
	e.store.Merge(updated)

	// Pick up server-derived fields everywhere; last write observed wins.
	if err := e.Refresh(ctx); err != nil {
		e.logger.Warn("refetch after update failed", zap.String("id", id.String()), zap.Error(err))
	}
	e.notify(LevelSuccess, OpUpdate, id.String(), nil)
	return updated, nil
}

// Delete removes the prospect from the store once the backend confirms. A failed creation
// is only dropped locally.
func (e *Executor) Delete(ctx context.Context, id models.ID) error {
	if id.IsPending() {
		p, ok := e.store.Get(id)
		if !ok {
			return fmt.Errorf("%s: %w", id, ErrUnknownProspect)
		}
		if p.SaveStatus == models.SaveStatusSaving {
			return fmt.Errorf("%s: %w", id, ErrNotPersisted)
		}
		e.store.RemoveOne(id)
		return nil
	}

	e.notify(LevelPending, OpDelete, id.String(), nil)
	done := e.begin()
	err := e.backend.DeleteProspect(ctx, id.Value())
	done()
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		return e.fail(OpDelete, id.String(), fmt.Errorf("failed to delete prospect: %w", err))
	}

	e.store.RemoveOne(id)
	e.notify(LevelSuccess, OpDelete, id.String(), nil)
	return nil
}

// Move places the prospect at index within the status column. Status and ordering key
// change locally first and roll back to the pre-move snapshot if the write fails.
// When the gap at index is exhausted the column is renumbered and every changed key written.
func (e *Executor) Move(ctx context.Context, id models.ID, status models.Status, index int) (models.Prospect, error) {
	if id.IsPending() {
		return models.Prospect{}, fmt.Errorf("%s: %w", id, ErrNotPersisted)
	}
	if !status.Valid() {
		return models.Prospect{}, &models.ValidationError{Problems: []string{fmt.Sprintf("unknown status %q", status)}}
	}
	if _, ok := e.store.Get(id); !ok {
		return models.Prospect{}, fmt.Errorf("%s: %w", id, ErrUnknownProspect)
	}

	var column []models.Prospect
	for _, p := range e.store.Column(status) {
		if p.ID != id {
			column = append(column, p)
		}
	}
	keys := make([]float64, len(column))
	for i, p := range column {
		keys[i] = p.Position
	}
	placement := ordering.Place(keys, index, e.increment)

	var snapshots []models.Prospect
	before, _ := e.store.Update(id, func(p *models.Prospect) {
		p.Status = status
		p.Position = placement.Key
	})
	snapshots = append(snapshots, before)

	type rekey struct {
		id  models.ID
		key float64
	}
	var rekeys []rekey
	for i, key := range placement.Neighbors() {
		neighbor := column[i]
		if neighbor.Position == key {
			continue
		}
		prev, ok := e.store.Update(neighbor.ID, func(p *models.Prospect) { p.Position = key })
		if ok {
			snapshots = append(snapshots, prev)
		}
		if !neighbor.ID.IsPending() {
			rekeys = append(rekeys, rekey{id: neighbor.ID, key: key})
		}
	}
	if len(rekeys) > 0 {
		e.logger.Info("rebalancing column", zap.String("status", string(status)), zap.Int("rekeyed", len(rekeys)))
	}

	e.notify(LevelPending, OpMove, id.String(), nil)
	done := e.begin()
	defer done()

	wrote := false
	rollback := func(cause error) error {
		for _, snap := range snapshots {
			e.store.UpsertOne(snap)
		}
		if wrote {
			// Some keys reached the backend; converge on its view.
			if err := e.Refresh(ctx); err != nil {
				e.logger.Warn("refetch after failed move", zap.Error(err))
			}
		}
		return e.fail(OpMove, id.String(), fmt.Errorf("failed to move prospect: %w", cause))
	}

	for _, rk := range rekeys {
		updated, err := e.backend.MoveProspect(ctx, rk.id.Value(), status, rk.key)
		if err != nil {
			return models.Prospect{}, rollback(err)
		}
		wrote = true
		e.store.Merge(updated)
	}

	moved, err := e.backend.MoveProspect(ctx, id.Value(), status, placement.Key)
	if err != nil {
		return models.Prospect{}, rollback(err)
	}
	e.store.Merge(moved)
	e.notify(LevelSuccess, OpMove, id.String(), nil)
	return moved, nil
}
