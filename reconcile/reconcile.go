// ABOUTME: Realtime reconciler keeping the entity store consistent with pushed change events
// ABOUTME: Detail-view watches refetch their subject on a match; a store-wide sync follows every prospect
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/realtime"
	"github.com/harperreed/spruce/store"
)

const (
	// DetailChannel is the channel of the single open prospect detail view.
	DetailChannel = "prospect-detail"
	// SyncChannel is the channel of the store-wide follower.
	SyncChannel = "store-sync"
)

// ErrNotPersisted means a watch was requested for a prospect the backend does not know yet.
var ErrNotPersisted = errors.New("cannot watch a prospect that is not saved yet")

// View is an open detail view on one prospect.
type View interface {
	// Refreshed delivers the refetched prospect.
	Refreshed(p models.Prospect)
	// Closed means the prospect no longer exists and the view should go away.
	Closed(id models.ID)
	// Failed reports a refetch error scoped to the view.
	Failed(id models.ID, err error)
}

// Reconciler merges realtime events into the store by refetching.
type Reconciler struct {
	hub     *realtime.Hub
	backend backend.Backend
	store   *store.Store
	logger  *zap.Logger
	flight  singleflight.Group
}

type Option func(*Reconciler)

func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(hub *realtime.Hub, b backend.Backend, s *store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		hub:     hub,
		backend: b,
		store:   s,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// fetch collapses concurrent refetches of the same prospect into one backend read.
func (r *Reconciler) fetch(ctx context.Context, id string) (models.Prospect, error) {
	v, err, shared := r.flight.Do("prospect:"+id, func() (interface{}, error) {
		return r.backend.GetProspect(ctx, id)
	})
	if err != nil {
		return models.Prospect{}, err
	}
	if shared {
		r.logger.Debug("refetch shared", zap.String("id", id))
	}
	return v.(models.Prospect).Clone(), nil
}

// Refresh refetches every prospect into the store, keeping pending records.
func (r *Reconciler) Refresh(ctx context.Context) error {
	_, err, _ := r.flight.Do("all", func() (interface{}, error) {
		prospects, err := r.backend.ListProspects(ctx)
		if err != nil {
			return nil, err
		}
		r.store.Reload(prospects)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to refresh prospects: %w", err)
	}
	return nil
}

// Watch is the handle of one detail-view subscription.
type Watch struct {
	r      *Reconciler
	id     models.ID
	view   View
	sub    *realtime.Subscription
	ready  chan struct{}
	closed atomic.Bool
	once   sync.Once
}

// Watch follows one prospect on channel. Any event touching the prospect or its services
// and reminders triggers a refetch of the whole prospect; a delete of the prospect row
// closes the view. Opening a watch replaces the one already on the channel.
func (r *Reconciler) Watch(channel string, id models.ID, view View) (*Watch, error) {
	if id.IsPending() || id.IsZero() {
		return nil, fmt.Errorf("%s: %w", id, ErrNotPersisted)
	}
	w := &Watch{r: r, id: id, view: view, ready: make(chan struct{})}
	subject := id.Value()
	w.sub = r.hub.Subscribe(channel, func(ev realtime.Event) bool {
		return ev.Touches(subject)
	}, w.handle)
	close(w.ready)
	return w, nil
}

// ID returns the watched prospect.
func (w *Watch) ID() models.ID { return w.id }

// Active reports whether results are still delivered to the view.
func (w *Watch) Active() bool { return w.sub.Active() && !w.closed.Load() }

// Close releases the subscription. Refetches still in flight are discarded.
func (w *Watch) Close() {
	w.once.Do(func() {
		w.closed.Store(true)
		w.sub.Unsubscribe()
	})
}

// Done is closed once the delivery goroutine has exited.
func (w *Watch) Done() <-chan struct{} { return w.sub.Done() }

func (w *Watch) handle(ctx context.Context, ev realtime.Event) {
	<-w.ready
	subject := w.id.Value()
	log := w.r.logger.With(zap.String("id", subject), zap.String("table", string(ev.Table)), zap.String("type", string(ev.Type)))

	if ev.Removes(subject) {
		log.Debug("watched prospect deleted")
		w.gone()
		return
	}

	p, err := w.r.fetch(ctx, subject)
	if ctx.Err() != nil || !w.Active() {
		// The view went away while the refetch was in flight.
		return
	}
	switch {
	case errors.Is(err, backend.ErrNotFound):
		log.Debug("watched prospect vanished")
		w.gone()
	case err != nil:
		log.Warn("refetch failed", zap.Error(err))
		w.view.Failed(w.id, fmt.Errorf("failed to refetch prospect: %w", err))
	default:
		w.r.store.Merge(p)
		w.view.Refreshed(p)
	}
}

func (w *Watch) gone() {
	w.r.store.RemoveOne(w.id)
	w.Close()
	w.view.Closed(w.id)
}

// Sync follows every change event and keeps the whole store current: a prospect delete
// removes the record, a location change refetches everything, and anything else refetches
// the prospect it names. The caller releases the returned subscription.
func (r *Reconciler) Sync() *realtime.Subscription {
	return r.hub.Subscribe(SyncChannel, nil, r.apply)
}

func (r *Reconciler) apply(ctx context.Context, ev realtime.Event) {
	pid := ev.ProspectID()
	log := r.logger.With(zap.String("id", pid), zap.String("table", string(ev.Table)), zap.String("type", string(ev.Type)))

	switch {
	case ev.Table == realtime.TableLocations:
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Warn("refresh after location change failed", zap.Error(err))
		}
	case pid == "":
		log.Debug("event names no prospect")
	case ev.Removes(pid):
		r.store.RemoveOne(models.PersistedID(pid))
	default:
		p, err := r.fetch(ctx, pid)
		if ctx.Err() != nil {
			return
		}
		switch {
		case errors.Is(err, backend.ErrNotFound):
			r.store.RemoveOne(models.PersistedID(pid))
		case err != nil:
			log.Warn("refetch failed", zap.Error(err))
		default:
			r.store.Merge(p)
		}
	}
}
