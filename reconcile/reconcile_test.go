package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harperreed/spruce/backend/backendtest"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/realtime"
	"github.com/harperreed/spruce/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = time.Second

type viewRecorder struct {
	refreshed chan models.Prospect
	closed    chan models.ID
	failed    chan error
}

func newViewRecorder() *viewRecorder {
	return &viewRecorder{
		refreshed: make(chan models.Prospect, 16),
		closed:    make(chan models.ID, 16),
		failed:    make(chan error, 16),
	}
}

func (v *viewRecorder) Refreshed(p models.Prospect) { v.refreshed <- p }
func (v *viewRecorder) Closed(id models.ID) { v.closed <- id }
func (v *viewRecorder) Failed(_ models.ID, err error) { v.failed <- err }

func (v *viewRecorder) nextRefresh(t *testing.T) models.Prospect {
	t.Helper()
	select {
	case p := <-v.refreshed:
		return p
	case <-time.After(waitFor):
		t.Fatal("view was not refreshed")
		return models.Prospect{}
	}
}

func (v *viewRecorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case p := <-v.refreshed:
		t.Fatalf("unexpected refresh of %s", p.ID)
	case id := <-v.closed:
		t.Fatalf("unexpected close of %s", id)
	case err := <-v.failed:
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

type fixture struct {
	hub   *realtime.Hub
	fake  *backendtest.Fake
	store *store.Store
	rec   *Reconciler
}

func setup(t *testing.T) *fixture {
	t.Helper()
	hub := realtime.NewHub(nil)
	t.Cleanup(hub.Close)
	fake := backendtest.New()
	fake.SetPublisher(hub)
	s := store.New()
	return &fixture{hub: hub, fake: fake, store: s, rec: New(hub, fake, s)}
}

func (f *fixture) seed(name string) models.Prospect {
	p := f.fake.Seed(models.Prospect{Name: name, Phone: "555", Status: models.StatusPending, Priority: models.PriorityLow,
		Services: []models.Service{{ID: "s0", Type: models.ServiceCouch}}})
	f.store.Merge(p)
	return p
}

func (f *fixture) watch(t *testing.T, id models.ID) (*Watch, *viewRecorder) {
	t.Helper()
	view := newViewRecorder()
	w, err := f.rec.Watch(DetailChannel, id, view)
	require.NoError(t, err)
	t.Cleanup(func() {
		w.Close()
		<-w.Done()
	})
	return w, view
}

func renamed(p models.Prospect, name string) models.ProspectInput {
	in := p.Input()
	in.Name = name
	return in
}

func TestWatchRefetchesOnRemoteUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.seed("Before")
	_, view := f.watch(t, p.ID)

	_, err := f.fake.UpdateProspect(ctx, p.ID.Value(), renamed(p, "After"))
	require.NoError(t, err)

	got := view.nextRefresh(t)
	assert.Equal(t, "After", got.Name)
	stored, _ := f.store.Get(p.ID)
	assert.Equal(t, "After", stored.Name)
}

func TestWatchRefetchesOnChildChange(t *testing.T) {
	f := setup(t)
	p := f.seed("Kids")
	_, view := f.watch(t, p.ID)

	_, err := f.fake.CreateReminder(context.Background(), p.ID.Value(), models.ReminderInput{DueAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	got := view.nextRefresh(t)
	assert.Len(t, got.Reminders, 1)
}

func TestWatchIgnoresOtherProspects(t *testing.T) {
	f := setup(t)
	p := f.seed("Mine")
	other := f.seed("Theirs")
	_, view := f.watch(t, p.ID)

	_, err := f.fake.UpdateProspect(context.Background(), other.ID.Value(), renamed(other, "Changed"))
	require.NoError(t, err)

	view.quiet(t)
	assert.Empty(t, f.fake.CallsTo("GetProspect"))
}

func TestWatchClosesOnDelete(t *testing.T) {
	f := setup(t)
	p := f.seed("Doomed")
	w, view := f.watch(t, p.ID)

	require.NoError(t, f.fake.DeleteProspect(context.Background(), p.ID.Value()))

	select {
	case id := <-view.closed:
		assert.Equal(t, p.ID, id)
	case <-time.After(waitFor):
		t.Fatal("view was not closed")
	}
	_, ok := f.store.Get(p.ID)
	assert.False(t, ok)
	assert.False(t, w.Active())
	<-w.Done()
	assert.Zero(t, f.hub.Len())
	assert.Empty(t, f.fake.CallsTo("GetProspect"), "a delete closes without refetching")
}

func TestWatchClosesWhenRefetchFindsNothing(t *testing.T) {
	f := setup(t)
	p := f.seed("Vanishing")
	_, view := f.watch(t, p.ID)

	f.fake.Remove(p.ID.Value())
	require.NoError(t, f.hub.Publish(context.Background(), realtime.Event{
		Type: realtime.Update, Table: realtime.TableProspects,
		Old: &realtime.Record{ID: p.ID.Value()}, New: &realtime.Record{ID: p.ID.Value()},
	}))

	select {
	case <-view.closed:
	case <-time.After(waitFor):
		t.Fatal("view was not closed")
	}
}

func TestWatchReportsRefetchFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.seed("Flaky")
	_, view := f.watch(t, p.ID)

	boom := errors.New("connection reset")
	f.fake.SetHook(func(_ context.Context, call backendtest.Call) error {
		if call.Op == "GetProspect" {
			return boom
		}
		return nil
	})
	_, err := f.fake.UpdateProspect(ctx, p.ID.Value(), renamed(p, "Unseen"))
	require.NoError(t, err)

	select {
	case err := <-view.failed:
		assert.ErrorIs(t, err, boom)
	case <-time.After(waitFor):
		t.Fatal("failure was not reported")
	}
	stored, _ := f.store.Get(p.ID)
	assert.Equal(t, "Flaky", stored.Name, "a failed refetch leaves the store alone")
}

func TestWatchReplacesPriorWatchOnChannel(t *testing.T) {
	f := setup(t)
	a := f.seed("A")
	b := f.seed("B")
	first, firstView := f.watch(t, a.ID)
	_, secondView := f.watch(t, b.ID)

	<-first.Done()
	assert.False(t, first.Active())
	assert.Equal(t, 1, f.hub.Len())

	_, err := f.fake.UpdateProspect(context.Background(), a.ID.Value(), renamed(a, "A2"))
	require.NoError(t, err)
	firstView.quiet(t)
	secondView.quiet(t)
}

func TestClosedWatchDiscardsInFlightRefetch(t *testing.T) {
	f := setup(t)
	p := f.seed("Slow")
	w, view := f.watch(t, p.ID)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.fake.SetHook(func(_ context.Context, call backendtest.Call) error {
		if call.Op == "GetProspect" {
			close(entered)
			<-release
		}
		return nil
	})
	// Change the server copy without an event, then announce it.
	server := p
	server.Name = "Late"
	f.fake.Seed(server)
	require.NoError(t, f.hub.Publish(context.Background(), realtime.Event{
		Type: realtime.Update, Table: realtime.TableProspects,
		Old: &realtime.Record{ID: p.ID.Value()}, New: &realtime.Record{ID: p.ID.Value()},
	}))

	<-entered
	w.Close()
	close(release)
	<-w.Done()

	view.quiet(t)
	stored, _ := f.store.Get(p.ID)
	assert.Equal(t, "Slow", stored.Name)
}

func TestWatchRejectsPendingProspect(t *testing.T) {
	f := setup(t)
	_, err := f.rec.Watch(DetailChannel, models.NewPendingID(), newViewRecorder())
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.Zero(t, f.hub.Len())
}

func TestSyncFollowsRemoteChanges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sub := f.rec.Sync()
	t.Cleanup(func() {
		sub.Unsubscribe()
		<-sub.Done()
	})

	created, err := f.fake.CreateProspect(ctx, models.ProspectInput{
		Name: "Remote", Phone: "1", Services: []models.ServiceInput{{Type: models.ServiceCarpet}},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := f.store.Get(created.ID)
		return ok
	}, waitFor, 5*time.Millisecond)

	_, err = f.fake.UpdateProspect(ctx, created.ID.Value(), renamed(created, "Remote 2"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		p, _ := f.store.Get(created.ID)
		return p.Name == "Remote 2"
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, f.fake.DeleteProspect(ctx, created.ID.Value()))
	require.Eventually(t, func() bool { return f.store.Len() == 0 }, waitFor, 5*time.Millisecond)
}

func TestSyncRefreshesOnLocationChange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sub := f.rec.Sync()
	t.Cleanup(func() {
		sub.Unsubscribe()
		<-sub.Done()
	})

	f.fake.Seed(models.Prospect{Name: "Quiet", Phone: "1", Status: models.StatusPending})
	_, err := f.fake.CreateLocation(ctx, "North")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.store.Len() == 1 }, waitFor, 5*time.Millisecond)
	assert.NotEmpty(t, f.fake.CallsTo("ListProspects"))
}

func TestRedundantRefetchLeavesStoreUnchanged(t *testing.T) {
	f := setup(t)
	p := f.seed("Echo")
	_, view := f.watch(t, p.ID)
	before := f.store.All()

	ev := realtime.Event{Type: realtime.Update, Table: realtime.TableProspects,
		Old: &realtime.Record{ID: p.ID.Value()}, New: &realtime.Record{ID: p.ID.Value()}}
	require.NoError(t, f.hub.Publish(context.Background(), ev))
	require.NoError(t, f.hub.Publish(context.Background(), ev))
	view.nextRefresh(t)
	view.nextRefresh(t)

	assert.Equal(t, before, f.store.All())
}
