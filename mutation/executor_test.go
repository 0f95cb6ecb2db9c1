package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/spruce/backend/backendtest"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/store"
)

var errOffline = errors.New("backend offline")

type recordedNotices struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordedNotices) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordedNotices) levels(op Op) []Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Level
	for _, n := range r.notices {
		if n.Op == op {
			out = append(out, n.Level)
		}
	}
	return out
}

func setup(t *testing.T) (*Executor, *backendtest.Fake, *store.Store, *recordedNotices) {
	t.Helper()
	fake := backendtest.New()
	s := store.New()
	notices := &recordedNotices{}
	e := New(fake, s, WithNotifier(notices))
	return e, fake, s, notices
}

func failOn(op string, err error) backendtest.Hook {
	return func(_ context.Context, call backendtest.Call) error {
		if call.Op == op {
			return err
		}
		return nil
	}
}

func startAt(day int) *time.Time {
	t := time.Date(2026, 4, day, 10, 0, 0, 0, time.UTC)
	return &t
}

func submission() models.ProspectInput {
	return models.ProspectInput{
		Name:     "Morgan",
		Phone:    "555-0142",
		StartsAt: startAt(10),
		Status:   models.StatusConfirmed,
		Services: []models.ServiceInput{{Type: models.ServiceCarpet, Details: models.ServiceDetails{Size: "10x12", Quantity: 2}}},
	}
}

func seedProspect(t *testing.T, e *Executor, fake *backendtest.Fake, p models.Prospect) models.Prospect {
	t.Helper()
	seeded := fake.Seed(p)
	require.NoError(t, e.Refresh(context.Background()))
	return seeded
}

func TestCreateReplacesPendingRecordInPlace(t *testing.T) {
	e, fake, s, notices := setup(t)
	ctx := context.Background()
	seedProspect(t, e, fake, models.Prospect{Name: "First", Phone: "1", Status: models.StatusPending})

	created, err := e.Create(ctx, submission())
	require.NoError(t, err)

	assert.False(t, created.ID.IsPending())
	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, created.ID, all[1].ID)
	assert.Equal(t, models.SaveStatusNone, all[1].SaveStatus)
	assert.Nil(t, all[1].OriginalData)
	assert.Equal(t, []Level{LevelPending, LevelSuccess}, notices.levels(OpCreate))
	assert.False(t, e.Saving())
}

func TestCreateAppliesOptimisticallyBeforeBackendReturns(t *testing.T) {
	e, fake, s, _ := setup(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	fake.SetHook(func(_ context.Context, call backendtest.Call) error {
		if call.Op == "CreateProspect" {
			close(entered)
			<-release
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := e.Create(context.Background(), submission())
		done <- err
	}()

	<-entered
	all := s.All()
	require.Len(t, all, 1)
	assert.True(t, all[0].ID.IsPending())
	assert.Equal(t, models.SaveStatusSaving, all[0].SaveStatus)
	assert.Len(t, s.Scoped(), 1)
	assert.True(t, e.Saving())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.All()[0].ID.IsPending())
}

func TestCreateFailureKeepsFlaggedRecordInBothSubsets(t *testing.T) {
	e, fake, s, notices := setup(t)
	s.SetScope(*startAt(1), *startAt(30))
	fake.SetHook(failOn("CreateProspect", errOffline))

	in := submission()
	_, err := e.Create(context.Background(), in)
	require.ErrorIs(t, err, errOffline)

	all := s.All()
	require.Len(t, all, 1)
	failed := all[0]
	assert.True(t, failed.ID.IsPending())
	assert.Equal(t, models.SaveStatusError, failed.SaveStatus)
	require.NotNil(t, failed.OriginalData)
	assert.Equal(t, in, *failed.OriginalData)

	scoped := s.Scoped()
	require.Len(t, scoped, 1)
	assert.Equal(t, failed.ID, scoped[0].ID)
	assert.Equal(t, []Level{LevelPending, LevelError}, notices.levels(OpCreate))
}

func TestFailedCreationKeepsSubmissionAsEntered(t *testing.T) {
	e, fake, s, _ := setup(t)
	ctx := context.Background()
	fake.SetHook(failOn("CreateProspect", errOffline))

	in := submission()
	in.Name = "  Morgan  "
	in.Services[0].Type = models.ServiceAutoDetailing
	raw := in.Clone()

	_, err := e.Create(ctx, in)
	require.Error(t, err)
	assert.Equal(t, raw, in, "the caller's submission is not normalized in place")

	failed := s.All()[0]
	assert.Equal(t, "Morgan", failed.Name)
	assert.Equal(t, models.PriorityMedium, failed.Priority)
	require.NotNil(t, failed.OriginalData)
	assert.Equal(t, raw, *failed.OriginalData)

	edited := raw.Clone()
	edited.Phone = " 555-0199 "
	_, err = e.Resubmit(ctx, failed.ID, edited)
	require.Error(t, err)
	failed, _ = s.Get(failed.ID)
	assert.Equal(t, "555-0199", failed.Phone)
	require.NotNil(t, failed.OriginalData)
	assert.Equal(t, edited, *failed.OriginalData)
}

func TestRetryReplacesFailedRecordWithoutDuplicates(t *testing.T) {
	e, fake, s, _ := setup(t)
	ctx := context.Background()
	fake.SetHook(failOn("CreateProspect", errOffline))

	_, err := e.Create(ctx, submission())
	require.Error(t, err)
	pendingID := s.All()[0].ID

	// A second failure must not add another record.
	_, err = e.Retry(ctx, pendingID)
	require.Error(t, err)
	assert.Equal(t, 1, s.Len())

	fake.SetHook(nil)
	created, err := e.Retry(ctx, pendingID)
	require.NoError(t, err)

	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0].ID)
	assert.Len(t, fake.CallsTo("CreateProspect"), 3)

	_, err = e.Retry(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

func TestResubmitWithEditedData(t *testing.T) {
	e, fake, s, _ := setup(t)
	ctx := context.Background()
	fake.SetHook(failOn("CreateProspect", errOffline))
	_, err := e.Create(ctx, submission())
	require.Error(t, err)
	pendingID := s.All()[0].ID

	fake.SetHook(nil)
	edited := submission()
	edited.Name = "Morgan K."
	created, err := e.Resubmit(ctx, pendingID, edited)
	require.NoError(t, err)
	assert.Equal(t, "Morgan K.", created.Name)
	assert.Equal(t, 1, s.Len())
}

func TestDiscardDropsFailedCreation(t *testing.T) {
	e, fake, s, _ := setup(t)
	fake.SetHook(failOn("CreateProspect", errOffline))
	_, err := e.Create(context.Background(), submission())
	require.Error(t, err)

	id := s.All()[0].ID
	require.NoError(t, e.Discard(id))
	assert.Zero(t, s.Len())
	assert.ErrorIs(t, e.Discard(id), ErrUnknownProspect)
}

func TestCreateValidationMakesNoRemoteCall(t *testing.T) {
	e, fake, s, _ := setup(t)

	in := submission()
	in.Phone = " "
	_, err := e.Create(context.Background(), in)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	in = submission()
	in.Services = nil
	_, err = e.Create(context.Background(), in)
	assert.True(t, models.IsValidation(err))

	assert.Empty(t, fake.Calls())
	assert.Zero(t, s.Len())
}

func TestUpdateWritesThenRefetches(t *testing.T) {
	e, fake, s, notices := setup(t)
	ctx := context.Background()
	p := seedProspect(t, e, fake, models.Prospect{Name: "Old", Phone: "1", Status: models.StatusPending, Priority: models.PriorityLow,
		Services: []models.Service{{ID: "s1", Type: models.ServiceCouch}}})

	in := p.Input()
	in.Name = "New"
	updated, err := e.Update(ctx, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)

	got, _ := s.Get(p.ID)
	assert.Equal(t, "New", got.Name)
	ops := []string{}
	for _, c := range fake.Calls() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{"ListProspects", "UpdateProspect", "ListProspects"}, ops)
	assert.Equal(t, []Level{LevelPending, LevelSuccess}, notices.levels(OpUpdate))
}

func TestUpdateFailureLeavesStoreUnchanged(t *testing.T) {
	e, fake, s, _ := setup(t)
	p := seedProspect(t, e, fake, models.Prospect{Name: "Old", Phone: "1", Status: models.StatusPending, Priority: models.PriorityLow,
		Services: []models.Service{{ID: "s1", Type: models.ServiceCouch}}})
	before := s.All()

	fake.SetHook(failOn("UpdateProspect", errOffline))
	in := p.Input()
	in.Name = "New"
	_, err := e.Update(context.Background(), p.ID, in)
	require.ErrorIs(t, err, errOffline)
	assert.Equal(t, before, s.All())
	assert.False(t, e.Saving())
}

func TestUpdateSkipsUnchangedSubmission(t *testing.T) {
	e, fake, _, _ := setup(t)
	p := seedProspect(t, e, fake, models.Prospect{Name: "Same", Phone: "1", Status: models.StatusPending, Priority: models.PriorityLow,
		Services: []models.Service{{ID: "s1", Type: models.ServiceCouch}}})

	_, err := e.Update(context.Background(), p.ID, p.Input())
	require.NoError(t, err)
	assert.Empty(t, fake.CallsTo("UpdateProspect"))
}

func TestUpdateRejectsPendingRecord(t *testing.T) {
	e, _, _, _ := setup(t)
	_, err := e.Update(context.Background(), models.NewPendingID(), submission())
	assert.ErrorIs(t, err, ErrNotPersisted)
}

func TestDeleteRemovesOnlyAfterConfirmation(t *testing.T) {
	e, fake, s, _ := setup(t)
	ctx := context.Background()
	p := seedProspect(t, e, fake, models.Prospect{Name: "Gone", Phone: "1", Status: models.StatusPending})

	fake.SetHook(failOn("DeleteProspect", errOffline))
	require.ErrorIs(t, e.Delete(ctx, p.ID), errOffline)
	_, ok := s.Get(p.ID)
	assert.True(t, ok, "record must remain after a failed delete")

	fake.SetHook(nil)
	require.NoError(t, e.Delete(ctx, p.ID))
	_, ok = s.Get(p.ID)
	assert.False(t, ok)

	// Already gone on the server counts as deleted.
	other := seedProspect(t, e, fake, models.Prospect{Name: "Elsewhere", Phone: "2", Status: models.StatusPending})
	fake.Remove(other.ID.Value())
	require.NoError(t, e.Delete(ctx, other.ID))
	assert.Zero(t, s.Len())
}

func TestDeleteFailedCreationIsLocal(t *testing.T) {
	e, fake, s, _ := setup(t)
	fake.SetHook(failOn("CreateProspect", errOffline))
	_, err := e.Create(context.Background(), submission())
	require.Error(t, err)

	require.NoError(t, e.Delete(context.Background(), s.All()[0].ID))
	assert.Zero(t, s.Len())
	assert.Empty(t, fake.CallsTo("DeleteProspect"))
}

func TestMoveBetweenNeighbors(t *testing.T) {
	e, fake, s, _ := setup(t)
	ctx := context.Background()
	a := seedProspect(t, e, fake, models.Prospect{Name: "a", Phone: "1", Status: models.StatusConfirmed, Position: 1024})
	seedProspect(t, e, fake, models.Prospect{Name: "b", Phone: "1", Status: models.StatusConfirmed, Position: 2048})
	m := seedProspect(t, e, fake, models.Prospect{Name: "m", Phone: "1", Status: models.StatusPending, Position: 1024})

	moved, err := e.Move(ctx, m.ID, models.StatusConfirmed, 1)
	require.NoError(t, err)
	assert.Equal(t, 1536.0, moved.Position)
	assert.Equal(t, models.StatusConfirmed, moved.Status)

	col := s.Column(models.StatusConfirmed)
	require.Len(t, col, 3)
	assert.Equal(t, []string{"a", "m", "b"}, []string{col[0].Name, col[1].Name, col[2].Name})
	assert.Len(t, fake.CallsTo("MoveProspect"), 1, "only the moved item is written")

	first, err := e.Move(ctx, m.ID, models.StatusConfirmed, 0)
	require.NoError(t, err)
	assert.Equal(t, 512.0, first.Position)

	last, err := e.Move(ctx, a.ID, models.StatusCompleted, 5)
	require.NoError(t, err)
	assert.Equal(t, 1024.0, last.Position, "an empty column starts at the base increment")
}

func TestMoveFailureRollsBackStatusAndKey(t *testing.T) {
	e, fake, s, notices := setup(t)
	m := seedProspect(t, e, fake, models.Prospect{Name: "m", Phone: "1", Status: models.StatusPending, Position: 1024})

	entered := make(chan struct{})
	release := make(chan struct{})
	fake.SetHook(func(_ context.Context, call backendtest.Call) error {
		if call.Op == "MoveProspect" {
			close(entered)
			<-release
			return errOffline
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := e.Move(context.Background(), m.ID, models.StatusCompleted, 0)
		done <- err
	}()

	<-entered
	optimistic, _ := s.Get(m.ID)
	assert.Equal(t, models.StatusCompleted, optimistic.Status)

	close(release)
	require.ErrorIs(t, <-done, errOffline)
	got, _ := s.Get(m.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1024.0, got.Position)
	assert.Equal(t, []Level{LevelPending, LevelError}, notices.levels(OpMove))
}

func TestMoveRebalancesExhaustedGap(t *testing.T) {
	e, fake, s, _ := setup(t)
	ctx := context.Background()
	seedProspect(t, e, fake, models.Prospect{Name: "a", Phone: "1", Status: models.StatusConfirmed, Position: 1})
	seedProspect(t, e, fake, models.Prospect{Name: "b", Phone: "1", Status: models.StatusConfirmed, Position: 1.0000000000000002})
	m := seedProspect(t, e, fake, models.Prospect{Name: "m", Phone: "1", Status: models.StatusPending, Position: 1024})

	moved, err := e.Move(ctx, m.ID, models.StatusConfirmed, 1)
	require.NoError(t, err)
	assert.Equal(t, 2048.0, moved.Position)

	col := s.Column(models.StatusConfirmed)
	require.Len(t, col, 3)
	assert.Equal(t, []string{"a", "m", "b"}, []string{col[0].Name, col[1].Name, col[2].Name})
	assert.Equal(t, []float64{1024, 2048, 3072}, []float64{col[0].Position, col[1].Position, col[2].Position})
	assert.Len(t, fake.CallsTo("MoveProspect"), 3)
}

func TestMoveRejectsUnknownAndPending(t *testing.T) {
	e, _, _, _ := setup(t)
	_, err := e.Move(context.Background(), models.PersistedID("nope"), models.StatusConfirmed, 0)
	assert.ErrorIs(t, err, ErrUnknownProspect)
	_, err = e.Move(context.Background(), models.NewPendingID(), models.StatusConfirmed, 0)
	assert.ErrorIs(t, err, ErrNotPersisted)
}

func TestApplyingConfirmedRecordTwiceIsIdempotent(t *testing.T) {
	e, fake, s, _ := setup(t)
	ctx := context.Background()
	created, err := e.Create(ctx, submission())
	require.NoError(t, err)
	once := s.All()

	// The same authoritative record arriving again, as from a redundant refetch.
	fetched, err := fake.GetProspect(ctx, created.ID.Value())
	require.NoError(t, err)
	s.Merge(fetched)
	assert.Equal(t, once, s.All())
}
