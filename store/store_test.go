package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/spruce/models"
)

func prospect(id string, start *time.Time, status models.Status, pos float64) models.Prospect {
	return models.Prospect{
		ID:       models.PersistedID(id),
		Name:     "Prospect " + id,
		Phone:    "555-0100",
		StartsAt: start,
		Status:   status,
		Position: pos,
		Services: []models.Service{{ID: "s-" + id, ProspectID: id, Type: models.ServiceCarpet}},
	}
}

func at(day int) *time.Time {
	t := time.Date(2026, 5, day, 9, 0, 0, 0, time.UTC)
	return &t
}

func ids(ps []models.Prospect) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID.String()
	}
	return out
}

func TestUpsertPreservesPosition(t *testing.T) {
	s := New()
	s.ReplaceAll([]models.Prospect{
		prospect("a", at(1), models.StatusPending, 1),
		prospect("b", at(2), models.StatusPending, 2),
		prospect("c", at(3), models.StatusPending, 3),
	})

	updated := prospect("b", at(2), models.StatusConfirmed, 2)
	updated.Name = "Renamed"
	s.UpsertOne(updated)

	assert.Equal(t, []string{"a", "b", "c"}, ids(s.All()))
	got, ok := s.Get(models.PersistedID("b"))
	require.True(t, ok)
	assert.Equal(t, "Renamed", got.Name)

	s.UpsertOne(prospect("d", at(4), models.StatusPending, 4))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(s.All()))
}

func TestApplyingSameRecordTwiceIsIdempotent(t *testing.T) {
	s := New()
	s.ReplaceAll([]models.Prospect{prospect("a", at(1), models.StatusPending, 1)})

	confirmed := prospect("b", at(2), models.StatusConfirmed, 2)
	s.UpsertOne(confirmed)
	onceAll, onceScoped := s.All(), s.Scoped()

	s.UpsertOne(confirmed)
	if diff := cmp.Diff(onceAll, s.All()); diff != "" {
		t.Errorf("full set changed on second apply (-once +twice):\n%s", diff)
	}
	if diff := cmp.Diff(onceScoped, s.Scoped()); diff != "" {
		t.Errorf("scoped set changed on second apply (-once +twice):\n%s", diff)
	}
}

func TestReplaceAllDeduplicates(t *testing.T) {
	s := New()
	first := prospect("a", at(1), models.StatusPending, 1)
	second := prospect("a", at(1), models.StatusPending, 1)
	second.Name = "latest"

	s.ReplaceAll([]models.Prospect{first, prospect("b", nil, models.StatusPending, 2), second})

	assert.Equal(t, []string{"a", "b"}, ids(s.All()))
	got, _ := s.Get(models.PersistedID("a"))
	assert.Equal(t, "latest", got.Name)
}

func TestScopeFollowsEveryWrite(t *testing.T) {
	s := New()
	s.SetScope(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC))
	s.ReplaceAll([]models.Prospect{
		prospect("in", at(2), models.StatusPending, 1),
		prospect("out", at(20), models.StatusPending, 2),
		prospect("undated", nil, models.StatusPending, 3),
	})
	assert.Equal(t, []string{"in"}, ids(s.Scoped()))
	assert.Equal(t, 3, s.Len())

	s.Update(models.PersistedID("out"), func(p *models.Prospect) { p.StartsAt = at(3) })
	assert.Equal(t, []string{"in", "out"}, ids(s.Scoped()))

	s.RemoveOne(models.PersistedID("in"))
	assert.Equal(t, []string{"out"}, ids(s.Scoped()))
	assert.Equal(t, []string{"out", "undated"}, ids(s.All()))
}

func TestReplaceOnePromotesPendingInPlace(t *testing.T) {
	s := New()
	pending := prospect("x", at(1), models.StatusPending, 1)
	pending.ID = models.NewPendingID()
	pending.SaveStatus = models.SaveStatusSaving

	s.ReplaceAll([]models.Prospect{prospect("a", at(1), models.StatusPending, 1)})
	s.UpsertOne(pending)
	s.UpsertOne(prospect("c", at(1), models.StatusPending, 3))

	s.ReplaceOne(pending.ID, prospect("server-1", at(1), models.StatusPending, 1))

	assert.Equal(t, []string{"a", "server-1", "c"}, ids(s.All()))
	_, ok := s.Get(pending.ID)
	assert.False(t, ok)
}

func TestReplaceOneAfterRealtimeEchoLeavesNoDuplicate(t *testing.T) {
	s := New()
	pendingID := models.NewPendingID()
	pending := prospect("x", at(1), models.StatusPending, 1)
	pending.ID = pendingID
	s.UpsertOne(pending)

	// The realtime path inserted the confirmed row before the create call returned.
	s.UpsertOne(prospect("server-1", at(1), models.StatusPending, 1))

	final := prospect("server-1", at(1), models.StatusPending, 1)
	final.Name = "final"
	s.ReplaceOne(pendingID, final)

	assert.Equal(t, []string{"server-1"}, ids(s.All()))
	got, _ := s.Get(models.PersistedID("server-1"))
	assert.Equal(t, "final", got.Name)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	s := New()
	s.ReplaceAll([]models.Prospect{prospect("a", nil, models.StatusPending, 1)})
	assert.False(t, s.RemoveOne(models.PersistedID("zzz")))
	assert.Equal(t, 1, s.Len())
}

func TestUpdateReturnsSnapshotForRollback(t *testing.T) {
	s := New()
	s.ReplaceAll([]models.Prospect{prospect("a", nil, models.StatusPending, 1)})

	before, ok := s.Update(models.PersistedID("a"), func(p *models.Prospect) {
		p.Status = models.StatusConfirmed
		p.Position = 99
	})
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, before.Status)

	s.UpsertOne(before)
	got, _ := s.Get(models.PersistedID("a"))
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1.0, got.Position)

	_, ok = s.Update(models.PersistedID("missing"), func(*models.Prospect) {})
	assert.False(t, ok)
}

func TestReadsAreCopies(t *testing.T) {
	s := New()
	s.ReplaceAll([]models.Prospect{prospect("a", at(1), models.StatusPending, 1)})

	all := s.All()
	all[0].Services[0].Type = models.ServiceMattress
	all[0].Name = "mutated"

	got, _ := s.Get(models.PersistedID("a"))
	assert.Equal(t, models.ServiceCarpet, got.Services[0].Type)
	assert.NotEqual(t, "mutated", got.Name)
}

func TestColumnSortsByPosition(t *testing.T) {
	s := New()
	s.ReplaceAll([]models.Prospect{
		prospect("late", nil, models.StatusConfirmed, 3000),
		prospect("early", nil, models.StatusConfirmed, 1000),
		prospect("other", nil, models.StatusPending, 500),
	})
	assert.Equal(t, []string{"early", "late"}, ids(s.Column(models.StatusConfirmed)))
	assert.Empty(t, s.Column(models.StatusCancelled))
}

func TestReloadKeepsPendingRecords(t *testing.T) {
	s := New()
	pending := prospect("x", at(1), models.StatusPending, 1)
	pending.ID = models.NewPendingID()
	pending.SaveStatus = models.SaveStatusError

	s.ReplaceAll([]models.Prospect{prospect("a", at(1), models.StatusPending, 1), pending})
	s.Reload([]models.Prospect{prospect("b", at(2), models.StatusPending, 2), prospect("c", at(3), models.StatusPending, 3)})

	assert.Equal(t, []string{"b", "c", pending.ID.String()}, ids(s.All()))
	got, ok := s.Get(pending.ID)
	require.True(t, ok)
	assert.Equal(t, models.SaveStatusError, got.SaveStatus)
}

func TestMergeCarriesStagedReminders(t *testing.T) {
	s := New()
	local := prospect("a", at(1), models.StatusPending, 1)
	staged := models.Reminder{ID: models.NewPendingID(), ProspectID: "a", DueAt: *at(4)}
	local.Reminders = []models.Reminder{
		{ID: models.PersistedID("r1"), ProspectID: "a", DueAt: *at(2)},
		staged,
	}
	s.ReplaceAll([]models.Prospect{local})

	fetched := prospect("a", at(1), models.StatusConfirmed, 1)
	fetched.Reminders = []models.Reminder{{ID: models.PersistedID("r1"), ProspectID: "a", DueAt: *at(2), Completed: true}}
	s.Merge(fetched)

	got, _ := s.Get(models.PersistedID("a"))
	assert.Equal(t, models.StatusConfirmed, got.Status)
	require.Len(t, got.Reminders, 2)
	assert.True(t, got.Reminders[0].Completed)
	assert.Equal(t, staged.ID, got.Reminders[1].ID)

	s.Reload([]models.Prospect{fetched})
	got, _ = s.Get(models.PersistedID("a"))
	assert.Len(t, got.Reminders, 2)

	s.Merge(prospect("new", nil, models.StatusPending, 5))
	assert.Equal(t, 2, s.Len())
}
