package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouches(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"prospect update", prospectEvent(Update, "p1"), true},
		{"other prospect", prospectEvent(Update, "p2"), false},
		{"prospect delete via old", prospectEvent(Delete, "p1"), true},
		{"reminder insert via new.prospect_id", reminderEvent(Insert, "r1", "p1"), true},
		{"reminder delete via old.prospect_id", reminderEvent(Delete, "r1", "p1"), true},
		{"service of other prospect", Event{Type: Insert, Table: TableServices, New: &Record{ID: "s1", ProspectID: "p2"}}, false},
		{"reminder whose id collides with prospect", Event{Type: Update, Table: TableReminders, New: &Record{ID: "p1", ProspectID: "p9"}}, false},
		{"location", Event{Type: Update, Table: TableLocations, New: &Record{ID: "p1"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Touches("p1"))
		})
	}
	assert.False(t, prospectEvent(Update, "").Touches(""))
}

func TestRemoves(t *testing.T) {
	assert.True(t, prospectEvent(Delete, "p1").Removes("p1"))
	assert.True(t, Event{Type: Update, Table: TableProspects, Old: &Record{ID: "p1"}}.Removes("p1"))
	assert.False(t, prospectEvent(Update, "p1").Removes("p1"))
	assert.False(t, reminderEvent(Delete, "r1", "p1").Removes("p1"))
	assert.False(t, prospectEvent(Delete, "p2").Removes("p1"))
}

func TestProspectID(t *testing.T) {
	assert.Equal(t, "p1", prospectEvent(Insert, "p1").ProspectID())
	assert.Equal(t, "p1", prospectEvent(Delete, "p1").ProspectID())
	assert.Equal(t, "p7", reminderEvent(Delete, "r1", "p7").ProspectID())
	assert.Equal(t, "", Event{Table: TableLocations, New: &Record{ID: "l1"}}.ProspectID())
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }

func TestPublishersJoinErrors(t *testing.T) {
	boom := errors.New("boom")
	hub := NewHub(nil)
	ps := Publishers{hub, nil, Discard, failingPublisher{boom}}

	err := ps.Publish(context.Background(), prospectEvent(Update, "p1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, Publishers{hub, Discard}.Publish(context.Background(), prospectEvent(Update, "p1")))
}

func TestStreamMessageRoundTrip(t *testing.T) {
	ev := reminderEvent(Update, "r1", "p1")
	values, err := encodeEvent(ev, "origin-a")
	require.NoError(t, err)

	got, origin, err := decodeMessage(redis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)
	assert.Equal(t, "origin-a", origin)
	assert.Equal(t, ev.Type, got.Type)
	assert.Equal(t, ev.Table, got.Table)
	assert.Equal(t, *ev.New, *got.New)
	assert.Equal(t, *ev.Old, *got.Old)
}

func TestDecodeRejectsMalformedMessages(t *testing.T) {
	_, _, err := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"init": "true"}})
	assert.Error(t, err)

	_, _, err = decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"event": "{not json"}})
	assert.Error(t, err)
}
