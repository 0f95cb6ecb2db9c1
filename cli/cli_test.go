// ABOUTME: End-to-end tests for the CLI against a temporary SQLite database
// ABOUTME: Each test runs fresh root commands the way a shell would
package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/spruce/models"
)

var idPattern = regexp.MustCompile(`\(ID: ([^)]+)\)`)

type harness struct {
	t   *testing.T
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("SPRUCE_BACKEND", "")
	t.Setenv("SPRUCE_REDIS_ADDR", "")
	return &harness{t: t, dir: t.TempDir()}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root := NewRootCommand("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--config", filepath.Join(h.dir, "config.yaml"),
		"--db-path", filepath.Join(h.dir, "spruce.db"),
		"--backend", "sqlite",
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func firstID(t *testing.T, out string) string {
	t.Helper()
	m := idPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, "no ID in output: %s", out)
	return m[1]
}

func TestProspectLifecycle(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("prospect", "add",
		"--name", "Dana Ruiz",
		"--phone", "555-0142",
		"--start", "2026-07-04T10:00",
		"--service", "couch:material=linen,seats=3",
	)
	assert.Contains(t, out, "Prospect created: Dana Ruiz")
	assert.Contains(t, out, "couch (linen, 3 seats)")
	id := firstID(t, out)

	out = h.mustRun("prospect", "list")
	assert.Contains(t, out, "Dana Ruiz")
	assert.Contains(t, out, "Total: 1 prospect(s)")

	out = h.mustRun("prospect", "update", id, "--notes", "back door", "--priority", "HIGH")
	assert.Contains(t, out, "Prospect updated")

	out = h.mustRun("prospect", "show", id)
	assert.Contains(t, out, "Notes: back door")
	assert.Contains(t, out, "Priority: high")
	assert.Contains(t, out, "Phone: 555-0142")

	out = h.mustRun("prospect", "move", id, "confirmed")
	assert.Contains(t, out, "moved to confirmed")

	out = h.mustRun("board")
	assert.Contains(t, out, "pending (0)")
	assert.Contains(t, out, "confirmed (1)")

	out = h.mustRun("prospect", "delete", id)
	assert.Contains(t, out, "Prospect deleted")

	out = h.mustRun("prospect", "list")
	assert.Contains(t, out, "No prospects found.")
}

func TestProspectAddRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("prospect", "add", "--name", "No Services", "--phone", "555-0100")
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	_, err = h.run("prospect", "add", "--phone", "555-0100", "--service", "couch", "--start", "next tuesday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start")

	out := h.mustRun("prospect", "list")
	assert.Contains(t, out, "No prospects found.")
}

func TestProspectShowUnknown(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("prospect", "show", "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProspectListFilters(t *testing.T) {
	h := newHarness(t)
	h.mustRun("prospect", "add", "--name", "July", "--phone", "1", "--start", "2026-07-04", "--service", "carpet")
	h.mustRun("prospect", "add", "--name", "August", "--phone", "2", "--start", "2026-08-04", "--service", "carpet",
		"--status", "confirmed")

	out := h.mustRun("prospect", "list", "--from", "2026-08-01")
	assert.Contains(t, out, "August")
	assert.NotContains(t, out, "July")

	out = h.mustRun("prospect", "list", "--status", "pending")
	assert.Contains(t, out, "July")
	assert.NotContains(t, out, "August")
}

func TestReminderCommands(t *testing.T) {
	h := newHarness(t)
	pid := firstID(t, h.mustRun("prospect", "add", "--name", "Sam", "--phone", "555-0101", "--service", "mattress"))

	out := h.mustRun("reminder", "add", pid, "2026-07-02", "--note", "confirm parking")
	assert.Contains(t, out, "Reminder added for 2026-07-02")
	rid := firstID(t, out)

	_, err := h.run("reminder", "add", pid, "2026-07-02", "--note", "same day")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDuplicateReminderDate)

	out = h.mustRun("reminder", "done", pid, rid)
	assert.Contains(t, out, "completed")

	out = h.mustRun("prospect", "show", pid)
	assert.Contains(t, out, "[x] 2026-07-02 confirm parking")

	out = h.mustRun("reminder", "toggle", pid, rid, "--reopen")
	assert.Contains(t, out, "reopened")

	h.mustRun("reminder", "delete", pid, rid)
	out = h.mustRun("prospect", "show", pid)
	assert.NotContains(t, out, "Reminders:")
}

func TestAgenda(t *testing.T) {
	h := newHarness(t)
	h.mustRun("prospect", "add", "--name", "Booked", "--phone", "1", "--start", "2026-07-04T09:30", "--service", "couch",
		"--remind", "2026-07-04 bring ladder")
	h.mustRun("prospect", "add", "--name", "Elsewhere", "--phone", "2", "--start", "2026-07-05T09:30", "--service", "couch")

	out := h.mustRun("agenda", "--date", "2026-07-04")
	assert.Contains(t, out, "Saturday, July 4 2026")
	assert.Contains(t, out, "Booked")
	assert.NotContains(t, out, "Elsewhere")
	assert.Contains(t, out, "Booked: bring ladder")

	out = h.mustRun("agenda", "--date", "2026-07-06")
	assert.Contains(t, out, "No bookings.")
}

func TestLocationCommands(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("location", "list")
	assert.Contains(t, out, "No locations found.")

	out = h.mustRun("location", "add", "North", "Side")
	assert.Contains(t, out, "Location created: North Side")
	lid := firstID(t, out)

	pid := firstID(t, h.mustRun("prospect", "add", "--phone", "1", "--service", "couch", "--location", lid))
	out = h.mustRun("prospect", "show", pid)
	assert.Contains(t, out, "Location: North Side")

	out = h.mustRun("location", "list")
	assert.Contains(t, out, "North Side")
}

func TestParseService(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    models.ServiceInput
		wantErr bool
	}{
		{name: "bare", raw: "Carpet", want: models.ServiceInput{Type: models.ServiceCarpet}},
		{
			name: "details",
			raw:  "couch:material=linen, seats=3",
			want: models.ServiceInput{Type: models.ServiceCouch, Details: models.ServiceDetails{Material: "linen", Seats: 3}},
		},
		{
			name: "quantity alias",
			raw:  "carpet:size=9x12,qty=2",
			want: models.ServiceInput{Type: models.ServiceCarpet, Details: models.ServiceDetails{Size: "9x12", Quantity: 2}},
		},
		{name: "missing value", raw: "couch:seats", wantErr: true},
		{name: "bad number", raw: "couch:seats=many", wantErr: true},
		{name: "unknown key", raw: "couch:colour=red", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseService(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWhen(t *testing.T) {
	got, err := parseWhen("start", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseWhen("start", "2026-07-04T10:15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 4, 10, 15, 0, 0, time.Local), *got)

	got, err = parseWhen("start", "2026-07-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 4, 0, 0, 0, 0, time.Local), *got)

	_, err = parseWhen("start", "07/04/2026")
	assert.ErrorContains(t, err, "--start")
}

func TestParseReminder(t *testing.T) {
	r, err := parseReminder("2026-07-01 call to confirm")
	require.NoError(t, err)
	assert.Equal(t, "call to confirm", r.Note)
	assert.Equal(t, 1, r.DueAt.Day())

	_, err = parseReminder("")
	assert.Error(t, err)
}
