package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/backend/backendtest"
	"github.com/harperreed/spruce/config"
	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/realtime"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "spruce.db")
	return cfg
}

func booking(name string) models.ProspectInput {
	return models.ProspectInput{
		Name:     name,
		Phone:    "555-0100",
		Services: []models.ServiceInput{{Type: models.ServiceCouch, Details: models.ServiceDetails{Material: "linen", Seats: 3}}},
	}
}

func TestNewWiresSQLiteBackend(t *testing.T) {
	a, err := New(sqliteConfig(t))
	require.NoError(t, err)
	defer a.Close()

	sync := a.Reconciler.Sync()
	defer sync.Unsubscribe()

	ctx := context.Background()
	p, err := a.Executor.Create(ctx, booking("Wired"))
	require.NoError(t, err)
	assert.False(t, p.ID.IsPending())

	got, ok := a.Store.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Wired", got.Name)
	assert.Nil(t, a.Charm)

	require.NoError(t, a.Executor.Load(ctx, time.Time{}, time.Time{}))
	assert.Equal(t, 1, a.Store.Len())
}

func TestNewWithInjectedBackend(t *testing.T) {
	fake := backendtest.New()
	a, err := New(sqliteConfig(t), WithBackend(func(events realtime.Publisher) (backend.Backend, error) {
		fake.SetPublisher(events)
		return fake, nil
	}))
	require.NoError(t, err)
	defer a.Close()

	view := make(chan models.Prospect, 4)
	ctx := context.Background()
	p, err := a.Executor.Create(ctx, booking("Injected"))
	require.NoError(t, err)

	w, err := a.Reconciler.Watch("detail", p.ID, viewFunc(func(p models.Prospect) { view <- p }))
	require.NoError(t, err)
	defer w.Close()

	edit := p.Input()
	edit.Notes = "gate code 4412"
	_, err = a.Executor.Update(ctx, p.ID, edit)
	require.NoError(t, err)

	select {
	case refreshed := <-view:
		assert.Equal(t, "gate code 4412", refreshed.Notes)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not refresh")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Backend = "mongo"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := New(sqliteConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestRedisBridgeCarriesChangesBetweenApps(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig(t)
	cfg.Redis.Addr = mr.Addr()

	writer, err := New(cfg)
	require.NoError(t, err)
	defer writer.Close()

	reader, err := New(cfg)
	require.NoError(t, err)
	defer reader.Close()

	sync := reader.Reconciler.Sync()
	defer sync.Unsubscribe()

	ctx := context.Background()
	// The reader's bridge starts at the stream tail; keep writing until it is listening.
	require.Eventually(t, func() bool {
		if reader.Store.Len() > 0 {
			return true
		}
		_, _ = writer.Executor.Create(ctx, booking("Remote"))
		return false
	}, 10*time.Second, 100*time.Millisecond)

	for _, p := range reader.Store.All() {
		assert.Equal(t, "Remote", p.Name)
		assert.False(t, p.ID.IsPending())
	}
}

type viewFunc func(models.Prospect)

func (f viewFunc) Refreshed(p models.Prospect) { f(p) }
func (viewFunc) Closed(models.ID) {}
func (viewFunc) Failed(models.ID, error) {}
