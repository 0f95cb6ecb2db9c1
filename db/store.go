// ABOUTME: SQL implementation of the remote data service
// ABOUTME: Runs every write in a transaction and publishes change events after commit
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/ordering"
	"github.com/harperreed/spruce/realtime"
)

// Store serves prospects, services, reminders and locations from SQL.
type Store struct {
	db        *sql.DB
	dialect   Dialect
	events    realtime.Publisher
	logger    *zap.Logger
	increment float64
	now       func() time.Time
}

var _ backend.Backend = (*Store)(nil)

type Option func(*Store)

// WithPublisher sends a change event for every committed write.
func WithPublisher(p realtime.Publisher) Option {
	return func(s *Store) { s.events = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIncrement sets the ordering gap used when a new prospect is appended to its column.
func WithIncrement(inc float64) Option {
	return func(s *Store) {
		if inc > 0 {
			s.increment = inc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:        db,
		dialect:   dialect,
		events:    realtime.Discard,
		logger:    zap.NewNop(),
		increment: ordering.DefaultIncrement,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, rebind(s.dialect, query), args...)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, rebind(s.dialect, query), args...)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, rebind(s.dialect, query), args...)
}

// inTx runs fn in a transaction and publishes the returned events once it commits.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) ([]realtime.Event, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	events, err := fn(tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.publish(ctx, events...)
	return nil
}

func (s *Store) publish(ctx context.Context, events ...realtime.Event) {
	at := s.now().UTC()
	for _, ev := range events {
		ev.At = at
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn("failed to publish change event",
				zap.String("table", string(ev.Table)),
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return backend.ErrNotFound
	}
	return nil
}

// classify maps driver errors onto the backend sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return backend.ErrNotFound
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", backend.ErrConflict, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", backend.ErrConflict, err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
