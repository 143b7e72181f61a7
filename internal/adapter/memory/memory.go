// Package memory implements an in-memory attention store for development and testing.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mindfulweb/internal/domain"
)

// ErrTxDone is returned when a unit of work is used after it was released.
var ErrTxDone = errors.New("memory: unit of work already released")

// DB implements an in-memory database storage.
type DB struct {
	mu        sync.Mutex
	users     map[uuid.UUID]domain.User
	events    []domain.AttentionEvent
	commitErr error

	eventIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{users: make(map[uuid.UUID]domain.User)}
}

// Ensure interfaces are met.
var _ domain.SessionProvider = (*DB)(nil)
var _ domain.UnitOfWork = (*tx)(nil)

// FailCommits makes every following Commit return err. Pass nil to restore
// normal behaviour.
func (db *DB) FailCommits(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.commitErr = err
}

// WithUnitOfWork runs fn with a fresh unit of work. Anything fn did not
// commit is discarded when it returns.
func (db *DB) WithUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	t := &tx{db: db, users: make(map[uuid.UUID]struct{})}
	defer t.release()
	return fn(ctx, t)
}

// HasUser reports whether a committed user row exists.
func (db *DB) HasUser(id uuid.UUID) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.users[id]
	return ok
}

// UserCount returns the number of committed users.
func (db *DB) UserCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users)
}

// Events returns the committed events of userID in insertion order.
func (db *DB) Events(userID uuid.UUID) []domain.AttentionEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.AttentionEvent
	for _, e := range db.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// tx buffers writes until Commit, mirroring a database transaction.
type tx struct {
	db      *DB
	users   map[uuid.UUID]struct{}
	pending []domain.AttentionEvent
	done    bool
}

func (t *tx) EnsureUser(_ context.Context, id uuid.UUID) error {
	if t.done {
		return ErrTxDone
	}
	t.users[id] = struct{}{}
	return nil
}

func (t *tx) AddEvents(_ context.Context, events []domain.AttentionEvent) error {
	if t.done {
		return ErrTxDone
	}
	t.pending = append(t.pending, events...)
	return nil
}

func (t *tx) RecentEvents(_ context.Context, userID uuid.UUID, limit int) ([]domain.AttentionEvent, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if limit <= 0 {
		return nil, nil
	}
	all := t.db.Events(userID)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID > all[j].ID
		}
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Commit applies staged users and events. Events must reference a committed
// or staged user, like the attention_events foreign key.
func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	db := t.db
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.commitErr != nil {
		return db.commitErr
	}
	for _, e := range t.pending {
		_, committed := db.users[e.UserID]
		_, staged := t.users[e.UserID]
		if !committed && !staged {
			return fmt.Errorf("%w: attention_events.user_id %s references no user", domain.ErrIntegrityViolation, e.UserID)
		}
		if !e.Kind.Valid() {
			return fmt.Errorf("%w: event_type %q", domain.ErrIntegrityViolation, e.Kind)
		}
	}

	now := time.Now().UTC()
	for id := range t.users {
		if _, ok := db.users[id]; !ok {
			db.users[id] = domain.User{ID: id, CreatedAt: now}
		}
	}
	for _, e := range t.pending {
		db.eventIDCounter++
		e.ID = db.eventIDCounter
		db.events = append(db.events, e)
	}
	t.reset()
	return nil
}

func (t *tx) Rollback() error {
	t.reset()
	return nil
}

func (t *tx) reset() {
	t.users = make(map[uuid.UUID]struct{})
	t.pending = nil
}

func (t *tx) release() {
	t.reset()
	t.done = true
}
