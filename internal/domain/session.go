package domain

import (
	"context"

	"github.com/google/uuid"
)

// UnitOfWork is one transactional session over attention storage. Writes are
// staged until Commit; Rollback discards everything not yet committed.
type UnitOfWork interface {
	// EnsureUser inserts the user if absent and is a no-op otherwise.
	EnsureUser(ctx context.Context, id uuid.UUID) error
	// AddEvents stages events for insertion at the next Commit.
	AddEvents(ctx context.Context, events []AttentionEvent) error
	// RecentEvents returns up to limit events of userID, newest first. A limit
	// of zero or less returns no events.
	RecentEvents(ctx context.Context, userID uuid.UUID, limit int) ([]AttentionEvent, error)
	Commit(ctx context.Context) error
	Rollback() error
}

// SessionProvider hands out scoped units of work. The unit of work passed to fn
// is released after fn returns, on every path.
type SessionProvider interface {
	WithUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}
