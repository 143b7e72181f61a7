package sqldb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mindfulweb/internal/domain"
)

var _ domain.UnitOfWork = (*Session)(nil)

// eventRow adapts a domain event to the attention_events insert.
type eventRow domain.AttentionEvent

func (eventRow) Table() string { return "attention_events" }

func (eventRow) Columns() []string {
	return []string{"user_id", "domain", "event_type", "timestamp"}
}

func (r eventRow) Values() []any {
	return []any{r.UserID, r.Domain, string(r.Kind), r.Timestamp.UTC()}
}

// EnsureUser inserts the user row unless it already exists. The statement is
// a single conditional insert, so concurrent first-time ingestion for the
// same id cannot produce a duplicate or a unique violation.
func (s *Session) EnsureUser(ctx context.Context, id uuid.UUID) error {
	_, err := s.Exec(ctx, s.dialect.ensureUser, id)
	return err
}

// AddEvents stages events for the next Commit.
func (s *Session) AddEvents(_ context.Context, events []domain.AttentionEvent) error {
	rows := make([]Insertable, len(events))
	for i := range events {
		rows[i] = eventRow(events[i])
	}
	return s.Add(rows...)
}

// RecentEvents returns the most recent events of a user up to limit. A limit
// of zero or less returns no events without querying.
func (s *Session) RecentEvents(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AttentionEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	ts := s.dialect.quote("timestamp")
	rows, err := s.Query(ctx,
		"SELECT id, user_id, domain, event_type, "+ts+" FROM attention_events WHERE user_id = ? ORDER BY "+ts+" DESC, id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.AttentionEvent, 0, limit)
	for rows.Next() {
		var (
			e    domain.AttentionEvent
			kind string
			at   time.Time
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Domain, &kind, &at); err != nil {
			return nil, classify(err)
		}
		e.Kind = domain.EventKind(kind)
		e.Timestamp = at.UTC()
		out = append(out, e)
	}
	return out, classify(rows.Err())
}

// CountEvents returns the number of stored events of a user.
func (s *Session) CountEvents(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.QueryRow(ctx, "SELECT COUNT(*) FROM attention_events WHERE user_id = ?", userID).Scan(&n)
	return n, err
}

// CountUsers returns the number of user rows with the given id (0 or 1).
func (s *Session) CountUsers(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", id).Scan(&n)
	return n, err
}
