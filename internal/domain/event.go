package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind is the type of an attention event.
type EventKind string

// Allowed event kinds. The persisted schema carries the same set as a CHECK constraint.
const (
	EventFocus    EventKind = "focus"
	EventBlur     EventKind = "blur"
	EventActive   EventKind = "active"
	EventInactive EventKind = "inactive"
)

// EventKinds lists every allowed kind in schema order.
var EventKinds = []EventKind{EventFocus, EventBlur, EventActive, EventInactive}

// MaxDomainLength is the widest domain the schema stores.
const MaxDomainLength = 255

// Validation errors for event records.
var (
	ErrInvalidEventKind = errors.New("invalid event kind")
	ErrInvalidDomain    = errors.New("invalid domain")
	ErrMissingTimestamp = errors.New("event timestamp is required")
	ErrFutureTimestamp  = errors.New("timestamp cannot be in the future")
)

// Valid reports whether k is one of EventKinds.
func (k EventKind) Valid() bool {
	for _, v := range EventKinds {
		if k == v {
			return true
		}
	}
	return false
}

// EventRecord is one element of an ingestion batch as supplied by the caller.
type EventRecord struct {
	Domain    string
	Kind      EventKind
	Timestamp time.Time
}

// AttentionEvent is a persisted focus/blur style event of a single user.
type AttentionEvent struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Domain    string    `json:"domain"`
	Kind      EventKind `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAttentionEvent builds the event row for rec bound to userID.
func NewAttentionEvent(userID uuid.UUID, rec EventRecord) (AttentionEvent, error) {
	if !rec.Kind.Valid() {
		return AttentionEvent{}, fmt.Errorf("%w: %q", ErrInvalidEventKind, rec.Kind)
	}
	if rec.Timestamp.IsZero() {
		return AttentionEvent{}, ErrMissingTimestamp
	}
	d := strings.ToLower(strings.TrimSpace(rec.Domain))
	if d == "" || len(d) > MaxDomainLength {
		return AttentionEvent{}, fmt.Errorf("%w: %q", ErrInvalidDomain, rec.Domain)
	}
	return AttentionEvent{
		UserID:    userID,
		Domain:    d,
		Kind:      rec.Kind,
		Timestamp: rec.Timestamp.UTC(),
	}, nil
}

// NormalizeDomain reduces a browser-reported host or URL to a bare lower-case
// domain: scheme, path, port and a leading "www." are removed.
func NormalizeDomain(raw string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" || !strings.Contains(v, ".") {
		return "", fmt.Errorf("%w: must contain at least one dot", ErrInvalidDomain)
	}
	v = strings.TrimPrefix(v, "http://")
	v = strings.TrimPrefix(v, "https://")
	if i := strings.IndexByte(v, '/'); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, ':'); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimPrefix(v, "www.")
	if v == "" || len(v) > MaxDomainLength {
		return "", fmt.Errorf("%w: empty or too long after normalization", ErrInvalidDomain)
	}
	return v, nil
}

// CheckTimestamp rejects timestamps later than now.
func CheckTimestamp(ts, now time.Time) error {
	if ts.IsZero() {
		return ErrMissingTimestamp
	}
	if ts.After(now) {
		return ErrFutureTimestamp
	}
	return nil
}
