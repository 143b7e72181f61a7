package adapthttp

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mindfulweb/internal/app"
	"mindfulweb/internal/domain"
)

// UserIDHeader carries the client's anonymous user id.
const UserIDHeader = "X-User-ID"

// Batch size limits of POST /events.
const (
	MinBatch = 1
	MaxBatch = 100
)

const msgInvalidUserID = "Invalid X-User-ID: must be a valid UUID4 string"

type sendEventData struct {
	Event     string    `json:"event"`
	Domain    string    `json:"domain"`
	Timestamp time.Time `json:"timestamp"`
}

type sendEventsRequest struct {
	Data []sendEventData `json:"data"`
}

// userIDFromHeader returns the X-User-ID user, or a fresh random id when the
// header is absent. ok is false when the header holds anything but a UUID4.
func userIDFromHeader(r *http.Request) (id uuid.UUID, ok bool) {
	raw := r.Header.Values(UserIDHeader)
	if len(raw) == 0 {
		return uuid.New(), true
	}
	id, err := domain.ParseUserID(raw[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// fieldError is a request validation failure tied to one input field.
type fieldError struct {
	code  ErrorCode
	field string
	err   error
}

func (e *fieldError) Error() string { return fmt.Sprintf("%s: %v", e.field, e.err) }

// toRecords validates the payload and converts it into domain records.
func (req *sendEventsRequest) toRecords(now time.Time) ([]domain.EventRecord, error) {
	if len(req.Data) < MinBatch || len(req.Data) > MaxBatch {
		return nil, &fieldError{CodeValidation, "data", fmt.Errorf("must contain between %d and %d events, got %d", MinBatch, MaxBatch, len(req.Data))}
	}
	out := make([]domain.EventRecord, len(req.Data))
	for i, d := range req.Data {
		kind := domain.EventKind(d.Event)
		if !kind.Valid() {
			return nil, &fieldError{CodeValidation, fmt.Sprintf("data[%d].event", i), fmt.Errorf("%w: %q", domain.ErrInvalidEventKind, d.Event)}
		}
		host, err := domain.NormalizeDomain(d.Domain)
		if err != nil {
			return nil, &fieldError{CodeValidation, fmt.Sprintf("data[%d].domain", i), err}
		}
		if err := domain.CheckTimestamp(d.Timestamp, now); err != nil {
			code := CodeValidation
			if errors.Is(err, domain.ErrFutureTimestamp) {
				code = CodeTimestamp
			}
			return nil, &fieldError{code, fmt.Sprintf("data[%d].timestamp", i), err}
		}
		out[i] = domain.EventRecord{Domain: host, Kind: kind, Timestamp: d.Timestamp}
	}
	return out, nil
}

func (s *Server) handleSendEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromHeader(r)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeInvalidUserID, msgInvalidUserID)
		return
	}

	var body sendEventsRequest
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	records, err := body.toRecords(s.now())
	if err != nil {
		var fe *fieldError
		errors.As(err, &fe)
		writeError(w, http.StatusUnprocessableEntity, fe.code, fe.Error())
		return
	}

	if err := s.ingest.Exec(r.Context(), records, userID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set(UserIDHeader, userID.String())
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": userID.String(), "processed": len(records)})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromHeader(r)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeInvalidUserID, msgInvalidUserID)
		return
	}
	limit := intQuery(r, "limit", app.DefaultHistoryLimit)
	items, err := s.history.Recent(r.Context(), userID, limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if items == nil {
		items = []domain.AttentionEvent{}
	}
	w.Header().Set(UserIDHeader, userID.String())
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID.String(), "items": items})
}
