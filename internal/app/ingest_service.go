package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"mindfulweb/internal/domain"
)

// IngestionService records batches of attention events for a user.
type IngestionService struct {
	sessions domain.SessionProvider
	logger   *slog.Logger
}

// NewIngestionService creates an IngestionService that opens one unit of work
// per batch from sessions.
func NewIngestionService(sessions domain.SessionProvider, logger *slog.Logger) *IngestionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionService{sessions: sessions, logger: logger.With("component", "ingestion")}
}

// Exec stores batch for userID atomically: either the user row (if new) and
// every event are committed together, or nothing is.
func (s *IngestionService) Exec(ctx context.Context, batch []domain.EventRecord, userID uuid.UUID) error {
	return s.sessions.WithUnitOfWork(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return s.ExecIn(ctx, uow, batch, userID)
	})
}

// ExecIn runs the ingestion steps on an already open unit of work. Every
// failure rolls uow back before a typed error is returned.
func (s *IngestionService) ExecIn(ctx context.Context, uow domain.UnitOfWork, batch []domain.EventRecord, userID uuid.UUID) error {
	if err := uow.EnsureUser(ctx, userID); err != nil {
		return s.fail(uow, domain.KindUserProvisioning, userID, err)
	}

	events := make([]domain.AttentionEvent, 0, len(batch))
	for _, rec := range batch {
		ev, err := domain.NewAttentionEvent(userID, rec)
		if err != nil {
			return s.fail(uow, domain.KindEventStaging, userID, err)
		}
		events = append(events, ev)
	}
	if err := uow.AddEvents(ctx, events); err != nil {
		return s.fail(uow, domain.KindEventStaging, userID, err)
	}

	if err := uow.Commit(ctx); err != nil {
		return s.fail(uow, commitKind(err), userID, err)
	}

	s.logger.Info("processed events", "count", len(events), "user_id", userID.String())
	return nil
}

func commitKind(err error) domain.Kind {
	switch {
	case errors.Is(err, domain.ErrIntegrityViolation):
		return domain.KindDataIntegrity
	case domain.IsPersistence(err):
		return domain.KindDataPersistence
	default:
		return domain.KindUnexpectedIngestion
	}
}

func (s *IngestionService) fail(uow domain.UnitOfWork, kind domain.Kind, userID uuid.UUID, cause error) error {
	if rbErr := uow.Rollback(); rbErr != nil {
		s.logger.Warn("rollback failed", "user_id", userID.String(), "error", rbErr)
	}
	err := domain.NewError(kind, userID.String(), cause)
	s.logger.Error(err.Error(), "kind", kind.String())
	return err
}
