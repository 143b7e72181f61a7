package app

import (
	"context"

	"github.com/google/uuid"

	"mindfulweb/internal/domain"
)

// Limits applied by HistoryService.Recent.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// HistoryService reads back stored attention events.
type HistoryService struct {
	sessions domain.SessionProvider
}

// NewHistoryService creates a HistoryService backed by sessions.
func NewHistoryService(sessions domain.SessionProvider) *HistoryService {
	return &HistoryService{sessions: sessions}
}

// Recent returns the newest events of userID, newest first. A non-positive
// limit selects DefaultHistoryLimit; larger values are capped at MaxHistoryLimit.
func (s *HistoryService) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AttentionEvent, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	var out []domain.AttentionEvent
	err := s.sessions.WithUnitOfWork(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		out, err = uow.RecentEvents(ctx, userID, limit)
		return err
	})
	return out, err
}
