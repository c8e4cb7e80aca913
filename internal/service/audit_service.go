package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/session-bff/internal/domain"
	"github.com/spec-kit/session-bff/internal/events"
	"github.com/spec-kit/session-bff/internal/repository"
)

const auditWriteTimeout = 2 * time.Second

// AuditService records session lifecycle events.
type AuditService struct {
	dispatcher events.Dispatcher
	repo       repository.AuditRepository
	logger     *zap.Logger
}

// NewAuditService creates the service. repo may be nil, in which case events are only logged.
func NewAuditService(dispatcher events.Dispatcher, repo repository.AuditRepository, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		repo:       repo,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range events.SessionEventTypes {
		a.dispatcher.Subscribe(eventType, a.handle)
	}
}

func (a *AuditService) handle(ctx context.Context, event events.Event) error {
	a.logger.Info("session event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("subject", event.Subject),
		zap.String("outcome", event.Outcome),
		zap.String("request_id", event.Meta.RequestID))

	if a.repo == nil {
		return nil
	}

	// The write must not outlive a short window even if the request context has no deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	record := &domain.AuditRecord{
		ID:        event.ID,
		EventType: string(event.Type),
		Subject:   event.Subject,
		Outcome:   event.Outcome,
		ClientIP:  event.Meta.ClientIP,
		RequestID: event.Meta.RequestID,
		CreatedAt: event.Timestamp,
	}
	if err := a.repo.Insert(writeCtx, record); err != nil {
		a.logger.Warn("audit write failed", zap.String("event_id", event.ID), zap.Error(err))
		return err
	}
	return nil
}

// History returns recent audit records for a subject.
func (a *AuditService) History(ctx context.Context, subject string, limit int) ([]domain.AuditRecord, error) {
	if a.repo == nil {
		return nil, nil
	}
	return a.repo.ListBySubject(ctx, subject, limit)
}
