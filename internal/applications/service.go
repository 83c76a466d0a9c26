package applications

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"jobmate/discovery-service/internal/model"
)

// Store persists application references.
type Store interface {
	CreateApplication(ctx context.Context, userID, postingID, status string) (*model.Application, error)
	GetApplication(ctx context.Context, userID, appID string) (*model.Application, error)
	SetApplicationStatus(ctx context.Context, userID, appID, status string) (*model.Application, error)
}

// Service is the transport-agnostic application logic.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService returns a Service over s.
func NewService(s Store, log *zap.Logger) *Service {
	return &Service{store: s, log: log.Named("applications")}
}

// Record stores that userID acted on postingID. An empty status records
// APPLIED. Recording twice returns the existing application.
func (s *Service) Record(ctx context.Context, userID, postingID, status string) (*model.Application, error) {
	st := StatusApplied
	if status != "" {
		var err error
		if st, err = ParseStatus(status); err != nil {
			return nil, err
		}
	}
	a, err := s.store.CreateApplication(ctx, userID, postingID, string(st))
	if err != nil {
		return nil, fmt.Errorf("record application: %w", err)
	}
	s.log.Info("application recorded",
		zap.String("application_id", a.ID),
		zap.String("user_id", userID),
		zap.String("posting_id", postingID),
		zap.String("status", a.Status))
	return a, nil
}

// Move transitions an application owned by userID to status.
func (s *Service) Move(ctx context.Context, userID, appID, status string) (*model.Application, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	a, err := s.store.GetApplication(ctx, userID, appID)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	from := Status(a.Status)
	if !IsTransitionAllowed(from, to) {
		return nil, fmt.Errorf("%w: %s → %s", ErrForbiddenTransition, from, to)
	}
	moved, err := s.store.SetApplicationStatus(ctx, userID, appID, string(to))
	if err != nil {
		return nil, fmt.Errorf("set application status: %w", err)
	}
	return moved, nil
}
