package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/samruddhi-health/consent-api/internal/platform/middleware"
)

// Service records and queries audit events. It implements Recorder.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Record assigns the event its id and timestamp and appends it. The error
// is returned to the caller unwrapped on purpose: an unrecorded event must
// abort the operation that produced it.
func (s *Service) Record(ctx context.Context, event *Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Recorded.IsZero() {
		event.Recorded = s.now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = middleware.RequestIDFrom(ctx)
	}

	if err := s.repo.Insert(ctx, event); err != nil {
		s.logger.Error().
			Err(err).
			Str("action", event.Action).
			Str("actor_id", event.ActorID).
			Msg("audit record failed")
		return err
	}
	return nil
}

func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchEvents(ctx context.Context, params map[string]string, limit, offset int) ([]*Event, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}
