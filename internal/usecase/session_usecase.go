package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meetsync/meetsync/internal/domain/input"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/infra/adapters/postgres/repository"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionUsecase interface {
	Create(ctx context.Context, in *input.CreateSessionInput) (*models.Session, error)
	GetByID(ctx context.Context, id int64) (*models.Session, error)
	GetByRoomID(ctx context.Context, roomID string) (*models.Session, error)
	End(ctx context.Context, id int64) error
	History(ctx context.Context) ([]*models.Session, error)
	PurgeHistory(ctx context.Context) error
}

type sessionUsecase struct {
	sessionRepo repository.SessionRepository
	clock       func() time.Time
}

func NewSessionUsecase(sessionRepo repository.SessionRepository) SessionUsecase {
	return &sessionUsecase{
		sessionRepo: sessionRepo,
		clock:       time.Now,
	}
}

func (s *sessionUsecase) Create(ctx context.Context, in *input.CreateSessionInput) (*models.Session, error) {
	startsAt := in.StartsAt
	if startsAt.IsZero() {
		startsAt = s.clock().UTC()
	}

	session := models.NewSession(in.Title, startsAt, in.EndsAt)

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

func (s *sessionUsecase) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return session, nil
}

func (s *sessionUsecase) GetByRoomID(ctx context.Context, roomID string) (*models.Session, error) {
	session, err := s.sessionRepo.GetByRoomID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session by room id: %w", err)
	}

	return session, nil
}

// End marks the session inactive and stamps its actual end time.
// Ending an already-ended session is a no-op.
func (s *sessionUsecase) End(ctx context.Context, id int64) error {
	session, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !session.IsActive {
		return nil
	}

	if err := s.sessionRepo.MarkEnded(ctx, id, s.clock().UTC()); err != nil {
		return fmt.Errorf("mark session ended: %w", err)
	}

	return nil
}

func (s *sessionUsecase) History(ctx context.Context) ([]*models.Session, error) {
	sessions, err := s.sessionRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return sessions, nil
}

func (s *sessionUsecase) PurgeHistory(ctx context.Context) error {
	if err := s.sessionRepo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}

	return nil
}
