package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/meetsync/meetsync/internal/domain/models"
)

var ErrNotFound = errors.New("record not found")

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id int64) (*models.Session, error)
	GetByRoomID(ctx context.Context, roomID string) (*models.Session, error)
	MarkEnded(ctx context.Context, id int64, endedAt time.Time) error
	List(ctx context.Context) ([]*models.Session, error)
	DeleteAll(ctx context.Context) error
}

type sessionRepo struct {
	db *sqlx.DB
}

func NewSessionRepo(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, session *models.Session) error {
	return r.db.QueryRowxContext(
		ctx,
		`INSERT INTO sessions (room_id, title, is_active, starts_at, ends_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		session.RoomID,
		session.Title,
		session.IsActive,
		session.StartsAt,
		session.EndsAt,
		session.CreatedAt,
		session.UpdatedAt,
	).Scan(&session.ID)
}

func (r *sessionRepo) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	var session models.Session

	err := r.db.GetContext(ctx, &session, "SELECT * FROM sessions WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &session, nil
}

func (r *sessionRepo) GetByRoomID(ctx context.Context, roomID string) (*models.Session, error) {
	var session models.Session

	err := r.db.GetContext(ctx, &session, "SELECT * FROM sessions WHERE room_id = $1", roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &session, nil
}

func (r *sessionRepo) MarkEnded(ctx context.Context, id int64, endedAt time.Time) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE sessions SET is_active = false, ends_at = $1, updated_at = $2 WHERE id = $3",
		endedAt,
		endedAt,
		id,
	)

	return err
}

func (r *sessionRepo) List(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session

	err := r.db.SelectContext(ctx, &sessions, "SELECT * FROM sessions ORDER BY starts_at DESC")
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *sessionRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions")

	return err
}
