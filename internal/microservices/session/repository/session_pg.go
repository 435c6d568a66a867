package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"restaurant-sync/internal/domain"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s domain.GuestSession) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO guest_sessions (id, table_number, token, started_at, duration_secs, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.TableNumber, s.Token, s.StartedAt, int64(s.Duration/time.Second), s.ExpiresAt())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (domain.GuestSession, error) {
	var (
		s    domain.GuestSession
		secs int64
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, table_number, token, started_at, duration_secs
		FROM guest_sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.TableNumber, &s.Token, &s.StartedAt, &secs)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GuestSession{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.GuestSession{}, fmt.Errorf("select session: %w", err)
	}
	s.Duration = time.Duration(secs) * time.Second
	return s, nil
}

// MarkExpired relies on the conditional update being atomic, so only one
// server instance ever observes the edge.
func (r *SessionRepository) MarkExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE guest_sessions SET expired_at = $2
		WHERE id = $1 AND expired_at IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark session expired: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepository) ReleaseExpired(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `UPDATE guest_sessions SET expired_at = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("release session expiry: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListUnexpired(ctx context.Context) ([]domain.GuestSession, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, table_number, token, started_at, duration_secs
		FROM guest_sessions WHERE expired_at IS NULL
		ORDER BY expires_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.GuestSession
	for rows.Next() {
		var (
			s    domain.GuestSession
			secs int64
		)
		if err := rows.Scan(&s.ID, &s.TableNumber, &s.Token, &s.StartedAt, &secs); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(secs) * time.Second
		out = append(out, s)
	}
	return out, rows.Err()
}
