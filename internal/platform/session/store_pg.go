package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps sessions in the web_session table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Load(ctx context.Context, id string) (Data, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM web_session WHERE id = $1 AND expires_at > NOW()`, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Data{}, ErrNotFound
		}
		return Data{}, fmt.Errorf("load session: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("decode session: %w", err)
	}
	return data, nil
}

func (s *PGStore) Save(ctx context.Context, id string, data Data, expiresAt time.Time) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO web_session (id, data, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
		id, raw, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM web_session WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM web_session WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM web_session_counter WHERE expires_at <= $1`, now); err != nil {
		return 0, fmt.Errorf("purge session counters: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Incr relies on the row lock taken by ON CONFLICT DO UPDATE, so concurrent
// callers are serialized on the key.
func (s *PGStore) Incr(ctx context.Context, key string, ttl time.Duration) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO web_session_counter (key, value, expires_at)
		VALUES ($1, 1, NOW() + make_interval(secs => $2))
		ON CONFLICT (key) DO UPDATE SET
			value = CASE WHEN web_session_counter.expires_at > NOW() THEN web_session_counter.value + 1 ELSE 1 END,
			expires_at = CASE WHEN web_session_counter.expires_at > NOW() THEN web_session_counter.expires_at ELSE EXCLUDED.expires_at END
		RETURNING value`,
		key, ttl.Seconds(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment session counter: %w", err)
	}
	return n, nil
}
