package twofactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pryanik-M/LiveHeart/internal/platform/db"
	"github.com/Pryanik-M/LiveHeart/internal/platform/secretbox"
)

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// deviceRepoPG stores secrets sealed with the configured box.
type deviceRepoPG struct {
	pool *pgxpool.Pool
	box  *secretbox.Box
}

func NewDeviceRepo(pool *pgxpool.Pool, box *secretbox.Box) DeviceRepository {
	return &deviceRepoPG{pool: pool, box: box}
}

func (r *deviceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *deviceRepoPG) GetByUser(ctx context.Context, userID uuid.UUID) (*Device, error) {
	var d Device
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, user_id, secret, confirmed, created_at FROM totp_device WHERE user_id = $1`, userID,
	).Scan(&d.ID, &d.UserID, &d.Secret, &d.Confirmed, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get totp device: %w", err)
	}
	if d.Secret, err = r.box.Open(d.Secret); err != nil {
		return nil, fmt.Errorf("open totp secret: %w", err)
	}
	return &d, nil
}

func (r *deviceRepoPG) GetOrCreate(ctx context.Context, d *Device) (*Device, bool, error) {
	sealed, err := r.box.Seal(d.Secret)
	if err != nil {
		return nil, false, fmt.Errorf("seal totp secret: %w", err)
	}
	d.ID = uuid.New()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO totp_device (id, user_id, secret, confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`,
		d.ID, d.UserID, sealed, d.Confirmed, d.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("create totp device: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return d, true, nil
	}
	existing, err := r.GetByUser(ctx, d.UserID)
	return existing, false, err
}

func (r *deviceRepoPG) Confirm(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE totp_device SET confirmed = TRUE WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("confirm totp device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *deviceRepoPG) Delete(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM totp_device WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete totp device: %w", err)
	}
	return nil
}
