package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-payments/internal/domain"
	"course-payments/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, paymentStatusID, userID, kind, key string) error {
	// the UNIQUE constraint on (payment_status_id, kind, dedupe_key) absorbs duplicates
	const q = `
INSERT INTO notification_log (id, payment_status_id, user_id, kind, dedupe_key)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (payment_status_id, kind, dedupe_key) DO NOTHING`

	_, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), paymentStatusID, userID, kind, key)
	return opErr(err)
}

func (r *notificationLogRepo) Exists(ctx context.Context, tx repository.Tx, paymentStatusID, kind, key string) (bool, error) {
	const q = `
SELECT EXISTS(
    SELECT 1 FROM notification_log
    WHERE payment_status_id = $1 AND kind = $2 AND dedupe_key = $3
)`
	var exists bool
	row, err := pickRow(ctx, r.pool, tx, q, paymentStatusID, kind, key)
	if err != nil {
		return false, err
	}

	if err := row.Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
