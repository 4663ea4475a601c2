package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/repository"
)

type PostgresPurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPurchaseRepo(pool *pgxpool.Pool) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{pool: pool}
}

var _ repository.PurchaseRepository = (*PostgresPurchaseRepo)(nil)

func (r *PostgresPurchaseRepo) Exists(ctx context.Context, tx repository.Tx, userID, courseID string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS(SELECT 1 FROM purchases WHERE user_id=$1 AND course_id=$2);`, userID, courseID)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, scanErr(err)
	}
	return exists, nil
}

// Save records a purchase once per user and course; repeats are ignored.
func (r *PostgresPurchaseRepo) Save(ctx context.Context, tx repository.Tx, pu *model.Purchase) error {
	if pu.CreatedAt.IsZero() {
		pu.CreatedAt = time.Now().UTC()
	}
	_, err := execSQL(ctx, r.pool, tx, `
		INSERT INTO purchases (id, user_id, course_id, transaction_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, course_id) DO NOTHING
	`, pu.ID, pu.UserID, pu.CourseID, pu.TransactionID, pu.CreatedAt)
	return opErr(err)
}

func (r *PostgresPurchaseRepo) FindByUserCourse(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.Purchase, error) {
	row, err := pickRow(ctx, r.pool, tx, `
		SELECT id, user_id, course_id, transaction_id, created_at
		FROM purchases WHERE user_id=$1 AND course_id=$2
	`, userID, courseID)
	if err != nil {
		return nil, err
	}
	var pu model.Purchase
	if err := row.Scan(&pu.ID, &pu.UserID, &pu.CourseID, &pu.TransactionID, &pu.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &pu, nil
}
