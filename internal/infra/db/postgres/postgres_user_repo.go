package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

// Save upserts a user. Accounts are owned by the platform; the seeder and tests use this.
func (r *PostgresUserRepo) Save(ctx context.Context, qx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (id, email, first_name, last_name, inactive, deactivated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  email=$2, first_name=$3, last_name=$4, inactive=$5, deactivated_at=$6;
`
	_, err := execSQL(ctx, r.pool, qx, q, u.ID, u.Email, u.FirstName, u.LastName, u.Inactive, u.DeactivatedAt)
	return opErr(err)
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.User, error) {
	const q = `
SELECT id, email, first_name, last_name, inactive, deactivated_at
  FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, qx, q, id)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Inactive, &u.DeactivatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &u, nil
}

// SetInactive flips the account flag. at is stored as the deactivation time and cleared
// on reactivation.
func (r *PostgresUserRepo) SetInactive(ctx context.Context, qx repository.Tx, id string, inactive bool, at *time.Time) error {
	if !inactive {
		at = nil
	}
	cmd, err := execSQL(ctx, r.pool, qx, `UPDATE users SET inactive=$2, deactivated_at=$3 WHERE id=$1;`, id, inactive, at)
	if err != nil {
		return opErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) CountInactiveSince(ctx context.Context, qx repository.Tx, since time.Time) (int, error) {
	row, err := pickRow(ctx, r.pool, qx, `SELECT COUNT(*) FROM users WHERE inactive AND deactivated_at >= $1;`, since)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count inactive: %w", err)
	}
	return n, nil
}
