package repository

import (
	"context"
	"time"

	"course-payments/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	SetInactive(ctx context.Context, tx Tx, id string, inactive bool, at *time.Time) error
	CountInactiveSince(ctx context.Context, tx Tx, since time.Time) (int, error)
}
