package repository

import (
	"context"

	"course-payments/internal/domain/model"
)

// -----------------------------
// Cohorts & enrollment
// -----------------------------

type CohortRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Cohort, error)
	FindByCourseAndName(ctx context.Context, tx Tx, courseID, name string) (*model.Cohort, error)
	// NextAfter returns the earliest cohort of the course starting after the given
	// cohort's start date, or ErrNotFound.
	NextAfter(ctx context.Context, tx Tx, courseID, cohortID string) (*model.Cohort, error)
	FindCourse(ctx context.Context, tx Tx, courseID string) (*model.Course, error)
}

type UserCohortRepository interface {
	FindByUserCourse(ctx context.Context, tx Tx, userID, courseID string) (*model.UserCohort, error)
	// Upsert creates or updates the (user, course) row.
	Upsert(ctx context.Context, tx Tx, uc *model.UserCohort) error
	SetPaymentActive(ctx context.Context, tx Tx, userID, courseID string, active bool) error
	Reassign(ctx context.Context, tx Tx, userID, courseID, cohortID string) error
}

type PurchaseRepository interface {
	Exists(ctx context.Context, tx Tx, userID, courseID string) (bool, error)
	// Save inserts the purchase; an existing (user, course) purchase is left in place.
	Save(ctx context.Context, tx Tx, pu *model.Purchase) error
	FindByUserCourse(ctx context.Context, tx Tx, userID, courseID string) (*model.Purchase, error)
}
