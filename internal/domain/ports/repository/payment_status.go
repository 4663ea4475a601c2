package repository

import (
	"context"
	"time"

	"course-payments/internal/domain/model"
)

// -----------------------------
// Payment statuses & installments
// -----------------------------

// OverdueCandidate is an unpaid obligation whose due date has passed, joined with what
// the deactivation sweep needs to decide on it.
type OverdueCandidate struct {
	PaymentStatusID   string
	UserID            string
	CourseID          string
	CohortID          *string
	CohortStart       *time.Time
	Plan              model.PaymentPlan
	State             model.PaymentState
	Version           int
	InstallmentID     string // empty for the half plan balance
	InstallmentNumber int
	Amount            int64
	DueDate           time.Time
	LastReminderSent  *time.Time
}

type PaymentStatusFilter struct {
	Status   model.PaymentState
	Plan     model.PaymentPlan
	CourseID string
	Offset   int
	Limit    int
}

type PaymentStatusRepository interface {
	// Create inserts the status and its installments. It reports false when a status for
	// (user, course) already exists, leaving it untouched.
	Create(ctx context.Context, tx Tx, ps *model.PaymentStatus) (bool, error)
	FindByUserCourse(ctx context.Context, tx Tx, userID, courseID string) (*model.PaymentStatus, error)
	// FindForUpdate locks the status row when tx is a database transaction.
	FindForUpdate(ctx context.Context, tx Tx, userID, courseID string) (*model.PaymentStatus, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentStatus, error)
	// UpdateState writes state, plan bookkeeping and cohort, guarded by version. It reports
	// false when the stored version no longer matches; on success ps.Version is bumped.
	UpdateState(ctx context.Context, tx Tx, ps *model.PaymentStatus) (bool, error)
	// MarkInstallmentPaid flips paid false->true; it reports false when already paid.
	MarkInstallmentPaid(ctx context.Context, tx Tx, installmentID string, paidAt time.Time) (bool, error)
	UpdateInstallmentDueDate(ctx context.Context, tx Tx, installmentID string, due time.Time) error
	TouchInstallmentReminder(ctx context.Context, tx Tx, installmentID string, at time.Time) error
	TouchBalanceReminder(ctx context.Context, tx Tx, paymentStatusID string, at time.Time) error

	// ListOverdue returns unpaid installments (and half plan balances) due before `before`
	// whose status is neither EXPIRED nor COMPLETE, oldest first.
	ListOverdue(ctx context.Context, tx Tx, before time.Time, limit int) ([]*OverdueCandidate, error)
	// ListDueBetween is ListOverdue bounded below as well; used for reminders.
	ListDueBetween(ctx context.Context, tx Tx, from, to time.Time, limit int) ([]*OverdueCandidate, error)
	// ListRecentlyExpired returns EXPIRED statuses of users that are still inactive and were
	// deactivated since `since`.
	ListRecentlyExpired(ctx context.Context, tx Tx, since time.Time) ([]*model.PaymentStatus, error)

	List(ctx context.Context, tx Tx, f PaymentStatusFilter) ([]*model.PaymentStatus, int, error)
	CountByState(ctx context.Context, tx Tx) (map[model.PaymentState]int, error)
	CountByPlan(ctx context.Context, tx Tx) (map[model.PaymentPlan]int, error)
}
