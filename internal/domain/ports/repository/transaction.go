package repository

import (
	"context"
	"time"

	"course-payments/internal/domain/model"
)

// -----------------------------
// Gateway transactions
// -----------------------------

type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.PaystackTransaction) error
	FindByReference(ctx context.Context, tx Tx, reference string) (*model.PaystackTransaction, error)
	// FindReusablePending returns the newest pending transaction for (user, course) created
	// after `since`, or ErrNotFound.
	FindReusablePending(ctx context.Context, tx Tx, userID, courseID string, since time.Time) (*model.PaystackTransaction, error)
	// UpdateStatusIfPending moves a pending transaction to a terminal status and reports
	// whether this call did it.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.TransactionStatus, gatewayResponse string, paidAt *time.Time) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaystackTransaction, error)
	SumSuccessfulByPeriod(ctx context.Context, tx Tx, period string) (int64, error)
	CountByStatus(ctx context.Context, tx Tx, status model.TransactionStatus) (int, error)
}
