package repository

import (
	"context"
)

// -----------------------------
// Notifications Log
// -----------------------------

type NotificationLogRepository interface {
	// Save records that a notification was sent for a payment status. key narrows it
	// further (an installment number, an audit reason).
	Save(ctx context.Context, tx Tx, paymentStatusID, userID, kind, key string) error
	// Exists checks if a specific notification has already been sent.
	Exists(ctx context.Context, tx Tx, paymentStatusID, kind, key string) (bool, error)
}
