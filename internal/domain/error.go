package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Catalog / input validation
	ErrInvalidPlanType   = errors.New("invalid plan type")
	ErrInvalidCohortName = errors.New("invalid cohort name")

	// Lookups
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrPaymentStatusNotFound = errors.New("payment status not found")
	ErrCohortNotFound        = errors.New("cohort not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrInstallmentNotFound   = errors.New("installment not found")

	// Gateway
	ErrGatewayVerificationFailed = errors.New("payment gateway verification failed")
	ErrGatewayUnavailable        = errors.New("payment gateway unavailable")
	ErrInvalidSignature          = errors.New("invalid webhook signature")

	// Lifecycle
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrConcurrentUpdate  = errors.New("payment status was modified concurrently")
	ErrAlreadyPaid       = errors.New("already paid")
	ErrPlanMismatch      = errors.New("payment plan does not match existing enrollment")
	ErrRateLimited       = errors.New("too many requests")
	ErrInProgress        = errors.New("another request for this enrollment is in progress")

	// Storage
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)
