package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

func NewTransactionRepo(pool *pgxpool.Pool, logger *zerolog.Logger) *transactionRepo {
	l := logger.With().Str("component", "transaction_repo").Logger()
	return &transactionRepo{pool: pool, log: &l}
}

const txColumns = `id, user_id, course_id, reference, status, amount, currency, metadata, authorization_url, gateway_response, paid_at, created_at, updated_at`

func (r *transactionRepo) scan(row pgx.Row) (*model.PaystackTransaction, error) {
	t := &model.PaystackTransaction{}
	var (
		status string
		meta   []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.CourseID, &t.Reference, &status, &t.Amount, &t.Currency, &meta,
		&t.AuthorizationURL, &t.GatewayResponse, &t.PaidAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TransactionStatus(status)
	t.Metadata = r.decodeMetadata(t.Reference, meta)
	return t, nil
}

// decodeMetadata keeps whatever could be decoded. A row without plan context still loads
// so it can be listed; settlement rejects it later as a plan mismatch.
func (r *transactionRepo) decodeMetadata(reference string, meta []byte) model.TransactionMetadata {
	m, err := model.DecodeTransactionMetadata(meta)
	if err != nil {
		r.log.Error().Err(err).Str("reference", reference).Msg("corrupt transaction metadata")
	}
	return m
}

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.PaystackTransaction) error {
	const q = `
INSERT INTO paystack_transactions (` + txColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`
	meta, err := t.Metadata.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	_, err = execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.CourseID, t.Reference, string(t.Status), t.Amount, t.Currency, meta,
		t.AuthorizationURL, t.GatewayResponse, t.PaidAt, t.CreatedAt, t.UpdatedAt)
	return opErr(err)
}

func (r *transactionRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.PaystackTransaction, error) {
	q := forUpdate(`SELECT `+txColumns+` FROM paystack_transactions WHERE reference=$1`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, reference)
	if err != nil {
		return nil, err
	}
	t, err := r.scan(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return t, nil
}

// FindReusablePending returns the newest pending transaction created after since.
func (r *transactionRepo) FindReusablePending(ctx context.Context, tx repository.Tx, userID, courseID string, since time.Time) (*model.PaystackTransaction, error) {
	const q = `SELECT ` + txColumns + ` FROM paystack_transactions
 WHERE user_id=$1 AND course_id=$2 AND status='pending' AND created_at > $3
 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, courseID, since)
	if err != nil {
		return nil, err
	}
	t, err := r.scan(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return t, nil
}

// UpdateStatusIfPending atomically moves a transaction out of 'pending'.
// It reports false when another writer got there first.
func (r *transactionRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, gatewayResponse string, paidAt *time.Time) (bool, error) {
	const q = `
    UPDATE paystack_transactions
       SET status = $2,
           gateway_response = $3,
           paid_at = $4,
           updated_at = NOW()
     WHERE id = $1
       AND status = 'pending'`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), gatewayResponse, paidAt)
	if err != nil {
		return false, opErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *transactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaystackTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + txColumns + ` FROM paystack_transactions WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, opErr(err)
	}
	defer rows.Close()

	var out []*model.PaystackTransaction
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, scanErr(err)
		}
		out = append(out, t)
	}
	return out, opErr(rows.Err())
}

var revenuePeriods = map[string]bool{"day": true, "week": true, "month": true, "year": true}

// SumSuccessfulByPeriod totals successful payments since the start of the current period.
func (r *transactionRepo) SumSuccessfulByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	if !revenuePeriods[period] {
		return 0, fmt.Errorf("%w: period %q", domain.ErrInvalidArgument, period)
	}
	const q = `SELECT COALESCE(SUM(amount),0) FROM paystack_transactions WHERE status='success' AND paid_at >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return 0, err
	}

	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *transactionRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.TransactionStatus) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM paystack_transactions WHERE status=$1;`, string(status))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
