package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/repository"
)

var _ repository.PaymentStatusRepository = (*paymentStatusRepo)(nil)

type paymentStatusRepo struct{ pool *pgxpool.Pool }

func NewPaymentStatusRepo(pool *pgxpool.Pool) *paymentStatusRepo {
	return &paymentStatusRepo{pool: pool}
}

const statusColumns = `id, user_id, course_id, cohort_id, status, plan, second_payment_due_date, desired_start_date, last_reminder_sent, version, created_at, updated_at`

func scanStatus(row pgx.Row) (*model.PaymentStatus, error) {
	ps := &model.PaymentStatus{}
	var status, plan string
	if err := row.Scan(&ps.ID, &ps.UserID, &ps.CourseID, &ps.CohortID, &status, &plan,
		&ps.SecondPaymentDueDate, &ps.DesiredStartDate, &ps.LastReminderSent, &ps.Version, &ps.CreatedAt, &ps.UpdatedAt); err != nil {
		return nil, err
	}
	ps.Status = model.PaymentState(status)
	ps.Plan = model.PaymentPlan(plan)
	return ps, nil
}

// Create inserts ps and its installments. It reports false when the user already has a
// payment status for the course.
func (r *paymentStatusRepo) Create(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus) (bool, error) {
	const q = `
INSERT INTO payment_statuses (` + statusColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (user_id, course_id) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q, ps.ID, ps.UserID, ps.CourseID, ps.CohortID, string(ps.Status), string(ps.Plan),
		ps.SecondPaymentDueDate, ps.DesiredStartDate, ps.LastReminderSent, ps.Version, ps.CreatedAt, ps.UpdatedAt)
	if err != nil {
		return false, opErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	const qi = `
INSERT INTO payment_installments (id, payment_status_id, installment_number, amount, due_date, paid, paid_at, last_reminder_sent)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	for _, in := range ps.Installments {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		in.PaymentStatusID = ps.ID
		if _, err := execSQL(ctx, r.pool, tx, qi, in.ID, ps.ID, in.InstallmentNumber, in.Amount, in.DueDate, in.Paid, in.PaidAt, in.LastReminderSent); err != nil {
			return false, opErr(err)
		}
	}
	return true, nil
}

func (r *paymentStatusRepo) FindByUserCourse(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.PaymentStatus, error) {
	q := `SELECT ` + statusColumns + ` FROM payment_statuses WHERE user_id=$1 AND course_id=$2`
	return r.findOne(ctx, tx, q, userID, courseID)
}

// FindForUpdate locks the row when tx is a database transaction.
func (r *paymentStatusRepo) FindForUpdate(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.PaymentStatus, error) {
	q := forUpdate(`SELECT `+statusColumns+` FROM payment_statuses WHERE user_id=$1 AND course_id=$2`, tx)
	return r.findOne(ctx, tx, q, userID, courseID)
}

func (r *paymentStatusRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentStatus, error) {
	q := `SELECT ` + statusColumns + ` FROM payment_statuses WHERE id=$1`
	return r.findOne(ctx, tx, q, id)
}

func (r *paymentStatusRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.PaymentStatus, error) {
	row, err := pickRow(ctx, r.pool, tx, q+";", args...)
	if err != nil {
		return nil, err
	}
	ps, err := scanStatus(row)
	if err != nil {
		return nil, scanErr(err)
	}
	ins, err := r.loadInstallments(ctx, tx, []string{ps.ID})
	if err != nil {
		return nil, err
	}
	ps.Installments = ins[ps.ID]
	return ps, nil
}

func (r *paymentStatusRepo) loadInstallments(ctx context.Context, tx repository.Tx, ids []string) (map[string][]*model.PaymentInstallment, error) {
	const q = `
SELECT id, payment_status_id, installment_number, amount, due_date, paid, paid_at, last_reminder_sent
  FROM payment_installments
 WHERE payment_status_id = ANY($1)
 ORDER BY payment_status_id, installment_number;`
	out := make(map[string][]*model.PaymentInstallment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := queryRows(ctx, r.pool, tx, q, ids)
	if err != nil {
		return nil, opErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		in := &model.PaymentInstallment{}
		if err := rows.Scan(&in.ID, &in.PaymentStatusID, &in.InstallmentNumber, &in.Amount, &in.DueDate, &in.Paid, &in.PaidAt, &in.LastReminderSent); err != nil {
			return nil, scanErr(err)
		}
		out[in.PaymentStatusID] = append(out[in.PaymentStatusID], in)
	}
	return out, opErr(rows.Err())
}

// UpdateState writes the mutable status fields guarded by the version column.
// It reports false when the row was changed since ps was read.
func (r *paymentStatusRepo) UpdateState(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus) (bool, error) {
	const q = `
UPDATE payment_statuses
   SET status = $2,
       cohort_id = $3,
       second_payment_due_date = $4,
       last_reminder_sent = $5,
       updated_at = $6,
       version = version + 1
 WHERE id = $1 AND version = $7
RETURNING version;`
	updatedAt := ps.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	row, err := pickRow(ctx, r.pool, tx, q, ps.ID, string(ps.Status), ps.CohortID, ps.SecondPaymentDueDate, ps.LastReminderSent, updatedAt, ps.Version)
	if err != nil {
		return false, err
	}
	var version int
	if err := row.Scan(&version); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, opErr(err)
	}
	ps.Version = version
	return true, nil
}

func (r *paymentStatusRepo) MarkInstallmentPaid(ctx context.Context, tx repository.Tx, installmentID string, paidAt time.Time) (bool, error) {
	const q = `UPDATE payment_installments SET paid = TRUE, paid_at = $2 WHERE id = $1 AND NOT paid;`
	cmd, err := execSQL(ctx, r.pool, tx, q, installmentID, paidAt)
	if err != nil {
		return false, opErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentStatusRepo) UpdateInstallmentDueDate(ctx context.Context, tx repository.Tx, installmentID string, due time.Time) error {
	return r.execOne(ctx, tx, `UPDATE payment_installments SET due_date = $2 WHERE id = $1 AND NOT paid;`, installmentID, due)
}

func (r *paymentStatusRepo) TouchInstallmentReminder(ctx context.Context, tx repository.Tx, installmentID string, at time.Time) error {
	return r.execOne(ctx, tx, `UPDATE payment_installments SET last_reminder_sent = $2 WHERE id = $1;`, installmentID, at)
}

func (r *paymentStatusRepo) TouchBalanceReminder(ctx context.Context, tx repository.Tx, paymentStatusID string, at time.Time) error {
	return r.execOne(ctx, tx, `UPDATE payment_statuses SET last_reminder_sent = $2 WHERE id = $1;`, paymentStatusID, at)
}

func (r *paymentStatusRepo) execOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return opErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// dueQuery lists unpaid obligations of live enrollments due in [$1, $2): installment rows
// plus the half plan balance, which has no row of its own.
const dueQuery = `
SELECT ps.id AS ps_id, ps.user_id, ps.course_id, ps.cohort_id, c.start_date, ps.plan, ps.status, ps.version,
       pi.id AS installment_id, pi.installment_number, pi.amount, pi.due_date, pi.last_reminder_sent
  FROM payment_installments pi
  JOIN payment_statuses ps ON ps.id = pi.payment_status_id
  LEFT JOIN cohorts c ON c.id = ps.cohort_id
 WHERE NOT pi.paid
   AND ps.status NOT IN ('COMPLETE', 'EXPIRED')
   AND pi.due_date >= $1 AND pi.due_date < $2
UNION ALL
SELECT ps.id, ps.user_id, ps.course_id, ps.cohort_id, c.start_date, ps.plan, ps.status, ps.version,
       '', 2, 0, ps.second_payment_due_date, ps.last_reminder_sent
  FROM payment_statuses ps
  LEFT JOIN cohorts c ON c.id = ps.cohort_id
 WHERE ps.plan = 'FIRST_HALF_COMPLETE'
   AND ps.status = 'BALANCE_HALF_PAYMENT'
   AND ps.second_payment_due_date >= $1 AND ps.second_payment_due_date < $2
 ORDER BY due_date, ps_id, installment_number
 LIMIT $3;`

func (r *paymentStatusRepo) ListOverdue(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*repository.OverdueCandidate, error) {
	return r.listDue(ctx, tx, time.Time{}, before, limit)
}

func (r *paymentStatusRepo) ListDueBetween(ctx context.Context, tx repository.Tx, from, to time.Time, limit int) ([]*repository.OverdueCandidate, error) {
	return r.listDue(ctx, tx, from, to, limit)
}

func (r *paymentStatusRepo) listDue(ctx context.Context, tx repository.Tx, from, to time.Time, limit int) ([]*repository.OverdueCandidate, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := queryRows(ctx, r.pool, tx, dueQuery, from, to, limit)
	if err != nil {
		return nil, opErr(err)
	}
	defer rows.Close()

	var out []*repository.OverdueCandidate
	for rows.Next() {
		c := &repository.OverdueCandidate{}
		var plan, state string
		if err := rows.Scan(&c.PaymentStatusID, &c.UserID, &c.CourseID, &c.CohortID, &c.CohortStart, &plan, &state, &c.Version,
			&c.InstallmentID, &c.InstallmentNumber, &c.Amount, &c.DueDate, &c.LastReminderSent); err != nil {
			return nil, scanErr(err)
		}
		c.Plan = model.PaymentPlan(plan)
		c.State = model.PaymentState(state)
		out = append(out, c)
	}
	return out, opErr(rows.Err())
}

func (r *paymentStatusRepo) ListRecentlyExpired(ctx context.Context, tx repository.Tx, since time.Time) ([]*model.PaymentStatus, error) {
	q := `SELECT ` + statusColumns + ` FROM payment_statuses
		WHERE status = 'EXPIRED'
		  AND user_id IN (SELECT id FROM users WHERE inactive AND deactivated_at >= $1)
		ORDER BY updated_at;`
	return r.listWith(ctx, tx, q, since)
}

func (r *paymentStatusRepo) List(ctx context.Context, tx repository.Tx, f repository.PaymentStatusFilter) ([]*model.PaymentStatus, int, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Plan != "" {
		add("plan = $%d", string(f.Plan))
	}
	if f.CourseID != "" {
		add("course_id = $%d", f.CourseID)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM payment_statuses`+cond+`;`, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, scanErr(err)
	}

	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM payment_statuses%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d;`, statusColumns, cond, len(args)-1, len(args))
	out, err := r.listWith(ctx, tx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *paymentStatusRepo) listWith(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.PaymentStatus, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, opErr(err)
	}
	var (
		out []*model.PaymentStatus
		ids []string
	)
	for rows.Next() {
		ps, err := scanStatus(rows)
		if err != nil {
			rows.Close()
			return nil, scanErr(err)
		}
		out = append(out, ps)
		ids = append(ids, ps.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, opErr(err)
	}

	ins, err := r.loadInstallments(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for _, ps := range out {
		ps.Installments = ins[ps.ID]
	}
	return out, nil
}

func (r *paymentStatusRepo) CountByState(ctx context.Context, tx repository.Tx) (map[model.PaymentState]int, error) {
	out := map[model.PaymentState]int{}
	err := r.countBy(ctx, tx, `SELECT status, COUNT(*) FROM payment_statuses GROUP BY status;`, func(k string, n int) {
		out[model.PaymentState(k)] = n
	})
	return out, err
}

func (r *paymentStatusRepo) CountByPlan(ctx context.Context, tx repository.Tx) (map[model.PaymentPlan]int, error) {
	out := map[model.PaymentPlan]int{}
	err := r.countBy(ctx, tx, `SELECT plan, COUNT(*) FROM payment_statuses GROUP BY plan;`, func(k string, n int) {
		out[model.PaymentPlan(k)] = n
	})
	return out, err
}

func (r *paymentStatusRepo) countBy(ctx context.Context, tx repository.Tx, q string, put func(string, int)) error {
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return opErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k string
			n int
		)
		if err := rows.Scan(&k, &n); err != nil {
			return scanErr(err)
		}
		put(k, n)
	}
	return opErr(rows.Err())
}
