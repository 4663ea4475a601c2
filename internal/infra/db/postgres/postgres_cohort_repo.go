package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/repository"
)

var (
	_ repository.CohortRepository     = (*cohortRepo)(nil)
	_ repository.UserCohortRepository = (*userCohortRepo)(nil)
)

type cohortRepo struct{ pool *pgxpool.Pool }

func NewCohortRepo(pool *pgxpool.Pool) *cohortRepo {
	return &cohortRepo{pool: pool}
}

const cohortColumns = `id, course_id, name, start_date, end_date`

func (r *cohortRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Cohort, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	c := &model.Cohort{}
	if err := row.Scan(&c.ID, &c.CourseID, &c.Name, &c.StartDate, &c.EndDate); err != nil {
		return nil, scanErr(err)
	}
	return c, nil
}

func (r *cohortRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Cohort, error) {
	return r.findOne(ctx, tx, `SELECT `+cohortColumns+` FROM cohorts WHERE id=$1;`, id)
}

// FindByCourseAndName matches names case-insensitively.
func (r *cohortRepo) FindByCourseAndName(ctx context.Context, tx repository.Tx, courseID, name string) (*model.Cohort, error) {
	return r.findOne(ctx, tx, `SELECT `+cohortColumns+` FROM cohorts WHERE course_id=$1 AND LOWER(name)=LOWER(TRIM($2)) LIMIT 1;`, courseID, name)
}

// NextAfter returns the first cohort of the course starting after cohortID does.
func (r *cohortRepo) NextAfter(ctx context.Context, tx repository.Tx, courseID, cohortID string) (*model.Cohort, error) {
	const q = `
SELECT ` + cohortColumns + ` FROM cohorts
 WHERE course_id = $1
   AND start_date > (SELECT start_date FROM cohorts WHERE id = $2)
 ORDER BY start_date ASC
 LIMIT 1;`
	return r.findOne(ctx, tx, q, courseID, cohortID)
}

func (r *cohortRepo) FindCourse(ctx context.Context, tx repository.Tx, courseID string) (*model.Course, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT id, title FROM courses WHERE id=$1;`, courseID)
	if err != nil {
		return nil, err
	}
	c := &model.Course{}
	if err := row.Scan(&c.ID, &c.Title); err != nil {
		return nil, scanErr(err)
	}
	return c, nil
}

// SaveCourse upserts a course. Used by the seeder.
func (r *cohortRepo) SaveCourse(ctx context.Context, tx repository.Tx, c *model.Course) error {
	const q = `INSERT INTO courses (id, title) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET title=$2;`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Title)
	return opErr(err)
}

// SaveCohort upserts a cohort. Used by the seeder.
func (r *cohortRepo) SaveCohort(ctx context.Context, tx repository.Tx, c *model.Cohort) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	const q = `
INSERT INTO cohorts (` + cohortColumns + `) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET course_id=$2, name=$3, start_date=$4, end_date=$5;`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.CourseID, c.Name, c.StartDate, c.EndDate)
	return opErr(err)
}

type userCohortRepo struct{ pool *pgxpool.Pool }

func NewUserCohortRepo(pool *pgxpool.Pool) *userCohortRepo {
	return &userCohortRepo{pool: pool}
}

func (r *userCohortRepo) FindByUserCourse(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.UserCohort, error) {
	const q = `
SELECT id, user_id, course_id, cohort_id, is_payment_active, is_active, created_at, updated_at
  FROM user_cohorts WHERE user_id=$1 AND course_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, courseID)
	if err != nil {
		return nil, err
	}
	uc := &model.UserCohort{}
	if err := row.Scan(&uc.ID, &uc.UserID, &uc.CourseID, &uc.CohortID, &uc.IsPaymentActive, &uc.IsActive, &uc.CreatedAt, &uc.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return uc, nil
}

func (r *userCohortRepo) Upsert(ctx context.Context, tx repository.Tx, uc *model.UserCohort) error {
	if uc.ID == "" {
		uc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if uc.CreatedAt.IsZero() {
		uc.CreatedAt = now
	}
	const q = `
INSERT INTO user_cohorts (id, user_id, course_id, cohort_id, is_payment_active, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (user_id, course_id) DO UPDATE SET
  cohort_id=$4, is_payment_active=$5, is_active=$6, updated_at=$8;`
	_, err := execSQL(ctx, r.pool, tx, q, uc.ID, uc.UserID, uc.CourseID, uc.CohortID, uc.IsPaymentActive, uc.IsActive, uc.CreatedAt, now)
	return opErr(err)
}

func (r *userCohortRepo) SetPaymentActive(ctx context.Context, tx repository.Tx, userID, courseID string, active bool) error {
	return r.update(ctx, tx, `UPDATE user_cohorts SET is_payment_active=$3, updated_at=NOW() WHERE user_id=$1 AND course_id=$2;`, userID, courseID, active)
}

func (r *userCohortRepo) Reassign(ctx context.Context, tx repository.Tx, userID, courseID, cohortID string) error {
	return r.update(ctx, tx, `UPDATE user_cohorts SET cohort_id=$3, updated_at=NOW() WHERE user_id=$1 AND course_id=$2;`, userID, courseID, cohortID)
}

func (r *userCohortRepo) update(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return opErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
