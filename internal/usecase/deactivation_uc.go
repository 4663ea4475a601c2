package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ DeactivationUseCase = (*deactivationUC)(nil)

type DeactivationUseCase interface {
	// Run expires every enrollment with an installment past its grace deadline.
	Run(ctx context.Context, now time.Time) (DeactivationReport, error)
}

type DeactivatedItem struct {
	PaymentStatusID   string
	UserID            string
	CourseID          string
	Plan              model.PaymentPlan
	Position          model.InstallmentPosition
	InstallmentNumber int
	Deadline          time.Time
	NextCohortID      string
}

type DeactivationReport struct {
	Candidates  int // overdue payment statuses examined
	Deactivated []DeactivatedItem
	Skipped     int // still within grace, or changed under us
	Errors      int
}

type deactivationUC struct {
	statuses    repository.PaymentStatusRepository
	users       repository.UserRepository
	cohorts     repository.CohortRepository
	userCohorts repository.UserCohortRepository
	notifLog    repository.NotificationLogRepository
	tm          repository.TransactionManager
	notify      notificationSender
	policy      model.GracePolicy
	batch       int
	log         *zerolog.Logger
}

func NewDeactivationUseCase(
	statuses repository.PaymentStatusRepository,
	users repository.UserRepository,
	cohorts repository.CohortRepository,
	userCohorts repository.UserCohortRepository,
	notifLog repository.NotificationLogRepository,
	tm repository.TransactionManager,
	notifier adapter.Notifier,
	policy model.GracePolicy,
	batch int,
	logger *zerolog.Logger,
) *deactivationUC {
	if batch <= 0 {
		batch = 500
	}
	l := logger.With().Str("component", "deactivation_uc").Logger()
	return &deactivationUC{
		statuses:    statuses,
		users:       users,
		cohorts:     cohorts,
		userCohorts: userCohorts,
		notifLog:    notifLog,
		tm:          tm,
		notify:      notificationSender{notifier: notifier, log: &l},
		policy:      policy,
		batch:       batch,
		log:         &l,
	}
}

var errSkipItem = errors.New("skip item")

func (u *deactivationUC) Run(ctx context.Context, now time.Time) (DeactivationReport, error) {
	var rep DeactivationReport
	cands, err := u.statuses.ListOverdue(ctx, repository.NoTX, now, u.batch)
	if err != nil {
		return rep, err
	}

	// one decision per payment status; candidates arrive oldest first
	var order []string
	groups := map[string][]*repository.OverdueCandidate{}
	for _, c := range cands {
		if _, ok := groups[c.PaymentStatusID]; !ok {
			order = append(order, c.PaymentStatusID)
		}
		groups[c.PaymentStatusID] = append(groups[c.PaymentStatusID], c)
	}
	rep.Candidates = len(order)

	for _, id := range order {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		c, d, ok := u.firstLapsed(groups[id], now)
		if !ok {
			rep.Skipped++
			continue
		}
		item, err := u.deactivate(ctx, c, d, now)
		switch {
		case errors.Is(err, errSkipItem), errors.Is(err, domain.ErrConcurrentUpdate):
			rep.Skipped++
		case err != nil:
			rep.Errors++
			u.log.Error().Err(err).Str("payment_status_id", id).Str("user_id", c.UserID).Msg("deactivation failed")
		default:
			rep.Deactivated = append(rep.Deactivated, item)
		}
	}

	u.log.Info().
		Int("candidates", rep.Candidates).
		Int("deactivated", len(rep.Deactivated)).
		Int("skipped", rep.Skipped).
		Int("errors", rep.Errors).
		Msg("deactivation sweep finished")
	return rep, nil
}

// firstLapsed returns the earliest candidate of a status whose grace deadline has passed.
func (u *deactivationUC) firstLapsed(group []*repository.OverdueCandidate, now time.Time) (*repository.OverdueCandidate, model.OverdueDecision, bool) {
	for _, c := range group {
		d := model.DecideOverdue(model.OverdueInput{
			Plan:              c.Plan,
			State:             c.State,
			InstallmentNumber: c.InstallmentNumber,
			DueDate:           c.DueDate,
			CohortStart:       c.CohortStart,
		}, u.policy, now)
		if d.Deactivate {
			return c, d, true
		}
	}
	return nil, model.OverdueDecision{}, false
}

func (u *deactivationUC) deactivate(ctx context.Context, c *repository.OverdueCandidate, d model.OverdueDecision, now time.Time) (DeactivatedItem, error) {
	item := DeactivatedItem{
		PaymentStatusID:   c.PaymentStatusID,
		UserID:            c.UserID,
		CourseID:          c.CourseID,
		Plan:              c.Plan,
		Position:          d.Position,
		InstallmentNumber: c.InstallmentNumber,
		Deadline:          d.Deadline,
	}
	log := u.log.With().Str("user_id", c.UserID).Str("course_id", c.CourseID).Logger()

	out, err := model.Transition(c.State, model.OverdueDetected{Plan: c.Plan})
	if err != nil {
		log.Debug().Err(err).Msg("overdue transition rejected")
		return item, errSkipItem
	}

	var next *model.Cohort
	if c.CohortID != nil && out.Has(model.IntentReassignCohort) {
		next, err = u.cohorts.NextAfter(ctx, repository.NoTX, c.CourseID, *c.CohortID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return item, err
		}
	}

	err = u.tm.WithTx(ctx, settleTxOptions, func(ctx context.Context, tx repository.Tx) error {
		ps, err := u.statuses.FindForUpdate(ctx, tx, c.UserID, c.CourseID)
		if err != nil {
			return err
		}
		if ps.Version != c.Version || ps.Status != c.State {
			// paid or changed since the candidate was read; next run re-evaluates
			return domain.ErrConcurrentUpdate
		}
		ps.Status = out.Next
		ps.UpdatedAt = now
		ok, err := u.statuses.UpdateState(ctx, tx, ps)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}
		if out.Has(model.IntentDeactivateUser) {
			return u.users.SetInactive(ctx, tx, c.UserID, true, &now)
		}
		return nil
	})
	if err != nil {
		return item, err
	}

	// access changes are applied after the status commit; the status is the source of truth
	if next != nil {
		item.NextCohortID = next.ID
		if err := u.userCohorts.Reassign(ctx, repository.NoTX, c.UserID, c.CourseID, next.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Msg("cohort reassignment failed")
		}
	}
	if out.Has(model.IntentRevokeAccess) {
		if err := u.userCohorts.SetPaymentActive(ctx, repository.NoTX, c.UserID, c.CourseID, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Msg("revoking access failed")
		}
	}

	log.Info().
		Str("plan", string(c.Plan)).
		Int("installment", c.InstallmentNumber).
		Time("deadline", d.Deadline).
		Msg("enrollment expired for non-payment")

	u.sendNotice(ctx, c, d, next, out.Notify)
	return item, nil
}

func (u *deactivationUC) sendNotice(ctx context.Context, c *repository.OverdueCandidate, d model.OverdueDecision, next *model.Cohort, kind model.NotificationKind) {
	key := fmt.Sprintf("%d:%s", c.InstallmentNumber, d.Deadline.Format("2006-01-02"))
	if u.notifLog != nil {
		if sent, err := u.notifLog.Exists(ctx, repository.NoTX, c.PaymentStatusID, string(kind), key); err == nil && sent {
			return
		}
	}
	user, err := u.users.FindByID(ctx, repository.NoTX, c.UserID)
	if err != nil {
		u.log.Warn().Err(err).Str("user_id", c.UserID).Msg("deactivation notice skipped: user lookup failed")
		return
	}
	course, _ := u.cohorts.FindCourse(ctx, repository.NoTX, c.CourseID)

	data := noticeData(user, course)
	data["InstallmentNumber"] = c.InstallmentNumber
	data["Amount"] = c.Amount
	data["DueDate"] = dateString(&c.DueDate)
	data["Deadline"] = dateString(&d.Deadline)
	if next != nil {
		data["NextCohortName"] = next.Name
		data["NextCohortStart"] = dateString(&next.StartDate)
	}

	if u.notify.send(ctx, adapter.Notification{Template: string(kind), To: user.Email, Data: data}) && u.notifLog != nil {
		if err := u.notifLog.Save(ctx, repository.NoTX, c.PaymentStatusID, c.UserID, string(kind), key); err != nil {
			u.log.Warn().Err(err).Msg("notification log write failed")
		}
	}
}
