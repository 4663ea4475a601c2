package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/repository"
)

type appliedPayment struct {
	previous         model.PaymentState
	outcome          model.Outcome
	alreadyProcessed bool
}

// applyInstallmentPayment records a verified payment of the installment named in the
// transaction metadata, moves ps through the state machine and carries out the
// resulting intents. It must run inside tx with ps locked.
func (u *paymentUC) applyInstallmentPayment(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus, t *model.PaystackTransaction, paidAt time.Time) (appliedPayment, error) {
	meta := t.Metadata
	n := meta.InstallmentNumber
	res := appliedPayment{previous: ps.Status}

	if meta.PaymentPlan != ps.Plan {
		return res, fmt.Errorf("%w: transaction is for %s, enrollment is %s", domain.ErrPlanMismatch, meta.PaymentPlan, ps.Plan)
	}

	switch {
	case ps.Plan.IsInstallmentPlan():
		in := ps.Installment(n)
		if in == nil {
			return res, fmt.Errorf("%w: %d", domain.ErrInstallmentNotFound, n)
		}
		flipped, err := u.Statuses.MarkInstallmentPaid(ctx, tx, in.ID, paidAt)
		if err != nil {
			return res, err
		}
		if !flipped {
			res.alreadyProcessed = true
			return res, nil
		}
		in.MarkPaid(paidAt)
		if ps.Plan.IsFinalInstallment(n) && !ps.AllPaid() {
			return res, fmt.Errorf("%w: final installment paid before earlier ones", domain.ErrInvalidTransition)
		}
	case ps.Plan == model.PlanFirstHalfComplete:
		firstPaid := ps.SecondPaymentDueDate != nil
		if (n == 1 && firstPaid) || ps.Status == model.StateComplete {
			res.alreadyProcessed = true
			return res, nil
		}
	default:
		if ps.Status == model.StateComplete {
			res.alreadyProcessed = true
			return res, nil
		}
	}

	out, err := model.Transition(ps.Status, model.PaymentEvent(ps.Plan, n, paidAt))
	if err != nil {
		return res, err
	}
	res.outcome = out
	ps.Status = out.Next
	ps.UpdatedAt = time.Now().UTC()
	if out.SecondDueDate != nil {
		ps.SecondPaymentDueDate = out.SecondDueDate
	}

	if err := u.executeIntents(ctx, tx, ps, t, out); err != nil {
		return res, err
	}

	ok, err := u.Statuses.UpdateState(ctx, tx, ps)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, domain.ErrConcurrentUpdate
	}
	return res, nil
}

func (u *paymentUC) executeIntents(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus, t *model.PaystackTransaction, out model.Outcome) error {
	for _, intent := range out.Intents {
		var err error
		switch intent {
		case model.IntentGrantAccess:
			err = u.grantAccess(ctx, tx, ps)
		case model.IntentCreatePurchase:
			err = u.createPurchase(ctx, tx, ps, t)
		case model.IntentShiftDueDates:
			err = u.shiftDueDates(ctx, tx, ps)
		case model.IntentSetSecondDueDate, model.IntentReactivateUser:
			// persisted with the status row; users are reactivated before the transition
		}
		if err != nil {
			return fmt.Errorf("%s: %w", intent, err)
		}
	}
	return nil
}

func (u *paymentUC) grantAccess(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus) error {
	uc, err := u.UserCohorts.FindByUserCourse(ctx, tx, ps.UserID, ps.CourseID)
	if err == nil {
		if uc.IsPaymentActive {
			return nil
		}
		return u.UserCohorts.SetPaymentActive(ctx, tx, ps.UserID, ps.CourseID, true)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if ps.CohortID == nil {
		// nothing to attach access to until a cohort is assigned
		return nil
	}
	now := time.Now().UTC()
	return u.UserCohorts.Upsert(ctx, tx, &model.UserCohort{
		ID:              uuid.NewString(),
		UserID:          ps.UserID,
		CourseID:        ps.CourseID,
		CohortID:        *ps.CohortID,
		IsPaymentActive: true,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (u *paymentUC) createPurchase(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus, t *model.PaystackTransaction) error {
	exists, err := u.Purchases.Exists(ctx, tx, ps.UserID, ps.CourseID)
	if err != nil || exists {
		return err
	}
	return u.Purchases.Save(ctx, tx, &model.Purchase{
		ID:            uuid.NewString(),
		UserID:        ps.UserID,
		CourseID:      ps.CourseID,
		TransactionID: t.ID,
		CreatedAt:     time.Now().UTC(),
	})
}

// shiftDueDates re-anchors the remaining installments to the enrollment's cohort start.
func (u *paymentUC) shiftDueDates(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus) error {
	if ps.CohortID == nil {
		return nil
	}
	c, err := u.Cohorts.FindByID(ctx, tx, *ps.CohortID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("cohort_id", *ps.CohortID).Msg("cohort missing; due dates left as is")
			return nil
		}
		return err
	}
	for _, in := range ps.ShiftUnpaidDueDates(c.StartDate) {
		if err := u.Statuses.UpdateInstallmentDueDate(ctx, tx, in.ID, in.DueDate); err != nil {
			return err
		}
	}
	return nil
}
