package model

import (
	"fmt"
	"time"

	"course-payments/internal/domain"
)

// Event is an input to the payment status state machine.
type Event interface{ isEvent() }

// PlanChosen creates a record when a learner first picks a plan.
type PlanChosen struct{ Plan PaymentPlan }

// InstallmentPaid is a verified payment of a non-final installment.
type InstallmentPaid struct {
	Plan   PaymentPlan
	Number int
	PaidAt time.Time
}

// FinalInstallmentPaid is a verified payment of the plan's last installment
// (installment 1 of the full plan).
type FinalInstallmentPaid struct {
	Plan   PaymentPlan
	Number int
	PaidAt time.Time
}

// OverdueDetected is raised by the deactivation sweep.
type OverdueDetected struct{ Plan PaymentPlan }

func (PlanChosen) isEvent()           {}
func (InstallmentPaid) isEvent()      {}
func (FinalInstallmentPaid) isEvent() {}
func (OverdueDetected) isEvent()      {}

// PaymentEvent builds the paid event matching the installment's position in the plan.
func PaymentEvent(plan PaymentPlan, number int, paidAt time.Time) Event {
	if plan.IsFinalInstallment(number) {
		return FinalInstallmentPaid{Plan: plan, Number: number, PaidAt: paidAt}
	}
	return InstallmentPaid{Plan: plan, Number: number, PaidAt: paidAt}
}

// Intent is a side effect the caller must carry out after a transition.
type Intent string

const (
	IntentGrantAccess      Intent = "grant_access"
	IntentCreatePurchase   Intent = "create_purchase"
	IntentShiftDueDates    Intent = "shift_due_dates"
	IntentSetSecondDueDate Intent = "set_second_due_date"
	IntentReactivateUser   Intent = "reactivate_user"
	IntentDeactivateUser   Intent = "deactivate_user"
	IntentRevokeAccess     Intent = "revoke_access"
	IntentReassignCohort   Intent = "reassign_cohort"
)

// NotificationKind names the template a transition asks to send.
type NotificationKind string

const (
	NotifyNone                   NotificationKind = ""
	NotifyPaymentComplete        NotificationKind = "payment_complete"
	NotifyHalfPaymentReceived    NotificationKind = "half_payment_received"
	NotifyInstallmentReceived    NotificationKind = "installment_received"
	NotifyAccessGranted          NotificationKind = "installment_access_granted"
	NotifyAccountDeactivated     NotificationKind = "account_deactivated"
	NotifyPaymentReminder        NotificationKind = "payment_reminder"
	NotifySuspiciousDeactivation NotificationKind = "suspicious_deactivation"
	NotifyLateCharge             NotificationKind = "late_charge"
)

// Outcome is the result of a transition: the next state and what to do about it.
type Outcome struct {
	Next          PaymentState
	Intents       []Intent
	Notify        NotificationKind
	SecondDueDate *time.Time
}

func (o Outcome) Has(i Intent) bool {
	for _, x := range o.Intents {
		if x == i {
			return true
		}
	}
	return false
}

// Transition applies ev to cur. An empty cur means no record exists yet.
// It performs no I/O.
func Transition(cur PaymentState, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case PlanChosen:
		if cur != "" {
			return Outcome{}, invalid(cur, "plan chosen")
		}
		if !e.Plan.Valid() {
			return Outcome{}, domain.ErrInvalidPlanType
		}
		return Outcome{Next: StatePendingSeatConfirmation}, nil
	case InstallmentPaid:
		return paid(cur, e.Plan, e.Number, e.PaidAt, false)
	case FinalInstallmentPaid:
		return paid(cur, e.Plan, e.Number, e.PaidAt, true)
	case OverdueDetected:
		if e.Plan == PlanFullPayment {
			return Outcome{}, invalid(cur, "overdue on full payment plan")
		}
		if cur == "" || cur.Terminal() {
			return Outcome{}, invalid(cur, "overdue")
		}
		return Outcome{
			Next:    StateExpired,
			Intents: []Intent{IntentDeactivateUser, IntentRevokeAccess, IntentReassignCohort},
			Notify:  NotifyAccountDeactivated,
		}, nil
	}
	return Outcome{}, fmt.Errorf("%w: unknown event %T", domain.ErrInvalidTransition, ev)
}

func paid(cur PaymentState, plan PaymentPlan, n int, paidAt time.Time, final bool) (Outcome, error) {
	if !plan.Valid() {
		return Outcome{}, domain.ErrInvalidPlanType
	}
	if n < 1 || n > plan.InstallmentCount() || plan.IsFinalInstallment(n) != final {
		return Outcome{}, fmt.Errorf("%w: installment %d is not valid for %s", domain.ErrInvalidTransition, n, plan)
	}
	if cur == "" || cur == StateComplete {
		return Outcome{}, invalid(cur, "installment paid")
	}

	var out Outcome
	base := cur
	if cur == StateExpired {
		// a verified payment reinstates the enrollment
		base = StatePendingSeatConfirmation
		out.Intents = append(out.Intents, IntentReactivateUser)
	}

	access := plan.AccessInstallment()
	switch {
	case final:
		out.Next = StateComplete
	case n >= access:
		out.Next = StateBalanceHalfPayment
	default:
		out.Next = base
	}
	if out.Next.rank() < base.rank() {
		out.Next = base
	}

	if n >= access {
		out.Intents = append(out.Intents, IntentGrantAccess, IntentCreatePurchase)
	}
	if plan.IsInstallmentPlan() && n == access {
		out.Intents = append(out.Intents, IntentShiftDueDates)
	}
	if plan == PlanFirstHalfComplete && n == 1 {
		due := AddMonths(paidAt, 1)
		out.SecondDueDate = &due
		out.Intents = append(out.Intents, IntentSetSecondDueDate)
	}

	switch {
	case final:
		out.Notify = NotifyPaymentComplete
	case plan == PlanFirstHalfComplete:
		out.Notify = NotifyHalfPaymentReceived
	case n == access:
		out.Notify = NotifyAccessGranted
	default:
		out.Notify = NotifyInstallmentReceived
	}
	return out, nil
}

func invalid(cur PaymentState, what string) error {
	if cur == "" {
		cur = "<none>"
	}
	return fmt.Errorf("%w: %s from %s", domain.ErrInvalidTransition, what, cur)
}
