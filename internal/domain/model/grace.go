package model

import "time"

const day = 24 * time.Hour

// GracePolicy holds how long an installment may stay unpaid past its cohort-relative
// due date before the enrollment is expired.
type GracePolicy struct {
	PreStart time.Duration // installments due at or before cohort start
	MidPlan  time.Duration
	Final    time.Duration
	NoCohort time.Duration // applied to the stored due date when no cohort is assigned
}

func DefaultGracePolicy() GracePolicy {
	return GracePolicy{
		PreStart: 7 * day,
		MidPlan:  14 * day,
		Final:    21 * day,
		NoCohort: 30 * day,
	}
}

// InstallmentPosition classifies an installment within its plan.
type InstallmentPosition string

const (
	PositionPreStart InstallmentPosition = "pre_start"
	PositionMidPlan  InstallmentPosition = "mid_plan"
	PositionFinal    InstallmentPosition = "final"
)

// Position returns where installment n sits in plan.
func Position(plan PaymentPlan, n int) InstallmentPosition {
	switch {
	case plan.IsFinalInstallment(n) && n > 1:
		return PositionFinal
	case MonthOffset(plan, n) == 0:
		return PositionPreStart
	default:
		return PositionMidPlan
	}
}

// OverdueInput describes one unpaid obligation.
type OverdueInput struct {
	Plan              PaymentPlan
	State             PaymentState
	InstallmentNumber int
	DueDate           time.Time  // stored due date
	CohortStart       *time.Time // nil when no cohort is assigned
}

// OverdueDecision is what the sweep should do with one obligation.
type OverdueDecision struct {
	Deactivate bool
	Deadline   time.Time
	Position   InstallmentPosition
	Reason     string
}

// DecideOverdue applies the grace rules. Deadlines are anchored to the cohort start,
// not to the stored due date, except when no cohort is assigned.
func DecideOverdue(in OverdueInput, p GracePolicy, now time.Time) OverdueDecision {
	if in.Plan == PlanFullPayment {
		return OverdueDecision{Reason: "full payment plans are never deactivated"}
	}
	if in.State.Terminal() {
		return OverdueDecision{Reason: "status is " + string(in.State)}
	}

	pos := Position(in.Plan, in.InstallmentNumber)
	var deadline time.Time
	switch {
	case in.CohortStart == nil:
		deadline = in.DueDate.Add(p.NoCohort)
	case in.Plan == PlanFirstHalfComplete:
		// the balance is due a month after the first half was paid; never before
		// the cohort's first month is over
		anchor := AddMonths(*in.CohortStart, 1)
		if in.DueDate.After(anchor) {
			anchor = in.DueDate
		}
		deadline = anchor.Add(p.Final)
		pos = PositionFinal
	default:
		anchor := AddMonths(*in.CohortStart, MonthOffset(in.Plan, in.InstallmentNumber))
		switch pos {
		case PositionPreStart:
			deadline = anchor.Add(p.PreStart)
		case PositionMidPlan:
			deadline = anchor.Add(p.MidPlan)
		default:
			deadline = anchor.Add(p.Final)
		}
	}

	d := OverdueDecision{Deadline: deadline, Position: pos}
	if now.After(deadline) {
		d.Deactivate = true
		d.Reason = "grace period elapsed"
	} else {
		d.Reason = "within grace period"
	}
	return d
}
