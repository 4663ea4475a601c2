package model

import (
	"sort"
	"time"

	"course-payments/internal/domain"
)

// PaymentState is the lifecycle state of a PaymentStatus.
type PaymentState string

const (
	StatePendingSeatConfirmation PaymentState = "PENDING_SEAT_CONFIRMATION"
	StateBalanceHalfPayment      PaymentState = "BALANCE_HALF_PAYMENT"
	StateComplete                PaymentState = "COMPLETE"
	StateExpired                 PaymentState = "EXPIRED"
)

func (s PaymentState) Terminal() bool {
	return s == StateComplete || s == StateExpired
}

// rank orders the forward progression; EXPIRED sits outside it.
func (s PaymentState) rank() int {
	switch s {
	case StatePendingSeatConfirmation:
		return 1
	case StateBalanceHalfPayment:
		return 2
	case StateComplete:
		return 3
	}
	return 0
}

// PaymentStatus is the per-(user, course) billing record.
type PaymentStatus struct {
	ID                   string
	UserID               string
	CourseID             string
	CohortID             *string
	Status               PaymentState
	Plan                 PaymentPlan
	SecondPaymentDueDate *time.Time // half plan only
	DesiredStartDate     *time.Time
	LastReminderSent     *time.Time // half plan balance reminders
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Installments []*PaymentInstallment
}

// PaymentInstallment is one scheduled payment of an installment plan.
// Paid only ever moves false -> true.
type PaymentInstallment struct {
	ID                string
	PaymentStatusID   string
	InstallmentNumber int
	Amount            int64
	DueDate           time.Time
	Paid              bool
	PaidAt            *time.Time
	LastReminderSent  *time.Time
}

// NewPaymentStatus creates a record in PENDING_SEAT_CONFIRMATION with the plan's schedule.
func NewPaymentStatus(id, userID, courseID string, cohortID *string, pricing PlanPricing, now time.Time) (*PaymentStatus, error) {
	if id == "" || userID == "" || courseID == "" || !pricing.Plan.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	out, err := Transition("", PlanChosen{Plan: pricing.Plan})
	if err != nil {
		return nil, err
	}
	ps := &PaymentStatus{
		ID:        id,
		UserID:    userID,
		CourseID:  courseID,
		CohortID:  cohortID,
		Status:    out.Next,
		Plan:      pricing.Plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, spec := range pricing.Installments {
		ps.Installments = append(ps.Installments, &PaymentInstallment{
			PaymentStatusID:   id,
			InstallmentNumber: spec.Number,
			Amount:            spec.Amount,
			DueDate:           spec.DueDate,
		})
	}
	return ps, nil
}

// Installment finds an installment by number. Numbers are authoritative.
func (ps *PaymentStatus) Installment(n int) *PaymentInstallment {
	for _, in := range ps.Installments {
		if in.InstallmentNumber == n {
			return in
		}
	}
	return nil
}

// NextUnpaid returns the lowest numbered unpaid installment, or nil.
func (ps *PaymentStatus) NextUnpaid() *PaymentInstallment {
	ps.SortInstallments()
	for _, in := range ps.Installments {
		if !in.Paid {
			return in
		}
	}
	return nil
}

// AllPaid reports whether every installment is paid. Plans without rows report by state.
func (ps *PaymentStatus) AllPaid() bool {
	if len(ps.Installments) == 0 {
		return ps.Status == StateComplete
	}
	for _, in := range ps.Installments {
		if !in.Paid {
			return false
		}
	}
	return true
}

func (ps *PaymentStatus) SortInstallments() {
	sort.Slice(ps.Installments, func(i, j int) bool {
		return ps.Installments[i].InstallmentNumber < ps.Installments[j].InstallmentNumber
	})
}

// ValidInstallments checks numbers are unique and contiguous from 1.
func (ps *PaymentStatus) ValidInstallments() bool {
	ps.SortInstallments()
	for i, in := range ps.Installments {
		if in.InstallmentNumber != i+1 {
			return false
		}
	}
	return true
}

// MarkPaid flips an installment to paid. It reports false when it already was.
func (in *PaymentInstallment) MarkPaid(at time.Time) bool {
	if in.Paid {
		return false
	}
	in.Paid = true
	in.PaidAt = &at
	return true
}

// ShiftUnpaidDueDates re-anchors every unpaid installment to cohortStart plus the
// plan's month offset for that installment.
func (ps *PaymentStatus) ShiftUnpaidDueDates(cohortStart time.Time) []*PaymentInstallment {
	var changed []*PaymentInstallment
	for _, in := range ps.Installments {
		if in.Paid {
			continue
		}
		due := AddMonths(cohortStart, MonthOffset(ps.Plan, in.InstallmentNumber))
		if !due.Equal(in.DueDate) {
			in.DueDate = due
			changed = append(changed, in)
		}
	}
	return changed
}

// Purchase records that a user paid for access to a course.
type Purchase struct {
	ID            string
	UserID        string
	CourseID      string
	TransactionID string
	CreatedAt     time.Time
}
