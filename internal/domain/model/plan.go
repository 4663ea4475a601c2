package model

import (
	"fmt"
	"strings"
	"time"

	"course-payments/internal/domain"
)

// PaymentPlan is the plan a learner chose for a course enrollment.
type PaymentPlan string

const (
	PlanFullPayment       PaymentPlan = "FULL_PAYMENT"
	PlanFirstHalfComplete PaymentPlan = "FIRST_HALF_COMPLETE"
	PlanThreeInstallments PaymentPlan = "THREE_INSTALLMENTS"
	PlanFourInstallments  PaymentPlan = "FOUR_INSTALLMENTS"
)

// Request tokens accepted by the HTTP surface.
const (
	PlanTypeFull             = "FULL"
	PlanTypeHalf             = "HALF"
	PlanTypeThreeInstallment = "THREE_INSTALLMENT"
	PlanTypeInstallment      = "INSTALLMENT"
)

var planTypes = map[string]PaymentPlan{
	PlanTypeFull:             PlanFullPayment,
	PlanTypeHalf:             PlanFirstHalfComplete,
	PlanTypeThreeInstallment: PlanThreeInstallments,
	PlanTypeInstallment:      PlanFourInstallments,
}

// PlanFromType maps a request token (FULL, HALF, ...) to a PaymentPlan.
// Stored plan names are accepted too so admin tooling can pass either.
func PlanFromType(token string) (PaymentPlan, error) {
	t := strings.ToUpper(strings.TrimSpace(token))
	if p, ok := planTypes[t]; ok {
		return p, nil
	}
	if p := PaymentPlan(t); p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidPlanType, token)
}

func (p PaymentPlan) Valid() bool {
	switch p {
	case PlanFullPayment, PlanFirstHalfComplete, PlanThreeInstallments, PlanFourInstallments:
		return true
	}
	return false
}

// IsInstallmentPlan reports whether the plan is backed by installment rows.
func (p PaymentPlan) IsInstallmentPlan() bool {
	return p == PlanThreeInstallments || p == PlanFourInstallments
}

// InstallmentCount is the number of payments the plan takes.
func (p PaymentPlan) InstallmentCount() int {
	switch p {
	case PlanFullPayment:
		return 1
	case PlanFirstHalfComplete:
		return 2
	case PlanThreeInstallments:
		return 3
	case PlanFourInstallments:
		return 4
	}
	return 0
}

// AccessInstallment is the installment whose payment unlocks course content.
func (p PaymentPlan) AccessInstallment() int {
	if p == PlanFourInstallments {
		return 2
	}
	return 1
}

func (p PaymentPlan) IsFinalInstallment(n int) bool {
	return n == p.InstallmentCount()
}

// InstallmentSpec is one row of a plan's schedule.
type InstallmentSpec struct {
	Number      int
	Amount      int64
	MonthOffset int
	DueDate     time.Time
}

// PlanPricing is the resolved price of a plan against a concrete cohort start date.
type PlanPricing struct {
	Plan          PaymentPlan
	Total         int64
	InitialAmount int64
	Installments  []InstallmentSpec
}

// AmountFor returns the amount due for installment n. For the full plan n must be 1;
// for the half plan n is 1 or 2.
func (pp PlanPricing) AmountFor(n int) (int64, error) {
	switch pp.Plan {
	case PlanFullPayment:
		if n == 1 {
			return pp.Total, nil
		}
	case PlanFirstHalfComplete:
		if n == 1 {
			return pp.InitialAmount, nil
		}
		if n == 2 {
			return pp.Total - pp.InitialAmount, nil
		}
	default:
		for _, in := range pp.Installments {
			if in.Number == n {
				return in.Amount, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: installment %d for %s", domain.ErrInstallmentNotFound, n, pp.Plan)
}

// PlanAmounts configures the price split for every plan, in major currency units.
type PlanAmounts struct {
	Full   int64
	Half   [2]int64
	Three  [3]int64
	Four   [4]int64
	Anchor int // day-of-month cohorts start on
}

func DefaultPlanAmounts() PlanAmounts {
	return PlanAmounts{
		Full:   250000,
		Half:   [2]int64{125000, 125000},
		Three:  [3]int64{85000, 85000, 80000},
		Four:   [4]int64{30000, 55000, 85000, 80000},
		Anchor: 6,
	}
}

var (
	threeOffsets = [3]int{0, 1, 2}
	// the first two installments are both due at cohort start
	fourOffsets = [4]int{0, 0, 1, 2}
)

// Catalog resolves plan pricing. It has no side effects.
type Catalog struct {
	amounts PlanAmounts
}

func NewCatalog(amounts PlanAmounts) *Catalog {
	if amounts.Anchor <= 0 || amounts.Anchor > 28 {
		amounts.Anchor = DefaultPlanAmounts().Anchor
	}
	return &Catalog{amounts: amounts}
}

func (c *Catalog) AnchorDay() int { return c.amounts.Anchor }

// ResolvePlanPricing returns the amounts and installment schedule of a plan for a cohort
// starting at cohortStart.
func (c *Catalog) ResolvePlanPricing(planType string, cohortStart time.Time) (PlanPricing, error) {
	plan, err := PlanFromType(planType)
	if err != nil {
		return PlanPricing{}, err
	}
	return c.Pricing(plan, cohortStart), nil
}

// Pricing is ResolvePlanPricing for an already validated plan.
func (c *Catalog) Pricing(plan PaymentPlan, cohortStart time.Time) PlanPricing {
	a := c.amounts
	switch plan {
	case PlanFullPayment:
		return PlanPricing{Plan: plan, Total: a.Full, InitialAmount: a.Full}
	case PlanFirstHalfComplete:
		return PlanPricing{Plan: plan, Total: a.Half[0] + a.Half[1], InitialAmount: a.Half[0]}
	case PlanThreeInstallments:
		return installmentPricing(plan, a.Three[:], threeOffsets[:], cohortStart)
	case PlanFourInstallments:
		return installmentPricing(plan, a.Four[:], fourOffsets[:], cohortStart)
	}
	return PlanPricing{Plan: plan}
}

// MonthOffset returns the month offset from cohort start of installment n.
func MonthOffset(plan PaymentPlan, n int) int {
	switch plan {
	case PlanThreeInstallments:
		if n >= 1 && n <= len(threeOffsets) {
			return threeOffsets[n-1]
		}
	case PlanFourInstallments:
		if n >= 1 && n <= len(fourOffsets) {
			return fourOffsets[n-1]
		}
	case PlanFirstHalfComplete:
		if n == 2 {
			return 1
		}
	}
	return 0
}

func installmentPricing(plan PaymentPlan, amounts []int64, offsets []int, start time.Time) PlanPricing {
	pp := PlanPricing{Plan: plan, Installments: make([]InstallmentSpec, 0, len(amounts))}
	for i, amt := range amounts {
		pp.Total += amt
		pp.Installments = append(pp.Installments, InstallmentSpec{
			Number:      i + 1,
			Amount:      amt,
			MonthOffset: offsets[i],
			DueDate:     AddMonths(start, offsets[i]),
		})
	}
	pp.InitialAmount = amounts[0]
	return pp
}

// AddMonths adds n calendar months to t, clamping to the last day of the target month
// (Jan 31 + 1 month is the last day of February).
func AddMonths(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
