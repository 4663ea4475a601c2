// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Initiate opens (or reuses) a gateway checkout for the next payment of an enrollment.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// Verify settles a transaction by reference. It is idempotent.
	Verify(ctx context.Context, reference string) (*VerifyOutcome, error)
	GetPaymentStatus(ctx context.Context, userID, courseID string) (*PaymentStatusView, error)
	// GetPaymentLink returns the checkout URL of a still usable pending transaction.
	GetPaymentLink(ctx context.Context, userID, courseID string) (*PaymentLink, error)
	GetPurchaseStatus(ctx context.Context, userID, courseID string) (*PurchaseStatus, error)
	// HandleWebhook checks and dispatches a gateway webhook delivery.
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
	// SweepStalePending re-checks pending transactions older than the reuse window and
	// settles or expires them.
	SweepStalePending(ctx context.Context, now time.Time) (SweepReport, error)
}

type InitiateRequest struct {
	UserID            string
	CourseID          string
	PlanType          string
	CohortName        string
	InstallmentNumber int // 0 picks the next unpaid installment
}

type InitiateResult struct {
	AuthorizationURL  string
	Reference         string
	Amount            int64
	Currency          string
	Plan              model.PaymentPlan
	InstallmentNumber int
	Reused            bool
}

type VerifyOutcome struct {
	Status           model.TransactionStatus
	Transaction      *model.PaystackTransaction
	PaymentStatus    *model.PaymentStatus
	AlreadyProcessed bool
	// Previous is the status before this verification; empty when nothing changed.
	Previous model.PaymentState
	Notify   model.NotificationKind
}

type PaymentStatusView struct {
	Status      *model.PaymentStatus
	Total       int64
	AmountPaid  int64
	NextNumber  int // 0 when nothing is left to pay
	NextAmount  int64
	NextDueDate *time.Time
	HasAccess   bool
}

type PaymentLink struct {
	Reference         string
	AuthorizationURL  string
	Amount            int64
	InstallmentNumber int
	ExpiresAt         time.Time
}

type PurchaseStatus struct {
	Purchased   bool
	PurchasedAt *time.Time
	Status      model.PaymentState // empty when no payment status exists
	Plan        model.PaymentPlan
}

type WebhookResult struct {
	Event   string
	Handled bool
	// LateCharge is set when the gateway reports a charge on a checkout already closed
	// as failed or expired. Nothing is settled; the operator is alerted instead.
	LateCharge bool
}

type SweepReport struct {
	Checked   int
	Succeeded int
	Expired   int
	Errors    int
}

// PaymentConfig is the slice of billing config the payment engine needs.
type PaymentConfig struct {
	Currency           string
	CallbackURL        string
	PendingReuseWindow time.Duration
	InitiateRateLimit  int
	SweepBatchSize     int
	LockTTL            time.Duration
	// LockWait bounds how long a duplicate initiation waits for the one holding the lock.
	LockWait time.Duration
	// AlertEmail receives operator alerts such as charges on closed checkouts.
	AlertEmail string
}

// PaymentDeps groups the collaborators of the payment engine.
type PaymentDeps struct {
	Statuses    repository.PaymentStatusRepository
	Txs         repository.TransactionRepository
	Cohorts     repository.CohortRepository
	UserCohorts repository.UserCohortRepository
	Purchases   repository.PurchaseRepository
	Users       repository.UserRepository
	Gateway     adapter.PaymentGateway
	Notifier    adapter.Notifier
	Locker      adapter.Locker      // optional
	Limiter     adapter.RateLimiter // optional
	TM          repository.TransactionManager
	Catalog     *model.Catalog
}

type paymentUC struct {
	PaymentDeps
	cfg    PaymentConfig
	notify notificationSender
	log    *zerolog.Logger
}

func NewPaymentUseCase(deps PaymentDeps, cfg PaymentConfig, logger *zerolog.Logger) *paymentUC {
	if cfg.PendingReuseWindow <= 0 {
		cfg.PendingReuseWindow = 30 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 500
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	if deps.Catalog == nil {
		deps.Catalog = model.NewCatalog(model.DefaultPlanAmounts())
	}
	l := logger.With().Str("component", "payment_uc").Logger()
	return &paymentUC{
		PaymentDeps: deps,
		cfg:         cfg,
		notify:      notificationSender{notifier: deps.Notifier, log: &l},
		log:         &l,
	}
}

var settleTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// NewReference returns a fresh gateway reference.
func NewReference() string {
	return "cp_" + strings.ToLower(ulid.Make().String())
}

// -----------------------------
// Initiate
// -----------------------------

func (u *paymentUC) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.UserID == "" || req.CourseID == "" || req.PlanType == "" || req.InstallmentNumber < 0 {
		return nil, fmt.Errorf("%w: userId, courseId and planType are required", domain.ErrInvalidArgument)
	}
	plan, err := model.PlanFromType(req.PlanType)
	if err != nil {
		return nil, err
	}
	log := u.log.With().Str("user_id", req.UserID).Str("course_id", req.CourseID).Str("plan", string(plan)).Logger()

	if u.Limiter != nil && u.cfg.InitiateRateLimit > 0 {
		ok, err := u.Limiter.Allow(ctx, "rate_limit:initiate:"+req.UserID, u.cfg.InitiateRateLimit, time.Minute)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable; allowing request")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	user, err := u.Users.FindByID(ctx, repository.NoTX, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	if u.Locker != nil {
		key := "initiate:" + req.UserID + ":" + req.CourseID
		token, err := u.waitLock(ctx, key)
		switch {
		case errors.Is(err, domain.ErrInProgress):
			return nil, err
		case err != nil:
			log.Warn().Err(err).Msg("initiate lock unavailable; continuing without it")
		default:
			defer func() {
				if err := u.Locker.Unlock(context.Background(), key, token); err != nil {
					log.Debug().Err(err).Msg("initiate unlock failed")
				}
			}()
		}
	}

	ps, err := u.Statuses.FindByUserCourse(ctx, repository.NoTX, req.UserID, req.CourseID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if errors.Is(err, domain.ErrNotFound) {
		ps = nil
	}
	if ps != nil {
		if ps.Plan != plan {
			return nil, fmt.Errorf("%w: enrolled on %s", domain.ErrPlanMismatch, ps.Plan)
		}
		if ps.Status == model.StateComplete {
			return nil, domain.ErrAlreadyPaid
		}
	}

	var (
		cohort *model.Cohort
		start  time.Time
		now    = time.Now().UTC()
	)
	if ps == nil {
		cohort, start, err = u.resolveCohort(ctx, req.CourseID, req.CohortName)
		if err != nil {
			return nil, err
		}
	}
	pricing := u.Catalog.Pricing(plan, start)

	n, amount, err := nextPayment(ps, pricing, req.InstallmentNumber)
	if err != nil {
		return nil, err
	}

	// a pending checkout for the same payment is handed out again
	since := now.Add(-u.cfg.PendingReuseWindow)
	if pending, err := u.Txs.FindReusablePending(ctx, repository.NoTX, req.UserID, req.CourseID, since); err == nil {
		if pending.Metadata.PaymentPlan == plan && pending.Metadata.InstallmentNumber == n && pending.AuthorizationURL != "" {
			log.Info().Str("reference", pending.Reference).Msg("reusing pending transaction")
			return &InitiateResult{
				AuthorizationURL:  pending.AuthorizationURL,
				Reference:         pending.Reference,
				Amount:            pending.Amount,
				Currency:          pending.Currency,
				Plan:              plan,
				InstallmentNumber: n,
				Reused:            true,
			}, nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	meta := model.TransactionMetadata{
		UserID:            req.UserID,
		CourseID:          req.CourseID,
		PaymentPlan:       plan,
		InstallmentNumber: n,
		CohortName:        req.CohortName,
	}
	var cohortID *string
	switch {
	case ps != nil && ps.CohortID != nil:
		meta.CohortID = *ps.CohortID
		cohortID = ps.CohortID
	case cohort != nil:
		meta.CohortID = cohort.ID
		meta.CohortName = cohort.Name
		cohortID = &cohort.ID
	}

	reference := NewReference()
	checkout, err := u.Gateway.InitializeTransaction(ctx, adapter.InitRequest{
		Reference:   reference,
		Email:       user.Email,
		AmountMinor: amount * 100,
		Currency:    u.cfg.Currency,
		CallbackURL: u.cfg.CallbackURL,
		Metadata:    meta.Map(),
	})
	if err != nil {
		return nil, err
	}
	if checkout.Reference != "" {
		reference = checkout.Reference
	}

	t := &model.PaystackTransaction{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		CourseID:         req.CourseID,
		Reference:        reference,
		Status:           model.TransactionPending,
		Amount:           amount,
		Currency:         u.cfg.Currency,
		Metadata:         meta,
		AuthorizationURL: checkout.AuthorizationURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = u.TM.WithTx(ctx, settleTxOptions, func(ctx context.Context, tx repository.Tx) error {
		if ps == nil {
			fresh, err := model.NewPaymentStatus(uuid.NewString(), req.UserID, req.CourseID, cohortID, pricing, now)
			if err != nil {
				return err
			}
			fresh.DesiredStartDate = &start
			created, err := u.Statuses.Create(ctx, tx, fresh)
			if err != nil {
				return err
			}
			if !created {
				// a concurrent request created it first
				existing, err := u.Statuses.FindByUserCourse(ctx, tx, req.UserID, req.CourseID)
				if err != nil {
					return err
				}
				if existing.Plan != plan {
					return fmt.Errorf("%w: enrolled on %s", domain.ErrPlanMismatch, existing.Plan)
				}
			}
		}
		return u.Txs.Save(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("reference", reference).Int("installment", n).Int64("amount", amount).Msg("payment initiated")
	return &InitiateResult{
		AuthorizationURL:  checkout.AuthorizationURL,
		Reference:         reference,
		Amount:            amount,
		Currency:          u.cfg.Currency,
		Plan:              plan,
		InstallmentNumber: n,
	}, nil
}

const lockPoll = 100 * time.Millisecond

// waitLock retries a busy lock until LockWait runs out. Once the first request finishes
// its pending checkout is found by the reuse lookup, so a double click gets the same URL.
func (u *paymentUC) waitLock(ctx context.Context, key string) (string, error) {
	deadline := time.Now().Add(u.cfg.LockWait)
	for {
		token, err := u.Locker.TryLock(ctx, key, u.cfg.LockTTL)
		if !errors.Is(err, domain.ErrInProgress) || !time.Now().Before(deadline) {
			return token, err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

// resolveCohort finds the cohort start a new enrollment's schedule is anchored to.
// A known cohort row wins, otherwise the name is parsed. A new enrollment must name
// its cohort.
func (u *paymentUC) resolveCohort(ctx context.Context, courseID, name string) (*model.Cohort, time.Time, error) {
	if strings.TrimSpace(name) == "" {
		return nil, time.Time{}, fmt.Errorf("%w: cohortName is required for a new enrollment", domain.ErrInvalidArgument)
	}
	c, err := u.Cohorts.FindByCourseAndName(ctx, repository.NoTX, courseID, name)
	if err == nil {
		return c, c.StartDate, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, time.Time{}, err
	}
	start, err := model.ParseCohortName(name, u.Catalog.AnchorDay())
	if err != nil {
		return nil, time.Time{}, err
	}
	return nil, start, nil
}

// nextPayment picks the installment number and amount to charge.
func nextPayment(ps *model.PaymentStatus, pricing model.PlanPricing, requested int) (int, int64, error) {
	plan := pricing.Plan
	switch {
	case plan == model.PlanFullPayment:
		if requested > 1 {
			return 0, 0, fmt.Errorf("%w: full payment has a single installment", domain.ErrInvalidArgument)
		}
		return 1, pricing.Total, nil

	case plan == model.PlanFirstHalfComplete:
		firstPaid := ps != nil && (ps.SecondPaymentDueDate != nil || ps.Status == model.StateBalanceHalfPayment)
		n := requested
		if n == 0 {
			n = 1
			if firstPaid {
				n = 2
			}
		}
		switch {
		case n > 2:
			return 0, 0, fmt.Errorf("%w: half payment has two installments", domain.ErrInvalidArgument)
		case n == 1 && firstPaid:
			return 0, 0, domain.ErrAlreadyPaid
		case n == 2 && !firstPaid:
			return 0, 0, fmt.Errorf("%w: first half is not paid yet", domain.ErrInvalidArgument)
		}
		amt, err := pricing.AmountFor(n)
		return n, amt, err

	case ps == nil:
		if requested > 1 {
			return 0, 0, fmt.Errorf("%w: installment 1 must be paid first", domain.ErrInvalidArgument)
		}
		amt, err := pricing.AmountFor(1)
		return 1, amt, err
	}

	next := ps.NextUnpaid()
	if next == nil {
		return 0, 0, domain.ErrAlreadyPaid
	}
	n := requested
	if n == 0 {
		n = next.InstallmentNumber
	}
	in := ps.Installment(n)
	switch {
	case in == nil:
		return 0, 0, fmt.Errorf("%w: %w %d", domain.ErrInvalidArgument, domain.ErrInstallmentNotFound, n)
	case in.Paid:
		return 0, 0, domain.ErrAlreadyPaid
	case n != next.InstallmentNumber:
		return 0, 0, fmt.Errorf("%w: installment %d must be paid first", domain.ErrInvalidArgument, next.InstallmentNumber)
	}
	return n, in.Amount, nil
}

// -----------------------------
// Verify
// -----------------------------

func (u *paymentUC) Verify(ctx context.Context, reference string) (*VerifyOutcome, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", domain.ErrInvalidArgument)
	}
	t, err := u.Txs.FindByReference(ctx, repository.NoTX, reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}

	switch t.Status {
	case model.TransactionSuccess:
		return u.cached(ctx, t)
	case model.TransactionFailed, model.TransactionExpired:
		// terminal transactions are never written again
		return &VerifyOutcome{Status: t.Status, Transaction: t}, domain.ErrGatewayVerificationFailed
	}

	res, err := u.Gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	return u.settle(ctx, t, res)
}

// settle applies a gateway verification result to a pending transaction.
func (u *paymentUC) settle(ctx context.Context, t *model.PaystackTransaction, res adapter.VerifyResult) (*VerifyOutcome, error) {
	log := u.log.With().Str("reference", t.Reference).Str("user_id", t.UserID).Logger()

	if res.OK() && res.AmountMinor != 0 && res.AmountMinor != t.Amount*100 {
		log.Error().Int64("expected", t.Amount*100).Int64("got", res.AmountMinor).Msg("gateway amount mismatch")
		res.Status = adapter.VerifyFailed
		res.GatewayResponse = "amount mismatch"
	}

	if !res.OK() {
		if res.Status == adapter.VerifyFailed {
			if _, err := u.Txs.UpdateStatusIfPending(ctx, repository.NoTX, t.ID, model.TransactionFailed, res.GatewayResponse, nil); err != nil {
				return nil, err
			}
			t.Status = model.TransactionFailed
		}
		log.Info().Str("gateway_status", string(res.Status)).Msg("payment not successful")
		return &VerifyOutcome{Status: t.Status, Transaction: t}, domain.ErrGatewayVerificationFailed
	}

	paidAt := time.Now().UTC()
	if res.PaidAt != nil {
		paidAt = res.PaidAt.UTC()
	}

	out, err := u.apply(ctx, t, res.GatewayResponse, paidAt)
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		log.Warn().Msg("payment status changed concurrently; retrying once")
		out, err = u.apply(ctx, t, res.GatewayResponse, paidAt)
	}
	if err != nil {
		return nil, err
	}
	if out.AlreadyProcessed {
		return u.cached(ctx, t)
	}

	log.Info().Str("from", string(out.Previous)).Str("to", string(out.PaymentStatus.Status)).Msg("payment verified")
	u.sendPaymentNotice(ctx, out)
	return out, nil
}

// apply runs one settlement attempt inside a database transaction.
func (u *paymentUC) apply(ctx context.Context, t *model.PaystackTransaction, gatewayResponse string, paidAt time.Time) (*VerifyOutcome, error) {
	out := &VerifyOutcome{Transaction: t}
	err := u.TM.WithTx(ctx, settleTxOptions, func(ctx context.Context, tx repository.Tx) error {
		won, err := u.Txs.UpdateStatusIfPending(ctx, tx, t.ID, model.TransactionSuccess, gatewayResponse, &paidAt)
		if err != nil {
			return err
		}
		if !won {
			out.AlreadyProcessed = true
			return nil
		}

		ps, err := u.Statuses.FindForUpdate(ctx, tx, t.UserID, t.CourseID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrPaymentStatusNotFound
			}
			return err
		}

		user, err := u.Users.FindByID(ctx, tx, t.UserID)
		if err != nil {
			return err
		}
		if user.Inactive {
			if err := u.Users.SetInactive(ctx, tx, user.ID, false, nil); err != nil {
				return err
			}
			user.Reactivate()
		}

		applied, err := u.applyInstallmentPayment(ctx, tx, ps, t, paidAt)
		if err != nil {
			return err
		}
		out.PaymentStatus = ps
		out.AlreadyProcessed = applied.alreadyProcessed
		out.Previous = applied.previous
		out.Notify = applied.outcome.Notify
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.AlreadyProcessed {
		t.Status = model.TransactionSuccess
		t.PaidAt = &paidAt
		t.GatewayResponse = gatewayResponse
	}
	out.Status = t.Status
	return out, nil
}

func (u *paymentUC) cached(ctx context.Context, t *model.PaystackTransaction) (*VerifyOutcome, error) {
	fresh, err := u.Txs.FindByReference(ctx, repository.NoTX, t.Reference)
	if err != nil {
		return nil, err
	}
	out := &VerifyOutcome{Status: fresh.Status, Transaction: fresh, AlreadyProcessed: true}
	if ps, err := u.Statuses.FindByUserCourse(ctx, repository.NoTX, fresh.UserID, fresh.CourseID); err == nil {
		out.PaymentStatus = ps
	}
	if fresh.Status != model.TransactionSuccess {
		return out, domain.ErrGatewayVerificationFailed
	}
	return out, nil
}

// -----------------------------
// Read models
// -----------------------------

func (u *paymentUC) GetPaymentStatus(ctx context.Context, userID, courseID string) (*PaymentStatusView, error) {
	if userID == "" || courseID == "" {
		return nil, fmt.Errorf("%w: userId and courseId are required", domain.ErrInvalidArgument)
	}
	ps, err := u.Statuses.FindByUserCourse(ctx, repository.NoTX, userID, courseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPaymentStatusNotFound
		}
		return nil, err
	}
	return u.statusView(ps), nil
}

func (u *paymentUC) statusView(ps *model.PaymentStatus) *PaymentStatusView {
	v := &PaymentStatusView{
		Status:    ps,
		HasAccess: ps.Status == model.StateBalanceHalfPayment || ps.Status == model.StateComplete,
	}
	pricing := u.Catalog.Pricing(ps.Plan, time.Time{})

	switch ps.Plan {
	case model.PlanFullPayment:
		v.Total = pricing.Total
		if ps.Status == model.StateComplete {
			v.AmountPaid = v.Total
		} else {
			v.NextNumber, v.NextAmount = 1, pricing.Total
		}
	case model.PlanFirstHalfComplete:
		v.Total = pricing.Total
		second := pricing.Total - pricing.InitialAmount
		switch {
		case ps.Status == model.StateComplete:
			v.AmountPaid = v.Total
		case ps.SecondPaymentDueDate != nil || ps.Status == model.StateBalanceHalfPayment:
			v.AmountPaid = pricing.InitialAmount
			v.NextNumber, v.NextAmount, v.NextDueDate = 2, second, ps.SecondPaymentDueDate
		default:
			v.NextNumber, v.NextAmount = 1, pricing.InitialAmount
		}
	default:
		for _, in := range ps.Installments {
			v.Total += in.Amount
			if in.Paid {
				v.AmountPaid += in.Amount
			}
		}
		if next := ps.NextUnpaid(); next != nil {
			due := next.DueDate
			v.NextNumber, v.NextAmount, v.NextDueDate = next.InstallmentNumber, next.Amount, &due
		}
	}
	return v
}

func (u *paymentUC) GetPaymentLink(ctx context.Context, userID, courseID string) (*PaymentLink, error) {
	if userID == "" || courseID == "" {
		return nil, fmt.Errorf("%w: userId and courseId are required", domain.ErrInvalidArgument)
	}
	since := time.Now().UTC().Add(-u.cfg.PendingReuseWindow)
	t, err := u.Txs.FindReusablePending(ctx, repository.NoTX, userID, courseID, since)
	if err != nil {
		return nil, err
	}
	if t.AuthorizationURL == "" {
		return nil, domain.ErrNotFound
	}
	return &PaymentLink{
		Reference:         t.Reference,
		AuthorizationURL:  t.AuthorizationURL,
		Amount:            t.Amount,
		InstallmentNumber: t.Metadata.InstallmentNumber,
		ExpiresAt:         t.CreatedAt.Add(u.cfg.PendingReuseWindow),
	}, nil
}

func (u *paymentUC) GetPurchaseStatus(ctx context.Context, userID, courseID string) (*PurchaseStatus, error) {
	if userID == "" || courseID == "" {
		return nil, fmt.Errorf("%w: userId and courseId are required", domain.ErrInvalidArgument)
	}
	out := &PurchaseStatus{}
	p, err := u.Purchases.FindByUserCourse(ctx, repository.NoTX, userID, courseID)
	switch {
	case err == nil:
		out.Purchased = true
		at := p.CreatedAt
		out.PurchasedAt = &at
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	ps, err := u.Statuses.FindByUserCourse(ctx, repository.NoTX, userID, courseID)
	switch {
	case err == nil:
		out.Status = ps.Status
		out.Plan = ps.Plan
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return out, nil
}

// -----------------------------
// Webhook & sweep
// -----------------------------

func (u *paymentUC) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	ev, err := u.Gateway.ParseWebhook(body, signature)
	if err != nil {
		return nil, err
	}
	res := &WebhookResult{Event: ev.Type}
	if ev.Type != adapter.WebhookChargeSuccess || ev.Reference == "" {
		u.log.Debug().Str("event", ev.Type).Msg("ignoring webhook event")
		return res, nil
	}

	out, err := u.Verify(ctx, ev.Reference)
	switch {
	case err == nil:
		res.Handled = true
		return res, nil
	case errors.Is(err, domain.ErrTransactionNotFound):
		// not one of ours; acknowledge so the gateway stops retrying
		u.log.Warn().Str("reference", ev.Reference).Msg("webhook for unknown reference")
		return res, nil
	case errors.Is(err, domain.ErrGatewayVerificationFailed):
		if out != nil && out.Transaction != nil && closed(out.Transaction.Status) {
			res.LateCharge = true
			u.reportLateCharge(ctx, out.Transaction)
		}
		return res, nil
	}
	return nil, err
}

func closed(s model.TransactionStatus) bool {
	return s == model.TransactionFailed || s == model.TransactionExpired
}

// reportLateCharge raises a charge the gateway captured on a closed checkout. The
// transaction stays closed; refunding or granting access is an operator decision.
func (u *paymentUC) reportLateCharge(ctx context.Context, t *model.PaystackTransaction) {
	u.log.Error().
		Str("reference", t.Reference).
		Str("user_id", t.UserID).
		Str("course_id", t.CourseID).
		Str("transaction_status", string(t.Status)).
		Int64("amount", t.Amount).
		Msg("charge succeeded on a closed transaction")
	if u.cfg.AlertEmail == "" {
		return
	}
	data := map[string]any{
		"Reference":         t.Reference,
		"UserID":            t.UserID,
		"CourseID":          t.CourseID,
		"Status":            string(t.Status),
		"Amount":            t.Amount,
		"Currency":          t.Currency,
		"Plan":              string(t.Metadata.PaymentPlan),
		"InstallmentNumber": t.Metadata.InstallmentNumber,
	}
	if user, err := u.Users.FindByID(ctx, repository.NoTX, t.UserID); err == nil {
		data["Name"] = user.DisplayName()
		data["Email"] = user.Email
	}
	u.notify.send(ctx, adapter.Notification{Template: string(model.NotifyLateCharge), To: u.cfg.AlertEmail, Data: data})
}

func (u *paymentUC) SweepStalePending(ctx context.Context, now time.Time) (SweepReport, error) {
	var rep SweepReport
	cutoff := now.Add(-u.cfg.PendingReuseWindow)
	pending, err := u.Txs.ListPendingOlderThan(ctx, repository.NoTX, cutoff, u.cfg.SweepBatchSize)
	if err != nil {
		return rep, err
	}
	for _, t := range pending {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++
		log := u.log.With().Str("reference", t.Reference).Logger()

		res, err := u.Gateway.VerifyTransaction(ctx, t.Reference)
		if err != nil {
			rep.Errors++
			log.Warn().Err(err).Msg("sweep: gateway verify failed; will retry next run")
			continue
		}
		if res.OK() {
			if _, err := u.settle(ctx, t, res); err != nil {
				rep.Errors++
				log.Error().Err(err).Msg("sweep: settle failed")
				continue
			}
			rep.Succeeded++
			continue
		}
		expired, err := u.Txs.UpdateStatusIfPending(ctx, repository.NoTX, t.ID, model.TransactionExpired, res.GatewayResponse, nil)
		if err != nil {
			rep.Errors++
			log.Error().Err(err).Msg("sweep: expire failed")
			continue
		}
		if expired {
			rep.Expired++
		}
	}
	return rep, nil
}
