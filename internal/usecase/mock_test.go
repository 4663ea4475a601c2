//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneStatus(ps *model.PaymentStatus) *model.PaymentStatus {
	cp := *ps
	cp.CohortID = nil
	if ps.CohortID != nil {
		cp.CohortID = strPtr(*ps.CohortID)
	}
	cp.SecondPaymentDueDate = cloneTime(ps.SecondPaymentDueDate)
	cp.DesiredStartDate = cloneTime(ps.DesiredStartDate)
	cp.LastReminderSent = cloneTime(ps.LastReminderSent)
	cp.Installments = make([]*model.PaymentInstallment, len(ps.Installments))
	for i, in := range ps.Installments {
		c := *in
		c.PaidAt = cloneTime(in.PaidAt)
		c.LastReminderSent = cloneTime(in.LastReminderSent)
		cp.Installments[i] = &c
	}
	return &cp
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu          sync.Mutex
	Initialized map[string]adapter.InitRequest
	VerifyCalls int

	InitializeFunc func(ctx context.Context, req adapter.InitRequest) (adapter.InitResult, error)
	VerifyFunc     func(ctx context.Context, reference string) (adapter.VerifyResult, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{Initialized: map[string]adapter.InitRequest{}}
}

func (m *MockPaymentGateway) Name() string { return "mock" }

func (m *MockPaymentGateway) InitializeTransaction(ctx context.Context, req adapter.InitRequest) (adapter.InitResult, error) {
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Initialized[req.Reference] = req
	return adapter.InitResult{
		Reference:        req.Reference,
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
	}, nil
}

// VerifyTransaction reports success with the initialized amount unless overridden.
func (m *MockPaymentGateway) VerifyTransaction(ctx context.Context, reference string) (adapter.VerifyResult, error) {
	m.mu.Lock()
	m.VerifyCalls++
	req, ok := m.Initialized[reference]
	m.mu.Unlock()
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, reference)
	}
	if !ok {
		return adapter.VerifyResult{Status: adapter.VerifyFailed, Reference: reference, GatewayResponse: "unknown"}, nil
	}
	now := time.Now().UTC()
	return adapter.VerifyResult{
		Status:          adapter.VerifySuccess,
		Reference:       reference,
		AmountMinor:     req.AmountMinor,
		Currency:        req.Currency,
		PaidAt:          &now,
		GatewayResponse: "Approved",
	}, nil
}

func (m *MockPaymentGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return signature == "valid"
}

func (m *MockPaymentGateway) ParseWebhook(body []byte, signature string) (adapter.WebhookEvent, error) {
	if !m.VerifyWebhookSignature(body, signature) {
		return adapter.WebhookEvent{}, domain.ErrInvalidSignature
	}
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return adapter.WebhookEvent{Type: payload.Event, Reference: payload.Data.Reference}, nil
}

// ---- Mock Notifier ----

type MockNotifier struct {
	mu   sync.Mutex
	Sent []adapter.Notification

	SendFunc func(ctx context.Context, n adapter.Notification) error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Send(ctx context.Context, n adapter.Notification) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
	return nil
}

func (m *MockNotifier) ByTemplate(template string) []adapter.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []adapter.Notification
	for _, n := range m.Sent {
		if n.Template == template {
			out = append(out, n)
		}
	}
	return out
}

// =============================
// Repositories
// =============================

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	data map[string]*model.User

	SetInactiveFunc func(ctx context.Context, tx repository.Tx, id string, inactive bool, at *time.Time) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{data: map[string]*model.User{}}
}

func (r *MockUserRepo) Put(u *model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.data[u.ID] = &cp
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MockUserRepo) SetInactive(ctx context.Context, tx repository.Tx, id string, inactive bool, at *time.Time) error {
	if r.SetInactiveFunc != nil {
		return r.SetInactiveFunc(ctx, tx, id, inactive, at)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Inactive = inactive
	u.DeactivatedAt = cloneTime(at)
	return nil
}

func (r *MockUserRepo) CountInactiveSince(ctx context.Context, tx repository.Tx, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.data {
		if u.Inactive && u.DeactivatedAt != nil && !u.DeactivatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ---- Mock CohortRepository ----

type MockCohortRepo struct {
	mu      sync.Mutex
	cohorts map[string]*model.Cohort
	courses map[string]*model.Course
}

var _ repository.CohortRepository = (*MockCohortRepo)(nil)

func NewMockCohortRepo() *MockCohortRepo {
	return &MockCohortRepo{cohorts: map[string]*model.Cohort{}, courses: map[string]*model.Course{}}
}

func (r *MockCohortRepo) PutCohort(c *model.Cohort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.cohorts[c.ID] = &cp
}

func (r *MockCohortRepo) PutCourse(c *model.Course) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.courses[c.ID] = &cp
}

func (r *MockCohortRepo) start(id string) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cohorts[id]; ok {
		s := c.StartDate
		return &s
	}
	return nil
}

func (r *MockCohortRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Cohort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cohorts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MockCohortRepo) FindByCourseAndName(ctx context.Context, tx repository.Tx, courseID, name string) (*model.Cohort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cohorts {
		if c.CourseID == courseID && c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockCohortRepo) NextAfter(ctx context.Context, tx repository.Tx, courseID, cohortID string) (*model.Cohort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.cohorts[cohortID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	var best *model.Cohort
	for _, c := range r.cohorts {
		if c.CourseID != courseID || !c.StartDate.After(cur.StartDate) {
			continue
		}
		if best == nil || c.StartDate.Before(best.StartDate) {
			best = c
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *MockCohortRepo) FindCourse(ctx context.Context, tx repository.Tx, courseID string) (*model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[courseID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ---- Mock UserCohortRepository ----

type MockUserCohortRepo struct {
	mu   sync.Mutex
	data map[string]*model.UserCohort // key user|course
}

var _ repository.UserCohortRepository = (*MockUserCohortRepo)(nil)

func NewMockUserCohortRepo() *MockUserCohortRepo {
	return &MockUserCohortRepo{data: map[string]*model.UserCohort{}}
}

func ucKey(userID, courseID string) string { return userID + "|" + courseID }

func (r *MockUserCohortRepo) FindByUserCourse(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.UserCohort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uc, ok := r.data[ucKey(userID, courseID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *uc
	return &cp, nil
}

func (r *MockUserCohortRepo) Upsert(ctx context.Context, tx repository.Tx, uc *model.UserCohort) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *uc
	r.data[ucKey(uc.UserID, uc.CourseID)] = &cp
	return nil
}

func (r *MockUserCohortRepo) SetPaymentActive(ctx context.Context, tx repository.Tx, userID, courseID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	uc, ok := r.data[ucKey(userID, courseID)]
	if !ok {
		return domain.ErrNotFound
	}
	uc.IsPaymentActive = active
	return nil
}

func (r *MockUserCohortRepo) Reassign(ctx context.Context, tx repository.Tx, userID, courseID, cohortID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	uc, ok := r.data[ucKey(userID, courseID)]
	if !ok {
		return domain.ErrNotFound
	}
	uc.CohortID = cohortID
	return nil
}

// ---- Mock PurchaseRepository ----

type MockPurchaseRepo struct {
	mu   sync.Mutex
	data map[string]*model.Purchase // key user|course

	SaveFunc func(ctx context.Context, tx repository.Tx, pur *model.Purchase) error
}

var _ repository.PurchaseRepository = (*MockPurchaseRepo)(nil)

func NewMockPurchaseRepo() *MockPurchaseRepo {
	return &MockPurchaseRepo{data: map[string]*model.Purchase{}}
}

func (r *MockPurchaseRepo) Exists(ctx context.Context, tx repository.Tx, userID, courseID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.data[ucKey(userID, courseID)]
	return ok, nil
}

func (r *MockPurchaseRepo) Save(ctx context.Context, tx repository.Tx, pur *model.Purchase) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, pur)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[ucKey(pur.UserID, pur.CourseID)]; ok {
		return nil
	}
	cp := *pur
	r.data[ucKey(pur.UserID, pur.CourseID)] = &cp
	return nil
}

func (r *MockPurchaseRepo) FindByUserCourse(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[ucKey(userID, courseID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPurchaseRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// ---- Mock PaymentStatusRepository ----

type MockPaymentStatusRepo struct {
	mu      sync.Mutex
	data    map[string]*model.PaymentStatus // by id
	cohorts *MockCohortRepo
	users   *MockUserRepo // ListRecentlyExpired joins on deactivated learners

	UpdateStateFunc         func(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus) (bool, error)
	ListOverdueFunc         func(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*repository.OverdueCandidate, error)
	ListRecentlyExpiredFunc func(ctx context.Context, tx repository.Tx, since time.Time) ([]*model.PaymentStatus, error)
}

var _ repository.PaymentStatusRepository = (*MockPaymentStatusRepo)(nil)

func NewMockPaymentStatusRepo(cohorts *MockCohortRepo) *MockPaymentStatusRepo {
	return &MockPaymentStatusRepo{data: map[string]*model.PaymentStatus{}, cohorts: cohorts}
}

func (r *MockPaymentStatusRepo) byUserCourse(userID, courseID string) *model.PaymentStatus {
	for _, ps := range r.data {
		if ps.UserID == userID && ps.CourseID == courseID {
			return ps
		}
	}
	return nil
}

func (r *MockPaymentStatusRepo) Create(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUserCourse(ps.UserID, ps.CourseID) != nil {
		return false, nil
	}
	for _, in := range ps.Installments {
		if in.ID == "" {
			in.ID = fmt.Sprintf("%s-%d", ps.ID, in.InstallmentNumber)
		}
		in.PaymentStatusID = ps.ID
	}
	r.data[ps.ID] = cloneStatus(ps)
	return true, nil
}

func (r *MockPaymentStatusRepo) FindByUserCourse(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.PaymentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.byUserCourse(userID, courseID)
	if ps == nil {
		return nil, domain.ErrNotFound
	}
	return cloneStatus(ps), nil
}

func (r *MockPaymentStatusRepo) FindForUpdate(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.PaymentStatus, error) {
	return r.FindByUserCourse(ctx, tx, userID, courseID)
}

func (r *MockPaymentStatusRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneStatus(ps), nil
}

func (r *MockPaymentStatusRepo) UpdateState(ctx context.Context, tx repository.Tx, ps *model.PaymentStatus) (bool, error) {
	if r.UpdateStateFunc != nil {
		return r.UpdateStateFunc(ctx, tx, ps)
	}
	return r.updateState(ps)
}

func (r *MockPaymentStatusRepo) updateState(ps *model.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[ps.ID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if cur.Version != ps.Version {
		return false, nil
	}
	cur.Status = ps.Status
	cur.CohortID = nil
	if ps.CohortID != nil {
		cur.CohortID = strPtr(*ps.CohortID)
	}
	cur.SecondPaymentDueDate = cloneTime(ps.SecondPaymentDueDate)
	cur.LastReminderSent = cloneTime(ps.LastReminderSent)
	cur.UpdatedAt = ps.UpdatedAt
	cur.Version++
	ps.Version = cur.Version
	return true, nil
}

func (r *MockPaymentStatusRepo) installment(id string) *model.PaymentInstallment {
	for _, ps := range r.data {
		for _, in := range ps.Installments {
			if in.ID == id {
				return in
			}
		}
	}
	return nil
}

func (r *MockPaymentStatusRepo) MarkInstallmentPaid(ctx context.Context, tx repository.Tx, installmentID string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.installment(installmentID)
	if in == nil {
		return false, domain.ErrNotFound
	}
	return in.MarkPaid(paidAt), nil
}

func (r *MockPaymentStatusRepo) UpdateInstallmentDueDate(ctx context.Context, tx repository.Tx, installmentID string, due time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.installment(installmentID)
	if in == nil {
		return domain.ErrNotFound
	}
	in.DueDate = due
	return nil
}

func (r *MockPaymentStatusRepo) TouchInstallmentReminder(ctx context.Context, tx repository.Tx, installmentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.installment(installmentID)
	if in == nil {
		return domain.ErrNotFound
	}
	in.LastReminderSent = &at
	return nil
}

func (r *MockPaymentStatusRepo) TouchBalanceReminder(ctx context.Context, tx repository.Tx, paymentStatusID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.data[paymentStatusID]
	if !ok {
		return domain.ErrNotFound
	}
	ps.LastReminderSent = &at
	return nil
}

// candidates mirrors the SQL of the real repository: unpaid installments and half plan
// balances of non-terminal statuses with from <= due < to.
func (r *MockPaymentStatusRepo) candidates(from, to time.Time) []*repository.OverdueCandidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.OverdueCandidate
	for _, ps := range r.data {
		if ps.Status.Terminal() {
			continue
		}
		base := repository.OverdueCandidate{
			PaymentStatusID: ps.ID,
			UserID:          ps.UserID,
			CourseID:        ps.CourseID,
			CohortID:        ps.CohortID,
			Plan:            ps.Plan,
			State:           ps.Status,
			Version:         ps.Version,
		}
		if ps.CohortID != nil && r.cohorts != nil {
			base.CohortStart = r.cohorts.start(*ps.CohortID)
		}
		in := func(due time.Time) bool { return !due.Before(from) && due.Before(to) }
		if ps.Plan == model.PlanFirstHalfComplete {
			if ps.Status == model.StateBalanceHalfPayment && ps.SecondPaymentDueDate != nil && in(*ps.SecondPaymentDueDate) {
				c := base
				c.InstallmentNumber = 2
				c.DueDate = *ps.SecondPaymentDueDate
				c.LastReminderSent = cloneTime(ps.LastReminderSent)
				out = append(out, &c)
			}
			continue
		}
		for _, inst := range ps.Installments {
			if inst.Paid || !in(inst.DueDate) {
				continue
			}
			c := base
			c.InstallmentID = inst.ID
			c.InstallmentNumber = inst.InstallmentNumber
			c.Amount = inst.Amount
			c.DueDate = inst.DueDate
			c.LastReminderSent = cloneTime(inst.LastReminderSent)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		if out[i].PaymentStatusID != out[j].PaymentStatusID {
			return out[i].PaymentStatusID < out[j].PaymentStatusID
		}
		return out[i].InstallmentNumber < out[j].InstallmentNumber
	})
	return out
}

func (r *MockPaymentStatusRepo) ListOverdue(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*repository.OverdueCandidate, error) {
	if r.ListOverdueFunc != nil {
		return r.ListOverdueFunc(ctx, tx, before, limit)
	}
	return limitCandidates(r.candidates(time.Time{}, before), limit), nil
}

func (r *MockPaymentStatusRepo) ListDueBetween(ctx context.Context, tx repository.Tx, from, to time.Time, limit int) ([]*repository.OverdueCandidate, error) {
	return limitCandidates(r.candidates(from, to), limit), nil
}

func limitCandidates(c []*repository.OverdueCandidate, limit int) []*repository.OverdueCandidate {
	if limit > 0 && len(c) > limit {
		return c[:limit]
	}
	return c
}

func (r *MockPaymentStatusRepo) ListRecentlyExpired(ctx context.Context, tx repository.Tx, since time.Time) ([]*model.PaymentStatus, error) {
	if r.ListRecentlyExpiredFunc != nil {
		return r.ListRecentlyExpiredFunc(ctx, tx, since)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentStatus
	for _, ps := range r.data {
		if ps.Status != model.StateExpired || r.users == nil {
			continue
		}
		u, err := r.users.FindByID(ctx, tx, ps.UserID)
		if err != nil || !u.Inactive || u.DeactivatedAt == nil || u.DeactivatedAt.Before(since) {
			continue
		}
		out = append(out, cloneStatus(ps))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MockPaymentStatusRepo) List(ctx context.Context, tx repository.Tx, f repository.PaymentStatusFilter) ([]*model.PaymentStatus, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.PaymentStatus
	for _, ps := range r.data {
		if f.Status != "" && ps.Status != f.Status {
			continue
		}
		if f.Plan != "" && ps.Plan != f.Plan {
			continue
		}
		if f.CourseID != "" && ps.CourseID != f.CourseID {
			continue
		}
		all = append(all, cloneStatus(ps))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (r *MockPaymentStatusRepo) CountByState(ctx context.Context, tx repository.Tx) (map[model.PaymentState]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.PaymentState]int{}
	for _, ps := range r.data {
		out[ps.Status]++
	}
	return out, nil
}

func (r *MockPaymentStatusRepo) CountByPlan(ctx context.Context, tx repository.Tx) (map[model.PaymentPlan]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.PaymentPlan]int{}
	for _, ps := range r.data {
		out[ps.Plan]++
	}
	return out, nil
}

// Get returns the stored status for assertions.
func (r *MockPaymentStatusRepo) Get(userID, courseID string) *model.PaymentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.byUserCourse(userID, courseID)
	if ps == nil {
		return nil
	}
	return cloneStatus(ps)
}

// ---- Mock TransactionRepository ----

type MockTransactionRepo struct {
	mu   sync.Mutex
	data map[string]*model.PaystackTransaction // by reference

	SumFunc func(ctx context.Context, tx repository.Tx, period string) (int64, error)
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{data: map[string]*model.PaystackTransaction{}}
}

func cloneTx(t *model.PaystackTransaction) *model.PaystackTransaction {
	cp := *t
	cp.PaidAt = cloneTime(t.PaidAt)
	return &cp
}

func (r *MockTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.PaystackTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[t.Reference]; ok {
		return domain.ErrAlreadyExists
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	r.data[t.Reference] = cloneTx(t)
	return nil
}

func (r *MockTransactionRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.PaystackTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneTx(t), nil
}

func (r *MockTransactionRepo) FindReusablePending(ctx context.Context, tx repository.Tx, userID, courseID string, since time.Time) (*model.PaystackTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.PaystackTransaction
	for _, t := range r.data {
		if t.UserID != userID || t.CourseID != courseID || t.Status != model.TransactionPending || !t.CreatedAt.After(since) {
			continue
		}
		if best == nil || t.CreatedAt.After(best.CreatedAt) {
			best = t
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return cloneTx(best), nil
}

func (r *MockTransactionRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, gatewayResponse string, paidAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.data {
		if t.ID != id {
			continue
		}
		if t.Status != model.TransactionPending {
			return false, nil
		}
		t.Status = status
		t.GatewayResponse = gatewayResponse
		t.PaidAt = cloneTime(paidAt)
		return true, nil
	}
	return false, domain.ErrNotFound
}

func (r *MockTransactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaystackTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaystackTransaction
	for _, t := range r.data {
		if t.Status == model.TransactionPending && t.CreatedAt.Before(olderThan) {
			out = append(out, cloneTx(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockTransactionRepo) SumSuccessfulByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	if r.SumFunc != nil {
		return r.SumFunc(ctx, tx, period)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, t := range r.data {
		if t.Status == model.TransactionSuccess {
			sum += t.Amount
		}
	}
	return sum, nil
}

func (r *MockTransactionRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.TransactionStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.data {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

// Age moves a transaction's creation time back by d.
func (r *MockTransactionRepo) Age(reference string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.data[reference]; ok {
		t.CreatedAt = t.CreatedAt.Add(-d)
	}
}

// ---- Mock NotificationLogRepository ----

type MockNotificationLogRepo struct {
	mu   sync.Mutex
	sent map[string]bool
}

var _ repository.NotificationLogRepository = (*MockNotificationLogRepo)(nil)

func NewMockNotificationLogRepo() *MockNotificationLogRepo {
	return &MockNotificationLogRepo{sent: map[string]bool{}}
}

func (r *MockNotificationLogRepo) Save(ctx context.Context, tx repository.Tx, paymentStatusID, userID, kind, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[paymentStatusID+"|"+kind+"|"+key] = true
	return nil
}

func (r *MockNotificationLogRepo) Exists(ctx context.Context, tx repository.Tx, paymentStatusID, kind, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[paymentStatusID+"|"+kind+"|"+key], nil
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
// The in-memory repositories do not roll back.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrInProgress
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// Hold takes key as if another process owned it.
func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "someone-else"
}

// Release drops a lock taken with Hold.
func (l *MockLocker) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

// ---- Mock RateLimiter ----

type MockRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func NewMockRateLimiter() *MockRateLimiter {
	return &MockRateLimiter{counts: map[string]int{}}
}

func (r *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.Err != nil {
		return false, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key] <= limit, nil
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Rollback support ----

// snapshotter is implemented by mocks whose writes a rolling back tx manager undoes.
type snapshotter interface {
	snapshot() (restore func())
}

func (r *MockPaymentStatusRepo) snapshot() func() {
	r.mu.Lock()
	saved := make(map[string]*model.PaymentStatus, len(r.data))
	for k, v := range r.data {
		saved[k] = cloneStatus(v)
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.data = saved
		r.mu.Unlock()
	}
}

func (r *MockTransactionRepo) snapshot() func() {
	r.mu.Lock()
	saved := make(map[string]*model.PaystackTransaction, len(r.data))
	for k, v := range r.data {
		saved[k] = cloneTx(v)
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.data = saved
		r.mu.Unlock()
	}
}

// NewRollbackTxManager restores every given mock when fn returns an error.
func NewRollbackTxManager(repos ...snapshotter) *MockTxManager {
	return &MockTxManager{
		WithTxFunc: func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
			restores := make([]func(), 0, len(repos))
			for _, r := range repos {
				restores = append(restores, r.snapshot())
			}
			if err := fn(ctx, repository.NoTX); err != nil {
				for _, restore := range restores {
					restore()
				}
				return err
			}
			return nil
		},
	}
}

// SetState overwrites the stored state of an enrollment.
func (r *MockPaymentStatusRepo) SetState(userID, courseID string, state model.PaymentState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ps := r.byUserCourse(userID, courseID); ps != nil {
		ps.Status = state
		ps.Version++
	}
}
