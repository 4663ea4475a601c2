package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"course-payments/internal/domain"
	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/repository"
	"course-payments/internal/infra/adapters/payment"
	"course-payments/internal/infra/logging"
	"course-payments/internal/infra/metrics"
	"course-payments/internal/usecase"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready(r.Context()); err != nil {
			logging.With(r.Context(), s.logger).Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ===== Initiate =====

type initiateRequest struct {
	UserID            string `json:"userId" validate:"required,max=64"`
	CourseID          string `json:"courseId" validate:"required,max=64"`
	PlanType          string `json:"planType" validate:"required,max=32"`
	CohortName        string `json:"cohortName" validate:"max=128"`
	InstallmentNumber int    `json:"installmentNumber" validate:"gte=0,lte=4"`
}

type initiateResponse struct {
	AuthorizationURL  string `json:"authorizationUrl"`
	Reference         string `json:"reference"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Plan              string `json:"plan"`
	InstallmentNumber int    `json:"installmentNumber,omitempty"`
	Reused            bool   `json:"reused"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := s.decode(r, &req); err != nil {
		metrics.IncInitiation("invalid", "rejected")
		writeError(w, err)
		return
	}
	planLabel := "invalid"
	if p, err := model.PlanFromType(req.PlanType); err == nil {
		planLabel = string(p)
	}

	ctx := logging.WithCourseID(logging.WithUserID(r.Context(), req.UserID), req.CourseID)
	res, err := s.Payments.Initiate(ctx, usecase.InitiateRequest{
		UserID:            req.UserID,
		CourseID:          req.CourseID,
		PlanType:          req.PlanType,
		CohortName:        req.CohortName,
		InstallmentNumber: req.InstallmentNumber,
	})
	if err != nil {
		status := statusFor(err)
		result := "rejected"
		if status >= http.StatusInternalServerError {
			result = "error"
			logging.With(ctx, s.logger).Error().Err(err).Msg("initiate payment failed")
		}
		if errors.Is(err, domain.ErrRateLimited) {
			metrics.IncRateLimited("initiate")
		}
		metrics.IncInitiation(planLabel, result)
		writeError(w, err)
		return
	}

	result := "created"
	if res.Reused {
		result = "reused"
	}
	metrics.IncInitiation(string(res.Plan), result)
	writeJSON(w, http.StatusOK, initiateResponse{
		AuthorizationURL:  res.AuthorizationURL,
		Reference:         res.Reference,
		Amount:            res.Amount,
		Currency:          res.Currency,
		Plan:              string(res.Plan),
		InstallmentNumber: res.InstallmentNumber,
		Reused:            res.Reused,
	})
}

// decode reads a JSON body and validates its struct tags.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", domain.ErrInvalidArgument)
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", domain.ErrInvalidArgument, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// ===== Verify / callback / webhook =====

type verifyResponse struct {
	Status           string            `json:"status"`
	Reference        string            `json:"reference"`
	AlreadyProcessed bool              `json:"alreadyProcessed"`
	Data             *paymentStatusDTO `json:"data,omitempty"`
	Error            string            `json:"error,omitempty"`
}

func (s *Server) verify(r *http.Request, source, reference string) (*usecase.VerifyOutcome, error) {
	ctx := logging.WithReference(r.Context(), reference)
	start := time.Now()
	out, err := s.Payments.Verify(ctx, reference)

	result := "ok"
	switch {
	case err != nil:
		result = "fail"
	case out.AlreadyProcessed:
		result = "cached"
	}
	metrics.PaymentVerifyRequests.WithLabelValues(source, result).Inc()
	metrics.PaymentVerifyDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	if err == nil && !out.AlreadyProcessed {
		metrics.IncPayment(string(model.TransactionSuccess))
		if out.Transaction != nil {
			metrics.AddPaymentRevenue(out.Transaction.Currency, out.Transaction.Amount)
		}
		if out.PaymentStatus != nil && out.Previous != out.PaymentStatus.Status {
			metrics.IncTransition(string(out.Previous), string(out.PaymentStatus.Status))
		}
	}
	if err != nil && statusFor(err) >= http.StatusInternalServerError {
		logging.With(ctx, s.logger).Error().Err(err).Str("source", source).Msg("verify payment failed")
	}
	return out, err
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.URL.Query().Get("reference"))
	out, err := s.verify(r, "verify", ref)
	if err != nil {
		// a settled failure still reports the transaction state
		if out != nil && out.Transaction != nil {
			writeJSON(w, statusFor(err), verifyResponse{
				Status:    string(out.Status),
				Reference: out.Transaction.Reference,
				Error:     err.Error(),
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Status:           string(out.Status),
		Reference:        ref,
		AlreadyProcessed: out.AlreadyProcessed,
		Data:             toPaymentStatusDTO(out.PaymentStatus),
	})
}

// handleCallback is where the gateway sends the learner back after checkout.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := strings.TrimSpace(q.Get("reference"))
	if ref == "" {
		ref = strings.TrimSpace(q.Get("trxref"))
	}
	if ref == "" {
		s.finishCallback(w, r, false, "", "missing payment reference")
		return
	}
	out, err := s.verify(r, "callback", ref)
	if err != nil {
		s.finishCallback(w, r, false, ref, callbackMessage(err))
		return
	}
	msg := "Your payment was received."
	if out.PaymentStatus != nil && out.PaymentStatus.Status == model.StateComplete {
		msg = "Your payment is complete. You have full access to the course."
	}
	s.finishCallback(w, r, true, ref, msg)
}

func callbackMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrTransactionNotFound):
		return "We could not find this payment."
	case errors.Is(err, domain.ErrGatewayVerificationFailed):
		return "The payment was not successful."
	}
	return "We could not confirm your payment yet. Please check again shortly."
}

func (s *Server) finishCallback(w http.ResponseWriter, r *http.Request, ok bool, ref, msg string) {
	if s.opts.FrontendURL != "" {
		http.Redirect(w, r, callbackRedirect(s.opts.FrontendURL, ok, ref), http.StatusFound)
		return
	}
	code := http.StatusOK
	if !ok && ref == "" {
		code = http.StatusBadRequest
	}
	renderResult(w, code, ok, msg, ref)
}

func callbackRedirect(frontend string, ok bool, ref string) string {
	status := "failed"
	if ok {
		status = "success"
	}
	v := url.Values{}
	v.Set("status", status)
	if ref != "" {
		v.Set("reference", ref)
	}
	sep := "?"
	if strings.Contains(frontend, "?") {
		sep = "&"
	}
	return frontend + sep + v.Encode()
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, fmt.Errorf("%w: unreadable body", domain.ErrInvalidArgument))
		return
	}
	res, err := s.Payments.HandleWebhook(r.Context(), body, r.Header.Get(payment.SignatureHeader))
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		writeError(w, err)
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "error").Inc()
		writeError(w, err)
		return
	case err != nil:
		// a non-2xx makes the gateway retry the delivery later
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "error").Inc()
		logging.With(r.Context(), s.logger).Error().Err(err).Msg("webhook handling failed")
		writeError(w, err)
		return
	}
	status := "ignored"
	switch {
	case res.Handled:
		status = "handled"
	case res.LateCharge:
		status = "late_charge"
		metrics.IncLateCharge()
	}
	metrics.WebhookEventsTotal.WithLabelValues(res.Event, status).Inc()
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "event": res.Event, "handled": res.Handled})
}

// ===== Status lookups =====

type installmentDTO struct {
	Number  int        `json:"installmentNumber"`
	Amount  int64      `json:"amount"`
	DueDate time.Time  `json:"dueDate"`
	Paid    bool       `json:"paid"`
	PaidAt  *time.Time `json:"paidAt,omitempty"`
}

type paymentStatusDTO struct {
	ID                   string           `json:"id"`
	UserID               string           `json:"userId"`
	CourseID             string           `json:"courseId"`
	CohortID             *string          `json:"cohortId,omitempty"`
	Status               string           `json:"status"`
	Plan                 string           `json:"paymentPlan"`
	SecondPaymentDueDate *time.Time       `json:"secondPaymentDueDate,omitempty"`
	Installments         []installmentDTO `json:"installments,omitempty"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

func toPaymentStatusDTO(ps *model.PaymentStatus) *paymentStatusDTO {
	if ps == nil {
		return nil
	}
	out := &paymentStatusDTO{
		ID:                   ps.ID,
		UserID:               ps.UserID,
		CourseID:             ps.CourseID,
		CohortID:             ps.CohortID,
		Status:               string(ps.Status),
		Plan:                 string(ps.Plan),
		SecondPaymentDueDate: ps.SecondPaymentDueDate,
		UpdatedAt:            ps.UpdatedAt,
	}
	for _, in := range ps.Installments {
		out.Installments = append(out.Installments, installmentDTO{
			Number:  in.InstallmentNumber,
			Amount:  in.Amount,
			DueDate: in.DueDate,
			Paid:    in.Paid,
			PaidAt:  in.PaidAt,
		})
	}
	return out
}

func userCourse(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	userID, courseID := strings.TrimSpace(q.Get("userId")), strings.TrimSpace(q.Get("courseId"))
	if userID == "" || courseID == "" {
		return "", "", fmt.Errorf("%w: userId and courseId are required", domain.ErrInvalidArgument)
	}
	return userID, courseID, nil
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, courseID, err := userCourse(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.Payments.GetPaymentStatus(r.Context(), userID, courseID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		*paymentStatusDTO
		Total       int64      `json:"totalAmount"`
		AmountPaid  int64      `json:"amountPaid"`
		NextNumber  int        `json:"nextInstallment,omitempty"`
		NextAmount  int64      `json:"nextAmount,omitempty"`
		NextDueDate *time.Time `json:"nextDueDate,omitempty"`
		HasAccess   bool       `json:"hasAccess"`
	}{
		paymentStatusDTO: toPaymentStatusDTO(v.Status),
		Total:            v.Total,
		AmountPaid:       v.AmountPaid,
		NextNumber:       v.NextNumber,
		NextAmount:       v.NextAmount,
		NextDueDate:      v.NextDueDate,
		HasAccess:        v.HasAccess,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePaymentLink(w http.ResponseWriter, r *http.Request) {
	userID, courseID, err := userCourse(r)
	if err != nil {
		writeError(w, err)
		return
	}
	link, err := s.Payments.GetPaymentLink(r.Context(), userID, courseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reference":         link.Reference,
		"authorizationUrl":  link.AuthorizationURL,
		"amount":            link.Amount,
		"installmentNumber": link.InstallmentNumber,
		"expiresAt":         link.ExpiresAt,
	})
}

func (s *Server) handlePurchaseStatus(w http.ResponseWriter, r *http.Request) {
	userID, courseID, err := userCourse(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ps, err := s.Payments.GetPurchaseStatus(r.Context(), userID, courseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"purchased":     ps.Purchased,
		"purchasedAt":   ps.PurchasedAt,
		"paymentStatus": string(ps.Status),
		"paymentPlan":   string(ps.Plan),
	})
}

// ===== Admin =====

func (s *Server) handleAdminPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	f := repository.PaymentStatusFilter{
		Status:   model.PaymentState(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Plan:     model.PaymentPlan(strings.ToUpper(strings.TrimSpace(q.Get("plan")))),
		CourseID: strings.TrimSpace(q.Get("courseId")),
		Limit:    limit,
		Offset:   offset,
	}
	items, total, err := s.Stats.ListPayments(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	data := make([]*paymentStatusDTO, 0, len(items))
	for _, ps := range items {
		data = append(data, toPaymentStatusDTO(ps))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   data,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Stats.Stats(r.Context(), s.now().UTC())
	if err != nil {
		logging.With(r.Context(), s.logger).Error().Err(err).Msg("stats failed")
		writeError(w, err)
		return
	}
	byStatus := make(map[string]int, len(st.ByStatus))
	for k, v := range st.ByStatus {
		byStatus[string(k)] = v
	}
	byPlan := make(map[string]int, len(st.ByPlan))
	for k, v := range st.ByPlan {
		byPlan[string(k)] = v
	}
	resp := struct {
		ByStatus map[string]int `json:"byStatus"`
		ByPlan   map[string]int `json:"byPlan"`
		Revenue  struct {
			Week  int64 `json:"week"`
			Month int64 `json:"month"`
			Year  int64 `json:"year"`
		} `json:"revenue"`
		PendingTransactions int `json:"pendingTransactions"`
		DeactivatedLastWeek int `json:"deactivatedLastWeek"`
	}{
		ByStatus:            byStatus,
		ByPlan:              byPlan,
		PendingTransactions: st.PendingTransactions,
		DeactivatedLastWeek: st.DeactivatedLastWeek,
	}
	resp.Revenue.Week = st.RevenueWeek
	resp.Revenue.Month = st.RevenueMonth
	resp.Revenue.Year = st.RevenueYear
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminJobs(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.Jobs.Jobs()})
}

func (s *Server) handleAdminRunJob(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "scheduler disabled"})
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.Jobs.RunNow(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "done"})
}
