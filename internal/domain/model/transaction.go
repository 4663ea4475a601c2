package model

import (
	"encoding/json"
	"fmt"
	"time"

	"course-payments/internal/domain"
)

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
	TransactionExpired TransactionStatus = "expired"
)

func (s TransactionStatus) Terminal() bool { return s != TransactionPending }

// PaystackTransaction is one gateway transaction attempt. Once it leaves pending it is
// never written again.
type PaystackTransaction struct {
	ID               string
	UserID           string
	CourseID         string
	Reference        string
	Status           TransactionStatus
	Amount           int64 // major units
	Currency         string
	Metadata         TransactionMetadata
	AuthorizationURL string
	GatewayResponse  string
	PaidAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Reusable reports whether a pending transaction may be handed out again.
func (t *PaystackTransaction) Reusable(now time.Time, window time.Duration) bool {
	return t.Status == TransactionPending && now.Sub(t.CreatedAt) < window
}

// TransactionMetadata is the plan context needed to resume processing on verification.
// It is stored with the transaction and forwarded to the gateway.
type TransactionMetadata struct {
	UserID            string      `json:"userId"`
	CourseID          string      `json:"courseId"`
	PaymentPlan       PaymentPlan `json:"paymentPlan"`
	InstallmentNumber int         `json:"installmentNumber"`
	CohortID          string      `json:"cohortId,omitempty"`
	CohortName        string      `json:"cohortName,omitempty"`
}

func (m TransactionMetadata) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Map returns the metadata as a generic map for gateway payloads.
func (m TransactionMetadata) Map() map[string]any {
	out := map[string]any{
		"userId":            m.UserID,
		"courseId":          m.CourseID,
		"paymentPlan":       string(m.PaymentPlan),
		"installmentNumber": m.InstallmentNumber,
	}
	if m.CohortID != "" {
		out["cohortId"] = m.CohortID
	}
	if m.CohortName != "" {
		out["cohortName"] = m.CohortName
	}
	return out
}

func DecodeTransactionMetadata(b []byte) (TransactionMetadata, error) {
	var m TransactionMetadata
	if len(b) == 0 {
		return m, fmt.Errorf("%w: empty metadata", domain.ErrInvalidArgument)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%w: metadata: %v", domain.ErrInvalidArgument, err)
	}
	if !m.PaymentPlan.Valid() || m.InstallmentNumber < 1 {
		return m, fmt.Errorf("%w: metadata missing plan context", domain.ErrInvalidArgument)
	}
	return m, nil
}
