package adapter

import (
	"context"
	"time"
)

// InitRequest is what the gateway needs to open a checkout.
type InitRequest struct {
	Reference   string
	Email       string
	AmountMinor int64 // minor currency units (kobo)
	Currency    string
	CallbackURL string
	Metadata    map[string]any
}

type InitResult struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

type VerifyStatus string

const (
	VerifySuccess   VerifyStatus = "success"
	VerifyFailed    VerifyStatus = "failed"
	VerifyAbandoned VerifyStatus = "abandoned"
	VerifyPending   VerifyStatus = "pending"
)

// VerifyResult is a provider-agnostic verification outcome.
type VerifyResult struct {
	Status          VerifyStatus
	Reference       string
	AmountMinor     int64
	Currency        string
	PaidAt          *time.Time
	GatewayResponse string
}

func (r VerifyResult) OK() bool { return r.Status == VerifySuccess }

// WebhookEvent is a parsed, signature-checked provider callback.
type WebhookEvent struct {
	Type      string // e.g. "charge.success"
	Reference string
}

const WebhookChargeSuccess = "charge.success"

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() string
	// InitializeTransaction creates a checkout and returns the authorization URL.
	InitializeTransaction(ctx context.Context, req InitRequest) (InitResult, error)
	// VerifyTransaction asks the provider for the final state of a reference.
	// A non-success payment is reported in the result, not as an error.
	VerifyTransaction(ctx context.Context, reference string) (VerifyResult, error)
	// VerifyWebhookSignature checks a webhook body against its signature header.
	VerifyWebhookSignature(body []byte, signature string) bool
	// ParseWebhook checks the signature and decodes the event. A bad signature
	// yields domain.ErrInvalidSignature.
	ParseWebhook(body []byte, signature string) (WebhookEvent, error)
}
