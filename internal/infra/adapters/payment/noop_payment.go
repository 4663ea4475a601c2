package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-payments/internal/domain"
	"course-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for local runs without Paystack keys.
// Every initialized reference verifies as paid in full. Webhooks are signed with secret.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	secret  string
	intents map[string]adapter.InitRequest
}

func NewNoopPaymentGateway(secret string) *NoopPaymentGateway {
	if secret == "" {
		secret = "noop"
	}
	return &NoopPaymentGateway{
		secret:  secret,
		intents: make(map[string]adapter.InitRequest),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) InitializeTransaction(ctx context.Context, req adapter.InitRequest) (adapter.InitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := req.Reference
	if ref == "" {
		g.seq++
		ref = fmt.Sprintf("noop-%d", g.seq)
	}
	g.intents[ref] = req
	return adapter.InitResult{
		Reference:        ref,
		AuthorizationURL: "https://example.test/pay/" + ref,
		AccessCode:       "noop-" + ref,
	}, nil
}

func (g *NoopPaymentGateway) VerifyTransaction(ctx context.Context, reference string) (adapter.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.intents[reference]
	if !ok {
		return adapter.VerifyResult{}, fmt.Errorf("%w: noop: unknown reference %s", domain.ErrGatewayVerificationFailed, reference)
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

func (g *NoopPaymentGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return validSignature(g.secret, body, signature)
}

func (g *NoopPaymentGateway) ParseWebhook(body []byte, signature string) (adapter.WebhookEvent, error) {
	return parseWebhook(g.secret, body, signature)
}
