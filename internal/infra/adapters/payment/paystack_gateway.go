package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"course-payments/internal/domain"
	"course-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*PaystackGateway)(nil)

// SignatureHeader carries the HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "X-Paystack-Signature"

// PaystackGateway implements adapter.PaymentGateway against the Paystack REST API.
type PaystackGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewPaystackGateway(secretKey, baseURL string) (*PaystackGateway, error) {
	if secretKey == "" {
		return nil, errors.New("paystack secret key empty")
	}
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid paystack base url: %w", err)
	}
	return &PaystackGateway{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (p *PaystackGateway) Name() string { return "paystack" }

// envelope is the common Paystack response shape.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *PaystackGateway) do(ctx context.Context, method, path string, body any) (*envelope, int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, fmt.Errorf("%w: http %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: decode %s: %v", domain.ErrGatewayUnavailable, path, err)
	}
	return &env, resp.StatusCode, nil
}

// InitializeTransaction calls /transaction/initialize. Amounts are in kobo.
func (p *PaystackGateway) InitializeTransaction(ctx context.Context, req adapter.InitRequest) (adapter.InitResult, error) {
	if req.Email == "" || req.AmountMinor <= 0 {
		return adapter.InitResult{}, fmt.Errorf("%w: email and a positive amount are required", domain.ErrInvalidArgument)
	}
	payload := map[string]any{
		"email":     req.Email,
		"amount":    req.AmountMinor,
		"reference": req.Reference,
	}
	if req.Currency != "" {
		payload["currency"] = req.Currency
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}
	if req.Metadata != nil {
		payload["metadata"] = req.Metadata
	}

	env, code, err := p.do(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return adapter.InitResult{}, err
	}
	if !env.Status || code >= 300 {
		return adapter.InitResult{}, fmt.Errorf("paystack initialize failed (http %d): %s", code, env.Message)
	}
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return adapter.InitResult{}, fmt.Errorf("paystack initialize: %w", err)
	}
	if data.AuthorizationURL == "" {
		return adapter.InitResult{}, errors.New("paystack initialize: no authorization url")
	}
	return adapter.InitResult{
		Reference:        data.Reference,
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
	}, nil
}

// VerifyTransaction calls /transaction/verify/:reference. A declined or abandoned
// payment is a result, not an error.
func (p *PaystackGateway) VerifyTransaction(ctx context.Context, reference string) (adapter.VerifyResult, error) {
	if reference == "" {
		return adapter.VerifyResult{}, fmt.Errorf("%w: reference is required", domain.ErrInvalidArgument)
	}
	env, code, err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return adapter.VerifyResult{}, err
	}
	if !env.Status || code >= 300 {
		return adapter.VerifyResult{}, fmt.Errorf("%w: http %d: %s", domain.ErrGatewayVerificationFailed, code, env.Message)
	}

	var data struct {
		Status          string  `json:"status"`
		Reference       string  `json:"reference"`
		Amount          int64   `json:"amount"`
		Currency        string  `json:"currency"`
		PaidAt          *string `json:"paid_at"`
		GatewayResponse string  `json:"gateway_response"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return adapter.VerifyResult{}, fmt.Errorf("paystack verify: %w", err)
	}
	res := adapter.VerifyResult{
		Status:          mapStatus(data.Status),
		Reference:       data.Reference,
		AmountMinor:     data.Amount,
		Currency:        data.Currency,
		GatewayResponse: data.GatewayResponse,
	}
	if data.PaidAt != nil && *data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, *data.PaidAt); err == nil {
			res.PaidAt = &t
		}
	}
	return res, nil
}

func mapStatus(s string) adapter.VerifyStatus {
	switch strings.ToLower(s) {
	case "success":
		return adapter.VerifySuccess
	case "failed", "reversed":
		return adapter.VerifyFailed
	case "abandoned":
		return adapter.VerifyAbandoned
	}
	// ongoing, pending, processing, queued
	return adapter.VerifyPending
}

func (p *PaystackGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return validSignature(p.secretKey, body, signature)
}

func (p *PaystackGateway) ParseWebhook(body []byte, signature string) (adapter.WebhookEvent, error) {
	return parseWebhook(p.secretKey, body, signature)
}

// Sign returns the hex HMAC-SHA512 of body, as sent in SignatureHeader.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	want := Sign(secret, body)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func parseWebhook(secret string, body []byte, signature string) (adapter.WebhookEvent, error) {
	if !validSignature(secret, body, signature) {
		return adapter.WebhookEvent{}, domain.ErrInvalidSignature
	}
	var ev struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: webhook body: %v", domain.ErrInvalidArgument, err)
	}
	return adapter.WebhookEvent{Type: ev.Event, Reference: ev.Data.Reference}, nil
}
