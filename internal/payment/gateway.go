package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

const confirmPath = "/v1/payments/confirm"

// Receipt is what the provider returns for a confirmed payment.
type Receipt struct {
	PaymentKey     string          `json:"paymentKey"`
	OrderID        string          `json:"orderId"`
	OrderName      string          `json:"orderName"`
	Method         string          `json:"method"`
	RequestedAt    time.Time       `json:"requestedAt"`
	ApprovedAt     time.Time       `json:"approvedAt"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	SuppliedAmount decimal.Decimal `json:"suppliedAmount"`
	VAT            decimal.Decimal `json:"vat"`

	// Incomplete is set when the provider confirmed the capture but part of
	// the body could not be read. Fields that failed to decode are zero,
	// except TotalAmount which falls back to the requested amount.
	Incomplete bool `json:"-"`
}

// GatewayError is any failed confirmation. StatusCode is zero when the
// provider never answered (timeout, connection error, open breaker).
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error

	// FromProvider is set when Code and Message come from the provider's
	// error body rather than from this client.
	FromProvider bool
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	b.WriteString("payment gateway")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " responded %d", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Rejected reports whether the provider answered with a structured refusal.
func (e *GatewayError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Config configures the provider client.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration

	// Breaker trips after this many consecutive transport or 5xx failures.
	// Zero uses 5.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client confirms payments against the provider.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A provider refusal (declined card, bad key) says nothing about
		// provider health.
		IsSuccessful: func(err error) bool {
			var gwErr *GatewayError
			if errors.As(err, &gwErr) {
				return gwErr.Rejected()
			}
			return err == nil
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":")),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

type confirmRequest struct {
	PaymentKey string      `json:"paymentKey"`
	OrderID    string      `json:"orderId"`
	Amount     json.Number `json:"amount"`
}

type providerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Confirm asks the provider to capture amount for orderID. Every failure is
// returned as *GatewayError.
func (c *Client) Confirm(ctx context.Context, paymentKey string, orderID uuid.UUID, amount decimal.Decimal) (*Receipt, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.confirm(ctx, paymentKey, orderID, amount)
	})
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			return nil, gwErr
		}
		// gobreaker.ErrOpenState / ErrTooManyRequests
		return nil, &GatewayError{Message: "payment provider unavailable", Err: err}
	}
	return result.(*Receipt), nil
}

func (c *Client) confirm(ctx context.Context, paymentKey string, orderID uuid.UUID, amount decimal.Decimal) (*Receipt, error) {
	body, err := json.Marshal(confirmRequest{
		PaymentKey: paymentKey,
		OrderID:    orderID.String(),
		Amount:     json.Number(amount.String()),
	})
	if err != nil {
		return nil, &GatewayError{Message: "failed to encode confirm request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+confirmPath, bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Message: "failed to build confirm request", Err: err}
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Message: "payment failed", Err: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &GatewayError{StatusCode: resp.StatusCode, Message: "payment failed", Err: readErr}
		var pErr providerError
		if json.Unmarshal(raw, &pErr) == nil && pErr.Message != "" {
			gwErr.Code = pErr.Code
			gwErr.Message = pErr.Message
			gwErr.FromProvider = true
		}
		return nil, gwErr
	}

	// 2xx: the capture happened, whatever the body looks like.
	receipt := decodeReceipt(raw)
	if readErr != nil {
		receipt.Incomplete = true
	}
	if receipt.PaymentKey == "" {
		receipt.PaymentKey = paymentKey
	}
	if receipt.Incomplete && receipt.TotalAmount.IsZero() {
		receipt.TotalAmount = amount
	}
	return receipt, nil
}

// decodeReceipt reads a confirm body field by field when the strict decode
// fails, keeping whatever the provider sent in a readable form.
func decodeReceipt(raw []byte) *Receipt {
	var r Receipt
	if err := json.Unmarshal(raw, &r); err == nil {
		return &r
	}

	r = Receipt{Incomplete: true}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &r
	}
	targets := map[string]interface{}{
		"paymentKey":     &r.PaymentKey,
		"orderId":        &r.OrderID,
		"orderName":      &r.OrderName,
		"method":         &r.Method,
		"requestedAt":    &r.RequestedAt,
		"approvedAt":     &r.ApprovedAt,
		"totalAmount":    &r.TotalAmount,
		"suppliedAmount": &r.SuppliedAmount,
		"vat":            &r.VAT,
	}
	for name, dst := range targets {
		if value, ok := fields[name]; ok {
			_ = json.Unmarshal(value, dst)
		}
	}
	return &r
}
