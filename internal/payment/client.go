// Package payment is a client for the Pakasir QRIS payment gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/botfleet/internal/metrics"
	"github.com/nextlevelbuilder/botfleet/internal/tracing"
)

// DefaultBaseURL is the production Pakasir API.
const DefaultBaseURL = "https://app.pakasir.com/api"

// MethodQRIS is the payment method bots use for checkout.
const MethodQRIS = "qris"

// Transaction statuses reported by TransactionStatus.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
)

// ErrNotConfigured is returned when the bot has no project slug or API key.
var ErrNotConfigured = errors.New("payment not configured")

// APIError is a non-200 answer from the gateway.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pakasir %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Payment is a created transaction awaiting payment.
type Payment struct {
	Project       string `json:"project"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Fee           int64  `json:"fee"`
	TotalPayment  int64  `json:"total_payment"`
	PaymentMethod string `json:"payment_method"`
	PaymentNumber string `json:"payment_number"` // QRIS payload
	ExpiredAt     string `json:"expired_at"`
}

// ExpiresAt parses ExpiredAt. It reports false when the gateway sent none.
func (p *Payment) ExpiresAt() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, p.ExpiredAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Transaction is the current state of a transaction.
type Transaction struct {
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// Completed reports whether the buyer has paid.
func (t *Transaction) Completed() bool {
	return t.Status == StatusCompleted
}

// Provider is what bot handlers need from a payment gateway.
type Provider interface {
	Configured() bool
	CreateTransaction(ctx context.Context, orderID string, amount int64, method string) (*Payment, error)
	TransactionStatus(ctx context.Context, orderID string, amount int64) (*Transaction, error)
	CancelTransaction(ctx context.Context, orderID string, amount int64) error
	SimulatePayment(ctx context.Context, orderID string, amount int64) error
}

// Option tunes the underlying resty client.
type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithRetries retries transport failures and 5xx answers count times.
func WithRetries(count int) Option {
	return func(c *resty.Client) { c.SetRetryCount(count) }
}

// Client talks to Pakasir on behalf of one bot.
type Client struct {
	http    *resty.Client
	project string
	apiKey  string
}

// New builds a client for one project. An empty baseURL uses DefaultBaseURL.
func New(baseURL, project, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{http: rc, project: project, apiKey: apiKey}
}

func (c *Client) Configured() bool {
	return c.project != "" && c.apiKey != ""
}

type txRequest struct {
	Project string `json:"project"`
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	APIKey  string `json:"api_key"`
}

func (c *Client) body(orderID string, amount int64) txRequest {
	return txRequest{Project: c.project, OrderID: orderID, Amount: amount, APIKey: c.apiKey}
}

// CreateTransaction opens a payment for orderID with the given method.
func (c *Client) CreateTransaction(ctx context.Context, orderID string, amount int64, method string) (p *Payment, err error) {
	ctx, span := tracing.Start(ctx, "payment.create",
		attribute.String("order_id", orderID), attribute.String("method", method))
	defer func() { metrics.ObservePayment("create", err); tracing.End(span, err) }()

	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	var out struct {
		Payment Payment `json:"payment"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("method", method).
		SetBody(c.body(orderID, amount)).
		SetResult(&out).
		Post("/transactioncreate/{method}")
	if err := check("create", resp, err); err != nil {
		return nil, err
	}
	return &out.Payment, nil
}

// TransactionStatus fetches the current status of orderID.
func (c *Client) TransactionStatus(ctx context.Context, orderID string, amount int64) (t *Transaction, err error) {
	ctx, span := tracing.Start(ctx, "payment.status", attribute.String("order_id", orderID))
	defer func() { metrics.ObservePayment("status", err); tracing.End(span, err) }()

	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	var out struct {
		Transaction Transaction `json:"transaction"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"project":  c.project,
			"order_id": orderID,
			"amount":   strconv.FormatInt(amount, 10),
			"api_key":  c.apiKey,
		}).
		SetResult(&out).
		Get("/transactiondetail")
	if err := check("status", resp, err); err != nil {
		return nil, err
	}
	return &out.Transaction, nil
}

// CancelTransaction voids a pending payment.
func (c *Client) CancelTransaction(ctx context.Context, orderID string, amount int64) error {
	return c.post(ctx, "cancel", "/transactioncancel", orderID, amount)
}

// SimulatePayment marks a sandbox transaction as paid.
func (c *Client) SimulatePayment(ctx context.Context, orderID string, amount int64) error {
	return c.post(ctx, "simulate", "/paymentsimulation", orderID, amount)
}

func (c *Client) post(ctx context.Context, op, path, orderID string, amount int64) (err error) {
	ctx, span := tracing.Start(ctx, "payment."+op, attribute.String("order_id", orderID))
	defer func() { metrics.ObservePayment(op, err); tracing.End(span, err) }()

	if !c.Configured() {
		return ErrNotConfigured
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(c.body(orderID, amount)).
		Post(path)
	return check(op, resp, err)
}

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("pakasir %s: %w", op, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return &APIError{Op: op, Status: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	return nil
}
