package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactioncreate/qris", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "shop", body["project"])
		assert.Equal(t, "ORD-1", body["order_id"])
		assert.Equal(t, float64(25000), body["amount"])
		assert.Equal(t, "secret", body["api_key"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment":{"project":"shop","order_id":"ORD-1","amount":25000,"fee":175,
			"total_payment":25175,"payment_method":"qris","payment_number":"000201...","expired_at":"2026-01-02T15:04:05.123+07:00"}}`))
	}))
	defer srv.Close()

	p, err := New(srv.URL, "shop", "secret").CreateTransaction(context.Background(), "ORD-1", 25000, MethodQRIS)
	require.NoError(t, err)
	assert.Equal(t, int64(175), p.Fee)
	assert.Equal(t, int64(25175), p.TotalPayment)
	assert.Equal(t, "000201...", p.PaymentNumber)

	exp, ok := p.ExpiresAt()
	require.True(t, ok)
	assert.Equal(t, 2026, exp.Year())
}

func TestTransactionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactiondetail", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "shop", q.Get("project"))
		assert.Equal(t, "ORD-2", q.Get("order_id"))
		assert.Equal(t, "10000", q.Get("amount"))
		assert.Equal(t, "secret", q.Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction":{"order_id":"ORD-2","amount":10000,"status":"completed","payment_method":"qris","completed_at":"2026-01-02T15:04:05+07:00"}}`))
	}))
	defer srv.Close()

	tx, err := New(srv.URL, "shop", "secret").TransactionStatus(context.Background(), "ORD-2", 10000)
	require.NoError(t, err)
	assert.True(t, tx.Completed())
	assert.Equal(t, "ORD-2", tx.OrderID)
}

func TestNotConfigured(t *testing.T) {
	c := New("http://127.0.0.1:1", "", "")
	assert.False(t, c.Configured())

	_, err := c.CreateTransaction(context.Background(), "ORD-3", 1000, MethodQRIS)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.CancelTransaction(context.Background(), "ORD-3", 1000), ErrNotConfigured)
}

func TestAPIErrorIsNotRetriedOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "order not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := New(srv.URL, "shop", "secret", WithRetries(2)).CancelTransaction(context.Background(), "ORD-4", 1000)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "cancel", apiErr.Op)
	assert.Contains(t, apiErr.Body, "order not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New(srv.URL, "shop", "secret", WithRetries(2)).SimulatePayment(context.Background(), "ORD-5", 1000)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
