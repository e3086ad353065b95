package credo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ticketvote/internal/config"
	"go-ticketvote/internal/models"
	"go-ticketvote/internal/payment"
)

func testCheckout() payment.Checkout {
	return payment.Checkout{
		Reference:   "ETH20250000312hvc40",
		AmountMinor: 7000000,
		Currency:    payment.Currency,
		Channels:    payment.Channels,
		Customer:    models.Customer{FirstName: "Ada", LastName: "Obi", Email: "ada@example.com"},
		Metadata:    json.RawMessage(`{"type":"ticket_purchase"}`),
		ReturnURL:   "https://tickets.example.com/tickets",
	}
}

func TestOpen_InitializesTransaction(t *testing.T) {
	var got initializeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "pk_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":200,"message":"ok","data":{"authorizationUrl":"https://pay.credodemo.com/abc","reference":"ETH20250000312hvc40","credoReference":"abc"}}`))
	}))
	defer srv.Close()

	sessions := payment.NewSessions()
	w := New(&config.Config{CredoPublicKey: "pk_test", CredoBaseURL: srv.URL, PublicBaseURL: "https://api.example.com"}, sessions)

	s, err := w.Open(context.Background(), testCheckout())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.credodemo.com/abc", s.AuthorizationURL)
	assert.Equal(t, "https://tickets.example.com/tickets", s.ReturnURL)

	assert.Equal(t, int64(7000000), got.Amount)
	assert.Equal(t, "NGN", got.Currency)
	assert.Equal(t, []string{"card", "bank"}, got.Channels)
	assert.Equal(t, "https://api.example.com/api/callbacks/credo", got.CallbackURL)
	assert.JSONEq(t, `{"type":"ticket_purchase"}`, string(got.Metadata))

	registered, ok := sessions.Get("ETH20250000312hvc40")
	require.True(t, ok)
	assert.Same(t, s, registered)
}

func TestOpen_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":401,"message":"Invalid key"}`))
	}))
	defer srv.Close()

	sessions := payment.NewSessions()
	w := New(&config.Config{CredoPublicKey: "bad", CredoBaseURL: srv.URL}, sessions)

	_, err := w.Open(context.Background(), testCheckout())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid key")
	assert.Equal(t, 0, sessions.Len())
}

func TestOpen_DemoModeWithoutKey(t *testing.T) {
	sessions := payment.NewSessions()
	w := New(&config.Config{PublicBaseURL: "http://localhost:8080"}, sessions)

	s, err := w.Open(context.Background(), testCheckout())
	require.NoError(t, err)

	result, err := payment.ParseResult(s.AuthorizationURL)
	require.NoError(t, err)
	assert.Equal(t, "DEMO-ETH20250000312hvc40", result.TransRef)
	assert.Equal(t, "70000.00", result.TransAmount)
}

func TestOpen_RefusesReferenceAlreadyOpen(t *testing.T) {
	sessions := payment.NewSessions()
	w := New(&config.Config{PublicBaseURL: "http://localhost:8080"}, sessions)

	first, err := w.Open(context.Background(), testCheckout())
	require.NoError(t, err)

	_, err = w.Open(context.Background(), testCheckout())
	assert.ErrorIs(t, err, payment.ErrDuplicateSession)

	registered, ok := sessions.Get(first.Reference)
	require.True(t, ok)
	assert.Same(t, first, registered)
}

func TestOpen_ProductionRequiresKey(t *testing.T) {
	w := New(&config.Config{EnvironmentProduction: true}, payment.NewSessions())
	_, err := w.Open(context.Background(), testCheckout())
	assert.Error(t, err)
}
