package credo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"go-ticketvote/internal/config"
	"go-ticketvote/internal/payment"
)

// CallbackPath is where the provider redirects the payer after checkout
const CallbackPath = "/api/callbacks/credo"

// Widget opens Credo hosted checkouts and registers them as sessions
type Widget struct {
	cfg      *config.Config
	sessions *payment.Sessions
	client   *http.Client
}

func New(cfg *config.Config, sessions *payment.Sessions) *Widget {
	return &Widget{
		cfg:      cfg,
		sessions: sessions,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

func (w *Widget) getBaseURL() string {
	if w.cfg.CredoBaseURL != "" {
		return w.cfg.CredoBaseURL
	}
	if w.cfg.EnvironmentProduction {
		return "https://api.public.credocentral.com"
	}
	return "https://api.credodemo.com"
}

// CallbackURL is the absolute URL the provider redirects to
func (w *Widget) CallbackURL() string {
	return w.cfg.PublicBaseURL + CallbackPath
}

type initializeRequest struct {
	Amount              int64           `json:"amount"`
	Email               string          `json:"email"`
	Bearer              int             `json:"bearer"`
	CallbackURL         string          `json:"callbackUrl"`
	Channels            []string        `json:"channels"`
	Currency            string          `json:"currency"`
	CustomerFirstName   string          `json:"customerFirstName"`
	CustomerLastName    string          `json:"customerLastName"`
	CustomerPhoneNumber string          `json:"customerPhoneNumber"`
	Reference           string          `json:"reference"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
}

type initializeResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorizationUrl"`
		Reference        string `json:"reference"`
		CredoReference   string `json:"credoReference"`
	} `json:"data"`
}

// Open initializes the transaction with Credo and returns the open session
func (w *Widget) Open(ctx context.Context, c payment.Checkout) (*payment.Session, error) {
	if w.cfg.CredoPublicKey == "" {
		if w.cfg.EnvironmentProduction {
			return nil, fmt.Errorf("credo public key is not configured")
		}
		// Development without a key: the "checkout" is a direct hop to our own callback
		return w.register(c, w.demoAuthorizationURL(c))
	}

	payload := initializeRequest{
		Amount:              c.AmountMinor,
		Email:               c.Customer.Email,
		Bearer:              0,
		CallbackURL:         w.CallbackURL(),
		Channels:            c.Channels,
		Currency:            c.Currency,
		CustomerFirstName:   c.Customer.FirstName,
		CustomerLastName:    c.Customer.LastName,
		CustomerPhoneNumber: c.Customer.Phone,
		Reference:           c.Reference,
		Metadata:            c.Metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.getBaseURL()+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", w.cfg.CredoPublicKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credo initialize failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read credo response: %w", err)
	}

	var result initializeResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode credo response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || result.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("credo error (status %d): %s", resp.StatusCode, result.Message)
	}

	log.Printf("[PAYMENT] Checkout opened: ref=%s credoRef=%s", c.Reference, result.Data.CredoReference)
	return w.register(c, result.Data.AuthorizationURL)
}

func (w *Widget) register(c payment.Checkout, authorizationURL string) (*payment.Session, error) {
	s := payment.NewSession(c.Reference, authorizationURL, c.ReturnURL)
	if err := w.sessions.Add(s); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", c.Reference, err)
	}
	return s, nil
}

// demoAuthorizationURL fakes a successful provider redirect for local development
func (w *Widget) demoAuthorizationURL(c payment.Checkout) string {
	q := url.Values{}
	q.Set("reference", c.Reference)
	q.Set("transRef", "DEMO-"+c.Reference)
	q.Set("transAmount", fmt.Sprintf("%.2f", float64(c.AmountMinor)/100))
	q.Set("currency", c.Currency)
	q.Set("gateway", "demo")
	q.Set("status", "0")
	return w.CallbackURL() + "?" + q.Encode()
}
