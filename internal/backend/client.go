package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-ticketvote/internal/models"
)

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

// Client talks to the ticketing and voting platform backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a backend client. A zero timeout means no client timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PurchaseReceipt is the backend answer to a ticket registration
type PurchaseReceipt struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// VoteReceipt is the backend answer to a vote payment verification
type VoteReceipt struct {
	Message      string
	UpdatedVotes *int64
}

type verifyAndApplyRequest struct {
	PaymentResult models.PaymentResult `json:"paymentResult"`
	TransRef      string               `json:"transRef"`
}

// ListTicketTypes returns the ticket catalog
func (c *Client) ListTicketTypes(ctx context.Context) ([]models.TicketType, error) {
	var resp struct {
		Data []models.TicketType `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/tickets/types", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListContestants returns contestants, optionally filtered by a search term
func (c *Client) ListContestants(ctx context.Context, search string) ([]models.Contestant, error) {
	path := "/contestants"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return decodeContestants(resp.Data)
}

// decodeContestants accepts {contestants: [...]} as well as a bare list
func decodeContestants(data json.RawMessage) ([]models.Contestant, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []models.Contestant
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode contestants: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Contestants []models.Contestant `json:"contestants"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode contestants: %w", err)
	}
	return wrapped.Contestants, nil
}

// VerifyPaymentByReference asks the backend to verify a provider transaction
func (c *Client) VerifyPaymentByReference(ctx context.Context, transRef string) (models.PaymentResult, error) {
	var resp struct {
		Data models.PaymentResult `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/credo/verify/"+url.PathEscape(transRef), nil, &resp); err != nil {
		return models.PaymentResult{}, err
	}
	return resp.Data, nil
}

// ConfirmGenericPayment records a registration payment. userID may be empty.
func (c *Client) ConfirmGenericPayment(ctx context.Context, result models.PaymentResult, userID string) (string, error) {
	body := struct {
		PaymentResult models.PaymentResult `json:"paymentResult"`
		UserID        *string              `json:"userId"`
	}{PaymentResult: result}
	if userID != "" {
		body.UserID = &userID
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments/confirm", body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// VerifyTicketPurchase reports whether the backend accepts the payment for tickets
func (c *Client) VerifyTicketPurchase(ctx context.Context, result models.PaymentResult, transRef string) (bool, error) {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/tickets/verify-purchase", verifyAndApplyRequest{result, transRef}, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// PurchaseTicket registers the tickets of a verified payment
func (c *Client) PurchaseTicket(ctx context.Context, payload models.TicketPurchasePayload) (*PurchaseReceipt, error) {
	var resp PurchaseReceipt
	if err := c.do(ctx, http.MethodPost, "/tickets/purchase", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyVotePayment verifies a vote payment and applies the votes
func (c *Client) VerifyVotePayment(ctx context.Context, result models.PaymentResult, transRef string) (*VoteReceipt, error) {
	var resp struct {
		Message string `json:"message"`
		Data    struct {
			UpdatedVotes *int64 `json:"updatedVotes"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/votes/verify-payment", verifyAndApplyRequest{result, transRef}, &resp); err != nil {
		return nil, err
	}
	return &VoteReceipt{Message: resp.Message, UpdatedVotes: resp.Data.UpdatedVotes}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("backend base URL is not configured")
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var msg struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		json.Unmarshal(raw, &msg)
		if msg.Message == "" {
			msg.Message = msg.Error
		}
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: msg.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
