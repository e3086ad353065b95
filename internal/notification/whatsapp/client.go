package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client sends WhatsApp messages through a form-posting provider
type Client struct {
	providerURL string
	apiKey      string
	http        *http.Client
}

// New creates a new WhatsApp client. Without an API key messages are only logged.
func New(providerURL, apiKey string) *Client {
	return &Client{
		providerURL: providerURL,
		apiKey:      apiKey,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends a WhatsApp message
func (c *Client) Send(ctx context.Context, phone, message string) error {
	if c.apiKey == "" {
		fmt.Printf("[MOCK WA] To: %s | Message: %s\n", phone, message)
		return nil
	}

	data := url.Values{}
	data.Set("target", NormalizePhone(phone))
	data.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.providerURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("whatsapp API error: %d", resp.StatusCode)
	}
	return nil
}

// NormalizePhone turns a local Nigerian number (0803...) into 234803...
func NormalizePhone(phone string) string {
	p := strings.NewReplacer(" ", "", "-", "", "+", "").Replace(phone)
	if strings.HasPrefix(p, "0") {
		return "234" + p[1:]
	}
	return p
}

// GenerateTicketReceiptMessage is the receipt sent once tickets are issued
func GenerateTicketReceiptMessage(buyerName, ticketType string, quantity int, amount, reference string) string {
	return fmt.Sprintf("*Ticket Purchase Confirmed*\n\nHello %s,\nYour payment of %s has been confirmed.\n\nTickets: %s (x%d)\nReference: %s\n\nSee you there!", buyerName, amount, ticketType, quantity, reference)
}
