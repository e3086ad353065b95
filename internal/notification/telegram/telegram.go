package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"os"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Client represents a Telegram bot client
type Client struct {
	Token   string
	ChatID  string
	apiBase string
	http    *http.Client
}

// New creates a new Telegram client
func New(token, chatID string) *Client {
	return &Client{
		Token:   token,
		ChatID:  chatID,
		apiBase: defaultAPIBase,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether the bot is configured
func (c *Client) Enabled() bool {
	return c.Token != "" && c.ChatID != ""
}

// Message represents a Telegram message payload
type Message struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends an HTML message to the configured chat
func (c *Client) SendMessage(ctx context.Context, message string) error {
	if !c.Enabled() {
		return fmt.Errorf("telegram token or chat_id not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.Token)

	jsonData, err := json.Marshal(Message{ChatID: c.ChatID, Text: message, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// SendFulfilmentAlert tells support that a paid attempt was not fulfilled
func (c *Client) SendFulfilmentAlert(ctx context.Context, reference, kind, reason string) error {
	hostname, _ := os.Hostname()
	text := fmt.Sprintf(
		"<b>🚨 Paid but not fulfilled</b>\n\n"+
			"<b>Server:</b> %s\n"+
			"<b>Time:</b> %s\n"+
			"<b>Kind:</b> %s\n"+
			"<b>Reference:</b> <code>%s</code>\n"+
			"<b>Reason:</b> %s",
		html.EscapeString(hostname),
		time.Now().Format("2006-01-02 15:04:05"),
		html.EscapeString(kind),
		html.EscapeString(reference),
		html.EscapeString(reason),
	)
	return c.SendMessage(ctx, text)
}
