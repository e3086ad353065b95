package fcm

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Client handles FCM notifications
type Client struct {
	app *firebase.App
}

// New creates a new FCM client. Without a credentials file pushes are disabled.
func New(ctx context.Context, credentialsFile string) *Client {
	if credentialsFile == "" {
		log.Println("⚠ FCM: credentials file not set, push notifications disabled")
		return &Client{}
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		log.Printf("⚠ FCM: Failed to initialize Firebase app: %v", err)
		return &Client{}
	}

	log.Println("✓ FCM: Firebase initialized successfully")
	return &Client{app: app}
}

// Enabled reports whether Firebase was initialized
func (c *Client) Enabled() bool {
	return c.app != nil
}

// Send sends a push notification to a device token
func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if c.app == nil {
		return nil
	}
	if token == "" {
		return fmt.Errorf("FCM: empty token")
	}

	client, err := c.app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("FCM: error getting messaging client: %w", err)
	}

	response, err := client.Send(ctx, &messaging.Message{
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Token:        token,
	})
	if err != nil {
		return fmt.Errorf("FCM: error sending message: %w", err)
	}

	log.Printf("✓ FCM: Sent message %s", response)
	return nil
}
