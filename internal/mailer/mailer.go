package mailer

import (
	"fmt"
	"html"
	"net/smtp"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer handles email sending
type Mailer struct {
	config   Config
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a new Mailer
func New(config Config) *Mailer {
	return &Mailer{config: config, sendMail: smtp.SendMail}
}

// Send sends an HTML email. Without an SMTP host the mail is only logged.
func (m *Mailer) Send(to string, subject string, body string) error {
	if m.config.Host == "" {
		fmt.Printf("[MOCK MAIL] To: %s | Subject: %s | Body length: %d\n", to, subject, len(body))
		return nil
	}

	auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", m.config.From, to, subject, body))

	return m.sendMail(addr, auth, m.config.From, []string{to}, msg)
}

// GenerateTicketReceiptHTML renders the receipt sent once tickets are issued
func GenerateTicketReceiptHTML(buyerName, ticketType string, quantity int, amount, reference string) string {
	return fmt.Sprintf(`
		<html>
		<body>
			<h2>Your Tickets</h2>
			<p>Dear %s,</p>
			<p>Your payment has been confirmed and your tickets have been issued.</p>
			<p><strong>Tickets:</strong> %s</p>
			<p><strong>Quantity:</strong> %d</p>
			<p><strong>Amount Paid:</strong> %s</p>
			<p><strong>Payment Reference:</strong> %s</p>
			<p>Please keep this email; you will need the reference at the entrance.</p>
			<br>
			<p>See you there!</p>
		</body>
		</html>
	`, html.EscapeString(buyerName), html.EscapeString(ticketType), quantity, html.EscapeString(amount), html.EscapeString(reference))
}
