// Package notification sends receipts to buyers and alerts to support once a
// payment reaches its end.
package notification

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"go-ticketvote/internal/mailer"
	"go-ticketvote/internal/models"
	"go-ticketvote/internal/notification/whatsapp"
)

// Mailer sends HTML email
type Mailer interface {
	Send(to, subject, body string) error
}

// Messenger sends a chat message to a phone number
type Messenger interface {
	Send(ctx context.Context, phone, message string) error
}

// Escalator alerts support about a paid attempt that was not fulfilled
type Escalator interface {
	SendFulfilmentAlert(ctx context.Context, reference, kind, reason string) error
}

// Pusher sends a push notification to a device
type Pusher interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// Dispatcher fans payment results out to every configured channel. Any
// channel may be nil.
type Dispatcher struct {
	Mail      Mailer
	WhatsApp  Messenger
	Escalate  Escalator
	Push      Pusher
	OpsDevice string
}

// TicketsIssued sends the buyer an email and WhatsApp receipt
func (d *Dispatcher) TicketsIssued(ctx context.Context, purchase models.TicketPurchase, outcome models.TicketOutcome) {
	buyer := purchase.PurchasePayload
	name := strings.TrimSpace(buyer.FirstName + " " + buyer.LastName)
	amount := FormatNaira(outcome.AmountPaid)

	if d.Mail != nil && buyer.Email != "" {
		body := mailer.GenerateTicketReceiptHTML(name, outcome.TicketType, outcome.Quantity, amount, outcome.Reference)
		if err := d.Mail.Send(buyer.Email, "Your tickets are confirmed", body); err != nil {
			log.Printf("⚠ [PAYMENT] Ticket receipt email to %s failed: %v", buyer.Email, err)
		}
	}

	if d.WhatsApp != nil && buyer.Phone != "" {
		msg := whatsapp.GenerateTicketReceiptMessage(name, outcome.TicketType, outcome.Quantity, amount, outcome.Reference)
		if err := d.WhatsApp.Send(ctx, buyer.Phone, msg); err != nil {
			log.Printf("⚠ [PAYMENT] Ticket receipt WhatsApp to %s failed: %v", buyer.Phone, err)
		}
	}
}

// FulfilmentFailed alerts support through Telegram and the on-call device
func (d *Dispatcher) FulfilmentFailed(ctx context.Context, reference string, kind models.PurchaseKind, reason string) {
	if d.Escalate != nil {
		if err := d.Escalate.SendFulfilmentAlert(ctx, reference, string(kind), reason); err != nil {
			log.Printf("⚠ [PAYMENT] Telegram escalation for %s failed: %v", reference, err)
		}
	}

	if d.Push != nil && d.OpsDevice != "" {
		body := fmt.Sprintf("%s %s: %s", kind, reference, reason)
		data := map[string]string{"reference": reference, "kind": string(kind), "reason": reason}
		if err := d.Push.Send(ctx, d.OpsDevice, "Paid but not fulfilled", body, data); err != nil {
			log.Printf("⚠ [PAYMENT] Push escalation for %s failed: %v", reference, err)
		}
	}
}

// FormatNaira renders a whole-naira amount as ₦1,234,567
func FormatNaira(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "₦" + b.String()
}
