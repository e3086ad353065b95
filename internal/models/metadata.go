package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PurchaseKind tags what a payment pays for
type PurchaseKind string

const (
	KindTicket       PurchaseKind = "ticket_purchase"
	KindVote         PurchaseKind = "vote_payment"
	KindRegistration PurchaseKind = "registration"
)

// PurchaseMetadata is fixed when a payment starts and drives the
// confirmation flow once the payment is verified. The variants are
// TicketPurchase, VotePurchase and Registration.
type PurchaseMetadata interface {
	Kind() PurchaseKind
	purchaseMetadata()
}

// TicketOrderItem is one line of the ticket registration request
type TicketOrderItem struct {
	TicketType string `json:"ticketType"`
	Quantity   int    `json:"quantity"`
}

// TicketPurchasePayload is sent to the backend once a ticket payment is verified
type TicketPurchasePayload struct {
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Email     string            `json:"email"`
	Phone     string            `json:"phone"`
	Tickets   []TicketOrderItem `json:"tickets"`
}

// TicketLine is a denormalized copy of a selected catalog entry
type TicketLine struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// TicketPurchase pays for tickets
type TicketPurchase struct {
	PurchasePayload TicketPurchasePayload `json:"purchasePayload"`
	Tickets         []TicketLine          `json:"tickets"`
	AmountPaid      int64                 `json:"amountPaid"`
}

func (TicketPurchase) Kind() PurchaseKind { return KindTicket }
func (TicketPurchase) purchaseMetadata()  {}

// TicketType summarizes the selected ticket names
func (t TicketPurchase) TicketType() string {
	names := make([]string, 0, len(t.Tickets))
	for _, line := range t.Tickets {
		names = append(names, line.Name)
	}
	return strings.Join(names, ", ")
}

// Quantity is the number of tickets across all lines
func (t TicketPurchase) Quantity() int {
	total := 0
	for _, line := range t.Tickets {
		total += line.Quantity
	}
	return total
}

// VotePurchase pays for votes on one contestant
type VotePurchase struct {
	ContestantID       string `json:"contestantId"`
	ContestantVoteCode string `json:"contestantVoteCode"`
	ContestantName     string `json:"contestantName"`
	Talent             string `json:"talent"`
	VotesPurchased     int64  `json:"votesPurchased"`
	AmountPaid         int64  `json:"amountPaid"`
}

func (VotePurchase) Kind() PurchaseKind { return KindVote }
func (VotePurchase) purchaseMetadata()  {}

// Registration is a plain registration fee. UserID is empty for anonymous payers.
type Registration struct {
	UserID string `json:"-"`
}

func (Registration) Kind() PurchaseKind { return KindRegistration }
func (Registration) purchaseMetadata()  {}

// EncodeMetadata renders metadata in the shape attached to the provider
// transaction. Registration payments travel without metadata.
func EncodeMetadata(m PurchaseMetadata) (json.RawMessage, error) {
	switch v := m.(type) {
	case TicketPurchase:
		return json.Marshal(struct {
			Type PurchaseKind `json:"type"`
			TicketPurchase
		}{KindTicket, v})
	case VotePurchase:
		return json.Marshal(struct {
			Type PurchaseKind `json:"type"`
			VotePurchase
		}{KindVote, v})
	case Registration:
		return nil, nil
	case nil:
		return nil, fmt.Errorf("metadata is required")
	}
	return nil, fmt.Errorf("unknown purchase metadata %T", m)
}
