package models

import (
	"encoding/json"
	"time"
)

// Customer is the payer handed to the checkout
type Customer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// FullName joins first and last name
func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// TicketType is one entry of the ticket catalog
type TicketType struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Tier     string `json:"tier"` // bronze, silver, gold, platinum
	Quantity int    `json:"quantity"`
}

// Contestant is a voting contestant as served by the backend
type Contestant struct {
	ID               string `json:"_id"`
	ContestantNumber string `json:"contestantNumber"` // vote code, e.g. CNT-003
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	Phone            string `json:"phone,omitempty"`
	TalentCategory   string `json:"talentCategory"`
	Votes            int64  `json:"votes"`
	ProfilePhoto     *Photo `json:"profilePhoto,omitempty"`
	IsEvicted        bool   `json:"isEvicted"`
}

// Photo is a hosted contestant picture
type Photo struct {
	URL string `json:"url"`
}

// PaymentResult is the outcome carried by the provider callback URL.
// Every field is a verbatim query value, empty when absent.
type PaymentResult struct {
	Reference    string `json:"reference"`
	TransAmount  string `json:"transAmount"`
	TransRef     string `json:"transRef"`
	ProcessorFee string `json:"processorFee"`
	ErrorMessage string `json:"errorMessage"`
	Currency     string `json:"currency"`
	Gateway      string `json:"gateway"`
	Status       string `json:"status"`
}

// OutcomeStatus is the terminal state of a payment attempt
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Failure reasons carried by ticket outcomes
const (
	ReasonVerificationFailed       = "verification_failed"
	ReasonTicketRegistrationFailed = "ticket_registration_failed"
	ReasonVerificationError        = "verification_error"
	// ReasonPaidAfterClose marks a callback received after the checkout had ended
	ReasonPaidAfterClose           = "paid_after_close"
)

// TicketOutcome is published once per ticket attempt
type TicketOutcome struct {
	Reference  string          `json:"reference"`
	Status     OutcomeStatus   `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	TicketType string          `json:"ticketType,omitempty"`
	Quantity   int             `json:"quantity,omitempty"`
	AmountPaid int64           `json:"amountPaid,omitempty"`
	TicketData json.RawMessage `json:"ticketData,omitempty"`
}

// VoteOutcome is published once per vote attempt
type VoteOutcome struct {
	Reference    string        `json:"reference"`
	Status       OutcomeStatus `json:"status"`
	ContestantID string        `json:"contestantId"`
	NewVoteCount *int64        `json:"newVoteCount,omitempty"`
}

// NoticeLevel mirrors the toast kinds of the front end
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-facing message tied to a payment reference
type Notice struct {
	Reference string      `json:"reference"`
	Level     NoticeLevel `json:"level"`
	Message   string      `json:"message"`
}

// Reset asks the screen that owns Reference to drop all of its state
type Reset struct {
	Reference string `json:"reference"`
	Cause     string `json:"cause"`
}

// AttemptStatus tracks a payment attempt through its lifecycle
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptClosed    AttemptStatus = "closed"
	AttemptVerifying AttemptStatus = "verifying"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	AttemptAbandoned AttemptStatus = "abandoned"
	// AttemptReconcile is a checkout paid after it ended; an operator settles it
	AttemptReconcile AttemptStatus = "needs_reconciliation"
)

// PaymentAttempt is the audit record of one checkout
type PaymentAttempt struct {
	Reference     string          `json:"reference"`
	Kind          PurchaseKind    `json:"kind"`
	CustomerEmail string          `json:"customerEmail"`
	AmountMinor   int64           `json:"amountMinor"`
	Currency      string          `json:"currency"`
	Status        AttemptStatus   `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// User is an account allowed to sign in
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}
