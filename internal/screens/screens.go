// Package screens holds the server-side state of the ticket sale and voting
// pages. Each screen belongs to one browser connection and only reacts to the
// payment attempts it started itself.
package screens

import (
	"context"
	"errors"

	"go-ticketvote/internal/models"
	"go-ticketvote/internal/payment"
)

var (
	ErrIncompleteDetails = errors.New("please fill in all necessary details")
	ErrInvalidVoteAmount = errors.New("enter a valid amount, minimum is 100 and must be in multiples of 100")
	ErrVotingClosed      = errors.New("voting has closed")
	ErrNoContestant      = errors.New("no contestant selected")
	ErrContestantEvicted = errors.New("contestant has been evicted")
	ErrAlreadyProcessing = errors.New("a payment is already being processed")
	ErrUnknownAction     = errors.New("unknown action")
	ErrNoCheckout        = errors.New("no open checkout for this reference")
)

// Renderer receives everything a screen wants the browser to show
type Renderer interface {
	Render(view interface{})
	Notify(n models.Notice)
	// Redirect sends the browser to the hosted checkout
	Redirect(url string)
}

// Starter starts a payment; implemented by the orchestrator
type Starter interface {
	StartPayment(ctx context.Context, customer models.Customer, amount int64, meta models.PurchaseMetadata, callbackURL string) (*payment.Session, error)
}

// Catalog lists ticket types
type Catalog interface {
	ListTicketTypes(ctx context.Context) ([]models.TicketType, error)
}

// Directory lists contestants matching search
type Directory interface {
	ListContestants(ctx context.Context, search string) ([]models.Contestant, error)
}

// Command is a browser action decoded from the websocket. For
// "checkout-closed", ID is the reference of the dismissed checkout.
type Command struct {
	Action   string          `json:"action"`
	ID       string          `json:"id,omitempty"`
	TicketID int64           `json:"ticketId,omitempty"`
	Amount   int64           `json:"amount,omitempty"`
	Search   string          `json:"search,omitempty"`
	Buyer    models.Customer `json:"buyer"`
}

// keepFinished is how many ended references a screen still answers to, so a
// notice published after its outcome or reset still reaches the page.
const keepFinished = 8

// attempts are the payment references one screen started
type attempts struct {
	open     map[string]*payment.Session
	finished []string
}

func newAttempts() attempts {
	return attempts{open: make(map[string]*payment.Session)}
}

func (a *attempts) start(s *payment.Session) {
	a.open[s.Reference] = s
}

func (a *attempts) owns(reference string) bool {
	if _, ok := a.open[reference]; ok {
		return true
	}
	for _, ref := range a.finished {
		if ref == reference {
			return true
		}
	}
	return false
}

// finish moves reference out of the open set. Only the last keepFinished
// ended references are remembered.
func (a *attempts) finish(reference string) {
	if _, ok := a.open[reference]; !ok {
		return
	}
	delete(a.open, reference)
	a.finished = append(a.finished, reference)
	if n := len(a.finished) - keepFinished; n > 0 {
		a.finished = append(a.finished[:0], a.finished[n:]...)
	}
}

// close abandons the open checkout for reference
func (a *attempts) close(reference string) bool {
	s, ok := a.open[reference]
	if !ok {
		return false
	}
	s.Close()
	return true
}

func errorNotice(message string) models.Notice {
	return models.Notice{Level: models.NoticeError, Message: message}
}
