package screens

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-ticketvote/internal/events"
	"go-ticketvote/internal/models"
	"go-ticketvote/internal/payment"
)

// VotePrice is the price of one vote in naira
const VotePrice = 100

// VoteCount converts an amount into votes. Amounts below one vote or not a
// whole number of votes buy nothing.
func VoteCount(amount int64) int64 {
	if amount < VotePrice || amount%VotePrice != 0 {
		return 0
	}
	return amount / VotePrice
}

// ArrangeContestants flags evicted contestants and orders them last. While
// searching, evicted contestants are left out entirely.
func ArrangeContestants(list []models.Contestant, evicted map[string]bool, searching bool) []models.Contestant {
	out := make([]models.Contestant, 0, len(list))
	for _, c := range list {
		c.IsEvicted = c.IsEvicted || evicted[c.ContestantNumber]
		if c.IsEvicted && searching {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].IsEvicted && out[j].IsEvicted
	})
	return out
}

// VotingView is the full state of the voting page
type VotingView struct {
	Screen      string              `json:"screen"`
	Contestants []models.Contestant `json:"contestants"`
	Search      string              `json:"search"`
	ActiveVote  string              `json:"activeVote,omitempty"`
	Amount      int64               `json:"amount"`
	VoteCount   int64               `json:"voteCount"`
	Processing  bool                `json:"processing"`
	Closed      bool                `json:"closed"`
}

// Voting is the voting page of one browser
type Voting struct {
	id        string
	starter   Starter
	directory Directory
	out       Renderer
	evicted   map[string]bool
	cutoff    time.Time
	returnURL string
	now       func() time.Time

	mu          sync.Mutex
	contestants []models.Contestant
	search      string
	active      *models.Contestant
	amount      int64
	processing  bool
	attempts    attempts

	votes   *events.Subscription[models.VoteOutcome]
	notices *events.Subscription[models.Notice]
	resets  *events.Subscription[models.Reset]
}

// NewVoting creates the page and subscribes it to the bus. A zero cutoff
// keeps voting open.
func NewVoting(starter Starter, directory Directory, bus *events.Bus, out Renderer, evicted []string, cutoff time.Time, returnURL string) *Voting {
	set := make(map[string]bool, len(evicted))
	for _, code := range evicted {
		set[code] = true
	}
	return &Voting{
		id:        uuid.NewString(),
		starter:   starter,
		directory: directory,
		out:       out,
		evicted:   set,
		cutoff:    cutoff,
		returnURL: returnURL,
		now:       time.Now,
		attempts:  newAttempts(),
		votes:     bus.Votes.Subscribe(),
		notices:   bus.Notices.Subscribe(),
		resets:    bus.Resets.Subscribe(),
	}
}

// Run applies bus events to the page until ctx ends or Close is called
func (v *Voting) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-v.votes.C:
			if !ok {
				return
			}
			v.onOutcome(ctx, o)
		case n, ok := <-v.notices.C:
			if !ok {
				return
			}
			v.onNotice(n)
		case r, ok := <-v.resets.C:
			if !ok {
				return
			}
			v.onReset(r)
		}
	}
}

// Close detaches the page from the bus
func (v *Voting) Close() {
	v.votes.Unsubscribe()
	v.notices.Unsubscribe()
	v.resets.Unsubscribe()
}

// Handle applies a browser command
func (v *Voting) Handle(ctx context.Context, cmd Command) error {
	switch cmd.Action {
	case "load", "refresh":
		return v.Refresh(ctx)
	case "search":
		return v.Search(ctx, cmd.Search)
	case "clear-search":
		return v.ClearSearch(ctx)
	case "vote":
		return v.StartVoting(cmd.ID)
	case "amount":
		v.SetAmount(cmd.Amount)
	case "cancel":
		v.CancelVoting()
	case "pay":
		return v.MakeVotePayment(ctx)
	case "checkout-closed":
		return v.CloseCheckout(cmd.ID)
	default:
		return ErrUnknownAction
	}
	return nil
}

// Refresh reloads contestants for the current search term
func (v *Voting) Refresh(ctx context.Context) error {
	v.mu.Lock()
	search := v.search
	v.mu.Unlock()

	list, err := v.directory.ListContestants(ctx, search)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		log.Printf("[SCREEN] Contestants unavailable (search=%q): %v", search, err)
		v.contestants = nil
		v.out.Notify(errorNotice("Could not load contestants. Please try again."))
		v.render()
		return err
	}
	if v.search != search {
		// a newer search superseded this one
		return nil
	}
	v.contestants = ArrangeContestants(list, v.evicted, search != "")
	v.render()
	return nil
}

func (v *Voting) Search(ctx context.Context, term string) error {
	v.mu.Lock()
	v.search = strings.TrimSpace(term)
	v.mu.Unlock()
	return v.Refresh(ctx)
}

func (v *Voting) ClearSearch(ctx context.Context) error {
	return v.Search(ctx, "")
}

// StartVoting opens the vote form for a contestant
func (v *Voting) StartVoting(contestantID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.contestants {
		c := v.contestants[i]
		if c.ID != contestantID {
			continue
		}
		if c.IsEvicted {
			return ErrContestantEvicted
		}
		v.active = &c
		v.amount = 0
		v.render()
		return nil
	}
	return ErrNoContestant
}

// SetAmount records the amount typed in the vote form
func (v *Voting) SetAmount(amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.amount = amount
	v.render()
}

// CancelVoting closes the vote form. Calling it again changes nothing.
func (v *Voting) CancelVoting() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancel()
	v.render()
}

// MakeVotePayment starts checkout for the open vote form. The contestant is
// the payment customer, so the payment is tagged with this page as its
// initiator.
func (v *Voting) MakeVotePayment(ctx context.Context) error {
	v.mu.Lock()
	if v.processing {
		v.mu.Unlock()
		return ErrAlreadyProcessing
	}
	if v.active == nil {
		v.mu.Unlock()
		return ErrNoContestant
	}
	if v.closed() {
		v.out.Notify(errorNotice("Voting has closed."))
		v.mu.Unlock()
		return ErrVotingClosed
	}
	votes := VoteCount(v.amount)
	if votes == 0 {
		v.out.Notify(errorNotice("Enter a valid amount. Minimum is ₦100 and must be in multiples of 100."))
		v.mu.Unlock()
		return ErrInvalidVoteAmount
	}

	c := *v.active
	amount := v.amount
	v.processing = true
	v.render()
	v.mu.Unlock()

	customer := models.Customer{FirstName: c.FirstName, LastName: c.LastName, Email: c.Email, Phone: c.Phone}
	meta := models.VotePurchase{
		ContestantID:       c.ID,
		ContestantVoteCode: c.ContestantNumber,
		ContestantName:     customer.FullName(),
		Talent:             c.TalentCategory,
		VotesPurchased:     votes,
		AmountPaid:         amount,
	}
	session, err := v.starter.StartPayment(payment.WithInitiator(ctx, v.id), customer, amount, meta, v.returnURL)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		log.Printf("[SCREEN] Vote checkout not started for %s: %v", c.ContestantNumber, err)
		v.processing = false
		v.out.Notify(errorNotice(err.Error()))
		v.render()
		return err
	}
	v.attempts.start(session)
	v.out.Redirect(session.AuthorizationURL)
	return nil
}

// CloseCheckout abandons a checkout this page started
func (v *Voting) CloseCheckout(reference string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.attempts.close(reference) {
		return ErrNoCheckout
	}
	log.Printf("[SCREEN] Vote checkout closed by payer ref=%s", reference)
	return nil
}

func (v *Voting) onOutcome(ctx context.Context, o models.VoteOutcome) {
	v.mu.Lock()
	if !v.attempts.owns(o.Reference) {
		v.mu.Unlock()
		return
	}
	v.attempts.finish(o.Reference)
	if o.Status == models.OutcomeSuccess {
		v.out.Notify(models.Notice{Reference: o.Reference, Level: models.NoticeSuccess, Message: "Vote successful!"})
		if o.NewVoteCount != nil {
			for i := range v.contestants {
				if v.contestants[i].ID == o.ContestantID {
					v.contestants[i].Votes = *o.NewVoteCount
				}
			}
		}
	}
	v.cancel()
	v.render()
	v.mu.Unlock()

	v.Refresh(ctx)
}

func (v *Voting) onNotice(n models.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.attempts.owns(n.Reference) {
		v.out.Notify(n)
	}
}

func (v *Voting) onReset(r models.Reset) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.attempts.owns(r.Reference) {
		return
	}
	v.attempts.finish(r.Reference)
	v.cancel()
	v.render()
}

func (v *Voting) cancel() {
	v.active = nil
	v.amount = 0
	v.processing = false
}

func (v *Voting) closed() bool {
	return !v.cutoff.IsZero() && !v.now().Before(v.cutoff)
}

func (v *Voting) render() {
	view := VotingView{
		Screen:      "voting",
		Contestants: append([]models.Contestant(nil), v.contestants...),
		Search:      v.search,
		Amount:      v.amount,
		VoteCount:   VoteCount(v.amount),
		Processing:  v.processing,
		Closed:      v.closed(),
	}
	if v.active != nil {
		view.ActiveVote = v.active.ID
	}
	v.out.Render(view)
}
