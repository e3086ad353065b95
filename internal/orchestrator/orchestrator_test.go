package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ticketvote/internal/backend"
	"go-ticketvote/internal/database"
	"go-ticketvote/internal/events"
	"go-ticketvote/internal/models"
	"go-ticketvote/internal/payment"
)

type stubWidget struct {
	mu        sync.Mutex
	checkouts []payment.Checkout
	sessions  []*payment.Session
	err       error
}

func (w *stubWidget) Open(_ context.Context, c payment.Checkout) (*payment.Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	w.checkouts = append(w.checkouts, c)
	s := payment.NewSession(c.Reference, "https://checkout.test/"+c.Reference, c.ReturnURL)
	w.sessions = append(w.sessions, s)
	return s, nil
}

type stubBackend struct {
	mu       sync.Mutex
	verified []string

	verifyErr      error
	confirmMsg     string
	confirmErr     error
	ticketOK       bool
	ticketErr      error
	purchaseCalled bool
	purchase       *backend.PurchaseReceipt
	purchaseErr    error
	vote           *backend.VoteReceipt
	voteErr        error
	confirmCalls   int
	ticketCalls    int
	voteCalls      int
}

func (b *stubBackend) VerifyPaymentByReference(_ context.Context, transRef string) (models.PaymentResult, error) {
	b.mu.Lock()
	b.verified = append(b.verified, transRef)
	b.mu.Unlock()
	if b.verifyErr != nil {
		return models.PaymentResult{}, b.verifyErr
	}
	return models.PaymentResult{TransRef: transRef, Status: "0"}, nil
}

func (b *stubBackend) ConfirmGenericPayment(context.Context, models.PaymentResult, string) (string, error) {
	b.mu.Lock()
	b.confirmCalls++
	b.mu.Unlock()
	return b.confirmMsg, b.confirmErr
}

func (b *stubBackend) VerifyTicketPurchase(context.Context, models.PaymentResult, string) (bool, error) {
	b.mu.Lock()
	b.ticketCalls++
	b.mu.Unlock()
	return b.ticketOK, b.ticketErr
}

func (b *stubBackend) PurchaseTicket(context.Context, models.TicketPurchasePayload) (*backend.PurchaseReceipt, error) {
	b.mu.Lock()
	b.purchaseCalled = true
	b.mu.Unlock()
	return b.purchase, b.purchaseErr
}

func (b *stubBackend) VerifyVotePayment(context.Context, models.PaymentResult, string) (*backend.VoteReceipt, error) {
	b.mu.Lock()
	b.voteCalls++
	b.mu.Unlock()
	return b.vote, b.voteErr
}

type stubStore struct {
	mu         sync.Mutex
	duplicates int
	creates    int
	seen       map[string]bool
	kinds      map[string]models.PurchaseKind
	statuses   map[string]models.AttemptStatus
	reasons    map[string]string
}

func (s *stubStore) CreateAttempt(a *models.PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.duplicates != 0 {
		s.duplicates--
		return database.ErrDuplicateReference
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[a.Reference] {
		return database.ErrDuplicateReference
	}
	s.seen[a.Reference] = true
	if s.kinds == nil {
		s.kinds = make(map[string]models.PurchaseKind)
	}
	s.kinds[a.Reference] = a.Kind
	return nil
}

func (s *stubStore) UpdateAttemptStatus(reference string, status models.AttemptStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = make(map[string]models.AttemptStatus)
		s.reasons = make(map[string]string)
	}
	s.statuses[reference] = status
	s.reasons[reference] = reason
	return nil
}

func (s *stubStore) GetAttempt(reference string) (*models.PaymentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seen[reference] {
		return nil, database.ErrNotFound
	}
	status, ok := s.statuses[reference]
	if !ok {
		status = models.AttemptPending
	}
	return &models.PaymentAttempt{Reference: reference, Kind: s.kinds[reference], Status: status, Reason: s.reasons[reference]}, nil
}

type stubAlerts struct {
	mu       sync.Mutex
	issued   int
	failures []string
}

func (a *stubAlerts) TicketsIssued(context.Context, models.TicketPurchase, models.TicketOutcome) {
	a.mu.Lock()
	a.issued++
	a.mu.Unlock()
}

func (a *stubAlerts) FulfilmentFailed(_ context.Context, _ string, _ models.PurchaseKind, reason string) {
	a.mu.Lock()
	a.failures = append(a.failures, reason)
	a.mu.Unlock()
}

var buyer = models.Customer{FirstName: "Ada", LastName: "Obi", Email: "ada@example.com", Phone: "08030000000"}

func ticketPurchase() models.TicketPurchase {
	return models.TicketPurchase{
		PurchasePayload: models.TicketPurchasePayload{
			FirstName: "Ada", LastName: "Obi", Email: "ada@example.com",
			Tickets: []models.TicketOrderItem{{TicketType: "regular", Quantity: 2}, {TicketType: "vip for couple", Quantity: 1}},
		},
		Tickets: []models.TicketLine{
			{ID: 1, Name: "Regular", Price: 10000, Quantity: 2},
			{ID: 2, Name: "VIP for Couple", Price: 50000, Quantity: 1},
		},
		AmountPaid: 70000,
	}
}

func votePurchase() models.VotePurchase {
	return models.VotePurchase{ContestantID: "c1", ContestantVoteCode: "CNT-001", ContestantName: "Zara Bello", VotesPurchased: 3, AmountPaid: 300}
}

type fixture struct {
	o       *Orchestrator
	widget  *stubWidget
	backend *stubBackend
	bus     *events.Bus
	tickets *events.Subscription[models.TicketOutcome]
	votes   *events.Subscription[models.VoteOutcome]
	notices *events.Subscription[models.Notice]
	resets  *events.Subscription[models.Reset]
}

func newFixture(t *testing.T, b *stubBackend, opts ...Option) *fixture {
	t.Helper()
	bus := events.NewBus()
	f := &fixture{
		widget:  &stubWidget{},
		backend: b,
		bus:     bus,
		tickets: bus.Tickets.Subscribe(),
		votes:   bus.Votes.Subscribe(),
		notices: bus.Notices.Subscribe(),
		resets:  bus.Resets.Subscribe(),
	}
	f.o = New(b, f.widget, bus, opts...)
	t.Cleanup(func() {
		f.tickets.Unsubscribe()
		f.votes.Unsubscribe()
		f.notices.Unsubscribe()
		f.resets.Unsubscribe()
	})
	return f
}

// drain returns everything buffered on a subscription
func drain[T any](s *events.Subscription[T]) []T {
	var out []T
	for {
		select {
		case v := <-s.C:
			out = append(out, v)
		default:
			return out
		}
	}
}

func (f *fixture) complete(t *testing.T, s *payment.Session, transRef string) {
	t.Helper()
	require.True(t, s.Complete("https://app.test/api/callbacks/credo?reference="+s.Reference+"&transRef="+transRef+"&status=0"))
	f.o.Wait()
}

func TestStartPayment_Preconditions(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	ctx := context.Background()

	_, err := f.o.StartPayment(ctx, models.Customer{LastName: "Obi", Email: "ada@example.com"}, 100, models.Registration{}, "")
	assert.ErrorIs(t, err, ErrInvalidCustomer)

	_, err = f.o.StartPayment(ctx, models.Customer{FirstName: "Ada", LastName: "Obi", Email: "not-an-email"}, 100, models.Registration{}, "")
	assert.ErrorIs(t, err, ErrInvalidCustomer)

	_, err = f.o.StartPayment(ctx, buyer, 0, models.Registration{}, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.o.StartPayment(ctx, buyer, 100, nil, "")
	assert.Error(t, err)

	assert.Empty(t, f.widget.checkouts)
}

func TestStartPayment_OpensCheckoutInMinorUnits(t *testing.T) {
	f := newFixture(t, &stubBackend{ticketOK: true, purchase: &backend.PurchaseReceipt{}},
		WithReferences(payment.NewReferenceGenerator("REG1")))

	s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "https://app.test/tickets")
	require.NoError(t, err)
	require.Len(t, f.widget.checkouts, 1)

	c := f.widget.checkouts[0]
	assert.Equal(t, s.Reference, c.Reference)
	assert.Regexp(t, `^REG1\d{2}hvc\d{2}$`, c.Reference)
	assert.EqualValues(t, 7000000, c.AmountMinor)
	assert.Equal(t, "NGN", c.Currency)
	assert.Equal(t, []string{"card", "bank"}, c.Channels)
	assert.Equal(t, "https://app.test/tickets", c.ReturnURL)

	var meta map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(c.Metadata, &meta))
	assert.JSONEq(t, `"ticket_purchase"`, string(meta["type"]))
	assert.JSONEq(t, `70000`, string(meta["amountPaid"]))

	s.Close()
	f.o.Wait()
}

func TestTicketFlow_Success(t *testing.T) {
	alerts := &stubAlerts{}
	b := &stubBackend{ticketOK: true, purchase: &backend.PurchaseReceipt{Data: json.RawMessage(`{"codes":["A1"]}`)}}
	f := newFixture(t, b, WithAlerts(alerts))

	s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	f.complete(t, s, "T-1")

	assert.Equal(t, []string{"T-1"}, b.verified)
	outcomes := drain(f.tickets)
	require.Len(t, outcomes, 1)
	got := outcomes[0]
	assert.Equal(t, s.Reference, got.Reference)
	assert.Equal(t, models.OutcomeSuccess, got.Status)
	assert.Equal(t, "Regular, VIP for Couple", got.TicketType)
	assert.Equal(t, 3, got.Quantity)
	assert.EqualValues(t, 70000, got.AmountPaid)
	assert.JSONEq(t, `{"codes":["A1"]}`, string(got.TicketData))

	notices := drain(f.notices)
	require.Len(t, notices, 1)
	assert.Equal(t, models.Notice{Reference: s.Reference, Level: models.NoticeSuccess, Message: "Ticket purchase successful."}, notices[0])
	assert.Equal(t, 1, alerts.issued)
	assert.Empty(t, drain(f.votes))
	assert.Equal(t, 1, b.ticketCalls)
	assert.Zero(t, b.confirmCalls, "ticket payments never take the generic flow")
	assert.Zero(t, b.voteCalls)
}

func TestTicketFlow_NotVerifiedSkipsRegistration(t *testing.T) {
	b := &stubBackend{ticketOK: false}
	f := newFixture(t, b)

	s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	f.complete(t, s, "T-2")

	assert.False(t, b.purchaseCalled)
	assert.Zero(t, b.confirmCalls)
	assert.Zero(t, b.voteCalls)
	outcomes := drain(f.tickets)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.OutcomeFailed, outcomes[0].Status)
	assert.Equal(t, models.ReasonVerificationFailed, outcomes[0].Reason)

	notices := drain(f.notices)
	require.Len(t, notices, 1)
	assert.Equal(t, models.NoticeInfo, notices[0].Level)
	assert.Equal(t, "Payment verification failed. If you were debited, please contact support.", notices[0].Message)
}

func TestTicketFlow_RegistrationFailureAfterVerification(t *testing.T) {
	alerts := &stubAlerts{}
	b := &stubBackend{ticketOK: true, purchaseErr: &backend.StatusError{Method: http.MethodPost, Path: "/tickets/purchase", StatusCode: 500}}
	f := newFixture(t, b, WithAlerts(alerts))

	s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	f.complete(t, s, "T-3")

	outcomes := drain(f.tickets)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ReasonTicketRegistrationFailed, outcomes[0].Reason)
	assert.Equal(t, []string{models.ReasonTicketRegistrationFailed}, alerts.failures)
	assert.Equal(t, "Payment verified but ticket registration failed. Support will resolve this shortly.", drain(f.notices)[0].Message)
}

func TestTicketFlow_NetworkErrors(t *testing.T) {
	t.Run("verify step", func(t *testing.T) {
		f := newFixture(t, &stubBackend{ticketErr: errors.New("connection reset")})
		s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
		require.NoError(t, err)
		f.complete(t, s, "T-4")

		outcomes := drain(f.tickets)
		require.Len(t, outcomes, 1)
		assert.Equal(t, models.ReasonVerificationError, outcomes[0].Reason)
	})

	t.Run("registration step", func(t *testing.T) {
		f := newFixture(t, &stubBackend{ticketOK: true, purchaseErr: errors.New("timeout")})
		s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
		require.NoError(t, err)
		f.complete(t, s, "T-5")

		outcomes := drain(f.tickets)
		require.Len(t, outcomes, 1)
		assert.Equal(t, models.ReasonVerificationError, outcomes[0].Reason)
	})
}

func TestVoteFlow_SuccessCarriesBackendCount(t *testing.T) {
	updated := int64(42)
	b := &stubBackend{vote: &backend.VoteReceipt{Message: "Votes added", UpdatedVotes: &updated}}
	f := newFixture(t, b)

	s, err := f.o.StartPayment(context.Background(), buyer, 300, votePurchase(), "")
	require.NoError(t, err)
	f.complete(t, s, "V-1")

	outcomes := drain(f.votes)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.OutcomeSuccess, outcomes[0].Status)
	assert.Equal(t, "c1", outcomes[0].ContestantID)
	require.NotNil(t, outcomes[0].NewVoteCount)
	assert.EqualValues(t, 42, *outcomes[0].NewVoteCount)
	assert.Equal(t, "Votes added", drain(f.notices)[0].Message)
	assert.Empty(t, drain(f.tickets))
	assert.Equal(t, 1, b.voteCalls)
	assert.Zero(t, b.confirmCalls, "vote payments never take the generic flow")
	assert.Zero(t, b.ticketCalls)
}

func TestVoteFlow_Failure(t *testing.T) {
	alerts := &stubAlerts{}
	b := &stubBackend{voteErr: errors.New("boom")}
	f := newFixture(t, b, WithAlerts(alerts))

	s, err := f.o.StartPayment(context.Background(), buyer, 300, votePurchase(), "")
	require.NoError(t, err)
	f.complete(t, s, "V-2")

	outcomes := drain(f.votes)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.VoteOutcome{Reference: s.Reference, Status: models.OutcomeFailed, ContestantID: "c1"}, outcomes[0])
	assert.Len(t, alerts.failures, 1)
	assert.Zero(t, b.confirmCalls)
	assert.Zero(t, b.ticketCalls)
}

func TestGenericFlow_IsNoticeOnly(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		f := newFixture(t, &stubBackend{confirmMsg: "Registration confirmed"})
		s, err := f.o.StartPayment(context.Background(), buyer, 5000, models.Registration{UserID: "7"}, "")
		require.NoError(t, err)
		f.complete(t, s, "G-1")

		notices := drain(f.notices)
		require.Len(t, notices, 1)
		assert.Equal(t, models.NoticeSuccess, notices[0].Level)
		assert.Equal(t, "Registration confirmed", notices[0].Message)
		assert.Empty(t, drain(f.tickets))
		assert.Empty(t, drain(f.votes))
	})

	t.Run("confirmation failed", func(t *testing.T) {
		f := newFixture(t, &stubBackend{confirmErr: errors.New("down")})
		s, err := f.o.StartPayment(context.Background(), buyer, 5000, models.Registration{}, "")
		require.NoError(t, err)
		f.complete(t, s, "G-2")

		notices := drain(f.notices)
		require.Len(t, notices, 1)
		assert.Equal(t, models.NoticeInfo, notices[0].Level)
		assert.Equal(t, "Payment was successful. Status will be updated soon.", notices[0].Message)
	})

	t.Run("verification failed", func(t *testing.T) {
		f := newFixture(t, &stubBackend{verifyErr: errors.New("down")})
		s, err := f.o.StartPayment(context.Background(), buyer, 5000, models.Registration{}, "")
		require.NoError(t, err)
		f.complete(t, s, "G-3")

		notices := drain(f.notices)
		require.Len(t, notices, 1)
		assert.Equal(t, models.Notice{Reference: s.Reference, Level: models.NoticeError, Message: "Payment verification failed."}, notices[0])
		assert.Empty(t, drain(f.tickets))
		assert.Empty(t, drain(f.votes))
	})
}

func TestVerifyFailure_StillEndsTicketAndVoteAttempts(t *testing.T) {
	f := newFixture(t, &stubBackend{verifyErr: errors.New("down")})

	ticket, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	f.complete(t, ticket, "X-1")

	voter := buyer
	voter.Email = "zara@example.com"
	vote, err := f.o.StartPayment(context.Background(), voter, 300, votePurchase(), "")
	require.NoError(t, err)
	f.complete(t, vote, "X-2")

	tickets := drain(f.tickets)
	require.Len(t, tickets, 1)
	assert.Equal(t, models.ReasonVerificationError, tickets[0].Reason)
	votes := drain(f.votes)
	require.Len(t, votes, 1)
	assert.Equal(t, models.OutcomeFailed, votes[0].Status)
}

func TestUnreadableCallback(t *testing.T) {
	b := &stubBackend{}
	f := newFixture(t, b)

	s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	require.True(t, s.Complete("::not a url"))
	f.o.Wait()

	assert.Empty(t, b.verified)
	outcomes := drain(f.tickets)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ReasonVerificationFailed, outcomes[0].Reason)
}

func TestClose_ResetsWithoutOutcome(t *testing.T) {
	store := &stubStore{}
	b := &stubBackend{}
	f := newFixture(t, b, WithStore(store))

	s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	require.True(t, s.Close())
	f.o.Wait()

	assert.Equal(t, []models.Reset{{Reference: s.Reference, Cause: "checkout_closed"}}, drain(f.resets))
	assert.Empty(t, drain(f.tickets))
	assert.Empty(t, drain(f.notices))
	assert.Empty(t, b.verified)
	assert.Equal(t, models.AttemptClosed, store.statuses[s.Reference])

	again, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err, "closing releases the payer")
	again.Close()
	f.o.Wait()
}

func TestExpiredSession_IsAbandoned(t *testing.T) {
	store := &stubStore{}
	f := newFixture(t, &stubBackend{}, WithStore(store))

	s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)

	reg := payment.NewSessions()
	require.NoError(t, reg.Add(s))
	assert.Equal(t, []string{s.Reference}, reg.Expire(time.Now().Add(time.Minute)))
	f.o.Wait()

	assert.Equal(t, []models.Reset{{Reference: s.Reference, Cause: "checkout_expired"}}, drain(f.resets))
	assert.Equal(t, models.AttemptAbandoned, store.statuses[s.Reference])
	assert.Empty(t, drain(f.tickets))
}

func TestStartPayment_RejectsOverlapForSamePayer(t *testing.T) {
	f := newFixture(t, &stubBackend{})

	first, err := f.o.StartPayment(context.Background(), buyer, 100, models.Registration{}, "")
	require.NoError(t, err)

	upper := buyer
	upper.Email = "ADA@example.com"
	_, err = f.o.StartPayment(context.Background(), upper, 100, models.Registration{}, "")
	assert.ErrorIs(t, err, ErrPaymentInProgress)

	other := buyer
	other.Email = "obi@example.com"
	second, err := f.o.StartPayment(context.Background(), other, 100, models.Registration{}, "")
	require.NoError(t, err)

	first.Close()
	second.Close()
	f.o.Wait()
}

func TestVoteGuard_KeyedOnInitiatingScreen(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	contestant := models.Customer{FirstName: "Zara", LastName: "Bello", Email: "zara@example.com"}
	first := payment.WithInitiator(context.Background(), "screen-a")
	second := payment.WithInitiator(context.Background(), "screen-b")

	a, err := f.o.StartPayment(first, contestant, 300, votePurchase(), "")
	require.NoError(t, err)
	b, err := f.o.StartPayment(second, contestant, 500, votePurchase(), "")
	require.NoError(t, err, "another voter for the same contestant is not blocked")

	_, err = f.o.StartPayment(first, contestant, 300, votePurchase(), "")
	assert.ErrorIs(t, err, ErrPaymentInProgress, "one screen runs one vote payment at a time")

	ticket, err := f.o.StartPayment(context.Background(), contestant, 70000, ticketPurchase(), "")
	require.NoError(t, err, "votes do not hold the contestant's email")

	a.Close()
	f.o.Wait()
	again, err := f.o.StartPayment(first, contestant, 300, votePurchase(), "")
	require.NoError(t, err, "closing releases the screen")

	again.Close()
	b.Close()
	ticket.Close()
	f.o.Wait()
}

func TestReconcile_CallbackAfterClose(t *testing.T) {
	store := &stubStore{}
	alerts := &stubAlerts{}
	b := &stubBackend{}
	f := newFixture(t, b, WithStore(store), WithAlerts(alerts))

	s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	require.True(t, s.Close())
	f.o.Wait()
	require.Equal(t, models.AttemptClosed, store.statuses[s.Reference])

	callback := "https://app.test/api/callbacks/credo?reference=" + s.Reference + "&transRef=T-7&status=0"
	require.NoError(t, f.o.Reconcile(context.Background(), s.Reference, callback))

	assert.Equal(t, models.AttemptReconcile, store.statuses[s.Reference])
	assert.Equal(t, "paid_after_close transRef=T-7", store.reasons[s.Reference])
	assert.Equal(t, []string{"paid_after_close transRef=T-7"}, alerts.failures)
	assert.Empty(t, b.verified)

	assert.ErrorIs(t, f.o.Reconcile(context.Background(), s.Reference, callback), ErrAttemptSettled)
	assert.Len(t, alerts.failures, 1, "a repeated callback is not escalated twice")

	assert.ErrorIs(t, f.o.Reconcile(context.Background(), "NOPE", callback), payment.ErrSessionNotFound)
}

func TestReconcile_SettledAttemptIsLeftAlone(t *testing.T) {
	store := &stubStore{}
	alerts := &stubAlerts{}
	f := newFixture(t, &stubBackend{ticketOK: true, purchase: &backend.PurchaseReceipt{}}, WithStore(store), WithAlerts(alerts))

	s, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	f.complete(t, s, "T-8")
	require.Equal(t, models.AttemptSucceeded, store.statuses[s.Reference])

	err = f.o.Reconcile(context.Background(), s.Reference, "https://app.test/api/callbacks/credo?reference="+s.Reference+"&transRef=T-8")
	assert.ErrorIs(t, err, ErrAttemptSettled)
	assert.Equal(t, models.AttemptSucceeded, store.statuses[s.Reference])
	assert.Empty(t, alerts.failures)
}

func TestReconcile_WithoutStore(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	assert.ErrorIs(t, f.o.Reconcile(context.Background(), "REF", ""), payment.ErrSessionNotFound)
}

func TestStartPayment_ReleasesPayerWhenCheckoutFails(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	f.widget.err = errors.New("provider unavailable")

	_, err := f.o.StartPayment(context.Background(), buyer, 100, models.Registration{}, "")
	require.Error(t, err)

	f.widget.err = nil
	s, err := f.o.StartPayment(context.Background(), buyer, 100, models.Registration{}, "")
	require.NoError(t, err)
	s.Close()
	f.o.Wait()
}

func TestReferenceCollisions(t *testing.T) {
	store := &stubStore{duplicates: 2}
	f := newFixture(t, &stubBackend{}, WithStore(store))

	s, err := f.o.StartPayment(context.Background(), buyer, 100, models.Registration{}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, store.creates)
	s.Close()
	f.o.Wait()

	exhausted := &stubStore{duplicates: -1}
	f = newFixture(t, &stubBackend{}, WithStore(exhausted))
	_, err = f.o.StartPayment(context.Background(), buyer, 100, models.Registration{}, "")
	assert.ErrorIs(t, err, ErrReferenceExhausted)
	assert.Equal(t, referenceAttempts, exhausted.creates)
	assert.Empty(t, f.widget.checkouts)
}

func TestConcurrentAttemptsAreIsolated(t *testing.T) {
	f := newFixture(t, &stubBackend{ticketOK: true, purchase: &backend.PurchaseReceipt{}}, WithStore(&stubStore{}))

	a, err := f.o.StartPayment(context.Background(), buyer, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	other := buyer
	other.Email = "obi@example.com"
	b, err := f.o.StartPayment(context.Background(), other, 70000, ticketPurchase(), "")
	require.NoError(t, err)
	require.NotEqual(t, a.Reference, b.Reference)

	b.Close()
	f.complete(t, a, "T-9")

	outcomes := drain(f.tickets)
	require.Len(t, outcomes, 1)
	assert.Equal(t, a.Reference, outcomes[0].Reference)
	assert.Equal(t, []models.Reset{{Reference: b.Reference, Cause: "checkout_closed"}}, drain(f.resets))
}
