package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go-ticketvote/internal/backend"
	"go-ticketvote/internal/database"
	"go-ticketvote/internal/events"
	"go-ticketvote/internal/guard"
	"go-ticketvote/internal/models"
	"go-ticketvote/internal/payment"
)

var (
	ErrInvalidCustomer    = errors.New("first name, last name and a valid email are required")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrPaymentInProgress  = errors.New("a payment is already in progress for this customer")
	ErrReferenceExhausted = errors.New("could not allocate a unique payment reference")
	// ErrAttemptSettled is returned when a late callback names an attempt that
	// was already verified or queued for reconciliation
	ErrAttemptSettled = errors.New("payment attempt already settled")
)

// referenceAttempts bounds regeneration after a persisted reference collision
const referenceAttempts = 5

// Backend is the slice of the platform backend the payment flows call
type Backend interface {
	VerifyPaymentByReference(ctx context.Context, transRef string) (models.PaymentResult, error)
	ConfirmGenericPayment(ctx context.Context, result models.PaymentResult, userID string) (string, error)
	VerifyTicketPurchase(ctx context.Context, result models.PaymentResult, transRef string) (bool, error)
	PurchaseTicket(ctx context.Context, payload models.TicketPurchasePayload) (*backend.PurchaseReceipt, error)
	VerifyVotePayment(ctx context.Context, result models.PaymentResult, transRef string) (*backend.VoteReceipt, error)
}

// AttemptStore keeps the audit trail of payment attempts
type AttemptStore interface {
	CreateAttempt(a *models.PaymentAttempt) error
	UpdateAttemptStatus(reference string, status models.AttemptStatus, reason string) error
	GetAttempt(reference string) (*models.PaymentAttempt, error)
}

// Alerts is told about fulfilment results that deserve a message outside the app
type Alerts interface {
	TicketsIssued(ctx context.Context, purchase models.TicketPurchase, outcome models.TicketOutcome)
	FulfilmentFailed(ctx context.Context, reference string, kind models.PurchaseKind, reason string)
}

// Orchestrator runs payments from checkout to confirmation and publishes
// the terminal outcome of every ticket and vote attempt on the bus.
type Orchestrator struct {
	backend Backend
	widget  payment.Widget
	bus     *events.Bus

	store    AttemptStore
	guard    guard.Guard
	guardTTL time.Duration
	alerts   Alerts
	refs     *payment.ReferenceGenerator

	wg sync.WaitGroup
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithStore(s AttemptStore) Option { return func(o *Orchestrator) { o.store = s } }

func WithGuard(g guard.Guard, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.guard = g
		o.guardTTL = ttl
	}
}

func WithAlerts(a Alerts) Option { return func(o *Orchestrator) { o.alerts = a } }

func WithReferences(g *payment.ReferenceGenerator) Option {
	return func(o *Orchestrator) { o.refs = g }
}

// New creates an Orchestrator. Without WithGuard, overlapping payments are
// rejected per process; without WithStore, attempts are not persisted.
func New(b Backend, w payment.Widget, bus *events.Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  b,
		widget:   w,
		bus:      bus,
		guard:    guard.NewMemory(),
		guardTTL: time.Hour,
		refs:     payment.NewReferenceGenerator(""),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// attempt is what the await loop needs to carry a payment to its end
type attempt struct {
	reference string
	payerKey  string
	metadata  models.PurchaseMetadata
}

// StartPayment opens the hosted checkout and returns its session. The
// outcome is delivered later on the bus once the session resolves.
func (o *Orchestrator) StartPayment(ctx context.Context, customer models.Customer, amount int64, meta models.PurchaseMetadata, callbackURL string) (*payment.Session, error) {
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	rawMeta, err := models.EncodeMetadata(meta)
	if err != nil {
		return nil, err
	}

	payerKey := guardKey(ctx, customer, meta)
	if payerKey != "" {
		ok, err := o.guard.Acquire(ctx, payerKey, o.guardTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to check payments in progress: %w", err)
		}
		if !ok {
			return nil, ErrPaymentInProgress
		}
	}

	reference, err := o.reserveReference(customer, amount, meta.Kind(), rawMeta)
	if err != nil {
		o.release(payerKey)
		return nil, err
	}

	session, err := o.widget.Open(ctx, payment.Checkout{
		Reference:   reference,
		AmountMinor: amount * 100,
		Currency:    payment.Currency,
		Channels:    payment.Channels,
		Customer:    customer,
		Metadata:    rawMeta,
		ReturnURL:   callbackURL,
	})
	if err != nil {
		o.mark(reference, models.AttemptFailed, "checkout_unavailable")
		o.release(payerKey)
		return nil, fmt.Errorf("failed to open checkout: %w", err)
	}

	log.Printf("[PAYMENT] Started %s payment ref=%s amount=%d", meta.Kind(), reference, amount)

	o.wg.Add(1)
	go o.await(session, attempt{reference: reference, payerKey: payerKey, metadata: meta})
	return session, nil
}

// Wait blocks until every started payment has reached a terminal state
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) await(session *payment.Session, at attempt) {
	defer o.wg.Done()
	defer o.release(at.payerKey)

	ev := <-session.Done()
	if ev.Closed {
		o.closed(at, ev.Expired)
		return
	}

	result, err := payment.ParseResult(ev.CallbackURL)
	if err != nil {
		log.Printf("[PAYMENT] Unreadable callback for ref=%s: %v", at.reference, err)
		o.unverifiable(at)
		return
	}

	o.VerifyPayment(context.Background(), at.reference, result.TransRef, at.metadata)
}

// VerifyPayment verifies transRef with the backend and runs the confirmation
// flow selected by the metadata variant.
func (o *Orchestrator) VerifyPayment(ctx context.Context, reference, transRef string, meta models.PurchaseMetadata) {
	o.mark(reference, models.AttemptVerifying, "")

	result, err := o.backend.VerifyPaymentByReference(ctx, transRef)
	if err != nil {
		log.Printf("[PAYMENT] Verification request failed for ref=%s transRef=%s: %v", reference, transRef, err)
		o.notify(reference, models.NoticeError, "Payment verification failed.")
		o.mark(reference, models.AttemptFailed, models.ReasonVerificationError)
		o.publishVerificationFailure(reference, meta, models.ReasonVerificationError)
		return
	}

	switch m := meta.(type) {
	case models.TicketPurchase:
		o.confirmTicketPayment(ctx, reference, result, m)
	case models.VotePurchase:
		o.confirmVotePayment(ctx, reference, result, m)
	case models.Registration:
		o.confirmPayment(ctx, reference, result, m)
	default:
		log.Printf("[PAYMENT] No confirmation flow for %T (ref=%s)", meta, reference)
		o.mark(reference, models.AttemptFailed, "unknown_purchase")
	}
}

// unverifiable handles a completion whose callback cannot be parsed
func (o *Orchestrator) unverifiable(at attempt) {
	o.notify(at.reference, models.NoticeError, "Payment verification failed.")
	o.mark(at.reference, models.AttemptFailed, models.ReasonVerificationFailed)
	o.publishVerificationFailure(at.reference, at.metadata, models.ReasonVerificationFailed)
}

// publishVerificationFailure emits the failed outcome for kinds that have a channel
func (o *Orchestrator) publishVerificationFailure(reference string, meta models.PurchaseMetadata, reason string) {
	switch m := meta.(type) {
	case models.TicketPurchase:
		o.bus.Tickets.Publish(models.TicketOutcome{Reference: reference, Status: models.OutcomeFailed, Reason: reason})
	case models.VotePurchase:
		o.bus.Votes.Publish(models.VoteOutcome{Reference: reference, Status: models.OutcomeFailed, ContestantID: m.ContestantID})
	}
}

// closed handles a checkout dismissed or expired without payment: the owning
// screen drops its state and no outcome is published.
func (o *Orchestrator) closed(at attempt, expired bool) {
	status, cause := models.AttemptClosed, "checkout_closed"
	if expired {
		status, cause = models.AttemptAbandoned, "checkout_expired"
	}
	log.Printf("[PAYMENT] Checkout ended without payment ref=%s cause=%s", at.reference, cause)
	o.mark(at.reference, status, "")
	o.bus.Resets.Publish(models.Reset{Reference: at.reference, Cause: cause})
}

// Reconcile handles a provider callback that arrived after its checkout was
// closed or expired. The payer may have been charged, so the attempt is moved
// to AttemptReconcile and escalated instead of being dropped. References
// with no recorded attempt yield payment.ErrSessionNotFound; attempts that
// already went through verification yield ErrAttemptSettled.
func (o *Orchestrator) Reconcile(ctx context.Context, reference, callbackURL string) error {
	if o.store == nil {
		log.Printf("⚠ [PAYMENT] Late callback for ref=%s cannot be reconciled without an attempt store", reference)
		return payment.ErrSessionNotFound
	}
	a, err := o.store.GetAttempt(reference)
	if errors.Is(err, database.ErrNotFound) {
		return payment.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load attempt %s: %w", reference, err)
	}

	switch a.Status {
	case models.AttemptPending, models.AttemptClosed, models.AttemptAbandoned:
	default:
		log.Printf("[PAYMENT] Duplicate callback for ref=%s (status=%s) ignored", reference, a.Status)
		return ErrAttemptSettled
	}

	reason := models.ReasonPaidAfterClose
	if result, err := payment.ParseResult(callbackURL); err == nil && result.TransRef != "" {
		reason += " transRef=" + result.TransRef
	}
	log.Printf("⚠ [PAYMENT] Callback after checkout ended ref=%s status=%s, queued for reconciliation (%s)", reference, a.Status, reason)
	o.mark(reference, models.AttemptReconcile, reason)
	if o.alerts != nil {
		o.alerts.FulfilmentFailed(ctx, reference, a.Kind, reason)
	}
	return nil
}

func (o *Orchestrator) reserveReference(customer models.Customer, amount int64, kind models.PurchaseKind, rawMeta []byte) (string, error) {
	for i := 0; i < referenceAttempts; i++ {
		reference := o.refs.Next()
		if o.store == nil {
			return reference, nil
		}

		err := o.store.CreateAttempt(&models.PaymentAttempt{
			Reference:     reference,
			Kind:          kind,
			CustomerEmail: customer.Email,
			AmountMinor:   amount * 100,
			Currency:      payment.Currency,
			Status:        models.AttemptPending,
			Metadata:      rawMeta,
		})
		switch {
		case errors.Is(err, database.ErrDuplicateReference):
			log.Printf("[PAYMENT] Reference collision on %s, regenerating", reference)
			continue
		case err != nil:
			log.Printf("⚠ [PAYMENT] Failed to record attempt %s: %v", reference, err)
		}
		return reference, nil
	}
	return "", ErrReferenceExhausted
}

// guardKey names who may only run one payment at a time. A vote is charged
// to the contestant, so it is keyed on the screen that started it; a vote
// without an initiator is not guarded.
func guardKey(ctx context.Context, customer models.Customer, meta models.PurchaseMetadata) string {
	if _, ok := meta.(models.VotePurchase); ok {
		if id := payment.Initiator(ctx); id != "" {
			return "screen:" + id
		}
		return ""
	}
	return strings.ToLower(strings.TrimSpace(customer.Email))
}

func (o *Orchestrator) release(payerKey string) {
	if payerKey == "" {
		return
	}
	if err := o.guard.Release(context.Background(), payerKey); err != nil {
		log.Printf("⚠ [PAYMENT] Failed to release payer %s: %v", payerKey, err)
	}
}

func (o *Orchestrator) mark(reference string, status models.AttemptStatus, reason string) {
	if o.store == nil {
		return
	}
	if err := o.store.UpdateAttemptStatus(reference, status, reason); err != nil {
		log.Printf("⚠ [PAYMENT] Failed to mark %s as %s: %v", reference, status, err)
	}
}

func (o *Orchestrator) notify(reference string, level models.NoticeLevel, message string) {
	o.bus.Notices.Publish(models.Notice{Reference: reference, Level: level, Message: message})
}

func validateCustomer(c models.Customer) error {
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" || strings.TrimSpace(c.Email) == "" {
		return ErrInvalidCustomer
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return ErrInvalidCustomer
	}
	return nil
}
