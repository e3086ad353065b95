package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-ticketvote/internal/models"
)

// Currency is the only currency the checkout is opened in
const Currency = "NGN"

// Channels lists the payment channels offered by the checkout
var Channels = []string{"card", "bank"}

var (
	// ErrSessionNotFound is returned when a callback names an unknown reference
	ErrSessionNotFound = errors.New("payment session not found")
	// ErrSessionResolved is returned when the session already ended before the callback
	ErrSessionResolved = errors.New("payment session already ended")
	// ErrDuplicateSession is returned when a reference already has an open session
	ErrDuplicateSession = errors.New("payment session already open for reference")
)

// Checkout holds everything needed to open the hosted checkout
type Checkout struct {
	Reference   string
	AmountMinor int64 // kobo
	Currency    string
	Channels    []string
	Customer    models.Customer
	Metadata    json.RawMessage
	// ReturnURL is where the payer lands once the provider is done
	ReturnURL string
}

// Widget opens a hosted checkout for a payer
type Widget interface {
	Open(ctx context.Context, c Checkout) (*Session, error)
}

// Event is what a session resolves to: either a completion carrying the
// provider callback URL, or a close without payment.
type Event struct {
	Closed      bool
	CallbackURL string
	// Expired marks a close caused by the session outliving its TTL
	Expired bool
}

// Session is one open checkout. It resolves exactly once.
type Session struct {
	Reference        string
	AuthorizationURL string
	ReturnURL        string
	CreatedAt        time.Time
	// CloseToken must accompany a close request from outside the owning screen
	CloseToken string

	done chan Event
	once sync.Once
}

// NewSession creates an unresolved session
func NewSession(reference, authorizationURL, returnURL string) *Session {
	return &Session{
		Reference:        reference,
		AuthorizationURL: authorizationURL,
		ReturnURL:        returnURL,
		CloseToken:       uuid.NewString(),
		CreatedAt:        time.Now(),
		done:             make(chan Event, 1),
	}
}

// Done yields the single event of the session
func (s *Session) Done() <-chan Event {
	return s.done
}

// Complete resolves the session with the provider callback URL.
// It reports false if the session had already resolved.
func (s *Session) Complete(callbackURL string) bool {
	return s.resolve(Event{CallbackURL: callbackURL})
}

// Close resolves the session as abandoned
func (s *Session) Close() bool {
	return s.resolve(Event{Closed: true})
}

func (s *Session) resolve(ev Event) bool {
	resolved := false
	s.once.Do(func() {
		s.done <- ev
		close(s.done)
		resolved = true
	})
	return resolved
}

// Sessions indexes open sessions by reference
type Sessions struct {
	mu    sync.Mutex
	items map[string]*Session
}

// NewSessions creates an empty registry
func NewSessions() *Sessions {
	return &Sessions{items: make(map[string]*Session)}
}

// Add registers a session. A reference that is already open is refused.
func (r *Sessions) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.Reference]; ok {
		return ErrDuplicateSession
	}
	r.items[s.Reference] = s
	return nil
}

// Get returns the open session for a reference
func (r *Sessions) Get(reference string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[reference]
	return s, ok
}

// Complete resolves and forgets the session for reference. A session that
// was closed by its screen in the meantime yields ErrSessionResolved.
func (r *Sessions) Complete(reference, callbackURL string) (*Session, error) {
	s := r.take(reference)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	if !s.Complete(callbackURL) {
		return s, ErrSessionResolved
	}
	return s, nil
}

// Close abandons and forgets the session for reference. token must match the
// session's CloseToken; a mismatch reads as an unknown reference.
func (r *Sessions) Close(reference, token string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.items[reference]
	if !ok || subtle.ConstantTimeCompare([]byte(s.CloseToken), []byte(token)) != 1 {
		r.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	delete(r.items, reference)
	r.mu.Unlock()

	s.Close()
	return s, nil
}

// Expire closes every session created before cutoff and returns their references
func (r *Sessions) Expire(cutoff time.Time) []string {
	r.mu.Lock()
	var stale []*Session
	for ref, s := range r.items {
		if s.CreatedAt.Before(cutoff) {
			stale = append(stale, s)
			delete(r.items, ref)
		}
	}
	r.mu.Unlock()

	refs := make([]string, 0, len(stale))
	for _, s := range stale {
		s.resolve(Event{Closed: true, Expired: true})
		refs = append(refs, s.Reference)
	}
	return refs
}

// Len is the number of open sessions
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Sessions) take(reference string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[reference]
	if !ok {
		return nil
	}
	delete(r.items, reference)
	return s
}

type initiatorKey struct{}

// WithInitiator tags ctx with the id of whoever starts a payment, such as
// one browser screen.
func WithInitiator(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, initiatorKey{}, id)
}

// Initiator returns the id set by WithInitiator, or ""
func Initiator(ctx context.Context) string {
	id, _ := ctx.Value(initiatorKey{}).(string)
	return id
}
