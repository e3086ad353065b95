package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"go-ticketvote/internal/config"
	"go-ticketvote/internal/database"
	"go-ticketvote/internal/events"
	"go-ticketvote/internal/middleware"
	"go-ticketvote/internal/models"
	"go-ticketvote/internal/payment"
	"go-ticketvote/internal/screens"
	"go-ticketvote/internal/websocket"
)

// Store is the persistence the HTTP layer reads
type Store interface {
	Authenticate(username, password string) (*models.User, error)
	GetAttempt(reference string) (*models.PaymentAttempt, error)
	ListAttempts(status string, limit, offset int) ([]*models.PaymentAttempt, int64, error)
}

// Platform is the upstream catalog of tickets and contestants
type Platform interface {
	screens.Catalog
	screens.Directory
}

// Payments starts payments and settles callbacks that arrive after their
// checkout ended; implemented by the orchestrator
type Payments interface {
	screens.Starter
	Reconcile(ctx context.Context, reference, callbackURL string) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	DB       Store
	WSHub    *websocket.Hub
	Payments Payments
	Sessions *payment.Sessions
	Platform Platform
	Bus      *events.Bus
	Config   *config.Config

	evicted map[string]bool
	now     func() time.Time
}

// NewHandler creates a new Handler
func NewHandler(db Store, wsHub *websocket.Hub, payments Payments, sessions *payment.Sessions, platform Platform, bus *events.Bus, cfg *config.Config) *Handler {
	evicted := make(map[string]bool, len(cfg.EvictedContestants))
	for _, code := range cfg.EvictedContestants {
		evicted[code] = true
	}
	return &Handler{
		DB:       db,
		WSHub:    wsHub,
		Payments: payments,
		Sessions: sessions,
		Platform: platform,
		Bus:      bus,
		Config:   cfg,
		evicted:  evicted,
		now:      time.Now,
	}
}

// ============== Health ==============

// Health reports liveness and how many screens are connected
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"screens":       h.WSHub.ClientCount(),
		"openCheckouts": h.Sessions.Len(),
		"time":          h.now().UTC(),
	})
}

// ============== Auth ==============

// Login checks credentials and issues a JWT
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := h.DB.Authenticate(req.Username, req.Password)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		log.Printf("⚠ Login lookup failed for %s: %v", req.Username, err)
		respondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	token, err := middleware.IssueToken(h.Config.JWTSecret, user, h.now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// ============== Screens ==============

// TicketsSocket runs a ticket sale screen over a websocket
func (h *Handler) TicketsSocket(w http.ResponseWriter, r *http.Request) {
	returnURL := h.Config.PublicBaseURL + "/tickets"
	h.WSHub.ServeScreen(w, r, "tickets", func(out screens.Renderer) websocket.Screen {
		return screens.NewTicketSale(h.Payments, h.Platform, h.Bus, out, returnURL)
	})
}

// VotingSocket runs a voting screen over a websocket
func (h *Handler) VotingSocket(w http.ResponseWriter, r *http.Request) {
	returnURL := h.Config.PublicBaseURL + "/voting"
	h.WSHub.ServeScreen(w, r, websocket.TopicVoting, func(out screens.Renderer) websocket.Screen {
		return screens.NewVoting(h.Payments, h.Platform, h.Bus, out, h.Config.EvictedContestants, h.Config.VotingCutoff, returnURL)
	})
}

// ============== Helpers ==============

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func requestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}
