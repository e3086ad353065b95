package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"go-ticketvote/internal/database"
	"go-ticketvote/internal/middleware"
	"go-ticketvote/internal/models"
	"go-ticketvote/internal/orchestrator"
	"go-ticketvote/internal/payment"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// CreatePayment starts a registration payment for the signed-in user, or an
// anonymous one when no token was sent.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
		Amount    int64  `json:"amount"`
		ReturnURL string `json:"returnUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if !h.allowedReturnURL(req.ReturnURL) {
		respondError(w, http.StatusBadRequest, "returnUrl must point to this site")
		return
	}

	meta := models.Registration{}
	if claims := middleware.GetUserFromContext(r.Context()); claims != nil {
		meta.UserID = strconv.FormatInt(claims.UserID, 10)
	}

	customer := models.Customer{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email, Phone: req.Phone}

	ctx, cancel := requestContext(r, upstreamTimeout)
	defer cancel()

	session, err := h.Payments.StartPayment(ctx, customer, req.Amount, meta, req.ReturnURL)
	switch {
	case errors.Is(err, orchestrator.ErrInvalidCustomer), errors.Is(err, orchestrator.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, orchestrator.ErrPaymentInProgress):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Printf("⚠ [PAYMENT] Could not start registration payment: %v", err)
		respondError(w, http.StatusBadGateway, "Payment could not be started. Please try again.")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"reference":        session.Reference,
		"authorizationUrl": session.AuthorizationURL,
		"closeToken":       session.CloseToken,
	})
}

// GetPayment returns the audit record of one attempt
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]

	attempt, err := h.DB.GetAttempt(reference)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}

// ListPayments returns a page of attempts, optionally filtered by status
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	attempts, total, err := h.DB.ListAttempts(q.Get("status"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if attempts == nil {
		attempts = []*models.PaymentAttempt{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"attempts": attempts,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// ClosePayment reports that the payer dismissed the checkout. The request
// must carry the closeToken returned when the payment was created.
func (h *Handler) ClosePayment(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]

	var req struct {
		CloseToken string `json:"closeToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if _, err := h.Sessions.Close(reference, req.CloseToken); errors.Is(err, payment.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "No open checkout for this reference")
		return
	}

	log.Printf("[PAYMENT] Checkout closed by payer ref=%s", reference)
	respondJSON(w, http.StatusOK, map[string]string{"reference": reference, "status": "closed"})
}

// CredoCallback receives the provider redirect, completes the session and
// sends the payer back to the page that started the payment.
func (h *Handler) CredoCallback(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		respondError(w, http.StatusBadRequest, "Missing reference")
		return
	}

	callbackURL := h.absoluteURL(r)
	session, err := h.Sessions.Complete(reference, callbackURL)
	if err != nil {
		h.lateCallback(w, r, reference, callbackURL, session)
		return
	}

	log.Printf("[PAYMENT] Callback received ref=%s status=%s", reference, r.URL.Query().Get("status"))
	sendBack(w, r, reference, session, http.StatusOK, "received")
}

// lateCallback answers a callback whose checkout is no longer open. The payer
// may still have been charged, so the attempt goes to reconciliation.
func (h *Handler) lateCallback(w http.ResponseWriter, r *http.Request, reference, callbackURL string, session *payment.Session) {
	err := h.Payments.Reconcile(r.Context(), reference, callbackURL)
	switch {
	case errors.Is(err, payment.ErrSessionNotFound):
		log.Printf("⚠ [PAYMENT] Callback for unknown ref=%s", reference)
		respondError(w, http.StatusNotFound, "Unknown or expired payment")
	case errors.Is(err, orchestrator.ErrAttemptSettled):
		sendBack(w, r, reference, session, http.StatusOK, "received")
	case err != nil:
		log.Printf("⚠ [PAYMENT] Could not reconcile ref=%s: %v", reference, err)
		respondError(w, http.StatusInternalServerError, "Payment could not be recorded. Please contact support.")
	default:
		sendBack(w, r, reference, session, http.StatusAccepted, "reconciling")
	}
}

// sendBack redirects the payer to the page that started the payment, or
// answers with JSON when there is none.
func sendBack(w http.ResponseWriter, r *http.Request, reference string, session *payment.Session, code int, status string) {
	if session == nil || session.ReturnURL == "" {
		respondJSON(w, code, map[string]string{"reference": reference, "status": status})
		return
	}
	http.Redirect(w, r, session.ReturnURL, http.StatusFound)
}

// allowedReturnURL accepts an empty URL or an absolute http(s) URL on the
// public base URL or one of the allowed origins.
func (h *Handler) allowedReturnURL(raw string) bool {
	if raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.User != nil {
		return false
	}
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	for _, allowed := range append([]string{h.Config.PublicBaseURL}, h.Config.AllowedOrigins...) {
		if allowed == "" || allowed == "*" {
			continue
		}
		if a, err := url.Parse(allowed); err == nil && strings.ToLower(a.Scheme+"://"+a.Host) == origin {
			return true
		}
	}
	return false
}

// absoluteURL rebuilds the URL the provider redirected to
func (h *Handler) absoluteURL(r *http.Request) string {
	if h.Config.PublicBaseURL != "" {
		return h.Config.PublicBaseURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
