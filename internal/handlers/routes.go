package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"go-ticketvote/internal/middleware"
	"go-ticketvote/internal/payment/credo"
)

// Router wires every route. Payment records need a token; starting a
// payment attaches the user when one is sent.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health).Methods("GET")

	// API routes
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", h.Login).Methods("POST")

	// Catalog
	api.HandleFunc("/tickets/types", h.GetTicketTypes).Methods("GET")
	api.HandleFunc("/contestants", h.GetContestants).Methods("GET")

	// Payments
	optional := middleware.OptionalAuth(h.Config.JWTSecret)
	api.Handle("/payments", optional(http.HandlerFunc(h.CreatePayment))).Methods("POST")
	api.HandleFunc("/payments/{reference}/close", h.ClosePayment).Methods("POST")

	records := api.PathPrefix("/payments").Subrouter()
	records.Use(middleware.RequireAuth(h.Config.JWTSecret))
	records.HandleFunc("", h.ListPayments).Methods("GET")
	records.HandleFunc("/{reference}", h.GetPayment).Methods("GET")

	// Callbacks (Public)
	router.HandleFunc(credo.CallbackPath, h.CredoCallback).Methods("GET")

	// Screens
	router.HandleFunc("/ws/tickets", h.TicketsSocket)
	router.HandleFunc("/ws/voting", h.VotingSocket)

	return router
}
