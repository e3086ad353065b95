package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"go-ticketvote/internal/screens"
)

const upstreamTimeout = 15 * time.Second

// GetTicketTypes lists ticket types from the platform, falling back to the
// built-in catalog when it is unreachable or empty.
func (h *Handler) GetTicketTypes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, upstreamTimeout)
	defer cancel()

	types, err := h.Platform.ListTicketTypes(ctx)
	if err != nil {
		log.Printf("⚠ Ticket types unavailable, serving static catalog: %v", err)
	}
	source := "platform"
	if err != nil || len(types) == 0 {
		types, source = screens.StaticCatalog(), "static"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticketTypes": types,
		"source":      source,
	})
}

// GetContestants lists contestants with evicted ones last, or hidden while searching
func (h *Handler) GetContestants(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	ctx, cancel := requestContext(r, upstreamTimeout)
	defer cancel()

	list, err := h.Platform.ListContestants(ctx, search)
	if err != nil {
		log.Printf("⚠ Contestants unavailable: %v", err)
		respondError(w, http.StatusBadGateway, "Could not load contestants. Please try again.")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"contestants": screens.ArrangeContestants(list, h.evicted, search != ""),
		"search":      search,
	})
}
