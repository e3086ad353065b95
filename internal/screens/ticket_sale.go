package screens

import (
	"context"
	"log"
	"strings"
	"sync"

	"go-ticketvote/internal/events"
	"go-ticketvote/internal/models"
)

// StaticCatalog is shown until the backend answers with its own listing
func StaticCatalog() []models.TicketType {
	return []models.TicketType{
		{ID: 1, Name: "Regular", Price: 10000, Tier: "bronze"},
		{ID: 2, Name: "VIP for Couple", Price: 50000, Tier: "gold"},
		{ID: 3, Name: "Gold Table", Price: 500000, Tier: "silver"},
		{ID: 4, Name: "Sponsors Table", Price: 1000000, Tier: "platinum"},
	}
}

// TierClass maps a ticket tier to its display class
func TierClass(tier string) string {
	switch tier {
	case "platinum", "gold", "silver":
		return tier
	default:
		return "bronze"
	}
}

// SelectedTickets returns, in catalog order, the types with a positive quantity
func SelectedTickets(types []models.TicketType, quantities map[int64]int) []models.TicketLine {
	var lines []models.TicketLine
	for _, t := range types {
		if q := quantities[t.ID]; q > 0 {
			lines = append(lines, models.TicketLine{ID: t.ID, Name: t.Name, Price: t.Price, Quantity: q})
		}
	}
	return lines
}

// GrandTotal is the sum of price × quantity over lines
func GrandTotal(lines []models.TicketLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Price * int64(l.Quantity)
	}
	return total
}

// TicketRow is one catalog entry as rendered
type TicketRow struct {
	models.TicketType
	Selected int    `json:"selected"`
	Class    string `json:"class"`
}

// TicketSaleView is the full state of the ticket page
type TicketSaleView struct {
	Screen     string              `json:"screen"`
	Types      []TicketRow         `json:"types"`
	Selected   []models.TicketLine `json:"selected"`
	GrandTotal int64               `json:"grandTotal"`
	Buyer      models.Customer     `json:"buyer"`
	Processing bool                `json:"processing"`
}

// TicketSale is the ticket purchase page of one browser
type TicketSale struct {
	starter   Starter
	catalog   Catalog
	out       Renderer
	returnURL string

	mu         sync.Mutex
	types      []models.TicketType
	quantities map[int64]int
	buyer      models.Customer
	processing bool
	attempts   attempts

	tickets *events.Subscription[models.TicketOutcome]
	notices *events.Subscription[models.Notice]
	resets  *events.Subscription[models.Reset]
}

// NewTicketSale creates the page and subscribes it to the bus. Subscribing
// here means no outcome of an attempt started later can be missed.
func NewTicketSale(starter Starter, catalog Catalog, bus *events.Bus, out Renderer, returnURL string) *TicketSale {
	return &TicketSale{
		starter:    starter,
		catalog:    catalog,
		out:        out,
		returnURL:  returnURL,
		types:      StaticCatalog(),
		quantities: make(map[int64]int),
		attempts:   newAttempts(),
		tickets:    bus.Tickets.Subscribe(),
		notices:    bus.Notices.Subscribe(),
		resets:     bus.Resets.Subscribe(),
	}
}

// Run applies bus events to the page until ctx ends or Close is called
func (s *TicketSale) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-s.tickets.C:
			if !ok {
				return
			}
			s.onOutcome(o)
		case n, ok := <-s.notices.C:
			if !ok {
				return
			}
			s.onNotice(n)
		case r, ok := <-s.resets.C:
			if !ok {
				return
			}
			s.onReset(r)
		}
	}
}

// Close detaches the page from the bus
func (s *TicketSale) Close() {
	s.tickets.Unsubscribe()
	s.notices.Unsubscribe()
	s.resets.Unsubscribe()
}

// Handle applies a browser command
func (s *TicketSale) Handle(ctx context.Context, cmd Command) error {
	switch cmd.Action {
	case "load":
		s.LoadTicketTypes(ctx)
	case "increment":
		s.Increment(cmd.TicketID)
	case "decrement":
		s.Decrement(cmd.TicketID)
	case "buyer":
		s.SetBuyer(cmd.Buyer)
	case "pay":
		return s.MakePayment(ctx)
	case "reset":
		s.Reset()
	case "checkout-closed":
		return s.CloseCheckout(cmd.ID)
	default:
		return ErrUnknownAction
	}
	return nil
}

// LoadTicketTypes replaces the static catalog with the backend listing
func (s *TicketSale) LoadTicketTypes(ctx context.Context) {
	types, err := s.catalog.ListTicketTypes(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil:
		log.Printf("[SCREEN] Ticket types unavailable: %v", err)
		s.out.Notify(errorNotice("Could not retrieve ticket types. Please try again"))
	case len(types) > 0:
		s.types = types
		s.quantities = make(map[int64]int)
	}
	s.render()
}

func (s *TicketSale) Increment(ticketID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known(ticketID) {
		s.quantities[ticketID]++
	}
	s.render()
}

// Decrement never goes below zero
func (s *TicketSale) Decrement(ticketID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quantities[ticketID] > 0 {
		s.quantities[ticketID]--
	}
	s.render()
}

func (s *TicketSale) SetBuyer(c models.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buyer = models.Customer{
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Email:     strings.TrimSpace(c.Email),
		Phone:     strings.TrimSpace(c.Phone),
	}
	s.render()
}

// SelectedTickets is the current selection
func (s *TicketSale) SelectedTickets() []models.TicketLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SelectedTickets(s.types, s.quantities)
}

// GrandTotal is the price of the current selection
func (s *TicketSale) GrandTotal() int64 {
	return GrandTotal(s.SelectedTickets())
}

// MakePayment starts checkout for the selection and redirects the browser
func (s *TicketSale) MakePayment(ctx context.Context) error {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return ErrAlreadyProcessing
	}
	lines := SelectedTickets(s.types, s.quantities)
	buyer := s.buyer
	if buyer.FirstName == "" || buyer.LastName == "" || buyer.Email == "" || len(lines) == 0 {
		s.out.Notify(errorNotice("Please fill in all necessary details"))
		s.mu.Unlock()
		return ErrIncompleteDetails
	}
	s.processing = true
	s.render()
	s.mu.Unlock()

	purchase := buildTicketPurchase(buyer, lines)
	session, err := s.starter.StartPayment(ctx, buyer, purchase.AmountPaid, purchase, s.returnURL)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		log.Printf("[SCREEN] Ticket checkout not started: %v", err)
		s.processing = false
		s.out.Notify(errorNotice(err.Error()))
		s.render()
		return err
	}
	s.attempts.start(session)
	s.out.Redirect(session.AuthorizationURL)
	return nil
}

// CloseCheckout abandons a checkout this page started. The page resets once
// the closed attempt is recorded.
func (s *TicketSale) CloseCheckout(reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attempts.close(reference) {
		return ErrNoCheckout
	}
	log.Printf("[SCREEN] Ticket checkout closed by payer ref=%s", reference)
	return nil
}

// Reset clears the selection and buyer details
func (s *TicketSale) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.render()
}

func (s *TicketSale) onOutcome(o models.TicketOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attempts.owns(o.Reference) {
		return
	}
	s.attempts.finish(o.Reference)

	s.processing = false
	if o.Status == models.OutcomeSuccess {
		s.out.Notify(models.Notice{Reference: o.Reference, Level: models.NoticeSuccess, Message: "Ticket purchase successful!"})
		s.reset()
	} else {
		s.out.Notify(models.Notice{Reference: o.Reference, Level: models.NoticeError, Message: "Ticket purchase failed. Please try again."})
	}
	s.render()
}

func (s *TicketSale) onNotice(n models.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts.owns(n.Reference) {
		s.out.Notify(n)
	}
}

func (s *TicketSale) onReset(r models.Reset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attempts.owns(r.Reference) {
		return
	}
	s.attempts.finish(r.Reference)
	s.reset()
	s.render()
}

func (s *TicketSale) reset() {
	s.quantities = make(map[int64]int)
	s.buyer = models.Customer{}
	s.processing = false
}

func (s *TicketSale) known(ticketID int64) bool {
	for _, t := range s.types {
		if t.ID == ticketID {
			return true
		}
	}
	return false
}

func (s *TicketSale) render() {
	rows := make([]TicketRow, 0, len(s.types))
	for _, t := range s.types {
		rows = append(rows, TicketRow{TicketType: t, Selected: s.quantities[t.ID], Class: TierClass(t.Tier)})
	}
	lines := SelectedTickets(s.types, s.quantities)
	s.out.Render(TicketSaleView{
		Screen:     "tickets",
		Types:      rows,
		Selected:   lines,
		GrandTotal: GrandTotal(lines),
		Buyer:      s.buyer,
		Processing: s.processing,
	})
}

func buildTicketPurchase(buyer models.Customer, lines []models.TicketLine) models.TicketPurchase {
	items := make([]models.TicketOrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.TicketOrderItem{TicketType: strings.ToLower(l.Name), Quantity: l.Quantity})
	}
	return models.TicketPurchase{
		PurchasePayload: models.TicketPurchasePayload{
			FirstName: buyer.FirstName,
			LastName:  buyer.LastName,
			Email:     buyer.Email,
			Phone:     buyer.Phone,
			Tickets:   items,
		},
		Tickets:    lines,
		AmountPaid: GrandTotal(lines),
	}
}
