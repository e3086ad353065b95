package events

import "go-ticketvote/internal/models"

// Bus groups the application-scoped channels. The orchestrator is the only
// publisher; screens and relays subscribe.
type Bus struct {
	Tickets *Channel[models.TicketOutcome]
	Votes   *Channel[models.VoteOutcome]
	Notices *Channel[models.Notice]
	Resets  *Channel[models.Reset]
}

func NewBus() *Bus {
	return &Bus{
		Tickets: NewChannel[models.TicketOutcome]("tickets", DefaultBuffer),
		Votes:   NewChannel[models.VoteOutcome]("votes", DefaultBuffer),
		Notices: NewChannel[models.Notice]("notices", DefaultBuffer),
		Resets:  NewChannel[models.Reset]("resets", DefaultBuffer),
	}
}
