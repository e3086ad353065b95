package rabbitmq

import (
	"context"
	"log"
	"time"

	"go-ticketvote/internal/events"
	"go-ticketvote/internal/models"
)

const publishTimeout = 5 * time.Second

// RoutingKey builds keys such as "ticket.outcome.success"
func RoutingKey(kind string, status models.OutcomeStatus) string {
	return kind + ".outcome." + string(status)
}

// RelayOutcomes publishes every ticket and vote outcome on the bus to
// exchange until ctx ends.
func RelayOutcomes(ctx context.Context, bus *events.Bus, pub Publisher, exchange string) {
	tickets := bus.Tickets.Subscribe()
	defer tickets.Unsubscribe()
	votes := bus.Votes.Subscribe()
	defer votes.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-tickets.C:
			if !ok {
				return
			}
			send(ctx, pub, exchange, RoutingKey("ticket", o.Status), o.Reference, o)
		case o, ok := <-votes.C:
			if !ok {
				return
			}
			send(ctx, pub, exchange, RoutingKey("vote", o.Status), o.Reference, o)
		}
	}
}

func send(ctx context.Context, pub Publisher, exchange, key, reference string, body interface{}) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := pub.Publish(ctx, exchange, key, body); err != nil {
		log.Printf("⚠ [EVENTS] Outcome %s for %s not published: %v", key, reference, err)
	}
}
