package websocket

import (
	"context"

	"go-ticketvote/internal/events"
	"go-ticketvote/internal/models"
)

// TopicVoting addresses every open voting page
const TopicVoting = "voting"

// Tally is broadcast to voting pages whenever a contestant's count changes
type Tally struct {
	ContestantID string `json:"contestantId"`
	Votes        int64  `json:"votes"`
}

// RelayTallies broadcasts the backend vote count of every successful vote
// until ctx ends.
func RelayTallies(ctx context.Context, votes *events.Channel[models.VoteOutcome], hub *Hub) {
	sub := votes.Subscribe()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-sub.C:
			if !ok {
				return
			}
			if o.Status != models.OutcomeSuccess || o.NewVoteCount == nil {
				continue
			}
			hub.Broadcast(Message{
				Type:  "tally",
				Topic: TopicVoting,
				Data:  Tally{ContestantID: o.ContestantID, Votes: *o.NewVoteCount},
			})
		}
	}
}
