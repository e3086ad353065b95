package orchestrator

import (
	"context"
	"errors"
	"log"

	"go-ticketvote/internal/backend"
	"go-ticketvote/internal/models"
)

// confirmPayment confirms a registration payment. A failed confirmation is
// informational only; the backend reconciles the status later.
func (o *Orchestrator) confirmPayment(ctx context.Context, reference string, result models.PaymentResult, reg models.Registration) {
	message, err := o.backend.ConfirmGenericPayment(ctx, result, reg.UserID)
	if err != nil {
		log.Printf("[PAYMENT] Registration confirmation failed ref=%s: %v", reference, err)
		o.notify(reference, models.NoticeInfo, "Payment was successful. Status will be updated soon.")
		o.mark(reference, models.AttemptFailed, "confirmation_pending")
		return
	}

	o.notify(reference, models.NoticeSuccess, message)
	o.mark(reference, models.AttemptSucceeded, "")
}

// confirmTicketPayment verifies the purchase and only then registers the tickets
func (o *Orchestrator) confirmTicketPayment(ctx context.Context, reference string, result models.PaymentResult, purchase models.TicketPurchase) {
	fail := func(reason, message string) {
		o.notify(reference, models.NoticeInfo, message)
		o.mark(reference, models.AttemptFailed, reason)
		o.bus.Tickets.Publish(models.TicketOutcome{Reference: reference, Status: models.OutcomeFailed, Reason: reason})
	}

	verified, err := o.backend.VerifyTicketPurchase(ctx, result, result.TransRef)
	if err != nil {
		log.Printf("[PAYMENT] Ticket verification error ref=%s: %v", reference, err)
		fail(models.ReasonVerificationError,
			"Payment verification could not be completed. If you were debited, your ticket will be confirmed shortly.")
		return
	}
	if !verified {
		log.Printf("[PAYMENT] Ticket payment not verified ref=%s transRef=%s", reference, result.TransRef)
		fail(models.ReasonVerificationFailed,
			"Payment verification failed. If you were debited, please contact support.")
		return
	}

	receipt, err := o.backend.PurchaseTicket(ctx, purchase.PurchasePayload)
	if err != nil {
		reason := models.ReasonVerificationError
		message := "Payment verification could not be completed. If you were debited, your ticket will be confirmed shortly."
		var statusErr *backend.StatusError
		if errors.As(err, &statusErr) {
			reason = models.ReasonTicketRegistrationFailed
			message = "Payment verified but ticket registration failed. Support will resolve this shortly."
		}
		log.Printf("⚠ [PAYMENT] Ticket registration failed after payment ref=%s: %v", reference, err)
		fail(reason, message)
		if o.alerts != nil {
			o.alerts.FulfilmentFailed(ctx, reference, models.KindTicket, reason)
		}
		return
	}

	message := receipt.Message
	if message == "" {
		message = "Ticket purchase successful."
	}
	o.notify(reference, models.NoticeSuccess, message)
	o.mark(reference, models.AttemptSucceeded, "")

	outcome := models.TicketOutcome{
		Reference:  reference,
		Status:     models.OutcomeSuccess,
		TicketType: purchase.TicketType(),
		Quantity:   purchase.Quantity(),
		AmountPaid: purchase.AmountPaid,
		TicketData: receipt.Data,
	}
	o.bus.Tickets.Publish(outcome)
	if o.alerts != nil {
		o.alerts.TicketsIssued(ctx, purchase, outcome)
	}
}

// confirmVotePayment verifies the payment and applies the votes in one call;
// the vote count in the outcome is the backend's.
func (o *Orchestrator) confirmVotePayment(ctx context.Context, reference string, result models.PaymentResult, vote models.VotePurchase) {
	receipt, err := o.backend.VerifyVotePayment(ctx, result, result.TransRef)
	if err != nil {
		log.Printf("⚠ [PAYMENT] Vote application failed ref=%s contestant=%s: %v", reference, vote.ContestantID, err)
		o.notify(reference, models.NoticeInfo, "Payment received but your votes could not be applied yet. Support will resolve this shortly.")
		o.mark(reference, models.AttemptFailed, "vote_application_failed")
		o.bus.Votes.Publish(models.VoteOutcome{Reference: reference, Status: models.OutcomeFailed, ContestantID: vote.ContestantID})
		if o.alerts != nil {
			o.alerts.FulfilmentFailed(ctx, reference, models.KindVote, "vote_application_failed")
		}
		return
	}

	message := receipt.Message
	if message == "" {
		message = "Vote purchase successful."
	}
	o.notify(reference, models.NoticeSuccess, message)
	o.mark(reference, models.AttemptSucceeded, "")
	o.bus.Votes.Publish(models.VoteOutcome{
		Reference:    reference,
		Status:       models.OutcomeSuccess,
		ContestantID: vote.ContestantID,
		NewVoteCount: receipt.UpdatedVotes,
	})
}
