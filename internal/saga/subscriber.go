// Package saga implements this service's participation in the account-
// deletion saga: an idempotent, compensable reaction to the durable
// "user.deleted" event.
//
// Processing contract per delivery:
//  1. The idempotency store is checked for the event id; an already-processed
//     event is acknowledged without side effects.
//  2. The local side effect runs: anonymize the user's chat messages,
//     reversibly, with rows retained.
//  3. Success emits user.messages_anonymized with the affected count and the
//     correlation id, then the delivery is acknowledged.
//  4. Failure emits user.deletion_failed naming the failing step, removes the
//     idempotency mark so a redelivery actually retries, and negatively
//     acknowledges so the broker redelivers.
//
// The package also subscribes to peer failure events and compensates by
// restoring previously anonymized messages, itself idempotent under
// redelivery.
package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/uplift-app/go-support-backend/internal/chat"
	"github.com/uplift-app/go-support-backend/internal/events"
	"github.com/uplift-app/go-support-backend/internal/repo"
)

// Step names carried by user.deletion_failed so peers can compensate
// selectively.
const (
	StepAnonymizeMessages = "anonymize_messages"
	StepEmitOutcome       = "emit_outcome"
)

// Subscriber reacts to account-deletion events for the chat domain.
type Subscriber struct {
	DB   *gorm.DB
	Chat *chat.Service
	Pub  events.Publisher
}

// NewSubscriber constructs a Subscriber.
func NewSubscriber(db *gorm.DB, chatSvc *chat.Service, pub events.Publisher) *Subscriber {
	return &Subscriber{DB: db, Chat: chatSvc, Pub: pub}
}

// Register binds this subscriber's handlers into the dispatcher table.
func (s *Subscriber) Register(d *events.Dispatcher) {
	d.Register(events.KindUserDeleted, s.HandleUserDeleted)
	d.Register(events.KindDeletionFailed, s.HandleDeletionFailed)
}

// HandleUserDeleted performs the local compensating action for a deleted
// account. A nil return acknowledges the delivery; an error requeues it.
func (s *Subscriber) HandleUserDeleted(ctx context.Context, env events.Envelope) error {
	var payload events.UserDeleted
	if err := env.Decode(&payload); err != nil {
		// Undecodable payloads will never succeed; ack and log rather than
		// poisoning the queue.
		log.Error().Err(err).Str("event_id", env.EventID).Msg("saga: malformed user.deleted payload")
		return nil
	}

	// Idempotency barrier: at most one side effect per event id.
	if done, err := repo.IsEventProcessed(ctx, s.DB, env.EventID); err != nil {
		return err
	} else if done {
		log.Debug().Str("event_id", env.EventID).Msg("saga: duplicate delivery acknowledged")
		return nil
	}
	if err := repo.MarkEventProcessed(ctx, s.DB, env.EventID, string(env.EventType), env.Metadata.CorrelationID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// A concurrent delivery won the race; its owner runs the side effect.
			return nil
		}
		return err
	}

	affected, err := s.Chat.Anonymize(ctx, payload.UserID)
	if err != nil {
		return s.fail(ctx, env, payload.UserID, StepAnonymizeMessages, err)
	}

	out, err := events.NewEnvelope(events.KindMessagesAnonymized, events.MessagesAnonymized{
		UserID:   payload.UserID,
		Affected: affected,
	}, env.Metadata.CorrelationID)
	if err == nil {
		err = s.Pub.Publish(ctx, out)
	}
	if err != nil {
		return s.fail(ctx, env, payload.UserID, StepEmitOutcome, err)
	}

	log.Info().
		Str("event_id", env.EventID).
		Str("user_id", payload.UserID).
		Int64("affected", affected).
		Msg("saga: messages anonymized")
	return nil
}

// HandleDeletionFailed compensates for a peer's failure by restoring this
// service's anonymization. The restore matches only still-anonymized rows,
// so redeliveries and repeated failure events are harmless.
func (s *Subscriber) HandleDeletionFailed(ctx context.Context, env events.Envelope) error {
	var payload events.DeletionFailed
	if err := env.Decode(&payload); err != nil {
		log.Error().Err(err).Str("event_id", env.EventID).Msg("saga: malformed user.deletion_failed payload")
		return nil
	}
	if payload.Step == StepAnonymizeMessages || payload.Step == StepEmitOutcome {
		// Our own failure event; the originating delivery is already being
		// retried, there is nothing to roll back here.
		return nil
	}

	restored, err := s.Chat.Restore(ctx, payload.UserID)
	if err != nil {
		return err
	}
	if restored > 0 {
		log.Info().
			Str("event_id", env.EventID).
			Str("user_id", payload.UserID).
			Str("failed_step", payload.Step).
			Int64("restored", restored).
			Msg("saga: compensated by restoring anonymized messages")
	}
	return nil
}

// fail emits the typed failure event, removes the idempotency mark so the
// redelivery can retry, and returns an error to trigger the nack.
func (s *Subscriber) fail(ctx context.Context, env events.Envelope, userID, step string, cause error) error {
	log.Error().Err(cause).
		Str("event_id", env.EventID).
		Str("user_id", userID).
		Str("step", step).
		Msg("saga: step failed")

	out, err := events.NewEnvelope(events.KindDeletionFailed, events.DeletionFailed{
		UserID: userID,
		Step:   step,
		Reason: cause.Error(),
	}, env.Metadata.CorrelationID)
	if err == nil {
		if perr := s.Pub.Publish(ctx, out); perr != nil {
			log.Error().Err(perr).Str("event_id", env.EventID).Msg("saga: failure event publish failed")
		}
	}

	if uerr := repo.UnmarkEventProcessed(ctx, s.DB, env.EventID); uerr != nil {
		log.Error().Err(uerr).Str("event_id", env.EventID).Msg("saga: unmark failed; manual retry required")
	}

	return fmt.Errorf("%s: %w", step, cause)
}
