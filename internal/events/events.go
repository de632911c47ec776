// Package events defines the durable event bus contract shared by saga
// participants: a typed envelope, the known event kinds, and a dispatcher
// that maps kinds to handlers through an explicit registration table instead
// of stringly-typed switches.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies an event type. Kinds double as bus subjects.
type Kind string

// Known event kinds. UserDeleted triggers the account-deletion saga;
// MessagesAnonymized and DeletionFailed are the success/failure outcomes
// this service emits, which peer subscribers observe to compensate.
const (
	KindUserDeleted        Kind = "user.deleted"
	KindMessagesAnonymized Kind = "user.messages_anonymized"
	KindDeletionFailed     Kind = "user.deletion_failed"
)

// Metadata carries cross-event correlation.
type Metadata struct {
	CorrelationID string `json:"correlationId"`
}

// Envelope is the wire form of every saga event. EventID is globally unique
// and serves as the idempotency key: subscribers must process a given id at
// most once even under at-least-once delivery.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType Kind            `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
	EmittedAt time.Time       `json:"emittedAt"`
}

// UserDeleted is the payload of KindUserDeleted.
type UserDeleted struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// MessagesAnonymized is the payload of KindMessagesAnonymized, carrying the
// count of affected records.
type MessagesAnonymized struct {
	UserID   string `json:"userId"`
	Affected int64  `json:"affected"`
}

// DeletionFailed is the payload of KindDeletionFailed, naming the failing
// step so peers can compensate selectively.
type DeletionFailed struct {
	UserID string `json:"userId"`
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// NewEnvelope wraps payload in a fresh envelope with a generated event id.
func NewEnvelope(kind Kind, payload any, correlationID string) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Envelope{
		EventID:   uuid.NewString(),
		EventType: kind,
		Payload:   raw,
		Metadata:  Metadata{CorrelationID: correlationID},
		EmittedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}

// Publisher emits envelopes onto the durable bus.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Handler processes one envelope. A nil return acknowledges the delivery;
// an error negatively acknowledges it so the broker redelivers.
type Handler func(ctx context.Context, env Envelope) error

// Dispatcher routes envelopes to handlers by kind. Registration is explicit:
// kinds without a handler are acknowledged and skipped, since events on the
// shared stream may belong to other services.
type Dispatcher struct {
	handlers map[Kind]Handler
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind]Handler)}
}

// Register binds kind to h, replacing any previous handler for the kind.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch invokes the handler registered for the envelope's kind. Unhandled
// kinds return nil (ack-and-skip).
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	h, ok := d.handlers[env.EventType]
	if !ok {
		return nil
	}
	return h(ctx, env)
}
