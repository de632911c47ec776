package events

import (
	"context"
	"errors"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(KindUserDeleted, UserDeleted{UserID: "u1", Email: "u1@example.com"}, "corr-1")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.EventID == "" {
		t.Error("EventID not generated")
	}
	if env.EventType != KindUserDeleted {
		t.Errorf("EventType = %q", env.EventType)
	}
	if env.Metadata.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %q", env.Metadata.CorrelationID)
	}
	if env.EmittedAt.IsZero() {
		t.Error("EmittedAt not stamped")
	}

	var payload UserDeleted
	if err := env.Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.UserID != "u1" || payload.Email != "u1@example.com" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestDispatcherRouting(t *testing.T) {
	d := NewDispatcher()

	var got []Kind
	d.Register(KindUserDeleted, func(ctx context.Context, env Envelope) error {
		got = append(got, env.EventType)
		return nil
	})
	errHandler := errors.New("handler failed")
	d.Register(KindDeletionFailed, func(ctx context.Context, env Envelope) error {
		return errHandler
	})

	env, _ := NewEnvelope(KindUserDeleted, UserDeleted{UserID: "u1"}, "")
	if err := d.Dispatch(context.Background(), env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got) != 1 || got[0] != KindUserDeleted {
		t.Errorf("routed = %v", got)
	}

	// Handler errors propagate so the bus can nack.
	fenv, _ := NewEnvelope(KindDeletionFailed, DeletionFailed{UserID: "u1", Step: "x"}, "")
	if err := d.Dispatch(context.Background(), fenv); !errors.Is(err, errHandler) {
		t.Errorf("err = %v, want handler error", err)
	}

	// Unregistered kinds are acknowledged silently.
	oenv, _ := NewEnvelope(Kind("user.renamed"), UserDeleted{}, "")
	if err := d.Dispatch(context.Background(), oenv); err != nil {
		t.Errorf("unregistered kind err = %v, want nil", err)
	}
}
