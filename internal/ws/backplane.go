package ws

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// backplaneSubject carries cross-instance room broadcasts. Delivery is
// fire-and-forget core pub/sub: a frame a peer misses was a live frame, not
// durable state, and history replay covers reconnects.
const backplaneSubject = "chat.broadcast"

// BroadcastEnvelope is the cross-instance form of a room frame. Origin lets
// the publishing instance discard its own echo.
type BroadcastEnvelope struct {
	Origin string          `json:"origin"`
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

// Backplane fans room broadcasts out to peer gateway instances.
type Backplane interface {
	// Publish sends a local broadcast to all peers.
	Publish(env BroadcastEnvelope) error
	// Subscribe registers the handler for peer broadcasts. Called once.
	Subscribe(handler func(BroadcastEnvelope)) error
	// Close tears the subscription down.
	Close()
}

// natsBackplane implements Backplane over a shared core NATS connection.
type natsBackplane struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

// NewNATSBackplane wraps an established connection; the caller keeps
// ownership of the connection's lifecycle.
func NewNATSBackplane(nc *nats.Conn) Backplane {
	return &natsBackplane{nc: nc}
}

func (b *natsBackplane) Publish(env BroadcastEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	return b.nc.Publish(backplaneSubject, data)
}

func (b *natsBackplane) Subscribe(handler func(BroadcastEnvelope)) error {
	sub, err := b.nc.Subscribe(backplaneSubject, func(m *nats.Msg) {
		var env BroadcastEnvelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			log.Warn().Err(err).Msg("ws backplane: dropping malformed broadcast")
			return
		}
		handler(env)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", backplaneSubject, err)
	}
	b.sub = sub
	return nil
}

func (b *natsBackplane) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
}

// noopBackplane serves single-instance deployments and degraded mode when
// the broker is unreachable: local delivery continues, peers see nothing.
type noopBackplane struct{}

// NewNoopBackplane returns a backplane that drops everything.
func NewNoopBackplane() Backplane { return noopBackplane{} }

func (noopBackplane) Publish(BroadcastEnvelope) error         { return nil }
func (noopBackplane) Subscribe(func(BroadcastEnvelope)) error { return nil }
func (noopBackplane) Close()                                  {}
