package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// StreamName is the JetStream stream holding all saga subjects.
const StreamName = "USER_EVENTS"

// streamSubjects is the wildcard the stream captures.
const streamSubjects = "user.>"

// Bus is the NATS-backed event bus. Saga traffic rides JetStream for durable
// at-least-once delivery; the underlying core connection is shared with the
// gateway backplane, which deliberately uses fire-and-forget pub/sub.
type Bus struct {
	nc *nats.Conn
	js nats.JetStreamContext

	subs []*nats.Subscription
}

// Connect dials NATS and ensures the saga stream exists. The connection
// reconnects indefinitely; name shows up in server monitoring.
func Connect(url, name string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	if _, err := js.StreamInfo(StreamName); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, err
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      StreamName,
			Subjects:  []string{streamSubjects},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, err
		}
	}

	return &Bus{nc: nc, js: js}, nil
}

// Conn exposes the underlying core connection for non-durable uses such as
// the gateway broadcast backplane.
func (b *Bus) Conn() *nats.Conn { return b.nc }

// Publish emits the envelope on its kind's subject. The event id doubles as
// the JetStream message id, giving broker-side duplicate suppression on top
// of the subscribers' own idempotency stores.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = b.js.Publish(string(env.EventType), data,
		nats.MsgId(env.EventID),
		nats.Context(ctx),
	)
	return err
}

// Subscribe attaches a durable queue-group consumer over all saga subjects
// and routes deliveries through the dispatcher. A handler error naks the
// message with a short delay so the broker redelivers it; malformed
// envelopes are terminated rather than poisoning the queue.
func (b *Bus) Subscribe(queue string, d *Dispatcher) error {
	sub, err := b.js.QueueSubscribe(streamSubjects, queue, func(m *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			log.Error().Err(err).Str("subject", m.Subject).Msg("bus: dropping malformed envelope")
			_ = m.Term()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := d.Dispatch(ctx, env); err != nil {
			log.Warn().Err(err).
				Str("event_id", env.EventID).
				Str("event_type", string(env.EventType)).
				Msg("bus: handler failed, requeueing")
			_ = m.NakWithDelay(5 * time.Second)
			return
		}
		_ = m.Ack()
	},
		nats.Durable(queue),
		nats.ManualAck(),
		nats.AckWait(time.Minute),
		nats.DeliverAll(),
	)
	if err != nil {
		return err
	}
	b.subs = append(b.subs, sub)
	return nil
}

// Close drains subscriptions and the connection.
func (b *Bus) Close() {
	for _, s := range b.subs {
		_ = s.Drain()
	}
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}
