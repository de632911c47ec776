package ws

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// joinRequest moves a client into a room, leaving its previous room first.
type joinRequest struct {
	client *Client
	roomID string
}

// roomFrame is a payload fanned out to every member of a room. A non-nil
// exclude skips the originator; local marks frames born on this instance,
// which are additionally forwarded to the backplane.
type roomFrame struct {
	roomID  string
	data    []byte
	exclude *Client
	local   bool
}

// Hub routes frames between clients grouped by room. All membership state is
// owned by the Run goroutine and mutated exclusively through channels, so no
// handler may block the loop.
type Hub struct {
	instanceID string
	backplane  Backplane

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	leave      chan *Client
	broadcast  chan roomFrame

	rooms      map[string]map[*Client]struct{}
	memberRoom map[*Client]string
}

// NewHub wires a hub to the given backplane. instanceID stamps outgoing
// backplane envelopes so echoes can be discarded.
func NewHub(instanceID string, backplane Backplane) *Hub {
	return &Hub{
		instanceID: instanceID,
		backplane:  backplane,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		leave:      make(chan *Client),
		broadcast:  make(chan roomFrame, 64),
		rooms:      make(map[string]map[*Client]struct{}),
		memberRoom: make(map[*Client]string),
	}
}

// Run drives the hub until ctx is cancelled. It also owns the backplane
// subscription: peer frames re-enter through the same broadcast channel as
// local ones, flagged remote.
func (h *Hub) Run(ctx context.Context) {
	if err := h.backplane.Subscribe(func(env BroadcastEnvelope) {
		if env.Origin == h.instanceID {
			return
		}
		select {
		case h.broadcast <- roomFrame{roomID: env.RoomID, data: env.Data}:
		case <-ctx.Done():
		}
	}); err != nil {
		log.Error().Err(err).Msg("ws: backplane subscribe failed; cross-instance delivery disabled")
	}
	defer h.backplane.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			connectionsGauge.Inc()
			log.Debug().Str("connection_id", c.session.ConnectionID).Msg("ws: client registered")
		case c := <-h.unregister:
			h.removeFromRoom(c, true)
			connectionsGauge.Dec()
		case req := <-h.join:
			h.removeFromRoom(req.client, true)
			members, ok := h.rooms[req.roomID]
			if !ok {
				members = make(map[*Client]struct{})
				h.rooms[req.roomID] = members
			}
			members[req.client] = struct{}{}
			h.memberRoom[req.client] = req.roomID
			notice := userJoinedEvent(req.client.session.UserID, req.client.session.Username, time.Now().UTC())
			h.fanOut(roomFrame{roomID: req.roomID, data: notice, exclude: req.client, local: true})
		case c := <-h.leave:
			h.removeFromRoom(c, true)
		case frame := <-h.broadcast:
			h.fanOut(frame)
		}
	}
}

// removeFromRoom drops the client's membership; when notify is set the
// remaining members receive a user_left notice.
func (h *Hub) removeFromRoom(c *Client, notify bool) {
	roomID, ok := h.memberRoom[c]
	if !ok {
		return
	}
	delete(h.memberRoom, c)
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	// The notice goes through fanOut even when no local members remain:
	// peer instances may still hold members of this room.
	if notify {
		notice := userLeftEvent(c.session.UserID, c.session.Username, time.Now().UTC())
		h.fanOut(roomFrame{roomID: roomID, data: notice, local: true})
	}
}

// fanOut delivers a frame to the room's local members and forwards local
// frames to the backplane. Slow members are disconnected rather than allowed
// to stall the loop.
func (h *Hub) fanOut(frame roomFrame) {
	origin := "backplane"
	if frame.local {
		origin = "local"
	}
	broadcastsTotal.WithLabelValues(origin).Inc()

	for c := range h.rooms[frame.roomID] {
		if c == frame.exclude {
			continue
		}
		c.enqueue(frame.data)
	}

	if frame.local {
		err := h.backplane.Publish(BroadcastEnvelope{
			Origin: h.instanceID,
			RoomID: frame.roomID,
			Data:   frame.data,
		})
		if err != nil {
			log.Warn().Err(err).Str("room_id", frame.roomID).Msg("ws: backplane publish failed")
		}
	}
}

// Broadcast queues a locally originated frame for a room. exclude may be nil.
func (h *Hub) Broadcast(roomID string, data []byte, exclude *Client) {
	h.broadcast <- roomFrame{roomID: roomID, data: data, exclude: exclude, local: true}
}
