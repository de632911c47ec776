package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Currently authenticated websocket connections.",
	})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_messages_total",
		Help: "Inbound websocket events by type.",
	}, []string{"type"})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_broadcasts_total",
		Help: "Frames fanned out to room members, by origin (local or backplane).",
	}, []string{"origin"})

	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_persist_failures_total",
		Help: "Messages broadcast with a fallback id after a failed persist.",
	})

	slowClientDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_slow_client_drops_total",
		Help: "Connections dropped because their send buffer filled.",
	})
)
