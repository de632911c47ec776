package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/uplift-app/go-support-backend/internal/auth"
	"github.com/uplift-app/go-support-backend/internal/chat"
	"github.com/uplift-app/go-support-backend/internal/config"
)

// Gateway upgrades HTTP requests to websocket sessions and binds each
// connection to the hub, the token validator, and the chat service.
type Gateway struct {
	hub       *Hub
	validator *auth.Validator
	chat      *chat.Service
	cfg       config.GatewayConfig
	upgrader  websocket.Upgrader
}

// NewGateway constructs a Gateway. Browser origin policy is enforced by the
// CORS middleware ahead of the upgrade, so the upgrader accepts all origins.
func NewGateway(hub *Hub, validator *auth.Validator, chatSvc *chat.Service, cfg config.GatewayConfig) *Gateway {
	return &Gateway{
		hub:       hub,
		validator: validator,
		chat:      chatSvc,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle is the gin endpoint for /ws. The handler goroutine becomes the
// connection's read pump; the write pump runs alongside it.
func (g *Gateway) Handle(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("ws: upgrade failed")
		return
	}

	client := &Client{
		gw:          g,
		conn:        conn,
		session:     NewSession(uuid.NewString()),
		send:        make(chan []byte, g.cfg.SendBuffer),
		done:        make(chan struct{}),
		queryToken:  c.Query("token"),
		headerToken: auth.BearerFromHeader(c.GetHeader("Authorization")),
	}

	go client.writePump()
	client.readPump(c.Request.Context())
}
