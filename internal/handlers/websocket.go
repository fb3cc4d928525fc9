package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/videonode/signaling/internal/hub"
	"github.com/videonode/signaling/internal/logging"
	"github.com/videonode/signaling/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// HandleSignaling upgrades the connection and wires it into the hub and
// the session coordinator. All room semantics (role assignment, floor
// control, relay) happen in the coordinator; this handler only moves
// frames.
func HandleSignaling(h *hub.Hub, coord *session.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log := logging.L()
			log.Error().Err(err).Msg("failed to upgrade connection")
			return
		}

		connID := uuid.New().String()
		client := h.NewClient(connID, conn)
		h.Register(client)
		coord.HandleConnect(connID)

		go client.WritePump()
		go client.ReadPump(coord.Dispatch, coord.HandleDisconnect)
	}
}
