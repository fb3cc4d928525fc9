package hub

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/videonode/signaling/config"
)

// ErrRoomNotFound is returned by Members for an unknown room.
var ErrRoomNotFound = errors.New("room not found")

// Hub owns every live websocket client and the transport-level room
// membership used for broadcasts. It implements the messaging capability
// the session coordinator consumes.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client // roomID -> clientID -> client

	cfg config.WebSocketConfig
	log zerolog.Logger
}

func New(cfg config.WebSocketConfig, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		cfg:     cfg,
		log:     logger,
	}
}

// Register adds a connected client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	h.log.Debug().Str("connection_id", client.ID).Msg("client registered")
}

// Unregister drops a client and its room memberships. Idempotent.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for roomID, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// JoinRoom adds the client to a named room.
func (h *Hub) JoinRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[connID]
	if !ok {
		return
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][connID] = client
}

// LeaveRoom removes the client from a named room.
func (h *Hub) LeaveRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Members enumerates current room membership.
func (h *Hub) Members(roomID string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids, nil
}

// Unicast delivers a message to one connection. Unknown targets and full
// send buffers drop the message: no delivery guarantee is offered.
func (h *Hub) Unicast(connID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		h.log.Debug().Str("connection_id", connID).Msg("unicast target not connected, dropping")
		return
	}
	h.send(client, data)
}

// BroadcastToRoom fans a message out to every room member except
// excludeID. Pass an empty excludeID to include everyone.
func (h *Hub) BroadcastToRoom(roomID string, msg any, excludeID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.rooms[roomID] {
		if id == excludeID {
			continue
		}
		h.send(client, data)
	}
}

func (h *Hub) send(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.log.Warn().Str("connection_id", client.ID).Msg("send buffer full, dropping message")
	}
}
