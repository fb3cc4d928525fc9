package session

import (
	"sync"
	"time"

	"github.com/videonode/signaling/internal/models"
)

// Connection is the ephemeral identity of one live participant. It exists
// from the transport's connect signal until disconnect or explicit removal.
type Connection struct {
	ID       string
	UserName string
	RoomID   string
	Role     models.Role
	Audio    bool
	JoinedAt time.Time
}

// Info returns the connection's public profile.
func (c Connection) Info() models.MemberInfo {
	return models.MemberInfo{
		UserName: c.UserName,
		Role:     c.Role,
		Audio:    c.Audio,
		JoinedAt: c.JoinedAt,
	}
}

// Registry is the lookup table of live connections, keyed by connection id.
// All mutation goes through the registry; lookups return copies.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register records a new connection. Registering an id that is already
// present keeps the existing record.
func (r *Registry) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return
	}
	r.conns[id] = &Connection{ID: id, JoinedAt: time.Now()}
}

// SetProfile sets the connection's display name.
func (r *Registry) SetProfile(id, userName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.UserName = userName
	}
}

// SetRole assigns the connection's role.
func (r *Registry) SetRole(id string, role models.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.Role = role
	}
}

// SetAudio flips the connection's audio-enabled flag.
func (r *Registry) SetAudio(id string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.Audio = enabled
	}
}

// SetRoom records which room the connection currently belongs to.
func (r *Registry) SetRoom(id, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.RoomID = roomID
	}
}

// ClearRoom detaches the connection from its room and resets role and audio.
func (r *Registry) ClearRoom(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.RoomID = ""
		c.Role = models.RoleUnassigned
		c.Audio = false
	}
}

// Lookup returns a copy of the connection, if registered.
func (r *Registry) Lookup(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok {
		return *c, true
	}
	return Connection{}, false
}

// Remove deletes the connection. Safe to call more than once.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}
