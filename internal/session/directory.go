package session

import "sync"

// Directory maps room ids to live Room state. Rooms are created lazily on
// first join and destroyed once empty so they never leak.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for id, creating it on first use.
// The second result reports whether the room was just created.
func (d *Directory) GetOrCreate(id string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if room, ok := d.rooms[id]; ok {
		return room, false
	}
	room := newRoom(id)
	d.rooms[id] = room
	return room, true
}

// Get returns the room for id, if present.
func (d *Directory) Get(id string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[id]
	return room, ok
}

// DestroyIfEmpty drops the room when it has no broadcaster, viewers, or
// pending entries. Callers must hold the room's lock. Returns true if the
// room was removed.
func (d *Directory) DestroyIfEmpty(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[id]
	if !ok || !room.IsEmpty() {
		return false
	}
	delete(d.rooms, id)
	return true
}

// Destroy unconditionally drops the room.
func (d *Directory) Destroy(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rooms, id)
}

// Len returns the number of live rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}
