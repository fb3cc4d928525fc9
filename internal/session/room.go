package session

import (
	"sync"
	"time"

	"github.com/videonode/signaling/internal/models"
)

// Room holds all floor-control and membership state for one room id.
// Methods do not lock; the coordinator holds mu for the whole of each
// inbound event so per-room processing stays serialized.
type Room struct {
	ID string

	mu sync.Mutex

	broadcasterID string

	viewers   []string // join order
	viewerSet map[string]struct{}

	raisedHands []models.RaisedHand // FIFO
	raisedSet   map[string]struct{}

	activeSpeakerID string

	locked     bool
	pending    []string // arrival order
	pendingSet map[string]struct{}
}

func newRoom(id string) *Room {
	return &Room{
		ID:         id,
		viewerSet:  make(map[string]struct{}),
		raisedSet:  make(map[string]struct{}),
		pendingSet: make(map[string]struct{}),
	}
}

func (r *Room) BroadcasterID() string { return r.broadcasterID }

func (r *Room) SetBroadcaster(connID string) { r.broadcasterID = connID }

func (r *Room) AddViewer(connID string) {
	if _, ok := r.viewerSet[connID]; ok {
		return
	}
	r.viewerSet[connID] = struct{}{}
	r.viewers = append(r.viewers, connID)
}

func (r *Room) IsViewer(connID string) bool {
	_, ok := r.viewerSet[connID]
	return ok
}

func (r *Room) ViewerCount() int { return len(r.viewers) }

// Viewers returns viewer ids in join order.
func (r *Room) Viewers() []string {
	out := make([]string, len(r.viewers))
	copy(out, r.viewers)
	return out
}

// MemberIDs returns every participant: broadcaster first, then viewers.
// Pending connections are not members yet.
func (r *Room) MemberIDs() []string {
	out := make([]string, 0, len(r.viewers)+1)
	if r.broadcasterID != "" {
		out = append(out, r.broadcasterID)
	}
	out = append(out, r.viewers...)
	return out
}

// AddPending queues a connection awaiting admission to a locked room.
func (r *Room) AddPending(connID string) {
	if _, ok := r.pendingSet[connID]; ok {
		return
	}
	r.pendingSet[connID] = struct{}{}
	r.pending = append(r.pending, connID)
}

func (r *Room) IsPending(connID string) bool {
	_, ok := r.pendingSet[connID]
	return ok
}

// RemovePending drops a pending entry. Returns false if the id was not queued.
func (r *Room) RemovePending(connID string) bool {
	if _, ok := r.pendingSet[connID]; !ok {
		return false
	}
	delete(r.pendingSet, connID)
	for i, id := range r.pending {
		if id == connID {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			break
		}
	}
	return true
}

// RaiseHand appends a floor request. Returns false if the connection is
// already queued or currently holds the floor.
func (r *Room) RaiseHand(connID, userName string, at time.Time) bool {
	if _, ok := r.raisedSet[connID]; ok {
		return false
	}
	if r.activeSpeakerID == connID {
		return false
	}
	r.raisedSet[connID] = struct{}{}
	r.raisedHands = append(r.raisedHands, models.RaisedHand{
		ConnectionID: connID,
		UserName:     userName,
		RaisedAt:     at,
	})
	return true
}

// LowerHand removes a floor request. Returns false if none was queued.
func (r *Room) LowerHand(connID string) bool {
	if _, ok := r.raisedSet[connID]; !ok {
		return false
	}
	delete(r.raisedSet, connID)
	for i, h := range r.raisedHands {
		if h.ConnectionID == connID {
			r.raisedHands = append(r.raisedHands[:i], r.raisedHands[i+1:]...)
			break
		}
	}
	return true
}

func (r *Room) HandRaised(connID string) bool {
	_, ok := r.raisedSet[connID]
	return ok
}

// RaisedHands returns the queue in FIFO order.
func (r *Room) RaisedHands() []models.RaisedHand {
	out := make([]models.RaisedHand, len(r.raisedHands))
	copy(out, r.raisedHands)
	return out
}

// ClearAllHands empties the raised-hand queue and returns the dropped entries.
func (r *Room) ClearAllHands() []models.RaisedHand {
	dropped := r.raisedHands
	r.raisedHands = nil
	r.raisedSet = make(map[string]struct{})
	return dropped
}

func (r *Room) ActiveSpeaker() string { return r.activeSpeakerID }

// SetActiveSpeaker grants the floor and evicts the viewer from the
// raised-hand queue, keeping the two mutually exclusive. Returns the
// previous holder, if any.
func (r *Room) SetActiveSpeaker(connID string) (prev string) {
	prev = r.activeSpeakerID
	r.activeSpeakerID = connID
	r.LowerHand(connID)
	return prev
}

// ClearActiveSpeaker returns the floor to idle. Returns false if it was
// already idle.
func (r *Room) ClearActiveSpeaker() bool {
	if r.activeSpeakerID == "" {
		return false
	}
	r.activeSpeakerID = ""
	return true
}

// ReconcileSpeaker clears an active-speaker id that no longer references a
// current viewer. Returns the cleared id, or "" when the slot was sound.
func (r *Room) ReconcileSpeaker() string {
	if r.activeSpeakerID == "" {
		return ""
	}
	if _, ok := r.viewerSet[r.activeSpeakerID]; ok {
		return ""
	}
	cleared := r.activeSpeakerID
	r.activeSpeakerID = ""
	return cleared
}

func (r *Room) Locked() bool { return r.locked }

func (r *Room) SetLocked(locked bool) { r.locked = locked }

// RemoveMember detaches a connection from whichever slot holds it and
// returns the role it had in the room. Floor state for the connection
// (hand, speaker slot) is cleared as well.
func (r *Room) RemoveMember(connID string) models.Role {
	r.LowerHand(connID)
	if r.activeSpeakerID == connID {
		r.activeSpeakerID = ""
	}
	if r.RemovePending(connID) {
		return models.RoleUnassigned
	}
	if r.broadcasterID == connID {
		r.broadcasterID = ""
		return models.RoleBroadcaster
	}
	if _, ok := r.viewerSet[connID]; ok {
		delete(r.viewerSet, connID)
		for i, id := range r.viewers {
			if id == connID {
				r.viewers = append(r.viewers[:i], r.viewers[i+1:]...)
				break
			}
		}
		return models.RoleViewer
	}
	return models.RoleUnassigned
}

// IsEmpty reports whether no broadcaster, viewers, or pending entries remain.
func (r *Room) IsEmpty() bool {
	return r.broadcasterID == "" && len(r.viewers) == 0 && len(r.pending) == 0
}
