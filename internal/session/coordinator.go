package session

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/videonode/signaling/internal/models"
)

// Transport is the messaging capability the coordinator consumes. Sends
// are fire-and-forget: delivery to an absent target is dropped by the
// implementation, never surfaced to the caller.
type Transport interface {
	Unicast(connID string, msg any)
	BroadcastToRoom(roomID string, msg any, excludeID string)
	JoinRoom(connID, roomID string)
	LeaveRoom(connID, roomID string)
	Members(roomID string) ([]string, error)
}

// Presence receives best-effort membership updates (e.g. a redis mirror
// backing REST occupancy numbers). Implementations must not block.
type Presence interface {
	Joined(roomID, connID string)
	Left(roomID, connID string)
}

type noopPresence struct{}

func (noopPresence) Joined(string, string) {}
func (noopPresence) Left(string, string)   {}

// Coordinator owns all room and connection state and handles every inbound
// event to completion before the next event for the same room: each
// handler takes the room's lock for the whole mutation-plus-emit sequence,
// so different rooms proceed concurrently while a single room never
// interleaves.
type Coordinator struct {
	registry  *Registry
	rooms     *Directory
	transport Transport
	presence  Presence
	resolver  func(roomID string) string
	log       zerolog.Logger
}

// NewCoordinator builds a coordinator over the given transport. presence
// and resolver may be nil.
func NewCoordinator(transport Transport, presence Presence, resolver func(string) string, logger zerolog.Logger) *Coordinator {
	if presence == nil {
		presence = noopPresence{}
	}
	return &Coordinator{
		registry:  NewRegistry(),
		rooms:     NewDirectory(),
		transport: transport,
		presence:  presence,
		resolver:  resolver,
		log:       logger,
	}
}

// Registry exposes the connection registry (used by handler-level lookups).
func (c *Coordinator) Registry() *Registry { return c.registry }

// Rooms exposes the room directory.
func (c *Coordinator) Rooms() *Directory { return c.rooms }

// HandleConnect registers a fresh connection.
func (c *Coordinator) HandleConnect(connID string) {
	c.registry.Register(connID)
	c.log.Info().Str("connection_id", connID).Msg("connection registered")
}

// HandleDisconnect runs the full cleanup path for a vanished connection.
// Safe to call more than once for the same id.
func (c *Coordinator) HandleDisconnect(connID string) {
	if conn, ok := c.registry.Lookup(connID); ok && conn.RoomID != "" {
		c.removeFromRoom(conn, conn.RoomID)
	}
	c.registry.Remove(connID)
	c.log.Info().Str("connection_id", connID).Msg("connection removed")
}

// Dispatch parses one inbound frame and routes it to its handler.
func (c *Coordinator) Dispatch(connID string, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug().Err(err).Str("connection_id", connID).Msg("unparseable frame")
		return
	}

	switch env.Type {
	case models.EventJoinRoom:
		var ev models.JoinRoomEvent
		if c.decode(connID, data, &ev) {
			c.HandleJoinRoom(connID, ev)
		}
	case models.EventLeaveRoom:
		var ev models.LeaveRoomEvent
		if c.decode(connID, data, &ev) {
			c.HandleLeaveRoom(connID, ev)
		}
	case models.EventCallUser:
		var ev models.CallUserEvent
		if c.decode(connID, data, &ev) {
			c.HandleCallUser(connID, ev)
		}
	case models.EventAcceptCall:
		var ev models.AcceptCallEvent
		if c.decode(connID, data, &ev) {
			c.HandleAcceptCall(connID, ev)
		}
	case models.EventRaiseHand:
		var ev models.RaiseHandEvent
		if c.decode(connID, data, &ev) {
			c.HandleRaiseHand(connID, ev)
		}
	case models.EventCancelRaiseHand:
		var ev models.CancelRaiseHandEvent
		if c.decode(connID, data, &ev) {
			c.HandleCancelRaiseHand(connID, ev)
		}
	case models.EventApproveSpeaker:
		var ev models.ApproveSpeakerEvent
		if c.decode(connID, data, &ev) {
			c.HandleApproveSpeaker(connID, ev)
		}
	case models.EventDenySpeaker:
		var ev models.DenySpeakerEvent
		if c.decode(connID, data, &ev) {
			c.HandleDenySpeaker(connID, ev)
		}
	case models.EventMuteViewer:
		var ev models.MuteViewerEvent
		if c.decode(connID, data, &ev) {
			c.HandleMuteViewer(connID, ev)
		}
	case models.EventMuteAll:
		var ev models.MuteAllEvent
		if c.decode(connID, data, &ev) {
			c.HandleMuteAll(connID, ev)
		}
	case models.EventSelfMute:
		var ev models.SelfMuteEvent
		if c.decode(connID, data, &ev) {
			c.HandleSelfMute(connID, ev)
		}
	case models.EventToggleRoomLock:
		var ev models.ToggleRoomLockEvent
		if c.decode(connID, data, &ev) {
			c.HandleToggleRoomLock(connID, ev)
		}
	case models.EventApprovePendingViewer:
		var ev models.ApprovePendingViewerEvent
		if c.decode(connID, data, &ev) {
			c.HandleApprovePendingViewer(connID, ev)
		}
	default:
		c.log.Debug().Str("connection_id", connID).Str("event_type", env.Type).Msg("unknown event type")
	}
}

func (c *Coordinator) decode(connID string, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.log.Debug().Err(err).Str("connection_id", connID).Msg("malformed event payload")
		return false
	}
	return true
}

// HandleJoinRoom assigns a role and announces the newcomer. A connection
// switching rooms is detached from its old room first; a repeat join for a
// room it already occupies replays the current assignment.
func (c *Coordinator) HandleJoinRoom(connID string, ev models.JoinRoomEvent) {
	roomID := c.resolveRoom(ev.RoomID)

	c.registry.Register(connID)
	c.registry.SetProfile(connID, ev.UserName)

	if conn, ok := c.registry.Lookup(connID); ok && conn.RoomID != "" && conn.RoomID != roomID {
		c.removeFromRoom(conn, conn.RoomID)
		c.registry.ClearRoom(connID)
	}

	room := c.lockRoom(roomID)
	defer room.mu.Unlock()

	c.log.Info().
		Str("connection_id", connID).
		Str("user_name", ev.UserName).
		Str("requested_role", string(ev.Role)).
		Str("room_id", roomID).
		Msg("join requested")

	// Replay, never reassign: a connection holds at most one slot per room.
	switch {
	case room.BroadcasterID() == connID:
		snapshot := c.snapshotLocked(room)
		c.transport.Unicast(connID, models.RoleAssignedMessage{
			Type:          models.EventRoleAssigned,
			Role:          models.RoleBroadcaster,
			BroadcasterID: connID,
			RoomSnapshot:  &snapshot,
		})
		return
	case room.IsViewer(connID):
		c.transport.Unicast(connID, models.RoleAssignedMessage{
			Type:          models.EventRoleAssigned,
			Role:          models.RoleViewer,
			BroadcasterID: room.BroadcasterID(),
			ViewerCount:   room.ViewerCount(),
		})
		return
	case room.IsPending(connID):
		c.transport.Unicast(connID, models.PendingApprovalMessage{
			Type:          models.EventPendingApproval,
			BroadcasterID: room.BroadcasterID(),
		})
		return
	}

	switch {
	case room.BroadcasterID() == "" && (ev.Role == models.RoleUnassigned || ev.Role == models.RoleBroadcaster):
		room.SetBroadcaster(connID)
		c.registry.SetRole(connID, models.RoleBroadcaster)
		c.registry.SetAudio(connID, true)
		c.registry.SetRoom(connID, roomID)
		c.transport.JoinRoom(connID, roomID)
		c.presence.Joined(roomID, connID)

		snapshot := c.snapshotLocked(room)
		c.transport.Unicast(connID, models.RoleAssignedMessage{
			Type:          models.EventRoleAssigned,
			Role:          models.RoleBroadcaster,
			BroadcasterID: connID,
			RoomSnapshot:  &snapshot,
		})
		c.log.Info().Str("connection_id", connID).Str("room_id", roomID).Msg("broadcaster assigned")

	case room.Locked():
		room.AddPending(connID)
		c.registry.SetRoom(connID, roomID)
		c.transport.Unicast(connID, models.PendingApprovalMessage{
			Type:          models.EventPendingApproval,
			BroadcasterID: room.BroadcasterID(),
		})
		if b := room.BroadcasterID(); b != "" {
			c.transport.Unicast(b, models.PendingViewerAddedMessage{
				Type:       models.EventPendingViewerAdded,
				Connection: c.member(connID),
			})
		}
		c.log.Info().Str("connection_id", connID).Str("room_id", roomID).Msg("join held pending approval")
		return // admitted (and announced) only once the broadcaster approves

	default:
		room.AddViewer(connID)
		c.registry.SetRole(connID, models.RoleViewer)
		c.registry.SetAudio(connID, false)
		c.registry.SetRoom(connID, roomID)
		c.transport.JoinRoom(connID, roomID)
		c.presence.Joined(roomID, connID)
		c.transport.Unicast(connID, models.RoleAssignedMessage{
			Type:          models.EventRoleAssigned,
			Role:          models.RoleViewer,
			BroadcasterID: room.BroadcasterID(),
			ViewerCount:   room.ViewerCount(),
		})
		c.log.Info().
			Str("connection_id", connID).
			Str("room_id", roomID).
			Str("broadcaster_id", room.BroadcasterID()).
			Int("viewer_count", room.ViewerCount()).
			Msg("viewer assigned")
	}

	c.broadcastRosterLocked(room, connID)
}

// HandleLeaveRoom processes an explicit departure. The connection record is
// removed; a later join re-registers it.
func (c *Coordinator) HandleLeaveRoom(connID string, ev models.LeaveRoomEvent) {
	conn, ok := c.registry.Lookup(connID)
	if !ok {
		return
	}
	roomID := conn.RoomID
	if roomID == "" {
		roomID = c.resolveRoom(ev.RoomID)
	}
	c.log.Info().
		Str("connection_id", connID).
		Str("user_name", conn.UserName).
		Str("room_id", roomID).
		Msg("leave requested")
	c.removeFromRoom(conn, roomID)
	c.registry.Remove(connID)
}

// HandleCallUser relays an opaque handshake payload to the callee together
// with the caller's profile. Absent targets drop silently.
func (c *Coordinator) HandleCallUser(connID string, ev models.CallUserEvent) {
	caller, _ := c.registry.Lookup(connID)
	c.log.Info().
		Str("from", connID).
		Str("to", ev.TargetID).
		Msg("relaying call")
	c.transport.Unicast(ev.TargetID, models.IncomingCallMessage{
		Type:       models.EventIncomingCall,
		Signal:     ev.Signal,
		From:       connID,
		CallerInfo: caller.Info(),
	})
}

// HandleAcceptCall relays the answerer's payload back to the caller.
func (c *Coordinator) HandleAcceptCall(connID string, ev models.AcceptCallEvent) {
	c.transport.Unicast(ev.TargetID, models.CallAcceptedMessage{
		Type:       models.EventCallAccepted,
		Signal:     ev.Signal,
		AnswererID: connID,
	})
}

// HandleRaiseHand queues a viewer's floor request. Repeat calls are no-ops.
func (c *Coordinator) HandleRaiseHand(connID string, ev models.RaiseHandEvent) {
	room := c.getLockedRoom(c.resolveRoom(ev.RoomID))
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	conn, ok := c.registry.Lookup(connID)
	if !ok {
		return
	}
	if !room.IsViewer(connID) {
		c.logViolation(connID, room.ID, "raise-hand")
		return
	}
	if !room.RaiseHand(connID, conn.UserName, time.Now()) {
		return
	}
	c.transport.BroadcastToRoom(room.ID, models.HandRaisedMessage{
		Type:         models.EventHandRaised,
		ConnectionID: connID,
		Name:         conn.UserName,
	}, connID)
	if b := room.BroadcasterID(); b != "" {
		c.transport.Unicast(b, models.SpeakingRequestMessage{
			Type:        models.EventSpeakingRequest,
			RequesterID: connID,
		})
	}
}

// HandleCancelRaiseHand withdraws a queued floor request.
func (c *Coordinator) HandleCancelRaiseHand(connID string, ev models.CancelRaiseHandEvent) {
	room := c.getLockedRoom(c.resolveRoom(ev.RoomID))
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	if !room.LowerHand(connID) {
		return
	}
	c.transport.BroadcastToRoom(room.ID, models.HandLoweredMessage{
		Type:         models.EventHandLowered,
		ConnectionID: connID,
	}, connID)
	if b := room.BroadcasterID(); b != "" {
		c.transport.Unicast(b, models.SpeakingRequestCanceledMessage{
			Type:        models.EventSpeakingRequestCanceled,
			RequesterID: connID,
		})
	}
}

// HandleApproveSpeaker grants the floor. Any current holder is muted first
// so at most one connection per room is ever speaking.
func (c *Coordinator) HandleApproveSpeaker(connID string, ev models.ApproveSpeakerEvent) {
	room := c.getLockedRoom(c.resolveRoom(ev.RoomID))
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	if !c.isBroadcaster(room, connID, "approve-speaker") {
		return
	}
	if !room.IsViewer(ev.ViewerID) {
		c.log.Warn().
			Str("room_id", room.ID).
			Str("viewer_id", ev.ViewerID).
			Msg("approve-speaker target is not a viewer")
		return
	}

	if cleared := room.ReconcileSpeaker(); cleared != "" {
		c.log.Error().
			Str("room_id", room.ID).
			Str("connection_id", cleared).
			Msg("active speaker was not a viewer; slot reset")
	}

	if prev := room.ActiveSpeaker(); prev != "" && prev != ev.ViewerID {
		c.registry.SetAudio(prev, false)
		c.transport.Unicast(prev, models.MutedMessage{
			Type:     models.EventMuted,
			ViewerID: prev,
		})
	}

	wasQueued := room.HandRaised(ev.ViewerID)
	room.SetActiveSpeaker(ev.ViewerID)
	c.registry.SetAudio(ev.ViewerID, true)

	if wasQueued {
		c.transport.BroadcastToRoom(room.ID, models.HandLoweredMessage{
			Type:         models.EventHandLowered,
			ConnectionID: ev.ViewerID,
		}, "")
	}
	c.transport.Unicast(ev.ViewerID, models.SpeakingApprovedMessage{
		Type:     models.EventSpeakingApproved,
		ViewerID: ev.ViewerID,
	})
	c.broadcastActiveSpeaker(room.ID, ev.ViewerID, "")
	c.log.Info().
		Str("room_id", room.ID).
		Str("viewer_id", ev.ViewerID).
		Msg("speaker approved")
}

// HandleDenySpeaker refuses a floor request and drops the raised hand.
func (c *Coordinator) HandleDenySpeaker(connID string, ev models.DenySpeakerEvent) {
	room := c.getLockedRoom(c.resolveRoom(ev.RoomID))
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	if !c.isBroadcaster(room, connID, "deny-speaker") {
		return
	}
	c.transport.Unicast(ev.ViewerID, models.SpeakingDeniedMessage{
		Type:     models.EventSpeakingDenied,
		ViewerID: ev.ViewerID,
	})
	if room.LowerHand(ev.ViewerID) {
		c.transport.BroadcastToRoom(room.ID, models.HandLoweredMessage{
			Type:         models.EventHandLowered,
			ConnectionID: ev.ViewerID,
		}, "")
	}
}

// HandleMuteViewer revokes the floor from a specific viewer.
func (c *Coordinator) HandleMuteViewer(connID string, ev models.MuteViewerEvent) {
	room := c.getLockedRoom(c.resolveRoom(ev.RoomID))
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	if !c.isBroadcaster(room, connID, "mute-viewer") {
		return
	}
	if !room.IsViewer(ev.ViewerID) {
		c.log.Warn().
			Str("room_id", room.ID).
			Str("viewer_id", ev.ViewerID).
			Msg("mute-viewer target is not a viewer")
		return
	}
	c.registry.SetAudio(ev.ViewerID, false)
	c.transport.Unicast(ev.ViewerID, models.MutedMessage{
		Type:     models.EventMuted,
		ViewerID: ev.ViewerID,
	})
	if room.ActiveSpeaker() == ev.ViewerID {
		room.ClearActiveSpeaker()
		c.broadcastActiveSpeaker(room.ID, "", "")
	}
}

// HandleMuteAll clears the floor and the whole raised-hand queue.
func (c *Coordinator) HandleMuteAll(connID string, ev models.MuteAllEvent) {
	room := c.getLockedRoom(c.resolveRoom(ev.RoomID))
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	if !c.isBroadcaster(room, connID, "mute-all") {
		return
	}
	if room.ClearActiveSpeaker() {
		c.broadcastActiveSpeaker(room.ID, "", "")
	}
	dropped := room.ClearAllHands()
	for _, v := range room.Viewers() {
		c.registry.SetAudio(v, false)
	}
	// Broadcast to everyone, broadcaster included, which doubles as the ack.
	c.transport.BroadcastToRoom(room.ID, models.AllMutedMessage{Type: models.EventAllMuted}, "")
	c.log.Info().
		Str("room_id", room.ID).
		Int("dropped_hands", len(dropped)).
		Msg("room muted")
}

// HandleSelfMute lets a viewer give up the floor or withdraw their hand.
func (c *Coordinator) HandleSelfMute(connID string, ev models.SelfMuteEvent) {
	room := c.getLockedRoom(c.resolveRoom(ev.RoomID))
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	if room.ActiveSpeaker() == connID {
		room.ClearActiveSpeaker()
		c.registry.SetAudio(connID, false)
		c.broadcastActiveSpeaker(room.ID, "", "")
	}
	if room.LowerHand(connID) {
		c.transport.BroadcastToRoom(room.ID, models.HandLoweredMessage{
			Type:         models.EventHandLowered,
			ConnectionID: connID,
		}, connID)
		if b := room.BroadcasterID(); b != "" {
			c.transport.Unicast(b, models.SpeakingRequestCanceledMessage{
				Type:        models.EventSpeakingRequestCanceled,
				RequesterID: connID,
			})
		}
	}
}

// HandleToggleRoomLock flips admission control for the room.
func (c *Coordinator) HandleToggleRoomLock(connID string, ev models.ToggleRoomLockEvent) {
	room := c.getLockedRoom(c.resolveRoom(ev.RoomID))
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	if !c.isBroadcaster(room, connID, "toggle-room-lock") {
		return
	}
	room.SetLocked(ev.Locked)
	c.transport.BroadcastToRoom(room.ID, models.RoomLockUpdatedMessage{
		Type:   models.EventRoomLockUpdated,
		Locked: ev.Locked,
	}, "")
	c.log.Info().Str("room_id", room.ID).Bool("locked", ev.Locked).Msg("room lock updated")
}

// HandleApprovePendingViewer admits or rejects a connection held at the
// door of a locked room. Unknown pending ids are no-ops.
func (c *Coordinator) HandleApprovePendingViewer(connID string, ev models.ApprovePendingViewerEvent) {
	room := c.getLockedRoom(c.resolveRoom(ev.RoomID))
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	if !c.isBroadcaster(room, connID, "approve-pending-viewer") {
		return
	}
	if !room.RemovePending(ev.ViewerID) {
		return
	}

	if !ev.Approve {
		c.transport.Unicast(ev.ViewerID, models.ViewerRejectedMessage{Type: models.EventViewerRejected})
		c.registry.ClearRoom(ev.ViewerID)
		c.log.Info().Str("room_id", room.ID).Str("viewer_id", ev.ViewerID).Msg("pending viewer rejected")
		return
	}

	room.AddViewer(ev.ViewerID)
	c.registry.SetRole(ev.ViewerID, models.RoleViewer)
	c.registry.SetAudio(ev.ViewerID, false)
	c.transport.JoinRoom(ev.ViewerID, room.ID)
	c.presence.Joined(room.ID, ev.ViewerID)
	c.transport.Unicast(ev.ViewerID, models.ViewerApprovedMessage{Type: models.EventViewerApproved})
	c.transport.Unicast(ev.ViewerID, models.RoleAssignedMessage{
		Type:          models.EventRoleAssigned,
		Role:          models.RoleViewer,
		BroadcasterID: room.BroadcasterID(),
		ViewerCount:   room.ViewerCount(),
	})
	c.broadcastRosterLocked(room, ev.ViewerID)
	c.log.Info().Str("room_id", room.ID).Str("viewer_id", ev.ViewerID).Msg("pending viewer admitted")
}

// removeFromRoom detaches a connection from its room, running floor
// cleanup first, and destroys the room when it ends up empty.
func (c *Coordinator) removeFromRoom(conn Connection, roomID string) {
	room := c.getLockedRoom(roomID)
	if room == nil {
		c.transport.LeaveRoom(conn.ID, roomID)
		return
	}
	defer room.mu.Unlock()

	c.detachLocked(room, conn)
	c.rooms.DestroyIfEmpty(roomID)
}

func (c *Coordinator) detachLocked(room *Room, conn Connection) {
	// Floor cleanup runs before the membership change.
	if room.ActiveSpeaker() == conn.ID {
		room.ClearActiveSpeaker()
		c.broadcastActiveSpeaker(room.ID, "", conn.ID)
	}
	if room.LowerHand(conn.ID) {
		c.transport.BroadcastToRoom(room.ID, models.HandLoweredMessage{
			Type:         models.EventHandLowered,
			ConnectionID: conn.ID,
		}, conn.ID)
		if b := room.BroadcasterID(); b != "" && b != conn.ID {
			c.transport.Unicast(b, models.SpeakingRequestCanceledMessage{
				Type:        models.EventSpeakingRequestCanceled,
				RequesterID: conn.ID,
			})
		}
	}

	role := room.RemoveMember(conn.ID)
	c.transport.LeaveRoom(conn.ID, room.ID)
	c.presence.Left(room.ID, conn.ID)

	switch role {
	case models.RoleBroadcaster:
		c.log.Warn().Str("room_id", room.ID).Str("connection_id", conn.ID).Msg("broadcaster left room")
		c.tearDownLocked(room, conn.ID)
	case models.RoleViewer:
		c.transport.BroadcastToRoom(room.ID, models.MemberLeftMessage{
			Type:         models.EventMemberLeft,
			ConnectionID: conn.ID,
		}, conn.ID)
		c.broadcastRosterLocked(room, conn.ID)
	default:
		// Pending entry or never a member: nothing to announce.
	}
}

// tearDownLocked applies the strict broadcaster-departure policy: mute the
// floor holder, announce broadcaster-left, and detach every remaining
// participant so the room is destroyed.
func (c *Coordinator) tearDownLocked(room *Room, departedID string) {
	if sp := room.ActiveSpeaker(); sp != "" {
		room.ClearActiveSpeaker()
		c.registry.SetAudio(sp, false)
		c.transport.Unicast(sp, models.MutedMessage{
			Type:     models.EventMuted,
			ViewerID: sp,
		})
		c.broadcastActiveSpeaker(room.ID, "", departedID)
	}
	c.transport.BroadcastToRoom(room.ID, models.BroadcasterLeftMessage{Type: models.EventBroadcasterLeft}, departedID)

	for _, id := range room.MemberIDs() {
		room.RemoveMember(id)
		c.registry.ClearRoom(id)
		c.transport.LeaveRoom(id, room.ID)
		c.presence.Left(room.ID, id)
	}
	// Pending entries never reached the transport room, so tell them directly.
	for _, id := range append([]string(nil), room.pending...) {
		room.RemovePending(id)
		c.registry.ClearRoom(id)
		c.transport.Unicast(id, models.BroadcasterLeftMessage{Type: models.EventBroadcasterLeft})
	}
	room.ClearAllHands()
	c.log.Info().Str("room_id", room.ID).Msg("room torn down")
}

// broadcastRosterLocked recomputes the roster from the transport's member
// view and fans it out to everyone but the acting connection. A failed
// computation is recoverable: the room is told and serving continues.
func (c *Coordinator) broadcastRosterLocked(room *Room, actorID string) {
	ids, err := c.transport.Members(room.ID)
	if err != nil {
		c.log.Error().Err(err).Str("room_id", room.ID).Msg("roster computation failed")
		c.transport.BroadcastToRoom(room.ID, models.JoinErrorMessage{
			Type: models.EventJoinError,
			Err:  true,
		}, "")
		return
	}
	members := make([]models.Member, 0, len(ids))
	for _, id := range ids {
		if conn, ok := c.registry.Lookup(id); ok {
			members = append(members, models.Member{ConnectionID: id, Info: conn.Info()})
		}
	}
	c.transport.BroadcastToRoom(room.ID, models.RosterUpdatedMessage{
		Type:    models.EventRosterUpdated,
		Members: members,
	}, actorID)
}

func (c *Coordinator) broadcastActiveSpeaker(roomID, viewerID, excludeID string) {
	msg := models.ActiveSpeakerChangedMessage{Type: models.EventActiveSpeakerChanged}
	if viewerID != "" {
		msg.ViewerID = &viewerID
	}
	c.transport.BroadcastToRoom(roomID, msg, excludeID)
}

func (c *Coordinator) snapshotLocked(room *Room) models.RoomSnapshot {
	memberIDs := room.MemberIDs()
	members := make([]models.Member, 0, len(memberIDs))
	for _, id := range memberIDs {
		if conn, ok := c.registry.Lookup(id); ok {
			members = append(members, models.Member{ConnectionID: id, Info: conn.Info()})
		}
	}
	return models.RoomSnapshot{
		Members:         members,
		RaisedHands:     room.RaisedHands(),
		ActiveSpeakerID: room.ActiveSpeaker(),
		Locked:          room.Locked(),
	}
}

func (c *Coordinator) member(connID string) models.Member {
	conn, _ := c.registry.Lookup(connID)
	return models.Member{ConnectionID: connID, Info: conn.Info()}
}

func (c *Coordinator) isBroadcaster(room *Room, connID, op string) bool {
	if room.BroadcasterID() == connID {
		return true
	}
	c.logViolation(connID, room.ID, op)
	return false
}

func (c *Coordinator) logViolation(connID, roomID, op string) {
	c.log.Warn().
		Str("connection_id", connID).
		Str("room_id", roomID).
		Str("op", op).
		Msg("ignoring command the connection is not allowed to issue")
}

// lockRoom returns the locked room for id, re-resolving if the room was
// destroyed between lookup and lock (a leave racing a join).
func (c *Coordinator) lockRoom(roomID string) *Room {
	for {
		room, _ := c.rooms.GetOrCreate(roomID)
		room.mu.Lock()
		if cur, ok := c.rooms.Get(roomID); ok && cur == room {
			return room
		}
		room.mu.Unlock()
	}
}

// getLockedRoom is lockRoom without the create: it returns nil when the
// room does not exist or was destroyed while waiting for its lock, so
// handlers never mutate a room the directory no longer serves.
func (c *Coordinator) getLockedRoom(roomID string) *Room {
	for {
		room, ok := c.rooms.Get(roomID)
		if !ok {
			return nil
		}
		room.mu.Lock()
		if cur, ok := c.rooms.Get(roomID); ok && cur == room {
			return room
		}
		room.mu.Unlock()
	}
}

func (c *Coordinator) resolveRoom(id string) string {
	if c.resolver == nil {
		return id
	}
	return c.resolver(id)
}
