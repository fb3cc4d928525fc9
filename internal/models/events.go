package models

import (
	"encoding/json"
	"time"
)

// Role is a connection's assigned role within a room.
type Role string

const (
	RoleUnassigned  Role = ""
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

// Client -> server event types.
const (
	EventJoinRoom             = "join-room"
	EventLeaveRoom            = "leave-room"
	EventCallUser             = "call-user"
	EventAcceptCall           = "accept-call"
	EventRaiseHand            = "raise-hand"
	EventCancelRaiseHand      = "cancel-raise-hand"
	EventApproveSpeaker       = "approve-speaker"
	EventDenySpeaker          = "deny-speaker"
	EventMuteViewer           = "mute-viewer"
	EventMuteAll              = "mute-all"
	EventSelfMute             = "self-mute"
	EventToggleRoomLock       = "toggle-room-lock"
	EventApprovePendingViewer = "approve-pending-viewer"
)

// Server -> client event types.
const (
	EventRoleAssigned            = "role-assigned"
	EventRosterUpdated           = "roster-updated"
	EventMemberLeft              = "member-left"
	EventBroadcasterLeft         = "broadcaster-left"
	EventIncomingCall            = "incoming-call"
	EventCallAccepted            = "call-accepted"
	EventHandRaised              = "hand-raised"
	EventHandLowered             = "hand-lowered"
	EventSpeakingRequest         = "speaking-request"
	EventSpeakingRequestCanceled = "speaking-request-canceled"
	EventSpeakingApproved        = "speaking-approved"
	EventSpeakingDenied          = "speaking-denied"
	EventActiveSpeakerChanged    = "active-speaker-changed"
	EventMuted                   = "muted"
	EventAllMuted                = "all-muted"
	EventRoomLockUpdated         = "room-lock-updated"
	EventPendingApproval         = "pending-approval"
	EventPendingViewerAdded      = "pending-viewer-added"
	EventViewerApproved          = "viewer-approved"
	EventViewerRejected          = "viewer-rejected"
	EventJoinError               = "join-error"
)

// Envelope is the minimal frame used to pick the concrete event type
// before a second unmarshal into the matching struct.
type Envelope struct {
	Type string `json:"type"`
}

// Client -> server events.

type JoinRoomEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
	Role     Role   `json:"role,omitempty"`
}

type LeaveRoomEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type CallUserEvent struct {
	Type     string          `json:"type"`
	TargetID string          `json:"targetId"`
	Signal   json.RawMessage `json:"signal"`
}

type AcceptCallEvent struct {
	Type     string          `json:"type"`
	TargetID string          `json:"targetId"`
	Signal   json.RawMessage `json:"signal"`
}

type RaiseHandEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type CancelRaiseHandEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type ApproveSpeakerEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	ViewerID string `json:"viewerId"`
}

type DenySpeakerEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	ViewerID string `json:"viewerId"`
}

type MuteViewerEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	ViewerID string `json:"viewerId"`
}

type MuteAllEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type SelfMuteEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type ToggleRoomLockEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Locked bool   `json:"locked"`
}

type ApprovePendingViewerEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	ViewerID string `json:"viewerId"`
	Approve  bool   `json:"approve"`
}

// Shared wire shapes.

// MemberInfo is a connection's public profile as seen by other members.
type MemberInfo struct {
	UserName string    `json:"userName"`
	Role     Role      `json:"role"`
	Audio    bool      `json:"audio"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Member pairs a connection id with its profile in roster payloads.
type Member struct {
	ConnectionID string     `json:"connectionId"`
	Info         MemberInfo `json:"info"`
}

// RaisedHand is one pending request for the floor.
type RaisedHand struct {
	ConnectionID string    `json:"connectionId"`
	UserName     string    `json:"userName"`
	RaisedAt     time.Time `json:"raisedAt"`
}

// RoomSnapshot is the room state handed to a freshly assigned broadcaster.
type RoomSnapshot struct {
	Members         []Member     `json:"members"`
	RaisedHands     []RaisedHand `json:"raisedHands"`
	ActiveSpeakerID string       `json:"activeSpeakerId,omitempty"`
	Locked          bool         `json:"locked"`
}

// Server -> client events.

type RoleAssignedMessage struct {
	Type          string        `json:"type"`
	Role          Role          `json:"role"`
	BroadcasterID string        `json:"broadcasterId,omitempty"`
	ViewerCount   int           `json:"viewerCount,omitempty"`
	RoomSnapshot  *RoomSnapshot `json:"roomSnapshot,omitempty"`
}

type RosterUpdatedMessage struct {
	Type    string   `json:"type"`
	Members []Member `json:"members"`
}

type MemberLeftMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type BroadcasterLeftMessage struct {
	Type string `json:"type"`
}

type IncomingCallMessage struct {
	Type       string          `json:"type"`
	Signal     json.RawMessage `json:"signal"`
	From       string          `json:"from"`
	CallerInfo MemberInfo      `json:"callerInfo"`
}

type CallAcceptedMessage struct {
	Type       string          `json:"type"`
	Signal     json.RawMessage `json:"signal"`
	AnswererID string          `json:"answererId"`
}

type HandRaisedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
}

type HandLoweredMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type SpeakingRequestMessage struct {
	Type        string `json:"type"`
	RequesterID string `json:"requesterId"`
}

type SpeakingRequestCanceledMessage struct {
	Type        string `json:"type"`
	RequesterID string `json:"requesterId"`
}

type SpeakingApprovedMessage struct {
	Type     string `json:"type"`
	ViewerID string `json:"viewerId"`
}

type SpeakingDeniedMessage struct {
	Type     string `json:"type"`
	ViewerID string `json:"viewerId"`
}

// ActiveSpeakerChangedMessage carries a nil ViewerID when the floor is idle.
type ActiveSpeakerChangedMessage struct {
	Type     string  `json:"type"`
	ViewerID *string `json:"viewerId"`
}

type MutedMessage struct {
	Type     string `json:"type"`
	ViewerID string `json:"viewerId"`
}

type AllMutedMessage struct {
	Type string `json:"type"`
}

type RoomLockUpdatedMessage struct {
	Type   string `json:"type"`
	Locked bool   `json:"locked"`
}

type PendingApprovalMessage struct {
	Type          string `json:"type"`
	BroadcasterID string `json:"broadcasterId"`
}

type PendingViewerAddedMessage struct {
	Type       string `json:"type"`
	Connection Member `json:"connection"`
}

type ViewerApprovedMessage struct {
	Type string `json:"type"`
}

type ViewerRejectedMessage struct {
	Type string `json:"type"`
}

// JoinErrorMessage signals a recoverable roster failure to the room.
type JoinErrorMessage struct {
	Type string `json:"type"`
	Err  bool   `json:"err"`
}
