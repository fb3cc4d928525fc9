package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videonode/signaling/internal/models"
)

// fakeTransport applies broadcasts to per-connection inboxes the way the
// real hub would, so tests can assert on what each participant received.
type fakeTransport struct {
	mu          sync.Mutex
	rooms       map[string]map[string]struct{}
	inboxes     map[string][]any
	broadcasts  []fakeBroadcast
	failMembers map[string]bool
}

type fakeBroadcast struct {
	roomID  string
	msg     any
	exclude string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		rooms:       make(map[string]map[string]struct{}),
		inboxes:     make(map[string][]any),
		failMembers: make(map[string]bool),
	}
}

func (f *fakeTransport) Unicast(connID string, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inboxes[connID] = append(f.inboxes[connID], msg)
}

func (f *fakeTransport) BroadcastToRoom(roomID string, msg any, excludeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, fakeBroadcast{roomID: roomID, msg: msg, exclude: excludeID})
	for id := range f.rooms[roomID] {
		if id == excludeID {
			continue
		}
		f.inboxes[id] = append(f.inboxes[id], msg)
	}
}

func (f *fakeTransport) JoinRoom(connID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[roomID]; !ok {
		f.rooms[roomID] = make(map[string]struct{})
	}
	f.rooms[roomID][connID] = struct{}{}
}

func (f *fakeTransport) LeaveRoom(connID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if members, ok := f.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(f.rooms, roomID)
		}
	}
}

func (f *fakeTransport) Members(roomID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMembers[roomID] {
		return nil, errors.New("member lookup failed")
	}
	members, ok := f.rooms[roomID]
	if !ok {
		return nil, errors.New("room not found")
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeTransport) inbox(connID string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.inboxes[connID]))
	copy(out, f.inboxes[connID])
	return out
}

func (f *fakeTransport) drain(connID string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.inboxes[connID]
	f.inboxes[connID] = nil
	return out
}

func (f *fakeTransport) drainAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inboxes = make(map[string][]any)
	f.broadcasts = nil
}

func received[T any](f *fakeTransport, connID string) []T {
	var out []T
	for _, m := range f.inbox(connID) {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func broadcastCount[T any](f *fakeTransport) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.broadcasts {
		if _, ok := b.msg.(T); ok {
			n++
		}
	}
	return n
}

func newTestCoordinator() (*Coordinator, *fakeTransport) {
	ft := newFakeTransport()
	return NewCoordinator(ft, nil, nil, zerolog.Nop()), ft
}

func join(c *Coordinator, connID, roomID, name string, role models.Role) {
	c.HandleConnect(connID)
	c.HandleJoinRoom(connID, models.JoinRoomEvent{
		Type:     models.EventJoinRoom,
		RoomID:   roomID,
		UserName: name,
		Role:     role,
	})
}

func TestFirstJoinBecomesBroadcaster(t *testing.T) {
	c, ft := newTestCoordinator()

	join(c, "A", "r1", "alice", models.RoleUnassigned)

	assigned := received[models.RoleAssignedMessage](ft, "A")
	require.Len(t, assigned, 1)
	assert.Equal(t, models.RoleBroadcaster, assigned[0].Role)
	assert.Equal(t, "A", assigned[0].BroadcasterID)
	require.NotNil(t, assigned[0].RoomSnapshot)
	assert.Empty(t, assigned[0].RoomSnapshot.RaisedHands)
	assert.Empty(t, assigned[0].RoomSnapshot.ActiveSpeakerID)
}

func TestSecondJoinBecomesViewerAndRosterGoesOut(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	ft.drain("A")

	join(c, "B", "r1", "bob", models.RoleUnassigned)

	assigned := received[models.RoleAssignedMessage](ft, "B")
	require.Len(t, assigned, 1)
	assert.Equal(t, models.RoleViewer, assigned[0].Role)
	assert.Equal(t, "A", assigned[0].BroadcasterID)
	assert.Equal(t, 1, assigned[0].ViewerCount)

	rosters := received[models.RosterUpdatedMessage](ft, "A")
	require.Len(t, rosters, 1)
	ids := make([]string, 0, len(rosters[0].Members))
	for _, m := range rosters[0].Members {
		ids = append(ids, m.ConnectionID)
	}
	assert.Contains(t, ids, "B")

	// The actor never gets its own roster echo.
	assert.Empty(t, received[models.RosterUpdatedMessage](ft, "B"))
}

func TestConcurrentBroadcasterJoinsElectExactlyOne(t *testing.T) {
	c, ft := newTestCoordinator()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			connID := string(rune('a' + id))
			join(c, connID, "r1", "user", models.RoleBroadcaster)
		}(i)
	}
	wg.Wait()

	broadcasters, viewers := 0, 0
	for i := 0; i < n; i++ {
		connID := string(rune('a' + i))
		assigned := received[models.RoleAssignedMessage](ft, connID)
		require.Len(t, assigned, 1)
		switch assigned[0].Role {
		case models.RoleBroadcaster:
			broadcasters++
		case models.RoleViewer:
			viewers++
		}
	}
	assert.Equal(t, 1, broadcasters)
	assert.Equal(t, n-1, viewers)
}

func TestRaiseHandAndApprove(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	ft.drainAll()

	c.HandleRaiseHand("B", models.RaiseHandEvent{RoomID: "r1"})

	raised := received[models.HandRaisedMessage](ft, "A")
	require.Len(t, raised, 1)
	assert.Equal(t, "B", raised[0].ConnectionID)
	assert.Equal(t, "bob", raised[0].Name)
	require.Len(t, received[models.SpeakingRequestMessage](ft, "A"), 1)

	// Repeat raise is idempotent.
	c.HandleRaiseHand("B", models.RaiseHandEvent{RoomID: "r1"})
	assert.Len(t, received[models.HandRaisedMessage](ft, "A"), 1)

	c.HandleApproveSpeaker("A", models.ApproveSpeakerEvent{RoomID: "r1", ViewerID: "B"})

	require.Len(t, received[models.SpeakingApprovedMessage](ft, "B"), 1)
	changed := received[models.ActiveSpeakerChangedMessage](ft, "A")
	require.NotEmpty(t, changed)
	require.NotNil(t, changed[len(changed)-1].ViewerID)
	assert.Equal(t, "B", *changed[len(changed)-1].ViewerID)

	room, ok := c.Rooms().Get("r1")
	require.True(t, ok)
	assert.False(t, room.HandRaised("B"), "approval removes the raised hand")
	assert.Equal(t, "B", room.ActiveSpeaker())
}

func TestApproveMutesPreviousSpeakerFirst(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	join(c, "C", "r1", "carol", models.RoleUnassigned)
	c.HandleApproveSpeaker("A", models.ApproveSpeakerEvent{RoomID: "r1", ViewerID: "B"})
	ft.drainAll()

	c.HandleApproveSpeaker("A", models.ApproveSpeakerEvent{RoomID: "r1", ViewerID: "C"})

	muted := received[models.MutedMessage](ft, "B")
	require.Len(t, muted, 1)
	assert.Equal(t, "B", muted[0].ViewerID)

	room, _ := c.Rooms().Get("r1")
	assert.Equal(t, "C", room.ActiveSpeaker())

	conn, _ := c.Registry().Lookup("B")
	assert.False(t, conn.Audio)
	conn, _ = c.Registry().Lookup("C")
	assert.True(t, conn.Audio)
}

func TestNonBroadcasterCommandsAreIgnored(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	join(c, "C", "r1", "carol", models.RoleUnassigned)
	ft.drainAll()

	c.HandleApproveSpeaker("B", models.ApproveSpeakerEvent{RoomID: "r1", ViewerID: "C"})
	c.HandleMuteAll("B", models.MuteAllEvent{RoomID: "r1"})
	c.HandleToggleRoomLock("B", models.ToggleRoomLockEvent{RoomID: "r1", Locked: true})

	room, _ := c.Rooms().Get("r1")
	assert.Empty(t, room.ActiveSpeaker())
	assert.False(t, room.Locked())
	assert.Zero(t, broadcastCount[models.ActiveSpeakerChangedMessage](ft))
	assert.Zero(t, broadcastCount[models.AllMutedMessage](ft))
}

func TestDenySpeakerDropsHand(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	c.HandleRaiseHand("B", models.RaiseHandEvent{RoomID: "r1"})
	ft.drainAll()

	c.HandleDenySpeaker("A", models.DenySpeakerEvent{RoomID: "r1", ViewerID: "B"})

	require.Len(t, received[models.SpeakingDeniedMessage](ft, "B"), 1)
	room, _ := c.Rooms().Get("r1")
	assert.False(t, room.HandRaised("B"))
	assert.Empty(t, room.ActiveSpeaker(), "denial never grants the floor")
}

func TestMuteViewerClearsFloor(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	c.HandleApproveSpeaker("A", models.ApproveSpeakerEvent{RoomID: "r1", ViewerID: "B"})
	ft.drainAll()

	c.HandleMuteViewer("A", models.MuteViewerEvent{RoomID: "r1", ViewerID: "B"})

	require.Len(t, received[models.MutedMessage](ft, "B"), 1)
	changed := received[models.ActiveSpeakerChangedMessage](ft, "A")
	require.Len(t, changed, 1)
	assert.Nil(t, changed[0].ViewerID)

	room, _ := c.Rooms().Get("r1")
	assert.Empty(t, room.ActiveSpeaker())
}

func TestMuteAllClearsFloorAndQueue(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	join(c, "C", "r1", "carol", models.RoleUnassigned)
	c.HandleApproveSpeaker("A", models.ApproveSpeakerEvent{RoomID: "r1", ViewerID: "B"})
	c.HandleRaiseHand("C", models.RaiseHandEvent{RoomID: "r1"})
	ft.drainAll()

	c.HandleMuteAll("A", models.MuteAllEvent{RoomID: "r1"})

	room, _ := c.Rooms().Get("r1")
	assert.Empty(t, room.ActiveSpeaker())
	assert.Empty(t, room.RaisedHands())

	// Everyone, broadcaster included, hears the mute.
	for _, id := range []string{"A", "B", "C"} {
		assert.Len(t, received[models.AllMutedMessage](ft, id), 1, id)
	}
}

func TestSelfMuteReleasesFloor(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	c.HandleApproveSpeaker("A", models.ApproveSpeakerEvent{RoomID: "r1", ViewerID: "B"})
	ft.drainAll()

	c.HandleSelfMute("B", models.SelfMuteEvent{RoomID: "r1"})

	changed := received[models.ActiveSpeakerChangedMessage](ft, "A")
	require.Len(t, changed, 1)
	assert.Nil(t, changed[0].ViewerID)

	room, _ := c.Rooms().Get("r1")
	assert.Empty(t, room.ActiveSpeaker())
}

func TestSelfMuteWithdrawsRaisedHand(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	c.HandleRaiseHand("B", models.RaiseHandEvent{RoomID: "r1"})
	ft.drainAll()

	c.HandleSelfMute("B", models.SelfMuteEvent{RoomID: "r1"})

	require.Len(t, received[models.SpeakingRequestCanceledMessage](ft, "A"), 1)
	require.Len(t, received[models.HandLoweredMessage](ft, "A"), 1)
	room, _ := c.Rooms().Get("r1")
	assert.False(t, room.HandRaised("B"))
}

func TestBroadcasterDisconnectTearsDownRoom(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	join(c, "C", "r1", "carol", models.RoleUnassigned)
	c.HandleApproveSpeaker("A", models.ApproveSpeakerEvent{RoomID: "r1", ViewerID: "B"})
	ft.drainAll()

	c.HandleDisconnect("A")

	// The active speaker is muted before the announcement.
	require.Len(t, received[models.MutedMessage](ft, "B"), 1)
	assert.Len(t, received[models.BroadcasterLeftMessage](ft, "B"), 1)
	assert.Len(t, received[models.BroadcasterLeftMessage](ft, "C"), 1)
	assert.Equal(t, 1, broadcastCount[models.BroadcasterLeftMessage](ft))

	_, ok := c.Rooms().Get("r1")
	assert.False(t, ok, "room is destroyed")

	// Remaining viewers stay connected but roomless.
	conn, ok := c.Registry().Lookup("B")
	require.True(t, ok)
	assert.Empty(t, conn.RoomID)
	assert.Equal(t, models.RoleUnassigned, conn.Role)

	_, ok = c.Registry().Lookup("A")
	assert.False(t, ok)

	// A second disconnect signal is harmless.
	c.HandleDisconnect("A")
}

func TestViewerDisconnectCleansFloorState(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	c.HandleApproveSpeaker("A", models.ApproveSpeakerEvent{RoomID: "r1", ViewerID: "B"})
	ft.drainAll()

	c.HandleDisconnect("B")

	changed := received[models.ActiveSpeakerChangedMessage](ft, "A")
	require.Len(t, changed, 1)
	assert.Nil(t, changed[0].ViewerID)
	require.Len(t, received[models.MemberLeftMessage](ft, "A"), 1)

	room, ok := c.Rooms().Get("r1")
	require.True(t, ok)
	assert.Empty(t, room.ActiveSpeaker())
	assert.Zero(t, room.ViewerCount())
}

func TestRejoinAfterEmptyGetsFreshRoom(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	c.HandleRaiseHand("B", models.RaiseHandEvent{RoomID: "r1"})
	c.HandleDisconnect("B")
	c.HandleDisconnect("A")
	require.Zero(t, c.Rooms().Len())
	ft.drainAll()

	join(c, "D", "r1", "dave", models.RoleUnassigned)

	assigned := received[models.RoleAssignedMessage](ft, "D")
	require.Len(t, assigned, 1)
	assert.Equal(t, models.RoleBroadcaster, assigned[0].Role)
	require.NotNil(t, assigned[0].RoomSnapshot)
	assert.Empty(t, assigned[0].RoomSnapshot.RaisedHands)
	assert.Empty(t, assigned[0].RoomSnapshot.ActiveSpeakerID)
}

func TestBroadcasterRejoinKeepsSingleSlot(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	ft.drainAll()

	c.HandleJoinRoom("A", models.JoinRoomEvent{RoomID: "r1", UserName: "alice"})

	assigned := received[models.RoleAssignedMessage](ft, "A")
	require.Len(t, assigned, 1)
	assert.Equal(t, models.RoleBroadcaster, assigned[0].Role)

	room, ok := c.Rooms().Get("r1")
	require.True(t, ok)
	assert.Equal(t, "A", room.BroadcasterID())
	assert.False(t, room.IsViewer("A"), "a connection holds at most one slot per room")
	assert.Zero(t, room.ViewerCount())
}

func TestViewerRejoinReplaysAssignment(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	ft.drainAll()

	c.HandleJoinRoom("B", models.JoinRoomEvent{RoomID: "r1", UserName: "bob"})

	assigned := received[models.RoleAssignedMessage](ft, "B")
	require.Len(t, assigned, 1)
	assert.Equal(t, models.RoleViewer, assigned[0].Role)
	assert.Equal(t, 1, assigned[0].ViewerCount)

	room, _ := c.Rooms().Get("r1")
	assert.Equal(t, 1, room.ViewerCount())
	assert.Zero(t, broadcastCount[models.RosterUpdatedMessage](ft), "replay is not a membership change")
}

func TestPendingRejoinStaysPending(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	c.HandleToggleRoomLock("A", models.ToggleRoomLockEvent{RoomID: "r1", Locked: true})
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	ft.drainAll()

	c.HandleJoinRoom("B", models.JoinRoomEvent{RoomID: "r1", UserName: "bob"})

	require.Len(t, received[models.PendingApprovalMessage](ft, "B"), 1)
	assert.Empty(t, received[models.RoleAssignedMessage](ft, "B"))

	room, _ := c.Rooms().Get("r1")
	assert.True(t, room.IsPending("B"))
	assert.False(t, room.IsViewer("B"))
}

func TestRoomSwitchDetachesFromPreviousRoom(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	ft.drainAll()

	c.HandleJoinRoom("B", models.JoinRoomEvent{RoomID: "r2", UserName: "bob"})

	r1, ok := c.Rooms().Get("r1")
	require.True(t, ok)
	assert.Zero(t, r1.ViewerCount(), "old room drops the switcher")
	require.Len(t, received[models.MemberLeftMessage](ft, "A"), 1)

	r2, ok := c.Rooms().Get("r2")
	require.True(t, ok)
	assert.Equal(t, "B", r2.BroadcasterID())

	// Disconnect cleanup targets the current room only; neither room leaks.
	c.HandleDisconnect("B")
	_, ok = c.Rooms().Get("r2")
	assert.False(t, ok)
	c.HandleDisconnect("A")
	assert.Zero(t, c.Rooms().Len())
}

func TestFloorCommandsForUnknownRoomAreNoOps(t *testing.T) {
	c, ft := newTestCoordinator()
	c.HandleConnect("A")

	c.HandleRaiseHand("A", models.RaiseHandEvent{RoomID: "ghost"})
	c.HandleApproveSpeaker("A", models.ApproveSpeakerEvent{RoomID: "ghost", ViewerID: "B"})
	c.HandleMuteAll("A", models.MuteAllEvent{RoomID: "ghost"})

	assert.Empty(t, ft.inbox("A"))
	assert.Zero(t, c.Rooms().Len())
}

func TestLockedRoomPendingFlow(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	c.HandleToggleRoomLock("A", models.ToggleRoomLockEvent{RoomID: "r1", Locked: true})
	ft.drainAll()

	join(c, "B", "r1", "bob", models.RoleUnassigned)

	pending := received[models.PendingApprovalMessage](ft, "B")
	require.Len(t, pending, 1)
	assert.Equal(t, "A", pending[0].BroadcasterID)
	require.Len(t, received[models.PendingViewerAddedMessage](ft, "A"), 1)
	assert.Empty(t, received[models.RoleAssignedMessage](ft, "B"), "no role until approved")

	c.HandleApprovePendingViewer("A", models.ApprovePendingViewerEvent{RoomID: "r1", ViewerID: "B", Approve: true})

	require.Len(t, received[models.ViewerApprovedMessage](ft, "B"), 1)
	assigned := received[models.RoleAssignedMessage](ft, "B")
	require.Len(t, assigned, 1)
	assert.Equal(t, models.RoleViewer, assigned[0].Role)

	room, _ := c.Rooms().Get("r1")
	assert.True(t, room.IsViewer("B"))
	assert.False(t, room.IsPending("B"))
}

func TestLockedRoomRejection(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	c.HandleToggleRoomLock("A", models.ToggleRoomLockEvent{RoomID: "r1", Locked: true})
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	ft.drainAll()

	c.HandleApprovePendingViewer("A", models.ApprovePendingViewerEvent{RoomID: "r1", ViewerID: "B", Approve: false})

	require.Len(t, received[models.ViewerRejectedMessage](ft, "B"), 1)
	room, _ := c.Rooms().Get("r1")
	assert.False(t, room.IsViewer("B"))
	assert.False(t, room.IsPending("B"))

	// Unknown pending ids are no-ops.
	c.HandleApprovePendingViewer("A", models.ApprovePendingViewerEvent{RoomID: "r1", ViewerID: "ghost", Approve: true})
	assert.False(t, room.IsViewer("ghost"))
}

func TestCallRelay(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	ft.drainAll()

	signal := json.RawMessage(`{"sdp":"offer"}`)
	c.HandleCallUser("B", models.CallUserEvent{TargetID: "A", Signal: signal})

	calls := received[models.IncomingCallMessage](ft, "A")
	require.Len(t, calls, 1)
	assert.Equal(t, "B", calls[0].From)
	assert.Equal(t, "bob", calls[0].CallerInfo.UserName)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(calls[0].Signal))

	answer := json.RawMessage(`{"sdp":"answer"}`)
	c.HandleAcceptCall("A", models.AcceptCallEvent{TargetID: "B", Signal: answer})

	accepted := received[models.CallAcceptedMessage](ft, "B")
	require.Len(t, accepted, 1)
	assert.Equal(t, "A", accepted[0].AnswererID)

	// Calls to absent targets vanish without error.
	c.HandleCallUser("B", models.CallUserEvent{TargetID: "nobody", Signal: signal})
}

func TestRosterFailureIsRecoverable(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	ft.failMembers["r1"] = true
	ft.drainAll()

	join(c, "B", "r1", "bob", models.RoleUnassigned)

	// The joiner still got its role; the room was told about the failure.
	require.Len(t, received[models.RoleAssignedMessage](ft, "B"), 1)
	assert.Equal(t, 1, broadcastCount[models.JoinErrorMessage](ft))

	_, ok := c.Registry().Lookup("B")
	assert.True(t, ok, "joiner stays registered after a roster failure")
}

func TestLeaveRoomRemovesConnection(t *testing.T) {
	c, ft := newTestCoordinator()
	join(c, "A", "r1", "alice", models.RoleUnassigned)
	join(c, "B", "r1", "bob", models.RoleUnassigned)
	ft.drainAll()

	c.HandleLeaveRoom("B", models.LeaveRoomEvent{RoomID: "r1"})

	require.Len(t, received[models.MemberLeftMessage](ft, "A"), 1)
	_, ok := c.Registry().Lookup("B")
	assert.False(t, ok)

	room, ok := c.Rooms().Get("r1")
	require.True(t, ok)
	assert.Zero(t, room.ViewerCount())
}

func TestDispatchRoutesRawFrames(t *testing.T) {
	c, ft := newTestCoordinator()
	c.HandleConnect("A")

	c.Dispatch("A", []byte(`{"type":"join-room","roomId":"r1","userName":"alice"}`))

	assigned := received[models.RoleAssignedMessage](ft, "A")
	require.Len(t, assigned, 1)
	assert.Equal(t, models.RoleBroadcaster, assigned[0].Role)

	// Garbage and unknown types are dropped quietly.
	c.Dispatch("A", []byte(`not json`))
	c.Dispatch("A", []byte(`{"type":"no-such-event"}`))
}
