package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/signaling"
)

type fakeChannel struct {
	mu          sync.Mutex
	handlers    map[signaling.Method]signaling.Handler
	connected   bool
	closed      bool
	connectErr  error
	onReconnect func()
	onDown      func(error)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[signaling.Method]signaling.Handler)}
}

func (ch *fakeChannel) Connect(ctx context.Context) error {
	if ch.connectErr != nil {
		return ch.connectErr
	}
	ch.mu.Lock()
	ch.connected = true
	ch.mu.Unlock()
	return nil
}

func (ch *fakeChannel) Close() error {
	ch.mu.Lock()
	ch.closed = true
	ch.connected = false
	ch.mu.Unlock()
	return nil
}

func (ch *fakeChannel) Connected() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.connected
}

func (ch *fakeChannel) Handle(method signaling.Method, h signaling.Handler) {
	ch.mu.Lock()
	ch.handlers[method] = h
	ch.mu.Unlock()
}

func (ch *fakeChannel) OnReconnect(f func()) { ch.onReconnect = f }
func (ch *fakeChannel) OnDown(f func(error)) { ch.onDown = f }

func (ch *fakeChannel) push(t *testing.T, method signaling.Method, payload interface{}) {
	t.Helper()
	ch.mu.Lock()
	h, ok := ch.handlers[method]
	ch.mu.Unlock()
	require.True(t, ok, "no handler registered for %s", method)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	h(raw)
}

func (ch *fakeChannel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

type fakeRoomSignaler struct {
	mu    sync.Mutex
	calls []string

	snapshot    *core.WaitingRoomSnapshot
	snapshotErr error
	accepting   bool
	joinResult  *signaling.JoinRoomResult
	joinErr     error
	producers   []signaling.ProducerInfo
	decision    core.EventResult
	decisionErr error
}

func (f *fakeRoomSignaler) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRoomSignaler) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRoomSignaler) JoinWaitingRoom(ctx context.Context, roomID core.RoomID) (*core.WaitingRoomSnapshot, error) {
	f.record("joinWaitingRoom")
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.snapshot.Clone(), nil
}

func (f *fakeRoomSignaler) RequestToJoin(ctx context.Context, userID core.PeerID) (bool, error) {
	f.record("requestToJoin(" + string(userID) + ")")
	return f.accepting, nil
}

func (f *fakeRoomSignaler) ApproveJoining(ctx context.Context, userID core.PeerID) (core.EventResult, error) {
	f.record("approve(" + string(userID) + ")")
	return f.decision, f.decisionErr
}

func (f *fakeRoomSignaler) RejectJoining(ctx context.Context, userID core.PeerID) (core.EventResult, error) {
	f.record("reject(" + string(userID) + ")")
	return f.decision, f.decisionErr
}

func (f *fakeRoomSignaler) CancelJoinRequest(userID core.PeerID) error {
	f.record("cancelJoinRequest")
	return nil
}

func (f *fakeRoomSignaler) ExitWaitingRoom(userID core.PeerID) error {
	f.record("exitWaitingRoom")
	return nil
}

func (f *fakeRoomSignaler) JoinRoom(ctx context.Context, params signaling.JoinRoomParams) (*signaling.JoinRoomResult, error) {
	f.record("joinRoom(password=" + params.RoomPasswordInput + ")")
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	return f.joinResult, nil
}

func (f *fakeRoomSignaler) GetProducers(ctx context.Context) ([]signaling.ProducerInfo, error) {
	f.record("getProducers")
	return f.producers, nil
}

func (f *fakeRoomSignaler) SendChat(authorID core.PeerID, content string) error {
	f.record("sendChat(" + content + ")")
	return nil
}

func (f *fakeRoomSignaler) PublishPeerState(state core.PeerState) error {
	f.record(fmt.Sprintf("publishPeerState(mic=%t,cam=%t)", state.EnabledMicrophone, state.EnabledCamera))
	return nil
}

func (f *fakeRoomSignaler) KickUser(userID core.PeerID) error {
	f.record("kickUser(" + string(userID) + ")")
	return nil
}

func (f *fakeRoomSignaler) KickUserToWaitingRoom(userID core.PeerID) error {
	f.record("kickToWaiting(" + string(userID) + ")")
	return nil
}

func (f *fakeRoomSignaler) BlockUser(userID core.PeerID, name string) error {
	f.record("blockUser(" + string(userID) + ")")
	return nil
}

func (f *fakeRoomSignaler) UnblockUser(ctx context.Context, userID core.PeerID) (core.EventResult, error) {
	f.record("unblockUser(" + string(userID) + ")")
	return f.decision, f.decisionErr
}

func (f *fakeRoomSignaler) CloseAudioByHost(userIDs []core.PeerID) error {
	f.record("closeAudioByHost")
	return nil
}

func (f *fakeRoomSignaler) CloseVideoByHost(userIDs []core.PeerID) error {
	f.record("closeVideoByHost")
	return nil
}

type fakeMedia struct {
	mu       sync.Mutex
	calls    []string
	consumed []string
	micErr   error
	camErr   error
}

func (f *fakeMedia) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeMedia) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeMedia) SetRTPCapabilities(caps json.RawMessage) { f.record("setRTPCapabilities") }

func (f *fakeMedia) EnableMicrophone(ctx context.Context) error {
	f.record("enableMicrophone")
	return f.micErr
}

func (f *fakeMedia) EnableCamera(ctx context.Context) error {
	f.record("enableCamera")
	return f.camErr
}

func (f *fakeMedia) DisableMicrophone() { f.record("disableMicrophone") }
func (f *fakeMedia) DisableCamera()     { f.record("disableCamera") }

func (f *fakeMedia) StartScreenShare(ctx context.Context) error {
	f.record("startScreenShare")
	return nil
}

func (f *fakeMedia) StopScreenShare() { f.record("stopScreenShare") }

func (f *fakeMedia) ConsumeRemote(ctx context.Context, info signaling.ProducerInfo) error {
	f.mu.Lock()
	f.consumed = append(f.consumed, info.ProducerID)
	f.mu.Unlock()
	return nil
}

func (f *fakeMedia) HandleProducerClosed(params signaling.ProducerClosedParams) {
	f.record("handleProducerClosed(" + params.RemoteProducerID + ")")
}

func (f *fakeMedia) HandleRemoteShareStopped(peerID core.PeerID) {
	f.record("handleRemoteShareStopped(" + string(peerID) + ")")
}

func (f *fakeMedia) HandleShareScreenStopped() { f.record("handleShareScreenStopped") }

func (f *fakeMedia) RemovePeer(peerID core.PeerID) {
	f.record("removePeer(" + string(peerID) + ")")
}

func (f *fakeMedia) CloseAll() { f.record("closeAll") }

func (f *fakeMedia) consumedProducers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.consumed...)
}

const (
	selfID = core.PeerID("self")
	hostID = core.PeerID("host")
)

func newTestSession(t *testing.T, self core.PeerID) (*Session, *fakeChannel, *fakeRoomSignaler, *fakeMedia) {
	t.Helper()
	channel := newFakeChannel()
	sig := &fakeRoomSignaler{
		snapshot: &core.WaitingRoomSnapshot{
			JoinerList: []core.Joiner{{ID: self, Name: "me"}},
			Capacity:   4,
			MasterID:   hostID,
		},
		accepting: true,
		joinResult: &signaling.JoinRoomResult{
			Type:            core.ResultSuccess,
			RTPCapabilities: json.RawMessage(`{}`),
		},
		decision: core.EventResult{Type: core.ResultSuccess},
	}
	media := &fakeMedia{}
	session := NewSession(Options{
		SelfID:   self,
		SelfName: "me",
		RoomID:   core.RoomID("room-1"),
		Channel:  channel,
		Signaler: sig,
		Media:    media,
	})
	t.Cleanup(session.shutdown)
	return session, channel, sig, media
}

// drain waits until every previously queued task has been applied.
func drain(t *testing.T, s *Session) {
	t.Helper()
	_ = s.perform(func() error { return nil })
}

func TestSessionConnect(t *testing.T) {
	t.Run("known room ends up in the waiting room", func(t *testing.T) {
		session, _, sig, _ := newTestSession(t, selfID)
		sig.snapshot.Blacklist = []core.BlockedUser{{ID: "banned", Name: "b"}}

		require.NoError(t, session.Connect(context.Background()))

		assert.Equal(t, core.SessionWaitingRoom, session.State())
		assert.Equal(t, 1, len(session.Snapshot().JoinerList))
		assert.True(t, session.Registry().IsBlocked("banned"))
	})

	t.Run("unknown room is terminal", func(t *testing.T) {
		session, _, sig, _ := newTestSession(t, selfID)
		sig.snapshot = nil

		err := session.Connect(context.Background())

		assert.ErrorIs(t, err, ErrRoomNotFound)
		assert.Equal(t, core.SessionNotExists, session.State())
		assert.True(t, session.State().Terminal())
	})

	t.Run("connecting twice is rejected", func(t *testing.T) {
		session, _, _, _ := newTestSession(t, selfID)
		require.NoError(t, session.Connect(context.Background()))

		assert.ErrorIs(t, session.Connect(context.Background()), ErrInvalidState)
	})
}

func TestSessionRequestJoin(t *testing.T) {
	t.Run("silent no-op while disconnected", func(t *testing.T) {
		session, channel, sig, _ := newTestSession(t, selfID)
		require.NoError(t, session.Connect(context.Background()))
		channel.mu.Lock()
		channel.connected = false
		channel.mu.Unlock()
		before := len(sig.callLog())

		require.NoError(t, session.RequestJoin(context.Background(), ""))

		assert.Len(t, sig.callLog(), before)
		assert.Equal(t, core.SessionWaitingRoom, session.State())
	})

	t.Run("closed room refuses the request", func(t *testing.T) {
		session, _, sig, _ := newTestSession(t, selfID)
		require.NoError(t, session.Connect(context.Background()))
		sig.accepting = false

		assert.ErrorIs(t, session.RequestJoin(context.Background(), ""), ErrRoomClosed)
		assert.Equal(t, core.SessionWaitingRoom, session.State())
	})

	t.Run("before connect it is illegal", func(t *testing.T) {
		session, _, _, _ := newTestSession(t, selfID)

		assert.ErrorIs(t, session.RequestJoin(context.Background(), ""), ErrInvalidState)
	})
}

func TestSessionApprovalRunsJoin(t *testing.T) {
	session, channel, sig, media := newTestSession(t, selfID)
	sig.joinResult.PeerStates = []core.PeerState{{UID: hostID, Name: "host"}}
	sig.producers = []signaling.ProducerInfo{
		{ProducerID: "p-host-audio", UserID: hostID, AppData: signaling.AppData{MediaType: signaling.MediaAudio}},
		{ProducerID: "p-self-old", UserID: selfID, AppData: signaling.AppData{MediaType: signaling.MediaAudio}},
	}
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.RequestJoin(context.Background(), "pw"))

	channel.push(t, signaling.PeerApprovedPush, signaling.AdmissionPushParams{UserID: selfID})
	drain(t, session)

	assert.Equal(t, core.SessionJoined, session.State())
	assert.Contains(t, sig.callLog(), "joinRoom(password=pw)")
	assert.Contains(t, media.callLog(), "setRTPCapabilities")
	assert.Contains(t, media.callLog(), "enableMicrophone")
	assert.Contains(t, media.callLog(), "enableCamera")
	// own producers are never consumed
	assert.Equal(t, []string{"p-host-audio"}, media.consumedProducers())

	_, ok := session.Registry().Peer(hostID)
	assert.True(t, ok)
}

func TestSessionApprovalAfterCancelIsIgnored(t *testing.T) {
	session, channel, sig, _ := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.RequestJoin(context.Background(), ""))
	require.NoError(t, session.CancelJoin())

	channel.push(t, signaling.PeerApprovedPush, signaling.AdmissionPushParams{UserID: selfID})
	drain(t, session)

	assert.Equal(t, core.SessionWaitingRoom, session.State())
	assert.NotContains(t, sig.callLog(), "joinRoom(password=)")
	assert.Contains(t, sig.callLog(), "cancelJoinRequest")
}

func TestSessionRejectionKeepsWaiting(t *testing.T) {
	session, channel, _, _ := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.RequestJoin(context.Background(), ""))

	channel.push(t, signaling.PeerRejectedPush, signaling.AdmissionPushParams{UserID: selfID, Message: "room is full"})
	drain(t, session)

	assert.Equal(t, core.SessionWaitingRoom, session.State())
	assert.Equal(t, "room is full", session.FailureMessage())

	// the request may be retried
	require.NoError(t, session.RequestJoin(context.Background(), ""))
}

func TestSessionRejectionAfterApprovalIsIgnored(t *testing.T) {
	session, channel, _, _ := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.RequestJoin(context.Background(), ""))

	channel.push(t, signaling.PeerApprovedPush, signaling.AdmissionPushParams{UserID: selfID})
	drain(t, session)
	require.Equal(t, core.SessionJoined, session.State())

	channel.push(t, signaling.PeerRejectedPush, signaling.AdmissionPushParams{UserID: selfID, Message: "room is full"})
	drain(t, session)

	assert.Equal(t, core.SessionJoined, session.State())
	assert.Empty(t, session.FailureMessage())
}

func TestSessionJoinRefusedIsRecoverable(t *testing.T) {
	session, _, sig, _ := newTestSession(t, selfID)
	sig.joinResult = &signaling.JoinRoomResult{Type: core.ResultFailure, Message: "wrong password"}
	require.NoError(t, session.Connect(context.Background()))

	err := session.Join(context.Background(), "bad")

	var joinErr *JoinError
	require.ErrorAs(t, err, &joinErr)
	assert.Equal(t, "wrong password", joinErr.Message)
	assert.Equal(t, core.SessionWaitingRoom, session.State())
	assert.Equal(t, "wrong password", session.FailureMessage())
}

func TestSessionCapturePermissionDenialTolerated(t *testing.T) {
	session, _, sig, media := newTestSession(t, selfID)
	media.micErr = errors.New("permission denied")
	require.NoError(t, session.Connect(context.Background()))

	require.NoError(t, session.Join(context.Background(), ""))

	assert.Equal(t, core.SessionJoined, session.State())
	assert.Contains(t, sig.callLog(), "publishPeerState(mic=false,cam=true)")
}

func TestSessionHostGuard(t *testing.T) {
	t.Run("non-host moderation is rejected before the wire", func(t *testing.T) {
		session, _, sig, _ := newTestSession(t, selfID)
		require.NoError(t, session.Connect(context.Background()))
		before := sig.callLog()

		assert.ErrorIs(t, session.Kick("peer-x"), ErrNotHost)
		assert.ErrorIs(t, session.KickToWaitingRoom("peer-x"), ErrNotHost)
		assert.ErrorIs(t, session.Block("peer-x"), ErrNotHost)
		assert.ErrorIs(t, session.Unblock(context.Background(), "peer-x"), ErrNotHost)
		assert.ErrorIs(t, session.MuteByHost(nil), ErrNotHost)
		assert.ErrorIs(t, session.CloseVideoByHost(nil), ErrNotHost)
		assert.ErrorIs(t, session.Approve(context.Background(), "peer-x"), ErrNotHost)
		assert.ErrorIs(t, session.Reject(context.Background(), "peer-x"), ErrNotHost)

		assert.Equal(t, before, sig.callLog())
	})

	t.Run("host moderation reaches the wire", func(t *testing.T) {
		session, _, sig, _ := newTestSession(t, hostID)
		require.NoError(t, session.Connect(context.Background()))
		require.NoError(t, session.Join(context.Background(), ""))

		require.NoError(t, session.Kick("peer-x"))
		require.NoError(t, session.MuteByHost([]core.PeerID{"peer-x"}))

		assert.Contains(t, sig.callLog(), "kickUser(peer-x)")
		assert.Contains(t, sig.callLog(), "closeAudioByHost")
	})
}

func TestSessionApprove(t *testing.T) {
	join := func(t *testing.T, session *Session, sig *fakeRoomSignaler) {
		sig.joinResult.AwaitingUserIDs = []core.PeerID{"u1"}
		require.NoError(t, session.Connect(context.Background()))
		require.NoError(t, session.Join(context.Background(), ""))
	}

	t.Run("refused approve still removes the id from awaiting", func(t *testing.T) {
		session, _, sig, _ := newTestSession(t, hostID)
		join(t, session, sig)
		sig.decision = core.EventResult{Type: core.ResultFailure, Message: "gone"}

		err := session.Approve(context.Background(), "u1")

		var decisionErr *DecisionError
		require.ErrorAs(t, err, &decisionErr)
		assert.False(t, session.Registry().InAwaiting("u1"))
	})

	t.Run("approving a peer that is not awaiting is a no-op", func(t *testing.T) {
		session, _, sig, _ := newTestSession(t, hostID)
		join(t, session, sig)
		before := len(sig.callLog())

		require.NoError(t, session.Approve(context.Background(), "u2"))

		assert.Len(t, sig.callLog(), before)
	})

	t.Run("approve after the requester cancelled is a no-op", func(t *testing.T) {
		session, channel, sig, _ := newTestSession(t, hostID)
		join(t, session, sig)

		// the cancellation arrives via the joiners update before the host acts
		channel.push(t, signaling.UpdateRoomJoinersPush, signaling.UpdateRoomJoinersParams{
			AwaitingUserIDs: []core.PeerID{},
		})
		drain(t, session)
		before := len(sig.callLog())

		require.NoError(t, session.Approve(context.Background(), "u1"))

		assert.Len(t, sig.callLog(), before)
	})
}

func TestSessionPeerDisconnectCleanup(t *testing.T) {
	session, channel, sig, media := newTestSession(t, selfID)
	sig.joinResult.PeerStates = []core.PeerState{{UID: "u1", Name: "one"}}
	sig.joinResult.AwaitingUserIDs = []core.PeerID{"u1"}
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Join(context.Background(), ""))

	channel.push(t, signaling.PeerDisconnectedPush, signaling.PeerRefParams{UserID: "u1"})
	drain(t, session)

	assert.Contains(t, media.callLog(), "removePeer(u1)")
	_, ok := session.Registry().Peer("u1")
	assert.False(t, ok)
	assert.False(t, session.Registry().InAwaiting("u1"))
}

func TestSessionKickedSelf(t *testing.T) {
	session, channel, _, media := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Join(context.Background(), ""))

	channel.push(t, signaling.KickUserPush, signaling.PeerRefParams{UserID: selfID})
	drain(t, session)

	assert.Contains(t, media.callLog(), "closeAll")
	assert.Equal(t, core.SessionCreated, session.State())
	assert.True(t, channel.isClosed())
}

func TestSessionKickedToWaitingRoom(t *testing.T) {
	session, channel, sig, media := newTestSession(t, selfID)
	sig.joinResult.PeerStates = []core.PeerState{{UID: "u1", Name: "one"}}
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Join(context.Background(), ""))

	channel.push(t, signaling.KickToWaitingRoomPush, signaling.PeerRefParams{UserID: selfID})
	drain(t, session)

	assert.Contains(t, media.callLog(), "closeAll")
	assert.Equal(t, core.SessionWaitingRoom, session.State())
	assert.Empty(t, session.Registry().Peers())
	assert.False(t, channel.isClosed())

	t.Run("a fresh admission request is possible", func(t *testing.T) {
		require.NoError(t, session.RequestJoin(context.Background(), ""))
	})
}

func TestSessionCloseMediaByHost(t *testing.T) {
	session, channel, sig, media := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Join(context.Background(), ""))

	t.Run("audio close targets only listed peers", func(t *testing.T) {
		channel.push(t, signaling.CloseAudioByHostPush, signaling.CloseMediaParams{UserIDs: []core.PeerID{"other"}})
		drain(t, session)
		assert.NotContains(t, media.callLog(), "disableMicrophone")

		channel.push(t, signaling.CloseAudioByHostPush, signaling.CloseMediaParams{UserIDs: []core.PeerID{"other", selfID}})
		drain(t, session)
		assert.Contains(t, media.callLog(), "disableMicrophone")
		assert.Contains(t, sig.callLog(), "publishPeerState(mic=false,cam=true)")
	})

	t.Run("video close disables the camera", func(t *testing.T) {
		channel.push(t, signaling.CloseVideoByHostPush, signaling.CloseMediaParams{UserIDs: []core.PeerID{selfID}})
		drain(t, session)
		assert.Contains(t, media.callLog(), "disableCamera")
	})
}

func TestSessionStopShareScreenPush(t *testing.T) {
	session, channel, _, media := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Join(context.Background(), ""))

	channel.push(t, signaling.StopShareScreenPush, signaling.PeerRefParams{UserID: "sharer"})
	drain(t, session)

	assert.Contains(t, media.callLog(), "handleRemoteShareStopped(sharer)")
	assert.Contains(t, media.callLog(), "handleShareScreenStopped")
}

func TestSessionChatOrdering(t *testing.T) {
	session, channel, _, _ := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Join(context.Background(), ""))

	for i := 0; i < 5; i++ {
		channel.push(t, signaling.SendChatPush, signaling.ChatParams{
			ID:       fmt.Sprintf("m%d", i),
			AuthorID: "u1",
			Content:  fmt.Sprintf("message %d", i),
		})
	}
	drain(t, session)

	chat := session.Registry().Chat()
	require.Len(t, chat, 5)
	for i, message := range chat {
		assert.Equal(t, fmt.Sprintf("m%d", i), message.ID)
	}
}

func TestSessionWaitingRoomPatches(t *testing.T) {
	session, channel, _, _ := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))

	t.Run("peer join patches the joiner list", func(t *testing.T) {
		channel.push(t, signaling.PeerJoinedRoomPush, core.PeerState{UID: "u2", Name: "two"})
		drain(t, session)

		assert.Len(t, session.Snapshot().JoinerList, 2)
	})

	t.Run("duplicate join is not added twice", func(t *testing.T) {
		channel.push(t, signaling.PeerJoinedRoomPush, core.PeerState{UID: "u2", Name: "two"})
		drain(t, session)

		assert.Len(t, session.Snapshot().JoinerList, 2)
	})

	t.Run("peer exit patches the joiner list", func(t *testing.T) {
		channel.push(t, signaling.PeerExitedRoomPush, signaling.PeerRefParams{UserID: "u2"})
		drain(t, session)

		assert.Len(t, session.Snapshot().JoinerList, 1)
	})

	t.Run("joiners update replaces the list wholesale", func(t *testing.T) {
		channel.push(t, signaling.UpdateRoomJoinersPush, signaling.UpdateRoomJoinersParams{
			JoinerList: []core.Joiner{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		})
		drain(t, session)

		assert.Len(t, session.Snapshot().JoinerList, 3)
	})
}

func TestSessionJoinersUpdateWhileJoined(t *testing.T) {
	session, channel, _, _ := newTestSession(t, hostID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Join(context.Background(), ""))

	channel.push(t, signaling.UpdateRoomJoinersPush, signaling.UpdateRoomJoinersParams{
		JoinerList:      []core.Joiner{{ID: "w1"}},
		AwaitingUserIDs: []core.PeerID{"w1"},
	})
	drain(t, session)

	assert.Equal(t, []core.PeerID{"w1"}, session.Registry().Joining())
	assert.True(t, session.Registry().InAwaiting("w1"))
}

func TestSessionNewProducerPush(t *testing.T) {
	session, channel, _, media := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Join(context.Background(), ""))

	channel.push(t, signaling.NewProducerPush, signaling.ProducerInfo{
		ProducerID: "p1",
		UserID:     "u1",
		AppData:    signaling.AppData{MediaType: signaling.MediaCamera},
	})
	// own producer announcements are ignored
	channel.push(t, signaling.NewProducerPush, signaling.ProducerInfo{
		ProducerID: "p-self",
		UserID:     selfID,
	})
	drain(t, session)

	assert.Equal(t, []string{"p1"}, media.consumedProducers())
}

func TestSessionLeave(t *testing.T) {
	session, channel, sig, media := newTestSession(t, selfID)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.RequestJoin(context.Background(), ""))

	require.NoError(t, session.Leave())

	assert.Contains(t, sig.callLog(), "cancelJoinRequest")
	assert.Contains(t, sig.callLog(), "exitWaitingRoom")
	assert.Contains(t, media.callLog(), "closeAll")
	assert.True(t, channel.isClosed())
}
