package room

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/eventbus"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/signaling"
)

// attachHandlers registers every server push. Handlers only decode and
// enqueue; the dispatch loop applies them in arrival order.
func (s *Session) attachHandlers() {
	ch := s.opts.Channel

	ch.Handle(signaling.NewProducerPush, pushHandler(s, s.onNewProducer))
	ch.Handle(signaling.ProducerClosedPush, pushHandler(s, s.onProducerClosed))
	ch.Handle(signaling.PeerJoinedRoomPush, pushHandler(s, s.onPeerJoined))
	ch.Handle(signaling.PeerExitedRoomPush, pushHandler(s, s.onPeerExited))
	ch.Handle(signaling.PeerStateChangedPush, pushHandler(s, s.onPeerStateChanged))
	ch.Handle(signaling.PeerDisconnectedPush, pushHandler(s, s.onPeerDisconnected))
	ch.Handle(signaling.SendChatPush, pushHandler(s, s.onChat))
	ch.Handle(signaling.KickUserPush, pushHandler(s, s.onKicked))
	ch.Handle(signaling.KickToWaitingRoomPush, pushHandler(s, s.onKickedToWaiting))
	ch.Handle(signaling.CloseAudioByHostPush, pushHandler(s, s.onCloseAudio))
	ch.Handle(signaling.CloseVideoByHostPush, pushHandler(s, s.onCloseVideo))
	ch.Handle(signaling.StopShareScreenPush, pushHandler(s, s.onStopShareScreen))
	ch.Handle(signaling.PeerApprovedPush, pushHandler(s, s.onApproved))
	ch.Handle(signaling.PeerRejectedPush, pushHandler(s, s.onRejected))
	ch.Handle(signaling.UpdateRoomJoinersPush, pushHandler(s, s.onJoinersUpdated))
}

// pushHandler decodes into T and enqueues the typed handler.
func pushHandler[T any](s *Session, apply func(T)) signaling.Handler {
	return func(params json.RawMessage) {
		var decoded T
		if len(params) > 0 {
			if err := json.Unmarshal(params, &decoded); err != nil {
				log.Warn().Err(err).Str("service", "room").Msg("undecodable push dropped")
				return
			}
		}
		s.do(func() { apply(decoded) })
	}
}

func (s *Session) onNewProducer(info signaling.ProducerInfo) {
	if info.UserID == s.opts.SelfID || s.State() != core.SessionJoined {
		return
	}
	ctx, cancel := s.opCtx()
	defer cancel()
	if err := s.opts.Media.ConsumeRemote(ctx, info); err != nil {
		log.Warn().Err(err).
			Str("service", "room").
			Str("producerID", info.ProducerID).
			Msg("consume failed")
		s.publish(eventbus.Event{Kind: eventbus.ErrorRaised, PeerID: info.UserID, Message: err.Error()})
	}
}

func (s *Session) onProducerClosed(params signaling.ProducerClosedParams) {
	s.opts.Media.HandleProducerClosed(params)
}

func (s *Session) onPeerJoined(state core.PeerState) {
	switch s.State() {
	case core.SessionWaitingRoom:
		s.applyWaitingRoomEvent(PeerJoinedWaiting{Joiner: core.Joiner{ID: state.UID, Name: state.Name}})
	case core.SessionJoined:
		s.registry.UpsertPeer(state)
		s.publish(eventbus.Event{Kind: eventbus.PeerJoined, RoomID: s.opts.RoomID, PeerID: state.UID})
	}
}

func (s *Session) onPeerExited(params signaling.PeerRefParams) {
	switch s.State() {
	case core.SessionWaitingRoom:
		s.applyWaitingRoomEvent(PeerExitedWaiting{PeerID: params.UserID})
	case core.SessionJoined:
		s.removePeer(params.UserID)
	}
}

func (s *Session) onPeerStateChanged(state core.PeerState) {
	if state.UID == s.opts.SelfID {
		return
	}
	s.registry.UpsertPeer(state)
	s.publish(eventbus.Event{Kind: eventbus.PeerStateChanged, PeerID: state.UID})
}

// onPeerDisconnected is the full per-peer cleanup: consumers, receive
// transport, registry entry and awaiting entry go in one queued task, so no
// observer sees a half-removed peer.
func (s *Session) onPeerDisconnected(params signaling.PeerRefParams) {
	if s.State() == core.SessionWaitingRoom {
		s.applyWaitingRoomEvent(PeerExitedWaiting{PeerID: params.UserID})
		return
	}
	s.removePeer(params.UserID)
}

func (s *Session) removePeer(userID core.PeerID) {
	s.opts.Media.RemovePeer(userID)
	s.registry.RemovePeer(userID)
	s.registry.RemoveAwaiting(userID)
	s.publish(eventbus.Event{Kind: eventbus.PeerLeft, RoomID: s.opts.RoomID, PeerID: userID})
}

func (s *Session) onChat(params signaling.ChatParams) {
	sentAt, err := time.Parse(time.RFC3339, params.SentAt)
	if err != nil {
		sentAt = time.Now()
	}
	message := core.ChatMessage{
		ID:       params.ID,
		AuthorID: params.AuthorID,
		Content:  params.Content,
		SentAt:   sentAt,
	}
	s.registry.AppendChat(message)
	s.publish(eventbus.Event{Kind: eventbus.ChatReceived, RoomID: s.opts.RoomID, PeerID: params.AuthorID, Chat: &message})
}

func (s *Session) onKicked(params signaling.PeerRefParams) {
	if params.UserID != s.opts.SelfID {
		s.publish(eventbus.Event{Kind: eventbus.Kicked, RoomID: s.opts.RoomID, PeerID: params.UserID})
		return
	}
	s.publish(eventbus.Event{Kind: eventbus.Kicked, RoomID: s.opts.RoomID, PeerID: params.UserID})
	s.terminate("kicked by host")
}

func (s *Session) onKickedToWaiting(params signaling.PeerRefParams) {
	if params.UserID != s.opts.SelfID {
		s.removePeer(params.UserID)
		return
	}
	s.demoteToWaiting()
}

// onCloseAudio self-enforces the host instruction: the producer closes on the
// target, not on the server.
func (s *Session) onCloseAudio(params signaling.CloseMediaParams) {
	if !containsPeer(params.UserIDs, s.opts.SelfID) {
		return
	}
	s.opts.Media.DisableMicrophone()
	self := s.selfState()
	self.EnabledMicrophone = false
	s.updateSelf(self)
}

func (s *Session) onCloseVideo(params signaling.CloseMediaParams) {
	if !containsPeer(params.UserIDs, s.opts.SelfID) {
		return
	}
	s.opts.Media.DisableCamera()
	self := s.selfState()
	self.EnabledCamera = false
	s.updateSelf(self)
}

// onStopShareScreen covers both sides of share exclusivity: drop the remote
// share mark for the sharer, and close a local share without re-broadcasting.
func (s *Session) onStopShareScreen(params signaling.PeerRefParams) {
	if params.UserID != "" && params.UserID != s.opts.SelfID {
		s.opts.Media.HandleRemoteShareStopped(params.UserID)
	}
	s.opts.Media.HandleShareScreenStopped()
}

func (s *Session) onApproved(params signaling.AdmissionPushParams) {
	s.handleApproved(params.UserID)
}

func (s *Session) onRejected(params signaling.AdmissionPushParams) {
	s.handleRejected(params.UserID, params.Message)
}

func (s *Session) onJoinersUpdated(params signaling.UpdateRoomJoinersParams) {
	if params.AwaitingUserIDs != nil {
		s.registry.SetAwaiting(params.AwaitingUserIDs)
	}
	switch s.State() {
	case core.SessionWaitingRoom:
		s.applyWaitingRoomEvent(JoinersUpdated{Joiners: params.JoinerList, Awaiting: params.AwaitingUserIDs})
	case core.SessionJoined:
		joining := make([]core.PeerID, 0, len(params.JoinerList))
		for _, joiner := range params.JoinerList {
			joining = append(joining, joiner.ID)
		}
		s.registry.SetJoining(joining)
		s.publish(eventbus.Event{Kind: eventbus.WaitingRoomUpdated, RoomID: s.opts.RoomID})
	}
}

func containsPeer(ids []core.PeerID, id core.PeerID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
