package room

import (
	"context"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/eventbus"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/telemetry"
)

// moderate is the single host guard: every moderation dispatch passes through
// here before anything reaches the wire.
func (s *Session) moderate(action string, task func() error) error {
	return s.perform(func() error {
		if !s.IsHost() {
			return ErrNotHost
		}
		telemetry.ModerationAction(action)
		return task()
	})
}

// Kick removes a peer from the call. Kicking yourself is a plain leave.
func (s *Session) Kick(userID core.PeerID) error {
	return s.moderate("kick", func() error {
		if err := s.opts.Signaler.KickUser(userID); err != nil {
			return err
		}
		if userID == s.opts.SelfID {
			s.terminate("kicked self")
			return nil
		}
		s.publish(eventbus.Event{Kind: eventbus.Kicked, RoomID: s.opts.RoomID, PeerID: userID})
		return nil
	})
}

// KickToWaitingRoom sends a peer back behind the admission gate.
func (s *Session) KickToWaitingRoom(userID core.PeerID) error {
	return s.moderate("kick_to_waiting", func() error {
		if err := s.opts.Signaler.KickUserToWaitingRoom(userID); err != nil {
			return err
		}
		if userID == s.opts.SelfID {
			s.demoteToWaiting()
			return nil
		}
		s.publish(eventbus.Event{Kind: eventbus.KickedToWaiting, RoomID: s.opts.RoomID, PeerID: userID})
		return nil
	})
}

// Block kicks the peer and adds it to the blacklist, barring readmission.
func (s *Session) Block(userID core.PeerID) error {
	return s.moderate("block", func() error {
		name := ""
		if peer, ok := s.registry.Peer(userID); ok {
			name = peer.Name
		}
		if err := s.opts.Signaler.BlockUser(userID, name); err != nil {
			return err
		}
		if err := s.opts.Signaler.KickUser(userID); err != nil {
			return err
		}
		s.registry.Block(core.BlockedUser{ID: userID, Name: name})
		s.publish(eventbus.Event{Kind: eventbus.Kicked, RoomID: s.opts.RoomID, PeerID: userID, Message: "blocked"})
		return nil
	})
}

// Unblock removes a blacklist entry. The local list changes only on a
// confirmed ack; no optimistic removal.
func (s *Session) Unblock(ctx context.Context, userID core.PeerID) error {
	return s.moderate("unblock", func() error {
		res, err := s.opts.Signaler.UnblockUser(ctx, userID)
		if err != nil {
			return err
		}
		if !res.OK() {
			return &DecisionError{Message: res.Message}
		}
		s.registry.Unblock(userID)
		return nil
	})
}

// MuteByHost instructs the listed peers to close their audio producers.
func (s *Session) MuteByHost(userIDs []core.PeerID) error {
	return s.moderate("mute", func() error {
		return s.opts.Signaler.CloseAudioByHost(userIDs)
	})
}

// CloseVideoByHost instructs the listed peers to close their camera
// producers.
func (s *Session) CloseVideoByHost(userIDs []core.PeerID) error {
	return s.moderate("close_video", func() error {
		return s.opts.Signaler.CloseVideoByHost(userIDs)
	})
}
