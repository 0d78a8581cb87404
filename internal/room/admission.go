package room

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/eventbus"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/telemetry"
)

// DecisionError is a host-mediated operation the server refused. Local state
// is left untouched.
type DecisionError struct {
	Message string
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("room: refused by server: %s", e.Message)
}

// RequestJoin asks the host for admission. While the channel is disconnected
// this is a silent no-op: the waiting peer keeps waiting. The password is
// remembered for the automatic join when the approval arrives.
func (s *Session) RequestJoin(ctx context.Context, password string) error {
	return s.perform(func() error {
		if s.State() != core.SessionWaitingRoom {
			return ErrInvalidState
		}
		if !s.opts.Channel.Connected() {
			log.Debug().Str("service", "room").Msg("join request skipped while disconnected")
			return nil
		}

		accepting, err := s.opts.Signaler.RequestToJoin(ctx, s.opts.SelfID)
		if err != nil {
			return err
		}
		if !accepting {
			s.setFailure("the room is not accepting join requests")
			return ErrRoomClosed
		}

		s.mu.Lock()
		s.admission = admissionPending
		s.passwordInput = password
		s.mu.Unlock()

		s.publish(eventbus.Event{Kind: eventbus.AdmissionRequested, RoomID: s.opts.RoomID, PeerID: s.opts.SelfID})
		return nil
	})
}

// CancelJoin withdraws a pending admission request. A later approval push for
// this peer is ignored.
func (s *Session) CancelJoin() error {
	return s.perform(func() error {
		s.cancelJoin()
		return nil
	})
}

func (s *Session) cancelJoin() {
	s.mu.Lock()
	if s.admission != admissionPending {
		s.mu.Unlock()
		return
	}
	s.admission = admissionCancelled
	s.mu.Unlock()

	if err := s.opts.Signaler.CancelJoinRequest(s.opts.SelfID); err != nil {
		log.Debug().Err(err).Str("service", "room").Msg("cancel join request")
	}
	telemetry.AdmissionOutcome("cancelled")
	s.publish(eventbus.Event{Kind: eventbus.AdmissionCancelled, RoomID: s.opts.RoomID, PeerID: s.opts.SelfID})
}

// Approve admits an awaiting peer. The id leaves the awaiting list no matter
// what the server answers; approving an id that is not awaiting (cancelled,
// already decided) is a no-op.
func (s *Session) Approve(ctx context.Context, userID core.PeerID) error {
	return s.moderate("approve", func() error {
		if !s.registry.InAwaiting(userID) {
			return nil
		}
		res, err := s.opts.Signaler.ApproveJoining(ctx, userID)
		s.registry.RemoveAwaiting(userID)
		if err != nil {
			return err
		}
		if !res.OK() {
			return &DecisionError{Message: res.Message}
		}
		telemetry.AdmissionOutcome("approved")
		s.publish(eventbus.Event{Kind: eventbus.AdmissionApproved, RoomID: s.opts.RoomID, PeerID: userID})
		return nil
	})
}

func (s *Session) Reject(ctx context.Context, userID core.PeerID) error {
	return s.moderate("reject", func() error {
		if !s.registry.InAwaiting(userID) {
			return nil
		}
		res, err := s.opts.Signaler.RejectJoining(ctx, userID)
		s.registry.RemoveAwaiting(userID)
		if err != nil {
			return err
		}
		if !res.OK() {
			return &DecisionError{Message: res.Message}
		}
		telemetry.AdmissionOutcome("rejected")
		s.publish(eventbus.Event{Kind: eventbus.AdmissionRejected, RoomID: s.opts.RoomID, PeerID: userID})
		return nil
	})
}

// handleApproved reacts to the approval push. For the local peer it runs the
// join handshake, unless the request was cancelled in the meantime. For other
// peers it trims the awaiting list.
func (s *Session) handleApproved(userID core.PeerID) {
	if userID != s.opts.SelfID {
		s.registry.RemoveAwaiting(userID)
		if s.State() == core.SessionWaitingRoom {
			s.applyWaitingRoomEvent(PeerExitedWaiting{PeerID: userID})
		}
		return
	}

	s.mu.Lock()
	if s.admission == admissionCancelled {
		s.mu.Unlock()
		log.Debug().Str("service", "room").Msg("approval after cancel ignored")
		return
	}
	s.admission = admissionApproved
	password := s.passwordInput
	s.mu.Unlock()

	s.applyWaitingRoomEvent(AdmissionApproved{})
	s.publish(eventbus.Event{Kind: eventbus.AdmissionApproved, RoomID: s.opts.RoomID, PeerID: userID})

	ctx, cancel := s.opCtx()
	defer cancel()
	if err := s.joinRoom(ctx, password); err != nil {
		log.Warn().Err(err).Str("service", "room").Msg("join after approval failed")
	}
}

// handleRejected keeps the local peer in the waiting room with the refusal
// message; the request may be retried. Only a pending request can be
// rejected: after an approval or a cancel the push is stale and ignored.
func (s *Session) handleRejected(userID core.PeerID, message string) {
	if userID != s.opts.SelfID {
		s.registry.RemoveAwaiting(userID)
		if s.State() == core.SessionWaitingRoom {
			s.applyWaitingRoomEvent(PeerExitedWaiting{PeerID: userID})
		}
		return
	}

	s.mu.Lock()
	if s.admission != admissionPending {
		s.mu.Unlock()
		log.Debug().Str("service", "room").Msg("stale rejection ignored")
		return
	}
	s.admission = admissionRejected
	s.failureMessage = message
	s.mu.Unlock()

	s.applyWaitingRoomEvent(AdmissionRejected{Message: message})
	s.publish(eventbus.Event{Kind: eventbus.AdmissionRejected, RoomID: s.opts.RoomID, PeerID: userID, Message: message})
}
