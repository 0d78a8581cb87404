package room

import "github.com/sp-mcslab/ezcare-web-sub000/internal/core"

// WaitingRoomEvent is the tagged variant of waiting-room changes, dispatched
// by exhaustive type switch in the session.
type WaitingRoomEvent interface {
	waitingRoomEvent()
}

type PeerJoinedWaiting struct {
	Joiner core.Joiner
}

type PeerExitedWaiting struct {
	PeerID core.PeerID
}

type AdmissionApproved struct{}

type AdmissionRejected struct {
	Message string
}

type AdmissionCancelled struct {
	PeerID core.PeerID
}

type JoinersUpdated struct {
	Joiners  []core.Joiner
	Awaiting []core.PeerID
}

func (PeerJoinedWaiting) waitingRoomEvent()  {}
func (PeerExitedWaiting) waitingRoomEvent()  {}
func (AdmissionApproved) waitingRoomEvent()  {}
func (AdmissionRejected) waitingRoomEvent()  {}
func (AdmissionCancelled) waitingRoomEvent() {}
func (JoinersUpdated) waitingRoomEvent()     {}
