package eventbus

import (
	"encoding/json"
	"time"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
)

// Kind classifies one domain event.
type Kind string

const (
	StateChanged       Kind = "state_changed"
	WaitingRoomUpdated Kind = "waiting_room_updated"
	PeerJoined         Kind = "peer_joined"
	PeerLeft           Kind = "peer_left"
	PeerStateChanged   Kind = "peer_state_changed"
	ChatReceived       Kind = "chat_received"
	AdmissionRequested Kind = "admission_requested"
	AdmissionApproved  Kind = "admission_approved"
	AdmissionRejected  Kind = "admission_rejected"
	AdmissionCancelled Kind = "admission_cancelled"
	ProducerStarted    Kind = "producer_started"
	ProducerStopped    Kind = "producer_stopped"
	ConsumerAdded      Kind = "consumer_added"
	ConsumerRemoved    Kind = "consumer_removed"
	Kicked             Kind = "kicked"
	KickedToWaiting    Kind = "kicked_to_waiting"
	SessionEnded       Kind = "session_ended"
	ErrorRaised        Kind = "error"
)

// Event is one domain event emitted by the session. Components subscribe to
// these instead of holding references back into presentation code.
type Event struct {
	Kind    Kind              `json:"kind"`
	At      time.Time         `json:"at"`
	RoomID  core.RoomID       `json:"roomId,omitempty"`
	PeerID  core.PeerID       `json:"peerId,omitempty"`
	State   core.SessionState `json:"state,omitempty"`
	Message string            `json:"message,omitempty"`
	Chat    *core.ChatMessage `json:"chat,omitempty"`
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers domain events to one sink.
type Publisher interface {
	Publish(event Event) error
}
