package core

// SessionState is the room-session state machine value. Exactly one state is
// active per session instance.
type SessionState string

const (
	SessionNotExists   SessionState = "not_exists"
	SessionCreated     SessionState = "created"
	SessionConnected   SessionState = "connected"
	SessionWaitingRoom SessionState = "waiting_room"
	SessionJoined      SessionState = "joined"
)

// CanTransition reports whether moving from s to next is a legal transition.
func (s SessionState) CanTransition(next SessionState) bool {
	switch s {
	case SessionCreated:
		return next == SessionConnected
	case SessionConnected:
		return next == SessionNotExists || next == SessionWaitingRoom
	case SessionWaitingRoom:
		return next == SessionJoined || next == SessionCreated
	case SessionJoined:
		return next == SessionWaitingRoom || next == SessionCreated
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == SessionNotExists
}

// Joiner is one entry of the waiting-room joiner list.
type Joiner struct {
	ID   PeerID `json:"id"`
	Name string `json:"name"`
}

// BlockedUser is a blacklist entry. Membership implies the peer cannot pass
// the admission and room-full checks.
type BlockedUser struct {
	ID   PeerID `json:"id"`
	Name string `json:"name"`
}

// WaitingRoomSnapshot is the immutable waiting-room view. It is replaced
// wholesale on structural change and patched incrementally on peer
// join/exit events.
type WaitingRoomSnapshot struct {
	JoinerList  []Joiner      `json:"joinerList"`
	Capacity    int           `json:"capacity"`
	MasterID    PeerID        `json:"masterId"`
	Blacklist   []BlockedUser `json:"blacklist"`
	HasPassword bool          `json:"hasPassword"`
}

// Clone returns a deep copy so the stored snapshot can be patched without
// aliasing the one handed out to observers.
func (s *WaitingRoomSnapshot) Clone() *WaitingRoomSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.JoinerList = append([]Joiner(nil), s.JoinerList...)
	c.Blacklist = append([]BlockedUser(nil), s.Blacklist...)
	return &c
}

// EventResult is the generic ack payload of host-mediated operations.
type EventResult struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

func (r EventResult) OK() bool {
	return r.Type == ResultSuccess
}
