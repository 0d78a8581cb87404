package core

// PeerID identifies one connected participant instance. It is stable for the
// lifetime of the participant's session, not necessarily across sessions.
type PeerID string

// RoomID identifies a logical conference room.
type RoomID string

func (p PeerID) String() string {
	return string(p)
}

func (r RoomID) String() string {
	return string(r)
}
