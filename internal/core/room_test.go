package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStateTransitions(t *testing.T) {
	legal := []struct {
		from SessionState
		to   SessionState
	}{
		{SessionCreated, SessionConnected},
		{SessionConnected, SessionWaitingRoom},
		{SessionConnected, SessionNotExists},
		{SessionWaitingRoom, SessionJoined},
		{SessionWaitingRoom, SessionCreated},
		{SessionJoined, SessionWaitingRoom},
		{SessionJoined, SessionCreated},
	}
	for _, tt := range legal {
		assert.True(t, tt.from.CanTransition(tt.to), "%s -> %s should be legal", tt.from, tt.to)
	}

	illegal := []struct {
		from SessionState
		to   SessionState
	}{
		{SessionCreated, SessionJoined},
		{SessionCreated, SessionWaitingRoom},
		{SessionConnected, SessionJoined},
		{SessionWaitingRoom, SessionNotExists},
		{SessionJoined, SessionNotExists},
		{SessionNotExists, SessionCreated},
		{SessionNotExists, SessionWaitingRoom},
	}
	for _, tt := range illegal {
		assert.False(t, tt.from.CanTransition(tt.to), "%s -> %s should be illegal", tt.from, tt.to)
	}

	assert.True(t, SessionNotExists.Terminal())
	assert.False(t, SessionJoined.Terminal())
}

func TestWaitingRoomSnapshotClone(t *testing.T) {
	snapshot := &WaitingRoomSnapshot{
		JoinerList: []Joiner{{ID: "u1", Name: "one"}},
		Capacity:   4,
		MasterID:   "host",
		Blacklist:  []BlockedUser{{ID: "banned"}},
	}

	clone := snapshot.Clone()
	clone.JoinerList[0].Name = "changed"
	clone.JoinerList = append(clone.JoinerList, Joiner{ID: "u2"})

	assert.Equal(t, "one", snapshot.JoinerList[0].Name)
	assert.Len(t, snapshot.JoinerList, 1)

	var nilSnapshot *WaitingRoomSnapshot
	assert.Nil(t, nilSnapshot.Clone())
}
