package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
)

func TestRegistryUpsertPeer(t *testing.T) {
	registry := NewRegistry()

	registry.UpsertPeer(core.PeerState{UID: "u1", Name: "one"})
	registry.UpsertPeer(core.PeerState{UID: "u2", Name: "two"})
	registry.UpsertPeer(core.PeerState{UID: "u1", Name: "one", EnabledMicrophone: true})

	peers := registry.Peers()
	assert.Len(t, peers, 2)

	peer, ok := registry.Peer("u1")
	assert.True(t, ok)
	assert.True(t, peer.EnabledMicrophone)
}

func TestRegistryRemovePeer(t *testing.T) {
	registry := NewRegistry()
	registry.UpsertPeer(core.PeerState{UID: "u1"})
	registry.UpsertPeer(core.PeerState{UID: "u2"})
	registry.UpsertPeer(core.PeerState{UID: "u3"})

	assert.True(t, registry.RemovePeer("u2"))
	assert.False(t, registry.RemovePeer("u2"))

	// index stays consistent after the middle removal
	peer, ok := registry.Peer("u3")
	assert.True(t, ok)
	assert.Equal(t, core.PeerID("u3"), peer.UID)
	assert.Len(t, registry.Peers(), 2)
}

func TestRegistryAwaiting(t *testing.T) {
	registry := NewRegistry()

	registry.AddAwaiting("u1")
	registry.AddAwaiting("u1")
	registry.AddAwaiting("u2")

	assert.Len(t, registry.Awaiting(), 2)
	assert.True(t, registry.InAwaiting("u1"))

	registry.RemoveAwaiting("u1")
	assert.False(t, registry.InAwaiting("u1"))
	assert.True(t, registry.InAwaiting("u2"))
}

func TestRegistryChatAppendOnly(t *testing.T) {
	registry := NewRegistry()
	now := time.Now()

	registry.AppendChat(core.ChatMessage{ID: "m1", Content: "first", SentAt: now})
	registry.AppendChat(core.ChatMessage{ID: "m2", Content: "second", SentAt: now})

	chat := registry.Chat()
	assert.Len(t, chat, 2)
	assert.Equal(t, "m1", chat[0].ID)
	assert.Equal(t, "m2", chat[1].ID)
}

func TestRegistryResetKeepsBlacklist(t *testing.T) {
	registry := NewRegistry()
	registry.UpsertPeer(core.PeerState{UID: "u1"})
	registry.AppendChat(core.ChatMessage{ID: "m1"})
	registry.AddAwaiting("u2")
	registry.Block(core.BlockedUser{ID: "banned", Name: "b"})

	registry.Reset()

	assert.Empty(t, registry.Peers())
	assert.Empty(t, registry.Chat())
	assert.Empty(t, registry.Awaiting())
	assert.True(t, registry.IsBlocked("banned"))

	registry.Unblock("banned")
	assert.False(t, registry.IsBlocked("banned"))
}
